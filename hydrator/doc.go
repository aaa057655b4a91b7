// Package hydrator imports account state from a live network into sandboxes.
//
// A Hydrator wraps one NetworkClient. It reports the network's current slot
// and blockhash for stamping snapshot sandboxes, fetches single accounts,
// fetches batches with bounded concurrency and lists the token accounts held
// by an owner. Fetching never happens under the registry lock; Install is the
// only step that touches a sandbox and runs inside Registry.Update.
//
// RPCClient is the JSON-RPC implementation of NetworkClient. Pool caches one
// Hydrator per endpoint.
//
// Usage:
//
//	pool, err := hydrator.NewPoolFromConfig(logger, cfg)
//	h, err := pool.For("")
//	accounts, err := h.FetchAccounts(ctx, addrs)
//	err = registry.Update(sel, func(sb *sandbox.Sandbox) error {
//	    _, err := hydrator.Install(sb, accounts)
//	    return err
//	})
package hydrator
