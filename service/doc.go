// Package service implements the fork operations shared by the MCP tools and
// the HTTP facade.
//
// Every operation validates its input (selectors, addresses, transaction
// bytes, endpoints) before it touches the registry. Hydration resolves the
// fork first, fetches from the network without holding the registry lock and
// installs the fetched accounts inside one short Update. Batch loads report
// installed, failed and skipped addresses instead of failing as a whole.
//
// Usage:
//
//	svc := service.New(logger, registry, pool)
//	created, err := svc.Create("alice")
//	_, err = svc.SetBalance(sandbox.ByID(created.ForkID), addr, 5*ledger.LamportsPerSOL)
package service
