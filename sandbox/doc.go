// Package sandbox provides the fork registry and the sandboxes it owns.
//
// A Sandbox wraps one ledger.Engine together with its lifecycle metadata:
// id, creation time, logical height, transaction count and the network
// snapshot it was seeded from. Sandboxes are owned by a Registry, which binds
// at most one live sandbox to each tenant and removes sandboxes once they
// outlive the configured TTL.
//
// A single RWMutex guards the sandbox map and the tenant bindings together.
// Callers never hold a *Sandbox outside a View or Update callback, so a sweep
// cannot remove a sandbox while a caller is using it. The Reaper runs Sweep
// periodically in the background.
//
// Usage:
//
//	registry := sandbox.NewRegistry(logger, sandbox.WithTTL(15*time.Minute))
//	id, err := registry.Create("alice")
//	if err != nil {
//	    return err
//	}
//	err = registry.Update(sandbox.ByID(id), func(sb *sandbox.Sandbox) error {
//	    return sb.SetBalance(addr, 10*ledger.LamportsPerSOL)
//	})
package sandbox
