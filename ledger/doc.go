// Package ledger provides the account model and transaction engine that
// back every sandbox.
//
// Addresses, hashes and signatures are fixed-size byte arrays with a base58
// text form. Transactions carry a JSON-encoded message signed with ed25519 by
// every listed signer; the first signer pays the fee.
//
// MemoryEngine is a map-backed Engine that verifies signatures, rejects stale
// blockhashes and replays, charges a per-signature fee and executes system
// program transfers atomically.
//
// Usage:
//
//	engine := ledger.NewMemoryEngine()
//	_ = engine.Airdrop(payer, 2*ledger.LamportsPerSOL)
//
//	msg := ledger.Message{
//	    Signers:         []ledger.Address{payer},
//	    RecentBlockhash: engine.LatestBlockhash(),
//	    Instructions:    []ledger.Instruction{ledger.TransferInstruction(payer, to, 1000)},
//	}
//	tx, err := ledger.SignTransaction(msg, payerKey)
//	if err != nil {
//	    return err
//	}
//	err = engine.SendTransaction(tx)
package ledger
