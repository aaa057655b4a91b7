package ledger

import (
	"errors"
	"fmt"
)

// Engine executes transactions against one isolated account state.
// Implementations are not safe for concurrent use; callers serialize access.
type Engine interface {
	// Account returns a copy of the account at addr
	Account(addr Address) (Account, bool)
	// SetAccount replaces the account at addr
	SetAccount(addr Address, account Account) error
	// Airdrop credits lamports to addr, creating a system account if needed
	Airdrop(addr Address, lamports uint64) error
	// SendTransaction executes tx atomically. A non-nil error means the
	// transaction failed and state is unchanged.
	SendTransaction(tx *Transaction) error
	// LatestBlockhash returns the blockhash new transactions should reference
	LatestBlockhash() Hash
}

// EngineFactory builds a fresh, empty engine
type EngineFactory func() Engine

// Transaction failure reasons
var (
	ErrMissingSignature         = errors.New("transaction has no signatures")
	ErrSignatureCountMismatch   = errors.New("signature count does not match signer count")
	ErrSignatureFailure         = errors.New("signature verification failed")
	ErrBlockhashNotFound        = errors.New("blockhash not found")
	ErrAlreadyProcessed         = errors.New("transaction already processed")
	ErrInsufficientFundsForFee  = errors.New("insufficient funds for fee")
	ErrInsufficientFunds        = errors.New("insufficient funds")
	ErrMissingRequiredSignature = errors.New("missing required signature")
	ErrUnsupportedProgram       = errors.New("program execution is not supported")
	ErrInvalidInstructionData   = errors.New("invalid instruction data")
	ErrNotEnoughAccountKeys     = errors.New("not enough account keys")
	ErrInvalidTransferSource    = errors.New("transfer source must be a system account without data")
	ErrLamportsOverflow         = errors.New("lamports overflow")
)

// InstructionError reports which instruction of a transaction failed
type InstructionError struct {
	Index int
	Err   error
}

func (e *InstructionError) Error() string {
	return fmt.Sprintf("instruction %d: %v", e.Index, e.Err)
}

func (e *InstructionError) Unwrap() error {
	return e.Err
}
