package hydrator

import (
	"context"
	"errors"

	"github.com/isdmx/forkbox/ledger"
)

// ErrAccountNotFound is returned when the network has no account at an address
var ErrAccountNotFound = errors.New("account not found on network")

// KeyedAccount is an account together with its address
type KeyedAccount struct {
	Address ledger.Address
	Account ledger.Account
}

// MemcmpFilter keeps only accounts whose data matches Bytes at Offset
type MemcmpFilter struct {
	Offset int
	Bytes  []byte
}

// NetworkClient reads state from a live network
type NetworkClient interface {
	GetAccountInfo(ctx context.Context, addr ledger.Address) (ledger.Account, error)
	GetProgramAccounts(ctx context.Context, program ledger.Address, filters ...MemcmpFilter) ([]KeyedAccount, error)
	GetSlot(ctx context.Context) (uint64, error)
	GetLatestBlockhash(ctx context.Context) (ledger.Hash, error)
}
