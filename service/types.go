package service

import (
	"github.com/isdmx/forkbox/sandbox"
)

// CreateResult is returned by Create
type CreateResult struct {
	ForkID  string       `json:"fork_id"`
	UserID  string       `json:"user_id"`
	Created bool         `json:"created"`
	Info    sandbox.Info `json:"info"`
}

// SnapshotRequest describes a fork seeded from a live network
type SnapshotRequest struct {
	Tenant   string
	Endpoint string
	Accounts []string
}

// SnapshotResult is returned by CreateWithSnapshot
type SnapshotResult struct {
	ForkID            string          `json:"fork_id"`
	UserID            string          `json:"user_id"`
	Created           bool            `json:"created"`
	Endpoint          string          `json:"endpoint"`
	SnapshotHeight    uint64          `json:"mainnet_slot,omitempty"`
	SnapshotReference string          `json:"mainnet_blockhash,omitempty"`
	Installed         []string        `json:"installed"`
	Failed            []FailedAccount `json:"failed,omitempty"`
	Skipped           []string        `json:"skipped,omitempty"`
}

// FailedAccount names an account that could not be hydrated
type FailedAccount struct {
	Address string `json:"address"`
	Error   string `json:"error"`
}

// LoadResult reports the outcome of a hydration request
type LoadResult struct {
	ForkID    string          `json:"fork_id"`
	Installed []string        `json:"installed"`
	Failed    []FailedAccount `json:"failed,omitempty"`
	Skipped   []string        `json:"skipped,omitempty"`
}

// BalanceResult reports the balance of one address
type BalanceResult struct {
	ForkID   string  `json:"fork_id"`
	Address  string  `json:"address"`
	Lamports uint64  `json:"lamports"`
	SOL      float64 `json:"sol"`
	Slot     uint64  `json:"slot"`
}

// AccountResult reports one account, or its absence
type AccountResult struct {
	ForkID  string               `json:"fork_id"`
	Address string               `json:"address"`
	Found   bool                 `json:"found"`
	Account *sandbox.AccountInfo `json:"account,omitempty"`
	Slot    uint64               `json:"slot"`
}

// SubmitResult reports a submitted transaction
type SubmitResult struct {
	ForkID string `json:"fork_id"`
	sandbox.TxResult
	Slot uint64 `json:"slot"`
}

// TransferRequest describes a system transfer signed with a caller's key
type TransferRequest struct {
	Selector   sandbox.Selector
	From       string
	To         string
	Lamports   uint64
	PrivateKey string
}

// ChainState is the execution state the JSON-RPC facade reports
type ChainState struct {
	ForkID           string
	Height           uint64
	TransactionCount uint64
	Blockhash        string
	Origin           *sandbox.Origin
}
