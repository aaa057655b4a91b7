package sandbox

import (
	"fmt"
	"math"
	"time"

	"github.com/isdmx/forkbox/ledger"
)

// Status values reported in Info
const (
	StatusActive  = "active"
	StatusExpired = "expired"
)

// Origin is the network snapshot a sandbox was seeded from
type Origin struct {
	Height        uint64
	ReferenceHash ledger.Hash
}

// AccountInfo is the observable view of an account; it omits the data bytes.
type AccountInfo struct {
	Address    ledger.Address `json:"address"`
	Lamports   uint64         `json:"lamports"`
	Owner      ledger.Address `json:"owner"`
	Executable bool           `json:"executable"`
	RentEpoch  uint64         `json:"rent_epoch"`
	DataLen    int            `json:"data_len"`
}

// TxResult is the outcome of one submitted transaction
type TxResult struct {
	Success   bool   `json:"success"`
	Signature string `json:"signature"`
	Error     string `json:"error,omitempty"`
}

// Info is a point-in-time summary of a sandbox
type Info struct {
	ID           string  `json:"fork_id"`
	Status       string  `json:"status"`
	Height       uint64  `json:"slot"`
	CreatedAt    int64   `json:"created_at"`
	ExpiresAt    int64   `json:"expires_at"`
	AgeSeconds   int64   `json:"age_seconds"`
	TxCount      uint64  `json:"transaction_count"`
	OriginHeight *uint64 `json:"mainnet_slot,omitempty"`
	OriginHash   string  `json:"mainnet_blockhash,omitempty"`
}

// Sandbox is one isolated ledger state. It is owned by a Registry and is only
// reachable inside Registry.View and Registry.Update callbacks.
type Sandbox struct {
	id        string
	engine    ledger.Engine
	createdAt time.Time
	height    uint64
	txCount   uint64
	origin    *Origin
	metrics   *Metrics
}

func newSandbox(id string, engine ledger.Engine, createdAt time.Time, origin *Origin, metrics *Metrics) *Sandbox {
	sb := &Sandbox{
		id:        id,
		engine:    engine,
		createdAt: createdAt,
		metrics:   metrics,
	}
	if origin != nil {
		o := *origin
		sb.origin = &o
		sb.height = o.Height
	}
	return sb
}

// ID returns the sandbox id
func (s *Sandbox) ID() string { return s.id }

// CreatedAt returns the creation time
func (s *Sandbox) CreatedAt() time.Time { return s.createdAt }

// Height returns the logical height
func (s *Sandbox) Height() uint64 { return s.height }

// TransactionCount returns the number of submitted transactions
func (s *Sandbox) TransactionCount() uint64 { return s.txCount }

// Origin returns the snapshot origin, if the sandbox was seeded from one
func (s *Sandbox) Origin() (Origin, bool) {
	if s.origin == nil {
		return Origin{}, false
	}
	return *s.origin, true
}

// LatestBlockhash returns the blockhash transactions must reference
func (s *Sandbox) LatestBlockhash() ledger.Hash {
	return s.engine.LatestBlockhash()
}

// Balance returns the lamports held by addr, or 0 if the account is absent
func (s *Sandbox) Balance(addr ledger.Address) uint64 {
	acct, ok := s.engine.Account(addr)
	if !ok {
		return 0
	}
	return acct.Lamports
}

// Account returns a copy of the account at addr
func (s *Sandbox) Account(addr ledger.Address) (ledger.Account, bool) {
	return s.engine.Account(addr)
}

// AccountInfo returns the observable view of the account at addr
func (s *Sandbox) AccountInfo(addr ledger.Address) (AccountInfo, bool) {
	acct, ok := s.engine.Account(addr)
	if !ok {
		return AccountInfo{}, false
	}
	return AccountInfo{
		Address:    addr,
		Lamports:   acct.Lamports,
		Owner:      acct.Owner,
		Executable: acct.Executable,
		RentEpoch:  acct.RentEpoch,
		DataLen:    len(acct.Data),
	}, true
}

// SetBalance makes the balance of addr exactly target. Raising the balance
// credits the difference; lowering it rewrites the account and keeps its
// other fields.
func (s *Sandbox) SetBalance(addr ledger.Address, target uint64) error {
	acct, ok := s.engine.Account(addr)
	current := acct.Lamports

	switch {
	case target > current:
		if err := s.engine.Airdrop(addr, target-current); err != nil {
			return fmt.Errorf("failed to credit %s: %w", addr, err)
		}
	case target < current:
		if !ok {
			acct = ledger.Account{Owner: ledger.SystemProgramID}
		}
		acct.Lamports = target
		if err := s.engine.SetAccount(addr, acct); err != nil {
			return fmt.Errorf("failed to set account %s: %w", addr, err)
		}
	}
	return nil
}

// AddBalance credits delta lamports to addr
func (s *Sandbox) AddBalance(addr ledger.Address, delta uint64) error {
	if s.Balance(addr) > math.MaxUint64-delta {
		return fmt.Errorf("credit to %s: %w", addr, ledger.ErrLamportsOverflow)
	}
	if err := s.engine.Airdrop(addr, delta); err != nil {
		return fmt.Errorf("failed to credit %s: %w", addr, err)
	}
	return nil
}

// InstallAccount replaces the account at addr with a hydrated record
func (s *Sandbox) InstallAccount(addr ledger.Address, account ledger.Account) error {
	if err := s.engine.SetAccount(addr, account); err != nil {
		return fmt.Errorf("failed to install account %s: %w", addr, err)
	}
	return nil
}

// Submit executes tx once. The transaction counter and logical height advance
// whether or not execution succeeds.
func (s *Sandbox) Submit(tx *ledger.Transaction) TxResult {
	err := s.engine.SendTransaction(tx)
	s.txCount++
	s.height++
	s.metrics.transaction(err == nil)

	result := TxResult{
		Success:   err == nil,
		Signature: tx.Signature().String(),
	}
	if err != nil {
		result.Error = err.Error()
	}
	return result
}

// Info summarizes the sandbox as of now
func (s *Sandbox) Info(now time.Time, ttl time.Duration) Info {
	info := Info{
		ID:         s.id,
		Status:     StatusActive,
		Height:     s.height,
		CreatedAt:  s.createdAt.Unix(),
		ExpiresAt:  s.createdAt.Add(ttl).Unix(),
		AgeSeconds: int64(now.Sub(s.createdAt) / time.Second),
		TxCount:    s.txCount,
	}
	if isExpired(s, now, ttl) {
		info.Status = StatusExpired
	}
	if s.origin != nil {
		h := s.origin.Height
		info.OriginHeight = &h
		info.OriginHash = s.origin.ReferenceHash.String()
	}
	return info
}

func isExpired(s *Sandbox, now time.Time, ttl time.Duration) bool {
	return now.Sub(s.createdAt) > ttl
}
