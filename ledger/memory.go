package ledger

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
)

// Engine defaults
const (
	DefaultSignatureFee   uint64 = 5000
	DefaultBlockhashQueue        = 150
)

// MemoryEngine is a map-backed Engine that verifies ed25519 signatures and
// executes system program transfers.
type MemoryEngine struct {
	accounts     map[Address]Account
	processed    map[Signature]struct{}
	recent       []Hash
	signatureFee uint64
	queueSize    int
}

// EngineOption defines a functional option for MemoryEngine
type EngineOption func(*MemoryEngine)

// WithSignatureFee sets the fee charged per signature
func WithSignatureFee(lamports uint64) EngineOption {
	return func(e *MemoryEngine) {
		e.signatureFee = lamports
	}
}

// WithBlockhashQueue sets how many recent blockhashes stay valid
func WithBlockhashQueue(size int) EngineOption {
	return func(e *MemoryEngine) {
		if size > 0 {
			e.queueSize = size
		}
	}
}

// NewMemoryEngine creates an empty engine with a random genesis blockhash
func NewMemoryEngine(opts ...EngineOption) *MemoryEngine {
	e := &MemoryEngine{
		accounts:     make(map[Address]Account),
		processed:    make(map[Signature]struct{}),
		signatureFee: DefaultSignatureFee,
		queueSize:    DefaultBlockhashQueue,
	}
	for _, opt := range opts {
		opt(e)
	}

	var genesis Hash
	if _, err := rand.Read(genesis[:]); err != nil {
		// crypto/rand does not fail on supported platforms
		panic(fmt.Sprintf("failed to seed blockhash: %v", err))
	}
	e.recent = []Hash{genesis}
	return e
}

// MemoryEngineFactory returns an EngineFactory producing MemoryEngines
func MemoryEngineFactory(opts ...EngineOption) EngineFactory {
	return func() Engine {
		return NewMemoryEngine(opts...)
	}
}

// Account returns a copy of the account at addr
func (e *MemoryEngine) Account(addr Address) (Account, bool) {
	acct, ok := e.accounts[addr]
	if !ok {
		return Account{}, false
	}
	return acct.Clone(), true
}

// SetAccount replaces the account at addr
func (e *MemoryEngine) SetAccount(addr Address, account Account) error {
	e.accounts[addr] = account.Clone()
	return nil
}

// Airdrop credits lamports to addr
func (e *MemoryEngine) Airdrop(addr Address, lamports uint64) error {
	acct, ok := e.accounts[addr]
	if !ok {
		acct = Account{Owner: SystemProgramID}
	}
	if acct.Lamports > math.MaxUint64-lamports {
		return fmt.Errorf("airdrop to %s: %w", addr, ErrLamportsOverflow)
	}
	acct.Lamports += lamports
	e.accounts[addr] = acct
	return nil
}

// LatestBlockhash returns the newest blockhash
func (e *MemoryEngine) LatestBlockhash() Hash {
	return e.recent[len(e.recent)-1]
}

// SendTransaction verifies and executes tx. State changes are staged and
// committed only when every check and instruction succeeds.
func (e *MemoryEngine) SendTransaction(tx *Transaction) error {
	if len(tx.Signatures) == 0 {
		return ErrMissingSignature
	}
	if len(tx.Signatures) != len(tx.Message.Signers) {
		return ErrSignatureCountMismatch
	}

	payload, err := tx.Message.Bytes()
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	for i, signer := range tx.Message.Signers {
		if !ed25519.Verify(ed25519.PublicKey(signer[:]), payload, tx.Signatures[i][:]) {
			return ErrSignatureFailure
		}
	}

	if !e.isRecent(tx.Message.RecentBlockhash) {
		return ErrBlockhashNotFound
	}
	if _, seen := e.processed[tx.Signature()]; seen {
		return ErrAlreadyProcessed
	}

	staged := newStagedState(e.accounts)

	payer := tx.Message.Signers[0]
	fee := e.signatureFee * uint64(len(tx.Signatures))
	payerAcct, _ := staged.get(payer)
	if payerAcct.Lamports < fee {
		return ErrInsufficientFundsForFee
	}
	payerAcct.Lamports -= fee
	staged.put(payer, payerAcct)

	signers := make(map[Address]bool, len(tx.Message.Signers))
	for _, s := range tx.Message.Signers {
		signers[s] = true
	}

	for i, ix := range tx.Message.Instructions {
		if err := e.execute(staged, signers, ix); err != nil {
			return &InstructionError{Index: i, Err: err}
		}
	}

	staged.commit(e.accounts)
	e.processed[tx.Signature()] = struct{}{}
	e.advanceBlockhash(tx.Signature())
	return nil
}

func (e *MemoryEngine) execute(staged *stagedState, signers map[Address]bool, ix Instruction) error {
	if ix.ProgramID != SystemProgramID {
		return fmt.Errorf("%w: %s", ErrUnsupportedProgram, ix.ProgramID)
	}
	if len(ix.Data) < 4 {
		return ErrInvalidInstructionData
	}

	switch binary.LittleEndian.Uint32(ix.Data[:4]) {
	case SystemInstructionTransfer:
		if len(ix.Data) != 12 {
			return ErrInvalidInstructionData
		}
		if len(ix.Accounts) < 2 {
			return ErrNotEnoughAccountKeys
		}
		return transfer(staged, signers, ix.Accounts[0], ix.Accounts[1], binary.LittleEndian.Uint64(ix.Data[4:]))
	default:
		return fmt.Errorf("%w: unsupported system instruction", ErrInvalidInstructionData)
	}
}

func transfer(staged *stagedState, signers map[Address]bool, from, to Address, lamports uint64) error {
	if !signers[from] {
		return ErrMissingRequiredSignature
	}
	src, _ := staged.get(from)
	if src.Owner != SystemProgramID || len(src.Data) > 0 {
		return ErrInvalidTransferSource
	}
	if src.Lamports < lamports {
		return ErrInsufficientFunds
	}
	src.Lamports -= lamports
	staged.put(from, src)

	dst, ok := staged.get(to)
	if !ok {
		dst = Account{Owner: SystemProgramID}
	}
	if dst.Lamports > math.MaxUint64-lamports {
		return ErrLamportsOverflow
	}
	dst.Lamports += lamports
	staged.put(to, dst)
	return nil
}

func (e *MemoryEngine) isRecent(h Hash) bool {
	for _, r := range e.recent {
		if r == h {
			return true
		}
	}
	return false
}

func (e *MemoryEngine) advanceBlockhash(sig Signature) {
	prev := e.LatestBlockhash()
	sum := sha256.New()
	sum.Write(prev[:])
	sum.Write(sig[:])
	var next Hash
	copy(next[:], sum.Sum(nil))

	e.recent = append(e.recent, next)
	if len(e.recent) > e.queueSize {
		e.recent = e.recent[len(e.recent)-e.queueSize:]
	}
}

// stagedState is a copy-on-write overlay of the account map
type stagedState struct {
	base    map[Address]Account
	pending map[Address]Account
}

func newStagedState(base map[Address]Account) *stagedState {
	return &stagedState{base: base, pending: make(map[Address]Account)}
}

func (s *stagedState) get(addr Address) (Account, bool) {
	if acct, ok := s.pending[addr]; ok {
		return acct, true
	}
	acct, ok := s.base[addr]
	return acct, ok
}

func (s *stagedState) put(addr Address, acct Account) {
	s.pending[addr] = acct
}

func (s *stagedState) commit(dst map[Address]Account) {
	for addr, acct := range s.pending {
		dst[addr] = acct
	}
}
