package hydrator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/isdmx/forkbox/ledger"
)

// fakeClient is an in-memory NetworkClient
type fakeClient struct {
	mu        sync.Mutex
	accounts  map[ledger.Address]ledger.Account
	program   []KeyedAccount
	slot      uint64
	blockhash ledger.Hash
	err       error
	delay     time.Duration

	// when set, GetSlot signals slotStarted and blocks until slotGate is
	// closed or its context ends
	slotGate    chan struct{}
	slotStarted chan struct{}

	slotCalls    atomic.Int64
	accountCalls atomic.Int64
	inFlight     atomic.Int64
	maxInFlight  atomic.Int64
}

func newFakeClient() *fakeClient {
	return &fakeClient{accounts: make(map[ledger.Address]ledger.Account)}
}

func (f *fakeClient) GetAccountInfo(ctx context.Context, addr ledger.Address) (ledger.Account, error) {
	f.accountCalls.Add(1)
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		m := f.maxInFlight.Load()
		if n <= m || f.maxInFlight.CompareAndSwap(m, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return ledger.Account{}, f.err
	}
	acct, ok := f.accounts[addr]
	if !ok {
		return ledger.Account{}, ErrAccountNotFound
	}
	return acct.Clone(), nil
}

func (f *fakeClient) GetProgramAccounts(_ context.Context, _ ledger.Address, _ ...MemcmpFilter) ([]KeyedAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]KeyedAccount(nil), f.program...), nil
}

func (f *fakeClient) GetSlot(ctx context.Context) (uint64, error) {
	f.slotCalls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.slotGate != nil {
		if f.slotStarted != nil {
			f.slotStarted <- struct{}{}
		}
		select {
		case <-f.slotGate:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.slot, f.err
}

func (f *fakeClient) GetLatestBlockhash(_ context.Context) (ledger.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.blockhash, f.err
}
