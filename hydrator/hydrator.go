package hydrator

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/isdmx/forkbox/apperr"
	"github.com/isdmx/forkbox/ledger"
	"github.com/isdmx/forkbox/sandbox"
)

const (
	// DefaultConcurrency bounds parallel account fetches
	DefaultConcurrency = 8
	// DefaultSnapshotTimeout bounds one shared snapshot query
	DefaultSnapshotTimeout = 30 * time.Second
)

// Token account layout: mint (32 bytes) followed by owner (32 bytes)
const (
	tokenOwnerOffset = 32
	tokenOwnerEnd    = tokenOwnerOffset + ledger.AddressLength
)

// BatchError reports the first address of a batch that could not be fetched.
// Addresses after it were not installed.
type BatchError struct {
	Index   int
	Address ledger.Address
	Err     error
}

// Error returns the cause's message, which already names the address
func (e *BatchError) Error() string {
	return e.Err.Error()
}

func (e *BatchError) Unwrap() error {
	return e.Err
}

// Hydrator imports account state from one network into sandboxes. Network
// calls are made without any registry lock held; Install runs under the
// caller's lock.
type Hydrator struct {
	logger          *zap.Logger
	client          NetworkClient
	concurrency     int
	snapshotTimeout time.Duration
	group           singleflight.Group
}

// Option defines a functional option for Hydrator
type Option func(*Hydrator)

// WithConcurrency bounds how many accounts FetchAccounts requests at once
func WithConcurrency(n int) Option {
	return func(h *Hydrator) {
		if n > 0 {
			h.concurrency = n
		}
	}
}

// WithSnapshotTimeout bounds the shared snapshot query independently of any
// single caller's context
func WithSnapshotTimeout(d time.Duration) Option {
	return func(h *Hydrator) {
		if d > 0 {
			h.snapshotTimeout = d
		}
	}
}

// New creates a hydrator backed by client
func New(logger *zap.Logger, client NetworkClient, opts ...Option) *Hydrator {
	h := &Hydrator{
		logger:          logger,
		client:          client,
		concurrency:     DefaultConcurrency,
		snapshotTimeout: DefaultSnapshotTimeout,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// SnapshotInfo returns the network's current slot and latest blockhash.
// Concurrent callers share one round trip. The shared query runs detached
// from the caller that started it, so one caller giving up fails only that
// caller.
func (h *Hydrator) SnapshotInfo(ctx context.Context) (sandbox.Origin, error) {
	ch := h.group.DoChan("snapshot", func() (any, error) {
		qctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.snapshotTimeout)
		defer cancel()

		slot, err := h.client.GetSlot(qctx)
		if err != nil {
			return nil, apperr.Upstream("failed to get network slot", err)
		}
		hash, err := h.client.GetLatestBlockhash(qctx)
		if err != nil {
			return nil, apperr.Upstream("failed to get network blockhash", err)
		}
		return sandbox.Origin{Height: slot, ReferenceHash: hash}, nil
	})

	select {
	case <-ctx.Done():
		return sandbox.Origin{}, apperr.Upstream("network snapshot query abandoned", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return sandbox.Origin{}, res.Err
		}
		if res.Shared {
			h.logger.Debug("Shared network snapshot query")
		}
		return res.Val.(sandbox.Origin), nil
	}
}

// FetchAccount fetches a single account
func (h *Hydrator) FetchAccount(ctx context.Context, addr ledger.Address) (KeyedAccount, error) {
	acct, err := h.client.GetAccountInfo(ctx, addr)
	if err != nil {
		return KeyedAccount{}, apperr.Upstream(fmt.Sprintf("failed to fetch account %s", addr), err)
	}
	return KeyedAccount{Address: addr, Account: acct}, nil
}

// FetchAccounts fetches addrs with bounded concurrency. On failure it returns
// the records preceding the first failed address, in order, and a *BatchError
// naming that address. Addresses after a known failure are not requested.
func (h *Hydrator) FetchAccounts(ctx context.Context, addrs []ledger.Address) ([]KeyedAccount, error) {
	results := make([]KeyedAccount, len(addrs))
	errs := make([]error, len(addrs))

	// lowest index that has failed so far; only decreases
	var firstFailed atomic.Int64
	firstFailed.Store(int64(len(addrs)))

	var g errgroup.Group
	g.SetLimit(h.concurrency)
	for i, addr := range addrs {
		if int64(i) > firstFailed.Load() {
			break
		}
		g.Go(func() error {
			if int64(i) > firstFailed.Load() {
				return nil
			}
			ka, err := h.FetchAccount(ctx, addr)
			if err != nil {
				errs[i] = err
				for {
					cur := firstFailed.Load()
					if int64(i) >= cur || firstFailed.CompareAndSwap(cur, int64(i)) {
						break
					}
				}
				return nil
			}
			results[i] = ka
			return nil
		})
	}
	_ = g.Wait()

	for i, err := range errs {
		if err != nil {
			h.logger.Warn("Batch account fetch failed",
				zap.String("address", addrs[i].String()),
				zap.Int("index", i),
				zap.Int("skipped", len(addrs)-i-1),
				zap.Error(err),
			)
			return results[:i], &BatchError{Index: i, Address: addrs[i], Err: err}
		}
	}
	return results, nil
}

// FetchByOwner returns every token account whose owner field equals owner,
// sorted by address
func (h *Hydrator) FetchByOwner(ctx context.Context, owner ledger.Address) ([]KeyedAccount, error) {
	accounts, err := h.client.GetProgramAccounts(ctx, ledger.TokenProgramID, MemcmpFilter{
		Offset: tokenOwnerOffset,
		Bytes:  owner[:],
	})
	if err != nil {
		return nil, apperr.Upstream(fmt.Sprintf("failed to list token accounts of %s", owner), err)
	}

	owned := make([]KeyedAccount, 0, len(accounts))
	for _, ka := range accounts {
		data := ka.Account.Data
		if len(data) >= tokenOwnerEnd && bytes.Equal(data[tokenOwnerOffset:tokenOwnerEnd], owner[:]) {
			owned = append(owned, ka)
		}
	}
	sort.Slice(owned, func(i, j int) bool {
		return bytes.Compare(owned[i].Address[:], owned[j].Address[:]) < 0
	})
	return owned, nil
}

// Install writes accounts into sb in order and stops at the first failure.
// It must be called inside a registry Update.
func Install(sb *sandbox.Sandbox, accounts []KeyedAccount) ([]ledger.Address, error) {
	installed := make([]ledger.Address, 0, len(accounts))
	for _, ka := range accounts {
		if err := sb.InstallAccount(ka.Address, ka.Account); err != nil {
			return installed, apperr.Internal(fmt.Sprintf("failed to install account %s", ka.Address), err)
		}
		installed = append(installed, ka.Address)
	}
	return installed, nil
}
