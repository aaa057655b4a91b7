package service

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/isdmx/forkbox/apperr"
	"github.com/isdmx/forkbox/hydrator"
	"github.com/isdmx/forkbox/ledger"
	"github.com/isdmx/forkbox/sandbox"
)

// Service implements the fork operations exposed by the transports. Inputs
// are validated before the registry is touched, and network fetches happen
// outside the registry lock.
type Service struct {
	logger    *zap.Logger
	registry  *sandbox.Registry
	pool      *hydrator.Pool
	newTenant func() string
}

// Option defines a functional option for Service
type Option func(*Service)

// WithTenantGenerator replaces the generator used for anonymous tenants
func WithTenantGenerator(fn func() string) Option {
	return func(s *Service) {
		s.newTenant = fn
	}
}

// New creates a service
func New(logger *zap.Logger, registry *sandbox.Registry, pool *hydrator.Pool, opts ...Option) *Service {
	s := &Service{
		logger:    logger,
		registry:  registry,
		pool:      pool,
		newTenant: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create returns the fork bound to tenant, creating an empty one if needed.
// An empty tenant gets a generated id.
func (s *Service) Create(tenant string) (CreateResult, error) {
	if tenant == "" {
		tenant = s.newTenant()
	}
	res, err := s.registry.Provision(tenant, nil, nil)
	if err != nil {
		return CreateResult{}, err
	}
	return CreateResult{ForkID: res.ID, UserID: tenant, Created: res.Created, Info: res.Info}, nil
}

// CreateWithSnapshot creates a fork stamped with the network's current slot
// and blockhash and seeds it with req.Accounts. The snapshot query must
// succeed; account fetch failures are reported per address. When the tenant
// already owns a fork, the reported snapshot is the one that fork carries,
// which is empty for a fork that was never created from the network.
func (s *Service) CreateWithSnapshot(ctx context.Context, req SnapshotRequest) (SnapshotResult, error) {
	tenant := req.Tenant
	if tenant == "" {
		tenant = s.newTenant()
	}
	addrs, err := parseAddresses("accounts", req.Accounts)
	if err != nil {
		return SnapshotResult{}, err
	}
	h, endpoint, err := s.hydratorFor(req.Endpoint)
	if err != nil {
		return SnapshotResult{}, err
	}

	origin, err := h.SnapshotInfo(ctx)
	if err != nil {
		return SnapshotResult{}, err
	}
	fetched, fetchErr := h.FetchAccounts(ctx, addrs)

	var (
		installed  []ledger.Address
		installErr error
	)
	res, err := s.registry.Provision(tenant, &origin, func(sb *sandbox.Sandbox) {
		installed, installErr = hydrator.Install(sb, fetched)
	})
	if err != nil {
		return SnapshotResult{}, err
	}

	var snapshotHeight uint64
	if res.Info.OriginHeight != nil {
		snapshotHeight = *res.Info.OriginHeight
	}

	load := buildLoadResult(res.ID, addrs, installed, fetchErr, installErr)
	s.logger.Info("Created network fork",
		zap.String("fork_id", res.ID),
		zap.Bool("created", res.Created),
		zap.String("endpoint", endpoint),
		zap.Uint64("snapshot_slot", snapshotHeight),
		zap.Int("installed", len(load.Installed)),
		zap.Int("failed", len(load.Failed)),
	)

	return SnapshotResult{
		ForkID:            res.ID,
		UserID:            tenant,
		Created:           res.Created,
		Endpoint:          endpoint,
		SnapshotHeight:    snapshotHeight,
		SnapshotReference: res.Info.OriginHash,
		Installed:         load.Installed,
		Failed:            load.Failed,
		Skipped:           load.Skipped,
	}, nil
}

// Resolve returns the id of the selected fork
func (s *Service) Resolve(sel sandbox.Selector) (string, error) {
	return s.registry.Resolve(sel)
}

// Info summarizes the selected fork
func (s *Service) Info(sel sandbox.Selector) (sandbox.Info, error) {
	return s.registry.Info(sel)
}

// List summarizes every fork
func (s *Service) List() []sandbox.Info {
	return s.registry.List()
}

// Sweep removes expired forks and returns how many were removed
func (s *Service) Sweep() int {
	return s.registry.Sweep()
}

// Delete removes the selected fork
func (s *Service) Delete(sel sandbox.Selector) (bool, error) {
	id, err := s.registry.Resolve(sel)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return false, nil
		}
		return false, err
	}
	return s.registry.Delete(id), nil
}

// SetBalance makes the balance of address exactly lamports
func (s *Service) SetBalance(sel sandbox.Selector, address string, lamports uint64) (BalanceResult, error) {
	return s.mutateBalance(sel, address, func(sb *sandbox.Sandbox, addr ledger.Address) error {
		return sb.SetBalance(addr, lamports)
	})
}

// AddBalance credits lamports to address
func (s *Service) AddBalance(sel sandbox.Selector, address string, lamports uint64) (BalanceResult, error) {
	return s.mutateBalance(sel, address, func(sb *sandbox.Sandbox, addr ledger.Address) error {
		return sb.AddBalance(addr, lamports)
	})
}

func (s *Service) mutateBalance(sel sandbox.Selector, address string, mutate func(*sandbox.Sandbox, ledger.Address) error) (BalanceResult, error) {
	addr, err := parseAddress("address", address)
	if err != nil {
		return BalanceResult{}, err
	}

	var result BalanceResult
	err = s.registry.Update(sel, func(sb *sandbox.Sandbox) error {
		if err := mutate(sb, addr); err != nil {
			if errors.Is(err, ledger.ErrLamportsOverflow) {
				return apperr.BadRequest("%v", err)
			}
			return apperr.Internal("failed to update balance", err)
		}
		result = balanceResult(sb, addr)
		return nil
	})
	return result, err
}

// Balance returns the balance of address; unknown accounts hold 0
func (s *Service) Balance(sel sandbox.Selector, address string) (BalanceResult, error) {
	addr, err := parseAddress("address", address)
	if err != nil {
		return BalanceResult{}, err
	}

	var result BalanceResult
	err = s.registry.View(sel, func(sb *sandbox.Sandbox) error {
		result = balanceResult(sb, addr)
		return nil
	})
	return result, err
}

// Account returns the account at address, reporting absence without error
func (s *Service) Account(sel sandbox.Selector, address string) (AccountResult, error) {
	addr, err := parseAddress("address", address)
	if err != nil {
		return AccountResult{}, err
	}

	result := AccountResult{Address: addr.String()}
	err = s.registry.View(sel, func(sb *sandbox.Sandbox) error {
		result.ForkID = sb.ID()
		if info, ok := sb.AccountInfo(addr); ok {
			result.Found = true
			result.Account = &info
		}
		result.Slot = sb.Height()
		return nil
	})
	return result, err
}

// Submit decodes raw and executes it in the selected fork
func (s *Service) Submit(sel sandbox.Selector, raw []byte) (SubmitResult, error) {
	tx, err := ledger.DecodeTransaction(raw)
	if err != nil {
		return SubmitResult{}, apperr.BadRequest("invalid transaction: %v", err)
	}
	if err := sel.Validate(); err != nil {
		return SubmitResult{}, err
	}

	var result SubmitResult
	err = s.registry.Update(sel, func(sb *sandbox.Sandbox) error {
		result = submitResult(sb, sb.Submit(tx))
		return nil
	})
	if err != nil {
		return SubmitResult{}, err
	}
	s.logTransaction(result)
	return result, nil
}

// Transfer signs a system transfer with req.PrivateKey against the fork's
// latest blockhash and submits it
func (s *Service) Transfer(req TransferRequest) (SubmitResult, error) {
	from, err := parseAddress("from", req.From)
	if err != nil {
		return SubmitResult{}, err
	}
	to, err := parseAddress("to", req.To)
	if err != nil {
		return SubmitResult{}, err
	}
	key, err := ledger.ParsePrivateKey(req.PrivateKey)
	if err != nil {
		return SubmitResult{}, apperr.BadRequest("invalid private_key: %v", err)
	}
	if ledger.AddressFromPublicKey(key.Public().(ed25519.PublicKey)) != from {
		return SubmitResult{}, apperr.BadRequest("private_key does not match from address %s", from)
	}
	if err := req.Selector.Validate(); err != nil {
		return SubmitResult{}, err
	}

	var result SubmitResult
	err = s.registry.Update(req.Selector, func(sb *sandbox.Sandbox) error {
		tx, err := ledger.SignTransaction(ledger.Message{
			Signers:         []ledger.Address{from},
			RecentBlockhash: sb.LatestBlockhash(),
			Instructions:    []ledger.Instruction{ledger.TransferInstruction(from, to, req.Lamports)},
		}, key)
		if err != nil {
			return apperr.Internal("failed to sign transfer", err)
		}
		result = submitResult(sb, sb.Submit(tx))
		return nil
	})
	if err != nil {
		return SubmitResult{}, err
	}
	s.logTransaction(result)
	return result, nil
}

// ChainState returns the selected fork's height and latest blockhash
func (s *Service) ChainState(sel sandbox.Selector) (ChainState, error) {
	var state ChainState
	err := s.registry.View(sel, func(sb *sandbox.Sandbox) error {
		state = ChainState{
			ForkID:           sb.ID(),
			Height:           sb.Height(),
			TransactionCount: sb.TransactionCount(),
			Blockhash:        sb.LatestBlockhash().String(),
		}
		if origin, ok := sb.Origin(); ok {
			state.Origin = &origin
		}
		return nil
	})
	return state, err
}

// LoadAccount copies one account from the network into the selected fork
func (s *Service) LoadAccount(ctx context.Context, sel sandbox.Selector, address, endpoint string) (LoadResult, error) {
	addr, err := parseAddress("address", address)
	if err != nil {
		return LoadResult{}, err
	}
	return s.load(ctx, sel, endpoint, func(h *hydrator.Hydrator) ([]ledger.Address, []hydrator.KeyedAccount, error) {
		ka, err := h.FetchAccount(ctx, addr)
		if err != nil {
			return nil, nil, err
		}
		return []ledger.Address{addr}, []hydrator.KeyedAccount{ka}, nil
	})
}

// LoadAccounts copies a batch of accounts into the selected fork. Accounts
// fetched before the first failure are installed; the rest are reported.
func (s *Service) LoadAccounts(ctx context.Context, sel sandbox.Selector, addresses []string, endpoint string) (LoadResult, error) {
	addrs, err := parseAddresses("addresses", addresses)
	if err != nil {
		return LoadResult{}, err
	}
	if len(addrs) == 0 {
		return LoadResult{}, apperr.BadRequest("addresses must not be empty")
	}
	return s.load(ctx, sel, endpoint, func(h *hydrator.Hydrator) ([]ledger.Address, []hydrator.KeyedAccount, error) {
		fetched, err := h.FetchAccounts(ctx, addrs)
		return addrs, fetched, err
	})
}

// LoadByOwner copies every token account held by owner into the selected fork
func (s *Service) LoadByOwner(ctx context.Context, sel sandbox.Selector, owner, endpoint string) (LoadResult, error) {
	addr, err := parseAddress("owner", owner)
	if err != nil {
		return LoadResult{}, err
	}
	return s.load(ctx, sel, endpoint, func(h *hydrator.Hydrator) ([]ledger.Address, []hydrator.KeyedAccount, error) {
		fetched, err := h.FetchByOwner(ctx, addr)
		if err != nil {
			return nil, nil, err
		}
		addrs := make([]ledger.Address, len(fetched))
		for i, ka := range fetched {
			addrs[i] = ka.Address
		}
		return addrs, fetched, nil
	})
}

type fetchFunc func(h *hydrator.Hydrator) ([]ledger.Address, []hydrator.KeyedAccount, error)

// load resolves the fork, fetches without holding the registry lock and
// installs inside one Update. Only a *hydrator.BatchError is reported as a
// partial result; any other fetch error fails the call.
func (s *Service) load(ctx context.Context, sel sandbox.Selector, endpoint string, fetch fetchFunc) (LoadResult, error) {
	id, err := s.registry.Resolve(sel)
	if err != nil {
		return LoadResult{}, err
	}
	h, endpoint, err := s.hydratorFor(endpoint)
	if err != nil {
		return LoadResult{}, err
	}

	requested, fetched, fetchErr := fetch(h)
	var batchErr *hydrator.BatchError
	if fetchErr != nil && !errors.As(fetchErr, &batchErr) {
		return LoadResult{}, fetchErr
	}

	var (
		installed  []ledger.Address
		installErr error
	)
	err = s.registry.Update(sandbox.ByID(id), func(sb *sandbox.Sandbox) error {
		installed, installErr = hydrator.Install(sb, fetched)
		return nil
	})
	if err != nil {
		return LoadResult{}, err
	}

	result := buildLoadResult(id, requested, installed, fetchErr, installErr)
	s.logger.Info("Loaded accounts into fork",
		zap.String("fork_id", id),
		zap.String("endpoint", endpoint),
		zap.Int("installed", len(result.Installed)),
		zap.Int("failed", len(result.Failed)),
		zap.Int("skipped", len(result.Skipped)),
	)
	return result, nil
}

func (s *Service) hydratorFor(endpoint string) (*hydrator.Hydrator, string, error) {
	if endpoint == "" {
		endpoint = s.pool.DefaultEndpoint()
	}
	h, err := s.pool.For(endpoint)
	if err != nil {
		return nil, "", err
	}
	return h, endpoint, nil
}

func (s *Service) logTransaction(result SubmitResult) {
	if result.Success {
		s.logger.Info("Transaction executed",
			zap.String("fork_id", result.ForkID),
			zap.String("signature", result.Signature),
			zap.Uint64("slot", result.Slot),
		)
		return
	}
	s.logger.Info("Transaction failed",
		zap.String("fork_id", result.ForkID),
		zap.String("signature", result.Signature),
		zap.String("error", result.Error),
	)
}

// buildLoadResult splits requested into installed, failed and skipped
func buildLoadResult(id string, requested, installed []ledger.Address, fetchErr, installErr error) LoadResult {
	result := LoadResult{ForkID: id, Installed: addressStrings(installed)}

	failedAt := len(requested)
	var batchErr *hydrator.BatchError
	switch {
	case installErr != nil:
		failedAt = len(installed)
		result.Failed = []FailedAccount{{Address: requested[failedAt].String(), Error: installErr.Error()}}
	case errors.As(fetchErr, &batchErr):
		failedAt = batchErr.Index
		result.Failed = []FailedAccount{{Address: batchErr.Address.String(), Error: batchErr.Err.Error()}}
	}
	if failedAt+1 < len(requested) {
		result.Skipped = addressStrings(requested[failedAt+1:])
	}
	return result
}

func balanceResult(sb *sandbox.Sandbox, addr ledger.Address) BalanceResult {
	lamports := sb.Balance(addr)
	return BalanceResult{
		ForkID:   sb.ID(),
		Address:  addr.String(),
		Lamports: lamports,
		SOL:      ledger.LamportsToSOL(lamports),
		Slot:     sb.Height(),
	}
}

func submitResult(sb *sandbox.Sandbox, tx sandbox.TxResult) SubmitResult {
	return SubmitResult{ForkID: sb.ID(), TxResult: tx, Slot: sb.Height()}
}

func parseAddress(field, s string) (ledger.Address, error) {
	if s == "" {
		return ledger.Address{}, apperr.BadRequest("%s is required", field)
	}
	addr, err := ledger.ParseAddress(s)
	if err != nil {
		return ledger.Address{}, apperr.BadRequest("invalid %s: %v", field, err)
	}
	return addr, nil
}

func parseAddresses(field string, ss []string) ([]ledger.Address, error) {
	addrs := make([]ledger.Address, 0, len(ss))
	for i, s := range ss {
		addr, err := parseAddress(fmt.Sprintf("%s[%d]", field, i), s)
		if err != nil {
			return nil, err
		}
		addrs = append(addrs, addr)
	}
	return addrs, nil
}

func addressStrings(addrs []ledger.Address) []string {
	out := make([]string, len(addrs))
	for i, a := range addrs {
		out[i] = a.String()
	}
	return out
}
