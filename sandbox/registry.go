package sandbox

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/isdmx/forkbox/apperr"
	"github.com/isdmx/forkbox/ledger"
)

// DefaultTTL is how long a sandbox lives before the sweep removes it
const DefaultTTL = 15 * time.Minute

// Selector names a sandbox either by tenant binding or by id. Exactly one
// field must be set.
type Selector struct {
	TenantID  string
	SandboxID string
}

// ByTenant selects the sandbox bound to tenant
func ByTenant(tenant string) Selector { return Selector{TenantID: tenant} }

// ByID selects a sandbox by id
func ByID(id string) Selector { return Selector{SandboxID: id} }

// Validate reports a bad request unless exactly one field is set
func (s Selector) Validate() error {
	switch {
	case s.TenantID == "" && s.SandboxID == "":
		return apperr.BadRequest("either fork_id or user_id is required")
	case s.TenantID != "" && s.SandboxID != "":
		return apperr.BadRequest("fork_id and user_id are mutually exclusive")
	}
	return nil
}

// SnapshotSource reports the current height and reference hash of a network
type SnapshotSource interface {
	SnapshotInfo(ctx context.Context) (Origin, error)
}

// ProvisionResult describes the sandbox a create call resolved to
type ProvisionResult struct {
	ID      string
	Created bool
	Info    Info
}

// Registry owns every sandbox and the tenant bindings. One RWMutex guards
// both maps so bindings and entries always change together.
type Registry struct {
	logger    *zap.Logger
	mu        sync.RWMutex
	sandboxes map[string]*Sandbox
	bindings  map[string]string
	seq       uint64

	ttl       time.Duration
	now       func() time.Time
	newEngine ledger.EngineFactory
	metrics   *Metrics
}

// Option defines a functional option for Registry
type Option func(*Registry)

// WithTTL sets the sandbox lifetime
func WithTTL(ttl time.Duration) Option {
	return func(r *Registry) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithClock replaces the wall clock
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// WithEngineFactory sets how new sandbox engines are built
func WithEngineFactory(factory ledger.EngineFactory) Option {
	return func(r *Registry) {
		r.newEngine = factory
	}
}

// WithMetrics records lifecycle metrics
func WithMetrics(m *Metrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

// NewRegistry creates an empty registry
func NewRegistry(logger *zap.Logger, opts ...Option) *Registry {
	r := &Registry{
		logger:    logger,
		sandboxes: make(map[string]*Sandbox),
		bindings:  make(map[string]string),
		ttl:       DefaultTTL,
		now:       time.Now,
		newEngine: ledger.MemoryEngineFactory(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// TTL returns the sandbox lifetime
func (r *Registry) TTL() time.Duration {
	return r.ttl
}

// Create returns the live sandbox bound to tenant, creating an empty one if
// there is none.
func (r *Registry) Create(tenant string) (string, error) {
	res, err := r.Provision(tenant, nil, nil)
	if err != nil {
		return "", err
	}
	return res.ID, nil
}

// CreateWithSnapshot is Create for a sandbox stamped with the network's
// current height and reference hash. The network is queried before the lock
// is taken; if the query fails nothing is created or bound.
func (r *Registry) CreateWithSnapshot(ctx context.Context, tenant string, source SnapshotSource) (string, error) {
	if tenant == "" {
		return "", apperr.BadRequest("user_id is required")
	}
	origin, err := source.SnapshotInfo(ctx)
	if err != nil {
		if apperr.Is(err, apperr.KindUpstream) {
			return "", err
		}
		return "", apperr.Upstream("failed to query network snapshot", err)
	}
	res, err := r.Provision(tenant, &origin, nil)
	if err != nil {
		return "", err
	}
	return res.ID, nil
}

// Provision is the create-or-reuse decision for tenant, made under a single
// write lock. A new sandbox is stamped with origin when it is non-nil. seed,
// when non-nil, runs on the resolved sandbox before the lock is released.
func (r *Registry) Provision(tenant string, origin *Origin, seed func(*Sandbox)) (ProvisionResult, error) {
	if tenant == "" {
		return ProvisionResult{}, apperr.BadRequest("user_id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if id, ok := r.bindings[tenant]; ok {
		sb, exists := r.sandboxes[id]
		switch {
		case exists && !isExpired(sb, now, r.ttl):
			if seed != nil {
				seed(sb)
			}
			return ProvisionResult{ID: id, Info: sb.Info(now, r.ttl)}, nil
		case exists:
			r.removeLocked(id, ReasonExpired)
		default:
			delete(r.bindings, tenant)
		}
	}

	r.seq++
	id := fmt.Sprintf("fork-%s-%d-%d", tenant, now.UnixNano(), r.seq)
	sb := newSandbox(id, r.newEngine(), now, origin, r.metrics)
	r.sandboxes[id] = sb
	r.bindings[tenant] = id
	if seed != nil {
		seed(sb)
	}

	label := OriginEmpty
	if origin != nil {
		label = OriginSnapshot
	}
	r.metrics.created(label)
	r.logger.Info("Created fork",
		zap.String("fork_id", id),
		zap.String("user_id", tenant),
		zap.String("origin", label),
	)

	return ProvisionResult{ID: id, Created: true, Info: sb.Info(now, r.ttl)}, nil
}

// Resolve returns the id of the selected sandbox
func (r *Registry) Resolve(sel Selector) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sb, err := r.lookupLocked(sel)
	if err != nil {
		return "", err
	}
	return sb.id, nil
}

// View runs fn on the selected sandbox under the read lock. fn must not
// mutate the sandbox or retain the pointer.
func (r *Registry) View(sel Selector, fn func(*Sandbox) error) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sb, err := r.lookupLocked(sel)
	if err != nil {
		return err
	}
	return fn(sb)
}

// Update runs fn on the selected sandbox under the write lock. It is the only
// way to mutate a sandbox; fn must not retain the pointer.
func (r *Registry) Update(sel Selector, fn func(*Sandbox) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sb, err := r.lookupLocked(sel)
	if err != nil {
		return err
	}
	return fn(sb)
}

// Info returns a summary of the selected sandbox
func (r *Registry) Info(sel Selector) (Info, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sb, err := r.lookupLocked(sel)
	if err != nil {
		return Info{}, err
	}
	return sb.Info(r.now(), r.ttl), nil
}

// List returns summaries of all sandboxes ordered by creation time
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := r.now()
	infos := make([]Info, 0, len(r.sandboxes))
	for _, sb := range r.sandboxes {
		infos = append(infos, sb.Info(now, r.ttl))
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].CreatedAt != infos[j].CreatedAt {
			return infos[i].CreatedAt < infos[j].CreatedAt
		}
		return infos[i].ID < infos[j].ID
	})
	return infos
}

// Len returns the number of sandboxes held
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sandboxes)
}

// Sweep removes every sandbox older than the TTL together with its bindings
func (r *Registry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	removed := 0
	for id, sb := range r.sandboxes {
		if isExpired(sb, now, r.ttl) {
			r.removeLocked(id, ReasonExpired)
			removed++
		}
	}
	if removed > 0 {
		r.logger.Info("Swept expired forks",
			zap.Int("removed", removed),
			zap.Int("remaining", len(r.sandboxes)),
		)
	}
	return removed
}

// Delete removes the sandbox with id and any binding to it
func (r *Registry) Delete(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sandboxes[id]; !ok {
		return false
	}
	r.removeLocked(id, ReasonDeleted)
	r.logger.Info("Deleted fork", zap.String("fork_id", id))
	return true
}

func (r *Registry) lookupLocked(sel Selector) (*Sandbox, error) {
	if err := sel.Validate(); err != nil {
		return nil, err
	}

	if sel.SandboxID != "" {
		sb, ok := r.sandboxes[sel.SandboxID]
		if !ok {
			return nil, apperr.NotFound("fork %s not found", sel.SandboxID)
		}
		return sb, nil
	}

	id, ok := r.bindings[sel.TenantID]
	if !ok {
		return nil, apperr.NotFound("no fork for user %s", sel.TenantID)
	}
	sb, ok := r.sandboxes[id]
	if !ok || isExpired(sb, r.now(), r.ttl) {
		return nil, apperr.NotFound("no fork for user %s", sel.TenantID)
	}
	return sb, nil
}

// removeLocked deletes a sandbox and every binding that points at it
func (r *Registry) removeLocked(id, reason string) {
	delete(r.sandboxes, id)
	for tenant, bound := range r.bindings {
		if bound == id {
			delete(r.bindings, tenant)
		}
	}
	r.metrics.removed(reason)
}
