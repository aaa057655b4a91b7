package hydrator

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/isdmx/forkbox/apperr"
	"github.com/isdmx/forkbox/config"
)

// ClientFactory builds a network client for an endpoint
type ClientFactory func(endpoint string) NetworkClient

// Pool hands out one Hydrator per network endpoint, keeping the most
// recently used ones in an LRU cache.
type Pool struct {
	logger          *zap.Logger
	defaultEndpoint string
	newClient       ClientFactory
	opts            []Option

	mu    sync.Mutex
	cache *lru.Cache[string, *Hydrator]
}

// NewPool creates a pool holding up to size hydrators
func NewPool(logger *zap.Logger, defaultEndpoint string, size int, newClient ClientFactory, opts ...Option) (*Pool, error) {
	cache, err := lru.New[string, *Hydrator](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create hydrator cache: %w", err)
	}
	return &Pool{
		logger:          logger,
		defaultEndpoint: defaultEndpoint,
		newClient:       newClient,
		opts:            opts,
		cache:           cache,
	}, nil
}

// NewPoolFromConfig creates a pool of RPC-backed hydrators from the network
// section of cfg
func NewPoolFromConfig(logger *zap.Logger, cfg *config.Config) (*Pool, error) {
	n := cfg.Network
	factory := func(endpoint string) NetworkClient {
		return NewRPCClient(logger, endpoint,
			WithTimeout(cfg.GetNetworkTimeout()),
			WithRateLimit(n.RequestsPerSecond, n.Burst),
			WithCommitment(n.Commitment),
		)
	}
	return NewPool(logger, n.Endpoint, n.ClientCacheSize, factory,
		WithConcurrency(n.FetchConcurrency),
		WithSnapshotTimeout(cfg.GetNetworkTimeout()),
	)
}

// DefaultEndpoint returns the endpoint used when none is given
func (p *Pool) DefaultEndpoint() string {
	return p.defaultEndpoint
}

// For returns the hydrator for endpoint, or for the default endpoint when it
// is empty. The endpoint must be an absolute http(s) URL.
func (p *Pool) For(endpoint string) (*Hydrator, error) {
	if endpoint == "" {
		endpoint = p.defaultEndpoint
	}
	if err := config.ValidateEndpoint(endpoint); err != nil {
		return nil, apperr.BadRequest("invalid network endpoint %q: %v", endpoint, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if h, ok := p.cache.Get(endpoint); ok {
		return h, nil
	}
	h := New(p.logger.With(zap.String("endpoint", endpoint)), p.newClient(endpoint), p.opts...)
	if evicted := p.cache.Add(endpoint, h); evicted {
		p.logger.Debug("Evicted least recently used hydrator")
	}
	return h, nil
}
