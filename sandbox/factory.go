package sandbox

import (
	"go.uber.org/zap"

	"github.com/isdmx/forkbox/config"
	"github.com/isdmx/forkbox/ledger"
)

// NewRegistryFromConfig creates a registry using the registry and engine
// sections of cfg
func NewRegistryFromConfig(logger *zap.Logger, cfg *config.Config, metrics *Metrics) *Registry {
	engineFactory := ledger.MemoryEngineFactory(
		ledger.WithSignatureFee(cfg.Engine.SignatureFeeLamports),
	)
	return NewRegistry(logger,
		WithTTL(cfg.GetTTL()),
		WithEngineFactory(engineFactory),
		WithMetrics(metrics),
	)
}

// NewReaperFromConfig creates a reaper for registry using registry.sweep_interval_sec
func NewReaperFromConfig(logger *zap.Logger, cfg *config.Config, registry *Registry) *Reaper {
	return NewReaper(logger, registry, cfg.GetSweepInterval())
}
