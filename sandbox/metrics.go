package sandbox

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "forkbox"

// Origin labels for SandboxesCreated
const (
	OriginEmpty    = "empty"
	OriginSnapshot = "snapshot"
)

// Reason labels for SandboxesRemoved
const (
	ReasonExpired = "expired"
	ReasonDeleted = "deleted"
)

// Outcome labels for Transactions
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Metrics holds the Prometheus collectors for sandbox lifecycle and execution.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// SandboxesActive is the number of sandboxes currently held by the registry
	SandboxesActive prometheus.Gauge
	// SandboxesCreated counts created sandboxes. Labels: origin (empty, snapshot)
	SandboxesCreated *prometheus.CounterVec
	// SandboxesRemoved counts removed sandboxes. Labels: reason (expired, deleted)
	SandboxesRemoved *prometheus.CounterVec
	// Transactions counts submitted transactions. Labels: outcome (success, failure)
	Transactions *prometheus.CounterVec
}

// NewMetrics creates and registers the sandbox metrics on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SandboxesActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "sandboxes_active",
			Help:      "Number of live sandboxes held by the registry",
		}),
		SandboxesCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "sandboxes_created_total",
			Help:      "Total sandboxes created",
		}, []string{"origin"}),
		SandboxesRemoved: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "sandboxes_removed_total",
			Help:      "Total sandboxes removed",
		}, []string{"reason"}),
		Transactions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "transactions_total",
			Help:      "Total transactions submitted to sandboxes",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) created(origin string) {
	if m == nil {
		return
	}
	m.SandboxesCreated.WithLabelValues(origin).Inc()
	m.SandboxesActive.Inc()
}

func (m *Metrics) removed(reason string) {
	if m == nil {
		return
	}
	m.SandboxesRemoved.WithLabelValues(reason).Inc()
	m.SandboxesActive.Dec()
}

func (m *Metrics) transaction(success bool) {
	if m == nil {
		return
	}
	outcome := OutcomeFailure
	if success {
		outcome = OutcomeSuccess
	}
	m.Transactions.WithLabelValues(outcome).Inc()
}
