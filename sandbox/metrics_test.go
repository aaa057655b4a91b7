package sandbox

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/isdmx/forkbox/config"
	"github.com/isdmx/forkbox/ledger"
)

func TestMetrics(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	clock := newFakeClock()
	r := newTestRegistry(t, clock, WithTTL(time.Minute), WithMetrics(metrics))

	a, err := r.Create("alice")
	require.NoError(t, err)
	_, err = r.Provision("bob", &Origin{Height: 5}, nil)
	require.NoError(t, err)

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.SandboxesActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SandboxesCreated.WithLabelValues(OriginEmpty)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SandboxesCreated.WithLabelValues(OriginSnapshot)))

	err = r.Update(ByID(a), func(sb *Sandbox) error {
		sb.Submit(&ledger.Transaction{Signatures: []ledger.Signature{{}}, Message: ledger.Message{Signers: []ledger.Address{{}}}})
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Transactions.WithLabelValues(OutcomeFailure)))

	require.True(t, r.Delete(a))
	clock.Advance(2 * time.Minute)
	assert.Equal(t, 1, r.Sweep())

	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.SandboxesActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SandboxesRemoved.WithLabelValues(ReasonDeleted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SandboxesRemoved.WithLabelValues(ReasonExpired)))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.created(OriginEmpty)
		m.removed(ReasonDeleted)
		m.transaction(true)
	})
}

func TestNewRegistryFromConfig(t *testing.T) {
	cfg := &config.Config{
		Registry: config.RegistryConfig{TTLSec: 120, SweepIntervalSec: 5},
		Engine:   config.EngineConfig{SignatureFeeLamports: 0},
	}
	r := NewRegistryFromConfig(zaptest.NewLogger(t), cfg, nil)
	assert.Equal(t, 2*time.Minute, r.TTL())

	reaper := NewReaperFromConfig(zaptest.NewLogger(t), cfg, r)
	assert.Equal(t, 5*time.Second, reaper.interval)

	id, err := r.Create("alice")
	require.NoError(t, err)
	key, alice := newWallet(t)
	_, bob := newWallet(t)

	err = r.Update(ByID(id), func(sb *Sandbox) error {
		require.NoError(t, sb.SetBalance(alice, 100))
		res := sb.Submit(transferTx(t, sb, key, alice, bob, 100))
		assert.True(t, res.Success, res.Error)
		return nil
	})
	require.NoError(t, err)
}
