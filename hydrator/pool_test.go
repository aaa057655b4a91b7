package hydrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/isdmx/forkbox/apperr"
	"github.com/isdmx/forkbox/config"
)

func TestPool(t *testing.T) {
	var built []string
	factory := func(endpoint string) NetworkClient {
		built = append(built, endpoint)
		return newFakeClient()
	}

	pool, err := NewPool(zaptest.NewLogger(t), "https://api.mainnet-beta.solana.com", 1, factory)
	require.NoError(t, err)

	t.Run("DefaultEndpoint", func(t *testing.T) {
		h, err := pool.For("")
		require.NoError(t, err)
		again, err := pool.For("https://api.mainnet-beta.solana.com")
		require.NoError(t, err)
		assert.Same(t, h, again)
		assert.Equal(t, []string{"https://api.mainnet-beta.solana.com"}, built)
	})

	t.Run("InvalidEndpoint", func(t *testing.T) {
		_, err := pool.For("not a url")
		assert.True(t, apperr.Is(err, apperr.KindBadRequest))
		_, err = pool.For("ws://localhost:8900")
		assert.True(t, apperr.Is(err, apperr.KindBadRequest))
	})

	t.Run("Eviction", func(t *testing.T) {
		first, err := pool.For("http://localhost:8899")
		require.NoError(t, err)
		_, err = pool.For("")
		require.NoError(t, err)
		again, err := pool.For("http://localhost:8899")
		require.NoError(t, err)
		assert.NotSame(t, first, again)
	})

	t.Run("ZeroSize", func(t *testing.T) {
		_, err := NewPool(zaptest.NewLogger(t), "", 0, factory)
		assert.Error(t, err)
	})
}

func TestNewPoolFromConfig(t *testing.T) {
	cfg := &config.Config{
		Network: config.NetworkConfig{
			Endpoint:          "https://api.devnet.solana.com",
			TimeoutSec:        5,
			RequestsPerSecond: 5,
			Burst:             5,
			FetchConcurrency:  2,
			ClientCacheSize:   4,
			Commitment:        "finalized",
		},
	}
	pool, err := NewPoolFromConfig(zaptest.NewLogger(t), cfg)
	require.NoError(t, err)
	assert.Equal(t, "https://api.devnet.solana.com", pool.DefaultEndpoint())

	h, err := pool.For("")
	require.NoError(t, err)
	assert.Equal(t, 2, h.concurrency)

	client, ok := h.client.(*RPCClient)
	require.True(t, ok)
	assert.Equal(t, "https://api.devnet.solana.com", client.Endpoint())
	assert.Equal(t, "finalized", client.commitment)
}
