package sandbox

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type countingSweeper struct {
	calls atomic.Int64
}

func (s *countingSweeper) Sweep() int {
	s.calls.Add(1)
	return 1
}

func TestReaper(t *testing.T) {
	t.Run("SweepsPeriodically", func(t *testing.T) {
		sweeper := &countingSweeper{}
		reaper := NewReaper(zaptest.NewLogger(t), sweeper, 5*time.Millisecond)

		require.NoError(t, reaper.Start(context.Background()))
		assert.Eventually(t, func() bool {
			return sweeper.calls.Load() >= 2
		}, time.Second, time.Millisecond)
		reaper.Stop()

		after := sweeper.calls.Load()
		time.Sleep(20 * time.Millisecond)
		assert.Equal(t, after, sweeper.calls.Load())
	})

	t.Run("DoubleStart", func(t *testing.T) {
		reaper := NewReaper(zaptest.NewLogger(t), &countingSweeper{}, time.Hour)
		require.NoError(t, reaper.Start(context.Background()))
		defer reaper.Stop()

		err := reaper.Start(context.Background())
		assert.Error(t, err)
	})

	t.Run("StopIsIdempotent", func(t *testing.T) {
		reaper := NewReaper(zaptest.NewLogger(t), &countingSweeper{}, time.Hour)
		reaper.Stop()
		require.NoError(t, reaper.Start(context.Background()))
		reaper.Stop()
		reaper.Stop()

		require.NoError(t, reaper.Start(context.Background()))
		reaper.Stop()
	})

	t.Run("RunNow", func(t *testing.T) {
		sweeper := &countingSweeper{}
		reaper := NewReaper(zaptest.NewLogger(t), sweeper, time.Hour)
		assert.Equal(t, 1, reaper.RunNow())
		assert.Equal(t, int64(1), sweeper.calls.Load())
	})

	t.Run("ContextCancelAllowsRestart", func(t *testing.T) {
		reaper := NewReaper(zaptest.NewLogger(t), &countingSweeper{}, time.Hour)
		ctx, cancel := context.WithCancel(context.Background())
		require.NoError(t, reaper.Start(ctx))
		cancel()

		assert.Eventually(t, func() bool {
			return reaper.Start(context.Background()) == nil
		}, time.Second, time.Millisecond)
		reaper.Stop()
	})

	t.Run("DefaultInterval", func(t *testing.T) {
		reaper := NewReaper(zaptest.NewLogger(t), &countingSweeper{}, 0)
		assert.Equal(t, DefaultSweepInterval, reaper.interval)
	})

	t.Run("SweepsRegistry", func(t *testing.T) {
		clock := newFakeClock()
		r := newTestRegistry(t, clock, WithTTL(time.Minute))
		_, err := r.Create("alice")
		require.NoError(t, err)

		reaper := NewReaper(zaptest.NewLogger(t), r, time.Hour)
		assert.Equal(t, 0, reaper.RunNow())
		clock.Advance(2 * time.Minute)
		assert.Equal(t, 1, reaper.RunNow())
		assert.Equal(t, 0, r.Len())
	})
}
