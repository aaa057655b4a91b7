package sandbox

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultSweepInterval is how often the reaper sweeps by default
const DefaultSweepInterval = time.Minute

// Sweeper removes expired entries and reports how many were removed
type Sweeper interface {
	Sweep() int
}

// Reaper periodically sweeps expired sandboxes in the background
type Reaper struct {
	logger   *zap.Logger
	sweeper  Sweeper
	interval time.Duration

	mu      sync.Mutex
	running bool
	done    chan struct{}
	stopped chan struct{}
}

// NewReaper creates a reaper that calls sweeper.Sweep every interval
func NewReaper(logger *zap.Logger, sweeper Sweeper, interval time.Duration) *Reaper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Reaper{
		logger:   logger,
		sweeper:  sweeper,
		interval: interval,
	}
}

// Start launches the sweep loop. It returns an error if the loop is already
// running. The loop exits when ctx is cancelled or Stop is called.
func (r *Reaper) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return errors.New("reaper is already running")
	}
	r.running = true
	r.done = make(chan struct{})
	r.stopped = make(chan struct{})

	r.logger.Info("Starting fork reaper", zap.Duration("interval", r.interval))
	go r.run(ctx, r.done, r.stopped)
	return nil
}

// Stop signals the loop to exit and waits for it. Safe to call repeatedly.
func (r *Reaper) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	close(r.done)
	stopped := r.stopped
	r.mu.Unlock()

	<-stopped
	r.logger.Info("Fork reaper stopped")
}

// RunNow sweeps synchronously and returns the number of removed sandboxes
func (r *Reaper) RunNow() int {
	return r.sweep()
}

func (r *Reaper) run(ctx context.Context, done <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Debug("Fork reaper context cancelled")
			r.mu.Lock()
			if r.done == done {
				r.running = false
			}
			r.mu.Unlock()
			return
		case <-done:
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

func (r *Reaper) sweep() int {
	removed := r.sweeper.Sweep()
	if removed > 0 {
		r.logger.Debug("Reaper sweep finished", zap.Int("removed", removed))
	}
	return removed
}
