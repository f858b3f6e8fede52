// Package runner drives a simulation from a goroutine, optionally paced by
// a ticker, so viewers and servers can watch it live.
package runner

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zappabad/herdmarket/internal/engine"
	"github.com/zappabad/herdmarket/internal/logger"
)

// Stepper advances a simulation one tick at a time.
type Stepper interface {
	Step(ctx context.Context) (*engine.StepRecord, error)
	Finished() bool
}

// Runner steps a Stepper until it finishes, fails or is closed.
type Runner struct {
	cfg     Config
	stepper Stepper

	paused atomic.Bool
	steps  atomic.Int64

	mu  sync.Mutex
	err error

	done      chan struct{}
	cancel    context.CancelFunc
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewRunner starts stepping immediately unless cfg.StartPaused is set.
func NewRunner(ctx context.Context, cfg Config, stepper Stepper) *Runner {
	if cfg.TickInterval < 0 {
		cfg.TickInterval = 0
	}
	if cfg.StepsPerTick <= 0 {
		cfg.StepsPerTick = DefaultConfig().StepsPerTick
	}

	ctx, cancel := context.WithCancel(ctx)
	r := &Runner{
		cfg:     cfg,
		stepper: stepper,
		done:    make(chan struct{}),
		cancel:  cancel,
	}
	r.paused.Store(cfg.StartPaused)

	r.wg.Add(1)
	go r.run(ctx)

	return r
}

func (r *Runner) run(ctx context.Context) {
	defer r.wg.Done()
	defer close(r.done)

	if r.cfg.TickInterval == 0 {
		for ctx.Err() == nil {
			if r.paused.Load() {
				time.Sleep(time.Millisecond)
				continue
			}
			if !r.tick(ctx) {
				return
			}
		}
		return
	}

	ticker := time.NewTicker(r.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if r.paused.Load() {
				continue
			}
			if !r.tick(ctx) {
				return
			}
		}
	}
}

// tick reports whether the runner should keep going.
func (r *Runner) tick(ctx context.Context) bool {
	for i := 0; i < r.cfg.StepsPerTick; i++ {
		if r.stepper.Finished() {
			logger.Info("Runner: simulation finished after %d steps", r.steps.Load())
			return false
		}
		if _, err := r.stepper.Step(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return false
			}
			r.setErr(err)
			logger.Error("Runner: step failed: %v", err)
			return false
		}
		r.steps.Add(1)
	}
	return !r.stepper.Finished()
}

func (r *Runner) setErr(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
}

// Pause stops stepping until Resume.
func (r *Runner) Pause() { r.paused.Store(true) }

// Resume continues a paused runner.
func (r *Runner) Resume() { r.paused.Store(false) }

// Toggle flips the paused state and returns the new one.
func (r *Runner) Toggle() bool {
	for {
		old := r.paused.Load()
		if r.paused.CompareAndSwap(old, !old) {
			return !old
		}
	}
}

// Paused reports whether the runner is paused.
func (r *Runner) Paused() bool { return r.paused.Load() }

// Steps returns the number of steps taken.
func (r *Runner) Steps() int64 { return r.steps.Load() }

// Done is closed when the runner stops for any reason.
func (r *Runner) Done() <-chan struct{} { return r.done }

// Err returns the step error that stopped the runner, if any.
func (r *Runner) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Close stops the runner and waits for it to exit.
func (r *Runner) Close() {
	r.closeOnce.Do(r.cancel)
	r.wg.Wait()
}
