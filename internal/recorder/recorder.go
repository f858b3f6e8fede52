// Package recorder persists the step records of one run in batches.
package recorder

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/zappabad/herdmarket/internal/engine"
	"github.com/zappabad/herdmarket/internal/logger"
	"github.com/zappabad/herdmarket/internal/storage"
)

// Config sizes the write batches.
type Config struct {
	BatchSize int
}

// DefaultConfig returns the default recorder configuration.
func DefaultConfig() Config {
	return Config{BatchSize: 50}
}

// Recorder is an engine.Sink that buffers step records and appends them to
// a StepStore once BatchSize records are pending. Call Flush at the end of
// a run to write the tail.
type Recorder struct {
	store     storage.StepStore
	runID     string
	batchSize int

	log zerolog.Logger

	mu      sync.Mutex
	pending []*engine.StepRecord
	written int
}

var _ engine.Sink = (*Recorder)(nil)

// New creates a recorder for runID. The run must already exist in store.
func New(store storage.StepStore, runID string, cfg Config) *Recorder {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	return &Recorder{
		store:     store,
		runID:     runID,
		batchSize: cfg.BatchSize,
		log:       logger.Component("recorder").With().Str("run_id", runID).Logger(),
		pending:   make([]*engine.StepRecord, 0, cfg.BatchSize),
	}
}

// Publish queues rec and writes the batch when it is full.
func (r *Recorder) Publish(ctx context.Context, rec *engine.StepRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.pending = append(r.pending, rec)
	if len(r.pending) < r.batchSize {
		return nil
	}
	return r.flushLocked(ctx)
}

// Flush writes every pending record.
func (r *Recorder) Flush(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flushLocked(ctx)
}

// flushLocked keeps the batch pending on failure so a later Flush can retry it.
func (r *Recorder) flushLocked(ctx context.Context) error {
	if len(r.pending) == 0 {
		return nil
	}
	if err := r.store.AppendSteps(ctx, r.runID, r.pending); err != nil {
		r.log.Warn().Err(err).Int("steps", len(r.pending)).Msg("store batch failed, keeping it pending")
		return fmt.Errorf("append steps %d..%d: %w",
			r.pending[0].Model.Step, r.pending[len(r.pending)-1].Model.Step, err)
	}
	r.written += len(r.pending)
	r.pending = r.pending[:0]
	return nil
}

// Written returns the number of records stored so far.
func (r *Recorder) Written() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.written
}

// Pending returns the number of records waiting for the next batch.
func (r *Recorder) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// RunID returns the run the recorder writes to.
func (r *Recorder) RunID() string {
	return r.runID
}
