package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/zappabad/herdmarket/internal/engine"
)

// Run describes one simulation run. Config is the JSON encoding of the
// effective configuration.
type Run struct {
	ID           string
	StartedAt    time.Time
	Seed         int64
	InitialPrice float64
	Steps        int
	Agents       int
	Config       []byte
}

// Validate checks the fields every backend relies on.
func (r *Run) Validate() error {
	if r == nil || r.ID == "" {
		return fmt.Errorf("%w: run id is required", ErrInvalidInput)
	}
	if r.Steps <= 0 || r.Agents <= 0 {
		return fmt.Errorf("%w: run %s has %d steps and %d agents", ErrInvalidInput, r.ID, r.Steps, r.Agents)
	}
	return nil
}

// RunStore provides access to run metadata.
type RunStore interface {
	// CreateRun adds a run. Returns ErrDuplicateKey if the id exists.
	CreateRun(ctx context.Context, run *Run) error

	// GetRun retrieves a run by id. Returns ErrNotFound if not exists.
	GetRun(ctx context.Context, runID string) (*Run, error)

	// ListRuns returns every run, most recent first.
	ListRuns(ctx context.Context) ([]*Run, error)
}

// StepStore provides access to per-step model and agent records.
type StepStore interface {
	// AppendSteps adds steps atomically. Returns ErrNotFound for an unknown
	// run and ErrDuplicateKey if any step already exists for the run.
	AppendSteps(ctx context.Context, runID string, steps []*engine.StepRecord) error

	// ModelSeries retrieves the model records of a run, ordered by step ASC.
	ModelSeries(ctx context.Context, runID string) ([]engine.ModelRecord, error)

	// AgentSeries retrieves one agent's records, ordered by step ASC.
	AgentSeries(ctx context.Context, runID string, agentID int) ([]engine.AgentRecord, error)
}

// RecordStore is a complete persistence backend.
type RecordStore interface {
	RunStore
	StepStore
	Close() error
}

// CheckBatch rejects nil records and repeated steps inside one batch.
func CheckBatch(runID string, steps []*engine.StepRecord) error {
	if runID == "" {
		return fmt.Errorf("%w: run id is required", ErrInvalidInput)
	}
	seen := make(map[int]struct{}, len(steps))
	for _, s := range steps {
		if s == nil {
			return fmt.Errorf("%w: nil step record", ErrInvalidInput)
		}
		if _, dup := seen[s.Model.Step]; dup {
			return ErrDuplicateKey
		}
		seen[s.Model.Step] = struct{}{}
	}
	return nil
}
