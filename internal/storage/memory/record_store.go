package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/zappabad/herdmarket/internal/engine"
	"github.com/zappabad/herdmarket/internal/storage"
)

type runData struct {
	run    storage.Run
	models []engine.ModelRecord
	agents map[int][]engine.AgentRecord
	steps  map[int]struct{}
}

// RecordStore is an in-memory implementation of storage.RecordStore.
type RecordStore struct {
	mu   sync.RWMutex
	runs map[string]*runData
}

// NewRecordStore creates a new in-memory record store.
func NewRecordStore() *RecordStore {
	return &RecordStore{runs: make(map[string]*runData)}
}

// Compile-time interface check.
var _ storage.RecordStore = (*RecordStore)(nil)

// CreateRun adds a run. Returns ErrDuplicateKey if the id exists.
func (s *RecordStore) CreateRun(_ context.Context, run *storage.Run) error {
	if err := run.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[run.ID]; exists {
		return storage.ErrDuplicateKey
	}

	copied := *run
	copied.Config = append([]byte(nil), run.Config...)
	s.runs[run.ID] = &runData{
		run:    copied,
		agents: make(map[int][]engine.AgentRecord),
		steps:  make(map[int]struct{}),
	}
	return nil
}

// GetRun retrieves a run by id. Returns ErrNotFound if not exists.
func (s *RecordStore) GetRun(_ context.Context, runID string) (*storage.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.runs[runID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copied := data.run
	copied.Config = append([]byte(nil), data.run.Config...)
	return &copied, nil
}

// ListRuns returns every run, most recent first.
func (s *RecordStore) ListRuns(_ context.Context) ([]*storage.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*storage.Run, 0, len(s.runs))
	for _, data := range s.runs {
		copied := data.run
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out, nil
}

// AppendSteps adds steps atomically. Fails the entire batch on any duplicate.
func (s *RecordStore) AppendSteps(_ context.Context, runID string, steps []*engine.StepRecord) error {
	if err := storage.CheckBatch(runID, steps); err != nil {
		return err
	}
	if len(steps) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.runs[runID]
	if !ok {
		return storage.ErrNotFound
	}
	for _, step := range steps {
		if _, exists := data.steps[step.Model.Step]; exists {
			return storage.ErrDuplicateKey
		}
	}

	for _, step := range steps {
		data.steps[step.Model.Step] = struct{}{}
		data.models = append(data.models, step.Model)
		for _, a := range step.Agents {
			data.agents[a.AgentID] = append(data.agents[a.AgentID], a)
		}
	}
	return nil
}

// ModelSeries retrieves the model records of a run, ordered by step ASC.
func (s *RecordStore) ModelSeries(_ context.Context, runID string) ([]engine.ModelRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.runs[runID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := make([]engine.ModelRecord, len(data.models))
	copy(out, data.models)
	sort.Slice(out, func(i, j int) bool { return out[i].Step < out[j].Step })
	return out, nil
}

// AgentSeries retrieves one agent's records, ordered by step ASC.
func (s *RecordStore) AgentSeries(_ context.Context, runID string, agentID int) ([]engine.AgentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.runs[runID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := make([]engine.AgentRecord, len(data.agents[agentID]))
	copy(out, data.agents[agentID])
	sort.Slice(out, func(i, j int) bool { return out[i].Step < out[j].Step })
	return out, nil
}

// Close is a no-op.
func (s *RecordStore) Close() error {
	return nil
}
