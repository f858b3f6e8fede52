// Package csvstore persists runs as plain CSV files in one directory:
// runs.csv, model_records.csv and agent_records.csv.
package csvstore

import (
	"context"
	"encoding/base64"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/zappabad/herdmarket/internal/engine"
	"github.com/zappabad/herdmarket/internal/storage"
)

const (
	runsFile   = "runs.csv"
	modelFile  = "model_records.csv"
	agentsFile = "agent_records.csv"
)

var (
	runsHeader  = []string{"id", "started_at", "seed", "initial_price", "steps", "agents", "config"}
	modelHeader = []string{"run_id", "step", "price", "bids", "offers", "optimists", "pessimists", "randoms", "switches"}
	agentHeader = []string{
		"run_id", "step", "agent_id", "type", "horizon", "action", "price", "expectation",
		"expected_return", "return", "fitness", "optimist_mean", "pessimist_mean",
		"switch_prob", "switch_draw", "switched",
	}
)

type stepKey struct {
	runID string
	step  int
}

// RecordStore implements storage.RecordStore on append-only CSV files.
// Reads scan the files; it suits runs that fit comfortably in memory.
type RecordStore struct {
	mu    sync.Mutex
	dir   string
	runs  map[string]*storage.Run
	steps map[stepKey]struct{}
}

// Compile-time interface check.
var _ storage.RecordStore = (*RecordStore)(nil)

// NewRecordStore opens (or creates) the CSV files under dir and indexes
// the runs and steps already written.
func NewRecordStore(dir string) (*RecordStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: csv directory is required", storage.ErrInvalidInput)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create csv directory: %w", err)
	}

	s := &RecordStore{
		dir:   dir,
		runs:  make(map[string]*storage.Run),
		steps: make(map[stepKey]struct{}),
	}
	if err := s.loadIndex(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *RecordStore) loadIndex() error {
	err := s.scan(runsFile, func(row []string) error {
		run, err := parseRun(row)
		if err != nil {
			return err
		}
		s.runs[run.ID] = run
		return nil
	})
	if err != nil {
		return err
	}

	return s.scan(modelFile, func(row []string) error {
		step, err := strconv.Atoi(row[1])
		if err != nil {
			return fmt.Errorf("parse step: %w", err)
		}
		s.steps[stepKey{runID: row[0], step: step}] = struct{}{}
		return nil
	})
}

// scan calls fn for every data row of name. A missing file has no rows.
func (s *RecordStore) scan(name string, fn func(row []string) error) error {
	f, err := os.Open(filepath.Join(s.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open %s: %w", name, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.ReuseRecord = true
	if _, err := r.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("read %s header: %w", name, err)
	}
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		if err := fn(row); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
}

// appendRows writes rows to name, adding the header to a new file.
func (s *RecordStore) appendRows(name string, header []string, rows [][]string) error {
	path := filepath.Join(s.dir, name)
	info, statErr := os.Stat(path)
	isNew := errors.Is(statErr, os.ErrNotExist) || (statErr == nil && info.Size() == 0)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", name, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if isNew {
		if err := w.Write(header); err != nil {
			return fmt.Errorf("write %s header: %w", name, err)
		}
	}
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return f.Sync()
}

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
	if err := s.appendRows(runsFile, runsHeader, [][]string{formatRun(run)}); err != nil {
		return err
	}

	copied := *run
	copied.Config = append([]byte(nil), run.Config...)
	s.runs[run.ID] = &copied
	return nil
}

// GetRun retrieves a run by id. Returns ErrNotFound if not exists.
func (s *RecordStore) GetRun(_ context.Context, runID string) (*storage.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[runID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copied := *run
	copied.Config = append([]byte(nil), run.Config...)
	return &copied, nil
}

// ListRuns returns every run, most recent first.
func (s *RecordStore) ListRuns(_ context.Context) ([]*storage.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*storage.Run, 0, len(s.runs))
	for _, run := range s.runs {
		copied := *run
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out, nil
}

// AppendSteps adds steps. Fails the entire batch on any duplicate.
func (s *RecordStore) AppendSteps(_ context.Context, runID string, steps []*engine.StepRecord) error {
	if err := storage.CheckBatch(runID, steps); err != nil {
		return err
	}
	if len(steps) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[runID]; !ok {
		return storage.ErrNotFound
	}
	for _, step := range steps {
		if _, exists := s.steps[stepKey{runID: runID, step: step.Model.Step}]; exists {
			return storage.ErrDuplicateKey
		}
	}

	models := make([][]string, 0, len(steps))
	var agents [][]string
	for _, step := range steps {
		models = append(models, formatModel(runID, step.Model))
		for _, a := range step.Agents {
			agents = append(agents, formatAgent(runID, a))
		}
	}

	// agents first: a step only counts as written once its model row exists,
	// so a failed batch leaves orphan agent rows that reads skip and a retry
	// supersedes
	if err := s.appendRows(agentsFile, agentHeader, agents); err != nil {
		return err
	}
	if err := s.appendRows(modelFile, modelHeader, models); err != nil {
		return err
	}

	for _, step := range steps {
		s.steps[stepKey{runID: runID, step: step.Model.Step}] = struct{}{}
	}
	return nil
}

// ModelSeries retrieves the model records of a run, ordered by step ASC.
func (s *RecordStore) ModelSeries(_ context.Context, runID string) ([]engine.ModelRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[runID]; !ok {
		return nil, storage.ErrNotFound
	}

	byStep := make(map[int]engine.ModelRecord)
	err := s.scan(modelFile, func(row []string) error {
		if row[0] != runID {
			return nil
		}
		m, err := parseModel(row)
		if err != nil {
			return err
		}
		if _, ok := s.steps[stepKey{runID: runID, step: m.Step}]; ok {
			byStep[m.Step] = m
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]engine.ModelRecord, 0, len(byStep))
	for _, m := range byStep {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Step < out[j].Step })
	return out, nil
}

// AgentSeries retrieves one agent's records, ordered by step ASC. Rows of
// steps whose model row is missing are skipped, and a step written more
// than once by a retried batch yields its last row.
func (s *RecordStore) AgentSeries(_ context.Context, runID string, agentID int) ([]engine.AgentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[runID]; !ok {
		return nil, storage.ErrNotFound
	}

	want := strconv.Itoa(agentID)
	byStep := make(map[int]engine.AgentRecord)
	err := s.scan(agentsFile, func(row []string) error {
		if row[0] != runID || row[2] != want {
			return nil
		}
		a, err := parseAgent(row)
		if err != nil {
			return err
		}
		if _, ok := s.steps[stepKey{runID: runID, step: a.Step}]; ok {
			byStep[a.Step] = a
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]engine.AgentRecord, 0, len(byStep))
	for _, a := range byStep {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Step < out[j].Step })
	return out, nil
}

// Close is a no-op; every write is synced.
func (s *RecordStore) Close() error {
	return nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func formatRun(r *storage.Run) []string {
	return []string{
		r.ID,
		r.StartedAt.UTC().Format(time.RFC3339Nano),
		strconv.FormatInt(r.Seed, 10),
		formatFloat(r.InitialPrice),
		strconv.Itoa(r.Steps),
		strconv.Itoa(r.Agents),
		base64.StdEncoding.EncodeToString(r.Config),
	}
}

func parseRun(row []string) (*storage.Run, error) {
	if len(row) != len(runsHeader) {
		return nil, fmt.Errorf("run row has %d fields, want %d", len(row), len(runsHeader))
	}
	p := parser{row: row}
	run := &storage.Run{
		ID:           row[0],
		StartedAt:    p.time(1),
		Seed:         p.int64(2),
		InitialPrice: p.float(3),
		Steps:        p.int(4),
		Agents:       p.int(5),
		Config:       p.bytes(6),
	}
	return run, p.err
}

func formatModel(runID string, m engine.ModelRecord) []string {
	return []string{
		runID,
		strconv.Itoa(m.Step),
		formatFloat(m.Price),
		strconv.Itoa(m.Bids),
		strconv.Itoa(m.Offers),
		strconv.Itoa(m.Optimists),
		strconv.Itoa(m.Pessimists),
		strconv.Itoa(m.Randoms),
		strconv.Itoa(m.Switches),
	}
}

func parseModel(row []string) (engine.ModelRecord, error) {
	if len(row) != len(modelHeader) {
		return engine.ModelRecord{}, fmt.Errorf("model row has %d fields, want %d", len(row), len(modelHeader))
	}
	p := parser{row: row}
	m := engine.ModelRecord{
		Step:       p.int(1),
		Price:      p.float(2),
		Bids:       p.int(3),
		Offers:     p.int(4),
		Optimists:  p.int(5),
		Pessimists: p.int(6),
		Randoms:    p.int(7),
		Switches:   p.int(8),
	}
	return m, p.err
}

func formatAgent(runID string, a engine.AgentRecord) []string {
	return []string{
		runID,
		strconv.Itoa(a.Step),
		strconv.Itoa(a.AgentID),
		a.Type.String(),
		strconv.Itoa(a.Horizon),
		a.Action.String(),
		formatFloat(a.Price),
		formatFloat(a.Expectation),
		formatFloat(a.ExpectedReturn),
		formatFloat(a.Return),
		formatFloat(a.Fitness),
		formatFloat(a.OptimistMean),
		formatFloat(a.PessimistMean),
		formatFloat(a.SwitchProb),
		formatFloat(a.SwitchDraw),
		strconv.FormatBool(a.Switched),
	}
}

func parseAgent(row []string) (engine.AgentRecord, error) {
	if len(row) != len(agentHeader) {
		return engine.AgentRecord{}, fmt.Errorf("agent row has %d fields, want %d", len(row), len(agentHeader))
	}
	p := parser{row: row}
	a := engine.AgentRecord{
		Step:           p.int(1),
		AgentID:        p.int(2),
		Type:           p.strategy(3),
		Horizon:        p.int(4),
		Action:         p.action(5),
		Price:          p.float(6),
		Expectation:    p.float(7),
		ExpectedReturn: p.float(8),
		Return:         p.float(9),
		Fitness:        p.float(10),
		OptimistMean:   p.float(11),
		PessimistMean:  p.float(12),
		SwitchProb:     p.float(13),
		SwitchDraw:     p.float(14),
		Switched:       p.bool(15),
	}
	return a, p.err
}

// parser keeps the first conversion error of a row.
type parser struct {
	row []string
	err error
}

func (p *parser) fail(i int, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("field %d %q: %w", i, p.row[i], err)
	}
}

func (p *parser) int(i int) int {
	v, err := strconv.Atoi(p.row[i])
	if err != nil {
		p.fail(i, err)
	}
	return v
}

func (p *parser) int64(i int) int64 {
	v, err := strconv.ParseInt(p.row[i], 10, 64)
	if err != nil {
		p.fail(i, err)
	}
	return v
}

func (p *parser) float(i int) float64 {
	v, err := strconv.ParseFloat(p.row[i], 64)
	if err != nil {
		p.fail(i, err)
	}
	return v
}

func (p *parser) bool(i int) bool {
	v, err := strconv.ParseBool(p.row[i])
	if err != nil {
		p.fail(i, err)
	}
	return v
}

func (p *parser) time(i int) time.Time {
	v, err := time.Parse(time.RFC3339Nano, p.row[i])
	if err != nil {
		p.fail(i, err)
	}
	return v
}

func (p *parser) bytes(i int) []byte {
	v, err := base64.StdEncoding.DecodeString(p.row[i])
	if err != nil {
		p.fail(i, err)
	}
	return v
}

func (p *parser) strategy(i int) engine.Strategy {
	v, err := engine.ParseStrategy(p.row[i])
	if err != nil {
		p.fail(i, err)
	}
	return v
}

func (p *parser) action(i int) engine.Action {
	v, err := engine.ParseAction(p.row[i])
	if err != nil {
		p.fail(i, err)
	}
	return v
}
