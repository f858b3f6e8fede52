package clickhouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/zappabad/herdmarket/internal/engine"
	"github.com/zappabad/herdmarket/internal/storage"
)

// RecordStore implements storage.RecordStore using ClickHouse. MergeTree
// does not enforce keys, so uniqueness is checked before each insert.
type RecordStore struct {
	conn *Conn
}

// NewRecordStore creates a new RecordStore on an open connection.
func NewRecordStore(conn *Conn) *RecordStore {
	return &RecordStore{conn: conn}
}

// Open connects to dsn, applies migrations and returns a store owning the connection.
func Open(ctx context.Context, dsn string) (*RecordStore, error) {
	conn, err := NewConn(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := conn.Migrate(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return NewRecordStore(conn), nil
}

// Compile-time interface check.
var _ storage.RecordStore = (*RecordStore)(nil)

// CreateRun adds a run. Returns ErrDuplicateKey if the id exists.
func (s *RecordStore) CreateRun(ctx context.Context, run *storage.Run) error {
	if err := run.Validate(); err != nil {
		return err
	}

	exists, err := s.runExists(ctx, run.ID)
	if err != nil {
		return err
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	err = s.conn.Exec(ctx, `
		INSERT INTO runs (id, started_at, seed, initial_price, steps, agents, config)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.StartedAt.UTC(), run.Seed, run.InitialPrice, int64(run.Steps), int64(run.Agents), string(run.Config))
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by id. Returns ErrNotFound if not exists.
func (s *RecordStore) GetRun(ctx context.Context, runID string) (*storage.Run, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT id, started_at, seed, initial_price, steps, agents, config
		FROM runs
		WHERE id = ?
		LIMIT 1
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	defer rows.Close()

	runs, err := scanRuns(rows)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, storage.ErrNotFound
	}
	return runs[0], nil
}

// ListRuns returns every run, most recent first.
func (s *RecordStore) ListRuns(ctx context.Context) ([]*storage.Run, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT id, started_at, seed, initial_price, steps, agents, config
		FROM runs
		ORDER BY started_at DESC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	return scanRuns(rows)
}

// AppendSteps adds steps. Fails the entire batch on any duplicate step,
// inside the batch or against stored rows.
func (s *RecordStore) AppendSteps(ctx context.Context, runID string, steps []*engine.StepRecord) error {
	if err := storage.CheckBatch(runID, steps); err != nil {
		return err
	}
	if len(steps) == 0 {
		return nil
	}

	exists, err := s.runExists(ctx, runID)
	if err != nil {
		return err
	}
	if !exists {
		return storage.ErrNotFound
	}

	if err := s.checkStepsFree(ctx, runID, steps); err != nil {
		return err
	}

	// Agent rows go first: a step only becomes visible through its model row.
	agentBatch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO agent_records (
			run_id, step, agent_id, type, horizon, action,
			price, expectation, expected_return, realized_return, fitness,
			optimist_mean, pessimist_mean, switch_prob, switch_draw, switched
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare agent batch: %w", err)
	}
	for _, step := range steps {
		for _, a := range step.Agents {
			err := agentBatch.Append(
				runID, int64(a.Step), int64(a.AgentID), a.Type.String(), int64(a.Horizon), a.Action.String(),
				a.Price, a.Expectation, a.ExpectedReturn, a.Return, a.Fitness,
				a.OptimistMean, a.PessimistMean, a.SwitchProb, a.SwitchDraw, a.Switched,
			)
			if err != nil {
				return fmt.Errorf("append agent record: %w", err)
			}
		}
	}
	if err := agentBatch.Send(); err != nil {
		return fmt.Errorf("send agent batch: %w", err)
	}

	modelBatch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO model_records (
			run_id, step, price, bids, offers, optimists, pessimists, randoms, switches
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare model batch: %w", err)
	}
	for _, step := range steps {
		m := step.Model
		err := modelBatch.Append(
			runID, int64(m.Step), m.Price, int64(m.Bids), int64(m.Offers),
			int64(m.Optimists), int64(m.Pessimists), int64(m.Randoms), int64(m.Switches),
		)
		if err != nil {
			return fmt.Errorf("append model record: %w", err)
		}
	}
	if err := modelBatch.Send(); err != nil {
		return fmt.Errorf("send model batch: %w", err)
	}
	return nil
}

// ModelSeries retrieves the model records of a run, ordered by step ASC.
func (s *RecordStore) ModelSeries(ctx context.Context, runID string) ([]engine.ModelRecord, error) {
	exists, err := s.runExists(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, storage.ErrNotFound
	}

	rows, err := s.conn.Query(ctx, `
		SELECT step, price, bids, offers, optimists, pessimists, randoms, switches
		FROM model_records
		WHERE run_id = ?
		ORDER BY step ASC
		LIMIT 1 BY step
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query model records: %w", err)
	}
	defer rows.Close()

	out := []engine.ModelRecord{}
	for rows.Next() {
		var (
			m                                                  engine.ModelRecord
			step, bids, offers, optimists, pessimists, randoms int64
			switches                                           int64
		)
		if err := rows.Scan(&step, &m.Price, &bids, &offers, &optimists, &pessimists, &randoms, &switches); err != nil {
			return nil, fmt.Errorf("scan model record: %w", err)
		}
		m.Step, m.Bids, m.Offers = int(step), int(bids), int(offers)
		m.Optimists, m.Pessimists, m.Randoms, m.Switches = int(optimists), int(pessimists), int(randoms), int(switches)
		out = append(out, m)
	}
	return out, rows.Err()
}

// AgentSeries retrieves one agent's records, ordered by step ASC. Agent rows
// left behind by a batch whose model rows never landed are skipped, and a
// retried step yields one row.
func (s *RecordStore) AgentSeries(ctx context.Context, runID string, agentID int) ([]engine.AgentRecord, error) {
	exists, err := s.runExists(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, storage.ErrNotFound
	}

	rows, err := s.conn.Query(ctx, `
		SELECT step, agent_id, type, horizon, action,
			price, expectation, expected_return, realized_return, fitness,
			optimist_mean, pessimist_mean, switch_prob, switch_draw, switched
		FROM agent_records
		WHERE run_id = ? AND agent_id = ?
			AND step IN (SELECT step FROM model_records WHERE run_id = ?)
		ORDER BY step ASC
		LIMIT 1 BY step
	`, runID, int64(agentID), runID)
	if err != nil {
		return nil, fmt.Errorf("query agent records: %w", err)
	}
	defer rows.Close()

	out := []engine.AgentRecord{}
	for rows.Next() {
		var (
			a                 engine.AgentRecord
			step, id, horizon int64
			typ, action       string
		)
		err := rows.Scan(&step, &id, &typ, &horizon, &action,
			&a.Price, &a.Expectation, &a.ExpectedReturn, &a.Return, &a.Fitness,
			&a.OptimistMean, &a.PessimistMean, &a.SwitchProb, &a.SwitchDraw, &a.Switched)
		if err != nil {
			return nil, fmt.Errorf("scan agent record: %w", err)
		}
		a.Step, a.AgentID, a.Horizon = int(step), int(id), int(horizon)
		if a.Type, err = engine.ParseStrategy(typ); err != nil {
			return nil, fmt.Errorf("agent record type: %w", err)
		}
		if a.Action, err = engine.ParseAction(action); err != nil {
			return nil, fmt.Errorf("agent record action: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Close closes the underlying connection.
func (s *RecordStore) Close() error {
	return s.conn.Close()
}

func (s *RecordStore) runExists(ctx context.Context, runID string) (bool, error) {
	var count uint64
	err := s.conn.QueryRow(ctx, `SELECT count() FROM runs WHERE id = ?`, runID).Scan(&count)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("check run: %w", err)
	}
	return count > 0, nil
}

// checkStepsFree returns ErrDuplicateKey if any step of the batch is
// already stored for runID.
func (s *RecordStore) checkStepsFree(ctx context.Context, runID string, steps []*engine.StepRecord) error {
	batch := make(map[int64]struct{}, len(steps))
	ids := make([]int64, 0, len(steps))
	for _, step := range steps {
		id := int64(step.Model.Step)
		batch[id] = struct{}{}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	rows, err := s.conn.Query(ctx, `
		SELECT step FROM model_records
		WHERE run_id = ? AND step >= ? AND step <= ?
	`, runID, ids[0], ids[len(ids)-1])
	if err != nil {
		return fmt.Errorf("check steps: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var step int64
		if err := rows.Scan(&step); err != nil {
			return fmt.Errorf("scan step: %w", err)
		}
		if _, taken := batch[step]; taken {
			return storage.ErrDuplicateKey
		}
	}
	return rows.Err()
}

type chRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanRuns(rows chRows) ([]*storage.Run, error) {
	var runs []*storage.Run
	for rows.Next() {
		var (
			run           storage.Run
			startedAt     time.Time
			steps, agents int64
			config        string
		)
		if err := rows.Scan(&run.ID, &startedAt, &run.Seed, &run.InitialPrice, &steps, &agents, &config); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.StartedAt = startedAt.UTC()
		run.Steps, run.Agents = int(steps), int(agents)
		run.Config = []byte(config)
		runs = append(runs, &run)
	}
	return runs, rows.Err()
}
