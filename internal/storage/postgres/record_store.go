package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/zappabad/herdmarket/internal/engine"
	"github.com/zappabad/herdmarket/internal/storage"
)

// RecordStore implements storage.RecordStore using PostgreSQL.
type RecordStore struct {
	pool *Pool
}

// NewRecordStore creates a new RecordStore on an open pool.
func NewRecordStore(pool *Pool) *RecordStore {
	return &RecordStore{pool: pool}
}

// Open connects to dsn, applies migrations and returns a store owning the pool.
func Open(ctx context.Context, dsn string) (*RecordStore, error) {
	pool, err := NewPool(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return NewRecordStore(pool), nil
}

// Compile-time interface check.
var _ storage.RecordStore = (*RecordStore)(nil)

var agentColumns = []string{
	"run_id", "step", "agent_id", "type", "horizon", "action",
	"price", "expectation", "expected_return", "realized_return", "fitness",
	"optimist_mean", "pessimist_mean", "switch_prob", "switch_draw", "switched",
}

// CreateRun adds a run. Returns ErrDuplicateKey if the id exists.
func (s *RecordStore) CreateRun(ctx context.Context, run *storage.Run) error {
	if err := run.Validate(); err != nil {
		return err
	}

	config := run.Config
	if len(config) == 0 {
		config = []byte("{}")
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO runs (id, started_at, seed, initial_price, steps, agents, config)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, run.ID, run.StartedAt, run.Seed, run.InitialPrice, run.Steps, run.Agents, string(config))
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by id. Returns ErrNotFound if not exists.
func (s *RecordStore) GetRun(ctx context.Context, runID string) (*storage.Run, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, started_at, seed, initial_price, steps, agents, config
		FROM runs
		WHERE id = $1
	`, runID)

	run, err := scanRun(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// ListRuns returns every run, most recent first.
func (s *RecordStore) ListRuns(ctx context.Context) ([]*storage.Run, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, started_at, seed, initial_price, steps, agents, config
		FROM runs
		ORDER BY started_at DESC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*storage.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// AppendSteps adds steps atomically. Fails the entire batch on any duplicate.
func (s *RecordStore) AppendSteps(ctx context.Context, runID string, steps []*engine.StepRecord) error {
	if err := storage.CheckBatch(runID, steps); err != nil {
		return err
	}
	if len(steps) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := runExists(ctx, tx, runID); err != nil {
		return err
	}

	for _, step := range steps {
		m := step.Model
		_, err := tx.Exec(ctx, `
			INSERT INTO model_records (
				run_id, step, price, bids, offers, optimists, pessimists, randoms, switches
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, runID, m.Step, m.Price, m.Bids, m.Offers, m.Optimists, m.Pessimists, m.Randoms, m.Switches)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert model record: %w", err)
		}
	}

	var rows [][]any
	for _, step := range steps {
		for _, a := range step.Agents {
			rows = append(rows, []any{
				runID, a.Step, a.AgentID, a.Type.String(), a.Horizon, a.Action.String(),
				a.Price, a.Expectation, a.ExpectedReturn, a.Return, a.Fitness,
				a.OptimistMean, a.PessimistMean, a.SwitchProb, a.SwitchDraw, a.Switched,
			})
		}
	}
	if len(rows) > 0 {
		_, err := tx.CopyFrom(ctx, pgx.Identifier{"agent_records"}, agentColumns, pgx.CopyFromRows(rows))
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("copy agent records: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// ModelSeries retrieves the model records of a run, ordered by step ASC.
func (s *RecordStore) ModelSeries(ctx context.Context, runID string) ([]engine.ModelRecord, error) {
	if err := runExists(ctx, s.pool, runID); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT step, price, bids, offers, optimists, pessimists, randoms, switches
		FROM model_records
		WHERE run_id = $1
		ORDER BY step ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query model records: %w", err)
	}
	defer rows.Close()

	out := []engine.ModelRecord{}
	for rows.Next() {
		var m engine.ModelRecord
		if err := rows.Scan(&m.Step, &m.Price, &m.Bids, &m.Offers, &m.Optimists, &m.Pessimists, &m.Randoms, &m.Switches); err != nil {
			return nil, fmt.Errorf("scan model record: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// AgentSeries retrieves one agent's records, ordered by step ASC.
func (s *RecordStore) AgentSeries(ctx context.Context, runID string, agentID int) ([]engine.AgentRecord, error) {
	if err := runExists(ctx, s.pool, runID); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT step, agent_id, type, horizon, action,
			price, expectation, expected_return, realized_return, fitness,
			optimist_mean, pessimist_mean, switch_prob, switch_draw, switched
		FROM agent_records
		WHERE run_id = $1 AND agent_id = $2
		ORDER BY step ASC
	`, runID, agentID)
	if err != nil {
		return nil, fmt.Errorf("query agent records: %w", err)
	}
	defer rows.Close()

	out := []engine.AgentRecord{}
	for rows.Next() {
		var (
			a           engine.AgentRecord
			typ, action string
		)
		err := rows.Scan(&a.Step, &a.AgentID, &typ, &a.Horizon, &action,
			&a.Price, &a.Expectation, &a.ExpectedReturn, &a.Return, &a.Fitness,
			&a.OptimistMean, &a.PessimistMean, &a.SwitchProb, &a.SwitchDraw, &a.Switched)
		if err != nil {
			return nil, fmt.Errorf("scan agent record: %w", err)
		}
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

// Close closes the underlying pool.
func (s *RecordStore) Close() error {
	s.pool.Close()
	return nil
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func runExists(ctx context.Context, q rowQuerier, runID string) error {
	var one int
	err := q.QueryRow(ctx, `SELECT 1 FROM runs WHERE id = $1`, runID).Scan(&one)
	if err != nil {
		if isNotFoundError(err) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("check run: %w", err)
	}
	return nil
}

func scanRun(row pgx.Row) (*storage.Run, error) {
	var run storage.Run
	err := row.Scan(&run.ID, &run.StartedAt, &run.Seed, &run.InitialPrice, &run.Steps, &run.Agents, &run.Config)
	if err != nil {
		return nil, err
	}
	run.StartedAt = run.StartedAt.UTC()
	return &run, nil
}
