// Package sqlitestore provides SQLite-backed persistence for runs and step records.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/zappabad/herdmarket/internal/engine"
	"github.com/zappabad/herdmarket/internal/storage"
)

// RecordStore wraps a SQLite database for all persistence operations.
type RecordStore struct {
	db *sql.DB
}

// Compile-time interface check.
var _ storage.RecordStore = (*RecordStore)(nil)

// NewRecordStore opens or creates the SQLite database at dbPath.
func NewRecordStore(dbPath string) (*RecordStore, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("%w: sqlite path is required", storage.ErrInvalidInput)
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &RecordStore{db: db}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *RecordStore) Close() error {
	return s.db.Close()
}

func (s *RecordStore) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id            TEXT PRIMARY KEY,
			started_at    INTEGER NOT NULL,
			seed          INTEGER NOT NULL,
			initial_price REAL NOT NULL,
			steps         INTEGER NOT NULL,
			agents        INTEGER NOT NULL,
			config        TEXT NOT NULL DEFAULT '{}'
		)`,
		`CREATE TABLE IF NOT EXISTS model_records (
			run_id     TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			step       INTEGER NOT NULL,
			price      REAL NOT NULL,
			bids       INTEGER NOT NULL,
			offers     INTEGER NOT NULL,
			optimists  INTEGER NOT NULL,
			pessimists INTEGER NOT NULL,
			randoms    INTEGER NOT NULL,
			switches   INTEGER NOT NULL,
			PRIMARY KEY (run_id, step)
		)`,
		`CREATE TABLE IF NOT EXISTS agent_records (
			run_id          TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			step            INTEGER NOT NULL,
			agent_id        INTEGER NOT NULL,
			type            TEXT NOT NULL,
			horizon         INTEGER NOT NULL,
			action          TEXT NOT NULL,
			price           REAL NOT NULL,
			expectation     REAL NOT NULL,
			expected_return REAL NOT NULL,
			realized_return REAL NOT NULL,
			fitness         REAL NOT NULL,
			optimist_mean   REAL NOT NULL,
			pessimist_mean  REAL NOT NULL,
			switch_prob     REAL NOT NULL,
			switch_draw     REAL NOT NULL,
			switched        INTEGER NOT NULL,
			PRIMARY KEY (run_id, step, agent_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_agent_records_agent ON agent_records(run_id, agent_id, step)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func isDuplicateKeyError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// CreateRun adds a run. Returns ErrDuplicateKey if the id exists.
func (s *RecordStore) CreateRun(ctx context.Context, run *storage.Run) error {
	if err := run.Validate(); err != nil {
		return err
	}

	config := string(run.Config)
	if config == "" {
		config = "{}"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, seed, initial_price, steps, agents, config)
		VALUES (?,?,?,?,?,?,?)`,
		run.ID, run.StartedAt.UnixNano(), run.Seed, run.InitialPrice, run.Steps, run.Agents, config,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by id. Returns ErrNotFound if not exists.
func (s *RecordStore) GetRun(ctx context.Context, runID string) (*storage.Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, started_at, seed, initial_price, steps, agents, config
		FROM runs WHERE id = ?`, runID)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns returns every run, most recent first.
func (s *RecordStore) ListRuns(ctx context.Context) ([]*storage.Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, seed, initial_price, steps, agents, config
		FROM runs ORDER BY started_at DESC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var out []*storage.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*storage.Run, error) {
	var (
		run       storage.Run
		startedAt int64
		config    string
	)
	if err := row.Scan(&run.ID, &startedAt, &run.Seed, &run.InitialPrice, &run.Steps, &run.Agents, &config); err != nil {
		return nil, err
	}
	run.StartedAt = time.Unix(0, startedAt).UTC()
	run.Config = []byte(config)
	return &run, nil
}

func (s *RecordStore) runExists(ctx context.Context, q interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}, runID string) error {
	var one int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM runs WHERE id = ?`, runID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to look up run: %w", err)
	}
	return nil
}

// AppendSteps adds steps atomically. Fails the entire batch on any duplicate.
func (s *RecordStore) AppendSteps(ctx context.Context, runID string, steps []*engine.StepRecord) error {
	if err := storage.CheckBatch(runID, steps); err != nil {
		return err
	}
	if len(steps) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := s.runExists(ctx, tx, runID); err != nil {
		return err
	}

	modelStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO model_records
			(run_id, step, price, bids, offers, optimists, pessimists, randoms, switches)
		VALUES (?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare model insert: %w", err)
	}
	defer modelStmt.Close()

	agentStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO agent_records
			(run_id, step, agent_id, type, horizon, action, price, expectation, expected_return,
			 realized_return, fitness, optimist_mean, pessimist_mean, switch_prob, switch_draw, switched)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare agent insert: %w", err)
	}
	defer agentStmt.Close()

	for _, step := range steps {
		m := step.Model
		if _, err := modelStmt.ExecContext(ctx, runID, m.Step, m.Price, m.Bids, m.Offers,
			m.Optimists, m.Pessimists, m.Randoms, m.Switches); err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("failed to insert model record: %w", err)
		}

		for _, a := range step.Agents {
			if _, err := agentStmt.ExecContext(ctx, runID, a.Step, a.AgentID, a.Type.String(), a.Horizon,
				a.Action.String(), a.Price, a.Expectation, a.ExpectedReturn, a.Return, a.Fitness,
				a.OptimistMean, a.PessimistMean, a.SwitchProb, a.SwitchDraw, a.Switched); err != nil {
				if isDuplicateKeyError(err) {
					return storage.ErrDuplicateKey
				}
				return fmt.Errorf("failed to insert agent record: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit steps: %w", err)
	}
	return nil
}

// ModelSeries retrieves the model records of a run, ordered by step ASC.
func (s *RecordStore) ModelSeries(ctx context.Context, runID string) ([]engine.ModelRecord, error) {
	if err := s.runExists(ctx, s.db, runID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT step, price, bids, offers, optimists, pessimists, randoms, switches
		FROM model_records WHERE run_id = ? ORDER BY step ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query model records: %w", err)
	}
	defer rows.Close()

	var out []engine.ModelRecord
	for rows.Next() {
		var m engine.ModelRecord
		if err := rows.Scan(&m.Step, &m.Price, &m.Bids, &m.Offers,
			&m.Optimists, &m.Pessimists, &m.Randoms, &m.Switches); err != nil {
			return nil, fmt.Errorf("failed to scan model record: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// AgentSeries retrieves one agent's records, ordered by step ASC.
func (s *RecordStore) AgentSeries(ctx context.Context, runID string, agentID int) ([]engine.AgentRecord, error) {
	if err := s.runExists(ctx, s.db, runID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT step, agent_id, type, horizon, action, price, expectation, expected_return,
		       realized_return, fitness, optimist_mean, pessimist_mean, switch_prob, switch_draw, switched
		FROM agent_records WHERE run_id = ? AND agent_id = ? ORDER BY step ASC`, runID, agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query agent records: %w", err)
	}
	defer rows.Close()

	var out []engine.AgentRecord
	for rows.Next() {
		var (
			a           engine.AgentRecord
			typ, action string
		)
		if err := rows.Scan(&a.Step, &a.AgentID, &typ, &a.Horizon, &action, &a.Price, &a.Expectation,
			&a.ExpectedReturn, &a.Return, &a.Fitness, &a.OptimistMean, &a.PessimistMean,
			&a.SwitchProb, &a.SwitchDraw, &a.Switched); err != nil {
			return nil, fmt.Errorf("failed to scan agent record: %w", err)
		}
		if a.Type, err = engine.ParseStrategy(typ); err != nil {
			return nil, err
		}
		if a.Action, err = engine.ParseAction(action); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
