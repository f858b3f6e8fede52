// Package storagetest holds the behavior every storage.RecordStore backend
// must share, run against each backend from its own tests.
package storagetest

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zappabad/herdmarket/internal/engine"
	"github.com/zappabad/herdmarket/internal/storage"
)

// Fixture runs a small seeded simulation and returns its run row and records.
func Fixture(t *testing.T, runID string, steps, agents int) (*storage.Run, []*engine.StepRecord) {
	t.Helper()

	cfg := engine.DefaultConfig()
	cfg.Steps = steps
	cfg.Agents = agents
	cfg.NonRandom = 1

	var records []*engine.StepRecord
	sink := engine.SinkFunc(func(_ context.Context, rec *engine.StepRecord) error {
		records = append(records, rec)
		return nil
	})

	sim, err := engine.NewSimulation(cfg, nil, engine.NewRandomSource(3), sink)
	require.NoError(t, err)
	require.NoError(t, sim.Run(context.Background()))

	run := &storage.Run{
		ID:           runID,
		StartedAt:    time.Date(2026, 3, 14, 15, 9, 26, 535000000, time.UTC),
		Seed:         3,
		InitialPrice: cfg.InitialPrice,
		Steps:        cfg.Steps,
		Agents:       cfg.Agents,
		Config:       []byte(`{"simulation":{"steps":` + strconv.Itoa(steps) + `}}`),
	}
	return run, records
}

// Run exercises the full RecordStore contract against store.
func Run(t *testing.T, store storage.RecordStore) {
	ctx := context.Background()

	t.Run("runs", func(t *testing.T) {
		run, _ := Fixture(t, "run-meta", 3, 2)
		require.NoError(t, store.CreateRun(ctx, run))
		require.ErrorIs(t, store.CreateRun(ctx, run), storage.ErrDuplicateKey)

		got, err := store.GetRun(ctx, run.ID)
		require.NoError(t, err)
		require.Equal(t, run.ID, got.ID)
		require.True(t, run.StartedAt.Equal(got.StartedAt), "started_at %v != %v", run.StartedAt, got.StartedAt)
		require.Equal(t, run.Seed, got.Seed)
		require.Equal(t, run.InitialPrice, got.InitialPrice)
		require.Equal(t, run.Steps, got.Steps)
		require.Equal(t, run.Agents, got.Agents)
		require.JSONEq(t, string(run.Config), string(got.Config))

		_, err = store.GetRun(ctx, "missing")
		require.ErrorIs(t, err, storage.ErrNotFound)

		runs, err := store.ListRuns(ctx)
		require.NoError(t, err)
		var ids []string
		for _, r := range runs {
			ids = append(ids, r.ID)
		}
		require.Contains(t, ids, run.ID)
	})

	t.Run("invalid run", func(t *testing.T) {
		require.ErrorIs(t, store.CreateRun(ctx, &storage.Run{}), storage.ErrInvalidInput)
	})

	t.Run("steps", func(t *testing.T) {
		run, records := Fixture(t, "run-steps", 6, 4)
		require.NoError(t, store.CreateRun(ctx, run))

		require.NoError(t, store.AppendSteps(ctx, run.ID, records[:4]))
		require.NoError(t, store.AppendSteps(ctx, run.ID, records[4:]))
		require.NoError(t, store.AppendSteps(ctx, run.ID, nil))

		models, err := store.ModelSeries(ctx, run.ID)
		require.NoError(t, err)
		require.Len(t, models, len(records))
		for i, m := range models {
			require.Equal(t, records[i].Model, m)
		}

		series, err := store.AgentSeries(ctx, run.ID, 2)
		require.NoError(t, err)
		require.Len(t, series, len(records))
		for i, a := range series {
			require.Equal(t, records[i].Agents[2], a)
		}

		empty, err := store.AgentSeries(ctx, run.ID, 99)
		require.NoError(t, err)
		require.Empty(t, empty)
	})

	t.Run("duplicate step rejects whole batch", func(t *testing.T) {
		run, records := Fixture(t, "run-dup", 4, 2)
		require.NoError(t, store.CreateRun(ctx, run))
		require.NoError(t, store.AppendSteps(ctx, run.ID, records[:2]))

		err := store.AppendSteps(ctx, run.ID, records[1:])
		require.ErrorIs(t, err, storage.ErrDuplicateKey)

		err = store.AppendSteps(ctx, run.ID, []*engine.StepRecord{records[2], records[2]})
		require.ErrorIs(t, err, storage.ErrDuplicateKey)

		models, err := store.ModelSeries(ctx, run.ID)
		require.NoError(t, err)
		require.Len(t, models, 2)
	})

	t.Run("unknown run", func(t *testing.T) {
		_, records := Fixture(t, "run-unknown", 2, 2)
		require.ErrorIs(t, store.AppendSteps(ctx, "run-unknown", records), storage.ErrNotFound)

		_, err := store.ModelSeries(ctx, "run-unknown")
		require.ErrorIs(t, err, storage.ErrNotFound)

		_, err = store.AgentSeries(ctx, "run-unknown", 0)
		require.ErrorIs(t, err, storage.ErrNotFound)
	})
}

// RetryAfterFailedWrite appends a batch while fail is in effect, so the
// backend errors after some of the batch may have been written, then
// retries it after restore. The retry must succeed and every step must read
// back exactly once.
func RetryAfterFailedWrite(t *testing.T, store storage.RecordStore, fail, restore func(t *testing.T)) {
	ctx := context.Background()

	run, records := Fixture(t, "run-retry", 3, 2)
	require.NoError(t, store.CreateRun(ctx, run))

	fail(t)
	require.Error(t, store.AppendSteps(ctx, run.ID, records))

	models, err := store.ModelSeries(ctx, run.ID)
	require.NoError(t, err)
	require.Empty(t, models)

	series, err := store.AgentSeries(ctx, run.ID, 0)
	require.NoError(t, err)
	require.Empty(t, series, "agent rows of an unwritten step must not be visible")

	restore(t)
	require.NoError(t, store.AppendSteps(ctx, run.ID, records))

	models, err = store.ModelSeries(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, models, len(records))

	for agentID := range records[0].Agents {
		series, err := store.AgentSeries(ctx, run.ID, agentID)
		require.NoError(t, err)
		require.Len(t, series, len(records), "agent %d", agentID)
		for i, a := range series {
			require.Equal(t, records[i].Agents[agentID], a)
		}
	}

	require.ErrorIs(t, store.AppendSteps(ctx, run.ID, records), storage.ErrDuplicateKey)
}
