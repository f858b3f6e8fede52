package session

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zappabad/herdmarket/internal/config"
	"github.com/zappabad/herdmarket/internal/engine"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Simulation.Steps = 20
	cfg.Simulation.Agents = 12
	cfg.Simulation.Seed = 7
	cfg.Network.Kind = "regular"
	cfg.Network.Degree = 2
	return cfg
}

var fixedNow = func() time.Time { return time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC) }

func TestSessionRecordsRun(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.Storage.Kind = "memory"
	cfg.Storage.BatchSize = 8

	s, err := New(ctx, cfg, Options{Now: fixedNow})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Run(ctx))
	assert.True(t, s.Simulation.Finished())
	assert.Equal(t, 20, s.Recorder.Written())

	run, err := s.Store.GetRun(ctx, s.RunID)
	require.NoError(t, err)
	assert.Equal(t, int64(7), run.Seed)
	assert.True(t, run.StartedAt.Equal(fixedNow()))

	var snapshot config.Config
	require.NoError(t, json.Unmarshal(run.Config, &snapshot))
	assert.Equal(t, 20, snapshot.Simulation.Steps)
	assert.Empty(t, snapshot.Storage.DSN)

	models, err := s.Store.ModelSeries(ctx, s.RunID)
	require.NoError(t, err)
	assert.Equal(t, s.Models(), models)

	summary := s.Summary()
	assert.Equal(t, 20, summary.Steps)
	assert.Equal(t, s.RunID, summary.RunID)
}

func TestSessionDeterministic(t *testing.T) {
	ctx := context.Background()

	run := func() []engine.ModelRecord {
		s, err := New(ctx, testConfig(), Options{})
		require.NoError(t, err)
		defer s.Close()
		require.NoError(t, s.Run(ctx))
		return s.Models()
	}

	assert.Equal(t, run(), run())
}

func TestSessionFeedAndMetrics(t *testing.T) {
	ctx := context.Background()
	s, err := New(ctx, testConfig(), Options{Feed: true, Metrics: true})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Run(ctx))
	require.Eventually(t, func() bool { return s.Feed.View().Total() == 20 }, time.Second, time.Millisecond)

	families, err := s.Registry.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestSessionExtraSinks(t *testing.T) {
	ctx := context.Background()
	var steps []int
	sink := engine.SinkFunc(func(_ context.Context, rec *engine.StepRecord) error {
		steps = append(steps, rec.Model.Step)
		return nil
	})

	s, err := New(ctx, testConfig(), Options{Sinks: []engine.Sink{sink}})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Run(ctx))
	require.Len(t, steps, 20)
	assert.Equal(t, 19, steps[19])
}

func TestSessionRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Network.Kind = "hypercube"

	_, err := New(context.Background(), cfg, Options{})
	require.Error(t, err)
}

func TestSessionCloseIsIdempotent(t *testing.T) {
	s, err := New(context.Background(), testConfig(), Options{Feed: true})
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}
