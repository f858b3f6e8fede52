package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// ringTopology links each node to its two neighbors on a cycle.
type ringTopology int

func (r ringTopology) Size() int { return int(r) }

func (r ringTopology) Neighbors(id int) []int {
	n := int(r)
	if n < 2 {
		return nil
	}
	return []int{(id + n - 1) % n, (id + 1) % n}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Steps = 60
	cfg.Agents = 20
	cfg.NonRandom = 0.8
	cfg.Gamma = 6
	return cfg
}

func newTestSimulation(t *testing.T, cfg Config, seed int64, sink Sink) *Simulation {
	t.Helper()
	sim, err := NewSimulation(cfg, ringTopology(cfg.NonRandomCount()), NewRandomSource(seed), sink)
	require.NoError(t, err)
	return sim
}

func TestInitialPopulationSplit(t *testing.T) {
	cfg := testConfig()
	sim := newTestSimulation(t, cfg, 1, nil)

	counts := map[Strategy]int{}
	for _, tr := range sim.Traders() {
		counts[tr.TypeAt(0)]++
		require.GreaterOrEqual(t, tr.Horizon(), 2)
		require.LessOrEqual(t, tr.Horizon(), cfg.Gamma)
	}
	require.Equal(t, 8, counts[StrategyOptimist])
	require.Equal(t, 8, counts[StrategyPessimist])
	require.Equal(t, 4, counts[StrategyRandom])
	require.Equal(t, 16, cfg.NonRandomCount())
}

func TestPriceHistoryGrowsOnePerTick(t *testing.T) {
	sim := newTestSimulation(t, testConfig(), 7, nil)
	ctx := context.Background()

	for !sim.Finished() {
		rec, err := sim.Step(ctx)
		require.NoError(t, err)
		require.Equal(t, rec.Model.Step+2, sim.Market().Len())
		require.Equal(t, sim.Market().CurrentPrice(), rec.Model.Price)
	}
}

func TestStepPastEndReturnsErrFinished(t *testing.T) {
	cfg := testConfig()
	cfg.Steps = 2
	sim := newTestSimulation(t, cfg, 1, nil)

	require.NoError(t, sim.Run(context.Background()))
	_, err := sim.Step(context.Background())
	require.ErrorIs(t, err, ErrFinished)
}

func TestRunHonorsCancellation(t *testing.T) {
	sim := newTestSimulation(t, testConfig(), 1, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, sim.Run(ctx), context.Canceled)
	require.Zero(t, sim.Tick())
}

func TestTickZeroHasNoReturnsOrSwitches(t *testing.T) {
	sim := newTestSimulation(t, testConfig(), 3, nil)

	rec, err := sim.Step(context.Background())
	require.NoError(t, err)
	require.Zero(t, rec.Model.Switches)
	for _, a := range rec.Agents {
		require.Zero(t, a.Return)
		require.Zero(t, a.Fitness)
		require.Zero(t, a.SwitchProb)
		require.Zero(t, a.SwitchDraw)
	}
}

func TestSameSeedSamePrices(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		cfg := DefaultConfig()
		cfg.Steps = rapid.IntRange(1, 40).Draw(t, "steps")
		cfg.Agents = rapid.IntRange(1, 30).Draw(t, "agents")
		cfg.NonRandom = rapid.Float64Range(0, 1).Draw(t, "non_random")
		cfg.Gamma = rapid.IntRange(2, 10).Draw(t, "gamma")
		cfg.Convergence = rapid.Bool().Draw(t, "convergence")
		seed := rapid.Int64().Draw(t, "seed")

		run := func() []float64 {
			sim, err := NewSimulation(cfg, ringTopology(cfg.NonRandomCount()), NewRandomSource(seed), nil)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if err := sim.Run(context.Background()); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			return sim.Market().Prices()
		}

		a, b := run(), run()
		if len(a) != cfg.Steps+1 {
			t.Fatalf("expected %d prices, got %d", cfg.Steps+1, len(a))
		}
		for i := range a {
			if a[i] != b[i] {
				t.Fatalf("prices diverge at %d: %v != %v", i, a[i], b[i])
			}
		}
	})
}

func TestRandomAgentsKeepTheirType(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		cfg := DefaultConfig()
		cfg.Steps = rapid.IntRange(2, 40).Draw(t, "steps")
		cfg.Agents = rapid.IntRange(1, 30).Draw(t, "agents")
		cfg.NonRandom = rapid.Float64Range(0, 1).Draw(t, "non_random")
		cfg.Gamma = 4

		sim, err := NewSimulation(cfg, ringTopology(cfg.NonRandomCount()), NewRandomSource(rapid.Int64().Draw(t, "seed")), nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for !sim.Finished() {
			rec, err := sim.Step(context.Background())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			for _, a := range rec.Agents {
				if a.SwitchProb < 0 || a.SwitchProb > 1 {
					t.Fatalf("agent %d tick %d: switch probability %v", a.AgentID, a.Step, a.SwitchProb)
				}
			}
		}

		for _, tr := range sim.Traders() {
			if !tr.IsRandom() {
				continue
			}
			for tick := 0; tick < cfg.Steps; tick++ {
				if tr.TypeAt(tick) != StrategyRandom {
					t.Fatalf("random agent %d became %s at tick %d", tr.ID(), tr.TypeAt(tick), tick)
				}
			}
		}
	})
}

func TestIsolatedAgentsNeverSwitch(t *testing.T) {
	cfg := testConfig()
	cfg.NonRandom = 1
	sim, err := NewSimulation(cfg, nil, NewRandomSource(11), nil)
	require.NoError(t, err)
	require.NoError(t, sim.Run(context.Background()))

	for _, tr := range sim.Traders() {
		for tick := 1; tick < cfg.Steps; tick++ {
			require.Equal(t, tr.TypeAt(0), tr.TypeAt(tick), "agent %d switched at tick %d", tr.ID(), tick)
		}
		opt, pess := tr.Means()
		require.Zero(t, opt)
		require.Zero(t, pess)
	}
}

// Every agent must see the same between-phase snapshot: switching reads only
// the previous tick, and the neighbor means read the fitness and type every
// neighbor ends this tick with, whatever order agents were updated in.
func TestStepUsesPhaseSnapshots(t *testing.T) {
	cfg := testConfig()
	sim := newTestSimulation(t, cfg, 11, nil)
	ctx := context.Background()

	prev, err := sim.Step(ctx)
	require.NoError(t, err)

	neighborSwitched := 0
	for !sim.Finished() {
		rec, err := sim.Step(ctx)
		require.NoError(t, err)

		for _, tr := range sim.Traders() {
			id := tr.ID()
			before, after := prev.Agents[id], rec.Agents[id]
			neighbors := tr.Neighbors()

			if tr.IsRandom() || len(neighbors) == 0 {
				require.Equal(t, before.OptimistMean, after.OptimistMean)
				require.Equal(t, before.PessimistMean, after.PessimistMean)
				continue
			}

			// Switch phase: own-type mean folded with last tick's fitness.
			opt, pess := before.OptimistMean, before.PessimistMean
			switch before.Type {
			case StrategyOptimist:
				opt = (before.Fitness + opt) / 2
			case StrategyPessimist:
				pess = (before.Fitness + pess) / 2
			}
			require.InDelta(t, logistic(cfg.Rho*(opt-pess)), after.SwitchProb, 1e-12,
				"agent %d tick %d switch probability", id, rec.Model.Step)

			// Neighbor phase: this tick's fitness grouped by this tick's type.
			var optSum, pessSum float64
			var optN, pessN int
			for _, n := range neighbors {
				peer := rec.Agents[n]
				if peer.Switched {
					neighborSwitched++
				}
				switch peer.Type {
				case StrategyOptimist:
					optSum += peer.Fitness
					optN++
				case StrategyPessimist:
					pessSum += peer.Fitness
					pessN++
				}
			}
			if optN > 0 {
				opt = (optSum/float64(optN) + opt) / 2
			}
			if pessN > 0 {
				pess = (pessSum/float64(pessN) + pess) / 2
			}
			require.InDelta(t, opt, after.OptimistMean, 1e-12, "agent %d tick %d optimist mean", id, rec.Model.Step)
			require.InDelta(t, pess, after.PessimistMean, 1e-12, "agent %d tick %d pessimist mean", id, rec.Model.Step)
		}
		prev = rec
	}

	require.Positive(t, neighborSwitched, "no neighbor ever switched; the run does not exercise the snapshot")
}

func TestSinkReceivesEveryTickInOrder(t *testing.T) {
	var steps []int
	var counted int
	sink := MultiSink(
		SinkFunc(func(_ context.Context, rec *StepRecord) error {
			steps = append(steps, rec.Model.Step)
			return nil
		}),
		nil,
		SinkFunc(func(_ context.Context, rec *StepRecord) error {
			counted += rec.Model.Optimists + rec.Model.Pessimists + rec.Model.Randoms
			return nil
		}),
	)

	cfg := testConfig()
	cfg.Steps = 5
	sim := newTestSimulation(t, cfg, 2, sink)
	require.NoError(t, sim.Run(context.Background()))

	require.Equal(t, []int{0, 1, 2, 3, 4}, steps)
	require.Equal(t, cfg.Steps*cfg.Agents, counted)
}

func TestSinkErrorStopsRun(t *testing.T) {
	boom := errors.New("boom")
	sink := SinkFunc(func(_ context.Context, rec *StepRecord) error {
		if rec.Model.Step == 2 {
			return boom
		}
		return nil
	})

	sim := newTestSimulation(t, testConfig(), 2, sink)
	err := sim.Run(context.Background())
	require.ErrorIs(t, err, boom)
	require.Equal(t, 3, sim.Tick())
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "zero steps", mutate: func(c *Config) { c.Steps = 0 }},
		{name: "negative agents", mutate: func(c *Config) { c.Agents = -1 }},
		{name: "non random above one", mutate: func(c *Config) { c.NonRandom = 1.5 }},
		{name: "negative alpha", mutate: func(c *Config) { c.Alpha = -0.1 }},
		{name: "negative beta", mutate: func(c *Config) { c.Beta = -1 }},
		{name: "gamma below two", mutate: func(c *Config) { c.Gamma = 1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			_, err := NewSimulation(cfg, nil, NewRandomSource(1), nil)
			require.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestTopologySizeMustMatchNonRandomAgents(t *testing.T) {
	cfg := testConfig()
	_, err := NewSimulation(cfg, ringTopology(cfg.Agents), NewRandomSource(1), nil)
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestStrategyTextRoundTrip(t *testing.T) {
	for _, s := range []Strategy{StrategyOptimist, StrategyPessimist, StrategyRandom} {
		text, err := s.MarshalText()
		require.NoError(t, err)

		var back Strategy
		require.NoError(t, back.UnmarshalText(text))
		require.Equal(t, s, back)
	}

	_, err := ParseAction("hold")
	require.Error(t, err)
}
