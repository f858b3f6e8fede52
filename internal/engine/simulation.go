package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/zappabad/herdmarket/internal/logger"
)

var (
	// ErrFinished is returned by Step once every configured tick has run.
	ErrFinished = errors.New("simulation finished")
	// ErrInvalidConfig wraps every configuration rejection.
	ErrInvalidConfig = errors.New("invalid simulation config")
)

// Topology is the read-only social graph over non-random agent ids.
type Topology interface {
	Size() int
	Neighbors(id int) []int
}

// Config holds the run parameters. Agents with id < Agents*NonRandom/2 start
// as optimists, ids below Agents*NonRandom as pessimists, the rest are random.
type Config struct {
	Steps        int
	Agents       int
	NonRandom    float64
	InitialPrice float64
	Alpha        float64
	Beta         float64
	Gamma        int
	Rho          float64
	Convergence  bool
	Noise        bool
}

// DefaultConfig mirrors the defaults of the config layer.
func DefaultConfig() Config {
	return Config{
		Steps:        1000,
		Agents:       100,
		NonRandom:    0.8,
		InitialPrice: 100,
		Alpha:        0.1,
		Beta:         0.5,
		Gamma:        20,
		Rho:          1,
		Noise:        true,
	}
}

func (c Config) Validate() error {
	if c.Steps <= 0 {
		return fmt.Errorf("%w: steps must be positive, got %d", ErrInvalidConfig, c.Steps)
	}
	if c.Agents <= 0 {
		return fmt.Errorf("%w: agents must be positive, got %d", ErrInvalidConfig, c.Agents)
	}
	if c.NonRandom < 0 || c.NonRandom > 1 {
		return fmt.Errorf("%w: non_random must be in [0, 1], got %v", ErrInvalidConfig, c.NonRandom)
	}
	if !finite(c.InitialPrice) {
		return fmt.Errorf("%w: initial price must be finite", ErrInvalidConfig)
	}
	if c.Alpha < 0 || !finite(c.Alpha) {
		return fmt.Errorf("%w: alpha must be a finite value >= 0, got %v", ErrInvalidConfig, c.Alpha)
	}
	if c.Beta < 0 || !finite(c.Beta) {
		return fmt.Errorf("%w: beta must be a finite value >= 0, got %v", ErrInvalidConfig, c.Beta)
	}
	if c.Gamma < 2 {
		return fmt.Errorf("%w: gamma must be >= 2, got %d", ErrInvalidConfig, c.Gamma)
	}
	if !finite(c.Rho) {
		return fmt.Errorf("%w: rho must be finite", ErrInvalidConfig)
	}
	return nil
}

// NonRandomCount is the number of agents that take part in the social network.
func (c Config) NonRandomCount() int {
	n := 0
	for id := 0; id < c.Agents; id++ {
		if c.initialStrategy(id) != StrategyRandom {
			n++
		}
	}
	return n
}

func (c Config) initialStrategy(id int) Strategy {
	switch {
	case float64(id) < float64(c.Agents)*c.NonRandom/2:
		return StrategyOptimist
	case float64(id) < float64(c.Agents)*c.NonRandom:
		return StrategyPessimist
	default:
		return StrategyRandom
	}
}

// Simulation drives the tick protocol over the market and every agent.
// It is single-threaded; callers must not step it concurrently.
type Simulation struct {
	cfg     Config
	market  *Market
	traders []*Trader
	topo    Topology
	rng     RandomSource
	sink    Sink
	log     zerolog.Logger

	// peers is the between-phase snapshot agents read from.
	peers []PeerState
	tick  int
}

// NewSimulation creates the market and all agents. Horizons are drawn from
// rng in ascending id order. topo may be nil for an unconnected population;
// otherwise it must cover exactly the non-random agents.
func NewSimulation(cfg Config, topo Topology, rng RandomSource, sink Sink) (*Simulation, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		return nil, fmt.Errorf("%w: random source is required", ErrInvalidConfig)
	}
	if topo != nil && topo.Size() != cfg.NonRandomCount() {
		return nil, fmt.Errorf("%w: network has %d nodes, want %d non-random agents",
			ErrInvalidConfig, topo.Size(), cfg.NonRandomCount())
	}

	market := NewMarket(cfg.InitialPrice, cfg.Alpha, cfg.Noise, rng)

	traders := make([]*Trader, cfg.Agents)
	for id := range traders {
		params := TraderParams{
			Horizon: 2 + rng.Intn(cfg.Gamma-1),
			Beta:    cfg.Beta,
			Rho:     cfg.Rho,
		}
		traders[id] = NewTrader(id, cfg.initialStrategy(id), cfg.Steps, params, market, rng)
	}

	return &Simulation{
		cfg:     cfg,
		market:  market,
		traders: traders,
		topo:    topo,
		rng:     rng,
		sink:    sink,
		log:     logger.Component("engine"),
		peers:   make([]PeerState, cfg.Agents),
	}, nil
}

func (s *Simulation) Config() Config { return s.cfg }

func (s *Simulation) Market() *Market { return s.market }

func (s *Simulation) Traders() []*Trader { return s.traders }

// Tick is the index of the next tick to run.
func (s *Simulation) Tick() int { return s.tick }

func (s *Simulation) Finished() bool { return s.tick >= s.cfg.Steps }

// Step runs one tick and hands its record to the sink. A per-agent numeric
// failure is fatal to the run. A sink failure is returned after the tick
// has completed, together with the record.
func (s *Simulation) Step(ctx context.Context) (*StepRecord, error) {
	if s.Finished() {
		return nil, ErrFinished
	}
	t := s.tick

	if t == 0 {
		for _, tr := range s.traders {
			tr.SnapshotNeighbors(s.topo)
		}
	} else {
		s.snapshotPeers(t - 1)
		for _, tr := range s.traders {
			tr.Switch(t, s.peers, s.cfg.Convergence)
		}
	}

	for _, tr := range s.traders {
		if err := tr.GenerateExpectation(t); err != nil {
			return nil, err
		}
		tr.GenerateAction(t)
		tr.SubmitOrder(t)
	}

	before := s.market.CurrentPrice()
	after := s.market.AdvancePrice()
	if !finite(after) {
		return nil, fmt.Errorf("tick %d: price is %v", t, after)
	}

	if t > 0 {
		for _, tr := range s.traders {
			tr.UpdateReturn(t, after, before)
			if err := tr.GenerateFitness(t); err != nil {
				return nil, err
			}
		}
		s.snapshotPeers(t)
		for _, tr := range s.traders {
			tr.UpdateNeighborMeans(s.peers)
		}
	}

	agents := make([]AgentRecord, len(s.traders))
	for i, tr := range s.traders {
		agents[i] = tr.Record(t)
	}
	bids, offers := s.market.LastOrders()
	rec := newStepRecord(t, after, bids, offers, agents)
	s.tick++

	s.log.Debug().
		Int("tick", t).
		Float64("price", after).
		Int("bids", bids).
		Int("offers", offers).
		Int("optimists", rec.Model.Optimists).
		Int("pessimists", rec.Model.Pessimists).
		Int("switches", rec.Model.Switches).
		Msg("tick complete")

	if s.sink != nil {
		if err := s.sink.Publish(ctx, rec); err != nil {
			return rec, fmt.Errorf("publish tick %d: %w", t, err)
		}
	}
	return rec, nil
}

// Run steps until every tick has run, the context is cancelled, or a tick fails.
func (s *Simulation) Run(ctx context.Context) error {
	for !s.Finished() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := s.Step(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (s *Simulation) snapshotPeers(t int) {
	for i, tr := range s.traders {
		s.peers[i] = tr.peerState(t)
	}
}
