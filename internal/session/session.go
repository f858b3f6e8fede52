// Package session owns every subsystem of one simulation run and manages
// their lifecycle.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/zappabad/herdmarket/internal/config"
	"github.com/zappabad/herdmarket/internal/engine"
	feedservice "github.com/zappabad/herdmarket/internal/feed/service"
	"github.com/zappabad/herdmarket/internal/logger"
	"github.com/zappabad/herdmarket/internal/metrics"
	"github.com/zappabad/herdmarket/internal/network"
	"github.com/zappabad/herdmarket/internal/recorder"
	"github.com/zappabad/herdmarket/internal/reporting"
	"github.com/zappabad/herdmarket/internal/storage"
	"github.com/zappabad/herdmarket/internal/storage/backend"
)

// Options select the optional subsystems.
type Options struct {
	// Feed enables the in-process step feed for live viewers.
	Feed bool
	// Metrics registers Prometheus collectors on a fresh registry.
	Metrics bool
	// Sinks receive every step after the built-in ones.
	Sinks []engine.Sink
	// Now defaults to time.Now.
	Now func() time.Time
}

// Session wires configuration, network, simulation and sinks together.
type Session struct {
	RunID  string
	Seed   int64
	Config *config.Config

	Network    *network.SocialNetwork
	Simulation *engine.Simulation
	Feed       *feedservice.FeedService
	Metrics    *metrics.Metrics
	Registry   *prometheus.Registry
	Store      storage.RecordStore
	Recorder   *recorder.Recorder

	mu     sync.Mutex
	models []engine.ModelRecord
	closed bool
}

// New validates cfg and builds the run. With storage configured the run row
// is created before the first tick.
func New(ctx context.Context, cfg *config.Config, opts Options) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &Session{
		RunID:  uuid.NewString(),
		Seed:   cfg.Simulation.Seed,
		Config: cfg,
	}
	if s.Seed == 0 {
		s.Seed = opts.Now().UnixNano()
	}

	simCfg := cfg.Engine()
	rng := engine.NewRandomSource(s.Seed)

	// The network consumes draws first so a seed reproduces graph and run.
	net, err := network.Build(cfg.Network, simCfg.NonRandomCount(), rng)
	if err != nil {
		return nil, fmt.Errorf("build network: %w", err)
	}
	s.Network = net

	store, err := backend.Open(ctx, cfg.Storage.Kind, cfg.Storage.DSN)
	if err != nil {
		return nil, err
	}
	s.Store = store

	var sinks []engine.Sink
	sinks = append(sinks, engine.SinkFunc(s.collect))

	if store != nil {
		run, err := s.runRow(opts.Now())
		if err == nil {
			err = store.CreateRun(ctx, run)
		}
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("create run: %w", err)
		}
		s.Recorder = recorder.New(store, s.RunID, recorder.Config{BatchSize: cfg.Storage.BatchSize})
		sinks = append(sinks, s.Recorder)
	}

	if opts.Metrics {
		s.Registry = prometheus.NewRegistry()
		s.Metrics = metrics.New(s.Registry)
		sinks = append(sinks, s.Metrics)
	}

	if opts.Feed {
		s.Feed = feedservice.NewFeedService(feedservice.Config{
			TapeSize:            cfg.Feed.TapeSize,
			EventBuffer:         cfg.Feed.EventBuffer,
			ExternalEventBuffer: cfg.Feed.EventBuffer,
			DropExternalEvents:  cfg.Feed.DropEvents,
		})
		sinks = append(sinks, s.Feed)
	}

	sinks = append(sinks, opts.Sinks...)

	sim, err := engine.NewSimulation(simCfg, net, rng, engine.MultiSink(sinks...))
	if err != nil {
		s.Close()
		return nil, err
	}
	s.Simulation = sim

	logger.Info("Session: run %s seed %d, %d agents (%d networked, %d edges, %s), %d steps",
		s.RunID, s.Seed, simCfg.Agents, net.Size(), net.EdgeCount(), cfg.Network.Kind, simCfg.Steps)
	return s, nil
}

func (s *Session) runRow(now time.Time) (*storage.Run, error) {
	snapshot := *s.Config
	snapshot.Simulation.Seed = s.Seed
	snapshot.Storage.DSN = ""

	raw, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return &storage.Run{
		ID:           s.RunID,
		StartedAt:    now.UTC(),
		Seed:         s.Seed,
		InitialPrice: s.Config.Simulation.Price,
		Steps:        s.Config.Simulation.Steps,
		Agents:       s.Config.Simulation.Agents,
		Config:       raw,
	}, nil
}

func (s *Session) collect(_ context.Context, rec *engine.StepRecord) error {
	s.mu.Lock()
	s.models = append(s.models, rec.Model)
	s.mu.Unlock()
	return nil
}

// Run executes the remaining ticks and flushes the recorder.
func (s *Session) Run(ctx context.Context) error {
	start := time.Now()
	runErr := s.Simulation.Run(ctx)
	flushErr := s.Flush(ctx)
	if err := errors.Join(runErr, flushErr); err != nil {
		return err
	}
	logger.Info("Session: run %s finished %d steps in %s", s.RunID, s.Simulation.Tick(), time.Since(start))
	return nil
}

// Flush writes pending records to storage.
func (s *Session) Flush(ctx context.Context) error {
	if s.Recorder == nil {
		return nil
	}
	// ctx may already be canceled at shutdown; the tail still gets written.
	return s.Recorder.Flush(context.WithoutCancel(ctx))
}

// Models returns the model records produced so far.
func (s *Session) Models() []engine.ModelRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]engine.ModelRecord, len(s.models))
	copy(out, s.models)
	return out
}

// Summary summarizes the ticks run so far.
func (s *Session) Summary() reporting.Summary {
	return reporting.Summarize(s.RunID, s.Config.Simulation.Price, s.Models())
}

// Close shuts down all subsystems in reverse dependency order.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if s.Feed != nil {
		s.Feed.Close()
	}
	if s.Store != nil {
		return s.Store.Close()
	}
	return nil
}
