package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/zappabad/herdmarket/internal/network"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "herdmarket.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAndValidate(t *testing.T) {
	path := writeConfig(t, `
simulation:
  steps: 250
  agents: 40
  non_random: 0.5
  price: 50
  alpha: 0.2
  convergence: true
  seed: 7

network:
  kind: caveman
  clique_size: 5

storage:
  kind: sqlite
  dsn: "./data/runs.db"

server:
  tick_interval: 250ms

logging:
  level: "debug"
  format: "text"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Simulation.Steps != 250 {
		t.Errorf("Unexpected steps: %d", cfg.Simulation.Steps)
	}
	if cfg.Simulation.Price != 50 {
		t.Errorf("Unexpected price: %f", cfg.Simulation.Price)
	}
	if !cfg.Simulation.Convergence {
		t.Errorf("Expected convergence to be enabled")
	}
	if !cfg.Simulation.Noise {
		t.Errorf("Expected noise default to be kept")
	}
	if cfg.Network.Kind != "caveman" || cfg.Network.CliqueSize != 5 {
		t.Errorf("Unexpected network: %+v", cfg.Network)
	}
	if cfg.Server.TickInterval != 250*time.Millisecond {
		t.Errorf("Unexpected tick interval: %v", cfg.Server.TickInterval)
	}
	if cfg.Storage.BatchSize != 50 {
		t.Errorf("Unexpected batch size: %d", cfg.Storage.BatchSize)
	}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	eng := cfg.Engine()
	if eng.Agents != 40 || eng.InitialPrice != 50 || eng.Alpha != 0.2 {
		t.Errorf("Unexpected engine config: %+v", eng)
	}
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := writeConfig(t, "simulation:\n  steps: 10\n")
	t.Setenv("HERDMARKET_SIMULATION_STEPS", "25")
	t.Setenv("HERDMARKET_NETWORK_KIND", "none")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Simulation.Steps != 25 {
		t.Errorf("Expected env override, got %d", cfg.Simulation.Steps)
	}
	if cfg.Network.Kind != "none" {
		t.Errorf("Expected env override, got %q", cfg.Network.Kind)
	}
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
	if cfg.Simulation.Steps != Default().Simulation.Steps {
		t.Errorf("Unexpected steps: %d", cfg.Simulation.Steps)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "zero steps", mutate: func(c *Config) { c.Simulation.Steps = 0 }},
		{name: "zero agents", mutate: func(c *Config) { c.Simulation.Agents = 0 }},
		{name: "storage kind", mutate: func(c *Config) { c.Storage.Kind = "s3" }},
		{name: "missing dsn", mutate: func(c *Config) { c.Storage.Kind = "postgres" }},
		{name: "log level", mutate: func(c *Config) { c.Logging.Level = "trace" }},
		{name: "log format", mutate: func(c *Config) { c.Logging.Format = "xml" }},
		{name: "candle ticks", mutate: func(c *Config) { c.TUI.CandleTicks = 0 }},
		{name: "caveman size", mutate: func(c *Config) {
			c.Network.Kind = "caveman"
			c.Network.CliqueSize = 7
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestValidateUnknownTopology(t *testing.T) {
	cfg := Default()
	cfg.Network.Kind = "torus"
	if err := cfg.Validate(); !errors.Is(err, network.ErrUnknownTopology) {
		t.Fatalf("expected ErrUnknownTopology, got %v", err)
	}
}
