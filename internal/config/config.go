package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/zappabad/herdmarket/internal/engine"
	"github.com/zappabad/herdmarket/internal/network"
)

// EnvPrefix prefixes every environment override, e.g. HERDMARKET_SIMULATION_STEPS.
const EnvPrefix = "HERDMARKET"

// Config represents the complete application configuration
type Config struct {
	Simulation SimulationConfig `mapstructure:"simulation" json:"simulation"`
	Network    network.Spec     `mapstructure:"network" json:"network"`
	Storage    StorageConfig    `mapstructure:"storage" json:"storage"`
	Feed       FeedConfig       `mapstructure:"feed" json:"feed"`
	Server     ServerConfig     `mapstructure:"server" json:"server"`
	TUI        TUIConfig        `mapstructure:"tui" json:"tui"`
	Logging    LoggingConfig    `mapstructure:"logging" json:"logging"`
}

// SimulationConfig holds the model parameters
type SimulationConfig struct {
	Steps       int     `mapstructure:"steps" json:"steps"`
	Agents      int     `mapstructure:"agents" json:"agents"`
	NonRandom   float64 `mapstructure:"non_random" json:"non_random"`
	Price       float64 `mapstructure:"price" json:"price"`
	Alpha       float64 `mapstructure:"alpha" json:"alpha"`
	Beta        float64 `mapstructure:"beta" json:"beta"`
	Gamma       int     `mapstructure:"gamma" json:"gamma"`
	Rho         float64 `mapstructure:"rho" json:"rho"`
	Convergence bool    `mapstructure:"convergence" json:"convergence"`
	Noise       bool    `mapstructure:"noise" json:"noise"`
	// Seed 0 picks a seed from the clock at session start.
	Seed int64 `mapstructure:"seed" json:"seed"`
}

// StorageConfig selects where step records are persisted
type StorageConfig struct {
	Kind      string `mapstructure:"kind" json:"kind"`
	DSN       string `mapstructure:"dsn" json:"dsn"`
	BatchSize int    `mapstructure:"batch_size" json:"batch_size"`
}

// FeedConfig sizes the in-process step feed
type FeedConfig struct {
	TapeSize    int  `mapstructure:"tape_size" json:"tape_size"`
	EventBuffer int  `mapstructure:"event_buffer" json:"event_buffer"`
	DropEvents  bool `mapstructure:"drop_events" json:"drop_events"`
}

// ServerConfig holds the streaming server configuration
type ServerConfig struct {
	Addr         string        `mapstructure:"addr" json:"addr"`
	TickInterval time.Duration `mapstructure:"tick_interval" json:"tick_interval"`
}

// TUIConfig holds terminal dashboard configuration
type TUIConfig struct {
	TickInterval time.Duration `mapstructure:"tick_interval" json:"tick_interval"`
	CandleTicks  int           `mapstructure:"candle_ticks" json:"candle_ticks"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level" json:"level"`
	Format string `mapstructure:"format" json:"format"`
}

// Load reads configuration from defaults, an optional file, a .env file and
// environment variables, in increasing precedence. An empty path skips the
// config file.
func Load(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Default returns the configuration Load produces with no file and no environment.
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	// defaults always decode
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	sim := engine.DefaultConfig()
	v.SetDefault("simulation.steps", sim.Steps)
	v.SetDefault("simulation.agents", sim.Agents)
	v.SetDefault("simulation.non_random", sim.NonRandom)
	v.SetDefault("simulation.price", sim.InitialPrice)
	v.SetDefault("simulation.alpha", sim.Alpha)
	v.SetDefault("simulation.beta", sim.Beta)
	v.SetDefault("simulation.gamma", sim.Gamma)
	v.SetDefault("simulation.rho", sim.Rho)
	v.SetDefault("simulation.convergence", sim.Convergence)
	v.SetDefault("simulation.noise", sim.Noise)
	v.SetDefault("simulation.seed", 0)

	net := network.DefaultSpec()
	v.SetDefault("network.kind", net.Kind)
	v.SetDefault("network.degree", net.Degree)
	v.SetDefault("network.edges", net.Edges)
	v.SetDefault("network.triangle_prob", net.TriangleProb)
	v.SetDefault("network.clique_size", net.CliqueSize)

	v.SetDefault("storage.kind", "none")
	v.SetDefault("storage.dsn", "")
	v.SetDefault("storage.batch_size", 50)

	v.SetDefault("feed.tape_size", 512)
	v.SetDefault("feed.event_buffer", 256)
	v.SetDefault("feed.drop_events", true)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.tick_interval", "100ms")

	v.SetDefault("tui.tick_interval", "150ms")
	v.SetDefault("tui.candle_ticks", 5)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Engine converts the simulation section to the engine's config.
func (c *Config) Engine() engine.Config {
	return engine.Config{
		Steps:        c.Simulation.Steps,
		Agents:       c.Simulation.Agents,
		NonRandom:    c.Simulation.NonRandom,
		InitialPrice: c.Simulation.Price,
		Alpha:        c.Simulation.Alpha,
		Beta:         c.Simulation.Beta,
		Gamma:        c.Simulation.Gamma,
		Rho:          c.Simulation.Rho,
		Convergence:  c.Simulation.Convergence,
		Noise:        c.Simulation.Noise,
	}
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	sim := c.Engine()
	if err := sim.Validate(); err != nil {
		return err
	}

	if err := c.Network.Validate(sim.NonRandomCount()); err != nil {
		if errors.Is(err, network.ErrUnknownTopology) {
			return err
		}
		return fmt.Errorf("network: %w", err)
	}

	validStorage := map[string]bool{"none": true, "memory": true, "csv": true, "sqlite": true, "postgres": true, "clickhouse": true}
	if !validStorage[c.Storage.Kind] {
		return fmt.Errorf("storage.kind must be one of: none, memory, csv, sqlite, postgres, clickhouse")
	}
	switch c.Storage.Kind {
	case "csv", "sqlite", "postgres", "clickhouse":
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for storage.kind %s", c.Storage.Kind)
		}
	}
	if c.Storage.BatchSize < 1 {
		return fmt.Errorf("storage.batch_size must be at least 1")
	}

	if c.Feed.TapeSize < 1 {
		return fmt.Errorf("feed.tape_size must be at least 1")
	}
	if c.Feed.EventBuffer < 1 {
		return fmt.Errorf("feed.event_buffer must be at least 1")
	}

	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Server.TickInterval < 0 {
		return fmt.Errorf("server.tick_interval must not be negative")
	}
	if c.TUI.TickInterval < 0 {
		return fmt.Errorf("tui.tick_interval must not be negative")
	}
	if c.TUI.CandleTicks < 1 {
		return fmt.Errorf("tui.candle_ticks must be at least 1")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}
