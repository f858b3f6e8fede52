// Package cli implements the herdmarket command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zappabad/herdmarket/internal/config"
	"github.com/zappabad/herdmarket/internal/logger"
)

// Version is stamped at build time with -ldflags "-X .../internal/cli.Version=...".
var Version = "dev"

type rootOptions struct {
	configPath string
	logLevel   string
	logFormat  string
}

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "herdmarket",
		Short: "herdmarket - agent-based herding market simulator",
		Long: `herdmarket simulates a single-asset market of optimist, pessimist and random
traders who imitate the best performing strategy among their network neighbors.
Runs can be recorded, streamed over WebSocket, watched live in the terminal and
summarized into reports.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(newRunCmd(opts))
	rootCmd.AddCommand(newServeCmd(opts))
	rootCmd.AddCommand(newTUICmd(opts))
	rootCmd.AddCommand(newReportCmd(opts))
	rootCmd.AddCommand(newRunsCmd(opts))
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newConfigCmd(opts))
	rootCmd.AddCommand(newVersionCmd())

	// Global flags
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "Log format (json, text)")

	return rootCmd
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// load reads the configuration, applies the global flags and points the
// logger at logOut.
func (o *rootOptions) load(logOut io.Writer) (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	if o.logFormat != "" {
		cfg.Logging.Format = o.logFormat
	}
	logger.InitWriter(logOut, cfg.Logging.Level, cfg.Logging.Format)
	return cfg, nil
}

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

// simulationFlags are the run overrides shared by run, serve and tui.
type simulationFlags struct {
	steps    int
	agents   int
	seed     int64
	topology string
	storage  string
	dsn      string
}

func (f *simulationFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.steps, "steps", 0, "Number of ticks to simulate")
	cmd.Flags().IntVar(&f.agents, "agents", 0, "Number of agents")
	cmd.Flags().Int64Var(&f.seed, "seed", 0, "Random seed (0 derives one from the clock)")
	cmd.Flags().StringVar(&f.topology, "topology", "", "Network kind (regular, random, scalefree, smallworld, barabasi, caveman, none)")
	cmd.Flags().StringVar(&f.storage, "storage", "", "Storage kind (none, memory, csv, sqlite, postgres, clickhouse)")
	cmd.Flags().StringVar(&f.dsn, "dsn", "", "Storage location: directory, file path or database URL")
}

// apply copies the flags the user set onto cfg.
func (f *simulationFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("steps") {
		cfg.Simulation.Steps = f.steps
	}
	if flags.Changed("agents") {
		cfg.Simulation.Agents = f.agents
	}
	if flags.Changed("seed") {
		cfg.Simulation.Seed = f.seed
	}
	if flags.Changed("topology") {
		cfg.Network.Kind = f.topology
	}
	if flags.Changed("storage") {
		cfg.Storage.Kind = f.storage
	}
	if flags.Changed("dsn") {
		cfg.Storage.DSN = f.dsn
	}
}
