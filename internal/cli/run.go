package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/zappabad/herdmarket/internal/config"
	"github.com/zappabad/herdmarket/internal/logger"
	"github.com/zappabad/herdmarket/internal/reporting"
	"github.com/zappabad/herdmarket/internal/session"
)

// newRunCmd creates the run command
func newRunCmd(opts *rootOptions) *cobra.Command {
	var (
		flags      simulationFlags
		reportPath string
		csvPath    string
		quiet      bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a simulation to completion",
		Long: `Run a simulation headless, record it to the configured storage and print a
summary. Example: herdmarket run --steps 500 --agents 200 --seed 42 --report run.md`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			flags.apply(cmd, cfg)
			return runSimulation(cmd, cfg, reportPath, csvPath, quiet)
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&reportPath, "report", "", "Write a Markdown summary to this file")
	cmd.Flags().StringVar(&csvPath, "csv", "", "Write the model series as CSV to this file")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Do not print the summary")

	return cmd
}

// runSimulation executes the main simulation workflow
func runSimulation(cmd *cobra.Command, cfg *config.Config, reportPath, csvPath string, quiet bool) error {
	ctx, stop := signalContext(cmd)
	defer stop()

	sess, err := session.New(ctx, cfg, session.Options{})
	if err != nil {
		return err
	}
	defer closeSession(sess)

	if err := sess.Run(ctx); err != nil {
		logger.Error("Run %s failed at tick %d: %v", sess.RunID, sess.Simulation.Tick(), err)
		return fmt.Errorf("run %s: %w", sess.RunID, err)
	}

	summary := sess.Summary()
	if !quiet {
		fmt.Fprintln(cmd.OutOrStdout(), renderSummary(summary))
	}

	if reportPath != "" {
		if err := writeFile(reportPath, summary.WriteMarkdown); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
	}
	if csvPath != "" {
		models := sess.Models()
		err := writeFile(csvPath, func(w io.Writer) error {
			return reporting.WriteModelCSV(w, models)
		})
		if err != nil {
			return fmt.Errorf("write csv: %w", err)
		}
	}
	return nil
}

func closeSession(sess *session.Session) {
	if err := sess.Close(); err != nil {
		logger.Warn("Session: close %s: %v", sess.RunID, err)
	}
}

// writeFile writes through fn to path, or to stdout for "-".
func writeFile(path string, fn func(io.Writer) error) error {
	if path == "-" {
		return fn(os.Stdout)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
