package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/zappabad/herdmarket/internal/config"
	"github.com/zappabad/herdmarket/internal/engine"
	"github.com/zappabad/herdmarket/internal/reporting"
	"github.com/zappabad/herdmarket/internal/storage"
	"github.com/zappabad/herdmarket/internal/storage/backend"
)

// newReportCmd creates the report command
func newReportCmd(opts *rootOptions) *cobra.Command {
	var (
		flags  simulationFlags
		runID  string
		format string
		out    string
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarize a recorded run",
		Long: `Read a recorded run from storage and write its summary as Markdown, or its
model series as CSV. Without --run-id the most recent run is used.
Example: herdmarket report --storage sqlite --dsn runs.db --format md`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			flags.apply(cmd, cfg)

			switch format {
			case "md", "markdown", "csv":
			default:
				return fmt.Errorf("unknown format %q, use md or csv", format)
			}

			store, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			run, models, err := loadRun(cmd.Context(), store, runID)
			if err != nil {
				return err
			}

			write := func(w io.Writer) error {
				if format == "csv" {
					return reporting.WriteModelCSV(w, models)
				}
				return reporting.Summarize(run.ID, run.InitialPrice, models).WriteMarkdown(w)
			}
			if out == "" {
				return write(cmd.OutOrStdout())
			}
			return writeFile(out, write)
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&runID, "run-id", "", "Run to report (default: most recent)")
	cmd.Flags().StringVarP(&format, "format", "f", "md", "Output format (md, csv)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file (default: stdout)")

	return cmd
}

// newRunsCmd creates the runs command
func newRunsCmd(opts *rootOptions) *cobra.Command {
	var flags simulationFlags

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			flags.apply(cmd, cfg)

			store, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.ListRuns(cmd.Context())
			if err != nil {
				return fmt.Errorf("list runs: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderRuns(runs))
			return nil
		},
	}

	flags.register(cmd)
	return cmd
}

// openStore opens the configured store; reading needs a persistent one.
func openStore(ctx context.Context, cfg *config.Config) (storage.RecordStore, error) {
	switch cfg.Storage.Kind {
	case backend.KindNone, backend.KindMemory, "":
		return nil, fmt.Errorf("storage kind %q keeps no runs, use --storage and --dsn", cfg.Storage.Kind)
	}
	return backend.Open(ctx, cfg.Storage.Kind, cfg.Storage.DSN)
}

// loadRun fetches a run and its model series. An empty id picks the newest run.
func loadRun(ctx context.Context, store storage.RecordStore, runID string) (*storage.Run, []engine.ModelRecord, error) {
	var (
		run *storage.Run
		err error
	)
	if runID == "" {
		runs, listErr := store.ListRuns(ctx)
		if listErr != nil {
			return nil, nil, fmt.Errorf("list runs: %w", listErr)
		}
		if len(runs) == 0 {
			return nil, nil, errors.New("no runs recorded")
		}
		run = runs[0]
	} else {
		run, err = store.GetRun(ctx, runID)
		if err != nil {
			return nil, nil, fmt.Errorf("get run %s: %w", runID, err)
		}
	}

	models, err := store.ModelSeries(ctx, run.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("load run %s: %w", run.ID, err)
	}
	return run, models, nil
}
