package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/zappabad/herdmarket/internal/runner"
	"github.com/zappabad/herdmarket/internal/session"
	"github.com/zappabad/herdmarket/tui"
)

// newTUICmd creates the tui command
func newTUICmd(opts *rootOptions) *cobra.Command {
	var (
		flags       simulationFlags
		logFile     string
		interval    time.Duration
		candleTicks int
		paused      bool
	)

	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Watch a simulation live in the terminal",
		Long: `Run a paced simulation behind a terminal dashboard with the price chart, the
population split, every agent's state and the stream of strategy switches.
Keys: space pauses, tab cycles panels, q quits.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// The dashboard owns the terminal; logs go to a file or nowhere.
			var logOut io.Writer = io.Discard
			if logFile != "" {
				f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
				if err != nil {
					return fmt.Errorf("open log file: %w", err)
				}
				defer f.Close()
				logOut = f
			}

			cfg, err := opts.load(logOut)
			if err != nil {
				return err
			}
			flags.apply(cmd, cfg)
			if cmd.Flags().Changed("interval") {
				cfg.TUI.TickInterval = interval
			}
			if cmd.Flags().Changed("candle-ticks") {
				cfg.TUI.CandleTicks = candleTicks
			}

			ctx, stop := signalContext(cmd)
			defer stop()

			sess, err := session.New(ctx, cfg, session.Options{Feed: true})
			if err != nil {
				return err
			}
			defer closeSession(sess)

			r := runner.NewRunner(ctx, runner.Config{
				TickInterval: cfg.TUI.TickInterval,
				StepsPerTick: 1,
				StartPaused:  paused,
			}, sess.Simulation)

			model := tui.NewModel(sess.Feed, r, tui.Options{
				RunID:       sess.RunID,
				CandleTicks: cfg.TUI.CandleTicks,
			})
			p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
			_, progErr := p.Run()

			r.Close()
			if err := sess.Flush(ctx); err != nil {
				return err
			}
			if progErr != nil && ctx.Err() == nil {
				return fmt.Errorf("error running TUI: %w", progErr)
			}
			if err := r.Err(); err != nil {
				return fmt.Errorf("run %s: %w", sess.RunID, err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderSummary(sess.Summary()))
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&logFile, "log-file", "", "Append logs to this file")
	cmd.Flags().DurationVar(&interval, "interval", 0, "Delay between ticks (default from tui.tick_interval)")
	cmd.Flags().IntVar(&candleTicks, "candle-ticks", 0, "Ticks per chart candle (default from tui.candle_ticks)")
	cmd.Flags().BoolVar(&paused, "paused", false, "Start paused")

	return cmd
}
