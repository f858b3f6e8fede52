package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/zappabad/herdmarket/internal/logger"
	"github.com/zappabad/herdmarket/internal/runner"
	"github.com/zappabad/herdmarket/internal/server"
	"github.com/zappabad/herdmarket/internal/session"
)

// newServeCmd creates the serve command
func newServeCmd(opts *rootOptions) *cobra.Command {
	var (
		flags    simulationFlags
		addr     string
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a simulation and stream it over HTTP and WebSocket",
		Long: `Run a paced simulation and serve it: /ws streams step records, /api/steps,
/api/switches and /api/summary return recent history, /metrics exposes Prometheus
collectors. The server keeps running after the last tick until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			flags.apply(cmd, cfg)
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
			}
			if cmd.Flags().Changed("interval") {
				cfg.Server.TickInterval = interval
			}

			ctx, stop := signalContext(cmd)
			defer stop()

			sess, err := session.New(ctx, cfg, session.Options{Feed: true, Metrics: true})
			if err != nil {
				return err
			}
			defer closeSession(sess)

			srvCfg := server.DefaultConfig()
			srvCfg.Addr = cfg.Server.Addr
			srv := server.New(srvCfg, sess.Feed, server.Options{
				RunID:        sess.RunID,
				InitialPrice: cfg.Simulation.Price,
				Gatherer:     sess.Registry,
			})

			r := runner.NewRunner(ctx, runner.Config{TickInterval: cfg.Server.TickInterval, StepsPerTick: 1}, sess.Simulation)
			go watchRunner(ctx, r, sess)

			err = srv.ListenAndServe(ctx)
			r.Close()
			if flushErr := sess.Flush(ctx); flushErr != nil {
				logger.Error("Serve: flush run %s: %v", sess.RunID, flushErr)
			}
			if err != nil {
				return err
			}
			if runErr := r.Err(); runErr != nil {
				return fmt.Errorf("run %s: %w", sess.RunID, runErr)
			}
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from server.addr)")
	cmd.Flags().DurationVar(&interval, "interval", 0, "Delay between ticks (default from server.tick_interval)")

	return cmd
}

// watchRunner logs the end of the run and flushes the recorder once the
// simulation finishes while the server keeps serving.
func watchRunner(ctx context.Context, r *runner.Runner, sess *session.Session) {
	select {
	case <-ctx.Done():
		return
	case <-r.Done():
	}

	if err := r.Err(); err != nil {
		logger.Error("Serve: run %s stopped at tick %d: %v", sess.RunID, sess.Simulation.Tick(), err)
		return
	}
	if err := sess.Flush(ctx); err != nil {
		logger.Error("Serve: flush run %s: %v", sess.RunID, err)
		return
	}

	s := sess.Summary()
	logger.Info("Serve: run %s complete, %d steps, final price %.2f, %d switches",
		sess.RunID, s.Steps, s.FinalPrice, s.TotalSwitches)
}
