package cli

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vilaca/reciprocity-bot/internal/dashboard"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Once        bool
	SkipInitial bool
	FirstOffset time.Duration
	MetricsAddr string
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the discover, star and sweep loop",
		Long: `Run the automation loop until interrupted.

Each cycle searches for repositories pushed today, stars them, sweeps the
pending engagements and saves the state. Between cycles the bot sleeps
until a random time in the next evening window.

Example:
  reciprocity-bot run
  reciprocity-bot run --once --state ./state.db
  reciprocity-bot run --skip-initial --first-offset -24h --metrics-addr :9090`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBot(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Once, "once", false, "run a single cycle and exit")
	cmd.Flags().BoolVar(&opts.SkipInitial, "skip-initial", false, "sleep until the first window before running")
	cmd.Flags().DurationVar(&opts.FirstOffset, "first-offset", 0, "shift applied to the first wake time only")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "listen address for /healthz, /api/tracked and /metrics")

	return cmd
}

func runBot(cmd *cobra.Command, opts *RunOptions) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("first-offset") {
		cfg.Schedule.FirstOffset = opts.FirstOffset
	}
	if opts.MetricsAddr != "" {
		cfg.Metrics.Addr = opts.MetricsAddr
	}
	if err := cfg.Validate(); err != nil {
		return WrapExitError(ExitConfigError, "invalid configuration", err)
	}

	logger := opts.newLogger(cmd.ErrOrStderr())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, opts.clock(), logger)
	if err != nil {
		return err
	}
	defer a.Close()

	scheduler, err := a.scheduler(opts.SkipInitial)
	if err != nil {
		return WrapExitError(ExitConfigError, "invalid schedule", err)
	}

	if cfg.HasMetrics() {
		listener, err := net.Listen("tcp", cfg.Metrics.Addr)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to listen on "+cfg.Metrics.Addr, err)
		}

		mux := http.NewServeMux()
		dashboard.NewHandler(dashboard.HandlerConfig{
			Set:             a.set,
			GracePeriodDays: cfg.Tracking.GracePeriodDays,
			Metrics:         a.metrics,
			Clock:           a.clock,
			Logger:          logger,
		}).RegisterRoutes(mux)

		serverCtx, stopServer := context.WithCancel(ctx)
		defer stopServer()
		go func() {
			if err := dashboard.Serve(serverCtx, listener, mux, logger); err != nil {
				logger.Error("status server stopped", "error", err)
			}
		}()
	}

	logger.Info("reciprocity bot starting",
		"user", cfg.GitHub.Username,
		"state", cfg.Tracking.StateFile,
		"pending", a.set.Len())

	if opts.Once {
		report, err := scheduler.RunCycle(ctx)
		if err != nil && ctx.Err() == nil {
			return WrapExitError(ExitFailure, "cycle failed", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "starred %d, followed back %d, expired %d, pending %d\n",
			report.Engage.Starred, report.Sweep.Followed, report.Sweep.Expired, a.set.Len())
		return nil
	}

	if err := scheduler.Run(ctx); err != nil {
		return WrapExitError(ExitFailure, "scheduler error", err)
	}
	logger.Info("reciprocity bot stopped")
	return nil
}
