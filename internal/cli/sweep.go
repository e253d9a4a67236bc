package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// NewSweepCommand creates the sweep command.
func NewSweepCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Check pending engagements once without starring anything",
		Long: `Load the state, run a single reciprocity sweep and save the result.

Owners who followed back are followed in return; engagements older than
the grace period are unstarred and removed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSweep(cmd, rootOpts)
		},
	}
}

func runSweep(cmd *cobra.Command, opts *RootOptions) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
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

	report, sweepErr := a.tracker().Sweep(ctx, a.set, cfg.Tracking.GracePeriodDays)
	if err := a.checkpoint(ctx, a.set); err != nil {
		return WrapExitError(ExitFailure, "failed to save state", err)
	}
	if sweepErr != nil {
		logger.Info("sweep interrupted", "checked", report.Checked)
		return nil
	}

	fmt.Fprintf(cmd.OutOrStdout(), "checked %d, followed back %d, expired %d, pending %d\n",
		report.Checked, report.Followed, report.Expired, a.set.Len())
	return nil
}
