package cli

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/vilaca/reciprocity-bot/internal/dashboard"
	"github.com/vilaca/reciprocity-bot/internal/domain"
	"github.com/vilaca/reciprocity-bot/internal/state"
)

// StatusOptions holds flags for the status command.
type StatusOptions struct {
	*RootOptions
	Format string // "text" | "json"
}

// ValidStatusFormats defines the allowed status output formats.
var ValidStatusFormats = []string{"text", "json"}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatusOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "List pending engagements with their age",
		Long: `Print the pending engagements from the state file, oldest first,
with the number of days left before each one expires. Does not contact
GitHub and needs no token.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Format, "format", "text", "output format (text|json)")

	return cmd
}

func runStatus(cmd *cobra.Command, opts *StatusOptions) error {
	if !slices.Contains(ValidStatusFormats, opts.Format) {
		return NewExitError(ExitConfigError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidStatusFormats))
	}

	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}

	// Status output goes to stdout; keep routine load logs out of it.
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if opts.Verbose {
		logger = opts.newLogger(cmd.ErrOrStderr())
	}

	records, err := loadRecords(cmd, cfg.Tracking.StateFile, logger)
	if err != nil {
		return err
	}

	var renderer dashboard.Renderer = dashboard.NewTextRenderer()
	if opts.Format == "json" {
		renderer = dashboard.NewJSONRenderer()
	}

	status := dashboard.BuildStatus(records, opts.clock().Now(), cfg.Tracking.GracePeriodDays)
	if err := renderer.RenderStatus(cmd.OutOrStdout(), status); err != nil {
		return WrapExitError(ExitFailure, "failed to render status", err)
	}
	return nil
}

// loadRecords reads the state without creating it; a missing state file
// or database means nothing is pending.
func loadRecords(cmd *cobra.Command, path string, logger *slog.Logger) ([]domain.TrackedEngagement, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}

	store, err := state.Open(path, logger)
	if err != nil {
		return nil, WrapExitError(ExitFailure, "failed to open state", err)
	}
	defer store.Close()

	records, err := store.Load(cmd.Context())
	if err != nil {
		return nil, WrapExitError(ExitFailure, "failed to load state", err)
	}
	return records, nil
}
