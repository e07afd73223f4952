package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	intlambda "github.com/dwsmith1983/releasepub/internal/lambda"
	"github.com/dwsmith1983/releasepub/pkg/types"
)

// NewCompleteCmd creates the complete command.
func NewCompleteCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "complete <releaseVersionId:releaseStatusId>...",
		Short: "Complete publishing for attempts whose prior stages have finished",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, err := parseKeys(args)
			if err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			d, err := intlambda.Build(ctx, cfg, slog.Default())
			if err != nil {
				return err
			}
			defer func() { _ = d.Telemetry.Shutdown(context.WithoutCancel(ctx)) }()
			return runComplete(ctx, os.Stdout, d.Publisher, keys)
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "overall deadline for the run")
	return cmd
}

func runComplete(ctx context.Context, w io.Writer, c intlambda.Completer, keys []types.ReleasePublishingKey) error {
	res, err := c.CompletePublishingIfAllPriorStagesComplete(ctx, keys)
	if err != nil {
		_, _ = fmt.Fprintln(w, color.RedString("Completion failed; attempts left at Started: %v", err))
		return err
	}
	for _, k := range res.Completed {
		_, _ = fmt.Fprintln(w, color.GreenString("  ✓ %s: Complete", k))
	}
	for _, k := range res.AlreadyComplete {
		_, _ = fmt.Fprintln(w, color.CyanString("  = %s: already complete", k))
	}
	for _, k := range res.NotReady {
		_, _ = fmt.Fprintln(w, color.YellowString("  ○ %s: prior stages incomplete", k))
	}
	for _, k := range res.Missing {
		_, _ = fmt.Fprintln(w, color.RedString("  ✗ %s: no publishing status", k))
	}
	return nil
}

func parseUUID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid release version id %q: %w", s, err)
	}
	return id, nil
}
