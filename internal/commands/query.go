package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dwsmith1983/releasepub/internal/provider"
	"github.com/dwsmith1983/releasepub/pkg/types"
)

// NewScheduledCmd creates the scheduled command.
func NewScheduledCmd() *cobra.Command {
	var before, after, on string

	cmd := &cobra.Command{
		Use:   "scheduled",
		Short: "List scheduled publishing attempts relative to a date",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmp, raw := types.BeforeOrOn, before
			switch {
			case after != "":
				cmp, raw = types.After, after
			case on != "":
				cmp, raw = types.On, on
			}
			ref, err := parseTime(raw)
			if err != nil {
				return err
			}
			return withStore(func(ctx context.Context, store provider.StatusStore) error {
				return runScheduled(ctx, os.Stdout, store, cmp, ref)
			})
		},
	}
	cmd.Flags().StringVar(&before, "before", "", "attempts due on or before this time (RFC3339 or 2006-01-02)")
	cmd.Flags().StringVar(&after, "after", "", "attempts due after this time")
	cmd.Flags().StringVar(&on, "on", "", "attempts due exactly at this time")
	cmd.MarkFlagsMutuallyExclusive("before", "after", "on")
	cmd.MarkFlagsOneRequired("before", "after", "on")
	return cmd
}

// NewReadyCmd creates the ready command.
func NewReadyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ready",
		Short: "List attempts whose files are copied and content is queued",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(ctx context.Context, store provider.StatusStore) error {
				return runReady(ctx, os.Stdout, store)
			})
		},
	}
}

// NewStagesCmd creates the stages command.
func NewStagesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stages <releaseVersionId> <stage>...",
		Short: "List a release version's attempts in any of the given overall stages",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(ctx context.Context, store provider.StatusStore) error {
				return runStages(ctx, os.Stdout, store, args[0], args[1:])
			})
		},
	}
}

func withStore(fn func(ctx context.Context, store provider.StatusStore) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := newStatusStore(ctx, cfg)
	if err != nil {
		return err
	}
	return fn(ctx, store)
}

func runScheduled(ctx context.Context, w io.Writer, store provider.StatusStore, cmp types.DateComparison, ref time.Time) error {
	keys, err := store.GetScheduledReleasesForPublishingRelativeToDate(ctx, cmp, ref)
	if err != nil {
		return fmt.Errorf("querying scheduled releases: %w", err)
	}
	bold := color.New(color.Bold)
	_, _ = bold.Fprintf(w, "Scheduled %s %s:\n", cmp, ref.Format(time.RFC3339))
	return showKeys(ctx, w, store, keys)
}

func runReady(ctx context.Context, w io.Writer, store provider.StatusStore) error {
	keys, err := store.GetScheduledReleasesReadyForPublishing(ctx)
	if err != nil {
		return fmt.Errorf("querying ready releases: %w", err)
	}
	bold := color.New(color.Bold)
	_, _ = bold.Fprintln(w, "Ready for publishing:")
	return showKeys(ctx, w, store, keys)
}

func runStages(ctx context.Context, w io.Writer, store provider.StatusStore, releaseVersionID string, rawStages []string) error {
	id, err := parseUUID(releaseVersionID)
	if err != nil {
		return err
	}
	stages, err := parseStages(rawStages)
	if err != nil {
		return err
	}
	keys, err := store.GetReleasesWithOverallStages(ctx, id, stages)
	if err != nil {
		return fmt.Errorf("querying release stages: %w", err)
	}
	return showKeys(ctx, w, store, keys)
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time %q: want RFC3339 or YYYY-MM-DD", s)
}
