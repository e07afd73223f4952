// Package commands implements the CLI subcommands for the publisher binary.
package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/fatih/color"

	"github.com/dwsmith1983/releasepub/internal/config"
	"github.com/dwsmith1983/releasepub/internal/provider"
	ddbprov "github.com/dwsmith1983/releasepub/internal/provider/dynamodb"
	"github.com/dwsmith1983/releasepub/pkg/types"
)

// ConfigPath is the configuration file read by every subcommand. A missing
// file falls back to environment variables alone.
var ConfigPath = config.FileName

func loadConfig() (*config.Config, error) {
	path := ConfigPath
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		path = ""
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// newStatusStore connects to the configured status table.
func newStatusStore(ctx context.Context, cfg *config.Config) (provider.StatusStore, error) {
	s, err := ddbprov.New(ctx, &cfg.StatusStore, ddbprov.WithLogger(slog.Default()))
	if err != nil {
		return nil, fmt.Errorf("creating status store: %w", err)
	}
	if err := s.Start(ctx); err != nil {
		return nil, fmt.Errorf("connecting to status store: %w", err)
	}
	return s, nil
}

// parseKeys parses "releaseVersionId:releaseStatusId" arguments.
func parseKeys(args []string) ([]types.ReleasePublishingKey, error) {
	keys := make([]types.ReleasePublishingKey, 0, len(args))
	for _, a := range args {
		k, err := types.ParseReleasePublishingKey(a)
		if err != nil {
			return nil, fmt.Errorf("invalid key %q: %w", a, err)
		}
		keys = append(keys, k)
	}
	return keys, nil
}

func parseStages(args []string) ([]types.OverallStage, error) {
	stages := make([]types.OverallStage, 0, len(args))
	for _, a := range args {
		s, err := types.ParseOverallStage(a)
		if err != nil {
			return nil, err
		}
		stages = append(stages, s)
	}
	return stages, nil
}

// printStatuses writes one line per attempt, coloured by overall stage.
func printStatuses(w io.Writer, statuses []types.ReleasePublishingStatus) {
	if len(statuses) == 0 {
		_, _ = fmt.Fprintln(w, "No publishing attempts found.")
		return
	}
	for _, s := range statuses {
		_, _ = fmt.Fprintf(w, "  %s  %-10s content=%-10s files=%-10s publishing=%s\n",
			s.Key, overallString(s.OverallStage), s.ContentStage, s.FilesStage, s.PublishingStage)
	}
}

func overallString(s types.OverallStage) string {
	switch s {
	case types.OverallComplete:
		return color.GreenString(string(s))
	case types.OverallFailed:
		return color.RedString(string(s))
	case types.OverallStarted:
		return color.CyanString(string(s))
	default:
		return color.YellowString(string(s))
	}
}

// showKeys loads and prints the statuses behind keys.
func showKeys(ctx context.Context, w io.Writer, store provider.StatusStore, keys []types.ReleasePublishingKey) error {
	if len(keys) == 0 {
		printStatuses(w, nil)
		return nil
	}
	statuses, err := store.GetStatuses(ctx, keys)
	if err != nil {
		return fmt.Errorf("loading statuses: %w", err)
	}
	printStatuses(w, statuses)
	return nil
}
