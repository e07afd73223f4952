package lambda

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/dwsmith1983/releasepub/internal/blob"
	"github.com/dwsmith1983/releasepub/internal/cache"
	"github.com/dwsmith1983/releasepub/internal/config"
	"github.com/dwsmith1983/releasepub/internal/content"
	"github.com/dwsmith1983/releasepub/internal/datasets"
	"github.com/dwsmith1983/releasepub/internal/events"
	"github.com/dwsmith1983/releasepub/internal/methodology"
	"github.com/dwsmith1983/releasepub/internal/notify"
	"github.com/dwsmith1983/releasepub/internal/provider"
	"github.com/dwsmith1983/releasepub/internal/provider/dynamodb"
	"github.com/dwsmith1983/releasepub/internal/publisher"
	"github.com/dwsmith1983/releasepub/internal/release"
)

// Deps holds shared dependencies for Lambda handlers.
type Deps struct {
	Status    provider.StatusStore
	Publisher *publisher.Orchestrator
	Telemetry *Telemetry
	Logger    *slog.Logger
	Now       func() time.Time
}

// Init creates shared dependencies from the optional file named by
// PUBLISHER_CONFIG and environment overrides (see config.Load).
func Init(ctx context.Context) (*Deps, error) {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel(envOrDefault("LOG_LEVEL", "info")),
	}))

	cfg, err := config.Load(os.Getenv("PUBLISHER_CONFIG"))
	if err != nil {
		return nil, err
	}
	return Build(ctx, cfg, logger)
}

// Build wires the completion pipeline from cfg.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Deps, error) {
	tel, err := SetupTelemetry(ctx, cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("setting up telemetry: %w", err)
	}

	status, err := dynamodb.New(ctx, &cfg.StatusStore, dynamodb.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("creating status store: %w", err)
	}

	db, err := content.Open(cfg.Content.Driver, cfg.Content.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening content database: %w", err)
	}
	store := content.NewStore(db)

	files, err := blob.New(ctx, cfg.Storage.PrivateBucket, cfg.Storage.PublicBucket, blob.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("creating file store: %w", err)
	}

	kv, err := cache.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, fmt.Errorf("connecting to content cache: %w", err)
	}
	cacheOpts := []cache.Option{cache.WithLogger(logger), cache.WithTTL(cfg.Redis.TTL)}
	if cfg.Redis.KeyPrefix != "" {
		cacheOpts = append(cacheOpts, cache.WithPrefix(cfg.Redis.KeyPrefix))
	}

	sender, err := notify.NewSQSSender(ctx, cfg.Notifications.QueueURL)
	if err != nil {
		return nil, fmt.Errorf("creating notification sender: %w", err)
	}

	raiser, err := events.NewRaiser(cfg.EventTopics, events.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("creating event raiser: %w", err)
	}

	orch, err := publisher.New(status, publisher.Collaborators{
		Releases:      release.NewAccessor(store, release.WithLogger(logger)),
		Methodologies: methodology.NewPublisher(store, files, methodology.WithLogger(logger)),
		Cache:         cache.New(kv, store, files, cacheOpts...),
		Notifier:      notify.NewNotifier(store, sender, notify.WithLogger(logger)),
		DataSets:      datasets.NewPromoter(store, datasets.WithLogger(logger)),
		Events:        raiser,
	}, publisher.WithLogger(logger), publisher.WithLock(cfg.LockTTL))
	if err != nil {
		return nil, fmt.Errorf("creating orchestrator: %w", err)
	}

	return &Deps{
		Status:    status,
		Publisher: orch,
		Telemetry: tel,
		Logger:    logger,
		Now:       time.Now,
	}, nil
}

func logLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
