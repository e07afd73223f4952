// Package provider defines the status store interface for the publishing pipeline.
package provider

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/dwsmith1983/releasepub/pkg/types"
)

var (
	// ErrInvalidArgument marks a caller contract violation. It is never a runtime condition.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrStatusNotFound is returned when a stage update targets a record that does not exist.
	ErrStatusNotFound = errors.New("publishing status not found")
)

// PageSize is the number of status entries requested per store page.
const PageSize = 1000

// StatusStore reads and writes per-release-version publishing status records.
// Implementations perform no retries: store errors are returned to the caller.
type StatusStore interface {
	// Queries
	GetScheduledReleasesForPublishingRelativeToDate(ctx context.Context, cmp types.DateComparison, ref time.Time) ([]types.ReleasePublishingKey, error)
	GetScheduledReleasesReadyForPublishing(ctx context.Context) ([]types.ReleasePublishingKey, error)
	GetReleasesStartedPublishing(ctx context.Context) ([]types.ReleasePublishingKey, error)
	GetReleasesWithOverallStages(ctx context.Context, releaseVersionID uuid.UUID, stages []types.OverallStage) ([]types.ReleasePublishingKey, error)

	// Records
	Get(ctx context.Context, key types.ReleasePublishingKey) (*types.ReleasePublishingStatus, error)
	GetStatuses(ctx context.Context, keys []types.ReleasePublishingKey) ([]types.ReleasePublishingStatus, error)
	Put(ctx context.Context, status types.ReleasePublishingStatus) error
	UpdatePublishingStage(ctx context.Context, key types.ReleasePublishingKey, stage types.PublishingStage) error

	// Invocation guard
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	ReleaseLock(ctx context.Context, key, token string) error
}
