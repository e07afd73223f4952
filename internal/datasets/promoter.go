// Package datasets promotes draft data-set versions when the release-versions
// that carry their CSV files go live.
package datasets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dwsmith1983/releasepub/internal/content"
	"github.com/dwsmith1983/releasepub/internal/metrics"
)

// Store is the subset of the content store used by Promoter.
type Store interface {
	ReleaseFilesOfType(ctx context.Context, releaseVersionID uuid.UUID, fileType content.FileType) ([]content.ReleaseFile, error)
	DraftDataSetVersionByCsvFile(ctx context.Context, fileID uuid.UUID) (*content.DataSetVersion, error)
	InTx(ctx context.Context, fn func(ctx context.Context, tx *content.Store) error) error
}

// Promoter publishes data-set versions tied to release-versions.
type Promoter struct {
	store  Store
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Promoter.
type Option func(*Promoter)

// WithClock overrides the clock used for published timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Promoter) { p.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Promoter) { p.logger = l }
}

// NewPromoter creates a Promoter over store.
func NewPromoter(store Store, opts ...Option) *Promoter {
	p := &Promoter{store: store, now: time.Now, logger: slog.Default()}
	for _, o := range opts {
		o(p)
	}
	return p
}

// PublishDataSetVersions promotes the draft versions backed by the data files
// of releaseVersionIDs. Release-versions without a matching draft contribute
// nothing. Versions already published are not touched again.
func (p *Promoter) PublishDataSetVersions(ctx context.Context, releaseVersionIDs []uuid.UUID) error {
	byDataSet := map[uuid.UUID][]*content.DataSetVersion{}
	var order []uuid.UUID

	for _, rvID := range releaseVersionIDs {
		files, err := p.store.ReleaseFilesOfType(ctx, rvID, content.FileData)
		if err != nil {
			return err
		}
		for _, f := range files {
			v, err := p.store.DraftDataSetVersionByCsvFile(ctx, f.FileID)
			if errors.Is(err, content.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if _, seen := byDataSet[v.DataSetID]; !seen {
				order = append(order, v.DataSetID)
			}
			byDataSet[v.DataSetID] = append(byDataSet[v.DataSetID], v)
		}
	}

	now := p.now().UTC()
	for _, dsID := range order {
		versions := byDataSet[dsID]
		if err := p.store.InTx(ctx, func(ctx context.Context, tx *content.Store) error {
			return promote(ctx, tx, dsID, versions, now)
		}); err != nil {
			return fmt.Errorf("publishing versions of data set %s: %w", dsID, err)
		}
		metrics.DataSetVersionsPublished.Add(ctx, int64(len(versions)))
		p.logger.InfoContext(ctx, "data set versions published",
			"dataSetId", dsID.String(), "versions", len(versions))
	}
	return nil
}

func promote(ctx context.Context, tx *content.Store, dsID uuid.UUID, versions []*content.DataSetVersion, now time.Time) error {
	ds, err := tx.DataSet(ctx, dsID)
	if err != nil {
		return err
	}

	promoted := make(map[uuid.UUID]bool, len(versions))
	latest := versions[0]
	for _, v := range versions {
		v.Status = content.DataSetPublished
		v.Published = &now
		if err := tx.UpdateDataSetVersion(ctx, v, "status", "published"); err != nil {
			return err
		}
		promoted[v.ID] = true
		if v.Newer(latest) {
			latest = v
		}
	}

	// Never move the live pointer backwards past a newer live version.
	if ds.LatestLiveVersionID != nil && !promoted[*ds.LatestLiveVersionID] {
		live, err := tx.DataSetVersion(ctx, *ds.LatestLiveVersionID)
		if err != nil && !errors.Is(err, content.ErrNotFound) {
			return err
		}
		if live != nil && live.Newer(latest) {
			latest = live
		}
	}

	ds.Status = content.DataSetPublished
	ds.LatestLiveVersionID = &latest.ID
	if ds.LatestDraftVersionID != nil && promoted[*ds.LatestDraftVersionID] {
		ds.LatestDraftVersionID = nil
	}
	if ds.Published == nil {
		ds.Published = &now
	}
	return tx.UpdateDataSet(ctx, ds, "status", "published", "latest_live_version_id", "latest_draft_version_id")
}
