// Package release resolves release-versions, their publications and the
// publication's true latest published release-version.
package release

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dwsmith1983/releasepub/internal/content"
)

// Store is the subset of the content store used by Accessor.
type Store interface {
	ReleaseVersion(ctx context.Context, id uuid.UUID) (*content.ReleaseVersion, error)
	Release(ctx context.Context, id uuid.UUID) (*content.Release, error)
	Publication(ctx context.Context, id uuid.UUID) (*content.Publication, error)
	PublicationsSupersededBy(ctx context.Context, id uuid.UUID) ([]content.Publication, error)
	PublishedReleaseVersions(ctx context.Context, publicationID uuid.UUID) ([]content.ReleaseVersion, error)
	UpdateReleaseVersion(ctx context.Context, rv *content.ReleaseVersion, columns ...string) error
	UpdatePublication(ctx context.Context, p *content.Publication, columns ...string) error
}

// Accessor answers release-level questions for the completion sequence.
type Accessor struct {
	store  Store
	now    func() time.Time
	logger *slog.Logger
}

// Option configures an Accessor.
type Option func(*Accessor)

// WithClock overrides the clock used for published timestamps.
func WithClock(now func() time.Time) Option {
	return func(a *Accessor) { a.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Accessor) { a.logger = l }
}

// NewAccessor creates an Accessor over store.
func NewAccessor(store Store, opts ...Option) *Accessor {
	a := &Accessor{store: store, now: time.Now, logger: slog.Default()}
	for _, o := range opts {
		o(a)
	}
	return a
}

// ReleaseVersion returns a release-version by id.
func (a *Accessor) ReleaseVersion(ctx context.Context, id uuid.UUID) (*content.ReleaseVersion, error) {
	return a.store.ReleaseVersion(ctx, id)
}

// Release returns a release by id.
func (a *Accessor) Release(ctx context.Context, id uuid.UUID) (*content.Release, error) {
	return a.store.Release(ctx, id)
}

// Publication returns a publication by id.
func (a *Accessor) Publication(ctx context.Context, id uuid.UUID) (*content.Publication, error) {
	return a.store.Publication(ctx, id)
}

// PublicationsSupersededBy returns the publications replaced by id.
func (a *Accessor) PublicationsSupersededBy(ctx context.Context, id uuid.UUID) ([]content.Publication, error) {
	return a.store.PublicationsSupersededBy(ctx, id)
}

// LatestPublishedReleaseVersion returns the publication's newest published,
// non-deleted release-version, or nil when nothing is published.
func (a *Accessor) LatestPublishedReleaseVersion(ctx context.Context, publicationID uuid.UUID) (*content.ReleaseVersion, error) {
	return a.latestPublished(ctx, publicationID, uuid.Nil)
}

// LatestPublishedReleaseVersionExcluding returns the newest published,
// non-deleted release-version of the publication other than exclude. It is
// the latest as it stood before exclude went live, whether or not exclude has
// been published since.
func (a *Accessor) LatestPublishedReleaseVersionExcluding(ctx context.Context, publicationID, exclude uuid.UUID) (*content.ReleaseVersion, error) {
	return a.latestPublished(ctx, publicationID, exclude)
}

func (a *Accessor) latestPublished(ctx context.Context, publicationID, exclude uuid.UUID) (*content.ReleaseVersion, error) {
	rvs, err := a.store.PublishedReleaseVersions(ctx, publicationID)
	if err != nil {
		return nil, err
	}
	for i := range rvs {
		if rvs[i].ID != exclude {
			return &rvs[i], nil
		}
	}
	return nil, nil
}

// SetLatestPublishedReleaseVersion points the publication at releaseVersionID.
// It reports whether the stored pointer changed.
func (a *Accessor) SetLatestPublishedReleaseVersion(ctx context.Context, p *content.Publication, releaseVersionID uuid.UUID) (bool, error) {
	if p.LatestPublishedReleaseVersionID != nil && *p.LatestPublishedReleaseVersionID == releaseVersionID {
		return false, nil
	}
	p.LatestPublishedReleaseVersionID = &releaseVersionID
	if err := a.store.UpdatePublication(ctx, p, "latest_published_release_version_id"); err != nil {
		return false, fmt.Errorf("updating latest published release version of %s: %w", p.ID, err)
	}
	a.logger.InfoContext(ctx, "publication latest release version updated",
		"publicationId", p.ID.String(), "releaseVersionId", releaseVersionID.String())
	return true, nil
}

// MarkPublished stamps the release-version's published date. An already
// published version is left alone. An amendment keeps its predecessor's date
// unless UpdatePublishedDate is set.
func (a *Accessor) MarkPublished(ctx context.Context, rv *content.ReleaseVersion) error {
	if rv.Published != nil {
		return nil
	}
	published, err := a.publishedDate(ctx, rv)
	if err != nil {
		return err
	}
	rv.Published = &published
	if err := a.store.UpdateReleaseVersion(ctx, rv, "published"); err != nil {
		return fmt.Errorf("marking release version %s published: %w", rv.ID, err)
	}
	return nil
}

func (a *Accessor) publishedDate(ctx context.Context, rv *content.ReleaseVersion) (time.Time, error) {
	now := a.now().UTC()
	if rv.PreviousVersionID == nil || rv.UpdatePublishedDate {
		return now, nil
	}
	prev, err := a.store.ReleaseVersion(ctx, *rv.PreviousVersionID)
	if err != nil {
		if errors.Is(err, content.ErrNotFound) {
			return now, nil
		}
		return time.Time{}, fmt.Errorf("loading previous version of %s: %w", rv.ID, err)
	}
	if prev.Published == nil {
		return now, nil
	}
	return *prev.Published, nil
}
