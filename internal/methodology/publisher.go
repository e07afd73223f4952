package methodology

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

// Store is the subset of the content store used by Publisher.
type Store interface {
	MethodologiesForPublication(ctx context.Context, publicationID uuid.UUID) ([]content.Methodology, error)
	LatestMethodologyVersion(ctx context.Context, methodologyID uuid.UUID) (*content.MethodologyVersion, error)
	MethodologyFiles(ctx context.Context, methodologyVersionID uuid.UUID) ([]content.MethodologyFile, error)
	CountOtherPublishedReleaseVersions(ctx context.Context, publicationID, exclude uuid.UUID) (int, error)
	UpdateMethodology(ctx context.Context, m *content.Methodology, columns ...string) error
	UpdateMethodologyVersion(ctx context.Context, v *content.MethodologyVersion, columns ...string) error
}

// Files moves methodology files into public storage.
type Files interface {
	CopyToPublic(ctx context.Context, src, dst string) error
	DeletePublicPrefix(ctx context.Context, prefix string) (int, error)
}

// Publisher makes eligible methodology versions live.
type Publisher struct {
	store  Store
	files  Files
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithClock overrides the clock used for published timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Publisher) { p.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Publisher) { p.logger = l }
}

// NewPublisher creates a Publisher.
func NewPublisher(store Store, files Files, opts ...Option) *Publisher {
	p := &Publisher{store: store, files: files, now: time.Now, logger: slog.Default()}
	for _, o := range opts {
		o(p)
	}
	return p
}

// PublishForRelease publishes every methodology of rv's publication whose
// latest version is eligible to go live with rv. It returns the ids of the
// versions it published. Versions already live are skipped.
func (p *Publisher) PublishForRelease(ctx context.Context, rv *content.ReleaseVersion) ([]uuid.UUID, error) {
	ms, err := p.store.MethodologiesForPublication(ctx, rv.PublicationID)
	if err != nil {
		return nil, err
	}
	if len(ms) == 0 {
		return nil, nil
	}

	others, err := p.store.CountOtherPublishedReleaseVersions(ctx, rv.PublicationID, rv.ID)
	if err != nil {
		return nil, err
	}

	var published []uuid.UUID
	for i := range ms {
		m := &ms[i]
		v, err := p.store.LatestMethodologyVersion(ctx, m.ID)
		if errors.Is(err, content.ErrNotFound) {
			continue
		}
		if err != nil {
			return published, err
		}
		if !Eligible(v, rv.ID, others > 0) {
			continue
		}
		if m.LatestPublishedVersionID != nil && *m.LatestPublishedVersionID == v.ID {
			continue
		}
		if err := p.publish(ctx, m, v); err != nil {
			return published, fmt.Errorf("publishing methodology %s version %s: %w", m.Slug, v.ID, err)
		}
		published = append(published, v.ID)
	}
	if len(published) > 0 {
		metrics.MethodologiesPublished.Add(ctx, int64(len(published)))
	}
	return published, nil
}

func (p *Publisher) publish(ctx context.Context, m *content.Methodology, v *content.MethodologyVersion) error {
	files, err := p.store.MethodologyFiles(ctx, v.ID)
	if err != nil {
		return err
	}

	prefix := PublicPrefix(m.ID)
	if _, err := p.files.DeletePublicPrefix(ctx, prefix); err != nil {
		return err
	}
	for _, f := range files {
		if f.File == nil {
			continue
		}
		if err := p.files.CopyToPublic(ctx, f.File.Path, PublicKey(m.ID, f.File)); err != nil {
			return err
		}
	}

	if v.Published == nil {
		now := p.now().UTC()
		v.Published = &now
		if err := p.store.UpdateMethodologyVersion(ctx, v, "published"); err != nil {
			return err
		}
	}
	m.LatestPublishedVersionID = &v.ID
	if err := p.store.UpdateMethodology(ctx, m, "latest_published_version_id"); err != nil {
		return err
	}

	p.logger.InfoContext(ctx, "methodology published",
		"methodologyId", m.ID.String(), "methodologyVersionId", v.ID.String(), "files", len(files))
	return nil
}
