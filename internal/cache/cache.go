// Package cache keeps the public site's Redis content cache in step with
// newly published releases.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/dwsmith1983/releasepub/internal/content"
)

const defaultPrefix = "releasepub:"

// Key names below the prefix.
const (
	keyPublication    = "publication:"
	keyReleaseContent = "release-content:"
	keyRedirects      = "redirects"
	keyTaxonomy       = "taxonomy"
)

// KV is the subset of the Redis client used by Cache.
type KV interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *goredis.StatusCmd
	Del(ctx context.Context, keys ...string) *goredis.IntCmd
}

// Store is the subset of the content store used by Cache.
type Store interface {
	PublicationBySlug(ctx context.Context, slug string) (*content.Publication, error)
	Publication(ctx context.Context, id uuid.UUID) (*content.Publication, error)
	ReleaseVersion(ctx context.Context, id uuid.UUID) (*content.ReleaseVersion, error)
	Release(ctx context.Context, id uuid.UUID) (*content.Release, error)
	Redirects(ctx context.Context) ([]content.Redirect, error)
	Themes(ctx context.Context) ([]content.Theme, error)
}

// Files removes public objects.
type Files interface {
	DeletePublicPrefix(ctx context.Context, prefix string) (int, error)
}

// Cache writes publication, redirect and taxonomy snapshots.
type Cache struct {
	kv     KV
	store  Store
	files  Files
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithPrefix overrides the key prefix.
func WithPrefix(p string) Option {
	return func(c *Cache) { c.prefix = p }
}

// WithTTL sets an expiry on every written key. Zero keeps keys forever.
func WithTTL(d time.Duration) Option {
	return func(c *Cache) { c.ttl = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

// New creates a Cache.
func New(kv KV, store Store, files Files, opts ...Option) *Cache {
	c := &Cache{kv: kv, store: store, files: files, prefix: defaultPrefix, logger: slog.Default()}
	for _, o := range opts {
		o(c)
	}
	return c
}

// NewClient opens a Redis client for addr.
func NewClient(ctx context.Context, addr, password string, db int) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// PublicationView is the cached representation of a publication.
type PublicationView struct {
	ID                     uuid.UUID  `json:"id"`
	Title                  string     `json:"title"`
	Slug                   string     `json:"slug"`
	Summary                string     `json:"summary,omitempty"`
	LatestReleaseID        *uuid.UUID `json:"latestReleaseId,omitempty"`
	LatestReleaseSlug      string     `json:"latestReleaseSlug,omitempty"`
	LatestReleaseVersionID *uuid.UUID `json:"latestReleaseVersionId,omitempty"`
	SupersededBySlug       string     `json:"supersededBySlug,omitempty"`
}

// UpdatePublication refreshes the cached view of the publication with slug.
// A publication that no longer exists is evicted.
func (c *Cache) UpdatePublication(ctx context.Context, slug string) error {
	p, err := c.store.PublicationBySlug(ctx, slug)
	if errors.Is(err, content.ErrNotFound) {
		return c.del(ctx, keyPublication+slug)
	}
	if err != nil {
		return err
	}

	view := PublicationView{ID: p.ID, Title: p.Title, Slug: p.Slug, Summary: p.Summary}
	if p.LatestPublishedReleaseVersionID != nil {
		rv, err := c.store.ReleaseVersion(ctx, *p.LatestPublishedReleaseVersionID)
		if err != nil {
			return err
		}
		rel, err := c.store.Release(ctx, rv.ReleaseID)
		if err != nil {
			return err
		}
		view.LatestReleaseVersionID = &rv.ID
		view.LatestReleaseID = &rel.ID
		view.LatestReleaseSlug = rel.Slug
	}
	if p.SupersededByID != nil {
		by, err := c.store.Publication(ctx, *p.SupersededByID)
		if err != nil {
			return err
		}
		// Superseding publications only redirect once they are live.
		if by.Live() {
			view.SupersededBySlug = by.Slug
		}
	}
	return c.set(ctx, keyPublication+slug, view)
}

// UpdateRedirects rewrites the sitewide redirect map, grouped by redirect type.
func (c *Cache) UpdateRedirects(ctx context.Context) error {
	rs, err := c.store.Redirects(ctx)
	if err != nil {
		return err
	}
	byType := map[content.RedirectType][]redirectView{}
	for _, r := range rs {
		byType[r.Type] = append(byType[r.Type], redirectView{From: r.FromSlug, To: r.ToSlug})
	}
	return c.set(ctx, keyRedirects, byType)
}

type redirectView struct {
	From string `json:"fromSlug"`
	To   string `json:"toSlug"`
}

type themeView struct {
	ID           uuid.UUID         `json:"id"`
	Title        string            `json:"title"`
	Slug         string            `json:"slug"`
	Publications []publicationLink `json:"publications"`
}

type publicationLink struct {
	ID    uuid.UUID `json:"id"`
	Title string    `json:"title"`
	Slug  string    `json:"slug"`
}

// UpdateTaxonomy rewrites the theme and publication tree of live publications.
func (c *Cache) UpdateTaxonomy(ctx context.Context) error {
	themes, err := c.store.Themes(ctx)
	if err != nil {
		return err
	}
	views := make([]themeView, 0, len(themes))
	for _, th := range themes {
		v := themeView{ID: th.ID, Title: th.Title, Slug: th.Slug, Publications: []publicationLink{}}
		for _, p := range th.Publications {
			v.Publications = append(v.Publications, publicationLink{ID: p.ID, Title: p.Title, Slug: p.Slug})
		}
		views = append(views, v)
	}
	return c.set(ctx, keyTaxonomy, views)
}

// RemoveSupersededContent drops the rendered content and public downloads
// of the version rv replaces. A first version supersedes nothing.
func (c *Cache) RemoveSupersededContent(ctx context.Context, rv *content.ReleaseVersion) error {
	if rv.PreviousVersionID == nil {
		return nil
	}
	prev := *rv.PreviousVersionID
	if err := c.del(ctx, keyReleaseContent+prev.String()); err != nil {
		return err
	}
	if _, err := c.files.DeletePublicPrefix(ctx, ReleaseDownloadsPrefix(prev)); err != nil {
		return fmt.Errorf("deleting downloads of superseded release version %s: %w", prev, err)
	}
	return nil
}

// ReleaseDownloadsPrefix is the public object-store prefix of a
// release-version's downloadable files.
func ReleaseDownloadsPrefix(releaseVersionID uuid.UUID) string {
	return "releases/" + releaseVersionID.String() + "/"
}

func (c *Cache) set(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling cache entry %s: %w", key, err)
	}
	if err := c.kv.Set(ctx, c.prefix+key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("writing cache entry %s: %w", key, err)
	}
	c.logger.DebugContext(ctx, "cache entry written", "key", c.prefix+key)
	return nil
}

func (c *Cache) del(ctx context.Context, key string) error {
	if err := c.kv.Del(ctx, c.prefix+key).Err(); err != nil {
		return fmt.Errorf("deleting cache entry %s: %w", key, err)
	}
	return nil
}
