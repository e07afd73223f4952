// Package publisher runs the completion sequence for publishing attempts whose
// prerequisite stages have finished.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dwsmith1983/releasepub/internal/content"
	"github.com/dwsmith1983/releasepub/internal/metrics"
	"github.com/dwsmith1983/releasepub/internal/provider"
	"github.com/dwsmith1983/releasepub/internal/readiness"
	"github.com/dwsmith1983/releasepub/pkg/types"
)

// LockKey names the invocation guard taken when a lock TTL is configured.
const LockKey = "publishing-completion"

// ErrBusy is returned when another invocation holds the completion lock.
var ErrBusy = errors.New("another completion run is in progress")

// Releases resolves and updates release-versions and their publications.
type Releases interface {
	ReleaseVersion(ctx context.Context, id uuid.UUID) (*content.ReleaseVersion, error)
	Release(ctx context.Context, id uuid.UUID) (*content.Release, error)
	Publication(ctx context.Context, id uuid.UUID) (*content.Publication, error)
	PublicationsSupersededBy(ctx context.Context, id uuid.UUID) ([]content.Publication, error)
	LatestPublishedReleaseVersion(ctx context.Context, publicationID uuid.UUID) (*content.ReleaseVersion, error)
	LatestPublishedReleaseVersionExcluding(ctx context.Context, publicationID, exclude uuid.UUID) (*content.ReleaseVersion, error)
	SetLatestPublishedReleaseVersion(ctx context.Context, p *content.Publication, releaseVersionID uuid.UUID) (bool, error)
	MarkPublished(ctx context.Context, rv *content.ReleaseVersion) error
}

// Methodologies publishes methodology versions that go live with a release.
type Methodologies interface {
	PublishForRelease(ctx context.Context, rv *content.ReleaseVersion) ([]uuid.UUID, error)
}

// ContentCache keeps cached site content current.
type ContentCache interface {
	UpdatePublication(ctx context.Context, slug string) error
	UpdateRedirects(ctx context.Context) error
	UpdateTaxonomy(ctx context.Context) error
	RemoveSupersededContent(ctx context.Context, rv *content.ReleaseVersion) error
}

// Notifier dispatches subscriber notifications.
type Notifier interface {
	NotifySubscribers(ctx context.Context, releaseVersionIDs []uuid.UUID) error
}

// DataSets promotes draft data-set versions.
type DataSets interface {
	PublishDataSetVersions(ctx context.Context, releaseVersionIDs []uuid.UUID) error
}

// EventRaiser delivers release-version published events.
type EventRaiser interface {
	RaiseReleaseVersionPublishedEvents(ctx context.Context, infos []types.PublishedReleaseVersionInfo) error
}

// Collaborators groups the components the completion sequence drives.
type Collaborators struct {
	Releases      Releases
	Methodologies Methodologies
	Cache         ContentCache
	Notifier      Notifier
	DataSets      DataSets
	Events        EventRaiser
}

func (c Collaborators) validate() error {
	var missing []string
	if c.Releases == nil {
		missing = append(missing, "releases")
	}
	if c.Methodologies == nil {
		missing = append(missing, "methodologies")
	}
	if c.Cache == nil {
		missing = append(missing, "cache")
	}
	if c.Notifier == nil {
		missing = append(missing, "notifier")
	}
	if c.DataSets == nil {
		missing = append(missing, "data sets")
	}
	if c.Events == nil {
		missing = append(missing, "events")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing collaborators: %v", missing)
	}
	return nil
}

// Result summarizes one completion run.
type Result struct {
	Completed       []types.ReleasePublishingKey
	AlreadyComplete []types.ReleasePublishingKey
	NotReady        []types.ReleasePublishingKey
	Missing         []types.ReleasePublishingKey
}

// Orchestrator runs the completion sequence.
type Orchestrator struct {
	status  provider.StatusStore
	c       Collaborators
	lockTTL time.Duration
	tracer  trace.Tracer
	logger  *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithLock guards each run with a status-store lock held for at most ttl.
// Zero disables the guard.
func WithLock(ttl time.Duration) Option {
	return func(o *Orchestrator) { o.lockTTL = ttl }
}

// WithTracer overrides the tracer.
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) { o.tracer = t }
}

// New creates an Orchestrator.
func New(status provider.StatusStore, c Collaborators, opts ...Option) (*Orchestrator, error) {
	if status == nil {
		return nil, fmt.Errorf("status store required")
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	o := &Orchestrator{
		status: status,
		c:      c,
		tracer: otel.Tracer("github.com/dwsmith1983/releasepub/internal/publisher"),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// keyResult carries what the per-key steps learned about one release-version.
type keyResult struct {
	rv   *content.ReleaseVersion
	info types.PublishedReleaseVersionInfo
}

// CompletePublishingIfAllPriorStagesComplete completes every candidate whose
// content and files stages are Complete. Other candidates receive no writes.
// Attempts already Complete are left alone. Any failure aborts the run and
// leaves the unfinished attempts at Started.
func (o *Orchestrator) CompletePublishingIfAllPriorStagesComplete(ctx context.Context, keys []types.ReleasePublishingKey) (res *Result, err error) {
	ctx, span := o.tracer.Start(ctx, "publisher.CompletePublishing", trace.WithAttributes(attribute.Int("candidates", len(keys))))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			metrics.CompletionErrors.Add(ctx, 1)
			o.logger.ErrorContext(ctx, "publishing completion failed", "error", err)
		}
		span.End()
	}()

	res = &Result{}
	if len(keys) == 0 {
		return res, nil
	}

	if o.lockTTL > 0 {
		token, err := o.status.AcquireLock(ctx, LockKey, o.lockTTL)
		if err != nil {
			return res, err
		}
		if token == "" {
			return res, ErrBusy
		}
		defer func() {
			if rerr := o.status.ReleaseLock(context.WithoutCancel(ctx), LockKey, token); rerr != nil {
				o.logger.WarnContext(ctx, "releasing completion lock", "error", rerr)
			}
		}()
	}

	statuses, err := o.status.GetStatuses(ctx, keys)
	if err != nil {
		return res, fmt.Errorf("loading publishing statuses: %w", err)
	}
	res.Missing = missingKeys(keys, statuses)
	for _, k := range res.Missing {
		o.logger.WarnContext(ctx, "no publishing status for key", "releaseVersionId", k.ReleaseVersionID.String(), "releaseStatusId", k.ReleaseStatusID.String())
	}

	ready, notReady := readiness.Partition(statuses)
	for _, s := range notReady {
		res.NotReady = append(res.NotReady, s.Key)
	}
	if len(notReady) > 0 {
		metrics.ReleasesNotReady.Add(ctx, int64(len(notReady)))
		o.logger.InfoContext(ctx, "skipping attempts with incomplete prior stages", "count", len(notReady))
	}

	var todo []types.ReleasePublishingKey
	for _, s := range ready {
		if s.PublishingStage == types.PublishingComplete {
			res.AlreadyComplete = append(res.AlreadyComplete, s.Key)
			continue
		}
		todo = append(todo, s.Key)
	}
	if len(todo) == 0 {
		return res, nil
	}

	// 1. Started.
	for _, k := range todo {
		if err := o.status.UpdatePublishingStage(ctx, k, types.PublishingStarted); err != nil {
			return res, fmt.Errorf("marking %s started: %w", k, err)
		}
	}

	// 2-6, per key. Several attempts may share a release-version.
	var (
		results []keyResult
		seen    = map[uuid.UUID]bool{}
	)
	for _, k := range todo {
		if seen[k.ReleaseVersionID] {
			continue
		}
		seen[k.ReleaseVersionID] = true
		r, err := o.completeKey(ctx, k)
		if err != nil {
			return res, fmt.Errorf("completing %s: %w", k, err)
		}
		results = append(results, r)
	}

	// 5-6, once per batch.
	if err := o.step(ctx, "taxonomy", o.c.Cache.UpdateTaxonomy); err != nil {
		return res, fmt.Errorf("refreshing taxonomy: %w", err)
	}
	if err := o.step(ctx, "redirects", o.c.Cache.UpdateRedirects); err != nil {
		return res, fmt.Errorf("refreshing redirects: %w", err)
	}

	ids := make([]uuid.UUID, 0, len(results))
	infos := make([]types.PublishedReleaseVersionInfo, 0, len(results))
	for _, r := range results {
		ids = append(ids, r.rv.ID)
		infos = append(infos, r.info)
	}

	// 7.
	if err := o.step(ctx, "notifications", func(ctx context.Context) error {
		return o.c.Notifier.NotifySubscribers(ctx, ids)
	}); err != nil {
		return res, fmt.Errorf("notifying subscribers: %w", err)
	}
	// 8.
	if err := o.step(ctx, "datasets", func(ctx context.Context) error {
		return o.c.DataSets.PublishDataSetVersions(ctx, ids)
	}); err != nil {
		return res, fmt.Errorf("publishing data set versions: %w", err)
	}
	// 9.
	if err := o.step(ctx, "events", func(ctx context.Context) error {
		return o.c.Events.RaiseReleaseVersionPublishedEvents(ctx, infos)
	}); err != nil {
		return res, fmt.Errorf("raising events: %w", err)
	}

	// 10. Complete.
	for _, k := range todo {
		if err := o.status.UpdatePublishingStage(ctx, k, types.PublishingComplete); err != nil {
			return res, fmt.Errorf("marking %s complete: %w", k, err)
		}
		res.Completed = append(res.Completed, k)
		metrics.ReleasesCompleted.Add(ctx, 1)
		o.logger.InfoContext(ctx, "publishing complete",
			"releaseVersionId", k.ReleaseVersionID.String(), "releaseStatusId", k.ReleaseStatusID.String())
	}
	return res, nil
}

func (o *Orchestrator) completeKey(ctx context.Context, k types.ReleasePublishingKey) (keyResult, error) {
	ctx, span := o.tracer.Start(ctx, "publisher.completeKey", trace.WithAttributes(
		attribute.String("releaseVersionId", k.ReleaseVersionID.String()),
		attribute.String("releaseStatusId", k.ReleaseStatusID.String()),
	))
	defer span.End()

	// 2.
	rv, err := o.c.Releases.ReleaseVersion(ctx, k.ReleaseVersionID)
	if err != nil {
		return keyResult{}, err
	}
	rel, err := o.c.Releases.Release(ctx, rv.ReleaseID)
	if err != nil {
		return keyResult{}, err
	}
	pub, err := o.c.Releases.Publication(ctx, rv.PublicationID)
	if err != nil {
		return keyResult{}, err
	}

	// 3.
	if _, err := o.c.Methodologies.PublishForRelease(ctx, rv); err != nil {
		return keyResult{}, fmt.Errorf("publishing methodologies: %w", err)
	}

	// 4.
	if err := o.c.Releases.MarkPublished(ctx, rv); err != nil {
		return keyResult{}, err
	}
	latest, err := o.c.Releases.LatestPublishedReleaseVersion(ctx, pub.ID)
	if err != nil {
		return keyResult{}, err
	}
	if latest != nil {
		if _, err := o.c.Releases.SetLatestPublishedReleaseVersion(ctx, pub, latest.ID); err != nil {
			return keyResult{}, err
		}
	}

	info := types.PublishedReleaseVersionInfo{
		ReleaseVersionID: rv.ID,
		ReleaseID:        rel.ID,
		ReleaseSlug:      rel.Slug,
		PublicationID:    pub.ID,
		PublicationSlug:  pub.Slug,
	}
	if pub.LatestPublishedReleaseVersionID != nil {
		info.PublicationLatestPublishedReleaseVersionID = *pub.LatestPublishedReleaseVersionID
	}
	// Derived from the content store rather than the stored pointer, which an
	// earlier failed run may already have moved to rv.
	previous, err := o.c.Releases.LatestPublishedReleaseVersionExcluding(ctx, pub.ID, rv.ID)
	if err != nil {
		return keyResult{}, fmt.Errorf("loading previous latest release version: %w", err)
	}
	if previous != nil {
		info.PreviousLatestReleaseID = &previous.ReleaseID
	}

	// 5.
	if err := o.c.Cache.RemoveSupersededContent(ctx, rv); err != nil {
		return keyResult{}, err
	}

	// 6.
	if err := o.c.Cache.UpdatePublication(ctx, pub.Slug); err != nil {
		return keyResult{}, err
	}
	superseded, err := o.c.Releases.PublicationsSupersededBy(ctx, pub.ID)
	if err != nil {
		return keyResult{}, err
	}
	for _, s := range superseded {
		if err := o.c.Cache.UpdatePublication(ctx, s.Slug); err != nil {
			return keyResult{}, err
		}
	}

	return keyResult{rv: rv, info: info}, nil
}

func (o *Orchestrator) step(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := o.tracer.Start(ctx, "publisher."+name)
	defer span.End()
	if err := fn(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func missingKeys(keys []types.ReleasePublishingKey, statuses []types.ReleasePublishingStatus) []types.ReleasePublishingKey {
	found := make(map[types.ReleasePublishingKey]bool, len(statuses))
	for _, s := range statuses {
		found[s.Key] = true
	}
	var missing []types.ReleasePublishingKey
	for _, k := range keys {
		if !found[k] {
			missing = append(missing, k)
		}
	}
	return missing
}
