// Package events raises release-version published events to the external
// topics configured for each event type.
package events

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/dwsmith1983/releasepub/internal/metrics"
	"github.com/dwsmith1983/releasepub/pkg/types"
)

// DataVersion is stamped on every envelope.
const DataVersion = "1.0"

// Envelope is the outbound form of one event.
type Envelope struct {
	ID          string    `json:"id"`
	EventType   string    `json:"eventType"`
	Subject     string    `json:"subject"`
	EventTime   time.Time `json:"eventTime"`
	DataVersion string    `json:"dataVersion"`
	Data        any       `json:"data"`
}

// Transport delivers envelopes to one topic. Implementations attempt every
// envelope before returning.
type Transport interface {
	Send(ctx context.Context, envs []Envelope) error
}

// Raiser maps publishing results to events and delivers them.
type Raiser struct {
	topics map[string][]types.TopicConfig

	eventBridge EventBridgeAPI
	sns         SNSAPI
	secrets     *SecretResolver
	httpClient  HTTPDoer
	awsCfg      *aws.Config

	transports map[string]Transport
	now        func() time.Time
	logger     *slog.Logger
}

// Option configures a Raiser.
type Option func(*Raiser)

// WithEventBridgeClient sets a custom EventBridge client (useful for testing).
func WithEventBridgeClient(c EventBridgeAPI) Option {
	return func(r *Raiser) { r.eventBridge = c }
}

// WithSNSClient sets a custom SNS client (useful for testing).
func WithSNSClient(c SNSAPI) Option {
	return func(r *Raiser) { r.sns = c }
}

// WithSecretsClient sets the Secrets Manager client used to resolve access keys.
func WithSecretsClient(c SecretsAPI) Option {
	return func(r *Raiser) { r.secrets = NewSecretResolver(c) }
}

// WithHTTPClient sets the client used by HTTP topics.
func WithHTTPClient(c HTTPDoer) Option {
	return func(r *Raiser) { r.httpClient = c }
}

// WithTransport registers a transport for endpoint, bypassing endpoint
// routing.
func WithTransport(endpoint string, t Transport) Option {
	return func(r *Raiser) { r.transports[endpoint] = t }
}

// WithClock overrides the clock used for event times.
func WithClock(now func() time.Time) Option {
	return func(r *Raiser) { r.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Raiser) { r.logger = l }
}

// NewRaiser creates a Raiser over the configured topics. Topics are grouped
// by key; several topics may share a key.
func NewRaiser(topics []types.TopicConfig, opts ...Option) (*Raiser, error) {
	r := &Raiser{
		topics:     map[string][]types.TopicConfig{},
		transports: map[string]Transport{},
		now:        time.Now,
		logger:     slog.Default(),
	}
	for _, t := range topics {
		if t.Key == "" || t.TopicEndpoint == "" {
			return nil, fmt.Errorf("event topic requires key and endpoint, got %+v", t)
		}
		r.topics[t.Key] = append(r.topics[t.Key], t)
	}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// RaiseReleaseVersionPublishedEvents sends one event per info to every topic
// configured for the release-version published event type. With no topic
// configured it does nothing. Every topic is attempted; failures are joined.
func (r *Raiser) RaiseReleaseVersionPublishedEvents(ctx context.Context, infos []types.PublishedReleaseVersionInfo) error {
	if len(infos) == 0 {
		return nil
	}
	key := string(types.EventReleaseVersionPublished)
	topics := r.topics[key]
	if len(topics) == 0 {
		r.logger.DebugContext(ctx, "no topic configured, skipping events", "eventType", key, "count", len(infos))
		return nil
	}

	envs := make([]Envelope, 0, len(infos))
	now := r.now().UTC()
	for _, info := range infos {
		envs = append(envs, r.envelope(now, key, info))
	}

	errs := make([]error, len(topics))
	transports := make([]Transport, len(topics))
	for i, t := range topics {
		tr, err := r.transportFor(ctx, t)
		if err != nil {
			errs[i] = fmt.Errorf("topic %s: %w", t.TopicEndpoint, err)
			continue
		}
		transports[i] = tr
	}

	var g errgroup.Group
	for i, tr := range transports {
		if tr == nil {
			continue
		}
		g.Go(func() error {
			if err := tr.Send(ctx, envs); err != nil {
				errs[i] = fmt.Errorf("topic %s: %w", topics[i].TopicEndpoint, err)
				return nil
			}
			metrics.EventsRaised.Add(ctx, int64(len(envs)))
			return nil
		})
	}
	_ = g.Wait()

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("raising %s events: %w", key, err)
	}
	r.logger.InfoContext(ctx, "raised events", "eventType", key, "count", len(envs), "topics", len(topics))
	return nil
}

func (r *Raiser) envelope(now time.Time, eventType string, info types.PublishedReleaseVersionInfo) Envelope {
	return Envelope{
		ID:          ulid.MustNew(ulid.Timestamp(now), rand.Reader).String(),
		EventType:   eventType,
		Subject:     info.ReleaseVersionID.String(),
		EventTime:   now,
		DataVersion: DataVersion,
		Data: types.ReleaseVersionPublishedEvent{
			ReleaseVersionID: info.ReleaseVersionID,
			ReleaseID:        info.ReleaseID,
			ReleaseSlug:      info.ReleaseSlug,
			PublicationID:    info.PublicationID,
			PublicationSlug:  info.PublicationSlug,
			PublicationLatestPublishedReleaseVersionID: info.PublicationLatestPublishedReleaseVersionID,
			PreviousLatestReleaseID:                    info.PreviousLatestReleaseID,
		},
	}
}

// transportFor returns the cached transport for t, building it from the
// endpoint form on first use.
func (r *Raiser) transportFor(ctx context.Context, t types.TopicConfig) (Transport, error) {
	if tr, ok := r.transports[t.TopicEndpoint]; ok {
		return tr, nil
	}

	var (
		tr  Transport
		err error
	)
	switch ep := t.TopicEndpoint; {
	case strings.HasPrefix(ep, "arn:aws:events:"):
		tr, err = r.newEventBridge(ctx, ep)
	case strings.HasPrefix(ep, eventBridgePrefix):
		tr, err = r.newEventBridge(ctx, strings.TrimPrefix(ep, eventBridgePrefix))
	case strings.HasPrefix(ep, "arn:aws:sns:"):
		tr, err = r.newSNS(ctx, ep)
	case strings.HasPrefix(ep, "http://"), strings.HasPrefix(ep, "https://"):
		tr, err = r.newHTTP(ctx, t)
	default:
		return nil, fmt.Errorf("unsupported topic endpoint %q", ep)
	}
	if err != nil {
		return nil, err
	}
	r.transports[t.TopicEndpoint] = tr
	return tr, nil
}

func (r *Raiser) loadAWSConfig(ctx context.Context) (aws.Config, error) {
	if r.awsCfg != nil {
		return *r.awsCfg, nil
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return aws.Config{}, fmt.Errorf("loading AWS config: %w", err)
	}
	r.awsCfg = &cfg
	return cfg, nil
}
