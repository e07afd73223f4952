// Package notify tells publication subscribers about newly published
// release-versions.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dwsmith1983/releasepub/internal/content"
	"github.com/dwsmith1983/releasepub/internal/metrics"
)

// DefaultUpdateNote is sent for first publications and amendments without a note.
const DefaultUpdateNote = "No update note provided."

// Message is one subscriber notification.
type Message struct {
	PublicationID    uuid.UUID `json:"publicationId"`
	PublicationName  string    `json:"publicationName"`
	PublicationSlug  string    `json:"publicationSlug"`
	ReleaseVersionID uuid.UUID `json:"releaseVersionId"`
	ReleaseName      string    `json:"releaseName"`
	ReleaseSlug      string    `json:"releaseSlug"`
	Amendment        bool      `json:"amendment"`
	UpdateNote       string    `json:"updateNote"`
}

// Store is the subset of the content store used by Notifier.
type Store interface {
	ReleaseVersionsWithRelations(ctx context.Context, ids []uuid.UUID) ([]content.ReleaseVersion, error)
	LatestUpdate(ctx context.Context, releaseVersionID uuid.UUID) (*content.Update, error)
}

// Sender delivers built messages.
type Sender interface {
	Send(ctx context.Context, msgs []Message) error
}

// Notifier builds and dispatches subscriber notifications.
type Notifier struct {
	store  Store
	sender Sender
	logger *slog.Logger
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(n *Notifier) { n.logger = l }
}

// NewNotifier creates a Notifier.
func NewNotifier(store Store, sender Sender, opts ...Option) *Notifier {
	n := &Notifier{store: store, sender: sender, logger: slog.Default()}
	for _, o := range opts {
		o(n)
	}
	return n
}

// NotifySubscribers sends one message for each release-version that asked
// for subscribers to be notified.
func (n *Notifier) NotifySubscribers(ctx context.Context, releaseVersionIDs []uuid.UUID) error {
	msgs, err := n.Messages(ctx, releaseVersionIDs)
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		return nil
	}
	if err := n.sender.Send(ctx, msgs); err != nil {
		return fmt.Errorf("sending subscriber notifications: %w", err)
	}
	metrics.NotificationsSent.Add(ctx, int64(len(msgs)))
	n.logger.InfoContext(ctx, "subscriber notifications sent", "count", len(msgs))
	return nil
}

// Messages builds the notifications for releaseVersionIDs without sending them.
func (n *Notifier) Messages(ctx context.Context, releaseVersionIDs []uuid.UUID) ([]Message, error) {
	rvs, err := n.store.ReleaseVersionsWithRelations(ctx, releaseVersionIDs)
	if err != nil {
		return nil, err
	}

	var msgs []Message
	for i := range rvs {
		rv := &rvs[i]
		if !rv.NotifySubscribers {
			continue
		}
		if rv.Release == nil || rv.Publication == nil {
			return nil, fmt.Errorf("release version %s loaded without release or publication", rv.ID)
		}
		note, err := n.updateNote(ctx, rv)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, Message{
			PublicationID:    rv.Publication.ID,
			PublicationName:  rv.Publication.Title,
			PublicationSlug:  rv.Publication.Slug,
			ReleaseVersionID: rv.ID,
			ReleaseName:      rv.Release.Title,
			ReleaseSlug:      rv.Release.Slug,
			Amendment:        rv.Amendment(),
			UpdateNote:       note,
		})
	}
	return msgs, nil
}

func (n *Notifier) updateNote(ctx context.Context, rv *content.ReleaseVersion) (string, error) {
	if !rv.Amendment() {
		return DefaultUpdateNote, nil
	}
	u, err := n.store.LatestUpdate(ctx, rv.ID)
	if errors.Is(err, content.ErrNotFound) {
		return DefaultUpdateNote, nil
	}
	if err != nil {
		return "", err
	}
	return u.Reason, nil
}
