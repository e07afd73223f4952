package types

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ReleasePublishingKey addresses one publishing attempt for one release-version.
// A release-version may have several keys when publishing was retried.
type ReleasePublishingKey struct {
	ReleaseVersionID uuid.UUID `json:"releaseVersionId"`
	ReleaseStatusID  uuid.UUID `json:"releaseStatusId"`
}

// String renders the key as "<releaseVersionId>:<releaseStatusId>".
func (k ReleasePublishingKey) String() string {
	return k.ReleaseVersionID.String() + ":" + k.ReleaseStatusID.String()
}

// ParseReleasePublishingKey parses the form produced by ReleasePublishingKey.String.
func ParseReleasePublishingKey(s string) (ReleasePublishingKey, error) {
	rv, st, ok := strings.Cut(s, ":")
	if !ok {
		return ReleasePublishingKey{}, fmt.Errorf("publishing key %q: expected <releaseVersionId>:<releaseStatusId>", s)
	}
	rvID, err := uuid.Parse(rv)
	if err != nil {
		return ReleasePublishingKey{}, fmt.Errorf("publishing key %q: release version id: %w", s, err)
	}
	stID, err := uuid.Parse(st)
	if err != nil {
		return ReleasePublishingKey{}, fmt.Errorf("publishing key %q: release status id: %w", s, err)
	}
	return ReleasePublishingKey{ReleaseVersionID: rvID, ReleaseStatusID: stID}, nil
}

// ReleasePublishingStatus is the persisted status record of one publishing attempt.
type ReleasePublishingStatus struct {
	Key             ReleasePublishingKey `json:"key"`
	ContentStage    ContentStage         `json:"contentStage"`
	FilesStage      FilesStage           `json:"filesStage"`
	PublishingStage PublishingStage      `json:"publishingStage"`
	OverallStage    OverallStage         `json:"overallStage"`
	Publish         *time.Time           `json:"publish,omitempty"`
	Immediate       bool                 `json:"immediate"`
	Created         time.Time            `json:"created"`
	LastUpdated     time.Time            `json:"lastUpdated"`
}

// PriorStagesComplete reports whether content and files have both finished.
func (s ReleasePublishingStatus) PriorStagesComplete() bool {
	return s.ContentStage == ContentComplete && s.FilesStage == FilesComplete
}

// PublishedReleaseVersionInfo describes one release-version completed in a run.
type PublishedReleaseVersionInfo struct {
	ReleaseVersionID                           uuid.UUID
	ReleaseID                                  uuid.UUID
	ReleaseSlug                                string
	PublicationID                              uuid.UUID
	PublicationSlug                            string
	PublicationLatestPublishedReleaseVersionID uuid.UUID
	PreviousLatestReleaseID                    *uuid.UUID
}

// ReleaseVersionPublishedEvent is the payload delivered to external subscribers.
type ReleaseVersionPublishedEvent struct {
	ReleaseVersionID                           uuid.UUID  `json:"releaseVersionId"`
	ReleaseID                                  uuid.UUID  `json:"releaseId"`
	ReleaseSlug                                string     `json:"releaseSlug"`
	PublicationID                              uuid.UUID  `json:"publicationId"`
	PublicationSlug                            string     `json:"publicationSlug"`
	PublicationLatestPublishedReleaseVersionID uuid.UUID  `json:"publicationLatestPublishedReleaseVersionId"`
	PreviousLatestReleaseID                    *uuid.UUID `json:"previousLatestReleaseId,omitempty"`
}

// TopicConfig maps an event type key to an external topic.
type TopicConfig struct {
	Key            string `yaml:"key" json:"key"`
	TopicEndpoint  string `yaml:"topicEndpoint" json:"topicEndpoint"`
	TopicAccessKey string `yaml:"topicAccessKey,omitempty" json:"topicAccessKey,omitempty"`
}
