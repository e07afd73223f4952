// Package types defines the public domain types for the release publishing pipeline.
package types

import "fmt"

// ContentStage is the progress of the release content copy for one publishing attempt.
type ContentStage string

// ContentStage values.
const (
	ContentNotStarted ContentStage = "NotStarted"
	ContentQueued     ContentStage = "Queued"
	ContentScheduled  ContentStage = "Scheduled"
	ContentComplete   ContentStage = "Complete"
	ContentFailed     ContentStage = "Failed"
)

// FilesStage is the progress of the release file copy for one publishing attempt.
type FilesStage string

// FilesStage values.
const (
	FilesNotStarted FilesStage = "NotStarted"
	FilesScheduled  FilesStage = "Scheduled"
	FilesComplete   FilesStage = "Complete"
	FilesFailed     FilesStage = "Failed"
)

// PublishingStage is the progress of the final completion sequence.
type PublishingStage string

// PublishingStage values.
const (
	PublishingNotStarted PublishingStage = "NotStarted"
	PublishingScheduled  PublishingStage = "Scheduled"
	PublishingStarted    PublishingStage = "Started"
	PublishingComplete   PublishingStage = "Complete"
	PublishingFailed     PublishingStage = "Failed"
)

// OverallStage tracks the attempt as a whole, in parallel with the individual stages.
type OverallStage string

// OverallStage values.
const (
	OverallScheduled OverallStage = "Scheduled"
	OverallStarted   OverallStage = "Started"
	OverallComplete  OverallStage = "Complete"
	OverallFailed    OverallStage = "Failed"
)

// OverallFor returns the overall stage implied by a publishing stage transition.
// The second return is false when the publishing stage does not move the overall stage.
func OverallFor(stage PublishingStage) (OverallStage, bool) {
	switch stage {
	case PublishingStarted:
		return OverallStarted, true
	case PublishingComplete:
		return OverallComplete, true
	case PublishingFailed:
		return OverallFailed, true
	default:
		return "", false
	}
}

// ParseOverallStage validates s as an OverallStage.
func ParseOverallStage(s string) (OverallStage, error) {
	switch st := OverallStage(s); st {
	case OverallScheduled, OverallStarted, OverallComplete, OverallFailed:
		return st, nil
	}
	return "", fmt.Errorf("unknown overall stage %q", s)
}

// ParsePublishingStage validates s as a PublishingStage.
func ParsePublishingStage(s string) (PublishingStage, error) {
	switch st := PublishingStage(s); st {
	case PublishingNotStarted, PublishingScheduled, PublishingStarted, PublishingComplete, PublishingFailed:
		return st, nil
	}
	return "", fmt.Errorf("unknown publishing stage %q", s)
}

// DateComparison selects how a scheduled publish date is compared with a reference date.
type DateComparison string

// DateComparison values.
const (
	Before     DateComparison = "Before"
	BeforeOrOn DateComparison = "BeforeOrOn"
	After      DateComparison = "After"
	AfterOrOn  DateComparison = "AfterOrOn"
	On         DateComparison = "On"
	NotOn      DateComparison = "NotOn"
)

// EventType keys the topic configuration used to deliver a domain event.
type EventType string

const (
	EventReleaseVersionPublished EventType = "ReleaseVersionPublished"
)
