// Package lambda provides shared types, wiring and handlers for the Lambda
// entry points.
package lambda

import (
	"context"
	"fmt"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"github.com/dwsmith1983/releasepub/internal/publisher"
	"github.com/dwsmith1983/releasepub/pkg/types"
)

// CompletionMessage is the body of an upstream stage-completion message on
// the completion queue.
type CompletionMessage struct {
	ReleaseVersionID string `json:"releaseVersionId"`
	ReleaseStatusID  string `json:"releaseStatusId"`
}

// Key parses the message into a publishing key.
func (m CompletionMessage) Key() (types.ReleasePublishingKey, error) {
	rv, err := uuid.Parse(m.ReleaseVersionID)
	if err != nil {
		return types.ReleasePublishingKey{}, fmt.Errorf("releaseVersionId: %w", err)
	}
	st, err := uuid.Parse(m.ReleaseStatusID)
	if err != nil {
		return types.ReleasePublishingKey{}, fmt.Errorf("releaseStatusId: %w", err)
	}
	return types.ReleasePublishingKey{ReleaseVersionID: rv, ReleaseStatusID: st}, nil
}

// CompletionEvent is the input to the completer Lambda.
type CompletionEvent = events.SQSEvent

// CompletionResponse reports the messages SQS should redeliver.
type CompletionResponse = events.SQSEventResponse

// ScheduledResponse is the output of the scheduled Lambda.
type ScheduledResponse struct {
	Candidates      int `json:"candidates"`
	Completed       int `json:"completed"`
	AlreadyComplete int `json:"alreadyComplete"`
	NotReady        int `json:"notReady"`
}

// Completer runs the completion orchestrator for a batch of keys.
type Completer interface {
	CompletePublishingIfAllPriorStagesComplete(ctx context.Context, keys []types.ReleasePublishingKey) (*publisher.Result, error)
}
