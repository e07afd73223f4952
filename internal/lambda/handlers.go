package lambda

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-lambda-go/events"

	"github.com/dwsmith1983/releasepub/internal/provider"
	"github.com/dwsmith1983/releasepub/pkg/types"
)

// ScheduledKeys returns the candidates for a scheduled sweep: attempts queued
// behind copied files, attempts scheduled on or before now, and attempts an
// interrupted run left at Started. The orchestrator's readiness gate decides
// which of them complete.
func ScheduledKeys(ctx context.Context, status provider.StatusStore, now time.Time) ([]types.ReleasePublishingKey, error) {
	ready, err := status.GetScheduledReleasesReadyForPublishing(ctx)
	if err != nil {
		return nil, fmt.Errorf("querying ready releases: %w", err)
	}
	due, err := status.GetScheduledReleasesForPublishingRelativeToDate(ctx, types.BeforeOrOn, now)
	if err != nil {
		return nil, fmt.Errorf("querying due releases: %w", err)
	}
	started, err := status.GetReleasesStartedPublishing(ctx)
	if err != nil {
		return nil, fmt.Errorf("querying started releases: %w", err)
	}
	keys := append(ready, due...)
	return uniqueKeys(append(keys, started...)), nil
}

// HandleScheduled runs one scheduled sweep.
func HandleScheduled(ctx context.Context, c Completer, status provider.StatusStore, now time.Time, logger *slog.Logger) (ScheduledResponse, error) {
	keys, err := ScheduledKeys(ctx, status, now)
	if err != nil {
		return ScheduledResponse{}, err
	}
	resp := ScheduledResponse{Candidates: len(keys)}
	if len(keys) == 0 {
		logger.DebugContext(ctx, "no scheduled releases to complete")
		return resp, nil
	}

	res, err := c.CompletePublishingIfAllPriorStagesComplete(ctx, keys)
	if err != nil {
		return resp, err
	}
	resp.Completed = len(res.Completed)
	resp.AlreadyComplete = len(res.AlreadyComplete)
	resp.NotReady = len(res.NotReady)
	logger.InfoContext(ctx, "scheduled sweep complete",
		"candidates", resp.Candidates, "completed", resp.Completed, "notReady", resp.NotReady)
	return resp, nil
}

// HandleCompletion completes the attempts named by a batch of queue messages.
// Malformed messages are logged and dropped. When the run fails every
// well-formed message is reported back for redelivery.
func HandleCompletion(ctx context.Context, c Completer, event CompletionEvent, logger *slog.Logger) (CompletionResponse, error) {
	var (
		keys       []types.ReleasePublishingKey
		messageIDs []string
	)
	for _, record := range event.Records {
		var msg CompletionMessage
		if err := json.Unmarshal([]byte(record.Body), &msg); err != nil {
			logger.ErrorContext(ctx, "dropping malformed completion message", "messageId", record.MessageId, "error", err)
			continue
		}
		key, err := msg.Key()
		if err != nil {
			logger.ErrorContext(ctx, "dropping malformed completion message", "messageId", record.MessageId, "error", err)
			continue
		}
		keys = append(keys, key)
		messageIDs = append(messageIDs, record.MessageId)
	}

	var resp CompletionResponse
	if len(keys) == 0 {
		return resp, nil
	}

	if _, err := c.CompletePublishingIfAllPriorStagesComplete(ctx, uniqueKeys(keys)); err != nil {
		logger.ErrorContext(ctx, "completion failed, returning batch for redelivery", "messages", len(messageIDs), "error", err)
		for _, id := range messageIDs {
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{ItemIdentifier: id})
		}
	}
	return resp, nil
}

func uniqueKeys(keys []types.ReleasePublishingKey) []types.ReleasePublishingKey {
	seen := make(map[types.ReleasePublishingKey]bool, len(keys))
	out := make([]types.ReleasePublishingKey, 0, len(keys))
	for _, k := range keys {
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}
