package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	ebtypes "github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
)

const (
	eventBridgePrefix = "eventbridge:"
	eventSource       = "releasepub"
	putEventsLimit    = 10
)

// EventBridgeAPI is the subset of the EventBridge client used for publishing.
type EventBridgeAPI interface {
	PutEvents(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

type eventBridgeTransport struct {
	client EventBridgeAPI
	bus    string
}

func (r *Raiser) newEventBridge(ctx context.Context, bus string) (Transport, error) {
	if bus == "" {
		return nil, fmt.Errorf("event bus name required")
	}
	if r.eventBridge == nil {
		cfg, err := r.loadAWSConfig(ctx)
		if err != nil {
			return nil, err
		}
		r.eventBridge = eventbridge.NewFromConfig(cfg)
	}
	return &eventBridgeTransport{client: r.eventBridge, bus: bus}, nil
}

// Send puts envelopes in batches of at most ten. A failed batch does not stop
// later batches.
func (t *eventBridgeTransport) Send(ctx context.Context, envs []Envelope) error {
	var errs []error
	for start := 0; start < len(envs); start += putEventsLimit {
		end := min(start+putEventsLimit, len(envs))
		if err := t.put(ctx, envs[start:end]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t *eventBridgeTransport) put(ctx context.Context, envs []Envelope) error {
	entries := make([]ebtypes.PutEventsRequestEntry, 0, len(envs))
	for _, env := range envs {
		detail, err := json.Marshal(env)
		if err != nil {
			return fmt.Errorf("marshaling event %s: %w", env.ID, err)
		}
		entries = append(entries, ebtypes.PutEventsRequestEntry{
			EventBusName: aws.String(t.bus),
			Source:       aws.String(eventSource),
			DetailType:   aws.String(env.EventType),
			Detail:       aws.String(string(detail)),
			Time:         aws.Time(env.EventTime),
		})
	}

	out, err := t.client.PutEvents(ctx, &eventbridge.PutEventsInput{Entries: entries})
	if err != nil {
		return fmt.Errorf("putting events: %w", err)
	}
	if out.FailedEntryCount > 0 {
		for _, e := range out.Entries {
			if e.ErrorCode != nil {
				return fmt.Errorf("%d of %d events rejected, first %s: %s",
					out.FailedEntryCount, len(entries), aws.ToString(e.ErrorCode), aws.ToString(e.ErrorMessage))
			}
		}
		return fmt.Errorf("%d of %d events rejected", out.FailedEntryCount, len(entries))
	}
	return nil
}
