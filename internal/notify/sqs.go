package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// sendBatchLimit is the SQS SendMessageBatch entry limit.
const sendBatchLimit = 10

// SQSAPI is the subset of the SQS client used by SQSSender.
type SQSAPI interface {
	SendMessageBatch(ctx context.Context, params *sqs.SendMessageBatchInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageBatchOutput, error)
}

// SQSSender queues notifications for the subscriber mailer.
type SQSSender struct {
	client   SQSAPI
	queueURL string
}

// SQSOption configures an SQSSender.
type SQSOption func(*SQSSender)

// WithSQSClient sets a custom SQS client (useful for testing).
func WithSQSClient(c SQSAPI) SQSOption {
	return func(s *SQSSender) { s.client = c }
}

// NewSQSSender creates a sender for queueURL.
func NewSQSSender(ctx context.Context, queueURL string, opts ...SQSOption) (*SQSSender, error) {
	if queueURL == "" {
		return nil, fmt.Errorf("notification queue URL required")
	}
	s := &SQSSender{queueURL: queueURL}
	for _, o := range opts {
		o(s)
	}
	if s.client == nil {
		cfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("loading AWS config: %w", err)
		}
		s.client = sqs.NewFromConfig(cfg)
	}
	return s, nil
}

// Send queues msgs in batches of at most ten.
func (s *SQSSender) Send(ctx context.Context, msgs []Message) error {
	for start := 0; start < len(msgs); start += sendBatchLimit {
		end := min(start+sendBatchLimit, len(msgs))
		entries := make([]sqstypes.SendMessageBatchRequestEntry, 0, end-start)
		for i, m := range msgs[start:end] {
			body, err := json.Marshal(m)
			if err != nil {
				return fmt.Errorf("marshaling notification for %s: %w", m.ReleaseVersionID, err)
			}
			entries = append(entries, sqstypes.SendMessageBatchRequestEntry{
				Id:          aws.String(strconv.Itoa(start + i)),
				MessageBody: aws.String(string(body)),
			})
		}

		out, err := s.client.SendMessageBatch(ctx, &sqs.SendMessageBatchInput{
			QueueUrl: aws.String(s.queueURL),
			Entries:  entries,
		})
		if err != nil {
			return fmt.Errorf("sending notification batch: %w", err)
		}
		if len(out.Failed) > 0 {
			f := out.Failed[0]
			return fmt.Errorf("%d notifications rejected, first %s: %s",
				len(out.Failed), aws.ToString(f.Code), aws.ToString(f.Message))
		}
	}
	return nil
}
