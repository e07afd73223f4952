package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// SNSAPI is the subset of the SNS client used for publishing.
type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type snsTransport struct {
	client   SNSAPI
	topicARN string
}

func (r *Raiser) newSNS(ctx context.Context, topicARN string) (Transport, error) {
	if r.sns == nil {
		cfg, err := r.loadAWSConfig(ctx)
		if err != nil {
			return nil, err
		}
		r.sns = sns.NewFromConfig(cfg)
	}
	return &snsTransport{client: r.sns, topicARN: topicARN}, nil
}

// Send publishes one message per envelope.
func (t *snsTransport) Send(ctx context.Context, envs []Envelope) error {
	var errs []error
	for _, env := range envs {
		data, err := json.Marshal(env)
		if err != nil {
			errs = append(errs, fmt.Errorf("marshaling event %s: %w", env.ID, err))
			continue
		}
		_, err = t.client.Publish(ctx, &sns.PublishInput{
			TopicArn: aws.String(t.topicARN),
			Subject:  aws.String(env.EventType),
			Message:  aws.String(string(data)),
			MessageAttributes: map[string]snstypes.MessageAttributeValue{
				"eventType": {
					DataType:    aws.String("String"),
					StringValue: aws.String(env.EventType),
				},
			},
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("publishing event %s to SNS: %w", env.ID, err))
		}
	}
	return errors.Join(errs...)
}
