package dynamodb

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/dwsmith1983/releasepub/internal/filter"
	"github.com/dwsmith1983/releasepub/internal/provider"
	"github.com/dwsmith1983/releasepub/pkg/types"
)

// batchGetLimit is the DynamoDB BatchGetItem key limit per request.
const batchGetLimit = 100

type statusItem struct {
	PartitionKey    string `dynamodbav:"PartitionKey"`
	RowKey          string `dynamodbav:"RowKey"`
	ContentStage    string `dynamodbav:"ContentStage"`
	FilesStage      string `dynamodbav:"FilesStage"`
	PublishingStage string `dynamodbav:"PublishingStage"`
	OverallStage    string `dynamodbav:"OverallStage"`
	Publish         string `dynamodbav:"Publish,omitempty"`
	Immediate       bool   `dynamodbav:"Immediate"`
	Created         string `dynamodbav:"Created"`
	LastUpdated     string `dynamodbav:"LastUpdated"`
}

func toItem(s types.ReleasePublishingStatus) statusItem {
	it := statusItem{
		PartitionKey:    s.Key.ReleaseVersionID.String(),
		RowKey:          s.Key.ReleaseStatusID.String(),
		ContentStage:    string(s.ContentStage),
		FilesStage:      string(s.FilesStage),
		PublishingStage: string(s.PublishingStage),
		OverallStage:    string(s.OverallStage),
		Immediate:       s.Immediate,
		Created:         formatTime(s.Created),
		LastUpdated:     formatTime(s.LastUpdated),
	}
	if s.Publish != nil {
		it.Publish = formatTime(*s.Publish)
	}
	return it
}

func (it statusItem) key() (types.ReleasePublishingKey, error) {
	rv, err := uuid.Parse(it.PartitionKey)
	if err != nil {
		return types.ReleasePublishingKey{}, fmt.Errorf("partition key %q: %w", it.PartitionKey, err)
	}
	st, err := uuid.Parse(it.RowKey)
	if err != nil {
		return types.ReleasePublishingKey{}, fmt.Errorf("row key %q: %w", it.RowKey, err)
	}
	return types.ReleasePublishingKey{ReleaseVersionID: rv, ReleaseStatusID: st}, nil
}

func (it statusItem) status() (types.ReleasePublishingStatus, error) {
	key, err := it.key()
	if err != nil {
		return types.ReleasePublishingStatus{}, err
	}
	s := types.ReleasePublishingStatus{
		Key:             key,
		ContentStage:    types.ContentStage(it.ContentStage),
		FilesStage:      types.FilesStage(it.FilesStage),
		PublishingStage: types.PublishingStage(it.PublishingStage),
		OverallStage:    types.OverallStage(it.OverallStage),
		Immediate:       it.Immediate,
	}
	if it.Publish != "" {
		t, err := time.Parse(filter.DateTimeLayout, it.Publish)
		if err != nil {
			return types.ReleasePublishingStatus{}, fmt.Errorf("publish date %q: %w", it.Publish, err)
		}
		s.Publish = &t
	}
	// Created and LastUpdated are informational; tolerate legacy blanks.
	s.Created, _ = time.Parse(filter.DateTimeLayout, it.Created)
	s.LastUpdated, _ = time.Parse(filter.DateTimeLayout, it.LastUpdated)
	return s, nil
}

// GetScheduledReleasesForPublishingRelativeToDate returns the keys of scheduled
// attempts whose publish date compares with ref as requested.
func (s *StatusStore) GetScheduledReleasesForPublishingRelativeToDate(ctx context.Context, cmp types.DateComparison, ref time.Time) ([]types.ReleasePublishingKey, error) {
	f, err := filter.ScheduledRelativeTo(cmp, ref)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", provider.ErrInvalidArgument, err)
	}
	return s.queryKeys(ctx, f)
}

// GetScheduledReleasesReadyForPublishing returns the keys of attempts whose files
// are copied and which are waiting on the completion sequence.
func (s *StatusStore) GetScheduledReleasesReadyForPublishing(ctx context.Context) ([]types.ReleasePublishingKey, error) {
	return s.queryKeys(ctx, filter.ScheduledReadyForPublishing())
}

// GetReleasesStartedPublishing returns the keys of attempts left at Publishing
// Started by an interrupted completion run.
func (s *StatusStore) GetReleasesStartedPublishing(ctx context.Context) ([]types.ReleasePublishingKey, error) {
	return s.queryKeys(ctx, filter.StartedPublishing())
}

// GetReleasesWithOverallStages returns the keys of one release-version's attempts
// in any of stages. An empty stage list is rejected before the table is read.
func (s *StatusStore) GetReleasesWithOverallStages(ctx context.Context, releaseVersionID uuid.UUID, stages []types.OverallStage) ([]types.ReleasePublishingKey, error) {
	f, err := filter.WithOverallStages(releaseVersionID, stages)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", provider.ErrInvalidArgument, err)
	}
	return s.queryKeys(ctx, f)
}

// queryKeys runs f against the table, draining every page.
func (s *StatusStore) queryKeys(ctx context.Context, f filter.Expr) ([]types.ReleasePublishingKey, error) {
	cf, err := compileFilter(f)
	if err != nil {
		return nil, fmt.Errorf("compiling filter %q: %w", f.String(), err)
	}
	s.logger.DebugContext(ctx, "querying publishing statuses", "filter", f.String())

	var keys []types.ReleasePublishingKey
	var startKey map[string]ddbtypes.AttributeValue
	for {
		var (
			items   []map[string]ddbtypes.AttributeValue
			lastKey map[string]ddbtypes.AttributeValue
		)
		if cf.keyCondition != "" {
			in := &dynamodb.QueryInput{
				TableName:                 &s.tableName,
				KeyConditionExpression:    aws.String(cf.keyCondition),
				ExpressionAttributeNames:  cf.names,
				ExpressionAttributeValues: cf.values,
				ExclusiveStartKey:         startKey,
				Limit:                     aws.Int32(provider.PageSize),
			}
			if cf.filter != "" {
				in.FilterExpression = aws.String(cf.filter)
			}
			out, err := s.client.Query(ctx, in)
			if err != nil {
				return nil, fmt.Errorf("querying publishing statuses: %w", err)
			}
			items, lastKey = out.Items, out.LastEvaluatedKey
		} else {
			out, err := s.client.Scan(ctx, &dynamodb.ScanInput{
				TableName:                 &s.tableName,
				FilterExpression:          aws.String(cf.filter),
				ExpressionAttributeNames:  cf.names,
				ExpressionAttributeValues: cf.values,
				ExclusiveStartKey:         startKey,
				Limit:                     aws.Int32(provider.PageSize),
			})
			if err != nil {
				return nil, fmt.Errorf("scanning publishing statuses: %w", err)
			}
			items, lastKey = out.Items, out.LastEvaluatedKey
		}

		for _, item := range items {
			var it statusItem
			if err := attributevalue.UnmarshalMap(item, &it); err != nil {
				return nil, fmt.Errorf("unmarshal publishing status: %w", err)
			}
			k, err := it.key()
			if err != nil {
				return nil, err
			}
			keys = append(keys, k)
		}

		if len(lastKey) == 0 {
			return keys, nil
		}
		startKey = lastKey
	}
}

// Get returns the status record for key, or nil when none exists.
func (s *StatusStore) Get(ctx context.Context, key types.ReleasePublishingKey) (*types.ReleasePublishingStatus, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      &s.tableName,
		Key:            statusKey(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("getting publishing status %s: %w", key, err)
	}
	if out.Item == nil {
		return nil, nil
	}
	var it statusItem
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return nil, fmt.Errorf("unmarshal publishing status %s: %w", key, err)
	}
	st, err := it.status()
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// GetStatuses returns the records for keys in input order. Keys without a record
// are omitted.
func (s *StatusStore) GetStatuses(ctx context.Context, keys []types.ReleasePublishingKey) ([]types.ReleasePublishingStatus, error) {
	found := make(map[types.ReleasePublishingKey]types.ReleasePublishingStatus, len(keys))
	for start := 0; start < len(keys); start += batchGetLimit {
		end := min(start+batchGetLimit, len(keys))
		req := make([]map[string]ddbtypes.AttributeValue, 0, end-start)
		for _, k := range keys[start:end] {
			req = append(req, statusKey(k))
		}
		pending := map[string]ddbtypes.KeysAndAttributes{
			s.tableName: {Keys: req, ConsistentRead: aws.Bool(true)},
		}
		for len(pending) > 0 {
			out, err := s.client.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{RequestItems: pending})
			if err != nil {
				return nil, fmt.Errorf("batch getting publishing statuses: %w", err)
			}
			for _, item := range out.Responses[s.tableName] {
				var it statusItem
				if err := attributevalue.UnmarshalMap(item, &it); err != nil {
					return nil, fmt.Errorf("unmarshal publishing status: %w", err)
				}
				st, err := it.status()
				if err != nil {
					return nil, err
				}
				found[st.Key] = st
			}
			pending = out.UnprocessedKeys
		}
	}

	result := make([]types.ReleasePublishingStatus, 0, len(found))
	for _, k := range keys {
		if st, ok := found[k]; ok {
			result = append(result, st)
		}
	}
	return result, nil
}

// Put writes a full status record, replacing any existing one.
func (s *StatusStore) Put(ctx context.Context, status types.ReleasePublishingStatus) error {
	if status.LastUpdated.IsZero() {
		status.LastUpdated = s.now()
	}
	if status.Created.IsZero() {
		status.Created = status.LastUpdated
	}
	item, err := attributevalue.MarshalMap(toItem(status))
	if err != nil {
		return fmt.Errorf("marshal publishing status %s: %w", status.Key, err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &s.tableName,
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("putting publishing status %s: %w", status.Key, err)
	}
	return nil
}

// UpdatePublishingStage sets the publishing stage of an existing record and
// moves its overall stage in step. It never creates a record.
func (s *StatusStore) UpdatePublishingStage(ctx context.Context, key types.ReleasePublishingKey, stage types.PublishingStage) error {
	names := map[string]string{
		"#ps": attrPublishingStage,
		"#lu": attrLastUpdated,
		"#pk": attrPartitionKey,
	}
	values := map[string]ddbtypes.AttributeValue{
		":ps": &ddbtypes.AttributeValueMemberS{Value: string(stage)},
		":lu": &ddbtypes.AttributeValueMemberS{Value: formatTime(s.now())},
	}
	update := "SET #ps = :ps, #lu = :lu"
	if overall, ok := types.OverallFor(stage); ok {
		names["#os"] = attrOverallStage
		values[":os"] = &ddbtypes.AttributeValueMemberS{Value: string(overall)}
		update += ", #os = :os"
	}

	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 &s.tableName,
		Key:                       statusKey(key),
		UpdateExpression:          aws.String(update),
		ConditionExpression:       aws.String("attribute_exists(#pk)"),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return fmt.Errorf("%w: %s", provider.ErrStatusNotFound, key)
		}
		return fmt.Errorf("updating publishing stage of %s: %w", key, err)
	}
	s.logger.InfoContext(ctx, "publishing stage updated", "key", key.String(), "stage", string(stage))
	return nil
}
