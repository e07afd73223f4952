package dynamodb

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
)

// AcquireLock attempts to acquire a distributed lock with the given key and TTL.
// Uses a conditional PutItem that succeeds only if the lock doesn't exist or has expired.
// An empty token means the lock is held elsewhere.
func (s *StatusStore) AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	now := s.now()
	token := uuid.NewString()

	_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &s.tableName,
		Item: map[string]ddbtypes.AttributeValue{
			attrPartitionKey: &ddbtypes.AttributeValueMemberS{Value: lockPK(key)},
			attrRowKey:       &ddbtypes.AttributeValueMemberS{Value: lockSK()},
			attrLockToken:    &ddbtypes.AttributeValueMemberS{Value: token},
			attrTTL:          &ddbtypes.AttributeValueMemberN{Value: strconv.FormatInt(ttlEpoch(now, ttl), 10)},
		},
		ConditionExpression: aws.String("attribute_not_exists(#pk) OR #ttl < :now"),
		ExpressionAttributeNames: map[string]string{
			"#pk":  attrPartitionKey,
			"#ttl": attrTTL,
		},
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":now": &ddbtypes.AttributeValueMemberN{Value: strconv.FormatInt(now.Unix(), 10)},
		},
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return "", nil
		}
		return "", fmt.Errorf("acquiring lock %q: %w", key, err)
	}
	return token, nil
}

// ReleaseLock releases a lock only if token still owns it.
func (s *StatusStore) ReleaseLock(ctx context.Context, key, token string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: &s.tableName,
		Key: map[string]ddbtypes.AttributeValue{
			attrPartitionKey: &ddbtypes.AttributeValueMemberS{Value: lockPK(key)},
			attrRowKey:       &ddbtypes.AttributeValueMemberS{Value: lockSK()},
		},
		ConditionExpression: aws.String("#token = :token"),
		ExpressionAttributeNames: map[string]string{
			"#token": attrLockToken,
		},
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":token": &ddbtypes.AttributeValueMemberS{Value: token},
		},
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			// Lock expired and was taken over; nothing of ours to release.
			return nil
		}
		return fmt.Errorf("releasing lock %q: %w", key, err)
	}
	return nil
}
