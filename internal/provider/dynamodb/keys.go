package dynamodb

import (
	"time"

	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/dwsmith1983/releasepub/internal/filter"
	"github.com/dwsmith1983/releasepub/pkg/types"
)

// Attribute names. Status items reuse the filter field names so compiled
// filters address them directly.
const (
	attrPartitionKey    = filter.FieldPartitionKey
	attrRowKey          = filter.FieldRowKey
	attrContentStage    = filter.FieldContentStage
	attrFilesStage      = filter.FieldFilesStage
	attrPublishingStage = filter.FieldPublishingStage
	attrOverallStage    = filter.FieldOverallStage
	attrPublish         = filter.FieldPublish
	attrLastUpdated     = "LastUpdated"
	attrLockToken       = "token"
	attrTTL             = "ttl"
)

const (
	prefixLock = "LOCK#"
	skLock     = "LOCK"
)

func lockPK(key string) string { return prefixLock + key }
func lockSK() string           { return skLock }

func statusKey(k types.ReleasePublishingKey) map[string]ddbtypes.AttributeValue {
	return map[string]ddbtypes.AttributeValue{
		attrPartitionKey: &ddbtypes.AttributeValueMemberS{Value: k.ReleaseVersionID.String()},
		attrRowKey:       &ddbtypes.AttributeValueMemberS{Value: k.ReleaseStatusID.String()},
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(filter.DateTimeLayout)
}

func ttlEpoch(now time.Time, d time.Duration) int64 {
	return now.Add(d).Unix()
}
