// Package providertest provides shared conformance tests for
// provider.StatusStore implementations. Call RunAll from a test function to
// verify a store satisfies the full behavioral contract. Every test writes
// fresh keys so the suite can run against a shared table.
package providertest

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/dwsmith1983/releasepub/internal/provider"
	"github.com/dwsmith1983/releasepub/pkg/types"
)

// RunAll runs the complete status store conformance suite as subtests.
func RunAll(t *testing.T, store provider.StatusStore) {
	t.Helper()

	t.Run("StatusPutGet", func(t *testing.T) { TestStatusPutGet(t, store) })
	t.Run("GetStatusesSkipsMissing", func(t *testing.T) { TestGetStatusesSkipsMissing(t, store) })
	t.Run("UpdatePublishingStage", func(t *testing.T) { TestUpdatePublishingStage(t, store) })
	t.Run("UpdateMissingStatus", func(t *testing.T) { TestUpdateMissingStatus(t, store) })
	t.Run("ScheduledRelativeToDate", func(t *testing.T) { TestScheduledRelativeToDate(t, store) })
	t.Run("ReadyForPublishing", func(t *testing.T) { TestReadyForPublishing(t, store) })
	t.Run("StartedPublishing", func(t *testing.T) { TestStartedPublishing(t, store) })
	t.Run("OverallStages", func(t *testing.T) { TestOverallStages(t, store) })
	t.Run("OverallStagesRejectsEmpty", func(t *testing.T) { TestOverallStagesRejectsEmpty(t, store) })
	t.Run("Locking", func(t *testing.T) { TestLocking(t, store) })
	t.Run("LockExpiry", func(t *testing.T) { TestLockExpiry(t, store) })
}

func newKey() types.ReleasePublishingKey {
	return types.ReleasePublishingKey{ReleaseVersionID: uuid.New(), ReleaseStatusID: uuid.New()}
}

func newStatus(k types.ReleasePublishingKey, content types.ContentStage, files types.FilesStage, publishing types.PublishingStage, overall types.OverallStage) types.ReleasePublishingStatus {
	now := time.Now().UTC().Truncate(time.Second)
	return types.ReleasePublishingStatus{
		Key:             k,
		ContentStage:    content,
		FilesStage:      files,
		PublishingStage: publishing,
		OverallStage:    overall,
		Created:         now,
		LastUpdated:     now,
	}
}
