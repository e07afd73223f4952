package testutil

import (
	"testing"

	"github.com/dwsmith1983/releasepub/pkg/types"
)

// NewStatus builds a status record for key with the given content and files stages.
func NewStatus(key types.ReleasePublishingKey, content types.ContentStage, files types.FilesStage) types.ReleasePublishingStatus {
	return types.ReleasePublishingStatus{
		Key:             key,
		ContentStage:    content,
		FilesStage:      files,
		PublishingStage: types.PublishingScheduled,
		OverallStage:    types.OverallStarted,
	}
}

// AssertNoStageWrites fails the test if key received any publishing stage write.
func AssertNoStageWrites(t *testing.T, store *MockStatusStore, key types.ReleasePublishingKey) {
	t.Helper()
	for _, w := range store.Writes() {
		if w.Key == key {
			t.Errorf("unexpected publishing stage write %s for %s", w.Stage, key)
		}
	}
}

// AssertStages fails the test unless key received exactly the given stage writes, in order.
func AssertStages(t *testing.T, store *MockStatusStore, key types.ReleasePublishingKey, want ...types.PublishingStage) {
	t.Helper()
	var got []types.PublishingStage
	for _, w := range store.Writes() {
		if w.Key == key {
			got = append(got, w.Stage)
		}
	}
	if len(got) != len(want) {
		t.Fatalf("stage writes for %s = %v, want %v", key, got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("stage writes for %s = %v, want %v", key, got, want)
		}
	}
}
