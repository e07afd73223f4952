package providertest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/releasepub/internal/provider"
	"github.com/dwsmith1983/releasepub/pkg/types"
)

// TestStatusPutGet verifies a stored record round-trips and unknown keys read as nil.
func TestStatusPutGet(t *testing.T, store provider.StatusStore) {
	ctx := context.Background()
	k := newKey()
	publish := time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)
	s := newStatus(k, types.ContentComplete, types.FilesComplete, types.PublishingScheduled, types.OverallStarted)
	s.Publish = &publish

	require.NoError(t, store.Put(ctx, s))

	got, err := store.Get(ctx, k)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, k, got.Key)
	assert.Equal(t, types.ContentComplete, got.ContentStage)
	assert.Equal(t, types.FilesComplete, got.FilesStage)
	assert.Equal(t, types.PublishingScheduled, got.PublishingStage)
	assert.Equal(t, types.OverallStarted, got.OverallStage)
	require.NotNil(t, got.Publish)
	assert.True(t, publish.Equal(*got.Publish))

	missing, err := store.Get(ctx, newKey())
	require.NoError(t, err)
	assert.Nil(t, missing)
}

// TestGetStatusesSkipsMissing verifies batch reads return only stored records.
func TestGetStatusesSkipsMissing(t *testing.T, store provider.StatusStore) {
	ctx := context.Background()
	k1, k2 := newKey(), newKey()
	require.NoError(t, store.Put(ctx, newStatus(k1, types.ContentComplete, types.FilesComplete, types.PublishingScheduled, types.OverallStarted)))
	require.NoError(t, store.Put(ctx, newStatus(k2, types.ContentScheduled, types.FilesComplete, types.PublishingScheduled, types.OverallStarted)))

	got, err := store.GetStatuses(ctx, []types.ReleasePublishingKey{k1, newKey(), k2})
	require.NoError(t, err)
	keys := make([]types.ReleasePublishingKey, 0, len(got))
	for _, s := range got {
		keys = append(keys, s.Key)
	}
	assert.ElementsMatch(t, []types.ReleasePublishingKey{k1, k2}, keys)
}

// TestUpdatePublishingStage verifies the publishing stage write and its overall stage.
func TestUpdatePublishingStage(t *testing.T, store provider.StatusStore) {
	ctx := context.Background()
	k := newKey()
	require.NoError(t, store.Put(ctx, newStatus(k, types.ContentComplete, types.FilesComplete, types.PublishingScheduled, types.OverallStarted)))

	require.NoError(t, store.UpdatePublishingStage(ctx, k, types.PublishingStarted))
	got, err := store.Get(ctx, k)
	require.NoError(t, err)
	assert.Equal(t, types.PublishingStarted, got.PublishingStage)
	assert.Equal(t, types.OverallStarted, got.OverallStage)
	assert.Equal(t, types.ContentComplete, got.ContentStage, "other stages untouched")

	require.NoError(t, store.UpdatePublishingStage(ctx, k, types.PublishingComplete))
	got, err = store.Get(ctx, k)
	require.NoError(t, err)
	assert.Equal(t, types.PublishingComplete, got.PublishingStage)
	assert.Equal(t, types.OverallComplete, got.OverallStage)
}

// TestUpdateMissingStatus verifies a stage write never creates a record.
func TestUpdateMissingStatus(t *testing.T, store provider.StatusStore) {
	ctx := context.Background()
	k := newKey()

	err := store.UpdatePublishingStage(ctx, k, types.PublishingStarted)
	assert.ErrorIs(t, err, provider.ErrStatusNotFound)

	got, err := store.Get(ctx, k)
	require.NoError(t, err)
	assert.Nil(t, got)
}

// TestScheduledRelativeToDate verifies the scheduled date comparisons.
func TestScheduledRelativeToDate(t *testing.T, store provider.StatusStore) {
	ctx := context.Background()
	ref := time.Date(2031, 6, 1, 9, 30, 0, 0, time.UTC)

	put := func(publish time.Time, overall types.OverallStage) types.ReleasePublishingKey {
		k := newKey()
		s := newStatus(k, types.ContentScheduled, types.FilesScheduled, types.PublishingScheduled, overall)
		s.Publish = &publish
		require.NoError(t, store.Put(ctx, s))
		return k
	}
	earlier := put(ref.Add(-time.Hour), types.OverallScheduled)
	exact := put(ref, types.OverallScheduled)
	later := put(ref.Add(time.Hour), types.OverallScheduled)
	started := put(ref.Add(-time.Hour), types.OverallStarted)

	tests := []struct {
		cmp     types.DateComparison
		want    []types.ReleasePublishingKey
		notWant []types.ReleasePublishingKey
	}{
		{types.Before, []types.ReleasePublishingKey{earlier}, []types.ReleasePublishingKey{exact, later, started}},
		{types.BeforeOrOn, []types.ReleasePublishingKey{earlier, exact}, []types.ReleasePublishingKey{later, started}},
		{types.After, []types.ReleasePublishingKey{later}, []types.ReleasePublishingKey{earlier, exact}},
		{types.AfterOrOn, []types.ReleasePublishingKey{exact, later}, []types.ReleasePublishingKey{earlier}},
		{types.On, []types.ReleasePublishingKey{exact}, []types.ReleasePublishingKey{earlier, later}},
		{types.NotOn, []types.ReleasePublishingKey{earlier, later}, []types.ReleasePublishingKey{exact, started}},
	}
	for _, tt := range tests {
		t.Run(string(tt.cmp), func(t *testing.T) {
			got, err := store.GetScheduledReleasesForPublishingRelativeToDate(ctx, tt.cmp, ref)
			require.NoError(t, err)
			for _, k := range tt.want {
				assert.Contains(t, got, k)
			}
			for _, k := range tt.notWant {
				assert.NotContains(t, got, k)
			}
		})
	}
}

// TestReadyForPublishing verifies only attempts queued behind copied files match.
func TestReadyForPublishing(t *testing.T, store provider.StatusStore) {
	ctx := context.Background()
	ready := newKey()
	require.NoError(t, store.Put(ctx, newStatus(ready, types.ContentScheduled, types.FilesComplete, types.PublishingScheduled, types.OverallStarted)))
	filesPending := newKey()
	require.NoError(t, store.Put(ctx, newStatus(filesPending, types.ContentScheduled, types.FilesScheduled, types.PublishingScheduled, types.OverallStarted)))
	publishing := newKey()
	require.NoError(t, store.Put(ctx, newStatus(publishing, types.ContentScheduled, types.FilesComplete, types.PublishingStarted, types.OverallStarted)))

	got, err := store.GetScheduledReleasesReadyForPublishing(ctx)
	require.NoError(t, err)
	assert.Contains(t, got, ready)
	assert.NotContains(t, got, filesPending)
	assert.NotContains(t, got, publishing)
}

// TestStartedPublishing verifies an attempt interrupted after the Started stamp
// is found again.
func TestStartedPublishing(t *testing.T, store provider.StatusStore) {
	ctx := context.Background()
	stuck := newKey()
	require.NoError(t, store.Put(ctx, newStatus(stuck, types.ContentComplete, types.FilesComplete, types.PublishingScheduled, types.OverallStarted)))
	require.NoError(t, store.UpdatePublishingStage(ctx, stuck, types.PublishingStarted))
	queued := newKey()
	require.NoError(t, store.Put(ctx, newStatus(queued, types.ContentScheduled, types.FilesComplete, types.PublishingScheduled, types.OverallStarted)))
	done := newKey()
	require.NoError(t, store.Put(ctx, newStatus(done, types.ContentComplete, types.FilesComplete, types.PublishingComplete, types.OverallComplete)))

	got, err := store.GetReleasesStartedPublishing(ctx)
	require.NoError(t, err)
	assert.Contains(t, got, stuck)
	assert.NotContains(t, got, queued)
	assert.NotContains(t, got, done)
}

// TestOverallStages verifies the per-release-version stage disjunction.
func TestOverallStages(t *testing.T, store provider.StatusStore) {
	ctx := context.Background()
	started := newKey()
	failed := types.ReleasePublishingKey{ReleaseVersionID: started.ReleaseVersionID, ReleaseStatusID: newKey().ReleaseStatusID}
	complete := types.ReleasePublishingKey{ReleaseVersionID: started.ReleaseVersionID, ReleaseStatusID: newKey().ReleaseStatusID}
	otherRelease := newKey()

	require.NoError(t, store.Put(ctx, newStatus(started, types.ContentScheduled, types.FilesScheduled, types.PublishingScheduled, types.OverallStarted)))
	require.NoError(t, store.Put(ctx, newStatus(failed, types.ContentFailed, types.FilesComplete, types.PublishingNotStarted, types.OverallFailed)))
	require.NoError(t, store.Put(ctx, newStatus(complete, types.ContentComplete, types.FilesComplete, types.PublishingComplete, types.OverallComplete)))
	require.NoError(t, store.Put(ctx, newStatus(otherRelease, types.ContentScheduled, types.FilesScheduled, types.PublishingScheduled, types.OverallStarted)))

	got, err := store.GetReleasesWithOverallStages(ctx, started.ReleaseVersionID, []types.OverallStage{types.OverallStarted, types.OverallFailed})
	require.NoError(t, err)
	assert.ElementsMatch(t, []types.ReleasePublishingKey{started, failed}, got)
}

// TestOverallStagesRejectsEmpty verifies an empty stage set is a contract violation.
func TestOverallStagesRejectsEmpty(t *testing.T, store provider.StatusStore) {
	_, err := store.GetReleasesWithOverallStages(context.Background(), newKey().ReleaseVersionID, nil)
	assert.ErrorIs(t, err, provider.ErrInvalidArgument)
}
