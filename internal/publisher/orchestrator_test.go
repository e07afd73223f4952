package publisher_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/releasepub/internal/content"
	"github.com/dwsmith1983/releasepub/internal/publisher"
	"github.com/dwsmith1983/releasepub/internal/release"
	"github.com/dwsmith1983/releasepub/internal/testutil"
	"github.com/dwsmith1983/releasepub/pkg/types"
)

var now = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

type harness struct {
	fx       *testutil.ContentFixture
	status   *testutil.MockStatusStore
	calls    *calls
	methods  *fakeMethodologies
	cache    *fakeCache
	notifier *fakeNotifier
	datasets *fakeDataSets
	events   *fakeEvents
	orch     *publisher.Orchestrator
}

func newHarness(t *testing.T, statuses []types.ReleasePublishingStatus, opts ...publisher.Option) *harness {
	t.Helper()
	h := &harness{fx: testutil.NewContentFixture(t), calls: &calls{}}
	h.status = testutil.NewMockStatusStore(statuses...)
	h.status.Now = func() time.Time { return now }
	h.methods = &fakeMethodologies{calls: h.calls}
	h.cache = &fakeCache{calls: h.calls, errFor: map[string]error{}}
	h.notifier = &fakeNotifier{calls: h.calls}
	h.datasets = &fakeDataSets{calls: h.calls}
	h.events = &fakeEvents{calls: h.calls}
	h.build(t, opts...)
	return h
}

func (h *harness) build(t *testing.T, opts ...publisher.Option) {
	t.Helper()
	o, err := publisher.New(h.status, publisher.Collaborators{
		Releases:      release.NewAccessor(h.fx.Store, release.WithClock(func() time.Time { return now })),
		Methodologies: h.methods,
		Cache:         h.cache,
		Notifier:      h.notifier,
		DataSets:      h.datasets,
		Events:        h.events,
	}, opts...)
	require.NoError(t, err)
	h.orch = o
}

func key(rv *content.ReleaseVersion) types.ReleasePublishingKey {
	return types.ReleasePublishingKey{ReleaseVersionID: rv.ID, ReleaseStatusID: uuid.New()}
}

func readyStatus(k types.ReleasePublishingKey) types.ReleasePublishingStatus {
	return testutil.NewStatus(k, types.ContentComplete, types.FilesComplete)
}

// seedRelease creates a publication with one unpublished release-version.
func seedRelease(t *testing.T, fx *testutil.ContentFixture, slug string) (*content.Publication, *content.Release, *content.ReleaseVersion) {
	t.Helper()
	pub, rel := fx.Publication(slug, 2025)
	return pub, rel, fx.ReleaseVersion(rel, nil, nil)
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := publisher.New(testutil.NewMockStatusStore(), publisher.Collaborators{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing collaborators")

	_, err = publisher.New(nil, publisher.Collaborators{})
	assert.Error(t, err)
}

func TestComplete_NoKeys(t *testing.T) {
	h := newHarness(t, nil)
	res, err := h.orch.CompletePublishingIfAllPriorStagesComplete(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, res.Completed)
	assert.Empty(t, h.calls.all())
}

func TestComplete_FullSequence(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	pub, rel, rv := seedRelease(t, h.fx, "pupil-absence")
	k := key(rv)
	require.NoError(t, h.status.Put(ctx, readyStatus(k)))

	res, err := h.orch.CompletePublishingIfAllPriorStagesComplete(ctx, []types.ReleasePublishingKey{k})
	require.NoError(t, err)
	assert.Equal(t, []types.ReleasePublishingKey{k}, res.Completed)

	testutil.AssertStages(t, h.status, k, types.PublishingStarted, types.PublishingComplete)
	st, _ := h.status.Status(k)
	assert.Equal(t, types.OverallComplete, st.OverallStage)

	assert.Equal(t, []string{
		"methodologies " + rv.ID.String(),
		"cache superseded " + rv.ID.String(),
		"cache publication pupil-absence",
		"cache taxonomy",
		"cache redirects",
		"notify 1",
		"datasets 1",
		"events 1",
	}, h.calls.all())

	gotRV, err := h.fx.Store.ReleaseVersion(ctx, rv.ID)
	require.NoError(t, err)
	require.NotNil(t, gotRV.Published)
	assert.True(t, now.Equal(*gotRV.Published))

	gotPub, err := h.fx.Store.Publication(ctx, pub.ID)
	require.NoError(t, err)
	require.NotNil(t, gotPub.LatestPublishedReleaseVersionID)
	assert.Equal(t, rv.ID, *gotPub.LatestPublishedReleaseVersionID)

	require.Len(t, h.events.infos, 1)
	info := h.events.infos[0]
	assert.Equal(t, rv.ID, info.ReleaseVersionID)
	assert.Equal(t, rel.ID, info.ReleaseID)
	assert.Equal(t, rel.Slug, info.ReleaseSlug)
	assert.Equal(t, pub.ID, info.PublicationID)
	assert.Equal(t, "pupil-absence", info.PublicationSlug)
	assert.Equal(t, rv.ID, info.PublicationLatestPublishedReleaseVersionID)
	assert.Nil(t, info.PreviousLatestReleaseID)
}

func TestComplete_ReadinessGating(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	_, _, rvReady := seedRelease(t, h.fx, "ready")
	_, _, rvContent := seedRelease(t, h.fx, "content-pending")
	_, _, rvFiles := seedRelease(t, h.fx, "files-failed")

	kReady, kContent, kFiles := key(rvReady), key(rvContent), key(rvFiles)
	require.NoError(t, h.status.Put(ctx, readyStatus(kReady)))
	require.NoError(t, h.status.Put(ctx, testutil.NewStatus(kContent, types.ContentScheduled, types.FilesComplete)))
	require.NoError(t, h.status.Put(ctx, testutil.NewStatus(kFiles, types.ContentComplete, types.FilesFailed)))

	res, err := h.orch.CompletePublishingIfAllPriorStagesComplete(ctx, []types.ReleasePublishingKey{kContent, kReady, kFiles})
	require.NoError(t, err)
	assert.Equal(t, []types.ReleasePublishingKey{kReady}, res.Completed)
	assert.ElementsMatch(t, []types.ReleasePublishingKey{kContent, kFiles}, res.NotReady)

	testutil.AssertNoStageWrites(t, h.status, kContent)
	testutil.AssertNoStageWrites(t, h.status, kFiles)
	testutil.AssertStages(t, h.status, kReady, types.PublishingStarted, types.PublishingComplete)

	for _, rv := range []*content.ReleaseVersion{rvContent, rvFiles} {
		got, err := h.fx.Store.ReleaseVersion(ctx, rv.ID)
		require.NoError(t, err)
		assert.Nil(t, got.Published, "not-ready release version must not be touched")
	}
	assert.Equal(t, 1, h.calls.count("methodologies"))
}

func TestComplete_NothingReadyHasNoSideEffects(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	_, _, rv := seedRelease(t, h.fx, "pending")
	k := key(rv)
	require.NoError(t, h.status.Put(ctx, testutil.NewStatus(k, types.ContentQueued, types.FilesScheduled)))

	res, err := h.orch.CompletePublishingIfAllPriorStagesComplete(ctx, []types.ReleasePublishingKey{k})
	require.NoError(t, err)
	assert.Empty(t, res.Completed)
	assert.Empty(t, h.status.Writes())
	assert.Empty(t, h.calls.all())
}

func TestComplete_Idempotent(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	_, _, rv := seedRelease(t, h.fx, "pupil-absence")
	k := key(rv)
	require.NoError(t, h.status.Put(ctx, readyStatus(k)))
	keys := []types.ReleasePublishingKey{k}

	_, err := h.orch.CompletePublishingIfAllPriorStagesComplete(ctx, keys)
	require.NoError(t, err)
	writes := h.status.Writes()
	callLog := h.calls.all()

	res, err := h.orch.CompletePublishingIfAllPriorStagesComplete(ctx, keys)
	require.NoError(t, err)
	assert.Equal(t, keys, res.AlreadyComplete)
	assert.Empty(t, res.Completed)
	assert.Equal(t, writes, h.status.Writes(), "second run must not write stages")
	assert.Equal(t, callLog, h.calls.all(), "second run must not repeat side effects")
	assert.Len(t, h.events.infos, 1, "no duplicate events")
}

func TestComplete_StuckStartedIsRerun(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	_, _, rv := seedRelease(t, h.fx, "pupil-absence")
	k := key(rv)
	require.NoError(t, h.status.Put(ctx, readyStatus(k)))

	h.events.err = errors.New("topic unavailable")
	_, err := h.orch.CompletePublishingIfAllPriorStagesComplete(ctx, []types.ReleasePublishingKey{k})
	require.Error(t, err)
	st, _ := h.status.Status(k)
	assert.Equal(t, types.PublishingStarted, st.PublishingStage)

	h.events.err = nil
	res, err := h.orch.CompletePublishingIfAllPriorStagesComplete(ctx, []types.ReleasePublishingKey{k})
	require.NoError(t, err)
	assert.Equal(t, []types.ReleasePublishingKey{k}, res.Completed)
	st, _ = h.status.Status(k)
	assert.Equal(t, types.PublishingComplete, st.PublishingStage)

	// The rerun must not report its own earlier pointer write as a previous release.
	require.Len(t, h.events.infos, 2)
	assert.Nil(t, h.events.infos[1].PreviousLatestReleaseID)
}

func TestComplete_EventCarriesPreviousLatestRelease(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	earlier := now.AddDate(-1, 0, 0)

	pub, oldRel := h.fx.Publication("pupil-absence", 2024)
	rvPrev := h.fx.ReleaseVersion(oldRel, nil, &earlier)
	pub.LatestPublishedReleaseVersionID = &rvPrev.ID
	require.NoError(t, h.fx.Store.UpdatePublication(ctx, pub, "latest_published_release_version_id"))

	newRel := h.fx.Release(pub, 2025)
	rvNew := h.fx.ReleaseVersion(newRel, nil, nil)
	k := key(rvNew)
	require.NoError(t, h.status.Put(ctx, readyStatus(k)))

	_, err := h.orch.CompletePublishingIfAllPriorStagesComplete(ctx, []types.ReleasePublishingKey{k})
	require.NoError(t, err)

	require.Len(t, h.events.infos, 1)
	info := h.events.infos[0]
	assert.Equal(t, rvNew.ID, info.PublicationLatestPublishedReleaseVersionID)
	require.NotNil(t, info.PreviousLatestReleaseID)
	assert.Equal(t, oldRel.ID, *info.PreviousLatestReleaseID)
}

func TestComplete_RerunKeepsPreviousLatestRelease(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	earlier := now.AddDate(-1, 0, 0)

	pub, oldRel := h.fx.Publication("pupil-absence", 2024)
	rvPrev := h.fx.ReleaseVersion(oldRel, nil, &earlier)
	pub.LatestPublishedReleaseVersionID = &rvPrev.ID
	require.NoError(t, h.fx.Store.UpdatePublication(ctx, pub, "latest_published_release_version_id"))

	newRel := h.fx.Release(pub, 2025)
	rvNew := h.fx.ReleaseVersion(newRel, nil, nil)
	k := key(rvNew)
	require.NoError(t, h.status.Put(ctx, readyStatus(k)))

	// The first run moves the pointer, then fails delivering events.
	h.events.err = errors.New("topic unavailable")
	_, err := h.orch.CompletePublishingIfAllPriorStagesComplete(ctx, []types.ReleasePublishingKey{k})
	require.Error(t, err)
	gotPub, err := h.fx.Store.Publication(ctx, pub.ID)
	require.NoError(t, err)
	require.Equal(t, rvNew.ID, *gotPub.LatestPublishedReleaseVersionID)

	h.events.err = nil
	_, err = h.orch.CompletePublishingIfAllPriorStagesComplete(ctx, []types.ReleasePublishingKey{k})
	require.NoError(t, err)

	require.Len(t, h.events.infos, 2)
	delivered := h.events.infos[1]
	assert.Equal(t, rvNew.ID, delivered.PublicationLatestPublishedReleaseVersionID)
	require.NotNil(t, delivered.PreviousLatestReleaseID)
	assert.Equal(t, oldRel.ID, *delivered.PreviousLatestReleaseID)
}

func TestComplete_OlderReleaseDoesNotTakeLatestPointer(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	earlier := now.AddDate(0, -1, 0)

	pub, newRel := h.fx.Publication("pupil-absence", 2025)
	rvLatest := h.fx.ReleaseVersion(newRel, nil, &earlier)
	pub.LatestPublishedReleaseVersionID = &rvLatest.ID
	require.NoError(t, h.fx.Store.UpdatePublication(ctx, pub, "latest_published_release_version_id"))

	// A late first publication of an older release.
	oldRel := h.fx.Release(pub, 2023)
	rvOld := h.fx.ReleaseVersion(oldRel, nil, nil)
	k := key(rvOld)
	require.NoError(t, h.status.Put(ctx, readyStatus(k)))

	_, err := h.orch.CompletePublishingIfAllPriorStagesComplete(ctx, []types.ReleasePublishingKey{k})
	require.NoError(t, err)

	gotPub, err := h.fx.Store.Publication(ctx, pub.ID)
	require.NoError(t, err)
	assert.Equal(t, rvLatest.ID, *gotPub.LatestPublishedReleaseVersionID)

	require.Len(t, h.events.infos, 1)
	assert.Equal(t, rvLatest.ID, h.events.infos[0].PublicationLatestPublishedReleaseVersionID)
	assert.Equal(t, newRel.ID, *h.events.infos[0].PreviousLatestReleaseID)
}

func TestComplete_SupersededPublicationCacheRefreshed(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	pub, _, rv := seedRelease(t, h.fx, "pupil-attendance")
	old, _ := h.fx.Publication("pupil-absence", 2020)
	old.SupersededByID = &pub.ID
	require.NoError(t, h.fx.Store.UpdatePublication(ctx, old, "superseded_by_id"))

	k := key(rv)
	require.NoError(t, h.status.Put(ctx, readyStatus(k)))
	_, err := h.orch.CompletePublishingIfAllPriorStagesComplete(ctx, []types.ReleasePublishingKey{k})
	require.NoError(t, err)

	log := h.calls.all()
	assert.Contains(t, log, "cache publication pupil-attendance")
	assert.Contains(t, log, "cache publication pupil-absence")
}

func TestComplete_BatchGlobalEffectsOnce(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	var keys []types.ReleasePublishingKey
	for _, slug := range []string{"a", "b", "c"} {
		_, _, rv := seedRelease(t, h.fx, slug)
		k := key(rv)
		require.NoError(t, h.status.Put(ctx, readyStatus(k)))
		keys = append(keys, k)
	}

	res, err := h.orch.CompletePublishingIfAllPriorStagesComplete(ctx, keys)
	require.NoError(t, err)
	assert.Len(t, res.Completed, 3)

	assert.Equal(t, 1, h.calls.count("cache taxonomy"))
	assert.Equal(t, 1, h.calls.count("cache redirects"))
	assert.Equal(t, []string{"notify 3"}, filter(h.calls.all(), "notify"))
	assert.Equal(t, []string{"datasets 3"}, filter(h.calls.all(), "datasets"))
	assert.Len(t, h.events.infos, 3)
	require.Len(t, h.notifier.ids, 1)
	assert.Equal(t, []uuid.UUID{keys[0].ReleaseVersionID, keys[1].ReleaseVersionID, keys[2].ReleaseVersionID}, h.notifier.ids[0])
}

func TestComplete_SharedReleaseVersionProcessedOnce(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	_, _, rv := seedRelease(t, h.fx, "pupil-absence")
	k1, k2 := key(rv), key(rv)
	require.NoError(t, h.status.Put(ctx, readyStatus(k1)))
	require.NoError(t, h.status.Put(ctx, readyStatus(k2)))

	res, err := h.orch.CompletePublishingIfAllPriorStagesComplete(ctx, []types.ReleasePublishingKey{k1, k2})
	require.NoError(t, err)
	assert.Len(t, res.Completed, 2)
	assert.Equal(t, 1, h.calls.count("methodologies"))
	assert.Len(t, h.events.infos, 1)
}

func TestComplete_FailureAbortsBatch(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	_, _, rvA := seedRelease(t, h.fx, "a")
	_, _, rvB := seedRelease(t, h.fx, "b")
	kA, kB := key(rvA), key(rvB)
	require.NoError(t, h.status.Put(ctx, readyStatus(kA)))
	require.NoError(t, h.status.Put(ctx, readyStatus(kB)))
	h.cache.errFor["publication:b"] = errors.New("redis down")

	_, err := h.orch.CompletePublishingIfAllPriorStagesComplete(ctx, []types.ReleasePublishingKey{kA, kB})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis down")

	for _, k := range []types.ReleasePublishingKey{kA, kB} {
		testutil.AssertStages(t, h.status, k, types.PublishingStarted)
	}
	assert.Zero(t, h.calls.count("cache taxonomy"), "global effects run only after every key succeeded")
	assert.Zero(t, h.calls.count("notify"))
	assert.Zero(t, h.calls.count("events"))
}

func TestComplete_MissingStatusSkipped(t *testing.T) {
	h := newHarness(t, nil)
	k := types.ReleasePublishingKey{ReleaseVersionID: uuid.New(), ReleaseStatusID: uuid.New()}

	res, err := h.orch.CompletePublishingIfAllPriorStagesComplete(context.Background(), []types.ReleasePublishingKey{k})
	require.NoError(t, err)
	assert.Equal(t, []types.ReleasePublishingKey{k}, res.Missing)
	assert.Empty(t, h.status.Writes())
}

func TestComplete_LockGuard(t *testing.T) {
	h := newHarness(t, nil, publisher.WithLock(time.Minute))
	ctx := context.Background()
	_, _, rv := seedRelease(t, h.fx, "pupil-absence")
	k := key(rv)
	require.NoError(t, h.status.Put(ctx, readyStatus(k)))

	token, err := h.status.AcquireLock(ctx, publisher.LockKey, time.Minute)
	require.NoError(t, err)
	_, err = h.orch.CompletePublishingIfAllPriorStagesComplete(ctx, []types.ReleasePublishingKey{k})
	require.ErrorIs(t, err, publisher.ErrBusy)
	assert.Empty(t, h.status.Writes())

	require.NoError(t, h.status.ReleaseLock(ctx, publisher.LockKey, token))
	_, err = h.orch.CompletePublishingIfAllPriorStagesComplete(ctx, []types.ReleasePublishingKey{k})
	require.NoError(t, err)
	assert.False(t, h.status.LockHeld(publisher.LockKey), "lock released after the run")
}

func filter(log []string, prefix string) []string {
	var out []string
	for _, l := range log {
		if len(l) >= len(prefix) && l[:len(prefix)] == prefix {
			out = append(out, l)
		}
	}
	return out
}
