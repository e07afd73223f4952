package datasets_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/releasepub/internal/content"
	"github.com/dwsmith1983/releasepub/internal/datasets"
	"github.com/dwsmith1983/releasepub/internal/testutil"
)

var (
	firstPublish  = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)
	secondPublish = time.Date(2025, 9, 1, 9, 30, 0, 0, time.UTC)
)

func clock(t time.Time) datasets.Option {
	return datasets.WithClock(func() time.Time { return t })
}

type seeded struct {
	fx  *testutil.ContentFixture
	ds  *content.DataSet
	rel *content.Release
}

func seed(t *testing.T) seeded {
	t.Helper()
	fx := testutil.NewContentFixture(t)
	_, rel := fx.Publication("pupil-absence", 2025)
	ds := &content.DataSet{ID: uuid.New(), Title: "Absence rates", Status: content.DataSetDraft}
	fx.Insert(ds)
	return seeded{fx: fx, ds: ds, rel: rel}
}

func (s seeded) draftVersion(t *testing.T, rv *content.ReleaseVersion, major, minor int) *content.DataSetVersion {
	t.Helper()
	file := s.fx.DataFile(rv, "absence.csv")
	v := &content.DataSetVersion{
		ID:           uuid.New(),
		DataSetID:    s.ds.ID,
		Status:       content.DataSetDraft,
		CsvFileID:    file.ID,
		VersionMajor: major,
		VersionMinor: minor,
	}
	s.fx.Insert(v)
	s.ds.LatestDraftVersionID = &v.ID
	require.NoError(t, s.fx.Store.UpdateDataSet(context.Background(), s.ds, "latest_draft_version_id"))
	return v
}

func TestPublishDataSetVersions_FirstPublication(t *testing.T) {
	ctx := context.Background()
	s := seed(t)
	rv := s.fx.ReleaseVersion(s.rel, nil, nil)
	v := s.draftVersion(t, rv, 1, 0)

	p := datasets.NewPromoter(s.fx.Store, clock(firstPublish))
	require.NoError(t, p.PublishDataSetVersions(ctx, []uuid.UUID{rv.ID}))

	gotV, err := s.fx.Store.DataSetVersion(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, content.DataSetPublished, gotV.Status)
	require.NotNil(t, gotV.Published)
	assert.True(t, firstPublish.Equal(*gotV.Published))

	gotDS, err := s.fx.Store.DataSet(ctx, s.ds.ID)
	require.NoError(t, err)
	assert.Equal(t, content.DataSetPublished, gotDS.Status)
	require.NotNil(t, gotDS.LatestLiveVersionID)
	assert.Equal(t, v.ID, *gotDS.LatestLiveVersionID)
	assert.Nil(t, gotDS.LatestDraftVersionID)
	require.NotNil(t, gotDS.Published)
	assert.True(t, firstPublish.Equal(*gotDS.Published))
}

func TestPublishDataSetVersions_KeepsFirstPublishedDate(t *testing.T) {
	ctx := context.Background()
	s := seed(t)
	rv1 := s.fx.ReleaseVersion(s.rel, nil, nil)
	s.draftVersion(t, rv1, 1, 0)
	require.NoError(t, datasets.NewPromoter(s.fx.Store, clock(firstPublish)).PublishDataSetVersions(ctx, []uuid.UUID{rv1.ID}))

	rv2 := s.fx.ReleaseVersion(s.rel, rv1, nil)
	v2 := s.draftVersion(t, rv2, 1, 1)
	require.NoError(t, datasets.NewPromoter(s.fx.Store, clock(secondPublish)).PublishDataSetVersions(ctx, []uuid.UUID{rv2.ID}))

	gotDS, err := s.fx.Store.DataSet(ctx, s.ds.ID)
	require.NoError(t, err)
	require.NotNil(t, gotDS.Published)
	assert.True(t, firstPublish.Equal(*gotDS.Published), "data set published date must stay at first publication")
	assert.Equal(t, v2.ID, *gotDS.LatestLiveVersionID)
	assert.Nil(t, gotDS.LatestDraftVersionID)

	gotV2, err := s.fx.Store.DataSetVersion(ctx, v2.ID)
	require.NoError(t, err)
	assert.True(t, secondPublish.Equal(*gotV2.Published))
}

func TestPublishDataSetVersions_LivePointerNeverMovesBackwards(t *testing.T) {
	ctx := context.Background()
	s := seed(t)
	rvNew := s.fx.ReleaseVersion(s.rel, nil, nil)
	vNew := s.draftVersion(t, rvNew, 2, 0)
	require.NoError(t, datasets.NewPromoter(s.fx.Store, clock(firstPublish)).PublishDataSetVersions(ctx, []uuid.UUID{rvNew.ID}))

	// A late correction to an older major version goes live afterwards.
	rvOld := s.fx.ReleaseVersion(s.fx.Release(&content.Publication{ID: s.rel.PublicationID}, 2024), nil, nil)
	s.draftVersion(t, rvOld, 1, 3)
	require.NoError(t, datasets.NewPromoter(s.fx.Store, clock(secondPublish)).PublishDataSetVersions(ctx, []uuid.UUID{rvOld.ID}))

	gotDS, err := s.fx.Store.DataSet(ctx, s.ds.ID)
	require.NoError(t, err)
	assert.Equal(t, vNew.ID, *gotDS.LatestLiveVersionID)
	assert.Nil(t, gotDS.LatestDraftVersionID)
}

func TestPublishDataSetVersions_NoDraftIsNotAnError(t *testing.T) {
	ctx := context.Background()
	s := seed(t)
	rv := s.fx.ReleaseVersion(s.rel, nil, nil)
	s.fx.DataFile(rv, "orphan.csv")

	require.NoError(t, datasets.NewPromoter(s.fx.Store).PublishDataSetVersions(ctx, []uuid.UUID{rv.ID, uuid.New()}))

	gotDS, err := s.fx.Store.DataSet(ctx, s.ds.ID)
	require.NoError(t, err)
	assert.Equal(t, content.DataSetDraft, gotDS.Status)
	assert.Nil(t, gotDS.Published)
}

func TestPublishDataSetVersions_RerunIsNoop(t *testing.T) {
	ctx := context.Background()
	s := seed(t)
	rv := s.fx.ReleaseVersion(s.rel, nil, nil)
	v := s.draftVersion(t, rv, 1, 0)

	require.NoError(t, datasets.NewPromoter(s.fx.Store, clock(firstPublish)).PublishDataSetVersions(ctx, []uuid.UUID{rv.ID}))
	require.NoError(t, datasets.NewPromoter(s.fx.Store, clock(secondPublish)).PublishDataSetVersions(ctx, []uuid.UUID{rv.ID}))

	gotV, err := s.fx.Store.DataSetVersion(ctx, v.ID)
	require.NoError(t, err)
	assert.True(t, firstPublish.Equal(*gotV.Published))
	gotDS, err := s.fx.Store.DataSet(ctx, s.ds.ID)
	require.NoError(t, err)
	assert.True(t, firstPublish.Equal(*gotDS.Published))
}
