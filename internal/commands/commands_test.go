package commands

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/releasepub/internal/provider"
	"github.com/dwsmith1983/releasepub/internal/publisher"
	"github.com/dwsmith1983/releasepub/internal/testutil"
	"github.com/dwsmith1983/releasepub/pkg/types"
)

func init() { color.NoColor = true }

func newKey() types.ReleasePublishingKey {
	return types.ReleasePublishingKey{ReleaseVersionID: uuid.New(), ReleaseStatusID: uuid.New()}
}

func TestParseKeys(t *testing.T) {
	k := newKey()
	keys, err := parseKeys([]string{k.String()})
	require.NoError(t, err)
	assert.Equal(t, []types.ReleasePublishingKey{k}, keys)

	_, err = parseKeys([]string{"not-a-key"})
	assert.ErrorContains(t, err, "invalid key")
}

func TestParseTime(t *testing.T) {
	got, err := parseTime("2025-03-14")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC), got)

	got, err = parseTime("2025-03-14T09:30:00+01:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 14, 8, 30, 0, 0, time.UTC), got)

	_, err = parseTime("tomorrow")
	assert.Error(t, err)
}

func TestRunReady(t *testing.T) {
	k := newKey()
	store := testutil.NewMockStatusStore(testutil.NewStatus(k, types.ContentScheduled, types.FilesComplete))

	var out bytes.Buffer
	require.NoError(t, runReady(context.Background(), &out, store))
	assert.Contains(t, out.String(), "Ready for publishing:")
	assert.Contains(t, out.String(), k.String())
	assert.Contains(t, out.String(), "content=Scheduled")
}

func TestRunScheduled_Empty(t *testing.T) {
	var out bytes.Buffer
	err := runScheduled(context.Background(), &out, testutil.NewMockStatusStore(), types.BeforeOrOn, time.Now())
	require.NoError(t, err)
	assert.Contains(t, out.String(), "No publishing attempts found.")
}

func TestRunStages(t *testing.T) {
	k := newKey()
	store := testutil.NewMockStatusStore(testutil.NewStatus(k, types.ContentComplete, types.FilesComplete))

	var out bytes.Buffer
	require.NoError(t, runStages(context.Background(), &out, store, k.ReleaseVersionID.String(), []string{"Started", "Scheduled"}))
	assert.Contains(t, out.String(), k.String())
}

func TestRunStages_RejectsEmptyStageSet(t *testing.T) {
	var out bytes.Buffer
	err := runStages(context.Background(), &out, testutil.NewMockStatusStore(), uuid.NewString(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, provider.ErrInvalidArgument)
}

func TestRunStages_InvalidArgs(t *testing.T) {
	var out bytes.Buffer
	assert.Error(t, runStages(context.Background(), &out, testutil.NewMockStatusStore(), "nope", []string{"Started"}))
	assert.Error(t, runStages(context.Background(), &out, testutil.NewMockStatusStore(), uuid.NewString(), []string{"Sideways"}))
}

type stubCompleter struct {
	res *publisher.Result
	err error
}

func (s stubCompleter) CompletePublishingIfAllPriorStagesComplete(context.Context, []types.ReleasePublishingKey) (*publisher.Result, error) {
	return s.res, s.err
}

func TestRunComplete(t *testing.T) {
	done, waiting := newKey(), newKey()
	var out bytes.Buffer
	err := runComplete(context.Background(), &out, stubCompleter{res: &publisher.Result{
		Completed: []types.ReleasePublishingKey{done},
		NotReady:  []types.ReleasePublishingKey{waiting},
	}}, []types.ReleasePublishingKey{done, waiting})
	require.NoError(t, err)
	assert.Contains(t, out.String(), done.String()+": Complete")
	assert.Contains(t, out.String(), waiting.String()+": prior stages incomplete")
}

func TestRunComplete_Error(t *testing.T) {
	var out bytes.Buffer
	err := runComplete(context.Background(), &out, stubCompleter{err: errors.New("boom")}, []types.ReleasePublishingKey{newKey()})
	require.Error(t, err)
	assert.Contains(t, out.String(), "Completion failed")
}
