package filter

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/releasepub/pkg/types"
)

func TestScheduledRelativeTo_BeforeOrOn(t *testing.T) {
	ref := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	f, err := ScheduledRelativeTo(types.BeforeOrOn, ref)
	require.NoError(t, err)
	assert.Equal(t, "OverallStage eq 'Scheduled' and Publish le datetime'2025-01-01T12:00:00Z'", f.String())
}

func TestScheduledRelativeTo_Operators(t *testing.T) {
	ref := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		cmp  types.DateComparison
		want string
	}{
		{types.Before, "lt"},
		{types.BeforeOrOn, "le"},
		{types.After, "gt"},
		{types.AfterOrOn, "ge"},
		{types.On, "eq"},
		{types.NotOn, "ne"},
	}
	for _, tt := range tests {
		t.Run(string(tt.cmp), func(t *testing.T) {
			f, err := ScheduledRelativeTo(tt.cmp, ref)
			require.NoError(t, err)
			assert.Contains(t, f.String(), "Publish "+tt.want+" datetime'")
		})
	}
}

func TestScheduledRelativeTo_NormalizesToUTC(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	ref := time.Date(2025, 1, 1, 14, 0, 0, 0, loc)

	f, err := ScheduledRelativeTo(types.After, ref)
	require.NoError(t, err)
	assert.Equal(t, "OverallStage eq 'Scheduled' and Publish gt datetime'2025-01-01T12:00:00Z'", f.String())
}

func TestScheduledRelativeTo_UnknownComparison(t *testing.T) {
	_, err := ScheduledRelativeTo("Sometime", time.Now())
	assert.Error(t, err)
}

func TestScheduledReadyForPublishing(t *testing.T) {
	assert.Equal(t,
		"OverallStage eq 'Started' and ContentStage eq 'Scheduled' and FilesStage eq 'Complete' and PublishingStage eq 'Scheduled'",
		ScheduledReadyForPublishing().String())
}

func TestStartedPublishing(t *testing.T) {
	assert.Equal(t,
		"OverallStage eq 'Started' and PublishingStage eq 'Started'",
		StartedPublishing().String())
}

func TestWithOverallStages(t *testing.T) {
	id := uuid.MustParse("6d1bd4a4-5a5b-4c3e-9d0e-2f3a1b2c3d4e")

	single, err := WithOverallStages(id, []types.OverallStage{types.OverallStarted})
	require.NoError(t, err)
	assert.Equal(t, "PartitionKey eq '6d1bd4a4-5a5b-4c3e-9d0e-2f3a1b2c3d4e' and OverallStage eq 'Started'", single.String())

	multi, err := WithOverallStages(id, []types.OverallStage{types.OverallStarted, types.OverallComplete})
	require.NoError(t, err)
	assert.Equal(t,
		"PartitionKey eq '6d1bd4a4-5a5b-4c3e-9d0e-2f3a1b2c3d4e' and (OverallStage eq 'Started' or OverallStage eq 'Complete')",
		multi.String())
}

func TestWithOverallStages_Empty(t *testing.T) {
	f, err := WithOverallStages(uuid.New(), nil)
	assert.ErrorIs(t, err, ErrNoStages)
	assert.Nil(t, f)
}

func TestLiteral_EscapesQuotes(t *testing.T) {
	assert.Equal(t, "Title eq 'O''Brien'", Equal("Title", "O'Brien").String())
}

func TestMatch(t *testing.T) {
	record := map[string]string{
		FieldOverallStage: "Scheduled",
		FieldPublish:      "2025-01-01T09:00:00Z",
	}
	lookup := func(f string) (string, bool) {
		v, ok := record[f]
		return v, ok
	}

	before, _ := ScheduledRelativeTo(types.BeforeOrOn, time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC))
	after, _ := ScheduledRelativeTo(types.After, time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC))

	assert.True(t, Match(before, lookup))
	assert.False(t, Match(after, lookup))
	assert.False(t, Match(ScheduledReadyForPublishing(), lookup), "missing fields never match")
	assert.True(t, Match(Or(Equal(FieldOverallStage, "Started"), Equal(FieldOverallStage, "Scheduled")), lookup))
}
