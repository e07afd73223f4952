package filter

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dwsmith1983/releasepub/pkg/types"
)

// ErrNoStages is returned when a stage disjunction is requested with no stages.
var ErrNoStages = errors.New("at least one overall stage is required")

var comparisonOps = map[types.DateComparison]Op{
	types.Before:     Lt,
	types.BeforeOrOn: Le,
	types.After:      Gt,
	types.AfterOrOn:  Ge,
	types.On:         Eq,
	types.NotOn:      Ne,
}

// OperatorFor maps a date comparison to its filter operator.
func OperatorFor(cmp types.DateComparison) (Op, error) {
	op, ok := comparisonOps[cmp]
	if !ok {
		return "", fmt.Errorf("unknown date comparison %q", cmp)
	}
	return op, nil
}

// ScheduledRelativeTo selects attempts still scheduled whose publish date compares
// with ref as requested.
func ScheduledRelativeTo(cmp types.DateComparison, ref time.Time) (Expr, error) {
	op, err := OperatorFor(cmp)
	if err != nil {
		return nil, err
	}
	return And(
		Equal(FieldOverallStage, string(types.OverallScheduled)),
		Compare(FieldPublish, op, DateTime(ref)),
	), nil
}

// ScheduledReadyForPublishing selects started attempts whose files are copied and
// whose content and publishing stages are queued behind them.
func ScheduledReadyForPublishing() Expr {
	return And(
		Equal(FieldOverallStage, string(types.OverallStarted)),
		Equal(FieldContentStage, string(types.ContentScheduled)),
		Equal(FieldFilesStage, string(types.FilesComplete)),
		Equal(FieldPublishingStage, string(types.PublishingScheduled)),
	)
}

// StartedPublishing selects attempts whose completion sequence began but never
// finished. A run that fails after stamping Started leaves them here.
func StartedPublishing() Expr {
	return And(
		Equal(FieldOverallStage, string(types.OverallStarted)),
		Equal(FieldPublishingStage, string(types.PublishingStarted)),
	)
}

// WithOverallStages selects the attempts of one release-version in any of stages.
func WithOverallStages(releaseVersionID uuid.UUID, stages []types.OverallStage) (Expr, error) {
	if len(stages) == 0 {
		return nil, ErrNoStages
	}
	terms := make(Any, 0, len(stages))
	for _, s := range stages {
		terms = append(terms, Equal(FieldOverallStage, string(s)))
	}
	return And(Equal(FieldPartitionKey, releaseVersionID.String()), terms), nil
}
