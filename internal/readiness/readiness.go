// Package readiness decides which publishing attempts have cleared every
// prerequisite stage.
package readiness

import "github.com/dwsmith1983/releasepub/pkg/types"

// IsReady reports whether content and files have both completed. The
// publishing stage is ignored so attempts stuck at Started are re-run.
func IsReady(s types.ReleasePublishingStatus) bool {
	return s.ContentStage == types.ContentComplete && s.FilesStage == types.FilesComplete
}

// Partition splits statuses into ready and not-ready, preserving input order.
func Partition(statuses []types.ReleasePublishingStatus) (ready, notReady []types.ReleasePublishingStatus) {
	for _, s := range statuses {
		if IsReady(s) {
			ready = append(ready, s)
		} else {
			notReady = append(notReady, s)
		}
	}
	return ready, notReady
}
