// Package methodology publishes the methodology versions that go live with a
// release-version.
package methodology

import (
	"path"

	"github.com/google/uuid"

	"github.com/dwsmith1983/releasepub/internal/content"
)

// Eligible reports whether v goes live when releaseVersionID completes.
// otherReleasesPublished is true when the release's publication already has
// a published release-version other than releaseVersionID.
//
// Approved versions published Immediately wait for the publication's first
// release. Approved versions published WithRelease wait for their scheduled
// release-version.
func Eligible(v *content.MethodologyVersion, releaseVersionID uuid.UUID, otherReleasesPublished bool) bool {
	if v == nil || v.Status != content.MethodologyApproved {
		return false
	}
	switch v.PublishingStrategy {
	case content.PublishImmediately:
		return !otherReleasesPublished
	case content.PublishWithRelease:
		return v.ScheduledWithReleaseVersionID != nil && *v.ScheduledWithReleaseVersionID == releaseVersionID
	default:
		return false
	}
}

// PublicPrefix is the public object-store prefix holding a methodology's files.
func PublicPrefix(methodologyID uuid.UUID) string {
	return "methodologies/" + methodologyID.String() + "/"
}

// PublicKey is the public key of f. Every file lands under PublicPrefix
// wherever it sits in private storage.
func PublicKey(methodologyID uuid.UUID, f *content.File) string {
	name := f.Filename
	if name == "" {
		name = path.Base(f.Path)
	}
	return PublicPrefix(methodologyID) + name
}
