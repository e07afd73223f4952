// Package content holds the relational records the publishing pipeline reads
// and mutates: publications, releases, data sets and methodologies.
package content

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// FileType classifies release and methodology files.
type FileType string

// FileType values.
const (
	FileData      FileType = "Data"
	FileMeta      FileType = "Metadata"
	FileAncillary FileType = "Ancillary"
	FileChart     FileType = "Chart"
	FileImage     FileType = "Image"
	FileDataZip   FileType = "DataZip"
)

// DataSetStatus is shared by data sets and their versions.
type DataSetStatus string

// DataSetStatus values.
const (
	DataSetDraft     DataSetStatus = "Draft"
	DataSetPublished DataSetStatus = "Published"
)

// PublishingStrategy controls when an approved methodology version goes live.
type PublishingStrategy string

// PublishingStrategy values.
const (
	PublishImmediately PublishingStrategy = "Immediately"
	PublishWithRelease PublishingStrategy = "WithRelease"
)

// MethodologyStatus is the approval state of a methodology version.
type MethodologyStatus string

// MethodologyStatus values.
const (
	MethodologyDraft    MethodologyStatus = "Draft"
	MethodologyApproved MethodologyStatus = "Approved"
)

// RedirectType names the kind of slug a redirect rewrites.
type RedirectType string

// RedirectType values.
const (
	RedirectPublication RedirectType = "Publication"
	RedirectMethodology RedirectType = "Methodology"
)

// Theme groups publications for the taxonomy.
type Theme struct {
	bun.BaseModel `bun:"table:themes,alias:th"`

	ID    uuid.UUID `bun:",pk,type:uuid" json:"id"`
	Title string    `bun:"title,notnull" json:"title"`
	Slug  string    `bun:"slug,notnull,unique" json:"slug"`

	Publications []*Publication `bun:"rel:has-many,join:id=theme_id" json:"publications,omitempty"`
}

// Publication owns a series of releases.
type Publication struct {
	bun.BaseModel `bun:"table:publications,alias:p"`

	ID                              uuid.UUID  `bun:",pk,type:uuid" json:"id"`
	ThemeID                         uuid.UUID  `bun:"theme_id,notnull,type:uuid" json:"themeId"`
	Title                           string     `bun:"title,notnull" json:"title"`
	Slug                            string     `bun:"slug,notnull,unique" json:"slug"`
	Summary                         string     `bun:"summary" json:"summary,omitempty"`
	LatestPublishedReleaseVersionID *uuid.UUID `bun:"latest_published_release_version_id,type:uuid" json:"latestPublishedReleaseVersionId,omitempty"`
	SupersededByID                  *uuid.UUID `bun:"superseded_by_id,type:uuid" json:"supersededById,omitempty"`
}

// Live reports whether the publication has a published release-version.
func (p *Publication) Live() bool { return p.LatestPublishedReleaseVersionID != nil }

// Release is one statistical release of a publication, e.g. "2024/25".
type Release struct {
	bun.BaseModel `bun:"table:releases,alias:r"`

	ID            uuid.UUID `bun:",pk,type:uuid" json:"id"`
	PublicationID uuid.UUID `bun:"publication_id,notnull,type:uuid" json:"publicationId"`
	Slug          string    `bun:"slug,notnull" json:"slug"`
	Title         string    `bun:"title,notnull" json:"title"`
	Year          int       `bun:"year,notnull" json:"year"`
	// Created orders releases that share a year.
	Created       time.Time `bun:"created,notnull" json:"created"`
}

// ReleaseVersion is one iteration of a release. Version 0 is the first
// publication; later versions are amendments linked through PreviousVersionID.
type ReleaseVersion struct {
	bun.BaseModel `bun:"table:release_versions,alias:rv"`

	ID                  uuid.UUID  `bun:",pk,type:uuid" json:"id"`
	ReleaseID           uuid.UUID  `bun:"release_id,notnull,type:uuid" json:"releaseId"`
	PublicationID       uuid.UUID  `bun:"publication_id,notnull,type:uuid" json:"publicationId"`
	Version             int        `bun:"version,notnull" json:"version"`
	PreviousVersionID   *uuid.UUID `bun:"previous_version_id,type:uuid" json:"previousVersionId,omitempty"`
	Published           *time.Time `bun:"published" json:"published,omitempty"`
	NotifySubscribers   bool       `bun:"notify_subscribers,notnull" json:"notifySubscribers"`
	UpdatePublishedDate bool       `bun:"update_published_date,notnull" json:"updatePublishedDate"`
	SoftDeleted         bool       `bun:"soft_deleted,notnull" json:"softDeleted"`

	Release     *Release     `bun:"rel:belongs-to,join:release_id=id" json:"release,omitempty"`
	Publication *Publication `bun:"rel:belongs-to,join:publication_id=id" json:"publication,omitempty"`
}

// Amendment reports whether this version amends an earlier one.
func (rv *ReleaseVersion) Amendment() bool {
	return rv.PreviousVersionID != nil || rv.Version > 0
}

// File is a blob stored in object storage.
type File struct {
	bun.BaseModel `bun:"table:files,alias:f"`

	ID       uuid.UUID `bun:",pk,type:uuid" json:"id"`
	Type     FileType  `bun:"type,notnull" json:"type"`
	Filename string    `bun:"filename,notnull" json:"filename"`
	Path     string    `bun:"path,notnull" json:"path"`
}

// ReleaseFile attaches a file to a release-version.
type ReleaseFile struct {
	bun.BaseModel `bun:"table:release_files,alias:rf"`

	ID               uuid.UUID `bun:",pk,type:uuid" json:"id"`
	ReleaseVersionID uuid.UUID `bun:"release_version_id,notnull,type:uuid" json:"releaseVersionId"`
	FileID           uuid.UUID `bun:"file_id,notnull,type:uuid" json:"fileId"`

	File *File `bun:"rel:belongs-to,join:file_id=id" json:"file,omitempty"`
}

// DataSet is a long-lived statistical dataset. Published records the first
// time any of its versions went live and is never overwritten.
type DataSet struct {
	bun.BaseModel `bun:"table:data_sets,alias:ds"`

	ID                   uuid.UUID     `bun:",pk,type:uuid" json:"id"`
	Title                string        `bun:"title,notnull" json:"title"`
	Status               DataSetStatus `bun:"status,notnull" json:"status"`
	Published            *time.Time    `bun:"published" json:"published,omitempty"`
	LatestDraftVersionID *uuid.UUID    `bun:"latest_draft_version_id,type:uuid" json:"latestDraftVersionId,omitempty"`
	LatestLiveVersionID  *uuid.UUID    `bun:"latest_live_version_id,type:uuid" json:"latestLiveVersionId,omitempty"`
}

// DataSetVersion is one version of a DataSet backed by a release CSV file.
type DataSetVersion struct {
	bun.BaseModel `bun:"table:data_set_versions,alias:dsv"`

	ID           uuid.UUID     `bun:",pk,type:uuid" json:"id"`
	DataSetID    uuid.UUID     `bun:"data_set_id,notnull,type:uuid" json:"dataSetId"`
	Status       DataSetStatus `bun:"status,notnull" json:"status"`
	Published    *time.Time    `bun:"published" json:"published,omitempty"`
	CsvFileID    uuid.UUID     `bun:"csv_file_id,notnull,type:uuid" json:"csvFileId"`
	VersionMajor int           `bun:"version_major,notnull" json:"versionMajor"`
	VersionMinor int           `bun:"version_minor,notnull" json:"versionMinor"`
}

// Newer reports whether v orders after other by major then minor version.
func (v *DataSetVersion) Newer(other *DataSetVersion) bool {
	if v.VersionMajor != other.VersionMajor {
		return v.VersionMajor > other.VersionMajor
	}
	return v.VersionMinor > other.VersionMinor
}

// Methodology describes how a publication's statistics are produced.
type Methodology struct {
	bun.BaseModel `bun:"table:methodologies,alias:m"`

	ID                       uuid.UUID  `bun:",pk,type:uuid" json:"id"`
	OwningPublicationID      uuid.UUID  `bun:"owning_publication_id,notnull,type:uuid" json:"owningPublicationId"`
	Slug                     string     `bun:"slug,notnull" json:"slug"`
	LatestPublishedVersionID *uuid.UUID `bun:"latest_published_version_id,type:uuid" json:"latestPublishedVersionId,omitempty"`
}

// MethodologyVersion is one version of a methodology.
type MethodologyVersion struct {
	bun.BaseModel `bun:"table:methodology_versions,alias:mv"`

	ID                            uuid.UUID          `bun:",pk,type:uuid" json:"id"`
	MethodologyID                 uuid.UUID          `bun:"methodology_id,notnull,type:uuid" json:"methodologyId"`
	Version                       int                `bun:"version,notnull" json:"version"`
	PublishingStrategy            PublishingStrategy `bun:"publishing_strategy,notnull" json:"publishingStrategy"`
	Status                        MethodologyStatus  `bun:"status,notnull" json:"status"`
	ScheduledWithReleaseVersionID *uuid.UUID         `bun:"scheduled_with_release_version_id,type:uuid" json:"scheduledWithReleaseVersionId,omitempty"`
	Published                     *time.Time         `bun:"published" json:"published,omitempty"`
}

// MethodologyFile attaches a file to a methodology version.
type MethodologyFile struct {
	bun.BaseModel `bun:"table:methodology_files,alias:mf"`

	ID                   uuid.UUID `bun:",pk,type:uuid" json:"id"`
	MethodologyVersionID uuid.UUID `bun:"methodology_version_id,notnull,type:uuid" json:"methodologyVersionId"`
	FileID               uuid.UUID `bun:"file_id,notnull,type:uuid" json:"fileId"`

	File *File `bun:"rel:belongs-to,join:file_id=id" json:"file,omitempty"`
}

// PublicationMethodology links a methodology to a publication that uses it.
type PublicationMethodology struct {
	bun.BaseModel `bun:"table:publication_methodologies,alias:pm"`

	PublicationID uuid.UUID `bun:"publication_id,pk,type:uuid" json:"publicationId"`
	MethodologyID uuid.UUID `bun:"methodology_id,pk,type:uuid" json:"methodologyId"`
	Owner         bool      `bun:"owner,notnull" json:"owner"`
}

// Update is an amendment note attached to a release-version.
type Update struct {
	bun.BaseModel `bun:"table:updates,alias:u"`

	ID               uuid.UUID `bun:",pk,type:uuid" json:"id"`
	ReleaseVersionID uuid.UUID `bun:"release_version_id,notnull,type:uuid" json:"releaseVersionId"`
	On               time.Time `bun:"on_date,notnull" json:"on"`
	Reason           string    `bun:"reason,notnull" json:"reason"`
}

// Redirect rewrites an old slug to its replacement.
type Redirect struct {
	bun.BaseModel `bun:"table:redirects,alias:rd"`

	ID       uuid.UUID    `bun:",pk,type:uuid" json:"id"`
	Type     RedirectType `bun:"type,notnull" json:"type"`
	FromSlug string       `bun:"from_slug,notnull" json:"fromSlug"`
	ToSlug   string       `bun:"to_slug,notnull" json:"toSlug"`
}

// Models lists every table in creation order.
var Models = []any{
	(*Theme)(nil),
	(*Publication)(nil),
	(*Release)(nil),
	(*ReleaseVersion)(nil),
	(*File)(nil),
	(*ReleaseFile)(nil),
	(*DataSet)(nil),
	(*DataSetVersion)(nil),
	(*Methodology)(nil),
	(*MethodologyVersion)(nil),
	(*MethodologyFile)(nil),
	(*PublicationMethodology)(nil),
	(*Update)(nil),
	(*Redirect)(nil),
}
