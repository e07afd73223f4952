package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"

	"github.com/dwsmith1983/releasepub/internal/content"
)

// NewContentDB opens an isolated in-memory SQLite content database with the
// schema created.
func NewContentDB(t *testing.T) *bun.DB {
	t.Helper()

	db, err := content.Open("sqlite3", fmt.Sprintf("file:testutil_%s?mode=memory&cache=shared&_fk=1", uuid.NewString()))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := content.CreateSchema(ctx, db); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	return db
}

// ContentFixture seeds content records for tests.
type ContentFixture struct {
	t        *testing.T
	Store    *content.Store
	releases int
}

// NewContentFixture opens a fresh content database.
func NewContentFixture(t *testing.T) *ContentFixture {
	t.Helper()
	return &ContentFixture{t: t, Store: content.NewStore(NewContentDB(t))}
}

// Insert stores models, failing the test on error.
func (f *ContentFixture) Insert(models ...any) {
	f.t.Helper()
	if err := f.Store.Insert(context.Background(), models...); err != nil {
		f.t.Fatalf("insert fixtures: %v", err)
	}
}

// Publication seeds a theme, a publication with slug and a release of year.
func (f *ContentFixture) Publication(slug string, year int) (*content.Publication, *content.Release) {
	f.t.Helper()
	th := &content.Theme{ID: uuid.New(), Title: "Theme for " + slug, Slug: "theme-" + slug}
	pub := &content.Publication{ID: uuid.New(), ThemeID: th.ID, Title: slug, Slug: slug}
	rel := f.releaseOf(pub, year)
	f.Insert(th, pub, rel)
	return pub, rel
}

// Release seeds another release of pub.
func (f *ContentFixture) Release(pub *content.Publication, year int) *content.Release {
	f.t.Helper()
	rel := f.releaseOf(pub, year)
	f.Insert(rel)
	return rel
}

func (f *ContentFixture) releaseOf(pub *content.Publication, year int) *content.Release {
	slug := fmt.Sprintf("%d-%02d", year, (year+1)%100)
	f.releases++
	created := time.Date(year, 9, 1, 0, 0, f.releases, 0, time.UTC)
	return &content.Release{ID: uuid.New(), PublicationID: pub.ID, Slug: slug, Title: slug, Year: year, Created: created}
}

// ReleaseVersion seeds a release-version of rel. A non-nil prev makes it an amendment.
func (f *ContentFixture) ReleaseVersion(rel *content.Release, prev *content.ReleaseVersion, published *time.Time) *content.ReleaseVersion {
	f.t.Helper()
	rv := &content.ReleaseVersion{
		ID:            uuid.New(),
		ReleaseID:     rel.ID,
		PublicationID: rel.PublicationID,
		Published:     published,
	}
	if prev != nil {
		rv.Version = prev.Version + 1
		rv.PreviousVersionID = &prev.ID
	}
	f.Insert(rv)
	return rv
}

// DataFile seeds a data file attached to rv.
func (f *ContentFixture) DataFile(rv *content.ReleaseVersion, filename string) *content.File {
	f.t.Helper()
	file := &content.File{ID: uuid.New(), Type: content.FileData, Filename: filename, Path: fmt.Sprintf("releases/%s/data/%s", rv.ID, filename)}
	f.Insert(file, &content.ReleaseFile{ID: uuid.New(), ReleaseVersionID: rv.ID, FileID: file.ID})
	return file
}
