package content

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("content record not found")

// Store reads and writes content records through a bun database or transaction.
type Store struct {
	db bun.IDB
}

// NewStore wraps db.
func NewStore(db bun.IDB) *Store {
	return &Store{db: db}
}

// InTx runs fn with a Store bound to a single transaction.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx *Store) error) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, NewStore(tx))
	})
}

// Insert adds records. It is used to seed fixtures and by upstream tooling.
func (s *Store) Insert(ctx context.Context, models ...any) error {
	for _, m := range models {
		if _, err := s.db.NewInsert().Model(m).Exec(ctx); err != nil {
			return fmt.Errorf("inserting %T: %w", m, err)
		}
	}
	return nil
}

func getByID[T any](ctx context.Context, db bun.IDB, id uuid.UUID, what string) (*T, error) {
	m := new(T)
	if err := db.NewSelect().Model(m).Where("?TableAlias.id = ?", id).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s %s: %w", what, id, ErrNotFound)
		}
		return nil, fmt.Errorf("loading %s %s: %w", what, id, err)
	}
	return m, nil
}

func update(ctx context.Context, db bun.IDB, model any, columns ...string) error {
	q := db.NewUpdate().Model(model).WherePK()
	if len(columns) > 0 {
		q = q.Column(columns...)
	}
	if _, err := q.Exec(ctx); err != nil {
		return fmt.Errorf("updating %T: %w", model, err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Releases and publications
// ---------------------------------------------------------------------------

// ReleaseVersion loads a release-version by id.
func (s *Store) ReleaseVersion(ctx context.Context, id uuid.UUID) (*ReleaseVersion, error) {
	return getByID[ReleaseVersion](ctx, s.db, id, "release version")
}

// Release loads a release by id.
func (s *Store) Release(ctx context.Context, id uuid.UUID) (*Release, error) {
	return getByID[Release](ctx, s.db, id, "release")
}

// Publication loads a publication by id.
func (s *Store) Publication(ctx context.Context, id uuid.UUID) (*Publication, error) {
	return getByID[Publication](ctx, s.db, id, "publication")
}

// PublicationBySlug loads a publication by its slug.
func (s *Store) PublicationBySlug(ctx context.Context, slug string) (*Publication, error) {
	var p Publication
	if err := s.db.NewSelect().Model(&p).Where("p.slug = ?", slug).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("publication %q: %w", slug, ErrNotFound)
		}
		return nil, fmt.Errorf("loading publication %q: %w", slug, err)
	}
	return &p, nil
}

// PublicationsSupersededBy returns the publications whose SupersededByID is id.
func (s *Store) PublicationsSupersededBy(ctx context.Context, id uuid.UUID) ([]Publication, error) {
	var pubs []Publication
	if err := s.db.NewSelect().Model(&pubs).Where("p.superseded_by_id = ?", id).Order("p.slug").Scan(ctx); err != nil {
		return nil, fmt.Errorf("listing publications superseded by %s: %w", id, err)
	}
	return pubs, nil
}

// PublishedReleaseVersions returns the published, non-deleted release-versions of
// a publication, newest first: release year descending, then the most recently
// created release, then version descending. Release id breaks any remaining tie.
func (s *Store) PublishedReleaseVersions(ctx context.Context, publicationID uuid.UUID) ([]ReleaseVersion, error) {
	var rvs []ReleaseVersion
	err := s.db.NewSelect().
		Model(&rvs).
		Relation("Release").
		Where("rv.publication_id = ?", publicationID).
		Where("rv.published IS NOT NULL").
		Where("rv.soft_deleted = ?", false).
		OrderExpr("release.year DESC, release.created DESC, release.id DESC, rv.version DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing published release versions of %s: %w", publicationID, err)
	}
	return rvs, nil
}

// ReleaseVersionsWithRelations loads release-versions with their release and
// publication, in the order of ids. Unknown ids are skipped.
func (s *Store) ReleaseVersionsWithRelations(ctx context.Context, ids []uuid.UUID) ([]ReleaseVersion, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rvs []ReleaseVersion
	err := s.db.NewSelect().
		Model(&rvs).
		Relation("Release").
		Relation("Publication").
		Where("rv.id IN (?)", bun.In(ids)).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading release versions: %w", err)
	}
	byID := make(map[uuid.UUID]ReleaseVersion, len(rvs))
	for _, rv := range rvs {
		byID[rv.ID] = rv
	}
	ordered := make([]ReleaseVersion, 0, len(rvs))
	for _, id := range ids {
		if rv, ok := byID[id]; ok {
			ordered = append(ordered, rv)
		}
	}
	return ordered, nil
}

// CountOtherPublishedReleaseVersions counts published, non-deleted
// release-versions of a publication other than exclude.
func (s *Store) CountOtherPublishedReleaseVersions(ctx context.Context, publicationID, exclude uuid.UUID) (int, error) {
	n, err := s.db.NewSelect().
		Model((*ReleaseVersion)(nil)).
		Where("rv.publication_id = ?", publicationID).
		Where("rv.id <> ?", exclude).
		Where("rv.published IS NOT NULL").
		Where("rv.soft_deleted = ?", false).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("counting published release versions of %s: %w", publicationID, err)
	}
	return n, nil
}

// UpdateReleaseVersion writes the given columns of rv, or all columns when none are named.
func (s *Store) UpdateReleaseVersion(ctx context.Context, rv *ReleaseVersion, columns ...string) error {
	return update(ctx, s.db, rv, columns...)
}

// UpdatePublication writes the given columns of p, or all columns when none are named.
func (s *Store) UpdatePublication(ctx context.Context, p *Publication, columns ...string) error {
	return update(ctx, s.db, p, columns...)
}

// LatestUpdate returns the most recent amendment note of a release-version.
func (s *Store) LatestUpdate(ctx context.Context, releaseVersionID uuid.UUID) (*Update, error) {
	var u Update
	err := s.db.NewSelect().
		Model(&u).
		Where("u.release_version_id = ?", releaseVersionID).
		OrderExpr("u.on_date DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("update for release version %s: %w", releaseVersionID, ErrNotFound)
		}
		return nil, fmt.Errorf("loading latest update of %s: %w", releaseVersionID, err)
	}
	return &u, nil
}

// ---------------------------------------------------------------------------
// Files and data sets
// ---------------------------------------------------------------------------

// ReleaseFilesOfType returns a release-version's files of one type with the File loaded.
func (s *Store) ReleaseFilesOfType(ctx context.Context, releaseVersionID uuid.UUID, fileType FileType) ([]ReleaseFile, error) {
	var files []ReleaseFile
	err := s.db.NewSelect().
		Model(&files).
		Relation("File").
		Where("rf.release_version_id = ?", releaseVersionID).
		Where("file.type = ?", fileType).
		Order("file.filename").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing %s files of release version %s: %w", fileType, releaseVersionID, err)
	}
	return files, nil
}

// DraftDataSetVersionByCsvFile returns the draft data-set version backed by fileID.
func (s *Store) DraftDataSetVersionByCsvFile(ctx context.Context, fileID uuid.UUID) (*DataSetVersion, error) {
	var v DataSetVersion
	err := s.db.NewSelect().
		Model(&v).
		Where("dsv.csv_file_id = ?", fileID).
		Where("dsv.status = ?", DataSetDraft).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("draft data set version for file %s: %w", fileID, ErrNotFound)
		}
		return nil, fmt.Errorf("loading draft data set version for file %s: %w", fileID, err)
	}
	return &v, nil
}

// DataSet loads a data set by id.
func (s *Store) DataSet(ctx context.Context, id uuid.UUID) (*DataSet, error) {
	return getByID[DataSet](ctx, s.db, id, "data set")
}

// DataSetVersion loads a data-set version by id.
func (s *Store) DataSetVersion(ctx context.Context, id uuid.UUID) (*DataSetVersion, error) {
	return getByID[DataSetVersion](ctx, s.db, id, "data set version")
}

// UpdateDataSet writes the given columns of ds.
func (s *Store) UpdateDataSet(ctx context.Context, ds *DataSet, columns ...string) error {
	return update(ctx, s.db, ds, columns...)
}

// UpdateDataSetVersion writes the given columns of v.
func (s *Store) UpdateDataSetVersion(ctx context.Context, v *DataSetVersion, columns ...string) error {
	return update(ctx, s.db, v, columns...)
}

// ---------------------------------------------------------------------------
// Methodologies
// ---------------------------------------------------------------------------

// MethodologiesForPublication returns the methodologies linked to a publication.
func (s *Store) MethodologiesForPublication(ctx context.Context, publicationID uuid.UUID) ([]Methodology, error) {
	var ms []Methodology
	err := s.db.NewSelect().
		Model(&ms).
		Join("JOIN publication_methodologies AS pm ON pm.methodology_id = m.id").
		Where("pm.publication_id = ?", publicationID).
		Order("m.slug").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing methodologies of publication %s: %w", publicationID, err)
	}
	return ms, nil
}

// LatestMethodologyVersion returns the highest version of a methodology.
func (s *Store) LatestMethodologyVersion(ctx context.Context, methodologyID uuid.UUID) (*MethodologyVersion, error) {
	var v MethodologyVersion
	err := s.db.NewSelect().
		Model(&v).
		Where("mv.methodology_id = ?", methodologyID).
		OrderExpr("mv.version DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("versions of methodology %s: %w", methodologyID, ErrNotFound)
		}
		return nil, fmt.Errorf("loading latest version of methodology %s: %w", methodologyID, err)
	}
	return &v, nil
}

// MethodologyFiles returns a methodology version's files with the File loaded.
func (s *Store) MethodologyFiles(ctx context.Context, methodologyVersionID uuid.UUID) ([]MethodologyFile, error) {
	var files []MethodologyFile
	err := s.db.NewSelect().
		Model(&files).
		Relation("File").
		Where("mf.methodology_version_id = ?", methodologyVersionID).
		Order("file.filename").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing files of methodology version %s: %w", methodologyVersionID, err)
	}
	return files, nil
}

// Methodology loads a methodology by id.
func (s *Store) Methodology(ctx context.Context, id uuid.UUID) (*Methodology, error) {
	return getByID[Methodology](ctx, s.db, id, "methodology")
}

// UpdateMethodology writes the given columns of m.
func (s *Store) UpdateMethodology(ctx context.Context, m *Methodology, columns ...string) error {
	return update(ctx, s.db, m, columns...)
}

// UpdateMethodologyVersion writes the given columns of v.
func (s *Store) UpdateMethodologyVersion(ctx context.Context, v *MethodologyVersion, columns ...string) error {
	return update(ctx, s.db, v, columns...)
}

// ---------------------------------------------------------------------------
// Site structure
// ---------------------------------------------------------------------------

// Redirects returns every slug redirect.
func (s *Store) Redirects(ctx context.Context) ([]Redirect, error) {
	var rs []Redirect
	if err := s.db.NewSelect().Model(&rs).Order("rd.type", "rd.from_slug").Scan(ctx); err != nil {
		return nil, fmt.Errorf("listing redirects: %w", err)
	}
	return rs, nil
}

// Themes returns every theme with its live publications.
func (s *Store) Themes(ctx context.Context) ([]Theme, error) {
	var themes []Theme
	err := s.db.NewSelect().
		Model(&themes).
		Relation("Publications", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("latest_published_release_version_id IS NOT NULL").Order("title")
		}).
		Order("th.title").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing themes: %w", err)
	}
	return themes, nil
}
