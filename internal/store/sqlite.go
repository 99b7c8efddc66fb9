package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/integratec/plant-crm/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL
// mode. Foreign keys are enabled so cascade deletes work.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS facilities (
	id                        TEXT PRIMARY KEY,
	place_id                  TEXT UNIQUE NOT NULL,
	name                      TEXT,
	formatted_address         TEXT,
	short_formatted_address   TEXT,
	lat                       REAL,
	lng                       REAL,
	phone                     TEXT,
	website                   TEXT,
	business_status           TEXT,
	google_maps_uri           TEXT,
	primary_type              TEXT,
	primary_type_display_name TEXT,
	types                     TEXT,
	rating                    REAL,
	user_rating_count         INTEGER,
	plus_code                 TEXT,
	price_level               TEXT,
	regular_opening_hours     TEXT,
	photo_name                TEXT,
	editorial_summary         TEXT,
	generative_summary        TEXT,
	city                      TEXT,
	state                     TEXT,
	postal_code               TEXT,
	manufacturing_relevance   TEXT,
	manufacturing_reason      TEXT,
	data_source               TEXT DEFAULT 'google_places',
	contacted                 INTEGER NOT NULL DEFAULT 0,
	current_customer          INTEGER NOT NULL DEFAULT 0,
	follow_up_date            TEXT,
	notes                     TEXT,
	created_at                DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at                DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_facilities_place_id ON facilities(place_id);
CREATE INDEX IF NOT EXISTS idx_facilities_contacted ON facilities(contacted);
CREATE INDEX IF NOT EXISTS idx_facilities_current_customer ON facilities(current_customer);
CREATE INDEX IF NOT EXISTS idx_facilities_follow_up_date ON facilities(follow_up_date);
CREATE INDEX IF NOT EXISTS idx_facilities_created_at ON facilities(created_at);

CREATE TABLE IF NOT EXISTS contacts (
	id           TEXT PRIMARY KEY,
	facility_id  TEXT NOT NULL REFERENCES facilities(id) ON DELETE CASCADE,
	source_id    TEXT,
	first_name   TEXT,
	last_name    TEXT,
	title        TEXT,
	email        TEXT,
	phone        TEXT,
	linkedin_url TEXT,
	source       TEXT DEFAULT 'hunter',
	created_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_contacts_facility_id ON contacts(facility_id);
CREATE INDEX IF NOT EXISTS idx_contacts_source_id ON contacts(source_id);

CREATE TABLE IF NOT EXISTS sequences (
	name       TEXT PRIMARY KEY,
	next_value INTEGER NOT NULL DEFAULT 1
);
INSERT OR IGNORE INTO sequences (name, next_value) VALUES ('pr', 1), ('comm', 1);

CREATE TABLE IF NOT EXISTS visits (
	id          TEXT PRIMARY KEY,
	facility_id TEXT NOT NULL REFERENCES facilities(id) ON DELETE CASCADE,
	visit_date  TEXT NOT NULL,
	notes       TEXT,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_visits_facility_id ON visits(facility_id);
CREATE INDEX IF NOT EXISTS idx_visits_visit_date ON visits(visit_date);

CREATE TABLE IF NOT EXISTS visit_files (
	id            TEXT PRIMARY KEY,
	visit_id      TEXT NOT NULL REFERENCES visits(id) ON DELETE CASCADE,
	filename      TEXT NOT NULL,
	original_name TEXT NOT NULL,
	content_type  TEXT,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_visit_files_visit_id ON visit_files(visit_id);

CREATE TABLE IF NOT EXISTS projects (
	id              TEXT PRIMARY KEY,
	facility_id     TEXT NOT NULL REFERENCES facilities(id) ON DELETE CASCADE,
	pr_number       TEXT UNIQUE NOT NULL,
	status          TEXT DEFAULT 'draft',
	source_visit_id TEXT REFERENCES visits(id) ON DELETE SET NULL,
	notes           TEXT,
	created_at      DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at      DATETIME NOT NULL DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_projects_facility_id ON projects(facility_id);
CREATE INDEX IF NOT EXISTS idx_projects_pr_number ON projects(pr_number);
CREATE INDEX IF NOT EXISTS idx_projects_status ON projects(status);

CREATE TABLE IF NOT EXISTS project_files (
	id            TEXT PRIMARY KEY,
	project_id    TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	filename      TEXT NOT NULL,
	original_name TEXT NOT NULL,
	file_type     TEXT DEFAULT 'other',
	created_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_project_files_project_id ON project_files(project_id);

CREATE TABLE IF NOT EXISTS commissionings (
	id          TEXT PRIMARY KEY,
	project_id  TEXT UNIQUE NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	comm_number TEXT UNIQUE NOT NULL,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_commissionings_project_id ON commissionings(project_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// facilityColumns is the canonical column order used by every facility
// SELECT and matched by scanFacility.
const facilityColumns = `id, place_id, name, formatted_address, short_formatted_address,
	lat, lng, phone, website, business_status, google_maps_uri,
	primary_type, primary_type_display_name, types, rating, user_rating_count,
	plus_code, price_level, regular_opening_hours, photo_name,
	editorial_summary, generative_summary, city, state, postal_code,
	manufacturing_relevance, manufacturing_reason, data_source,
	contacted, current_customer, follow_up_date, notes, created_at, updated_at`

func (s *SQLiteStore) UpsertFacility(ctx context.Context, f model.Facility) (bool, error) {
	var existingID string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM facilities WHERE place_id = ?`, f.PlaceID,
	).Scan(&existingID)
	if err != nil && err != sql.ErrNoRows {
		return false, eris.Wrapf(err, "sqlite: lookup facility %s", f.PlaceID)
	}

	typesJSON := marshalTypes(f.Types)
	now := time.Now().UTC()

	if existingID == "" {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO facilities (id, place_id, name, formatted_address, short_formatted_address,
				lat, lng, phone, website, business_status, google_maps_uri,
				primary_type, primary_type_display_name, types, rating, user_rating_count,
				plus_code, price_level, regular_opening_hours, photo_name,
				editorial_summary, generative_summary, city, state, postal_code,
				manufacturing_relevance, manufacturing_reason, data_source,
				contacted, current_customer, follow_up_date, notes, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 0, NULL, NULL, ?, ?)`,
			uuid.New().String(), f.PlaceID, f.Name, f.FormattedAddress, f.ShortFormattedAddress,
			f.Lat, f.Lng, f.Phone, f.Website, f.BusinessStatus, f.GoogleMapsURI,
			f.PrimaryType, f.PrimaryTypeDisplayName, typesJSON, f.Rating, f.UserRatingCount,
			f.PlusCode, f.PriceLevel, f.OpeningHours, f.PhotoName,
			f.EditorialSummary, f.GenerativeSummary, f.City, f.State, f.PostalCode,
			nullIfEmpty(string(f.Relevance)), nullIfEmpty(f.RelevanceReason), f.DataSource,
			now, now,
		)
		if err != nil {
			return false, eris.Wrapf(err, "sqlite: insert facility %s", f.PlaceID)
		}
		return true, nil
	}

	// CRM fields (contacted, current_customer, follow_up_date, notes) are
	// deliberately absent from the update list.
	_, err = s.db.ExecContext(ctx,
		`UPDATE facilities SET name = ?, formatted_address = ?, short_formatted_address = ?,
			lat = ?, lng = ?, phone = ?, website = ?, business_status = ?, google_maps_uri = ?,
			primary_type = ?, primary_type_display_name = ?, types = ?, rating = ?, user_rating_count = ?,
			plus_code = ?, price_level = ?, regular_opening_hours = ?, photo_name = ?,
			editorial_summary = ?, generative_summary = ?, city = ?, state = ?, postal_code = ?,
			manufacturing_relevance = ?, manufacturing_reason = ?, updated_at = ?
		WHERE id = ?`,
		f.Name, f.FormattedAddress, f.ShortFormattedAddress,
		f.Lat, f.Lng, f.Phone, f.Website, f.BusinessStatus, f.GoogleMapsURI,
		f.PrimaryType, f.PrimaryTypeDisplayName, typesJSON, f.Rating, f.UserRatingCount,
		f.PlusCode, f.PriceLevel, f.OpeningHours, f.PhotoName,
		f.EditorialSummary, f.GenerativeSummary, f.City, f.State, f.PostalCode,
		nullIfEmpty(string(f.Relevance)), nullIfEmpty(f.RelevanceReason), now,
		existingID,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: update facility %s", f.PlaceID)
	}
	return false, nil
}

func (s *SQLiteStore) ListFacilities(ctx context.Context, filter FacilityFilter) ([]model.Facility, error) {
	query := `SELECT ` + facilityColumns + ` FROM facilities WHERE 1=1`
	var args []any

	if filter.Contacted != nil {
		query += ` AND contacted = ?`
		args = append(args, boolToInt(*filter.Contacted))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 500
	}
	if limit > 1000 {
		limit = 1000
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list facilities")
	}
	defer rows.Close()

	var facilities []model.Facility
	for rows.Next() {
		f, err := scanFacility(rows)
		if err != nil {
			return nil, err
		}
		facilities = append(facilities, *f)
	}
	return facilities, eris.Wrap(rows.Err(), "sqlite: list facilities iterate")
}

func (s *SQLiteStore) GetFacility(ctx context.Context, id string) (*model.Facility, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+facilityColumns+` FROM facilities WHERE id = ?`, id)
	f, err := scanFacility(row)
	if err == errNoRow {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: facility %s", id)
	}
	return f, err
}

func (s *SQLiteStore) UpdateFacilityCRM(ctx context.Context, id string, update CRMUpdate) (*model.Facility, error) {
	if update.Empty() {
		return nil, eris.New("sqlite: no fields to update")
	}

	sets := []string{"updated_at = ?"}
	args := []any{time.Now().UTC()}

	if update.Contacted != nil {
		sets = append(sets, "contacted = ?")
		args = append(args, boolToInt(*update.Contacted))
	}
	if update.CurrentCustomer != nil {
		sets = append(sets, "current_customer = ?")
		args = append(args, boolToInt(*update.CurrentCustomer))
	}
	if update.FollowUpDateSet {
		sets = append(sets, "follow_up_date = ?")
		args = append(args, emptyToNull(update.FollowUpDate))
	}
	if update.NotesSet {
		sets = append(sets, "notes = ?")
		args = append(args, update.Notes)
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx,
		`UPDATE facilities SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: update facility crm %s", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: facility %s", id)
	}
	return s.GetFacility(ctx, id)
}

func (s *SQLiteStore) DeleteFacility(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM facilities WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete facility %s", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return eris.Wrapf(ErrNotFound, "sqlite: facility %s", id)
	}
	return nil
}

func (s *SQLiteStore) DeleteFacilities(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM facilities WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete facilities")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

func (s *SQLiteStore) CountFacilities(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM facilities`).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count facilities")
}

func (s *SQLiteStore) FacilityMetrics(ctx context.Context) (*model.Metrics, error) {
	var m model.Metrics
	err := s.db.QueryRowContext(ctx, `SELECT
		COUNT(*),
		COUNT(CASE WHEN contacted = 1 THEN 1 END),
		COUNT(CASE WHEN current_customer = 1 THEN 1 END),
		COUNT(CASE WHEN follow_up_date IS NOT NULL AND follow_up_date >= date('now') THEN 1 END),
		COUNT(CASE WHEN created_at >= datetime('now', '-7 days') THEN 1 END)
	FROM facilities`).Scan(&m.Total, &m.Contacted, &m.CurrentCustomers, &m.PendingFollowUps, &m.NewThisWeek)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: facility metrics")
	}
	return &m, nil
}

// Contacts

func (s *SQLiteStore) ListContacts(ctx context.Context, facilityID string) ([]model.Contact, error) {
	query := `SELECT id, facility_id, source_id, first_name, last_name, title, email, phone,
		linkedin_url, source, created_at, updated_at FROM contacts`
	var args []any
	if facilityID != "" {
		query += ` WHERE facility_id = ?`
		args = append(args, facilityID)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list contacts")
	}
	defer rows.Close()

	var contacts []model.Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, *c)
	}
	return contacts, eris.Wrap(rows.Err(), "sqlite: list contacts iterate")
}

func (s *SQLiteStore) GetContact(ctx context.Context, id string) (*model.Contact, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, facility_id, source_id, first_name, last_name, title, email, phone,
			linkedin_url, source, created_at, updated_at FROM contacts WHERE id = ?`, id)
	c, err := scanContact(row)
	if err == errNoRow {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: contact %s", id)
	}
	return c, err
}

func (s *SQLiteStore) CreateContact(ctx context.Context, c model.Contact) (*model.Contact, error) {
	c.ID = uuid.New().String()
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	if c.Source == "" {
		c.Source = "hunter"
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO contacts (id, facility_id, source_id, first_name, last_name, title, email,
			phone, linkedin_url, source, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.FacilityID, nullIfEmpty(c.SourceID), c.FirstName, c.LastName, c.Title, c.Email,
		c.Phone, c.LinkedInURL, c.Source, now, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert contact for facility %s", c.FacilityID)
	}
	return &c, nil
}

func (s *SQLiteStore) ContactSourceIDs(ctx context.Context, facilityID string) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source_id FROM contacts WHERE facility_id = ? AND source_id IS NOT NULL`, facilityID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: contact source ids")
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan source id")
		}
		ids[id] = struct{}{}
	}
	return ids, eris.Wrap(rows.Err(), "sqlite: contact source ids iterate")
}

func (s *SQLiteStore) DeleteContact(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM contacts WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete contact %s", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return eris.Wrapf(ErrNotFound, "sqlite: contact %s", id)
	}
	return nil
}

// Visits

func (s *SQLiteStore) CreateVisit(ctx context.Context, v model.Visit) (*model.Visit, error) {
	v.ID = uuid.New().String()
	now := time.Now().UTC()
	v.CreatedAt, v.UpdatedAt = now, now
	v.Files = []model.VisitFile{}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO visits (id, facility_id, visit_date, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		v.ID, v.FacilityID, v.VisitDate, v.Notes, now, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert visit for facility %s", v.FacilityID)
	}
	return &v, nil
}

func (s *SQLiteStore) ListVisits(ctx context.Context, facilityID string) ([]model.Visit, error) {
	query := `SELECT v.id, v.facility_id, f.name, v.visit_date, v.notes, v.created_at, v.updated_at
		FROM visits v LEFT JOIN facilities f ON v.facility_id = f.id WHERE 1=1`
	var args []any
	if facilityID != "" {
		query += ` AND v.facility_id = ?`
		args = append(args, facilityID)
	}
	query += ` ORDER BY v.visit_date DESC, v.created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list visits")
	}
	defer rows.Close()

	var visits []model.Visit
	for rows.Next() {
		var v model.Visit
		var facilityName sql.NullString
		if err := rows.Scan(&v.ID, &v.FacilityID, &facilityName, &v.VisitDate, &v.Notes, &v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan visit")
		}
		v.FacilityName = facilityName.String
		visits = append(visits, v)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: list visits iterate")
	}

	for i := range visits {
		files, err := s.listVisitFiles(ctx, visits[i].ID)
		if err != nil {
			return nil, err
		}
		visits[i].Files = files
	}
	return visits, nil
}

func (s *SQLiteStore) GetVisit(ctx context.Context, id string) (*model.Visit, error) {
	var v model.Visit
	err := s.db.QueryRowContext(ctx,
		`SELECT id, facility_id, visit_date, notes, created_at, updated_at FROM visits WHERE id = ?`, id,
	).Scan(&v.ID, &v.FacilityID, &v.VisitDate, &v.Notes, &v.CreatedAt, &v.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: visit %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get visit %s", id)
	}

	files, err := s.listVisitFiles(ctx, id)
	if err != nil {
		return nil, err
	}
	v.Files = files
	return &v, nil
}

func (s *SQLiteStore) DeleteVisit(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM visits WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete visit %s", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return eris.Wrapf(ErrNotFound, "sqlite: visit %s", id)
	}
	return nil
}

func (s *SQLiteStore) AddVisitFile(ctx context.Context, f model.VisitFile) (*model.VisitFile, error) {
	f.ID = uuid.New().String()
	f.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO visit_files (id, visit_id, filename, original_name, content_type, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		f.ID, f.VisitID, f.Filename, f.OriginalName, f.ContentType, f.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert visit file for %s", f.VisitID)
	}
	return &f, nil
}

func (s *SQLiteStore) GetVisitFile(ctx context.Context, visitID, filename string) (*model.VisitFile, error) {
	var f model.VisitFile
	var contentType sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, visit_id, filename, original_name, content_type, created_at
		FROM visit_files WHERE visit_id = ? AND filename = ?`, visitID, filename,
	).Scan(&f.ID, &f.VisitID, &f.Filename, &f.OriginalName, &contentType, &f.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: visit file %s", filename)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get visit file")
	}
	f.ContentType = contentType.String
	return &f, nil
}

func (s *SQLiteStore) listVisitFiles(ctx context.Context, visitID string) ([]model.VisitFile, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, visit_id, filename, original_name, content_type, created_at
		FROM visit_files WHERE visit_id = ? ORDER BY created_at`, visitID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list visit files")
	}
	defer rows.Close()

	files := []model.VisitFile{}
	for rows.Next() {
		var f model.VisitFile
		var contentType sql.NullString
		if err := rows.Scan(&f.ID, &f.VisitID, &f.Filename, &f.OriginalName, &contentType, &f.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan visit file")
		}
		f.ContentType = contentType.String
		files = append(files, f)
	}
	return files, eris.Wrap(rows.Err(), "sqlite: list visit files iterate")
}

// Projects

func (s *SQLiteStore) CreateProject(ctx context.Context, p model.Project) (*model.Project, error) {
	if p.Status == "" {
		p.Status = model.ProjectStatusDraft
	}
	_, prNumber, err := s.NextSequence(ctx, SequencePR)
	if err != nil {
		return nil, err
	}

	p.ID = uuid.New().String()
	p.PRNumber = prNumber
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	p.Files = []model.ProjectFile{}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO projects (id, facility_id, pr_number, status, source_visit_id, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.FacilityID, p.PRNumber, string(p.Status), p.SourceVisitID, p.Notes, now, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert project for facility %s", p.FacilityID)
	}
	return &p, nil
}

func (s *SQLiteStore) ListProjects(ctx context.Context, facilityID string) ([]model.Project, error) {
	query := `SELECT p.id, p.facility_id, f.name, p.pr_number, p.status, p.source_visit_id,
		p.notes, p.created_at, p.updated_at
		FROM projects p LEFT JOIN facilities f ON p.facility_id = f.id WHERE 1=1`
	var args []any
	if facilityID != "" {
		query += ` AND p.facility_id = ?`
		args = append(args, facilityID)
	}
	query += ` ORDER BY p.created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list projects")
	}
	defer rows.Close()

	var projects []model.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, *p)
	}
	return projects, eris.Wrap(rows.Err(), "sqlite: list projects iterate")
}

func (s *SQLiteStore) GetProject(ctx context.Context, id string) (*model.Project, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT p.id, p.facility_id, f.name, p.pr_number, p.status, p.source_visit_id,
			p.notes, p.created_at, p.updated_at
		FROM projects p LEFT JOIN facilities f ON p.facility_id = f.id WHERE p.id = ?`, id)
	p, err := scanProject(row)
	if err == errNoRow {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: project %s", id)
	}
	if err != nil {
		return nil, err
	}

	files, err := s.listProjectFiles(ctx, id)
	if err != nil {
		return nil, err
	}
	p.Files = files
	return p, nil
}

func (s *SQLiteStore) UpdateProject(ctx context.Context, id string, update ProjectUpdate) (*model.Project, error) {
	sets := []string{"updated_at = ?"}
	args := []any{time.Now().UTC()}

	if update.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*update.Status))
	}
	if update.Notes != nil {
		sets = append(sets, "notes = ?")
		args = append(args, *update.Notes)
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx,
		`UPDATE projects SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: update project %s", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: project %s", id)
	}
	return s.GetProject(ctx, id)
}

func (s *SQLiteStore) DeleteProject(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete project %s", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return eris.Wrapf(ErrNotFound, "sqlite: project %s", id)
	}
	return nil
}

func (s *SQLiteStore) AddProjectFile(ctx context.Context, f model.ProjectFile) (*model.ProjectFile, error) {
	f.ID = uuid.New().String()
	f.CreatedAt = time.Now().UTC()
	if f.FileType == "" {
		f.FileType = "other"
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO project_files (id, project_id, filename, original_name, file_type, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		f.ID, f.ProjectID, f.Filename, f.OriginalName, f.FileType, f.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert project file for %s", f.ProjectID)
	}
	return &f, nil
}

func (s *SQLiteStore) GetProjectFile(ctx context.Context, projectID, filename string) (*model.ProjectFile, error) {
	var f model.ProjectFile
	err := s.db.QueryRowContext(ctx,
		`SELECT id, project_id, filename, original_name, file_type, created_at
		FROM project_files WHERE project_id = ? AND filename = ?`, projectID, filename,
	).Scan(&f.ID, &f.ProjectID, &f.Filename, &f.OriginalName, &f.FileType, &f.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: project file %s", filename)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get project file")
	}
	return &f, nil
}

func (s *SQLiteStore) listProjectFiles(ctx context.Context, projectID string) ([]model.ProjectFile, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project_id, filename, original_name, file_type, created_at
		FROM project_files WHERE project_id = ? ORDER BY created_at`, projectID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list project files")
	}
	defer rows.Close()

	files := []model.ProjectFile{}
	for rows.Next() {
		var f model.ProjectFile
		if err := rows.Scan(&f.ID, &f.ProjectID, &f.Filename, &f.OriginalName, &f.FileType, &f.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan project file")
		}
		files = append(files, f)
	}
	return files, eris.Wrap(rows.Err(), "sqlite: list project files iterate")
}

// Commissionings

func (s *SQLiteStore) CreateCommissioning(ctx context.Context, projectID string) (*model.Commissioning, error) {
	var exists string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM commissionings WHERE project_id = ?`, projectID).Scan(&exists)
	if err != nil && err != sql.ErrNoRows {
		return nil, eris.Wrapf(err, "sqlite: lookup commissioning for project %s", projectID)
	}
	if exists != "" {
		return nil, eris.Wrapf(ErrConflict, "sqlite: project %s already has a commissioning", projectID)
	}

	_, commNumber, err := s.NextSequence(ctx, SequenceComm)
	if err != nil {
		return nil, err
	}

	c := model.Commissioning{
		ID:         uuid.New().String(),
		ProjectID:  projectID,
		CommNumber: commNumber,
		CreatedAt:  time.Now().UTC(),
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO commissionings (id, project_id, comm_number, created_at) VALUES (?, ?, ?, ?)`,
		c.ID, c.ProjectID, c.CommNumber, c.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert commissioning for project %s", projectID)
	}
	return &c, nil
}

func (s *SQLiteStore) ListCommissionings(ctx context.Context, facilityID string) ([]model.Commissioning, error) {
	query := `SELECT c.id, c.project_id, c.comm_number, p.pr_number, p.facility_id, p.status, f.name, c.created_at
		FROM commissionings c
		JOIN projects p ON c.project_id = p.id
		LEFT JOIN facilities f ON p.facility_id = f.id
		WHERE 1=1`
	var args []any
	if facilityID != "" {
		query += ` AND p.facility_id = ?`
		args = append(args, facilityID)
	}
	query += ` ORDER BY c.created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list commissionings")
	}
	defer rows.Close()

	var comms []model.Commissioning
	for rows.Next() {
		var c model.Commissioning
		var facilityName sql.NullString
		var status string
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.CommNumber, &c.PRNumber, &c.FacilityID, &status, &facilityName, &c.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan commissioning")
		}
		c.ProjectStatus = model.ProjectStatus(status)
		c.FacilityName = facilityName.String
		comms = append(comms, c)
	}
	return comms, eris.Wrap(rows.Err(), "sqlite: list commissionings iterate")
}

// NextSequence allocates the next value of a named sequence in a
// transaction, so concurrent allocations never collide.
func (s *SQLiteStore) NextSequence(ctx context.Context, name string) (int, string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, "", eris.Wrap(err, "sqlite: begin sequence tx")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO sequences (name, next_value) VALUES (?, 1)`, name); err != nil {
		return 0, "", eris.Wrapf(err, "sqlite: ensure sequence %s", name)
	}

	var value int
	if err := tx.QueryRowContext(ctx,
		`SELECT next_value FROM sequences WHERE name = ?`, name).Scan(&value); err != nil {
		return 0, "", eris.Wrapf(err, "sqlite: read sequence %s", name)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE sequences SET next_value = next_value + 1 WHERE name = ?`, name); err != nil {
		return 0, "", eris.Wrapf(err, "sqlite: advance sequence %s", name)
	}
	if err := tx.Commit(); err != nil {
		return 0, "", eris.Wrapf(err, "sqlite: commit sequence %s", name)
	}
	return value, FormatSequence(name, value), nil
}

// helpers

var errNoRow = errors.New("no row")

type scannable interface {
	Scan(dest ...any) error
}

func scanFacility(row scannable) (*model.Facility, error) {
	var f model.Facility
	var (
		name, formatted, short, phone, website, status, mapsURI   sql.NullString
		primaryType, primaryDisplay, typesJSON, plusCode          sql.NullString
		priceLevel, openingHours, photoName, editorial, genSum    sql.NullString
		city, state, postal, relevance, reason, dataSource, fuDt  sql.NullString
		notes                                                     sql.NullString
		lat, lng, rating                                          sql.NullFloat64
		ratingCount                                               sql.NullInt64
		contacted, currentCustomer                                int
	)

	err := row.Scan(&f.ID, &f.PlaceID, &name, &formatted, &short,
		&lat, &lng, &phone, &website, &status, &mapsURI,
		&primaryType, &primaryDisplay, &typesJSON, &rating, &ratingCount,
		&plusCode, &priceLevel, &openingHours, &photoName,
		&editorial, &genSum, &city, &state, &postal,
		&relevance, &reason, &dataSource,
		&contacted, &currentCustomer, &fuDt, &notes, &f.CreatedAt, &f.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, errNoRow
	}
	if err != nil {
		return nil, eris.Wrap(err, "scan facility")
	}

	f.Name = name.String
	f.FormattedAddress = formatted.String
	f.ShortFormattedAddress = short.String
	f.Phone = phone.String
	f.Website = website.String
	f.BusinessStatus = status.String
	f.GoogleMapsURI = mapsURI.String
	f.PrimaryType = primaryType.String
	f.PrimaryTypeDisplayName = primaryDisplay.String
	f.PlusCode = plusCode.String
	f.PriceLevel = priceLevel.String
	f.OpeningHours = openingHours.String
	f.PhotoName = photoName.String
	f.EditorialSummary = editorial.String
	f.GenerativeSummary = genSum.String
	f.City = city.String
	f.State = state.String
	f.PostalCode = postal.String
	f.Relevance = model.Relevance(relevance.String)
	f.RelevanceReason = reason.String
	f.DataSource = dataSource.String
	f.Contacted = contacted != 0
	f.CurrentCustomer = currentCustomer != 0

	if lat.Valid {
		f.Lat = &lat.Float64
	}
	if lng.Valid {
		f.Lng = &lng.Float64
	}
	if rating.Valid {
		f.Rating = &rating.Float64
	}
	if ratingCount.Valid {
		n := int(ratingCount.Int64)
		f.UserRatingCount = &n
	}
	if fuDt.Valid {
		f.FollowUpDate = &fuDt.String
	}
	if notes.Valid {
		f.Notes = &notes.String
	}
	if typesJSON.Valid && typesJSON.String != "" {
		if err := json.Unmarshal([]byte(typesJSON.String), &f.Types); err != nil {
			return nil, eris.Wrap(err, "unmarshal facility types")
		}
	}
	return &f, nil
}

func scanContact(row scannable) (*model.Contact, error) {
	var c model.Contact
	var sourceID, firstName, lastName, title, email, phone, linkedin sql.NullString

	err := row.Scan(&c.ID, &c.FacilityID, &sourceID, &firstName, &lastName, &title, &email,
		&phone, &linkedin, &c.Source, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, errNoRow
	}
	if err != nil {
		return nil, eris.Wrap(err, "scan contact")
	}

	c.SourceID = sourceID.String
	c.FirstName = firstName.String
	c.LastName = lastName.String
	c.Title = title.String
	c.Email = email.String
	c.Phone = phone.String
	c.LinkedInURL = linkedin.String
	return &c, nil
}

func scanProject(row scannable) (*model.Project, error) {
	var p model.Project
	var facilityName, notes, sourceVisit sql.NullString
	var status string

	err := row.Scan(&p.ID, &p.FacilityID, &facilityName, &p.PRNumber, &status, &sourceVisit,
		&notes, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, errNoRow
	}
	if err != nil {
		return nil, eris.Wrap(err, "scan project")
	}

	p.FacilityName = facilityName.String
	p.Status = model.ProjectStatus(status)
	p.Notes = notes.String
	if sourceVisit.Valid {
		p.SourceVisitID = &sourceVisit.String
	}
	return &p, nil
}

func marshalTypes(types []string) any {
	if len(types) == 0 {
		return nil
	}
	b, _ := json.Marshal(types)
	return string(b)
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func emptyToNull(s *string) any {
	if s == nil || *s == "" {
		return nil
	}
	return *s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
