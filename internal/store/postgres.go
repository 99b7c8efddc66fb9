package store

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/integratec/plant-crm/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock satisfies it
// for unit tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS facilities (
	id                        TEXT PRIMARY KEY,
	place_id                  TEXT UNIQUE NOT NULL,
	name                      TEXT,
	formatted_address         TEXT,
	short_formatted_address   TEXT,
	lat                       DOUBLE PRECISION,
	lng                       DOUBLE PRECISION,
	phone                     TEXT,
	website                   TEXT,
	business_status           TEXT,
	google_maps_uri           TEXT,
	primary_type              TEXT,
	primary_type_display_name TEXT,
	types                     TEXT,
	rating                    DOUBLE PRECISION,
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
	contacted                 BOOLEAN NOT NULL DEFAULT FALSE,
	current_customer          BOOLEAN NOT NULL DEFAULT FALSE,
	follow_up_date            TEXT,
	notes                     TEXT,
	created_at                TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at                TIMESTAMPTZ NOT NULL DEFAULT now()
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
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_contacts_facility_id ON contacts(facility_id);
CREATE INDEX IF NOT EXISTS idx_contacts_source_id ON contacts(source_id);

CREATE TABLE IF NOT EXISTS sequences (
	name       TEXT PRIMARY KEY,
	next_value INTEGER NOT NULL DEFAULT 1
);
INSERT INTO sequences (name, next_value) VALUES ('pr', 1), ('comm', 1) ON CONFLICT (name) DO NOTHING;

CREATE TABLE IF NOT EXISTS visits (
	id          TEXT PRIMARY KEY,
	facility_id TEXT NOT NULL REFERENCES facilities(id) ON DELETE CASCADE,
	visit_date  TEXT NOT NULL,
	notes       TEXT,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_visits_facility_id ON visits(facility_id);
CREATE INDEX IF NOT EXISTS idx_visits_visit_date ON visits(visit_date);

CREATE TABLE IF NOT EXISTS visit_files (
	id            TEXT PRIMARY KEY,
	visit_id      TEXT NOT NULL REFERENCES visits(id) ON DELETE CASCADE,
	filename      TEXT NOT NULL,
	original_name TEXT NOT NULL,
	content_type  TEXT,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_visit_files_visit_id ON visit_files(visit_id);

CREATE TABLE IF NOT EXISTS projects (
	id              TEXT PRIMARY KEY,
	facility_id     TEXT NOT NULL REFERENCES facilities(id) ON DELETE CASCADE,
	pr_number       TEXT UNIQUE NOT NULL,
	status          TEXT DEFAULT 'draft',
	source_visit_id TEXT REFERENCES visits(id) ON DELETE SET NULL,
	notes           TEXT,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_projects_facility_id ON projects(facility_id);
CREATE INDEX IF NOT EXISTS idx_projects_status ON projects(status);

CREATE TABLE IF NOT EXISTS project_files (
	id            TEXT PRIMARY KEY,
	project_id    TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	filename      TEXT NOT NULL,
	original_name TEXT NOT NULL,
	file_type     TEXT DEFAULT 'other',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_project_files_project_id ON project_files(project_id);

CREATE TABLE IF NOT EXISTS commissionings (
	id          TEXT PRIMARY KEY,
	project_id  TEXT UNIQUE NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	comm_number TEXT UNIQUE NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_commissionings_project_id ON commissionings(project_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) UpsertFacility(ctx context.Context, f model.Facility) (bool, error) {
	var existingID string
	err := s.pool.QueryRow(ctx,
		`SELECT id FROM facilities WHERE place_id = $1`, f.PlaceID).Scan(&existingID)
	if err != nil && err != pgx.ErrNoRows {
		return false, eris.Wrapf(err, "postgres: lookup facility %s", f.PlaceID)
	}

	typesJSON := marshalTypes(f.Types)
	now := time.Now().UTC()

	if existingID == "" {
		_, err := s.pool.Exec(ctx,
			`INSERT INTO facilities (id, place_id, name, formatted_address, short_formatted_address,
				lat, lng, phone, website, business_status, google_maps_uri,
				primary_type, primary_type_display_name, types, rating, user_rating_count,
				plus_code, price_level, regular_opening_hours, photo_name,
				editorial_summary, generative_summary, city, state, postal_code,
				manufacturing_relevance, manufacturing_reason, data_source, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
				$17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30)`,
			uuid.New().String(), f.PlaceID, f.Name, f.FormattedAddress, f.ShortFormattedAddress,
			f.Lat, f.Lng, f.Phone, f.Website, f.BusinessStatus, f.GoogleMapsURI,
			f.PrimaryType, f.PrimaryTypeDisplayName, typesJSON, f.Rating, f.UserRatingCount,
			f.PlusCode, f.PriceLevel, f.OpeningHours, f.PhotoName,
			f.EditorialSummary, f.GenerativeSummary, f.City, f.State, f.PostalCode,
			nullIfEmpty(string(f.Relevance)), nullIfEmpty(f.RelevanceReason), f.DataSource,
			now, now,
		)
		if err != nil {
			return false, eris.Wrapf(err, "postgres: insert facility %s", f.PlaceID)
		}
		return true, nil
	}

	_, err = s.pool.Exec(ctx,
		`UPDATE facilities SET name = $1, formatted_address = $2, short_formatted_address = $3,
			lat = $4, lng = $5, phone = $6, website = $7, business_status = $8, google_maps_uri = $9,
			primary_type = $10, primary_type_display_name = $11, types = $12, rating = $13,
			user_rating_count = $14, plus_code = $15, price_level = $16, regular_opening_hours = $17,
			photo_name = $18, editorial_summary = $19, generative_summary = $20, city = $21,
			state = $22, postal_code = $23, manufacturing_relevance = $24, manufacturing_reason = $25,
			updated_at = $26
		WHERE id = $27`,
		f.Name, f.FormattedAddress, f.ShortFormattedAddress,
		f.Lat, f.Lng, f.Phone, f.Website, f.BusinessStatus, f.GoogleMapsURI,
		f.PrimaryType, f.PrimaryTypeDisplayName, typesJSON, f.Rating,
		f.UserRatingCount, f.PlusCode, f.PriceLevel, f.OpeningHours,
		f.PhotoName, f.EditorialSummary, f.GenerativeSummary, f.City,
		f.State, f.PostalCode, nullIfEmpty(string(f.Relevance)), nullIfEmpty(f.RelevanceReason),
		now,
		existingID,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: update facility %s", f.PlaceID)
	}
	return false, nil
}

func (s *PostgresStore) ListFacilities(ctx context.Context, filter FacilityFilter) ([]model.Facility, error) {
	query := `SELECT ` + facilityColumns + ` FROM facilities WHERE 1=1`
	var args []any

	if filter.Contacted != nil {
		args = append(args, *filter.Contacted)
		query += ` AND contacted = $` + itoa(len(args))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 500
	}
	if limit > 1000 {
		limit = 1000
	}
	args = append(args, limit)
	query += ` LIMIT $` + itoa(len(args))

	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += ` OFFSET $` + itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list facilities")
	}
	defer rows.Close()

	var facilities []model.Facility
	for rows.Next() {
		f, err := scanPgFacility(rows)
		if err != nil {
			return nil, err
		}
		facilities = append(facilities, *f)
	}
	return facilities, eris.Wrap(rows.Err(), "postgres: list facilities iterate")
}

func (s *PostgresStore) GetFacility(ctx context.Context, id string) (*model.Facility, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+facilityColumns+` FROM facilities WHERE id = $1`, id)
	f, err := scanPgFacility(row)
	if err == errNoRow {
		return nil, eris.Wrapf(ErrNotFound, "postgres: facility %s", id)
	}
	return f, err
}

func (s *PostgresStore) UpdateFacilityCRM(ctx context.Context, id string, update CRMUpdate) (*model.Facility, error) {
	if update.Empty() {
		return nil, eris.New("postgres: no fields to update")
	}

	sets := []string{"updated_at = $1"}
	args := []any{time.Now().UTC()}

	if update.Contacted != nil {
		args = append(args, *update.Contacted)
		sets = append(sets, "contacted = $"+itoa(len(args)))
	}
	if update.CurrentCustomer != nil {
		args = append(args, *update.CurrentCustomer)
		sets = append(sets, "current_customer = $"+itoa(len(args)))
	}
	if update.FollowUpDateSet {
		args = append(args, emptyToNull(update.FollowUpDate))
		sets = append(sets, "follow_up_date = $"+itoa(len(args)))
	}
	if update.NotesSet {
		args = append(args, update.Notes)
		sets = append(sets, "notes = $"+itoa(len(args)))
	}
	args = append(args, id)

	tag, err := s.pool.Exec(ctx,
		`UPDATE facilities SET `+strings.Join(sets, ", ")+` WHERE id = $`+itoa(len(args)), args...)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: update facility crm %s", id)
	}
	if tag.RowsAffected() == 0 {
		return nil, eris.Wrapf(ErrNotFound, "postgres: facility %s", id)
	}
	return s.GetFacility(ctx, id)
}

func (s *PostgresStore) DeleteFacility(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM facilities WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete facility %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: facility %s", id)
	}
	return nil
}

func (s *PostgresStore) DeleteFacilities(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM facilities WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete facilities")
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) CountFacilities(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM facilities`).Scan(&n)
	return n, eris.Wrap(err, "postgres: count facilities")
}

func (s *PostgresStore) FacilityMetrics(ctx context.Context) (*model.Metrics, error) {
	var m model.Metrics
	err := s.pool.QueryRow(ctx, `SELECT
		COUNT(*),
		COUNT(*) FILTER (WHERE contacted),
		COUNT(*) FILTER (WHERE current_customer),
		COUNT(*) FILTER (WHERE follow_up_date IS NOT NULL AND follow_up_date >= to_char(now(), 'YYYY-MM-DD')),
		COUNT(*) FILTER (WHERE created_at >= now() - interval '7 days')
	FROM facilities`).Scan(&m.Total, &m.Contacted, &m.CurrentCustomers, &m.PendingFollowUps, &m.NewThisWeek)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: facility metrics")
	}
	return &m, nil
}

// Contacts

func (s *PostgresStore) ListContacts(ctx context.Context, facilityID string) ([]model.Contact, error) {
	query := `SELECT id, facility_id, source_id, first_name, last_name, title, email, phone,
		linkedin_url, source, created_at, updated_at FROM contacts`
	var args []any
	if facilityID != "" {
		query += ` WHERE facility_id = $1`
		args = append(args, facilityID)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list contacts")
	}
	defer rows.Close()

	var contacts []model.Contact
	for rows.Next() {
		c, err := scanPgContact(rows)
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, *c)
	}
	return contacts, eris.Wrap(rows.Err(), "postgres: list contacts iterate")
}

func (s *PostgresStore) GetContact(ctx context.Context, id string) (*model.Contact, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, facility_id, source_id, first_name, last_name, title, email, phone,
			linkedin_url, source, created_at, updated_at FROM contacts WHERE id = $1`, id)
	c, err := scanPgContact(row)
	if err == errNoRow {
		return nil, eris.Wrapf(ErrNotFound, "postgres: contact %s", id)
	}
	return c, err
}

func (s *PostgresStore) CreateContact(ctx context.Context, c model.Contact) (*model.Contact, error) {
	c.ID = uuid.New().String()
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	if c.Source == "" {
		c.Source = "hunter"
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO contacts (id, facility_id, source_id, first_name, last_name, title, email,
			phone, linkedin_url, source, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		c.ID, c.FacilityID, nullIfEmpty(c.SourceID), c.FirstName, c.LastName, c.Title, c.Email,
		c.Phone, c.LinkedInURL, c.Source, now, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert contact for facility %s", c.FacilityID)
	}
	return &c, nil
}

func (s *PostgresStore) ContactSourceIDs(ctx context.Context, facilityID string) (map[string]struct{}, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT source_id FROM contacts WHERE facility_id = $1 AND source_id IS NOT NULL`, facilityID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: contact source ids")
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "postgres: scan source id")
		}
		ids[id] = struct{}{}
	}
	return ids, eris.Wrap(rows.Err(), "postgres: contact source ids iterate")
}

func (s *PostgresStore) DeleteContact(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM contacts WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete contact %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: contact %s", id)
	}
	return nil
}

// Visits

func (s *PostgresStore) CreateVisit(ctx context.Context, v model.Visit) (*model.Visit, error) {
	v.ID = uuid.New().String()
	now := time.Now().UTC()
	v.CreatedAt, v.UpdatedAt = now, now
	v.Files = []model.VisitFile{}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO visits (id, facility_id, visit_date, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		v.ID, v.FacilityID, v.VisitDate, v.Notes, now, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert visit for facility %s", v.FacilityID)
	}
	return &v, nil
}

func (s *PostgresStore) ListVisits(ctx context.Context, facilityID string) ([]model.Visit, error) {
	query := `SELECT v.id, v.facility_id, f.name, v.visit_date, v.notes, v.created_at, v.updated_at
		FROM visits v LEFT JOIN facilities f ON v.facility_id = f.id WHERE 1=1`
	var args []any
	if facilityID != "" {
		query += ` AND v.facility_id = $1`
		args = append(args, facilityID)
	}
	query += ` ORDER BY v.visit_date DESC, v.created_at DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list visits")
	}
	defer rows.Close()

	var visits []model.Visit
	for rows.Next() {
		var v model.Visit
		var facilityName, notes *string
		if err := rows.Scan(&v.ID, &v.FacilityID, &facilityName, &v.VisitDate, &notes, &v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan visit")
		}
		v.FacilityName = deref(facilityName)
		v.Notes = deref(notes)
		visits = append(visits, v)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: list visits iterate")
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

func (s *PostgresStore) GetVisit(ctx context.Context, id string) (*model.Visit, error) {
	var v model.Visit
	var notes *string
	err := s.pool.QueryRow(ctx,
		`SELECT id, facility_id, visit_date, notes, created_at, updated_at FROM visits WHERE id = $1`, id,
	).Scan(&v.ID, &v.FacilityID, &v.VisitDate, &notes, &v.CreatedAt, &v.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "postgres: visit %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get visit %s", id)
	}
	v.Notes = deref(notes)

	files, err := s.listVisitFiles(ctx, id)
	if err != nil {
		return nil, err
	}
	v.Files = files
	return &v, nil
}

func (s *PostgresStore) DeleteVisit(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM visits WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete visit %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: visit %s", id)
	}
	return nil
}

func (s *PostgresStore) AddVisitFile(ctx context.Context, f model.VisitFile) (*model.VisitFile, error) {
	f.ID = uuid.New().String()
	f.CreatedAt = time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO visit_files (id, visit_id, filename, original_name, content_type, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		f.ID, f.VisitID, f.Filename, f.OriginalName, f.ContentType, f.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert visit file for %s", f.VisitID)
	}
	return &f, nil
}

func (s *PostgresStore) GetVisitFile(ctx context.Context, visitID, filename string) (*model.VisitFile, error) {
	var f model.VisitFile
	var contentType *string
	err := s.pool.QueryRow(ctx,
		`SELECT id, visit_id, filename, original_name, content_type, created_at
		FROM visit_files WHERE visit_id = $1 AND filename = $2`, visitID, filename,
	).Scan(&f.ID, &f.VisitID, &f.Filename, &f.OriginalName, &contentType, &f.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "postgres: visit file %s", filename)
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get visit file")
	}
	if contentType != nil {
		f.ContentType = *contentType
	}
	return &f, nil
}

func (s *PostgresStore) listVisitFiles(ctx context.Context, visitID string) ([]model.VisitFile, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, visit_id, filename, original_name, content_type, created_at
		FROM visit_files WHERE visit_id = $1 ORDER BY created_at`, visitID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list visit files")
	}
	defer rows.Close()

	files := []model.VisitFile{}
	for rows.Next() {
		var f model.VisitFile
		var contentType *string
		if err := rows.Scan(&f.ID, &f.VisitID, &f.Filename, &f.OriginalName, &contentType, &f.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan visit file")
		}
		if contentType != nil {
			f.ContentType = *contentType
		}
		files = append(files, f)
	}
	return files, eris.Wrap(rows.Err(), "postgres: list visit files iterate")
}

// Projects

func (s *PostgresStore) CreateProject(ctx context.Context, p model.Project) (*model.Project, error) {
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

	_, err = s.pool.Exec(ctx,
		`INSERT INTO projects (id, facility_id, pr_number, status, source_visit_id, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		p.ID, p.FacilityID, p.PRNumber, string(p.Status), p.SourceVisitID, p.Notes, now, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert project for facility %s", p.FacilityID)
	}
	return &p, nil
}

func (s *PostgresStore) ListProjects(ctx context.Context, facilityID string) ([]model.Project, error) {
	query := `SELECT p.id, p.facility_id, f.name, p.pr_number, p.status, p.source_visit_id,
		p.notes, p.created_at, p.updated_at
		FROM projects p LEFT JOIN facilities f ON p.facility_id = f.id WHERE 1=1`
	var args []any
	if facilityID != "" {
		query += ` AND p.facility_id = $1`
		args = append(args, facilityID)
	}
	query += ` ORDER BY p.created_at DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list projects")
	}
	defer rows.Close()

	var projects []model.Project
	for rows.Next() {
		p, err := scanPgProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, *p)
	}
	return projects, eris.Wrap(rows.Err(), "postgres: list projects iterate")
}

func (s *PostgresStore) GetProject(ctx context.Context, id string) (*model.Project, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT p.id, p.facility_id, f.name, p.pr_number, p.status, p.source_visit_id,
			p.notes, p.created_at, p.updated_at
		FROM projects p LEFT JOIN facilities f ON p.facility_id = f.id WHERE p.id = $1`, id)
	p, err := scanPgProject(row)
	if err == errNoRow {
		return nil, eris.Wrapf(ErrNotFound, "postgres: project %s", id)
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

func (s *PostgresStore) UpdateProject(ctx context.Context, id string, update ProjectUpdate) (*model.Project, error) {
	sets := []string{"updated_at = $1"}
	args := []any{time.Now().UTC()}

	if update.Status != nil {
		args = append(args, string(*update.Status))
		sets = append(sets, "status = $"+itoa(len(args)))
	}
	if update.Notes != nil {
		args = append(args, *update.Notes)
		sets = append(sets, "notes = $"+itoa(len(args)))
	}
	args = append(args, id)

	tag, err := s.pool.Exec(ctx,
		`UPDATE projects SET `+strings.Join(sets, ", ")+` WHERE id = $`+itoa(len(args)), args...)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: update project %s", id)
	}
	if tag.RowsAffected() == 0 {
		return nil, eris.Wrapf(ErrNotFound, "postgres: project %s", id)
	}
	return s.GetProject(ctx, id)
}

func (s *PostgresStore) DeleteProject(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete project %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: project %s", id)
	}
	return nil
}

func (s *PostgresStore) AddProjectFile(ctx context.Context, f model.ProjectFile) (*model.ProjectFile, error) {
	f.ID = uuid.New().String()
	f.CreatedAt = time.Now().UTC()
	if f.FileType == "" {
		f.FileType = "other"
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO project_files (id, project_id, filename, original_name, file_type, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		f.ID, f.ProjectID, f.Filename, f.OriginalName, f.FileType, f.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert project file for %s", f.ProjectID)
	}
	return &f, nil
}

func (s *PostgresStore) GetProjectFile(ctx context.Context, projectID, filename string) (*model.ProjectFile, error) {
	var f model.ProjectFile
	err := s.pool.QueryRow(ctx,
		`SELECT id, project_id, filename, original_name, file_type, created_at
		FROM project_files WHERE project_id = $1 AND filename = $2`, projectID, filename,
	).Scan(&f.ID, &f.ProjectID, &f.Filename, &f.OriginalName, &f.FileType, &f.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "postgres: project file %s", filename)
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get project file")
	}
	return &f, nil
}

func (s *PostgresStore) listProjectFiles(ctx context.Context, projectID string) ([]model.ProjectFile, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, project_id, filename, original_name, file_type, created_at
		FROM project_files WHERE project_id = $1 ORDER BY created_at`, projectID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list project files")
	}
	defer rows.Close()

	files := []model.ProjectFile{}
	for rows.Next() {
		var f model.ProjectFile
		if err := rows.Scan(&f.ID, &f.ProjectID, &f.Filename, &f.OriginalName, &f.FileType, &f.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan project file")
		}
		files = append(files, f)
	}
	return files, eris.Wrap(rows.Err(), "postgres: list project files iterate")
}

// Commissionings

func (s *PostgresStore) CreateCommissioning(ctx context.Context, projectID string) (*model.Commissioning, error) {
	var exists string
	err := s.pool.QueryRow(ctx,
		`SELECT id FROM commissionings WHERE project_id = $1`, projectID).Scan(&exists)
	if err != nil && err != pgx.ErrNoRows {
		return nil, eris.Wrapf(err, "postgres: lookup commissioning for project %s", projectID)
	}
	if exists != "" {
		return nil, eris.Wrapf(ErrConflict, "postgres: project %s already has a commissioning", projectID)
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
	_, err = s.pool.Exec(ctx,
		`INSERT INTO commissionings (id, project_id, comm_number, created_at) VALUES ($1, $2, $3, $4)`,
		c.ID, c.ProjectID, c.CommNumber, c.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert commissioning for project %s", projectID)
	}
	return &c, nil
}

func (s *PostgresStore) ListCommissionings(ctx context.Context, facilityID string) ([]model.Commissioning, error) {
	query := `SELECT c.id, c.project_id, c.comm_number, p.pr_number, p.facility_id, p.status, f.name, c.created_at
		FROM commissionings c
		JOIN projects p ON c.project_id = p.id
		LEFT JOIN facilities f ON p.facility_id = f.id
		WHERE 1=1`
	var args []any
	if facilityID != "" {
		query += ` AND p.facility_id = $1`
		args = append(args, facilityID)
	}
	query += ` ORDER BY c.created_at DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list commissionings")
	}
	defer rows.Close()

	var comms []model.Commissioning
	for rows.Next() {
		var c model.Commissioning
		var facilityName *string
		var status string
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.CommNumber, &c.PRNumber, &c.FacilityID, &status, &facilityName, &c.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan commissioning")
		}
		c.ProjectStatus = model.ProjectStatus(status)
		if facilityName != nil {
			c.FacilityName = *facilityName
		}
		comms = append(comms, c)
	}
	return comms, eris.Wrap(rows.Err(), "postgres: list commissionings iterate")
}

func (s *PostgresStore) NextSequence(ctx context.Context, name string) (int, string, error) {
	var value int
	err := s.pool.QueryRow(ctx,
		`INSERT INTO sequences (name, next_value) VALUES ($1, 2)
		ON CONFLICT (name) DO UPDATE SET next_value = sequences.next_value + 1
		RETURNING next_value - 1`, name).Scan(&value)
	if err != nil {
		return 0, "", eris.Wrapf(err, "postgres: next sequence %s", name)
	}
	return value, FormatSequence(name, value), nil
}

// pg scan helpers: pgx scans SQL NULL into nil pointers, so these differ
// from the database/sql versions only in null handling.

func scanPgFacility(row pgx.Row) (*model.Facility, error) {
	var f model.Facility
	var (
		name, formatted, short, phone, website, status, mapsURI  *string
		primaryType, primaryDisplay, typesJSON, plusCode         *string
		priceLevel, openingHours, photoName, editorial, genSum   *string
		city, state, postal, relevance, reason, dataSource       *string
	)

	err := row.Scan(&f.ID, &f.PlaceID, &name, &formatted, &short,
		&f.Lat, &f.Lng, &phone, &website, &status, &mapsURI,
		&primaryType, &primaryDisplay, &typesJSON, &f.Rating, &f.UserRatingCount,
		&plusCode, &priceLevel, &openingHours, &photoName,
		&editorial, &genSum, &city, &state, &postal,
		&relevance, &reason, &dataSource,
		&f.Contacted, &f.CurrentCustomer, &f.FollowUpDate, &f.Notes, &f.CreatedAt, &f.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, errNoRow
	}
	if err != nil {
		return nil, eris.Wrap(err, "scan facility")
	}

	f.Name = deref(name)
	f.FormattedAddress = deref(formatted)
	f.ShortFormattedAddress = deref(short)
	f.Phone = deref(phone)
	f.Website = deref(website)
	f.BusinessStatus = deref(status)
	f.GoogleMapsURI = deref(mapsURI)
	f.PrimaryType = deref(primaryType)
	f.PrimaryTypeDisplayName = deref(primaryDisplay)
	f.PlusCode = deref(plusCode)
	f.PriceLevel = deref(priceLevel)
	f.OpeningHours = deref(openingHours)
	f.PhotoName = deref(photoName)
	f.EditorialSummary = deref(editorial)
	f.GenerativeSummary = deref(genSum)
	f.City = deref(city)
	f.State = deref(state)
	f.PostalCode = deref(postal)
	f.Relevance = model.Relevance(deref(relevance))
	f.RelevanceReason = deref(reason)
	f.DataSource = deref(dataSource)

	if typesJSON != nil && *typesJSON != "" {
		if err := json.Unmarshal([]byte(*typesJSON), &f.Types); err != nil {
			return nil, eris.Wrap(err, "unmarshal facility types")
		}
	}
	return &f, nil
}

func scanPgContact(row pgx.Row) (*model.Contact, error) {
	var c model.Contact
	var sourceID, firstName, lastName, title, email, phone, linkedin *string

	err := row.Scan(&c.ID, &c.FacilityID, &sourceID, &firstName, &lastName, &title, &email,
		&phone, &linkedin, &c.Source, &c.CreatedAt, &c.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, errNoRow
	}
	if err != nil {
		return nil, eris.Wrap(err, "scan contact")
	}

	c.SourceID = deref(sourceID)
	c.FirstName = deref(firstName)
	c.LastName = deref(lastName)
	c.Title = deref(title)
	c.Email = deref(email)
	c.Phone = deref(phone)
	c.LinkedInURL = deref(linkedin)
	return &c, nil
}

func scanPgProject(row pgx.Row) (*model.Project, error) {
	var p model.Project
	var facilityName, notes *string
	var status string

	err := row.Scan(&p.ID, &p.FacilityID, &facilityName, &p.PRNumber, &status, &p.SourceVisitID,
		&notes, &p.CreatedAt, &p.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, errNoRow
	}
	if err != nil {
		return nil, eris.Wrap(err, "scan project")
	}

	p.FacilityName = deref(facilityName)
	p.Status = model.ProjectStatus(status)
	p.Notes = deref(notes)
	return &p, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
