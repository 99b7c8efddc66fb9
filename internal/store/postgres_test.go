package store

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/integratec/plant-crm/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

// anyArgs returns n pgxmock.AnyArg matchers; pgxmock v4 requires the expected
// argument count to match the actual call even when values are irrelevant.
func anyArgs(n int) []interface{} {
	args := make([]interface{}, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func TestPostgresStore_UpsertFacility_Insert(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id FROM facilities WHERE place_id = \$1`).
		WithArgs("p1").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec(`INSERT INTO facilities`).
		WithArgs(anyArgs(30)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	created, err := s.UpsertFacility(context.Background(), testFacility("p1", "Acme Foundry"))
	require.NoError(t, err)
	assert.True(t, created)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertFacility_Update(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id FROM facilities WHERE place_id = \$1`).
		WithArgs("p1").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("fac-1"))
	mock.ExpectExec(`UPDATE facilities SET name = \$1`).
		WithArgs(anyArgs(27)...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	created, err := s.UpsertFacility(context.Background(), testFacility("p1", "Acme Foundry"))
	require.NoError(t, err)
	assert.False(t, created)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetFacility_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT .+ FROM facilities WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetFacility(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteFacility_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM facilities WHERE id = \$1`).
		WithArgs("missing").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	err := s.DeleteFacility(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteFacilities_Bulk(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM facilities WHERE id = ANY\(\$1\)`).
		WithArgs([]string{"a", "b"}).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))

	n, err := s.DeleteFacilities(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FacilityMetrics(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT\s+COUNT\(\*\),`).
		WillReturnRows(pgxmock.NewRows([]string{"total", "contacted", "customers", "followups", "new"}).
			AddRow(10, 4, 2, 1, 3))

	m, err := s.FacilityMetrics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, m.Total)
	assert.Equal(t, 4, m.Contacted)
	assert.Equal(t, 2, m.CurrentCustomers)
	assert.Equal(t, 1, m.PendingFollowUps)
	assert.Equal(t, 3, m.NewThisWeek)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateFacilityCRM_Empty(t *testing.T) {
	s, _ := newMockPostgresStore(t)

	_, err := s.UpdateFacilityCRM(context.Background(), "fac-1", CRMUpdate{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no fields to update")
}

func TestPostgresStore_ContactSourceIDs(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT source_id FROM contacts WHERE facility_id = \$1 AND source_id IS NOT NULL`).
		WithArgs("fac-1").
		WillReturnRows(pgxmock.NewRows([]string{"source_id"}).AddRow("h1").AddRow("h2"))

	ids, err := s.ContactSourceIDs(context.Background(), "fac-1")
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"h1": {}, "h2": {}}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateCommissioning_Conflict(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id FROM commissionings WHERE project_id = \$1`).
		WithArgs("proj-1").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("comm-1"))

	_, err := s.CreateCommissioning(context.Background(), "proj-1")
	assert.ErrorIs(t, err, ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_NextSequence(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`INSERT INTO sequences`).
		WithArgs("pr").
		WillReturnRows(pgxmock.NewRows([]string{"next_value"}).AddRow(7))

	value, ref, err := s.NextSequence(context.Background(), SequencePR)
	require.NoError(t, err)
	assert.Equal(t, 7, value)
	assert.Equal(t, "PR-007", ref)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateProject_AllocatesPRNumber(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`INSERT INTO sequences`).
		WithArgs("pr").
		WillReturnRows(pgxmock.NewRows([]string{"next_value"}).AddRow(1))
	mock.ExpectExec(`INSERT INTO projects`).
		WithArgs(anyArgs(8)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	p, err := s.CreateProject(context.Background(), model.Project{FacilityID: "fac-1"})
	require.NoError(t, err)
	assert.Equal(t, "PR-001", p.PRNumber)
	assert.Equal(t, model.ProjectStatusDraft, p.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}
