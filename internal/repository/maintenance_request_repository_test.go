package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-maintenance-api/internal/models"
)

var requestColumnNames = []string{"id", "status", "rejection_reason", "requester_name", "role", "section", "student_id",
	"description", "issue_photo", "building_id", "floor_id", "room_id", "assigned_to", "created_by",
	"completion_notes", "completion_photo", "version", "created_at", "updated_at"}

func newRequestRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func pendingRow(id int64, assignedTo interface{}, updatedAt time.Time) *sqlmock.Rows {
	return sqlmock.NewRows(requestColumnNames).
		AddRow(id, "pending", nil, "Maria", "instructor", nil, nil,
			"Broken projector", nil, 1, 2, 3, assignedTo, 10,
			nil, nil, 1, updatedAt, updatedAt)
}

func TestMaintenanceRequestRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()

	repo := NewMaintenanceRequestRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO maintenance_requests")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(12))

	req := &models.MaintenanceRequest{Role: models.RequesterRoleInstructor, Description: "Leaking faucet"}
	require.NoError(t, repo.Create(context.Background(), req))
	assert.Equal(t, int64(12), req.ID)
	assert.Equal(t, models.RequestStatusPending, req.Status)
	assert.Equal(t, int64(1), req.Version)
	assert.Equal(t, req.CreatedAt, req.UpdatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMaintenanceRequestRepositoryGetNotFound(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()

	repo := NewMaintenanceRequestRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, status")).
		WithArgs(int64(99)).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), 99)
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMaintenanceRequestRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()

	repo := NewMaintenanceRequestRepository(db)
	building := int64(1)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, status")).
		WithArgs(building, "pending").
		WillReturnRows(pendingRow(5, nil, time.Now()))

	list, err := repo.List(context.Background(), models.MaintenanceRequestFilter{
		BuildingID: &building,
		Status:     []models.RequestStatus{models.RequestStatusPending},
	})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, int64(5), list[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMaintenanceRequestRepositoryConditionalUpdateCommits(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()

	repo := NewMaintenanceRequestRepository(db)
	created := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return created }

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM maintenance_requests WHERE id = $1 FOR UPDATE")).
		WithArgs(int64(5)).
		WillReturnRows(pendingRow(5, nil, created))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE maintenance_requests SET")).
		WithArgs(int64(5), int64(1), "in_progress", nil, int64(7), nil, nil, int64(2), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	staff := int64(7)
	change, err := repo.ConditionalUpdate(context.Background(), 5,
		func(current models.MaintenanceRequest) error { return nil },
		func(req *models.MaintenanceRequest) error {
			req.AssignedTo = &staff
			req.Status = models.RequestStatusInProgress
			return nil
		})
	require.NoError(t, err)
	assert.Nil(t, change.Before.AssignedTo)
	assert.Equal(t, int64(7), *change.After.AssignedTo)
	assert.Equal(t, int64(2), change.After.Version)
	assert.True(t, change.After.UpdatedAt.After(change.Before.UpdatedAt))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMaintenanceRequestRepositoryConditionalUpdateGuardRollsBack(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()

	repo := NewMaintenanceRequestRepository(db)
	errTaken := errors.New("taken")

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs(int64(5)).
		WillReturnRows(pendingRow(5, int64(3), time.Now()))
	mock.ExpectRollback()

	_, err := repo.ConditionalUpdate(context.Background(), 5,
		func(current models.MaintenanceRequest) error {
			if current.AssignedTo != nil {
				return errTaken
			}
			return nil
		},
		func(req *models.MaintenanceRequest) error {
			t.Fatal("mutator must not run when the guard rejects")
			return nil
		})
	require.ErrorIs(t, err, errTaken)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMaintenanceRequestRepositoryConditionalUpdateVersionConflict(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()

	repo := NewMaintenanceRequestRepository(db)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs(int64(5)).
		WillReturnRows(pendingRow(5, nil, time.Now()))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE maintenance_requests SET")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := repo.ConditionalUpdate(context.Background(), 5, nil, func(req *models.MaintenanceRequest) error {
		req.Status = models.RequestStatusApproved
		return nil
	})
	require.ErrorIs(t, err, ErrVersionConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMaintenanceRequestRepositoryConditionalUpdateMissing(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()

	repo := NewMaintenanceRequestRepository(db)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs(int64(404)).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := repo.ConditionalUpdate(context.Background(), 404, nil, nil)
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNextUpdatedAtIsStrictlyIncreasing(t *testing.T) {
	prev := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	assert.Equal(t, prev.Add(time.Microsecond), nextUpdatedAt(prev, prev))
	assert.Equal(t, prev.Add(time.Microsecond), nextUpdatedAt(prev, prev.Add(-time.Hour)))
	assert.Equal(t, prev.Add(time.Second), nextUpdatedAt(prev, prev.Add(time.Second+300*time.Nanosecond)))
}
