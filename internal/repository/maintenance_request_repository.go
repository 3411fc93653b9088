package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-maintenance-api/internal/models"
)

const maintenanceRequestColumns = `id, status, rejection_reason, requester_name, role, section, student_id,
       description, issue_photo, building_id, floor_id, room_id, assigned_to, created_by,
       completion_notes, completion_photo, version, created_at, updated_at`

// MaintenanceRequestRepository persists maintenance requests in PostgreSQL.
type MaintenanceRequestRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewMaintenanceRequestRepository constructs the repository.
func NewMaintenanceRequestRepository(db *sqlx.DB) *MaintenanceRequestRepository {
	return &MaintenanceRequestRepository{db: db, now: time.Now}
}

// Create inserts a new pending request and fills in the generated id.
func (r *MaintenanceRequestRepository) Create(ctx context.Context, req *models.MaintenanceRequest) error {
	now := r.now().UTC().Truncate(timestampPrecision)
	req.Status = models.RequestStatusPending
	req.Version = 1
	req.CreatedAt = now
	req.UpdatedAt = now

	const query = `INSERT INTO maintenance_requests
	(status, rejection_reason, requester_name, role, section, student_id, description, issue_photo,
	 building_id, floor_id, room_id, assigned_to, created_by, completion_notes, completion_photo,
	 version, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	RETURNING id`
	row := r.db.QueryRowxContext(ctx, query,
		req.Status, req.RejectionReason, req.RequesterName, req.Role, req.Section, req.StudentID,
		req.Description, req.IssuePhoto, req.BuildingID, req.FloorID, req.RoomID, req.AssignedTo,
		req.CreatedBy, req.CompletionNotes, req.CompletionPhoto, req.Version, req.CreatedAt, req.UpdatedAt,
	)
	if err := row.Scan(&req.ID); err != nil {
		return fmt.Errorf("create maintenance request: %w", err)
	}
	return nil
}

// Get fetches a request by id. Missing rows return sql.ErrNoRows.
func (r *MaintenanceRequestRepository) Get(ctx context.Context, id int64) (*models.MaintenanceRequest, error) {
	query := `SELECT ` + maintenanceRequestColumns + ` FROM maintenance_requests WHERE id = $1`
	var req models.MaintenanceRequest
	if err := r.db.GetContext(ctx, &req, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get maintenance request: %w", err)
	}
	return &req, nil
}

// List returns requests matching the filter, newest first.
func (r *MaintenanceRequestRepository) List(ctx context.Context, filter models.MaintenanceRequestFilter) ([]models.MaintenanceRequest, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 8)
	builder.WriteString(`SELECT ` + maintenanceRequestColumns + ` FROM maintenance_requests`)

	conditions := make([]string, 0, 6)
	addEq := func(column string, value *int64) {
		if value == nil {
			return
		}
		args = append(args, *value)
		conditions = append(conditions, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	addEq("building_id", filter.BuildingID)
	addEq("floor_id", filter.FloorID)
	addEq("room_id", filter.RoomID)
	addEq("created_by", filter.CreatedBy)
	addEq("assigned_to", filter.AssignedTo)
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY created_at DESC, id DESC")

	limit, offset := normaliseLimit(filter.Limit, filter.Offset)
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var requests []models.MaintenanceRequest
	if err := r.db.SelectContext(ctx, &requests, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list maintenance requests: %w", err)
	}
	return requests, nil
}

// ConditionalUpdate locks the row, checks guard against the committed state, applies
// mutate and writes the result only if the version is unchanged. Both snapshots are
// returned from the same transaction.
func (r *MaintenanceRequestRepository) ConditionalUpdate(ctx context.Context, id int64, guard RequestGuard, mutate RequestMutator) (change *models.RequestChange, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin maintenance request update: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var current models.MaintenanceRequest
	query := `SELECT ` + maintenanceRequestColumns + ` FROM maintenance_requests WHERE id = $1 FOR UPDATE`
	if err = tx.GetContext(ctx, &current, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("lock maintenance request: %w", err)
	}
	if guard != nil {
		if err = guard(current.Clone()); err != nil {
			return nil, err
		}
	}
	next, err := applyMutation(current, mutate, r.now())
	if err != nil {
		return nil, err
	}

	const update = `UPDATE maintenance_requests SET
	status = $3, rejection_reason = $4, assigned_to = $5, completion_notes = $6,
	completion_photo = $7, version = $8, updated_at = $9
	WHERE id = $1 AND version = $2`
	result, err := tx.ExecContext(ctx, update,
		current.ID, current.Version,
		next.Status, next.RejectionReason, next.AssignedTo, next.CompletionNotes,
		next.CompletionPhoto, next.Version, next.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("update maintenance request: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("check maintenance request update rows: %w", err)
	}
	if rows == 0 {
		err = ErrVersionConflict
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit maintenance request update: %w", err)
	}
	return &models.RequestChange{Before: current, After: next}, nil
}
