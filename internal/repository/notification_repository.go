package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-maintenance-api/internal/models"
)

// NotificationRepository appends notifications to the notifications table.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository constructs the repository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// CreateBatch inserts all notifications in one statement so a batch lands or fails whole.
// Existing ids are kept, so a retried batch does not duplicate rows.
func (r *NotificationRepository) CreateBatch(ctx context.Context, notifications []models.Notification) error {
	if len(notifications) == 0 {
		return nil
	}
	now := time.Now().UTC()
	rows := make([]models.Notification, len(notifications))
	copy(rows, notifications)
	for i := range rows {
		if rows[i].ID == "" {
			rows[i].ID = uuid.NewString()
		}
		if rows[i].CreatedAt.IsZero() {
			rows[i].CreatedAt = now
		}
	}
	const query = `INSERT INTO notifications (id, user_id, message, maintenance_request_id, event, created_at)
	VALUES (:id, :user_id, :message, :maintenance_request_id, :event, :created_at)
	ON CONFLICT (id) DO NOTHING`
	if _, err := r.db.NamedExecContext(ctx, query, rows); err != nil {
		return fmt.Errorf("create notifications: %w", err)
	}
	return nil
}

// ListForRecipient returns the latest notifications addressed to a user.
func (r *NotificationRepository) ListForRecipient(ctx context.Context, userID int64, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 25
	}
	const query = `SELECT id, user_id, message, maintenance_request_id, event, created_at
	FROM notifications WHERE user_id = $1
	ORDER BY created_at DESC LIMIT $2`
	var notifications []models.Notification
	if err := r.db.SelectContext(ctx, &notifications, query, userID, limit); err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return notifications, nil
}
