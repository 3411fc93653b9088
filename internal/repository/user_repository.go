package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-maintenance-api/internal/models"
)

const userColumns = `u.id, u.username, u.email, u.first_name, u.last_name, u.is_staff, u.is_superuser, u.is_active, u.created_at`

// UserRepository reads the actor directory owned by the accounts service.
type UserRepository struct {
	db              *sqlx.DB
	activeAdminOnly bool
}

// NewUserRepository creates a new instance of UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// WithActiveAdminsOnly restricts ListAdmins to accounts that are still active.
func (r *UserRepository) WithActiveAdminsOnly(enabled bool) *UserRepository {
	r.activeAdminOnly = enabled
	return r
}

// FindUser returns a user by identifier.
func (r *UserRepository) FindUser(ctx context.Context, id int64) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users u WHERE u.id = $1 LIMIT 1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	return &user, nil
}

// FindUserByStaffProfile returns the account owning a staff profile.
func (r *UserRepository) FindUserByStaffProfile(ctx context.Context, profileID int64) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM staff_profiles sp
	JOIN users u ON u.id = sp.user_id
	WHERE sp.id = $1 LIMIT 1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, profileID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find user by staff profile: %w", err)
	}
	return &user, nil
}

// ListAdmins returns every elevated-staff or superuser account once.
// Served by the users_admin_idx partial index.
func (r *UserRepository) ListAdmins(ctx context.Context) ([]models.User, error) {
	where := `(u.is_staff OR u.is_superuser)`
	if r.activeAdminOnly {
		where = `u.is_active AND ` + where
	}
	query := `SELECT DISTINCT ` + userColumns + ` FROM users u
	WHERE ` + where + `
	ORDER BY u.id`
	var users []models.User
	if err := r.db.SelectContext(ctx, &users, query); err != nil {
		return nil, fmt.Errorf("list admin users: %w", err)
	}
	return users, nil
}
