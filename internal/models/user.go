package models

import (
	"context"
	"strings"
	"time"
)

// User is an actor account as exposed by the directory collaborator.
type User struct {
	ID          int64     `db:"id" json:"id"`
	Username    string    `db:"username" json:"username"`
	Email       string    `db:"email" json:"email"`
	FirstName   string    `db:"first_name" json:"first_name"`
	LastName    string    `db:"last_name" json:"last_name"`
	IsStaff     bool      `db:"is_staff" json:"is_staff"`
	IsSuperuser bool      `db:"is_superuser" json:"is_superuser"`
	Active      bool      `db:"is_active" json:"is_active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// IsAdmin reports organisation-wide approval authority.
func (u User) IsAdmin() bool {
	return u.IsStaff || u.IsSuperuser
}

// FullName joins first and last name, trimmed.
func (u User) FullName() string {
	return strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
}

// DisplayName prefers the full name and falls back to the username.
func (u User) DisplayName() string {
	if name := u.FullName(); name != "" {
		return name
	}
	return u.Username
}

// StaffProfile links maintenance staff details to a user account.
type StaffProfile struct {
	ID             int64   `db:"id" json:"id"`
	UserID         *int64  `db:"user_id" json:"user_id,omitempty"`
	Role           string  `db:"role" json:"role"`
	ContactNumber  *string `db:"contact_number" json:"contact_number,omitempty"`
	Specialization *string `db:"specialization" json:"specialization,omitempty"`
}

// StaffResolver looks up accounts for either staff reference shape.
type StaffResolver interface {
	FindUser(ctx context.Context, id int64) (*User, error)
	FindUserByStaffProfile(ctx context.Context, profileID int64) (*User, error)
}

// StaffRef is anything that resolves to a notifiable user.
type StaffRef interface {
	ResolveUser(ctx context.Context, resolver StaffResolver) (*User, error)
}

// DirectUserRef points straight at a user account.
type DirectUserRef struct {
	UserID int64
}

// ResolveUser implements StaffRef.
func (r DirectUserRef) ResolveUser(ctx context.Context, resolver StaffResolver) (*User, error) {
	return resolver.FindUser(ctx, r.UserID)
}

// StaffProfileRef points at a staff profile that owns a user account.
type StaffProfileRef struct {
	ProfileID int64
}

// ResolveUser implements StaffRef.
func (r StaffProfileRef) ResolveUser(ctx context.Context, resolver StaffResolver) (*User, error) {
	return resolver.FindUserByStaffProfile(ctx, r.ProfileID)
}
