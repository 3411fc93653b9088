package service

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-maintenance-api/internal/models"
	appErrors "github.com/noah-isme/sma-maintenance-api/pkg/errors"
)

type actorStore interface {
	FindUser(ctx context.Context, id int64) (*models.User, error)
	FindUserByStaffProfile(ctx context.Context, profileID int64) (*models.User, error)
	ListAdmins(ctx context.Context) ([]models.User, error)
}

// ActorDirectory answers identity questions for the engine and the router.
type ActorDirectory struct {
	store  actorStore
	logger *zap.Logger
}

// NewActorDirectory constructs the directory adapter.
func NewActorDirectory(store actorStore, logger *zap.Logger) *ActorDirectory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ActorDirectory{store: store, logger: logger}
}

// Resolve returns the user for id, or ErrInvalidActor if no such account exists.
func (d *ActorDirectory) Resolve(ctx context.Context, id int64) (*models.User, error) {
	user, err := d.store.FindUser(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrInvalidActor
		}
		return nil, appErrors.Internal(err, "failed to resolve user")
	}
	return user, nil
}

// IsAdmin reports whether the account holds approval authority.
func (d *ActorDirectory) IsAdmin(ctx context.Context, id int64) (bool, error) {
	user, err := d.Resolve(ctx, id)
	if err != nil {
		return false, err
	}
	return user.IsAdmin(), nil
}

// ResolveStaffProfile returns the account that owns a staff profile.
func (d *ActorDirectory) ResolveStaffProfile(ctx context.Context, profileID int64) (*models.User, error) {
	return d.ResolveStaff(ctx, models.StaffProfileRef{ProfileID: profileID})
}

// ResolveStaff collapses either staff reference shape into a user.
func (d *ActorDirectory) ResolveStaff(ctx context.Context, ref models.StaffRef) (*models.User, error) {
	if ref == nil {
		return nil, appErrors.ErrInvalidActor
	}
	user, err := ref.ResolveUser(ctx, d.store)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrInvalidActor
		}
		return nil, appErrors.Internal(err, "failed to resolve staff")
	}
	return user, nil
}

// DisplayName returns "First Last" or the username.
func (d *ActorDirectory) DisplayName(user *models.User) string {
	if user == nil {
		return ""
	}
	return user.DisplayName()
}

// ListAdmins returns every administrator once, in id order.
func (d *ActorDirectory) ListAdmins(ctx context.Context) ([]models.User, error) {
	admins, err := d.store.ListAdmins(ctx)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list administrators")
	}
	seen := make(map[int64]struct{}, len(admins))
	out := admins[:0]
	for _, admin := range admins {
		if _, dup := seen[admin.ID]; dup {
			continue
		}
		seen[admin.ID] = struct{}{}
		out = append(out, admin)
	}
	return out, nil
}

// parseActorID reads the assignee field used by the admin update operations.
// A nil or blank value yields nil.
func parseActorID(raw *string) (*int64, error) {
	if raw == nil {
		return nil, nil
	}
	value := strings.TrimSpace(*raw)
	if value == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil || id <= 0 {
		return nil, appErrors.ErrInvalidActor
	}
	return &id, nil
}
