package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-maintenance-api/internal/models"
	"github.com/noah-isme/sma-maintenance-api/internal/repository"
	appErrors "github.com/noah-isme/sma-maintenance-api/pkg/errors"
)

type brokenActorStore struct{}

func (brokenActorStore) FindUser(ctx context.Context, id int64) (*models.User, error) {
	return nil, errors.New("connection reset")
}

func (brokenActorStore) FindUserByStaffProfile(ctx context.Context, profileID int64) (*models.User, error) {
	return nil, errors.New("connection reset")
}

func (brokenActorStore) ListAdmins(ctx context.Context) ([]models.User, error) {
	return []models.User{{ID: 2}, {ID: 1}, {ID: 2}}, nil
}

func TestActorDirectoryResolve(t *testing.T) {
	owner := int64(4)
	users := repository.NewMemoryUserStore(
		models.User{ID: 4, Username: "lee", IsStaff: true, Active: true},
		models.User{ID: 5, Username: "kim", Active: true},
	)
	users.PutStaffProfile(models.StaffProfile{ID: 40, UserID: &owner})
	dir := NewActorDirectory(users, nil)
	ctx := context.Background()

	user, err := dir.Resolve(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, "lee", dir.DisplayName(user))
	assert.Empty(t, dir.DisplayName(nil))

	_, err = dir.Resolve(ctx, 6)
	require.ErrorIs(t, err, appErrors.ErrInvalidActor)

	admin, err := dir.IsAdmin(ctx, 4)
	require.NoError(t, err)
	assert.True(t, admin)
	admin, err = dir.IsAdmin(ctx, 5)
	require.NoError(t, err)
	assert.False(t, admin)

	viaProfile, err := dir.ResolveStaffProfile(ctx, 40)
	require.NoError(t, err)
	assert.Equal(t, int64(4), viaProfile.ID)

	_, err = dir.ResolveStaff(ctx, nil)
	require.ErrorIs(t, err, appErrors.ErrInvalidActor)
}

func TestActorDirectoryStoreFailures(t *testing.T) {
	dir := NewActorDirectory(brokenActorStore{}, nil)

	_, err := dir.Resolve(context.Background(), 1)
	require.ErrorIs(t, err, appErrors.ErrInternal)

	_, err = dir.ResolveStaff(context.Background(), models.StaffProfileRef{ProfileID: 1})
	require.ErrorIs(t, err, appErrors.ErrInternal)

	admins, err := dir.ListAdmins(context.Background())
	require.NoError(t, err)
	assert.Len(t, admins, 2)
}

func TestParseActorID(t *testing.T) {
	id, err := parseActorID(strPtr(" 42 "))
	require.NoError(t, err)
	assert.Equal(t, int64(42), *id)

	id, err = parseActorID(nil)
	require.NoError(t, err)
	assert.Nil(t, id)

	for _, raw := range []string{"abc", "-3", "0", "4.5"} {
		_, err := parseActorID(strPtr(raw))
		require.ErrorIs(t, err, appErrors.ErrInvalidActor, raw)
	}
}
