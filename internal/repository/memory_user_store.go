package repository

import (
	"context"
	"database/sql"
	"sort"
	"sync"

	"github.com/noah-isme/sma-maintenance-api/internal/models"
)

// MemoryUserStore is an in-process actor directory with an admin index.
type MemoryUserStore struct {
	mu              sync.RWMutex
	users           map[int64]models.User
	admins          map[int64]struct{}
	profiles        map[int64]models.StaffProfile
	activeAdminOnly bool
}

// NewMemoryUserStore seeds the directory with users.
func NewMemoryUserStore(users ...models.User) *MemoryUserStore {
	s := &MemoryUserStore{
		users:    make(map[int64]models.User),
		admins:   make(map[int64]struct{}),
		profiles: make(map[int64]models.StaffProfile),
	}
	for _, u := range users {
		s.PutUser(u)
	}
	return s
}

// PutUser inserts or replaces a user and keeps the admin index in step.
func (s *MemoryUserStore) PutUser(user models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = user
	if user.IsAdmin() {
		s.admins[user.ID] = struct{}{}
	} else {
		delete(s.admins, user.ID)
	}
}

// SetActiveAdminsOnly restricts ListAdmins to accounts that are still active.
func (s *MemoryUserStore) SetActiveAdminsOnly(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeAdminOnly = enabled
}

// PutStaffProfile inserts or replaces a staff profile.
func (s *MemoryUserStore) PutStaffProfile(profile models.StaffProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[profile.ID] = profile
}

// FindUser returns a user or sql.ErrNoRows.
func (s *MemoryUserStore) FindUser(ctx context.Context, id int64) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &user, nil
}

// FindUserByStaffProfile resolves a profile to its owning user.
func (s *MemoryUserStore) FindUserByStaffProfile(ctx context.Context, profileID int64) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	profile, ok := s.profiles[profileID]
	if !ok || profile.UserID == nil {
		return nil, sql.ErrNoRows
	}
	user, ok := s.users[*profile.UserID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &user, nil
}

// ListAdmins returns indexed admins ordered by id.
func (s *MemoryUserStore) ListAdmins(ctx context.Context) ([]models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	admins := make([]models.User, 0, len(s.admins))
	for id := range s.admins {
		user := s.users[id]
		if s.activeAdminOnly && !user.Active {
			continue
		}
		admins = append(admins, user)
	}
	sort.Slice(admins, func(i, j int) bool { return admins[i].ID < admins[j].ID })
	return admins, nil
}
