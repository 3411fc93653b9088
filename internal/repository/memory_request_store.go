package repository

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/noah-isme/sma-maintenance-api/internal/models"
)

// MemoryRequestStore is an in-process request store. ConditionalUpdate runs guard and
// mutate under one mutex, which gives the same claim exclusivity as the row lock.
type MemoryRequestStore struct {
	mu       sync.Mutex
	requests map[int64]models.MaintenanceRequest
	nextID   int64
	now      func() time.Time
}

// NewMemoryRequestStore constructs an empty store.
func NewMemoryRequestStore() *MemoryRequestStore {
	return &MemoryRequestStore{requests: make(map[int64]models.MaintenanceRequest), now: time.Now}
}

// WithClock overrides the time source, for tests.
func (s *MemoryRequestStore) WithClock(now func() time.Time) *MemoryRequestStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
	return s
}

// Create stores a new pending request and assigns its id.
func (s *MemoryRequestStore) Create(ctx context.Context, req *models.MaintenanceRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	now := s.now().UTC().Truncate(timestampPrecision)
	req.ID = s.nextID
	req.Status = models.RequestStatusPending
	req.Version = 1
	req.CreatedAt = now
	req.UpdatedAt = now
	s.requests[req.ID] = req.Clone()
	return nil
}

// Get returns a copy of the request or sql.ErrNoRows.
func (s *MemoryRequestStore) Get(ctx context.Context, id int64) (*models.MaintenanceRequest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	out := req.Clone()
	return &out, nil
}

// List filters stored requests, newest first.
func (s *MemoryRequestStore) List(ctx context.Context, filter models.MaintenanceRequestFilter) ([]models.MaintenanceRequest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	matched := make([]models.MaintenanceRequest, 0, len(s.requests))
	for _, req := range s.requests {
		if matchesFilter(req, filter) {
			matched = append(matched, req.Clone())
		}
	}
	s.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	limit, offset := normaliseLimit(filter.Limit, filter.Offset)
	if offset >= len(matched) {
		return []models.MaintenanceRequest{}, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], nil
}

// ConditionalUpdate implements the guarded write.
func (s *MemoryRequestStore) ConditionalUpdate(ctx context.Context, id int64, guard RequestGuard, mutate RequestMutator) (*models.RequestChange, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.requests[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	if guard != nil {
		if err := guard(current.Clone()); err != nil {
			return nil, err
		}
	}
	next, err := applyMutation(current, mutate, s.now())
	if err != nil {
		return nil, err
	}
	s.requests[id] = next.Clone()
	return &models.RequestChange{Before: current.Clone(), After: next}, nil
}

func matchesFilter(req models.MaintenanceRequest, filter models.MaintenanceRequestFilter) bool {
	if !int64Matches(req.BuildingID, filter.BuildingID) ||
		!int64Matches(req.FloorID, filter.FloorID) ||
		!int64Matches(req.RoomID, filter.RoomID) ||
		!int64Matches(req.CreatedBy, filter.CreatedBy) ||
		!int64Matches(req.AssignedTo, filter.AssignedTo) {
		return false
	}
	if len(filter.Status) == 0 {
		return true
	}
	for _, status := range filter.Status {
		if req.Status == status {
			return true
		}
	}
	return false
}

func int64Matches(value, want *int64) bool {
	if want == nil {
		return true
	}
	return value != nil && *value == *want
}
