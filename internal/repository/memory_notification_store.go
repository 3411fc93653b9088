package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/sma-maintenance-api/internal/models"
)

// MemoryNotificationStore keeps notifications in process, keyed by id.
type MemoryNotificationStore struct {
	mu    sync.RWMutex
	byID  map[string]models.Notification
	order []string
}

// NewMemoryNotificationStore constructs an empty store.
func NewMemoryNotificationStore() *MemoryNotificationStore {
	return &MemoryNotificationStore{byID: make(map[string]models.Notification)}
}

// CreateBatch appends notifications, ignoring ids already stored.
func (s *MemoryNotificationStore) CreateBatch(ctx context.Context, notifications []models.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	for _, n := range notifications {
		if n.ID == "" {
			n.ID = uuid.NewString()
		}
		if n.CreatedAt.IsZero() {
			n.CreatedAt = now
		}
		if _, exists := s.byID[n.ID]; exists {
			continue
		}
		s.byID[n.ID] = n
		s.order = append(s.order, n.ID)
	}
	return nil
}

// ListForRecipient returns the newest notifications for a user.
func (s *MemoryNotificationStore) ListForRecipient(ctx context.Context, userID int64, limit int) ([]models.Notification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 25
	}
	s.mu.RLock()
	out := make([]models.Notification, 0)
	for i := len(s.order) - 1; i >= 0; i-- {
		if n := s.byID[s.order[i]]; n.RecipientID == userID {
			out = append(out, n)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// All returns every stored notification in insertion order.
func (s *MemoryNotificationStore) All() []models.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Notification, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id])
	}
	return out
}
