package repository

import (
	"errors"
	"time"

	"github.com/noah-isme/sma-maintenance-api/internal/models"
)

// ErrVersionConflict is returned when a conditional update lost an optimistic race.
var ErrVersionConflict = errors.New("maintenance request version conflict")

// RequestGuard inspects the committed row before a write. A non-nil error aborts the
// update without touching the row and is returned to the caller unchanged.
type RequestGuard func(current models.MaintenanceRequest) error

// RequestMutator edits a private copy of the row. ID, CreatedAt, Version and
// UpdatedAt are owned by the store and reset after it runs.
type RequestMutator func(req *models.MaintenanceRequest) error

const timestampPrecision = time.Microsecond

// nextUpdatedAt keeps updated_at strictly increasing at Postgres precision, even when
// the wall clock stalls or steps backwards.
func nextUpdatedAt(prev, now time.Time) time.Time {
	now = now.UTC().Truncate(timestampPrecision)
	if !now.After(prev) {
		return prev.Add(timestampPrecision)
	}
	return now
}

func applyMutation(current models.MaintenanceRequest, mutate RequestMutator, now time.Time) (models.MaintenanceRequest, error) {
	next := current.Clone()
	if mutate != nil {
		if err := mutate(&next); err != nil {
			return models.MaintenanceRequest{}, err
		}
	}
	next.ID = current.ID
	next.CreatedAt = current.CreatedAt
	next.Version = current.Version + 1
	next.UpdatedAt = nextUpdatedAt(current.UpdatedAt, now)
	return next, nil
}

func normaliseLimit(limit, offset int) (int, int) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
