package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-maintenance-api/internal/dto"
	"github.com/noah-isme/sma-maintenance-api/internal/models"
	appErrors "github.com/noah-isme/sma-maintenance-api/pkg/errors"
)

type requestReader interface {
	Get(ctx context.Context, id int64) (*models.MaintenanceRequest, error)
}

type staffResolver interface {
	ResolveStaff(ctx context.Context, ref models.StaffRef) (*models.User, error)
}

// ScheduleReactor turns schedule saves from the calendar into Scheduled notifications.
type ScheduleReactor struct {
	requests  requestReader
	staff     staffResolver
	publisher eventPublisher
	validator *validator.Validate
	logger    *zap.Logger
}

// NewScheduleReactor constructs the reactor.
func NewScheduleReactor(requests requestReader, staff staffResolver, publisher eventPublisher, validate *validator.Validate, logger *zap.Logger) *ScheduleReactor {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScheduleReactor{requests: requests, staff: staff, publisher: publisher, validator: validate, logger: logger}
}

// OnScheduleSaved notifies the requester and the assigned staff member. It runs on
// every create and every update of a schedule record.
func (r *ScheduleReactor) OnScheduleSaved(ctx context.Context, event dto.ScheduleEvent) ([]models.Notification, error) {
	if event.ScheduleDate.IsZero() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "schedule date is required")
	}
	if err := r.validator.Struct(event); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}

	req, err := r.requests.Get(ctx, event.RequestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Internal(err, "failed to load maintenance request")
	}

	var staff *models.User
	if event.AssignedStaff != nil {
		staff, err = r.staff.ResolveStaff(ctx, event.AssignedStaff)
		if err != nil {
			r.logger.Warn("assigned staff not resolvable, notifying requester only",
				zap.Int64("request_id", req.ID), zap.Error(err))
			staff = nil
		}
	}

	r.logger.Info("maintenance schedule saved",
		zap.Int64("request_id", req.ID),
		zap.Bool("created", event.Created),
		zap.Time("schedule_date", event.ScheduleDate),
		zap.String("estimated_duration", event.EstimatedDuration))

	if r.publisher == nil {
		return nil, nil
	}
	return r.publisher.Publish(ctx, models.LifecycleEvent{
		Kind:              models.EventScheduled,
		Request:           *req,
		Staff:             staff,
		OldStatus:         req.Status,
		NewStatus:         req.Status,
		ScheduleDate:      event.ScheduleDate,
		EstimatedDuration: event.EstimatedDuration,
	})
}
