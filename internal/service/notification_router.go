package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-maintenance-api/internal/models"
	appErrors "github.com/noah-isme/sma-maintenance-api/pkg/errors"
)

const scheduleDateLayout = "January 02, 2006"

type routerDirectory interface {
	Resolve(ctx context.Context, id int64) (*models.User, error)
	ListAdmins(ctx context.Context) ([]models.User, error)
}

// NotificationRouter computes who hears about a lifecycle event and what they read.
type NotificationRouter struct {
	directory routerDirectory
	logger    *zap.Logger
	now       func() time.Time
}

// NewNotificationRouter constructs the router.
func NewNotificationRouter(directory routerDirectory, logger *zap.Logger) *NotificationRouter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationRouter{directory: directory, logger: logger, now: time.Now}
}

// Route returns one notification per recipient of event. Recipients are taken in
// precedence order (creator, assignee, administrators) and each is addressed once.
func (r *NotificationRouter) Route(ctx context.Context, event models.LifecycleEvent) ([]models.Notification, error) {
	set := newRecipientSet(event, r.now)
	req := event.Request

	switch event.Kind {
	case models.EventRequestCreated:
		message := fmt.Sprintf("New maintenance request #%d created by %s.", req.ID, r.requesterName(ctx, req))
		if err := r.broadcastAdmins(ctx, set, message); err != nil {
			return nil, err
		}

	case models.EventStaffAccepted:
		staff, err := r.acceptingStaff(ctx, event)
		if err != nil {
			return nil, err
		}
		// The accepting staff member never hears about their own claim.
		set.exclude(staff.ID)
		message := fmt.Sprintf("Request #%d has been accepted by %s.", req.ID, staff.DisplayName())
		if err := r.broadcastAdmins(ctx, set, message); err != nil {
			return nil, err
		}

	case models.EventStatusChanged:
		if event.OldStatus == event.NewStatus {
			return nil, nil
		}
		label := event.NewStatus.Label()
		if req.CreatedBy != nil {
			set.add(*req.CreatedBy, fmt.Sprintf("Your maintenance request #%d status changed to %s.", req.ID, label))
		}
		if req.AssignedTo != nil {
			set.add(*req.AssignedTo, fmt.Sprintf("Request #%d status changed to %s.", req.ID, label))
		}
		if err := r.broadcastAdmins(ctx, set, fmt.Sprintf("Request #%d status changed to %s.", req.ID, label)); err != nil {
			return nil, err
		}

	case models.EventScheduled:
		if event.ScheduleDate.IsZero() {
			return nil, appErrors.Clone(appErrors.ErrValidation, "schedule date is required")
		}
		date := event.ScheduleDate.Format(scheduleDateLayout)
		if req.CreatedBy != nil {
			set.add(*req.CreatedBy, fmt.Sprintf("Your maintenance request #%d has been scheduled for %s.", req.ID, date))
		}
		if event.Staff != nil {
			set.add(event.Staff.ID, fmt.Sprintf("You have been assigned a maintenance task (Request #%d) scheduled for %s.", req.ID, date))
		}

	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown lifecycle event %q", event.Kind))
	}

	return set.notifications, nil
}

func (r *NotificationRouter) broadcastAdmins(ctx context.Context, set *recipientSet, message string) error {
	admins, err := r.directory.ListAdmins(ctx)
	if err != nil {
		return err
	}
	for _, admin := range admins {
		set.add(admin.ID, message)
	}
	return nil
}

// requesterName prefers the free-text name, then the creator's username.
func (r *NotificationRouter) requesterName(ctx context.Context, req models.MaintenanceRequest) string {
	if req.RequesterName != nil && *req.RequesterName != "" {
		return *req.RequesterName
	}
	if req.CreatedBy == nil {
		return "Unknown"
	}
	creator, err := r.directory.Resolve(ctx, *req.CreatedBy)
	if err != nil || creator.Username == "" {
		r.logger.Debug("creator not resolvable for notification", zap.Int64("request_id", req.ID), zap.Error(err))
		return "Unknown"
	}
	return creator.Username
}

func (r *NotificationRouter) acceptingStaff(ctx context.Context, event models.LifecycleEvent) (*models.User, error) {
	if event.Staff != nil {
		return event.Staff, nil
	}
	assignee := event.NewAssignee
	if assignee == nil {
		assignee = event.Request.AssignedTo
	}
	if assignee == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "accepted event without assignee")
	}
	return r.directory.Resolve(ctx, *assignee)
}

// recipientSet keeps the first message added for each user.
type recipientSet struct {
	event         models.LifecycleEvent
	at            time.Time
	seen          map[int64]struct{}
	notifications []models.Notification
}

func newRecipientSet(event models.LifecycleEvent, now func() time.Time) *recipientSet {
	at := event.OccurredAt
	if at.IsZero() {
		at = now().UTC()
	}
	return &recipientSet{event: event, at: at, seen: make(map[int64]struct{})}
}

func (s *recipientSet) exclude(userID int64) {
	s.seen[userID] = struct{}{}
}

func (s *recipientSet) add(userID int64, message string) bool {
	if _, ok := s.seen[userID]; ok {
		return false
	}
	s.seen[userID] = struct{}{}
	requestID := s.event.Request.ID
	s.notifications = append(s.notifications, models.Notification{
		RecipientID: userID,
		Message:     message,
		RequestID:   &requestID,
		Event:       s.event.Kind,
		CreatedAt:   s.at,
	})
	return true
}
