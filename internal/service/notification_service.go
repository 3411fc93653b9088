package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-maintenance-api/internal/models"
	appErrors "github.com/noah-isme/sma-maintenance-api/pkg/errors"
)

type notificationRouter interface {
	Route(ctx context.Context, event models.LifecycleEvent) ([]models.Notification, error)
}

type notificationDeliverer interface {
	Deliver(ctx context.Context, batch []models.Notification) error
}

type notificationReader interface {
	ListForRecipient(ctx context.Context, userID int64, limit int) ([]models.Notification, error)
}

// NotificationService turns lifecycle events into delivered notifications.
type NotificationService struct {
	router    notificationRouter
	deliverer notificationDeliverer
	reader    notificationReader
	metrics   *MetricsService
	logger    *zap.Logger
	now       func() time.Time
}

// NewNotificationService wires routing and delivery. reader may be nil when read-back
// is not needed.
func NewNotificationService(router notificationRouter, deliverer notificationDeliverer, reader notificationReader, metrics *MetricsService, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{router: router, deliverer: deliverer, reader: reader, metrics: metrics, logger: logger, now: time.Now}
}

// Publish routes event and hands the batch to delivery. Ids and timestamps are stamped
// before delivery so every sink and every retry sees the same notification.
// Delivery failures are logged, not returned.
func (s *NotificationService) Publish(ctx context.Context, event models.LifecycleEvent) ([]models.Notification, error) {
	batch, err := s.router.Route(ctx, event)
	if err != nil {
		return nil, err
	}
	if len(batch) == 0 {
		return batch, nil
	}
	now := s.now().UTC()
	for i := range batch {
		if batch[i].ID == "" {
			batch[i].ID = uuid.NewString()
		}
		if batch[i].CreatedAt.IsZero() {
			batch[i].CreatedAt = now
		}
	}
	s.metrics.RecordRouted(event.Kind, len(batch))

	if s.deliverer != nil {
		if err := s.deliverer.Deliver(ctx, batch); err != nil {
			s.logger.Error("notification delivery failed",
				zap.String("event", string(event.Kind)),
				zap.Int64("request_id", event.Request.ID),
				zap.Int("notifications", len(batch)),
				zap.Error(err))
		}
	}
	s.logger.Debug("notifications routed",
		zap.String("event", string(event.Kind)),
		zap.Int64("request_id", event.Request.ID),
		zap.Int("notifications", len(batch)))
	return batch, nil
}

// ListForRecipient returns recent notifications for a user.
func (s *NotificationService) ListForRecipient(ctx context.Context, recipientID int64, limit int) ([]models.Notification, error) {
	if s.reader == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "notification read-back not configured")
	}
	items, err := s.reader.ListForRecipient(ctx, recipientID, limit)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list notifications")
	}
	return items, nil
}
