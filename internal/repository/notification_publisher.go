package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/sma-maintenance-api/internal/models"
)

type redisPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// NotificationPublisher pushes notifications to per-recipient Redis channels so
// connected clients can show them without polling.
type NotificationPublisher struct {
	client redisPublisher
	prefix string
}

// NewNotificationPublisher constructs a publisher. A nil client disables publishing.
func NewNotificationPublisher(client *redis.Client, prefix string) *NotificationPublisher {
	p := &NotificationPublisher{prefix: channelPrefix(prefix)}
	if client != nil {
		p.client = client
	}
	return p
}

// Channel returns the channel name for a recipient.
func (p *NotificationPublisher) Channel(recipientID int64) string {
	return fmt.Sprintf("%s:%d", p.prefix, recipientID)
}

// PublishBatch publishes every notification, continuing past individual failures.
func (p *NotificationPublisher) PublishBatch(ctx context.Context, notifications []models.Notification) error {
	if p == nil || p.client == nil {
		return nil
	}
	var errs []error
	for _, n := range notifications {
		payload, err := json.Marshal(n)
		if err != nil {
			errs = append(errs, fmt.Errorf("marshal notification %s: %w", n.ID, err))
			continue
		}
		if err := p.client.Publish(ctx, p.Channel(n.RecipientID), payload).Err(); err != nil {
			errs = append(errs, fmt.Errorf("redis publish %s: %w", p.Channel(n.RecipientID), err))
		}
	}
	return errors.Join(errs...)
}

func channelPrefix(prefix string) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		return "notifications"
	}
	return prefix
}
