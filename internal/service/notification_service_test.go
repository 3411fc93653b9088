package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-maintenance-api/internal/models"
	"github.com/noah-isme/sma-maintenance-api/internal/repository"
	appErrors "github.com/noah-isme/sma-maintenance-api/pkg/errors"
)

type recordingDeliverer struct {
	batches [][]models.Notification
	err     error
}

func (r *recordingDeliverer) Deliver(ctx context.Context, batch []models.Notification) error {
	r.batches = append(r.batches, batch)
	return r.err
}

func TestNotificationServicePublishStampsBatch(t *testing.T) {
	dir := &directoryStub{admins: []models.User{{ID: 1}, {ID: 2}}}
	deliverer := &recordingDeliverer{err: errors.New("redis down")}
	metrics := NewMetricsService()
	svc := NewNotificationService(NewNotificationRouter(dir, nil), deliverer, nil, metrics, nil)
	fixed := time.Date(2026, 2, 2, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	out, err := svc.Publish(context.Background(), models.LifecycleEvent{Kind: models.EventRequestCreated, Request: models.MaintenanceRequest{ID: 9}})
	require.NoError(t, err, "delivery errors are not returned")
	require.Len(t, out, 2)
	require.Len(t, deliverer.batches, 1)
	for i, n := range out {
		assert.NotEmpty(t, n.ID)
		assert.Equal(t, deliverer.batches[0][i].ID, n.ID)
	}
	assert.NotEqual(t, out[0].ID, out[1].ID)

	families, err := metrics.Registry().Gather()
	require.NoError(t, err)
	var routed float64
	for _, family := range families {
		if family.GetName() == "maintenance_notifications_routed_total" {
			for _, metric := range family.GetMetric() {
				routed += metric.GetCounter().GetValue()
			}
		}
	}
	assert.Equal(t, float64(2), routed)
}

func TestNotificationServicePublishEmptySkipsDelivery(t *testing.T) {
	deliverer := &recordingDeliverer{}
	svc := NewNotificationService(NewNotificationRouter(&directoryStub{}, nil), deliverer, nil, nil, nil)

	out, err := svc.Publish(context.Background(), models.LifecycleEvent{Kind: models.EventRequestCreated, Request: models.MaintenanceRequest{ID: 9}})
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Empty(t, deliverer.batches)
}

func TestNotificationServiceListForRecipient(t *testing.T) {
	store := repository.NewMemoryNotificationStore()
	require.NoError(t, store.CreateBatch(context.Background(), []models.Notification{
		{ID: "a", RecipientID: 3, Message: "first", CreatedAt: time.Unix(100, 0)},
		{ID: "b", RecipientID: 4, Message: "other"},
		{ID: "c", RecipientID: 3, Message: "second", CreatedAt: time.Unix(200, 0)},
		{ID: "a", RecipientID: 3, Message: "retried duplicate"},
	}))
	svc := NewNotificationService(nil, nil, store, nil, nil)

	items, err := svc.ListForRecipient(context.Background(), 3, 10)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "second", items[0].Message)
	assert.Equal(t, "first", items[1].Message)

	_, err = NewNotificationService(nil, nil, nil, nil, nil).ListForRecipient(context.Background(), 3, 10)
	require.ErrorIs(t, err, appErrors.ErrInternal)
}

func TestMetricsServiceHandlerExposesEngineMetrics(t *testing.T) {
	metrics := NewMetricsService()
	metrics.RecordTransition(opClaim, OutcomeSuccess)
	metrics.RecordClaimConflict()
	metrics.RecordRoutingFailure(models.EventScheduled)
	metrics.ObserveDelivery("store", time.Millisecond, errors.New("boom"))

	families, err := metrics.Registry().Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, family := range families {
		names = append(names, family.GetName())
	}
	joined := strings.Join(names, ",")
	for _, want := range []string{
		"maintenance_transitions_total",
		"maintenance_claim_conflicts_total",
		"maintenance_notification_delivery_failures_total",
		"maintenance_notification_delivery_seconds",
	} {
		assert.Contains(t, joined, want)
	}

	var nilMetrics *MetricsService
	nilMetrics.RecordTransition(opClaim, OutcomeError)
	nilMetrics.ObserveDelivery("store", time.Second, nil)
	assert.Nil(t, nilMetrics.Registry())
}
