package repository

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-maintenance-api/internal/models"
)

func TestNotificationRepositoryCreateBatch(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()

	repo := NewNotificationRepository(db)
	reqID := int64(5)
	batch := []models.Notification{
		{RecipientID: 1, Message: "New maintenance request #5 created by Maria.", RequestID: &reqID, Event: models.EventRequestCreated},
		{RecipientID: 2, Message: "New maintenance request #5 created by Maria.", RequestID: &reqID, Event: models.EventRequestCreated},
	}
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO notifications")).WillReturnResult(sqlmock.NewResult(0, 2))

	require.NoError(t, repo.CreateBatch(context.Background(), batch))
	for _, n := range batch {
		assert.Empty(t, n.ID, "caller batch is left untouched")
		assert.True(t, n.CreatedAt.IsZero())
	}
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMemoryNotificationStoreStampsCopies(t *testing.T) {
	store := NewMemoryNotificationStore()
	batch := []models.Notification{{RecipientID: 7, Message: "Request #1 status changed to Approved."}}

	require.NoError(t, store.CreateBatch(context.Background(), batch))
	assert.Empty(t, batch[0].ID)
	assert.True(t, batch[0].CreatedAt.IsZero())

	stored := store.All()
	require.Len(t, stored, 1)
	assert.NotEmpty(t, stored[0].ID)
	assert.False(t, stored[0].CreatedAt.IsZero())
}

func TestNotificationRepositoryCreateBatchEmpty(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()

	require.NoError(t, NewNotificationRepository(db).CreateBatch(context.Background(), nil))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepositoryListForRecipient(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()

	repo := NewNotificationRepository(db)
	rows := sqlmock.NewRows([]string{"id", "user_id", "message", "maintenance_request_id", "event", "created_at"}).
		AddRow("n-1", 3, "Request #5 status changed to Rejected.", 5, "status_changed", time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM notifications WHERE user_id = $1")).
		WithArgs(int64(3), 25).
		WillReturnRows(rows)

	list, err := repo.ListForRecipient(context.Background(), 3, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, models.EventStatusChanged, list[0].Event)
	require.NoError(t, mock.ExpectationsWereMet())
}

type publishCall struct {
	channel string
	payload []byte
}

type redisPublisherStub struct {
	calls   []publishCall
	failFor string
}

func (s *redisPublisherStub) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	s.calls = append(s.calls, publishCall{channel: channel, payload: message.([]byte)})
	if channel == s.failFor {
		return redis.NewIntResult(0, errors.New("connection refused"))
	}
	return redis.NewIntResult(1, nil)
}

func TestNotificationPublisherPublishBatch(t *testing.T) {
	stub := &redisPublisherStub{failFor: "alerts:2"}
	publisher := &NotificationPublisher{client: stub, prefix: channelPrefix("alerts:")}

	err := publisher.PublishBatch(context.Background(), []models.Notification{
		{ID: "a", RecipientID: 1, Message: "one"},
		{ID: "b", RecipientID: 2, Message: "two"},
		{ID: "c", RecipientID: 3, Message: "three"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "alerts:2")
	require.Len(t, stub.calls, 3)
	assert.Equal(t, "alerts:1", stub.calls[0].channel)

	var decoded models.Notification
	require.NoError(t, json.Unmarshal(stub.calls[2].payload, &decoded))
	assert.Equal(t, "three", decoded.Message)
}

func TestNotificationPublisherDisabled(t *testing.T) {
	publisher := NewNotificationPublisher(nil, "")
	assert.Equal(t, "notifications:9", publisher.Channel(9))
	require.NoError(t, publisher.PublishBatch(context.Background(), []models.Notification{{RecipientID: 9}}))
}
