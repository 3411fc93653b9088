package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-maintenance-api/internal/dto"
	"github.com/noah-isme/sma-maintenance-api/internal/models"
	"github.com/noah-isme/sma-maintenance-api/pkg/config"
)

func memoryConfig() *config.Config {
	return &config.Config{
		Env:   config.EnvDevelopment,
		Store: config.StoreConfig{Driver: config.StoreDriverMemory},
		Notifications: config.NotificationConfig{
			Workers:    2,
			BufferSize: 16,
			MaxRetries: 1,
			RetryDelay: 10 * time.Millisecond,
		},
		Completion: config.CompletionConfig{AllowFromAnyStatus: true},
	}
}

func TestApplicationMemoryDriverEndToEnd(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx := context.Background()
	app, err := newApplication(ctx, memoryConfig(), zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, app.memoryUsers)
	app.start(ctx)

	app.memoryUsers.PutUser(models.User{ID: 1, Username: "admin", IsSuperuser: true, Active: true})
	app.memoryUsers.PutUser(models.User{ID: 2, Username: "tech", Active: true})
	techID := int64(2)
	app.memoryUsers.PutStaffProfile(models.StaffProfile{ID: 30, UserID: &techID})

	req, err := app.lifecycle.Create(ctx, dto.CreateMaintenanceRequest{Role: "staff", Description: "Broken hinge"}, nil)
	require.NoError(t, err)
	_, err = app.lifecycle.Claim(ctx, req.ID, 2)
	require.NoError(t, err)
	scheduled, err := app.schedules.OnScheduleSaved(ctx, dto.ScheduleEvent{
		RequestID:     req.ID,
		ScheduleDate:  time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC),
		AssignedStaff: models.StaffProfileRef{ProfileID: 30},
		Created:       true,
	})
	require.NoError(t, err)
	require.Len(t, scheduled, 1)

	app.close()

	inbox, err := app.notifications.ListForRecipient(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, inbox, 2)
	assert.Equal(t, models.EventStaffAccepted, inbox[0].Event)
	assert.Equal(t, models.EventRequestCreated, inbox[1].Event)

	techInbox, err := app.notifications.ListForRecipient(ctx, 2, 10)
	require.NoError(t, err)
	require.Len(t, techInbox, 1)
	assert.Equal(t, models.EventScheduled, techInbox[0].Event)
	assert.Contains(t, techInbox[0].Message, "scheduled for March 04, 2026")
}

func TestApplicationOpsRouter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	app, err := newApplication(context.Background(), memoryConfig(), zap.NewNop())
	require.NoError(t, err)
	defer app.close()

	r := app.router()
	for _, path := range []string{"/health", "/ready", "/metrics"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}
