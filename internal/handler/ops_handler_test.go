package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-maintenance-api/internal/middleware"
	"github.com/noah-isme/sma-maintenance-api/internal/service"
	"github.com/noah-isme/sma-maintenance-api/pkg/middleware/requestid"
)

func newOpsRouter(metrics *service.MetricsService, checks ...ReadinessCheck) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(requestid.Middleware(), middleware.Metrics(metrics))
	NewOpsHandler(metrics, nil, checks...).Register(r)
	return r
}

func TestOpsHandlerHealth(t *testing.T) {
	r := newOpsRouter(nil)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestid.Header, "probe-1")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"data":{"status":"ok"}}`, w.Body.String())
	assert.Equal(t, "probe-1", w.Header().Get(requestid.Header))
}

func TestOpsHandlerReady(t *testing.T) {
	healthy := ReadinessCheck{Name: "postgres", Ping: func(context.Context) error { return nil }}
	broken := ReadinessCheck{Name: "redis", Ping: func(context.Context) error { return errors.New("dial tcp: refused") }}

	w := httptest.NewRecorder()
	newOpsRouter(nil, healthy).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	newOpsRouter(nil, healthy, broken).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
		Meta map[string]string `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "SERVICE_UNAVAILABLE", body.Error.Code)
	assert.Equal(t, "dependencies not ready", body.Error.Message)
	assert.Equal(t, map[string]string{"redis": "dial tcp: refused"}, body.Meta)
	assert.NotEmpty(t, w.Header().Get(requestid.Header))
}

func TestOpsHandlerPrometheus(t *testing.T) {
	metrics := service.NewMetricsService()
	r := newOpsRouter(metrics)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.True(t, strings.Contains(body, `http_requests_total{method="GET",path="/health",status="200"} 1`), body)
	assert.NotContains(t, body, `path="/metrics"`)

	w = httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	NewOpsHandler(nil, nil).Prometheus(c)
	c.Writer.WriteHeaderNow()
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
