package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/sma-maintenance-api/internal/models"
)

// Transition outcomes recorded by the lifecycle engine.
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// MetricsService encapsulates Prometheus instrumentation for the engine and its ops router.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	claimConflicts  prometheus.Counter
	routed          *prometheus.CounterVec
	deliveryFailure *prometheus.CounterVec
	deliveryLatency *prometheus.HistogramVec
}

// NewMetricsService registers the engine collectors on a private registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "maintenance_transitions_total",
		Help: "Lifecycle operations by outcome",
	}, []string{"operation", "outcome"})

	claimConflicts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "maintenance_claim_conflicts_total",
		Help: "Claims lost to another staff member",
	})

	routed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "maintenance_notifications_routed_total",
		Help: "Notifications produced per lifecycle event kind",
	}, []string{"event"})

	deliveryFailure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "maintenance_notification_delivery_failures_total",
		Help: "Failed notification deliveries by sink",
	}, []string{"sink"})

	deliveryLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "maintenance_notification_delivery_seconds",
		Help:    "Time spent delivering a notification batch to a sink",
		Buckets: prometheus.DefBuckets,
	}, []string{"sink"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, transitions, claimConflicts, routed, deliveryFailure, deliveryLatency, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		transitions:     transitions,
		claimConflicts:  claimConflicts,
		routed:          routed,
		deliveryFailure: deliveryFailure,
		deliveryLatency: deliveryLatency,
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records ops router request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordTransition counts a lifecycle operation outcome.
func (m *MetricsService) RecordTransition(operation, outcome string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(operation, outcome).Inc()
}

// RecordClaimConflict counts a lost claim race.
func (m *MetricsService) RecordClaimConflict() {
	if m == nil {
		return
	}
	m.claimConflicts.Inc()
}

// RecordRouted counts notifications produced for an event.
func (m *MetricsService) RecordRouted(kind models.EventKind, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.routed.WithLabelValues(string(kind)).Add(float64(count))
}

// RecordRoutingFailure counts an event whose recipients could not be computed.
func (m *MetricsService) RecordRoutingFailure(kind models.EventKind) {
	if m == nil {
		return
	}
	m.deliveryFailure.WithLabelValues("router:" + string(kind)).Inc()
}

// ObserveDelivery records the timing and result of one sink delivery.
func (m *MetricsService) ObserveDelivery(sink string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.deliveryLatency.WithLabelValues(sink).Observe(duration.Seconds())
	if err != nil {
		m.deliveryFailure.WithLabelValues(sink).Inc()
	}
}
