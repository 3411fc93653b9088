package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-maintenance-api/internal/models"
)

// ErrDispatcherFull is returned when the delivery buffer has no room left.
var ErrDispatcherFull = errors.New("notification dispatcher buffer full")

// NotificationSink is a delivery target for notification batches.
type NotificationSink interface {
	Name() string
	Deliver(ctx context.Context, batch []models.Notification) error
}

type sinkFunc struct {
	name string
	fn   func(ctx context.Context, batch []models.Notification) error
}

func (s sinkFunc) Name() string { return s.name }

func (s sinkFunc) Deliver(ctx context.Context, batch []models.Notification) error {
	return s.fn(ctx, batch)
}

// NewSink adapts a batch function, such as a repository CreateBatch, into a sink.
func NewSink(name string, fn func(ctx context.Context, batch []models.Notification) error) NotificationSink {
	return sinkFunc{name: name, fn: fn}
}

// DispatcherConfig configures worker pool behaviour.
type DispatcherConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
	Logger     *zap.Logger
	Metrics    *MetricsService
}

type deliveryJob struct {
	ID       string
	Sink     NotificationSink
	Batch    []models.Notification
	Attempt  int
	Enqueued time.Time
}

// NotificationDispatcher fans batches out to every sink on a goroutine pool. Each sink
// gets its own job so a failing sink is retried without re-delivering to healthy ones.
// Until Start is called, delivery runs synchronously on the caller's goroutine.
type NotificationDispatcher struct {
	sinks []NotificationSink

	workers    int
	maxRetries int
	retryDelay time.Duration
	logger     *zap.Logger
	metrics    *MetricsService

	jobs    chan deliveryJob
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	retries sync.WaitGroup
	mu      sync.Mutex
	started bool
}

// NewNotificationDispatcher builds a dispatcher over sinks.
func NewNotificationDispatcher(cfg DispatcherConfig, sinks ...NotificationSink) *NotificationDispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = cfg.Workers * 4
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &NotificationDispatcher{
		sinks:      sinks,
		workers:    cfg.Workers,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
		jobs:       make(chan deliveryJob, cfg.BufferSize),
	}
}

// Start begins worker consumption. Safe to call once.
func (d *NotificationDispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return
	}
	d.ctx, d.cancel = context.WithCancel(ctx)
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	d.started = true
	d.logger.Info("notification dispatcher started", zap.Int("workers", d.workers), zap.Int("sinks", len(d.sinks)))
}

// Stop cancels workers, waits for them, then makes one last attempt at anything still buffered.
func (d *NotificationDispatcher) Stop() {
	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return
	}
	d.cancel()
	d.started = false
	d.mu.Unlock()
	d.wg.Wait()
	d.retries.Wait()

	drained := 0
	for {
		select {
		case job := <-d.jobs:
			if err := d.attempt(context.Background(), job); err != nil {
				d.logger.Error("dropping notification batch on shutdown", zap.String("job_id", job.ID), zap.String("sink", job.Sink.Name()), zap.Error(err))
			}
			drained++
		default:
			d.logger.Info("notification dispatcher stopped", zap.Int("drained", drained))
			return
		}
	}
}

// Deliver hands batch to every sink. The batch is copied, so callers may reuse it.
func (d *NotificationDispatcher) Deliver(ctx context.Context, batch []models.Notification) error {
	if len(batch) == 0 || len(d.sinks) == 0 {
		return nil
	}
	d.mu.Lock()
	started := d.started
	d.mu.Unlock()

	var errs []error
	for _, sink := range d.sinks {
		job := deliveryJob{
			ID:       uuid.NewString(),
			Sink:     sink,
			Batch:    append([]models.Notification(nil), batch...),
			Enqueued: time.Now().UTC(),
		}
		if !started {
			if err := d.attempt(ctx, job); err != nil {
				errs = append(errs, fmt.Errorf("sink %s: %w", sink.Name(), err))
			}
			continue
		}
		if err := d.enqueue(job); err != nil {
			errs = append(errs, fmt.Errorf("sink %s: %w", sink.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (d *NotificationDispatcher) enqueue(job deliveryJob) error {
	d.mu.Lock()
	ctx := d.ctx
	started := d.started
	d.mu.Unlock()
	if !started {
		return fmt.Errorf("notification dispatcher stopped")
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("notification dispatcher stopped: %w", ctx.Err())
	case d.jobs <- job:
		return nil
	default:
		return ErrDispatcherFull
	}
}

func (d *NotificationDispatcher) worker() {
	defer d.wg.Done()
	for {
		select {
		case <-d.ctx.Done():
			return
		case job := <-d.jobs:
			if err := d.attempt(d.ctx, job); err != nil {
				d.handleFailure(job, err)
			}
		}
	}
}

func (d *NotificationDispatcher) attempt(ctx context.Context, job deliveryJob) error {
	start := time.Now()
	err := job.Sink.Deliver(ctx, job.Batch)
	d.metrics.ObserveDelivery(job.Sink.Name(), time.Since(start), err)
	return err
}

func (d *NotificationDispatcher) handleFailure(job deliveryJob, err error) {
	job.Attempt++
	if job.Attempt > d.maxRetries {
		d.logger.Error("notification delivery exceeded retries",
			zap.String("job_id", job.ID), zap.String("sink", job.Sink.Name()), zap.Int("notifications", len(job.Batch)), zap.Error(err))
		return
	}
	d.logger.Warn("notification delivery failed, retrying",
		zap.String("job_id", job.ID), zap.String("sink", job.Sink.Name()), zap.Int("attempt", job.Attempt), zap.Error(err))

	d.retries.Add(1)
	go func(j deliveryJob) {
		defer d.retries.Done()
		timer := time.NewTimer(d.retryDelay)
		defer timer.Stop()
		select {
		case <-d.ctx.Done():
			d.logger.Warn("notification retry abandoned on shutdown", zap.String("job_id", j.ID), zap.String("sink", j.Sink.Name()))
			return
		case <-timer.C:
			if err := d.enqueue(j); err != nil {
				d.logger.Error("failed to requeue notification batch", zap.String("job_id", j.ID), zap.Error(err))
			}
		}
	}(job)
}
