package main

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-maintenance-api/internal/handler"
	"github.com/noah-isme/sma-maintenance-api/internal/middleware"
	"github.com/noah-isme/sma-maintenance-api/internal/migration"
	"github.com/noah-isme/sma-maintenance-api/internal/models"
	"github.com/noah-isme/sma-maintenance-api/internal/repository"
	"github.com/noah-isme/sma-maintenance-api/internal/service"
	"github.com/noah-isme/sma-maintenance-api/pkg/cache"
	"github.com/noah-isme/sma-maintenance-api/pkg/config"
	"github.com/noah-isme/sma-maintenance-api/pkg/database"
	"github.com/noah-isme/sma-maintenance-api/pkg/logger"
	"github.com/noah-isme/sma-maintenance-api/pkg/middleware/requestid"
)

type requestStore interface {
	Create(ctx context.Context, req *models.MaintenanceRequest) error
	Get(ctx context.Context, id int64) (*models.MaintenanceRequest, error)
	List(ctx context.Context, filter models.MaintenanceRequestFilter) ([]models.MaintenanceRequest, error)
	ConditionalUpdate(ctx context.Context, id int64, guard repository.RequestGuard, mutate repository.RequestMutator) (*models.RequestChange, error)
}

type userStore interface {
	FindUser(ctx context.Context, id int64) (*models.User, error)
	FindUserByStaffProfile(ctx context.Context, profileID int64) (*models.User, error)
	ListAdmins(ctx context.Context) ([]models.User, error)
}

type notificationStore interface {
	CreateBatch(ctx context.Context, notifications []models.Notification) error
	ListForRecipient(ctx context.Context, userID int64, limit int) ([]models.Notification, error)
}

// application holds the wired engine and the resources it owns.
type application struct {
	cfg    *config.Config
	logger *zap.Logger

	db    *sqlx.DB
	redis *redis.Client

	metrics       *service.MetricsService
	dispatcher    *service.NotificationDispatcher
	lifecycle     *service.LifecycleService
	schedules     *service.ScheduleReactor
	notifications *service.NotificationService
	directory     *service.ActorDirectory

	// memoryUsers is only set for the memory driver, where accounts are seeded in process.
	memoryUsers *repository.MemoryUserStore

	checks []handler.ReadinessCheck
}

func newApplication(ctx context.Context, cfg *config.Config, logr *zap.Logger) (*application, error) {
	app := &application{cfg: cfg, logger: logr, metrics: service.NewMetricsService()}

	var (
		requests requestStore
		users    userStore
		notes    notificationStore
	)
	switch cfg.Store.Driver {
	case config.StoreDriverMemory:
		app.memoryUsers = repository.NewMemoryUserStore()
		app.memoryUsers.SetActiveAdminsOnly(cfg.Notifications.ActiveAdminsOnly)
		requests = repository.NewMemoryRequestStore()
		users = app.memoryUsers
		notes = repository.NewMemoryNotificationStore()
		logr.Warn("using in-memory store; data is lost on restart")
	default:
		db, err := database.NewPostgres(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		app.db = db
		app.checks = append(app.checks, handler.ReadinessCheck{Name: "postgres", Ping: db.PingContext})
		if cfg.Database.RunMigrations {
			if err := migration.Run(ctx, db.DB, logr); err != nil {
				app.close()
				return nil, err
			}
		}
		requests = repository.NewMaintenanceRequestRepository(db)
		users = repository.NewUserRepository(db).WithActiveAdminsOnly(cfg.Notifications.ActiveAdminsOnly)
		notes = repository.NewNotificationRepository(db)
	}

	sinks := []service.NotificationSink{service.NewSink("store", notes.CreateBatch)}
	if cfg.Notifications.RealtimeEnabled {
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, realtime notifications disabled", zap.Error(err))
		} else {
			app.redis = client
			publisher := repository.NewNotificationPublisher(client, cfg.Notifications.ChannelPrefix)
			sinks = append(sinks, service.NewSink("realtime", publisher.PublishBatch))
			app.checks = append(app.checks, handler.ReadinessCheck{Name: "redis", Ping: func(ctx context.Context) error {
				return client.Ping(ctx).Err()
			}})
		}
	}

	app.dispatcher = service.NewNotificationDispatcher(service.DispatcherConfig{
		Workers:    cfg.Notifications.Workers,
		BufferSize: cfg.Notifications.BufferSize,
		MaxRetries: cfg.Notifications.MaxRetries,
		RetryDelay: cfg.Notifications.RetryDelay,
		Logger:     logr.Named("dispatcher"),
		Metrics:    app.metrics,
	}, sinks...)

	validate := validator.New()
	app.directory = service.NewActorDirectory(users, logr)
	router := service.NewNotificationRouter(app.directory, logr.Named("router"))
	app.notifications = service.NewNotificationService(router, app.dispatcher, notes, app.metrics, logr)
	app.lifecycle = service.NewLifecycleService(requests, app.directory, app.notifications, logr.Named("lifecycle"),
		service.WithCompletionPolicy(service.CompletionPolicy{
			AllowFromAnyStatus: cfg.Completion.AllowFromAnyStatus,
			RequireEvidence:    cfg.Completion.RequireEvidence,
		}),
		service.WithLifecycleMetrics(app.metrics),
		service.WithLifecycleValidator(validate),
	)
	app.schedules = service.NewScheduleReactor(requests, app.directory, app.notifications, validate, logr.Named("schedule"))
	return app, nil
}

func (a *application) router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestid.Middleware())
	r.Use(logger.GinMiddleware(a.logger))
	r.Use(middleware.Metrics(a.metrics))
	handler.NewOpsHandler(a.metrics, a.logger, a.checks...).Register(r)
	return r
}

func (a *application) start(ctx context.Context) {
	a.dispatcher.Start(ctx)
}

// close stops delivery first so buffered notifications still reach the stores.
func (a *application) close() {
	if a.dispatcher != nil {
		a.dispatcher.Stop()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("closing redis", zap.Error(err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("closing postgres", zap.Error(err))
		}
	}
}
