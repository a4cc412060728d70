package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/circles-api/internal/config"
	"github.com/phrazzld/circles-api/internal/domain/score"
	"github.com/phrazzld/circles-api/internal/events"
	"github.com/phrazzld/circles-api/internal/platform/cache"
	"github.com/phrazzld/circles-api/internal/platform/metrics"
	"github.com/phrazzld/circles-api/internal/service"
	"github.com/phrazzld/circles-api/internal/service/auth"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

const (
	amqpDialRetries = 5
	amqpDialDelay   = 2 * time.Second
)

// application holds the shared dependencies and releases them on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger

	db          *sql.DB
	redis       *redis.Client
	amqpClose   func() error
	registry    *prometheus.Registry
	metrics     *metrics.Metrics
	broadcaster *events.Broadcaster
	stores      stores

	jwtService        auth.JWTService
	userService       service.UserService
	scoreService      service.ScoreService
	circleRegistry    service.CircleRegistry
	goalTracker       service.GoalTracker
	micrograntService service.MicrograntService
}

// newApplication builds every dependency. On failure everything opened so
// far is released.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (app *application, err error) {
	app = &application{config: cfg, logger: logger}
	defer func() {
		if err != nil {
			app.cleanup()
			app = nil
		}
	}()

	app.registry = prometheus.NewRegistry()
	app.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	app.metrics = metrics.New(app.registry)

	app.stores, app.db, err = setupStores(ctx, cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	app.broadcaster = events.NewBroadcaster(events.Config{
		Buffer:          cfg.Broadcast.ObserverBuffer,
		DeliveryTimeout: time.Duration(cfg.Broadcast.WriteTimeoutMillis) * time.Millisecond,
	}, logger, app.metrics)

	if cfg.AMQP.Enabled() {
		if err = app.setupAMQP(); err != nil {
			return nil, err
		}
	}

	scoreCache, err := app.setupScoreCache(ctx)
	if err != nil {
		return nil, err
	}

	if err = app.setupServices(scoreCache); err != nil {
		return nil, err
	}

	logger.Info("application initialized")
	return app, nil
}

func (app *application) setupAMQP() error {
	cfg := app.config.AMQP
	ch, closeFn, err := events.DialAMQP(cfg.URL, cfg.Exchange, amqpDialRetries, amqpDialDelay)
	if err != nil {
		return fmt.Errorf("failed to connect to AMQP broker: %w", err)
	}
	app.amqpClose = closeFn

	if _, err := app.broadcaster.Subscribe(events.NewAMQPSink(ch, cfg.Exchange, app.logger)); err != nil {
		return fmt.Errorf("failed to subscribe AMQP sink: %w", err)
	}
	app.logger.Info("circle events republished to AMQP", slog.String("exchange", cfg.Exchange))
	return nil
}

func (app *application) setupScoreCache(ctx context.Context) (cache.ScoreCache, error) {
	cfg := app.config.Redis
	if !cfg.Enabled() {
		return cache.Noop{}, nil
	}

	client, err := cache.Connect(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	app.redis = client
	ttl := time.Duration(cfg.ScoreTTLSeconds) * time.Second
	app.logger.Info("credit score cache enabled", slog.Duration("ttl", ttl))
	return cache.NewRedisScoreCache(client, ttl, app.logger), nil
}

func (app *application) setupServices(scoreCache cache.ScoreCache) error {
	cfg := app.config

	var err error
	app.jwtService, err = auth.NewJWTService(cfg.Auth)
	if err != nil {
		return fmt.Errorf("failed to initialize JWT service: %w", err)
	}

	passwords := auth.NewBcryptVerifier(cfg.Auth.BcryptCost)
	app.userService, err = service.NewUserService(app.stores.users, passwords, passwords, app.logger)
	if err != nil {
		return err
	}

	app.scoreService, err = service.NewScoreService(
		app.stores.users, score.NewDefaultEngine(), scoreCache, app.metrics, app.logger)
	if err != nil {
		return err
	}

	app.circleRegistry, err = service.NewCircleRegistry(
		app.stores.circles,
		app.broadcaster,
		app.metrics,
		service.CircleRegistryConfig{
			MinMembersToActivate: cfg.Circles.MinMembersToActivate,
			LockTimeout:          cfg.Circles.LockTimeout(),
		},
		app.logger,
	)
	if err != nil {
		return err
	}

	app.goalTracker, err = service.NewGoalTracker(
		app.stores.goals,
		service.GoalTrackerConfig{LockTimeout: cfg.Circles.LockTimeout()},
		app.logger,
	)
	if err != nil {
		return err
	}

	app.micrograntService, err = service.NewMicrograntService(app.stores.microgrants, nil, app.logger)
	return err
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (app *application) Run(ctx context.Context) error {
	err := app.serve(ctx, app.setupRouter())
	app.cleanup()
	if err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// cleanup releases resources in reverse order of acquisition.
func (app *application) cleanup() {
	if app.broadcaster != nil {
		app.broadcaster.Close()
	}

	var errs []error
	if app.amqpClose != nil {
		errs = append(errs, app.amqpClose())
	}
	if app.redis != nil {
		errs = append(errs, app.redis.Close())
	}
	if app.db != nil {
		errs = append(errs, app.db.Close())
	}
	if err := errors.Join(errs...); err != nil {
		app.logger.Error("error releasing resources", slog.String("error", err.Error()))
	}
	app.logger.Info("application shutdown completed")
}
