package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/circles-api/internal/api"
	apiMiddleware "github.com/phrazzld/circles-api/internal/api/middleware"
	"github.com/phrazzld/circles-api/internal/api/shared"
)

const healthCheckTimeout = 2 * time.Second

// routes bundles the handler tree with the hooks the server needs on shutdown.
type routes struct {
	handler    http.Handler
	onShutdown func()
}

// setupRouter wires every handler onto a chi router.
func (app *application) setupRouter() routes {
	cfg := app.config

	authHandler := api.NewAuthHandler(
		app.userService,
		app.jwtService,
		time.Duration(cfg.Auth.TokenLifetimeMinutes)*time.Minute,
		app.logger,
	)
	userHandler := api.NewUserHandler(app.userService, app.scoreService, app.logger)
	circleHandler := api.NewCircleHandler(app.circleRegistry, app.logger)
	goalHandler := api.NewGoalHandler(app.goalTracker, app.logger)
	micrograntHandler := api.NewMicrograntHandler(app.micrograntService, app.logger)
	eventsHandler := api.NewEventsHandler(
		app.broadcaster,
		time.Duration(cfg.Broadcast.WriteTimeoutMillis)*time.Millisecond,
		time.Duration(cfg.Broadcast.PingIntervalSeconds)*time.Second,
		app.logger,
	)
	authMiddleware := apiMiddleware.NewAuthMiddleware(app.jwtService)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.Trace(app.logger))
	r.Use(app.metrics.Middleware)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", authHandler.Register)
		r.Post("/auth/login", authHandler.Login)
		r.Post("/auth/refresh", authHandler.RefreshToken)

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)

			r.Get("/auth/check", authHandler.Check)

			r.Get("/users/me", userHandler.Me)
			r.Put("/users/me/profile", userHandler.UpdateProfile)
			r.Get("/users/{id}", userHandler.GetUser)
			r.Post("/credit-score", userHandler.CreditScore)

			r.Route("/lending-circles", func(r chi.Router) {
				r.Get("/", circleHandler.List)
				r.Post("/", circleHandler.Create)
				r.Get("/events", eventsHandler.Stream)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", circleHandler.Get)
					r.Post("/join", circleHandler.Join)
					r.Post("/activate", circleHandler.Activate)
					r.Post("/complete", circleHandler.Complete)
					r.Post("/cancel", circleHandler.Cancel)
					r.Get("/contributions", circleHandler.ListContributions)
					r.Post("/contributions", circleHandler.Contribute)
				})
			})

			r.Route("/financial-goals", func(r chi.Router) {
				r.Post("/", goalHandler.Create)
				r.Get("/user/{userId}", goalHandler.ListByUser)
				r.Get("/{id}", goalHandler.Get)
				r.Put("/{id}", goalHandler.Update)
				r.Post("/{id}/contributions", goalHandler.Contribute)
			})

			r.Route("/microgrants", func(r chi.Router) {
				r.Get("/", micrograntHandler.List)
				r.Post("/", micrograntHandler.Create)
				r.Get("/{id}", micrograntHandler.Get)
			})
		})
	})

	r.Get("/health", app.health)
	r.Method(http.MethodGet, "/metrics", app.metrics.Handler())

	return routes{handler: r, onShutdown: eventsHandler.Shutdown}
}

type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Cache    string `json:"cache,omitempty"`
}

// health reports liveness together with the state of external dependencies.
func (app *application) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	resp := healthResponse{Status: "ok", Database: app.config.Database.Driver}
	status := http.StatusOK

	if app.db != nil {
		if err := app.db.PingContext(ctx); err != nil {
			app.logger.Warn("health check: database unreachable", slog.String("error", err.Error()))
			resp.Status, resp.Database = "degraded", "unreachable"
			status = http.StatusServiceUnavailable
		}
	}
	if app.redis != nil {
		resp.Cache = "ok"
		if err := app.redis.Ping(ctx).Err(); err != nil {
			// Scores are computed without the cache, so this does not fail the check.
			app.logger.Warn("health check: redis unreachable", slog.String("error", err.Error()))
			resp.Cache = "unreachable"
		}
	}
	shared.RespondWithJSON(w, r, status, resp)
}
