package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	apiMiddleware "github.com/phrazzld/circles-api/internal/api/middleware"
	"github.com/phrazzld/circles-api/internal/config"
	"github.com/phrazzld/circles-api/internal/domain/score"
	"github.com/phrazzld/circles-api/internal/events"
	"github.com/phrazzld/circles-api/internal/platform/memory"
	"github.com/phrazzld/circles-api/internal/service"
	"github.com/phrazzld/circles-api/internal/service/auth"
	"github.com/stretchr/testify/require"
)

const testJWTSecret = "test-secret-that-is-at-least-32-characters"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// testAPI is the full handler tree over in-memory stores.
type testAPI struct {
	router      http.Handler
	jwt         auth.JWTService
	broadcaster *events.Broadcaster
	clock       *fakeClock
	events      *EventsHandler
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	log := discardLogger()
	mem := memory.New()
	clock := &fakeClock{now: time.Now().UTC()}

	jwtService, err := auth.NewJWTService(config.AuthConfig{
		JWTSecret:                   testJWTSecret,
		TokenLifetimeMinutes:        60,
		RefreshTokenLifetimeMinutes: 120,
	})
	require.NoError(t, err)

	passwords := auth.NewBcryptVerifier(4)
	users, err := service.NewUserService(mem.Users(), passwords, passwords, log)
	require.NoError(t, err)
	scores, err := service.NewScoreService(mem.Users(), score.NewDefaultEngine(), nil, nil, log)
	require.NoError(t, err)

	broadcaster := events.NewBroadcaster(events.Config{}, log, nil)
	t.Cleanup(broadcaster.Close)

	registry, err := service.NewCircleRegistry(mem.Circles(), broadcaster, nil, service.CircleRegistryConfig{
		MinMembersToActivate: 2,
		Now:                  clock.Now,
	}, log)
	require.NoError(t, err)
	goals, err := service.NewGoalTracker(mem.Goals(), service.GoalTrackerConfig{Now: clock.Now}, log)
	require.NoError(t, err)
	grants, err := service.NewMicrograntService(mem.Microgrants(), clock.Now, log)
	require.NoError(t, err)

	authHandler := NewAuthHandler(users, jwtService, time.Hour, log)
	userHandler := NewUserHandler(users, scores, log)
	circleHandler := NewCircleHandler(registry, log)
	goalHandler := NewGoalHandler(goals, log)
	micrograntHandler := NewMicrograntHandler(grants, log)
	eventsHandler := NewEventsHandler(broadcaster, time.Second, time.Second, log)
	t.Cleanup(eventsHandler.Shutdown)

	r := chi.NewRouter()
	r.Use(apiMiddleware.Trace(log))
	r.Post("/api/auth/register", authHandler.Register)
	r.Post("/api/auth/login", authHandler.Login)
	r.Post("/api/auth/refresh", authHandler.RefreshToken)
	r.Group(func(r chi.Router) {
		r.Use(apiMiddleware.NewAuthMiddleware(jwtService).Authenticate)
		r.Get("/api/auth/check", authHandler.Check)
		r.Get("/api/users/me", userHandler.Me)
		r.Put("/api/users/me/profile", userHandler.UpdateProfile)
		r.Get("/api/users/{id}", userHandler.GetUser)
		r.Post("/api/credit-score", userHandler.CreditScore)
		r.Get("/api/lending-circles", circleHandler.List)
		r.Post("/api/lending-circles", circleHandler.Create)
		r.Get("/api/lending-circles/events", eventsHandler.Stream)
		r.Get("/api/lending-circles/{id}", circleHandler.Get)
		r.Post("/api/lending-circles/{id}/join", circleHandler.Join)
		r.Post("/api/lending-circles/{id}/activate", circleHandler.Activate)
		r.Post("/api/lending-circles/{id}/complete", circleHandler.Complete)
		r.Post("/api/lending-circles/{id}/cancel", circleHandler.Cancel)
		r.Get("/api/lending-circles/{id}/contributions", circleHandler.ListContributions)
		r.Post("/api/lending-circles/{id}/contributions", circleHandler.Contribute)
		r.Post("/api/financial-goals", goalHandler.Create)
		r.Get("/api/financial-goals/user/{userId}", goalHandler.ListByUser)
		r.Get("/api/financial-goals/{id}", goalHandler.Get)
		r.Put("/api/financial-goals/{id}", goalHandler.Update)
		r.Post("/api/financial-goals/{id}/contributions", goalHandler.Contribute)
		r.Get("/api/microgrants", micrograntHandler.List)
		r.Post("/api/microgrants", micrograntHandler.Create)
		r.Get("/api/microgrants/{id}", micrograntHandler.Get)
	})

	return &testAPI{
		router:      r,
		jwt:         jwtService,
		broadcaster: broadcaster,
		clock:       clock,
		events:      eventsHandler,
	}
}

// do sends body (a string is sent verbatim, anything else is JSON encoded).
func (a *testAPI) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	a.router.ServeHTTP(rr, req)
	return rr
}

type testUser struct {
	ID           uuid.UUID
	Token        string
	RefreshToken string
}

func (a *testAPI) register(t *testing.T, name, email string) testUser {
	t.Helper()
	rr := a.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"name":     name,
		"email":    email,
		"password": "password123",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var resp AuthResponse
	decodeBody(t, rr, &resp)
	require.NotNil(t, resp.User)
	return testUser{ID: resp.User.ID, Token: resp.AccessToken, RefreshToken: resp.RefreshToken}
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), v), rr.Body.String())
}

func errorMessage(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Error   string `json:"error"`
		TraceID string `json:"trace_id"`
	}
	decodeBody(t, rr, &resp)
	return resp.Error
}
