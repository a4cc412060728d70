package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/phrazzld/circles-api/internal/api/shared"
	"github.com/phrazzld/circles-api/internal/domain"
	"github.com/phrazzld/circles-api/internal/platform/logger"
	"github.com/phrazzld/circles-api/internal/service"
	"github.com/phrazzld/circles-api/internal/store"
)

type circleTransition func(ctx context.Context, cmd service.CircleCommand) (*domain.LendingCircle, error)

// CircleHandler serves the lending circle endpoints.
type CircleHandler struct {
	registry service.CircleRegistry
	logger   *slog.Logger
}

// NewCircleHandler creates a new CircleHandler.
func NewCircleHandler(registry service.CircleRegistry, log *slog.Logger) *CircleHandler {
	if log == nil {
		log = slog.Default()
	}
	return &CircleHandler{
		registry: registry,
		logger:   log.With(slog.String("component", "circle_handler")),
	}
}

// List handles GET /api/lending-circles. Supported query parameters are
// status, member (a user ID or "me"), limit and offset.
func (h *CircleHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	filter, err := parseCircleFilter(r, userID)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	circles, err := h.registry.List(r.Context(), filter)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	if circles == nil {
		circles = []*domain.LendingCircle{}
	}

	limit := filter.Limit
	if limit <= 0 || limit > store.DefaultListLimit {
		limit = store.DefaultListLimit
	}
	shared.RespondWithJSON(w, r, http.StatusOK, CircleListResponse{
		Circles: circles,
		Limit:   limit,
		Offset:  filter.Offset,
	})
}

// Create handles POST /api/lending-circles.
func (h *CircleHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req CreateCircleRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	circle, err := h.registry.Create(r.Context(), userID, service.CreateCircleInput{
		Name:               req.Name,
		TotalAmount:        *req.TotalAmount,
		ContributionAmount: *req.ContributionAmount,
		DurationMonths:     req.DurationMonths,
	})
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	logger.FromContextOrDefault(r.Context(), h.logger).Info("lending circle created",
		slog.String("circle_id", circle.ID.String()))
	shared.RespondWithJSON(w, r, http.StatusCreated, circle)
}

// Get handles GET /api/lending-circles/{id}.
func (h *CircleHandler) Get(w http.ResponseWriter, r *http.Request) {
	_, circleID, ok := handleUserIDAndPathUUID(w, r, "id")
	if !ok {
		return
	}

	circle, err := h.registry.Get(r.Context(), circleID)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, circle)
}

// Join handles POST /api/lending-circles/{id}/join.
func (h *CircleHandler) Join(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.registry.Join)
}

// Activate handles POST /api/lending-circles/{id}/activate.
func (h *CircleHandler) Activate(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.registry.Activate)
}

// Complete handles POST /api/lending-circles/{id}/complete.
func (h *CircleHandler) Complete(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.registry.Complete)
}

// Cancel handles POST /api/lending-circles/{id}/cancel.
func (h *CircleHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.registry.Cancel)
}

// Contribute handles POST /api/lending-circles/{id}/contributions.
func (h *CircleHandler) Contribute(w http.ResponseWriter, r *http.Request) {
	userID, circleID, ok := handleUserIDAndPathUUID(w, r, "id")
	if !ok {
		return
	}

	var req ContributionRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	contribution, err := h.registry.Contribute(r.Context(), service.CircleCommand{
		CircleID:        circleID,
		ActorID:         userID,
		ExpectedVersion: req.ExpectedVersion,
	}, *req.Amount)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusCreated, contribution)
}

// ListContributions handles GET /api/lending-circles/{id}/contributions.
func (h *CircleHandler) ListContributions(w http.ResponseWriter, r *http.Request) {
	_, circleID, ok := handleUserIDAndPathUUID(w, r, "id")
	if !ok {
		return
	}

	contributions, err := h.registry.ListContributions(r.Context(), circleID)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	if contributions == nil {
		contributions = []*domain.Contribution{}
	}
	shared.RespondWithJSON(w, r, http.StatusOK, ContributionListResponse{Contributions: contributions})
}

func (h *CircleHandler) transition(w http.ResponseWriter, r *http.Request, apply circleTransition) {
	userID, circleID, ok := handleUserIDAndPathUUID(w, r, "id")
	if !ok {
		return
	}

	var req CircleTransitionRequest
	if err := shared.DecodeOptionalJSON(w, r, &req); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	circle, err := apply(r.Context(), service.CircleCommand{
		CircleID:        circleID,
		ActorID:         userID,
		ExpectedVersion: req.ExpectedVersion,
	})
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, circle)
}

func parseCircleFilter(r *http.Request, callerID uuid.UUID) (store.CircleFilter, error) {
	q := r.URL.Query()
	filter := store.CircleFilter{Status: domain.CircleStatus(q.Get("status"))}

	switch member := q.Get("member"); member {
	case "":
	case "me":
		filter.MemberID = callerID
	default:
		id, err := uuid.Parse(member)
		if err != nil {
			return filter, domain.NewValidationError("member", "has invalid format", domain.ErrInvalidID)
		}
		filter.MemberID = id
	}

	var err error
	if filter.Limit, err = parseNonNegative(q.Get("limit"), "limit"); err != nil {
		return filter, err
	}
	if filter.Offset, err = parseNonNegative(q.Get("offset"), "offset"); err != nil {
		return filter, err
	}
	return filter, nil
}

func parseNonNegative(raw, field string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, domain.NewValidationError(field, "must be a non-negative integer", nil)
	}
	return n, nil
}
