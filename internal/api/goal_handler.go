package api

import (
	"log/slog"
	"net/http"

	"github.com/phrazzld/circles-api/internal/api/shared"
	"github.com/phrazzld/circles-api/internal/domain"
	"github.com/phrazzld/circles-api/internal/platform/logger"
	"github.com/phrazzld/circles-api/internal/service"
)

// GoalHandler serves the financial goal endpoints. Goals are private to
// their owner.
type GoalHandler struct {
	tracker service.GoalTracker
	logger  *slog.Logger
}

// NewGoalHandler creates a new GoalHandler.
func NewGoalHandler(tracker service.GoalTracker, log *slog.Logger) *GoalHandler {
	if log == nil {
		log = slog.Default()
	}
	return &GoalHandler{
		tracker: tracker,
		logger:  log.With(slog.String("component", "goal_handler")),
	}
}

// ListByUser handles GET /api/financial-goals/user/{userId}.
func (h *GoalHandler) ListByUser(w http.ResponseWriter, r *http.Request) {
	callerID, ownerID, ok := handleUserIDAndPathUUID(w, r, "userId")
	if !ok {
		return
	}

	goals, err := h.tracker.ListGoals(r.Context(), callerID, ownerID)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	resp := GoalListResponse{Goals: make([]GoalResponse, 0, len(goals))}
	for _, g := range goals {
		resp.Goals = append(resp.Goals, h.goalToResponse(g))
	}
	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}

// Create handles POST /api/financial-goals.
func (h *GoalHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req CreateGoalRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	goal, err := h.tracker.CreateGoal(r.Context(), userID, service.CreateGoalInput{
		Name:         req.Name,
		TargetAmount: *req.TargetAmount,
		Deadline:     req.Deadline,
		Category:     domain.GoalCategory(req.Category),
	})
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	logger.FromContextOrDefault(r.Context(), h.logger).Info("financial goal created",
		slog.String("goal_id", goal.ID.String()))
	shared.RespondWithJSON(w, r, http.StatusCreated, h.goalToResponse(goal))
}

// Get handles GET /api/financial-goals/{id}.
func (h *GoalHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, goalID, ok := handleUserIDAndPathUUID(w, r, "id")
	if !ok {
		return
	}

	goal, err := h.tracker.GetGoal(r.Context(), userID, goalID)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, h.goalToResponse(goal))
}

// Update handles PUT /api/financial-goals/{id}.
func (h *GoalHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, goalID, ok := handleUserIDAndPathUUID(w, r, "id")
	if !ok {
		return
	}

	var req UpdateGoalRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	goal, err := h.tracker.UpdateGoal(r.Context(), userID, goalID, req.ToChanges())
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, h.goalToResponse(goal))
}

// Contribute handles POST /api/financial-goals/{id}/contributions.
func (h *GoalHandler) Contribute(w http.ResponseWriter, r *http.Request) {
	userID, goalID, ok := handleUserIDAndPathUUID(w, r, "id")
	if !ok {
		return
	}

	var req GoalContributionRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	goal, err := h.tracker.ApplyContribution(r.Context(), userID, goalID, *req.Amount)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, h.goalToResponse(goal))
}

func (h *GoalHandler) goalToResponse(goal *domain.FinancialGoal) GoalResponse {
	resp := GoalResponse{FinancialGoal: goal}
	if ratio, err := h.tracker.ProgressRatio(goal); err == nil {
		resp.Progress = &ratio
	}
	return resp
}
