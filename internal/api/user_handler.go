package api

import (
	"log/slog"
	"net/http"

	"github.com/phrazzld/circles-api/internal/api/shared"
	"github.com/phrazzld/circles-api/internal/platform/logger"
	"github.com/phrazzld/circles-api/internal/service"
)

// UserHandler serves account and profile endpoints.
type UserHandler struct {
	users  service.UserService
	scores service.ScoreService
	logger *slog.Logger
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(users service.UserService, scores service.ScoreService, log *slog.Logger) *UserHandler {
	if log == nil {
		log = slog.Default()
	}
	return &UserHandler{
		users:  users,
		scores: scores,
		logger: log.With(slog.String("component", "user_handler")),
	}
}

// Me handles GET /api/users/me.
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	user, err := h.users.GetUser(r.Context(), userID)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, userToResponse(user))
}

// GetUser handles GET /api/users/{id}. Other users only see public fields.
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	callerID, targetID, ok := handleUserIDAndPathUUID(w, r, "id")
	if !ok {
		return
	}

	user, err := h.users.GetUser(r.Context(), targetID)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	if callerID == targetID {
		shared.RespondWithJSON(w, r, http.StatusOK, userToResponse(user))
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, UserSummary{ID: user.ID, Name: user.Name})
}

// UpdateProfile handles PUT /api/users/me/profile.
func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req FinancialProfileRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	profile, err := req.ToDomain()
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	user, err := h.users.UpdateProfile(r.Context(), userID, profile)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	logger.FromContextOrDefault(r.Context(), h.logger).Debug("financial profile updated",
		slog.String("user_id", userID.String()))
	shared.RespondWithJSON(w, r, http.StatusOK, userToResponse(user))
}

// CreditScore handles POST /api/credit-score. The body may name the caller
// as userId; scoring anyone else is forbidden.
func (h *UserHandler) CreditScore(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req CreditScoreRequest
	if err := shared.DecodeOptionalJSON(w, r, &req); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	if req.UserID != nil && *req.UserID != userID {
		shared.RespondWithErrorAndLog(w, r, http.StatusForbidden,
			"Credit scores are only available for your own profile", nil, shared.WithElevatedLogLevel())
		return
	}

	creditScore, err := h.scores.ScoreForUser(r.Context(), userID)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, CreditScoreResponse{CreditScore: creditScore})
}
