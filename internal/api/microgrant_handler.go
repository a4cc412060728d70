package api

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/phrazzld/circles-api/internal/api/shared"
	"github.com/phrazzld/circles-api/internal/domain"
	"github.com/phrazzld/circles-api/internal/platform/logger"
	"github.com/phrazzld/circles-api/internal/service"
	"github.com/phrazzld/circles-api/internal/store"
)

// MicrograntHandler serves the microgrant marketplace endpoints.
type MicrograntHandler struct {
	grants service.MicrograntService
	logger *slog.Logger
}

// NewMicrograntHandler creates a new MicrograntHandler.
func NewMicrograntHandler(grants service.MicrograntService, log *slog.Logger) *MicrograntHandler {
	if log == nil {
		log = slog.Default()
	}
	return &MicrograntHandler{
		grants: grants,
		logger: log.With(slog.String("component", "microgrant_handler")),
	}
}

// List handles GET /api/microgrants. Supported query parameters are status,
// owner (a user ID or "me"), limit and offset.
func (h *MicrograntHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	filter, err := parseMicrograntFilter(r, userID)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	grants, err := h.grants.List(r.Context(), filter)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	if grants == nil {
		grants = []*domain.Microgrant{}
	}

	limit := filter.Limit
	if limit <= 0 || limit > store.DefaultListLimit {
		limit = store.DefaultListLimit
	}
	shared.RespondWithJSON(w, r, http.StatusOK, MicrograntListResponse{
		Microgrants: grants,
		Limit:       limit,
		Offset:      filter.Offset,
	})
}

// Create handles POST /api/microgrants. The caller becomes the owner.
func (h *MicrograntHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req CreateMicrograntRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	grant, err := h.grants.Create(r.Context(), userID, service.CreateMicrograntInput{
		BusinessName:    req.BusinessName,
		Description:     req.Description,
		AmountRequested: *req.AmountRequested,
	})
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	logger.FromContextOrDefault(r.Context(), h.logger).Info("microgrant created",
		slog.String("microgrant_id", grant.ID.String()))
	shared.RespondWithJSON(w, r, http.StatusCreated, grant)
}

// Get handles GET /api/microgrants/{id}.
func (h *MicrograntHandler) Get(w http.ResponseWriter, r *http.Request) {
	_, grantID, ok := handleUserIDAndPathUUID(w, r, "id")
	if !ok {
		return
	}

	grant, err := h.grants.Get(r.Context(), grantID)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, grant)
}

func parseMicrograntFilter(r *http.Request, callerID uuid.UUID) (store.MicrograntFilter, error) {
	q := r.URL.Query()
	filter := store.MicrograntFilter{Status: domain.MicrograntStatus(q.Get("status"))}

	switch owner := q.Get("owner"); owner {
	case "":
	case "me":
		filter.OwnerID = callerID
	default:
		id, err := uuid.Parse(owner)
		if err != nil {
			return filter, domain.NewValidationError("owner", "has invalid format", domain.ErrInvalidID)
		}
		filter.OwnerID = id
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
