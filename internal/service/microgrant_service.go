package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/circles-api/internal/domain"
	"github.com/phrazzld/circles-api/internal/platform/logger"
	"github.com/phrazzld/circles-api/internal/store"
	"github.com/shopspring/decimal"
)

const micrograntServiceName = "microgrant_service"

// CreateMicrograntInput carries the fields of a new grant application.
type CreateMicrograntInput struct {
	BusinessName    string
	Description     string
	AmountRequested decimal.Decimal
}

// MicrograntService runs the microgrant marketplace. Any authenticated user
// may apply and browse; applications are owned by the user who created them.
type MicrograntService interface {
	// Create lists a Pending application owned by owner.
	Create(ctx context.Context, owner uuid.UUID, input CreateMicrograntInput) (*domain.Microgrant, error)

	// Get returns one application.
	Get(ctx context.Context, id uuid.UUID) (*domain.Microgrant, error)

	// List returns applications newest first.
	List(ctx context.Context, filter store.MicrograntFilter) ([]*domain.Microgrant, error)
}

type micrograntService struct {
	grants store.MicrograntStore
	now    func() time.Time
	logger *slog.Logger
}

var _ MicrograntService = (*micrograntService)(nil)

// NewMicrograntService creates a MicrograntService. A nil now uses time.Now.
func NewMicrograntService(grants store.MicrograntStore, now func() time.Time, log *slog.Logger) (MicrograntService, error) {
	if grants == nil {
		return nil, &ServiceError{Service: micrograntServiceName, Operation: "create_service", Message: "microgrant store cannot be nil"}
	}
	if log == nil {
		return nil, &ServiceError{Service: micrograntServiceName, Operation: "create_service", Message: "logger cannot be nil"}
	}
	if now == nil {
		now = time.Now
	}
	return &micrograntService{
		grants: grants,
		now:    now,
		logger: log.With(slog.String("component", micrograntServiceName)),
	}, nil
}

// Create implements MicrograntService.
func (s *micrograntService) Create(
	ctx context.Context,
	owner uuid.UUID,
	input CreateMicrograntInput,
) (*domain.Microgrant, error) {
	const op = "create"
	log := logger.FromContextOrDefault(ctx, s.logger)

	grant, err := domain.NewMicrogrant(owner, input.BusinessName, input.Description, input.AmountRequested, s.now())
	if err != nil {
		return nil, newServiceError(micrograntServiceName, op, "invalid microgrant", err)
	}
	if err := s.grants.Create(ctx, grant); err != nil {
		if errors.Is(err, store.ErrInvalidEntity) {
			err = fmt.Errorf("%w: owner account: %w", domain.ErrNotFound, err)
		}
		log.Error("failed to save microgrant",
			slog.String("error", err.Error()),
			slog.String("user_id", owner.String()))
		return nil, newServiceError(micrograntServiceName, op, "failed to save microgrant", err)
	}

	// Re-read so the response carries the owner's name.
	saved, err := s.grants.GetByID(ctx, grant.ID)
	if err != nil {
		log.Warn("created microgrant not readable",
			slog.String("error", err.Error()),
			slog.String("microgrant_id", grant.ID.String()))
		saved = grant
	}

	log.Info("microgrant created",
		slog.String("microgrant_id", grant.ID.String()),
		slog.String("user_id", owner.String()))
	return saved, nil
}

// Get implements MicrograntService.
func (s *micrograntService) Get(ctx context.Context, id uuid.UUID) (*domain.Microgrant, error) {
	grant, err := s.grants.GetByID(ctx, id)
	if err != nil {
		return nil, newServiceError(micrograntServiceName, "get", "failed to load microgrant", err)
	}
	return grant, nil
}

// List implements MicrograntService.
func (s *micrograntService) List(ctx context.Context, filter store.MicrograntFilter) ([]*domain.Microgrant, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, newServiceError(micrograntServiceName, "list", "invalid filter",
			domain.NewValidationError("status", "is unknown", nil))
	}
	if filter.Limit <= 0 || filter.Limit > store.DefaultListLimit {
		filter.Limit = store.DefaultListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	grants, err := s.grants.List(ctx, filter)
	if err != nil {
		return nil, newServiceError(micrograntServiceName, "list", "failed to list microgrants", err)
	}
	return grants, nil
}
