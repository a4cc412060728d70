package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/phrazzld/circles-api/internal/domain"
)

// MicrograntFilter narrows a microgrant listing. Zero values match everything.
type MicrograntFilter struct {
	Status  domain.MicrograntStatus
	OwnerID uuid.UUID
	Limit   int
	Offset  int
}

// MicrograntStore persists microgrant applications. Reads fill OwnerName
// from the owner's user record.
type MicrograntStore interface {
	// Create saves a new application. The owner must exist.
	Create(ctx context.Context, grant *domain.Microgrant) error

	// GetByID returns ErrMicrograntNotFound for unknown IDs.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Microgrant, error)

	// List returns applications matching filter, newest first.
	List(ctx context.Context, filter MicrograntFilter) ([]*domain.Microgrant, error)
}
