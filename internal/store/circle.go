package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/phrazzld/circles-api/internal/domain"
)

// DefaultListLimit bounds list queries that do not specify a limit.
const DefaultListLimit = 50

// CircleFilter narrows a circle listing. Zero values match everything.
type CircleFilter struct {
	Status   domain.CircleStatus
	MemberID uuid.UUID
	Limit    int
	Offset   int
}

// CircleStore defines the interface for lending circle persistence.
//
// Implementations must be strongly consistent per circle ID: a GetByID that
// follows a successful Update observes that update.
type CircleStore interface {
	// Create saves a new circle together with its initial members.
	Create(ctx context.Context, circle *domain.LendingCircle) error

	// GetByID retrieves a circle and its members in join order.
	// Returns ErrCircleNotFound if the circle does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.LendingCircle, error)

	// List returns circles matching filter, newest first.
	List(ctx context.Context, filter CircleFilter) ([]*domain.LendingCircle, error)

	// Update persists circle only if the stored version equals expectedVersion.
	// Returns ErrConflict when the stored version differs and ErrCircleNotFound
	// when the circle does not exist.
	Update(ctx context.Context, circle *domain.LendingCircle, expectedVersion int64) error

	// AddContribution records a contribution.
	// Returns ErrContributionExists if the member already paid for the period.
	AddContribution(ctx context.Context, contribution *domain.Contribution) error

	// ListContributions returns a circle's contributions ordered by period then time.
	ListContributions(ctx context.Context, circleID uuid.UUID) ([]*domain.Contribution, error)
}
