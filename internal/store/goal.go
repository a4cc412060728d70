package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/phrazzld/circles-api/internal/domain"
)

// GoalStore defines the interface for financial goal persistence.
type GoalStore interface {
	// Create saves a new goal.
	Create(ctx context.Context, goal *domain.FinancialGoal) error

	// GetByID retrieves a goal.
	// Returns ErrGoalNotFound if the goal does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.FinancialGoal, error)

	// ListByUser returns all goals owned by userID, ordered by deadline.
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.FinancialGoal, error)

	// Update persists the goal's mutable fields.
	// Returns ErrGoalNotFound if the goal does not exist.
	Update(ctx context.Context, goal *domain.FinancialGoal) error
}
