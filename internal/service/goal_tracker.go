package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/circles-api/internal/domain"
	"github.com/phrazzld/circles-api/internal/platform/logger"
	"github.com/phrazzld/circles-api/internal/store"
	"github.com/shopspring/decimal"
)

const goalTrackerName = "goal_tracker"

// CreateGoalInput carries the fields needed to create a financial goal.
type CreateGoalInput struct {
	Name         string
	TargetAmount decimal.Decimal
	Deadline     time.Time
	Category     domain.GoalCategory
}

// GoalTracker manages financial goals. Only a goal's owner may read or
// mutate it.
type GoalTracker interface {
	// CreateGoal creates a goal owned by owner with a zero current amount.
	CreateGoal(ctx context.Context, owner uuid.UUID, input CreateGoalInput) (*domain.FinancialGoal, error)

	// ApplyContribution adds amount to the goal. Overshooting the target is allowed.
	ApplyContribution(ctx context.Context, caller, goalID uuid.UUID, amount decimal.Decimal) (*domain.FinancialGoal, error)

	// UpdateGoal changes the goal's descriptive fields.
	UpdateGoal(ctx context.Context, caller, goalID uuid.UUID, changes domain.GoalChanges) (*domain.FinancialGoal, error)

	// GetGoal returns one goal.
	GetGoal(ctx context.Context, caller, goalID uuid.UUID) (*domain.FinancialGoal, error)

	// ListGoals returns owner's goals. caller must be owner.
	ListGoals(ctx context.Context, caller, owner uuid.UUID) ([]*domain.FinancialGoal, error)

	// ProgressRatio returns current/target for goal.
	ProgressRatio(goal *domain.FinancialGoal) (float64, error)
}

// GoalTrackerConfig tunes the tracker. Zero fields take defaults.
type GoalTrackerConfig struct {
	// LockTimeout bounds the wait for a goal's lock. Defaults to DefaultLockTimeout.
	LockTimeout time.Duration
	Now         func() time.Time
}

type goalTracker struct {
	goals       store.GoalStore
	locks       *keyedMutex
	lockTimeout time.Duration
	now         func() time.Time
	logger      *slog.Logger
}

var _ GoalTracker = (*goalTracker)(nil)

// NewGoalTracker creates a GoalTracker.
func NewGoalTracker(goals store.GoalStore, cfg GoalTrackerConfig, log *slog.Logger) (GoalTracker, error) {
	if goals == nil {
		return nil, &ServiceError{Service: goalTrackerName, Operation: "create_service", Message: "goal store cannot be nil"}
	}
	if log == nil {
		return nil, &ServiceError{Service: goalTrackerName, Operation: "create_service", Message: "logger cannot be nil"}
	}
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = DefaultLockTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &goalTracker{
		goals:       goals,
		locks:       newKeyedMutex(),
		lockTimeout: cfg.LockTimeout,
		now:         cfg.Now,
		logger:      log.With(slog.String("component", goalTrackerName)),
	}, nil
}

// CreateGoal implements GoalTracker.
func (t *goalTracker) CreateGoal(
	ctx context.Context,
	owner uuid.UUID,
	input CreateGoalInput,
) (*domain.FinancialGoal, error) {
	const op = "create_goal"
	log := logger.FromContextOrDefault(ctx, t.logger)

	goal, err := domain.NewFinancialGoal(owner, input.Name, input.TargetAmount, input.Deadline, input.Category, t.now())
	if err != nil {
		return nil, newServiceError(goalTrackerName, op, "invalid goal", err)
	}
	if err := t.goals.Create(ctx, goal); err != nil {
		log.Error("failed to save goal",
			slog.String("error", err.Error()),
			slog.String("user_id", owner.String()))
		return nil, newServiceError(goalTrackerName, op, "failed to save goal", err)
	}

	log.Info("financial goal created",
		slog.String("goal_id", goal.ID.String()),
		slog.String("user_id", owner.String()))
	return goal, nil
}

// ApplyContribution implements GoalTracker.
func (t *goalTracker) ApplyContribution(
	ctx context.Context,
	caller, goalID uuid.UUID,
	amount decimal.Decimal,
) (*domain.FinancialGoal, error) {
	const op = "apply_contribution"
	return t.update(ctx, op, caller, goalID, func(g *domain.FinancialGoal, now time.Time) error {
		return g.ApplyContribution(caller, amount, now)
	})
}

// UpdateGoal implements GoalTracker.
func (t *goalTracker) UpdateGoal(
	ctx context.Context,
	caller, goalID uuid.UUID,
	changes domain.GoalChanges,
) (*domain.FinancialGoal, error) {
	const op = "update_goal"
	return t.update(ctx, op, caller, goalID, func(g *domain.FinancialGoal, now time.Time) error {
		return g.Apply(caller, changes, now)
	})
}

// GetGoal implements GoalTracker.
func (t *goalTracker) GetGoal(ctx context.Context, caller, goalID uuid.UUID) (*domain.FinancialGoal, error) {
	const op = "get_goal"
	goal, err := t.goals.GetByID(ctx, goalID)
	if err != nil {
		return nil, newServiceError(goalTrackerName, op, "failed to load goal", err)
	}
	if !goal.IsOwnedBy(caller) {
		return nil, newServiceError(goalTrackerName, op, "not permitted",
			fmt.Errorf("%w: goal belongs to another user", domain.ErrUnauthorized))
	}
	return goal, nil
}

// ListGoals implements GoalTracker.
func (t *goalTracker) ListGoals(ctx context.Context, caller, owner uuid.UUID) ([]*domain.FinancialGoal, error) {
	const op = "list_goals"
	if caller != owner {
		return nil, newServiceError(goalTrackerName, op, "not permitted",
			fmt.Errorf("%w: cannot list another user's goals", domain.ErrUnauthorized))
	}
	goals, err := t.goals.ListByUser(ctx, owner)
	if err != nil {
		return nil, newServiceError(goalTrackerName, op, "failed to list goals", err)
	}
	return goals, nil
}

// ProgressRatio implements GoalTracker.
func (t *goalTracker) ProgressRatio(goal *domain.FinancialGoal) (float64, error) {
	return goal.ProgressRatio()
}

// update applies fn to the stored goal under the goal's lock so concurrent
// contributions from the owner are not lost.
func (t *goalTracker) update(
	ctx context.Context,
	op string,
	caller, goalID uuid.UUID,
	fn func(g *domain.FinancialGoal, now time.Time) error,
) (*domain.FinancialGoal, error) {
	log := logger.FromContextOrDefault(ctx, t.logger).With(
		slog.String("goal_id", goalID.String()),
		slog.String("user_id", caller.String()))

	unlock, err := t.locks.LockWithin(ctx, goalID, t.lockTimeout)
	if err != nil {
		log.Warn("goal lock not acquired", slog.String("error", err.Error()))
		return nil, newServiceError(goalTrackerName, op, "failed to acquire goal lock", err)
	}
	defer unlock()

	goal, err := t.goals.GetByID(ctx, goalID)
	if err != nil {
		return nil, newServiceError(goalTrackerName, op, "failed to load goal", err)
	}
	if err := fn(goal, t.now()); err != nil {
		return nil, newServiceError(goalTrackerName, op, "update rejected", err)
	}
	if err := t.goals.Update(ctx, goal); err != nil {
		log.Error("failed to save goal", slog.String("error", err.Error()))
		return nil, newServiceError(goalTrackerName, op, "failed to save goal", err)
	}

	log.Debug("financial goal updated", slog.String("operation", op))
	return goal, nil
}
