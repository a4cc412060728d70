package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/circles-api/internal/domain"
	"github.com/phrazzld/circles-api/internal/events"
	"github.com/phrazzld/circles-api/internal/platform/logger"
	"github.com/phrazzld/circles-api/internal/store"
	"github.com/shopspring/decimal"
)

const circleRegistryName = "circle_registry"

// Defaults for CircleRegistryConfig.
const (
	DefaultMinMembersToActivate = 2
	DefaultLockTimeout          = 5 * time.Second
)

// CreateCircleInput carries the fields needed to create a lending circle.
type CreateCircleInput struct {
	Name               string
	TotalAmount        decimal.Decimal
	ContributionAmount decimal.Decimal
	DurationMonths     int
}

// CircleCommand identifies a mutation of an existing circle.
type CircleCommand struct {
	CircleID uuid.UUID
	ActorID  uuid.UUID
	// ExpectedVersion is the circle version the caller observed. When non-zero
	// the command fails with domain.ErrInvalidTransition if the circle has
	// changed since. Activate and Cancel require it.
	ExpectedVersion int64
}

// CircleRegistry owns every lending circle mutation.
type CircleRegistry interface {
	// Create opens a new circle with the creator as its only member.
	Create(ctx context.Context, creatorID uuid.UUID, input CreateCircleInput) (*domain.LendingCircle, error)

	// Join adds the actor to an Open circle.
	Join(ctx context.Context, cmd CircleCommand) (*domain.LendingCircle, error)

	// Activate moves an Open circle to Active. Only the creator may activate,
	// and cmd must carry the observed ExpectedVersion.
	Activate(ctx context.Context, cmd CircleCommand) (*domain.LendingCircle, error)

	// Contribute records the actor's payment for the current period.
	Contribute(ctx context.Context, cmd CircleCommand, amount decimal.Decimal) (*domain.Contribution, error)

	// Complete moves an Active circle whose duration elapsed to Completed.
	// Only the creator may complete.
	Complete(ctx context.Context, cmd CircleCommand) (*domain.LendingCircle, error)

	// Cancel moves an Open or Active circle to Cancelled. Only the creator may
	// cancel, and cmd must carry the observed ExpectedVersion.
	Cancel(ctx context.Context, cmd CircleCommand) (*domain.LendingCircle, error)

	// Get returns the current snapshot of a circle.
	Get(ctx context.Context, circleID uuid.UUID) (*domain.LendingCircle, error)

	// List returns circles matching filter.
	List(ctx context.Context, filter store.CircleFilter) ([]*domain.LendingCircle, error)

	// ListContributions returns the contributions recorded for a circle.
	ListContributions(ctx context.Context, circleID uuid.UUID) ([]*domain.Contribution, error)
}

// CircleMetrics records registry outcomes.
type CircleMetrics interface {
	CircleOperation(action string, err error)
}

// CircleRegistryConfig tunes the registry. Zero fields take defaults.
type CircleRegistryConfig struct {
	MinMembersToActivate int
	LockTimeout          time.Duration
	// Now overrides the clock, for tests.
	Now func() time.Time
}

type circleRegistry struct {
	circles   store.CircleStore
	publisher events.Publisher
	metrics   CircleMetrics
	locks     *keyedMutex
	cfg       CircleRegistryConfig
	logger    *slog.Logger
}

var _ CircleRegistry = (*circleRegistry)(nil)

// NewCircleRegistry creates a CircleRegistry. metrics may be nil.
func NewCircleRegistry(
	circles store.CircleStore,
	publisher events.Publisher,
	metrics CircleMetrics,
	cfg CircleRegistryConfig,
	log *slog.Logger,
) (CircleRegistry, error) {
	if circles == nil {
		return nil, &ServiceError{Service: circleRegistryName, Operation: "create_service", Message: "circle store cannot be nil"}
	}
	if publisher == nil {
		return nil, &ServiceError{Service: circleRegistryName, Operation: "create_service", Message: "publisher cannot be nil"}
	}
	if log == nil {
		return nil, &ServiceError{Service: circleRegistryName, Operation: "create_service", Message: "logger cannot be nil"}
	}
	if cfg.MinMembersToActivate <= 0 {
		cfg.MinMembersToActivate = DefaultMinMembersToActivate
	}
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = DefaultLockTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if metrics == nil {
		metrics = noopCircleMetrics{}
	}

	return &circleRegistry{
		circles:   circles,
		publisher: publisher,
		metrics:   metrics,
		locks:     newKeyedMutex(),
		cfg:       cfg,
		logger:    log.With(slog.String("component", circleRegistryName)),
	}, nil
}

// Create implements CircleRegistry.
func (r *circleRegistry) Create(
	ctx context.Context,
	creatorID uuid.UUID,
	input CreateCircleInput,
) (*domain.LendingCircle, error) {
	const op = "create"
	log := logger.FromContextOrDefault(ctx, r.logger)

	circle, err := domain.NewLendingCircle(
		creatorID,
		input.Name,
		input.TotalAmount,
		input.ContributionAmount,
		input.DurationMonths,
		r.cfg.Now(),
	)
	if err != nil {
		r.metrics.CircleOperation(op, err)
		return nil, newServiceError(circleRegistryName, op, "invalid circle", err)
	}

	if err := r.circles.Create(ctx, circle); err != nil {
		log.Error("failed to save circle",
			slog.String("error", err.Error()),
			slog.String("circle_id", circle.ID.String()))
		r.metrics.CircleOperation(op, err)
		return nil, newServiceError(circleRegistryName, op, "failed to save circle", err)
	}

	log.Info("lending circle created",
		slog.String("circle_id", circle.ID.String()),
		slog.String("creator_id", creatorID.String()))
	r.metrics.CircleOperation(op, nil)
	r.publish(ctx, events.ActionCreated, creatorID, circle)
	return circle, nil
}

// transitionPolicy says who may issue a transition and whether it must name
// the version it was decided against.
type transitionPolicy struct {
	creatorOnly bool
	versioned   bool
}

var (
	joinPolicy     = transitionPolicy{}
	completePolicy = transitionPolicy{creatorOnly: true}
	// Activate and Cancel are mutually exclusive from Open; both must name
	// the version they were decided against.
	exclusivePolicy = transitionPolicy{creatorOnly: true, versioned: true}
)

// Join implements CircleRegistry.
func (r *circleRegistry) Join(ctx context.Context, cmd CircleCommand) (*domain.LendingCircle, error) {
	return r.mutate(ctx, events.ActionJoined, cmd, joinPolicy, func(c *domain.LendingCircle, now time.Time) error {
		return c.Join(cmd.ActorID, now)
	})
}

// Activate implements CircleRegistry.
func (r *circleRegistry) Activate(ctx context.Context, cmd CircleCommand) (*domain.LendingCircle, error) {
	return r.mutate(ctx, events.ActionActivated, cmd, exclusivePolicy, func(c *domain.LendingCircle, now time.Time) error {
		return c.Activate(r.cfg.MinMembersToActivate, now)
	})
}

// Complete implements CircleRegistry.
func (r *circleRegistry) Complete(ctx context.Context, cmd CircleCommand) (*domain.LendingCircle, error) {
	return r.mutate(ctx, events.ActionCompleted, cmd, completePolicy, func(c *domain.LendingCircle, now time.Time) error {
		return c.Complete(now)
	})
}

// Cancel implements CircleRegistry.
func (r *circleRegistry) Cancel(ctx context.Context, cmd CircleCommand) (*domain.LendingCircle, error) {
	return r.mutate(ctx, events.ActionCancelled, cmd, exclusivePolicy, func(c *domain.LendingCircle, now time.Time) error {
		return c.Cancel(now)
	})
}

// Contribute implements CircleRegistry. The circle lock is held while the
// contribution is stored so it cannot interleave with a cancellation.
func (r *circleRegistry) Contribute(
	ctx context.Context,
	cmd CircleCommand,
	amount decimal.Decimal,
) (contribution *domain.Contribution, err error) {
	const op = string(events.ActionContributed)
	defer func() { r.metrics.CircleOperation(op, err) }()

	log := logger.FromContextOrDefault(ctx, r.logger).With(
		slog.String("circle_id", cmd.CircleID.String()),
		slog.String("member_id", cmd.ActorID.String()))

	unlock, err := r.locks.LockWithin(ctx, cmd.CircleID, r.cfg.LockTimeout)
	if err != nil {
		return nil, newServiceError(circleRegistryName, op, "failed to acquire circle lock", err)
	}
	defer unlock()

	circle, err := r.circles.GetByID(ctx, cmd.CircleID)
	if err != nil {
		return nil, newServiceError(circleRegistryName, op, "failed to load circle", err)
	}
	if err := checkVersion(circle, cmd.ExpectedVersion); err != nil {
		return nil, newServiceError(circleRegistryName, op, "stale circle version", err)
	}

	contribution, err = circle.NewContribution(cmd.ActorID, amount, r.cfg.Now())
	if err != nil {
		return nil, newServiceError(circleRegistryName, op, "contribution rejected", err)
	}

	if err := r.circles.AddContribution(ctx, contribution); err != nil {
		if !errors.Is(err, store.ErrContributionExists) {
			log.Error("failed to save contribution", slog.String("error", err.Error()))
		}
		return nil, newServiceError(circleRegistryName, op, "failed to save contribution", err)
	}

	log.Info("contribution recorded", slog.Int("period", contribution.Period))
	r.publish(ctx, events.ActionContributed, cmd.ActorID, circle)
	return contribution, nil
}

// Get implements CircleRegistry.
func (r *circleRegistry) Get(ctx context.Context, circleID uuid.UUID) (*domain.LendingCircle, error) {
	circle, err := r.circles.GetByID(ctx, circleID)
	if err != nil {
		return nil, newServiceError(circleRegistryName, "get", "failed to load circle", err)
	}
	return circle, nil
}

// List implements CircleRegistry.
func (r *circleRegistry) List(ctx context.Context, filter store.CircleFilter) ([]*domain.LendingCircle, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, newServiceError(circleRegistryName, "list", "invalid filter",
			domain.NewValidationError("status", "is unknown", nil))
	}
	if filter.Limit <= 0 || filter.Limit > store.DefaultListLimit {
		filter.Limit = store.DefaultListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	circles, err := r.circles.List(ctx, filter)
	if err != nil {
		return nil, newServiceError(circleRegistryName, "list", "failed to list circles", err)
	}
	return circles, nil
}

// ListContributions implements CircleRegistry.
func (r *circleRegistry) ListContributions(ctx context.Context, circleID uuid.UUID) ([]*domain.Contribution, error) {
	const op = "list_contributions"
	if _, err := r.circles.GetByID(ctx, circleID); err != nil {
		return nil, newServiceError(circleRegistryName, op, "failed to load circle", err)
	}
	contributions, err := r.circles.ListContributions(ctx, circleID)
	if err != nil {
		return nil, newServiceError(circleRegistryName, op, "failed to list contributions", err)
	}
	return contributions, nil
}

// mutate runs apply against a private copy of the circle under the circle's
// lock and persists the result with an optimistic version check. A rejected
// command leaves the stored circle untouched.
func (r *circleRegistry) mutate(
	ctx context.Context,
	action events.Action,
	cmd CircleCommand,
	policy transitionPolicy,
	apply func(c *domain.LendingCircle, now time.Time) error,
) (updated *domain.LendingCircle, err error) {
	op := string(action)
	defer func() { r.metrics.CircleOperation(op, err) }()

	log := logger.FromContextOrDefault(ctx, r.logger).With(
		slog.String("circle_id", cmd.CircleID.String()),
		slog.String("actor_id", cmd.ActorID.String()),
		slog.String("action", op))

	if policy.versioned && cmd.ExpectedVersion <= 0 {
		return nil, newServiceError(circleRegistryName, op, "missing circle version",
			domain.NewValidationError("expected_version", "is required", nil))
	}

	unlock, err := r.locks.LockWithin(ctx, cmd.CircleID, r.cfg.LockTimeout)
	if err != nil {
		log.Warn("circle lock not acquired", slog.String("error", err.Error()))
		return nil, newServiceError(circleRegistryName, op, "failed to acquire circle lock", err)
	}
	defer unlock()

	current, err := r.circles.GetByID(ctx, cmd.CircleID)
	if err != nil {
		return nil, newServiceError(circleRegistryName, op, "failed to load circle", err)
	}
	if policy.creatorOnly && current.CreatorID != cmd.ActorID {
		return nil, newServiceError(circleRegistryName, op, "not permitted",
			fmt.Errorf("%w: only the circle creator may %s it", domain.ErrUnauthorized, op))
	}
	if err := checkVersion(current, cmd.ExpectedVersion); err != nil {
		return nil, newServiceError(circleRegistryName, op, "stale circle version", err)
	}

	next := current.Clone()
	if err := apply(next, r.cfg.Now()); err != nil {
		log.Debug("circle command rejected", slog.String("error", err.Error()))
		return nil, newServiceError(circleRegistryName, op, "command rejected", err)
	}

	if err := r.circles.Update(ctx, next, current.Version); err != nil {
		if !errors.Is(err, store.ErrConflict) {
			log.Error("failed to save circle", slog.String("error", err.Error()))
		}
		return nil, newServiceError(circleRegistryName, op, "failed to save circle", err)
	}

	log.Info("lending circle updated",
		slog.String("status", string(next.Status)),
		slog.Int64("version", next.Version))
	r.publish(ctx, action, cmd.ActorID, next)
	return next, nil
}

func (r *circleRegistry) publish(
	ctx context.Context,
	action events.Action,
	actorID uuid.UUID,
	circle *domain.LendingCircle,
) {
	r.publisher.Publish(ctx, events.NewCircleEvent(action, actorID, circle, r.cfg.Now()))
}

func checkVersion(circle *domain.LendingCircle, expected int64) error {
	if expected != 0 && circle.Version != expected {
		return fmt.Errorf(
			"%w: circle is at version %d, command expected %d",
			domain.ErrInvalidTransition,
			circle.Version,
			expected,
		)
	}
	return nil
}

type noopCircleMetrics struct{}

func (noopCircleMetrics) CircleOperation(string, error) {}
