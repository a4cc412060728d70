package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/circles-api/internal/domain"
	"github.com/phrazzld/circles-api/internal/platform/memory"
	"github.com/phrazzld/circles-api/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var goalEpoch = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

func newTestTracker(t *testing.T) GoalTracker {
	t.Helper()
	tracker, err := NewGoalTracker(memory.New().Goals(), GoalTrackerConfig{
		Now: func() time.Time { return goalEpoch },
	}, discardLogger())
	require.NoError(t, err)
	return tracker
}

func emergencyFund(target int64) CreateGoalInput {
	return CreateGoalInput{
		Name:         "Emergency fund",
		TargetAmount: decimal.NewFromInt(target),
		Deadline:     goalEpoch.AddDate(1, 0, 0),
		Category:     domain.GoalCategoryEmergencyFund,
	}
}

func TestGoalTracker_CreateAndProgress(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tracker := newTestTracker(t)
	owner := uuid.New()

	goal, err := tracker.CreateGoal(ctx, owner, emergencyFund(1000))
	require.NoError(t, err)
	assert.True(t, goal.CurrentAmount.IsZero())

	goal, err = tracker.ApplyContribution(ctx, owner, goal.ID, decimal.NewFromInt(250))
	require.NoError(t, err)

	ratio, err := tracker.ProgressRatio(goal)
	require.NoError(t, err)
	assert.InDelta(t, 0.25, ratio, 1e-9)

	goal, err = tracker.ApplyContribution(ctx, owner, goal.ID, decimal.NewFromInt(1000))
	require.NoError(t, err)
	ratio, err = tracker.ProgressRatio(goal)
	require.NoError(t, err)
	assert.InDelta(t, 1.25, ratio, 1e-9, "overshoot is reported, not capped")
}

func TestGoalTracker_CreateValidation(t *testing.T) {
	t.Parallel()

	tracker := newTestTracker(t)
	_, err := tracker.CreateGoal(context.Background(), uuid.New(), emergencyFund(0))
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestGoalTracker_ApplyContributionRejections(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tracker := newTestTracker(t)
	owner := uuid.New()
	goal, err := tracker.CreateGoal(ctx, owner, emergencyFund(1000))
	require.NoError(t, err)

	for _, amount := range []decimal.Decimal{decimal.Zero, decimal.NewFromInt(-20)} {
		_, err = tracker.ApplyContribution(ctx, owner, goal.ID, amount)
		assert.ErrorIs(t, err, domain.ErrValidation)
	}

	_, err = tracker.ApplyContribution(ctx, uuid.New(), goal.ID, decimal.NewFromInt(10))
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = tracker.ApplyContribution(ctx, owner, uuid.New(), decimal.NewFromInt(10))
	assert.ErrorIs(t, err, domain.ErrNotFound)

	stored, err := tracker.GetGoal(ctx, owner, goal.ID)
	require.NoError(t, err)
	assert.True(t, stored.CurrentAmount.IsZero(), "current amount is unchanged")
}

func TestGoalTracker_ConcurrentContributions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tracker := newTestTracker(t)
	owner := uuid.New()
	goal, err := tracker.CreateGoal(ctx, owner, emergencyFund(1000))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := tracker.ApplyContribution(ctx, owner, goal.ID, decimal.NewFromInt(10))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	stored, err := tracker.GetGoal(ctx, owner, goal.ID)
	require.NoError(t, err)
	assert.True(t, stored.CurrentAmount.Equal(decimal.NewFromInt(100)), "got %s", stored.CurrentAmount)
}

func TestGoalTracker_OwnerOnlyReads(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tracker := newTestTracker(t)
	owner, other := uuid.New(), uuid.New()

	first, err := tracker.CreateGoal(ctx, owner, emergencyFund(1000))
	require.NoError(t, err)
	later := emergencyFund(500)
	later.Deadline = goalEpoch.AddDate(2, 0, 0)
	_, err = tracker.CreateGoal(ctx, owner, later)
	require.NoError(t, err)

	goals, err := tracker.ListGoals(ctx, owner, owner)
	require.NoError(t, err)
	require.Len(t, goals, 2)
	assert.Equal(t, first.ID, goals[0].ID, "ordered by deadline")

	_, err = tracker.ListGoals(ctx, other, owner)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = tracker.GetGoal(ctx, other, first.ID)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestGoalTracker_UpdateGoal(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tracker := newTestTracker(t)
	owner := uuid.New()
	goal, err := tracker.CreateGoal(ctx, owner, emergencyFund(1000))
	require.NoError(t, err)

	name := "Car"
	target := decimal.NewFromInt(8000)
	category := domain.GoalCategoryOther
	updated, err := tracker.UpdateGoal(ctx, owner, goal.ID, domain.GoalChanges{
		Name:         &name,
		TargetAmount: &target,
		Category:     &category,
	})
	require.NoError(t, err)
	assert.Equal(t, "Car", updated.Name)
	assert.True(t, updated.TargetAmount.Equal(target))

	_, err = tracker.UpdateGoal(ctx, uuid.New(), goal.ID, domain.GoalChanges{Name: &name})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestGoalTracker_LockTimeout(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tracker, err := NewGoalTracker(memory.New().Goals(), GoalTrackerConfig{
		LockTimeout: 20 * time.Millisecond,
		Now:         func() time.Time { return goalEpoch },
	}, discardLogger())
	require.NoError(t, err)

	owner := uuid.New()
	goal, err := tracker.CreateGoal(ctx, owner, emergencyFund(1000))
	require.NoError(t, err)

	unlock, err := tracker.(*goalTracker).locks.Lock(ctx, goal.ID)
	require.NoError(t, err)
	defer unlock()

	start := time.Now()
	_, err = tracker.ApplyContribution(ctx, owner, goal.ID, decimal.NewFromInt(10))
	assert.ErrorIs(t, err, ErrBusy)
	assert.Less(t, time.Since(start), DefaultLockTimeout, "configured timeout applies")
}

// slowGoalStore fails reads the way a database query timeout does.
type slowGoalStore struct {
	store.GoalStore
}

func (slowGoalStore) GetByID(context.Context, uuid.UUID) (*domain.FinancialGoal, error) {
	return nil, context.DeadlineExceeded
}

func TestGoalTracker_StoreTimeoutIsNotBusy(t *testing.T) {
	t.Parallel()

	tracker, err := NewGoalTracker(slowGoalStore{GoalStore: memory.New().Goals()}, GoalTrackerConfig{}, discardLogger())
	require.NoError(t, err)

	_, err = tracker.ApplyContribution(context.Background(), uuid.New(), uuid.New(), decimal.NewFromInt(10))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, ErrBusy)
}
