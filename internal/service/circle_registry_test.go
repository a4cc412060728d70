package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/circles-api/internal/domain"
	"github.com/phrazzld/circles-api/internal/events"
	"github.com/phrazzld/circles-api/internal/platform/memory"
	"github.com/phrazzld/circles-api/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var registryEpoch = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

type registryFixture struct {
	registry  CircleRegistry
	circles   store.CircleStore
	publisher *recordingPublisher
	metrics   *countingCircleMetrics
	clock     *testClock
}

func newRegistryFixture(t *testing.T) *registryFixture {
	t.Helper()
	f := &registryFixture{
		circles:   memory.New().Circles(),
		publisher: &recordingPublisher{},
		metrics:   &countingCircleMetrics{},
		clock:     newTestClock(registryEpoch),
	}
	registry, err := NewCircleRegistry(f.circles, f.publisher, f.metrics, CircleRegistryConfig{
		MinMembersToActivate: 2,
		LockTimeout:          time.Second,
		Now:                  f.clock.Now,
	}, discardLogger())
	require.NoError(t, err)
	f.registry = registry
	return f
}

func saversInput() CreateCircleInput {
	return CreateCircleInput{
		Name:               "Savers",
		TotalAmount:        decimal.NewFromInt(1200),
		ContributionAmount: decimal.NewFromInt(100),
		DurationMonths:     12,
	}
}

// activeCircle returns an Active circle with members creator and member.
func (f *registryFixture) activeCircle(t *testing.T, creator, member uuid.UUID) *domain.LendingCircle {
	t.Helper()
	ctx := context.Background()
	c, err := f.registry.Create(ctx, creator, saversInput())
	require.NoError(t, err)
	c, err = f.registry.Join(ctx, CircleCommand{CircleID: c.ID, ActorID: member})
	require.NoError(t, err)
	c, err = f.registry.Activate(ctx, CircleCommand{CircleID: c.ID, ActorID: creator, ExpectedVersion: c.Version})
	require.NoError(t, err)
	return c
}

func TestNewCircleRegistry_NilDependencies(t *testing.T) {
	t.Parallel()

	_, err := NewCircleRegistry(nil, &recordingPublisher{}, nil, CircleRegistryConfig{}, discardLogger())
	assert.Error(t, err)
	_, err = NewCircleRegistry(memory.New().Circles(), nil, nil, CircleRegistryConfig{}, discardLogger())
	assert.Error(t, err)
	_, err = NewCircleRegistry(memory.New().Circles(), &recordingPublisher{}, nil, CircleRegistryConfig{}, nil)
	assert.Error(t, err)
}

func TestCircleRegistry_EndToEnd(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	broadcaster := events.NewBroadcaster(events.Config{}, discardLogger(), nil)
	defer broadcaster.Close()

	observers := []*recordingObserver{{}, {}}
	for _, o := range observers {
		_, err := broadcaster.Subscribe(o)
		require.NoError(t, err)
	}

	registry, err := NewCircleRegistry(memory.New().Circles(), broadcaster, nil, CircleRegistryConfig{}, discardLogger())
	require.NoError(t, err)

	u1, u2 := uuid.New(), uuid.New()
	c, err := registry.Create(ctx, u1, saversInput())
	require.NoError(t, err)
	assert.Equal(t, domain.CircleStatusOpen, c.Status)
	assert.Equal(t, []uuid.UUID{u1}, c.Members)

	c, err = registry.Join(ctx, CircleCommand{CircleID: c.ID, ActorID: u2})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{u1, u2}, c.Members)

	c, err = registry.Activate(ctx, CircleCommand{CircleID: c.ID, ActorID: u1, ExpectedVersion: c.Version})
	require.NoError(t, err)
	assert.Equal(t, domain.CircleStatusActive, c.Status)

	for _, o := range observers {
		require.Eventually(t, func() bool { return len(o.Events()) == 3 }, time.Second, 5*time.Millisecond)
		got := o.Events()
		assert.Equal(t, events.CircleCreated, got[0].Type)
		assert.Equal(t, events.ActionJoined, got[1].Action)
		assert.Equal(t, events.CircleUpdated, got[2].Type)
		assert.Equal(t, events.ActionActivated, got[2].Action)
		assert.Equal(t, domain.CircleStatusActive, got[2].Circle.Status)
	}

	time.Sleep(20 * time.Millisecond)
	for _, o := range observers {
		assert.Len(t, o.Events(), 3, "each observer sees the activation exactly once")
	}
}

func TestCircleRegistry_CreateRejectsInvalidAmounts(t *testing.T) {
	t.Parallel()

	f := newRegistryFixture(t)
	input := saversInput()
	input.ContributionAmount = decimal.NewFromInt(1500)

	c, err := f.registry.Create(context.Background(), uuid.New(), input)
	assert.Nil(t, c)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	all, err := f.registry.List(context.Background(), store.CircleFilter{})
	require.NoError(t, err)
	assert.Empty(t, all, "no circle is created")
	assert.Empty(t, f.publisher.Events())

	_, failed := f.metrics.get("create")
	assert.Equal(t, 1, failed)
}

func TestCircleRegistry_Join(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	creator, member := uuid.New(), uuid.New()

	t.Run("duplicate member", func(t *testing.T) {
		t.Parallel()
		f := newRegistryFixture(t)
		c, err := f.registry.Create(ctx, creator, saversInput())
		require.NoError(t, err)

		_, err = f.registry.Join(ctx, CircleCommand{CircleID: c.ID, ActorID: creator})
		assert.ErrorIs(t, err, domain.ErrDuplicateMember)
	})

	t.Run("active circle", func(t *testing.T) {
		t.Parallel()
		f := newRegistryFixture(t)
		c := f.activeCircle(t, creator, member)

		_, err := f.registry.Join(ctx, CircleCommand{CircleID: c.ID, ActorID: uuid.New()})
		assert.ErrorIs(t, err, domain.ErrInvalidState)

		stored, err := f.registry.Get(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{creator, member}, stored.Members, "member set is unchanged")
		assert.Equal(t, c.Version, stored.Version)
	})

	t.Run("missing circle", func(t *testing.T) {
		t.Parallel()
		f := newRegistryFixture(t)
		_, err := f.registry.Join(ctx, CircleCommand{CircleID: uuid.New(), ActorID: member})
		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.ErrorIs(t, err, store.ErrCircleNotFound)
	})
}

func TestCircleRegistry_TransitionGuards(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	creator, member := uuid.New(), uuid.New()

	t.Run("activate needs enough members", func(t *testing.T) {
		t.Parallel()
		f := newRegistryFixture(t)
		c, err := f.registry.Create(ctx, creator, saversInput())
		require.NoError(t, err)

		_, err = f.registry.Activate(ctx, CircleCommand{CircleID: c.ID, ActorID: creator, ExpectedVersion: c.Version})
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	})

	t.Run("only creator may activate", func(t *testing.T) {
		t.Parallel()
		f := newRegistryFixture(t)
		c, err := f.registry.Create(ctx, creator, saversInput())
		require.NoError(t, err)
		c, err = f.registry.Join(ctx, CircleCommand{CircleID: c.ID, ActorID: member})
		require.NoError(t, err)

		_, err = f.registry.Activate(ctx, CircleCommand{CircleID: c.ID, ActorID: member, ExpectedVersion: c.Version})
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("stale expected version", func(t *testing.T) {
		t.Parallel()
		f := newRegistryFixture(t)
		c, err := f.registry.Create(ctx, creator, saversInput())
		require.NoError(t, err)
		observed := c.Version
		_, err = f.registry.Join(ctx, CircleCommand{CircleID: c.ID, ActorID: member})
		require.NoError(t, err)
		published := len(f.publisher.Events())

		_, err = f.registry.Cancel(ctx, CircleCommand{CircleID: c.ID, ActorID: creator, ExpectedVersion: observed})
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)

		stored, err := f.registry.Get(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.CircleStatusOpen, stored.Status)
		assert.Len(t, f.publisher.Events(), published, "rejected commands publish nothing")
	})

	t.Run("terminal states", func(t *testing.T) {
		t.Parallel()
		f := newRegistryFixture(t)
		c, err := f.registry.Create(ctx, creator, saversInput())
		require.NoError(t, err)

		c, err = f.registry.Cancel(ctx, CircleCommand{CircleID: c.ID, ActorID: creator, ExpectedVersion: c.Version})
		require.NoError(t, err)
		assert.Equal(t, domain.CircleStatusCancelled, c.Status)

		current := CircleCommand{CircleID: c.ID, ActorID: creator, ExpectedVersion: c.Version}
		_, err = f.registry.Cancel(ctx, current)
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
		_, err = f.registry.Activate(ctx, current)
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	})

	t.Run("complete after duration", func(t *testing.T) {
		t.Parallel()
		f := newRegistryFixture(t)
		c := f.activeCircle(t, creator, member)

		_, err := f.registry.Complete(ctx, CircleCommand{CircleID: c.ID, ActorID: creator})
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)

		f.clock.Set(registryEpoch.AddDate(0, 12, 0))
		c, err = f.registry.Complete(ctx, CircleCommand{CircleID: c.ID, ActorID: creator})
		require.NoError(t, err)
		assert.Equal(t, domain.CircleStatusCompleted, c.Status)
		assert.Equal(t, []events.Action{
			events.ActionCreated,
			events.ActionJoined,
			events.ActionActivated,
			events.ActionCompleted,
		}, f.publisher.Actions())
	})
}

func TestCircleRegistry_ConcurrentActivateAndCancel(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	for i := 0; i < 25; i++ {
		f := newRegistryFixture(t)
		creator := uuid.New()
		c, err := f.registry.Create(ctx, creator, saversInput())
		require.NoError(t, err)
		c, err = f.registry.Join(ctx, CircleCommand{CircleID: c.ID, ActorID: uuid.New()})
		require.NoError(t, err)

		cmd := CircleCommand{CircleID: c.ID, ActorID: creator, ExpectedVersion: c.Version}
		var (
			wg      sync.WaitGroup
			results [2]error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, results[0] = f.registry.Activate(ctx, cmd)
		}()
		go func() {
			defer wg.Done()
			_, results[1] = f.registry.Cancel(ctx, cmd)
		}()
		wg.Wait()

		succeeded := 0
		for _, err := range results {
			if err == nil {
				succeeded++
				continue
			}
			assert.ErrorIs(t, err, domain.ErrInvalidTransition)
		}
		assert.Equal(t, 1, succeeded, "exactly one of activate/cancel wins")

		final, err := f.registry.Get(ctx, c.ID)
		require.NoError(t, err)
		assert.Contains(t, []domain.CircleStatus{domain.CircleStatusActive, domain.CircleStatusCancelled}, final.Status)
		assert.Equal(t, c.Version+1, final.Version)
	}
}

func TestCircleRegistry_ExclusiveTransitionsNeedVersion(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newRegistryFixture(t)
	creator := uuid.New()
	c, err := f.registry.Create(ctx, creator, saversInput())
	require.NoError(t, err)
	c, err = f.registry.Join(ctx, CircleCommand{CircleID: c.ID, ActorID: uuid.New()})
	require.NoError(t, err)
	published := len(f.publisher.Events())

	unversioned := CircleCommand{CircleID: c.ID, ActorID: creator}
	_, err = f.registry.Activate(ctx, unversioned)
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = f.registry.Cancel(ctx, unversioned)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Len(t, f.publisher.Events(), published)

	// Both commands decided against the same snapshot: the later one loses
	// even though Active -> Cancelled is a legal transition on its own.
	observed := CircleCommand{CircleID: c.ID, ActorID: creator, ExpectedVersion: c.Version}
	active, err := f.registry.Activate(ctx, observed)
	require.NoError(t, err)
	_, err = f.registry.Cancel(ctx, observed)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	stored, err := f.registry.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CircleStatusActive, stored.Status)
	assert.Equal(t, active.Version, stored.Version)

	_, failed := f.metrics.get(string(events.ActionCancelled))
	assert.Equal(t, 2, failed)
}

func TestCircleRegistry_StoreTimeoutIsNotBusy(t *testing.T) {
	t.Parallel()

	registry, err := NewCircleRegistry(slowCircleStore{CircleStore: memory.New().Circles()},
		&recordingPublisher{}, nil, CircleRegistryConfig{}, discardLogger())
	require.NoError(t, err)

	_, err = registry.Join(context.Background(), CircleCommand{CircleID: uuid.New(), ActorID: uuid.New()})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, ErrBusy)
}

// slowCircleStore fails reads the way a database query timeout does.
type slowCircleStore struct {
	store.CircleStore
}

func (slowCircleStore) GetByID(context.Context, uuid.UUID) (*domain.LendingCircle, error) {
	return nil, context.DeadlineExceeded
}

func TestCircleRegistry_ConcurrentJoins(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newRegistryFixture(t)
	c, err := f.registry.Create(ctx, uuid.New(), saversInput())
	require.NoError(t, err)

	const joiners = 20
	var wg sync.WaitGroup
	for i := 0; i < joiners; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.registry.Join(ctx, CircleCommand{CircleID: c.ID, ActorID: uuid.New()})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	final, err := f.registry.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Len(t, final.Members, joiners+1, "no join is lost")
	assert.Equal(t, int64(joiners+1), final.Version)
}

func TestCircleRegistry_Contribute(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	creator, member := uuid.New(), uuid.New()
	f := newRegistryFixture(t)
	c := f.activeCircle(t, creator, member)
	amount := decimal.NewFromInt(100)

	contribution, err := f.registry.Contribute(ctx, CircleCommand{CircleID: c.ID, ActorID: member}, amount)
	require.NoError(t, err)
	assert.Equal(t, 1, contribution.Period)

	_, err = f.registry.Contribute(ctx, CircleCommand{CircleID: c.ID, ActorID: member}, amount)
	assert.ErrorIs(t, err, domain.ErrDuplicateContribution)

	_, err = f.registry.Contribute(ctx, CircleCommand{CircleID: c.ID, ActorID: uuid.New()}, amount)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = f.registry.Contribute(ctx, CircleCommand{CircleID: c.ID, ActorID: creator}, decimal.Zero)
	assert.ErrorIs(t, err, domain.ErrValidation)

	f.clock.Set(registryEpoch.AddDate(0, 1, 2))
	next, err := f.registry.Contribute(ctx, CircleCommand{CircleID: c.ID, ActorID: member}, amount)
	require.NoError(t, err)
	assert.Equal(t, 2, next.Period)

	list, err := f.registry.ListContributions(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, []int{1, 2}, []int{list[0].Period, list[1].Period})

	stored, err := f.registry.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.Version, stored.Version, "contributions do not change the circle")
	assert.Equal(t, domain.CircleStatusActive, stored.Status)

	_, err = f.registry.ListContributions(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)

	ok, failed := f.metrics.get(string(events.ActionContributed))
	assert.Equal(t, 2, ok)
	assert.Equal(t, 3, failed)
}

func TestCircleRegistry_ContributeToOpenCircle(t *testing.T) {
	t.Parallel()

	f := newRegistryFixture(t)
	creator := uuid.New()
	c, err := f.registry.Create(context.Background(), creator, saversInput())
	require.NoError(t, err)

	_, err = f.registry.Contribute(context.Background(), CircleCommand{CircleID: c.ID, ActorID: creator}, decimal.NewFromInt(100))
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestCircleRegistry_LockTimeout(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newRegistryFixture(t)
	creator := uuid.New()
	c, err := f.registry.Create(ctx, creator, saversInput())
	require.NoError(t, err)

	impl := f.registry.(*circleRegistry)
	impl.cfg.LockTimeout = 20 * time.Millisecond

	unlock, err := impl.locks.Lock(ctx, c.ID)
	require.NoError(t, err)
	defer unlock()

	start := time.Now()
	_, err = f.registry.Cancel(ctx, CircleCommand{CircleID: c.ID, ActorID: creator, ExpectedVersion: c.Version})
	assert.ErrorIs(t, err, ErrBusy)
	assert.Less(t, time.Since(start), time.Second)

	var svcErr *ServiceError
	require.True(t, errors.As(err, &svcErr))
	assert.Equal(t, "cancelled", svcErr.Operation)
}

func TestCircleRegistry_List(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newRegistryFixture(t)
	creator, member := uuid.New(), uuid.New()

	open, err := f.registry.Create(ctx, creator, saversInput())
	require.NoError(t, err)
	f.clock.Set(registryEpoch.Add(time.Minute))
	active := f.activeCircle(t, creator, member)

	all, err := f.registry.List(ctx, store.CircleFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	onlyActive, err := f.registry.List(ctx, store.CircleFilter{Status: domain.CircleStatusActive})
	require.NoError(t, err)
	require.Len(t, onlyActive, 1)
	assert.Equal(t, active.ID, onlyActive[0].ID)

	byMember, err := f.registry.List(ctx, store.CircleFilter{MemberID: member})
	require.NoError(t, err)
	require.Len(t, byMember, 1)
	assert.NotEqual(t, open.ID, byMember[0].ID)

	_, err = f.registry.List(ctx, store.CircleFilter{Status: "paused"})
	assert.ErrorIs(t, err, domain.ErrValidation)
}
