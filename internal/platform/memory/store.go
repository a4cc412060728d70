// Package memory implements the store interfaces in process memory. It backs
// the "memory" database driver and the service tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/phrazzld/circles-api/internal/domain"
	"github.com/phrazzld/circles-api/internal/store"
)

// Store holds users, circles, goals and microgrants behind a single RWMutex. Values are
// copied on the way in and out so callers never share state with the store.
type Store struct {
	mu            sync.RWMutex
	users         map[uuid.UUID]*domain.User
	emails        map[string]uuid.UUID
	circles       map[uuid.UUID]*domain.LendingCircle
	contributions map[uuid.UUID][]*domain.Contribution
	goals         map[uuid.UUID]*domain.FinancialGoal
	microgrants   map[uuid.UUID]*domain.Microgrant
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		users:         make(map[uuid.UUID]*domain.User),
		emails:        make(map[string]uuid.UUID),
		circles:       make(map[uuid.UUID]*domain.LendingCircle),
		contributions: make(map[uuid.UUID][]*domain.Contribution),
		goals:         make(map[uuid.UUID]*domain.FinancialGoal),
		microgrants:   make(map[uuid.UUID]*domain.Microgrant),
	}
}

// Users returns the store's UserStore view.
func (s *Store) Users() store.UserStore { return (*userStore)(s) }

// Circles returns the store's CircleStore view.
func (s *Store) Circles() store.CircleStore { return (*circleStore)(s) }

// Goals returns the store's GoalStore view.
func (s *Store) Goals() store.GoalStore { return (*goalStore)(s) }

// Microgrants returns the store's MicrograntStore view.
func (s *Store) Microgrants() store.MicrograntStore { return (*micrograntStore)(s) }

type userStore Store

func copyUser(u *domain.User) *domain.User {
	cp := *u
	cp.Password = ""
	cp.Profile.CreditHistory = append([]string(nil), u.Profile.CreditHistory...)
	return &cp
}

func (s *userStore) Create(_ context.Context, user *domain.User) error {
	if user.HashedPassword == "" {
		return fmt.Errorf("%w: hashed password is required", store.ErrInvalidEntity)
	}
	if err := user.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.emails[user.Email]; taken {
		return store.ErrEmailExists
	}
	if _, exists := s.users[user.ID]; exists {
		return store.ErrDuplicate
	}
	s.users[user.ID] = copyUser(user)
	s.emails[user.Email] = user.ID
	return nil
}

func (s *userStore) GetByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	return copyUser(u), nil
}

func (s *userStore) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.emails[email]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	return copyUser(s.users[id]), nil
}

func (s *userStore) Update(_ context.Context, user *domain.User) error {
	if err := user.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.users[user.ID]
	if !ok {
		return store.ErrUserNotFound
	}
	if owner, taken := s.emails[user.Email]; taken && owner != user.ID {
		return store.ErrEmailExists
	}
	delete(s.emails, existing.Email)
	updated := copyUser(user)
	updated.HashedPassword = existing.HashedPassword
	s.users[user.ID] = updated
	s.emails[user.Email] = user.ID
	return nil
}

type circleStore Store

func (s *circleStore) Create(_ context.Context, circle *domain.LendingCircle) error {
	if err := circle.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.circles[circle.ID]; exists {
		return store.ErrDuplicate
	}
	s.circles[circle.ID] = circle.Clone()
	return nil
}

func (s *circleStore) GetByID(_ context.Context, id uuid.UUID) (*domain.LendingCircle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.circles[id]
	if !ok {
		return nil, store.ErrCircleNotFound
	}
	return c.Clone(), nil
}

func (s *circleStore) List(_ context.Context, filter store.CircleFilter) ([]*domain.LendingCircle, error) {
	s.mu.RLock()
	matched := make([]*domain.LendingCircle, 0, len(s.circles))
	for _, c := range s.circles {
		if filter.Status != "" && c.Status != filter.Status {
			continue
		}
		if filter.MemberID != uuid.Nil && !c.HasMember(filter.MemberID) {
			continue
		}
		matched = append(matched, c.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID.String() < matched[j].ID.String()
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	limit := filter.Limit
	if limit <= 0 {
		limit = store.DefaultListLimit
	}
	offset := max(filter.Offset, 0)
	if offset >= len(matched) {
		return []*domain.LendingCircle{}, nil
	}
	return matched[offset:min(offset+limit, len(matched))], nil
}

func (s *circleStore) Update(_ context.Context, circle *domain.LendingCircle, expectedVersion int64) error {
	if err := circle.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.circles[circle.ID]
	if !ok {
		return store.ErrCircleNotFound
	}
	if existing.Version != expectedVersion {
		return store.ErrConflict
	}
	s.circles[circle.ID] = circle.Clone()
	return nil
}

func (s *circleStore) AddContribution(_ context.Context, c *domain.Contribution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.circles[c.CircleID]; !ok {
		return store.ErrCircleNotFound
	}
	for _, existing := range s.contributions[c.CircleID] {
		if existing.MemberID == c.MemberID && existing.Period == c.Period {
			return store.ErrContributionExists
		}
	}
	cp := *c
	s.contributions[c.CircleID] = append(s.contributions[c.CircleID], &cp)
	return nil
}

func (s *circleStore) ListContributions(_ context.Context, circleID uuid.UUID) ([]*domain.Contribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored := s.contributions[circleID]
	out := make([]*domain.Contribution, 0, len(stored))
	for _, c := range stored {
		cp := *c
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Period != out[j].Period {
			return out[i].Period < out[j].Period
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

type goalStore Store

func (s *goalStore) Create(_ context.Context, goal *domain.FinancialGoal) error {
	if err := goal.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.goals[goal.ID]; exists {
		return store.ErrDuplicate
	}
	cp := *goal
	s.goals[goal.ID] = &cp
	return nil
}

func (s *goalStore) GetByID(_ context.Context, id uuid.UUID) (*domain.FinancialGoal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.goals[id]
	if !ok {
		return nil, store.ErrGoalNotFound
	}
	cp := *g
	return &cp, nil
}

func (s *goalStore) ListByUser(_ context.Context, userID uuid.UUID) ([]*domain.FinancialGoal, error) {
	s.mu.RLock()
	out := make([]*domain.FinancialGoal, 0)
	for _, g := range s.goals {
		if g.UserID == userID {
			cp := *g
			out = append(out, &cp)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Deadline.Equal(out[j].Deadline) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Deadline.Before(out[j].Deadline)
	})
	return out, nil
}

func (s *goalStore) Update(_ context.Context, goal *domain.FinancialGoal) error {
	if err := goal.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.goals[goal.ID]; !ok {
		return store.ErrGoalNotFound
	}
	cp := *goal
	s.goals[goal.ID] = &cp
	return nil
}

type micrograntStore Store

// withOwner copies g and fills OwnerName. Callers hold s.mu.
func (s *micrograntStore) withOwner(g *domain.Microgrant) *domain.Microgrant {
	cp := *g
	if owner, ok := s.users[g.OwnerID]; ok {
		cp.OwnerName = owner.Name
	}
	return &cp
}

func (s *micrograntStore) Create(_ context.Context, grant *domain.Microgrant) error {
	if err := grant.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[grant.OwnerID]; !ok {
		return fmt.Errorf("%w: owner %s does not exist", store.ErrInvalidEntity, grant.OwnerID)
	}
	if _, exists := s.microgrants[grant.ID]; exists {
		return store.ErrDuplicate
	}
	cp := *grant
	cp.OwnerName = ""
	s.microgrants[grant.ID] = &cp
	return nil
}

func (s *micrograntStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Microgrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.microgrants[id]
	if !ok {
		return nil, store.ErrMicrograntNotFound
	}
	return s.withOwner(g), nil
}

func (s *micrograntStore) List(_ context.Context, filter store.MicrograntFilter) ([]*domain.Microgrant, error) {
	s.mu.RLock()
	matched := make([]*domain.Microgrant, 0, len(s.microgrants))
	for _, g := range s.microgrants {
		if filter.Status != "" && g.Status != filter.Status {
			continue
		}
		if filter.OwnerID != uuid.Nil && g.OwnerID != filter.OwnerID {
			continue
		}
		matched = append(matched, s.withOwner(g))
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID.String() < matched[j].ID.String()
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	limit := filter.Limit
	if limit <= 0 {
		limit = store.DefaultListLimit
	}
	offset := max(filter.Offset, 0)
	if offset >= len(matched) {
		return []*domain.Microgrant{}, nil
	}
	return matched[offset:min(offset+limit, len(matched))], nil
}
