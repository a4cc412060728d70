package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CircleStatus is the lifecycle state of a lending circle.
type CircleStatus string

// Lending circle statuses. Completed and Cancelled are terminal.
const (
	CircleStatusOpen      CircleStatus = "open"
	CircleStatusActive    CircleStatus = "active"
	CircleStatusCompleted CircleStatus = "completed"
	CircleStatusCancelled CircleStatus = "cancelled"
)

// IsValid reports whether s is a known status.
func (s CircleStatus) IsValid() bool {
	switch s {
	case CircleStatusOpen, CircleStatusActive, CircleStatusCompleted, CircleStatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no transition leaves s.
func (s CircleStatus) IsTerminal() bool {
	return s == CircleStatusCompleted || s == CircleStatusCancelled
}

const maxCircleNameLength = 100

// LendingCircle is a rotating savings group. Members join while it is Open;
// once Active the member set is frozen and each member contributes
// ContributionAmount once per month for DurationMonths.
//
// Version increases by one on every successful mutation and is used to reject
// commands issued against a stale snapshot.
type LendingCircle struct {
	ID                 uuid.UUID       `json:"id"`
	Name               string          `json:"name"`
	CreatorID          uuid.UUID       `json:"creator_id"`
	Members            []uuid.UUID     `json:"members"`
	TotalAmount        decimal.Decimal `json:"total_amount"`
	ContributionAmount decimal.Decimal `json:"contribution_amount"`
	DurationMonths     int             `json:"duration_months"`
	Status             CircleStatus    `json:"status"`
	Version            int64           `json:"version"`
	ActivatedAt        *time.Time      `json:"activated_at,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// NewLendingCircle creates an Open circle whose only member is the creator.
func NewLendingCircle(
	creatorID uuid.UUID,
	name string,
	totalAmount, contributionAmount decimal.Decimal,
	durationMonths int,
	now time.Time,
) (*LendingCircle, error) {
	now = now.UTC()
	c := &LendingCircle{
		ID:                 uuid.New(),
		Name:               strings.TrimSpace(name),
		CreatorID:          creatorID,
		Members:            []uuid.UUID{creatorID},
		TotalAmount:        totalAmount,
		ContributionAmount: contributionAmount,
		DurationMonths:     durationMonths,
		Status:             CircleStatusOpen,
		Version:            1,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks the circle's structural invariants.
func (c *LendingCircle) Validate() error {
	if c.ID == uuid.Nil {
		return NewValidationError("id", "cannot be empty", ErrInvalidID)
	}
	if c.CreatorID == uuid.Nil {
		return NewValidationError("creator_id", "cannot be empty", ErrInvalidID)
	}
	if c.Name == "" {
		return NewValidationError("name", "cannot be empty", nil)
	}
	if len(c.Name) > maxCircleNameLength {
		return NewValidationError("name", "is too long", nil)
	}
	if !c.TotalAmount.IsPositive() {
		return NewValidationError("total_amount", "must be positive", ErrInvalidAmount)
	}
	if !c.ContributionAmount.IsPositive() {
		return NewValidationError("contribution_amount", "must be positive", ErrInvalidAmount)
	}
	if c.ContributionAmount.GreaterThan(c.TotalAmount) {
		return NewValidationError(
			"contribution_amount",
			"must not exceed total_amount",
			ErrInvalidAmount,
		)
	}
	if c.DurationMonths <= 0 {
		return NewValidationError("duration_months", "must be positive", nil)
	}
	if !c.Status.IsValid() {
		return NewValidationError("status", "is unknown", nil)
	}
	if len(c.Members) == 0 {
		return NewValidationError("members", "cannot be empty", nil)
	}
	seen := make(map[uuid.UUID]struct{}, len(c.Members))
	for _, m := range c.Members {
		if _, dup := seen[m]; dup {
			return NewValidationError("members", "must be unique", nil)
		}
		seen[m] = struct{}{}
	}
	return nil
}

// Clone returns a deep copy so transitions can be applied without touching
// the stored snapshot.
func (c *LendingCircle) Clone() *LendingCircle {
	cp := *c
	cp.Members = make([]uuid.UUID, len(c.Members))
	copy(cp.Members, c.Members)
	if c.ActivatedAt != nil {
		at := *c.ActivatedAt
		cp.ActivatedAt = &at
	}
	return &cp
}

// HasMember reports whether userID belongs to the circle.
func (c *LendingCircle) HasMember(userID uuid.UUID) bool {
	for _, m := range c.Members {
		if m == userID {
			return true
		}
	}
	return false
}

// EndsAt returns when the contribution schedule ends. ok is false until the
// circle has been activated.
func (c *LendingCircle) EndsAt() (t time.Time, ok bool) {
	if c.ActivatedAt == nil {
		return time.Time{}, false
	}
	return c.ActivatedAt.AddDate(0, c.DurationMonths, 0), true
}

// PeriodAt returns the 1-based contribution period containing now.
// Periods are calendar months counted from activation.
func (c *LendingCircle) PeriodAt(now time.Time) (int, bool) {
	if c.ActivatedAt == nil || now.Before(*c.ActivatedAt) {
		return 0, false
	}
	now = now.UTC()
	start := c.ActivatedAt.UTC()
	months := (now.Year()-start.Year())*12 + int(now.Month()-start.Month())
	if start.AddDate(0, months, 0).After(now) {
		months--
	}
	period := months + 1
	if period > c.DurationMonths {
		return 0, false
	}
	return period, true
}

// Join adds userID as a member. Only Open circles accept members.
func (c *LendingCircle) Join(userID uuid.UUID, now time.Time) error {
	if userID == uuid.Nil {
		return NewValidationError("user_id", "cannot be empty", ErrInvalidID)
	}
	if c.Status != CircleStatusOpen {
		return fmt.Errorf("%w: cannot join a %s circle", ErrInvalidState, c.Status)
	}
	if c.HasMember(userID) {
		return ErrDuplicateMember
	}
	c.Members = append(c.Members, userID)
	c.touch(now)
	return nil
}

// Activate moves an Open circle to Active once it has at least minMembers members.
func (c *LendingCircle) Activate(minMembers int, now time.Time) error {
	if c.Status != CircleStatusOpen {
		return c.transitionError(CircleStatusActive)
	}
	if len(c.Members) < minMembers {
		return fmt.Errorf(
			"%w: circle needs at least %d members to activate, has %d",
			ErrInvalidTransition,
			minMembers,
			len(c.Members),
		)
	}
	at := now.UTC()
	c.Status = CircleStatusActive
	c.ActivatedAt = &at
	c.touch(now)
	return nil
}

// Complete moves an Active circle to Completed once its duration has elapsed.
func (c *LendingCircle) Complete(now time.Time) error {
	if c.Status != CircleStatusActive {
		return c.transitionError(CircleStatusCompleted)
	}
	endsAt, ok := c.EndsAt()
	if !ok || now.Before(endsAt) {
		return fmt.Errorf("%w: circle duration has not elapsed", ErrInvalidTransition)
	}
	c.Status = CircleStatusCompleted
	c.touch(now)
	return nil
}

// Cancel moves an Open or Active circle to Cancelled.
func (c *LendingCircle) Cancel(now time.Time) error {
	if c.Status != CircleStatusOpen && c.Status != CircleStatusActive {
		return c.transitionError(CircleStatusCancelled)
	}
	c.Status = CircleStatusCancelled
	c.touch(now)
	return nil
}

// NewContribution validates a periodic contribution by memberID at now.
// The circle itself is not modified; uniqueness per period is enforced by the store.
func (c *LendingCircle) NewContribution(
	memberID uuid.UUID,
	amount decimal.Decimal,
	now time.Time,
) (*Contribution, error) {
	if c.Status != CircleStatusActive {
		return nil, fmt.Errorf("%w: cannot contribute to a %s circle", ErrInvalidState, c.Status)
	}
	if !c.HasMember(memberID) {
		return nil, fmt.Errorf("%w: only members may contribute", ErrUnauthorized)
	}
	if !amount.IsPositive() {
		return nil, NewValidationError("amount", "must be positive", ErrInvalidAmount)
	}
	if !amount.Equal(c.ContributionAmount) {
		return nil, NewValidationError(
			"amount",
			"must equal the circle contribution amount",
			ErrInvalidAmount,
		)
	}
	period, ok := c.PeriodAt(now)
	if !ok {
		return nil, fmt.Errorf("%w: no open contribution period", ErrInvalidState)
	}
	return &Contribution{
		ID:        uuid.New(),
		CircleID:  c.ID,
		MemberID:  memberID,
		Amount:    amount,
		Period:    period,
		CreatedAt: now.UTC(),
	}, nil
}

func (c *LendingCircle) transitionError(to CircleStatus) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.Status, to)
}

func (c *LendingCircle) touch(now time.Time) {
	c.UpdatedAt = now.UTC()
	c.Version++
}

// Contribution records one member's payment for one period of a circle.
type Contribution struct {
	ID        uuid.UUID       `json:"id"`
	CircleID  uuid.UUID       `json:"circle_id"`
	MemberID  uuid.UUID       `json:"member_id"`
	Amount    decimal.Decimal `json:"amount"`
	Period    int             `json:"period"`
	CreatedAt time.Time       `json:"created_at"`
}
