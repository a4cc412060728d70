package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// GoalCategory labels what a financial goal is saving for.
type GoalCategory string

// Supported goal categories.
const (
	GoalCategoryEmergencyFund GoalCategory = "emergency_fund"
	GoalCategoryEducation     GoalCategory = "education"
	GoalCategoryHousing       GoalCategory = "housing"
	GoalCategoryBusiness      GoalCategory = "business"
	GoalCategoryRetirement    GoalCategory = "retirement"
	GoalCategoryDebtRepayment GoalCategory = "debt_repayment"
	GoalCategoryOther         GoalCategory = "other"
)

// IsValid reports whether c is a known category.
func (c GoalCategory) IsValid() bool {
	switch c {
	case GoalCategoryEmergencyFund, GoalCategoryEducation, GoalCategoryHousing,
		GoalCategoryBusiness, GoalCategoryRetirement, GoalCategoryDebtRepayment,
		GoalCategoryOther:
		return true
	}
	return false
}

// FinancialGoal is a savings target owned by exactly one user.
// CurrentAmount may exceed TargetAmount; overshoot shows up as progress above 1.
type FinancialGoal struct {
	ID            uuid.UUID       `json:"id"`
	UserID        uuid.UUID       `json:"user_id"`
	Name          string          `json:"name"`
	TargetAmount  decimal.Decimal `json:"target_amount"`
	CurrentAmount decimal.Decimal `json:"current_amount"`
	Deadline      time.Time       `json:"deadline"`
	Category      GoalCategory    `json:"category"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// NewFinancialGoal creates a goal with CurrentAmount zero.
func NewFinancialGoal(
	owner uuid.UUID,
	name string,
	targetAmount decimal.Decimal,
	deadline time.Time,
	category GoalCategory,
	now time.Time,
) (*FinancialGoal, error) {
	now = now.UTC()
	g := &FinancialGoal{
		ID:            uuid.New(),
		UserID:        owner,
		Name:          strings.TrimSpace(name),
		TargetAmount:  targetAmount,
		CurrentAmount: decimal.Zero,
		Deadline:      deadline.UTC(),
		Category:      category,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// Validate checks the goal's invariants.
func (g *FinancialGoal) Validate() error {
	if g.ID == uuid.Nil {
		return NewValidationError("id", "cannot be empty", ErrInvalidID)
	}
	if g.UserID == uuid.Nil {
		return NewValidationError("user_id", "cannot be empty", ErrInvalidID)
	}
	if g.Name == "" {
		return NewValidationError("name", "cannot be empty", nil)
	}
	if !g.TargetAmount.IsPositive() {
		return NewValidationError("target_amount", "must be positive", ErrInvalidAmount)
	}
	if g.CurrentAmount.IsNegative() {
		return NewValidationError("current_amount", "must not be negative", ErrInvalidAmount)
	}
	if g.Deadline.IsZero() {
		return NewValidationError("deadline", "is required", nil)
	}
	if !g.Category.IsValid() {
		return NewValidationError("category", "is unknown", nil)
	}
	return nil
}

// IsOwnedBy reports whether userID owns the goal.
func (g *FinancialGoal) IsOwnedBy(userID uuid.UUID) bool {
	return g.UserID == userID
}

// ApplyContribution adds amount to CurrentAmount on behalf of caller.
// The goal is unchanged when an error is returned.
func (g *FinancialGoal) ApplyContribution(caller uuid.UUID, amount decimal.Decimal, now time.Time) error {
	if !g.IsOwnedBy(caller) {
		return fmt.Errorf("%w: goal belongs to another user", ErrUnauthorized)
	}
	if !amount.IsPositive() {
		return NewValidationError("amount", "must be positive", ErrInvalidAmount)
	}
	g.CurrentAmount = g.CurrentAmount.Add(amount)
	g.UpdatedAt = now.UTC()
	return nil
}

// GoalChanges holds the optional fields of a goal update.
type GoalChanges struct {
	Name         *string
	TargetAmount *decimal.Decimal
	Deadline     *time.Time
	Category     *GoalCategory
}

// Apply updates the goal's descriptive fields on behalf of caller.
// The goal is unchanged when an error is returned.
func (g *FinancialGoal) Apply(caller uuid.UUID, changes GoalChanges, now time.Time) error {
	if !g.IsOwnedBy(caller) {
		return fmt.Errorf("%w: goal belongs to another user", ErrUnauthorized)
	}
	next := *g
	if changes.Name != nil {
		next.Name = strings.TrimSpace(*changes.Name)
	}
	if changes.TargetAmount != nil {
		next.TargetAmount = *changes.TargetAmount
	}
	if changes.Deadline != nil {
		next.Deadline = changes.Deadline.UTC()
	}
	if changes.Category != nil {
		next.Category = *changes.Category
	}
	if err := next.Validate(); err != nil {
		return err
	}
	next.UpdatedAt = now.UTC()
	*g = next
	return nil
}

// ProgressRatio returns CurrentAmount / TargetAmount.
func (g *FinancialGoal) ProgressRatio() (float64, error) {
	if g.TargetAmount.IsZero() {
		return 0, ErrDivisionUndefined
	}
	return g.CurrentAmount.Div(g.TargetAmount).InexactFloat64(), nil
}
