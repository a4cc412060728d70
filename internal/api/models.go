package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/circles-api/internal/domain"
	"github.com/shopspring/decimal"
)

// RegisterRequest is the payload of POST /api/auth/register.
type RegisterRequest struct {
	Name     string `json:"name"     validate:"required,max=100"`
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// LoginRequest is the payload of POST /api/auth/login.
type LoginRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RefreshTokenRequest is the payload of POST /api/auth/refresh.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// UserSummary is the public view of a user.
type UserSummary struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email,omitempty"`
}

// AuthResponse is returned by register, login and refresh.
type AuthResponse struct {
	User         *UserSummary `json:"user,omitempty"`
	AccessToken  string       `json:"token"`
	RefreshToken string       `json:"refresh_token"`
	// ExpiresAt is the RFC 3339 expiry of AccessToken.
	ExpiresAt string `json:"expires_at"`
}

// AuthCheckResponse is returned by GET /api/auth/check.
type AuthCheckResponse struct {
	Authenticated bool      `json:"authenticated"`
	UserID        uuid.UUID `json:"user_id"`
}

// FinancialProfileRequest replaces the caller's financial profile.
// Every amount is required; zero is a valid value.
type FinancialProfileRequest struct {
	Income        *decimal.Decimal `json:"income"         validate:"required"`
	Expenses      *decimal.Decimal `json:"expenses"       validate:"required"`
	Savings       *decimal.Decimal `json:"savings"        validate:"required"`
	CreditHistory []string         `json:"credit_history" validate:"max=100,dive,max=200"`
}

// ToDomain builds a validated domain profile.
func (r FinancialProfileRequest) ToDomain() (domain.FinancialProfile, error) {
	return domain.NewFinancialProfile(*r.Income, *r.Expenses, *r.Savings, r.CreditHistory)
}

// UserResponse is the caller's own account.
type UserResponse struct {
	ID               uuid.UUID               `json:"id"`
	Name             string                  `json:"name"`
	Email            string                  `json:"email"`
	FinancialProfile domain.FinancialProfile `json:"financial_profile"`
	CreatedAt        time.Time               `json:"created_at"`
	UpdatedAt        time.Time               `json:"updated_at"`
}

func userToResponse(u *domain.User) UserResponse {
	profile := u.Profile
	if profile.CreditHistory == nil {
		profile.CreditHistory = []string{}
	}
	return UserResponse{
		ID:               u.ID,
		Name:             u.Name,
		Email:            u.Email,
		FinancialProfile: profile,
		CreatedAt:        u.CreatedAt,
		UpdatedAt:        u.UpdatedAt,
	}
}

// CreditScoreRequest optionally names the user to score. It must be the caller.
type CreditScoreRequest struct {
	UserID *uuid.UUID `json:"userId,omitempty"`
}

// CreditScoreResponse carries a computed score.
type CreditScoreResponse struct {
	CreditScore int `json:"creditScore"`
}

// CreateCircleRequest is the payload of POST /api/lending-circles.
type CreateCircleRequest struct {
	Name               string           `json:"name"                validate:"required,max=100"`
	TotalAmount        *decimal.Decimal `json:"total_amount"        validate:"required"`
	ContributionAmount *decimal.Decimal `json:"contribution_amount" validate:"required"`
	DurationMonths     int              `json:"duration_months"     validate:"required,gt=0,lte=120"`
}

// CircleTransitionRequest is the body of the transition endpoints. It is
// optional for join and complete; activate and cancel must send
// expected_version.
type CircleTransitionRequest struct {
	ExpectedVersion int64 `json:"expected_version" validate:"gte=0"`
}

// ContributionRequest is the payload of POST /api/lending-circles/{id}/contributions.
type ContributionRequest struct {
	Amount          *decimal.Decimal `json:"amount"           validate:"required"`
	ExpectedVersion int64            `json:"expected_version" validate:"gte=0"`
}

// CircleListResponse wraps a page of circles.
type CircleListResponse struct {
	Circles []*domain.LendingCircle `json:"circles"`
	Limit   int                     `json:"limit"`
	Offset  int                     `json:"offset"`
}

// ContributionListResponse wraps a circle's contributions.
type ContributionListResponse struct {
	Contributions []*domain.Contribution `json:"contributions"`
}

// CreateGoalRequest is the payload of POST /api/financial-goals.
type CreateGoalRequest struct {
	Name         string           `json:"name"          validate:"required,max=100"`
	TargetAmount *decimal.Decimal `json:"target_amount" validate:"required"`
	Deadline     time.Time        `json:"deadline"      validate:"required"`
	Category     string           `json:"category"      validate:"required"`
}

// UpdateGoalRequest is the payload of PUT /api/financial-goals/{id}.
// Omitted fields keep their value.
type UpdateGoalRequest struct {
	Name         *string          `json:"name,omitempty"          validate:"omitempty,min=1,max=100"`
	TargetAmount *decimal.Decimal `json:"target_amount,omitempty"`
	Deadline     *time.Time       `json:"deadline,omitempty"`
	Category     *string          `json:"category,omitempty"`
}

// ToChanges converts the request to a domain change set.
func (r UpdateGoalRequest) ToChanges() domain.GoalChanges {
	changes := domain.GoalChanges{
		Name:         r.Name,
		TargetAmount: r.TargetAmount,
		Deadline:     r.Deadline,
	}
	if r.Category != nil {
		category := domain.GoalCategory(*r.Category)
		changes.Category = &category
	}
	return changes
}

// GoalContributionRequest is the payload of POST /api/financial-goals/{id}/contributions.
type GoalContributionRequest struct {
	Amount *decimal.Decimal `json:"amount" validate:"required"`
}

// GoalResponse is a goal plus its progress ratio. Progress is omitted when
// it is undefined.
type GoalResponse struct {
	*domain.FinancialGoal
	Progress *float64 `json:"progress,omitempty"`
}

// GoalListResponse wraps a user's goals.
type GoalListResponse struct {
	Goals []GoalResponse `json:"goals"`
}

// CreateMicrograntRequest is the payload of POST /api/microgrants.
type CreateMicrograntRequest struct {
	BusinessName    string           `json:"business_name"    validate:"required,max=200"`
	Description     string           `json:"description"      validate:"max=2000"`
	AmountRequested *decimal.Decimal `json:"amount_requested" validate:"required"`
}

// MicrograntListResponse wraps a page of microgrant applications.
type MicrograntListResponse struct {
	Microgrants []*domain.Microgrant `json:"microgrants"`
	Limit       int                  `json:"limit"`
	Offset      int                  `json:"offset"`
}
