package domain

import "github.com/shopspring/decimal"

// FinancialProfile is the self-reported financial snapshot of a user.
// It is the only input to credit score computation.
type FinancialProfile struct {
	Income        decimal.Decimal `json:"income"`
	Expenses      decimal.Decimal `json:"expenses"`
	Savings       decimal.Decimal `json:"savings"`
	CreditHistory []string        `json:"credit_history"`
}

// NewFinancialProfile builds a validated profile. Amounts must not be negative.
func NewFinancialProfile(
	income, expenses, savings decimal.Decimal,
	creditHistory []string,
) (FinancialProfile, error) {
	history := make([]string, len(creditHistory))
	copy(history, creditHistory)

	p := FinancialProfile{
		Income:        income,
		Expenses:      expenses,
		Savings:       savings,
		CreditHistory: history,
	}
	if err := p.Validate(); err != nil {
		return FinancialProfile{}, err
	}
	return p, nil
}

// Validate checks that no amount is negative.
func (p FinancialProfile) Validate() error {
	if p.Income.IsNegative() {
		return NewValidationError("income", "must not be negative", ErrInvalidAmount)
	}
	if p.Expenses.IsNegative() {
		return NewValidationError("expenses", "must not be negative", ErrInvalidAmount)
	}
	if p.Savings.IsNegative() {
		return NewValidationError("savings", "must not be negative", ErrInvalidAmount)
	}
	return nil
}
