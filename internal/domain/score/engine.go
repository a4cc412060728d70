package score

import (
	"github.com/phrazzld/circles-api/internal/domain"
	"github.com/shopspring/decimal"
)

// Engine computes the inclusive credit score for a financial profile.
//
// Compute is pure: identical profiles always produce identical scores, and the
// result is always within [Floor, Ceiling] of the engine's parameters. Inputs are
// not validated; negative amounts yield a consistent (if odd) score.
type Engine interface {
	Compute(profile domain.FinancialProfile) int
}

type engine struct {
	params *Params
}

// NewEngine creates an Engine using params. Nil params means the defaults.
func NewEngine(params *Params) Engine {
	if params == nil {
		params = NewDefaultParams()
	}
	return &engine{params: params}
}

// NewDefaultEngine creates an Engine with the default parameters.
func NewDefaultEngine() Engine {
	return NewEngine(NewDefaultParams())
}

// Compute returns
//
//	base + min(income/1000, 100) + savings/income*100 - expenses/income*50 + len(history)*10
//
// rounded half away from zero and clamped to [Floor, Ceiling]. With zero income
// both ratio terms contribute nothing. The history bonus is not capped before the
// final clamp.
func (e *engine) Compute(profile domain.FinancialProfile) int {
	p := e.params

	total := decimal.NewFromInt(p.Base)
	total = total.Add(decimal.Min(profile.Income.Div(p.IncomeDivisor), p.MaxIncomeBonus))

	if !profile.Income.IsZero() {
		savingsRate := profile.Savings.Div(profile.Income)
		expenseRatio := profile.Expenses.Div(profile.Income)
		total = total.Add(savingsRate.Mul(p.SavingsRateWeight))
		total = total.Sub(expenseRatio.Mul(p.ExpenseRatioWeight))
	}

	history := decimal.NewFromInt(int64(len(profile.CreditHistory)))
	total = total.Add(history.Mul(decimal.NewFromInt(p.HistoryEntryPoints)))

	return int(clamp(total.Round(0).IntPart(), p.Floor, p.Ceiling))
}

func clamp(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
