package score

import "github.com/shopspring/decimal"

// Params defines the weights and bounds of the credit score formula.
type Params struct {
	// Bounds
	Base    int64
	Floor   int64
	Ceiling int64

	// Income bonus is income / IncomeDivisor, capped at MaxIncomeBonus
	IncomeDivisor  decimal.Decimal
	MaxIncomeBonus decimal.Decimal

	// Ratio weights, applied only when income is non-zero
	SavingsRateWeight  decimal.Decimal
	ExpenseRatioWeight decimal.Decimal

	// Points per credit history entry
	HistoryEntryPoints int64
}

// ParamsConfig allows overriding the defaults when creating a new Params instance.
// Zero values keep the default.
type ParamsConfig struct {
	Base               int64
	Floor              int64
	Ceiling            int64
	IncomeDivisor      int64
	MaxIncomeBonus     int64
	SavingsRateWeight  int64
	ExpenseRatioWeight int64
	HistoryEntryPoints int64
}

// NewDefaultParams returns the standard inclusive credit score parameters.
func NewDefaultParams() *Params {
	return &Params{
		Base:               300,
		Floor:              300,
		Ceiling:            850,
		IncomeDivisor:      decimal.NewFromInt(1000),
		MaxIncomeBonus:     decimal.NewFromInt(100),
		SavingsRateWeight:  decimal.NewFromInt(100),
		ExpenseRatioWeight: decimal.NewFromInt(50),
		HistoryEntryPoints: 10,
	}
}

// NewParams creates a Params instance from the defaults with cfg's overrides applied.
func NewParams(cfg ParamsConfig) *Params {
	p := NewDefaultParams()

	if cfg.Base != 0 {
		p.Base = cfg.Base
	}
	if cfg.Floor != 0 {
		p.Floor = cfg.Floor
	}
	if cfg.Ceiling != 0 {
		p.Ceiling = cfg.Ceiling
	}
	if cfg.IncomeDivisor > 0 {
		p.IncomeDivisor = decimal.NewFromInt(cfg.IncomeDivisor)
	}
	if cfg.MaxIncomeBonus > 0 {
		p.MaxIncomeBonus = decimal.NewFromInt(cfg.MaxIncomeBonus)
	}
	if cfg.SavingsRateWeight != 0 {
		p.SavingsRateWeight = decimal.NewFromInt(cfg.SavingsRateWeight)
	}
	if cfg.ExpenseRatioWeight != 0 {
		p.ExpenseRatioWeight = decimal.NewFromInt(cfg.ExpenseRatioWeight)
	}
	if cfg.HistoryEntryPoints != 0 {
		p.HistoryEntryPoints = cfg.HistoryEntryPoints
	}

	return p
}
