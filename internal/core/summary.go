package core

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// CategorySummary is the per-category line of a period summary.
type CategorySummary struct {
	Category  Category
	Limit     decimal.Decimal
	Spent     decimal.Decimal
	Available decimal.Decimal
	Percent   decimal.Decimal
	// LimitSource is the period the limit was read from; nil when no budget applied.
	LimitSource *Period
}

type Totals struct {
	Limit     decimal.Decimal
	Spent     decimal.Decimal
	Available decimal.Decimal
}

// PeriodSummary is derived on every request and never stored.
type PeriodSummary struct {
	OwnerID         int64
	Period          Period
	FallbackApplied bool
	Categories      []CategorySummary
	Totals          Totals
}

func NewCategorySummary(c Category, limit, spent decimal.Decimal, source *Period) CategorySummary {
	return CategorySummary{
		Category:    c,
		Limit:       limit,
		Spent:       spent,
		Available:   limit.Sub(spent),
		Percent:     PercentUsed(limit, spent),
		LimitSource: source,
	}
}

// PercentUsed is spent/limit*100 rounded to two places, or 0 when limit is not positive.
func PercentUsed(limit, spent decimal.Decimal) decimal.Decimal {
	if !limit.IsPositive() {
		return decimal.Zero
	}
	return spent.Div(limit).Mul(hundred).Round(2)
}

// Add appends a line and folds it into the totals.
func (s *PeriodSummary) Add(cs CategorySummary) {
	s.Categories = append(s.Categories, cs)
	s.Totals.Limit = s.Totals.Limit.Add(cs.Limit)
	s.Totals.Spent = s.Totals.Spent.Add(cs.Spent)
	s.Totals.Available = s.Totals.Available.Add(cs.Available)
}
