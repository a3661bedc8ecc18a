package services

import (
	"context"
	"fmt"

	"budgetly/internal/core"
	"budgetly/internal/ledger"

	"github.com/shopspring/decimal"
)

// SpendAggregator totals expense transactions per category and period.
type SpendAggregator struct {
	ledger ledger.Reader
}

func NewSpendAggregator(r ledger.Reader) SpendAggregator {
	return SpendAggregator{ledger: r}
}

// Spend returns the sum of the owner's expenses in categoryID whose timestamp
// falls in the period. Income is ignored and an empty result is zero.
func (a SpendAggregator) Spend(ctx context.Context, ownerID, categoryID int64, p core.Period) (decimal.Decimal, error) {
	if err := p.Validate(); err != nil {
		return decimal.Zero, err
	}
	total, err := a.ledger.SumExpenses(ctx, ownerID, categoryID, p)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum expenses for category %d: %w", categoryID, err)
	}
	return total, nil
}
