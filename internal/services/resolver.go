package services

import (
	"context"
	"fmt"

	"budgetly/internal/core"
	"budgetly/internal/ledger"

	"github.com/shopspring/decimal"
)

// BudgetResolver finds the limit that applies to a category in a period.
// It never writes: an inherited limit is shown, not copied.
type BudgetResolver struct {
	ledger ledger.Reader
}

func NewBudgetResolver(r ledger.Reader) BudgetResolver {
	return BudgetResolver{ledger: r}
}

// ResolveForDisplay returns the budget set for p, else the one set for the
// previous month, else zero. source is the period the amount came from and
// is nil when no budget was found.
func (r BudgetResolver) ResolveForDisplay(ctx context.Context, categoryID int64, p core.Period) (amount decimal.Decimal, source *core.Period, err error) {
	amount, source, err = r.ResolveExact(ctx, categoryID, p)
	if err != nil || source != nil {
		return amount, source, err
	}
	return r.ResolveExact(ctx, categoryID, p.Predecessor())
}

// ResolveExact returns only the budget set for p itself.
func (r BudgetResolver) ResolveExact(ctx context.Context, categoryID int64, p core.Period) (decimal.Decimal, *core.Period, error) {
	if err := p.Validate(); err != nil {
		return decimal.Zero, nil, err
	}
	b, ok, err := r.ledger.GetBudget(ctx, categoryID, p)
	if err != nil {
		return decimal.Zero, nil, fmt.Errorf("get budget for category %d in %s: %w", categoryID, p, err)
	}
	if !ok {
		return decimal.Zero, nil, nil
	}
	src := b.Period
	return b.Amount, &src, nil
}
