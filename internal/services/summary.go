package services

import (
	"context"
	"fmt"

	"budgetly/internal/core"
	"budgetly/internal/ledger"
)

// SummaryBuilder assembles the per-category view of one period.
type SummaryBuilder struct {
	ledger   ledger.Reader
	resolver BudgetResolver
	spend    SpendAggregator
}

func NewSummaryBuilder(r ledger.Reader) SummaryBuilder {
	return SummaryBuilder{
		ledger:   r,
		resolver: NewBudgetResolver(r),
		spend:    NewSpendAggregator(r),
	}
}

// Summarize lists every category of the owner in insertion order with its
// limit, spend and remaining amount.
//
// The previous month's limits are shown only when the owner has no budget at
// all in p. Once any budget exists for p, categories without one report zero.
func (b SummaryBuilder) Summarize(ctx context.Context, ownerID int64, p core.Period) (core.PeriodSummary, error) {
	if err := p.Validate(); err != nil {
		return core.PeriodSummary{}, err
	}

	categories, err := b.ledger.ListCategories(ctx, ownerID)
	if err != nil {
		return core.PeriodSummary{}, fmt.Errorf("list categories: %w", err)
	}

	hasBudgets, err := b.ledger.HasBudgets(ctx, ownerID, p)
	if err != nil {
		return core.PeriodSummary{}, fmt.Errorf("check budgets: %w", err)
	}

	summary := core.PeriodSummary{
		OwnerID:         ownerID,
		Period:          p,
		FallbackApplied: !hasBudgets,
		Categories:      make([]core.CategorySummary, 0, len(categories)),
	}

	resolve := b.resolver.ResolveExact
	if summary.FallbackApplied {
		resolve = b.resolver.ResolveForDisplay
	}

	for _, c := range categories {
		limit, source, err := resolve(ctx, c.ID, p)
		if err != nil {
			return core.PeriodSummary{}, err
		}
		spent, err := b.spend.Spend(ctx, ownerID, c.ID, p)
		if err != nil {
			return core.PeriodSummary{}, err
		}
		summary.Add(core.NewCategorySummary(c, limit, spent, source))
	}

	return summary, nil
}
