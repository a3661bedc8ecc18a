package services

import (
	"context"
	"fmt"
	"log/slog"

	"budgetly/internal/core"
	"budgetly/internal/ledger"
	applog "budgetly/internal/log"
)

// SkippedBudget is a source budget that was not copied and why.
type SkippedBudget struct {
	CategoryID int64
	Reason     error
}

type RolloverResult struct {
	Source      core.Period
	Target      core.Period
	Copied      int
	Created     int
	Overwritten int
	Skipped     []SkippedBudget
}

// RolloverEngine copies the previous month's budgets into a target month.
type RolloverEngine struct {
	ledger ledger.Tx
}

func NewRolloverEngine(tx ledger.Tx) RolloverEngine {
	return RolloverEngine{ledger: tx}
}

// CopyForward upserts every budget of target.Predecessor() into target with
// the same amount, overwriting budgets that already exist there. Running it
// twice leaves the same state as running it once.
//
// ErrNoSourceBudgets is returned, with nothing written, when the previous
// month has no budgets. A budget whose category no longer belongs to the
// owner is skipped and reported.
func (e RolloverEngine) CopyForward(ctx context.Context, ownerID int64, target core.Period) (RolloverResult, error) {
	if err := target.Validate(); err != nil {
		return RolloverResult{}, err
	}
	res := RolloverResult{Source: target.Predecessor(), Target: target}

	budgets, err := e.ledger.ListBudgets(ctx, ownerID, res.Source)
	if err != nil {
		return res, fmt.Errorf("list source budgets: %w", err)
	}
	if len(budgets) == 0 {
		return res, fmt.Errorf("%w: %s", core.ErrNoSourceBudgets, res.Source)
	}

	for _, b := range budgets {
		owned, err := e.ledger.CategoryBelongsTo(ctx, b.CategoryID, ownerID)
		if err != nil {
			return res, fmt.Errorf("check category %d: %w", b.CategoryID, err)
		}
		if !owned {
			slog.WarnContext(ctx, "Skipping budget of foreign category",
				applog.FieldOwnerID, ownerID,
				applog.FieldCategoryID, b.CategoryID)
			res.Skipped = append(res.Skipped, SkippedBudget{CategoryID: b.CategoryID, Reason: core.ErrCategoryNotOwned})
			continue
		}

		_, created, err := e.ledger.UpsertBudget(ctx, b.CategoryID, target, b.Amount)
		if err != nil {
			return res, fmt.Errorf("copy budget of category %d: %w", b.CategoryID, err)
		}
		if created {
			res.Created++
		} else {
			res.Overwritten++
		}
	}
	res.Copied = res.Created + res.Overwritten
	return res, nil
}
