// Package ledger declares the persistence ports the budget engine is built on.
// Every read is scoped by owner, either directly or through a category the
// caller has already checked.
package ledger

import (
	"context"

	"budgetly/internal/core"

	"github.com/shopspring/decimal"
)

type (
	Reader interface {
		ListOwners(ctx context.Context) ([]int64, error)

		// ListCategories returns the owner's categories in insertion order.
		ListCategories(ctx context.Context, ownerID int64) ([]core.Category, error)
		CategoryBelongsTo(ctx context.Context, categoryID, ownerID int64) (bool, error)

		// ListBudgets returns every budget of the owner's categories for the period.
		ListBudgets(ctx context.Context, ownerID int64, p core.Period) ([]core.Budget, error)
		// HasBudgets reports whether the owner has at least one budget in the period.
		HasBudgets(ctx context.Context, ownerID int64, p core.Period) (bool, error)
		GetBudget(ctx context.Context, categoryID int64, p core.Period) (core.Budget, bool, error)

		// SumExpenses totals expense transactions of the category whose stored
		// timestamp falls inside the period. No rows yields zero.
		SumExpenses(ctx context.Context, ownerID, categoryID int64, p core.Period) (decimal.Decimal, error)
	}

	Writer interface {
		CreateOwner(ctx context.Context, name string) (int64, error)
		CreateCategory(ctx context.Context, c core.Category) (int64, error)
		AddTransaction(ctx context.Context, t core.Transaction) (int64, error)

		// UpsertBudget creates or overwrites the budget keyed by (category, period).
		// created is false when an existing row was overwritten.
		UpsertBudget(ctx context.Context, categoryID int64, p core.Period, amount decimal.Decimal) (b core.Budget, created bool, err error)

		// Cascade steps for category deletion, issued in order by the caller.
		ClearTransactionCategory(ctx context.Context, categoryID int64) (int64, error)
		DeleteBudgetsForCategory(ctx context.Context, categoryID int64) (int64, error)
		DeleteCategory(ctx context.Context, categoryID int64) error
	}

	// Tx is the view of the ledger available inside a unit of work.
	Tx interface {
		Reader
		Writer
	}

	// Store is a ledger that can run a unit of work atomically: fn's writes are
	// all committed or all discarded.
	Store interface {
		Tx
		Atomic(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
		Close() error
	}
)
