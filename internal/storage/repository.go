package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"budgetly/internal/core"
	"budgetly/internal/ledger"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

var (
	_ ledger.Store = (*SQLiteRepository)(nil)
	_ ledger.Tx    = txLedger{}
)

type SQLiteRepository struct {
	txLedger
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", DSN(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{txLedger: txLedger{q: New(db)}, db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Atomic runs fn inside one sql.Tx, committing only when fn returns nil.
func (r *SQLiteRepository) Atomic(ctx context.Context, fn func(ctx context.Context, tx ledger.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(ctx, txLedger{q: r.q.WithTx(tx)}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.WarnContext(ctx, "Rollback failed", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// UpsertBudget reads then writes, so outside a unit of work it opens its own
// to keep the created flag accurate.
func (r *SQLiteRepository) UpsertBudget(ctx context.Context, categoryID int64, p core.Period, amount decimal.Decimal) (core.Budget, bool, error) {
	var (
		b       core.Budget
		created bool
	)
	err := r.Atomic(ctx, func(ctx context.Context, tx ledger.Tx) error {
		var err error
		b, created, err = tx.UpsertBudget(ctx, categoryID, p, amount)
		return err
	})
	return b, created, err
}

// txLedger implements ledger.Tx over either the pool or a *sql.Tx.
type txLedger struct {
	q *Queries
}

func (l txLedger) ListOwners(ctx context.Context) ([]int64, error) {
	ids, err := l.q.ListOwners(ctx)
	if err != nil {
		return nil, fmt.Errorf("list owners: %w", err)
	}
	return ids, nil
}

func (l txLedger) ListCategories(ctx context.Context, ownerID int64) ([]core.Category, error) {
	cats, err := l.q.ListCategories(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return cats, nil
}

func (l txLedger) CategoryBelongsTo(ctx context.Context, categoryID, ownerID int64) (bool, error) {
	ok, err := l.q.CategoryBelongsTo(ctx, categoryID, ownerID)
	if err != nil {
		return false, fmt.Errorf("check category owner: %w", err)
	}
	return ok, nil
}

func (l txLedger) ListBudgets(ctx context.Context, ownerID int64, p core.Period) ([]core.Budget, error) {
	budgets, err := l.q.ListBudgets(ctx, ownerID, p)
	if err != nil {
		return nil, fmt.Errorf("list budgets for %s: %w", p, err)
	}
	return budgets, nil
}

func (l txLedger) HasBudgets(ctx context.Context, ownerID int64, p core.Period) (bool, error) {
	ok, err := l.q.HasBudgets(ctx, ownerID, p)
	if err != nil {
		return false, fmt.Errorf("check budgets for %s: %w", p, err)
	}
	return ok, nil
}

func (l txLedger) GetBudget(ctx context.Context, categoryID int64, p core.Period) (core.Budget, bool, error) {
	b, err := l.q.GetBudget(ctx, categoryID, p)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Budget{}, false, nil
	}
	if err != nil {
		return core.Budget{}, false, fmt.Errorf("get budget: %w", err)
	}
	return b, true, nil
}

// SumExpenses adds the amounts in Go; SQLite would sum the TEXT column as
// floating point.
func (l txLedger) SumExpenses(ctx context.Context, ownerID, categoryID int64, p core.Period) (decimal.Decimal, error) {
	amounts, err := l.q.ListExpenseAmounts(ctx, ListExpenseAmountsParams{
		OwnerID:    ownerID,
		CategoryID: categoryID,
		From:       formatTime(p.Start()),
		To:         formatTime(p.End()),
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("list expense amounts: %w", err)
	}
	total := decimal.Zero
	for _, a := range amounts {
		d, err := decimal.NewFromString(a)
		if err != nil {
			return decimal.Zero, fmt.Errorf("parse stored amount %q: %w", a, err)
		}
		total = total.Add(d)
	}
	return total, nil
}

func (l txLedger) CreateOwner(ctx context.Context, name string) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, fmt.Errorf("empty owner name")
	}
	id, err := l.q.CreateOwner(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("create owner: %w", err)
	}
	return id, nil
}

func (l txLedger) CreateCategory(ctx context.Context, c core.Category) (int64, error) {
	if err := c.Validate(); err != nil {
		return 0, err
	}
	c.Name = strings.TrimSpace(c.Name)
	if c.Color == "" {
		c.Color = core.DefaultColor
	}
	ok, err := l.q.OwnerExists(ctx, c.OwnerID)
	if err != nil {
		return 0, fmt.Errorf("check owner: %w", err)
	}
	if !ok {
		return 0, fmt.Errorf("%w: %d", core.ErrOwnerNotFound, c.OwnerID)
	}
	taken, err := l.q.CategoryNameTaken(ctx, c.OwnerID, c.Name)
	if err != nil {
		return 0, fmt.Errorf("check category name: %w", err)
	}
	if taken {
		return 0, fmt.Errorf("%w: %q", core.ErrCategoryExists, c.Name)
	}
	id, err := l.q.CreateCategory(ctx, CreateCategoryParams{
		OwnerID: c.OwnerID,
		Name:    c.Name,
		Color:   c.Color,
		Icon:    c.Icon,
	})
	if err != nil {
		return 0, fmt.Errorf("create category: %w", err)
	}
	return id, nil
}

func (l txLedger) AddTransaction(ctx context.Context, t core.Transaction) (int64, error) {
	if err := t.Validate(); err != nil {
		return 0, err
	}
	ok, err := l.q.OwnerExists(ctx, t.OwnerID)
	if err != nil {
		return 0, fmt.Errorf("check owner: %w", err)
	}
	if !ok {
		return 0, fmt.Errorf("%w: %d", core.ErrOwnerNotFound, t.OwnerID)
	}
	var category sql.NullInt64
	if t.CategoryID != nil {
		ok, err := l.q.CategoryExists(ctx, *t.CategoryID)
		if err != nil {
			return 0, fmt.Errorf("check category: %w", err)
		}
		if !ok {
			return 0, core.ErrCategoryNotFound
		}
		category = sql.NullInt64{Int64: *t.CategoryID, Valid: true}
	}
	id, err := l.q.CreateTransaction(ctx, CreateTransactionParams{
		OwnerID:     t.OwnerID,
		CategoryID:  category,
		Kind:        string(t.Kind),
		Amount:      t.Amount.String(),
		OccurredAt:  formatTime(t.OccurredAt),
		Description: t.Description,
	})
	if err != nil {
		return 0, fmt.Errorf("create transaction: %w", err)
	}
	return id, nil
}

func (l txLedger) UpsertBudget(ctx context.Context, categoryID int64, p core.Period, amount decimal.Decimal) (core.Budget, bool, error) {
	ok, err := l.q.CategoryExists(ctx, categoryID)
	if err != nil {
		return core.Budget{}, false, fmt.Errorf("check category: %w", err)
	}
	if !ok {
		return core.Budget{}, false, core.ErrCategoryNotFound
	}
	_, existed, err := l.GetBudget(ctx, categoryID, p)
	if err != nil {
		return core.Budget{}, false, err
	}
	id, err := l.q.UpsertBudget(ctx, UpsertBudgetParams{
		CategoryID: categoryID,
		Month:      p.Month,
		Year:       p.Year,
		Amount:     amount.String(),
	})
	if err != nil {
		return core.Budget{}, false, fmt.Errorf("upsert budget: %w", err)
	}
	return core.Budget{ID: id, CategoryID: categoryID, Period: p, Amount: amount}, !existed, nil
}

func (l txLedger) ClearTransactionCategory(ctx context.Context, categoryID int64) (int64, error) {
	n, err := l.q.ClearTransactionCategory(ctx, categoryID)
	if err != nil {
		return 0, fmt.Errorf("clear transaction category: %w", err)
	}
	return n, nil
}

func (l txLedger) DeleteBudgetsForCategory(ctx context.Context, categoryID int64) (int64, error) {
	n, err := l.q.DeleteBudgetsForCategory(ctx, categoryID)
	if err != nil {
		return 0, fmt.Errorf("delete budgets: %w", err)
	}
	return n, nil
}

func (l txLedger) DeleteCategory(ctx context.Context, categoryID int64) error {
	n, err := l.q.DeleteCategory(ctx, categoryID)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	if n == 0 {
		return core.ErrCategoryNotFound
	}
	return nil
}
