package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"budgetly/internal/core"

	"github.com/shopspring/decimal"
)

// timeLayout is fixed width so stored timestamps compare lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

const createOwner = `INSERT INTO owners (name) VALUES (?) RETURNING id`

func (q *Queries) CreateOwner(ctx context.Context, name string) (int64, error) {
	var id int64
	err := q.db.QueryRowContext(ctx, createOwner, name).Scan(&id)
	return id, err
}

const ownerExists = `SELECT EXISTS (SELECT 1 FROM owners WHERE id = ?)`

func (q *Queries) OwnerExists(ctx context.Context, id int64) (bool, error) {
	var ok bool
	err := q.db.QueryRowContext(ctx, ownerExists, id).Scan(&ok)
	return ok, err
}

const listOwners = `SELECT id FROM owners ORDER BY id`

func (q *Queries) ListOwners(ctx context.Context) ([]int64, error) {
	rows, err := q.db.QueryContext(ctx, listOwners)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type CreateCategoryParams struct {
	OwnerID int64
	Name    string
	Color   string
	Icon    string
}

const createCategory = `INSERT INTO categories (owner_id, name, color, icon) VALUES (?, ?, ?, ?) RETURNING id`

func (q *Queries) CreateCategory(ctx context.Context, arg CreateCategoryParams) (int64, error) {
	var id int64
	err := q.db.QueryRowContext(ctx, createCategory, arg.OwnerID, arg.Name, arg.Color, arg.Icon).Scan(&id)
	return id, err
}

const categoryNameTaken = `SELECT EXISTS (SELECT 1 FROM categories WHERE owner_id = ? AND name = ?)`

func (q *Queries) CategoryNameTaken(ctx context.Context, ownerID int64, name string) (bool, error) {
	var ok bool
	err := q.db.QueryRowContext(ctx, categoryNameTaken, ownerID, name).Scan(&ok)
	return ok, err
}

const categoryExists = `SELECT EXISTS (SELECT 1 FROM categories WHERE id = ?)`

func (q *Queries) CategoryExists(ctx context.Context, id int64) (bool, error) {
	var ok bool
	err := q.db.QueryRowContext(ctx, categoryExists, id).Scan(&ok)
	return ok, err
}

const categoryBelongsTo = `SELECT EXISTS (SELECT 1 FROM categories WHERE id = ? AND owner_id = ?)`

func (q *Queries) CategoryBelongsTo(ctx context.Context, categoryID, ownerID int64) (bool, error) {
	var ok bool
	err := q.db.QueryRowContext(ctx, categoryBelongsTo, categoryID, ownerID).Scan(&ok)
	return ok, err
}

const listCategories = `SELECT id, owner_id, name, color, icon FROM categories WHERE owner_id = ? ORDER BY id`

func (q *Queries) ListCategories(ctx context.Context, ownerID int64) ([]core.Category, error) {
	rows, err := q.db.QueryContext(ctx, listCategories, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []core.Category
	for rows.Next() {
		var c core.Category
		if err := rows.Scan(&c.ID, &c.OwnerID, &c.Name, &c.Color, &c.Icon); err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

const deleteCategory = `DELETE FROM categories WHERE id = ?`

func (q *Queries) DeleteCategory(ctx context.Context, id int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteCategory, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type CreateTransactionParams struct {
	OwnerID     int64
	CategoryID  sql.NullInt64
	Kind        string
	Amount      string
	OccurredAt  string
	Description string
}

const createTransaction = `INSERT INTO transactions (owner_id, category_id, kind, amount, occurred_at, description)
VALUES (?, ?, ?, ?, ?, ?) RETURNING id`

func (q *Queries) CreateTransaction(ctx context.Context, arg CreateTransactionParams) (int64, error) {
	var id int64
	err := q.db.QueryRowContext(ctx, createTransaction,
		arg.OwnerID, arg.CategoryID, arg.Kind, arg.Amount, arg.OccurredAt, arg.Description,
	).Scan(&id)
	return id, err
}

const clearTransactionCategory = `UPDATE transactions SET category_id = NULL WHERE category_id = ?`

func (q *Queries) ClearTransactionCategory(ctx context.Context, categoryID int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, clearTransactionCategory, categoryID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type ListExpenseAmountsParams struct {
	OwnerID    int64
	CategoryID int64
	From       string
	To         string
}

const listExpenseAmounts = `SELECT amount FROM transactions
WHERE owner_id = ? AND category_id = ? AND kind = 'expense'
  AND occurred_at >= ? AND occurred_at < ?`

func (q *Queries) ListExpenseAmounts(ctx context.Context, arg ListExpenseAmountsParams) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, listExpenseAmounts, arg.OwnerID, arg.CategoryID, arg.From, arg.To)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []string
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

const listBudgets = `SELECT b.id, b.category_id, b.month, b.year, b.amount
FROM budgets b JOIN categories c ON c.id = b.category_id
WHERE c.owner_id = ? AND b.month = ? AND b.year = ?
ORDER BY b.id`

func (q *Queries) ListBudgets(ctx context.Context, ownerID int64, p core.Period) ([]core.Budget, error) {
	rows, err := q.db.QueryContext(ctx, listBudgets, ownerID, p.Month, p.Year)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []core.Budget
	for rows.Next() {
		b, err := scanBudget(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, b)
	}
	return items, rows.Err()
}

const hasBudgets = `SELECT EXISTS (
  SELECT 1 FROM budgets b JOIN categories c ON c.id = b.category_id
  WHERE c.owner_id = ? AND b.month = ? AND b.year = ?)`

func (q *Queries) HasBudgets(ctx context.Context, ownerID int64, p core.Period) (bool, error) {
	var ok bool
	err := q.db.QueryRowContext(ctx, hasBudgets, ownerID, p.Month, p.Year).Scan(&ok)
	return ok, err
}

const getBudget = `SELECT id, category_id, month, year, amount FROM budgets
WHERE category_id = ? AND month = ? AND year = ?`

func (q *Queries) GetBudget(ctx context.Context, categoryID int64, p core.Period) (core.Budget, error) {
	return scanBudget(q.db.QueryRowContext(ctx, getBudget, categoryID, p.Month, p.Year))
}

type UpsertBudgetParams struct {
	CategoryID int64
	Month      int
	Year       int
	Amount     string
}

const upsertBudget = `INSERT INTO budgets (category_id, month, year, amount) VALUES (?, ?, ?, ?)
ON CONFLICT (category_id, month, year)
DO UPDATE SET amount = excluded.amount, updated_at = CURRENT_TIMESTAMP
RETURNING id`

func (q *Queries) UpsertBudget(ctx context.Context, arg UpsertBudgetParams) (int64, error) {
	var id int64
	err := q.db.QueryRowContext(ctx, upsertBudget, arg.CategoryID, arg.Month, arg.Year, arg.Amount).Scan(&id)
	return id, err
}

const deleteBudgetsForCategory = `DELETE FROM budgets WHERE category_id = ?`

func (q *Queries) DeleteBudgetsForCategory(ctx context.Context, categoryID int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteBudgetsForCategory, categoryID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBudget(s scanner) (core.Budget, error) {
	var (
		b      core.Budget
		amount string
	)
	if err := s.Scan(&b.ID, &b.CategoryID, &b.Period.Month, &b.Period.Year, &amount); err != nil {
		return core.Budget{}, err
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return core.Budget{}, fmt.Errorf("budget %d amount %q: %w", b.ID, amount, err)
	}
	b.Amount = d
	return b, nil
}
