package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"budgetly/internal/amqp"
	"budgetly/internal/core"
	"budgetly/internal/ledger"
	applog "budgetly/internal/log"

	"github.com/shopspring/decimal"
)

// Publisher receives budget events after the ledger change is committed.
// *amqp.Client satisfies it.
type Publisher interface {
	PublishBudgetEvent(ctx context.Context, e *amqp.BudgetEvent) error
	Close() error
}

// DefaultCategories are created for every new owner.
var DefaultCategories = []core.Category{
	{Name: "Food", Color: "#FF6384"},
	{Name: "Transport", Color: "#36A2EB"},
	{Name: "Shopping", Color: "#FFCE56"},
	{Name: "Bills", Color: "#4BC0C0"},
	{Name: "Entertainment", Color: "#9966FF"},
	{Name: "Other", Color: "#C9CBCF"},
}

// BudgetEntry is one item of a bulk budget submission.
type BudgetEntry struct {
	CategoryID int64
	Amount     decimal.Decimal
}

// EntryError reports why one entry of a batch was not saved.
type EntryError struct {
	CategoryID int64
	Err        error
}

type BatchResult struct {
	Saved  int
	Failed []EntryError
}

// DeleteResult counts what the category cascade touched.
type DeleteResult struct {
	TransactionsCleared int64
	BudgetsDeleted      int64
}

// BudgetService is the entry point for budget reads and writes. Every call
// runs in one ledger unit of work; events are published only after commit.
type BudgetService struct {
	store     ledger.Store
	publisher Publisher
	// now stamps events that are not tied to a requested period.
	now func() time.Time
}

// NewBudgetService accepts a nil publisher, in which case no events are sent.
func NewBudgetService(store ledger.Store, publisher Publisher) *BudgetService {
	return &BudgetService{
		store:     store,
		publisher: publisher,
		now:       time.Now,
	}
}

// CurrentPeriod is the period containing today. The reference date is always
// supplied by the caller.
func CurrentPeriod(today time.Time) core.Period {
	return core.PeriodOf(today)
}

func (s *BudgetService) CurrentPeriod(today time.Time) core.Period {
	return CurrentPeriod(today)
}

func (s *BudgetService) GetPeriodSummary(ctx context.Context, ownerID int64, month, year int) (core.PeriodSummary, error) {
	p, err := core.NewPeriod(month, year)
	if err != nil {
		return core.PeriodSummary{}, err
	}

	var summary core.PeriodSummary
	err = s.store.Atomic(ctx, func(ctx context.Context, tx ledger.Tx) error {
		var err error
		summary, err = NewSummaryBuilder(tx).Summarize(ctx, ownerID, p)
		return err
	})
	if err != nil {
		return core.PeriodSummary{}, fmt.Errorf("summarize %s: %w", p, err)
	}

	slog.DebugContext(ctx, "Built period summary",
		applog.FieldComponent, applog.ComponentBudget,
		applog.FieldOwnerID, ownerID,
		applog.FieldPeriod, p.String(),
		applog.FieldFallback, summary.FallbackApplied)
	return summary, nil
}

// CopyBudgetsForward copies the budgets of the month before target into
// target. ErrNoSourceBudgets means there was nothing to copy and nothing
// changed.
func (s *BudgetService) CopyBudgetsForward(ctx context.Context, ownerID int64, targetMonth, targetYear int) (RolloverResult, error) {
	target, err := core.NewPeriod(targetMonth, targetYear)
	if err != nil {
		return RolloverResult{}, err
	}

	var res RolloverResult
	err = s.store.Atomic(ctx, func(ctx context.Context, tx ledger.Tx) error {
		var err error
		res, err = NewRolloverEngine(tx).CopyForward(ctx, ownerID, target)
		return err
	})
	if errors.Is(err, core.ErrNoSourceBudgets) {
		slog.InfoContext(ctx, "No budgets to copy forward",
			applog.FieldComponent, applog.ComponentBudget,
			applog.FieldOwnerID, ownerID,
			applog.FieldPeriod, target.String())
		return res, err
	}
	if err != nil {
		return RolloverResult{}, fmt.Errorf("copy budgets into %s: %w", target, err)
	}

	slog.InfoContext(ctx, "Copied budgets forward",
		applog.FieldComponent, applog.ComponentBudget,
		applog.FieldOwnerID, ownerID,
		applog.FieldPeriod, target.String(),
		applog.FieldCopied, res.Copied,
		applog.FieldCreated, res.Created,
		applog.FieldOverwritten, res.Overwritten,
		applog.FieldSkipped, len(res.Skipped))

	e := amqp.NewBudgetEvent(amqp.EventBudgetsRolled, ownerID, target)
	e.Copied = res.Copied
	s.publish(ctx, e)
	return res, nil
}

// SetBudget creates or overwrites the budget of one category for one month.
func (s *BudgetService) SetBudget(ctx context.Context, ownerID, categoryID int64, month, year int, amount decimal.Decimal) (int64, error) {
	p, err := core.NewPeriod(month, year)
	if err != nil {
		return 0, err
	}
	if err := core.ValidateBudgetAmount(amount); err != nil {
		return 0, err
	}

	var b core.Budget
	err = s.store.Atomic(ctx, func(ctx context.Context, tx ledger.Tx) error {
		var err error
		b, err = setBudget(ctx, tx, ownerID, categoryID, p, amount)
		return err
	})
	if err != nil {
		return 0, err
	}

	e := amqp.NewBudgetEvent(amqp.EventBudgetSet, ownerID, p)
	e.CategoryID = categoryID
	s.publish(ctx, e)
	return b.ID, nil
}

// SetBudgets saves a batch of budgets for one period. Entries are validated
// one by one; an invalid entry is reported in the result and the rest are
// still saved. A store failure aborts the whole batch.
func (s *BudgetService) SetBudgets(ctx context.Context, ownerID int64, p core.Period, entries []BudgetEntry) (BatchResult, error) {
	if err := p.Validate(); err != nil {
		return BatchResult{}, err
	}

	var res BatchResult
	err := s.store.Atomic(ctx, func(ctx context.Context, tx ledger.Tx) error {
		res = BatchResult{}
		for _, entry := range entries {
			if err := core.ValidateBudgetAmount(entry.Amount); err != nil {
				res.Failed = append(res.Failed, EntryError{CategoryID: entry.CategoryID, Err: err})
				continue
			}
			_, err := setBudget(ctx, tx, ownerID, entry.CategoryID, p, entry.Amount)
			if errors.Is(err, core.ErrCategoryNotOwned) {
				res.Failed = append(res.Failed, EntryError{CategoryID: entry.CategoryID, Err: err})
				continue
			}
			if err != nil {
				return err
			}
			res.Saved++
		}
		return nil
	})
	if err != nil {
		return BatchResult{}, fmt.Errorf("save budgets for %s: %w", p, err)
	}

	for _, f := range res.Failed {
		slog.WarnContext(ctx, "Budget entry rejected",
			applog.FieldComponent, applog.ComponentBudget,
			applog.FieldOwnerID, ownerID,
			applog.FieldCategoryID, f.CategoryID,
			applog.FieldError, f.Err)
	}
	if res.Saved > 0 {
		s.publish(ctx, amqp.NewBudgetEvent(amqp.EventBudgetSet, ownerID, p))
	}
	return res, nil
}

// DeleteCategory removes a category of the owner. Its transactions are kept
// without a category and its budgets are deleted, all in one unit of work.
func (s *BudgetService) DeleteCategory(ctx context.Context, ownerID, categoryID int64) (DeleteResult, error) {
	var res DeleteResult
	err := s.store.Atomic(ctx, func(ctx context.Context, tx ledger.Tx) error {
		if err := requireOwned(ctx, tx, ownerID, categoryID); err != nil {
			return err
		}
		var err error
		if res.TransactionsCleared, err = tx.ClearTransactionCategory(ctx, categoryID); err != nil {
			return err
		}
		if res.BudgetsDeleted, err = tx.DeleteBudgetsForCategory(ctx, categoryID); err != nil {
			return err
		}
		return tx.DeleteCategory(ctx, categoryID)
	})
	if err != nil {
		return DeleteResult{}, err
	}

	slog.InfoContext(ctx, "Category deleted",
		applog.FieldComponent, applog.ComponentBudget,
		applog.FieldOwnerID, ownerID,
		applog.FieldCategoryID, categoryID,
		"transactions_cleared", res.TransactionsCleared,
		"budgets_deleted", res.BudgetsDeleted)

	e := amqp.NewBudgetEvent(amqp.EventCategoryDeleted, ownerID, CurrentPeriod(s.now()))
	e.CategoryID = categoryID
	s.publish(ctx, e)
	return res, nil
}

func (s *BudgetService) ListOwners(ctx context.Context) ([]int64, error) {
	return s.store.ListOwners(ctx)
}

func (s *BudgetService) ListCategories(ctx context.Context, ownerID int64) ([]core.Category, error) {
	return s.store.ListCategories(ctx, ownerID)
}

func (s *BudgetService) CreateCategory(ctx context.Context, c core.Category) (int64, error) {
	return s.store.CreateCategory(ctx, c)
}

// CreateOwner creates an owner together with the default categories.
func (s *BudgetService) CreateOwner(ctx context.Context, name string) (int64, error) {
	var ownerID int64
	err := s.store.Atomic(ctx, func(ctx context.Context, tx ledger.Tx) error {
		var err error
		if ownerID, err = tx.CreateOwner(ctx, name); err != nil {
			return err
		}
		_, err = SeedDefaultCategories(ctx, tx, ownerID)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("create owner: %w", err)
	}
	return ownerID, nil
}

// AddTransaction records an income or expense. A category, when given, must
// belong to the same owner.
func (s *BudgetService) AddTransaction(ctx context.Context, t core.Transaction) (int64, error) {
	if err := t.Validate(); err != nil {
		return 0, err
	}
	var id int64
	err := s.store.Atomic(ctx, func(ctx context.Context, tx ledger.Tx) error {
		if t.CategoryID != nil {
			if err := requireOwned(ctx, tx, t.OwnerID, *t.CategoryID); err != nil {
				return err
			}
		}
		var err error
		id, err = tx.AddTransaction(ctx, t)
		return err
	})
	return id, err
}

// SeedDefaultCategories creates DefaultCategories for the owner, skipping
// names that already exist. It returns how many were created.
func SeedDefaultCategories(ctx context.Context, w ledger.Tx, ownerID int64) (int, error) {
	created := 0
	for _, c := range DefaultCategories {
		c.OwnerID = ownerID
		_, err := w.CreateCategory(ctx, c)
		if errors.Is(err, core.ErrCategoryExists) {
			continue
		}
		if err != nil {
			return created, fmt.Errorf("seed category %s: %w", c.Name, err)
		}
		created++
	}
	return created, nil
}

func (s *BudgetService) Close() error {
	var errs []error

	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}

	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("publisher: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close budget service: %w", errors.Join(errs...))
	}
	return nil
}

func (s *BudgetService) publish(ctx context.Context, e *amqp.BudgetEvent) {
	if s.publisher == nil {
		slog.DebugContext(ctx, "Publisher not configured, skipping event",
			applog.FieldEventType, string(e.Type))
		return
	}
	// The ledger change is committed; a lost event only delays the export.
	if err := s.publisher.PublishBudgetEvent(ctx, e); err != nil {
		slog.ErrorContext(ctx, "Failed to publish budget event",
			applog.FieldComponent, applog.ComponentAMQP,
			applog.FieldEventType, string(e.Type),
			applog.FieldEventID, e.ID,
			applog.FieldError, err)
	}
}

func requireOwned(ctx context.Context, r ledger.Reader, ownerID, categoryID int64) error {
	ok, err := r.CategoryBelongsTo(ctx, categoryID, ownerID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: category %d", core.ErrCategoryNotOwned, categoryID)
	}
	return nil
}

func setBudget(ctx context.Context, tx ledger.Tx, ownerID, categoryID int64, p core.Period, amount decimal.Decimal) (core.Budget, error) {
	if err := requireOwned(ctx, tx, ownerID, categoryID); err != nil {
		return core.Budget{}, err
	}
	b, created, err := tx.UpsertBudget(ctx, categoryID, p, amount)
	if err != nil {
		return core.Budget{}, fmt.Errorf("upsert budget: %w", err)
	}
	slog.InfoContext(ctx, "Budget set",
		applog.FieldComponent, applog.ComponentBudget,
		applog.FieldOwnerID, ownerID,
		applog.FieldCategoryID, categoryID,
		applog.FieldPeriod, p.String(),
		applog.FieldAmount, amount.String(),
		applog.FieldCreated, created)
	return b, nil
}
