package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"budgetly/internal/amqp"
	"budgetly/internal/core"
	"budgetly/internal/ledger"
	"budgetly/internal/ledger/memory"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []*amqp.BudgetEvent
	err    error
}

func (p *recordingPublisher) PublishBudgetEvent(_ context.Context, e *amqp.BudgetEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []amqp.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []amqp.EventType
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	ctx   context.Context
	store *memory.Store
	svc   *BudgetService
	pub   *recordingPublisher
	owner int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	pub := &recordingPublisher{}
	owner, err := store.CreateOwner(ctx, "alice")
	require.NoError(t, err)
	return &fixture{ctx: ctx, store: store, svc: NewBudgetService(store, pub), pub: pub, owner: owner}
}

func (f *fixture) category(t *testing.T, name string) int64 {
	t.Helper()
	id, err := f.store.CreateCategory(f.ctx, core.Category{OwnerID: f.owner, Name: name})
	require.NoError(t, err)
	return id
}

func (f *fixture) expense(t *testing.T, categoryID int64, amount string, at time.Time) {
	t.Helper()
	c := categoryID
	_, err := f.store.AddTransaction(f.ctx, core.Transaction{
		OwnerID:    f.owner,
		CategoryID: &c,
		Kind:       core.Expense,
		Amount:     decimal.RequireFromString(amount),
		OccurredAt: at,
	})
	require.NoError(t, err)
}

func (f *fixture) setBudget(t *testing.T, categoryID int64, month, year int, amount int64) {
	t.Helper()
	_, err := f.svc.SetBudget(f.ctx, f.owner, categoryID, month, year, decimal.NewFromInt(amount))
	require.NoError(t, err)
}

func day(year, month, d int) time.Time {
	return time.Date(year, time.Month(month), d, 12, 0, 0, 0, time.UTC)
}

func line(t *testing.T, s core.PeriodSummary, categoryID int64) core.CategorySummary {
	t.Helper()
	for _, cs := range s.Categories {
		if cs.Category.ID == categoryID {
			return cs
		}
	}
	t.Fatalf("category %d missing from summary", categoryID)
	return core.CategorySummary{}
}

func assertLine(t *testing.T, cs core.CategorySummary, limit, spent, available, percent string) {
	t.Helper()
	assert.Equal(t, limit, cs.Limit.String(), "limit")
	assert.Equal(t, spent, cs.Spent.String(), "spent")
	assert.Equal(t, available, cs.Available.String(), "available")
	assert.Equal(t, percent, cs.Percent.String(), "percent")
}

func TestSummaryWithBudgetAndSpend(t *testing.T) {
	f := newFixture(t)
	food := f.category(t, "Food")
	f.setBudget(t, food, 1, 2025, 200)
	f.expense(t, food, "30", day(2025, 1, 5))
	f.expense(t, food, "20", day(2025, 1, 20))

	s, err := f.svc.GetPeriodSummary(f.ctx, f.owner, 1, 2025)
	require.NoError(t, err)
	assert.False(t, s.FallbackApplied)
	cs := line(t, s, food)
	assertLine(t, cs, "200", "50", "150", "25")
	require.NotNil(t, cs.LimitSource)
	assert.Equal(t, core.Period{Month: 1, Year: 2025}, *cs.LimitSource)
}

func TestSummaryNoBudgetNoFallback(t *testing.T) {
	f := newFixture(t)
	food := f.category(t, "Food")
	bills := f.category(t, "Bills")
	f.setBudget(t, food, 1, 2025, 200)
	// Any budget in February closes the fallback for every category.
	f.setBudget(t, bills, 2, 2025, 80)
	f.expense(t, food, "100", day(2025, 2, 10))

	s, err := f.svc.GetPeriodSummary(f.ctx, f.owner, 2, 2025)
	require.NoError(t, err)
	assert.False(t, s.FallbackApplied)
	cs := line(t, s, food)
	assertLine(t, cs, "0", "100", "-100", "0")
	assert.Nil(t, cs.LimitSource)
}

func TestFallbackGate(t *testing.T) {
	t.Run("inherits previous month when period has no budgets", func(t *testing.T) {
		f := newFixture(t)
		food := f.category(t, "Food")
		f.setBudget(t, food, 12, 2024, 999)

		s, err := f.svc.GetPeriodSummary(f.ctx, f.owner, 1, 2025)
		require.NoError(t, err)
		assert.True(t, s.FallbackApplied)
		cs := line(t, s, food)
		assert.Equal(t, "999", cs.Limit.String())
		require.NotNil(t, cs.LimitSource)
		assert.Equal(t, core.Period{Month: 12, Year: 2024}, *cs.LimitSource)

		// Display fallback never writes.
		has, err := f.store.HasBudgets(f.ctx, f.owner, core.Period{Month: 1, Year: 2025})
		require.NoError(t, err)
		assert.False(t, has)
	})

	t.Run("suppressed by any budget in the period", func(t *testing.T) {
		f := newFixture(t)
		food := f.category(t, "Food")
		other := f.category(t, "Other")
		f.setBudget(t, food, 12, 2024, 999)
		f.setBudget(t, other, 1, 2025, 10)

		s, err := f.svc.GetPeriodSummary(f.ctx, f.owner, 1, 2025)
		require.NoError(t, err)
		assert.False(t, s.FallbackApplied)
		assert.True(t, line(t, s, food).Limit.IsZero())
		assert.Equal(t, "10", line(t, s, other).Limit.String())
	})

	t.Run("only one month back", func(t *testing.T) {
		f := newFixture(t)
		food := f.category(t, "Food")
		f.setBudget(t, food, 11, 2024, 500)

		s, err := f.svc.GetPeriodSummary(f.ctx, f.owner, 1, 2025)
		require.NoError(t, err)
		assert.True(t, line(t, s, food).Limit.IsZero())
		assert.Nil(t, line(t, s, food).LimitSource)
	})
}

func TestSummaryKeepsCategoryOrderAndTotals(t *testing.T) {
	f := newFixture(t)
	ids := []int64{f.category(t, "Zeta"), f.category(t, "Alpha"), f.category(t, "Mid")}
	f.setBudget(t, ids[0], 3, 2025, 100)
	f.setBudget(t, ids[1], 3, 2025, 50)
	f.expense(t, ids[1], "75", day(2025, 3, 3))
	f.expense(t, ids[2], "5", day(2025, 3, 3))

	s, err := f.svc.GetPeriodSummary(f.ctx, f.owner, 3, 2025)
	require.NoError(t, err)
	require.Len(t, s.Categories, 3)
	for i, cs := range s.Categories {
		assert.Equal(t, ids[i], cs.Category.ID)
	}
	assert.Equal(t, "150", s.Totals.Limit.String())
	assert.Equal(t, "80", s.Totals.Spent.String())
	assert.Equal(t, "70", s.Totals.Available.String())
	assert.Equal(t, "150", line(t, s, ids[1]).Percent.String())
}

func TestSummaryEmptyOwner(t *testing.T) {
	f := newFixture(t)
	s, err := f.svc.GetPeriodSummary(f.ctx, f.owner, 6, 2025)
	require.NoError(t, err)
	assert.Empty(t, s.Categories)
	assert.True(t, s.Totals.Limit.IsZero())
}

func TestSpendCountsOnlyExpensesInsideMonth(t *testing.T) {
	f := newFixture(t)
	food := f.category(t, "Food")
	jan := core.Period{Month: 1, Year: 2025}

	f.expense(t, food, "10", jan.Start())
	f.expense(t, food, "15", jan.End().Add(-time.Second))
	f.expense(t, food, "1000", jan.Start().Add(-time.Second))
	f.expense(t, food, "2000", jan.End())
	f.expense(t, food, "3000", jan.Start().AddDate(0, 0, -1))
	c := food
	_, err := f.store.AddTransaction(f.ctx, core.Transaction{
		OwnerID: f.owner, CategoryID: &c, Kind: core.Income,
		Amount: decimal.NewFromInt(500), OccurredAt: day(2025, 1, 10),
	})
	require.NoError(t, err)

	got, err := NewSpendAggregator(f.store).Spend(f.ctx, f.owner, food, jan)
	require.NoError(t, err)
	assert.Equal(t, "25", got.String())

	_, err = NewSpendAggregator(f.store).Spend(f.ctx, f.owner, food, core.Period{Month: 13, Year: 2025})
	assert.ErrorIs(t, err, core.ErrInvalidPeriod)
}

func TestCopyBudgetsForward(t *testing.T) {
	f := newFixture(t)
	food := f.category(t, "Food")
	f.setBudget(t, food, 1, 2030, 300)

	res, err := f.svc.CopyBudgetsForward(f.ctx, f.owner, 2, 2030)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Copied)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, core.Period{Month: 1, Year: 2030}, res.Source)

	feb := core.Period{Month: 2, Year: 2030}
	b, ok, err := f.store.GetBudget(f.ctx, food, feb)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "300", b.Amount.String())

	f.setBudget(t, food, 2, 2030, 50)
	res, err = f.svc.CopyBudgetsForward(f.ctx, f.owner, 2, 2030)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Copied)
	assert.Equal(t, 1, res.Overwritten)

	b, _, err = f.store.GetBudget(f.ctx, food, feb)
	require.NoError(t, err)
	assert.Equal(t, "300", b.Amount.String())
}

func TestCopyBudgetsForwardIsIdempotent(t *testing.T) {
	f := newFixture(t)
	a := f.category(t, "Food")
	b := f.category(t, "Bills")
	f.setBudget(t, a, 12, 2024, 120)
	f.setBudget(t, b, 12, 2024, 80)

	_, err := f.svc.CopyBudgetsForward(f.ctx, f.owner, 1, 2025)
	require.NoError(t, err)
	first, err := f.store.ListBudgets(f.ctx, f.owner, core.Period{Month: 1, Year: 2025})
	require.NoError(t, err)

	res, err := f.svc.CopyBudgetsForward(f.ctx, f.owner, 1, 2025)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Overwritten)
	assert.Zero(t, res.Created)
	second, err := f.store.ListBudgets(f.ctx, f.owner, core.Period{Month: 1, Year: 2025})
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestCopyBudgetsForwardNoSource(t *testing.T) {
	f := newFixture(t)
	f.category(t, "Food")

	res, err := f.svc.CopyBudgetsForward(f.ctx, f.owner, 3, 2025)
	assert.ErrorIs(t, err, core.ErrNoSourceBudgets)
	assert.Zero(t, res.Copied)

	has, err := f.store.HasBudgets(f.ctx, f.owner, core.Period{Month: 3, Year: 2025})
	require.NoError(t, err)
	assert.False(t, has)
	assert.Empty(t, f.pub.types())
}

func TestInvalidPeriodRejectedBeforeQueries(t *testing.T) {
	f := newFixture(t)
	food := f.category(t, "Food")

	for _, month := range []int{0, 13, -1} {
		_, err := f.svc.GetPeriodSummary(f.ctx, f.owner, month, 2025)
		assert.ErrorIs(t, err, core.ErrInvalidPeriod)
		_, err = f.svc.CopyBudgetsForward(f.ctx, f.owner, month, 2025)
		assert.ErrorIs(t, err, core.ErrInvalidPeriod)
		_, err = f.svc.SetBudget(f.ctx, f.owner, food, month, 2025, decimal.NewFromInt(1))
		assert.ErrorIs(t, err, core.ErrInvalidPeriod)
	}
}

func TestSetBudget(t *testing.T) {
	f := newFixture(t)
	food := f.category(t, "Food")

	id, err := f.svc.SetBudget(f.ctx, f.owner, food, 4, 2025, decimal.Zero)
	require.NoError(t, err)
	assert.NotZero(t, id)

	again, err := f.svc.SetBudget(f.ctx, f.owner, food, 4, 2025, decimal.NewFromInt(40))
	require.NoError(t, err)
	assert.Equal(t, id, again)

	_, err = f.svc.SetBudget(f.ctx, f.owner, food, 4, 2025, decimal.NewFromInt(-1))
	assert.ErrorIs(t, err, core.ErrNegativeAmount)

	bob, err := f.store.CreateOwner(f.ctx, "bob")
	require.NoError(t, err)
	_, err = f.svc.SetBudget(f.ctx, bob, food, 4, 2025, decimal.NewFromInt(1))
	assert.ErrorIs(t, err, core.ErrCategoryNotOwned)

	assert.Equal(t, []amqp.EventType{amqp.EventBudgetSet, amqp.EventBudgetSet}, f.pub.types())
}

func TestSetBudgetsReportsInvalidEntries(t *testing.T) {
	f := newFixture(t)
	food := f.category(t, "Food")
	bills := f.category(t, "Bills")
	bob, err := f.store.CreateOwner(f.ctx, "bob")
	require.NoError(t, err)
	foreign, err := f.store.CreateCategory(f.ctx, core.Category{OwnerID: bob, Name: "Food"})
	require.NoError(t, err)

	may := core.Period{Month: 5, Year: 2025}
	res, err := f.svc.SetBudgets(f.ctx, f.owner, may, []BudgetEntry{
		{CategoryID: food, Amount: decimal.NewFromInt(100)},
		{CategoryID: bills, Amount: decimal.NewFromInt(-5)},
		{CategoryID: foreign, Amount: decimal.NewFromInt(7)},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Saved)
	require.Len(t, res.Failed, 2)
	assert.ErrorIs(t, res.Failed[0].Err, core.ErrNegativeAmount)
	assert.ErrorIs(t, res.Failed[1].Err, core.ErrCategoryNotOwned)

	budgets, err := f.store.ListBudgets(f.ctx, f.owner, may)
	require.NoError(t, err)
	require.Len(t, budgets, 1)
	assert.Equal(t, food, budgets[0].CategoryID)
}

// failingStore fails the nth upsert inside a unit of work.
type failingStore struct {
	*memory.Store
	failAt int
}

type failingTx struct {
	ledger.Tx
	calls  *int
	failAt int
}

var errDiskFull = errors.New("disk full")

func (t failingTx) UpsertBudget(ctx context.Context, categoryID int64, p core.Period, amount decimal.Decimal) (core.Budget, bool, error) {
	*t.calls++
	if *t.calls == t.failAt {
		return core.Budget{}, false, errDiskFull
	}
	return t.Tx.UpsertBudget(ctx, categoryID, p, amount)
}

func (s failingStore) Atomic(ctx context.Context, fn func(ctx context.Context, tx ledger.Tx) error) error {
	calls := 0
	return s.Store.Atomic(ctx, func(ctx context.Context, tx ledger.Tx) error {
		return fn(ctx, failingTx{Tx: tx, calls: &calls, failAt: s.failAt})
	})
}

func TestStoreFailureRollsBackWholeCall(t *testing.T) {
	f := newFixture(t)
	a := f.category(t, "Food")
	b := f.category(t, "Bills")
	f.setBudget(t, a, 1, 2025, 10)
	f.setBudget(t, b, 1, 2025, 20)

	svc := NewBudgetService(failingStore{Store: f.store, failAt: 2}, nil)
	_, err := svc.CopyBudgetsForward(f.ctx, f.owner, 2, 2025)
	require.ErrorIs(t, err, errDiskFull)

	has, err := f.store.HasBudgets(f.ctx, f.owner, core.Period{Month: 2, Year: 2025})
	require.NoError(t, err)
	assert.False(t, has, "first upsert must not survive the failed rollover")

	_, err = svc.SetBudgets(f.ctx, f.owner, core.Period{Month: 3, Year: 2025}, []BudgetEntry{
		{CategoryID: a, Amount: decimal.NewFromInt(1)},
		{CategoryID: b, Amount: decimal.NewFromInt(2)},
	})
	require.ErrorIs(t, err, errDiskFull)
	has, err = f.store.HasBudgets(f.ctx, f.owner, core.Period{Month: 3, Year: 2025})
	require.NoError(t, err)
	assert.False(t, has)
}

// foreignTx reports one category as belonging to someone else.
type foreignTx struct {
	ledger.Tx
	foreign int64
}

func (t foreignTx) CategoryBelongsTo(ctx context.Context, categoryID, ownerID int64) (bool, error) {
	if categoryID == t.foreign {
		return false, nil
	}
	return t.Tx.CategoryBelongsTo(ctx, categoryID, ownerID)
}

func TestRolloverSkipsForeignCategory(t *testing.T) {
	f := newFixture(t)
	a := f.category(t, "Food")
	b := f.category(t, "Bills")
	f.setBudget(t, a, 6, 2025, 10)
	f.setBudget(t, b, 6, 2025, 20)

	var res RolloverResult
	err := f.store.Atomic(f.ctx, func(ctx context.Context, tx ledger.Tx) error {
		var err error
		res, err = NewRolloverEngine(foreignTx{Tx: tx, foreign: b}).CopyForward(ctx, f.owner, core.Period{Month: 7, Year: 2025})
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Copied)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, b, res.Skipped[0].CategoryID)
	assert.ErrorIs(t, res.Skipped[0].Reason, core.ErrCategoryNotOwned)

	_, ok, err := f.store.GetBudget(f.ctx, b, core.Period{Month: 7, Year: 2025})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRolloverWrapsYear(t *testing.T) {
	f := newFixture(t)
	a := f.category(t, "Food")
	f.setBudget(t, a, 12, 2024, 42)

	res, err := f.svc.CopyBudgetsForward(f.ctx, f.owner, 1, 2025)
	require.NoError(t, err)
	assert.Equal(t, core.Period{Month: 12, Year: 2024}, res.Source)
	assert.Equal(t, 1, res.Copied)
}

func TestDeleteCategoryCascade(t *testing.T) {
	f := newFixture(t)
	food := f.category(t, "Food")
	keep := f.category(t, "Bills")
	f.setBudget(t, food, 1, 2025, 100)
	f.setBudget(t, food, 2, 2025, 100)
	f.setBudget(t, keep, 1, 2025, 10)
	f.expense(t, food, "30", day(2025, 1, 3))

	bob, err := f.store.CreateOwner(f.ctx, "bob")
	require.NoError(t, err)
	_, err = f.svc.DeleteCategory(f.ctx, bob, food)
	assert.ErrorIs(t, err, core.ErrCategoryNotOwned)

	res, err := f.svc.DeleteCategory(f.ctx, f.owner, food)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.TransactionsCleared)
	assert.Equal(t, int64(2), res.BudgetsDeleted)

	s, err := f.svc.GetPeriodSummary(f.ctx, f.owner, 1, 2025)
	require.NoError(t, err)
	require.Len(t, s.Categories, 1)
	assert.Equal(t, keep, s.Categories[0].Category.ID)

	for _, month := range []int{1, 2} {
		_, ok, err := f.store.GetBudget(f.ctx, food, core.Period{Month: month, Year: 2025})
		require.NoError(t, err)
		assert.False(t, ok)
	}
	assert.Contains(t, f.pub.types(), amqp.EventCategoryDeleted)
}

func TestDeleteCategoryEventUsesServiceClock(t *testing.T) {
	f := newFixture(t)
	f.svc.now = func() time.Time { return time.Date(2030, 6, 15, 12, 0, 0, 0, time.UTC) }
	food := f.category(t, "Food")

	_, err := f.svc.DeleteCategory(f.ctx, f.owner, food)
	require.NoError(t, err)

	f.pub.mu.Lock()
	defer f.pub.mu.Unlock()
	require.NotEmpty(t, f.pub.events)
	e := f.pub.events[len(f.pub.events)-1]
	assert.Equal(t, amqp.EventCategoryDeleted, e.Type)
	assert.Equal(t, core.Period{Month: 6, Year: 2030}, e.Period())
	assert.Equal(t, food, e.CategoryID)
}

func TestCreateOwnerSeedsDefaults(t *testing.T) {
	f := newFixture(t)
	owner, err := f.svc.CreateOwner(f.ctx, "carol")
	require.NoError(t, err)

	cats, err := f.svc.ListCategories(f.ctx, owner)
	require.NoError(t, err)
	require.Len(t, cats, len(DefaultCategories))
	assert.Equal(t, "Food", cats[0].Name)
	assert.Equal(t, "#FF6384", cats[0].Color)

	n, err := SeedDefaultCategories(f.ctx, f.store, owner)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestAddTransactionChecksOwnership(t *testing.T) {
	f := newFixture(t)
	food := f.category(t, "Food")
	bob, err := f.store.CreateOwner(f.ctx, "bob")
	require.NoError(t, err)

	c := food
	_, err = f.svc.AddTransaction(f.ctx, core.Transaction{
		OwnerID: bob, CategoryID: &c, Kind: core.Expense,
		Amount: decimal.NewFromInt(1), OccurredAt: day(2025, 1, 1),
	})
	assert.ErrorIs(t, err, core.ErrCategoryNotOwned)

	_, err = f.svc.AddTransaction(f.ctx, core.Transaction{
		OwnerID: f.owner, Kind: core.Expense,
		Amount: decimal.NewFromInt(-1), OccurredAt: day(2025, 1, 1),
	})
	assert.ErrorIs(t, err, core.ErrNegativeAmount)

	id, err := f.svc.AddTransaction(f.ctx, core.Transaction{
		OwnerID: f.owner, Kind: core.Income,
		Amount: decimal.NewFromInt(1000), OccurredAt: day(2025, 1, 1), Description: "salary",
	})
	require.NoError(t, err)
	assert.NotZero(t, id)
}

func TestPublishFailureDoesNotFailWrite(t *testing.T) {
	f := newFixture(t)
	f.pub.err = errors.New("broker down")
	food := f.category(t, "Food")

	_, err := f.svc.SetBudget(f.ctx, f.owner, food, 1, 2025, decimal.NewFromInt(5))
	require.NoError(t, err)
	_, ok, err := f.store.GetBudget(f.ctx, food, core.Period{Month: 1, Year: 2025})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCurrentPeriod(t *testing.T) {
	assert.Equal(t, core.Period{Month: 2, Year: 2025}, CurrentPeriod(time.Date(2025, 2, 28, 23, 0, 0, 0, time.UTC)))
	// 1 Mar 00:30 at UTC+2 is still February in UTC.
	assert.Equal(t, core.Period{Month: 2, Year: 2025}, CurrentPeriod(time.Date(2025, 3, 1, 0, 30, 0, 0, time.FixedZone("EET", 2*3600))))
}
