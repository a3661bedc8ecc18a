package memory

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"budgetly/internal/core"
	"budgetly/internal/ledger"

	"github.com/shopspring/decimal"
)

var (
	_ ledger.Store = (*Store)(nil)
	_ ledger.Tx    = (*state)(nil)
)

// Store is an in-process ledger. Atomic units of work run against a copy of
// the state which replaces the live one only when fn succeeds.
type Store struct {
	mu sync.Mutex
	st *state
}

type state struct {
	nextID     int64
	owners     map[int64]string
	categories []core.Category
	txns       []core.Transaction
	budgets    []core.Budget
}

func New() *Store {
	return &Store{st: &state{owners: map[int64]string{}}}
}

// NewFromFiles creates a store with one owner named "default" whose categories
// are read from base/seed_categories.txt ("Name" or "Name,#rrggbb" per line).
// It returns the store and the seeded owner id.
func NewFromFiles(base string) (*Store, int64) {
	s := New()
	ctx := context.Background()
	ownerID, _ := s.CreateOwner(ctx, "default")

	lines := readLines(filepath.Join(base, "seed_categories.txt"))
	for _, line := range lines {
		name, color, _ := strings.Cut(line, ",")
		c := core.Category{OwnerID: ownerID, Name: strings.TrimSpace(name), Color: strings.TrimSpace(color)}
		if _, err := s.CreateCategory(ctx, c); err != nil {
			continue
		}
	}
	return s, ownerID
}

func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context, tx ledger.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	if err := fn(ctx, work); err != nil {
		return err
	}
	s.st = work
	return nil
}

func (s *Store) Close() error { return nil }

func (s *Store) ListOwners(ctx context.Context) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.ListOwners(ctx)
}

func (s *Store) ListCategories(ctx context.Context, ownerID int64) ([]core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.ListCategories(ctx, ownerID)
}

func (s *Store) CategoryBelongsTo(ctx context.Context, categoryID, ownerID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.CategoryBelongsTo(ctx, categoryID, ownerID)
}

func (s *Store) ListBudgets(ctx context.Context, ownerID int64, p core.Period) ([]core.Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.ListBudgets(ctx, ownerID, p)
}

func (s *Store) HasBudgets(ctx context.Context, ownerID int64, p core.Period) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.HasBudgets(ctx, ownerID, p)
}

func (s *Store) GetBudget(ctx context.Context, categoryID int64, p core.Period) (core.Budget, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.GetBudget(ctx, categoryID, p)
}

func (s *Store) SumExpenses(ctx context.Context, ownerID, categoryID int64, p core.Period) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.SumExpenses(ctx, ownerID, categoryID, p)
}

func (s *Store) CreateOwner(ctx context.Context, name string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.CreateOwner(ctx, name)
}

func (s *Store) CreateCategory(ctx context.Context, c core.Category) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.CreateCategory(ctx, c)
}

func (s *Store) AddTransaction(ctx context.Context, t core.Transaction) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.AddTransaction(ctx, t)
}

func (s *Store) UpsertBudget(ctx context.Context, categoryID int64, p core.Period, amount decimal.Decimal) (core.Budget, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.UpsertBudget(ctx, categoryID, p, amount)
}

func (s *Store) ClearTransactionCategory(ctx context.Context, categoryID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.ClearTransactionCategory(ctx, categoryID)
}

func (s *Store) DeleteBudgetsForCategory(ctx context.Context, categoryID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.DeleteBudgetsForCategory(ctx, categoryID)
}

func (s *Store) DeleteCategory(ctx context.Context, categoryID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.DeleteCategory(ctx, categoryID)
}

// state methods assume the caller holds Store.mu.

func (st *state) clone() *state {
	out := &state{
		nextID:     st.nextID,
		owners:     make(map[int64]string, len(st.owners)),
		categories: append([]core.Category(nil), st.categories...),
		txns:       make([]core.Transaction, len(st.txns)),
		budgets:    append([]core.Budget(nil), st.budgets...),
	}
	for id, name := range st.owners {
		out.owners[id] = name
	}
	for i, t := range st.txns {
		if t.CategoryID != nil {
			id := *t.CategoryID
			t.CategoryID = &id
		}
		out.txns[i] = t
	}
	return out
}

func (st *state) newID() int64 {
	st.nextID++
	return st.nextID
}

func (st *state) category(id int64) (core.Category, bool) {
	for _, c := range st.categories {
		if c.ID == id {
			return c, true
		}
	}
	return core.Category{}, false
}

func (st *state) ListOwners(_ context.Context) ([]int64, error) {
	ids := make([]int64, 0, len(st.owners))
	for id := range st.owners {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

func (st *state) ListCategories(_ context.Context, ownerID int64) ([]core.Category, error) {
	var out []core.Category
	for _, c := range st.categories {
		if c.OwnerID == ownerID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (st *state) CategoryBelongsTo(_ context.Context, categoryID, ownerID int64) (bool, error) {
	c, ok := st.category(categoryID)
	return ok && c.OwnerID == ownerID, nil
}

func (st *state) ListBudgets(_ context.Context, ownerID int64, p core.Period) ([]core.Budget, error) {
	var out []core.Budget
	for _, b := range st.budgets {
		if b.Period != p {
			continue
		}
		if c, ok := st.category(b.CategoryID); ok && c.OwnerID == ownerID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (st *state) HasBudgets(ctx context.Context, ownerID int64, p core.Period) (bool, error) {
	budgets, err := st.ListBudgets(ctx, ownerID, p)
	return len(budgets) > 0, err
}

func (st *state) GetBudget(_ context.Context, categoryID int64, p core.Period) (core.Budget, bool, error) {
	for _, b := range st.budgets {
		if b.CategoryID == categoryID && b.Period == p {
			return b, true, nil
		}
	}
	return core.Budget{}, false, nil
}

func (st *state) SumExpenses(_ context.Context, ownerID, categoryID int64, p core.Period) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, t := range st.txns {
		if t.OwnerID != ownerID || t.Kind != core.Expense || t.CategoryID == nil || *t.CategoryID != categoryID {
			continue
		}
		if p.Contains(t.OccurredAt) {
			total = total.Add(t.Amount)
		}
	}
	return total, nil
}

func (st *state) CreateOwner(_ context.Context, name string) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, fmt.Errorf("empty owner name")
	}
	id := st.newID()
	st.owners[id] = name
	return id, nil
}

func (st *state) CreateCategory(_ context.Context, c core.Category) (int64, error) {
	if err := c.Validate(); err != nil {
		return 0, err
	}
	if _, ok := st.owners[c.OwnerID]; !ok {
		return 0, fmt.Errorf("%w: %d", core.ErrOwnerNotFound, c.OwnerID)
	}
	if c.Color == "" {
		c.Color = core.DefaultColor
	}
	c.Name = strings.TrimSpace(c.Name)
	for _, existing := range st.categories {
		if existing.OwnerID == c.OwnerID && existing.Name == c.Name {
			return 0, fmt.Errorf("%w: %q", core.ErrCategoryExists, c.Name)
		}
	}
	c.ID = st.newID()
	st.categories = append(st.categories, c)
	return c.ID, nil
}

func (st *state) AddTransaction(_ context.Context, t core.Transaction) (int64, error) {
	if err := t.Validate(); err != nil {
		return 0, err
	}
	if _, ok := st.owners[t.OwnerID]; !ok {
		return 0, fmt.Errorf("%w: %d", core.ErrOwnerNotFound, t.OwnerID)
	}
	if t.CategoryID != nil {
		if _, ok := st.category(*t.CategoryID); !ok {
			return 0, core.ErrCategoryNotFound
		}
		id := *t.CategoryID
		t.CategoryID = &id
	}
	t.ID = st.newID()
	st.txns = append(st.txns, t)
	return t.ID, nil
}

func (st *state) UpsertBudget(_ context.Context, categoryID int64, p core.Period, amount decimal.Decimal) (core.Budget, bool, error) {
	if _, ok := st.category(categoryID); !ok {
		return core.Budget{}, false, core.ErrCategoryNotFound
	}
	for i, b := range st.budgets {
		if b.CategoryID == categoryID && b.Period == p {
			st.budgets[i].Amount = amount
			return st.budgets[i], false, nil
		}
	}
	b := core.Budget{ID: st.newID(), CategoryID: categoryID, Period: p, Amount: amount}
	st.budgets = append(st.budgets, b)
	return b, true, nil
}

func (st *state) ClearTransactionCategory(_ context.Context, categoryID int64) (int64, error) {
	var n int64
	for i, t := range st.txns {
		if t.CategoryID != nil && *t.CategoryID == categoryID {
			st.txns[i].CategoryID = nil
			n++
		}
	}
	return n, nil
}

func (st *state) DeleteBudgetsForCategory(_ context.Context, categoryID int64) (int64, error) {
	kept := st.budgets[:0]
	var n int64
	for _, b := range st.budgets {
		if b.CategoryID == categoryID {
			n++
			continue
		}
		kept = append(kept, b)
	}
	st.budgets = kept
	return n, nil
}

func (st *state) DeleteCategory(_ context.Context, categoryID int64) error {
	for i, c := range st.categories {
		if c.ID != categoryID {
			continue
		}
		for _, b := range st.budgets {
			if b.CategoryID == categoryID {
				return fmt.Errorf("category %d still referenced by budgets", categoryID)
			}
		}
		st.categories = append(st.categories[:i], st.categories[i+1:]...)
		return nil
	}
	return core.ErrCategoryNotFound
}

func readLines(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var out []string
	seen := map[string]struct{}{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if _, ok := seen[line]; ok {
			continue
		}
		seen[line] = struct{}{}
		out = append(out, line)
	}
	return out
}
