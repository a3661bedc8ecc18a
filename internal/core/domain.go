package core

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Income  TransactionKind = "income"
	Expense TransactionKind = "expense"
)

type (
	TransactionKind string

	// Period identifies a monthly budgeting cycle.
	Period struct {
		Month int // 1-12
		Year  int
	}

	Category struct {
		ID      int64
		OwnerID int64
		Name    string
		Color   string // #rrggbb
		Icon    string
	}

	Transaction struct {
		ID          int64
		OwnerID     int64
		CategoryID  *int64 // nil when uncategorized
		Kind        TransactionKind
		Amount      decimal.Decimal
		OccurredAt  time.Time
		Description string
	}

	// Budget is the spending limit of one category for one period.
	// The owner is implied by the category.
	Budget struct {
		ID         int64
		CategoryID int64
		Period     Period
		Amount     decimal.Decimal
	}
)

var (
	ErrInvalidPeriod     = errors.New("invalid period")
	ErrNoSourceBudgets   = errors.New("no budgets in source period")
	ErrCategoryNotOwned  = errors.New("category not owned")
	ErrCategoryNotFound  = errors.New("category not found")
	ErrOwnerNotFound     = errors.New("owner not found")
	ErrCategoryExists    = errors.New("category already exists")
	ErrNegativeAmount    = errors.New("negative amount")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInvalidKind       = errors.New("invalid transaction kind")
	ErrEmptyName         = errors.New("empty category name")
	ErrInvalidColor      = errors.New("invalid color")
	ErrMissingOccurredAt = errors.New("missing transaction timestamp")
)

const DefaultColor = "#ffffff"

var colorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// NewPeriod returns the period for month/year, rejecting months outside 1-12.
func NewPeriod(month, year int) (Period, error) {
	p := Period{Month: month, Year: year}
	if err := p.Validate(); err != nil {
		return Period{}, err
	}
	return p, nil
}

// PeriodOf returns the period containing t, using t's UTC calendar date.
func PeriodOf(t time.Time) Period {
	t = t.UTC()
	return Period{Month: int(t.Month()), Year: t.Year()}
}

// Predecessor maps (month, year) to the previous month, wrapping January to
// December of the previous year.
func Predecessor(month, year int) (int, int, error) {
	p, err := NewPeriod(month, year)
	if err != nil {
		return 0, 0, err
	}
	prev := p.Predecessor()
	return prev.Month, prev.Year, nil
}

func (p Period) Validate() error {
	if p.Month < 1 || p.Month > 12 {
		return fmt.Errorf("%w: month %d outside 1-12", ErrInvalidPeriod, p.Month)
	}
	return nil
}

// Predecessor assumes p is valid.
func (p Period) Predecessor() Period {
	if p.Month == 1 {
		return Period{Month: 12, Year: p.Year - 1}
	}
	return Period{Month: p.Month - 1, Year: p.Year}
}

// Successor assumes p is valid.
func (p Period) Successor() Period {
	if p.Month == 12 {
		return Period{Month: 1, Year: p.Year + 1}
	}
	return Period{Month: p.Month + 1, Year: p.Year}
}

// Start is midnight UTC on the first day of the period.
func (p Period) Start() time.Time {
	return time.Date(p.Year, time.Month(p.Month), 1, 0, 0, 0, 0, time.UTC)
}

// End is the exclusive upper bound of the period.
func (p Period) End() time.Time {
	return p.Successor().Start()
}

func (p Period) Contains(t time.Time) bool {
	t = t.UTC()
	return !t.Before(p.Start()) && t.Before(p.End())
}

func (p Period) Before(o Period) bool {
	if p.Year != o.Year {
		return p.Year < o.Year
	}
	return p.Month < o.Month
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}

func (k TransactionKind) Validate() error {
	switch k {
	case Income, Expense:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidKind, string(k))
	}
}

func (c Category) Validate() error {
	name := strings.TrimSpace(c.Name)
	if name == "" {
		return ErrEmptyName
	}
	if len(name) > 50 {
		return errors.New("category name too long (max 50 characters)")
	}
	if c.Color != "" && !colorPattern.MatchString(c.Color) {
		return fmt.Errorf("%w: %q", ErrInvalidColor, c.Color)
	}
	return nil
}

func (t Transaction) Validate() error {
	if err := t.Kind.Validate(); err != nil {
		return err
	}
	if t.Amount.IsNegative() {
		return ErrNegativeAmount
	}
	if t.OccurredAt.IsZero() {
		return ErrMissingOccurredAt
	}
	if len(t.Description) > 100 {
		return errors.New("description too long (max 100 characters)")
	}
	return nil
}

func (b Budget) Validate() error {
	if err := b.Period.Validate(); err != nil {
		return err
	}
	return ValidateBudgetAmount(b.Amount)
}

// ValidateBudgetAmount accepts zero; only negative limits are rejected.
func ValidateBudgetAmount(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return ErrNegativeAmount
	}
	return nil
}
