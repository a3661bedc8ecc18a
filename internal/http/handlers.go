package http

import (
	"net/http"
	"strings"

	"budgetly/internal/core"
	applog "budgetly/internal/log"
	"budgetly/internal/services"
)

type categorySummaryJSON struct {
	CategoryID  int64  `json:"category_id"`
	Name        string `json:"name"`
	Color       string `json:"color"`
	Icon        string `json:"icon,omitempty"`
	Limit       string `json:"limit"`
	Spent       string `json:"spent"`
	Available   string `json:"available"`
	Percent     string `json:"percent"`
	LimitSource string `json:"limit_source,omitempty"`
}

type totalsJSON struct {
	Limit     string `json:"limit"`
	Spent     string `json:"spent"`
	Available string `json:"available"`
	Percent   string `json:"percent"`
}

type summaryJSON struct {
	OwnerID         int64                 `json:"owner_id"`
	Month           int                   `json:"month"`
	Year            int                   `json:"year"`
	FallbackApplied bool                  `json:"fallback_applied"`
	Categories      []categorySummaryJSON `json:"categories"`
	Totals          totalsJSON            `json:"totals"`
}

func newSummaryJSON(s core.PeriodSummary) summaryJSON {
	out := summaryJSON{
		OwnerID:         s.OwnerID,
		Month:           s.Period.Month,
		Year:            s.Period.Year,
		FallbackApplied: s.FallbackApplied,
		Categories:      make([]categorySummaryJSON, 0, len(s.Categories)),
		Totals: totalsJSON{
			Limit:     core.FormatAmount(s.Totals.Limit),
			Spent:     core.FormatAmount(s.Totals.Spent),
			Available: core.FormatAmount(s.Totals.Available),
			Percent:   core.PercentUsed(s.Totals.Limit, s.Totals.Spent).StringFixed(2),
		},
	}
	for _, cs := range s.Categories {
		line := categorySummaryJSON{
			CategoryID: cs.Category.ID,
			Name:       cs.Category.Name,
			Color:      cs.Category.Color,
			Icon:       cs.Category.Icon,
			Limit:      core.FormatAmount(cs.Limit),
			Spent:      core.FormatAmount(cs.Spent),
			Available:  core.FormatAmount(cs.Available),
			Percent:    cs.Percent.StringFixed(2),
		}
		if cs.LimitSource != nil {
			line.LimitSource = cs.LimitSource.String()
		}
		out.Categories = append(out.Categories, line)
	}
	return out
}

type skippedJSON struct {
	CategoryID int64  `json:"category_id"`
	Reason     string `json:"reason"`
}

type rolloverJSON struct {
	Source      string        `json:"source"`
	Target      string        `json:"target"`
	Copied      int           `json:"copied"`
	Created     int           `json:"created"`
	Overwritten int           `json:"overwritten"`
	Skipped     []skippedJSON `json:"skipped"`
}

type budgetEntryJSON struct {
	CategoryID int64  `json:"category_id"`
	Amount     Amount `json:"amount"`
}

type setBudgetsRequest struct {
	Budgets []budgetEntryJSON `json:"budgets"`
}

type entryErrorJSON struct {
	CategoryID int64  `json:"category_id"`
	Error      string `json:"error"`
}

type batchJSON struct {
	Saved  int              `json:"saved"`
	Failed []entryErrorJSON `json:"failed"`
}

type setBudgetRequest struct {
	Amount Amount `json:"amount"`
}

type categoryJSON struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
	Icon  string `json:"icon,omitempty"`
}

type createCategoryRequest struct {
	Name  string `json:"name"`
	Color string `json:"color"`
	Icon  string `json:"icon"`
}

type createTransactionRequest struct {
	Kind        string `json:"kind"`
	Amount      Amount `json:"amount"`
	CategoryID  *int64 `json:"category_id"`
	OccurredAt  string `json:"occurred_at"`
	Description string `json:"description"`
}

type idJSON struct {
	ID int64 `json:"id"`
}

// handleCurrentSummary serves GET /api/summary?year=&month=, defaulting to
// the current month.
func (s *Server) handleCurrentSummary(w http.ResponseWriter, r *http.Request) {
	ownerID, err := OwnerID(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	params, err := ParseMonthParams(r.URL.Query(), services.CurrentPeriod(s.now()))
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	s.writeSummary(w, r, ownerID, params)
}

func (s *Server) handlePeriodSummary(w http.ResponseWriter, r *http.Request) {
	ownerID, err := OwnerID(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	params, err := PathMonthParams(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	s.writeSummary(w, r, ownerID, params)
}

func (s *Server) writeSummary(w http.ResponseWriter, r *http.Request, ownerID int64, params MonthParams) {
	summary, err := s.api.GetPeriodSummary(r.Context(), ownerID, params.Month, params.Year)
	if err != nil {
		s.writeError(w, r, applog.OpSummary, err)
		return
	}
	NewJSONResponse().Body(newSummaryJSON(summary)).Write(w)
}

func (s *Server) handleRollover(w http.ResponseWriter, r *http.Request) {
	ownerID, err := OwnerID(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	params, err := PathMonthParams(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	res, err := s.api.CopyBudgetsForward(r.Context(), ownerID, params.Month, params.Year)
	if err != nil {
		s.writeError(w, r, applog.OpRollover, err)
		return
	}

	out := rolloverJSON{
		Source:      res.Source.String(),
		Target:      res.Target.String(),
		Copied:      res.Copied,
		Created:     res.Created,
		Overwritten: res.Overwritten,
		Skipped:     make([]skippedJSON, 0, len(res.Skipped)),
	}
	for _, sk := range res.Skipped {
		out.Skipped = append(out.Skipped, skippedJSON{CategoryID: sk.CategoryID, Reason: sk.Reason.Error()})
	}
	NewJSONResponse().Body(out).Write(w)
}

// handleSetBudgets saves a batch of budgets for one period. Entries with an
// unparsable or negative amount are reported and the rest are saved.
func (s *Server) handleSetBudgets(w http.ResponseWriter, r *http.Request) {
	ownerID, err := OwnerID(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	params, err := PathMonthParams(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	var req setBudgetsRequest
	if err := DecodeJSON(r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	out := batchJSON{Failed: []entryErrorJSON{}}
	entries := make([]services.BudgetEntry, 0, len(req.Budgets))
	for _, item := range req.Budgets {
		amount, err := item.Amount.Decimal()
		if err != nil {
			out.Failed = append(out.Failed, entryErrorJSON{CategoryID: item.CategoryID, Error: err.Error()})
			continue
		}
		entries = append(entries, services.BudgetEntry{CategoryID: item.CategoryID, Amount: amount})
	}

	res, err := s.api.SetBudgets(r.Context(), ownerID, core.Period{Month: params.Month, Year: params.Year}, entries)
	if err != nil {
		s.writeError(w, r, applog.OpUpdate, err)
		return
	}
	out.Saved = res.Saved
	for _, f := range res.Failed {
		out.Failed = append(out.Failed, entryErrorJSON{CategoryID: f.CategoryID, Error: f.Err.Error()})
	}
	NewJSONResponse().Body(out).Write(w)
}

func (s *Server) handleSetBudget(w http.ResponseWriter, r *http.Request) {
	ownerID, err := OwnerID(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	categoryID, err := PathID(r, "id")
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	params, err := PathMonthParams(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	var req setBudgetRequest
	if err := DecodeJSON(r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	amount, err := req.Amount.Decimal()
	if err != nil {
		s.writeError(w, r, applog.OpUpdate, err)
		return
	}

	id, err := s.api.SetBudget(r.Context(), ownerID, categoryID, params.Month, params.Year, amount)
	if err != nil {
		s.writeError(w, r, applog.OpUpdate, err)
		return
	}
	NewJSONResponse().Body(map[string]int64{"budget_id": id}).Write(w)
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	ownerID, err := OwnerID(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	cats, err := s.api.ListCategories(r.Context(), ownerID)
	if err != nil {
		s.writeError(w, r, applog.OpList, err)
		return
	}
	out := make([]categoryJSON, 0, len(cats))
	for _, c := range cats {
		out = append(out, categoryJSON{ID: c.ID, Name: c.Name, Color: c.Color, Icon: c.Icon})
	}
	NewJSONResponse().Body(out).Write(w)
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	ownerID, err := OwnerID(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	var req createCategoryRequest
	if err := DecodeJSON(r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	id, err := s.api.CreateCategory(r.Context(), core.Category{
		OwnerID: ownerID,
		Name:    sanitizeInput(req.Name),
		Color:   strings.TrimSpace(req.Color),
		Icon:    sanitizeInput(req.Icon),
	})
	if err != nil {
		s.writeError(w, r, applog.OpCreate, err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Body(idJSON{ID: id}).Write(w)
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	ownerID, err := OwnerID(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	categoryID, err := PathID(r, "id")
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	res, err := s.api.DeleteCategory(r.Context(), ownerID, categoryID)
	if err != nil {
		s.writeError(w, r, applog.OpDelete, err)
		return
	}
	NewJSONResponse().Body(map[string]int64{
		"transactions_cleared": res.TransactionsCleared,
		"budgets_deleted":      res.BudgetsDeleted,
	}).Write(w)
}

func (s *Server) handleAddTransaction(w http.ResponseWriter, r *http.Request) {
	ownerID, err := OwnerID(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	var req createTransactionRequest
	if err := DecodeJSON(r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	amount, err := req.Amount.Decimal()
	if err != nil {
		s.writeError(w, r, applog.OpCreate, err)
		return
	}
	occurredAt, err := parseOccurredAt(req.OccurredAt)
	if err != nil {
		UnprocessableEntityError(err.Error()).Write(w)
		return
	}

	id, err := s.api.AddTransaction(r.Context(), core.Transaction{
		OwnerID:     ownerID,
		CategoryID:  req.CategoryID,
		Kind:        core.TransactionKind(strings.ToLower(strings.TrimSpace(req.Kind))),
		Amount:      amount,
		OccurredAt:  occurredAt,
		Description: sanitizeInput(req.Description),
	})
	if err != nil {
		s.writeError(w, r, applog.OpCreate, err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Body(idJSON{ID: id}).Write(w)
}
