package google

import (
	"fmt"
	"strings"

	"budgetly/internal/core"
)

var summaryHeader = []any{"Category", "Limit", "Spent", "Available", "% Used", "Limit from", "Color"}

// sheetTitle names the tab of one owner's period, e.g. "Budget 2025-01 #3".
func sheetTitle(base string, ownerID int64, p core.Period) string {
	base = strings.TrimSpace(base)
	if base == "" {
		base = DefaultSummarySheet
	}
	return fmt.Sprintf("%s %s #%d", base, p, ownerID)
}

// summaryRows lays out a summary as a header, one row per category in
// summary order, and a closing totals row.
func summaryRows(s core.PeriodSummary) [][]any {
	rows := make([][]any, 0, len(s.Categories)+2)
	rows = append(rows, summaryHeader)
	for _, cs := range s.Categories {
		source := ""
		if cs.LimitSource != nil {
			source = cs.LimitSource.String()
		}
		rows = append(rows, []any{
			cs.Category.Name,
			core.FormatAmount(cs.Limit),
			core.FormatAmount(cs.Spent),
			core.FormatAmount(cs.Available),
			cs.Percent.StringFixed(2),
			source,
			cs.Category.Color,
		})
	}
	rows = append(rows, []any{
		"Total",
		core.FormatAmount(s.Totals.Limit),
		core.FormatAmount(s.Totals.Spent),
		core.FormatAmount(s.Totals.Available),
		core.PercentUsed(s.Totals.Limit, s.Totals.Spent).StringFixed(2),
		"",
		"",
	})
	return rows
}
