package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"budgetly/internal/backend"
	"budgetly/internal/core"
	applog "budgetly/internal/log"
	"budgetly/internal/services"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// app carries the settings shared by every subcommand. Flags win over
// BUDGETLY_* environment variables.
type app struct {
	v   *viper.Viper
	now func() time.Time
}

func newRootCmd() *cobra.Command {
	return newRootCmdAt(time.Now)
}

// newRootCmdAt resolves the default period against now.
func newRootCmdAt(now func() time.Time) *cobra.Command {
	a := &app{v: viper.New(), now: now}

	root := &cobra.Command{
		Use:   "budgetctl",
		Short: "Manage monthly budgets from the command line",
		Long: `budgetctl reads and writes the budgetly ledger directly: period summaries,
budget rollover, single budget updates, owner seeding and category deletion.

Settings come from flags or BUDGETLY_* environment variables
(e.g. BUDGETLY_DB, BUDGETLY_OWNER, BUDGETLY_AMQP_URL).`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()
			level := applog.ParseLevel(a.v.GetString("log-level"))
			applog.SetDefault(applog.New(applog.Config{
				Level:     level,
				Format:    "text",
				Component: applog.ComponentCLI,
				Handler:   applog.NewHandler(cmd.ErrOrStderr(), "text", level),
			}))
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.String("db", "./data/budgetly.db", "SQLite database path")
	pf.Int64("owner", 0, "owner id")
	pf.String("amqp-url", "", "AMQP URL for budget events (optional)")
	pf.String("amqp-exchange", "budgetly", "AMQP exchange")
	pf.String("amqp-queue", "budget_events", "AMQP queue")
	pf.String("log-level", "warn", "log level (debug, info, warn, error)")
	_ = a.v.BindPFlags(pf)

	a.v.SetEnvPrefix("BUDGETLY")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	root.AddCommand(
		newSummaryCmd(a),
		newRolloverCmd(a),
		newSetBudgetCmd(a),
		newSeedOwnerCmd(a),
		newDeleteCategoryCmd(a),
		newMigrateCmd(a),
	)
	return root
}

// openService opens the SQLite ledger and wires the budget service; the
// returned func releases both.
func (a *app) openService(ctx context.Context) (*services.BudgetService, func(), error) {
	res, err := backend.NewFactory(nil).CreateBackend(ctx, backend.Config{
		Type:         backend.SQLiteBackend,
		SQLiteDBPath: a.v.GetString("db"),
		AMQPURL:      a.v.GetString("amqp-url"),
		AMQPExchange: a.v.GetString("amqp-exchange"),
		AMQPQueue:    a.v.GetString("amqp-queue"),
	})
	if err != nil {
		return nil, nil, err
	}
	return res.Service, func() { _ = res.Cleanup() }, nil
}

func (a *app) owner() (int64, error) {
	id := a.v.GetInt64("owner")
	if id <= 0 {
		return 0, fmt.Errorf("--owner (or BUDGETLY_OWNER) is required")
	}
	return id, nil
}

// addPeriodFlags registers --month/--year; zero means the current month.
func addPeriodFlags(cmd *cobra.Command) {
	cmd.Flags().Int("month", 0, "month 1-12 (default: current month)")
	cmd.Flags().Int("year", 0, "year (default: current year)")
}

func (a *app) period(cmd *cobra.Command) (int, int) {
	current := services.CurrentPeriod(a.now())
	month, _ := cmd.Flags().GetInt("month")
	year, _ := cmd.Flags().GetInt("year")
	if !cmd.Flags().Changed("month") {
		month = current.Month
	}
	if !cmd.Flags().Changed("year") {
		year = current.Year
	}
	return month, year
}

func printSummary(w io.Writer, s core.PeriodSummary) {
	fmt.Fprintf(w, "Period %s (owner %d)", s.Period, s.OwnerID)
	if s.FallbackApplied {
		fmt.Fprint(w, " - limits inherited from previous month")
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%-20s %12s %12s %12s %8s\n", "CATEGORY", "LIMIT", "SPENT", "AVAILABLE", "USED%")
	for _, cs := range s.Categories {
		fmt.Fprintf(w, "%-20s %12s %12s %12s %8s\n",
			cs.Category.Name,
			core.FormatAmount(cs.Limit),
			core.FormatAmount(cs.Spent),
			core.FormatAmount(cs.Available),
			cs.Percent.StringFixed(2))
	}
	fmt.Fprintf(w, "%-20s %12s %12s %12s %8s\n", "TOTAL",
		core.FormatAmount(s.Totals.Limit),
		core.FormatAmount(s.Totals.Spent),
		core.FormatAmount(s.Totals.Available),
		core.PercentUsed(s.Totals.Limit, s.Totals.Spent).StringFixed(2))
}
