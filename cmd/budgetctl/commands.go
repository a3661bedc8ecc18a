package main

import (
	"errors"
	"fmt"

	"budgetly/internal/core"
	"budgetly/internal/storage"

	"github.com/spf13/cobra"
)

func newSummaryCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Show limits, spending and availability per category for a month",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := a.owner()
			if err != nil {
				return err
			}
			svc, closeFn, err := a.openService(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			month, year := a.period(cmd)
			s, err := svc.GetPeriodSummary(cmd.Context(), owner, month, year)
			if err != nil {
				return err
			}
			printSummary(cmd.OutOrStdout(), s)
			return nil
		},
	}
	addPeriodFlags(cmd)
	return cmd
}

func newRolloverCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rollover",
		Short: "Copy the previous month's budgets into the target month",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := a.owner()
			if err != nil {
				return err
			}
			svc, closeFn, err := a.openService(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			month, year := a.period(cmd)
			res, err := svc.CopyBudgetsForward(cmd.Context(), owner, month, year)
			if errors.Is(err, core.ErrNoSourceBudgets) {
				fmt.Fprintf(cmd.OutOrStdout(), "Nothing to copy: %v\n", err)
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Copied %d budgets from %s to %s (%d created, %d overwritten, %d skipped)\n",
				res.Copied, res.Source, res.Target, res.Created, res.Overwritten, len(res.Skipped))
			return nil
		},
	}
	addPeriodFlags(cmd)
	return cmd
}

func newSetBudgetCmd(a *app) *cobra.Command {
	var (
		categoryID int64
		amountText string
	)
	cmd := &cobra.Command{
		Use:   "set-budget",
		Short: "Create or replace the budget of one category for a month",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := a.owner()
			if err != nil {
				return err
			}
			amount, err := core.ParseAmount(amountText)
			if err != nil {
				return fmt.Errorf("amount %q: %w", amountText, err)
			}
			svc, closeFn, err := a.openService(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			month, year := a.period(cmd)
			id, err := svc.SetBudget(cmd.Context(), owner, categoryID, month, year, amount)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Budget %d: category %d = %s for %04d-%02d\n",
				id, categoryID, core.FormatAmount(amount), year, month)
			return nil
		},
	}
	cmd.Flags().Int64Var(&categoryID, "category", 0, "category id")
	cmd.Flags().StringVar(&amountText, "amount", "", "budget amount, e.g. 250 or 99,90")
	_ = cmd.MarkFlagRequired("category")
	_ = cmd.MarkFlagRequired("amount")
	addPeriodFlags(cmd)
	return cmd
}

func newSeedOwnerCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "seed-owner NAME",
		Short: "Create an owner with the default categories",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeFn, err := a.openService(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			id, err := svc.CreateOwner(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			cats, err := svc.ListCategories(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Owner %d created with %d categories\n", id, len(cats))
			for _, c := range cats {
				fmt.Fprintf(cmd.OutOrStdout(), "  %d\t%s\t%s\n", c.ID, c.Name, c.Color)
			}
			return nil
		},
	}
}

func newDeleteCategoryCmd(a *app) *cobra.Command {
	var categoryID int64
	cmd := &cobra.Command{
		Use:   "delete-category",
		Short: "Delete a category, its budgets, and uncategorize its transactions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := a.owner()
			if err != nil {
				return err
			}
			svc, closeFn, err := a.openService(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			res, err := svc.DeleteCategory(cmd.Context(), owner, categoryID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Category %d deleted (%d budgets removed, %d transactions uncategorized)\n",
				categoryID, res.BudgetsDeleted, res.TransactionsCleared)
			return nil
		},
	}
	cmd.Flags().Int64Var(&categoryID, "category", 0, "category id")
	_ = cmd.MarkFlagRequired("category")
	return cmd
}

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dbPath := a.v.GetString("db")
			if err := storage.RunMigrations(dbPath); err != nil {
				return err
			}
			version, dirty, err := storage.MigrationVersion(dbPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Database %s at version %d", dbPath, version)
			if dirty {
				fmt.Fprint(cmd.OutOrStdout(), " (dirty)")
			}
			fmt.Fprintln(cmd.OutOrStdout())
			return nil
		},
	}
}
