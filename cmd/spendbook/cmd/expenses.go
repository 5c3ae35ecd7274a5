package cmd

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"spendbook/internal/core"
)

var (
	expenseTitle    string
	expenseAmount   float64
	expenseDate     string
	expenseCategory string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List your expenses",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := app.Repo.FetchAll(cmd.Context()); err != nil {
			if errors.Is(err, core.ErrUnauthenticated) {
				return errors.New("not signed in - run 'spendbook login' first")
			}
			// Stale data is still shown; the warning tells the user why
			// it may be out of date.
			fmt.Fprintf(os.Stderr, "warning: refresh failed (%v), showing cached view\n", err)
		}

		expenses := app.Repo.Snapshot()
		if len(expenses) == 0 {
			fmt.Println("No expenses recorded.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tDATE\tTITLE\tCATEGORY\tAMOUNT")
		for _, e := range expenses {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%.2f\n",
				e.ID, e.Date, e.Title, e.Category, e.Amount)
		}
		return w.Flush()
	},
}

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Record a new expense",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := expenseFromFlags(0)
		if err != nil {
			return err
		}
		if err := app.Coordinator.AddAndRefresh(cmd.Context(), e); err != nil {
			return err
		}
		fmt.Println("Expense recorded.")
		return nil
	},
}

var editCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Edit an existing expense",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid expense id %q", args[0])
		}
		e, err := expenseFromFlags(id)
		if err != nil {
			return err
		}
		if err := app.Coordinator.UpdateAndRefresh(cmd.Context(), e); err != nil {
			return err
		}
		fmt.Println("Expense updated.")
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete an expense",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid expense id %q", args[0])
		}
		if err := app.Coordinator.DeleteAndRefresh(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Println("Expense deleted.")
		return nil
	},
}

func expenseFromFlags(id int64) (core.Expense, error) {
	date, err := core.ParseDate(expenseDate)
	if err != nil {
		return core.Expense{}, err
	}
	e := core.Expense{
		ID:       id,
		Title:    expenseTitle,
		Amount:   expenseAmount,
		Date:     date,
		Category: core.Category(expenseCategory),
	}
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	return e, nil
}

func addExpenseFlags(c *cobra.Command) {
	c.Flags().StringVar(&expenseTitle, "title", "", "expense title")
	c.Flags().Float64Var(&expenseAmount, "amount", 0, "amount spent")
	c.Flags().StringVar(&expenseDate, "date", "", "date (YYYY-MM-DD)")
	c.Flags().StringVar(&expenseCategory, "category", string(core.Other),
		fmt.Sprintf("category (%v)", core.Categories()))
}

func init() {
	addExpenseFlags(addCmd)
	addExpenseFlags(editCmd)
	rootCmd.AddCommand(listCmd, addCmd, editCmd, deleteCmd)
}
