package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"spendbook/internal/cli"
	"spendbook/internal/core"
	"spendbook/internal/expense"
)

var (
	dashboardWatch    bool
	dashboardInterval time.Duration
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Show spending totals, top category, and recent activity",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := app.Repo.FetchAll(cmd.Context()); err != nil {
			if errors.Is(err, core.ErrUnauthenticated) {
				return errors.New("not signed in - run 'spendbook login' first")
			}
			return err
		}

		if !dashboardWatch {
			printStats(app.Stats.Current())
			return nil
		}

		refresher := expense.NewRefresher(app.Repo,
			expense.RefresherConfig{PollInterval: dashboardInterval}, app.Logger)
		if err := refresher.Start(cmd.Context()); err != nil {
			return err
		}

		ctx := cli.GracefulShutdown(app.Logger, nil)
		ticker := time.NewTicker(dashboardInterval)
		defer ticker.Stop()

		printStats(app.Stats.Current())
		for {
			select {
			case <-ctx.Done():
				stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return refresher.Stop(stopCtx)
			case <-ticker.C:
				printStats(app.Stats.Current())
			}
		}
	},
}

func printStats(s core.Stats) {
	fmt.Printf("Total expenses:      %.2f\n", s.Total)
	top := "-"
	if s.TopCategory != "" {
		top = string(s.TopCategory)
	}
	fmt.Printf("Most spent category: %s\n", top)
	fmt.Printf("Recent activity:     %d expense(s) this week\n", s.RecentCount)
	if len(s.ByCategory) > 0 {
		fmt.Println("By category:")
		for _, ca := range s.ByCategory {
			fmt.Printf("  %-15s %.2f\n", ca.Category, ca.Amount)
		}
	}
	fmt.Println()
}

func init() {
	dashboardCmd.Flags().BoolVar(&dashboardWatch, "watch", false, "keep refreshing until interrupted")
	dashboardCmd.Flags().DurationVar(&dashboardInterval, "interval", 30*time.Second, "refresh interval in watch mode")
	rootCmd.AddCommand(dashboardCmd)
}
