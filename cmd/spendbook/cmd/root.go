package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"spendbook/internal/cli"
)

var app *cli.App

var rootCmd = &cobra.Command{
	Use:   "spendbook",
	Short: "Spendbook is a personal expense tracker",
	Long: `Track personal expenses against a remote cloudio backend:
log in, record expenses, and review dashboard statistics. Sessions are
cached locally so you stay signed in across runs.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger := cli.SetupLogger()
		a, err := cli.Bootstrap(cmd.Context(), logger)
		if err != nil {
			return err
		}
		app = a
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if app != nil {
			_ = app.Close()
		}
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
