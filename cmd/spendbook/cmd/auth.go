package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"spendbook/internal/core"
)

var loginEmail string

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and cache the session locally",
	RunE: func(cmd *cobra.Command, args []string) error {
		if loginEmail == "" {
			return errors.New("--email is required")
		}
		password, err := readPassword("Password: ")
		if err != nil {
			return err
		}

		if err := app.Handshake.Login(cmd.Context(), loginEmail, password); err != nil {
			if errors.Is(err, core.ErrNetwork) {
				return fmt.Errorf("cannot reach server - check connectivity (%v)", err)
			}
			return err
		}
		fmt.Printf("Signed in as %s\n", strings.TrimSpace(loginEmail))
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and clear the cached session",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := app.Handshake.Logout(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("Signed out")
		return nil
	},
}

var (
	registerName  string
	registerEmail string
)

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create a new account",
	RunE: func(cmd *cobra.Command, args []string) error {
		if registerName == "" || registerEmail == "" {
			return errors.New("--name and --email are required")
		}
		password, err := readPassword("Password: ")
		if err != nil {
			return err
		}
		if err := app.Handshake.Register(cmd.Context(), registerName, registerEmail, password); err != nil {
			return err
		}
		fmt.Println("Account created. You can now log in.")
		return nil
	},
}

// readPassword prompts on the terminal without echoing; when stdin is
// not a terminal (tests, pipes) it falls back to reading a line.
func readPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		raw, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(raw), nil
	}

	var line string
	if _, err := fmt.Fscanln(os.Stdin, &line); err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return line, nil
}

func init() {
	loginCmd.Flags().StringVar(&loginEmail, "email", "", "account email")
	registerCmd.Flags().StringVar(&registerName, "name", "", "display name")
	registerCmd.Flags().StringVar(&registerEmail, "email", "", "account email")

	rootCmd.AddCommand(loginCmd, logoutCmd, registerCmd)
}
