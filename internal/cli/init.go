// Package cli provides common initialization for the command-line
// entrypoint: logging, environment, configuration, and the wired
// component graph.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"spendbook/internal/auth"
	"spendbook/internal/cloudio"
	"spendbook/internal/config"
	"spendbook/internal/expense"
	"spendbook/internal/log"
	"spendbook/internal/session"
	"spendbook/internal/stats"
)

// SetupLogger initializes structured logging with default settings and
// installs the logger as the process default.
func SetupLogger() *log.Logger {
	return log.Default()
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it.
func LoadAndValidateConfig(logger *log.Logger) (*config.Config, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("configuration validation failed", log.FieldError, err)
		return nil, err
	}
	return cfg, nil
}

// App bundles the wired component graph behind the CLI commands.
type App struct {
	Config      *config.Config
	Logger      *log.Logger
	Client      *cloudio.Client
	Sessions    *session.Store
	Handshake   *auth.Handshake
	Repo        *expense.Repository
	Coordinator *expense.Coordinator
	Stats       *stats.Projection
}

// Bootstrap wires the full graph: session store restored from disk,
// handshake bound to it, repository observing it, stats projecting the
// repository. The pre-validation round runs here so login is ready by
// the time a command needs it; its failure is reported by Login, not
// here, because read-only commands work without it.
func Bootstrap(ctx context.Context, logger *log.Logger) (*App, error) {
	LoadEnvFile()
	cfg, err := LoadAndValidateConfig(logger)
	if err != nil {
		return nil, err
	}

	store, err := session.Open(cfg.SessionDBPath, logger)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	if err := store.Restore(); err != nil {
		store.Close()
		return nil, err
	}

	client := cloudio.New(cfg, logger)
	handshake := auth.New(client, store, logger)
	repo := expense.NewRepository(client, store, logger, cfg.FetchLimit)

	app := &App{
		Config:      cfg,
		Logger:      logger,
		Client:      client,
		Sessions:    store,
		Handshake:   handshake,
		Repo:        repo,
		Coordinator: expense.NewCoordinator(repo, logger),
		Stats:       stats.NewProjection(repo, logger),
	}

	if err := handshake.PreValidate(ctx); err != nil {
		logger.Warn("startup pre-validation failed; login unavailable until retried",
			log.FieldError, err)
	}
	return app, nil
}

// Close releases the app's resources.
func (a *App) Close() error {
	a.Stats.Close()
	a.Repo.Close()
	return a.Sessions.Close()
}

// GracefulShutdown returns a context cancelled on SIGINT/SIGTERM, for
// long-running commands such as the watch dashboard.
func GracefulShutdown(logger *log.Logger, cleanup func()) context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("shutdown signal received", "signal", sig.String())

		if cleanup != nil {
			cleanup()
		}
		cancel()

		// A second signal kills immediately.
		select {
		case <-sigChan:
			os.Exit(1)
		case <-time.After(10 * time.Second):
		}
	}()

	return ctx
}
