package expense

import (
	"context"
	"fmt"
	"sync"
	"time"

	"spendbook/internal/log"
)

// RefresherConfig holds configuration for the background refresher.
type RefresherConfig struct {
	// PollInterval is how often to refetch the collection (default: 30s)
	PollInterval time.Duration
}

// DefaultRefresherConfig returns sensible defaults.
func DefaultRefresherConfig() RefresherConfig {
	return RefresherConfig{PollInterval: 30 * time.Second}
}

// Refresher keeps the snapshot fresh by refetching on an interval while
// an identity is active. Fetch failures are absorbed by the repository's
// stale-but-available semantics, so the loop never stops on error.
type Refresher struct {
	repo   *Repository
	config RefresherConfig
	logger *log.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewRefresher creates a refresher for the given repository.
func NewRefresher(repo *Repository, config RefresherConfig, logger *log.Logger) *Refresher {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultRefresherConfig().PollInterval
	}
	return &Refresher{
		repo:   repo,
		config: config,
		logger: logger.WithComponent(log.ComponentExpense),
	}
}

// Start begins the refresh loop. Returns an error if already running.
func (r *Refresher) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("refresher is already running")
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	r.mu.Unlock()

	go r.runLoop(ctx)

	r.logger.Info("refresher started",
		log.FieldOperation, log.OpRefresh,
		"poll_interval", r.config.PollInterval)
	return nil
}

// Stop gracefully stops the refresher and waits for completion.
func (r *Refresher) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	close(r.stopCh)

	select {
	case <-r.doneCh:
		r.logger.Info("refresher stopped gracefully")
	case <-ctx.Done():
		r.logger.Warn("refresher stop timed out")
		return ctx.Err()
	}

	r.mu.Lock()
	r.running = false
	r.mu.Unlock()
	return nil
}

// IsRunning returns whether the refresher is currently running.
func (r *Refresher) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *Refresher) runLoop(ctx context.Context) {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.config.PollInterval)
	defer ticker.Stop()

	// Refresh immediately on startup
	r.refreshOnce(ctx)

	for {
		select {
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.refreshOnce(ctx)
		}
	}
}

func (r *Refresher) refreshOnce(ctx context.Context) {
	if err := r.repo.FetchAll(ctx); err != nil {
		// Unauthenticated between logins is expected; anything else was
		// already recorded on the repository.
		r.logger.Debug("background refresh skipped",
			log.FieldOperation, log.OpRefresh, log.FieldError, err)
	}
}
