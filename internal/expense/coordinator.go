package expense

import (
	"context"

	"spendbook/internal/core"
	"spendbook/internal/log"
)

// Coordinator composes a mutation with the explicit re-fetch that
// reconciles the snapshot with backend state. Keeping the refresh out of
// the repository makes the ordering visible: the mutation result decides
// success, and a failed refresh only means the snapshot is stale until
// the next fetch. The backend may exhibit read-after-write lag, so even
// a successful refresh is eventually consistent within the session.
type Coordinator struct {
	repo   *Repository
	logger *log.Logger
}

func NewCoordinator(repo *Repository, logger *log.Logger) *Coordinator {
	return &Coordinator{
		repo:   repo,
		logger: logger.WithComponent(log.ComponentExpense),
	}
}

// Repo exposes the underlying repository for read access.
func (c *Coordinator) Repo() *Repository {
	return c.repo
}

// AddAndRefresh inserts the expense, then refetches.
func (c *Coordinator) AddAndRefresh(ctx context.Context, e core.Expense) error {
	if err := c.repo.Add(ctx, e); err != nil {
		return err
	}
	c.refresh(ctx)
	return nil
}

// UpdateAndRefresh rewrites the expense, then refetches.
func (c *Coordinator) UpdateAndRefresh(ctx context.Context, e core.Expense) error {
	if err := c.repo.Update(ctx, e); err != nil {
		return err
	}
	c.refresh(ctx)
	return nil
}

// DeleteAndRefresh deletes the expense, then refetches.
func (c *Coordinator) DeleteAndRefresh(ctx context.Context, expenseID int64) error {
	if err := c.repo.Delete(ctx, expenseID); err != nil {
		return err
	}
	c.refresh(ctx)
	return nil
}

// refresh runs the reconciling fetch. The mutation already succeeded, so
// a failed refresh degrades to a stale snapshot rather than an error.
func (c *Coordinator) refresh(ctx context.Context) {
	if err := c.repo.FetchAll(ctx); err != nil {
		c.logger.Warn("post-mutation refresh failed, snapshot is stale",
			log.FieldOperation, log.OpRefresh, log.FieldError, err)
	}
}
