// Package stats maintains the derived dashboard view of the expense
// collection. The projection holds no independent state: it recomputes
// eagerly on every collection change and can always be rebuilt from the
// repository snapshot.
package stats

import (
	"sync"
	"time"

	"spendbook/internal/core"
	"spendbook/internal/expense"
	"spendbook/internal/log"
)

// Projection subscribes to a repository and keeps the current Stats.
type Projection struct {
	logger *log.Logger
	now    func() time.Time

	mu      sync.Mutex
	current core.Stats

	unsubscribe func()
}

// NewProjection attaches a projection to the repository and seeds it
// from the current snapshot.
func NewProjection(repo *expense.Repository, logger *log.Logger) *Projection {
	p := &Projection{
		logger: logger.WithComponent(log.ComponentStats),
		now:    time.Now,
	}
	p.recompute(repo.Snapshot())
	p.unsubscribe = repo.Subscribe(p.recompute)
	return p
}

// Close detaches the projection from the repository.
func (p *Projection) Close() {
	if p.unsubscribe != nil {
		p.unsubscribe()
	}
}

// Current returns the latest computed stats.
func (p *Projection) Current() core.Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

func (p *Projection) recompute(expenses []core.Expense) {
	s := core.ComputeStats(expenses, p.now())

	p.mu.Lock()
	p.current = s
	p.mu.Unlock()

	p.logger.Debug("stats recomputed",
		log.FieldCount, len(expenses),
		"total", s.Total,
		"top_category", string(s.TopCategory),
		"recent", s.RecentCount)
}
