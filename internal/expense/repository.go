// Package expense maintains the in-memory expense collection for the
// current identity and keeps it consistent with the backend through
// fetch, insert, and two-phase update/delete cycles.
package expense

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"spendbook/internal/cloudio"
	"spendbook/internal/core"
	"spendbook/internal/log"
	"spendbook/internal/session"
)

var auditProjection = cloudio.Projection(
	"id", "title", "amount", "date", "category",
	"creationDate", "createdBy", "lastUpdateDate", "lastUpdatedBy", "userId",
)

// Listener observes collection changes.
type Listener func(expenses []core.Expense)

// Repository owns the expense collection for the current identity. The
// collection is a snapshot: fully replaced on every fetch, stale but
// available when a fetch fails. Mutations go straight to the backend and
// never touch the snapshot; a subsequent fetch reconciles.
type Repository struct {
	client *cloudio.Client
	store  *session.Store
	logger *log.Logger
	limit  int

	group singleflight.Group

	mu       sync.Mutex
	expenses []core.Expense
	lastErr  error
	subs     map[int]Listener
	nextSub  int

	unsubscribe func()
}

// NewRepository creates a repository observing the given session store.
// Whenever the owning identity changes the previous collection is
// discarded immediately and a fresh fetch runs in the background, so
// one identity's rows never leak into another's view.
func NewRepository(client *cloudio.Client, store *session.Store, logger *log.Logger, limit int) *Repository {
	r := &Repository{
		client: client,
		store:  store,
		logger: logger.WithComponent(log.ComponentExpense),
		limit:  limit,
		subs:   map[int]Listener{},
	}
	r.unsubscribe = store.Subscribe(func(id session.Identity, ok bool) {
		r.mu.Lock()
		r.expenses = nil
		r.lastErr = nil
		r.mu.Unlock()
		r.notify()

		if ok {
			go func() {
				_ = r.FetchAll(context.Background())
			}()
		}
	})
	return r
}

// Close detaches the repository from the session store.
func (r *Repository) Close() {
	if r.unsubscribe != nil {
		r.unsubscribe()
	}
}

// Snapshot returns a copy of the current collection.
func (r *Repository) Snapshot() []core.Expense {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]core.Expense, len(r.expenses))
	copy(out, r.expenses)
	return out
}

// LastError returns the error recorded by the most recent failed fetch,
// or nil after a successful one.
func (r *Repository) LastError() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}

// Subscribe registers a collection-change listener and returns a cancel
// function.
func (r *Repository) Subscribe(fn Listener) func() {
	r.mu.Lock()
	idx := r.nextSub
	r.nextSub++
	r.subs[idx] = fn
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		delete(r.subs, idx)
		r.mu.Unlock()
	}
}

func (r *Repository) notify() {
	r.mu.Lock()
	listeners := make([]Listener, 0, len(r.subs))
	for i := 0; i < r.nextSub; i++ {
		if fn, ok := r.subs[i]; ok {
			listeners = append(listeners, fn)
		}
	}
	snapshot := make([]core.Expense, len(r.expenses))
	copy(snapshot, r.expenses)
	r.mu.Unlock()

	for _, fn := range listeners {
		fn(snapshot)
	}
}

// requireIdentity returns the active identity or fails without issuing
// any network call.
func (r *Repository) requireIdentity() (session.Identity, error) {
	id, ok := r.store.Current()
	if !ok {
		return session.Identity{}, core.ErrUnauthenticated
	}
	return id, nil
}

// FetchAll replaces the collection with the backend's rows for the
// current identity's email. Concurrent calls for the same identity
// collapse into one request. On transport or decode failure the previous
// collection stays intact and the error is recorded on LastError; the
// returned error lets coordinators observe the outcome, but callers
// holding a snapshot need never fail.
func (r *Repository) FetchAll(ctx context.Context) error {
	id, err := r.requireIdentity()
	if err != nil {
		return err
	}
	_, err, _ = r.group.Do(id.Email, func() (any, error) {
		return nil, r.fetch(ctx, id)
	})
	return err
}

func (r *Repository) fetch(ctx context.Context, id session.Identity) error {
	q := cloudio.Query{
		Filter:     []cloudio.Filter{cloudio.FilterIs("email", id.Email)},
		Projection: cloudio.Projection("id", "title", "amount", "date", "category"),
		Limit:      r.limit,
	}
	raw, err := r.client.Query(ctx, cloudio.Session{X: id.X, JWT: id.JWT},
		cloudio.ExpensesAlias, cloudio.ExpensesDataset, q)
	if err != nil {
		r.recordError(err)
		return err
	}
	rows, err := decodeRows(raw)
	if err != nil {
		r.recordError(err)
		return err
	}

	expenses := make([]core.Expense, 0, len(rows))
	for _, row := range rows {
		expenses = append(expenses, row.toExpense())
	}

	// A login/logout that raced this fetch owns the collection now;
	// applying the stale response would leak rows across identities.
	if cur, ok := r.store.Current(); !ok || cur.Email != id.Email {
		r.logger.Debug("discarding fetch for superseded identity",
			log.FieldOperation, log.OpFetch, log.FieldEmail, id.Email)
		return nil
	}

	r.mu.Lock()
	r.expenses = expenses
	r.lastErr = nil
	r.mu.Unlock()
	r.notify()

	r.logger.Debug("collection replaced",
		log.FieldOperation, log.OpFetch,
		log.FieldEmail, id.Email,
		log.FieldCount, len(expenses))
	return nil
}

func (r *Repository) recordError(err error) {
	r.mu.Lock()
	r.lastErr = err
	r.mu.Unlock()
	r.logger.Warn("fetch failed, keeping previous collection",
		log.FieldOperation, log.OpFetch, log.FieldError, err)
}

// Add submits an insert mutation for the expense; the backend assigns
// the identifier. The snapshot is not updated speculatively - it
// reflects backend state only after the next fetch settles.
func (r *Repository) Add(ctx context.Context, e core.Expense) error {
	id, err := r.requireIdentity()
	if err != nil {
		return err
	}
	if err := e.Validate(); err != nil {
		return fmt.Errorf("validate expense: %w", err)
	}

	record := map[string]any{
		"_rs":      "I",
		"email":    id.Email,
		"title":    e.Title,
		"amount":   e.Amount,
		"date":     e.Date.String(),
		"category": string(e.Category),
	}
	if err := r.client.Mutate(ctx, cloudio.Session{X: id.X, JWT: id.JWT},
		cloudio.ExpensesAlias, cloudio.ExpensesDataset, []map[string]any{record}); err != nil {
		return err
	}

	r.logger.Info("expense inserted",
		log.FieldOperation, log.OpInsert, log.FieldEmail, id.Email)
	return nil
}

// fetchRowByID runs phase 1 of a read-modify-write cycle: read the
// current backend row (with the given projection) by id. A missing row
// fails with core.ErrNotFound.
func (r *Repository) fetchRowByID(ctx context.Context, id session.Identity, expenseID int64, projection map[string]int) (row, error) {
	q := cloudio.Query{
		Filter:     []cloudio.Filter{cloudio.FilterIs("id", expenseID)},
		Projection: projection,
		Limit:      1,
	}
	raw, err := r.client.Query(ctx, cloudio.Session{X: id.X, JWT: id.JWT},
		cloudio.ExpensesAlias, cloudio.ExpensesDataset, q)
	if err != nil {
		return nil, err
	}
	rows, err := decodeRows(raw)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("expense %d: %w", expenseID, core.ErrNotFound)
	}
	return rows[0], nil
}

// Update rewrites the editable fields of an existing expense. Phase 1
// reads the current row to capture the server-owned audit fields; phase
// 2 writes the merge, echoing those fields unchanged so the audit trail
// survives. The two phases are not atomic against concurrent writers:
// the last phase-2 write wins and can silently overwrite a concurrent
// update. That lost-update window is accepted for a single-user client;
// a write the backend itself rejects as stale fails with
// core.ErrConflict. On any failure the error propagates and the
// snapshot is untouched.
func (r *Repository) Update(ctx context.Context, e core.Expense) error {
	id, err := r.requireIdentity()
	if err != nil {
		return err
	}
	if !e.Persisted() {
		return core.ErrMissingID
	}
	if err := e.Validate(); err != nil {
		return fmt.Errorf("validate expense: %w", err)
	}

	current, err := r.fetchRowByID(ctx, id, e.ID, auditProjection)
	if err != nil {
		return err
	}

	userID := id.UserID
	if userID == "" {
		userID = current.stringField("userId")
	}
	record := map[string]any{
		"_rs":            "U",
		"id":             current["id"],
		"title":          e.Title,
		"amount":         e.Amount,
		"date":           e.Date.String(),
		"category":       string(e.Category),
		"creationDate":   current["creationDate"],
		"createdBy":      current["createdBy"],
		"lastUpdateDate": current["lastUpdateDate"],
		"lastUpdatedBy":  current["lastUpdatedBy"],
		"userId":         userID,
	}
	if err := r.client.Mutate(ctx, cloudio.Session{X: id.X, JWT: id.JWT},
		cloudio.ExpensesAlias, cloudio.ExpensesDataset, []map[string]any{record}); err != nil {
		if errors.Is(err, cloudio.ErrMutationRejected) {
			return fmt.Errorf("update expense %d: %w", e.ID, core.ErrConflict)
		}
		return err
	}

	r.logger.Info("expense updated",
		log.FieldOperation, log.OpUpdate, log.FieldExpenseID, e.ID)
	return nil
}

// Delete removes an expense by id using the same two-phase cycle as
// Update: phase 1 reads the row's last update timestamp, phase 2 sends
// the delete mutation carrying it as an optimistic-staleness token. A
// backend rejection fails with core.ErrConflict; a second delete after
// success fails with core.ErrNotFound at phase 1.
func (r *Repository) Delete(ctx context.Context, expenseID int64) error {
	id, err := r.requireIdentity()
	if err != nil {
		return err
	}
	if expenseID == 0 {
		return core.ErrMissingID
	}

	current, err := r.fetchRowByID(ctx, id, expenseID, cloudio.Projection("id", "lastUpdateDate"))
	if err != nil {
		return err
	}

	record := map[string]any{
		"_rs":            "D",
		"id":             current["id"],
		"lastUpdateDate": current["lastUpdateDate"],
	}
	if err := r.client.Mutate(ctx, cloudio.Session{X: id.X, JWT: id.JWT},
		cloudio.ExpensesAlias, cloudio.ExpensesDataset, []map[string]any{record}); err != nil {
		if errors.Is(err, cloudio.ErrMutationRejected) {
			return fmt.Errorf("delete expense %d: %w", expenseID, core.ErrConflict)
		}
		return err
	}

	r.logger.Info("expense deleted",
		log.FieldOperation, log.OpDelete, log.FieldExpenseID, expenseID)
	return nil
}
