package expense

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spendbook/internal/cloudio"
	"spendbook/internal/config"
	"spendbook/internal/core"
	"spendbook/internal/log"
	"spendbook/internal/session"
)

// fakeRecords is an in-memory stand-in for the backend's generic
// query/mutation endpoint over the Expenses dataset.
type fakeRecords struct {
	mu     sync.Mutex
	rows   map[int64]map[string]any
	nextID int64

	apiCalls       atomic.Int64
	failQuery      atomic.Bool
	rejectMutation atomic.Bool
	lastDelete     map[string]any
	lastUpdate     map[string]any
}

func newFakeRecords() *fakeRecords {
	return &fakeRecords{rows: map[int64]map[string]any{}}
}

// seed inserts a row directly, assigning audit fields the way the
// backend would.
func (f *fakeRecords) seed(email, title string, amount any, date, category string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := f.nextID
	f.rows[id] = map[string]any{
		"id": id, "email": email, "title": title, "amount": amount,
		"date": date, "category": category,
		"creationDate":   "2025-01-01T00:00:00Z",
		"createdBy":      "seed",
		"lastUpdateDate": "2025-01-02T00:00:00Z",
		"lastUpdatedBy":  "seed",
		"userId":         "u1",
	}
	return id
}

func (f *fakeRecords) row(id int64) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]any{}
	for k, v := range f.rows[id] {
		out[k] = v
	}
	return out
}

type dsRequest struct {
	DS    string `json:"ds"`
	Query *struct {
		Filter     []map[string]map[string]any `json:"filter"`
		Projection map[string]int              `json:"projection"`
		Limit      int                         `json:"limit"`
	} `json:"query"`
	Data []map[string]any `json:"data"`
}

func (f *fakeRecords) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api", func(w http.ResponseWriter, r *http.Request) {
		f.apiCalls.Add(1)
		if f.failQuery.Load() {
			http.Error(w, "backend down", http.StatusInternalServerError)
			return
		}

		var body map[string]dsRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		req := body[cloudio.ExpensesAlias]

		if req.Query != nil {
			f.handleQuery(w, req)
			return
		}
		f.handleMutation(w, req)
	})
	return mux
}

func (f *fakeRecords) handleQuery(w http.ResponseWriter, req dsRequest) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var matched []map[string]any
	for id := int64(1); id <= f.nextID; id++ {
		row, ok := f.rows[id]
		if !ok {
			continue
		}
		if !matchesFilters(row, req.Query.Filter) {
			continue
		}
		projected := map[string]any{}
		for field := range req.Query.Projection {
			if v, ok := row[field]; ok {
				projected[field] = v
			}
		}
		matched = append(matched, projected)
		if req.Query.Limit > 0 && len(matched) >= req.Query.Limit {
			break
		}
	}
	json.NewEncoder(w).Encode(map[string]any{
		"data": map[string]any{
			cloudio.ExpensesAlias: map[string]any{"data": matched},
		},
	})
}

func matchesFilters(row map[string]any, filters []map[string]map[string]any) bool {
	for _, filter := range filters {
		for field, clause := range filter {
			want := clause["is"]
			if fmt.Sprint(row[field]) != fmt.Sprint(want) {
				return false
			}
		}
	}
	return true
}

func (f *fakeRecords) handleMutation(w http.ResponseWriter, req dsRequest) {
	if f.rejectMutation.Load() {
		json.NewEncoder(w).Encode(map[string]string{
			"status": "ERROR", "message": "record is stale",
		})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for _, rec := range req.Data {
		switch rec["_rs"] {
		case "I":
			f.nextID++
			row := map[string]any{
				"id":             f.nextID,
				"creationDate":   "2025-03-01T00:00:00Z",
				"createdBy":      "api",
				"lastUpdateDate": "2025-03-01T00:00:00Z",
				"lastUpdatedBy":  "api",
			}
			for k, v := range rec {
				if k != "_rs" {
					row[k] = v
				}
			}
			f.rows[f.nextID] = row
		case "U":
			id := int64(rec["id"].(float64))
			f.lastUpdate = rec
			row, ok := f.rows[id]
			if !ok {
				continue
			}
			for k, v := range rec {
				if k != "_rs" {
					row[k] = v
				}
			}
			row["id"] = id
		case "D":
			id := int64(rec["id"].(float64))
			f.lastDelete = rec
			delete(f.rows, id)
		}
	}
	json.NewEncoder(w).Encode(map[string]string{"status": "OK"})
}

func identityFor(email string) session.Identity {
	return session.Identity{
		UserID: "u1", Email: email, X: "sess-x", JWT: "sess-jwt",
	}
}

// newTestRepo wires a repository against the fake backend. The identity
// is set before the repository subscribes so tests control every fetch
// explicitly.
func newTestRepo(t *testing.T, f *fakeRecords, email string) (*Repository, *session.Store) {
	t.Helper()
	logger := log.New(io.Discard, slog.LevelError)

	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)

	store, err := session.Open(filepath.Join(t.TempDir(), "session.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	if email != "" {
		require.NoError(t, store.Set(identityFor(email)))
	}

	client := cloudio.New(&config.Config{
		BaseURL:     srv.URL,
		AppName:     "Training",
		HTTPTimeout: 5 * time.Second,
	}, logger)

	repo := NewRepository(client, store, logger, 1000)
	t.Cleanup(repo.Close)
	return repo, store
}

func TestFetchAllScopedToIdentityEmail(t *testing.T) {
	f := newFakeRecords()
	f.seed("ada@example.com", "coffee", 3.5, "2025-06-15", "Food")
	f.seed("bob@example.com", "flight", 250, "2025-06-10", "Travel")
	f.seed("ada@example.com", "rent", "800.50", "2025-06-01", "Bills")

	repo, _ := newTestRepo(t, f, "ada@example.com")
	require.NoError(t, repo.FetchAll(context.Background()))

	got := repo.Snapshot()
	require.Len(t, got, 2)
	assert.Equal(t, "coffee", got[0].Title)
	assert.Equal(t, 3.5, got[0].Amount)
	assert.Equal(t, core.Food, got[0].Category)
	assert.Equal(t, "2025-06-15", got[0].Date.String())
	// Amounts stored as strings coerce to numbers.
	assert.Equal(t, 800.50, got[1].Amount)
}

func TestFetchFailureKeepsStaleCollection(t *testing.T) {
	f := newFakeRecords()
	f.seed("ada@example.com", "coffee", 3.5, "2025-06-15", "Food")

	repo, _ := newTestRepo(t, f, "ada@example.com")
	require.NoError(t, repo.FetchAll(context.Background()))
	require.Len(t, repo.Snapshot(), 1)

	f.failQuery.Store(true)
	err := repo.FetchAll(context.Background())
	require.Error(t, err)
	assert.Len(t, repo.Snapshot(), 1, "previous collection must survive a failed fetch")
	assert.Error(t, repo.LastError())

	f.failQuery.Store(false)
	require.NoError(t, repo.FetchAll(context.Background()))
	assert.NoError(t, repo.LastError())
}

func TestUnauthenticatedOperationsIssueNoNetworkCalls(t *testing.T) {
	f := newFakeRecords()
	repo, _ := newTestRepo(t, f, "")

	ctx := context.Background()
	require.ErrorIs(t, repo.FetchAll(ctx), core.ErrUnauthenticated)
	require.ErrorIs(t, repo.Add(ctx, core.Expense{}), core.ErrUnauthenticated)
	require.ErrorIs(t, repo.Update(ctx, core.Expense{ID: 1}), core.ErrUnauthenticated)
	require.ErrorIs(t, repo.Delete(ctx, 1), core.ErrUnauthenticated)

	assert.Equal(t, int64(0), f.apiCalls.Load())
}

func TestSignOutThenFetchFailsWithoutNetworkCall(t *testing.T) {
	f := newFakeRecords()
	f.seed("ada@example.com", "coffee", 3.5, "2025-06-15", "Food")

	repo, store := newTestRepo(t, f, "ada@example.com")
	require.NoError(t, repo.FetchAll(context.Background()))
	require.NoError(t, store.Clear())

	assert.Empty(t, repo.Snapshot(), "collection must be discarded on sign-out")

	before := f.apiCalls.Load()
	require.ErrorIs(t, repo.FetchAll(context.Background()), core.ErrUnauthenticated)
	assert.Equal(t, before, f.apiCalls.Load())
}

func TestAddRoundTrip(t *testing.T) {
	f := newFakeRecords()
	repo, _ := newTestRepo(t, f, "ada@example.com")
	ctx := context.Background()

	e := core.Expense{
		Title:    "cinema",
		Amount:   12.00,
		Date:     core.NewDate(2025, 6, 14),
		Category: core.Entertainment,
	}
	require.NoError(t, repo.Add(ctx, e))
	require.NoError(t, repo.FetchAll(ctx))

	got := repo.Snapshot()
	require.Len(t, got, 1)
	assert.True(t, got[0].Persisted(), "backend must have assigned an id")
	assert.Equal(t, e.Title, got[0].Title)
	assert.Equal(t, e.Amount, got[0].Amount)
	assert.Equal(t, e.Date.String(), got[0].Date.String())
	assert.Equal(t, e.Category, got[0].Category)
}

func TestAddRejectsInvalidExpense(t *testing.T) {
	f := newFakeRecords()
	repo, _ := newTestRepo(t, f, "ada@example.com")

	err := repo.Add(context.Background(), core.Expense{Title: "", Amount: 1,
		Date: core.NewDate(2025, 1, 1), Category: core.Food})
	require.Error(t, err)
	assert.Equal(t, int64(0), f.apiCalls.Load())
}

func TestUpdatePreservesAuditFields(t *testing.T) {
	f := newFakeRecords()
	id := f.seed("ada@example.com", "coffee", 3.5, "2025-06-15", "Food")
	before := f.row(id)

	repo, _ := newTestRepo(t, f, "ada@example.com")
	require.NoError(t, repo.Update(context.Background(), core.Expense{
		ID:       id,
		Title:    "espresso",
		Amount:   4.0,
		Date:     core.NewDate(2025, 6, 16),
		Category: core.Food,
	}))

	after := f.row(id)
	assert.Equal(t, "espresso", after["title"])
	assert.Equal(t, 4.0, after["amount"])
	assert.Equal(t, before["creationDate"], after["creationDate"])
	assert.Equal(t, before["createdBy"], after["createdBy"])

	// The phase-2 payload echoed the server-owned fields read in phase 1.
	require.NotNil(t, f.lastUpdate)
	assert.Equal(t, before["creationDate"], f.lastUpdate["creationDate"])
	assert.Equal(t, before["createdBy"], f.lastUpdate["createdBy"])
	assert.Equal(t, before["lastUpdateDate"], f.lastUpdate["lastUpdateDate"])
	assert.Equal(t, before["lastUpdatedBy"], f.lastUpdate["lastUpdatedBy"])
}

func TestUpdateMissingRowIsNotFound(t *testing.T) {
	f := newFakeRecords()
	repo, _ := newTestRepo(t, f, "ada@example.com")

	err := repo.Update(context.Background(), core.Expense{
		ID:       99,
		Title:    "ghost",
		Amount:   1,
		Date:     core.NewDate(2025, 6, 16),
		Category: core.Other,
	})
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestDeleteCarriesStalenessToken(t *testing.T) {
	f := newFakeRecords()
	id := f.seed("ada@example.com", "coffee", 3.5, "2025-06-15", "Food")
	lastUpdate := f.row(id)["lastUpdateDate"]

	repo, _ := newTestRepo(t, f, "ada@example.com")
	require.NoError(t, repo.Delete(context.Background(), id))

	require.NotNil(t, f.lastDelete)
	assert.Equal(t, lastUpdate, f.lastDelete["lastUpdateDate"])

	// Deleting again fails at phase 1, not with a different mutation.
	err := repo.Delete(context.Background(), id)
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestRejectedWriteSurfacesAsConflict(t *testing.T) {
	f := newFakeRecords()
	id := f.seed("ada@example.com", "coffee", 3.5, "2025-06-15", "Food")

	repo, _ := newTestRepo(t, f, "ada@example.com")
	f.rejectMutation.Store(true)

	err := repo.Update(context.Background(), core.Expense{
		ID:       id,
		Title:    "espresso",
		Amount:   4.0,
		Date:     core.NewDate(2025, 6, 16),
		Category: core.Food,
	})
	require.ErrorIs(t, err, core.ErrConflict)

	require.ErrorIs(t, repo.Delete(context.Background(), id), core.ErrConflict)
}

func TestIdentitySwitchReplacesCollection(t *testing.T) {
	f := newFakeRecords()
	f.seed("ada@example.com", "coffee", 3.5, "2025-06-15", "Food")
	f.seed("bob@example.com", "flight", 250, "2025-06-10", "Travel")

	repo, store := newTestRepo(t, f, "ada@example.com")
	require.NoError(t, repo.FetchAll(context.Background()))
	require.Len(t, repo.Snapshot(), 1)

	// Switching identity discards immediately and refetches in the
	// background for the new owner.
	require.NoError(t, store.Set(identityFor("bob@example.com")))
	assert.Eventually(t, func() bool {
		got := repo.Snapshot()
		return len(got) == 1 && got[0].Title == "flight"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCoordinatorAddAndRefresh(t *testing.T) {
	f := newFakeRecords()
	repo, _ := newTestRepo(t, f, "ada@example.com")
	coord := NewCoordinator(repo, log.New(io.Discard, slog.LevelError))

	require.NoError(t, coord.AddAndRefresh(context.Background(), core.Expense{
		Title:    "coffee",
		Amount:   3.5,
		Date:     core.NewDate(2025, 6, 15),
		Category: core.Food,
	}))
	require.Len(t, repo.Snapshot(), 1)
}

func TestCoordinatorDeleteAndRefresh(t *testing.T) {
	f := newFakeRecords()
	id := f.seed("ada@example.com", "coffee", 3.5, "2025-06-15", "Food")

	repo, _ := newTestRepo(t, f, "ada@example.com")
	require.NoError(t, repo.FetchAll(context.Background()))
	coord := NewCoordinator(repo, log.New(io.Discard, slog.LevelError))

	require.NoError(t, coord.DeleteAndRefresh(context.Background(), id))
	assert.Empty(t, repo.Snapshot())
}

func TestRefresherLifecycle(t *testing.T) {
	f := newFakeRecords()
	f.seed("ada@example.com", "coffee", 3.5, "2025-06-15", "Food")

	repo, _ := newTestRepo(t, f, "ada@example.com")
	refresher := NewRefresher(repo, RefresherConfig{PollInterval: 20 * time.Millisecond},
		log.New(io.Discard, slog.LevelError))

	ctx := context.Background()
	require.NoError(t, refresher.Start(ctx))
	assert.True(t, refresher.IsRunning())
	require.Error(t, refresher.Start(ctx), "double start must fail")

	assert.Eventually(t, func() bool {
		return len(repo.Snapshot()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, refresher.Stop(stopCtx))
	assert.False(t, refresher.IsRunning())
}
