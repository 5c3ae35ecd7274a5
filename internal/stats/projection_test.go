package stats

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spendbook/internal/cloudio"
	"spendbook/internal/config"
	"spendbook/internal/core"
	"spendbook/internal/expense"
	"spendbook/internal/log"
	"spendbook/internal/session"
)

// rowServer answers every query with the rows it currently holds.
type rowServer struct {
	mu   sync.Mutex
	rows []map[string]any
}

func (s *rowServer) set(rows []map[string]any) {
	s.mu.Lock()
	s.rows = rows
	s.mu.Unlock()
}

func (s *rowServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	rows := s.rows
	s.mu.Unlock()
	json.NewEncoder(w).Encode(map[string]any{
		"data": map[string]any{
			cloudio.ExpensesAlias: map[string]any{"data": rows},
		},
	})
}

func newTestProjection(t *testing.T, backend *rowServer) (*Projection, *expense.Repository) {
	t.Helper()
	logger := log.New(io.Discard, slog.LevelError)

	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	store, err := session.Open(filepath.Join(t.TempDir(), "session.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Set(session.Identity{
		UserID: "u1", Email: "ada@example.com", X: "x", JWT: "jwt",
	}))

	client := cloudio.New(&config.Config{
		BaseURL:     srv.URL,
		AppName:     "Training",
		HTTPTimeout: 5 * time.Second,
	}, logger)

	repo := expense.NewRepository(client, store, logger, 1000)
	t.Cleanup(repo.Close)

	p := NewProjection(repo, logger)
	t.Cleanup(p.Close)
	return p, repo
}

func TestProjectionSeedsEmpty(t *testing.T) {
	p, _ := newTestProjection(t, &rowServer{})

	s := p.Current()
	assert.Zero(t, s.Total)
	assert.Empty(t, s.TopCategory)
	assert.Zero(t, s.RecentCount)
}

func TestProjectionTracksRepository(t *testing.T) {
	recent := time.Now().AddDate(0, 0, -1).Format(core.DateLayout)
	old := "2020-01-01"

	backend := &rowServer{}
	backend.set([]map[string]any{
		{"id": 1, "title": "coffee", "amount": 100.0, "date": recent, "category": "Food"},
		{"id": 2, "title": "beans", "amount": 50.0, "date": recent, "category": "Food"},
		{"id": 3, "title": "train", "amount": 30.0, "date": old, "category": "Travel"},
	})

	p, repo := newTestProjection(t, backend)
	require.NoError(t, repo.FetchAll(context.Background()))

	s := p.Current()
	assert.Equal(t, 180.0, s.Total)
	assert.Equal(t, core.Food, s.TopCategory)
	assert.Equal(t, 2, s.RecentCount)
	require.Len(t, s.ByCategory, 2)
	assert.Equal(t, core.CategoryAmount{Category: core.Food, Amount: 150.0}, s.ByCategory[0])
	assert.Equal(t, core.CategoryAmount{Category: core.Travel, Amount: 30.0}, s.ByCategory[1])
}

func TestProjectionRecomputesOnChange(t *testing.T) {
	backend := &rowServer{}
	backend.set([]map[string]any{
		{"id": 1, "title": "coffee", "amount": 3.5, "date": "2025-06-15", "category": "Food"},
	})

	p, repo := newTestProjection(t, backend)
	require.NoError(t, repo.FetchAll(context.Background()))
	require.Equal(t, 3.5, p.Current().Total)

	backend.set(nil)
	require.NoError(t, repo.FetchAll(context.Background()))
	assert.Zero(t, p.Current().Total)
	assert.Empty(t, p.Current().TopCategory)
}
