package cloudio

import (
	"encoding/json"
	"net/url"
)

// Dataset aliases address collections in query/mutation bodies.
const (
	ExpensesAlias   = "ExpExpensesAlias"
	ExpensesDataset = "Expenses"

	UsersAlias   = "ExpUsersAlias"
	UsersDataset = "ExpUsers"
)

// Session carries the per-request credentials for the generic API
// endpoint: the continuation token travels as a query parameter and the
// session credential as the Authorization header.
type Session struct {
	X   string
	JWT string
}

func (s Session) values() url.Values {
	return url.Values{"x": {s.X}}
}

func (s Session) headers(appName string) map[string]string {
	return map[string]string{
		"X-Application": appName,
		"Authorization": s.JWT,
	}
}

// Filter matches the backend's filter clause shape, e.g.
// {"email": {"is": "a@b.c"}}.
type Filter map[string]map[string]any

// FilterIs builds an equality filter on a single field.
func FilterIs(field string, value any) Filter {
	return Filter{field: {"is": value}}
}

// Query is the dataset query clause: filters, a field projection, and a
// bounded page.
type Query struct {
	Filter     []Filter       `json:"filter,omitempty"`
	Projection map[string]int `json:"projection,omitempty"`
	Limit      int            `json:"limit,omitempty"`
	Offset     int            `json:"offset,omitempty"`
}

// Projection selects the named fields.
func Projection(fields ...string) map[string]int {
	p := make(map[string]int, len(fields))
	for _, f := range fields {
		p[f] = 1
	}
	return p
}

type datasetRequest struct {
	DS    string           `json:"ds"`
	Query *Query           `json:"query,omitempty"`
	Data  []map[string]any `json:"data,omitempty"`
}

type queryResponse struct {
	Data map[string]struct {
		Data json.RawMessage `json:"data"`
	} `json:"data"`
}

func (r queryResponse) rows(alias string) json.RawMessage {
	if entry, ok := r.Data[alias]; ok {
		return entry.Data
	}
	return nil
}

type statusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Title   string `json:"title"`
}

func (r statusResponse) message() string {
	if r.Message != "" {
		return r.Message
	}
	return r.Title
}
