package expense

import (
	"encoding/json"
	"fmt"
	"strconv"

	"spendbook/internal/core"
)

// Backend rows arrive as loosely-typed JSON objects; numeric fields can
// come back as numbers or strings depending on how the row was written.
// Decoding keeps the raw map so read-modify-write cycles can echo
// server-owned fields byte-for-byte.
type row map[string]any

func decodeRows(raw json.RawMessage) ([]row, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var rows []row
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("decode rows: %w", err)
	}
	return rows, nil
}

func (r row) int64Field(name string) int64 {
	switch v := r[name].(type) {
	case float64:
		return int64(v)
	case json.Number:
		n, _ := v.Int64()
		return n
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	default:
		return 0
	}
}

func (r row) floatField(name string) float64 {
	switch v := r[name].(type) {
	case float64:
		return v
	case json.Number:
		f, _ := v.Float64()
		return f
	case string:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	default:
		return 0
	}
}

func (r row) stringField(name string) string {
	if s, ok := r[name].(string); ok {
		return s
	}
	return ""
}

// toExpense maps a backend row onto the Expense shape, coercing the
// amount to a number. An unparseable date leaves the zero Date; the row
// still lists.
func (r row) toExpense() core.Expense {
	e := core.Expense{
		ID:       r.int64Field("id"),
		Title:    r.stringField("title"),
		Amount:   r.floatField("amount"),
		Category: core.Category(r.stringField("category")),
	}
	if d, err := core.ParseDate(r.stringField("date")); err == nil {
		e.Date = d
	}
	return e
}
