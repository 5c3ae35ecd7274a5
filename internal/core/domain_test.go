package core

import (
	"testing"
	"time"
)

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2025-06-15")
	if err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if d.String() != "2025-06-15" {
		t.Fatalf("round trip mismatch: %s", d)
	}
	if _, err := ParseDate("15/06/2025"); err == nil {
		t.Fatalf("expected error for non-ISO date")
	}
}

func TestExpenseValidate(t *testing.T) {
	good := Expense{
		Title:    "groceries",
		Amount:   42.50,
		Date:     NewDate(2025, 6, 15),
		Category: Food,
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bads := []Expense{
		{Title: "", Amount: 1, Date: NewDate(2025, 1, 1), Category: Food},
		{Title: "a", Amount: -1, Date: NewDate(2025, 1, 1), Category: Food},
		{Title: "a", Amount: 1, Date: Date{Time: time.Time{}}, Category: Food},
		{Title: "a", Amount: 1, Date: NewDate(2025, 1, 1), Category: ""},
	}
	for i, e := range bads {
		if err := e.Validate(); err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}

	// Zero amounts are valid; only negatives are rejected.
	free := good
	free.Amount = 0
	if err := free.Validate(); err != nil {
		t.Fatalf("zero amount should validate, got %v", err)
	}

	// The category set is extensible: unknown non-empty values pass.
	custom := good
	custom.Category = "Subscriptions"
	if err := custom.Validate(); err != nil {
		t.Fatalf("custom category should validate, got %v", err)
	}
}

func TestExpensePersisted(t *testing.T) {
	if (Expense{}).Persisted() {
		t.Fatalf("zero id must not count as persisted")
	}
	if !(Expense{ID: 7}).Persisted() {
		t.Fatalf("non-zero id must count as persisted")
	}
}
