package core

import (
	"testing"
	"time"
)

func expenseOn(d Date, category Category, amount float64) Expense {
	return Expense{Title: "e", Amount: amount, Date: d, Category: category}
}

func TestComputeStatsEmpty(t *testing.T) {
	s := ComputeStats(nil, time.Now())
	if s.Total != 0 || s.TopCategory != "" || s.RecentCount != 0 || s.ByCategory != nil {
		t.Fatalf("empty collection must produce zero stats, got %+v", s)
	}
}

func TestComputeStats(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	today := NewDate(2025, 6, 15)

	expenses := []Expense{
		expenseOn(today, Food, 100),
		expenseOn(today, Food, 50),
		expenseOn(today, Travel, 30),
	}
	s := ComputeStats(expenses, now)

	if s.Total != 180 {
		t.Fatalf("total = %v, want 180", s.Total)
	}
	if s.TopCategory != Food {
		t.Fatalf("top category = %s, want Food", s.TopCategory)
	}
	if s.RecentCount != 3 {
		t.Fatalf("recent = %d, want 3", s.RecentCount)
	}
	if len(s.ByCategory) != 2 || s.ByCategory[0].Category != Food || s.ByCategory[0].Amount != 150 ||
		s.ByCategory[1].Category != Travel || s.ByCategory[1].Amount != 30 {
		t.Fatalf("by-category breakdown wrong: %+v", s.ByCategory)
	}
}

func TestComputeStatsTieBreaksOnFirstEncountered(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	today := NewDate(2025, 6, 15)

	expenses := []Expense{
		expenseOn(today, Bills, 75),
		expenseOn(today, Travel, 75),
	}
	s := ComputeStats(expenses, now)
	if s.TopCategory != Bills {
		t.Fatalf("tie must keep first-encountered category, got %s", s.TopCategory)
	}
}

func TestComputeStatsRecentWindow(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	expenses := []Expense{
		expenseOn(NewDate(2025, 6, 15), Food, 1), // today
		expenseOn(NewDate(2025, 6, 9), Food, 1),  // inside window
		expenseOn(NewDate(2025, 6, 1), Food, 1),  // outside window
	}
	s := ComputeStats(expenses, now)
	if s.RecentCount != 2 {
		t.Fatalf("recent = %d, want 2", s.RecentCount)
	}
}
