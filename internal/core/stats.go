package core

import "time"

// CategoryAmount represents an amount aggregated by category.
type CategoryAmount struct {
	Category Category
	Amount   float64
}

// Stats is the derived dashboard view of an expense collection.
// TopCategory is empty when the collection is empty.
type Stats struct {
	Total       float64
	TopCategory Category
	RecentCount int
	ByCategory  []CategoryAmount // first-seen insertion order
}

// ComputeStats folds the collection once. Top category is the category
// with the maximum summed amount; ties keep the category that reached
// the maximum first during the fold. Recent counts expenses dated within
// the trailing 7-day window from now, inclusive lower bound.
func ComputeStats(expenses []Expense, now time.Time) Stats {
	if len(expenses) == 0 {
		return Stats{}
	}

	var s Stats
	totals := map[Category]float64{}
	order := make([]Category, 0, 8)
	var maxAmount float64

	for _, e := range expenses {
		s.Total += e.Amount

		if _, seen := totals[e.Category]; !seen {
			order = append(order, e.Category)
		}
		running := totals[e.Category] + e.Amount
		totals[e.Category] = running
		if running > maxAmount {
			maxAmount = running
			s.TopCategory = e.Category
		}
	}

	s.ByCategory = make([]CategoryAmount, 0, len(order))
	for _, c := range order {
		s.ByCategory = append(s.ByCategory, CategoryAmount{Category: c, Amount: totals[c]})
	}

	weekAgo := now.AddDate(0, 0, -7)
	for _, e := range expenses {
		if !e.Date.Before(weekAgo) {
			s.RecentCount++
		}
	}
	return s
}
