package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	Food          Category = "Food"
	Travel        Category = "Travel"
	Bills         Category = "Bills"
	Entertainment Category = "Entertainment"
	Other         Category = "Other"
)

// DateLayout is the wire format for expense dates (ISO-8601 calendar date).
const DateLayout = "2006-01-02"

type (
	Category string

	Date struct {
		time.Time
	}

	Expense struct {
		ID       int64 // 0 until the backend assigns one
		Title    string
		Amount   float64
		Date     Date
		Category Category
	}
)

var (
	ErrEmptyTitle     = errors.New("empty title")
	ErrNegativeAmount = errors.New("negative amount")
	ErrZeroDate       = errors.New("date cannot be zero")
	ErrEmptyCategory  = errors.New("empty category")
	ErrMissingID      = errors.New("missing expense id")
)

// Categories returns the fixed set offered by the client. The backend
// accepts values outside this set, so validation only requires non-empty.
func Categories() []Category {
	return []Category{Food, Travel, Bills, Entertainment, Other}
}

// NewDate creates a Date from year, month, day in UTC.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses an ISO-8601 calendar date.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return Date{Time: t}, nil
}

// String formats the date in the wire layout.
func (d Date) String() string {
	return d.Format(DateLayout)
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrZeroDate
	}
	return nil
}

func (c Category) Validate() error {
	if strings.TrimSpace(string(c)) == "" {
		return ErrEmptyCategory
	}
	return nil
}

func (e Expense) Validate() error {
	if len(strings.TrimSpace(e.Title)) == 0 {
		return ErrEmptyTitle
	}
	if len(e.Title) > 200 {
		return errors.New("title too long (max 200 characters)")
	}
	if e.Amount < 0 {
		return ErrNegativeAmount
	}
	if err := e.Date.Validate(); err != nil {
		return err
	}
	return e.Category.Validate()
}

// Persisted reports whether the backend has assigned an identifier.
func (e Expense) Persisted() bool {
	return e.ID != 0
}
