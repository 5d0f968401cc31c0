package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// DateLayout is the wire format of calendar dates.
const DateLayout = "2006-01-02"

// Date is a calendar date serialized as YYYY-MM-DD. The zero value means absent.
type Date struct {
	time.Time
}

// NewDate truncates t to a UTC calendar date.
func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf returns the calendar date of t in t's location.
func DateOf(t time.Time) Date {
	return NewDate(t.Date())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("date must be a string: %w", err)
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return fmt.Errorf("date must use format YYYY-MM-DD: %w", err)
	}
	*d = Date{t}
	return nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.Format(DateLayout))
}

// AddYears moves the date by n calendar years. Feb 29 becomes Mar 1 in
// non-leap years.
func (d Date) AddYears(n int) Date {
	return Date{d.AddDate(n, 0, 0)}
}

// YearsUntil returns the number of whole years from d to other.
func (d Date) YearsUntil(other Date) int {
	years := other.Year() - d.Year()
	if other.Month() < d.Month() || (other.Month() == d.Month() && other.Day() < d.Day()) {
		years--
	}
	return years
}
