package scheduling

import (
	"context"
	"time"

	"cafesys/internal/directory"
)

// Shift is one staffed slot of a day. Span is the shift index within the day
// (0 morning, 1 lunch, 2 afternoon).
type Shift struct {
	ID   int64     `json:"id" db:"id"`
	Day  time.Time `json:"day" db:"day"`
	Span int       `json:"span" db:"span"`
}

// Service answers who is on duty. The planning tool that fills these tables
// is owned elsewhere; this is a read-only port.
type Service interface {
	ShiftsOn(ctx context.Context, day time.Time) ([]Shift, error)
	OnCallDuty(ctx context.Context, shift Shift) ([]directory.Profile, error)

	// CurrentWeekOnCall returns the on-call staff of every shift in the week
	// containing now, one slice per shift in chronological order.
	CurrentWeekOnCall(ctx context.Context, now time.Time) ([][]directory.Profile, error)
}

// WeekBounds returns the Monday 00:00 starting the ISO week of t and the
// following Monday, both in t's location.
func WeekBounds(t time.Time) (time.Time, time.Time) {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	offset := (int(day.Weekday()) + 6) % 7
	start := day.AddDate(0, 0, -offset)
	return start, start.AddDate(0, 0, 7)
}
