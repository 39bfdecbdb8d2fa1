package routing

import "time"

// DutyWindow maps a part of the office day to the index of the shift that
// staffs it. Start and End are offsets from local midnight.
type DutyWindow struct {
	Start      time.Duration
	End        time.Duration
	ShiftIndex int
}

// At is a clock time expressed as an offset from midnight.
func At(hour, minute int) time.Duration {
	return time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute
}

// DefaultDutyWindows are the office hours. Windows are checked in order, so
// a boundary shared by two windows belongs to the earlier one first.
func DefaultDutyWindows() []DutyWindow {
	return []DutyWindow{
		{Start: At(7, 0), End: At(12, 0), ShiftIndex: 0},
		{Start: At(12, 0), End: At(13, 0), ShiftIndex: 1},
		{Start: At(13, 0), End: At(18, 0), ShiftIndex: 2},
	}
}

// TimeOfDay is t's offset from midnight in t's location.
func TimeOfDay(t time.Time) time.Duration {
	h, m, s := t.Clock()
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute +
		time.Duration(s)*time.Second + time.Duration(t.Nanosecond())
}

// TimeInRange reports whether x lies in [start, end]. When start > end the
// range wraps past midnight.
func TimeInRange(start, end, x time.Duration) bool {
	if start <= end {
		return start <= x && x <= end
	}
	return start <= x || x <= end
}

// Contains reports whether the time of day of t falls inside the window.
func (w DutyWindow) Contains(t time.Time) bool {
	return TimeInRange(w.Start, w.End, TimeOfDay(t))
}
