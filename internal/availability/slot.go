package availability

import (
	"time"
)

const (
	timeLayout      = "3:04 PM"
	dateLabelLayout = "Monday, January 02, 2006"
	dateKeyLayout   = "2006-01-02"
)

// TimeSlot is a half-open interval [Start, End). It is derived, never persisted.
type TimeSlot struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether the two half-open intervals share any instant.
// Touching intervals do not overlap.
func (s TimeSlot) Overlaps(o TimeSlot) bool {
	return !(!s.End.After(o.Start) || !s.Start.Before(o.End))
}

// Contains reports whether o lies entirely inside s.
func (s TimeSlot) Contains(o TimeSlot) bool {
	return !o.Start.Before(s.Start) && !o.End.After(s.End)
}

func (s TimeSlot) Duration() time.Duration {
	return s.End.Sub(s.Start)
}

// In returns the slot expressed in loc.
func (s TimeSlot) In(loc *time.Location) TimeSlot {
	return TimeSlot{Start: s.Start.In(loc), End: s.End.In(loc)}
}

// FormattedTime renders the start like "9:00 AM".
func (s TimeSlot) FormattedTime() string {
	return FormatTime(s.Start)
}

func FormatTime(t time.Time) string {
	return t.Format(timeLayout)
}

// FormatDateLabel renders t like "Tuesday, February 17, 2026".
func FormatDateLabel(t time.Time) string {
	return t.Format(dateLabelLayout)
}

// DateKey renders t like "2026-02-17".
func DateKey(t time.Time) string {
	return t.Format(dateKeyLayout)
}
