package availability

import (
	"time"

	"github.com/hackgods/calendar-proxy-scheduling/internal/config"
)

// GenerateSlots lists candidate slots for date under cfg.
//
// The cursor starts at the configured start time and emits [cursor, cursor+duration)
// while that fits before the end time, then advances by duration plus buffer.
// Candidates overlapping a configured break are skipped without changing the cadence.
// closed is true when date falls outside the working-day set. duration <= 0 uses
// cfg.SlotDuration.
func GenerateSlots(date time.Time, cfg config.AvailabilityConfig, duration time.Duration) (slots []TimeSlot, closed bool) {
	loc := cfg.Loc()
	day := Midnight(date, loc)

	if !cfg.IsWorkingDay(day.Weekday()) {
		return nil, true
	}
	if duration <= 0 {
		duration = cfg.SlotDuration
	}

	start := cfg.StartTime.On(day)
	end := cfg.EndTime.On(day)
	breaks := breakSlots(day, cfg.Breaks)

	for cursor := start; !cursor.Add(duration).After(end); cursor = cursor.Add(duration + cfg.Buffer) {
		candidate := TimeSlot{Start: cursor, End: cursor.Add(duration)}
		if overlapsAny(candidate, breaks) {
			continue
		}
		slots = append(slots, candidate)
	}

	return slots, false
}

func breakSlots(day time.Time, ranges []config.ClockRange) []TimeSlot {
	out := make([]TimeSlot, 0, len(ranges))
	for _, r := range ranges {
		out = append(out, TimeSlot{Start: r.Start.On(day), End: r.End.On(day)})
	}
	return out
}

func overlapsAny(s TimeSlot, others []TimeSlot) bool {
	for _, o := range others {
		if s.Overlaps(o) {
			return true
		}
	}
	return false
}
