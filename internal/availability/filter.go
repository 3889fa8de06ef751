package availability

import (
	"fmt"
	"strings"
	"time"
)

const maxListedTimes = 5

// FilterBusy drops every slot overlapping any busy interval, keeping order.
func FilterBusy(slots, busy []TimeSlot) []TimeSlot {
	out := make([]TimeSlot, 0, len(slots))
	for _, s := range slots {
		if !overlapsAny(s, busy) {
			out = append(out, s)
		}
	}
	return out
}

// FilterPast drops slots starting at or before now.
func FilterPast(slots []TimeSlot, now time.Time) []TimeSlot {
	out := make([]TimeSlot, 0, len(slots))
	for _, s := range slots {
		if s.Start.After(now) {
			out = append(out, s)
		}
	}
	return out
}

// SummaryMessage is the speakable outcome of an availability check.
func SummaryMessage(date time.Time, slots []TimeSlot) string {
	label := FormatDateLabel(date)
	if len(slots) == 0 {
		return fmt.Sprintf("No available appointments on %s.", label)
	}

	shown := slots
	if len(shown) > maxListedTimes {
		shown = shown[:maxListedTimes]
	}
	times := make([]string, 0, len(shown))
	for _, s := range shown {
		times = append(times, s.FormattedTime())
	}

	msg := fmt.Sprintf("Available on %s: %s", label, strings.Join(times, ", "))
	if extra := len(slots) - maxListedTimes; extra > 0 {
		msg += fmt.Sprintf(" and %d more.", extra)
	}
	return msg
}

func closedMessage(day time.Time, working []time.Weekday) string {
	names := make([]string, 0, len(working))
	// Monday first, the way people read a week
	for i := 1; i <= 7; i++ {
		d := time.Weekday(i % 7)
		for _, w := range working {
			if w == d {
				names = append(names, d.String())
				break
			}
		}
	}
	return fmt.Sprintf("Office is closed on %s. Available: %s", day.Weekday(), strings.Join(names, ", "))
}

func unparsableMessage(input string) string {
	return fmt.Sprintf("Could not understand the date: %s. Please try YYYY-MM-DD format.", input)
}

const pastDateMessage = "Cannot check availability for past dates."
