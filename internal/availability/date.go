package availability

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hackgods/calendar-proxy-scheduling/internal/config"
)

var ErrUnparsable = errors.New("unparsable date")

// accepted after the natural-language forms, in order
var dateLayouts = []string{
	"2006-1-2",
	"1/2/2006",
	"1-2-2006",
	"January 2",
	"Jan 2",
	"January 2, 2006",
	"Jan 2, 2006",
}

// Midnight anchors t to 00:00 of its calendar date in loc.
func Midnight(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// ResolveDate turns a caller supplied date into midnight of that date in loc.
//
// Recognized: "today", "tomorrow", "next <weekday>", ISO dates, M/D/YYYY,
// M-D-YYYY and month-name forms with or without a year. A bare month and day
// inherits the current year. "next <weekday>" always lands 1 to 7 days ahead.
func ResolveDate(input string, now time.Time, loc *time.Location) (time.Time, error) {
	s := strings.ToLower(strings.TrimSpace(input))
	today := Midnight(now, loc)

	switch s {
	case "today":
		return today, nil
	case "tomorrow":
		return today.AddDate(0, 0, 1), nil
	}

	if name, ok := strings.CutPrefix(s, "next "); ok {
		target, ok := config.ParseWeekday(name)
		if !ok {
			return time.Time{}, fmt.Errorf("%w: %q", ErrUnparsable, input)
		}
		ahead := int(target) - int(today.Weekday())
		if ahead <= 0 {
			ahead += 7
		}
		return today.AddDate(0, 0, ahead), nil
	}

	for _, layout := range dateLayouts {
		parsed, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		year := parsed.Year()
		if !strings.Contains(layout, "2006") {
			year = today.Year()
		}
		return time.Date(year, parsed.Month(), parsed.Day(), 0, 0, 0, 0, loc), nil
	}

	return time.Time{}, fmt.Errorf("%w: %q", ErrUnparsable, input)
}

var timeLayouts = []string{
	"15:04",
	"3:04 PM",
	"3:04PM",
	"3 PM",
	"3PM",
}

// ResolveTime parses a caller supplied time of day such as "14:00", "2:00 PM" or "2pm".
func ResolveTime(input string) (config.ClockTime, error) {
	s := strings.ToUpper(strings.Join(strings.Fields(input), " "))
	s = strings.ReplaceAll(strings.ReplaceAll(s, "A.M.", "AM"), "P.M.", "PM")

	for _, layout := range timeLayouts {
		parsed, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		return config.ClockTime{Hour: parsed.Hour(), Minute: parsed.Minute()}, nil
	}

	return config.ClockTime{}, fmt.Errorf("%w: time %q", ErrUnparsable, input)
}
