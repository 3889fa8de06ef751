package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const DefaultTimezone = "America/New_York"

// ClockTime is a wall-clock time of day, independent of date and zone.
type ClockTime struct {
	Hour   int
	Minute int
}

// ParseClockTime parses "HH:MM" in 24h format.
func ParseClockTime(s string) (ClockTime, error) {
	s = strings.TrimSpace(s)
	hh, mm, ok := strings.Cut(s, ":")
	if !ok {
		return ClockTime{}, fmt.Errorf("invalid time %q: expected HH:MM", s)
	}
	hour, err := strconv.Atoi(hh)
	if err != nil || hour < 0 || hour > 23 {
		return ClockTime{}, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err := strconv.Atoi(mm)
	if err != nil || len(mm) != 2 || minute < 0 || minute > 59 {
		return ClockTime{}, fmt.Errorf("invalid minute in %q", s)
	}
	return ClockTime{Hour: hour, Minute: minute}, nil
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// On anchors the clock time to the calendar date of day, in day's location.
func (c ClockTime) On(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), c.Hour, c.Minute, 0, 0, day.Location())
}

func (c ClockTime) minutes() int {
	return c.Hour*60 + c.Minute
}

// ClockRange is a [Start, End) wall-clock range such as a lunch break.
type ClockRange struct {
	Start ClockTime
	End   ClockTime
}

func (r ClockRange) String() string {
	return r.Start.String() + "-" + r.End.String()
}

// AvailabilityConfig describes when a doctor accepts appointments.
type AvailabilityConfig struct {
	Timezone     string
	Location     *time.Location
	WorkingDays  []time.Weekday
	StartTime    ClockTime
	EndTime      ClockTime
	SlotDuration time.Duration
	Buffer       time.Duration
	Breaks       []ClockRange
}

// NewAvailability builds and validates an AvailabilityConfig, resolving the timezone.
func NewAvailability(tz string, days []time.Weekday, start, end ClockTime, slot, buffer time.Duration, breaks []ClockRange) (AvailabilityConfig, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return AvailabilityConfig{}, fmt.Errorf("load timezone %q: %w", tz, err)
	}

	cfg := AvailabilityConfig{
		Timezone:     tz,
		Location:     loc,
		WorkingDays:  days,
		StartTime:    start,
		EndTime:      end,
		SlotDuration: slot,
		Buffer:       buffer,
		Breaks:       breaks,
	}
	if err := cfg.Validate(); err != nil {
		return AvailabilityConfig{}, err
	}
	return cfg, nil
}

// DefaultAvailability mirrors the environment defaults: every day, 09:00-17:00, 30 minute slots.
func DefaultAvailability() AvailabilityConfig {
	cfg, err := NewAvailability(
		DefaultTimezone,
		[]time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday, time.Sunday},
		ClockTime{Hour: 9},
		ClockTime{Hour: 17},
		30*time.Minute,
		0,
		nil,
	)
	if err != nil {
		panic(err)
	}
	return cfg
}

func (a AvailabilityConfig) Validate() error {
	if a.SlotDuration <= 0 {
		return errors.New("slot duration must be positive")
	}
	if a.Buffer < 0 {
		return errors.New("buffer must not be negative")
	}
	if a.EndTime.minutes() <= a.StartTime.minutes() {
		return fmt.Errorf("end time %s must be after start time %s", a.EndTime, a.StartTime)
	}
	for _, b := range a.Breaks {
		if b.End.minutes() <= b.Start.minutes() {
			return fmt.Errorf("break %s ends before it starts", b)
		}
	}
	return nil
}

// Loc returns the configured location, falling back to UTC.
func (a AvailabilityConfig) Loc() *time.Location {
	if a.Location != nil {
		return a.Location
	}
	if a.Timezone != "" {
		if loc, err := time.LoadLocation(a.Timezone); err == nil {
			return loc
		}
	}
	return time.UTC
}

func (a AvailabilityConfig) IsWorkingDay(d time.Weekday) bool {
	for _, wd := range a.WorkingDays {
		if wd == d {
			return true
		}
	}
	return false
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday,
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
}

// ParseWeekday accepts full or three-letter English day names, any case.
func ParseWeekday(s string) (time.Weekday, bool) {
	d, ok := weekdayNames[strings.ToLower(strings.TrimSpace(s))]
	return d, ok
}

// ParseWorkingDays parses a comma separated list like "mon,tue,fri".
func ParseWorkingDays(s string) ([]time.Weekday, error) {
	var days []time.Weekday
	seen := make(map[time.Weekday]bool)
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		d, ok := ParseWeekday(part)
		if !ok {
			return nil, fmt.Errorf("unknown weekday %q", part)
		}
		if !seen[d] {
			seen[d] = true
			days = append(days, d)
		}
	}
	return days, nil
}

// ParseBreaks parses "12:00-14:00,16:00-16:15". Empty input means no breaks.
func ParseBreaks(s string) ([]ClockRange, error) {
	var breaks []ClockRange
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		from, to, ok := strings.Cut(part, "-")
		if !ok {
			return nil, fmt.Errorf("invalid break %q: expected HH:MM-HH:MM", part)
		}
		start, err := ParseClockTime(from)
		if err != nil {
			return nil, err
		}
		end, err := ParseClockTime(to)
		if err != nil {
			return nil, err
		}
		breaks = append(breaks, ClockRange{Start: start, End: end})
	}
	return breaks, nil
}

// FormatWorkingDays renders days as the comma list ParseWorkingDays accepts.
func FormatWorkingDays(days []time.Weekday) string {
	parts := make([]string, 0, len(days))
	for _, d := range days {
		parts = append(parts, strings.ToLower(d.String()[:3]))
	}
	return strings.Join(parts, ",")
}

// FormatBreaks renders breaks as the list ParseBreaks accepts.
func FormatBreaks(breaks []ClockRange) string {
	parts := make([]string, 0, len(breaks))
	for _, b := range breaks {
		parts = append(parts, b.String())
	}
	return strings.Join(parts, ",")
}
