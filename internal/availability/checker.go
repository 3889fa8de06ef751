package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/hackgods/calendar-proxy-scheduling/internal/config"
)

// BusySource reports externally busy intervals inside [from, to).
type BusySource interface {
	BusyPeriods(ctx context.Context, from, to time.Time) ([]TimeSlot, error)
}

// Report is the outcome of checking one date.
type Report struct {
	Input string
	// Date is midnight of the resolved date; zero when unparsable.
	Date    time.Time
	Slots   []TimeSlot
	Message string
	Closed  bool
	Past    bool
}

// DateKey returns "2006-01-02" for the resolved date or "" if unresolved.
func (r Report) DateKey() string {
	if r.Date.IsZero() {
		return ""
	}
	return DateKey(r.Date)
}

func (r Report) DateLabel() string {
	if r.Date.IsZero() {
		return ""
	}
	return FormatDateLabel(r.Date)
}

type Checker struct {
	now func() time.Time
}

func NewChecker(now func() time.Time) *Checker {
	if now == nil {
		now = time.Now
	}
	return &Checker{now: now}
}

func (c *Checker) Now() time.Time {
	return c.now()
}

// Check resolves input and lists the free slots of that date.
//
// Unparsable, past and closed dates come back as an empty Report with a message and
// a nil error. Only a failure of the busy source is returned as an error, since that
// must never read as "no conflicts".
func (c *Checker) Check(ctx context.Context, src BusySource, cfg config.AvailabilityConfig, input string, duration time.Duration) (Report, error) {
	loc := cfg.Loc()
	now := c.now().In(loc)
	rep := Report{Input: input}

	date, err := ResolveDate(input, now, loc)
	if err != nil {
		rep.Message = unparsableMessage(input)
		return rep, nil
	}
	rep.Date = date

	if date.Before(Midnight(now, loc)) {
		rep.Past = true
		rep.Message = pastDateMessage
		return rep, nil
	}

	candidates, closed := GenerateSlots(date, cfg, duration)
	if closed {
		rep.Closed = true
		rep.Message = closedMessage(date, cfg.WorkingDays)
		return rep, nil
	}

	busy, err := c.busyForDay(ctx, src, date, loc)
	if err != nil {
		return rep, err
	}

	rep.Slots = FilterPast(FilterBusy(candidates, busy), now)
	rep.Message = SummaryMessage(date, rep.Slots)
	return rep, nil
}

// IsSlotAvailable reports whether start is a free generated slot of its date.
// The ignore interval is cut out of every busy period, so an appointment being
// moved does not collide with its own current event, even when the source has
// merged that event with an adjacent one.
func (c *Checker) IsSlotAvailable(ctx context.Context, src BusySource, cfg config.AvailabilityConfig, start time.Time, duration time.Duration, ignore *TimeSlot) (bool, error) {
	loc := cfg.Loc()
	start = start.In(loc)
	if duration <= 0 {
		duration = cfg.SlotDuration
	}

	candidates, closed := GenerateSlots(start, cfg, duration)
	if closed {
		return false, nil
	}

	var target *TimeSlot
	for i := range candidates {
		if candidates[i].Start.Equal(start) {
			target = &candidates[i]
			break
		}
	}
	if target == nil || !target.Start.After(c.now()) {
		return false, nil
	}

	busy, err := c.busyForDay(ctx, src, start, loc)
	if err != nil {
		return false, err
	}
	if ignore != nil {
		busy = subtract(busy, *ignore)
	}

	return !overlapsAny(*target, busy), nil
}

func (c *Checker) busyForDay(ctx context.Context, src BusySource, date time.Time, loc *time.Location) ([]TimeSlot, error) {
	dayStart := Midnight(date, loc)
	busy, err := src.BusyPeriods(ctx, dayStart, dayStart.Add(24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("busy periods for %s: %w", DateKey(dayStart), err)
	}
	return busy, nil
}

func subtract(busy []TimeSlot, own TimeSlot) []TimeSlot {
	out := make([]TimeSlot, 0, len(busy)+1)
	for _, b := range busy {
		if !b.Overlaps(own) {
			out = append(out, b)
			continue
		}
		if b.Start.Before(own.Start) {
			out = append(out, TimeSlot{Start: b.Start, End: own.Start})
		}
		if b.End.After(own.End) {
			out = append(out, TimeSlot{Start: own.End, End: b.End})
		}
	}
	return out
}
