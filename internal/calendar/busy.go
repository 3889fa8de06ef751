package calendar

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/hackgods/calendar-proxy-scheduling/internal/availability"
)

// BusyResolver adapts a Calendar to availability.BusySource for one doctor.
// Intervals come back in the doctor's location, sorted by start. Any failure is
// reported as ErrExternalUnavailable and never as an empty, conflict-free day.
type BusyResolver struct {
	cal Calendar
	loc *time.Location
}

func NewBusyResolver(cal Calendar, loc *time.Location) *BusyResolver {
	if loc == nil {
		loc = time.UTC
	}
	return &BusyResolver{cal: cal, loc: loc}
}

func (r *BusyResolver) BusyPeriods(ctx context.Context, from, to time.Time) ([]availability.TimeSlot, error) {
	periods, err := r.cal.BusyPeriods(ctx, from, to)
	if err != nil {
		if errors.Is(err, ErrExternalUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrExternalUnavailable, err)
	}

	out := make([]availability.TimeSlot, 0, len(periods))
	for _, p := range periods {
		if !p.End.After(p.Start) {
			continue
		}
		out = append(out, p.In(r.loc))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}
