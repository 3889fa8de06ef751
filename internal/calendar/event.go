package calendar

import (
	"context"
	"errors"
	"time"

	"github.com/hackgods/calendar-proxy-scheduling/internal/availability"
)

var (
	ErrExternalUnavailable = errors.New("external calendar unavailable")
	ErrEventNotFound       = errors.New("calendar event not found")
)

// Event is the slice of a provider event this service reads and writes.
// The provider offers no custom fields, so appointment metadata lives in
// Summary and Description (see Encode).
type Event struct {
	ID          string
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
	// Transparent events do not block free/busy time.
	Transparent bool
}

// Calendar is one doctor's external calendar.
type Calendar interface {
	BusyPeriods(ctx context.Context, from, to time.Time) ([]availability.TimeSlot, error)
	CreateEvent(ctx context.Context, ev Event) (Event, error)
	GetEvent(ctx context.Context, id string) (Event, error)
	// UpdateEvent writes Summary, Description, Start, End and Transparent of ev.ID.
	UpdateEvent(ctx context.Context, ev Event) (Event, error)
}
