package appointment

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/calendar-proxy-scheduling/internal/availability"
	"github.com/hackgods/calendar-proxy-scheduling/internal/config"
)

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusNoShow    Status = "no_show"
	StatusCompleted Status = "completed"
)

// ParseStatus maps free text, possibly typed by a human into the calendar,
// onto a Status. Anything unrecognized reads as scheduled.
func ParseStatus(s string) Status {
	switch Status(normalize(s)) {
	case StatusConfirmed:
		return StatusConfirmed
	case StatusCancelled, "canceled":
		return StatusCancelled
	case StatusNoShow, "noshow":
		return StatusNoShow
	case StatusCompleted:
		return StatusCompleted
	default:
		return StatusScheduled
	}
}

var transitions = map[Status][]Status{
	StatusScheduled: {StatusConfirmed, StatusCancelled, StatusNoShow, StatusCompleted},
	StatusConfirmed: {StatusCancelled, StatusNoShow, StatusCompleted},
}

// CanTransition reports whether from may move to to. Terminal states have no exits.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Active statuses count toward a doctor's schedule.
func (s Status) Active() bool {
	return s == StatusScheduled || s == StatusConfirmed
}

type Type string

const (
	TypeCheckup      Type = "checkup"
	TypeConsultation Type = "consultation"
	TypeFollowUp     Type = "follow_up"
	TypeUrgent       Type = "urgent"
	TypeOther        Type = "other"
)

// ParseType defaults to checkup for anything unrecognized.
func ParseType(s string) Type {
	switch t := Type(normalize(s)); t {
	case TypeConsultation, TypeFollowUp, TypeUrgent, TypeOther:
		return t
	case "followup":
		return TypeFollowUp
	default:
		return TypeCheckup
	}
}

func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(s)
}

type Doctor struct {
	ID           uuid.UUID
	Name         string
	Email        *string
	CalendarID   string
	Availability config.AvailabilityConfig
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Patient struct {
	ID        uuid.UUID
	DoctorID  uuid.UUID
	Name      string
	Phone     string
	Email     *string
	Notes     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Appointment struct {
	ID              uuid.UUID
	DoctorID        uuid.UUID
	PatientID       uuid.UUID
	ExternalEventID *string
	// Date is the calendar date in the doctor's zone, Time its "HH:MM" start.
	Date            time.Time
	Time            string
	StartsAt        time.Time
	DurationMinutes int
	Type            Type
	Status          Status
	ReminderSent    bool
	Notes           string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (a Appointment) Duration() time.Duration {
	return time.Duration(a.DurationMinutes) * time.Minute
}

func (a Appointment) Slot() availability.TimeSlot {
	return availability.TimeSlot{Start: a.StartsAt, End: a.StartsAt.Add(a.Duration())}
}

// ClockLabel renders the stored "HH:MM" start as "2:30 PM".
func (a Appointment) ClockLabel() string {
	c, err := config.ParseClockTime(a.Time)
	if err != nil {
		return a.Time
	}
	return availability.FormatTime(c.On(a.Date))
}

func (a Appointment) HasEvent() bool {
	return a.ExternalEventID != nil && *a.ExternalEventID != ""
}

type EventLog struct {
	ID            int64
	EventType     string
	DoctorID      *uuid.UUID
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

type AppointmentDetail struct {
	Appointment
	Patient *Patient
}
