package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound covers a missing row and a row owned by another doctor alike.
var ErrNotFound = errors.New("not found")

var (
	ErrDoctorNotFound      = fmt.Errorf("doctor %w", ErrNotFound)
	ErrPatientNotFound     = fmt.Errorf("patient %w", ErrNotFound)
	ErrAppointmentNotFound = fmt.Errorf("appointment %w", ErrNotFound)
)

// Repository contains all DB interactions needed by the service.
// Every lookup below a doctor is scoped by doctorID.
type Repository interface {
	GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error)

	GetPatientByPhone(ctx context.Context, doctorID uuid.UUID, phone string) (*Patient, error)
	// UpsertPatient finds the patient for (doctor, phone) or creates it. A found
	// patient keeps its name and only gains an email or notes it did not have.
	UpsertPatient(ctx context.Context, p Patient) (*Patient, error)

	GetAppointment(ctx context.Context, doctorID, id uuid.UUID) (*Appointment, error)
	GetAppointmentDetail(ctx context.Context, doctorID, id uuid.UUID) (*AppointmentDetail, error)
	// GetActiveAppointmentAt is used for conflict checks inside the slot lock.
	GetActiveAppointmentAt(ctx context.Context, doctorID uuid.UUID, start time.Time) (*Appointment, error)

	CreateAppointment(ctx context.Context, a Appointment) (*Appointment, error)
	// UpdateAppointmentSchedule moves an appointment and clears reminder_sent.
	UpdateAppointmentSchedule(ctx context.Context, doctorID, id uuid.UUID, date time.Time, clock string, startsAt time.Time) (*Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, doctorID, id uuid.UUID, from, to Status) (*Appointment, error)
	SetReminderSent(ctx context.Context, doctorID, id uuid.UUID, sent bool) (*Appointment, error)

	ListUpcoming(ctx context.Context, doctorID uuid.UUID, until time.Time) ([]AppointmentDetail, error)
	ListActiveByPatient(ctx context.Context, doctorID, patientID uuid.UUID) ([]Appointment, error)

	// Reminder worker
	FindDueReminders(ctx context.Context, from, to time.Time) ([]Appointment, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}
