package reminder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/hackgods/calendar-proxy-scheduling/internal/appointment"
	"github.com/hackgods/calendar-proxy-scheduling/internal/availability"
)

// Appointments is the part of the lifecycle service a reminder needs.
type Appointments interface {
	Get(ctx context.Context, doctorID, id uuid.UUID) appointment.Result
	MarkReminderSent(ctx context.Context, doctorID, id uuid.UUID) appointment.Result
}

type Reminder struct {
	AppointmentID uuid.UUID
	PatientName   string
	Phone         string
	StartsAt      time.Time
	Message       string
}

// Notifier delivers a reminder to the patient, usually as an SMS.
type Notifier interface {
	Notify(ctx context.Context, r Reminder) error
}

// LogNotifier only logs reminders. It stands in where no SMS gateway is configured.
type LogNotifier struct {
	Logger *zap.Logger
}

func (n LogNotifier) Notify(_ context.Context, r Reminder) error {
	n.Logger.Info("reminder",
		zap.String("appointment_id", r.AppointmentID.String()),
		zap.String("phone", r.Phone),
		zap.String("message", r.Message),
	)
	return nil
}

type Handler struct {
	appointments Appointments
	notifier     Notifier
	logger       *zap.Logger
	timeout      time.Duration
}

func NewHandler(appointments Appointments, notifier Notifier, logger *zap.Logger) *Handler {
	return &Handler{
		appointments: appointments,
		notifier:     notifier,
		logger:       logger,
		timeout:      30 * time.Second,
	}
}

// ProcessTask notifies the patient and then records the reminder as sent.
// Appointments that were cancelled, completed or already reminded in the
// meantime are dropped without notifying.
func (h *Handler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	if task.Type() != TypeSendReminder {
		return fmt.Errorf("unknown task type: %s: %w", task.Type(), asynq.SkipRetry)
	}

	var p Payload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		return fmt.Errorf("decode reminder payload: %v: %w", err, asynq.SkipRetry)
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	log := h.logger.With(
		zap.String("doctor_id", p.DoctorID.String()),
		zap.String("appointment_id", p.AppointmentID.String()),
	)

	res := h.appointments.Get(ctx, p.DoctorID, p.AppointmentID)
	if !res.Success {
		if res.Code == appointment.CodeNotFound {
			log.Info("reminder dropped, appointment gone")
			return nil
		}
		return fmt.Errorf("load appointment: %w", resultErr(res))
	}

	appt := res.Appointment
	if appt.ReminderSent || !appt.Status.Active() {
		log.Info("reminder dropped", zap.String("status", string(appt.Status)), zap.Bool("reminder_sent", appt.ReminderSent))
		return nil
	}

	if err := h.notifier.Notify(ctx, reminderFor(*appt)); err != nil {
		return fmt.Errorf("notify patient: %w", err)
	}

	marked := h.appointments.MarkReminderSent(ctx, p.DoctorID, p.AppointmentID)
	if !marked.Success {
		return fmt.Errorf("mark reminder sent: %w", resultErr(marked))
	}

	log.Info("reminder sent")
	return nil
}

func reminderFor(d appointment.AppointmentDetail) Reminder {
	r := Reminder{AppointmentID: d.ID, StartsAt: d.StartsAt}
	greeting := "Hi"
	if d.Patient != nil {
		r.PatientName = d.Patient.Name
		r.Phone = d.Patient.Phone
		greeting = "Hi " + d.Patient.Name
	}
	r.Message = fmt.Sprintf("%s, this is a reminder of your appointment on %s at %s.",
		greeting, availability.FormatDateLabel(d.Date), d.ClockLabel())
	return r
}

func resultErr(res appointment.Result) error {
	if res.Err != nil {
		return res.Err
	}
	return errors.New(res.Message)
}
