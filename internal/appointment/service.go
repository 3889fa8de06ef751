package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/calendar-proxy-scheduling/internal/availability"
	"github.com/hackgods/calendar-proxy-scheduling/internal/calendar"
	"github.com/hackgods/calendar-proxy-scheduling/internal/config"
	redisclient "github.com/hackgods/calendar-proxy-scheduling/internal/redis"
)

const (
	EventAppointmentCreated     = "APPOINTMENT_CREATED"
	EventAppointmentRescheduled = "APPOINTMENT_RESCHEDULED"
	EventAppointmentConfirmed   = "APPOINTMENT_CONFIRMED"
	EventAppointmentCancelled   = "APPOINTMENT_CANCELLED"
	EventAppointmentNoShow      = "APPOINTMENT_NO_SHOW"
	EventAppointmentCompleted   = "APPOINTMENT_COMPLETED"
	EventReminderSent           = "REMINDER_SENT"
	EventAppointmentReconciled  = "APPOINTMENT_RECONCILED"
	EventStoreDiverged          = "STORE_DIVERGED"
	EventExternalEventMissing   = "EXTERNAL_EVENT_MISSING"
)

// CalendarSource hands out a doctor's external calendar. credential.Proxy is
// the production implementation, so no caller ever touches a token.
type CalendarSource interface {
	Calendar(ctx context.Context, owner uuid.UUID, calendarID string, loc *time.Location) (calendar.Calendar, error)
}

type Service struct {
	repo      Repository
	locker    redisclient.Locker
	calendars CalendarSource
	cfg       config.Config
	checker   *availability.Checker
	validate  *validator.Validate
	logger    *zap.Logger
}

type Option func(*Service)

// WithClock replaces time.Now for availability checks and reminder windows.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.checker = availability.NewChecker(now) }
}

func NewService(repo Repository, locker redisclient.Locker, calendars CalendarSource, cfg config.Config, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		repo:      repo,
		locker:    locker,
		calendars: calendars,
		cfg:       cfg,
		checker:   availability.NewChecker(time.Now),
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// session is a doctor together with their calendar, resolved once per operation.
type session struct {
	doctor *Doctor
	cal    calendar.Calendar
}

func (s session) loc() *time.Location {
	return s.doctor.Availability.Loc()
}

func (s *Service) open(ctx context.Context, doctorID uuid.UUID) (session, error) {
	doctor, err := s.repo.GetDoctor(ctx, doctorID)
	if err != nil {
		return session{}, fmt.Errorf("load doctor: %w", err)
	}
	cal, err := s.calendars.Calendar(ctx, doctor.ID, doctor.CalendarID, doctor.Availability.Loc())
	if err != nil {
		return session{}, fmt.Errorf("open calendar: %w", err)
	}
	return session{doctor: doctor, cal: cal}, nil
}

// CheckAvailability lists the free slots of a caller supplied date.
func (s *Service) CheckAvailability(ctx context.Context, doctorID uuid.UUID, date string, durationMinutes int) Result {
	sess, err := s.open(ctx, doctorID)
	if err != nil {
		return s.failed("check availability", doctorID, uuid.Nil, err, "Doctor not found.")
	}

	cfg := sess.doctor.Availability
	report, err := s.checker.Check(ctx, calendar.NewBusyResolver(sess.cal, cfg.Loc()), cfg, date, minutes(durationMinutes))
	if err != nil {
		return s.failed("check availability", doctorID, uuid.Nil, err, "")
	}

	res := Result{Success: !report.Date.IsZero(), Message: report.Message, Availability: &report}
	if report.Date.IsZero() {
		res.Code = CodeUnparsable
		res.Err = fmt.Errorf("%w: %q", availability.ErrUnparsable, date)
	}
	return res
}

// CreateInput is a booking request as received from a caller.
type CreateInput struct {
	PatientName  string `validate:"required,max=200"`
	PatientPhone string `validate:"required,e164"`
	PatientEmail string `validate:"omitempty,email"`
	Date         string `validate:"required"`
	Time         string `validate:"required"`
	Type         string `validate:"max=40"`
	Notes        string `validate:"max=2000"`
}

// Create books a new appointment.
//
// The slot is locked, re-checked against the calendar and local records, the
// external event is written and then the local row. A failure of that last step
// leaves an orphan event and is reported as ErrStoreDiverged.
func (s *Service) Create(ctx context.Context, doctorID uuid.UUID, in CreateInput) Result {
	in.PatientPhone = NormalizePhone(in.PatientPhone)
	email, err := s.validateCreate(&in)
	if err != nil {
		return s.failed("create", doctorID, uuid.Nil, err, "")
	}

	sess, err := s.open(ctx, doctorID)
	if err != nil {
		return s.failed("create", doctorID, uuid.Nil, err, "Doctor not found.")
	}

	start, res, resolved := s.resolveStart(sess, in.Date, in.Time)
	if !resolved {
		return res
	}
	cfg := sess.doctor.Availability
	slot := availability.TimeSlot{Start: start, End: start.Add(cfg.SlotDuration)}
	typ := ParseType(in.Type)

	var created *Appointment
	var patient *Patient

	err = s.locker.WithSlotLock(ctx, redisclient.SlotKey(doctorID, start), func(lockCtx context.Context) error {
		if err := s.ensureFree(lockCtx, sess, slot, nil); err != nil {
			return err
		}

		p, err := s.repo.UpsertPatient(lockCtx, Patient{
			DoctorID: doctorID,
			Name:     in.PatientName,
			Phone:    in.PatientPhone,
			Email:    email,
		})
		if err != nil {
			return fmt.Errorf("find or create patient: %w", err)
		}
		patient = p

		appt := Appointment{
			ID:              uuid.New(),
			DoctorID:        doctorID,
			PatientID:       p.ID,
			Date:            availability.Midnight(start, cfg.Loc()),
			Time:            start.Format("15:04"),
			StartsAt:        start,
			DurationMinutes: int(cfg.SlotDuration / time.Minute),
			Type:            typ,
			Status:          StatusScheduled,
			Notes:           in.Notes,
		}

		ev, err := sess.cal.CreateEvent(lockCtx, calendar.Event{
			Summary:     calendar.Summary(p.Name),
			Description: calendar.Encode(metadataFor(appt, *p)),
			Start:       slot.Start,
			End:         slot.End,
		})
		if err != nil {
			return fmt.Errorf("create calendar event: %w", err)
		}
		appt.ExternalEventID = &ev.ID

		saved, err := s.repo.CreateAppointment(lockCtx, appt)
		if err != nil {
			return s.diverged(lockCtx, "create", appt, ev.ID, err)
		}
		created = saved

		s.logEvent(lockCtx, doctorID, saved.ID, EventAppointmentCreated, map[string]any{
			"patient_id":        p.ID.String(),
			"starts_at":         saved.StartsAt,
			"external_event_id": ev.ID,
			"type":              saved.Type,
		})
		return nil
	})
	if err != nil {
		return s.slotFailure("create", doctorID, uuid.Nil, err, start, "The time slot at %s is not available. Please check availability and try another time.")
	}

	code := ConfirmationCode(*created)
	res = ok(fmt.Sprintf("Appointment confirmed for %s on %s at %s. Confirmation number: %s",
		patient.Name,
		availability.FormatDateLabel(created.Date),
		availability.FormatTime(start),
		code,
	))
	res.Appointment = &AppointmentDetail{Appointment: *created, Patient: patient}
	res.Patient = patient
	res.ConfirmationCode = code
	return res
}

// Reschedule moves an active appointment to a new slot and clears its reminder flag.
func (s *Service) Reschedule(ctx context.Context, doctorID, id uuid.UUID, date, clock string) Result {
	appt, err := s.repo.GetAppointment(ctx, doctorID, id)
	if err != nil {
		return s.failed("reschedule", doctorID, id, err, msgNotFound)
	}
	if !appt.Status.Active() {
		return fail(CodeInvalidTransition,
			fmt.Sprintf("Cannot reschedule an appointment that is %s.", statusPhrase(appt.Status)),
			fmt.Errorf("%w: reschedule from %s", ErrInvalidStatusTransition, appt.Status))
	}

	sess, err := s.open(ctx, doctorID)
	if err != nil {
		return s.failed("reschedule", doctorID, id, err, "Doctor not found.")
	}

	start, res, resolved := s.resolveStart(sess, date, clock)
	if !resolved {
		return res
	}
	slot := availability.TimeSlot{Start: start, End: start.Add(appt.Duration())}

	var updated *Appointment

	err = s.locker.WithSlotLock(ctx, redisclient.SlotKey(doctorID, start), func(lockCtx context.Context) error {
		if err := s.ensureFree(lockCtx, sess, slot, appt); err != nil {
			return err
		}

		if appt.HasEvent() {
			ev, err := sess.cal.GetEvent(lockCtx, *appt.ExternalEventID)
			if err != nil {
				return s.missingEvent(lockCtx, "reschedule", *appt, err)
			}
			ev.Start, ev.End = slot.Start, slot.End
			ev.Description = calendar.SetField(ev.Description, calendar.FieldReminderSent, "false")
			if _, err := sess.cal.UpdateEvent(lockCtx, ev); err != nil {
				return fmt.Errorf("move calendar event: %w", err)
			}
		}

		moved, err := s.repo.UpdateAppointmentSchedule(lockCtx, doctorID, id,
			availability.Midnight(start, sess.loc()), start.Format("15:04"), start)
		if err != nil {
			return s.diverged(lockCtx, "reschedule", *appt, eventID(*appt), err)
		}
		updated = moved

		s.logEvent(lockCtx, doctorID, id, EventAppointmentRescheduled, map[string]any{
			"from": appt.StartsAt,
			"to":   start,
		})
		return nil
	})
	if err != nil {
		return s.slotFailure("reschedule", doctorID, id, err, start, "The new time slot at %s is not available.")
	}

	res = ok(fmt.Sprintf("Appointment rescheduled to %s at %s.",
		availability.FormatDateLabel(start), availability.FormatTime(start)))
	res.Appointment = &AppointmentDetail{Appointment: *updated}
	return res
}

// transition describes one status-changing operation.
type transition struct {
	op      string
	to      Status
	prefix  string // summary prefix to write, empty to keep the title
	event   string
	done    string
	already string
	refuse  string // takes the current status phrase
}

var (
	cancelOp = transition{
		op:      "cancel",
		to:      StatusCancelled,
		prefix:  calendar.CancelledPrefix,
		event:   EventAppointmentCancelled,
		done:    "Appointment cancelled successfully.",
		already: "Appointment is already cancelled.",
		refuse:  "Cannot cancel an appointment that is %s.",
	}
	noShowOp = transition{
		op:      "mark no-show",
		to:      StatusNoShow,
		prefix:  calendar.NoShowPrefix,
		event:   EventAppointmentNoShow,
		done:    "Appointment marked as no-show.",
		already: "Appointment is already marked as no-show.",
		refuse:  "Cannot mark an appointment as no-show when it is %s.",
	}
	confirmOp = transition{
		op:      "confirm",
		to:      StatusConfirmed,
		event:   EventAppointmentConfirmed,
		done:    "Appointment confirmed.",
		already: "Appointment is already confirmed.",
		refuse:  "Cannot confirm an appointment that is %s.",
	}
	completeOp = transition{
		op:      "complete",
		to:      StatusCompleted,
		event:   EventAppointmentCompleted,
		done:    "Appointment marked as completed.",
		already: "Appointment is already completed.",
		refuse:  "Cannot complete an appointment that is %s.",
	}
)

// Cancel relabels the calendar event instead of deleting it and frees its time.
// Cancelling a cancelled appointment succeeds again without touching either store.
func (s *Service) Cancel(ctx context.Context, doctorID, id uuid.UUID) Result {
	return s.transition(ctx, doctorID, id, cancelOp)
}

func (s *Service) MarkNoShow(ctx context.Context, doctorID, id uuid.UUID) Result {
	return s.transition(ctx, doctorID, id, noShowOp)
}

func (s *Service) Confirm(ctx context.Context, doctorID, id uuid.UUID) Result {
	return s.transition(ctx, doctorID, id, confirmOp)
}

func (s *Service) Complete(ctx context.Context, doctorID, id uuid.UUID) Result {
	return s.transition(ctx, doctorID, id, completeOp)
}

func (s *Service) transition(ctx context.Context, doctorID, id uuid.UUID, t transition) Result {
	appt, err := s.repo.GetAppointment(ctx, doctorID, id)
	if err != nil {
		return s.failed(t.op, doctorID, id, err, msgNotFound)
	}

	if appt.Status == t.to {
		res := ok(t.already)
		res.Appointment = &AppointmentDetail{Appointment: *appt}
		return res
	}
	if !CanTransition(appt.Status, t.to) {
		return fail(CodeInvalidTransition,
			fmt.Sprintf(t.refuse, statusPhrase(appt.Status)),
			fmt.Errorf("%w: %s to %s", ErrInvalidStatusTransition, appt.Status, t.to))
	}

	if appt.HasEvent() {
		if err := s.relabel(ctx, doctorID, *appt, t); err != nil {
			return s.failed(t.op, doctorID, id, err, msgNotFound)
		}
	}

	updated, err := s.repo.UpdateAppointmentStatus(ctx, doctorID, id, appt.Status, t.to)
	if err != nil {
		if appt.HasEvent() {
			err = s.diverged(ctx, t.op, *appt, eventID(*appt), err)
		}
		return s.failed(t.op, doctorID, id, err, msgNotFound)
	}

	s.logEvent(ctx, doctorID, id, t.event, map[string]any{
		"from": appt.Status,
		"to":   t.to,
	})

	res := ok(t.done)
	res.Appointment = &AppointmentDetail{Appointment: *updated}
	return res
}

// relabel writes the new status into the event, leaving every other line alone.
func (s *Service) relabel(ctx context.Context, doctorID uuid.UUID, appt Appointment, t transition) error {
	sess, err := s.open(ctx, doctorID)
	if err != nil {
		return err
	}

	ev, err := sess.cal.GetEvent(ctx, *appt.ExternalEventID)
	if errors.Is(err, calendar.ErrEventNotFound) {
		// deleted by hand in the calendar; the local record still moves
		s.logger.Warn("calendar event missing",
			zap.String("op", t.op),
			zap.Stringer("doctor_id", doctorID),
			zap.Stringer("appointment_id", appt.ID),
			zap.String("event_id", *appt.ExternalEventID),
		)
		s.logEvent(ctx, doctorID, appt.ID, EventExternalEventMissing, map[string]any{"op": t.op, "event_id": *appt.ExternalEventID})
		return nil
	}
	if err != nil {
		return fmt.Errorf("load calendar event: %w", err)
	}

	ev.Description = calendar.SetField(ev.Description, calendar.FieldStatus, string(t.to))
	if t.prefix != "" {
		ev.Summary = calendar.RelabelSummary(ev.Summary, t.prefix)
	}
	if t.to == StatusCancelled {
		ev.Transparent = true
	}
	if _, err := sess.cal.UpdateEvent(ctx, ev); err != nil {
		return fmt.Errorf("relabel calendar event: %w", err)
	}
	return nil
}

// MarkReminderSent sets reminder_sent in the event and the local row.
func (s *Service) MarkReminderSent(ctx context.Context, doctorID, id uuid.UUID) Result {
	appt, err := s.repo.GetAppointment(ctx, doctorID, id)
	if err != nil {
		return s.failed("mark reminder sent", doctorID, id, err, msgNotFound)
	}
	if appt.ReminderSent {
		res := ok("Reminder marked as sent.")
		res.Appointment = &AppointmentDetail{Appointment: *appt}
		return res
	}
	if !appt.Status.Active() {
		return fail(CodeInvalidTransition,
			fmt.Sprintf("Cannot send a reminder for an appointment that is %s.", statusPhrase(appt.Status)),
			fmt.Errorf("%w: reminder for %s", ErrInvalidStatusTransition, appt.Status))
	}

	if appt.HasEvent() {
		sess, err := s.open(ctx, doctorID)
		if err != nil {
			return s.failed("mark reminder sent", doctorID, id, err, msgNotFound)
		}
		ev, err := sess.cal.GetEvent(ctx, *appt.ExternalEventID)
		switch {
		case errors.Is(err, calendar.ErrEventNotFound):
			s.logEvent(ctx, doctorID, id, EventExternalEventMissing, map[string]any{"op": "reminder", "event_id": *appt.ExternalEventID})
		case err != nil:
			return s.failed("mark reminder sent", doctorID, id, err, msgNotFound)
		default:
			ev.Description = calendar.SetField(ev.Description, calendar.FieldReminderSent, "true")
			if _, err := sess.cal.UpdateEvent(ctx, ev); err != nil {
				return s.failed("mark reminder sent", doctorID, id, err, msgNotFound)
			}
		}
	}

	updated, err := s.repo.SetReminderSent(ctx, doctorID, id, true)
	if err != nil {
		if appt.HasEvent() {
			err = s.diverged(ctx, "reminder", *appt, eventID(*appt), err)
		}
		return s.failed("mark reminder sent", doctorID, id, err, msgNotFound)
	}
	s.logEvent(ctx, doctorID, id, EventReminderSent, map[string]any{"starts_at": appt.StartsAt})

	res := ok("Reminder marked as sent.")
	res.Appointment = &AppointmentDetail{Appointment: *updated}
	return res
}

// ListUpcoming returns active appointments dated no later than withinDays from today.
func (s *Service) ListUpcoming(ctx context.Context, doctorID uuid.UUID, withinDays int) Result {
	doctor, err := s.repo.GetDoctor(ctx, doctorID)
	if err != nil {
		return s.failed("list upcoming", doctorID, uuid.Nil, err, "Doctor not found.")
	}
	if withinDays <= 0 {
		withinDays = 30
	}

	loc := doctor.Availability.Loc()
	until := availability.Midnight(s.checker.Now(), loc).AddDate(0, 0, withinDays)

	list, err := s.repo.ListUpcoming(ctx, doctorID, until)
	if err != nil {
		return s.failed("list upcoming", doctorID, uuid.Nil, err, "")
	}

	var res Result
	if len(list) == 0 {
		res = ok(fmt.Sprintf("No upcoming appointments in the next %d days.", withinDays))
	} else {
		res = ok(fmt.Sprintf("%s in the next %d days.", countPhrase(len(list), "upcoming appointment"), withinDays))
	}
	res.Appointments = list
	return res
}

// FindByPhone returns the patient with phone and their active appointments.
func (s *Service) FindByPhone(ctx context.Context, doctorID uuid.UUID, phone string) Result {
	patient, err := s.repo.GetPatientByPhone(ctx, doctorID, NormalizePhone(phone))
	if err != nil {
		return s.failed("find by phone", doctorID, uuid.Nil, err, "No patient found with that phone number.")
	}

	list, err := s.repo.ListActiveByPatient(ctx, doctorID, patient.ID)
	if err != nil {
		return s.failed("find by phone", doctorID, uuid.Nil, err, "")
	}

	res := ok(fmt.Sprintf("Found %s for %s.", countPhrase(len(list), "upcoming appointment"), patient.Name))
	res.Patient = patient
	for _, a := range list {
		res.Appointments = append(res.Appointments, AppointmentDetail{Appointment: a, Patient: patient})
	}
	return res
}

func (s *Service) Get(ctx context.Context, doctorID, id uuid.UUID) Result {
	detail, err := s.repo.GetAppointmentDetail(ctx, doctorID, id)
	if err != nil {
		return s.failed("get", doctorID, id, err, msgNotFound)
	}

	res := ok(fmt.Sprintf("Appointment for %s on %s at %s is %s.",
		detail.Patient.Name,
		availability.FormatDateLabel(detail.Date),
		detail.ClockLabel(),
		statusPhrase(detail.Status),
	))
	res.Appointment = detail
	res.Patient = detail.Patient
	res.ConfirmationCode = ConfirmationCode(detail.Appointment)
	return res
}

// Reconcile pulls status and reminder changes a human made in the calendar UI.
// A calendar status the state machine cannot reach from the local one is ignored.
func (s *Service) Reconcile(ctx context.Context, doctorID, id uuid.UUID) Result {
	appt, err := s.repo.GetAppointment(ctx, doctorID, id)
	if err != nil {
		return s.failed("reconcile", doctorID, id, err, msgNotFound)
	}
	if !appt.HasEvent() {
		res := ok("Appointment has no calendar event to reconcile.")
		res.Appointment = &AppointmentDetail{Appointment: *appt}
		return res
	}

	sess, err := s.open(ctx, doctorID)
	if err != nil {
		return s.failed("reconcile", doctorID, id, err, msgNotFound)
	}
	ev, err := sess.cal.GetEvent(ctx, *appt.ExternalEventID)
	if err != nil {
		return s.failed("reconcile", doctorID, id, err, "The calendar event for this appointment no longer exists.")
	}

	meta := calendar.Decode(ev.Description)
	remote := ParseStatus(meta.Status)
	current := *appt
	var changes []string

	if remote != current.Status && CanTransition(current.Status, remote) {
		updated, err := s.repo.UpdateAppointmentStatus(ctx, doctorID, id, current.Status, remote)
		if err != nil {
			return s.failed("reconcile", doctorID, id, err, msgNotFound)
		}
		changes = append(changes, "status "+statusPhrase(remote))
		current = *updated
	}
	if meta.ReminderSent && !current.ReminderSent {
		updated, err := s.repo.SetReminderSent(ctx, doctorID, id, true)
		if err != nil {
			return s.failed("reconcile", doctorID, id, err, msgNotFound)
		}
		changes = append(changes, "reminder sent")
		current = *updated
	}

	res := ok("Appointment is in sync with the calendar.")
	if len(changes) > 0 {
		s.logEvent(ctx, doctorID, id, EventAppointmentReconciled, map[string]any{"changes": changes})
		res.Message = "Appointment updated from the calendar: " + strings.Join(changes, " and ") + "."
	}
	res.Appointment = &AppointmentDetail{Appointment: current}
	return res
}

// DueForReminder lists active appointments without a reminder that start
// REMINDER_HOURS_BEFORE from now, give or take REMINDER_WINDOW.
func (s *Service) DueForReminder(ctx context.Context) ([]Appointment, error) {
	target := s.checker.Now().Add(time.Duration(s.cfg.ReminderHoursBefore) * time.Hour)
	due, err := s.repo.FindDueReminders(ctx, target.Add(-s.cfg.ReminderWindow), target.Add(s.cfg.ReminderWindow))
	if err != nil {
		return nil, fmt.Errorf("find due reminders: %w", err)
	}
	return due, nil
}

// resolveStart turns caller date and time strings into an instant in the doctor's zone.
func (s *Service) resolveStart(sess session, date, clock string) (time.Time, Result, bool) {
	loc := sess.loc()
	day, err := availability.ResolveDate(date, s.checker.Now().In(loc), loc)
	if err != nil {
		return time.Time{}, fail(CodeUnparsable,
			fmt.Sprintf("Could not understand the date: %s. Please try YYYY-MM-DD format.", date), err), false
	}
	tod, err := availability.ResolveTime(clock)
	if err != nil {
		return time.Time{}, fail(CodeUnparsable,
			fmt.Sprintf("Could not understand the time: %s. Please try a time like 2:30 PM.", clock), err), false
	}
	return tod.On(day), Result{}, true
}

// ensureFree runs inside the slot lock. moving is the appointment being
// rescheduled, whose own record and event never block it.
func (s *Service) ensureFree(ctx context.Context, sess session, slot availability.TimeSlot, moving *Appointment) error {
	existing, err := s.repo.GetActiveAppointmentAt(ctx, sess.doctor.ID, slot.Start)
	if err != nil && !errors.Is(err, ErrAppointmentNotFound) {
		return fmt.Errorf("check local appointments: %w", err)
	}
	if existing != nil && (moving == nil || existing.ID != moving.ID) {
		return fmt.Errorf("%w: booked locally by %s", ErrSlotUnavailable, existing.ID)
	}

	var ignore *availability.TimeSlot
	if moving != nil {
		own := moving.Slot()
		ignore = &own
	}

	cfg := sess.doctor.Availability
	free, err := s.checker.IsSlotAvailable(ctx, calendar.NewBusyResolver(sess.cal, cfg.Loc()), cfg, slot.Start, slot.Duration(), ignore)
	if err != nil {
		return err
	}
	if !free {
		return fmt.Errorf("%w: %s", ErrSlotUnavailable, slot.Start.Format(time.RFC3339))
	}
	return nil
}

// slotFailure turns an error from a locked booking section into a Result.
func (s *Service) slotFailure(op string, doctorID, id uuid.UUID, err error, start time.Time, unavailable string) Result {
	at := availability.FormatTime(start)
	switch {
	case errors.Is(err, redisclient.ErrLockNotAcquired):
		return fail(CodeSlotUnavailable,
			fmt.Sprintf("The time slot at %s is currently being booked. Please try another time.", at),
			fmt.Errorf("%w: %v", ErrSlotUnavailable, err))
	case errors.Is(err, ErrSlotUnavailable):
		return fail(CodeSlotUnavailable, fmt.Sprintf(unavailable, at), err)
	default:
		return s.failed(op, doctorID, id, err, msgNotFound)
	}
}

// diverged records a local write failing after the calendar write succeeded.
func (s *Service) diverged(ctx context.Context, op string, appt Appointment, eventID string, cause error) error {
	s.logger.Error("calendar and local store diverged",
		zap.String("op", op),
		zap.String("event_id", eventID),
		zap.Stringer("appointment_id", appt.ID),
		zap.Stringer("doctor_id", appt.DoctorID),
		zap.Error(cause),
	)
	s.logEvent(ctx, appt.DoctorID, appt.ID, EventStoreDiverged, map[string]any{
		"op":       op,
		"event_id": eventID,
		"error":    cause.Error(),
	})
	return fmt.Errorf("%w: %s appointment %s (event %s): %v", ErrStoreDiverged, op, appt.ID, eventID, cause)
}

// missingEvent handles a linked event that is gone when it must be moved.
func (s *Service) missingEvent(ctx context.Context, op string, appt Appointment, err error) error {
	if !errors.Is(err, calendar.ErrEventNotFound) {
		return fmt.Errorf("load calendar event: %w", err)
	}
	s.logEvent(ctx, appt.DoctorID, appt.ID, EventExternalEventMissing, map[string]any{"op": op, "event_id": eventID(appt)})
	return fmt.Errorf("%w: event %s of appointment %s is gone", ErrStoreDiverged, eventID(appt), appt.ID)
}

// failed logs err and classifies it. notFound is the message for ErrNotFound.
func (s *Service) failed(op string, doctorID, id uuid.UUID, err error, notFound string) Result {
	res := classify(err, notFound)
	fields := []zap.Field{
		zap.String("op", op),
		zap.String("code", string(res.Code)),
		zap.Stringer("doctor_id", doctorID),
		zap.Error(err),
	}
	if id != uuid.Nil {
		fields = append(fields, zap.Stringer("appointment_id", id))
	}

	switch res.Code {
	case CodeInternal, CodeStoreDiverged, CodeExternalUnavailable:
		s.logger.Error("appointment operation failed", fields...)
	default:
		s.logger.Info("appointment operation rejected", fields...)
	}
	return res
}

func (s *Service) logEvent(ctx context.Context, doctorID, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn("marshal event payload", zap.String("event_type", eventType), zap.Error(err))
		data = nil
	}

	ev := EventLog{
		EventType:     eventType,
		DoctorID:      &doctorID,
		AppointmentID: &appointmentID,
		Payload:       data,
		CreatedAt:     time.Now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.logger.Warn("insert event log",
			zap.String("event_type", eventType),
			zap.Stringer("appointment_id", appointmentID),
			zap.Error(err),
		)
	}
}

func metadataFor(a Appointment, p Patient) calendar.Metadata {
	m := calendar.Metadata{
		PatientName:  p.Name,
		Phone:        p.Phone,
		Type:         string(a.Type),
		Status:       string(a.Status),
		ReminderSent: a.ReminderSent,
		Notes:        a.Notes,
	}
	if p.Email != nil {
		m.Email = *p.Email
	}
	return m
}

func eventID(a Appointment) string {
	if a.ExternalEventID == nil {
		return ""
	}
	return *a.ExternalEventID
}

func minutes(n int) time.Duration {
	return time.Duration(n) * time.Minute
}
