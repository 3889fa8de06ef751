package appointment

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/hackgods/calendar-proxy-scheduling/internal/availability"
	"github.com/hackgods/calendar-proxy-scheduling/internal/calendar"
	"github.com/hackgods/calendar-proxy-scheduling/internal/config"
	"github.com/hackgods/calendar-proxy-scheduling/internal/credential"
	redisclient "github.com/hackgods/calendar-proxy-scheduling/internal/redis"
)

type fixture struct {
	svc     *Service
	repo    *memRepo
	source  *memSource
	locker  *memLocker
	doctorA uuid.UUID
	doctorB uuid.UUID
	loc     *time.Location
	now     time.Time
}

// weekdays 09:00-17:00, 30 minute visits on the hour, lunch 12:00-14:00
func clinicAvailability(t *testing.T) config.AvailabilityConfig {
	t.Helper()
	cfg, err := config.NewAvailability(
		"America/New_York",
		[]time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
		config.ClockTime{Hour: 9},
		config.ClockTime{Hour: 17},
		30*time.Minute,
		30*time.Minute,
		[]config.ClockRange{{Start: config.ClockTime{Hour: 12}, End: config.ClockTime{Hour: 14}}},
	)
	require.NoError(t, err)
	return cfg
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	avail := clinicAvailability(t)
	loc := avail.Loc()

	f := &fixture{
		repo:    newMemRepo(),
		source:  &memSource{cals: map[uuid.UUID]*memCalendar{}},
		locker:  newMemLocker(),
		doctorA: uuid.New(),
		doctorB: uuid.New(),
		loc:     loc,
		// Monday morning before opening
		now: time.Date(2026, 2, 16, 8, 0, 0, 0, loc),
	}
	f.repo.doctors[f.doctorA] = Doctor{ID: f.doctorA, Name: "Dr. A", CalendarID: "primary", Availability: avail}
	f.repo.doctors[f.doctorB] = Doctor{ID: f.doctorB, Name: "Dr. B", CalendarID: "primary", Availability: avail}

	cfg := config.Config{ReminderHoursBefore: 3, ReminderWindow: 30 * time.Minute, Availability: avail}
	f.svc = NewService(f.repo, f.locker, f.source, cfg, zaptest.NewLogger(t),
		WithClock(func() time.Time { return f.now }),
	)
	return f
}

func (f *fixture) cal(doctor uuid.UUID) *memCalendar {
	if c, ok := f.source.cals[doctor]; ok {
		return c
	}
	c := newMemCalendar()
	f.source.cals[doctor] = c
	return c
}

func (f *fixture) at(d, hh, mm int) time.Time {
	return time.Date(2026, 2, d, hh, mm, 0, 0, f.loc)
}

func janeRoe(date, clock string) CreateInput {
	return CreateInput{
		PatientName:  "Jane Roe",
		PatientPhone: "(555) 123-4567",
		PatientEmail: " Jane.Roe@Example.com ",
		Date:         date,
		Time:         clock,
		Type:         "consultation",
		Notes:        "first visit",
	}
}

func (f *fixture) book(t *testing.T, doctor uuid.UUID, date, clock string) *AppointmentDetail {
	t.Helper()
	res := f.svc.Create(context.Background(), doctor, janeRoe(date, clock))
	require.True(t, res.Success, res.Message)
	require.NotNil(t, res.Appointment)
	return res.Appointment
}

var confirmationPattern = regexp.MustCompile(`^CP-\d{8}-[0-9A-F]{4}$`)

func TestCreate_BooksAndLinksEvent(t *testing.T) {
	f := newFixture(t)

	res := f.svc.Create(context.Background(), f.doctorA, janeRoe("2026-02-17", "9:00 AM"))
	require.True(t, res.Success, res.Message)

	assert.Regexp(t, confirmationPattern, res.ConfirmationCode)
	assert.Contains(t, res.ConfirmationCode, "CP-20260217-")
	assert.Equal(t,
		"Appointment confirmed for Jane Roe on Tuesday, February 17, 2026 at 9:00 AM. Confirmation number: "+res.ConfirmationCode,
		res.Message)

	appt := res.Appointment
	require.NotNil(t, appt.ExternalEventID)
	assert.Equal(t, StatusScheduled, appt.Status)
	assert.Equal(t, TypeConsultation, appt.Type)
	assert.Equal(t, "09:00", appt.Time)
	assert.True(t, appt.StartsAt.Equal(f.at(17, 9, 0)))
	assert.Equal(t, 30, appt.DurationMinutes)
	assert.False(t, appt.ReminderSent)

	require.NotNil(t, res.Patient)
	assert.Equal(t, "+15551234567", res.Patient.Phone)
	require.NotNil(t, res.Patient.Email)
	assert.Equal(t, "Jane.Roe@example.com", *res.Patient.Email)

	ev := f.cal(f.doctorA).event(appt.ExternalEventID)
	assert.Equal(t, "Appointment: Jane Roe", ev.Summary)
	assert.True(t, ev.Start.Equal(f.at(17, 9, 0)))
	assert.True(t, ev.End.Equal(f.at(17, 9, 30)))
	meta := calendar.Decode(ev.Description)
	assert.Equal(t, "+15551234567", meta.Phone)
	assert.Equal(t, "consultation", meta.Type)
	assert.Equal(t, "scheduled", meta.Status)
	assert.Equal(t, "first visit", meta.Notes)

	assert.Equal(t, []string{EventAppointmentCreated}, f.repo.eventTypes(appt.ID))
	assert.Equal(t, []string{redisclient.SlotKey(f.doctorA, f.at(17, 9, 0))}, f.locker.keys)
}

func TestCreate_ReusesPatientByPhone(t *testing.T) {
	f := newFixture(t)
	first := f.book(t, f.doctorA, "2026-02-17", "09:00")
	second := f.book(t, f.doctorA, "2026-02-17", "10:00")

	assert.Equal(t, first.PatientID, second.PatientID)
	assert.Len(t, f.repo.patients, 1)
}

func TestCreate_FoundPatientKeepsName(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.book(t, f.doctorA, "2026-02-17", "09:00")

	in := janeRoe("2026-02-17", "10:00")
	in.PatientName = "John Roe"
	second := f.svc.Create(ctx, f.doctorA, in)
	require.True(t, second.Success, second.Message)
	assert.Equal(t, first.PatientID, second.Appointment.PatientID)
	assert.Equal(t, "Jane Roe", second.Patient.Name)

	got := f.svc.Get(ctx, f.doctorA, first.ID)
	require.True(t, got.Success)
	assert.Equal(t, "Appointment for Jane Roe on Tuesday, February 17, 2026 at 9:00 AM is scheduled.", got.Message)
	assert.Equal(t, "Appointment: Jane Roe", f.cal(f.doctorA).event(first.ExternalEventID).Summary)
	assert.Equal(t, "Appointment: Jane Roe", f.cal(f.doctorA).event(second.Appointment.ExternalEventID).Summary)
}

func TestCreate_BusySlotIsUnavailable(t *testing.T) {
	f := newFixture(t)
	cal := f.cal(f.doctorA)
	cal.busy = []availability.TimeSlot{{Start: f.at(17, 9, 15), End: f.at(17, 9, 45)}}

	res := f.svc.Create(context.Background(), f.doctorA, janeRoe("2026-02-17", "9:00 AM"))
	assert.False(t, res.Success)
	assert.Equal(t, CodeSlotUnavailable, res.Code)
	assert.ErrorIs(t, res.Err, ErrSlotUnavailable)
	assert.Equal(t, "The time slot at 9:00 AM is not available. Please check availability and try another time.", res.Message)
	assert.Empty(t, cal.events)
	assert.Empty(t, f.repo.appts)
}

func TestCreate_DoubleBookingIsRejected(t *testing.T) {
	f := newFixture(t)
	f.book(t, f.doctorA, "2026-02-17", "09:00")

	res := f.svc.Create(context.Background(), f.doctorA, janeRoe("2026-02-17", "09:00"))
	assert.Equal(t, CodeSlotUnavailable, res.Code)
	assert.Len(t, f.repo.appts, 1)
}

func TestCreate_LocalRecordBlocksEvenWithoutEvent(t *testing.T) {
	f := newFixture(t)
	booked := f.book(t, f.doctorA, "2026-02-17", "09:00")
	// the event is gone from the calendar but the local booking stands
	delete(f.cal(f.doctorA).events, *booked.ExternalEventID)

	res := f.svc.Create(context.Background(), f.doctorA, janeRoe("2026-02-17", "09:00"))
	assert.Equal(t, CodeSlotUnavailable, res.Code)
}

func TestCreate_SlotBeingBooked(t *testing.T) {
	f := newFixture(t)
	f.locker.held[redisclient.SlotKey(f.doctorA, f.at(17, 9, 0))] = true

	res := f.svc.Create(context.Background(), f.doctorA, janeRoe("2026-02-17", "9am"))
	assert.Equal(t, CodeSlotUnavailable, res.Code)
	assert.Equal(t, "The time slot at 9:00 AM is currently being booked. Please try another time.", res.Message)
	assert.ErrorIs(t, res.Err, ErrSlotUnavailable)
	assert.Empty(t, f.cal(f.doctorA).events)
}

func TestCreate_OutsideWorkingHours(t *testing.T) {
	f := newFixture(t)
	cases := map[string][2]string{
		"off grid":    {"2026-02-17", "9:15 AM"},
		"lunch break": {"2026-02-17", "12:00 PM"},
		"after hours": {"2026-02-17", "5:00 PM"},
		"weekend":     {"2026-02-21", "10:00 AM"},
		"past":        {"2026-02-13", "10:00 AM"},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			res := f.svc.Create(context.Background(), f.doctorA, janeRoe(c[0], c[1]))
			assert.Equal(t, CodeSlotUnavailable, res.Code)
		})
	}
	assert.Empty(t, f.repo.appts)
}

func TestCreate_Unparsable(t *testing.T) {
	f := newFixture(t)

	res := f.svc.Create(context.Background(), f.doctorA, janeRoe("someday", "9:00 AM"))
	assert.Equal(t, CodeUnparsable, res.Code)
	assert.Equal(t, "Could not understand the date: someday. Please try YYYY-MM-DD format.", res.Message)
	assert.ErrorIs(t, res.Err, availability.ErrUnparsable)

	res = f.svc.Create(context.Background(), f.doctorA, janeRoe("tomorrow", "noonish"))
	assert.Equal(t, CodeUnparsable, res.Code)
}

func TestCreate_InvalidInput(t *testing.T) {
	f := newFixture(t)
	in := janeRoe("2026-02-17", "9:00 AM")
	in.PatientName = "  "
	in.PatientPhone = "call me maybe"
	in.PatientEmail = "not-an-email"

	res := f.svc.Create(context.Background(), f.doctorA, in)
	assert.Equal(t, CodeInvalidInput, res.Code)
	assert.ErrorIs(t, res.Err, ErrInvalidInput)
	assert.Contains(t, res.Message, "patient name is required")
	assert.Contains(t, res.Message, "patient phone must be a phone number")
	assert.Contains(t, res.Message, "patient email must be a valid email address")
	assert.Empty(t, f.repo.patients)
}

func TestCreate_NotConnected(t *testing.T) {
	f := newFixture(t)
	f.source.err = credential.ErrNotConnected

	res := f.svc.Create(context.Background(), f.doctorA, janeRoe("2026-02-17", "9:00 AM"))
	assert.Equal(t, CodeNotConnected, res.Code)
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Message)
}

func TestCreate_ExternalUnavailableIsNotTreatedAsFree(t *testing.T) {
	f := newFixture(t)
	f.cal(f.doctorA).busyErr = errors.New("503 backend error")

	res := f.svc.Create(context.Background(), f.doctorA, janeRoe("2026-02-17", "9:00 AM"))
	assert.Equal(t, CodeExternalUnavailable, res.Code)
	assert.Equal(t, "The calendar service is temporarily unavailable. Please try again shortly.", res.Message)
	assert.NotContains(t, res.Message, "503")
	assert.Empty(t, f.cal(f.doctorA).events)
}

func TestCreate_UnknownDoctor(t *testing.T) {
	f := newFixture(t)
	res := f.svc.Create(context.Background(), uuid.New(), janeRoe("2026-02-17", "9:00 AM"))
	assert.Equal(t, CodeNotFound, res.Code)
}

func TestCreate_StoreDivergence(t *testing.T) {
	f := newFixture(t)
	f.repo.failCreate = errors.New("connection reset")

	res := f.svc.Create(context.Background(), f.doctorA, janeRoe("2026-02-17", "9:00 AM"))
	assert.Equal(t, CodeStoreDiverged, res.Code)
	assert.ErrorIs(t, res.Err, ErrStoreDiverged)
	assert.Len(t, f.cal(f.doctorA).events, 1, "external write is not rolled back")
	assert.True(t, f.repo.hasEvent(EventStoreDiverged))
}

func TestReschedule_ResetsReminder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	booked := f.book(t, f.doctorA, "2026-02-17", "09:00")

	require.True(t, f.svc.MarkReminderSent(ctx, f.doctorA, booked.ID).Success)
	ev := f.cal(f.doctorA).event(booked.ExternalEventID)
	require.True(t, calendar.Decode(ev.Description).ReminderSent)

	res := f.svc.Reschedule(ctx, f.doctorA, booked.ID, "2026-02-18", "2:00 PM")
	require.True(t, res.Success, res.Message)
	assert.Equal(t, "Appointment rescheduled to Wednesday, February 18, 2026 at 2:00 PM.", res.Message)

	stored := f.repo.appts[booked.ID]
	assert.False(t, stored.ReminderSent)
	assert.Equal(t, "14:00", stored.Time)
	assert.True(t, stored.StartsAt.Equal(f.at(18, 14, 0)))
	assert.Equal(t, *booked.ExternalEventID, *stored.ExternalEventID, "same linked event")

	ev = f.cal(f.doctorA).event(booked.ExternalEventID)
	assert.True(t, ev.Start.Equal(f.at(18, 14, 0)))
	assert.True(t, ev.End.Equal(f.at(18, 14, 30)))
	assert.False(t, calendar.Decode(ev.Description).ReminderSent)
	assert.Contains(t, f.repo.eventTypes(booked.ID), EventAppointmentRescheduled)
}

func TestReschedule_OwnEventDoesNotBlock(t *testing.T) {
	f := newFixture(t)
	booked := f.book(t, f.doctorA, "2026-02-17", "09:00")

	res := f.svc.Reschedule(context.Background(), f.doctorA, booked.ID, "2026-02-17", "9:00 AM")
	assert.True(t, res.Success, res.Message)
}

func TestReschedule_BusyTarget(t *testing.T) {
	f := newFixture(t)
	booked := f.book(t, f.doctorA, "2026-02-17", "09:00")
	f.cal(f.doctorA).busy = []availability.TimeSlot{{Start: f.at(17, 10, 0), End: f.at(17, 11, 0)}}

	res := f.svc.Reschedule(context.Background(), f.doctorA, booked.ID, "2026-02-17", "10:00 AM")
	assert.Equal(t, CodeSlotUnavailable, res.Code)
	assert.Equal(t, "The new time slot at 10:00 AM is not available.", res.Message)
	assert.True(t, f.repo.appts[booked.ID].StartsAt.Equal(f.at(17, 9, 0)))
}

func TestReschedule_TerminalAppointment(t *testing.T) {
	f := newFixture(t)
	booked := f.book(t, f.doctorA, "2026-02-17", "09:00")
	require.True(t, f.svc.Cancel(context.Background(), f.doctorA, booked.ID).Success)

	res := f.svc.Reschedule(context.Background(), f.doctorA, booked.ID, "2026-02-18", "10:00")
	assert.Equal(t, CodeInvalidTransition, res.Code)
	assert.Equal(t, "Cannot reschedule an appointment that is cancelled.", res.Message)
}

func TestReschedule_MissingEventDiverges(t *testing.T) {
	f := newFixture(t)
	booked := f.book(t, f.doctorA, "2026-02-17", "09:00")
	delete(f.cal(f.doctorA).events, *booked.ExternalEventID)

	res := f.svc.Reschedule(context.Background(), f.doctorA, booked.ID, "2026-02-18", "10:00")
	assert.Equal(t, CodeStoreDiverged, res.Code)
	assert.True(t, f.repo.appts[booked.ID].StartsAt.Equal(f.at(17, 9, 0)))
	assert.True(t, f.repo.hasEvent(EventExternalEventMissing))
}

func TestCancel_RelabelsAndFreesSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	booked := f.book(t, f.doctorA, "2026-02-17", "09:00")

	res := f.svc.Cancel(ctx, f.doctorA, booked.ID)
	require.True(t, res.Success, res.Message)
	assert.Equal(t, "Appointment cancelled successfully.", res.Message)
	assert.Equal(t, StatusCancelled, f.repo.appts[booked.ID].Status)

	ev := f.cal(f.doctorA).event(booked.ExternalEventID)
	assert.Equal(t, "CANCELLED: Jane Roe", ev.Summary)
	assert.Equal(t, "cancelled", calendar.Decode(ev.Description).Status)
	assert.Equal(t, "first visit", calendar.Decode(ev.Description).Notes, "other lines kept")
	assert.True(t, ev.Transparent)

	avail := f.svc.CheckAvailability(ctx, f.doctorA, "2026-02-17", 0)
	require.True(t, avail.Success)
	assert.Equal(t, "09:00", avail.Availability.Slots[0].Start.Format("15:04"), "cancelled slot is bookable again")
}

func TestCancel_IsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	booked := f.book(t, f.doctorA, "2026-02-17", "09:00")

	require.True(t, f.svc.Cancel(ctx, f.doctorA, booked.ID).Success)
	updates := f.cal(f.doctorA).updates

	again := f.svc.Cancel(ctx, f.doctorA, booked.ID)
	assert.True(t, again.Success)
	assert.Equal(t, "Appointment is already cancelled.", again.Message)
	assert.Equal(t, StatusCancelled, again.Appointment.Status)
	assert.Equal(t, updates, f.cal(f.doctorA).updates, "no second calendar write")
	assert.Equal(t, []string{EventAppointmentCreated, EventAppointmentCancelled}, f.repo.eventTypes(booked.ID))
}

func TestMarkNoShow(t *testing.T) {
	f := newFixture(t)
	booked := f.book(t, f.doctorA, "2026-02-17", "09:00")

	res := f.svc.MarkNoShow(context.Background(), f.doctorA, booked.ID)
	require.True(t, res.Success)
	assert.Equal(t, "Appointment marked as no-show.", res.Message)

	ev := f.cal(f.doctorA).event(booked.ExternalEventID)
	assert.Equal(t, "NO SHOW: Jane Roe", ev.Summary)
	assert.Equal(t, "no_show", calendar.Decode(ev.Description).Status)
	assert.Equal(t, StatusNoShow, f.repo.appts[booked.ID].Status)
}

func TestStateMachine(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	booked := f.book(t, f.doctorA, "2026-02-17", "09:00")

	res := f.svc.Confirm(ctx, f.doctorA, booked.ID)
	require.True(t, res.Success)
	ev := f.cal(f.doctorA).event(booked.ExternalEventID)
	assert.Equal(t, "Appointment: Jane Roe", ev.Summary, "confirm keeps the title")
	assert.Equal(t, "confirmed", calendar.Decode(ev.Description).Status)

	require.True(t, f.svc.Complete(ctx, f.doctorA, booked.ID).Success)

	for name, op := range map[string]func(context.Context, uuid.UUID, uuid.UUID) Result{
		"cancel":  f.svc.Cancel,
		"no-show": f.svc.MarkNoShow,
		"confirm": f.svc.Confirm,
	} {
		res := op(ctx, f.doctorA, booked.ID)
		assert.Equal(t, CodeInvalidTransition, res.Code, name)
		assert.ErrorIs(t, res.Err, ErrInvalidStatusTransition, name)
	}
	assert.Equal(t, StatusCompleted, f.repo.appts[booked.ID].Status)

	res = f.svc.MarkReminderSent(ctx, f.doctorA, booked.ID)
	assert.Equal(t, CodeInvalidTransition, res.Code)
}

func TestTransitions(t *testing.T) {
	assert.True(t, CanTransition(StatusScheduled, StatusConfirmed))
	assert.True(t, CanTransition(StatusScheduled, StatusCompleted))
	assert.True(t, CanTransition(StatusConfirmed, StatusNoShow))
	assert.False(t, CanTransition(StatusConfirmed, StatusScheduled))
	for _, terminal := range []Status{StatusCancelled, StatusNoShow, StatusCompleted} {
		for _, to := range []Status{StatusScheduled, StatusConfirmed, StatusCancelled, StatusNoShow, StatusCompleted} {
			assert.False(t, CanTransition(terminal, to), "%s -> %s", terminal, to)
		}
	}
}

func TestTenantIsolation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	booked := f.book(t, f.doctorA, "2026-02-17", "09:00")

	results := map[string]Result{
		"get":        f.svc.Get(ctx, f.doctorB, booked.ID),
		"cancel":     f.svc.Cancel(ctx, f.doctorB, booked.ID),
		"no-show":    f.svc.MarkNoShow(ctx, f.doctorB, booked.ID),
		"confirm":    f.svc.Confirm(ctx, f.doctorB, booked.ID),
		"reminder":   f.svc.MarkReminderSent(ctx, f.doctorB, booked.ID),
		"reschedule": f.svc.Reschedule(ctx, f.doctorB, booked.ID, "2026-02-18", "10:00"),
		"reconcile":  f.svc.Reconcile(ctx, f.doctorB, booked.ID),
		"by phone":   f.svc.FindByPhone(ctx, f.doctorB, "+15551234567"),
	}
	for name, res := range results {
		assert.False(t, res.Success, name)
		assert.Equal(t, CodeNotFound, res.Code, name)
		assert.ErrorIs(t, res.Err, ErrNotFound, name)
	}
	assert.Equal(t, "Appointment not found.", results["cancel"].Message)

	assert.Equal(t, StatusScheduled, f.repo.appts[booked.ID].Status)
	assert.Empty(t, f.cal(f.doctorB).events)
}

func TestMarkReminderSent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	booked := f.book(t, f.doctorA, "2026-02-17", "09:00")

	res := f.svc.MarkReminderSent(ctx, f.doctorA, booked.ID)
	require.True(t, res.Success)
	assert.Equal(t, "Reminder marked as sent.", res.Message)
	assert.True(t, f.repo.appts[booked.ID].ReminderSent)
	assert.True(t, calendar.Decode(f.cal(f.doctorA).event(booked.ExternalEventID).Description).ReminderSent)

	updates := f.cal(f.doctorA).updates
	assert.True(t, f.svc.MarkReminderSent(ctx, f.doctorA, booked.ID).Success)
	assert.Equal(t, updates, f.cal(f.doctorA).updates)
}

func TestListUpcoming(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	later := f.book(t, f.doctorA, "2026-02-18", "10:00")
	early := f.book(t, f.doctorA, "2026-02-17", "14:00")
	first := f.book(t, f.doctorA, "2026-02-17", "09:00")
	cancelled := f.book(t, f.doctorA, "2026-02-19", "09:00")
	f.book(t, f.doctorA, "2026-03-20", "09:00")
	f.book(t, f.doctorB, "2026-02-17", "09:00")
	require.True(t, f.svc.Cancel(ctx, f.doctorA, cancelled.ID).Success)

	res := f.svc.ListUpcoming(ctx, f.doctorA, 7)
	require.True(t, res.Success)
	assert.Equal(t, "3 upcoming appointments in the next 7 days.", res.Message)

	var ids []uuid.UUID
	for _, a := range res.Appointments {
		ids = append(ids, a.ID)
		require.NotNil(t, a.Patient)
	}
	assert.Equal(t, []uuid.UUID{first.ID, early.ID, later.ID}, ids)

	empty := f.svc.ListUpcoming(ctx, f.doctorB, 0)
	assert.Equal(t, "1 upcoming appointment in the next 30 days.", empty.Message)
}

func TestFindByPhone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.book(t, f.doctorA, "2026-02-17", "09:00")
	b := f.book(t, f.doctorA, "2026-02-18", "09:00")
	require.True(t, f.svc.Cancel(ctx, f.doctorA, b.ID).Success)

	res := f.svc.FindByPhone(ctx, f.doctorA, "555-123-4567")
	require.True(t, res.Success)
	assert.Equal(t, "Found 1 upcoming appointment for Jane Roe.", res.Message)
	require.Len(t, res.Appointments, 1)
	assert.Equal(t, a.ID, res.Appointments[0].ID)

	missing := f.svc.FindByPhone(ctx, f.doctorA, "+15550000000")
	assert.Equal(t, CodeNotFound, missing.Code)
	assert.Equal(t, "No patient found with that phone number.", missing.Message)
}

func TestGet(t *testing.T) {
	f := newFixture(t)
	booked := f.book(t, f.doctorA, "2026-02-17", "14:00")

	res := f.svc.Get(context.Background(), f.doctorA, booked.ID)
	require.True(t, res.Success)
	assert.Equal(t, "Appointment for Jane Roe on Tuesday, February 17, 2026 at 2:00 PM is scheduled.", res.Message)
	assert.Equal(t, ConfirmationCode(booked.Appointment), res.ConfirmationCode)
}

func TestCheckAvailability(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res := f.svc.CheckAvailability(ctx, f.doctorA, "2026-02-17", 0)
	require.True(t, res.Success)
	var starts []string
	for _, s := range res.Availability.Slots {
		starts = append(starts, s.Start.Format("15:04"))
	}
	assert.Equal(t, []string{"09:00", "10:00", "11:00", "14:00", "15:00", "16:00"}, starts)
	assert.Equal(t, "Available on Tuesday, February 17, 2026: 9:00 AM, 10:00 AM, 11:00 AM, 2:00 PM, 3:00 PM and 1 more.", res.Message)

	bad := f.svc.CheckAvailability(ctx, f.doctorA, "whenever", 0)
	assert.False(t, bad.Success)
	assert.Equal(t, CodeUnparsable, bad.Code)
	assert.Equal(t, "Could not understand the date: whenever. Please try YYYY-MM-DD format.", bad.Message)

	f.cal(f.doctorA).busyErr = errors.New("timeout")
	down := f.svc.CheckAvailability(ctx, f.doctorA, "2026-02-17", 0)
	assert.Equal(t, CodeExternalUnavailable, down.Code)
}

func TestCheckAvailability_FullyBooked(t *testing.T) {
	f := newFixture(t)
	f.cal(f.doctorA).busy = []availability.TimeSlot{{Start: time.Date(2026, 2, 9, 0, 0, 0, 0, f.loc), End: time.Date(2026, 2, 10, 0, 0, 0, 0, f.loc)}}
	f.now = time.Date(2026, 2, 8, 12, 0, 0, 0, f.loc)

	res := f.svc.CheckAvailability(context.Background(), f.doctorA, "2026-02-09", 0)
	require.True(t, res.Success)
	assert.Empty(t, res.Availability.Slots)
	assert.Equal(t, "No available appointments on Monday, February 09, 2026.", res.Message)
}

func TestReconcile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	booked := f.book(t, f.doctorA, "2026-02-17", "09:00")
	cal := f.cal(f.doctorA)

	res := f.svc.Reconcile(ctx, f.doctorA, booked.ID)
	require.True(t, res.Success)
	assert.Equal(t, "Appointment is in sync with the calendar.", res.Message)

	// a human edits the event in the calendar UI
	ev := cal.event(booked.ExternalEventID)
	ev.Description = calendar.SetField(ev.Description, calendar.FieldStatus, "Confirmed")
	ev.Description = calendar.SetField(ev.Description, calendar.FieldReminderSent, "true")
	cal.events[ev.ID] = ev

	res = f.svc.Reconcile(ctx, f.doctorA, booked.ID)
	require.True(t, res.Success)
	assert.Equal(t, "Appointment updated from the calendar: status confirmed and reminder sent.", res.Message)
	assert.Equal(t, StatusConfirmed, f.repo.appts[booked.ID].Status)
	assert.True(t, f.repo.appts[booked.ID].ReminderSent)

	// unreachable or unknown statuses are ignored
	ev.Description = calendar.SetField(ev.Description, calendar.FieldStatus, "rescheduled?")
	cal.events[ev.ID] = ev
	res = f.svc.Reconcile(ctx, f.doctorA, booked.ID)
	assert.True(t, res.Success)
	assert.Equal(t, StatusConfirmed, f.repo.appts[booked.ID].Status)
}

func TestDueForReminder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	due := f.book(t, f.doctorA, "2026-02-17", "11:00")
	f.book(t, f.doctorA, "2026-02-17", "15:00")
	sent := f.book(t, f.doctorA, "2026-02-17", "10:00")
	require.True(t, f.svc.MarkReminderSent(ctx, f.doctorA, sent.ID).Success)

	f.now = f.at(17, 8, 0)
	list, err := f.svc.DueForReminder(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, due.ID, list[0].ID)
}

func TestConfirmationCode(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	a := Appointment{
		ID:   uuid.MustParse("3f2a9c1e-0000-4000-8000-000000000000"),
		Date: time.Date(2026, 2, 17, 0, 0, 0, 0, loc),
	}
	assert.Equal(t, "CP-20260217-3F2A", ConfirmationCode(a))
}

func TestParseStatusAndType(t *testing.T) {
	assert.Equal(t, StatusNoShow, ParseStatus("No Show"))
	assert.Equal(t, StatusNoShow, ParseStatus("no-show"))
	assert.Equal(t, StatusCancelled, ParseStatus("Canceled"))
	assert.Equal(t, StatusScheduled, ParseStatus("pending"))
	assert.Equal(t, StatusScheduled, ParseStatus(""))

	assert.Equal(t, TypeFollowUp, ParseType("Follow-up"))
	assert.Equal(t, TypeUrgent, ParseType(" URGENT "))
	assert.Equal(t, TypeCheckup, ParseType("dental"))
}

func TestNormalizePhone(t *testing.T) {
	assert.Equal(t, "+15551234567", NormalizePhone("(555) 123-4567"))
	assert.Equal(t, "+15551234567", NormalizePhone("1 555 123 4567"))
	assert.Equal(t, "+442071234567", NormalizePhone("+44 20 7123 4567"))
	assert.Equal(t, "12345", NormalizePhone("12345"))
	assert.Equal(t, "callme", NormalizePhone("call me"))
}
