package appointment

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/calendar-proxy-scheduling/internal/availability"
	"github.com/hackgods/calendar-proxy-scheduling/internal/calendar"
	redisclient "github.com/hackgods/calendar-proxy-scheduling/internal/redis"
)

type memRepo struct {
	mu           sync.Mutex
	doctors      map[uuid.UUID]Doctor
	patients     map[uuid.UUID]Patient
	appts        map[uuid.UUID]Appointment
	events       []EventLog
	failCreate   error
	failSchedule error
}

func newMemRepo() *memRepo {
	return &memRepo{
		doctors:  map[uuid.UUID]Doctor{},
		patients: map[uuid.UUID]Patient{},
		appts:    map[uuid.UUID]Appointment{},
	}
}

func (m *memRepo) GetDoctor(_ context.Context, id uuid.UUID) (*Doctor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	return &d, nil
}

func (m *memRepo) GetPatientByPhone(_ context.Context, doctorID uuid.UUID, phone string) (*Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.patients {
		if p.DoctorID == doctorID && p.Phone == phone {
			return &p, nil
		}
	}
	return nil, ErrPatientNotFound
}

func (m *memRepo) UpsertPatient(_ context.Context, p Patient) (*Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, existing := range m.patients {
		if existing.DoctorID == p.DoctorID && existing.Phone == p.Phone {
			if existing.Email == nil {
				existing.Email = p.Email
			}
			if existing.Notes == nil {
				existing.Notes = p.Notes
			}
			m.patients[id] = existing
			return &existing, nil
		}
	}
	p.ID = uuid.New()
	m.patients[p.ID] = p
	return &p, nil
}

func (m *memRepo) GetAppointment(_ context.Context, doctorID, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok || a.DoctorID != doctorID {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (m *memRepo) GetAppointmentDetail(ctx context.Context, doctorID, id uuid.UUID) (*AppointmentDetail, error) {
	a, err := m.GetAppointment(ctx, doctorID, id)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.patients[a.PatientID]
	return &AppointmentDetail{Appointment: *a, Patient: &p}, nil
}

func (m *memRepo) GetActiveAppointmentAt(_ context.Context, doctorID uuid.UUID, start time.Time) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.appts {
		if a.DoctorID == doctorID && a.StartsAt.Equal(start) && a.Status.Active() {
			return &a, nil
		}
	}
	return nil, ErrAppointmentNotFound
}

func (m *memRepo) CreateAppointment(_ context.Context, a Appointment) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreate != nil {
		return nil, m.failCreate
	}
	m.appts[a.ID] = a
	return &a, nil
}

func (m *memRepo) UpdateAppointmentSchedule(_ context.Context, doctorID, id uuid.UUID, date time.Time, clock string, startsAt time.Time) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSchedule != nil {
		return nil, m.failSchedule
	}
	a, ok := m.appts[id]
	if !ok || a.DoctorID != doctorID || !a.Status.Active() {
		return nil, ErrAppointmentNotFound
	}
	a.Date, a.Time, a.StartsAt, a.ReminderSent = date, clock, startsAt, false
	m.appts[id] = a
	return &a, nil
}

func (m *memRepo) UpdateAppointmentStatus(_ context.Context, doctorID, id uuid.UUID, from, to Status) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok || a.DoctorID != doctorID || a.Status != from {
		return nil, ErrAppointmentNotFound
	}
	a.Status = to
	m.appts[id] = a
	return &a, nil
}

func (m *memRepo) SetReminderSent(_ context.Context, doctorID, id uuid.UUID, sent bool) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok || a.DoctorID != doctorID {
		return nil, ErrAppointmentNotFound
	}
	a.ReminderSent = sent
	m.appts[id] = a
	return &a, nil
}

func (m *memRepo) ListUpcoming(_ context.Context, doctorID uuid.UUID, until time.Time) ([]AppointmentDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []AppointmentDetail
	for _, a := range m.appts {
		if a.DoctorID == doctorID && a.Status.Active() && !a.Date.After(until) {
			p := m.patients[a.PatientID]
			out = append(out, AppointmentDetail{Appointment: a, Patient: &p})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].Time < out[j].Time
	})
	return out, nil
}

func (m *memRepo) ListActiveByPatient(_ context.Context, doctorID, patientID uuid.UUID) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Appointment
	for _, a := range m.appts {
		if a.DoctorID == doctorID && a.PatientID == patientID && a.Status.Active() {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartsAt.Before(out[j].StartsAt) })
	return out, nil
}

func (m *memRepo) FindDueReminders(_ context.Context, from, to time.Time) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Appointment
	for _, a := range m.appts {
		if !a.ReminderSent && a.Status.Active() && !a.StartsAt.Before(from) && a.StartsAt.Before(to) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memRepo) InsertEvent(_ context.Context, ev EventLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func (m *memRepo) eventTypes(id uuid.UUID) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, ev := range m.events {
		if ev.AppointmentID != nil && *ev.AppointmentID == id {
			out = append(out, ev.EventType)
		}
	}
	return out
}

func (m *memRepo) hasEvent(eventType string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ev := range m.events {
		if ev.EventType == eventType {
			return true
		}
	}
	return false
}

// memCalendar reports its own opaque events as busy, like a real calendar.
type memCalendar struct {
	mu       sync.Mutex
	events   map[string]calendar.Event
	busy     []availability.TimeSlot
	busyErr  error
	writeErr error
	seq      int
	updates  int
}

func newMemCalendar() *memCalendar {
	return &memCalendar{events: map[string]calendar.Event{}}
}

func (c *memCalendar) BusyPeriods(_ context.Context, from, to time.Time) ([]availability.TimeSlot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busyErr != nil {
		return nil, fmt.Errorf("%w: %v", calendar.ErrExternalUnavailable, c.busyErr)
	}
	window := availability.TimeSlot{Start: from, End: to}
	var out []availability.TimeSlot
	for _, b := range c.busy {
		if b.Overlaps(window) {
			out = append(out, b)
		}
	}
	for _, ev := range c.events {
		s := availability.TimeSlot{Start: ev.Start, End: ev.End}
		if !ev.Transparent && s.Overlaps(window) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (c *memCalendar) CreateEvent(_ context.Context, ev calendar.Event) (calendar.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return calendar.Event{}, fmt.Errorf("%w: %v", calendar.ErrExternalUnavailable, c.writeErr)
	}
	c.seq++
	ev.ID = fmt.Sprintf("evt-%d", c.seq)
	c.events[ev.ID] = ev
	return ev, nil
}

func (c *memCalendar) GetEvent(_ context.Context, id string) (calendar.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ev, ok := c.events[id]
	if !ok {
		return calendar.Event{}, calendar.ErrEventNotFound
	}
	return ev, nil
}

func (c *memCalendar) UpdateEvent(_ context.Context, ev calendar.Event) (calendar.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return calendar.Event{}, fmt.Errorf("%w: %v", calendar.ErrExternalUnavailable, c.writeErr)
	}
	if _, ok := c.events[ev.ID]; !ok {
		return calendar.Event{}, calendar.ErrEventNotFound
	}
	c.updates++
	c.events[ev.ID] = ev
	return ev, nil
}

func (c *memCalendar) event(id *string) calendar.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.events[*id]
}

type memSource struct {
	cals map[uuid.UUID]*memCalendar
	err  error
}

func (s *memSource) Calendar(_ context.Context, owner uuid.UUID, _ string, _ *time.Location) (calendar.Calendar, error) {
	if s.err != nil {
		return nil, s.err
	}
	cal, ok := s.cals[owner]
	if !ok {
		cal = newMemCalendar()
		s.cals[owner] = cal
	}
	return cal, nil
}

// memLocker refuses keys listed in held and otherwise serializes per key.
type memLocker struct {
	mu   sync.Mutex
	held map[string]bool
	keys []string
}

func newMemLocker() *memLocker {
	return &memLocker{held: map[string]bool{}}
}

func (l *memLocker) WithSlotLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	if l.held[key] {
		l.mu.Unlock()
		return redisclient.ErrLockNotAcquired
	}
	l.held[key] = true
	l.keys = append(l.keys, key)
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		delete(l.held, key)
		l.mu.Unlock()
	}()
	return fn(ctx)
}
