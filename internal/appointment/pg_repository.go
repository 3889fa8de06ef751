package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/calendar-proxy-scheduling/internal/config"
)

type PgRepository struct {
	pool     *pgxpool.Pool
	defaults config.AvailabilityConfig
}

// NewPgRepository returns a repository whose doctors fall back to defaults
// for any availability column left NULL.
func NewPgRepository(pool *pgxpool.Pool, defaults config.AvailabilityConfig) *PgRepository {
	return &PgRepository{pool: pool, defaults: defaults}
}

const (
	doctorColumns      = `id, name, email, calendar_id, timezone, working_days, start_time, end_time, slot_minutes, buffer_minutes, breaks, created_at, updated_at`
	patientColumns     = `id, doctor_id, name, phone, email, notes, created_at, updated_at`
	appointmentColumns = `id, doctor_id, patient_id, external_event_id, date, time, starts_at, duration_minutes, type, status, reminder_sent, notes, created_at, updated_at`
)

// Helpers

func (r *PgRepository) scanDoctor(row pgx.Row) (*Doctor, error) {
	var (
		d                          Doctor
		tz, days, start, end, brks *string
		slotMin, bufferMin         *int
	)

	err := row.Scan(
		&d.ID,
		&d.Name,
		&d.Email,
		&d.CalendarID,
		&tz,
		&days,
		&start,
		&end,
		&slotMin,
		&bufferMin,
		&brks,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}

	avail, err := r.availabilityFor(tz, days, start, end, slotMin, bufferMin, brks)
	if err != nil {
		return nil, fmt.Errorf("doctor %s availability: %w", d.ID, err)
	}
	d.Availability = avail
	return &d, nil
}

// availabilityFor overlays the non-NULL doctor columns on the defaults.
func (r *PgRepository) availabilityFor(tz, days, start, end *string, slotMin, bufferMin *int, brks *string) (config.AvailabilityConfig, error) {
	a := r.defaults
	var err error

	if tz != nil && *tz != "" {
		a.Timezone = *tz
	}
	if days != nil && *days != "" {
		if a.WorkingDays, err = config.ParseWorkingDays(*days); err != nil {
			return a, err
		}
	}
	if start != nil && *start != "" {
		if a.StartTime, err = config.ParseClockTime(*start); err != nil {
			return a, err
		}
	}
	if end != nil && *end != "" {
		if a.EndTime, err = config.ParseClockTime(*end); err != nil {
			return a, err
		}
	}
	if slotMin != nil {
		a.SlotDuration = time.Duration(*slotMin) * time.Minute
	}
	if bufferMin != nil {
		a.Buffer = time.Duration(*bufferMin) * time.Minute
	}
	if brks != nil {
		if a.Breaks, err = config.ParseBreaks(*brks); err != nil {
			return a, err
		}
	}

	return config.NewAvailability(a.Timezone, a.WorkingDays, a.StartTime, a.EndTime, a.SlotDuration, a.Buffer, a.Breaks)
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient

	err := row.Scan(
		&p.ID,
		&p.DoctorID,
		&p.Name,
		&p.Phone,
		&p.Email,
		&p.Notes,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	return &p, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		a           Appointment
		typ, status string
	)

	err := row.Scan(
		&a.ID,
		&a.DoctorID,
		&a.PatientID,
		&a.ExternalEventID,
		&a.Date,
		&a.Time,
		&a.StartsAt,
		&a.DurationMinutes,
		&typ,
		&status,
		&a.ReminderSent,
		&a.Notes,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Type = ParseType(typ)
	a.Status = ParseStatus(status)
	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// Doctors

func (r *PgRepository) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+doctorColumns+` FROM doctors WHERE id = $1`, id)
	return r.scanDoctor(row)
}

// UpsertDoctor stores d with its availability spelled out column by column.
func (r *PgRepository) UpsertDoctor(ctx context.Context, d Doctor) (*Doctor, error) {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	calendarID := d.CalendarID
	if calendarID == "" {
		calendarID = "primary"
	}
	a := d.Availability

	row := r.pool.QueryRow(ctx, `
		INSERT INTO doctors (id, name, email, calendar_id, timezone, working_days, start_time, end_time,
		                     slot_minutes, buffer_minutes, breaks, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now(), now())
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
		    email = EXCLUDED.email,
		    calendar_id = EXCLUDED.calendar_id,
		    timezone = EXCLUDED.timezone,
		    working_days = EXCLUDED.working_days,
		    start_time = EXCLUDED.start_time,
		    end_time = EXCLUDED.end_time,
		    slot_minutes = EXCLUDED.slot_minutes,
		    buffer_minutes = EXCLUDED.buffer_minutes,
		    breaks = EXCLUDED.breaks,
		    updated_at = now()
		RETURNING `+doctorColumns,
		d.ID, d.Name, d.Email, calendarID,
		a.Timezone,
		config.FormatWorkingDays(a.WorkingDays),
		a.StartTime.String(),
		a.EndTime.String(),
		int(a.SlotDuration/time.Minute),
		int(a.Buffer/time.Minute),
		config.FormatBreaks(a.Breaks),
	)
	return r.scanDoctor(row)
}

// Patients

func (r *PgRepository) GetPatientByPhone(ctx context.Context, doctorID uuid.UUID, phone string) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+patientColumns+`
		FROM patients
		WHERE doctor_id = $1 AND phone = $2
	`, doctorID, phone)
	return scanPatient(row)
}

func (r *PgRepository) UpsertPatient(ctx context.Context, p Patient) (*Patient, error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}

	// a patient on file keeps its name; email and notes are only filled when empty
	row := r.pool.QueryRow(ctx, `
		INSERT INTO patients (id, doctor_id, name, phone, email, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		ON CONFLICT (doctor_id, phone) DO UPDATE
		SET email = COALESCE(patients.email, EXCLUDED.email),
		    notes = COALESCE(patients.notes, EXCLUDED.notes),
		    updated_at = now()
		RETURNING `+patientColumns,
		p.ID, p.DoctorID, p.Name, p.Phone, p.Email, p.Notes,
	)
	return scanPatient(row)
}

// Appointments

func (r *PgRepository) GetAppointment(ctx context.Context, doctorID, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1 AND id = $2
	`, doctorID, id)
	return scanAppointment(row)
}

func (r *PgRepository) GetAppointmentDetail(ctx context.Context, doctorID, id uuid.UUID) (*AppointmentDetail, error) {
	appt, err := r.GetAppointment(ctx, doctorID, id)
	if err != nil {
		return nil, err
	}

	patient, err := scanPatient(r.pool.QueryRow(ctx, `
		SELECT `+patientColumns+`
		FROM patients
		WHERE doctor_id = $1 AND id = $2
	`, doctorID, appt.PatientID))
	if err != nil {
		return nil, fmt.Errorf("load patient %s: %w", appt.PatientID, err)
	}

	return &AppointmentDetail{Appointment: *appt, Patient: patient}, nil
}

func (r *PgRepository) GetActiveAppointmentAt(ctx context.Context, doctorID uuid.UUID, start time.Time) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1
		  AND starts_at = $2
		  AND status IN ('scheduled', 'confirmed')
		LIMIT 1
	`, doctorID, start)
	return scanAppointment(row)
}

func (r *PgRepository) CreateAppointment(ctx context.Context, a Appointment) (*Appointment, error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Status == "" {
		a.Status = StatusScheduled
	}
	if a.Type == "" {
		a.Type = TypeCheckup
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (id, doctor_id, patient_id, external_event_id, date, time, starts_at,
		                          duration_minutes, type, status, reminder_sent, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now(), now())
		RETURNING `+appointmentColumns,
		a.ID, a.DoctorID, a.PatientID, a.ExternalEventID, a.Date, a.Time, a.StartsAt,
		a.DurationMinutes, string(a.Type), string(a.Status), a.ReminderSent, a.Notes,
	)
	return scanAppointment(row)
}

func (r *PgRepository) UpdateAppointmentSchedule(ctx context.Context, doctorID, id uuid.UUID, date time.Time, clock string, startsAt time.Time) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET date = $3,
		    time = $4,
		    starts_at = $5,
		    reminder_sent = false,
		    updated_at = now()
		WHERE doctor_id = $1
		  AND id = $2
		  AND status IN ('scheduled', 'confirmed')
		RETURNING `+appointmentColumns,
		doctorID, id, date, clock, startsAt,
	)
	return scanAppointment(row)
}

// UpdateAppointmentStatus only applies when the row is still in from, so a
// concurrent transition surfaces as ErrAppointmentNotFound.
func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, doctorID, id uuid.UUID, from, to Status) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $3,
		    updated_at = now()
		WHERE doctor_id = $1
		  AND id = $2
		  AND status = $4
		RETURNING `+appointmentColumns,
		doctorID, id, string(to), string(from),
	)
	return scanAppointment(row)
}

func (r *PgRepository) SetReminderSent(ctx context.Context, doctorID, id uuid.UUID, sent bool) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET reminder_sent = $3,
		    updated_at = now()
		WHERE doctor_id = $1
		  AND id = $2
		RETURNING `+appointmentColumns,
		doctorID, id, sent,
	)
	return scanAppointment(row)
}

func (r *PgRepository) ListUpcoming(ctx context.Context, doctorID uuid.UUID, until time.Time) ([]AppointmentDetail, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT a.id, a.doctor_id, a.patient_id, a.external_event_id, a.date, a.time, a.starts_at,
		       a.duration_minutes, a.type, a.status, a.reminder_sent, a.notes, a.created_at, a.updated_at,
		       p.id, p.doctor_id, p.name, p.phone, p.email, p.notes, p.created_at, p.updated_at
		FROM appointments a
		JOIN patients p ON p.id = a.patient_id AND p.doctor_id = a.doctor_id
		WHERE a.doctor_id = $1
		  AND a.date <= $2
		  AND a.status IN ('scheduled', 'confirmed')
		ORDER BY a.date, a.time
	`, doctorID, until)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []AppointmentDetail
	for rows.Next() {
		var (
			d           AppointmentDetail
			p           Patient
			typ, status string
		)
		err := rows.Scan(
			&d.ID, &d.DoctorID, &d.PatientID, &d.ExternalEventID, &d.Date, &d.Time, &d.StartsAt,
			&d.DurationMinutes, &typ, &status, &d.ReminderSent, &d.Notes, &d.CreatedAt, &d.UpdatedAt,
			&p.ID, &p.DoctorID, &p.Name, &p.Phone, &p.Email, &p.Notes, &p.CreatedAt, &p.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		d.Type = ParseType(typ)
		d.Status = ParseStatus(status)
		d.Patient = &p
		result = append(result, d)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) ListActiveByPatient(ctx context.Context, doctorID, patientID uuid.UUID) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1
		  AND patient_id = $2
		  AND status IN ('scheduled', 'confirmed')
		ORDER BY date, time
	`, doctorID, patientID)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) FindDueReminders(ctx context.Context, from, to time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE reminder_sent = false
		  AND status IN ('scheduled', 'confirmed')
		  AND starts_at >= $1
		  AND starts_at < $2
		ORDER BY starts_at
	`, from, to)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, doctor_id, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, now()))
	`, ev.EventType, ev.DoctorID, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
