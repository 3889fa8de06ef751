package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/calendar-proxy-scheduling/internal/appointment"
	"github.com/hackgods/calendar-proxy-scheduling/internal/availability"
)

type CheckAvailabilityRequest struct {
	Date            string `json:"date" validate:"required,max=100"`
	DurationMinutes int    `json:"duration_minutes" validate:"omitempty,gte=5,lte=480"`
}

type CreateAppointmentRequest struct {
	PatientName  string `json:"patient_name"`
	PatientPhone string `json:"patient_phone"`
	PatientEmail string `json:"patient_email"`
	Date         string `json:"date"`
	Time         string `json:"time"`
	Type         string `json:"type"`
	Notes        string `json:"notes"`
}

type RescheduleRequest struct {
	Date string `json:"date" validate:"required,max=100"`
	Time string `json:"time" validate:"required,max=20"`
}

// Response is the body of every appointment, calendar and oauth endpoint.
type Response struct {
	Success          bool                  `json:"success"`
	Code             string                `json:"code,omitempty"`
	Message          string                `json:"message"`
	Appointment      *AppointmentResponse  `json:"appointment,omitempty"`
	Appointments     []AppointmentResponse `json:"appointments,omitempty"`
	Patient          *PatientResponse      `json:"patient,omitempty"`
	Availability     *AvailabilityResponse `json:"availability,omitempty"`
	ConfirmationCode string                `json:"confirmation_code,omitempty"`
	AuthURL          string                `json:"auth_url,omitempty"`
}

type AppointmentResponse struct {
	ID              uuid.UUID        `json:"id"`
	PatientID       uuid.UUID        `json:"patient_id"`
	Patient         *PatientResponse `json:"patient,omitempty"`
	ExternalEventID *string          `json:"external_event_id,omitempty"`
	Date            string           `json:"date"`
	Time            string           `json:"time"`
	StartsAt        time.Time        `json:"starts_at"`
	DurationMinutes int              `json:"duration_minutes"`
	Type            string           `json:"type"`
	Status          string           `json:"status"`
	ReminderSent    bool             `json:"reminder_sent"`
	Notes           string           `json:"notes,omitempty"`
}

type PatientResponse struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Phone string    `json:"phone"`
	Email *string   `json:"email,omitempty"`
}

type AvailabilityResponse struct {
	Date   string         `json:"date"`
	Closed bool           `json:"closed"`
	Past   bool           `json:"past"`
	Slots  []SlotResponse `json:"slots"`
}

type SlotResponse struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Label string    `json:"label"`
}

func toResponse(res appointment.Result) Response {
	resp := Response{
		Success:          res.Success,
		Code:             string(res.Code),
		Message:          res.Message,
		ConfirmationCode: res.ConfirmationCode,
	}
	if res.Appointment != nil {
		a := toAppointmentResponse(*res.Appointment)
		resp.Appointment = &a
	}
	for _, d := range res.Appointments {
		resp.Appointments = append(resp.Appointments, toAppointmentResponse(d))
	}
	if res.Patient != nil {
		resp.Patient = toPatientResponse(res.Patient)
	}
	if res.Availability != nil {
		resp.Availability = toAvailabilityResponse(*res.Availability)
	}
	return resp
}

func toAppointmentResponse(d appointment.AppointmentDetail) AppointmentResponse {
	return AppointmentResponse{
		ID:              d.ID,
		PatientID:       d.PatientID,
		Patient:         toPatientResponse(d.Patient),
		ExternalEventID: d.ExternalEventID,
		Date:            availability.DateKey(d.Date),
		Time:            d.Time,
		StartsAt:        d.StartsAt,
		DurationMinutes: d.DurationMinutes,
		Type:            string(d.Type),
		Status:          string(d.Status),
		ReminderSent:    d.ReminderSent,
		Notes:           d.Notes,
	}
}

func toPatientResponse(p *appointment.Patient) *PatientResponse {
	if p == nil {
		return nil
	}
	return &PatientResponse{ID: p.ID, Name: p.Name, Phone: p.Phone, Email: p.Email}
}

func toAvailabilityResponse(r availability.Report) *AvailabilityResponse {
	out := &AvailabilityResponse{
		Date:   r.DateKey(),
		Closed: r.Closed,
		Past:   r.Past,
		Slots:  make([]SlotResponse, 0, len(r.Slots)),
	}
	for _, s := range r.Slots {
		out.Slots = append(out.Slots, SlotResponse{Start: s.Start, End: s.End, Label: s.FormattedTime()})
	}
	return out
}
