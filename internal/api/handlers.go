package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/calendar-proxy-scheduling/internal/appointment"
	"github.com/hackgods/calendar-proxy-scheduling/internal/ical"
)

// Appointments is the lifecycle service as the HTTP layer sees it.
type Appointments interface {
	CheckAvailability(ctx context.Context, doctorID uuid.UUID, date string, durationMinutes int) appointment.Result
	Create(ctx context.Context, doctorID uuid.UUID, in appointment.CreateInput) appointment.Result
	Reschedule(ctx context.Context, doctorID, id uuid.UUID, date, clock string) appointment.Result
	Cancel(ctx context.Context, doctorID, id uuid.UUID) appointment.Result
	Confirm(ctx context.Context, doctorID, id uuid.UUID) appointment.Result
	Complete(ctx context.Context, doctorID, id uuid.UUID) appointment.Result
	MarkNoShow(ctx context.Context, doctorID, id uuid.UUID) appointment.Result
	MarkReminderSent(ctx context.Context, doctorID, id uuid.UUID) appointment.Result
	Reconcile(ctx context.Context, doctorID, id uuid.UUID) appointment.Result
	Get(ctx context.Context, doctorID, id uuid.UUID) appointment.Result
	ListUpcoming(ctx context.Context, doctorID uuid.UUID, withinDays int) appointment.Result
	FindByPhone(ctx context.Context, doctorID uuid.UUID, phone string) appointment.Result
}

type appointmentOp func(ctx context.Context, doctorID, id uuid.UUID) appointment.Result

func checkAvailabilityHandler(svc Appointments) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CheckAvailabilityRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		writeResult(w, http.StatusOK, svc.CheckAvailability(r.Context(), doctorID(r.Context()), req.Date, req.DurationMinutes))
	}
}

func createAppointmentHandler(svc Appointments) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppointmentRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		res := svc.Create(r.Context(), doctorID(r.Context()), appointment.CreateInput{
			PatientName:  req.PatientName,
			PatientPhone: req.PatientPhone,
			PatientEmail: req.PatientEmail,
			Date:         req.Date,
			Time:         req.Time,
			Type:         req.Type,
			Notes:        req.Notes,
		})
		writeResult(w, http.StatusCreated, res)
	}
}

func rescheduleAppointmentHandler(svc Appointments) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentID(w, r)
		if !ok {
			return
		}
		var req RescheduleRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		writeResult(w, http.StatusOK, svc.Reschedule(r.Context(), doctorID(r.Context()), id, req.Date, req.Time))
	}
}

// appointmentOpHandler serves the body-less per-appointment operations.
func appointmentOpHandler(op appointmentOp) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentID(w, r)
		if !ok {
			return
		}
		writeResult(w, http.StatusOK, op(r.Context(), doctorID(r.Context()), id))
	}
}

func listUpcomingHandler(svc Appointments) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		days, ok := daysParam(w, r)
		if !ok {
			return
		}
		writeResult(w, http.StatusOK, svc.ListUpcoming(r.Context(), doctorID(r.Context()), days))
	}
}

func findByPhoneHandler(svc Appointments) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		phone := r.URL.Query().Get("phone")
		if phone == "" {
			writeError(w, http.StatusUnprocessableEntity, string(appointment.CodeInvalidInput), "Request is missing or invalid: phone is required.")
			return
		}
		writeResult(w, http.StatusOK, svc.FindByPhone(r.Context(), doctorID(r.Context()), phone))
	}
}

func calendarFeedHandler(svc Appointments, now func() time.Time, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		days, ok := daysParam(w, r)
		if !ok {
			return
		}

		res := svc.ListUpcoming(r.Context(), doctorID(r.Context()), days)
		if !res.Success {
			writeResult(w, http.StatusOK, res)
			return
		}

		w.Header().Set("Content-Type", ical.ContentType)
		w.Header().Set("Content-Disposition", `inline; filename="appointments.ics"`)
		if err := ical.WriteFeed(w, "Appointments", res.Appointments, now()); err != nil {
			// headers are already sent
			logger.Error("write calendar feed", zap.String("request_id", GetRequestID(r.Context())), zap.Error(err))
		}
	}
}

func appointmentID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "Appointment id must be a valid UUID.")
		return uuid.Nil, false
	}
	return id, true
}

func daysParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("days")
	if raw == "" {
		return 0, true
	}
	days, err := strconv.Atoi(raw)
	if err != nil || days < 1 || days > 365 {
		writeError(w, http.StatusUnprocessableEntity, string(appointment.CodeInvalidInput), "Request is missing or invalid: days must be between 1 and 365.")
		return 0, false
	}
	return days, true
}
