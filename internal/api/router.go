package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type RouterConfig struct {
	Service  Appointments
	Calendar CalendarConnector
	States   OAuthStates
	Health   *HealthHandler
	Logger   *zap.Logger
	Now      func() time.Time
}

func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(middleware.Recoverer)

	r.Get("/health/live", cfg.Health.Liveness)
	r.Get("/health/ready", cfg.Health.Readiness)

	r.Get("/oauth/google/callback", oauthCallbackHandler(cfg.Calendar, cfg.States, cfg.Logger))

	r.Group(func(r chi.Router) {
		r.Use(DoctorMiddleware)

		r.Get("/oauth/google/start", oauthStartHandler(cfg.Calendar, cfg.States, cfg.Logger))

		r.Route("/api", func(r chi.Router) {
			svc := cfg.Service

			r.Post("/calendar/check-availability", checkAvailabilityHandler(svc))
			r.Get("/calendar/feed.ics", calendarFeedHandler(svc, cfg.Now, cfg.Logger))

			r.Get("/patients/by-phone", findByPhoneHandler(svc))

			r.Post("/appointments", createAppointmentHandler(svc))
			r.Get("/appointments/upcoming", listUpcomingHandler(svc))
			r.Get("/appointments/{id}", appointmentOpHandler(svc.Get))
			r.Post("/appointments/{id}/reschedule", rescheduleAppointmentHandler(svc))
			r.Post("/appointments/{id}/cancel", appointmentOpHandler(svc.Cancel))
			r.Post("/appointments/{id}/confirm", appointmentOpHandler(svc.Confirm))
			r.Post("/appointments/{id}/complete", appointmentOpHandler(svc.Complete))
			r.Post("/appointments/{id}/no-show", appointmentOpHandler(svc.MarkNoShow))
			r.Post("/appointments/{id}/reminder-sent", appointmentOpHandler(svc.MarkReminderSent))
			r.Post("/appointments/{id}/reconcile", appointmentOpHandler(svc.Reconcile))
		})
	})

	return r
}
