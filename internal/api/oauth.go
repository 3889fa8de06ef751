package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/calendar-proxy-scheduling/internal/appointment"
	"github.com/hackgods/calendar-proxy-scheduling/internal/credential"
	redisclient "github.com/hackgods/calendar-proxy-scheduling/internal/redis"
)

// CalendarConnector is satisfied by *credential.Proxy.
type CalendarConnector interface {
	AuthURL(state string) string
	Connect(ctx context.Context, owner uuid.UUID, code string) error
}

// OAuthStates is satisfied by *redisclient.StateStore.
type OAuthStates interface {
	Issue(ctx context.Context, owner uuid.UUID) (string, error)
	Consume(ctx context.Context, state string) (uuid.UUID, error)
}

func oauthStartHandler(conn CalendarConnector, states OAuthStates, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner := doctorID(r.Context())
		state, err := states.Issue(r.Context(), owner)
		if err != nil {
			logger.Error("issue oauth state", zap.Stringer("doctor_id", owner), zap.Error(err))
			writeError(w, http.StatusInternalServerError, string(appointment.CodeInternal), "Could not start the calendar connection. Please try again.")
			return
		}

		writeJSON(w, http.StatusOK, Response{
			Success: true,
			Message: "Open the link to connect your Google Calendar.",
			AuthURL: conn.AuthURL(state),
		})
	}
}

// oauthCallbackHandler is where the provider redirects the browser. The doctor
// is recovered from the state, not from the identity header.
func oauthCallbackHandler(conn CalendarConnector, states OAuthStates, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if reason := q.Get("error"); reason != "" {
			logger.Info("oauth consent denied", zap.String("reason", reason))
			writeError(w, http.StatusBadRequest, "consent_denied", "Calendar connection was not approved.")
			return
		}

		owner, err := states.Consume(r.Context(), q.Get("state"))
		switch {
		case errors.Is(err, redisclient.ErrStateNotFound):
			writeError(w, http.StatusBadRequest, "invalid_state", "This connection link has expired. Please start again.")
			return
		case err != nil:
			logger.Error("consume oauth state", zap.Error(err))
			writeError(w, http.StatusInternalServerError, string(appointment.CodeInternal), "Could not finish the calendar connection. Please try again.")
			return
		}

		code := q.Get("code")
		if code == "" {
			writeError(w, http.StatusBadRequest, codeInvalidRequest, "Authorization code is missing.")
			return
		}

		if err := conn.Connect(r.Context(), owner, code); err != nil {
			if errors.Is(err, credential.ErrNotConnected) {
				writeError(w, http.StatusFailedDependency, string(appointment.CodeNotConnected), "Google did not accept the authorization. Please start again.")
				return
			}
			logger.Error("connect calendar", zap.Stringer("doctor_id", owner), zap.Error(err))
			writeError(w, http.StatusInternalServerError, string(appointment.CodeInternal), "Could not save the calendar connection. Please try again.")
			return
		}

		writeJSON(w, http.StatusOK, Response{Success: true, Message: "Calendar connected."})
	}
}
