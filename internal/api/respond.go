package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/multierr"

	"github.com/hackgods/calendar-proxy-scheduling/internal/appointment"
)

const (
	maxBodyBytes = 1 << 20

	codeInvalidRequest = "invalid_request"
	codeUnauthorized   = "unauthorized"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Response{Code: code, Message: message})
}

// writeResult writes res with the HTTP status its code maps to. ok is the
// status used on success.
func writeResult(w http.ResponseWriter, ok int, res appointment.Result) {
	status := ok
	if !res.Success {
		status = statusFor(res.Code)
	}
	writeJSON(w, status, toResponse(res))
}

func statusFor(code appointment.Code) int {
	switch code {
	case appointment.CodeNotFound:
		return http.StatusNotFound
	case appointment.CodeSlotUnavailable, appointment.CodeInvalidTransition:
		return http.StatusConflict
	case appointment.CodeUnparsable, appointment.CodeInvalidInput:
		return http.StatusUnprocessableEntity
	case appointment.CodeExternalUnavailable:
		return http.StatusBadGateway
	case appointment.CodeNotConnected:
		return http.StatusFailedDependency
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON reads a JSON body into dst and validates it. A false return
// means the error response was already written.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "Request body must be a JSON object.")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		writeError(w, http.StatusUnprocessableEntity, string(appointment.CodeInvalidInput), validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var details []string
	for _, e := range multierr.Errors(appointment.InvalidInput(err)) {
		if errors.Is(e, appointment.ErrInvalidInput) {
			continue
		}
		details = append(details, e.Error())
	}
	if len(details) == 0 {
		return "Request is missing or invalid."
	}
	return "Request is missing or invalid: " + strings.Join(details, "; ") + "."
}
