package appointment

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hackgods/calendar-proxy-scheduling/internal/availability"
	"github.com/hackgods/calendar-proxy-scheduling/internal/calendar"
	"github.com/hackgods/calendar-proxy-scheduling/internal/credential"
)

// Code classifies a failed Result for callers that branch on it.
type Code string

const (
	CodeNotFound            Code = "not_found"
	CodeSlotUnavailable     Code = "slot_unavailable"
	CodeUnparsable          Code = "unparsable"
	CodeExternalUnavailable Code = "external_unavailable"
	CodeNotConnected        Code = "not_connected"
	CodeInvalidTransition   Code = "invalid_transition"
	CodeStoreDiverged       Code = "store_diverged"
	CodeInvalidInput        Code = "invalid_input"
	CodeInternal            Code = "internal"
)

var (
	ErrSlotUnavailable         = errors.New("slot unavailable")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
	// ErrStoreDiverged means the calendar was written but the local record was not.
	ErrStoreDiverged = errors.New("calendar event and local record diverged")
	ErrInvalidInput  = errors.New("invalid input")
)

// Result is what every lifecycle operation returns. Message is always set and
// can be read aloud; Err keeps the detail for logs.
type Result struct {
	Success          bool
	Code             Code
	Message          string
	Err              error
	Appointment      *AppointmentDetail
	Patient          *Patient
	Appointments     []AppointmentDetail
	Availability     *availability.Report
	ConfirmationCode string
}

func ok(msg string) Result {
	return Result{Success: true, Message: msg}
}

func fail(code Code, msg string, err error) Result {
	return Result{Code: code, Message: msg, Err: err}
}

const (
	msgNotConnected = "The doctor's calendar is not connected. Please reconnect the calendar and try again."
	msgExternal     = "The calendar service is temporarily unavailable. Please try again shortly."
	msgDiverged     = "The calendar was updated but the appointment record could not be saved. The office has been notified."
	msgInternal     = "Something went wrong. Please try again."
	msgNotFound     = "Appointment not found."
)

// classify maps an error from any layer onto a failed Result. Callers pass the
// messages that depend on the operation; everything else is generic.
func classify(err error, notFound string) Result {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return fail(CodeInvalidInput, invalidInputMessage(err), err)
	case errors.Is(err, credential.ErrNotConnected):
		return fail(CodeNotConnected, msgNotConnected, err)
	case errors.Is(err, ErrStoreDiverged):
		return fail(CodeStoreDiverged, msgDiverged, err)
	case errors.Is(err, ErrNotFound):
		return fail(CodeNotFound, notFound, err)
	case errors.Is(err, calendar.ErrExternalUnavailable):
		return fail(CodeExternalUnavailable, msgExternal, err)
	default:
		return fail(CodeInternal, msgInternal, err)
	}
}

func invalidInputMessage(err error) string {
	detail := strings.TrimPrefix(err.Error(), ErrInvalidInput.Error()+"; ")
	if detail == "" || detail == err.Error() {
		return "Some appointment details are missing or invalid."
	}
	return "Some appointment details are missing or invalid: " + detail
}

// ConfirmationCode is "CP-" + the appointment date digits + the first four
// hex digits of its id, e.g. CP-20260217-3F2A.
func ConfirmationCode(a Appointment) string {
	id := strings.ToUpper(strings.ReplaceAll(a.ID.String(), "-", ""))
	return fmt.Sprintf("CP-%s-%s", a.Date.Format("20060102"), id[:4])
}
