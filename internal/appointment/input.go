package appointment

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/mcnijman/go-emailaddress"
	"go.uber.org/multierr"
)

func (s *Service) validateCreate(in *CreateInput) (*string, error) {
	in.PatientName = strings.TrimSpace(in.PatientName)
	in.PatientEmail = strings.TrimSpace(in.PatientEmail)

	if err := s.validate.Struct(in); err != nil {
		return nil, InvalidInput(err)
	}

	if in.PatientEmail == "" {
		return nil, nil
	}
	addr, err := emailaddress.Parse(in.PatientEmail)
	if err != nil {
		return nil, multierr.Append(ErrInvalidInput, fmt.Errorf("patient email: %w", err))
	}
	// domains are case-insensitive, local parts are not
	email := addr.String()
	if i := strings.LastIndexByte(email, '@'); i >= 0 {
		email = email[:i] + strings.ToLower(email[i:])
	}
	return &email, nil
}

// InvalidInput wraps a validator error in ErrInvalidInput, one readable
// error per failed field.
func InvalidInput(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return multierr.Append(ErrInvalidInput, err)
	}

	out := ErrInvalidInput
	for _, fe := range verrs {
		out = multierr.Append(out, errors.New(fieldMessage(fe)))
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	name := humanize(fe.Field())
	switch fe.Tag() {
	case "required":
		return name + " is required"
	case "e164":
		return name + " must be a phone number like +15551234567"
	case "email":
		return name + " must be a valid email address"
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", name, fe.Param())
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s", name, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be at most %s", name, fe.Param())
	case "uuid", "uuid4":
		return name + " must be a valid id"
	default:
		return name + " is invalid"
	}
}

// humanize turns "PatientPhone" into "patient phone".
func humanize(field string) string {
	var b strings.Builder
	for i, r := range field {
		if unicode.IsUpper(r) && i > 0 {
			b.WriteByte(' ')
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

var phoneFormatting = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "")

// NormalizePhone strips formatting and assumes +1 for bare ten digit numbers.
// Anything it cannot make sense of is returned for validation to reject.
func NormalizePhone(s string) string {
	p := phoneFormatting.Replace(strings.TrimSpace(s))
	if p == "" || strings.HasPrefix(p, "+") || strings.IndexFunc(p, notDigit) >= 0 {
		return p
	}
	switch {
	case len(p) == 10:
		return "+1" + p
	case len(p) == 11 && p[0] == '1':
		return "+" + p
	}
	return p
}

func notDigit(r rune) bool {
	return r < '0' || r > '9'
}

func statusPhrase(s Status) string {
	if s == StatusNoShow {
		return "marked as no-show"
	}
	return string(s)
}

func countPhrase(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
