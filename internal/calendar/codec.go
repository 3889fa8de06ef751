package calendar

import (
	"strings"
)

// Description grammar, one "Key: Value" per line in this order:
//
//	Patient: <name>
//	Phone: <E.164>
//	Email: <address | N/A>
//	Type: <type>
//	Status: <status>
//	Reminder Sent: <true | false>
//	Notes: <text | None>
//
// Values are single-line: a backslash, CR or LF in a value is written as \\, \r
// or \n, and any other backslash sequence reads back verbatim. Readers match
// keys case-insensitively, treat spaces in keys as underscores, and ignore lines
// they do not know, so a human can add lines in the calendar UI.
const (
	FieldPatient      = "Patient"
	FieldPhone        = "Phone"
	FieldEmail        = "Email"
	FieldType         = "Type"
	FieldStatus       = "Status"
	FieldReminderSent = "Reminder Sent"
	FieldNotes        = "Notes"

	emailSentinel = "N/A"
	notesSentinel = "None"

	DefaultStatus = "scheduled"
	DefaultType   = "checkup"

	SummaryPrefix   = "Appointment:"
	CancelledPrefix = "CANCELLED:"
	NoShowPrefix    = "NO SHOW:"
)

// Metadata is what an appointment stores in its external event.
type Metadata struct {
	PatientName  string
	Phone        string
	Email        string
	Type         string
	Status       string
	ReminderSent bool
	Notes        string
}

// Summary is the title of a live appointment event.
func Summary(patientName string) string {
	return SummaryPrefix + " " + patientName
}

// Encode renders m as an event description.
func Encode(m Metadata) string {
	email := m.Email
	if email == "" {
		email = emailSentinel
	}
	notes := m.Notes
	if notes == "" {
		notes = notesSentinel
	}
	reminder := "false"
	if m.ReminderSent {
		reminder = "true"
	}

	lines := []string{
		line(FieldPatient, m.PatientName),
		line(FieldPhone, m.Phone),
		line(FieldEmail, email),
		line(FieldType, m.Type),
		line(FieldStatus, m.Status),
		line(FieldReminderSent, reminder),
		line(FieldNotes, notes),
	}
	return strings.Join(lines, "\n")
}

func line(key, value string) string {
	return key + ": " + valueEscaper.Replace(value)
}

var valueEscaper = strings.NewReplacer(`\`, `\\`, "\n", `\n`, "\r", `\r`)

func unescapeValue(v string) string {
	if !strings.Contains(v, `\`) {
		return v
	}
	var b strings.Builder
	b.Grow(len(v))
	for i := 0; i < len(v); i++ {
		if v[i] != '\\' || i+1 == len(v) {
			b.WriteByte(v[i])
			continue
		}
		switch v[i+1] {
		case '\\':
			b.WriteByte('\\')
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		default:
			b.WriteByte(v[i])
			continue
		}
		i++
	}
	return b.String()
}

func normalizeKey(k string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(k)), " ", "_")
}

// Fields parses a description into a normalized key map of raw, still escaped
// values. Later duplicates win.
func Fields(description string) map[string]string {
	out := make(map[string]string)
	for _, ln := range strings.Split(description, "\n") {
		ln = strings.TrimRight(ln, "\r")
		key, value, ok := strings.Cut(ln, ": ")
		if !ok {
			// "Key:" with an empty value, as some editors strip trailing spaces
			if k, found := strings.CutSuffix(ln, ":"); found && !strings.Contains(k, ":") {
				key, value, ok = k, "", true
			}
		}
		if !ok || strings.TrimSpace(key) == "" {
			continue
		}
		out[normalizeKey(key)] = value
	}
	return out
}

// Decode reads metadata back out of a description, applying defaults for
// missing keys and sentinels.
func Decode(description string) Metadata {
	f := Fields(description)

	m := Metadata{
		PatientName:  valueOr(f, FieldPatient, ""),
		Phone:        valueOr(f, FieldPhone, ""),
		Email:        valueOr(f, FieldEmail, ""),
		Type:         valueOr(f, FieldType, DefaultType),
		Status:       valueOr(f, FieldStatus, DefaultStatus),
		ReminderSent: strings.EqualFold(strings.TrimSpace(f[normalizeKey(FieldReminderSent)]), "true"),
		Notes:        valueOr(f, FieldNotes, ""),
	}
	if m.Email == emailSentinel {
		m.Email = ""
	}
	if m.Notes == notesSentinel {
		m.Notes = ""
	}
	m.PatientName = unescapeValue(m.PatientName)
	m.Phone = unescapeValue(m.Phone)
	m.Email = unescapeValue(m.Email)
	m.Type = unescapeValue(m.Type)
	m.Status = unescapeValue(m.Status)
	m.Notes = unescapeValue(m.Notes)
	return m
}

func valueOr(f map[string]string, key, def string) string {
	v, ok := f[normalizeKey(key)]
	if !ok {
		return def
	}
	if def != "" && strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

// SetField replaces the last line for key, the one Fields reads, or appends one
// if none exists. Every other line keeps its text and position.
func SetField(description, key, value string) string {
	want := normalizeKey(key)
	newLine := line(key, value)

	if description == "" {
		return newLine
	}

	lines := strings.Split(description, "\n")
	found := false
	for i := len(lines) - 1; i >= 0; i-- {
		k, _, ok := strings.Cut(strings.TrimRight(lines[i], "\r"), ":")
		if ok && normalizeKey(k) == want {
			lines[i] = newLine
			found = true
			break
		}
	}
	if !found {
		lines = append(lines, newLine)
	}
	return strings.Join(lines, "\n")
}

// RelabelSummary swaps the first case-insensitive "Appointment:" in summary for
// prefix, keeping the rest of the title. A summary without it is returned as is.
func RelabelSummary(summary, prefix string) string {
	n := len(SummaryPrefix)
	for i := 0; i+n <= len(summary); i++ {
		if strings.EqualFold(summary[i:i+n], SummaryPrefix) {
			return summary[:i] + prefix + summary[i+n:]
		}
	}
	return summary
}
