// Package ical renders a doctor's appointments as an iCalendar feed that
// calendar clients can subscribe to.
package ical

import (
	"fmt"
	"io"
	"strings"
	"time"

	goical "github.com/emersion/go-ical"

	"github.com/hackgods/calendar-proxy-scheduling/internal/appointment"
	"github.com/hackgods/calendar-proxy-scheduling/internal/calendar"
)

const (
	ProductID   = "-//hackgods//calendar-proxy-scheduling//EN"
	ContentType = "text/calendar; charset=utf-8"
	uidDomain   = "calendar-proxy-scheduling"
)

// Feed builds the VCALENDAR for appts. stamp is written as DTSTAMP on every event.
func Feed(name string, appts []appointment.AppointmentDetail, stamp time.Time) *goical.Calendar {
	cal := goical.NewCalendar()
	cal.Props.SetText(goical.PropVersion, "2.0")
	cal.Props.SetText(goical.PropProductID, ProductID)
	if name != "" {
		cal.Props.SetText("X-WR-CALNAME", name)
	}

	for _, a := range appts {
		cal.Children = append(cal.Children, event(a, stamp).Component)
	}
	return cal
}

// WriteFeed encodes the feed for appts to w.
func WriteFeed(w io.Writer, name string, appts []appointment.AppointmentDetail, stamp time.Time) error {
	if err := goical.NewEncoder(w).Encode(Feed(name, appts, stamp)); err != nil {
		return fmt.Errorf("encode ical feed: %w", err)
	}
	return nil
}

func event(a appointment.AppointmentDetail, stamp time.Time) *goical.Event {
	ev := goical.NewEvent()
	ev.Props.SetText(goical.PropUID, a.ID.String()+"@"+uidDomain)
	ev.Props.SetDateTime(goical.PropDateTimeStamp, stamp.UTC())
	ev.Props.SetDateTime(goical.PropDateTimeStart, a.StartsAt.UTC())
	ev.Props.SetDateTime(goical.PropDateTimeEnd, a.StartsAt.Add(a.Duration()).UTC())
	ev.Props.SetText(goical.PropStatus, eventStatus(a.Status))

	name := ""
	if a.Patient != nil {
		name = a.Patient.Name
	}
	ev.Props.SetText(goical.PropSummary, calendar.Summary(name))
	ev.Props.SetText(goical.PropDescription, description(a))
	return ev
}

func eventStatus(s appointment.Status) string {
	switch s {
	case appointment.StatusConfirmed, appointment.StatusCompleted:
		return "CONFIRMED"
	case appointment.StatusCancelled, appointment.StatusNoShow:
		return "CANCELLED"
	default:
		return "TENTATIVE"
	}
}

func description(a appointment.AppointmentDetail) string {
	lines := []string{
		"Type: " + string(a.Type),
		"Status: " + string(a.Status),
	}
	if a.Patient != nil {
		lines = append(lines, "Phone: "+a.Patient.Phone)
	}
	if a.Notes != "" {
		lines = append(lines, "Notes: "+a.Notes)
	}
	return strings.Join(lines, "\n")
}
