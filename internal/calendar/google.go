package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"go.uber.org/zap"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/hackgods/calendar-proxy-scheduling/internal/availability"
)

const DefaultCalendarID = "primary"

// GoogleProvider talks to one calendar through the Google Calendar v3 API.
// Every call is bounded by timeout.
type GoogleProvider struct {
	svc        *gcal.Service
	calendarID string
	loc        *time.Location
	timeout    time.Duration
	logger     *zap.Logger
}

type GoogleOptions struct {
	CalendarID string
	// Location is written as the event time zone and used when reading times back.
	Location *time.Location
	Timeout  time.Duration
	Logger   *zap.Logger
}

// NewGoogleProvider builds a provider on an already authorized HTTP client.
// Extra options are passed through to the API client, tests use them to point at a fake server.
func NewGoogleProvider(ctx context.Context, client *http.Client, o GoogleOptions, extra ...option.ClientOption) (*GoogleProvider, error) {
	opts := append([]option.ClientOption{option.WithHTTPClient(client)}, extra...)
	svc, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create calendar service: %w", err)
	}

	if o.CalendarID == "" {
		o.CalendarID = DefaultCalendarID
	}
	if o.Location == nil {
		o.Location = time.UTC
	}
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}

	return &GoogleProvider{
		svc:        svc,
		calendarID: o.CalendarID,
		loc:        o.Location,
		timeout:    o.Timeout,
		logger:     o.Logger.With(zap.String("calendar_id", o.CalendarID)),
	}, nil
}

func (p *GoogleProvider) BusyPeriods(ctx context.Context, from, to time.Time) ([]availability.TimeSlot, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req := &gcal.FreeBusyRequest{
		TimeMin:  from.Format(time.RFC3339),
		TimeMax:  to.Format(time.RFC3339),
		TimeZone: p.loc.String(),
		Items:    []*gcal.FreeBusyRequestItem{{Id: p.calendarID}},
	}

	resp, err := p.svc.Freebusy.Query(req).Context(ctx).Do()
	if err != nil {
		return nil, p.translate("freebusy", err)
	}

	cal, ok := resp.Calendars[p.calendarID]
	if !ok {
		return nil, fmt.Errorf("%w: freebusy response has no entry for %s", ErrExternalUnavailable, p.calendarID)
	}
	if len(cal.Errors) > 0 {
		p.logger.Warn("freebusy calendar error", zap.String("reason", cal.Errors[0].Reason))
		return nil, fmt.Errorf("%w: freebusy %s: %s", ErrExternalUnavailable, p.calendarID, cal.Errors[0].Reason)
	}

	busy := make([]availability.TimeSlot, 0, len(cal.Busy))
	for _, b := range cal.Busy {
		start, err := time.Parse(time.RFC3339, b.Start)
		if err != nil {
			return nil, fmt.Errorf("%w: busy start %q: %v", ErrExternalUnavailable, b.Start, err)
		}
		end, err := time.Parse(time.RFC3339, b.End)
		if err != nil {
			return nil, fmt.Errorf("%w: busy end %q: %v", ErrExternalUnavailable, b.End, err)
		}
		busy = append(busy, availability.TimeSlot{Start: start.In(p.loc), End: end.In(p.loc)})
	}

	sort.Slice(busy, func(i, j int) bool { return busy[i].Start.Before(busy[j].Start) })
	return busy, nil
}

func (p *GoogleProvider) CreateEvent(ctx context.Context, ev Event) (Event, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	body := p.toGoogle(ev)
	// reminders go out over SMS, not as calendar popups
	body.Reminders = &gcal.EventReminders{UseDefault: false, ForceSendFields: []string{"UseDefault"}}

	created, err := p.svc.Events.Insert(p.calendarID, body).Context(ctx).Do()
	if err != nil {
		return Event{}, p.translate("insert event", err)
	}
	return p.fromGoogle(created)
}

func (p *GoogleProvider) GetEvent(ctx context.Context, id string) (Event, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	got, err := p.svc.Events.Get(p.calendarID, id).Context(ctx).Do()
	if err != nil {
		return Event{}, p.translate("get event", err)
	}
	return p.fromGoogle(got)
}

func (p *GoogleProvider) UpdateEvent(ctx context.Context, ev Event) (Event, error) {
	if ev.ID == "" {
		return Event{}, fmt.Errorf("update event: %w", ErrEventNotFound)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	body := p.toGoogle(ev)
	// an emptied description must be sent, not omitted
	body.ForceSendFields = []string{"Summary", "Description"}

	updated, err := p.svc.Events.Patch(p.calendarID, ev.ID, body).Context(ctx).Do()
	if err != nil {
		return Event{}, p.translate("patch event", err)
	}
	return p.fromGoogle(updated)
}

func (p *GoogleProvider) toGoogle(ev Event) *gcal.Event {
	out := &gcal.Event{
		Summary:      ev.Summary,
		Description:  ev.Description,
		Transparency: "opaque",
	}
	if ev.Transparent {
		out.Transparency = "transparent"
	}
	if !ev.Start.IsZero() {
		out.Start = &gcal.EventDateTime{DateTime: ev.Start.In(p.loc).Format(time.RFC3339), TimeZone: p.loc.String()}
	}
	if !ev.End.IsZero() {
		out.End = &gcal.EventDateTime{DateTime: ev.End.In(p.loc).Format(time.RFC3339), TimeZone: p.loc.String()}
	}
	return out
}

func (p *GoogleProvider) fromGoogle(ev *gcal.Event) (Event, error) {
	start, err := p.parseEventTime(ev.Start)
	if err != nil {
		return Event{}, fmt.Errorf("%w: event %s start: %v", ErrExternalUnavailable, ev.Id, err)
	}
	end, err := p.parseEventTime(ev.End)
	if err != nil {
		return Event{}, fmt.Errorf("%w: event %s end: %v", ErrExternalUnavailable, ev.Id, err)
	}
	return Event{
		ID:          ev.Id,
		Summary:     ev.Summary,
		Description: ev.Description,
		Start:       start,
		End:         end,
		Transparent: ev.Transparency == "transparent",
	}, nil
}

func (p *GoogleProvider) parseEventTime(dt *gcal.EventDateTime) (time.Time, error) {
	if dt == nil {
		return time.Time{}, nil
	}
	if dt.DateTime != "" {
		t, err := time.Parse(time.RFC3339, dt.DateTime)
		if err != nil {
			return time.Time{}, err
		}
		return t.In(p.loc), nil
	}
	if dt.Date != "" {
		// all-day events carry a bare date
		return time.ParseInLocation("2006-01-02", dt.Date, p.loc)
	}
	return time.Time{}, nil
}

// translate keeps the provider detail in the log and hands callers a sentinel.
func (p *GoogleProvider) translate(op string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && (gerr.Code == http.StatusNotFound || gerr.Code == http.StatusGone) {
		return fmt.Errorf("%s: %w", op, ErrEventNotFound)
	}

	p.logger.Error("calendar call failed", zap.String("op", op), zap.Error(err))
	return fmt.Errorf("%s: %w: %v", op, ErrExternalUnavailable, err)
}
