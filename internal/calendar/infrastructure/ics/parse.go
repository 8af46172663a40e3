package ics

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"time"
	_ "time/tzdata"

	ical "github.com/arran4/golang-ical"
	availability "github.com/felixgeelhaar/reslot/internal/availability/domain"
	calendarApp "github.com/felixgeelhaar/reslot/internal/calendar/application"
	"github.com/felixgeelhaar/reslot/internal/calendar/domain"
	"github.com/teambition/rrule-go"
)

// maxOccurrences caps the expansion of one recurring event.
const maxOccurrences = 5000

type parsedEvent struct {
	uid         string
	summary     string
	start       time.Time
	end         time.Time
	allDay      bool
	rrule       string
	exDates     []time.Time
	recurrence  *time.Time
	transparent bool
	cancelled   bool
	attendees   []string
}

// parseFeed decodes an iCalendar body. Events without UID or DTSTART are
// logged and skipped.
func parseFeed(logger *slog.Logger, body []byte) ([]parsedEvent, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}
	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	events := make([]parsedEvent, 0, len(cal.Events()))
	for _, ve := range cal.Events() {
		ev, err := parseVEvent(ve)
		if err != nil {
			logger.Warn("skipping ics event", "error", err)
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

func parseVEvent(ve *ical.VEvent) (parsedEvent, error) {
	var out parsedEvent

	uid := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uid == nil || uid.Value == "" {
		return out, errors.New("missing UID")
	}
	out.uid = uid.Value
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.summary = p.Value
	}

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return out, errors.New("missing DTSTART")
	}
	start, err := ve.GetStartAt()
	if err != nil {
		return out, err
	}
	out.start = start.UTC()
	out.allDay = !strings.Contains(dtStart.Value, "T") || hasParam(dtStart, "VALUE", "DATE")

	if end, err := ve.GetEndAt(); err == nil {
		out.end = end.UTC()
	} else if out.allDay {
		out.end = out.start.Add(24 * time.Hour)
	} else {
		out.end = out.start
	}

	if p := ve.GetProperty("TRANSP"); p != nil {
		out.transparent = strings.EqualFold(p.Value, "TRANSPARENT")
	}
	if p := ve.GetProperty("STATUS"); p != nil {
		out.cancelled = strings.EqualFold(p.Value, "CANCELLED")
	}
	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		out.rrule = p.Value
	}
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			if t, err := parseTime(strings.TrimSpace(part), tzid(p)); err == nil {
				out.exDates = append(out.exDates, t)
			}
		}
	}
	if p := ve.GetProperty("RECURRENCE-ID"); p != nil {
		if t, err := parseTime(p.Value, tzid(p)); err == nil {
			out.recurrence = &t
		}
	}
	for _, p := range ve.GetProperties("ATTENDEE") {
		out.attendees = append(out.attendees, p.Value)
	}
	return out, nil
}

func hasParam(p *ical.IANAProperty, name, value string) bool {
	for _, v := range p.ICalParameters[name] {
		if strings.EqualFold(v, value) {
			return true
		}
	}
	return false
}

func tzid(p *ical.IANAProperty) string {
	if values := p.ICalParameters["TZID"]; len(values) > 0 {
		return values[0]
	}
	return ""
}

// parseTime reads DATE and DATE-TIME values. Floating times are taken as UTC.
func parseTime(value, zone string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty time value")
	}
	loc := time.UTC
	if zone != "" {
		if l, err := time.LoadLocation(zone); err == nil {
			loc = l
		}
	}
	var (
		t   time.Time
		err error
	)
	switch {
	case strings.HasSuffix(value, "Z"):
		t, err = time.Parse("20060102T150405Z", value)
	case strings.Contains(value, "T"):
		t, err = time.ParseInLocation("20060102T150405", value, loc)
	default:
		t, err = time.ParseInLocation("20060102", value, loc)
	}
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// busyWithin expands events into the opaque intervals that touch window.
// Overrides replace the occurrence named by their RECURRENCE-ID.
func busyWithin(logger *slog.Logger, attendee string, events []parsedEvent, window availability.SearchWindow) []availability.Interval {
	overridden := make(map[string]map[int64]struct{})
	for _, ev := range events {
		if ev.recurrence == nil {
			continue
		}
		if overridden[ev.uid] == nil {
			overridden[ev.uid] = make(map[int64]struct{})
		}
		overridden[ev.uid][ev.recurrence.Unix()] = struct{}{}
	}

	var out []availability.Interval
	for _, ev := range events {
		if ev.transparent || ev.cancelled {
			continue
		}
		if ev.rrule == "" || ev.recurrence != nil {
			if ev.end.After(window.Start) && ev.start.Before(window.End) {
				if interval, ok := calendarApp.ValidInterval(logger, attendee, ev.start, ev.end); ok {
					out = append(out, interval)
				}
			}
			continue
		}
		out = append(out, expand(logger, attendee, ev, overridden[ev.uid], window)...)
	}
	return out
}

func expand(logger *slog.Logger, attendee string, ev parsedEvent, overridden map[int64]struct{}, window availability.SearchWindow) []availability.Interval {
	r, err := rrule.StrToRRule(ev.rrule)
	if err != nil {
		logger.Warn("skipping ics event with invalid recurrence", "attendee", attendee, "uid", ev.uid, "rrule", ev.rrule, "error", err)
		return nil
	}
	r.DTStart(ev.start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.exDates {
		set.ExDate(ex)
	}

	length := ev.end.Sub(ev.start)
	occurrences := set.Between(window.Start.Add(-length), window.End, true)
	if len(occurrences) > maxOccurrences {
		logger.Warn("ics recurrence truncated", "attendee", attendee, "uid", ev.uid, "cap", maxOccurrences)
		occurrences = occurrences[:maxOccurrences]
	}

	out := make([]availability.Interval, 0, len(occurrences))
	for _, start := range occurrences {
		if _, ok := overridden[start.Unix()]; ok {
			continue
		}
		if interval, ok := calendarApp.ValidInterval(logger, attendee, start, start.Add(length)); ok {
			out = append(out, interval)
		}
	}
	return out
}

func (ev parsedEvent) toDomain() *domain.Event {
	return &domain.Event{
		ID:        ev.uid,
		Summary:   ev.summary,
		Attendees: domain.NormalizeAttendees(ev.attendees),
		Start:     ev.start,
		End:       ev.end,
	}
}
