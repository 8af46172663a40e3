package caldav

import (
	"log/slog"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav/caldav"
	availability "github.com/felixgeelhaar/reslot/internal/availability/domain"
	calendarApp "github.com/felixgeelhaar/reslot/internal/calendar/application"
	"github.com/felixgeelhaar/reslot/internal/calendar/domain"
	"github.com/teambition/rrule-go"
)

// busyFromObjects extracts the opaque periods of every VEVENT in objects that
// touch window. Recurring masters are expanded; overridden instances are
// replaced by their RECURRENCE-ID component.
func busyFromObjects(logger *slog.Logger, attendee string, objects []caldav.CalendarObject, window availability.SearchWindow) []availability.Interval {
	if logger == nil {
		logger = slog.Default()
	}
	var out []availability.Interval
	for i := range objects {
		obj := &objects[i]
		if obj.Data == nil {
			continue
		}
		overridden := make(map[int64]struct{})
		for _, child := range obj.Data.Children {
			if child.Name != ical.CompEvent {
				continue
			}
			if prop := child.Props.Get(ical.PropRecurrenceID); prop != nil {
				if t, err := prop.DateTime(time.UTC); err == nil {
					overridden[t.Unix()] = struct{}{}
				}
			}
		}

		for _, child := range obj.Data.Children {
			if child.Name != ical.CompEvent || !blocksTime(child) {
				continue
			}
			out = append(out, componentBusy(logger, attendee, child, window, overridden)...)
		}
	}
	return out
}

func blocksTime(comp *ical.Component) bool {
	if prop := comp.Props.Get(ical.PropTransparency); prop != nil && strings.EqualFold(prop.Value, "TRANSPARENT") {
		return false
	}
	if prop := comp.Props.Get(ical.PropStatus); prop != nil && strings.EqualFold(prop.Value, "CANCELLED") {
		return false
	}
	return true
}

func componentBusy(logger *slog.Logger, attendee string, comp *ical.Component, window availability.SearchWindow, overridden map[int64]struct{}) []availability.Interval {
	event := ical.Event{Component: comp}
	start, err := event.DateTimeStart(time.UTC)
	if err != nil {
		logger.Warn("skipping caldav event with invalid start", "attendee", attendee, "error", err)
		return nil
	}
	end, err := event.DateTimeEnd(time.UTC)
	if err != nil {
		logger.Warn("skipping caldav event with invalid end", "attendee", attendee, "error", err)
		return nil
	}

	rule := comp.Props.Get(ical.PropRecurrenceRule)
	if rule == nil || comp.Props.Get(ical.PropRecurrenceID) != nil {
		if interval, ok := calendarApp.ValidInterval(logger, attendee, start, end); ok {
			return []availability.Interval{interval}
		}
		return nil
	}

	r, err := rrule.StrToRRule(rule.Value)
	if err != nil {
		logger.Warn("skipping caldav event with invalid recurrence", "attendee", attendee, "rrule", rule.Value, "error", err)
		return nil
	}
	r.DTStart(start)
	set := rrule.Set{}
	set.RRule(r)
	for _, ex := range exceptionDates(comp) {
		set.ExDate(ex)
	}

	length := end.Sub(start)
	var out []availability.Interval
	for _, occurrence := range set.Between(window.Start.Add(-length), window.End, true) {
		if _, ok := overridden[occurrence.Unix()]; ok {
			continue
		}
		if interval, ok := calendarApp.ValidInterval(logger, attendee, occurrence, occurrence.Add(length)); ok {
			out = append(out, interval)
		}
	}
	return out
}

// exceptionDates reads every EXDATE value, including comma separated lists.
func exceptionDates(comp *ical.Component) []time.Time {
	var out []time.Time
	for _, prop := range comp.Props[ical.PropExceptionDates] {
		for _, value := range strings.Split(prop.Value, ",") {
			single := prop
			single.Value = strings.TrimSpace(value)
			if t, err := single.DateTime(time.UTC); err == nil {
				out = append(out, t)
			}
		}
	}
	return out
}

// masterEvent returns the first VEVENT that is not a recurrence override.
func masterEvent(cal *ical.Calendar) *ical.Component {
	if cal == nil {
		return nil
	}
	var first *ical.Component
	for _, child := range cal.Children {
		if child.Name != ical.CompEvent {
			continue
		}
		if first == nil {
			first = child
		}
		if child.Props.Get(ical.PropRecurrenceID) == nil {
			return child
		}
	}
	return first
}

// eventFromObject converts a calendar object to a domain event. The owner's
// own address is left out of the attendee list.
func eventFromObject(obj *caldav.CalendarObject, owner string) (*domain.Event, bool) {
	if obj == nil {
		return nil, false
	}
	comp := masterEvent(obj.Data)
	if comp == nil || !notCancelled(comp) {
		return nil, false
	}

	event := &domain.Event{ID: obj.Path}
	if prop := comp.Props.Get(ical.PropUID); prop != nil {
		event.ID = prop.Value
	}
	if prop := comp.Props.Get(ical.PropSummary); prop != nil {
		event.Summary = prop.Value
	}
	ev := ical.Event{Component: comp}
	event.Start, _ = ev.DateTimeStart(time.UTC)
	event.End, _ = ev.DateTimeEnd(time.UTC)

	owner = strings.ToLower(strings.TrimSpace(owner))
	raw := make([]string, 0, len(comp.Props[ical.PropAttendee]))
	for _, prop := range comp.Props[ical.PropAttendee] {
		raw = append(raw, prop.Value)
	}
	for _, address := range domain.NormalizeAttendees(raw) {
		if address != owner {
			event.Attendees = append(event.Attendees, address)
		}
	}
	return event, true
}

func notCancelled(comp *ical.Component) bool {
	prop := comp.Props.Get(ical.PropStatus)
	return prop == nil || !strings.EqualFold(prop.Value, "CANCELLED")
}

// retime moves the master VEVENT of cal to slot, written in UTC.
func retime(cal *ical.Calendar, slot availability.Interval, now time.Time) bool {
	comp := masterEvent(cal)
	if comp == nil {
		return false
	}
	delete(comp.Props, ical.PropDuration)
	comp.Props.SetDateTime(ical.PropDateTimeStart, slot.Start().UTC())
	comp.Props.SetDateTime(ical.PropDateTimeEnd, slot.End().UTC())
	comp.Props.SetDateTime(ical.PropDateTimeStamp, now.UTC())
	return true
}
