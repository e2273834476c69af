package ics

import (
	"strings"
	"time"

	"eventdesk/internal/model"
)

// clockLayout matches the canonical display form of datetime.FormatTime.
const clockLayout = "3:04 PM"

// ToEvent maps a feed event onto the stored event shape in loc: DateRaw is
// ISO yyyy-mm-dd and TimeRange the canonical "7:00 PM - 9:00 PM" form (empty
// for all-day events). HTML descriptions are flattened to text and the
// location is folded into the description.
func ToEvent(fe FeedEvent, loc *time.Location) model.Event {
	if loc == nil {
		loc = time.Local
	}

	start, end := fe.Start, fe.End
	switch {
	case fe.AllDay:
		// Dates carry no zone.
	case fe.Floating:
		start = wallClock(start, loc)
		if !end.IsZero() {
			end = wallClock(end, loc)
		}
	default:
		start = start.In(loc)
		if !end.IsZero() {
			end = end.In(loc)
		}
	}

	ev := model.Event{
		Title:       strings.TrimSpace(fe.Summary),
		Description: plainText(fe.Description),
		DateRaw:     start.Format("2006-01-02"),
		ExternalUID: fe.Source.ID + "/" + fe.UID,
	}
	if ev.Title == "" {
		ev.Title = "(untitled)"
	}
	if where := strings.TrimSpace(fe.Location); where != "" {
		if ev.Description != "" {
			ev.Description += "\n\n"
		}
		ev.Description += "Location: " + where
	}

	if !fe.AllDay {
		ev.TimeRange = start.Format(clockLayout)
		if end.After(start) {
			ev.TimeRange += " - " + end.Format(clockLayout)
		}
	}
	return ev
}

func wallClock(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, loc)
}
