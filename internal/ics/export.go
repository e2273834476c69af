package ics

import (
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"eventdesk/internal/datetime"
	"eventdesk/internal/log"
	"eventdesk/internal/model"
	"eventdesk/internal/schedule"
)

// ExportOptions configures Export.
type ExportOptions struct {
	// Name is the calendar name shown by clients (X-WR-CALNAME).
	Name string
	// BaseURL, if set, links each VEVENT to its event page.
	BaseURL string
	// Now stamps DTSTAMP; zero means time.Now.
	Now time.Time
}

// Export renders events as an iCalendar feed. Events whose date cannot be
// parsed are left out. A time range that parses gives a timed VEVENT
// (an end before the start is read as past midnight); anything else is an
// all-day VEVENT.
func Export(events []model.Event, norm *datetime.Normalizer, opts ExportOptions) string {
	if norm == nil {
		norm = datetime.New(nil)
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	name := opts.Name
	if name == "" {
		name = "Events"
	}

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//eventdesk//events//EN")
	cal.SetXWRCalName(name)

	for _, e := range events {
		day, err := norm.ParseDate(e.DateRaw)
		if err != nil {
			log.Debug("ics export: skipping event without a usable date", "event", e.ID, "date", e.DateRaw)
			continue
		}
		day = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, norm.Location())

		ve := cal.AddEvent(e.ID + "@eventdesk")
		ve.SetDtStampTime(now)
		ve.SetSummary(e.Title)
		if desc := exportDescription(e); desc != "" {
			ve.SetDescription(desc)
		}
		if opts.BaseURL != "" {
			ve.SetURL(strings.TrimRight(opts.BaseURL, "/") + "/events/" + e.ID)
		}
		if !e.UpdatedAt.IsZero() {
			ve.SetModifiedAt(e.UpdatedAt)
		}

		start, end, ok := clockRange(day, e.TimeRange)
		if !ok {
			ve.SetAllDayStartAt(day)
			ve.SetAllDayEndAt(day.AddDate(0, 0, 1))
			continue
		}
		ve.SetStartAt(start)
		ve.SetEndAt(end)
	}
	return cal.Serialize()
}

// clockRange anchors the canonical form of raw on day. Without an end the
// event lasts one hour.
func clockRange(day time.Time, raw string) (time.Time, time.Time, bool) {
	if strings.TrimSpace(raw) == "" {
		return time.Time{}, time.Time{}, false
	}
	startTok, endTok, _ := strings.Cut(datetime.FormatTimeRange(raw), " - ")
	startClock, err := time.Parse(clockLayout, startTok)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	start := at(day, startClock)

	end := start.Add(time.Hour)
	if endClock, err := time.Parse(clockLayout, endTok); err == nil {
		end = at(day, endClock)
		if !end.After(start) {
			end = end.AddDate(0, 0, 1)
		}
	}
	return start, end, true
}

func at(day, clock time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), clock.Hour(), clock.Minute(), 0, 0, day.Location())
}

func exportDescription(e model.Event) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(e.Description))
	items := schedule.Items(e.ScheduleRaw)
	if len(items) == 0 {
		return b.String()
	}
	if b.Len() > 0 {
		b.WriteString("\n\n")
	}
	b.WriteString("Schedule:")
	for _, it := range items {
		b.WriteString("\n")
		if it.Time != "" {
			b.WriteString(it.Time)
			b.WriteString("  ")
		}
		b.WriteString(it.Activity)
	}
	return b.String()
}
