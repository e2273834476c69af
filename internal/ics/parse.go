package ics

import (
	"bytes"
	"errors"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"eventdesk/internal/log"
)

// FeedEvent is a single, non-recurring VEVENT read from a feed.
type FeedEvent struct {
	Source Source

	UID string
	Seq int

	Summary     string
	Description string
	Location    string

	// Start and End are wall-clock values for floating times (no TZID, no
	// Z suffix) and dates for all-day events; both are re-read in the
	// display zone by ToEvent.
	Start    time.Time
	End      time.Time
	AllDay   bool
	Floating bool
}

// ParseFeed parses one ICS payload. Broken VEVENTs are logged and skipped.
// Recurring events (RRULE or RECURRENCE-ID) and cancelled events are
// skipped as well: only one-off events are imported.
func ParseFeed(src Source, body []byte) ([]FeedEvent, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		log.Error("ics parse failed", err, "feed", src.ID, "url", redactURL(src.URL))
		return nil, err
	}

	events := make([]FeedEvent, 0)
	skipped := 0
	for _, comp := range cal.Events() {
		if reason := skipReason(comp); reason != "" {
			skipped++
			log.Debug("ics vevent skipped", "feed", src.ID, "uid", propValue(comp, ical.ComponentPropertyUniqueId), "reason", reason)
			continue
		}
		ev, perr := parseVEvent(src, comp)
		if perr != nil {
			log.Warn("ics vevent unreadable", "feed", src.ID, "err", perr)
			skipped++
			continue
		}
		events = append(events, ev)
	}

	log.Info("ics parse completed", "feed", src.ID, "url", redactURL(src.URL), "events", len(events), "skipped", skipped)
	return events, nil
}

func skipReason(ve *ical.VEvent) string {
	switch {
	case propValue(ve, ical.ComponentPropertyRrule) != "":
		return "recurring"
	case propValue(ve, "RECURRENCE-ID") != "":
		return "recurrence override"
	case strings.EqualFold(propValue(ve, ical.ComponentPropertyStatus), "CANCELLED"):
		return "cancelled"
	}
	return ""
}

func propValue(ve *ical.VEvent, p ical.ComponentProperty) string {
	if prop := ve.GetProperty(p); prop != nil {
		return strings.TrimSpace(prop.Value)
	}
	return ""
}

func parseVEvent(src Source, ve *ical.VEvent) (FeedEvent, error) {
	out := FeedEvent{Source: src}

	out.UID = propValue(ve, ical.ComponentPropertyUniqueId)
	if out.UID == "" {
		return out, errors.New("missing UID")
	}
	if n, err := strconv.Atoi(propValue(ve, ical.ComponentPropertySequence)); err == nil {
		out.Seq = n
	}
	out.Summary = propValue(ve, ical.ComponentPropertySummary)
	out.Description = propValue(ve, ical.ComponentPropertyDescription)
	out.Location = propValue(ve, ical.ComponentPropertyLocation)

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil || dtStart.Value == "" {
		return out, errors.New("missing DTSTART")
	}

	// VALUE=DATE or no 'T' in the value means all-day.
	out.AllDay = !strings.Contains(dtStart.Value, "T") || paramIs(dtStart.ICalParameters, "VALUE", "DATE")
	if out.AllDay {
		start, err := parseDate(dtStart.Value)
		if err != nil {
			return out, err
		}
		out.Start = start
		if dtEnd := ve.GetProperty(ical.ComponentPropertyDtEnd); dtEnd != nil {
			if end, err := parseDate(dtEnd.Value); err == nil {
				out.End = end
			}
		}
		return out, nil
	}

	out.Floating = !strings.HasSuffix(dtStart.Value, "Z") && len(dtStart.ICalParameters["TZID"]) == 0
	if out.Floating {
		start, err := time.Parse("20060102T150405", dtStart.Value)
		if err != nil {
			return out, err
		}
		out.Start = start
		if dtEnd := ve.GetProperty(ical.ComponentPropertyDtEnd); dtEnd != nil {
			if end, err := time.Parse("20060102T150405", dtEnd.Value); err == nil {
				out.End = end
			}
		}
		return out, nil
	}

	// Zoned: the library resolves TZID and UTC forms.
	start, err := ve.GetStartAt()
	if err != nil {
		return out, err
	}
	out.Start = start
	if end, err := ve.GetEndAt(); err == nil {
		out.End = end
	}
	return out, nil
}

func paramIs(params map[string][]string, key, want string) bool {
	vs := params[key]
	return len(vs) > 0 && strings.EqualFold(vs[0], want)
}

func parseDate(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if len(v) < 8 {
		return time.Time{}, errors.New("short date value")
	}
	return time.Parse("20060102", v[:8])
}
