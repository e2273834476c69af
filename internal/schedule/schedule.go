// Package schedule parses the free-form agenda text attached to an event
// into timed entries.
package schedule

import (
	"iter"
	"regexp"
	"slices"
	"strings"

	"eventdesk/internal/datetime"
	"eventdesk/internal/model"
)

// timeExpr is a time as it appears at the start of an agenda line: "7:00",
// "7:00 PM", "7pm", "7 p.m.". A bare hour without a marker is not a time
// ("2 speakers").
const timeExpr = `\d{1,2}:\d{2}(?:\s*(?:[ap]\.m\.|[ap]m\b))?|\d{1,2}\s*(?:[ap]\.m\.|[ap]m\b)`

var (
	// 7:00 PM - 9:00 PM: Dinner
	rangeLine = regexp.MustCompile(`(?i)^(` + timeExpr + `)\s*(?:[-\x{2013}\x{2014}]|\bto\b)\s*(` + timeExpr + `)(?:\s*[-\x{2013}\x{2014}:|]\s*|\s+)(.+)$`)
	// 7:00 PM - Opening Remarks / 7pm: Dinner
	separatedLine = regexp.MustCompile(`(?i)^(` + timeExpr + `)\s*[-\x{2013}\x{2014}:|]\s*(.+)$`)
	// 7:00 PM Opening Remarks
	spacedLine = regexp.MustCompile(`(?i)^(` + timeExpr + `)\s+(.+)$`)

	bullet = regexp.MustCompile(`^[-*\x{2022}]\s+`)
)

// Parse returns the agenda entries of raw in input order. The sequence is
// lazy and can be ranged over any number of times; each pass re-reads raw.
// Every non-blank line yields exactly one item.
func Parse(raw string) iter.Seq[model.ScheduleItem] {
	return func(yield func(model.ScheduleItem) bool) {
		for line := range strings.Lines(raw) {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if !yield(parseLine(line)) {
				return
			}
		}
	}
}

// Items collects Parse into a slice. It never returns nil.
func Items(raw string) []model.ScheduleItem {
	items := slices.Collect(Parse(raw))
	if items == nil {
		items = []model.ScheduleItem{}
	}
	return items
}

func parseLine(line string) model.ScheduleItem {
	body := strings.TrimSpace(bullet.ReplaceAllString(line, ""))

	if m := rangeLine.FindStringSubmatch(body); m != nil {
		if _, ok := datetime.FormatTime(m[1]); ok {
			if _, ok := datetime.FormatTime(m[2]); ok {
				if activity := cleanActivity(m[3]); activity != "" {
					return model.ScheduleItem{
						Time:     datetime.FormatTimeRange(m[1] + " - " + m[2]),
						Activity: activity,
					}
				}
			}
		}
	}

	for _, re := range []*regexp.Regexp{separatedLine, spacedLine} {
		m := re.FindStringSubmatch(body)
		if m == nil {
			continue
		}
		t, ok := datetime.FormatTime(m[1])
		if !ok {
			continue
		}
		if activity := cleanActivity(m[2]); activity != "" {
			return model.ScheduleItem{Time: t, Activity: activity}
		}
	}

	return model.ScheduleItem{Activity: line}
}

func cleanActivity(s string) string {
	return strings.TrimSpace(strings.TrimLeft(s, " \t-–—:|"))
}
