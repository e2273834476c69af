package datetime

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	// "9", "9am", "9:00 PM", "9.30pm", "9 a.m.", "21:30"
	clockToken = regexp.MustCompile(`(?i)^(\d{1,2})(?:[:.](\d{2}))?\s*(?:([ap])\.?\s*m\.?)?$`)

	rangeSep = regexp.MustCompile(`(?i)\s*[-\x{2013}\x{2014}]\s*|\s+to\s+`)

	looseMeridiem = regexp.MustCompile(`(?i)(\d)\s*([ap])\.?\s*m\b\.?`)
)

const (
	meridiemAM = "AM"
	meridiemPM = "PM"
)

// clock is one parsed time token before meridiem resolution.
type clock struct {
	hour     int
	minute   int
	meridiem string
	// h24 marks a bare token that can only be read on a 24-hour clock
	// (hour 0 or 13-23) or is written zero-padded ("09:00").
	h24 bool
}

func parseClock(tok string) (clock, bool) {
	tok = strings.TrimSpace(tok)
	switch strings.ToLower(tok) {
	case "noon":
		return clock{hour: 12, meridiem: meridiemPM}, true
	case "midnight":
		return clock{hour: 12, meridiem: meridiemAM}, true
	}

	m := clockToken.FindStringSubmatch(tok)
	if m == nil {
		return clock{}, false
	}
	hour, _ := strconv.Atoi(m[1])
	minute := 0
	if m[2] != "" {
		minute, _ = strconv.Atoi(m[2])
	}
	if minute > 59 {
		return clock{}, false
	}

	c := clock{hour: hour, minute: minute}
	if m[3] != "" {
		if hour < 1 || hour > 12 {
			return clock{}, false
		}
		c.meridiem = meridiemAM
		if strings.EqualFold(m[3], "p") {
			c.meridiem = meridiemPM
		}
		return c, true
	}

	if hour > 23 {
		return clock{}, false
	}
	c.h24 = hour == 0 || hour >= 13 || (len(m[1]) == 2 && m[1][0] == '0')
	return c, true
}

func (c clock) String() string {
	return fmt.Sprintf("%d:%02d %s", c.hour, c.minute, c.meridiem)
}

// as24 reads a bare token on a 24-hour clock.
func (c clock) as24() clock {
	switch {
	case c.hour == 0:
		c.hour, c.meridiem = 12, meridiemAM
	case c.hour == 12:
		c.meridiem = meridiemPM
	case c.hour > 12:
		c.hour, c.meridiem = c.hour-12, meridiemPM
	default:
		c.meridiem = meridiemAM
	}
	c.h24 = false
	return c
}

// resolveAlone picks a meridiem for a token with no partner: 24-hour form
// when recognisable, otherwise 12 is noon and everything else morning.
func (c clock) resolveAlone() clock {
	if c.meridiem != "" {
		return c
	}
	if c.h24 {
		return c.as24()
	}
	c.meridiem = meridiemAM
	if c.hour == 12 {
		c.meridiem = meridiemPM
	}
	return c
}

// dial is the position on a 12-hour face, with 12 at the top.
func dial(hour int) int { return hour % 12 }

func flip(m string) string {
	if m == meridiemAM {
		return meridiemPM
	}
	return meridiemAM
}

// resolveRange assigns meridiems to both ends of a range. A bare side
// inherits from the marked side and flips when the range would otherwise
// run backwards on the dial ("10-12pm", "11am-1").
func resolveRange(start, end clock) (clock, clock) {
	if start.meridiem == "" && end.meridiem == "" && (start.h24 || end.h24) {
		return start.as24(), end.as24()
	}

	switch {
	case start.meridiem != "" && end.meridiem != "":
	case start.meridiem != "":
		if end.h24 {
			return start, end.as24()
		}
		end.meridiem = start.meridiem
		if dial(end.hour) < dial(start.hour) {
			end.meridiem = flip(start.meridiem)
		}
	case end.meridiem != "":
		if start.h24 {
			return start.as24(), end
		}
		start.meridiem = end.meridiem
		if dial(start.hour) > dial(end.hour) {
			start.meridiem = flip(end.meridiem)
		}
	default:
		start = start.resolveAlone()
		end.meridiem = start.meridiem
		if dial(end.hour) < dial(start.hour) {
			end.meridiem = flip(start.meridiem)
		}
	}
	return start, end
}

// FormatTime normalises a single time token to "H:MM AM". It reports false
// when tok is not a recognisable time.
func FormatTime(tok string) (string, bool) {
	c, ok := parseClock(tok)
	if !ok {
		return "", false
	}
	return c.resolveAlone().String(), true
}

// FormatTimeRange normalises a time or time range for display, e.g.
// "7:00pm-11pm" becomes "7:00 PM - 11:00 PM". It never fails: text that
// is not a recognisable time is echoed with its am/pm markers upper-cased.
func FormatTimeRange(raw string) string {
	s := strings.Join(strings.Fields(raw), " ")
	if s == "" {
		return ""
	}

	parts := rangeSep.Split(s, -1)
	if len(parts) == 1 {
		if out, ok := FormatTime(s); ok {
			return out
		}
		return echo(s)
	}
	if len(parts) != 2 {
		return echo(s)
	}

	start, startOK := parseClock(parts[0])
	end, endOK := parseClock(parts[1])
	switch {
	case startOK && endOK:
		start, end = resolveRange(start, end)
		return start.String() + " - " + end.String()
	case startOK:
		return start.resolveAlone().String() + " - " + echo(parts[1])
	case endOK:
		return echo(parts[0]) + " - " + end.resolveAlone().String()
	default:
		return echo(s)
	}
}

func echo(s string) string {
	s = strings.TrimSpace(s)
	return looseMeridiem.ReplaceAllStringFunc(s, func(m string) string {
		sub := looseMeridiem.FindStringSubmatch(m)
		return sub[1] + " " + strings.ToUpper(sub[2]) + "M"
	})
}
