// Package datetime turns the date and time text administrators type into
// comparable values and canonical display strings.
//
// Nothing in this package returns an error that is meant for end users:
// callers either get a parsed value or a *DateParseError they can log and
// replace with a safe default (see ComparableDate).
package datetime

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/araddon/dateparse"
)

// ErrDateParse is the sentinel wrapped by every *DateParseError.
var ErrDateParse = errors.New("unrecognised date")

// DateParseError carries the raw input that could not be resolved.
type DateParseError struct {
	Raw string
}

func (e *DateParseError) Error() string {
	return fmt.Sprintf("parse date %q: %v", e.Raw, ErrDateParse)
}

func (e *DateParseError) Unwrap() error { return ErrDateParse }

// dashes are the range separators accepted in dates and times.
const dashes = "-–—"

var (
	isoDate = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

	// "September 14-15, 2025", "Sept 14 – 15 2025",
	// "September 30 - October 2, 2025".
	monthRange = regexp.MustCompile(`^([A-Za-z]+)\.?\s+(\d{1,2})(?:st|nd|rd|th)?\s*[-\x{2013}\x{2014}]\s*(?:([A-Za-z]+)\.?\s+)?(\d{1,2})(?:st|nd|rd|th)?(?:,\s*|\s+)(\d{4})$`)

	fourDigitYear = regexp.MustCompile(`\b\d{4}\b`)

	weekdayPrefix = regexp.MustCompile(`(?i)^(?:monday|tuesday|wednesday|thursday|friday|saturday|sunday|mon|tues|tue|wed|thurs|thur|thu|fri|sat|sun)\.?,?\s+`)
	ordinalSuffix = regexp.MustCompile(`(?i)\b(\d{1,2})(?:st|nd|rd|th)\b`)
	septAbbrev    = regexp.MustCompile(`(?i)\bsept\b\.?`)
	dottedMonth   = regexp.MustCompile(`(?i)\b(jan|feb|mar|apr|jun|jul|aug|sep|oct|nov|dec)\.`)
)

// genericLayouts are tried before handing the string to dateparse. They
// cover what the admin forms produce in practice and keep the common cases
// independent of dateparse's heuristics.
var genericLayouts = []string{
	"January 2, 2006",
	"January 2 2006",
	"Jan 2, 2006",
	"Jan 2 2006",
	"2 January 2006",
	"2 Jan 2006",
	"January 2, 2006 3:04 PM",
	"Jan 2, 2006 3:04 PM",
	"01/02/2006",
	"1/2/2006",
	"2006/01/02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

var monthNames = map[string]time.Month{
	"jan": time.January, "january": time.January,
	"feb": time.February, "february": time.February,
	"mar": time.March, "march": time.March,
	"apr": time.April, "april": time.April,
	"may": time.May,
	"jun": time.June, "june": time.June,
	"jul": time.July, "july": time.July,
	"aug": time.August, "august": time.August,
	"sep": time.September, "sept": time.September, "september": time.September,
	"oct": time.October, "october": time.October,
	"nov": time.November, "november": time.November,
	"dec": time.December, "december": time.December,
}

// Normalizer resolves raw dates in a fixed local time zone. The zero value
// is not usable; construct with New.
type Normalizer struct {
	loc *time.Location
}

// New returns a Normalizer that interprets zone-less dates in loc. A nil
// loc means time.Local.
func New(loc *time.Location) *Normalizer {
	if loc == nil {
		loc = time.Local
	}
	return &Normalizer{loc: loc}
}

// Location returns the zone used for zone-less input.
func (n *Normalizer) Location() *time.Location {
	return n.loc
}

// Epoch is the comparable date of anything that fails to parse.
var Epoch = time.Unix(0, 0).UTC()

// ParseDate resolves raw into a point in time. Rules, first match wins:
//
//  1. strict ISO yyyy-mm-dd
//  2. month-name day range with a shared year; the start day is returned
//  3. common fixed layouts ("October 3, 2025", RFC 3339, ...)
//  4. for dashed strings: the text before the first dash, with the
//     string's year appended when it is missing there
//  5. dateparse over the whole string
func (n *Normalizer) ParseDate(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, &DateParseError{Raw: raw}
	}

	if isoDate.MatchString(s) {
		t, err := time.ParseInLocation("2006-01-02", s, n.loc)
		if err != nil {
			return time.Time{}, &DateParseError{Raw: raw}
		}
		return t, nil
	}

	if t, ok := n.parseMonthRange(s); ok {
		return t, nil
	}

	if t, ok := n.parseLayouts(s); ok {
		return t, nil
	}

	if strings.ContainsAny(s, dashes) {
		if before, ok := beforeFirstDash(s); ok {
			if t, ok := n.parseLayouts(before); ok {
				return t, nil
			}
			if t, ok := n.parseLoose(before); ok {
				return t, nil
			}
		}
	}

	if t, ok := n.parseLoose(s); ok {
		return t, nil
	}
	return time.Time{}, &DateParseError{Raw: raw}
}

// ComparableDate is ParseDate for sorting: failures resolve to Epoch and
// report false so the caller can emit a diagnostic.
func (n *Normalizer) ComparableDate(raw string) (time.Time, bool) {
	t, err := n.ParseDate(raw)
	if err != nil {
		return Epoch, false
	}
	return t, true
}

func (n *Normalizer) parseMonthRange(s string) (time.Time, bool) {
	m := monthRange.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, false
	}
	startMonth, ok := monthFromName(m[1])
	if !ok {
		return time.Time{}, false
	}
	endMonth := startMonth
	if m[3] != "" {
		if endMonth, ok = monthFromName(m[3]); !ok {
			return time.Time{}, false
		}
	}
	startDay, _ := strconv.Atoi(m[2])
	endDay, _ := strconv.Atoi(m[4])
	year, _ := strconv.Atoi(m[5])

	start, ok := n.validDate(year, startMonth, startDay)
	if !ok {
		return time.Time{}, false
	}
	// The end day is only checked for plausibility.
	if _, ok := n.validDate(year, endMonth, endDay); !ok {
		return time.Time{}, false
	}
	return start, true
}

func (n *Normalizer) validDate(year int, month time.Month, day int) (time.Time, bool) {
	t := time.Date(year, month, day, 0, 0, 0, 0, n.loc)
	if t.Year() != year || t.Month() != month || t.Day() != day {
		return time.Time{}, false
	}
	return t, true
}

func (n *Normalizer) parseLayouts(s string) (time.Time, bool) {
	s = prenormalize(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range genericLayouts {
		if parsed, err := time.ParseInLocation(layout, s, n.loc); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}

// parseLoose hands the string to dateparse. dateparse has panicked on
// malformed input in the past, so it runs under recover. dateparse accepts a
// missing year as year zero; that is a failure here.
func (n *Normalizer) parseLoose(s string) (t time.Time, ok bool) {
	s = prenormalize(s)
	if s == "" {
		return time.Time{}, false
	}
	defer func() {
		if r := recover(); r != nil {
			t, ok = time.Time{}, false
		}
	}()
	parsed, err := dateparse.ParseIn(s, n.loc)
	if err != nil || parsed.Year() < 1 {
		return time.Time{}, false
	}
	return parsed, true
}

// beforeFirstDash implements the hyphen fallback: "Friday, October 3 -
// Sunday, October 5, 2025" becomes "Friday, October 3, 2025".
func beforeFirstDash(s string) (string, bool) {
	i := strings.IndexAny(s, dashes)
	if i <= 0 {
		return "", false
	}
	before := strings.TrimSpace(s[:i])
	before = strings.TrimSpace(strings.TrimSuffix(before, ","))
	// A bare day number ("14-16 Sep") is not worth handing to dateparse.
	if !strings.ContainsFunc(before, unicode.IsLetter) && !strings.Contains(before, "/") {
		return "", false
	}
	if year := fourDigitYear.FindString(s[i:]); year != "" && !fourDigitYear.MatchString(before) {
		before += ", " + year
	}
	return before, true
}

func prenormalize(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	s = weekdayPrefix.ReplaceAllString(s, "")
	s = ordinalSuffix.ReplaceAllString(s, "$1")
	s = septAbbrev.ReplaceAllString(s, "Sep")
	s = dottedMonth.ReplaceAllString(s, "$1")
	return strings.TrimSpace(s)
}

func monthFromName(name string) (time.Month, bool) {
	m, ok := monthNames[strings.ToLower(strings.TrimSuffix(name, "."))]
	return m, ok
}
