// Package sorter splits events into upcoming and past views.
package sorter

import (
	"slices"
	"strings"
	"time"

	"eventdesk/internal/datetime"
	"eventdesk/internal/log"
	"eventdesk/internal/metrics"
	"eventdesk/internal/model"
)

// Partition is the two-way split returned by Sorter.Partition. Neither slice
// is nil.
type Partition struct {
	Upcoming []model.Event `json:"upcoming"`
	Past     []model.Event `json:"past"`
}

type Sorter struct {
	norm    *datetime.Normalizer
	now     func() time.Time
	metrics *metrics.Metrics
}

type Option func(*Sorter)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Sorter) { s.now = now }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Sorter) { s.metrics = m }
}

func New(norm *datetime.Normalizer, opts ...Option) *Sorter {
	if norm == nil {
		norm = datetime.New(nil)
	}
	s := &Sorter{norm: norm, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type keyed struct {
	event model.Event
	at    time.Time
}

// Partition classifies events relative to the current instant. An event is
// upcoming iff its comparable date is not before now. Upcoming events are
// ascending, past events descending; equal dates keep input order.
// Unparseable dates sort as the epoch and therefore land at the end of Past.
func (s *Sorter) Partition(events []model.Event) Partition {
	now := s.now()

	var upcoming, past []keyed
	for _, e := range events {
		at, ok := s.norm.ComparableDate(e.DateRaw)
		if !ok {
			s.metrics.DateParseFailure()
			log.Warn("event date not recognised, sorting as epoch", "event", e.ID, "date", e.DateRaw)
		}
		k := keyed{event: e, at: at}
		if at.Before(now) {
			past = append(past, k)
		} else {
			upcoming = append(upcoming, k)
		}
	}

	slices.SortStableFunc(upcoming, func(a, b keyed) int { return a.at.Compare(b.at) })
	slices.SortStableFunc(past, func(a, b keyed) int { return b.at.Compare(a.at) })

	return Partition{Upcoming: unwrap(upcoming), Past: unwrap(past)}
}

// Ordered is the combined view: all upcoming events, then all past events.
func (s *Sorter) Ordered(events []model.Event) []model.Event {
	p := s.Partition(events)
	return append(p.Upcoming, p.Past...)
}

// Search keeps the events whose title or description contains query,
// case-insensitively, in Ordered order. An empty query matches everything.
func (s *Sorter) Search(events []model.Event, query string) []model.Event {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return s.Ordered(events)
	}
	matched := make([]model.Event, 0, len(events))
	for _, e := range events {
		if strings.Contains(strings.ToLower(e.Title), q) || strings.Contains(strings.ToLower(e.Description), q) {
			matched = append(matched, e)
		}
	}
	return s.Ordered(matched)
}

func unwrap(ks []keyed) []model.Event {
	out := make([]model.Event, len(ks))
	for i, k := range ks {
		out[i] = k.event
	}
	return out
}
