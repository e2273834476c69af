package sorter

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventdesk/internal/datetime"
	"eventdesk/internal/metrics"
	"eventdesk/internal/model"
)

func fixedSorter(t *testing.T, m *metrics.Metrics) *Sorter {
	t.Helper()
	now := time.Date(2025, time.September, 1, 12, 0, 0, 0, time.UTC)
	return New(datetime.New(time.UTC), WithClock(func() time.Time { return now }), WithMetrics(m))
}

func ids(events []model.Event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.ID
	}
	return out
}

func TestPartition(t *testing.T) {
	s := fixedSorter(t, nil)
	events := []model.Event{
		{ID: "oct", DateRaw: "2025-10-03"},
		{ID: "range", DateRaw: "September 14-15, 2025"},
		{ID: "june", DateRaw: "June 1, 2025"},
		{ID: "tba", DateRaw: "TBA"},
		{ID: "aug", DateRaw: "2025-08-30"},
		{ID: "dec", DateRaw: "December 24, 2025"},
	}

	p := s.Partition(events)
	assert.Equal(t, []string{"range", "oct", "dec"}, ids(p.Upcoming))
	assert.Equal(t, []string{"aug", "june", "tba"}, ids(p.Past))
}

func TestPartitionBoundaryIsUpcoming(t *testing.T) {
	now := time.Date(2025, time.September, 14, 0, 0, 0, 0, time.UTC)
	s := New(datetime.New(time.UTC), WithClock(func() time.Time { return now }))

	p := s.Partition([]model.Event{{ID: "today", DateRaw: "2025-09-14"}})
	assert.Equal(t, []string{"today"}, ids(p.Upcoming))
	assert.Empty(t, p.Past)
}

func TestPartitionKeepsInputOrderOnTies(t *testing.T) {
	s := fixedSorter(t, nil)
	events := []model.Event{
		{ID: "a", DateRaw: "2025-10-03"},
		{ID: "b", DateRaw: "October 3, 2025"},
		{ID: "c", DateRaw: "2025-10-03"},
		{ID: "x", DateRaw: "nope"},
		{ID: "y", DateRaw: ""},
		{ID: "p1", DateRaw: "2025-01-05"},
		{ID: "p2", DateRaw: "Jan 5, 2025"},
	}

	p := s.Partition(events)
	assert.Equal(t, []string{"a", "b", "c"}, ids(p.Upcoming))
	assert.Equal(t, []string{"p1", "p2", "x", "y"}, ids(p.Past))
}

func TestPartitionInvariants(t *testing.T) {
	s := fixedSorter(t, nil)
	events := []model.Event{
		{ID: "1", DateRaw: "2024-02-29"},
		{ID: "2", DateRaw: "Friday, October 3 - Sunday, October 5, 2025"},
		{ID: "3", DateRaw: "garbage"},
		{ID: "4", DateRaw: "2026-01-01"},
		{ID: "5", DateRaw: "2025-09-01"},
	}
	p := s.Partition(events)

	require.Len(t, append(p.Upcoming, p.Past...), len(events))
	seen := map[string]bool{}
	for _, e := range append(p.Upcoming, p.Past...) {
		assert.False(t, seen[e.ID], "duplicate %s", e.ID)
		seen[e.ID] = true
	}

	norm := datetime.New(time.UTC)
	for i := 1; i < len(p.Upcoming); i++ {
		a, _ := norm.ComparableDate(p.Upcoming[i-1].DateRaw)
		b, _ := norm.ComparableDate(p.Upcoming[i].DateRaw)
		assert.False(t, b.Before(a))
	}
	for i := 1; i < len(p.Past); i++ {
		a, _ := norm.ComparableDate(p.Past[i-1].DateRaw)
		b, _ := norm.ComparableDate(p.Past[i].DateRaw)
		assert.False(t, b.After(a))
	}
}

func TestPartitionEmpty(t *testing.T) {
	p := fixedSorter(t, nil).Partition(nil)
	assert.NotNil(t, p.Upcoming)
	assert.NotNil(t, p.Past)
	assert.Empty(t, p.Upcoming)
	assert.Empty(t, p.Past)
}

func TestPartitionCountsParseFailures(t *testing.T) {
	m := metrics.New()
	s := fixedSorter(t, m)

	s.Partition([]model.Event{
		{ID: "1", DateRaw: "TBA"},
		{ID: "2", DateRaw: "2025-10-01"},
		{ID: "3", DateRaw: "sometime soon"},
	})

	expected := `
# HELP eventdesk_date_parse_failures_total Event dates that could not be parsed and sorted as epoch.
# TYPE eventdesk_date_parse_failures_total counter
eventdesk_date_parse_failures_total 2
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "eventdesk_date_parse_failures_total"))
}

func TestOrderedPutsUpcomingFirst(t *testing.T) {
	s := fixedSorter(t, nil)
	events := []model.Event{
		{ID: "past-recent", DateRaw: "2025-08-31"},
		{ID: "far-future", DateRaw: "2030-01-01"},
		{ID: "soon", DateRaw: "2025-09-02"},
	}
	assert.Equal(t, []string{"soon", "far-future", "past-recent"}, ids(s.Ordered(events)))
}

func TestSearch(t *testing.T) {
	s := fixedSorter(t, nil)
	events := []model.Event{
		{ID: "old-salsa", Title: "Salsa Night", DateRaw: "2025-03-01"},
		{ID: "hike", Title: "Hike", Description: "Bring water", DateRaw: "2025-10-01"},
		{ID: "new-salsa", Title: "Beginner SALSA", DateRaw: "2025-11-01"},
		{ID: "potluck", Title: "Potluck", Description: "Salsa and chips", DateRaw: "2025-09-20"},
	}

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"title and description", "salsa", []string{"potluck", "new-salsa", "old-salsa"}},
		{"trimmed", "  water ", []string{"hike"}},
		{"no match", "karaoke", []string{}},
		{"empty query", "", []string{"potluck", "hike", "new-salsa", "old-salsa"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ids(s.Search(events, tt.query)))
		})
	}
}
