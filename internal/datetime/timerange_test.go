package datetime

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatTime(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"9am", "9:00 AM", true},
		{"9:00 PM", "9:00 PM", true},
		{"9:00am", "9:00 AM", true},
		{"9 a.m.", "9:00 AM", true},
		{"9.30pm", "9:30 PM", true},
		{"12am", "12:00 AM", true},
		{"21:30", "9:30 PM", true},
		{"00:15", "12:15 AM", true},
		{"09:00", "9:00 AM", true},
		{"12:00", "12:00 PM", true},
		{"7:00", "7:00 AM", true},
		{"noon", "12:00 PM", true},
		{"Midnight", "12:00 AM", true},
		{"13pm", "", false},
		{"9:75", "", false},
		{"late", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := FormatTime(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatTimeRange(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"compact range", "7:00pm-11pm", "7:00 PM - 11:00 PM"},
		{"single token", "9am", "9:00 AM"},
		{"morning range", "9am-11am", "9:00 AM - 11:00 AM"},
		{"24 hour end", "9:00 - 23:00", "9:00 AM - 11:00 PM"},
		{"en dash", "7–9 PM", "7:00 PM - 9:00 PM"},
		{"em dash with spaces", "7:30 pm — 10 pm", "7:30 PM - 10:00 PM"},
		{"word to", "6pm to 8pm", "6:00 PM - 8:00 PM"},
		{"end inherits start", "7pm-11", "7:00 PM - 11:00 PM"},
		{"end inherits across noon", "11am-1", "11:00 AM - 1:00 PM"},
		{"start inherits end", "7-11pm", "7:00 PM - 11:00 PM"},
		{"start flips before noon", "10-12pm", "10:00 AM - 12:00 PM"},
		{"bare range defaults to morning", "9-11", "9:00 AM - 11:00 AM"},
		{"bare range crossing noon", "11-1", "11:00 AM - 1:00 PM"},
		{"both 24 hour", "18:00-21:30", "6:00 PM - 9:30 PM"},
		{"unparseable end", "7pm - late", "7:00 PM - late"},
		{"unparseable start", "doors - 9pm", "doors - 9:00 PM"},
		{"free text", "TBA", "TBA"},
		{"free text with marker", "after 7pm sharp", "after 7 PM sharp"},
		{"empty", "   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatTimeRange(tt.in))
		})
	}
}

func TestFormatTimeRangeIsStable(t *testing.T) {
	for _, in := range []string{"7:00pm-11pm", "9-11", "9:00 - 23:00", "noon"} {
		once := FormatTimeRange(in)
		assert.Equal(t, once, FormatTimeRange(once), in)
	}
}
