package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventdesk/internal/model"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := rootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestToolCommands(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"format time range", []string{"format-time", "7:00pm-11pm"}, "7:00 PM - 11:00 PM\n"},
		{"format time joins args", []string{"format-time", "7", "-", "9", "PM"}, "7:00 PM - 9:00 PM\n"},
		{"parse iso date", []string{"parse-date", "--timezone", "UTC", "2025-09-14"}, "2025-09-14 (Sunday)\n"},
		{"parse month range", []string{"parse-date", "--timezone", "UTC", "September 14-15, 2025"}, "2025-09-14 (Sunday)\n"},
		{"version", []string{"version"}, "eventdesk version " + Version + "\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, "", tt.args...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestParseDateFails(t *testing.T) {
	_, err := execute(t, "", "parse-date", "--timezone", "UTC", "sometime soon")
	assert.Error(t, err)
}

func TestScheduleCommand(t *testing.T) {
	agenda := "7pm Doors open\n8:00 PM - 9pm: Lesson\n\nSocial dancing\n"

	out, err := execute(t, agenda, "schedule", "--json", "-")
	require.NoError(t, err)
	var items []model.ScheduleItem
	require.NoError(t, json.Unmarshal([]byte(out), &items))
	assert.Equal(t, []model.ScheduleItem{
		{Time: "7:00 PM", Activity: "Doors open"},
		{Time: "8:00 PM - 9:00 PM", Activity: "Lesson"},
		{Activity: "Social dancing"},
	}, items)

	path := filepath.Join(t.TempDir(), "agenda.txt")
	require.NoError(t, os.WriteFile(path, []byte(agenda), 0o600))
	out, err = execute(t, "", "schedule", path)
	require.NoError(t, err)
	assert.Contains(t, out, "7:00 PM")
	assert.Contains(t, out, "Social dancing")

	_, err = execute(t, "", "schedule", filepath.Join(t.TempDir(), "missing.txt"))
	assert.ErrorContains(t, err, "does not exist")
}
