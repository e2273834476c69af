package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"eventdesk/internal/datetime"
	"eventdesk/internal/ics"
	"eventdesk/internal/metrics"
	"eventdesk/internal/schedule"
	"eventdesk/internal/store"
)

// importCmd runs a single import pass and exits, for cron jobs outside the
// server and for checking a new feed.
func importCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "import",
		Short: "Import all configured ICS feeds once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := loadConfig(flags)
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()

			st, err := store.Open(ctx, conf.Database)
			if err != nil {
				return err
			}
			defer st.Close()

			importer := ics.NewImporter(
				ics.NewFetcher(filepath.Join(conf.CacheDir, "ics")),
				st, feedsFrom(conf), conf.Location(), metrics.New(),
			)
			sum, importErr := importer.ImportAll(ctx)

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(sum); err != nil {
				return err
			}
			return importErr
		},
	}
}

func parseDateCmd() *cobra.Command {
	var tz string
	cmd := &cobra.Command{
		Use:   "parse-date <date text>",
		Short: "Show how a free-form event date is read",
		Example: `  eventdesk parse-date "September 14-15, 2025"
  eventdesk parse-date 2025-09-14`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := time.LoadLocation(tz)
			if err != nil {
				return fmt.Errorf("timezone %q: %w", tz, err)
			}
			raw := strings.Join(args, " ")
			t, err := datetime.New(loc).ParseDate(raw)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), t.Format("2006-01-02 (Monday)"))
			return nil
		},
	}
	cmd.Flags().StringVar(&tz, "timezone", "Local", "IANA zone dates are read in")
	return cmd
}

func formatTimeCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "format-time <time range>",
		Short:   "Print the canonical form of a time or time range",
		Example: `  eventdesk format-time 7:00pm-11pm`,
		Args:    cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), datetime.FormatTimeRange(strings.Join(args, " ")))
		},
	}
}

func scheduleCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "schedule <file|->",
		Short: "Parse an agenda, one entry per line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			items := schedule.Items(string(raw))
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(items)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, it := range items {
				fmt.Fprintf(tw, "%s\t%s\n", it.Time, it.Activity)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print items as JSON")
	return cmd
}

func readInput(stdin io.Reader, name string) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(stdin)
	}
	data, err := os.ReadFile(name)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("agenda file %s does not exist", name)
	}
	return data, err
}
