package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"eventdesk/internal/config"
	"eventdesk/internal/ics"
	appLog "eventdesk/internal/log"
)

const (
	Version = "0.1.0"
	appName = "eventdesk"
)

// rootFlags holds the flags shared by every subcommand.
type rootFlags struct {
	configPath string
	logLevel   string
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var flags rootFlags

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Community events and registrations",
		Long: `eventdesk serves community event listings and agendas, takes
capacity-aware registrations with a waitlist, and imports events from
ICS feeds.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "/etc/eventdesk/config.yaml", "Path to config file")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides config")

	cmd.AddCommand(
		serveCmd(&flags),
		importCmd(&flags),
		parseDateCmd(),
		formatTimeCmd(),
		scheduleCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", appName, Version)
			},
		},
	)
	return cmd
}

// loadConfig loads the config file and applies the log level, the flag
// winning over the file.
func loadConfig(flags *rootFlags) (*config.Config, error) {
	conf, err := config.Load(flags.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", flags.configPath, err)
	}
	if flags.logLevel != "" {
		conf.LogLevel = flags.logLevel
	}
	applyLogLevel(conf.LogLevel)
	return conf, nil
}

func applyLogLevel(s string) {
	lvl, ok := appLog.ParseLevel(s)
	if !ok {
		appLog.Warn("unknown log level, using info", "log_level", s)
	}
	appLog.SetLevel(lvl)
}

func feedsFrom(conf *config.Config) []ics.Source {
	sources := make([]ics.Source, 0, len(conf.Feeds))
	for _, f := range conf.Feeds {
		sources = append(sources, ics.Source{ID: f.ID, Name: f.Name, URL: f.URL})
	}
	return sources
}

// signalContext is cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigCh:
			appLog.Info("signal received, shutting down", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}
