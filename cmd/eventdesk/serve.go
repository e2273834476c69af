package main

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"eventdesk/internal/auth"
	"eventdesk/internal/config"
	"eventdesk/internal/datetime"
	"eventdesk/internal/ics"
	appLog "eventdesk/internal/log"
	"eventdesk/internal/metrics"
	"eventdesk/internal/notify"
	"eventdesk/internal/registration"
	"eventdesk/internal/scheduler"
	"eventdesk/internal/sorter"
	"eventdesk/internal/store"
	"eventdesk/internal/web"
)

// importTimeout bounds one pass over all feeds.
const importTimeout = 5 * time.Minute

func serveCmd(flags *rootFlags) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the feed import schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := loadConfig(flags)
			if err != nil {
				return err
			}
			// --listen overrides the config file if provided.
			if listen != "" {
				conf.Listen = listen
			}

			ctx, cancel := signalContext()
			defer cancel()
			return serve(ctx, flags.configPath, conf)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (overrides config if set)")
	return cmd
}

func serve(ctx context.Context, configPath string, conf *config.Config) error {
	appLog.Info("eventdesk starting", "version", Version)
	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"database", conf.Database,
		"refresh", conf.RefreshCron,
		"feeds", len(conf.Feeds),
		"admins", len(conf.Admins),
		"nats", conf.NATS.URL != "",
	)

	st, err := store.Open(ctx, conf.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	m := metrics.New()
	loc := conf.Location()
	norm := datetime.New(loc)

	var notifier notify.Notifier = notify.LogNotifier{}
	if conf.NATS.URL != "" {
		nn, err := notify.DialNATS(conf.NATS.URL, conf.NATS.SubjectPrefix)
		if err != nil {
			// Registrations keep working; notices go to the log instead.
			appLog.Error("NATS unavailable, logging notices instead", err)
		} else {
			defer nn.Close()
			notifier = nn
		}
	}

	var verifier *auth.Verifier
	if conf.Auth.JWTSecret != "" {
		verifier = auth.NewVerifier(conf.Auth.JWTSecret, conf.Auth.Issuer)
	} else {
		appLog.Warn("auth.jwt_secret not set; admin API and tickets are disabled")
	}

	srv := web.NewServer(web.Options{
		Store:        st,
		Manager:      registration.NewManager(st, notifier, m),
		Normalizer:   norm,
		Sorter:       sorter.New(norm, sorter.WithMetrics(m)),
		Verifier:     verifier,
		Metrics:      m,
		Admins:       conf.Admins,
		BaseURL:      conf.PublicBaseURL,
		CalendarName: appName,
	})

	importer := ics.NewImporter(ics.NewFetcher(filepath.Join(conf.CacheDir, "ics")), st, feedsFrom(conf), loc, m)
	sched := scheduler.New("feed-import", func(ctx context.Context) error {
		sum, err := importer.ImportAll(ctx)
		if sum.Created+sum.Updated > 0 {
			srv.InvalidateEvents()
		}
		return err
	}, importTimeout)

	if err := sched.Start(ctx, conf.RefreshCron); err != nil {
		return err
	}
	defer sched.Stop()

	if len(conf.Feeds) > 0 {
		go func() {
			if err := sched.RunNow(ctx); err != nil && !errors.Is(err, scheduler.ErrBusy) {
				appLog.Error("initial feed import failed", err)
			}
		}()
	}

	err = config.Watch(ctx, configPath, func(next *config.Config) {
		applyLogLevel(next.LogLevel)
		srv.SetAdmins(next.Admins)
		importer.SetFeeds(feedsFrom(next))
		if err := sched.Reschedule(next.RefreshCron); err != nil {
			appLog.Error("config reload: reschedule failed", err)
		}
	})
	if err != nil {
		// Serving does not depend on hot reload.
		appLog.Error("config watch unavailable", err, "path", configPath)
	}

	err = srv.Run(ctx, conf.Listen)
	appLog.Info("eventdesk exiting")
	return err
}
