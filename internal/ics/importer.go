package ics

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"eventdesk/internal/log"
	"eventdesk/internal/metrics"
	"eventdesk/internal/model"
)

// EventUpserter is the store operation the importer needs.
type EventUpserter interface {
	UpsertImportedEvent(ctx context.Context, ev model.Event) (model.Event, bool, error)
}

// Summary reports one ImportAll pass.
type Summary struct {
	Feeds   int `json:"feeds"`
	Created int `json:"created"`
	Updated int `json:"updated"`
	Failed  int `json:"failed"`
}

// Importer pulls every configured feed into the store.
type Importer struct {
	fetcher *Fetcher
	store   EventUpserter
	loc     *time.Location
	metrics *metrics.Metrics

	mu    sync.RWMutex
	feeds []Source
}

func NewImporter(f *Fetcher, s EventUpserter, feeds []Source, loc *time.Location, m *metrics.Metrics) *Importer {
	return &Importer{fetcher: f, store: s, feeds: feeds, loc: loc, metrics: m}
}

// SetFeeds replaces the feed list; the next ImportAll uses it.
func (im *Importer) SetFeeds(feeds []Source) {
	im.mu.Lock()
	im.feeds = feeds
	im.mu.Unlock()
}

// ImportAll fetches, parses and upserts every feed. A failing feed does not
// stop the others; all failures are joined into the returned error.
func (im *Importer) ImportAll(ctx context.Context) (Summary, error) {
	im.mu.RLock()
	feeds := im.feeds
	im.mu.RUnlock()

	var (
		sum  Summary
		errs []error
	)
	for _, src := range feeds {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		sum.Feeds++
		created, updated, err := im.importFeed(ctx, src)
		sum.Created += created
		sum.Updated += updated
		if err != nil {
			sum.Failed++
			im.metrics.FeedImport(src.ID, "error")
			log.Error("feed import failed", err, "feed", src.ID, "url", redactURL(src.URL))
			errs = append(errs, fmt.Errorf("feed %s: %w", src.ID, err))
			continue
		}
		im.metrics.FeedImport(src.ID, "ok")
	}

	log.Info("feed import finished",
		"feeds", sum.Feeds,
		"created", sum.Created,
		"updated", sum.Updated,
		"failed", sum.Failed,
	)
	return sum, errors.Join(errs...)
}

func (im *Importer) importFeed(ctx context.Context, src Source) (created, updated int, err error) {
	res, err := im.fetcher.Fetch(ctx, src)
	if err != nil {
		return 0, 0, err
	}
	events, err := ParseFeed(src, res.Body)
	if err != nil {
		return 0, 0, err
	}

	var errs []error
	for _, fe := range events {
		_, isNew, err := im.store.UpsertImportedEvent(ctx, ToEvent(fe, im.loc))
		if err != nil {
			errs = append(errs, fmt.Errorf("uid %s: %w", fe.UID, err))
			continue
		}
		if isNew {
			created++
		} else {
			updated++
		}
	}
	return created, updated, errors.Join(errs...)
}
