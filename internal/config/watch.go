package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"eventdesk/internal/log"
)

// watchDebounce collapses the burst of events editors emit on save.
const watchDebounce = 250 * time.Millisecond

// Watch calls fn with the reloaded config every time the file at path
// changes, until ctx is done. Invalid edits are logged and skipped; fn only
// sees configs that passed Validate.
//
// The parent directory is watched rather than the file so that editors
// which save by rename keep being tracked.
func Watch(ctx context.Context, path string, fn func(*Config)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		w.Close()
		return err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	go func() {
		defer w.Close()

		var (
			timer  *time.Timer
			reload <-chan time.Time
		)
		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return

			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != abs {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
					continue
				}
				if timer == nil {
					timer = time.NewTimer(watchDebounce)
				} else {
					timer.Reset(watchDebounce)
				}
				reload = timer.C

			case <-reload:
				reload = nil
				cfg, err := read(abs)
				if err != nil {
					log.Error("config reload failed, keeping previous config", err, "path", abs)
					continue
				}
				log.Info("config reloaded", "path", abs)
				fn(cfg)

			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Error("config watcher error", err, "path", abs)
			}
		}
	}()
	return nil
}
