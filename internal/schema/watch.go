package schema

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"rocket-console/internal/logger"
)

const reloadDebounce = 300 * time.Millisecond

// Watch reloads the registry whenever the pages file changes. An invalid file
// is logged and the previously loaded pages stay active. Watch blocks until
// ctx is cancelled.
func Watch(ctx context.Context, path string, reg *Registry, log logger.Logger) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	// Editors replace files on save, so watch the directory.
	dir := filepath.Dir(path)
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	target := filepath.Clean(path)

	var timer *time.Timer
	reload := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(reloadDebounce, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})
		case <-reload:
			if err := LoadFile(path, reg); err != nil {
				log.Warnw("pages reload rejected", "path", path, "error", err)
				continue
			}
			log.Infow("pages reloaded", "path", path, "pages", len(reg.Names()))
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warnw("pages watcher error", "error", err)
		}
	}
}
