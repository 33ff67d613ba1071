package gen

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounce collapses the burst of events an editor emits for one save.
const debounce = 200 * time.Millisecond

// Watch calls fn once and then again every time the file at path changes,
// until ctx is done. Errors returned by fn are logged and do not stop the
// watch.
//
// The parent directory is watched rather than the file itself, so that
// editors replacing the file by rename are picked up.
func Watch(ctx context.Context, path string, log *slog.Logger, fn func(context.Context) error) error {
	if log == nil {
		log = slog.Default()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}
	defer w.Close()
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}

	run := func() {
		if err := fn(ctx); err != nil {
			log.Error("generation failed", "catalog", path, "error", err)
		}
	}
	run()

	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs || ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			log.Debug("catalog changed", "catalog", path, "op", ev.Op.String())
			timer.Reset(debounce)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn("watch error", "catalog", path, "error", err)
		case <-timer.C:
			run()
		}
	}
}
