package identity

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatchDirectory reloads the customer directory when its file changes and
// swaps it into the resolver. Events are debounced; a malformed file keeps
// the previous directory. Blocks until ctx ends.
func WatchDirectory(ctx context.Context, path string, r *Resolver) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("directory watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory: editors replace files via rename, which drops
	// a watch placed on the file itself.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("directory watcher add: %w", err)
	}

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			pending = time.After(500 * time.Millisecond)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("directory watcher error", "error", err)
		case <-pending:
			pending = nil
			dir, err := LoadDirectory(path)
			if err != nil {
				slog.Warn("directory reload failed, keeping previous customers", "error", err)
				continue
			}
			r.SetDirectory(dir)
			slog.Info("customer directory reloaded", "customers", dir.Len())
		}
	}
}
