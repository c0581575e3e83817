package rules

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// watchDebounce coalesces rapid editor write bursts into one reload.
const watchDebounce = 500 * time.Millisecond

// Watch reloads the rules file whenever it changes and hands each valid
// result to onChange. Invalid file states are logged and skipped; the
// previously loaded set stays live. Watch blocks until ctx is cancelled.
func Watch(ctx context.Context, path string, logger *zap.Logger, onChange func(*RuleSet)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create rules watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	// Watch the directory: editors replace files by rename, which would
	// silently detach a file-level watch.
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	base := filepath.Base(path)
	var debounce *time.Timer
	reload := func() {
		rs, err := LoadFile(path)
		if err != nil {
			logger.Warn("rules reload rejected, keeping previous set",
				zap.String("path", path), zap.Error(err))
			return
		}
		logger.Info("rules reloaded", zap.String("path", path))
		onChange(rs)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(watchDebounce, reload)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("rules watcher error", zap.Error(err))
		}
	}
}
