package groups

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"nanoclaw-sidecar/metrics"
	"nanoclaw-sidecar/util/goroutine"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// reloadDebounce coalesces the burst of events editors and config map
// updates produce for a single change.
const reloadDebounce = 100 * time.Millisecond

// Watch reloads d whenever its backing file changes, until ctx is done.
// The parent directory is watched so atomic replace (rename, symlink swap)
// is picked up too. The returned channel is closed when the watcher exits.
func (d *Directory) Watch(ctx context.Context, logger *zap.SugaredLogger) (<-chan struct{}, error) {
	if d.path == "" {
		return nil, fmt.Errorf("groups directory has no backing file")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create groups watcher: %w", err)
	}
	dir := filepath.Dir(d.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	done := goroutine.Go("groups-watcher", logger, func() {
		defer watcher.Close()

		base := filepath.Base(d.path)
		var timer *time.Timer
		var fire <-chan time.Time

		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				name := filepath.Base(event.Name)
				if name != base && name != "..data" {
					continue
				}
				if timer == nil {
					timer = time.NewTimer(reloadDebounce)
				} else {
					timer.Reset(reloadDebounce)
				}
				fire = timer.C
			case <-fire:
				fire = nil
				if err := d.Reload(); err != nil {
					logger.Errorw("Failed to reload groups config, keeping previous groups",
						"path", d.path,
						"error", err)
					continue
				}
				metrics.GroupsLoaded.Set(float64(d.Len()))
				logger.Infow("Groups config reloaded",
					"path", d.path,
					"groups", d.Len())
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warnw("Groups watcher error", "error", err)
			}
		}
	})

	return done, nil
}
