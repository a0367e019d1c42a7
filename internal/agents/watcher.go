package agents

import (
	"context"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher пересканирует каталог при изменении манифестов.
// Серия событий схлопывается: Refresh вызывается один раз после паузы debounce.
type Watcher struct {
	dir      *Directory
	path     string
	debounce time.Duration
	logger   *zap.Logger
}

func NewWatcher(dir *Directory, path string, logger *zap.Logger) *Watcher {
	return &Watcher{
		dir:      dir,
		path:     path,
		debounce: 250 * time.Millisecond,
		logger:   logger.Named("manifest-watcher"),
	}
}

// Run блокируется до отмены ctx.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := fw.Add(w.path); err != nil {
		return err
	}
	w.logger.Info("watching agent manifests", zap.String("path", w.path))

	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !strings.HasSuffix(ev.Name, manifestSuffix) {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", zap.Error(err))

		case <-fire:
			fire = nil
			if err := w.dir.Refresh(ctx); err != nil {
				w.logger.Error("agent re-discovery failed", zap.Error(err))
				continue
			}
			w.logger.Info("agents re-discovered after manifest change")
		}
	}
}
