package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/yungbote/docchat-backend/internal/platform/logger"
)

const DefaultWatchDebounce = 2 * time.Second

// Watcher re-runs fn whenever files under root change, coalescing bursts of
// events into a single call once debounce has passed without new events.
type Watcher struct {
	log      *logger.Logger
	root     string
	debounce time.Duration
	fn       func(ctx context.Context) error
}

func NewWatcher(log *logger.Logger, root string, debounce time.Duration, fn func(ctx context.Context) error) *Watcher {
	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}
	return &Watcher{log: log.With("component", "Watcher", "root", root), root: root, debounce: debounce, fn: fn}
}

// Run blocks until ctx is cancelled. Errors from fn are logged and the
// watch continues.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("fsnotify: %w", err)
	}
	defer fw.Close()

	if err := w.addTree(fw, w.root); err != nil {
		return err
	}
	w.log.Info("watching for changes", "debounce", w.debounce.String())

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := w.addTree(fw, ev.Name); err != nil {
						w.log.Warn("watch new directory failed", "path", ev.Name, "error", err)
					}
				}
			}
			if !relevant(ev) {
				continue
			}
			timer.Reset(w.debounce)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch error", "error", err)
		case <-timer.C:
			if err := w.fn(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				w.log.Error("re-ingestion failed", "error", err)
			}
		}
	}
}

func (w *Watcher) addTree(fw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fw.Add(p)
		}
		return nil
	})
}

func relevant(ev fsnotify.Event) bool {
	if ev.Has(fsnotify.Chmod) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
		return false
	}
	if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
		return true
	}
	if _, ok := supportedExt(filepath.Base(ev.Name)); ok {
		return true
	}
	// removals of directories cannot be stat'ed; treat them as relevant
	return ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename)
}
