// Package watch triggers reconciliation passes when a tree's filesystem
// changes. It is an optional layer over the catalog: reconciliation itself
// stays single-shot and synchronous, the watcher only decides when to run
// the next pass.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"songtree/internal/catalog"
	treefs "songtree/internal/fs"
)

// ReconcileFunc runs one reconciliation pass over the watched tree.
type ReconcileFunc func() error

// TreeWatcher watches a tree root recursively and invokes a reconcile
// callback after filesystem activity settles. Bursts of events collapse
// into a single pass via the debounce interval. Directories created while
// watching are added to the watch set.
type TreeWatcher struct {
	root      string
	debounce  time.Duration
	reconcile ReconcileFunc
	logger    catalog.Logger
	fsw       *fsnotify.Watcher
}

// NewTreeWatcher creates a watcher over root. The caller owns the
// reconcile callback; it is only ever invoked from Run's goroutine, so no
// extra serialization is needed to keep one reconciliation in flight per
// tree.
func NewTreeWatcher(root string, debounce time.Duration, reconcile ReconcileFunc, logger catalog.Logger) (*TreeWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating filesystem watcher: %w", err)
	}

	w := &TreeWatcher{
		root:      root,
		debounce:  debounce,
		reconcile: reconcile,
		logger:    logger,
		fsw:       fsw,
	}
	if err := w.addRecursive(root); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

// addRecursive registers root and every directory below it with the
// underlying watcher, skipping opaque bundle directories.
func (w *TreeWatcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasSuffix(d.Name(), treefs.BundleSuffix) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		return nil
	})
}

// Run blocks, reconciling after each settled burst of filesystem events,
// until ctx is canceled or the watcher fails. A reconcile error stops the
// watcher and is returned.
func (w *TreeWatcher) Run(ctx context.Context) error {
	var timer *time.Timer
	var pending <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.fsw.Events:
			if !ok {
				return fmt.Errorf("watcher closed")
			}
			if event.Op.Has(fsnotify.Create) {
				// New directories need their own watches before anything
				// inside them can be seen.
				if err := w.maybeWatchDir(event.Name); err != nil {
					w.logger.Debug("watch add failed", "path", event.Name, "error", err)
				}
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
			pending = timer.C

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return fmt.Errorf("watcher closed")
			}
			w.logger.Warn("watch error", "error", err)

		case <-pending:
			pending = nil
			w.logger.Debug("filesystem settled, reconciling", "root", w.root)
			if err := w.reconcile(); err != nil {
				return fmt.Errorf("reconciling %s: %w", w.root, err)
			}
		}
	}
}

func (w *TreeWatcher) maybeWatchDir(path string) error {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return err
	}
	if strings.HasSuffix(info.Name(), treefs.BundleSuffix) {
		return nil
	}
	return w.addRecursive(path)
}

// Close releases the underlying watcher.
func (w *TreeWatcher) Close() error {
	return w.fsw.Close()
}
