package vectorize

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/spetr/dirvec/pkg/provider"
	"github.com/spetr/dirvec/pkg/types"
)

// Watcher watches a project tree and keeps its embedding records current:
// changed files are re-vectorized, deleted paths are removed, and the
// aggregate records of every ancestor directory are invalidated so the next
// pass recomputes them.
type Watcher struct {
	orchestrator *Orchestrator
	store        provider.VectorStore
	root         string
	exclude      []string

	watcher *fsnotify.Watcher

	// Debouncing
	pendingMu    sync.Mutex
	pendingFiles map[string]time.Time
	debounceTime time.Duration
}

// WatcherConfig contains watcher configuration.
type WatcherConfig struct {
	Root         string
	Orchestrator *Orchestrator
	Store        provider.VectorStore
	Exclude      []string
	DebounceTime time.Duration // Default: 500ms
}

// NewWatcher creates a new file watcher.
func NewWatcher(cfg WatcherConfig) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	debounceTime := cfg.DebounceTime
	if debounceTime == 0 {
		debounceTime = 500 * time.Millisecond
	}

	return &Watcher{
		orchestrator: cfg.Orchestrator,
		store:        cfg.Store,
		root:         filepath.Clean(cfg.Root),
		exclude:      cfg.Exclude,
		watcher:      watcher,
		pendingFiles: make(map[string]time.Time),
		debounceTime: debounceTime,
	}, nil
}

// Watch starts watching for file changes.
// It blocks until the context is cancelled.
func (w *Watcher) Watch(ctx context.Context) error {
	if err := w.addWatchDirs(); err != nil {
		return err
	}

	slog.Info("watching for file changes", "dir", w.root)

	go w.processDebounced(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("stopping watcher")
			return w.watcher.Close()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watcher error", "error", err)
		}
	}
}

// addWatchDirs recursively adds directories to watch.
func (w *Watcher) addWatchDirs() error {
	return filepath.WalkDir(w.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}

		if d.IsDir() {
			name := d.Name()
			if path != w.root && (strings.HasPrefix(name, ".") || dependencyDirs[name]) {
				return filepath.SkipDir
			}
			relPath, _ := filepath.Rel(w.root, path)
			if path != w.root {
				for _, pattern := range w.exclude {
					if matchGlob(pattern, relPath+"/") || matchGlob(pattern, relPath) {
						return filepath.SkipDir
					}
				}
			}

			if err := w.watcher.Add(path); err != nil {
				slog.Warn("failed to watch directory", "path", path, "error", err)
			}
		}
		return nil
	})
}

// handleEvent records a relevant file system event for debounced processing.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}

	path := event.Name
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") || dependencyDirs[base] {
		return
	}

	relPath, err := filepath.Rel(w.root, path)
	if err != nil {
		return
	}
	for _, pattern := range w.exclude {
		if matchGlob(pattern, relPath) {
			return
		}
	}

	w.pendingMu.Lock()
	w.pendingFiles[path] = time.Now()
	w.pendingMu.Unlock()

	slog.Debug("file changed", "path", relPath, "op", event.Op.String())
}

// processDebounced processes pending files after the debounce period.
func (w *Watcher) processDebounced(ctx context.Context) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.processPendingFiles(ctx)
		}
	}
}

// processPendingFiles processes paths that have been stable for the debounce
// period.
func (w *Watcher) processPendingFiles(ctx context.Context) {
	w.pendingMu.Lock()
	now := time.Now()
	var toProcess []string
	for path, changedAt := range w.pendingFiles {
		if now.Sub(changedAt) >= w.debounceTime {
			toProcess = append(toProcess, path)
			delete(w.pendingFiles, path)
		}
	}
	w.pendingMu.Unlock()

	if len(toProcess) == 0 {
		return
	}

	slog.Info("processing changed paths", "count", len(toProcess))
	for _, path := range toProcess {
		if ctx.Err() != nil {
			return
		}
		w.refreshPath(ctx, path)
	}
}

// refreshPath re-vectorizes one changed path and invalidates the aggregate
// records of its ancestors.
func (w *Watcher) refreshPath(ctx context.Context, path string) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		if err := w.store.DeleteByPath(path); err != nil {
			slog.Warn("failed to remove deleted path", "path", path, "error", err)
			return
		}
		slog.Info("removed deleted path", "path", path)
		w.invalidateAncestors(path)
		return
	}
	if err != nil {
		slog.Warn("failed to stat path", "path", path, "error", err)
		return
	}

	if info.IsDir() {
		// New directory: watch it so its files report events.
		if err := w.watcher.Add(path); err != nil {
			slog.Debug("failed to watch new directory", "path", path, "error", err)
		}
		return
	}

	// Drop stale records so the diffing policy sees the file as unprocessed.
	if err := w.store.DeleteByPath(path); err != nil {
		slog.Warn("failed to drop stale records", "path", path, "error", err)
		return
	}
	if _, err := w.orchestrator.VectorizeFile(ctx, path); err != nil {
		slog.Warn("failed to re-vectorize file", "path", path, "error", err)
		return
	}
	slog.Info("re-vectorized changed file", "path", path)

	w.invalidateAncestors(path)
}

// invalidateAncestors deletes the aggregate records of every directory
// between path and the watch root. Their sums no longer reflect the subtree;
// the next vectorization pass recreates them.
func (w *Watcher) invalidateAncestors(path string) {
	for dir := filepath.Dir(path); strings.HasPrefix(dir, w.root) && dir != w.root; dir = filepath.Dir(dir) {
		for _, kind := range []types.ItemKind{types.KindVsOrigin, types.KindVsSummarize} {
			if err := w.store.DeleteByPathKind(dir, kind); err != nil {
				slog.Warn("failed to invalidate aggregate", "path", dir, "kind", kind, "error", err)
			}
		}
	}
}
