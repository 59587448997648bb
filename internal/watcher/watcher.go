// Package watcher feeds filesystem changes into the ingestion pipeline:
// created or modified files are re-ingested, removed files are soft-deleted.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Write bursts (editors, partial flushes) settle within this window before a
// file is handed to the pipeline.
const defaultDebounce = 400 * time.Millisecond

// Watcher watches directory trees recursively and invokes callbacks on file
// changes, debounced per path.
type Watcher struct {
	roots      []string
	extensions []string
	onChange   func(path string)
	onRemove   func(path string)
	logger     *zap.Logger

	fsw      *fsnotify.Watcher
	mu       sync.Mutex
	pending  map[string]*time.Timer
	debounce time.Duration
	started  bool
}

// New creates a watcher over roots. extensions filters which files trigger
// callbacks (empty means all); onChange and onRemove receive absolute paths.
func New(roots, extensions []string, onChange, onRemove func(path string), logger *zap.Logger) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		roots:      roots,
		extensions: extensions,
		onChange:   onChange,
		onRemove:   onRemove,
		logger:     logger,
		pending:    make(map[string]*time.Timer),
		debounce:   defaultDebounce,
	}
}

// Start registers all roots (creating them if absent) and begins dispatching
// events until ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return nil
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.fsw = fsw
	for _, root := range w.roots {
		if err := w.watchTree(root); err != nil {
			fsw.Close()
			w.fsw = nil
			return err
		}
	}
	w.started = true
	go w.run(ctx, fsw)
	return nil
}

// SyncExisting invokes onChange for every matching file already present
// under the watched roots. Call after Start to pick up files that predate
// the watcher.
func (w *Watcher) SyncExisting() {
	for _, root := range w.roots {
		filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return err
			}
			if w.matches(path) && w.onChange != nil {
				w.onChange(path)
			}
			return nil
		})
	}
}

// run drains events from its own watcher handle. Stop may nil w.fsw at any
// time, so the handle is captured here; closing it ends both channels and
// the loop exits on ok=false.
func (w *Watcher) run(ctx context.Context, fsw *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Debug("watch error", zap.Error(err))
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	switch {
	case ev.Op.Has(fsnotify.Create), ev.Op.Has(fsnotify.Write):
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			w.mu.Lock()
			if err := w.watchTree(ev.Name); err != nil {
				w.logger.Debug("watch new directory failed", zap.String("path", ev.Name), zap.Error(err))
			}
			w.mu.Unlock()
			return
		}
		if w.matches(ev.Name) {
			w.schedule(ev.Name)
		}
	case ev.Op.Has(fsnotify.Remove), ev.Op.Has(fsnotify.Rename):
		w.cancel(ev.Name)
		if w.matches(ev.Name) && w.onRemove != nil {
			w.onRemove(ev.Name)
		}
	}
}

// watchTree registers root and every subdirectory. Caller holds w.mu. A nil
// w.fsw means Stop won the race against an in-flight event; nothing to register.
func (w *Watcher) watchTree(root string) error {
	if w.fsw == nil {
		return nil
	}
	root = filepath.Clean(root)
	if err := os.MkdirAll(root, 0755); err != nil {
		return err
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		return w.fsw.Add(path)
	})
}

func (w *Watcher) matches(path string) bool {
	if len(w.extensions) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range w.extensions {
		if strings.ToLower(e) == ext {
			return true
		}
	}
	return false
}

func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Stop()
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		if w.onChange != nil {
			w.onChange(path)
		}
	})
}

func (w *Watcher) cancel(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Stop()
		delete(w.pending, path)
	}
}

// Stop releases the filesystem watcher and cancels pending debounces.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started {
		return
	}
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
	w.fsw.Close()
	w.fsw = nil
	w.started = false
}
