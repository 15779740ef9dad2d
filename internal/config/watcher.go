package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tiny-dfr/tiny-dfr/internal/logger"
)

// rearmInterval is how often a missing override directory is re-checked.
const rearmInterval = 5 * time.Second

// Watcher reports changes to the override file. Notifications are coalesced:
// any number of filesystem events between two reads of Changes produce a
// single wake.
type Watcher struct {
	path    string
	dir     string
	fsw     *fsnotify.Watcher
	changes chan struct{}

	mu     sync.Mutex
	armed  bool
	closed bool
}

// NewWatcher creates a watcher for path. The file and its directory need not
// exist yet.
func NewWatcher(path string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		path:    filepath.Clean(path),
		dir:     filepath.Dir(path),
		fsw:     fsw,
		changes: make(chan struct{}, 1),
	}
	w.arm()
	return w, nil
}

// Changes returns the wake channel.
func (w *Watcher) Changes() <-chan struct{} {
	return w.changes
}

// Run forwards filesystem events until ctx is cancelled or the watcher is
// closed.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(rearmInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logger.Warnf("Config watcher error: %v", err)
		case <-ticker.C:
			if !w.isArmed() && w.arm() {
				// The directory appeared since we last looked; the file may
				// already be in place.
				w.notify()
			}
		}
	}
}

// Close stops the underlying inotify watch.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	return w.fsw.Close()
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if filepath.Clean(ev.Name) == w.dir && ev.Has(fsnotify.Remove|fsnotify.Rename) {
		w.mu.Lock()
		w.armed = false
		w.mu.Unlock()
		return
	}
	if filepath.Clean(ev.Name) != w.path {
		return
	}
	if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) || ev.Has(fsnotify.Remove) {
		logger.Debug("Config file changed", "path", ev.Name, "op", ev.Op.String())
		w.notify()
	}
}

func (w *Watcher) notify() {
	select {
	case w.changes <- struct{}{}:
	default:
	}
}

func (w *Watcher) isArmed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.armed
}

func (w *Watcher) arm() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || w.armed {
		return false
	}
	if err := w.fsw.Add(w.dir); err != nil {
		logger.Debugf("Config directory %s not watchable yet: %v", w.dir, err)
		return false
	}
	w.armed = true
	return true
}
