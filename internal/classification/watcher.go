package classification

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Holder publishes the current registry for concurrent readers.
type Holder struct {
	path string
	cur  atomic.Pointer[Registry]
}

// NewHolder loads path into a new holder.
func NewHolder(path string) (*Holder, error) {
	h := &Holder{path: path}
	if err := h.Reload(); err != nil {
		return nil, err
	}
	return h, nil
}

// Static wraps an already-built registry. Reload is a no-op.
func Static(r *Registry) *Holder {
	h := &Holder{}
	h.cur.Store(r)
	return h
}

// Registry returns the current registry.
func (h *Holder) Registry() *Registry {
	return h.cur.Load()
}

// Path returns the watched file path.
func (h *Holder) Path() string { return h.path }

// Reload re-reads the registry file. On error the previous registry stays live.
func (h *Holder) Reload() error {
	if h.path == "" {
		return nil
	}
	r, err := Load(h.path)
	if err != nil {
		return err
	}
	h.cur.Store(r)
	return nil
}

// Watcher reloads a Holder when its file changes.
type Watcher struct {
	watcher  *fsnotify.Watcher
	holder   *Holder
	debounce time.Duration
}

// NewWatcher watches the holder's file. A missing file is not watched.
func NewWatcher(h *Holder) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if h.path != "" {
		if _, err := os.Stat(h.path); err == nil {
			if err := fw.Add(h.path); err != nil {
				fw.Close()
				return nil, fmt.Errorf("failed to watch %q: %w", h.path, err)
			}
		}
	}
	return &Watcher{watcher: fw, holder: h, debounce: 500 * time.Millisecond}, nil
}

// Run watches for writes and reloads. Blocks until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	var debounce *time.Timer
	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(w.debounce, func() {
					if err := w.holder.Reload(); err != nil {
						fmt.Fprintf(os.Stderr, "classification: reload failed: %v\n", err)
					} else {
						fmt.Fprintf(os.Stderr, "classification: reloaded %d tools\n", w.holder.Registry().Len())
					}
				})
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(os.Stderr, "classification: watcher error: %v\n", err)
		}
	}
}
