// Package watch runs a handler for every statement CSV dropped into an
// inbox directory once the file stops changing.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	DebounceDefault = 500 * time.Millisecond
	tickInterval    = 100 * time.Millisecond
	dirMode         = 0700
)

// Handler processes one settled file.
type Handler func(ctx context.Context, path string) error

// Stats counts what the watcher has seen.
type Stats struct {
	Events    int       `json:"events" yaml:"events"`
	Processed int       `json:"processed" yaml:"processed"`
	Errors    int       `json:"errors" yaml:"errors"`
	LastPath  string    `json:"last_path,omitempty" yaml:"lastPath,omitempty"`
	LastEvent time.Time `json:"last_event,omitempty" yaml:"lastEvent,omitempty"`
}

// Watcher watches a single directory, non-recursively.
type Watcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	dir         string
	handler     Handler
	debounceDur time.Duration
	pending     map[string]time.Time
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
	stopped     bool
	stats       Stats
}

// New creates a watcher for dir. A zero debounce uses DebounceDefault.
func New(dir string, debounce time.Duration, h Handler) (*Watcher, error) {
	if dir == "" {
		return nil, errors.New("watch directory required")
	}
	if h == nil {
		return nil, errors.New("watch handler required")
	}
	if debounce <= 0 {
		debounce = DebounceDefault
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	return &Watcher{
		watcher:     fw,
		dir:         dir,
		handler:     h,
		debounceDur: debounce,
		pending:     make(map[string]time.Time),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start begins watching. It returns once the directory is being watched.
// A watcher cannot be restarted after Stop.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return errors.New("watcher stopped")
	}
	if w.running {
		return nil
	}

	if err := os.MkdirAll(w.dir, dirMode); err != nil {
		return fmt.Errorf("creating watch dir %s: %w", w.dir, err)
	}
	if err := w.watcher.Add(w.dir); err != nil {
		return fmt.Errorf("watching %s: %w", w.dir, err)
	}

	w.running = true
	slog.Info("watching for statements", "dir", w.dir)
	go w.run(ctx)
	return nil
}

// Stop ends watching and waits for an in-flight handler to return.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	wasRunning := w.running
	w.running = false
	w.stopped = true
	w.mu.Unlock()

	close(w.stopCh)
	if wasRunning {
		<-w.doneCh
	}

	if err := w.watcher.Close(); err != nil {
		slog.Error("error closing watcher", "error", err)
	}
	slog.Debug("watcher stopped", "dir", w.dir)
}

// Stats returns a snapshot of the counters.
func (w *Watcher) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("watch error", "error", err)
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()
		case <-ticker.C:
			w.processSettled(ctx)
		}
	}
}

// IsStatement reports whether path looks like a statement export.
func IsStatement(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") || strings.HasPrefix(base, "~") {
		return false
	}
	return strings.EqualFold(filepath.Ext(base), ".csv")
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	if !IsStatement(ev.Name) {
		return
	}
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return
	}

	slog.Debug("watch event", "op", ev.Op.String(), "path", ev.Name)

	w.mu.Lock()
	w.stats.Events++
	w.stats.LastPath = ev.Name
	w.stats.LastEvent = time.Now()
	w.pending[ev.Name] = time.Now()
	w.mu.Unlock()
}

func (w *Watcher) processSettled(ctx context.Context) {
	w.mu.Lock()
	now := time.Now()
	ready := make([]string, 0)
	for p, t := range w.pending {
		if now.Sub(t) >= w.debounceDur {
			ready = append(ready, p)
			delete(w.pending, p)
		}
	}
	w.mu.Unlock()

	for _, p := range ready {
		if _, err := os.Stat(p); err != nil {
			slog.Debug("skipping vanished file", "path", p)
			continue
		}
		err := w.handler(ctx, p)
		w.mu.Lock()
		if err != nil {
			w.stats.Errors++
		} else {
			w.stats.Processed++
		}
		w.mu.Unlock()
		if err != nil {
			slog.Error("failed to process statement", "path", p, "error", err)
		}
	}
}
