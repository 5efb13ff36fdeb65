// Package watcher reloads the config file when it changes on disk.
package watcher

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ctc-ai/ctc_ai_ui/internal/config"
)

// Event carries a freshly loaded and validated config.
type Event struct {
	Path   string
	Config *config.Config
}

// Watcher monitors one config file and emits a reloaded config after each
// burst of writes.
type Watcher struct {
	path string
	dir  string

	fsWatcher *fsnotify.Watcher
	events    chan Event
	errors    chan error
	done      chan struct{}
	closeOnce sync.Once // Ensures done channel is only closed once

	delay time.Duration

	wg sync.WaitGroup
}

const (
	defaultDebounceDelay = 100 * time.Millisecond
	defaultEventsBuffer  = 10
	defaultErrorsBuffer  = 10
)

// New creates a config watcher using the default debounce delay (100ms).
func New(path string) (*Watcher, error) {
	return NewWithDebounceDelay(path, defaultDebounceDelay)
}

// NewWithDebounceDelay creates a config watcher that reloads once writes have
// been quiet for delay. A non-positive delay uses the default. The file does
// not have to exist yet.
func NewWithDebounceDelay(path string, delay time.Duration) (*Watcher, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is required")
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("abs config path: %w", err)
	}
	dir := filepath.Dir(absPath)

	// Watch the directory: editors often replace the file by rename.
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("ensure config dir exists: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	if delay <= 0 {
		delay = defaultDebounceDelay
	}
	w := &Watcher{
		path:      absPath,
		dir:       dir,
		fsWatcher: fsw,
		events:    make(chan Event, defaultEventsBuffer),
		errors:    make(chan error, defaultErrorsBuffer),
		done:      make(chan struct{}),
		delay:     delay,
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run()
	}()

	return w, nil
}

// Path returns the absolute path being watched.
func (w *Watcher) Path() string { return w.path }

func (w *Watcher) run() {
	defer close(w.events)
	defer close(w.errors)

	// Every relevant event pushes the reload back by delay, so a burst of
	// writes is read once, after it settles.
	reload := time.NewTimer(w.delay)
	reload.Stop()
	defer reload.Stop()

	for {
		select {
		case <-w.done:
			return
		case evt, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if !w.relevant(evt) {
				continue
			}
			reload.Reset(w.delay)
		case <-reload.C:
			w.reload()
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.emitError(err)
		}
	}
}

// relevant reports whether evt may have changed the config contents.
// Removal keeps the current config.
func (w *Watcher) relevant(evt fsnotify.Event) bool {
	if filepath.Clean(evt.Name) != w.path {
		return false
	}
	return evt.Op&(fsnotify.Create|fsnotify.Write) != 0
}

func (w *Watcher) reload() {
	if _, err := os.Stat(w.path); err != nil {
		// Replaced by rename and not recreated yet; the Create will follow.
		return
	}
	cfg, err := config.LoadFrom(w.path)
	if err != nil {
		w.emitError(fmt.Errorf("reload config: %w", err))
		return
	}
	w.emitEvent(Event{Path: w.path, Config: cfg})
}

// Events returns a channel of reloaded configs.
func (w *Watcher) Events() <-chan Event { return w.events }

// Errors returns a channel of watcher and reload errors.
func (w *Watcher) Errors() <-chan error { return w.errors }

// Close stops the watcher and releases OS resources.
func (w *Watcher) Close() error {
	if w == nil {
		return nil
	}

	w.closeOnce.Do(func() {
		close(w.done)
	})

	// Closing the underlying watcher unblocks the run loop.
	err := w.fsWatcher.Close()
	w.wg.Wait()
	return err
}

func (w *Watcher) emitEvent(e Event) {
	select {
	case w.events <- e:
	default:
		// Best-effort: drop if consumer is stalled.
	}
}

func (w *Watcher) emitError(err error) {
	select {
	case w.errors <- err:
	default:
		// Best-effort: drop if consumer is stalled.
	}
}
