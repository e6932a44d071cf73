package config

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	. "github.com/roelfdiedericks/wamcp/internal/logging"
)

const defaultDebounce = 250 * time.Millisecond

// Watcher reloads the config file when it changes on disk and hands the
// result to onChange. Invalid reloads are logged and skipped.
type Watcher struct {
	watcher      *fsnotify.Watcher
	opts         LoadOptions
	file         string
	debounce     time.Duration
	onChange     func(*Config)
	stopCh       chan struct{}
	stopOnce     sync.Once
	mu           sync.Mutex
	pendingTimer *time.Timer
}

// NewWatcher watches opts.Path. The parent directory is watched rather than
// the file so editors that save by rename are still seen.
func NewWatcher(opts LoadOptions, debounce time.Duration, onChange func(*Config)) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = defaultDebounce
	}

	abs, err := filepath.Abs(opts.Path)
	if err != nil {
		fsWatcher.Close()
		return nil, err
	}
	if err := fsWatcher.Add(filepath.Dir(abs)); err != nil {
		fsWatcher.Close()
		return nil, err
	}
	opts.Path = abs

	L_debug("config: watching", "path", abs)
	return &Watcher{
		watcher:  fsWatcher,
		opts:     opts,
		file:     abs,
		debounce: debounce,
		onChange: onChange,
		stopCh:   make(chan struct{}),
	}, nil
}

// Start begins watching for file changes.
// This spawns a goroutine internally.
func (w *Watcher) Start() {
	go w.run()
}

func (w *Watcher) run() {
	for {
		select {
		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.file {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			L_trace("config: file event", "path", event.Name, "op", event.Op.String())
			w.triggerReload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			L_warn("config: watcher error", "error", err)
		}
	}
}

// triggerReload schedules a reload with debouncing.
func (w *Watcher) triggerReload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.pendingTimer != nil {
		w.pendingTimer.Stop()
	}
	w.pendingTimer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	w.mu.Lock()
	w.pendingTimer = nil
	w.mu.Unlock()

	res, err := Load(w.opts)
	if err != nil {
		L_warn("config: reload failed, keeping current settings", "error", err)
		return
	}
	if err := res.Config.Validate(); err != nil {
		L_warn("config: reloaded config invalid, keeping current settings", "error", err)
		return
	}

	L_info("config: reloaded", "path", w.file)
	if w.onChange != nil {
		w.onChange(res.Config)
	}
}

// Stop stops watching for changes.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.stopCh)

		w.mu.Lock()
		if w.pendingTimer != nil {
			w.pendingTimer.Stop()
		}
		w.mu.Unlock()

		err = w.watcher.Close()
	})
	return err
}
