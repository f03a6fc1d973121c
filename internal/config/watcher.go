package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce is how long the watcher waits for writes to settle.
const DefaultDebounce = 300 * time.Millisecond

// WatcherConfig holds config file watcher settings.
type WatcherConfig struct {
	Path     string
	Debounce time.Duration
	// Reload loads the configuration after a change. Defaults to Load(Path).
	Reload func(path string) (*Config, error)
	// OnChange receives each successfully reloaded configuration.
	OnChange func(cfg *Config)
	Logger   *zap.Logger
}

// Watcher reloads the config file when it changes on disk.
type Watcher struct {
	config    WatcherConfig
	fsWatcher *fsnotify.Watcher
	debouncer *debouncer
	log       *zap.Logger
	target    string
	mu        sync.Mutex
	running   bool
	done      chan struct{}
}

// NewWatcher creates a watcher for a single config file. The file does not
// have to exist yet; its directory does.
func NewWatcher(cfg WatcherConfig) (*Watcher, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("config path is required")
	}
	target, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, err
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.Reload == nil {
		cfg.Reload = Load
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	w := &Watcher{
		config:    cfg,
		fsWatcher: fsWatcher,
		log:       log.Named("config"),
		target:    target,
		done:      make(chan struct{}),
	}
	w.debouncer = newDebouncer(cfg.Debounce, w.reload)
	return w, nil
}

// Start begins watching.
func (w *Watcher) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("watcher already running")
	}
	w.running = true
	w.mu.Unlock()

	// Editors replace files on save, so watch the directory.
	dir := filepath.Dir(w.target)
	if err := w.fsWatcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	w.log.Debug("watching config", zap.String("path", w.target))

	go w.eventLoop()
	return nil
}

// Stop stops the watcher and waits for its event loop to exit.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		// Never started: release the fsnotify handle.
		return w.fsWatcher.Close()
	}
	w.running = false
	w.mu.Unlock()

	w.debouncer.stop()
	if err := w.fsWatcher.Close(); err != nil {
		return err
	}
	<-w.done
	return nil
}

func (w *Watcher) eventLoop() {
	defer close(w.done)

	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.log.Debug("config event", zap.Stringer("op", event.Op))
			w.debouncer.trigger()

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := w.config.Reload(w.target)
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		w.log.Warn("config reload failed", zap.Error(err))
		return
	}
	w.log.Info("config reloaded", zap.String("path", w.target))
	if w.config.OnChange != nil {
		w.config.OnChange(cfg)
	}
}

// debouncer debounces events to prevent excessive triggers.
type debouncer struct {
	delay    time.Duration
	callback func()
	timer    *time.Timer
	mu       sync.Mutex
}

func newDebouncer(delay time.Duration, callback func()) *debouncer {
	return &debouncer{
		delay:    delay,
		callback: callback,
	}
}

// trigger restarts the delay timer.
func (d *debouncer) trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.callback)
}

func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
