package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	_const "swgconf/internal/const"
	"swgconf/internal/logger"
)

// 事件类型
const (
	OpWrite  = "write"
	OpCreate = "create"
	OpRemove = "remove"
	OpRename = "rename"
)

// ChangeCallback is called once per file after its events settle
type ChangeCallback func(path string, op string)

// Watcher watches the configuration directories for .lua file changes
type Watcher struct {
	dirs     []string
	debounce time.Duration
	logger   *logger.Logger
	callback ChangeCallback
	watcher  *fsnotify.Watcher
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	pending  map[string]*pendingChange
	mutex    sync.Mutex
}

// pendingChange is the last event seen for a file that has not settled yet
type pendingChange struct {
	op   string
	last time.Time
}

// New creates a new watcher
func New(dirs []string, debounce time.Duration, logger *logger.Logger, callback ChangeCallback) *Watcher {
	ctx, cancel := context.WithCancel(context.Background())
	if debounce <= 0 {
		debounce = _const.DefaultWatchDebounceMS * time.Millisecond
	}

	return &Watcher{
		dirs:     dirs,
		debounce: debounce,
		logger:   logger,
		callback: callback,
		ctx:      ctx,
		cancel:   cancel,
		pending:  make(map[string]*pendingChange),
	}
}

// Start adds every existing directory tree to the watcher and starts the
// event loop. Missing directories are skipped with a warning.
func (w *Watcher) Start() error {
	var err error
	w.watcher, err = fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}

	watched := 0
	for _, dir := range w.dirs {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			w.logger.Warn("Config directory does not exist: %s", dir)
			continue
		}
		if err := w.addTree(dir); err != nil {
			w.logger.Warn("Failed to watch %s: %v", dir, err)
			continue
		}
		watched++
	}
	w.logger.Info("Watching %d config directories", watched)

	w.wg.Add(1)
	go w.monitorLoop()

	return nil
}

// Stop stops the watcher
func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}

	if w.watcher != nil {
		w.watcher.Close()
	}

	w.wg.Wait()
	w.logger.Info("Config watcher stopped")
}

// addTree watches dir and all of its subdirectories
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.watcher.Add(path); err != nil {
			return err
		}
		w.logger.Debug("Watching directory: %s", path)
		return nil
	})
}

// monitorLoop is the main monitoring loop
func (w *Watcher) monitorLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.debounce / 2)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("File watcher error: %v", err)
		case now := <-ticker.C:
			w.flush(now)
		}
	}
}

// handleEvent records an event for debouncing
func (w *Watcher) handleEvent(event fsnotify.Event) {
	// 新建的子目录也要加入监控
	if event.Op&fsnotify.Create == fsnotify.Create {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(event.Name); err != nil {
				w.logger.Warn("Failed to watch new directory %s: %v", event.Name, err)
			}
			return
		}
	}

	if !strings.EqualFold(filepath.Ext(event.Name), _const.LuaExtension) {
		return
	}

	var op string
	switch {
	case event.Op&fsnotify.Remove == fsnotify.Remove:
		op = OpRemove
	case event.Op&fsnotify.Rename == fsnotify.Rename:
		op = OpRename
	case event.Op&fsnotify.Create == fsnotify.Create:
		op = OpCreate
	case event.Op&fsnotify.Write == fsnotify.Write:
		op = OpWrite
	default:
		return
	}

	w.mutex.Lock()
	defer w.mutex.Unlock()
	if p, ok := w.pending[event.Name]; ok {
		// 新建后紧跟写入仍视为新建
		if !(p.op == OpCreate && op == OpWrite) {
			p.op = op
		}
		p.last = time.Now()
		return
	}
	w.pending[event.Name] = &pendingChange{op: op, last: time.Now()}
}

// flush reports every file whose last event is older than the debounce window
func (w *Watcher) flush(now time.Time) {
	type change struct{ path, op string }
	var ready []change

	w.mutex.Lock()
	for path, p := range w.pending {
		if now.Sub(p.last) >= w.debounce {
			ready = append(ready, change{path, p.op})
			delete(w.pending, path)
		}
	}
	w.mutex.Unlock()

	for _, c := range ready {
		w.logger.Debug("Config file %s: %s", c.op, c.path)
		if w.callback != nil {
			w.callback(c.path, c.op)
		}
	}
}
