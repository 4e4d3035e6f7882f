package watcher

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"swgconf/internal/logger"
)

type recorder struct {
	mu      sync.Mutex
	changes map[string][]string
	notify  chan struct{}
}

func (r *recorder) callback(path, op string) {
	r.mu.Lock()
	r.changes[path] = append(r.changes[path], op)
	r.mu.Unlock()
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

func (r *recorder) get(path string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.changes[path]...)
}

func waitFor(t *testing.T, r *recorder, path string) []string {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		if ops := r.get(path); len(ops) > 0 {
			return ops
		}
		select {
		case <-r.notify:
		case <-deadline:
			t.Fatalf("Timed out waiting for change on %s", path)
		}
	}
}

func TestWatcherDebouncesLuaChanges(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "player_manager.lua")
	if err := os.WriteFile(file, []byte("x = 1\n"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	r := &recorder{changes: make(map[string][]string), notify: make(chan struct{}, 1)}
	w := New([]string{dir, filepath.Join(dir, "missing")}, 50*time.Millisecond, logger.New(), r.callback)
	if err := w.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	// 连续多次写入只通知一次
	for i := 0; i < 5; i++ {
		if err := os.WriteFile(file, []byte("x = 2\n"), 0644); err != nil {
			t.Fatalf("WriteFile failed: %v", err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	ops := waitFor(t, r, file)
	if len(ops) != 1 || ops[0] != OpWrite {
		t.Fatalf("Expected a single write notification, got %v", ops)
	}
	if got := r.get(filepath.Join(dir, "notes.txt")); len(got) != 0 {
		t.Errorf("Non-lua file should be ignored, got %v", got)
	}
}

func TestWatcherFollowsNewDirectories(t *testing.T) {
	dir := t.TempDir()
	r := &recorder{changes: make(map[string][]string), notify: make(chan struct{}, 1)}
	w := New([]string{dir}, 50*time.Millisecond, logger.New(), r.callback)
	if err := w.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	sub := filepath.Join(dir, "sub")
	if err := os.Mkdir(sub, 0755); err != nil {
		t.Fatalf("Mkdir failed: %v", err)
	}
	// 等待目录被加入监控
	time.Sleep(200 * time.Millisecond)

	file := filepath.Join(sub, "new.lua")
	if err := os.WriteFile(file, []byte("y = 1\n"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	ops := waitFor(t, r, file)
	if ops[0] != OpCreate {
		t.Fatalf("Expected create, got %v", ops)
	}
}
