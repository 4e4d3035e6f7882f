package snapshot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	_const "swgconf/internal/const"
	"swgconf/internal/logger"
	"swgconf/model"
)

// failingFS fails every CopyFile whose destination is under failPrefix.
type failingFS struct {
	*OSFS
	failPrefix string
}

func (f *failingFS) CopyFile(src, dst string) error {
	if strings.HasPrefix(dst, f.failPrefix) {
		return fmt.Errorf("open %s: permission denied", dst)
	}
	return f.OSFS.CopyFile(src, dst)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}
}

type fixture struct {
	root     string
	registry []model.ConfigSource
	store    *Store
}

// newFixture creates entry A with three files and entry B whose source
// directory does not exist.
func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	tmpDir := t.TempDir()
	project := filepath.Join(tmpDir, "project")
	writeFile(t, filepath.Join(project, "a", "player_manager.lua"), "performanceBuff = 1500\n")
	writeFile(t, filepath.Join(project, "a", "loot.lua"), "lootChance = 0.1\n")
	writeFile(t, filepath.Join(project, "a", "sub", "nested.lua"), "x = 1\n")

	registry, err := ResolveRegistry(project, []model.ConfigSource{
		{Source: "a", Dest: "A"},
		{Source: "b", Dest: "B"},
	})
	if err != nil {
		t.Fatalf("ResolveRegistry failed: %v", err)
	}

	root := filepath.Join(tmpDir, "configurations")
	store, err := Open(root, registry, logger.New(), opts...)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return &fixture{root: root, registry: registry, store: store}
}

func TestOpenCreatesEmptyLedger(t *testing.T) {
	f := newFixture(t)
	data, err := os.ReadFile(filepath.Join(f.root, _const.LedgerFileName))
	if err != nil {
		t.Fatalf("Ledger not created: %v", err)
	}
	if !strings.Contains(string(data), `"configurations": []`) {
		t.Fatalf("Unexpected ledger content: %s", data)
	}

	entries, err := os.ReadDir(f.root)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	for _, e := range entries {
		if e.Name() != _const.LedgerFileName {
			t.Errorf("Unexpected file at snapshot root: %s", e.Name())
		}
	}
}

func TestSaveWithMissingSource(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.store.Save(ctx, "baseline", "first")
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if len(result.Skipped) != 1 || result.Skipped[0] != "B" {
		t.Errorf("Expected entry B to be skipped, got %v", result.Skipped)
	}
	if result.Partial || len(result.Failures) != 0 {
		t.Errorf("Expected no failures, got %+v", result.Failures)
	}

	want := []string{"A/loot.lua", "A/player_manager.lua", "A/sub/nested.lua"}
	if len(result.Snapshot.Files) != len(want) {
		t.Fatalf("Expected files %v, got %v", want, result.Snapshot.Files)
	}
	for i := range want {
		if result.Snapshot.Files[i] != want[i] {
			t.Errorf("Expected files %v, got %v", want, result.Snapshot.Files)
			break
		}
	}

	copied := filepath.Join(f.root, result.Snapshot.ID, "A", "sub", "nested.lua")
	if data, err := os.ReadFile(copied); err != nil || string(data) != "x = 1\n" {
		t.Errorf("Snapshot file not copied: %v %q", err, data)
	}
	if _, err := os.Stat(filepath.Join(f.root, result.Snapshot.ID, "B")); !os.IsNotExist(err) {
		t.Errorf("Skipped entry should not have a directory, got %v", err)
	}
}

func TestEndToEndBaseline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	saved, err := f.store.Save(ctx, "baseline", "")
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if len(saved.Snapshot.Files) != 3 {
		t.Fatalf("Expected 3 files, got %d", len(saved.Snapshot.Files))
	}

	list, err := f.store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 1 || list[0].ID != saved.Snapshot.ID || list[0].Name != "baseline" {
		t.Fatalf("Unexpected list: %+v", list)
	}

	id := saved.Snapshot.ID
	removed, err := f.store.Delete(ctx, id)
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if removed.Name != "baseline" {
		t.Errorf("Expected deleted record to be returned, got %+v", removed)
	}
	if _, err := os.Stat(filepath.Join(f.root, id)); !os.IsNotExist(err) {
		t.Errorf("Snapshot directory should be gone, got %v", err)
	}

	if _, err := f.store.Apply(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
	if _, err := f.store.Delete(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected ErrNotFound on second delete, got %v", err)
	}
	if _, err := f.store.Update(ctx, id, model.SnapshotUpdate{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected ErrNotFound on update, got %v", err)
	}
}

func TestApplyRestoresFiles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	saved, err := f.store.Save(ctx, "baseline", "")
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	live := filepath.Join(f.registry[0].Source, "player_manager.lua")
	writeFile(t, live, "performanceBuff = 9999\n")

	result, err := f.store.Apply(ctx, saved.Snapshot.ID)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if !result.Success || result.Partial {
		t.Fatalf("Expected full success, got %+v", result)
	}
	if len(result.Details.Success) != 3 {
		t.Errorf("Expected 3 copied files, got %v", result.Details.Success)
	}
	if !strings.Contains(result.Message, "applied successfully. 3 files copied.") {
		t.Errorf("Unexpected message %q", result.Message)
	}
	if data, _ := os.ReadFile(live); string(data) != "performanceBuff = 1500\n" {
		t.Errorf("Live file not restored, got %q", data)
	}
}

func TestApplyPartial(t *testing.T) {
	tmpDir := t.TempDir()
	project := filepath.Join(tmpDir, "project")
	writeFile(t, filepath.Join(project, "a", "one.lua"), "a = 1\n")
	writeFile(t, filepath.Join(project, "a", "two.lua"), "a = 2\n")
	writeFile(t, filepath.Join(project, "b", "three.lua"), "b = 3\n")

	registry, err := ResolveRegistry(project, []model.ConfigSource{
		{Source: "a", Dest: "A"},
		{Source: "b", Dest: "B"},
	})
	if err != nil {
		t.Fatalf("ResolveRegistry failed: %v", err)
	}
	fsys := &failingFS{OSFS: NewOSFS()}
	store, err := Open(filepath.Join(tmpDir, "configurations"), registry, logger.New(), WithFileSystem(fsys))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	ctx := context.Background()
	saved, err := store.Save(ctx, "two entries", "")
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// 恢复时 B 的目标目录不可写
	fsys.failPrefix = registry[1].Source
	result, err := store.Apply(ctx, saved.Snapshot.ID)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if !result.Success || !result.Partial {
		t.Fatalf("Expected success=true partial=true, got %+v", result)
	}
	if len(result.Details.Success) != 2 {
		t.Errorf("Expected both files of A, got %v", result.Details.Success)
	}
	for _, p := range result.Details.Success {
		if !strings.HasPrefix(p, registry[0].Source) {
			t.Errorf("Unexpected copied file %s", p)
		}
	}
	if len(result.Details.Failures) != 1 || result.Details.Failures[0].Path != registry[1].Source {
		t.Fatalf("Expected exactly one failure for B, got %+v", result.Details.Failures)
	}
	if !strings.Contains(result.Message, "partially applied. 2 files copied, 1 failed.") {
		t.Errorf("Unexpected message %q", result.Message)
	}

	// 全部失败
	fsys.failPrefix = project
	result, err = store.Apply(ctx, saved.Snapshot.ID)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if result.Success || len(result.Details.Failures) != 2 {
		t.Fatalf("Expected total failure with two failures, got %+v", result)
	}
}

func TestSaveRecordsEntryFailure(t *testing.T) {
	tmpDir := t.TempDir()
	project := filepath.Join(tmpDir, "project")
	writeFile(t, filepath.Join(project, "a", "one.lua"), "a = 1\n")
	writeFile(t, filepath.Join(project, "b", "two.lua"), "b = 2\n")
	registry, err := ResolveRegistry(project, []model.ConfigSource{
		{Source: "a", Dest: "A"},
		{Source: "b", Dest: "B"},
	})
	if err != nil {
		t.Fatalf("ResolveRegistry failed: %v", err)
	}

	root := filepath.Join(tmpDir, "configurations")
	fsys := &failingFS{OSFS: NewOSFS()}
	store, err := Open(root, registry, logger.New(), WithFileSystem(fsys))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	// 固定快照 id, 让 B 写入快照目录时失败
	store.newID = func() string { return "fixed-id" }
	fsys.failPrefix = filepath.Join(root, "fixed-id", "B")

	result, err := store.Save(context.Background(), "partial", "")
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if !result.Partial || len(result.Failures) != 1 || result.Failures[0].Path != registry[1].Source {
		t.Fatalf("Expected one failure for B, got %+v", result)
	}
	if len(result.Snapshot.Files) != 1 || result.Snapshot.Files[0] != "A/one.lua" {
		t.Fatalf("Expected only A's file in ledger, got %v", result.Snapshot.Files)
	}
}

func TestApplyMissingSnapshotDir(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	saved, err := f.store.Save(ctx, "baseline", "")
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := os.RemoveAll(filepath.Join(f.root, saved.Snapshot.ID)); err != nil {
		t.Fatalf("Failed to remove snapshot dir: %v", err)
	}
	if _, err := f.store.Apply(ctx, saved.Snapshot.ID); !errors.Is(err, ErrMissingSnapshotDir) {
		t.Fatalf("Expected ErrMissingSnapshotDir, got %v", err)
	}
}

func TestHandEditedIDStaysInsideRoot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sibling := filepath.Join(filepath.Dir(f.root), "precious.txt")
	writeFile(t, sibling, "keep me\n")

	ledger := `{"configurations": [
  {"id": "..", "name": "up", "files": ["precious.txt"]},
  {"id": "", "name": "empty", "files": []},
  {"id": "a/../..", "name": "nested", "files": []}
]}`
	writeFile(t, filepath.Join(f.root, _const.LedgerFileName), ledger)

	for _, id := range []string{"..", "", "a/../.."} {
		if _, err := f.store.Delete(ctx, id); !errors.Is(err, ErrInvalidID) {
			t.Fatalf("Delete(%q): expected ErrInvalidID, got %v", id, err)
		}
		if _, err := f.store.Apply(ctx, id); !errors.Is(err, ErrInvalidID) {
			t.Fatalf("Apply(%q): expected ErrInvalidID, got %v", id, err)
		}
		if _, err := f.store.Dir(id); !errors.Is(err, ErrInvalidID) {
			t.Fatalf("Dir(%q): expected ErrInvalidID, got %v", id, err)
		}
	}

	if _, err := os.Stat(sibling); err != nil {
		t.Fatalf("Expected file next to root to survive: %v", err)
	}
	if _, err := os.Stat(filepath.Join(f.root, _const.LedgerFileName)); err != nil {
		t.Fatalf("Expected ledger to survive: %v", err)
	}
	list, err := f.store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("Expected rejected records to stay in the ledger, got %d", len(list))
	}
}

func TestCopyFileOverReadOnlyDestination(t *testing.T) {
	tmpDir := t.TempDir()
	src := filepath.Join(tmpDir, "src.lua")
	dst := filepath.Join(tmpDir, "dst.lua")
	writeFile(t, src, "a = 2\n")
	writeFile(t, dst, "a = 1\n")
	for _, p := range []string{src, dst} {
		if err := os.Chmod(p, 0444); err != nil {
			t.Fatalf("Chmod failed: %v", err)
		}
	}

	if err := NewOSFS().CopyFile(src, dst); err != nil {
		t.Fatalf("Failed to copy over read-only file: %v", err)
	}
	data, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("Failed to read dst: %v", err)
	}
	if string(data) != "a = 2\n" {
		t.Fatalf("Expected new content, got %q", data)
	}
	info, err := os.Stat(dst)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Mode().Perm() != 0444 {
		t.Errorf("Expected mode 0444, got %v", info.Mode().Perm())
	}
}

func TestApplyOverReadOnlyFiles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	live := filepath.Join(f.registry[0].Source, "player_manager.lua")
	if err := os.Chmod(live, 0444); err != nil {
		t.Fatalf("Chmod failed: %v", err)
	}
	saved, err := f.store.Save(ctx, "readonly", "")
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	result, err := f.store.Apply(ctx, saved.Snapshot.ID)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if !result.Success || result.Partial {
		t.Fatalf("Expected full apply, got %+v", result)
	}
}

func TestUpdateKeepsFiles(t *testing.T) {
	clock := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	f := newFixture(t, WithClock(func() time.Time { return clock }))
	ctx := context.Background()

	saved, err := f.store.Save(ctx, "baseline", "old")
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	clock = clock.Add(time.Hour)
	name := "renamed"
	updated, err := f.store.Update(ctx, saved.Snapshot.ID, model.SnapshotUpdate{Name: &name})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated.Name != "renamed" || updated.Description != "old" {
		t.Errorf("Expected only the name to change, got %+v", updated)
	}
	if !updated.UpdatedAt.Equal(clock) || !updated.CreatedAt.Equal(saved.Snapshot.CreatedAt) {
		t.Errorf("Unexpected timestamps: created %v updated %v", updated.CreatedAt, updated.UpdatedAt)
	}
	if len(updated.Files) != len(saved.Snapshot.Files) {
		t.Errorf("Files changed by update: %v", updated.Files)
	}

	got, err := f.store.Get(ctx, saved.Snapshot.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Name != "renamed" {
		t.Errorf("Update was not persisted: %+v", got)
	}
}

func TestCopyPreservesTimestamps(t *testing.T) {
	f := newFixture(t)
	src := filepath.Join(f.registry[0].Source, "loot.lua")
	mtime := time.Date(2020, 5, 6, 7, 8, 9, 0, time.UTC)
	if err := os.Chtimes(src, mtime, mtime); err != nil {
		t.Fatalf("Chtimes failed: %v", err)
	}

	saved, err := f.store.Save(context.Background(), "times", "")
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	info, err := os.Stat(filepath.Join(f.root, saved.Snapshot.ID, "A", "loot.lua"))
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if !info.ModTime().Equal(mtime) {
		t.Errorf("Expected mtime %v, got %v", mtime, info.ModTime())
	}
}

func TestLedgerAbsentAndCorrupt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ledger := filepath.Join(f.root, _const.LedgerFileName)

	if err := os.Remove(ledger); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	list, err := f.store.List(ctx)
	if err != nil || len(list) != 0 {
		t.Fatalf("Expected empty list for absent ledger, got %v %v", list, err)
	}

	writeFile(t, ledger, "{not json")
	if _, err := f.store.List(ctx); !errors.Is(err, ErrLedgerCorrupt) {
		t.Fatalf("Expected ErrLedgerCorrupt, got %v", err)
	}
}

func TestConcurrentSaves(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := f.store.Save(ctx, fmt.Sprintf("snap-%d", i), ""); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("Save failed: %v", err)
	}

	list, err := f.store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != n {
		t.Fatalf("Expected %d records, got %d", n, len(list))
	}
}

func TestSaveCancelled(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := f.store.Save(ctx, "cancelled", ""); !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	list, err := f.store.List(context.Background())
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("Cancelled save must not reach the ledger, got %v", list)
	}
}

func TestResolveRegistry(t *testing.T) {
	root := t.TempDir()
	reg, err := ResolveRegistry(root, []model.ConfigSource{
		{Source: "MMOCoreORB/bin/scripts/managers", Dest: "managers"},
		{Source: filepath.Join(root, "abs"), Dest: "abs"},
	})
	if err != nil {
		t.Fatalf("ResolveRegistry failed: %v", err)
	}
	if reg[0].Source != filepath.Join(root, "MMOCoreORB", "bin", "scripts", "managers") {
		t.Errorf("Relative source not resolved: %s", reg[0].Source)
	}

	bad := [][]model.ConfigSource{
		{{Source: "a", Dest: ""}},
		{{Source: "a", Dest: "x/y"}},
		{{Source: "a", Dest: ".."}},
		{{Source: "", Dest: "x"}},
		{{Source: "a", Dest: "x"}, {Source: "b", Dest: "x"}},
	}
	for _, sources := range bad {
		if _, err := ResolveRegistry(root, sources); err == nil {
			t.Errorf("Expected error for %+v", sources)
		}
	}
}
