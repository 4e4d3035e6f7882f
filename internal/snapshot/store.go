package snapshot

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	_const "swgconf/internal/const"
	"swgconf/internal/logger"
	"swgconf/model"
)

// Store saves, applies and deletes configuration snapshots under one root
// directory. The ledger is the only shared state; every read-modify-write
// of it runs under an in-process mutex plus a file lock so two agents on
// the same installation cannot lose each other's updates.
type Store struct {
	root     string
	registry []model.ConfigSource
	fs       FileSystem
	logger   *logger.Logger
	lock     *flock.Flock
	mu       sync.Mutex

	preflight func(sources []model.ConfigSource)
	now       func() time.Time
	newID     func() string
}

// Option configures a Store.
type Option func(*Store)

// WithFileSystem replaces the os-backed filesystem.
func WithFileSystem(fsys FileSystem) Option {
	return func(s *Store) {
		s.fs = fsys
	}
}

// WithPreflight registers a hook run before each save copies anything.
func WithPreflight(fn func(sources []model.ConfigSource)) Option {
	return func(s *Store) {
		s.preflight = fn
	}
}

// WithClock overrides time.Now for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// Open prepares root and returns a Store over the given registry. The
// registry must already be resolved (see ResolveRegistry).
func Open(root string, registry []model.ConfigSource, log *logger.Logger, opts ...Option) (*Store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve snapshot root: %w", err)
	}

	s := &Store{
		root:     abs,
		registry: registry,
		fs:       NewOSFS(),
		logger:   log,
		lock:     flock.New(filepath.Clean(abs) + _const.LockFileSuffix),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.fs.MkdirAll(s.root, _const.DirPerm); err != nil {
		return nil, fmt.Errorf("create snapshot root: %w", err)
	}
	if _, err := s.fs.Stat(s.ledgerPath()); err != nil {
		if err := s.writeLedger(&model.Ledger{Configurations: []model.SnapshotMetadata{}}); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Root returns the absolute snapshot root directory.
func (s *Store) Root() string {
	return s.root
}

// Registry returns the config source registry the store copies.
func (s *Store) Registry() []model.ConfigSource {
	return s.registry
}

// Dir returns the directory of snapshot id. The id must name a single
// directory directly under the root.
func (s *Store) Dir(id string) (string, error) {
	if err := checkID(id); err != nil {
		return "", err
	}
	return filepath.Join(s.root, id), nil
}

func checkID(id string) error {
	if id == "" || id == "." || id == ".." ||
		strings.ContainsAny(id, `/\`) || filepath.Base(id) != id || filepath.VolumeName(id) != "" {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

// withLock runs fn as a ledger critical section.
func (s *Store) withLock(ctx context.Context, fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lockCtx, cancel := context.WithTimeout(ctx, _const.LedgerLockTimeout)
	defer cancel()
	locked, err := s.lock.TryLockContext(lockCtx, _const.LedgerLockRetry)
	if err != nil {
		return fmt.Errorf("lock ledger: %w", err)
	}
	if !locked {
		return errors.New("lock ledger: not acquired")
	}
	defer func() {
		if err := s.lock.Unlock(); err != nil {
			s.logger.Warn("释放台账文件锁失败: %v", err)
		}
	}()

	return fn()
}

// Save copies every existing registry directory into a new snapshot and
// appends its record to the ledger. Missing source directories are
// skipped; a failure copying one entry is recorded and does not stop the
// others. The ledger is only written once all entries were processed.
func (s *Store) Save(ctx context.Context, name, description string) (*model.SaveResult, error) {
	id := s.newID()
	dir, err := s.Dir(id)
	if err != nil {
		return nil, err
	}
	if err := s.fs.MkdirAll(dir, _const.DirPerm); err != nil {
		return nil, fmt.Errorf("create snapshot directory: %w", err)
	}
	if s.preflight != nil {
		s.preflight(s.registry)
	}

	result := &model.SaveResult{}
	files := []string{}
	for _, entry := range s.registry {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !s.fs.IsDir(entry.Source) {
			s.logger.Warn("配置目录不存在, 跳过: %s", entry.Source)
			result.Skipped = append(result.Skipped, entry.Dest)
			continue
		}

		copied, err := copyTree(ctx, s.fs, entry.Source, filepath.Join(dir, entry.Dest))
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			s.logger.Error("复制配置目录失败 %s: %v", entry.Source, err)
			result.Failures = append(result.Failures, model.CopyFailure{Path: entry.Source, Error: err.Error()})
			continue
		}
		for _, rel := range copied {
			files = append(files, path.Join(entry.Dest, rel))
		}
		s.logger.Debug("已复制 %s -> %s (%d 个文件)", entry.Source, entry.Dest, len(copied))
	}

	now := s.now().UTC()
	meta := model.SnapshotMetadata{
		ID:          id,
		Name:        name,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
		Files:       files,
	}
	err = s.withLock(ctx, func() error {
		ledger, err := s.readLedger()
		if err != nil {
			return err
		}
		ledger.Configurations = append(ledger.Configurations, meta)
		return s.writeLedger(ledger)
	})
	if err != nil {
		return nil, err
	}

	result.Snapshot = meta
	result.Partial = len(result.Failures) > 0
	s.logger.Info("配置快照已保存: %s (%s), %d 个文件", name, id, len(files))
	return result, nil
}

// List returns every ledger record in insertion order.
func (s *Store) List(ctx context.Context) ([]model.SnapshotMetadata, error) {
	var list []model.SnapshotMetadata
	err := s.withLock(ctx, func() error {
		ledger, err := s.readLedger()
		if err != nil {
			return err
		}
		list = ledger.Configurations
		return nil
	})
	return list, err
}

// Get returns the record of snapshot id.
func (s *Store) Get(ctx context.Context, id string) (*model.SnapshotMetadata, error) {
	var meta *model.SnapshotMetadata
	err := s.withLock(ctx, func() error {
		ledger, err := s.readLedger()
		if err != nil {
			return err
		}
		i := findSnapshot(ledger, id)
		if i < 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		meta = &ledger.Configurations[i]
		return nil
	})
	return meta, err
}

// Apply copies a snapshot back over the live directories. Entries whose
// snapshot directory is absent are skipped. The result is a failure only
// when nothing was copied, and partial when some entries failed.
func (s *Store) Apply(ctx context.Context, id string) (*model.ApplyResult, error) {
	meta, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	dir, err := s.Dir(id)
	if err != nil {
		return nil, err
	}
	if !s.fs.IsDir(dir) {
		return nil, fmt.Errorf("%w: %s", ErrMissingSnapshotDir, dir)
	}

	details := model.ApplyDetails{Success: []string{}, Failures: []model.CopyFailure{}}
	for _, entry := range s.registry {
		src := filepath.Join(dir, entry.Dest)
		if !s.fs.IsDir(src) {
			s.logger.Debug("快照中不存在 %s, 跳过", entry.Dest)
			continue
		}

		copied, err := copyTree(ctx, s.fs, src, entry.Source)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			s.logger.Error("恢复配置目录失败 %s: %v", entry.Source, err)
			details.Failures = append(details.Failures, model.CopyFailure{Path: entry.Source, Error: err.Error()})
			continue
		}
		for _, rel := range copied {
			details.Success = append(details.Success, filepath.Join(entry.Source, filepath.FromSlash(rel)))
		}
	}

	result := &model.ApplyResult{Details: details}
	switch {
	case len(details.Success) == 0:
		result.Message = fmt.Sprintf("Failed to apply configuration %q: No files were copied", meta.Name)
	case len(details.Failures) > 0:
		result.Success = true
		result.Partial = true
		result.Message = fmt.Sprintf("Configuration %q partially applied. %d files copied, %d failed.",
			meta.Name, len(details.Success), len(details.Failures))
	default:
		result.Success = true
		result.Message = fmt.Sprintf("Configuration %q applied successfully. %d files copied.",
			meta.Name, len(details.Success))
	}
	s.logger.Info("%s", result.Message)
	return result, nil
}

// Delete removes the ledger record of id, then its directory. If the
// directory cannot be removed the record stays deleted and the error is
// returned.
func (s *Store) Delete(ctx context.Context, id string) (*model.SnapshotMetadata, error) {
	var removed model.SnapshotMetadata
	err := s.withLock(ctx, func() error {
		ledger, err := s.readLedger()
		if err != nil {
			return err
		}
		i := findSnapshot(ledger, id)
		if i < 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		// 非法 id 的记录保留在账本中, 不碰任何目录
		if err := checkID(id); err != nil {
			return err
		}
		removed = ledger.Configurations[i]
		ledger.Configurations = append(ledger.Configurations[:i], ledger.Configurations[i+1:]...)
		return s.writeLedger(ledger)
	})
	if err != nil {
		return nil, err
	}

	dir := filepath.Join(s.root, id)
	if err := s.fs.RemoveAll(dir); err != nil {
		s.logger.Warn("删除快照目录失败, 目录已成为孤立目录 %s: %v", dir, err)
		return &removed, fmt.Errorf("remove snapshot directory: %w", err)
	}
	s.logger.Info("配置快照已删除: %s (%s)", removed.Name, id)
	return &removed, nil
}

// Update changes the name and/or description of snapshot id and refreshes
// its UpdatedAt. The snapshot files are never touched.
func (s *Store) Update(ctx context.Context, id string, update model.SnapshotUpdate) (*model.SnapshotMetadata, error) {
	var updated model.SnapshotMetadata
	err := s.withLock(ctx, func() error {
		ledger, err := s.readLedger()
		if err != nil {
			return err
		}
		i := findSnapshot(ledger, id)
		if i < 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		meta := &ledger.Configurations[i]
		if update.Name != nil {
			meta.Name = *update.Name
		}
		if update.Description != nil {
			meta.Description = *update.Description
		}
		meta.UpdatedAt = s.now().UTC()
		updated = *meta
		return s.writeLedger(ledger)
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}
