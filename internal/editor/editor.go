// Package editor reads and edits the Lua configuration files of the
// managed server. Every edit re-parses the current text, is checked
// against the reference Lua grammar, and is written back in the file's
// original encoding after a timestamped backup.
package editor

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_const "swgconf/internal/const"
	"swgconf/internal/logger"
	"swgconf/internal/luasrc"
	"swgconf/internal/utils"
	"swgconf/model"
)

var (
	// ErrOutsideRoot is returned for paths that resolve outside the project root.
	ErrOutsideRoot = errors.New("path is outside the project root")

	// ErrGuardRejected is returned when an edit would leave a file that no
	// longer parses. Nothing is written.
	ErrGuardRejected = errors.New("edit rejected: result is not valid lua")
)

// Recorder stores history entries.
type Recorder interface {
	Record(entry model.HistoryEntry) error
}

// PatchCounter counts patch outcomes.
type PatchCounter interface {
	PatchResult(result string)
}

// Service edits files below one project root.
type Service struct {
	root    string
	history Recorder
	metrics PatchCounter
	logger  *logger.Logger
	now     func() time.Time
	guard   func(original, edited, chunkName string) error
}

// Document is a loaded Lua file.
type Document struct {
	Path     string                  `json:"path"`
	Encoding string                  `json:"encoding"`
	Text     string                  `json:"text"`
	Values   map[string]luasrc.Value `json:"values"`
}

// Update sets one variable, or one field of a table variable when Field
// is not empty.
type Update struct {
	Name  string
	Field string
	Value luasrc.Value
}

func (u Update) String() string {
	if u.Field != "" {
		return u.Name + "." + u.Field
	}
	return u.Name
}

// ApplyEditResult describes what Apply did.
type ApplyEditResult struct {
	Path       string                  `json:"path"`
	Changed    bool                    `json:"changed"`
	BackupPath string                  `json:"backup_path,omitempty"`
	Skipped    []string                `json:"skipped,omitempty"` // 文件中不存在的变量
	Values     map[string]luasrc.Value `json:"values"`
}

// New creates an editor for files under root. history and metrics may be nil.
func New(root string, history Recorder, metrics PatchCounter, log *logger.Logger) (*Service, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve project root: %w", err)
	}
	return &Service{
		root:    abs,
		history: history,
		metrics: metrics,
		logger:  log,
		now:     time.Now,
		guard:   luasrc.Guard,
	}, nil
}

// Root returns the absolute project root.
func (s *Service) Root() string {
	return s.root
}

// Resolve makes path absolute, relative paths being taken from the
// project root, and checks that it stays inside the root.
func (s *Service) Resolve(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("empty path")
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.root, path)
	}
	abs := filepath.Clean(path)
	rel, err := filepath.Rel(s.root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, path)
	}
	return abs, nil
}

// Load reads a Lua file and extracts its top-level values.
func (s *Service) Load(path string) (*Document, error) {
	abs, err := s.Resolve(path)
	if err != nil {
		return nil, err
	}
	text, enc, err := utils.ReadTextFile(abs)
	if err != nil {
		return nil, err
	}
	values, err := luasrc.Extract(text)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", abs, err)
	}
	return &Document{Path: abs, Encoding: enc.String(), Text: text, Values: values}, nil
}

// Apply applies updates in order, re-parsing the latest text for each one.
// Names not present in the file are reported in Skipped. The file is only
// backed up and rewritten when its text actually changed.
func (s *Service) Apply(path string, updates []Update) (*ApplyEditResult, error) {
	abs, err := s.Resolve(path)
	if err != nil {
		return nil, err
	}
	original, enc, err := utils.ReadTextFile(abs)
	if err != nil {
		return nil, err
	}

	result := &ApplyEditResult{Path: abs}
	text := original
	for _, u := range updates {
		next, found, err := applyOne(text, u)
		if err != nil {
			s.count(_const.ResultFailure)
			s.record(abs, u.String(), err)
			return nil, fmt.Errorf("update %s: %w", u, err)
		}
		if !found {
			s.logger.Warn("变量不存在, 跳过: %s (%s)", u, abs)
			result.Skipped = append(result.Skipped, u.String())
			continue
		}
		text = next
	}

	if result.Values, err = luasrc.Extract(text); err != nil {
		return nil, err
	}
	if text == original {
		s.count(_const.ResultNoop)
		return result, nil
	}

	if err := s.guard(original, text, filepath.Base(abs)); err != nil {
		s.count(_const.ResultFailure)
		s.record(abs, names(updates), err)
		return nil, fmt.Errorf("%w: %v", ErrGuardRejected, err)
	}

	backup, err := s.Backup(abs)
	if err != nil {
		s.count(_const.ResultFailure)
		return nil, err
	}
	if err := utils.WriteTextFile(abs, text, enc); err != nil {
		s.count(_const.ResultFailure)
		s.record(abs, names(updates), err)
		return nil, err
	}

	result.Changed = true
	result.BackupPath = backup
	s.count(_const.ResultSuccess)
	s.record(abs, names(updates), nil)
	s.logger.Info("已更新 %s: %s", abs, names(updates))
	return result, nil
}

// applyOne applies a single update to text, reporting whether the target
// exists.
func applyOne(text string, u Update) (string, bool, error) {
	if u.Name == "" {
		return "", false, fmt.Errorf("empty variable name")
	}
	if u.Field == "" {
		_, found, err := luasrc.Locate(text, u.Name)
		if err != nil || !found {
			return text, found, err
		}
		next, err := luasrc.Patch(text, u.Name, u.Value)
		return next, true, err
	}

	_, found, err := luasrc.LocateField(text, u.Name, u.Field)
	if err != nil || !found {
		return text, found, err
	}
	next, err := luasrc.PatchField(text, u.Name, u.Field, u.Value)
	return next, true, err
}

// Backup copies path to <path>.backup-<timestamp> and returns the copy's path.
func (s *Service) Backup(path string) (string, error) {
	abs, err := s.Resolve(path)
	if err != nil {
		return "", err
	}
	stamp := strings.ReplaceAll(s.now().UTC().Format("2006-01-02T15:04:05.000Z"), ":", "-")
	backup := abs + _const.BackupInfix + stamp

	in, err := os.Open(abs)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", abs, err)
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return "", err
	}

	out, err := os.OpenFile(backup, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return "", fmt.Errorf("create backup: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return "", fmt.Errorf("write backup: %w", err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("write backup: %w", err)
	}

	if s.history != nil {
		if err := s.history.Record(model.HistoryEntry{
			CreatedAt: s.now(),
			Action:    _const.OpFileBackup,
			Target:    abs,
			Detail:    backup,
			Success:   true,
		}); err != nil {
			s.logger.Warn("记录历史失败: %v", err)
		}
	}
	s.logger.Debug("Backup created: %s", backup)
	return backup, nil
}

// ListLuaFiles returns the names of the .lua files directly inside dir.
func (s *Service) ListLuaFiles(dir string) ([]string, error) {
	abs, err := s.Resolve(dir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", abs, err)
	}

	files := []string{}
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), _const.LuaExtension) {
			continue
		}
		files = append(files, e.Name())
	}
	sort.Strings(files)
	return files, nil
}

func (s *Service) count(result string) {
	if s.metrics != nil {
		s.metrics.PatchResult(result)
	}
}

func (s *Service) record(target, detail string, err error) {
	if s.history == nil {
		return
	}
	entry := model.HistoryEntry{
		CreatedAt: s.now(),
		Action:    _const.OpLuaPatch,
		Target:    target,
		Detail:    detail,
		Success:   err == nil,
	}
	if err != nil {
		entry.Detail = detail + ": " + err.Error()
	}
	if err := s.history.Record(entry); err != nil {
		s.logger.Warn("记录历史失败: %v", err)
	}
}

func names(updates []Update) string {
	parts := make([]string, len(updates))
	for i, u := range updates {
		parts[i] = u.String()
	}
	return strings.Join(parts, ", ")
}
