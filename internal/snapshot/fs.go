package snapshot

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// FileSystem abstracts the filesystem operations the store performs, so
// tests can inject failures.
type FileSystem interface {
	Stat(path string) (os.FileInfo, error)
	IsDir(path string) bool
	MkdirAll(path string, perm os.FileMode) error
	RemoveAll(path string) error
	ReadFile(path string) ([]byte, error)
	// WriteFileAtomic replaces path with data through a temporary file in
	// the same directory.
	WriteFileAtomic(path string, data []byte, perm os.FileMode) error
	// ListTree walks dir and returns every directory and regular file below
	// it, parents before children.
	ListTree(dir string) ([]TreeEntry, error)
	// CopyFile copies src over dst, replacing an existing dst even when it
	// is read-only, and keeps the mode and modification time of src.
	CopyFile(src, dst string) error
}

// TreeEntry is one node returned by ListTree. Rel is slash-separated and
// relative to the listed directory.
type TreeEntry struct {
	Rel   string
	IsDir bool
}

// OSFS is the FileSystem backed by the os package.
type OSFS struct{}

// NewOSFS returns the default FileSystem.
func NewOSFS() *OSFS {
	return &OSFS{}
}

func (OSFS) Stat(path string) (os.FileInfo, error) {
	return os.Stat(path)
}

func (OSFS) IsDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func (OSFS) MkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}

func (OSFS) RemoveAll(path string) error {
	return os.RemoveAll(path)
}

func (OSFS) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

func (OSFS) WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "tmp-*.json")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // rename 成功后为空操作

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

func (OSFS) ListTree(dir string) ([]TreeEntry, error) {
	var entries []TreeEntry
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == dir {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		switch {
		case d.IsDir():
			entries = append(entries, TreeEntry{Rel: rel, IsDir: true})
		case d.Type().IsRegular():
			entries = append(entries, TreeEntry{Rel: rel})
		case d.Type()&fs.ModeSymlink != 0:
			// 只跟随指向普通文件的链接
			if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
				entries = append(entries, TreeEntry{Rel: rel})
			}
		}
		return nil
	})
	return entries, err
}

func (OSFS) CopyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return errors.New("not a regular file: " + src)
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	// 先写临时文件再替换, 只读的目标文件也能被覆盖
	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // rename 成功后为空操作

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpPath, info.Mode().Perm()); err != nil {
		return err
	}
	if err := os.Chtimes(tmpPath, info.ModTime(), info.ModTime()); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		// Windows 上不能直接替换只读文件
		if rmErr := os.Remove(dst); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			return err
		}
		return os.Rename(tmpPath, dst)
	}
	return nil
}
