package snapshot

import (
	"context"
	"fmt"
	"path/filepath"

	_const "swgconf/internal/const"
)

// copyTree copies every file under src into dst, creating directories as
// needed and overwriting existing files. It returns the slash-separated
// paths, relative to src, of the files it copied. Files are copied one at
// a time in walk order; ctx is checked before each one.
func copyTree(ctx context.Context, fsys FileSystem, src, dst string) ([]string, error) {
	entries, err := fsys.ListTree(src)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", src, err)
	}
	if err := fsys.MkdirAll(dst, _const.DirPerm); err != nil {
		return nil, fmt.Errorf("create %s: %w", dst, err)
	}

	copied := make([]string, 0, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return copied, err
		}

		target := filepath.Join(dst, filepath.FromSlash(entry.Rel))
		if entry.IsDir {
			if err := fsys.MkdirAll(target, _const.DirPerm); err != nil {
				return copied, fmt.Errorf("create %s: %w", target, err)
			}
			continue
		}
		if err := fsys.MkdirAll(filepath.Dir(target), _const.DirPerm); err != nil {
			return copied, fmt.Errorf("create %s: %w", filepath.Dir(target), err)
		}
		if err := fsys.CopyFile(filepath.Join(src, filepath.FromSlash(entry.Rel)), target); err != nil {
			return copied, fmt.Errorf("copy %s: %w", entry.Rel, err)
		}
		copied = append(copied, entry.Rel)
	}
	return copied, nil
}
