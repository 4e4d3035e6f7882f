package snapshot

import (
	"fmt"
	"path/filepath"
	"strings"

	"swgconf/model"
)

// ResolveRegistry validates the configured sources and makes every source
// directory absolute, resolving relative ones against root. Dest names
// must be unique single path elements.
func ResolveRegistry(root string, sources []model.ConfigSource) ([]model.ConfigSource, error) {
	seen := make(map[string]bool, len(sources))
	resolved := make([]model.ConfigSource, 0, len(sources))
	for _, src := range sources {
		dest := strings.TrimSpace(src.Dest)
		if dest == "" || dest == "." || dest == ".." || strings.ContainsAny(dest, `/\`) {
			return nil, fmt.Errorf("invalid snapshot name %q for %s", src.Dest, src.Source)
		}
		if seen[dest] {
			return nil, fmt.Errorf("duplicate snapshot name %q", dest)
		}
		seen[dest] = true

		dir := src.Source
		if dir == "" {
			return nil, fmt.Errorf("empty source directory for %q", dest)
		}
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(root, dir)
		}
		abs, err := filepath.Abs(dir)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", dir, err)
		}
		resolved = append(resolved, model.ConfigSource{Source: abs, Dest: dest})
	}
	return resolved, nil
}
