package vectorize

import (
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/spetr/dirvec/pkg/types"
)

// node is one entry of the collected tree.
type node struct {
	path   string
	typ    types.ItemType
	depth  int    // root = 0
	parent string // parent directory path, "" for the root itself
}

// dependencyDirs hold third-party content and are skipped unconditionally.
var dependencyDirs = map[string]bool{
	"node_modules":     true,
	"vendor":           true,
	"target":           true,
	"__pycache__":      true,
	"bower_components": true,
}

// collectNodes enumerates every file and directory under root, recording
// depth and parent. Dot entries, dependency-manager directories, excluded
// globs and oversized files are skipped.
func collectNodes(root string, exclude []string, maxFileSize int64) ([]node, error) {
	root = filepath.Clean(root)
	var nodes []node

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable entries are skipped, not fatal.
			slog.Debug("skipping unreadable entry", "path", path, "error", err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		name := d.Name()
		if path != root && strings.HasPrefix(name, ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if dependencyDirs[name] {
				return filepath.SkipDir
			}
			relPath, _ := filepath.Rel(root, path)
			if path != root {
				for _, pattern := range exclude {
					if matchGlob(pattern, relPath+"/") || matchGlob(pattern, relPath) {
						return filepath.SkipDir
					}
				}
			}
			nodes = append(nodes, node{
				path:   path,
				typ:    types.ItemTypeDirectory,
				depth:  nodeDepth(root, path),
				parent: parentOf(root, path),
			})
			return nil
		}

		relPath, _ := filepath.Rel(root, path)
		for _, pattern := range exclude {
			if matchGlob(pattern, relPath) {
				return nil
			}
		}

		if maxFileSize > 0 {
			if info, err := d.Info(); err == nil && info.Size() > maxFileSize {
				slog.Debug("skipping oversized file", "path", relPath, "size", info.Size())
				return nil
			}
		}

		nodes = append(nodes, node{
			path:   path,
			typ:    types.ItemTypeFile,
			depth:  nodeDepth(root, path),
			parent: filepath.Dir(path),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	return nodes, nil
}

// nodeDepth returns the number of path segments below root, 0 for root.
func nodeDepth(root, path string) int {
	if path == root {
		return 0
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return 0
	}
	return strings.Count(rel, string(filepath.Separator)) + 1
}

// parentOf returns the parent directory path, "" for the root itself.
func parentOf(root, path string) string {
	if path == root {
		return ""
	}
	return filepath.Dir(path)
}

// matchGlob matches a path against a glob pattern.
func matchGlob(pattern, path string) bool {
	// Handle ** for recursive matching
	if strings.Contains(pattern, "**") {
		parts := strings.Split(pattern, "**")

		// "**/name/**" - match any path containing the segment.
		if len(parts) == 3 && parts[2] == "" {
			mid := strings.Trim(parts[1], "/")
			if mid != "" && !strings.Contains(mid, "*") {
				for _, seg := range strings.Split(path, "/") {
					if seg == mid {
						return true
					}
				}
				return false
			}
		}

		if len(parts) == 2 {
			prefix := strings.TrimSuffix(parts[0], "/")
			suffix := strings.TrimPrefix(parts[1], "/")

			if prefix != "" && !strings.HasPrefix(path, prefix) {
				return false
			}

			if suffix == "" {
				return true
			}

			// If suffix contains *, use filepath.Match on the basename or
			// remaining path
			if strings.Contains(suffix, "*") {
				base := filepath.Base(path)
				matched, _ := filepath.Match(suffix, base)
				if matched {
					return true
				}
				remaining := path
				if prefix != "" {
					remaining = strings.TrimPrefix(path, prefix)
					remaining = strings.TrimPrefix(remaining, "/")
				}
				matched, _ = filepath.Match(suffix, remaining)
				return matched
			}

			return strings.HasSuffix(path, suffix) || strings.Contains(path, suffix)
		}
	}

	// Standard glob match
	matched, _ := filepath.Match(pattern, path)
	if matched {
		return true
	}

	// Try matching against basename
	base := filepath.Base(path)
	matched, _ = filepath.Match(pattern, base)
	return matched
}
