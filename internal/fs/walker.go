// Package fs provides the filesystem primitives behind tree cataloging:
// walking a tree root with exclusion rules, and content checksumming.
package fs

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"songtree/internal/catalog"
)

// BundleSuffix marks opaque bundle directories (iTunes LP packages). Any
// path component ending in this suffix causes the whole subtree to be
// skipped during a walk.
const BundleSuffix = ".itlp"

// TreeWalker enumerates candidate files under a tree root, applying the
// fixed exclusion rules plus any configured extra ignore patterns and the
// tree's own ignore file. Every yielded path is resolved to its canonical
// real path, and the same physical file is yielded at most once per walk.
type TreeWalker struct {
	patterns []string
	logger   catalog.Logger
}

// NewTreeWalker creates a walker. extraIgnored patterns from configuration
// are applied in addition to the built-in ignore list. Patterns follow
// IgnoreMatcher semantics.
func NewTreeWalker(extraIgnored []string, logger catalog.Logger) *TreeWalker {
	if logger == nil {
		logger = catalog.NewNopLogger()
	}
	patterns := make([]string, 0, len(defaultIgnorePatterns)+len(extraIgnored))
	patterns = append(patterns, defaultIgnorePatterns...)
	patterns = append(patterns, extraIgnored...)
	return &TreeWalker{patterns: patterns, logger: logger}
}

// Walk traverses root depth-first and invokes fn for every candidate file.
// Each call starts a fresh traversal, re-reading the tree's ignore file.
// Unreadable entries cost only their own subtree: the rest of the pass
// continues. An unreadable root and errors returned by fn abort the walk.
func (w *TreeWalker) Walk(root string, fn catalog.WalkFunc) error {
	treePatterns, err := ParseIgnoreFile(filepath.Join(root, TreeIgnoreFile))
	if err != nil {
		return fmt.Errorf("walking %s: %w", root, err)
	}
	matcher := NewIgnoreMatcher(append(append([]string(nil), w.patterns...), treePatterns...))

	seen := make(map[string]bool)

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			w.logger.Debug("skipping unreadable entry", "path", path, "error", err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if path == root {
			return nil
		}

		rel, rerr := filepath.Rel(root, path)
		if rerr != nil {
			rel = d.Name()
		}

		if d.IsDir() {
			if strings.HasSuffix(d.Name(), BundleSuffix) || matcher.Match(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if matcher.Match(rel) {
			return nil
		}

		// Resolve symlinks so the same physical file is never reported
		// twice via different routes. Dangling links are left to the
		// caller's stat to reject.
		resolved, rerr := filepath.EvalSymlinks(path)
		if rerr != nil {
			resolved = path
		}
		if seen[resolved] {
			return nil
		}
		seen[resolved] = true

		return fn(resolved)
	})
	if err != nil {
		return fmt.Errorf("walking %s: %w", root, err)
	}
	return nil
}

// Compile-time check that TreeWalker implements catalog.Walker.
var _ catalog.Walker = (*TreeWalker)(nil)
