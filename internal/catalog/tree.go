package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultSource is the source tag for trees backed by the local filesystem.
const DefaultSource = "filesystem"

// DefaultTreeTypes are the tree classifications seeded into every database.
// The enumeration is open; callers may register more.
var DefaultTreeTypes = map[string]string{
	"Songs":      "Complete song files",
	"Recordings": "Live performance recordings",
	"Playlists":  "Playlist files",
	"Loops":      "Audio loops",
	"Samples":    "Audio samples",
}

// Tree identifies one cataloged filesystem root and its inventory
// partition. Path is always the canonical real path; alternate routes to
// the same root (symlinks, mount points) live in Aliases.
type Tree struct {
	ID      string // assigned by the store on registration
	Type    string
	Source  string
	Path    string
	Aliases []string
}

// NewTree creates a tree handle for the given root path. The path is
// normalized to its canonical real path; when the supplied path differs
// from the canonical one, the original is kept as an alias. The root does
// not need to exist: a missing root simply leaves the tree unavailable.
func NewTree(path, treeType string) (*Tree, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving absolute path: %w", err)
	}

	canonical := canonicalize(abs)

	t := &Tree{
		Type:   treeType,
		Source: DefaultSource,
		Path:   canonical,
	}
	if abs != canonical {
		t.Aliases = append(t.Aliases, abs)
	}
	return t, nil
}

// AddAlias records an alternate path for this tree. Duplicates and the
// canonical path itself are ignored.
func (t *Tree) AddAlias(path string) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return
	}
	if abs == t.Path {
		return
	}
	for _, a := range t.Aliases {
		if a == abs {
			return
		}
	}
	t.Aliases = append(t.Aliases, abs)
}

// IsAvailable reports whether the root is currently readable and
// traversable. This is a cheap existence and permission check, not a walk.
func (t *Tree) IsAvailable() bool {
	info, err := os.Stat(t.Path)
	if err != nil || !info.IsDir() {
		return false
	}
	f, err := os.Open(t.Path)
	if err != nil {
		return false
	}
	f.Close()
	return true
}

// RelativePath strips the tree root from an absolute path. The input is
// canonicalized first, and the prefix check is done on path components so
// that e.g. /music2 never matches a root of /music. Returns ErrNotInTree
// when the path lies outside the tree.
func (t *Tree) RelativePath(absPath string) (string, error) {
	if !filepath.IsAbs(absPath) {
		return "", fmt.Errorf("%w: %s is not absolute", ErrNotInTree, absPath)
	}

	canonical := canonicalize(absPath)
	if canonical == t.Path {
		return "", fmt.Errorf("%w: %s is the tree root", ErrNotInTree, absPath)
	}

	rel, err := filepath.Rel(t.Path, canonical)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s (root %s)", ErrNotInTree, absPath, t.Path)
	}
	return rel, nil
}

// String implements fmt.Stringer in the "Type Path" form used by log output.
func (t *Tree) String() string {
	return fmt.Sprintf("%s %s", t.Type, t.Path)
}

// canonicalize resolves symlinks in path. When the full path cannot be
// resolved (for example a missing leaf during a deletion race), as many
// leading components as possible are resolved and the remainder is kept
// verbatim, mirroring what realpath does for nonexistent paths.
func canonicalize(path string) string {
	resolved, err := filepath.EvalSymlinks(path)
	if err == nil {
		return resolved
	}

	dir, base := filepath.Split(filepath.Clean(path))
	dir = filepath.Clean(dir)
	if dir == path {
		return path
	}
	return filepath.Join(canonicalize(dir), base)
}
