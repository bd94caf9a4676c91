// Package playlist reads and writes m3u playlist files. Playlists are a
// small independent data store; they do not touch the catalog database.
package playlist

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Extension is the playlist file extension handled by this package.
const Extension = ".m3u"

// Playlist is one m3u playlist: a name and an ordered list of absolute
// track paths. Duplicate tracks are dropped on load.
type Playlist struct {
	Name   string
	Path   string
	Tracks []string
}

// Load reads an m3u playlist from path. Comment and blank lines are
// skipped; relative entries are resolved against the playlist's directory.
// Entries pointing at files that no longer exist are dropped.
func Load(path string) (*Playlist, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving playlist path: %w", err)
	}

	f, err := os.Open(abs)
	if err != nil {
		return nil, fmt.Errorf("opening playlist: %w", err)
	}
	defer f.Close()

	pl := &Playlist{
		Name: strings.TrimSuffix(filepath.Base(abs), filepath.Ext(abs)),
		Path: abs,
	}
	folder := filepath.Dir(abs)
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		track := line
		if !filepath.IsAbs(track) {
			track = filepath.Join(folder, track)
		}
		if resolved, err := filepath.EvalSymlinks(track); err == nil {
			track = resolved
		}
		if info, err := os.Stat(track); err != nil || !info.Mode().IsRegular() {
			continue
		}
		if seen[track] {
			continue
		}
		seen[track] = true
		pl.Tracks = append(pl.Tracks, track)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading playlist %s: %w", abs, err)
	}
	return pl, nil
}

// Add appends a track, keeping the list unique.
func (p *Playlist) Add(track string) error {
	abs, err := filepath.Abs(track)
	if err != nil {
		return fmt.Errorf("resolving track path: %w", err)
	}
	for _, t := range p.Tracks {
		if t == abs {
			return fmt.Errorf("file already on the list: %s", abs)
		}
	}
	p.Tracks = append(p.Tracks, abs)
	return nil
}

// Write saves the playlist to its path, creating parent directories as
// needed.
func (p *Playlist) Write() error {
	if err := os.MkdirAll(filepath.Dir(p.Path), 0755); err != nil {
		return fmt.Errorf("creating playlist directory: %w", err)
	}

	var b strings.Builder
	for _, t := range p.Tracks {
		b.WriteString(t)
		b.WriteByte('\n')
	}
	if err := os.WriteFile(p.Path, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("writing playlist %s: %w", p.Path, err)
	}
	return nil
}

// Discover finds all m3u playlists under root, recursively, sorted by path.
// The playlists are not loaded; call Load on the returned paths.
func Discover(root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.EqualFold(filepath.Ext(path), Extension) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discovering playlists under %s: %w", root, err)
	}
	return paths, nil
}
