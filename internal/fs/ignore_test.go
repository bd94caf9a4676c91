package fs

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewIgnoreMatcher(t *testing.T) {
	t.Run("skips blank lines and comments", func(t *testing.T) {
		t.Parallel()
		m := NewIgnoreMatcher([]string{"", "  ", "# comment", "*.partial"})
		if len(m.patterns) != 1 {
			t.Fatalf("expected 1 pattern, got %d", len(m.patterns))
		}
		if m.patterns[0].pattern != "*.partial" {
			t.Errorf("expected *.partial, got %s", m.patterns[0].pattern)
		}
	})

	t.Run("classifies path vs basename patterns", func(t *testing.T) {
		t.Parallel()
		m := NewIgnoreMatcher([]string{"*.partial", "incoming/*.mp3"})
		if m.patterns[0].matchPath {
			t.Error("*.partial should not be a path pattern")
		}
		if !m.patterns[1].matchPath {
			t.Error("incoming/*.mp3 should be a path pattern")
		}
	})

	t.Run("keeps embedded whitespace verbatim", func(t *testing.T) {
		t.Parallel()
		m := NewIgnoreMatcher([]string{"Icon\r"})
		if len(m.patterns) != 1 || m.patterns[0].pattern != "Icon\r" {
			t.Fatalf("pattern mangled: %+v", m.patterns)
		}
	})
}

func TestIgnoreMatcher_Match(t *testing.T) {
	tests := []struct {
		name         string
		patterns     []string
		relativePath string
		want         bool
	}{
		{
			name:         "basename glob matches file in root",
			patterns:     []string{"*.partial"},
			relativePath: "track.mp3.partial",
			want:         true,
		},
		{
			name:         "basename glob matches file in subdirectory",
			patterns:     []string{"*.partial"},
			relativePath: filepath.Join("artist", "track.mp3.partial"),
			want:         true,
		},
		{
			name:         "finder icon artifact",
			patterns:     []string{"Icon\r"},
			relativePath: filepath.Join("album", "Icon\r"),
			want:         true,
		},
		{
			name:         "path pattern matches only at its location",
			patterns:     []string{"incoming/*.mp3"},
			relativePath: filepath.Join("incoming", "new.mp3"),
			want:         true,
		},
		{
			name:         "path pattern does not match elsewhere",
			patterns:     []string{"incoming/*.mp3"},
			relativePath: filepath.Join("library", "new.mp3"),
			want:         false,
		},
		{
			name:         "no match",
			patterns:     []string{"*.partial"},
			relativePath: "track.mp3",
			want:         false,
		},
		{
			name:         "no patterns",
			patterns:     nil,
			relativePath: "track.mp3",
			want:         false,
		},
		{
			name:         "bad pattern is skipped",
			patterns:     []string{"[", "*.partial"},
			relativePath: "track.mp3.partial",
			want:         true,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := NewIgnoreMatcher(tt.patterns)
			if got := m.Match(tt.relativePath); got != tt.want {
				t.Errorf("Match(%q) = %v, want %v", tt.relativePath, got, tt.want)
			}
		})
	}
}

func TestParseIgnoreFile(t *testing.T) {
	t.Run("reads lines", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), TreeIgnoreFile)
		if err := os.WriteFile(path, []byte("# downloads in progress\n*.partial\n\nincoming/*.mp3\n"), 0o644); err != nil {
			t.Fatalf("WriteFile() failed: %v", err)
		}
		patterns, err := ParseIgnoreFile(path)
		if err != nil {
			t.Fatalf("ParseIgnoreFile() failed: %v", err)
		}
		if len(patterns) != 4 {
			t.Errorf("expected 4 raw lines, got %d: %v", len(patterns), patterns)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		patterns, err := ParseIgnoreFile(filepath.Join(t.TempDir(), TreeIgnoreFile))
		if err != nil {
			t.Fatalf("ParseIgnoreFile() failed: %v", err)
		}
		if patterns != nil {
			t.Errorf("expected nil patterns, got %v", patterns)
		}
	})
}
