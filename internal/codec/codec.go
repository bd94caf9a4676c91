// Package codec maintains the registry mapping audio file extensions to
// encoder and decoder shell commands.
package codec

import (
	"fmt"
	"path/filepath"
	"strings"

	"songtree/internal/catalog"
)

// Codec describes one registered audio codec: the extensions it claims and
// its prioritized command templates. Templates use the FILE and OUTFILE
// placeholders, replaced at expansion time.
type Codec struct {
	Name        string
	Description string
	Extensions  []string
	Encoders    []string // priority order
	Decoders    []string // priority order
}

// Store is the persistence contract for the codec registry.
type Store interface {
	// RegisterCodec inserts a codec with its extensions and commands.
	// Registering an existing name is a no-op.
	RegisterCodec(c *Codec) error

	// FindCodecByExtension returns the codec claiming the extension
	// (without leading dot, lowercase), or nil when none does.
	FindCodecByExtension(ext string) (*Codec, error)

	// Codecs returns all registered codecs ordered by name.
	Codecs() ([]*Codec, error)
}

// Defaults are the codecs seeded into a fresh registry. Changing an entry
// after it has been registered does not update the stored registration.
var Defaults = []*Codec{
	{
		Name:        "mp3",
		Description: "MPEG-1 or MPEG-2 Audio Layer III",
		Extensions:  []string{"mp3"},
		Encoders:    []string{"lame --quiet -b 320 --vbr-new -ms --replaygain-accurate FILE OUTFILE"},
		Decoders:    []string{"lame --quiet --decode FILE OUTFILE"},
	},
	{
		Name:        "aac",
		Description: "Advanced Audio Coding",
		Extensions:  []string{"aac", "m4a", "mp4"},
		Encoders: []string{
			"neroAacEnc -if FILE -of OUTFILE -br 256000 -2pass",
			"afconvert -b 256000 -v -f m4af -d aac FILE OUTFILE",
		},
		Decoders: []string{
			"neroAacDec -if OUTFILE -of FILE",
			"faad -q -o OUTFILE FILE -b1",
		},
	},
	{
		Name:        "vorbis",
		Description: "Ogg Vorbis",
		Extensions:  []string{"vorbis", "ogg"},
		Encoders:    []string{"oggenc --quiet -q 7 -o OUTFILE FILE"},
		Decoders:    []string{"oggdec --quiet -o OUTFILE FILE"},
	},
	{
		Name:        "flac",
		Description: "Free Lossless Audio Codec",
		Extensions:  []string{"flac"},
		Encoders:    []string{"flac -f --silent --verify --replay-gain -o OUTFILE FILE"},
		Decoders:    []string{"flac -f --silent --decode -o OUTFILE FILE"},
	},
	{
		Name:        "wavpack",
		Description: "WavPack Lossless Audio Codec",
		Extensions:  []string{"wv", "wavpack"},
		Encoders:    []string{"wavpack -yhx FILE -o OUTFILE"},
		Decoders:    []string{"wvunpack -yq FILE -o OUTFILE"},
	},
	{
		Name:        "caf",
		Description: "CoreAudio Format audio",
		Extensions:  []string{"caf"},
	},
	{
		Name:        "aif",
		Description: "AIFF audio",
		Extensions:  []string{"aif", "aiff"},
	},
	{
		Name:        "wav",
		Description: "RIFF Wave Audio",
		Extensions:  []string{"wav"},
	},
}

// Registry resolves file paths to codecs and expands command templates.
type Registry struct {
	store Store
}

// NewRegistry creates a Registry over the given store.
func NewRegistry(store Store) *Registry {
	return &Registry{store: store}
}

// EnsureDefaults registers every default codec that is not yet present.
func (r *Registry) EnsureDefaults() error {
	for _, c := range Defaults {
		if err := r.store.RegisterCodec(c); err != nil {
			return fmt.Errorf("registering default codec %s: %w", c.Name, err)
		}
	}
	return nil
}

// Register adds a codec to the registry.
func (r *Registry) Register(c *Codec) error {
	return r.store.RegisterCodec(c)
}

// Codecs returns all registered codecs.
func (r *Registry) Codecs() ([]*Codec, error) {
	return r.store.Codecs()
}

// Lookup returns the codec claiming the path's extension, or nil when
// unknown.
func (r *Registry) Lookup(path string) (*Codec, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	if ext == "" {
		return nil, nil
	}
	return r.store.FindCodecByExtension(ext)
}

// Match returns the name of the codec claiming the path's extension, or ""
// when no codec does. It satisfies the narrow matcher interface used by the
// catalog service.
func (r *Registry) Match(path string) (string, error) {
	c, err := r.Lookup(path)
	if err != nil || c == nil {
		return "", err
	}
	return c.Name, nil
}

// ExpandCommand fills a command template with the input and output file
// paths.
func ExpandCommand(template, file, outfile string) string {
	cmd := strings.ReplaceAll(template, "OUTFILE", outfile)
	return strings.ReplaceAll(cmd, "FILE", file)
}

// Compile-time check that Registry implements catalog.CodecMatcher.
var _ catalog.CodecMatcher = (*Registry)(nil)
