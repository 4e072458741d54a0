// Package assets maps phrases to their reference pronunciation samples.
//
// A catalog file lists the known samples:
//
//	dir: samples            # relative to the catalog file
//	samples:
//	  amoxicillin: amoxicillin.wav
//	  ibuprofen:
//	    file: ibu.wav
//	    aliases: [advil, nurofen]
//
// Phrases are matched case-insensitively. A phrase missing from the catalog
// falls back to "<dir>/<phrase>.wav".
package assets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/haivivi/voicecollect/pkg/audio/wav"
	"github.com/haivivi/voicecollect/pkg/playback"
)

// ErrUnknownPhrase is returned when a phrase has no sample and the catalog
// has no directory to fall back to.
var ErrUnknownPhrase = errors.New("assets: unknown phrase")

// SampleRef locates the sample for one phrase. In YAML it is either a file
// name or a mapping with file and aliases.
type SampleRef struct {
	File    string   `yaml:"file"`
	Aliases []string `yaml:"aliases,omitempty"`
}

// UnmarshalYAML implements yaml.Unmarshaler for SampleRef.
func (r *SampleRef) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		r.File = value.Value
		return nil
	case yaml.MappingNode:
		type raw SampleRef
		var v raw
		if err := value.Decode(&v); err != nil {
			return err
		}
		*r = SampleRef(v)
		return nil
	default:
		return fmt.Errorf("assets: line %d: sample must be a file name or mapping", value.Line)
	}
}

type catalogFile struct {
	Dir     string               `yaml:"dir"`
	Samples map[string]SampleRef `yaml:"samples"`
}

// Catalog resolves phrases to playable samples.
type Catalog struct {
	dir   string
	files map[string]string // normalized phrase → absolute path
	names []string
}

// Load reads a catalog file. Relative paths inside it are resolved against
// the file's directory.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("assets: read catalog: %w", err)
	}
	c, err := Parse(data, filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("assets: %s: %w", path, err)
	}
	return c, nil
}

// Parse decodes catalog YAML. baseDir anchors relative paths.
func Parse(data []byte, baseDir string) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	dir := f.Dir
	if dir == "" {
		dir = "."
	}
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(baseDir, dir)
	}
	c := &Catalog{dir: dir, files: make(map[string]string)}
	for phrase, ref := range f.Samples {
		if ref.File == "" {
			return nil, fmt.Errorf("sample %q has no file", phrase)
		}
		file := ref.File
		if !filepath.IsAbs(file) {
			file = filepath.Join(dir, file)
		}
		for _, name := range append([]string{phrase}, ref.Aliases...) {
			key := normalize(name)
			if prev, ok := c.files[key]; ok && prev != file {
				return nil, fmt.Errorf("phrase %q mapped twice", name)
			}
			c.files[key] = file
		}
		c.names = append(c.names, phrase)
	}
	sort.Strings(c.names)
	return c, nil
}

// NewDir returns a catalog with no explicit entries that resolves every
// phrase to "<dir>/<phrase>.wav".
func NewDir(dir string) *Catalog {
	return &Catalog{dir: dir, files: make(map[string]string)}
}

// Sample returns the reference sample for phrase. The file is not opened
// here; a missing file surfaces as a playback error.
func (c *Catalog) Sample(phrase string) (playback.Source, error) {
	key := normalize(phrase)
	if key == "" {
		return nil, ErrUnknownPhrase
	}
	if file, ok := c.files[key]; ok {
		return playback.File(file), nil
	}
	if c.dir == "" {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPhrase, phrase)
	}
	return playback.File(filepath.Join(c.dir, key+"."+wav.Ext)), nil
}

// Phrases returns the catalog's phrases in sorted order, excluding aliases.
func (c *Catalog) Phrases() []string {
	return append([]string(nil), c.names...)
}

func normalize(phrase string) string {
	return strings.ToLower(strings.TrimSpace(phrase))
}
