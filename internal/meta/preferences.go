package meta

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/franz/music-shelver/internal/util"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/afero"
)

const preferencesVersion = 1

type preferencesFile struct {
	MetadataVersion int               `toml:"metadata_version"`
	Defaults        map[string]string `toml:"defaults"`
	Preferences     map[string]string `toml:"preferences"`
}

// Preferences maps raw artist names to the user's preferred romanized names.
// Lookups ignore case. Names seen during a run but not yet configured are
// added as empty placeholders so the user can fill them in later.
type Preferences struct {
	fs   afero.Fs
	path string

	mu       sync.RWMutex
	defaults map[string]string
	entries  map[string]string // original key -> value (may be empty)
	index    map[string]string // folded key -> non-empty value
	keys     map[string]string // folded key -> original key
	dirty    bool
}

// NewPreferences returns an empty, unsaved preference set
func NewPreferences() *Preferences {
	return &Preferences{
		defaults: map[string]string{},
		entries:  map[string]string{},
		index:    map[string]string{},
		keys:     map[string]string{},
	}
}

// LoadPreferences reads the TOML preference file at path. A missing file
// yields an empty set bound to path so placeholders can be saved later.
func LoadPreferences(fsys afero.Fs, path string) (*Preferences, error) {
	p := NewPreferences()
	p.fs = fsys
	p.path = path

	if path == "" {
		return p, nil
	}

	data, err := afero.ReadFile(fsys, path)
	if errors.Is(err, fs.ErrNotExist) {
		return p, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read preferences %s: %w", path, err)
	}

	var doc preferencesFile
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: invalid preferences file %s: %v", util.ErrValidation, path, err)
	}

	for k, v := range doc.Defaults {
		p.defaults[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	for k, v := range doc.Preferences {
		key := strings.TrimSpace(k)
		if key == "" {
			return nil, fmt.Errorf("%w: empty artist name in %s", util.ErrValidation, path)
		}
		folded := strings.ToLower(key)
		if _, dup := p.keys[folded]; dup {
			return nil, fmt.Errorf("%w: duplicate preference for %q in %s", util.ErrValidation, key, path)
		}
		value := strings.TrimSpace(v)
		p.entries[key] = value
		p.keys[folded] = key
		if value != "" {
			p.index[folded] = value
		}
	}

	return p, nil
}

// Resolve returns the preferred name for an artist, if one is configured
func (p *Preferences) Resolve(name string) (string, bool) {
	if p == nil {
		return "", false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.index[strings.ToLower(strings.TrimSpace(name))]
	return v, ok
}

// AddPlaceholder records an artist with no preference yet. It reports
// whether the name was new.
func (p *Preferences) AddPlaceholder(name string) bool {
	if p == nil {
		return false
	}
	key := strings.TrimSpace(name)
	if key == "" {
		return false
	}
	folded := strings.ToLower(key)

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.keys[folded]; exists {
		return false
	}
	p.entries[key] = ""
	p.keys[folded] = key
	p.dirty = true
	return true
}

// Len returns the number of configured (non-empty) preferences
func (p *Preferences) Len() int {
	if p == nil {
		return 0
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.index)
}

// Dirty reports whether placeholders were added since loading
func (p *Preferences) Dirty() bool {
	if p == nil {
		return false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.dirty
}

// Save writes the preference file back, including placeholders
func (p *Preferences) Save() error {
	if p == nil || p.fs == nil || p.path == "" {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	doc := preferencesFile{
		MetadataVersion: preferencesVersion,
		Defaults:        p.defaults,
		Preferences:     p.entries,
	}

	var buf bytes.Buffer
	buf.WriteString("# Artist name preferences. Fill in the romanized name you want for each artist.\n")
	enc := toml.NewEncoder(&buf)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode preferences: %w", err)
	}

	if dir := filepath.Dir(p.path); dir != "" {
		if err := p.fs.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	if err := afero.WriteFile(p.fs, p.path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write preferences %s: %w", p.path, err)
	}

	p.dirty = false
	return nil
}

// Names returns every configured or placeholder artist name, sorted
func (p *Preferences) Names() []string {
	if p == nil {
		return nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	names := make([]string, 0, len(p.entries))
	for k := range p.entries {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
