package meta

import (
	"context"
	"strings"
	"sync"

	"github.com/franz/music-shelver/internal/store"
	"github.com/franz/music-shelver/internal/util"
	"golang.org/x/sync/singleflight"
)

// Lookup resolves a romanized artist name from an external service. An empty
// result with a nil error means the service does not know the artist.
type Lookup interface {
	LookupRomanized(ctx context.Context, name string) (string, error)
}

// Cache is the persistent side of the romanization cache
type Cache interface {
	GetRomanizedName(ctx context.Context, name string) (*store.RomanizedName, error)
	UpsertRomanizedName(ctx context.Context, name, romanized, source string) error
}

// Romanization is a resolved name and where it came from
type Romanization struct {
	Name   string
	Source string
}

// Romanizer resolves artist names in order: user preference, persistent
// cache, external lookup, local transliteration, original name. Results are
// memoized for the lifetime of the Romanizer.
type Romanizer struct {
	prefs  *Preferences
	cache  Cache
	lookup Lookup

	mu    sync.RWMutex
	memo  map[string]Romanization
	group singleflight.Group
}

// RomanizerConfig holds romanizer collaborators; all are optional
type RomanizerConfig struct {
	Preferences *Preferences
	Cache       Cache
	Lookup      Lookup
}

// NewRomanizer creates a romanizer
func NewRomanizer(cfg *RomanizerConfig) *Romanizer {
	r := &Romanizer{memo: make(map[string]Romanization)}
	if cfg != nil {
		r.prefs = cfg.Preferences
		r.cache = cfg.Cache
		r.lookup = cfg.Lookup
	}
	return r
}

// Romanize returns the resolved name for an artist string. Comma-joined
// artists are resolved one by one and re-joined.
func (r *Romanizer) Romanize(ctx context.Context, name string) string {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return name
	}

	if strings.Contains(trimmed, ", ") {
		var parts []string
		for _, part := range strings.Split(trimmed, ", ") {
			if part = strings.TrimSpace(part); part != "" {
				parts = append(parts, r.Resolve(ctx, part).Name)
			}
		}
		if len(parts) == 0 {
			return name
		}
		return strings.Join(parts, ", ")
	}

	return r.Resolve(ctx, trimmed).Name
}

// Resolve romanizes a single artist name and reports the source used
func (r *Romanizer) Resolve(ctx context.Context, name string) Romanization {
	r.mu.RLock()
	hit, ok := r.memo[name]
	r.mu.RUnlock()
	if ok {
		return hit
	}

	v, _, _ := r.group.Do(name, func() (any, error) {
		r.mu.RLock()
		hit, ok := r.memo[name]
		r.mu.RUnlock()
		if ok {
			return hit, nil
		}

		res := r.resolve(ctx, name)
		r.mu.Lock()
		r.memo[name] = res
		r.mu.Unlock()
		return res, nil
	})
	return v.(Romanization)
}

// cacheClearer is a Cache that can drop every persisted entry
type cacheClearer interface {
	ClearArtistCache(ctx context.Context) (int64, error)
}

// Clear drops the in-memory memo and, when the cache supports it, every
// persisted entry. It returns the number of persisted entries removed.
func (r *Romanizer) Clear(ctx context.Context) (int64, error) {
	r.mu.Lock()
	r.memo = make(map[string]Romanization)
	r.mu.Unlock()

	c, ok := r.cache.(cacheClearer)
	if !ok {
		return 0, nil
	}
	return c.ClearArtistCache(ctx)
}

func (r *Romanizer) resolve(ctx context.Context, name string) Romanization {
	if preferred, ok := r.prefs.Resolve(name); ok {
		util.DebugLog("Using artist name preference for '%s' -> '%s'", name, preferred)
		return Romanization{Name: preferred, Source: store.SourcePreference}
	}

	if IsLatin(name) {
		return Romanization{Name: name, Source: store.SourceOriginal}
	}

	r.prefs.AddPlaceholder(name)

	var cached *store.RomanizedName
	if r.cache != nil {
		c, err := r.cache.GetRomanizedName(ctx, name)
		if err != nil {
			util.WarnLog("Failed to read romanization cache for '%s': %v", name, err)
		} else if c != nil && IsLatin(c.Romanized) {
			cached = c
		}
	}
	// A cached transliteration is only a placeholder while a lookup is possible
	if cached != nil && (cached.Source != store.SourceTransliteration || r.lookup == nil || !HasCJK(name)) {
		return Romanization{Name: cached.Romanized, Source: cached.Source}
	}

	if r.lookup != nil && HasCJK(name) {
		found, err := r.lookup.LookupRomanized(ctx, name)
		found = strings.TrimSpace(found)
		switch {
		case err != nil:
			util.DebugLog("Romanization lookup failed for '%s': %v", name, err)
		case found != "":
			util.InfoLog("MusicBrainz romanized '%s' -> '%s'", name, found)
			r.store(ctx, name, found, store.SourceMusicBrainz)
			return Romanization{Name: found, Source: store.SourceMusicBrainz}
		}
	}

	if cached != nil {
		return Romanization{Name: cached.Romanized, Source: cached.Source}
	}

	if t := Transliterate(name); t != "" && t != name {
		util.DebugLog("Transliterated '%s' -> '%s'", name, t)
		r.store(ctx, name, t, store.SourceTransliteration)
		return Romanization{Name: t, Source: store.SourceTransliteration}
	}

	return Romanization{Name: name, Source: store.SourceOriginal}
}

func (r *Romanizer) store(ctx context.Context, name, romanized, source string) {
	if r.cache == nil {
		return
	}
	if err := r.cache.UpsertRomanizedName(ctx, name, romanized, source); err != nil {
		util.WarnLog("Failed to cache romanized name for '%s': %v", name, err)
	}
}
