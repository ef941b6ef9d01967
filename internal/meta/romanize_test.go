package meta

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/franz/music-shelver/internal/store"
)

type fakeLookup struct {
	results map[string]string
	err     error
	calls   atomic.Int32
}

func (f *fakeLookup) LookupRomanized(ctx context.Context, name string) (string, error) {
	f.calls.Add(1)
	if f.err != nil {
		return "", f.err
	}
	return f.results[name], nil
}

func openCache(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRomanizerPrecedence(t *testing.T) {
	ctx := context.Background()

	t.Run("preference wins over everything", func(t *testing.T) {
		prefs := NewPreferences()
		prefs.entries["宇多田ヒカル"] = "Hikaru Utada"
		prefs.index["宇多田ヒカル"] = "Hikaru Utada"
		prefs.keys["宇多田ヒカル"] = "宇多田ヒカル"

		lookup := &fakeLookup{results: map[string]string{"宇多田ヒカル": "Utada Hikaru"}}
		r := NewRomanizer(&RomanizerConfig{Preferences: prefs, Lookup: lookup})

		got := r.Resolve(ctx, "宇多田ヒカル")
		if got.Name != "Hikaru Utada" || got.Source != store.SourcePreference {
			t.Errorf("got %+v", got)
		}
		if lookup.calls.Load() != 0 {
			t.Error("lookup should not be called when a preference exists")
		}
	})

	t.Run("latin names are left alone", func(t *testing.T) {
		lookup := &fakeLookup{}
		r := NewRomanizer(&RomanizerConfig{Lookup: lookup})
		got := r.Resolve(ctx, "Björk")
		if got.Name != "Björk" || got.Source != store.SourceOriginal {
			t.Errorf("got %+v", got)
		}
		if lookup.calls.Load() != 0 {
			t.Error("lookup should not be called for Latin names")
		}
	})

	t.Run("persistent cache before lookup", func(t *testing.T) {
		cache := openCache(t)
		if err := cache.UpsertRomanizedName(ctx, "米津玄師", "Kenshi Yonezu", store.SourceMusicBrainz); err != nil {
			t.Fatal(err)
		}
		lookup := &fakeLookup{results: map[string]string{"米津玄師": "Other"}}
		r := NewRomanizer(&RomanizerConfig{Cache: cache, Lookup: lookup})

		got := r.Resolve(ctx, "米津玄師")
		if got.Name != "Kenshi Yonezu" || got.Source != store.SourceMusicBrainz {
			t.Errorf("got %+v", got)
		}
		if lookup.calls.Load() != 0 {
			t.Error("lookup should not be called on a cache hit")
		}
	})

	t.Run("lookup result is written through", func(t *testing.T) {
		cache := openCache(t)
		lookup := &fakeLookup{results: map[string]string{"米津玄師": "Kenshi Yonezu"}}
		r := NewRomanizer(&RomanizerConfig{Cache: cache, Lookup: lookup})

		got := r.Resolve(ctx, "米津玄師")
		if got.Name != "Kenshi Yonezu" || got.Source != store.SourceMusicBrainz {
			t.Errorf("got %+v", got)
		}
		cached, err := cache.GetRomanizedName(ctx, "米津玄師")
		if err != nil {
			t.Fatal(err)
		}
		if cached == nil || cached.Romanized != "Kenshi Yonezu" {
			t.Errorf("expected write-through, got %+v", cached)
		}
	})

	t.Run("lookup failure falls back to transliteration", func(t *testing.T) {
		cache := openCache(t)
		lookup := &fakeLookup{err: errors.New("service unavailable")}
		r := NewRomanizer(&RomanizerConfig{Cache: cache, Lookup: lookup})

		got := r.Resolve(ctx, "ひかる")
		if got.Source != store.SourceTransliteration || got.Name == "" || !IsLatin(got.Name) {
			t.Errorf("got %+v", got)
		}
		cached, _ := cache.GetRomanizedName(ctx, "ひかる")
		if cached == nil || cached.Source != store.SourceTransliteration {
			t.Errorf("expected transliteration to be cached, got %+v", cached)
		}
	})

	t.Run("cached transliteration is upgraded by lookup", func(t *testing.T) {
		cache := openCache(t)
		if err := cache.UpsertRomanizedName(ctx, "ひかる", "hikaru", store.SourceTransliteration); err != nil {
			t.Fatal(err)
		}
		lookup := &fakeLookup{results: map[string]string{"ひかる": "Hikaru"}}
		r := NewRomanizer(&RomanizerConfig{Cache: cache, Lookup: lookup})

		got := r.Resolve(ctx, "ひかる")
		if got.Name != "Hikaru" || got.Source != store.SourceMusicBrainz {
			t.Errorf("got %+v", got)
		}
	})

	t.Run("non-CJK scripts skip the lookup", func(t *testing.T) {
		lookup := &fakeLookup{}
		r := NewRomanizer(&RomanizerConfig{Lookup: lookup})
		got := r.Resolve(ctx, "Кино")
		if got.Name != "Kino" || got.Source != store.SourceTransliteration {
			t.Errorf("got %+v", got)
		}
		if lookup.calls.Load() != 0 {
			t.Error("lookup should only be used for CJK names")
		}
	})
}

func TestRomanizeSplitsArtistList(t *testing.T) {
	lookup := &fakeLookup{results: map[string]string{
		"倉本千奈": "Chika Kuramoto",
		"白沢ひろ": "Hiro Shirosawa",
	}}
	r := NewRomanizer(&RomanizerConfig{Lookup: lookup})

	got := r.Romanize(context.Background(), "倉本千奈, 白沢ひろ, John Smith")
	if got != "Chika Kuramoto, Hiro Shirosawa, John Smith" {
		t.Errorf("Romanize() = %q", got)
	}
	if r.Romanize(context.Background(), "   ") != "   " {
		t.Error("whitespace-only names should be returned unchanged")
	}
}

func TestRomanizerMemoAndSingleflight(t *testing.T) {
	lookup := &fakeLookup{results: map[string]string{"米津玄師": "Kenshi Yonezu"}}
	r := NewRomanizer(&RomanizerConfig{Lookup: lookup})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if got := r.Romanize(context.Background(), "米津玄師"); got != "Kenshi Yonezu" {
				t.Errorf("Romanize() = %q", got)
			}
		}()
	}
	wg.Wait()

	if n := lookup.calls.Load(); n != 1 {
		t.Errorf("expected one lookup, got %d", n)
	}

	if n, err := r.Clear(context.Background()); err != nil || n != 0 {
		t.Fatalf("Clear without a persistent cache = %d, %v", n, err)
	}
	r.Romanize(context.Background(), "米津玄師")
	if n := lookup.calls.Load(); n != 2 {
		t.Errorf("expected Clear to force a new lookup, got %d calls", n)
	}
}

func TestRomanizerClearDropsPersistentCache(t *testing.T) {
	ctx := context.Background()
	cache := openCache(t)
	lookup := &fakeLookup{results: map[string]string{"米津玄師": "Kenshi Yonezu"}}
	r := NewRomanizer(&RomanizerConfig{Cache: cache, Lookup: lookup})

	r.Romanize(ctx, "米津玄師")
	cached, err := cache.GetRomanizedName(ctx, "米津玄師")
	if err != nil || cached == nil {
		t.Fatalf("expected a cached romanization, got %+v, %v", cached, err)
	}

	n, err := r.Clear(ctx)
	if err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 cleared entry, got %d", n)
	}
	if cached, _ := cache.GetRomanizedName(ctx, "米津玄師"); cached != nil {
		t.Errorf("expected persistent entry to be gone, got %+v", cached)
	}

	r.Romanize(ctx, "米津玄師")
	if calls := lookup.calls.Load(); calls != 2 {
		t.Errorf("expected a fresh lookup after Clear, got %d calls", calls)
	}
}

func TestRomanizerAddsPlaceholders(t *testing.T) {
	prefs := NewPreferences()
	r := NewRomanizer(&RomanizerConfig{Preferences: prefs})

	r.Romanize(context.Background(), "ひかる")
	r.Romanize(context.Background(), "John Smith")

	names := prefs.Names()
	if len(names) != 1 || names[0] != "ひかる" {
		t.Errorf("expected placeholder only for the non-Latin name, got %v", names)
	}
	if !prefs.Dirty() {
		t.Error("expected preferences to be dirty")
	}
}
