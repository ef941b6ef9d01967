package pathgen

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/franz/music-shelver/internal/meta"
	"github.com/franz/music-shelver/internal/store"
	"github.com/franz/music-shelver/internal/util"
)

// Target is a generated location relative to the library root
type Target struct {
	Dir      string
	Filename string
	Album    AlbumKey
}

// RelPath returns the directory and file name joined
func (t Target) RelPath() string {
	return filepath.Join(t.Dir, t.Filename)
}

// Generator derives directory and file names from normalized metadata.
// Album context must be registered in Albums before Generate is called.
type Generator struct {
	albums *Albums
	ids    *CachedArtistIDs
	layout *Layout
}

// NewGenerator creates a generator. A nil ids generates artist IDs without
// caching; a nil layout uses Artist/YYYY_Album directories.
func NewGenerator(albums *Albums, ids *CachedArtistIDs, layout *Layout) *Generator {
	if albums == nil {
		albums = NewAlbums()
	}
	return &Generator{albums: albums, ids: ids, layout: layout}
}

// Albums returns the album registry used by the generator
func (g *Generator) Albums() *Albums {
	return g.albums
}

// Layout returns the custom directory layout, or nil
func (g *Generator) Layout() *Layout {
	return g.layout
}

// Generate returns the target directory and file name for a track
func (g *Generator) Generate(ctx context.Context, md *meta.TrackMetadata) Target {
	key := KeyFor(md)
	album, _ := g.albums.Get(key)
	return Target{
		Dir:      g.directory(md, &album),
		Filename: g.filename(ctx, md, &album),
		Album:    key,
	}
}

// Directory returns the album directory for a track
func (g *Generator) Directory(md *meta.TrackMetadata) string {
	album, _ := g.albums.Get(KeyFor(md))
	return g.directory(md, &album)
}

// Filename returns the file name for a track
func (g *Generator) Filename(ctx context.Context, md *meta.TrackMetadata) string {
	album, _ := g.albums.Get(KeyFor(md))
	return g.filename(ctx, md, &album)
}

func (g *Generator) directory(md *meta.TrackMetadata, album *AlbumInfo) string {
	if g.layout != nil {
		var parts []string
		for _, v := range g.layout.Values(md, album) {
			parts = append(parts, v.Value)
		}
		return filepath.Join(parts...)
	}
	return filepath.Join(album.DirArtist(), album.YearString()+"_"+album.DirAlbum())
}

// filename builds [D{disc}_]{track}_{title}_{artistID}{ext}
func (g *Generator) filename(ctx context.Context, md *meta.TrackMetadata, album *AlbumInfo) string {
	track := "XX"
	if md.TrackNumber > 0 {
		track = fmt.Sprintf("%0*d", max(2, album.TrackWidth), md.TrackNumber)
	}

	var b strings.Builder
	if md.DiscNumber > 0 && (album.DiscPrefix || md.DiscTotal > 1 || md.DiscNumber > 1) {
		b.WriteString("D" + strconv.Itoa(md.DiscNumber) + "_")
	}
	b.WriteString(track)
	b.WriteString("_")
	b.WriteString(SanitizeTitle(md.Title))
	b.WriteString("_")
	b.WriteString(g.ids.Generate(ctx, md.Artist))
	b.WriteString(md.FileExtension)
	return b.String()
}

// Layout components understood in a path format
var layoutFields = map[string]func(md *meta.TrackMetadata, album *AlbumInfo) string{
	"albumartist": func(md *meta.TrackMetadata, album *AlbumInfo) string { return album.DirArtist() },
	"artist":      func(md *meta.TrackMetadata, album *AlbumInfo) string { return SanitizeArtist(md.Artist) },
	"album":       func(md *meta.TrackMetadata, album *AlbumInfo) string { return album.DirAlbum() },
	"genre":       func(md *meta.TrackMetadata, album *AlbumInfo) string { return SanitizeAlbum(md.Genre) },
	"year": func(md *meta.TrackMetadata, album *AlbumInfo) string {
		if album.Year == 0 {
			return ""
		}
		return album.YearString()
	},
	"decade": func(md *meta.TrackMetadata, album *AlbumInfo) string {
		if album.Year == 0 {
			return ""
		}
		return fmt.Sprintf("%ds", album.Year/10*10)
	},
}

// Layout is a custom directory layout such as "Genre/AlbumArtist/Album".
// Each component is a filter hierarchy; its priority is its position.
type Layout struct {
	names []string
}

// LayoutValue is one component value for a file
type LayoutValue struct {
	Hierarchy string
	Priority  int
	Value     string
}

// ParseLayout parses a slash-separated path format. Component names are
// case-insensitive.
func ParseLayout(format string) (*Layout, error) {
	format = strings.Trim(strings.TrimSpace(format), "/")
	if format == "" {
		return nil, fmt.Errorf("%w: empty path format", util.ErrValidation)
	}
	l := &Layout{}
	seen := make(map[string]bool)
	for _, part := range strings.Split(format, "/") {
		name := strings.TrimSpace(part)
		key := strings.ToLower(name)
		if _, ok := layoutFields[key]; !ok {
			return nil, fmt.Errorf("%w: unknown path component %q", util.ErrValidation, name)
		}
		if seen[key] {
			return nil, fmt.Errorf("%w: duplicate path component %q", util.ErrValidation, name)
		}
		seen[key] = true
		l.names = append(l.names, name)
	}
	return l, nil
}

// Names returns the component names in order
func (l *Layout) Names() []string {
	return append([]string(nil), l.names...)
}

// Values returns the sanitized component values for a track. A missing
// value becomes "Unknown-<Name>".
func (l *Layout) Values(md *meta.TrackMetadata, album *AlbumInfo) []LayoutValue {
	values := make([]LayoutValue, 0, len(l.names))
	for i, name := range l.names {
		v := layoutFields[strings.ToLower(name)](md, album)
		if v == "" {
			v = "Unknown-" + name
		}
		values = append(values, LayoutValue{Hierarchy: name, Priority: i, Value: v})
	}
	return values
}

// FilterStore persists layout hierarchies and per-file values
type FilterStore interface {
	EnsureHierarchy(ctx context.Context, name string, priority int) (int64, error)
	InsertFilterValue(ctx context.Context, v *store.FilterValue) error
}

// Record stores the layout values of one file
func (l *Layout) Record(ctx context.Context, fs FilterStore, hash string, values []LayoutValue) error {
	for _, v := range values {
		id, err := fs.EnsureHierarchy(ctx, v.Hierarchy, v.Priority)
		if err != nil {
			return err
		}
		if err := fs.InsertFilterValue(ctx, &store.FilterValue{
			HierarchyID: id,
			FileHash:    hash,
			Value:       v.Value,
		}); err != nil {
			return err
		}
	}
	return nil
}
