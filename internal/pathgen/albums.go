package pathgen

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/franz/music-shelver/internal/meta"
)

// AlbumKey identifies an album by its normalized artist and name. Keys are
// not sanitized: two albums only share a key when their tags agree.
type AlbumKey struct {
	Artist string
	Album  string
}

func (k AlbumKey) String() string {
	return k.Artist + "|" + k.Album
}

// AlbumInfo is the context aggregated across every registered track of an
// album
type AlbumInfo struct {
	Key         AlbumKey
	Name        string // album name as tagged
	Artist      string // album artist as tagged
	Year        int    // earliest non-zero year, 0 when unknown
	TrackWidth  int    // digits used for track numbers, at least 2
	DiscPrefix  bool   // emit D{n}_ for every track of the album
	TotalTracks int
	TotalDiscs  int
	Tracks      int
}

// DirArtist returns the album artist as a directory name
func (a *AlbumInfo) DirArtist() string {
	if s := SanitizeArtist(a.Key.Artist); s != "" {
		return s
	}
	return UnknownArtist
}

// DirAlbum returns the album name as a directory name component
func (a *AlbumInfo) DirAlbum() string {
	if s := SanitizeAlbum(a.Key.Album); s != "" {
		return s
	}
	return UnknownAlbum
}

// YearString formats the album year as four digits ("0000" when unknown)
func (a *AlbumInfo) YearString() string {
	return fmt.Sprintf("%04d", a.Year)
}

// Albums aggregates album context across a batch. Every track must be
// registered before paths are generated so all tracks of an album share one
// year, one track width and one disc-prefix decision.
type Albums struct {
	mu     sync.Mutex
	albums map[AlbumKey]*AlbumInfo
	order  []AlbumKey
}

// NewAlbums creates an empty album registry
func NewAlbums() *Albums {
	return &Albums{albums: make(map[AlbumKey]*AlbumInfo)}
}

// KeyFor returns the album key for a track
func KeyFor(md *meta.TrackMetadata) AlbumKey {
	artist := md.AlbumArtist
	if artist == "" {
		artist = meta.UnknownArtist
	}
	album := md.Album
	if album == "" {
		album = meta.UnknownAlbum
	}
	return AlbumKey{Artist: artist, Album: album}
}

// Register folds a track into its album's context and returns the key
func (a *Albums) Register(md *meta.TrackMetadata) AlbumKey {
	key := KeyFor(md)

	a.mu.Lock()
	defer a.mu.Unlock()

	info, ok := a.albums[key]
	if !ok {
		info = &AlbumInfo{Key: key, Name: md.Album, Artist: md.AlbumArtist, TrackWidth: 2}
		a.albums[key] = info
		a.order = append(a.order, key)
	}
	info.Tracks++

	if md.Year > 0 && (info.Year == 0 || md.Year < info.Year) {
		info.Year = md.Year
	}
	if md.TrackNumber > 0 {
		if w := len(strconv.Itoa(md.TrackNumber)); w > info.TrackWidth {
			info.TrackWidth = w
		}
	}
	if md.DiscTotal > 1 || md.DiscNumber > 1 {
		info.DiscPrefix = true
	}
	info.TotalTracks = max(info.TotalTracks, md.TrackTotal, md.TrackNumber)
	info.TotalDiscs = max(info.TotalDiscs, md.DiscTotal, md.DiscNumber)
	return key
}

// Merge folds previously persisted album state into a registered album, so
// tracks added in a later run land in the same directory. Unregistered keys
// are ignored.
func (a *Albums) Merge(key AlbumKey, year, totalTracks, totalDiscs int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	info, ok := a.albums[key]
	if !ok {
		return
	}
	if year > 0 && (info.Year == 0 || year < info.Year) {
		info.Year = year
	}
	if totalDiscs > 1 {
		info.DiscPrefix = true
	}
	info.TotalTracks = max(info.TotalTracks, totalTracks)
	info.TotalDiscs = max(info.TotalDiscs, totalDiscs)
}

// Get returns a copy of the album context for key
func (a *Albums) Get(key AlbumKey) (AlbumInfo, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	info, ok := a.albums[key]
	if !ok {
		return AlbumInfo{Key: key, TrackWidth: 2}, false
	}
	return *info, true
}

// List returns album contexts in registration order
func (a *Albums) List() []AlbumInfo {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]AlbumInfo, 0, len(a.order))
	for _, k := range a.order {
		out = append(out, *a.albums[k])
	}
	return out
}

// Len returns the number of registered albums
func (a *Albums) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.albums)
}

// Clear forgets every registered album
func (a *Albums) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.albums = make(map[AlbumKey]*AlbumInfo)
	a.order = nil
}
