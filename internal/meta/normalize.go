package meta

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

const (
	// UnknownArtist is used when a file carries no artist tag
	UnknownArtist = "Unknown Artist"
	// UnknownAlbum is used when a file carries no album tag
	UnknownAlbum = "Unknown Album"
)

// TrackMetadata is the normalized view of one audio file's tags
type TrackMetadata struct {
	Title         string
	Artist        string
	Album         string
	AlbumArtist   string
	Genre         string
	Year          int
	TrackNumber   int
	TrackTotal    int
	DiscNumber    int
	DiscTotal     int
	FileExtension string
}

// Tag keys tried in order for each field. Covers Vorbis comments, ID3v2
// frame IDs and MP4 atoms as exposed by dhowden/tag raw maps.
var (
	titleKeys       = []string{"title", "tit2", "©nam"}
	artistKeys      = []string{"artist", "tpe1", "©art"}
	albumKeys       = []string{"album", "talb", "©alb"}
	albumArtistKeys = []string{"albumartist", "album_artist", "album artist", "tpe2", "aart"}
	genreKeys       = []string{"genre", "tcon", "©gen"}
	dateKeys        = []string{"date", "year", "tdrc", "tyer", "©day"}
	trackKeys       = []string{"tracknumber", "track", "trck", "trkn"}
	trackTotalKeys  = []string{"tracktotal", "totaltracks"}
	discKeys        = []string{"discnumber", "disc", "tpos", "disk"}
	discTotalKeys   = []string{"disctotal", "totaldiscs"}
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// Normalizer turns raw tag maps into TrackMetadata
type Normalizer struct {
	romanizer *Romanizer
}

// NewNormalizer creates a normalizer. A nil romanizer leaves artist names as
// tagged.
func NewNormalizer(r *Romanizer) *Normalizer {
	return &Normalizer{romanizer: r}
}

// Normalize builds TrackMetadata from tags. Invalid numeric values are
// dropped and reported as warnings rather than failing the file.
func (n *Normalizer) Normalize(ctx context.Context, tags TagMap, path string) (*TrackMetadata, []string) {
	var warnings []string
	warn := func(format string, args ...any) {
		warnings = append(warnings, fmt.Sprintf(format, args...))
	}

	md := &TrackMetadata{
		Title:         CleanString(lookup(tags, titleKeys)),
		Artist:        CleanString(lookup(tags, artistKeys)),
		Album:         CleanString(lookup(tags, albumKeys)),
		AlbumArtist:   CleanString(lookup(tags, albumArtistKeys)),
		Genre:         CleanString(lookup(tags, genreKeys)),
		FileExtension: strings.ToLower(filepath.Ext(path)),
	}

	if raw := lookup(tags, dateKeys); raw != "" {
		if year, ok := ParseYear(raw); ok {
			md.Year = year
		} else {
			warn("invalid year %q", raw)
		}
	}

	if raw := lookup(tags, trackKeys); raw != "" {
		num, total, ok := ParseNumberPair(raw)
		if !ok {
			warn("invalid track number %q", raw)
		}
		md.TrackNumber, md.TrackTotal = num, total
	}
	if raw := lookup(tags, trackTotalKeys); raw != "" && md.TrackTotal == 0 {
		if v, ok := parsePositive(raw); ok {
			md.TrackTotal = v
		} else {
			warn("invalid track total %q", raw)
		}
	}

	if raw := lookup(tags, discKeys); raw != "" {
		num, total, ok := ParseNumberPair(raw)
		if !ok {
			warn("invalid disc number %q", raw)
		}
		md.DiscNumber, md.DiscTotal = num, total
	}
	if raw := lookup(tags, discTotalKeys); raw != "" && md.DiscTotal == 0 {
		if v, ok := parsePositive(raw); ok {
			md.DiscTotal = v
		} else {
			warn("invalid disc total %q", raw)
		}
	}

	if n.romanizer != nil {
		md.Artist = n.romanizer.Romanize(ctx, md.Artist)
		md.AlbumArtist = n.romanizer.Romanize(ctx, md.AlbumArtist)
	}

	if md.Artist == "" {
		md.Artist = UnknownArtist
		warn("missing artist")
	}
	if md.AlbumArtist == "" {
		md.AlbumArtist = md.Artist
	}
	if md.Album == "" {
		md.Album = UnknownAlbum
		warn("missing album")
	}

	return md, warnings
}

func lookup(tags TagMap, keys []string) string {
	if tags == nil {
		return ""
	}
	for _, key := range keys {
		if v, ok := tags.Get(key); ok && strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// ParseNumberPair parses "3", "3/12" or "/12". Parts that are not positive
// integers become zero and ok is false.
func ParseNumberPair(s string) (num, total int, ok bool) {
	ok = true
	parts := strings.SplitN(strings.TrimSpace(s), "/", 2)

	if p := strings.TrimSpace(parts[0]); p != "" {
		if v, valid := parsePositive(p); valid {
			num = v
		} else {
			ok = false
		}
	}
	if len(parts) == 2 {
		if p := strings.TrimSpace(parts[1]); p != "" {
			if v, valid := parsePositive(p); valid {
				total = v
			} else {
				ok = false
			}
		}
	}
	return num, total, ok
}

// ParseYear reads a year from the first four characters of a date string
// such as "2020", "2020-05-01" or "2020-05-01T10:00:00".
func ParseYear(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if len(s) < 4 {
		return 0, false
	}
	year, err := strconv.Atoi(s[:4])
	if err != nil || year <= 0 {
		return 0, false
	}
	return year, true
}

func parsePositive(s string) (int, bool) {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}

// CleanString performs basic string cleaning (Unicode, trim, collapse)
func CleanString(s string) string {
	if s == "" {
		return ""
	}

	// Unicode NFC normalization
	s = norm.NFC.String(s)

	return collapseWhitespace(s)
}

// collapseWhitespace replaces runs of whitespace with a single space
func collapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}
