package meta

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/dhowden/tag"
	"github.com/franz/music-shelver/internal/util"
)

// TagItem is one raw tag key/value pair
type TagItem struct {
	Key   string
	Value string
}

// TagMap is the read-only view of a file's raw tags the normalizer needs
type TagMap interface {
	Get(key string) (string, bool)
	Items() []TagItem
}

// MapTags is a TagMap backed by a map. Keys are matched case-insensitively.
type MapTags map[string]string

// Get returns the value for key, ignoring case
func (m MapTags) Get(key string) (string, bool) {
	if v, ok := m[key]; ok {
		return v, true
	}
	lower := strings.ToLower(key)
	for k, v := range m {
		if strings.ToLower(k) == lower {
			return v, true
		}
	}
	return "", false
}

// Items returns all pairs sorted by key
func (m MapTags) Items() []TagItem {
	items := make([]TagItem, 0, len(m))
	for k, v := range m {
		items = append(items, TagItem{Key: k, Value: v})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Key < items[j].Key })
	return items
}

// Extract reads the tags of an audio file with dhowden/tag. Common fields are
// exposed under normalized keys; string-valued raw frames fill in anything
// the common accessors do not cover.
func Extract(path string) (MapTags, error) {
	f, err := util.RetryableOpen(path, util.DefaultRetryConfig())
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open file: %v", util.ErrIO, err)
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read tags: %v", util.ErrMetadata, err)
	}

	tags := MapTags{}
	set := func(key, value string) {
		if value = strings.TrimSpace(value); value != "" {
			tags[key] = value
		}
	}

	set("title", m.Title())
	set("artist", m.Artist())
	set("album", m.Album())
	set("albumartist", m.AlbumArtist())
	set("genre", m.Genre())
	if m.Year() > 0 {
		set("date", strconv.Itoa(m.Year()))
	}
	if n, total := m.Track(); n > 0 {
		set("tracknumber", numberPair(n, total))
	}
	if n, total := m.Disc(); n > 0 {
		set("discnumber", numberPair(n, total))
	}

	for key, raw := range m.Raw() {
		s, ok := raw.(string)
		if !ok {
			continue
		}
		key = strings.ToLower(key)
		if _, exists := tags[key]; !exists {
			set(key, s)
		}
	}

	return tags, nil
}

func numberPair(n, total int) string {
	if total > 0 {
		return fmt.Sprintf("%d/%d", n, total)
	}
	return strconv.Itoa(n)
}
