package pathgen

import (
	"context"
	"strings"

	"github.com/franz/music-shelver/internal/util"
	"github.com/mozillazg/go-unidecode"
)

// Artist ID constants
const (
	ArtistIDLength   = 8
	DefaultArtistID  = "NOART"
	FallbackArtistID = "XXXXXXXX"
)

// wordToken is one character of a normalized word. Processed tokens form
// the vowel-stripped skeleton; the rest are dropped vowels that may be
// re-added when there is room.
type wordToken struct {
	char      rune
	processed bool
	included  bool
}

type wordState struct {
	tokens     []wordToken
	nextUnused int
}

// newWordState aligns the processed skeleton against the original word
func newWordState(processed, original []rune) *wordState {
	st := &wordState{tokens: make([]wordToken, 0, len(original))}
	pidx := 0
	for _, c := range original {
		if pidx < len(processed) && c == processed[pidx] {
			st.tokens = append(st.tokens, wordToken{char: c, processed: true})
			pidx++
		} else {
			st.tokens = append(st.tokens, wordToken{char: c})
		}
	}
	return st
}

func (w *wordState) chars() string {
	var b strings.Builder
	for _, t := range w.tokens {
		if t.included {
			b.WriteRune(t.char)
		}
	}
	return b.String()
}

func (w *wordState) length() int {
	n := 0
	for _, t := range w.tokens {
		if t.included {
			n++
		}
	}
	return n
}

func (w *wordState) processedTotal() int {
	n := 0
	for _, t := range w.tokens {
		if t.processed {
			n++
		}
	}
	return n
}

// includeProcessedPrefix includes the first count processed tokens and
// nothing else
func (w *wordState) includeProcessedPrefix(count int) {
	for i := range w.tokens {
		t := &w.tokens[i]
		if t.processed && count > 0 {
			t.included = true
			count--
			continue
		}
		t.included = false
	}
	w.nextUnused = 0
}

func (w *wordState) hasUnused() bool {
	for _, t := range w.tokens {
		if !t.included && !t.processed {
			return true
		}
	}
	return false
}

// activateNext includes the next dropped character in word order
func (w *wordState) activateNext() bool {
	for idx := w.nextUnused; idx < len(w.tokens); idx++ {
		t := &w.tokens[idx]
		if !t.included && !t.processed {
			t.included = true
			w.nextUnused = idx + 1
			return true
		}
	}
	w.nextUnused = len(w.tokens)
	return false
}

// segment is a normalized word and its vowel-stripped form
type segment struct {
	processed []rune
	original  []rune
}

func processWord(word string) segment {
	r := []rune(word)
	if len(r) == 0 {
		return segment{}
	}
	p := []rune{r[0]}
	for _, c := range r[1:] {
		switch c {
		case 'A', 'E', 'I', 'O', 'U':
		default:
			p = append(p, c)
		}
	}
	return segment{processed: p, original: r}
}

// normalizeArtist transliterates to ASCII, sanitizes and upper-cases
func normalizeArtist(name string) string {
	return strings.ToUpper(SanitizeArtist(unidecode.Unidecode(name)))
}

func prepareSegments(artist string) ([]segment, string) {
	normalized := normalizeArtist(artist)
	if normalized == "" {
		return nil, ""
	}
	var segments []segment
	for _, word := range strings.Split(normalized, "-") {
		if word != "" {
			segments = append(segments, processWord(word))
		}
	}
	return segments, normalized
}

// GenerateArtistID derives the short artist identifier used in file names.
// Words keep their first letter and consonants, shared round robin across
// words; dropped vowels are added back in order while the ID is short.
// Comma-separated artists split the budget between them the same way.
func GenerateArtistID(name string) string {
	if strings.TrimSpace(name) == "" {
		return DefaultArtistID
	}

	artists := splitArtists(name)
	if len(artists) <= 1 {
		segments, normalized := prepareSegments(strings.TrimSpace(name))
		return singleArtistID(segments, normalized, ArtistIDLength)
	}

	type entry struct {
		segments   []segment
		normalized string
	}
	var entries []entry
	var normalizedParts []string
	for _, a := range artists {
		segments, normalized := prepareSegments(a)
		if len(segments) > 0 || normalized != "" {
			entries = append(entries, entry{segments, normalized})
		}
		if normalized != "" {
			normalizedParts = append(normalizedParts, normalized)
		}
	}

	if len(entries) > 0 {
		capacities := make([]int, len(entries))
		for i, e := range entries {
			capacities[i] = tokenCapacity(e.segments, e.normalized)
		}
		shares := distributeShares(capacities, ArtistIDLength)

		var b strings.Builder
		for i, e := range entries {
			share := shares[i]
			if share <= 0 {
				continue
			}
			if frag := singleArtistID(e.segments, e.normalized, share); frag != "" {
				b.WriteString(frag)
			} else if n := truncateRunes(e.normalized, share); n != "" {
				b.WriteString(n)
			} else {
				b.WriteString(truncateRunes(joinOriginals(e.segments), share))
			}
		}
		if id := truncateRunes(b.String(), ArtistIDLength); id != "" {
			return id
		}
	}

	if joined := strings.Join(normalizedParts, ""); joined != "" {
		return truncateRunes(joined, ArtistIDLength)
	}
	return FallbackArtistID
}

func splitArtists(name string) []string {
	var parts []string
	for _, p := range strings.Split(name, ",") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

func singleArtistID(segments []segment, normalized string, target int) string {
	if target <= 0 {
		return ""
	}
	if normalized == "" {
		return FallbackArtistID[:min(target, len(FallbackArtistID))]
	}
	if len([]rune(normalized)) <= target && !strings.Contains(normalized, "-") {
		return normalized
	}
	if len(segments) == 0 {
		return truncateRunes(normalized, target)
	}
	if id := balancedID(segments, target); id != "" {
		return truncateRunes(id, target)
	}
	if fallback := joinOriginals(segments); fallback != "" {
		return truncateRunes(fallback, target)
	}
	return FallbackArtistID[:min(target, len(FallbackArtistID))]
}

func balancedID(segments []segment, target int) string {
	var states []*wordState
	for _, s := range segments {
		if len(s.processed) > 0 || len(s.original) > 0 {
			states = append(states, newWordState(s.processed, s.original))
		}
	}
	if len(states) == 0 {
		return ""
	}

	selectProcessed(states, target)
	expandStates(states, target)

	var b strings.Builder
	for _, st := range states {
		b.WriteString(st.chars())
	}
	return b.String()
}

// selectProcessed hands out skeleton characters one word at a time until
// the target is reached or every skeleton is used up
func selectProcessed(states []*wordState, target int) {
	totals := make([]int, len(states))
	sum := 0
	for i, st := range states {
		totals[i] = st.processedTotal()
		sum += totals[i]
	}
	if sum == 0 {
		return
	}
	if sum <= target {
		for i, st := range states {
			st.includeProcessedPrefix(totals[i])
		}
		return
	}

	alloc := make([]int, len(states))
	var active []int
	for i, n := range totals {
		if n > 0 {
			active = append(active, i)
		}
	}
	remaining, pos := target, 0
	for remaining > 0 && len(active) > 0 {
		idx := active[pos]
		if alloc[idx] < totals[idx] {
			alloc[idx]++
			remaining--
		}
		if alloc[idx] >= totals[idx] {
			active = append(active[:pos], active[pos+1:]...)
			if len(active) == 0 {
				break
			}
			if pos >= len(active) {
				pos = 0
			}
		} else {
			pos = (pos + 1) % len(active)
		}
	}
	for i, st := range states {
		st.includeProcessedPrefix(alloc[i])
	}
}

// expandStates re-adds dropped characters round robin while there is room
func expandStates(states []*wordState, target int) {
	total := 0
	for _, st := range states {
		total += st.length()
	}
	if total >= target {
		return
	}

	var active []int
	for i, st := range states {
		if st.hasUnused() {
			active = append(active, i)
		}
	}
	pos := 0
	for len(active) > 0 && total < target {
		st := states[active[pos]]
		if st.activateNext() {
			total++
		}
		if !st.hasUnused() {
			active = append(active[:pos], active[pos+1:]...)
			if pos >= len(active) {
				pos = 0
			}
		} else {
			pos = (pos + 1) % len(active)
		}
	}
}

func tokenCapacity(segments []segment, normalized string) int {
	n := 0
	for _, s := range segments {
		n += len(s.original)
	}
	if n <= 0 && normalized != "" {
		return len([]rune(normalized))
	}
	return n
}

// distributeShares splits target between artists one character at a time,
// never giving an artist more than its capacity
func distributeShares(capacities []int, target int) []int {
	shares := make([]int, len(capacities))
	var active []int
	for i, c := range capacities {
		if c > 0 {
			active = append(active, i)
		}
	}
	if len(active) == 0 || target <= 0 {
		return shares
	}

	remaining, pos := target, 0
	for remaining > 0 && len(active) > 0 {
		idx := active[pos]
		shares[idx]++
		remaining--
		if shares[idx] >= capacities[idx] {
			active = append(active[:pos], active[pos+1:]...)
			if len(active) == 0 {
				break
			}
			if pos >= len(active) {
				pos = 0
			}
			continue
		}
		pos = (pos + 1) % len(active)
	}
	return shares
}

func joinOriginals(segments []segment) string {
	var b strings.Builder
	for _, s := range segments {
		b.WriteString(string(s.original))
	}
	return b.String()
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// IsValidArtistID reports whether id could have been produced by
// GenerateArtistID
func IsValidArtistID(id string) bool {
	if id == "" || len(id) > ArtistIDLength {
		return false
	}
	if id == DefaultArtistID || id == FallbackArtistID {
		return true
	}
	for _, c := range id {
		if !(c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '-') {
			return false
		}
	}
	return true
}

// ArtistIDCache persists generated IDs per artist name
type ArtistIDCache interface {
	GetArtistID(ctx context.Context, name string) (string, bool, error)
	UpsertArtistID(ctx context.Context, name, id string) error
}

// CachedArtistIDs generates artist IDs through a persistent cache so an
// artist keeps its ID across runs even if the algorithm changes
type CachedArtistIDs struct {
	cache ArtistIDCache
	retry *util.RetryConfig
}

// NewCachedArtistIDs creates a cached generator; a nil cache disables caching
func NewCachedArtistIDs(cache ArtistIDCache) *CachedArtistIDs {
	return &CachedArtistIDs{cache: cache, retry: util.DefaultRetryConfig()}
}

// Generate returns the cached ID for name, generating and storing one when
// the cache has no valid entry. Cache failures only cost the write.
func (c *CachedArtistIDs) Generate(ctx context.Context, name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return DefaultArtistID
	}
	if c == nil || c.cache == nil {
		return GenerateArtistID(name)
	}

	cached, ok, err := c.cache.GetArtistID(ctx, name)
	switch {
	case err != nil:
		util.WarnLog("Failed to read artist ID cache for '%s': %v", name, err)
	case ok && IsValidArtistID(cached):
		return cached
	case ok:
		util.WarnLog("Found invalid cached ID '%s' for artist '%s', regenerating", cached, name)
	}

	id := GenerateArtistID(name)
	if id == DefaultArtistID || id == FallbackArtistID || !IsValidArtistID(id) {
		util.DebugLog("Skipping cache for special artist ID '%s' for '%s'", id, name)
		return id
	}

	if err := util.Retry(c.retry, func() error {
		return c.cache.UpsertArtistID(ctx, name, id)
	}, "cache artist ID"); err != nil {
		util.WarnLog("Failed to cache artist ID for '%s': %v", name, err)
	}
	return id
}
