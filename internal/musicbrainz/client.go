package musicbrainz

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/franz/music-shelver/internal/util"
	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

const (
	// BaseURL is the MusicBrainz API base URL
	BaseURL = "https://musicbrainz.org/ws/2"

	// AppName and AppVersion identify this application to MusicBrainz
	AppName    = "music-shelver"
	AppVersion = "0.4.0"

	// RateLimit is the minimum spacing between requests (MusicBrainz requirement)
	RateLimit = 1 * time.Second

	// RomanizedLocale is the alias locale preferred for romanized names
	RomanizedLocale = "ja-Latn"
)

// Config holds client configuration; zero values select defaults
type Config struct {
	BaseURL    string
	Contact    string // appended to the User-Agent
	RateLimit  time.Duration
	Timeout    time.Duration
	Retry      *util.RetryConfig
	HTTPClient *http.Client

	// Consecutive failures before the breaker opens, and how long it stays open
	FailureThreshold uint32
	OpenTimeout      time.Duration
}

// Client handles MusicBrainz API requests with rate limiting
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	limiter    *rate.Limiter
	retry      *util.RetryConfig
	breaker    *gobreaker.CircuitBreaker[*ArtistSearchResult]
}

// NewClient creates a new MusicBrainz API client
func NewClient(cfg *Config) *Client {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = BaseURL
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = RateLimit
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Retry == nil {
		cfg.Retry = util.NetworkRetryConfig()
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 5 * time.Minute
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	threshold := cfg.FailureThreshold
	breaker := gobreaker.NewCircuitBreaker[*ArtistSearchResult](gobreaker.Settings{
		Name:        "musicbrainz",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if to == gobreaker.StateOpen {
				util.WarnLog("MusicBrainz lookups paused after repeated failures; using local transliteration")
			}
		},
	})

	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		userAgent:  FormatUserAgent(AppName, AppVersion, cfg.Contact),
		httpClient: httpClient,
		// Burst of one so the first request goes out immediately
		limiter: rate.NewLimiter(rate.Every(cfg.RateLimit), 1),
		retry:   cfg.Retry,
		breaker: breaker,
	}
}

// FormatUserAgent returns "App/Version (contact)", omitting an empty contact
func FormatUserAgent(app, version, contact string) string {
	if contact = strings.TrimSpace(contact); contact != "" {
		return fmt.Sprintf("%s/%s (%s)", app, version, contact)
	}
	return fmt.Sprintf("%s/%s", app, version)
}

// ArtistSearchResult represents a search result from MusicBrainz
type ArtistSearchResult struct {
	Artists []Artist `json:"artists"`
	Count   int      `json:"count"`
	Offset  int      `json:"offset"`
	Created string   `json:"created"`
}

// Artist represents an artist from MusicBrainz
type Artist struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	SortName       string  `json:"sort-name"`
	Score          int     `json:"score"`
	Type           string  `json:"type"`
	Country        string  `json:"country"`
	Disambiguation string  `json:"disambiguation"`
	Aliases        []Alias `json:"aliases"`
}

// Alias represents an artist alias
type Alias struct {
	Name     string `json:"name"`
	SortName string `json:"sort-name"`
	Locale   string `json:"locale"`
	Type     string `json:"type"`
	Primary  *bool  `json:"primary"`
}

// statusError is a non-2xx response
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status code %d", e.code)
}

// Is marks rate limiting and server errors as transient for the retry helper
func (e *statusError) Is(target error) bool {
	return target == util.ErrTransient && (e.code == http.StatusTooManyRequests || e.code >= 500)
}

// SearchArtist queries the artist index for name
func (c *Client) SearchArtist(ctx context.Context, name string) (*ArtistSearchResult, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("artist name cannot be empty")
	}

	return c.breaker.Execute(func() (*ArtistSearchResult, error) {
		return util.RetryWithBackoff(c.retry, func() (*ArtistSearchResult, error) {
			return c.search(ctx, name)
		}, fmt.Sprintf("musicbrainz search(%s)", name))
	})
}

func (c *Client) search(ctx context.Context, name string) (*ArtistSearchResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("query", "artist:"+name)
	params.Set("fmt", "json")
	urlStr := fmt.Sprintf("%s/artist/?%s", c.baseURL, params.Encode())

	util.DebugLog("MusicBrainz API: searching for artist '%s'", name)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, &statusError{code: resp.StatusCode}
	}

	var result ArtistSearchResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &result, nil
}

// LookupRomanized returns a romanized name for an artist, or "" when
// MusicBrainz has no usable match. Preference: the primary ja-Latn alias,
// then the artist sort name.
func (c *Client) LookupRomanized(ctx context.Context, name string) (string, error) {
	result, err := c.SearchArtist(ctx, name)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) {
			return "", nil
		}
		return "", err
	}

	best := BestArtist(result.Artists)
	if best == nil {
		util.DebugLog("MusicBrainz: no results for '%s'", name)
		return "", nil
	}
	util.DebugLog("MusicBrainz: best match '%s' (score: %d, MBID: %s)", best.Name, best.Score, best.ID)

	if alias := RomanizedAlias(best.Aliases); alias != "" {
		if s := cleanName(alias); s != "" {
			return s, nil
		}
	}
	return cleanName(best.SortName), nil
}

// BestArtist returns the highest-scoring artist; the first wins ties
func BestArtist(artists []Artist) *Artist {
	var best *Artist
	for i := range artists {
		if best == nil || artists[i].Score > best.Score {
			best = &artists[i]
		}
	}
	return best
}

// RomanizedAlias returns the sort name (or name) of the primary ja-Latn alias
func RomanizedAlias(aliases []Alias) string {
	for _, a := range aliases {
		if a.Locale == RomanizedLocale && a.Primary != nil && *a.Primary {
			if a.SortName != "" {
				return a.SortName
			}
			return a.Name
		}
	}
	return ""
}

// cleanName drops the comma of "Family, Given" sort names so the result
// cannot be mistaken for a list of artists
func cleanName(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, ", ", " "))
}
