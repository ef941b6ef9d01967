package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/franz/music-shelver/internal/util"
)

// DefaultArtistID is stored for cache rows created before an ID is known
const DefaultArtistID = "NOART"

// Romanization sources, ranked so a cached value is never replaced by a
// weaker one.
const (
	SourceOriginal        = "original"
	SourceTransliteration = "transliteration"
	SourceMusicBrainz     = "musicbrainz"
	SourcePreference      = "preference"
)

func sourceRank(source string) int {
	switch source {
	case SourcePreference:
		return 4
	case SourceMusicBrainz:
		return 3
	case SourceTransliteration:
		return 2
	default:
		return 1
	}
}

// RomanizedName is a cached romanization result
type RomanizedName struct {
	ArtistName string
	Romanized  string
	Source     string
	At         time.Time
}

// GetArtistID returns the cached artist ID for a name (case-insensitive)
func (q *Queries) GetArtistID(ctx context.Context, name string) (string, bool, error) {
	var id string
	err := q.db.QueryRowContext(ctx, `
		SELECT artist_id FROM artist_cache
		WHERE LOWER(artist_name) = LOWER(?) AND artist_id <> ?
		LIMIT 1
	`, name, DefaultArtistID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get artist id: %w", err)
	}
	return id, true, nil
}

// UpsertArtistID stores the generated ID for an artist name
func (q *Queries) UpsertArtistID(ctx context.Context, name, id string) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO artist_cache (artist_name, artist_id) VALUES (?, ?)
		ON CONFLICT(artist_name) DO UPDATE SET
			artist_id = excluded.artist_id,
			updated_at = CURRENT_TIMESTAMP
	`, name, id)
	if err != nil {
		return fmt.Errorf("%w: failed to cache artist id: %v", util.ErrPersistence, err)
	}
	return nil
}

// GetRomanizedName returns the cached romanization for a name
// (case-insensitive), or nil if none is stored
func (q *Queries) GetRomanizedName(ctx context.Context, name string) (*RomanizedName, error) {
	var r RomanizedName
	var romanized, source, at sql.NullString
	err := q.db.QueryRowContext(ctx, `
		SELECT artist_name, romanized_name, romanization_source, romanized_at
		FROM artist_cache
		WHERE LOWER(artist_name) = LOWER(?) AND romanized_name IS NOT NULL AND romanized_name <> ''
		LIMIT 1
	`, name).Scan(&r.ArtistName, &romanized, &source, &at)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get romanized name: %w", err)
	}

	r.Romanized = romanized.String
	r.Source = source.String
	if at.Valid {
		r.At, _ = time.Parse(time.RFC3339, at.String)
	}
	return &r, nil
}

// UpsertRomanizedName caches a romanization. An existing value from a
// stronger source is kept.
func (q *Queries) UpsertRomanizedName(ctx context.Context, name, romanized, source string) error {
	if name == "" || romanized == "" {
		return nil
	}
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO artist_cache (artist_name, artist_id, romanized_name, romanization_source, romanized_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(artist_name) DO UPDATE SET
			romanized_name = excluded.romanized_name,
			romanization_source = excluded.romanization_source,
			romanized_at = excluded.romanized_at,
			updated_at = CURRENT_TIMESTAMP
		WHERE artist_cache.romanized_name IS NULL
		   OR ? >= CASE artist_cache.romanization_source
				WHEN 'preference' THEN 4
				WHEN 'musicbrainz' THEN 3
				WHEN 'transliteration' THEN 2
				ELSE 1 END
	`, name, DefaultArtistID, romanized, source, time.Now().UTC().Format(time.RFC3339), sourceRank(source))
	if err != nil {
		return fmt.Errorf("%w: failed to cache romanized name: %v", util.ErrPersistence, err)
	}
	return nil
}

// ClearArtistCache deletes every cached artist row
func (q *Queries) ClearArtistCache(ctx context.Context) (int64, error) {
	res, err := q.db.ExecContext(ctx, `DELETE FROM artist_cache`)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to clear artist cache: %v", util.ErrPersistence, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
