package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/franz/music-shelver/internal/util"
)

// BeforeRecord is a source file as seen at scan time
type BeforeRecord struct {
	FileHash    string
	FilePath    string
	Title       string
	Artist      string
	Album       string
	AlbumArtist string
	Genre       string
	Year        int
	TrackNumber int
	TotalTracks int
	DiscNumber  int
	TotalDiscs  int
}

// AfterRecord maps a processed file to the place it was moved to
type AfterRecord struct {
	FileHash   string
	FilePath   string
	TargetPath string
}

// RecordBefore inserts or refreshes the before-record for a file. A row for
// the same path with a different hash is superseded: its after-record, track
// slot and filter values are dropped with it.
func (q *Queries) RecordBefore(ctx context.Context, r *BeforeRecord) error {
	if r.FileHash == "" || r.FilePath == "" {
		return fmt.Errorf("%w: before-record needs hash and path", util.ErrValidation)
	}

	stale, err := q.GetBeforeByPath(ctx, r.FilePath)
	if err != nil {
		return fmt.Errorf("%w: %v", util.ErrPersistence, err)
	}
	if stale != nil && stale.FileHash != r.FileHash {
		if _, err := q.DeleteRecords(ctx, []string{stale.FileHash}); err != nil {
			return fmt.Errorf("failed to supersede before-record: %w", err)
		}
	}

	_, err = q.db.ExecContext(ctx, `
		INSERT INTO processing_before (
			file_hash, file_path, title, artist, album, album_artist, genre,
			year, track_number, total_tracks, disc_number, total_discs
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(file_hash) DO UPDATE SET
			file_path = excluded.file_path,
			title = excluded.title,
			artist = excluded.artist,
			album = excluded.album,
			album_artist = excluded.album_artist,
			genre = excluded.genre,
			year = excluded.year,
			track_number = excluded.track_number,
			total_tracks = excluded.total_tracks,
			disc_number = excluded.disc_number,
			total_discs = excluded.total_discs,
			updated_at = CURRENT_TIMESTAMP
	`,
		r.FileHash, r.FilePath,
		nullString(r.Title), nullString(r.Artist), nullString(r.Album),
		nullString(r.AlbumArtist), nullString(r.Genre),
		nullInt(r.Year), nullInt(r.TrackNumber), nullInt(r.TotalTracks),
		nullInt(r.DiscNumber), nullInt(r.TotalDiscs),
	)
	if err != nil {
		return fmt.Errorf("%w: failed to record before-state: %v", util.ErrPersistence, err)
	}
	return nil
}

// GetBeforeByHash returns the before-record for a hash, or nil if none
func (q *Queries) GetBeforeByHash(ctx context.Context, hash string) (*BeforeRecord, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT file_hash, file_path, title, artist, album, album_artist, genre,
		       year, track_number, total_tracks, disc_number, total_discs
		FROM processing_before WHERE file_hash = ?
	`, hash)

	r, err := scanBefore(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get before-record: %w", err)
	}
	return r, nil
}

// GetBeforeByPath returns the before-record for a source path, or nil if none
func (q *Queries) GetBeforeByPath(ctx context.Context, path string) (*BeforeRecord, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT file_hash, file_path, title, artist, album, album_artist, genre,
		       year, track_number, total_tracks, disc_number, total_discs
		FROM processing_before WHERE file_path = ?
	`, path)

	r, err := scanBefore(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get before-record: %w", err)
	}
	return r, nil
}

func scanBefore(row *sql.Row) (*BeforeRecord, error) {
	var r BeforeRecord
	var title, artist, album, albumArtist, genre sql.NullString
	var year, track, totalTracks, disc, totalDiscs sql.NullInt64

	err := row.Scan(&r.FileHash, &r.FilePath, &title, &artist, &album, &albumArtist, &genre,
		&year, &track, &totalTracks, &disc, &totalDiscs)
	if err != nil {
		return nil, err
	}

	r.Title = title.String
	r.Artist = artist.String
	r.Album = album.String
	r.AlbumArtist = albumArtist.String
	r.Genre = genre.String
	r.Year = int(year.Int64)
	r.TrackNumber = int(track.Int64)
	r.TotalTracks = int(totalTracks.Int64)
	r.DiscNumber = int(disc.Int64)
	r.TotalDiscs = int(totalDiscs.Int64)
	return &r, nil
}

// RecordAfter inserts or refreshes the after-record for a file. The matching
// before-record (same hash and path) must already exist.
func (q *Queries) RecordAfter(ctx context.Context, r *AfterRecord) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO processing_after (file_hash, file_path, target_path)
		VALUES (?, ?, ?)
		ON CONFLICT(file_hash) DO UPDATE SET
			file_path = excluded.file_path,
			target_path = excluded.target_path,
			updated_at = CURRENT_TIMESTAMP
	`, r.FileHash, r.FilePath, r.TargetPath)
	if err != nil {
		return fmt.Errorf("%w: failed to record after-state: %v", util.ErrPersistence, err)
	}
	return nil
}

// GetAfterByHash returns the after-record for a hash, or nil if none
func (q *Queries) GetAfterByHash(ctx context.Context, hash string) (*AfterRecord, error) {
	var r AfterRecord
	err := q.db.QueryRowContext(ctx, `
		SELECT file_hash, file_path, target_path FROM processing_after WHERE file_hash = ?
	`, hash).Scan(&r.FileHash, &r.FilePath, &r.TargetPath)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get after-record: %w", err)
	}
	return &r, nil
}

// ListAfterTargets returns target path -> file hash for every after-record
func (q *Queries) ListAfterTargets(ctx context.Context) (map[string]string, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT target_path, file_hash FROM processing_after`)
	if err != nil {
		return nil, fmt.Errorf("failed to list after-records: %w", err)
	}
	defer rows.Close()

	targets := make(map[string]string)
	for rows.Next() {
		var target, hash string
		if err := rows.Scan(&target, &hash); err != nil {
			return nil, fmt.Errorf("failed to scan after-record: %w", err)
		}
		targets[target] = hash
	}
	return targets, rows.Err()
}

// ListUnrestoredResults returns after-records whose target lies under root,
// ordered by target path. An empty root returns every record.
func (q *Queries) ListUnrestoredResults(ctx context.Context, root string) ([]*AfterRecord, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT file_hash, file_path, target_path FROM processing_after ORDER BY target_path
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list after-records: %w", err)
	}
	defer rows.Close()

	var results []*AfterRecord
	for rows.Next() {
		var r AfterRecord
		if err := rows.Scan(&r.FileHash, &r.FilePath, &r.TargetPath); err != nil {
			return nil, fmt.Errorf("failed to scan after-record: %w", err)
		}
		if root != "" && !util.IsWithin(r.TargetPath, root) {
			continue
		}
		results = append(results, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return results, nil
}

// DeleteRecords removes the before/after pairs and derived rows for hashes
func (q *Queries) DeleteRecords(ctx context.Context, hashes []string) (int64, error) {
	if len(hashes) == 0 {
		return 0, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(hashes)), ",")
	args := make([]any, len(hashes))
	for i, h := range hashes {
		args[i] = h
	}

	res, err := q.db.ExecContext(ctx,
		"DELETE FROM processing_before WHERE file_hash IN ("+placeholders+")", args...)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to delete records: %v", util.ErrPersistence, err)
	}
	for _, table := range []string{"track_positions", "filter_values"} {
		if _, err := q.db.ExecContext(ctx,
			"DELETE FROM "+table+" WHERE file_hash IN ("+placeholders+")", args...); err != nil {
			return 0, fmt.Errorf("%w: failed to delete %s rows: %v", util.ErrPersistence, table, err)
		}
	}

	n, _ := res.RowsAffected()
	return n, nil
}

// PurgeScope selects what Purge removes
type PurgeScope string

const (
	// PurgeResults drops after-records only
	PurgeResults PurgeScope = "results"
	// PurgeAll drops every organize record, album and slot (the artist cache survives)
	PurgeAll PurgeScope = "all"
)

// Purge deletes state in the given scope
func (q *Queries) Purge(ctx context.Context, scope PurgeScope) error {
	var statements []string
	switch scope {
	case PurgeResults:
		statements = []string{"DELETE FROM processing_after"}
	case PurgeAll:
		statements = []string{
			"DELETE FROM processing_after",
			"DELETE FROM processing_before",
			"DELETE FROM track_positions",
			"DELETE FROM albums",
			"DELETE FROM filter_values",
		}
	default:
		return fmt.Errorf("%w: unknown purge scope %q", util.ErrValidation, scope)
	}

	for _, stmt := range statements {
		if _, err := q.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%w: purge failed: %v", util.ErrPersistence, err)
		}
	}
	return nil
}
