package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/franz/music-shelver/internal/util"
)

// Album aggregates year and totals across its member tracks
type Album struct {
	ID          int64
	Name        string
	Artist      string
	Year        int
	TotalTracks int
	TotalDiscs  int
}

// TrackPosition is a claimed (disc, track) slot within an album
type TrackPosition struct {
	AlbumID     int64
	DiscNumber  int
	TrackNumber int
	FileHash    string
}

// SlotConflictError is returned when a track slot is already held by a
// different file.
type SlotConflictError struct {
	AlbumID     int64
	DiscNumber  int
	TrackNumber int
	Holder      string
	Claimant    string
}

func (e *SlotConflictError) Error() string {
	return fmt.Sprintf("track slot conflict: album %d disc %d track %d is held by %s (claimed by %s)",
		e.AlbumID, e.DiscNumber, e.TrackNumber, short(e.Holder), short(e.Claimant))
}

// Is makes errors.Is(err, util.ErrCollision) match
func (e *SlotConflictError) Is(target error) bool {
	return target == util.ErrCollision
}

func short(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}

// GetOrCreateAlbum returns the album, creating it or merging new information
// into it. The stored year only moves to an earlier non-zero year; totals
// only grow.
func (q *Queries) GetOrCreateAlbum(ctx context.Context, a *Album) (*Album, error) {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO albums (album_name, album_artist, year, total_tracks, total_discs)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(album_name, album_artist) DO UPDATE SET
			year = CASE
				WHEN excluded.year IS NULL THEN albums.year
				WHEN albums.year IS NULL OR excluded.year < albums.year THEN excluded.year
				ELSE albums.year END,
			total_tracks = MAX(COALESCE(albums.total_tracks, 0), COALESCE(excluded.total_tracks, 0)),
			total_discs = MAX(COALESCE(albums.total_discs, 0), COALESCE(excluded.total_discs, 0)),
			updated_at = CURRENT_TIMESTAMP
	`, a.Name, a.Artist, nullInt(a.Year), nullInt(a.TotalTracks), nullInt(a.TotalDiscs))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to upsert album: %v", util.ErrPersistence, err)
	}

	album, err := q.GetAlbum(ctx, a.Name, a.Artist)
	if err != nil {
		return nil, err
	}
	if album == nil {
		return nil, fmt.Errorf("%w: album %q vanished after upsert", util.ErrPersistence, a.Name)
	}
	return album, nil
}

// GetAlbum returns an album by its unique key, or nil if none
func (q *Queries) GetAlbum(ctx context.Context, name, artist string) (*Album, error) {
	var a Album
	var year, tracks, discs sql.NullInt64
	err := q.db.QueryRowContext(ctx, `
		SELECT id, album_name, album_artist, year, total_tracks, total_discs
		FROM albums WHERE album_name = ? AND album_artist = ?
	`, name, artist).Scan(&a.ID, &a.Name, &a.Artist, &year, &tracks, &discs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get album: %w", err)
	}
	a.Year = int(year.Int64)
	a.TotalTracks = int(tracks.Int64)
	a.TotalDiscs = int(discs.Int64)
	return &a, nil
}

// GetTrackPosition returns the holder of a slot, or nil if the slot is free
func (q *Queries) GetTrackPosition(ctx context.Context, albumID int64, disc, track int) (*TrackPosition, error) {
	p := TrackPosition{AlbumID: albumID, DiscNumber: disc, TrackNumber: track}
	err := q.db.QueryRowContext(ctx, `
		SELECT file_hash FROM track_positions
		WHERE album_id = ? AND disc_number = ? AND track_number = ?
	`, albumID, disc, track).Scan(&p.FileHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get track position: %w", err)
	}
	return &p, nil
}

// ClaimTrackPosition assigns a slot to a file hash. Claiming a slot the same
// hash already holds is a no-op; a slot held by another hash yields a
// *SlotConflictError and the existing assignment is left untouched.
func (q *Queries) ClaimTrackPosition(ctx context.Context, albumID int64, disc, track int, hash string) error {
	held, err := q.GetTrackPosition(ctx, albumID, disc, track)
	if err != nil {
		return err
	}
	if held != nil {
		if held.FileHash == hash {
			return nil
		}
		return &SlotConflictError{
			AlbumID:     albumID,
			DiscNumber:  disc,
			TrackNumber: track,
			Holder:      held.FileHash,
			Claimant:    hash,
		}
	}

	// A re-tagged file gives up its previous slot in the album
	if _, err := q.db.ExecContext(ctx,
		`DELETE FROM track_positions WHERE album_id = ? AND file_hash = ?`, albumID, hash); err != nil {
		return fmt.Errorf("%w: failed to release old slot: %v", util.ErrPersistence, err)
	}

	if _, err := q.db.ExecContext(ctx, `
		INSERT INTO track_positions (album_id, disc_number, track_number, file_hash)
		VALUES (?, ?, ?, ?)
	`, albumID, disc, track, hash); err != nil {
		return fmt.Errorf("%w: failed to claim track position: %v", util.ErrPersistence, err)
	}
	return nil
}

// ListTrackPositions returns all claimed slots of an album in disc/track order
func (q *Queries) ListTrackPositions(ctx context.Context, albumID int64) ([]*TrackPosition, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT album_id, disc_number, track_number, file_hash
		FROM track_positions WHERE album_id = ?
		ORDER BY disc_number, track_number
	`, albumID)
	if err != nil {
		return nil, fmt.Errorf("failed to list track positions: %w", err)
	}
	defer rows.Close()

	var positions []*TrackPosition
	for rows.Next() {
		var p TrackPosition
		if err := rows.Scan(&p.AlbumID, &p.DiscNumber, &p.TrackNumber, &p.FileHash); err != nil {
			return nil, fmt.Errorf("failed to scan track position: %w", err)
		}
		positions = append(positions, &p)
	}
	return positions, rows.Err()
}
