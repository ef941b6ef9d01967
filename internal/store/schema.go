package store

// Schema v1 - core organize/restore state
const schemaV1 = `
-- Schema version tracking
CREATE TABLE IF NOT EXISTS schema_version (
  version INTEGER PRIMARY KEY,
  applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Source files as seen before organizing (one row per source path)
CREATE TABLE IF NOT EXISTS processing_before (
  file_hash TEXT PRIMARY KEY,
  file_path TEXT NOT NULL UNIQUE,
  title TEXT,
  artist TEXT,
  album TEXT,
  album_artist TEXT,
  genre TEXT,
  year INTEGER,
  track_number INTEGER,
  total_tracks INTEGER,
  disc_number INTEGER,
  total_discs INTEGER,
  created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
  updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
  UNIQUE (file_hash, file_path)
);

-- Where each file was moved; cannot exist without its before-record
CREATE TABLE IF NOT EXISTS processing_after (
  file_hash TEXT NOT NULL UNIQUE,
  file_path TEXT NOT NULL UNIQUE,
  target_path TEXT NOT NULL,
  created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
  updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY (file_hash, file_path)
    REFERENCES processing_before (file_hash, file_path)
    ON DELETE CASCADE ON UPDATE CASCADE
);

CREATE TABLE IF NOT EXISTS albums (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  album_name TEXT NOT NULL,
  album_artist TEXT NOT NULL,
  year INTEGER,
  total_tracks INTEGER,
  total_discs INTEGER,
  created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
  updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
  UNIQUE (album_name, album_artist)
);

-- One file hash per (album, disc, track)
CREATE TABLE IF NOT EXISTS track_positions (
  album_id INTEGER NOT NULL REFERENCES albums(id) ON DELETE CASCADE,
  disc_number INTEGER NOT NULL,
  track_number INTEGER NOT NULL,
  file_hash TEXT NOT NULL,
  created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
  PRIMARY KEY (album_id, disc_number, track_number)
);

CREATE TABLE IF NOT EXISTS artist_cache (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  artist_name TEXT NOT NULL UNIQUE,
  artist_id TEXT NOT NULL,
  created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
  updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_processing_after_file_hash ON processing_after(file_hash);
CREATE INDEX IF NOT EXISTS idx_processing_after_target_path ON processing_after(target_path);
CREATE INDEX IF NOT EXISTS idx_track_positions_file_hash ON track_positions(file_hash);
`

// Schema v2 - filter hierarchies for custom directory layouts
const schemaV2 = `
CREATE TABLE IF NOT EXISTS filter_hierarchies (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  name TEXT NOT NULL UNIQUE,
  priority INTEGER NOT NULL,
  created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS filter_values (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  hierarchy_id INTEGER NOT NULL REFERENCES filter_hierarchies(id) ON DELETE CASCADE,
  file_hash TEXT NOT NULL,
  value TEXT NOT NULL,
  created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
  UNIQUE (hierarchy_id, file_hash)
);

CREATE INDEX IF NOT EXISTS idx_filter_values_file_hash ON filter_values(file_hash);
CREATE INDEX IF NOT EXISTS idx_albums_name_artist ON albums(album_name, album_artist);
CREATE INDEX IF NOT EXISTS idx_artist_cache_name ON artist_cache(artist_name);
`

// Schema v3 - romanization columns on the artist cache
const schemaV3 = `
ALTER TABLE artist_cache ADD COLUMN romanized_name TEXT;
ALTER TABLE artist_cache ADD COLUMN romanization_source TEXT;
ALTER TABLE artist_cache ADD COLUMN romanized_at TEXT;
`

// migrations are applied in order; entries are never edited once released
var migrations = []struct {
	version int
	sql     string
}{
	{1, schemaV1},
	{2, schemaV2},
	{3, schemaV3},
}
