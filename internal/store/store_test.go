package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/franz/music-shelver/internal/util"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreOpenAndMigrate(t *testing.T) {
	s := openTestStore(t)

	version, err := s.SchemaVersion()
	if err != nil {
		t.Fatalf("failed to get schema version: %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("expected schema version %d, got %d", currentSchemaVersion, version)
	}

	tables := []string{
		"schema_version", "processing_before", "processing_after", "albums",
		"track_positions", "artist_cache", "filter_hierarchies", "filter_values",
	}
	for _, table := range tables {
		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
		if err != nil {
			t.Fatalf("failed to query table %s: %v", table, err)
		}
		if count != 1 {
			t.Errorf("expected table %s to exist", table)
		}
	}

	for _, index := range []string{"idx_filter_values_file_hash", "idx_artist_cache_name"} {
		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?", index).Scan(&count)
		if err != nil {
			t.Fatalf("failed to query index %s: %v", index, err)
		}
		if count != 1 {
			t.Errorf("expected index %s to exist (schema v2)", index)
		}
	}

	if err := s.CheckIntegrity(); err != nil {
		t.Errorf("integrity check failed on fresh database: %v", err)
	}
}

func TestReopenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	defer s.Close()

	var rows int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version").Scan(&rows); err != nil {
		t.Fatal(err)
	}
	if rows != len(migrations) {
		t.Errorf("expected %d schema_version rows, got %d", len(migrations), rows)
	}
}

func TestNewerSchemaIsRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.db.Exec("INSERT INTO schema_version (version) VALUES (99)"); err != nil {
		t.Fatal(err)
	}
	s.Close()

	_, err = Open(path)
	if !errors.Is(err, util.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}

func TestBeforeAfterRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	before := &BeforeRecord{
		FileHash:    "aaa",
		FilePath:    "/in/a.mp3",
		Title:       "Song",
		Artist:      "John Smith",
		Album:       "Record",
		AlbumArtist: "John Smith",
		Year:        2001,
		TrackNumber: 3,
	}
	if err := s.RecordBefore(ctx, before); err != nil {
		t.Fatalf("RecordBefore: %v", err)
	}

	got, err := s.GetBeforeByHash(ctx, "aaa")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.Title != "Song" || got.Year != 2001 || got.DiscNumber != 0 {
		t.Fatalf("unexpected before-record: %+v", got)
	}

	after := &AfterRecord{FileHash: "aaa", FilePath: "/in/a.mp3", TargetPath: "/out/John-Smith/2001_Record/03_Song_JOHNSMTH.mp3"}
	if err := s.RecordAfter(ctx, after); err != nil {
		t.Fatalf("RecordAfter: %v", err)
	}

	targets, err := s.ListAfterTargets(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if targets[after.TargetPath] != "aaa" {
		t.Errorf("expected target index to map to aaa, got %v", targets)
	}

	results, err := s.ListUnrestoredResults(ctx, "/out")
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result under /out, got %d", len(results))
	}
	results, err = s.ListUnrestoredResults(ctx, "/elsewhere")
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Errorf("expected no results under /elsewhere, got %d", len(results))
	}
}

func TestAfterRequiresBefore(t *testing.T) {
	s := openTestStore(t)
	err := s.RecordAfter(context.Background(), &AfterRecord{FileHash: "zzz", FilePath: "/in/z.mp3", TargetPath: "/out/z.mp3"})
	if !errors.Is(err, util.ErrPersistence) {
		t.Fatalf("expected persistence error for orphan after-record, got %v", err)
	}
}

func TestRecordBeforeSupersedesPath(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.RecordBefore(ctx, &BeforeRecord{FileHash: "old", FilePath: "/in/a.mp3"}); err != nil {
		t.Fatal(err)
	}
	if err := s.RecordAfter(ctx, &AfterRecord{FileHash: "old", FilePath: "/in/a.mp3", TargetPath: "/out/a.mp3"}); err != nil {
		t.Fatal(err)
	}
	// Same path, new content
	if err := s.RecordBefore(ctx, &BeforeRecord{FileHash: "new", FilePath: "/in/a.mp3"}); err != nil {
		t.Fatal(err)
	}

	old, err := s.GetAfterByHash(ctx, "old")
	if err != nil {
		t.Fatal(err)
	}
	if old != nil {
		t.Errorf("expected after-record of superseded content to cascade away")
	}
	c, err := s.Counts(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if c.Before != 1 || c.After != 0 {
		t.Errorf("unexpected counts: %+v", c)
	}

	byPath, err := s.GetBeforeByPath(ctx, "/in/a.mp3")
	if err != nil {
		t.Fatal(err)
	}
	if byPath == nil || byPath.FileHash != "new" {
		t.Errorf("expected path to resolve to new content, got %+v", byPath)
	}
}

func TestRecordBeforeReleasesSupersededSlot(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	album, err := s.GetOrCreateAlbum(ctx, &Album{Name: "Bar", Artist: "Foo"})
	if err != nil {
		t.Fatal(err)
	}
	genreID, err := s.EnsureHierarchy(ctx, "Genre", 0)
	if err != nil {
		t.Fatal(err)
	}

	if err := s.RecordBefore(ctx, &BeforeRecord{FileHash: "old", FilePath: "/in/a.mp3"}); err != nil {
		t.Fatal(err)
	}
	if err := s.ClaimTrackPosition(ctx, album.ID, 1, 1, "old"); err != nil {
		t.Fatal(err)
	}
	if err := s.InsertFilterValue(ctx, &FilterValue{HierarchyID: genreID, FileHash: "old", Value: "Jazz"}); err != nil {
		t.Fatal(err)
	}

	// Re-tagged in place: the new content takes over the path and the slot
	if err := s.RecordBefore(ctx, &BeforeRecord{FileHash: "new", FilePath: "/in/a.mp3"}); err != nil {
		t.Fatal(err)
	}
	if err := s.ClaimTrackPosition(ctx, album.ID, 1, 1, "new"); err != nil {
		t.Fatalf("expected superseded slot to be free, got %v", err)
	}

	held, err := s.GetTrackPosition(ctx, album.ID, 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	if held == nil || held.FileHash != "new" {
		t.Errorf("expected slot held by new content, got %+v", held)
	}
	values, err := s.ListFilterValues(ctx, "old")
	if err != nil {
		t.Fatal(err)
	}
	if len(values) != 0 {
		t.Errorf("expected filter values of superseded content to be dropped, got %+v", values)
	}

	// An unrelated path keeps its slot
	if err := s.RecordBefore(ctx, &BeforeRecord{FileHash: "other", FilePath: "/in/b.mp3"}); err != nil {
		t.Fatal(err)
	}
	if err := s.ClaimTrackPosition(ctx, album.ID, 1, 1, "other"); !errors.Is(err, util.ErrCollision) {
		t.Errorf("expected slot conflict for unrelated content, got %v", err)
	}
}

func TestWithTransactionRollsBack(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := s.WithTransaction(ctx, func(q *Queries) error {
		if err := q.RecordBefore(ctx, &BeforeRecord{FileHash: "aaa", FilePath: "/in/a.mp3"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	got, err := s.GetBeforeByHash(ctx, "aaa")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Error("expected rolled back insert to be absent")
	}
}

func TestGetOrCreateAlbumKeepsEarliestYear(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	steps := []struct {
		year     int
		tracks   int
		wantYear int
		wantTrks int
	}{
		{0, 10, 0, 10},
		{2005, 0, 2005, 10},
		{2003, 12, 2003, 12},
		{2010, 8, 2003, 12},
		{0, 0, 2003, 12},
	}
	for i, step := range steps {
		a, err := s.GetOrCreateAlbum(ctx, &Album{Name: "Record", Artist: "Band", Year: step.year, TotalTracks: step.tracks})
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if a.Year != step.wantYear || a.TotalTracks != step.wantTrks {
			t.Errorf("step %d: got year=%d tracks=%d, want year=%d tracks=%d",
				i, a.Year, a.TotalTracks, step.wantYear, step.wantTrks)
		}
	}
}

func TestClaimTrackPosition(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	album, err := s.GetOrCreateAlbum(ctx, &Album{Name: "Record", Artist: "Band"})
	if err != nil {
		t.Fatal(err)
	}

	if err := s.ClaimTrackPosition(ctx, album.ID, 1, 1, "aaa"); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if err := s.ClaimTrackPosition(ctx, album.ID, 1, 1, "aaa"); err != nil {
		t.Fatalf("re-claim by same hash should be a no-op: %v", err)
	}

	err = s.ClaimTrackPosition(ctx, album.ID, 1, 1, "bbb")
	if !errors.Is(err, util.ErrCollision) {
		t.Fatalf("expected collision, got %v", err)
	}
	var conflict *SlotConflictError
	if !errors.As(err, &conflict) || conflict.Holder != "aaa" || conflict.Claimant != "bbb" {
		t.Fatalf("expected SlotConflictError naming both hashes, got %v", err)
	}

	// Moving aaa to another track frees the old slot
	if err := s.ClaimTrackPosition(ctx, album.ID, 1, 2, "aaa"); err != nil {
		t.Fatal(err)
	}
	if err := s.ClaimTrackPosition(ctx, album.ID, 1, 1, "bbb"); err != nil {
		t.Fatalf("slot 1 should be free again: %v", err)
	}

	positions, err := s.ListTrackPositions(ctx, album.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(positions) != 2 || positions[0].FileHash != "bbb" || positions[1].FileHash != "aaa" {
		t.Errorf("unexpected positions: %+v %+v", positions[0], positions[1])
	}
}

func TestArtistCache(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, ok, err := s.GetArtistID(ctx, "John Smith"); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}
	if err := s.UpsertArtistID(ctx, "John Smith", "JOHNSMTH"); err != nil {
		t.Fatal(err)
	}
	id, ok, err := s.GetArtistID(ctx, "john smith")
	if err != nil || !ok || id != "JOHNSMTH" {
		t.Fatalf("expected case-insensitive hit, got %q ok=%v err=%v", id, ok, err)
	}

	n, err := s.ClearArtistCache(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("expected 1 row cleared, got %d", n)
	}
}

func TestRomanizationNeverDowngrades(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	tests := []struct {
		romanized string
		source    string
		want      string
		wantSrc   string
	}{
		{"Kuramoto Chika", SourceTransliteration, "Kuramoto Chika", SourceTransliteration},
		{"Chika Kuramoto", SourceMusicBrainz, "Chika Kuramoto", SourceMusicBrainz},
		{"kuramoto tika", SourceTransliteration, "Chika Kuramoto", SourceMusicBrainz},
		{"KURAMOTO", SourceOriginal, "Chika Kuramoto", SourceMusicBrainz},
		{"Chika K.", SourcePreference, "Chika K.", SourcePreference},
		{"Kuramoto", SourceMusicBrainz, "Chika K.", SourcePreference},
	}
	for i, tt := range tests {
		if err := s.UpsertRomanizedName(ctx, "倉本千奈", tt.romanized, tt.source); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		got, err := s.GetRomanizedName(ctx, "倉本千奈")
		if err != nil {
			t.Fatal(err)
		}
		if got == nil || got.Romanized != tt.want || got.Source != tt.wantSrc {
			t.Errorf("step %d: got %+v, want %q from %s", i, got, tt.want, tt.wantSrc)
		}
	}
}

func TestFilterValuesOrderedByPriority(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	albumID, err := s.EnsureHierarchy(ctx, "Album", 1)
	if err != nil {
		t.Fatal(err)
	}
	genreID, err := s.EnsureHierarchy(ctx, "Genre", 0)
	if err != nil {
		t.Fatal(err)
	}

	for _, v := range []*FilterValue{
		{HierarchyID: albumID, FileHash: "aaa", Value: "Record"},
		{HierarchyID: genreID, FileHash: "aaa", Value: "Jazz"},
	} {
		if err := s.InsertFilterValue(ctx, v); err != nil {
			t.Fatal(err)
		}
	}

	values, err := s.ListFilterValues(ctx, "aaa")
	if err != nil {
		t.Fatal(err)
	}
	if len(values) != 2 || values[0].Value != "Jazz" || values[1].Value != "Record" {
		t.Errorf("expected [Jazz Record], got %+v", values)
	}

	hs, err := s.ListHierarchies(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(hs) != 2 || hs[0].Name != "Genre" {
		t.Errorf("unexpected hierarchy order: %+v", hs)
	}
}

func TestDeleteRecordsAndPurge(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	album, err := s.GetOrCreateAlbum(ctx, &Album{Name: "Record", Artist: "Band"})
	if err != nil {
		t.Fatal(err)
	}
	for _, h := range []string{"aaa", "bbb"} {
		if err := s.RecordBefore(ctx, &BeforeRecord{FileHash: h, FilePath: "/in/" + h}); err != nil {
			t.Fatal(err)
		}
		if err := s.RecordAfter(ctx, &AfterRecord{FileHash: h, FilePath: "/in/" + h, TargetPath: "/out/" + h}); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.ClaimTrackPosition(ctx, album.ID, 1, 1, "aaa"); err != nil {
		t.Fatal(err)
	}

	n, err := s.DeleteRecords(ctx, []string{"aaa"})
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("expected 1 deleted, got %d", n)
	}
	positions, _ := s.ListTrackPositions(ctx, album.ID)
	if len(positions) != 0 {
		t.Errorf("expected slot of deleted file to be released")
	}

	if err := s.Purge(ctx, PurgeResults); err != nil {
		t.Fatal(err)
	}
	c, _ := s.Counts(ctx)
	if c.After != 0 || c.Before != 1 {
		t.Errorf("after PurgeResults: %+v", c)
	}

	if err := s.Purge(ctx, PurgeAll); err != nil {
		t.Fatal(err)
	}
	c, _ = s.Counts(ctx)
	if c.Before != 0 || c.Albums != 0 {
		t.Errorf("after PurgeAll: %+v", c)
	}

	if err := s.Purge(ctx, PurgeScope("bogus")); !errors.Is(err, util.ErrValidation) {
		t.Errorf("expected validation error for unknown scope, got %v", err)
	}
}
