package restore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/franz/music-shelver/internal/meta"
	"github.com/franz/music-shelver/internal/move"
	"github.com/franz/music-shelver/internal/organize"
	"github.com/franz/music-shelver/internal/store"
	"github.com/franz/music-shelver/internal/util"
	"github.com/stretchr/testify/require"
)

type fakeTags map[string]meta.MapTags

func (f fakeTags) extract(path string) (meta.TagMap, error) {
	if t, ok := f[filepath.Base(path)]; ok {
		return t, nil
	}
	return nil, fmt.Errorf("%w: no tags", util.ErrMetadata)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func snapshot(t *testing.T, root string) map[string]string {
	t.Helper()
	files := make(map[string]string)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, _ := filepath.Rel(root, path)
		files[filepath.ToSlash(rel)] = readFile(t, path)
		return nil
	})
	require.NoError(t, err)
	return files
}

// library is an organized fixture: source files moved into lib with state
// recorded in db
type library struct {
	src    string
	lib    string
	db     *store.Store
	before map[string]string
}

// organizeFixture organizes files (relative source path -> track number)
// from a fresh source tree into a fresh library
func organizeFixture(t *testing.T, files map[string]int) *library {
	t.Helper()
	l := &library{src: t.TempDir(), lib: t.TempDir()}

	db, err := store.Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	l.db = db

	tags := fakeTags{}
	for rel, track := range files {
		base := filepath.Base(rel)
		title := strings.ToUpper(strings.TrimSuffix(base, filepath.Ext(base)))
		tags[base] = meta.MapTags{
			"title":       title,
			"artist":      "Foo",
			"album":       "Bar",
			"date":        "2020",
			"tracknumber": strconv.Itoa(track),
		}
		writeFile(t, filepath.Join(l.src, rel), "audio "+rel)
	}
	l.before = snapshot(t, l.src)

	o, err := organize.New(&organize.Config{Store: db, Extract: tags.extract, Workers: 2})
	require.NoError(t, err)
	summary, err := o.Run(context.Background(), l.src, l.lib)
	require.NoError(t, err)
	require.Equal(t, len(files), summary.Succeeded)
	return l
}

func (l *library) target(name string) string {
	return filepath.Join(l.lib, "Foo", "2020_Bar", name)
}

func newRestorer(t *testing.T, db *store.Store, mutate func(*Config)) *Restorer {
	t.Helper()
	cfg := &Config{Store: db, Purge: true}
	if mutate != nil {
		mutate(cfg)
	}
	r, err := New(cfg)
	require.NoError(t, err)
	return r
}

func TestNewRequiresStore(t *testing.T) {
	_, err := New(nil)
	require.ErrorIs(t, err, util.ErrValidation)
}

func TestRestoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	files := map[string]int{"in/a.mp3": 1, "in/b.mp3": 2}
	l := organizeFixture(t, files)

	// Lyrics travel with the track both ways
	writeFile(t, l.target("01_A_FOO.lrc"), "la la")
	l.before["in/a.lrc"] = "la la"

	summary, err := newRestorer(t, l.db, nil).Run(ctx, l.lib, "")
	require.NoError(t, err)
	require.Equal(t, 2, summary.Restored)
	require.Equal(t, 1, summary.Companions)
	require.True(t, summary.Complete())
	require.Equal(t, int64(2), summary.Purged)

	require.Equal(t, l.before, snapshot(t, l.src))
	require.Empty(t, snapshot(t, l.lib))

	counts, err := l.db.Counts(ctx)
	require.NoError(t, err)
	require.Zero(t, counts.Before)
	require.Zero(t, counts.After)
}

func TestRestoreAbortOnCollision(t *testing.T) {
	ctx := context.Background()
	l := organizeFixture(t, map[string]int{"in/a.mp3": 1, "in/b.mp3": 2})
	writeFile(t, filepath.Join(l.src, "in", "b.mp3"), "squatter")
	libBefore := snapshot(t, l.lib)

	summary, err := newRestorer(t, l.db, nil).Run(ctx, l.lib, "")
	require.Error(t, err)
	require.ErrorIs(t, err, util.ErrCollision)

	var collision *CollisionError
	require.True(t, errors.As(err, &collision))
	require.Equal(t, filepath.Join(l.src, "in", "b.mp3"), collision.Destination)

	require.True(t, summary.Aborted)
	require.Zero(t, summary.Restored)
	require.Equal(t, libBefore, snapshot(t, l.lib))
	require.NoFileExists(t, filepath.Join(l.src, "in", "a.mp3"))

	counts, err := l.db.Counts(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, counts.After)
}

func TestRestoreSkipPolicy(t *testing.T) {
	ctx := context.Background()
	l := organizeFixture(t, map[string]int{"in/a.mp3": 1, "in/b.mp3": 2})
	occupied := filepath.Join(l.src, "in", "b.mp3")
	writeFile(t, occupied, "squatter")

	summary, err := newRestorer(t, l.db, func(c *Config) { c.Policy = move.PolicySkip }).Run(ctx, l.lib, "")
	require.NoError(t, err)
	require.Equal(t, 1, summary.Restored)
	require.Equal(t, 1, summary.Skipped)
	require.False(t, summary.Complete())

	require.Equal(t, "squatter", readFile(t, occupied))
	require.FileExists(t, l.target("02_B_FOO.mp3"))
	require.Equal(t, "audio in/a.mp3", readFile(t, filepath.Join(l.src, "in", "a.mp3")))

	// Records are kept until every file made it back
	counts, err := l.db.Counts(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, counts.After)
}

func TestRestoreBackupPolicy(t *testing.T) {
	ctx := context.Background()
	l := organizeFixture(t, map[string]int{"in/a.mp3": 1})
	occupied := filepath.Join(l.src, "in", "a.mp3")
	writeFile(t, occupied, "squatter")

	summary, err := newRestorer(t, l.db, func(c *Config) { c.Policy = move.PolicyBackup }).Run(ctx, l.lib, "")
	require.NoError(t, err)
	require.Equal(t, 1, summary.Restored)
	require.Equal(t, 1, summary.BackedUp)
	require.True(t, summary.Complete())

	res := summary.Results[0]
	require.Equal(t, OutcomeBackedUp, res.Outcome)
	require.Equal(t, filepath.Join(l.src, "in", "a.bak.mp3"), res.BackupPath)
	require.Equal(t, "squatter", readFile(t, res.BackupPath))
	require.Equal(t, "audio in/a.mp3", readFile(t, occupied))
}

func TestRestoreMissingFile(t *testing.T) {
	ctx := context.Background()
	l := organizeFixture(t, map[string]int{"in/a.mp3": 1, "in/b.mp3": 2})
	require.NoError(t, os.Remove(l.target("01_A_FOO.mp3")))

	summary, err := newRestorer(t, l.db, nil).Run(ctx, l.lib, "")
	require.NoError(t, err)
	require.Equal(t, 1, summary.Missing)
	require.Equal(t, 1, summary.Restored)
	require.Positive(t, summary.Warnings)
	require.True(t, summary.OK())
	require.False(t, summary.Complete())
	require.Zero(t, summary.Purged)
	require.FileExists(t, filepath.Join(l.src, "in", "b.mp3"))
}

func TestRestoreToDestination(t *testing.T) {
	ctx := context.Background()
	l := organizeFixture(t, map[string]int{"in/cd1/a.mp3": 1, "in/cd2/b.mp3": 2})
	dest := filepath.Join(t.TempDir(), "restored")

	r := newRestorer(t, l.db, nil)
	plan, err := r.Plan(ctx, l.lib, dest)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(l.src, "in"), plan.Base)
	require.Len(t, plan.Items, 2)

	summary, err := r.Execute(ctx, plan)
	require.NoError(t, err)
	require.Equal(t, 2, summary.Restored)

	require.Equal(t, map[string]string{
		"cd1/a.mp3": "audio in/cd1/a.mp3",
		"cd2/b.mp3": "audio in/cd2/b.mp3",
	}, snapshot(t, dest))
	require.Empty(t, snapshot(t, l.src))
}

func TestRestoreHoldingArea(t *testing.T) {
	ctx := context.Background()
	lib := t.TempDir()
	db, err := store.Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	defer db.Close()

	writeFile(t, filepath.Join(lib, "!unprocessed", "docs", "notes.txt"), "notes")

	r := newRestorer(t, db, nil)
	plan, err := r.Plan(ctx, lib, "")
	require.NoError(t, err)
	require.Len(t, plan.Items, 1)

	it := plan.Items[0]
	require.True(t, it.Holding)
	require.Equal(t, HoldingHashPrefix+"docs/notes.txt", it.Hash)
	require.Equal(t, filepath.Join(lib, "docs", "notes.txt"), it.Destination)
	require.Empty(t, plan.Hashes())

	summary, err := r.Execute(ctx, plan)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Restored)
	require.Equal(t, "notes", readFile(t, filepath.Join(lib, "docs", "notes.txt")))
	require.NoDirExists(t, filepath.Join(lib, "!unprocessed"))
}

func TestRestoreDryRun(t *testing.T) {
	ctx := context.Background()
	l := organizeFixture(t, map[string]int{"in/a.mp3": 1, "in/b.mp3": 2})
	writeFile(t, filepath.Join(l.src, "in", "a.mp3"), "squatter")
	srcBefore, libBefore := snapshot(t, l.src), snapshot(t, l.lib)

	r := newRestorer(t, l.db, func(c *Config) {
		c.Mover = move.New(&move.Config{DryRun: true})
		c.Policy = move.PolicyBackup
	})
	summary, err := r.Run(ctx, l.lib, "")
	require.NoError(t, err)
	require.True(t, summary.DryRun)
	require.Equal(t, 2, summary.Restored)
	require.Equal(t, 1, summary.BackedUp)
	require.Zero(t, summary.Purged)

	require.Equal(t, srcBefore, snapshot(t, l.src))
	require.Equal(t, libBefore, snapshot(t, l.lib))

	counts, err := l.db.Counts(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, counts.After)
}

func TestRestoreStopsOnFailure(t *testing.T) {
	for _, keepGoing := range []bool{false, true} {
		t.Run(strconv.FormatBool(keepGoing), func(t *testing.T) {
			ctx := context.Background()
			l := organizeFixture(t, map[string]int{"x/a.mp3": 1, "y/b.mp3": 2})
			// A file where a directory should be makes the first restore fail
			writeFile(t, filepath.Join(l.src, "x"), "not a directory")

			r := newRestorer(t, l.db, func(c *Config) {
				c.ContinueOnError = keepGoing
				c.Mover = move.New(&move.Config{RetryConfig: &util.RetryConfig{MaxAttempts: 1}})
			})
			summary, err := r.Run(ctx, l.lib, "")
			require.Equal(t, 1, summary.Failed)
			require.False(t, summary.OK())
			require.Zero(t, summary.Purged)
			require.FileExists(t, l.target("01_A_FOO.mp3"))

			if keepGoing {
				require.NoError(t, err)
				require.Equal(t, 1, summary.Restored)
				require.FileExists(t, filepath.Join(l.src, "y", "b.mp3"))
			} else {
				require.ErrorIs(t, err, util.ErrIO)
				require.Equal(t, 1, summary.NotAttempted)
				require.FileExists(t, l.target("02_B_FOO.mp3"))
			}
		})
	}
}

func TestRestoreMissingRoot(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	defer db.Close()

	_, err = newRestorer(t, db, nil).Plan(context.Background(), filepath.Join(t.TempDir(), "nope"), "")
	require.ErrorIs(t, err, util.ErrValidation)
}

func TestCommonDir(t *testing.T) {
	tests := []struct {
		paths []string
		want  string
	}{
		{nil, ""},
		{[]string{"/music/a/1.mp3"}, "/music/a"},
		{[]string{"/music/a/1.mp3", "/music/a/2.mp3"}, "/music/a"},
		{[]string{"/music/a/1.mp3", "/music/b/c/2.mp3"}, "/music"},
		{[]string{"/music/a/1.mp3", "/other/2.mp3"}, "/"},
	}
	for _, tt := range tests {
		if got := commonDir(tt.paths); got != tt.want {
			t.Errorf("commonDir(%v) = %q, want %q", tt.paths, got, tt.want)
		}
	}
}
