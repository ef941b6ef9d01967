// Package organize moves audio files into the library layout. Per-file work
// (hashing, tag reading, romanization) runs on a bounded pool; planning is
// serial in input order; commits are serialized per album.
package organize

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/franz/music-shelver/internal/hash"
	"github.com/franz/music-shelver/internal/meta"
	"github.com/franz/music-shelver/internal/move"
	"github.com/franz/music-shelver/internal/pathgen"
	"github.com/franz/music-shelver/internal/report"
	"github.com/franz/music-shelver/internal/scan"
	"github.com/franz/music-shelver/internal/store"
	"github.com/franz/music-shelver/internal/util"
	"github.com/sourcegraph/conc/pool"
)

// ExtractFunc reads the raw tags of an audio file
type ExtractFunc func(path string) (meta.TagMap, error)

// Config holds organizer configuration. Only Store is required.
type Config struct {
	Store      *store.Store
	Hasher     *hash.Hasher
	Normalizer *meta.Normalizer
	Generator  *pathgen.Generator
	Mover      *move.Mover
	Extract    ExtractFunc
	Logger     *report.EventLogger

	Workers         int
	Limit           int
	Policy          move.Policy
	BackupSuffix    string
	ParkUnprocessed bool
	Progress        bool
}

// Organizer runs organize batches
type Organizer struct {
	store      *store.Store
	hasher     *hash.Hasher
	normalizer *meta.Normalizer
	generator  *pathgen.Generator
	mover      *move.Mover
	extract    ExtractFunc
	logger     *report.EventLogger

	workers      int
	limit        int
	policy       move.Policy
	backupSuffix string
	park         bool
	progress     bool
}

// New creates an Organizer
func New(cfg *Config) (*Organizer, error) {
	if cfg == nil || cfg.Store == nil {
		return nil, fmt.Errorf("%w: organizer needs a state store", util.ErrValidation)
	}
	o := &Organizer{
		store:        cfg.Store,
		hasher:       cfg.Hasher,
		normalizer:   cfg.Normalizer,
		generator:    cfg.Generator,
		mover:        cfg.Mover,
		extract:      cfg.Extract,
		logger:       cfg.Logger,
		workers:      cfg.Workers,
		limit:        cfg.Limit,
		policy:       cfg.Policy,
		backupSuffix: cfg.BackupSuffix,
		park:         cfg.ParkUnprocessed,
		progress:     cfg.Progress,
	}
	if o.hasher == nil {
		o.hasher = hash.New(0)
	}
	if o.normalizer == nil {
		o.normalizer = meta.NewNormalizer(nil)
	}
	if o.generator == nil {
		o.generator = pathgen.NewGenerator(nil, pathgen.NewCachedArtistIDs(cfg.Store), nil)
	}
	if o.mover == nil {
		o.mover = move.New(nil)
	}
	if o.extract == nil {
		o.extract = extractTags
	}
	if o.workers <= 0 {
		o.workers = runtime.NumCPU()
	}
	if o.policy == "" {
		o.policy = move.PolicyAbort
	}
	return o, nil
}

func extractTags(path string) (meta.TagMap, error) {
	tags, err := meta.Extract(path)
	if err != nil {
		return nil, err
	}
	return tags, nil
}

// item is one discovered audio file moving through the pipeline
type item struct {
	path     string
	hash     string
	md       *meta.TrackMetadata
	key      pathgen.AlbumKey
	warnings []string
	result   *UnitResult
	// replaces is the hash recorded earlier for this path when the content
	// has changed since
	replaces string
}

// planned is an item with a reserved target
type planned struct {
	*item
	target string
	backup bool
	layout []pathgen.LayoutValue
	unit   *move.Unit
}

type slotKey struct {
	album pathgen.AlbumKey
	disc  int
	track int
}

// Run organizes every audio file under source into target (source when
// empty). Per-file problems are reported in the Summary; the error return
// is reserved for failures that stop the whole batch.
func (o *Organizer) Run(ctx context.Context, source, target string) (*Summary, error) {
	start := time.Now()
	source = filepath.Clean(source)
	if target == "" {
		target = source
	}
	target = filepath.Clean(target)

	summary := &Summary{DryRun: o.mover.DryRun()}
	if summary.DryRun {
		util.InfoLog("DRY-RUN mode: no files will be moved")
	}

	scanned, err := scan.New(&scan.Config{Progress: o.progress}).Scan(ctx, source)
	if err != nil {
		if errors.Is(err, util.ErrInterrupted) {
			summary.Interrupted = true
			summary.Duration = time.Since(start)
			return summary, nil
		}
		return nil, err
	}

	audio := scanned.Audio
	if o.limit > 0 && len(audio) > o.limit {
		util.InfoLog("Limiting run to the first %d of %d files", o.limit, len(audio))
		audio = audio[:o.limit]
	}
	util.InfoLog("Found %d audio files", len(audio))
	o.logger.LogRun(report.EventRunStart, "organize", map[string]string{
		"source":  source,
		"target":  target,
		"files":   strconv.Itoa(len(audio)),
		"dry_run": strconv.FormatBool(summary.DryRun),
	})

	existing, err := o.store.ListAfterTargets(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrPersistence, err)
	}
	index := pathgen.NewTargetIndex(existing)

	items := make([]*item, len(audio))
	for i, path := range audio {
		items[i] = &item{path: path, result: &UnitResult{Path: path}}
	}

	// Album context is built per batch; stored albums are merged back in
	o.generator.Albums().Clear()
	o.prepareAll(ctx, items)
	o.registerAlbums(ctx, items)
	plans := o.plan(ctx, items, index, target)
	o.commitAll(ctx, plans)

	summary.Interrupted = ctx.Err() != nil
	if o.park && !summary.Interrupted {
		summary.Parked += o.parkLeftovers(ctx, source, scanned.Other, items, plans)
	}
	if !summary.DryRun {
		if n, err := move.RemoveEmptyDirs(source); err != nil {
			util.WarnLog("Failed to prune empty directories: %v", err)
		} else if n > 0 {
			util.DebugLog("Removed %d empty directories", n)
		}
	}

	for _, e := range scanned.Errors {
		summary.add(&UnitResult{Status: StatusFailed, Reason: util.Reason(e), Err: e})
	}
	for _, it := range items {
		if !it.result.done() {
			interrupt(it.result)
		}
		summary.add(it.result)
	}
	summary.Duration = time.Since(start)

	o.logger.LogRun(report.EventRunFinish, "organize", map[string]string{
		"succeeded":   strconv.Itoa(summary.Succeeded),
		"skipped":     strconv.Itoa(summary.Skipped),
		"failed":      strconv.Itoa(summary.Failed),
		"interrupted": strconv.FormatBool(summary.Interrupted),
	})
	util.SuccessLog("Organize complete: %d moved, %d already organized, %d skipped, %d failed, %s",
		summary.Succeeded, summary.AlreadyOrganized, summary.Skipped, summary.Failed, util.FormatBytes(summary.Bytes))

	return summary, nil
}

// prepareAll hashes, reads and normalizes every item on the worker pool
func (o *Organizer) prepareAll(ctx context.Context, items []*item) {
	bar := util.NewProgress(o.progress, len(items), "Reading")
	defer bar.Finish()

	p := pool.New().WithMaxGoroutines(o.workers)
	for _, it := range items {
		p.Go(func() {
			defer bar.Add(1)
			if ctx.Err() != nil {
				interrupt(it.result)
				return
			}
			o.prepare(ctx, it)
		})
	}
	p.Wait()
}

func (o *Organizer) prepare(ctx context.Context, it *item) {
	h, err := o.hasher.File(ctx, it.path)
	if err != nil {
		o.finish(ctx, it.result, err)
		return
	}
	it.hash = h
	it.result.Hash = h

	tags, err := o.extract(it.path)
	if err != nil {
		// Unreadable tags fall back to defaults
		it.warnings = append(it.warnings, fmt.Sprintf("tags unreadable: %v", err))
		tags = meta.MapTags{}
	}

	md, warnings := o.normalizer.Normalize(ctx, tags, it.path)
	it.md = md
	it.warnings = append(it.warnings, warnings...)
	for _, w := range it.warnings {
		util.DebugLog("%s: %s", it.path, w)
	}
}

// registerAlbums builds album context from every readable track, then folds
// in what earlier runs persisted for the same albums
func (o *Organizer) registerAlbums(ctx context.Context, items []*item) {
	albums := o.generator.Albums()
	for _, it := range items {
		if it.result.done() {
			continue
		}
		it.key = albums.Register(it.md)
	}

	for _, info := range albums.List() {
		stored, err := o.store.GetAlbum(ctx, info.Key.Album, info.Key.Artist)
		if err != nil {
			util.WarnLog("Failed to load album %s: %v", info.Key, err)
			continue
		}
		if stored != nil {
			albums.Merge(info.Key, stored.Year, stored.TotalTracks, stored.TotalDiscs)
		}
	}
}

// plan reserves a target for each item in input order. Items that need no
// move or cannot be moved are finished here.
func (o *Organizer) plan(ctx context.Context, items []*item, index *pathgen.TargetIndex, targetRoot string) []*planned {
	var plans []*planned
	seen := make(map[string]string)
	slots := make(map[slotKey]string)

	for _, it := range items {
		res := it.result
		if res.done() {
			continue
		}
		if ctx.Err() != nil {
			interrupt(res)
			continue
		}
		res.Warnings = append(res.Warnings, it.warnings...)

		if first, ok := seen[it.hash]; ok {
			o.skip(res, ReasonDuplicate, nil, "same content as "+first)
			continue
		}
		seen[it.hash] = it.path

		if err := o.supersede(ctx, it, index); err != nil {
			o.finish(ctx, res, fmt.Errorf("%w: %v", util.ErrPersistence, err))
			continue
		}

		after, err := o.store.GetAfterByHash(ctx, it.hash)
		if err != nil {
			o.finish(ctx, res, fmt.Errorf("%w: %v", util.ErrPersistence, err))
			continue
		}
		if after != nil {
			if util.SameFile(after.TargetPath, it.path) {
				res.Status = StatusSuccess
				res.Reason = ReasonAlreadyOrganized
				res.Target = after.TargetPath
				o.logger.LogFile(report.EventOrganizeAlready, it.hash, it.path, after.TargetPath, res.Reason, 0, 0, o.mover.DryRun(), nil)
				continue
			}
			if util.FileExists(after.TargetPath) {
				o.skip(res, ReasonDuplicate, nil, "content already organized at "+after.TargetPath)
				continue
			}
		}

		tgt := o.generator.Generate(ctx, it.md)
		dest, _ := index.Claim(filepath.Join(targetRoot, tgt.RelPath()), it.hash)
		res.Target = dest

		if it.md.TrackNumber > 0 {
			sk := slotKey{album: it.key, disc: it.md.DiscNumber, track: it.md.TrackNumber}
			conflict := o.storedSlotConflict(ctx, sk, it)
			if holder, ok := slots[sk]; ok && holder != it.hash {
				conflict = &store.SlotConflictError{
					DiscNumber:  sk.disc,
					TrackNumber: sk.track,
					Holder:      holder,
					Claimant:    it.hash,
				}
			}
			if conflict != nil {
				index.Release(dest, it.hash)
				o.skip(res, ReasonSlotConflict, conflict, "")
				continue
			}
			slots[sk] = it.hash
		}

		pl := &planned{item: it, target: dest}
		if !util.SameFile(dest, it.path) && util.FileExists(dest) {
			occupied := fmt.Errorf("%w: destination exists: %s", util.ErrCollision, dest)
			switch o.policy {
			case move.PolicySkip:
				index.Release(dest, it.hash)
				o.skip(res, ReasonDestination, occupied, "")
				continue
			case move.PolicyBackup:
				pl.backup = true
			default:
				index.Release(dest, it.hash)
				o.finish(ctx, res, occupied)
				continue
			}
		}

		if layout := o.generator.Layout(); layout != nil {
			info, _ := o.generator.Albums().Get(it.key)
			pl.layout = layout.Values(it.md, &info)
		}
		plans = append(plans, pl)
	}

	// Artwork travels with the first planned track of each source directory
	paths := make([]string, len(plans))
	for i, pl := range plans {
		paths[i] = pl.path
	}
	owners := move.ArtworkOwners(paths)
	for _, pl := range plans {
		pl.unit = &move.Unit{
			Src:        pl.path,
			Dst:        pl.target,
			Companions: move.Companions(pl.path, pl.target, owners[pl.path]),
		}
	}

	util.InfoLog("Planned %d moves", len(plans))
	return plans
}

// supersede notes when the file at it.path was recorded earlier with other
// content that was never moved into place. The old hash gives up its
// reserved target here and its slot when the unit is committed.
func (o *Organizer) supersede(ctx context.Context, it *item, index *pathgen.TargetIndex) error {
	prev, err := o.store.GetBeforeByPath(ctx, it.path)
	if err != nil || prev == nil || prev.FileHash == it.hash {
		return err
	}
	after, err := o.store.GetAfterByHash(ctx, prev.FileHash)
	if err != nil {
		return err
	}
	if after != nil {
		if util.FileExists(after.TargetPath) {
			// The old content still lives in the library
			return nil
		}
		index.Release(after.TargetPath, prev.FileHash)
	}
	it.replaces = prev.FileHash
	util.DebugLog("%s changed since it was recorded as %s", it.path, prev.FileHash)
	return nil
}

// storedSlotConflict checks a slot against assignments from earlier runs
func (o *Organizer) storedSlotConflict(ctx context.Context, sk slotKey, it *item) error {
	album, err := o.store.GetAlbum(ctx, sk.album.Album, sk.album.Artist)
	if err != nil || album == nil {
		return nil
	}
	held, err := o.store.GetTrackPosition(ctx, album.ID, sk.disc, sk.track)
	if err != nil || held == nil || held.FileHash == it.hash {
		return nil
	}
	if it.replaces != "" && held.FileHash == it.replaces {
		return nil
	}
	return &store.SlotConflictError{
		AlbumID:     album.ID,
		DiscNumber:  sk.disc,
		TrackNumber: sk.track,
		Holder:      held.FileHash,
		Claimant:    it.hash,
	}
}

// commitAll commits plans grouped by album. Groups run on the pool; inside a
// group commits are strictly sequential.
func (o *Organizer) commitAll(ctx context.Context, plans []*planned) {
	groups := make(map[pathgen.AlbumKey][]*planned)
	var order []pathgen.AlbumKey
	for _, pl := range plans {
		if _, ok := groups[pl.key]; !ok {
			order = append(order, pl.key)
		}
		groups[pl.key] = append(groups[pl.key], pl)
	}

	bar := util.NewProgress(o.progress, len(plans), "Organizing")
	defer bar.Finish()

	p := pool.New().WithMaxGoroutines(o.workers)
	for _, key := range order {
		group := groups[key]
		p.Go(func() {
			for _, pl := range group {
				if ctx.Err() != nil {
					interrupt(pl.result)
				} else {
					// A started unit runs to completion
					o.commit(context.WithoutCancel(ctx), pl)
				}
				bar.Add(1)
			}
		})
	}
	p.Wait()
}

// commit persists the before-record and slot, moves the unit, then persists
// the after-record. A failed move or after-record write undoes the earlier
// steps so no half-written pair remains.
func (o *Organizer) commit(ctx context.Context, pl *planned) {
	res := pl.result
	md := pl.md
	start := time.Now()
	dryRun := o.mover.DryRun()
	info, _ := o.generator.Albums().Get(pl.key)

	err := o.store.WithTransaction(ctx, func(q *store.Queries) error {
		if err := q.RecordBefore(ctx, &store.BeforeRecord{
			FileHash:    pl.hash,
			FilePath:    pl.path,
			Title:       md.Title,
			Artist:      md.Artist,
			Album:       md.Album,
			AlbumArtist: md.AlbumArtist,
			Genre:       md.Genre,
			Year:        md.Year,
			TrackNumber: md.TrackNumber,
			TotalTracks: md.TrackTotal,
			DiscNumber:  md.DiscNumber,
			TotalDiscs:  md.DiscTotal,
		}); err != nil {
			return err
		}
		album, err := q.GetOrCreateAlbum(ctx, &store.Album{
			Name:        pl.key.Album,
			Artist:      pl.key.Artist,
			Year:        info.Year,
			TotalTracks: info.TotalTracks,
			TotalDiscs:  info.TotalDiscs,
		})
		if err != nil {
			return err
		}
		if md.TrackNumber > 0 {
			if err := q.ClaimTrackPosition(ctx, album.ID, md.DiscNumber, md.TrackNumber, pl.hash); err != nil {
				return err
			}
		}
		if layout := o.generator.Layout(); layout != nil {
			return layout.Record(ctx, q, pl.hash, pl.layout)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, util.ErrCollision) {
			o.skip(res, ReasonSlotConflict, err, "")
		} else {
			o.finish(ctx, res, err)
		}
		return
	}

	var aside string
	if pl.backup && !dryRun {
		aside = move.BackupPath(pl.target, o.backupSuffix)
		if _, err := o.mover.MoveFile(ctx, pl.target, aside); err != nil {
			o.undoRecords(ctx, pl)
			o.finish(ctx, res, err)
			return
		}
		res.Warnings = append(res.Warnings, "existing file moved aside to "+aside)
	}

	var moved *move.UnitResult
	if pl.backup && dryRun {
		// The occupant is only moved aside in a real run
		moved = &move.UnitResult{}
		if st, err := os.Stat(pl.path); err == nil {
			moved.Bytes = st.Size()
		}
	} else {
		moved, err = o.mover.MoveUnit(ctx, pl.unit)
		if err != nil {
			if aside != "" {
				o.mover.MoveFile(ctx, aside, pl.target)
			}
			o.undoRecords(ctx, pl)
			o.finish(ctx, res, err)
			return
		}
	}

	err = o.store.WithTransaction(ctx, func(q *store.Queries) error {
		return q.RecordAfter(ctx, &store.AfterRecord{FileHash: pl.hash, FilePath: pl.path, TargetPath: pl.target})
	})
	if err != nil {
		if !dryRun {
			if _, mvErr := o.mover.MoveFile(ctx, pl.target, pl.path); mvErr != nil {
				util.ErrorLog("Failed to move %s back after state error: %v", pl.target, mvErr)
			}
		}
		o.undoRecords(ctx, pl)
		o.finish(ctx, res, err)
		return
	}

	res.Status = StatusSuccess
	res.Reason = ReasonMoved
	if dryRun {
		res.Reason = ReasonPlanned
	}
	res.Bytes = moved.Bytes
	for _, c := range moved.Companions {
		if c.Moved {
			res.Companions++
		}
		if c.Warning != "" {
			res.Warnings = append(res.Warnings, c.Warning)
		}
		o.logger.LogCompanion(c.Kind, c.Src, c.Dst, c.Warning, dryRun)
	}
	o.logger.LogFile(report.EventOrganizeSuccess, pl.hash, pl.path, pl.target, res.Reason, res.Bytes, time.Since(start), dryRun, nil)
	util.DebugLog("Organized %s -> %s", pl.path, pl.target)
}

// undoRecords drops the rows written for a unit whose move did not complete
func (o *Organizer) undoRecords(ctx context.Context, pl *planned) {
	if _, err := o.store.DeleteRecords(ctx, []string{pl.hash}); err != nil {
		util.ErrorLog("Failed to roll back state for %s: %v", pl.path, err)
	}
}

// finish marks a unit failed, or skipped when the failure is an interrupt
func (o *Organizer) finish(ctx context.Context, res *UnitResult, err error) {
	if errors.Is(err, util.ErrInterrupted) || errors.Is(err, context.Canceled) {
		interrupt(res)
		return
	}
	res.Status = StatusFailed
	res.Reason = util.Reason(err)
	res.Err = err
	util.ErrorLog("Failed to organize %s: %v", res.Path, err)
	o.logger.LogFile(report.EventOrganizeFail, res.Hash, res.Path, res.Target, res.Reason, 0, 0, o.mover.DryRun(), err)
}

func (o *Organizer) skip(res *UnitResult, reason string, err error, detail string) {
	res.Status = StatusSkipped
	res.Reason = reason
	res.Err = err
	if detail == "" && err != nil {
		detail = err.Error()
	}
	if detail != "" {
		res.Warnings = append(res.Warnings, detail)
	}
	util.WarnLog("Skipping %s: %s", res.Path, detail)
	o.logger.LogFile(report.EventOrganizeSkip, res.Hash, res.Path, res.Target, reason, 0, 0, o.mover.DryRun(), nil)
}

func interrupt(res *UnitResult) {
	res.Status = StatusSkipped
	res.Reason = ReasonInterrupted
	res.Err = util.ErrInterrupted
}
