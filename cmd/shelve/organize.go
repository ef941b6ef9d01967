package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/franz/music-shelver/internal/hash"
	"github.com/franz/music-shelver/internal/meta"
	"github.com/franz/music-shelver/internal/move"
	"github.com/franz/music-shelver/internal/musicbrainz"
	"github.com/franz/music-shelver/internal/organize"
	"github.com/franz/music-shelver/internal/pathgen"
	"github.com/franz/music-shelver/internal/report"
	"github.com/franz/music-shelver/internal/util"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var organizeCmd = &cobra.Command{
	Use:   "organize <source>",
	Short: "Move audio files into the library layout",
	Long: `Organize audio files found under <source> into the library at --target
(default: <source> itself).

Each file is hashed, its tags are read and normalized, and it is moved to
  <Artist>/<Year>_<Album>/[D<disc>_]<track>_<Title>_<ARTISTID>.<ext>
together with its .lrc lyrics and the directory's cover art. Every move is
recorded in the state database so 'shelve restore' can undo it.

Running organize again on an organized library changes nothing.
Use --dry-run to see the planned layout without touching any file.`,
	Args:    cobra.ExactArgs(1),
	PreRunE: bindFlags,
	RunE:    runOrganize,
}

func init() {
	rootCmd.AddCommand(organizeCmd)

	organizeCmd.Flags().StringP("target", "t", "", "library root (default: organize in place)")
	organizeCmd.Flags().Bool("dry-run", false, "plan and report without moving files")
	organizeCmd.Flags().IntP("workers", "w", 0, "parallel workers for hashing and tag reading (default: number of CPUs)")
	organizeCmd.Flags().Int("limit", 0, "only process the first N discovered files")
	organizeCmd.Flags().Int("chunk-size", 0, "read size in bytes for content hashing")
	organizeCmd.Flags().String("path-format", "", "directory layout built from tags, e.g. Genre/AlbumArtist")
	organizeCmd.Flags().Bool("park-unprocessed", false, "move files that were not organized into <source>/!unprocessed")
	organizeCmd.Flags().String("preferences", "", "TOML file of preferred artist romanizations")
	organizeCmd.Flags().Bool("no-musicbrainz", false, "never query MusicBrainz for romanized artist names")
	organizeCmd.Flags().String("mb-contact", "", "contact address sent to MusicBrainz in the User-Agent")
	organizeCmd.Flags().String("collision-policy", "abort", "when a target is taken by an unrelated file: abort, skip or backup")
	organizeCmd.Flags().String("backup-suffix", ".bak", "suffix for files moved aside by the backup policy")
}

func runOrganize(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	setupLogging()

	source := filepath.Clean(args[0])
	if err := requireDir(source, "source"); err != nil {
		return err
	}
	target := filepath.Clean(GetConfigString("target", source))

	policy, err := move.ParsePolicy(GetConfigString("collision-policy", ""))
	if err != nil {
		return err
	}
	var layout *pathgen.Layout
	if format := GetConfigString("path-format", ""); format != "" {
		if layout, err = pathgen.ParseLayout(format); err != nil {
			return err
		}
	}
	dryRun := GetConfigBool("dry-run")

	dbPath, artifacts := libraryPaths(target)
	lib, err := openLibrary(dbPath)
	if err != nil {
		return err
	}
	defer lib.Close()

	logger := newEventLogger(artifacts)
	defer logger.Close()

	prefs, err := meta.LoadPreferences(afero.NewOsFs(), GetConfigString("preferences", ""))
	if err != nil {
		return err
	}
	if prefs.Len() > 0 {
		util.InfoLog("Loaded %d artist preferences", prefs.Len())
	}

	var lookup meta.Lookup
	if GetConfigBool("musicbrainz") && !GetConfigBool("no-musicbrainz") {
		lookup = musicbrainz.NewClient(&musicbrainz.Config{Contact: GetConfigString("mb-contact", "")})
	}
	romanizer := meta.NewRomanizer(&meta.RomanizerConfig{
		Preferences: prefs,
		Cache:       lib.Store,
		Lookup:      lookup,
	})

	organizer, err := organize.New(&organize.Config{
		Store:           lib.Store,
		Hasher:          hash.New(GetConfigInt("chunk-size", 0)),
		Normalizer:      meta.NewNormalizer(romanizer),
		Generator:       pathgen.NewGenerator(pathgen.NewAlbums(), pathgen.NewCachedArtistIDs(lib.Store), layout),
		Mover:           move.New(&move.Config{DryRun: dryRun}),
		Logger:          logger,
		Workers:         GetConfigInt("workers", 0),
		Limit:           GetConfigInt("limit", 0),
		Policy:          policy,
		BackupSuffix:    GetConfigString("backup-suffix", ".bak"),
		ParkUnprocessed: GetConfigBool("park-unprocessed"),
		Progress:        util.ShowProgress(),
	})
	if err != nil {
		return err
	}

	util.InfoLog("=== Organize ===")
	util.InfoLog("Source: %s", source)
	util.InfoLog("Target: %s", target)

	summary, err := organizer.Run(ctx, source, target)
	if err != nil {
		return fmt.Errorf("organize failed: %w", err)
	}

	if dryRun {
		fmt.Println(organizePreview(summary, source, target))
	} else if prefs.Dirty() {
		if err := prefs.Save(); err != nil {
			util.WarnLog("Failed to save artist preferences: %v", err)
		}
	}

	printOrganizeSummary(summary)

	rep := report.NewSummaryReport("organize")
	rep.RunID = logger.RunID()
	rep.Duration = summary.Duration
	rep.DryRun = summary.DryRun
	rep.Interrupted = summary.Interrupted
	rep.Total = summary.Total()
	rep.Succeeded = summary.Succeeded
	rep.AlreadyDone = summary.AlreadyOrganized
	rep.Skipped = summary.Skipped
	rep.Failed = summary.Failed
	rep.Parked = summary.Parked
	rep.BytesMoved = summary.Bytes
	rep.CompanionsMoved = summary.Companions
	rep.Warnings = summary.Warnings
	rep.SourcePath = source
	rep.DestinationPath = target
	for _, r := range summary.Results {
		switch r.Status {
		case organize.StatusFailed:
			rep.AddError(r.Reason)
		case organize.StatusSkipped:
			if r.Reason == organize.ReasonSlotConflict || r.Reason == organize.ReasonDestination {
				rep.AddConflict(r.Path, r.Target, r.Reason)
			}
		}
	}
	saveReport(ctx, rep, lib, logger, artifacts)

	if summary.Interrupted {
		return fmt.Errorf("%w: organize stopped before every file was processed", util.ErrInterrupted)
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d files failed to organize", summary.Failed, summary.Total())
	}
	return nil
}

func printOrganizeSummary(s *organize.Summary) {
	util.InfoLog("")
	util.SuccessLog("=== Organize Summary ===")
	util.InfoLog("Total time: %v", s.Duration.Round(time.Millisecond))
	util.InfoLog("Files processed: %d", s.Total())
	util.InfoLog("  Organized: %d", s.Succeeded)
	util.InfoLog("  Already organized: %d", s.AlreadyOrganized)
	util.InfoLog("  Skipped: %d", s.Skipped)
	if s.Failed > 0 {
		util.WarnLog("  Failed: %d", s.Failed)
	}
	if s.Parked > 0 {
		util.InfoLog("  Parked: %d", s.Parked)
	}
	util.InfoLog("Companions moved: %d", s.Companions)
	util.InfoLog("Bytes moved: %s", util.FormatBytes(s.Bytes))

	failed := s.ByStatus(organize.StatusFailed)
	if len(failed) > 0 {
		util.InfoLog("")
		util.WarnLog("Errors encountered:")
		for i, r := range failed {
			if i >= 10 {
				util.WarnLog("... and %d more errors", len(failed)-10)
				break
			}
			util.WarnLog("  - %s: %v", r.Path, r.Err)
		}
	}
}
