package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/franz/music-shelver/internal/move"
	"github.com/franz/music-shelver/internal/report"
	"github.com/franz/music-shelver/internal/restore"
	"github.com/franz/music-shelver/internal/util"
	"github.com/spf13/cobra"
)

var restoreCmd = &cobra.Command{
	Use:   "restore <library>",
	Short: "Move organized files back to where they came from",
	Long: `Restore every file organized into <library> to the path it had before
organize ran, using the state database. Files parked in the holding area
(!unprocessed) go back to their relative paths as well.

With --destination, files are restored beneath that directory instead,
keeping their layout relative to the common parent of the original paths.

--collision-policy decides what happens when a restore path is occupied:
  abort   check every path first; stop before moving anything (default)
  skip    leave that file where it is and continue
  backup  rename the occupant aside (<name>.bak.<ext>) and restore

--purge-state drops the consumed records once every file is back.`,
	Args:    cobra.ExactArgs(1),
	PreRunE: bindFlags,
	RunE:    runRestore,
}

func init() {
	rootCmd.AddCommand(restoreCmd)

	restoreCmd.Flags().String("destination", "", "restore beneath this directory instead of the original paths")
	restoreCmd.Flags().Bool("dry-run", false, "show the restore plan without moving files")
	restoreCmd.Flags().String("collision-policy", "abort", "when a restore path is occupied: abort, skip or backup")
	restoreCmd.Flags().String("backup-suffix", ".bak", "suffix for files moved aside by the backup policy")
	restoreCmd.Flags().Bool("continue-on-error", false, "keep going after a file fails to restore")
	restoreCmd.Flags().Int("limit", 0, "only restore the first N planned files")
	restoreCmd.Flags().Bool("purge-state", false, "delete state records after a complete restore")
}

func runRestore(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	setupLogging()

	root := filepath.Clean(args[0])
	if err := requireDir(root, "library"); err != nil {
		return err
	}
	destination := GetConfigString("destination", "")
	if destination != "" {
		destination = filepath.Clean(destination)
	}

	policy, err := move.ParsePolicy(GetConfigString("collision-policy", ""))
	if err != nil {
		return err
	}
	dryRun := GetConfigBool("dry-run")

	dbPath, artifacts := libraryPaths(root)
	lib, err := openLibrary(dbPath)
	if err != nil {
		return err
	}
	defer lib.Close()

	logger := newEventLogger(artifacts)
	defer logger.Close()

	restorer, err := restore.New(&restore.Config{
		Store:           lib.Store,
		Mover:           move.New(&move.Config{DryRun: dryRun}),
		Logger:          logger,
		Policy:          policy,
		BackupSuffix:    GetConfigString("backup-suffix", ".bak"),
		ContinueOnError: GetConfigBool("continue-on-error"),
		Limit:           GetConfigInt("limit", 0),
		Purge:           GetConfigBool("purge-state"),
		Progress:        util.ShowProgress(),
	})
	if err != nil {
		return err
	}

	util.InfoLog("=== Restore ===")
	util.InfoLog("Library: %s", root)
	if destination != "" {
		util.InfoLog("Destination: %s", destination)
	}
	util.InfoLog("Collision policy: %s", policy)

	plan, err := restorer.Plan(ctx, root, destination)
	if err != nil {
		return fmt.Errorf("failed to plan restore: %w", err)
	}
	if len(plan.Items) == 0 {
		util.WarnLog("Nothing to restore under %s", root)
		return nil
	}
	if dryRun {
		fmt.Println(restorePreview(plan))
	}

	summary, runErr := restorer.Execute(ctx, plan)
	if summary == nil {
		return runErr
	}

	printRestoreSummary(summary)

	rep := report.NewSummaryReport("restore")
	rep.RunID = logger.RunID()
	rep.Duration = summary.Duration
	rep.DryRun = summary.DryRun
	rep.Interrupted = summary.Interrupted
	rep.Total = len(summary.Results)
	rep.Succeeded = summary.Restored
	rep.AlreadyDone = summary.AlreadyRestored
	rep.Skipped = summary.Skipped + summary.Missing
	rep.Failed = summary.Failed
	rep.BackedUp = summary.BackedUp
	rep.BytesMoved = summary.Bytes
	rep.CompanionsMoved = summary.Companions
	rep.Warnings = summary.Warnings
	rep.SourcePath = root
	rep.DestinationPath = destination
	for _, r := range summary.Results {
		switch r.Outcome {
		case restore.OutcomeFailed:
			rep.AddError(util.Reason(r.Err))
		case restore.OutcomeDestinationExists:
			rep.AddConflict(r.Current, r.Destination, string(r.Outcome))
		}
	}
	var collision *restore.CollisionError
	if errors.As(runErr, &collision) {
		rep.AddConflict(collision.Current, collision.Destination, "abort")
	}
	saveReport(ctx, rep, lib, logger, artifacts)

	if runErr != nil {
		return runErr
	}
	if summary.Interrupted {
		return fmt.Errorf("%w: restore stopped before every file was processed", util.ErrInterrupted)
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d files failed to restore", summary.Failed, len(summary.Results))
	}
	return nil
}

func printRestoreSummary(s *restore.Summary) {
	util.InfoLog("")
	util.SuccessLog("=== Restore Summary ===")
	util.InfoLog("Total time: %v", s.Duration.Round(time.Millisecond))
	util.InfoLog("Files planned: %d", len(s.Results))
	util.InfoLog("  Restored: %d", s.Restored)
	if s.BackedUp > 0 {
		util.InfoLog("    with occupant moved aside: %d", s.BackedUp)
	}
	util.InfoLog("  Already in place: %d", s.AlreadyRestored)
	if s.Missing > 0 {
		util.WarnLog("  Missing: %d", s.Missing)
	}
	if s.Skipped > 0 {
		util.WarnLog("  Skipped (destination exists): %d", s.Skipped)
	}
	if s.Failed > 0 {
		util.WarnLog("  Failed: %d", s.Failed)
	}
	if s.NotAttempted > 0 {
		util.WarnLog("  Not attempted: %d", s.NotAttempted)
	}
	util.InfoLog("Bytes moved: %s", util.FormatBytes(s.Bytes))
	if s.Purged > 0 {
		util.InfoLog("State records purged: %d", s.Purged)
	}
	if s.Aborted {
		util.InfoLog("")
		util.InfoLog("Re-run with --collision-policy skip or backup to restore around the conflicts")
	}
}
