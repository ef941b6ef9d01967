package restore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/franz/music-shelver/internal/move"
	"github.com/franz/music-shelver/internal/report"
	"github.com/franz/music-shelver/internal/store"
	"github.com/franz/music-shelver/internal/util"
)

// Outcome is what happened to one plan item
type Outcome string

const (
	OutcomeRestored          Outcome = "restored"
	OutcomeAlreadyRestored   Outcome = "already_restored"
	OutcomeMissing           Outcome = "missing"
	OutcomeDestinationExists Outcome = "destination_exists"
	OutcomeBackedUp          Outcome = "backed_up"
	OutcomeFailed            Outcome = "failed"
	OutcomeInterrupted       Outcome = "interrupted"
	OutcomeNotAttempted      Outcome = "not_attempted"
)

// ItemResult is the outcome of one plan item
type ItemResult struct {
	*Item
	Outcome         Outcome
	BackupPath      string
	Bytes           int64
	CompanionsMoved int
	Warnings        []string
	Err             error
}

// Summary aggregates a restore run
type Summary struct {
	Results []*ItemResult

	Restored        int // includes backed-up restores
	AlreadyRestored int
	Missing         int
	Skipped         int
	BackedUp        int
	Failed          int
	NotAttempted    int

	Bytes       int64
	Companions  int
	Warnings    int
	Purged      int64
	DryRun      bool
	Interrupted bool
	Aborted     bool
	Duration    time.Duration
}

// OK reports whether nothing failed and the run was not cut short
func (s *Summary) OK() bool {
	return s.Failed == 0 && !s.Interrupted && !s.Aborted
}

// Complete reports whether every item ended up at its destination
func (s *Summary) Complete() bool {
	return s.OK() && s.Missing == 0 && s.Skipped == 0 && s.NotAttempted == 0
}

func (s *Summary) add(r *ItemResult) {
	s.Results = append(s.Results, r)
	switch r.Outcome {
	case OutcomeRestored:
		s.Restored++
	case OutcomeBackedUp:
		s.Restored++
		s.BackedUp++
	case OutcomeAlreadyRestored:
		s.AlreadyRestored++
	case OutcomeMissing:
		s.Missing++
	case OutcomeDestinationExists:
		s.Skipped++
	case OutcomeFailed:
		s.Failed++
	case OutcomeInterrupted:
		s.Interrupted = true
		s.NotAttempted++
	default:
		s.NotAttempted++
	}
	s.Bytes += r.Bytes
	s.Companions += r.CompanionsMoved
	s.Warnings += len(r.Warnings)
}

// Config holds restorer configuration. Only Store is required.
type Config struct {
	Store  *store.Store
	Mover  *move.Mover
	Logger *report.EventLogger

	Policy          move.Policy
	BackupSuffix    string
	ContinueOnError bool
	Limit           int
	Purge           bool
	Progress        bool
}

// Restorer plans and executes restores
type Restorer struct {
	store  *store.Store
	mover  *move.Mover
	logger *report.EventLogger

	policy          move.Policy
	backupSuffix    string
	continueOnError bool
	limit           int
	purge           bool
	progress        bool
}

// New creates a Restorer
func New(cfg *Config) (*Restorer, error) {
	if cfg == nil || cfg.Store == nil {
		return nil, fmt.Errorf("%w: restorer needs a state store", util.ErrValidation)
	}
	r := &Restorer{
		store:           cfg.Store,
		mover:           cfg.Mover,
		logger:          cfg.Logger,
		policy:          cfg.Policy,
		backupSuffix:    cfg.BackupSuffix,
		continueOnError: cfg.ContinueOnError,
		limit:           cfg.Limit,
		purge:           cfg.Purge,
		progress:        cfg.Progress,
	}
	if r.mover == nil {
		r.mover = move.New(nil)
	}
	if r.policy == "" {
		r.policy = move.PolicyAbort
	}
	if r.backupSuffix == "" {
		r.backupSuffix = ".bak"
	}
	return r, nil
}

// Run plans and executes a restore of root
func (r *Restorer) Run(ctx context.Context, root, destination string) (*Summary, error) {
	plan, err := r.Plan(ctx, root, destination)
	if err != nil {
		return nil, err
	}
	return r.Execute(ctx, plan)
}

// Execute carries out a plan. Under the abort policy every destination is
// checked first and a single collision stops the run before anything
// moves, returning a *CollisionError.
func (r *Restorer) Execute(ctx context.Context, plan *Plan) (*Summary, error) {
	start := time.Now()
	dryRun := r.mover.DryRun()
	summary := &Summary{DryRun: dryRun}
	if dryRun {
		util.InfoLog("DRY-RUN mode: no files will be moved")
	}
	r.logger.LogRun(report.EventRunStart, "restore", map[string]string{
		"root":        plan.Root,
		"destination": plan.Destination,
		"files":       strconv.Itoa(len(plan.Items)),
		"policy":      string(r.policy),
	})

	results := make([]*ItemResult, len(plan.Items))
	var conflicts []*ItemResult
	for i, it := range plan.Items {
		res := &ItemResult{Item: it}
		results[i] = res
		switch {
		case !util.FileExists(it.Current):
			res.Outcome = OutcomeMissing
			res.Warnings = append(res.Warnings, "current file is missing: "+it.Current)
			util.WarnLog("Skipping %s: file is missing", it.Current)
			r.logger.LogFile(report.EventRestoreSkip, it.Hash, it.Current, it.Destination, string(OutcomeMissing), 0, 0, dryRun, nil)
		case util.SameFile(it.Current, it.Destination):
			res.Outcome = OutcomeAlreadyRestored
		case util.FileExists(it.Destination):
			conflicts = append(conflicts, res)
			r.logger.LogConflict(report.EventRestoreConflict, it.Current, it.Destination, string(r.policy))
		}
	}

	if len(conflicts) > 0 && r.policy == move.PolicyAbort {
		first := conflicts[0]
		err := &CollisionError{Current: first.Current, Destination: first.Destination}
		util.ErrorLog("Restore aborted: %d destinations already exist, nothing was moved", len(conflicts))
		summary.Aborted = true
		r.finish(summary, results, start)
		return summary, err
	}

	bar := util.NewProgress(r.progress, len(results), "Restoring")
	var runErr error
	for _, res := range results {
		if res.Outcome != "" {
			bar.Add(1)
			continue
		}
		if runErr != nil {
			res.Outcome = OutcomeNotAttempted
			continue
		}
		if ctx.Err() != nil {
			res.Outcome = OutcomeInterrupted
			continue
		}

		itemStart := time.Now()
		// A started item runs to completion
		err := r.restoreOne(context.WithoutCancel(ctx), res, dryRun)
		if err != nil {
			res.Outcome = OutcomeFailed
			res.Err = err
			util.ErrorLog("Failed to restore %s: %v", res.Current, err)
			r.logger.LogFile(report.EventRestoreFail, res.Hash, res.Current, res.Destination, util.Reason(err), 0, time.Since(itemStart), dryRun, err)
			if !r.continueOnError {
				runErr = fmt.Errorf("restore stopped at %s: %w", res.Current, err)
			}
		}
		bar.Add(1)
	}
	bar.Finish()

	r.finish(summary, results, start)

	if r.purge {
		if err := r.purgeState(ctx, plan, summary); err != nil && runErr == nil {
			runErr = err
		}
	}
	if !dryRun && summary.Restored > 0 {
		if n, err := move.RemoveEmptyDirs(plan.Root); err != nil {
			util.WarnLog("Failed to prune empty directories: %v", err)
		} else if n > 0 {
			util.DebugLog("Removed %d empty directories", n)
		}
	}

	util.SuccessLog("Restore complete: %d restored, %d already in place, %d missing, %d skipped, %d failed",
		summary.Restored, summary.AlreadyRestored, summary.Missing, summary.Skipped, summary.Failed)
	return summary, runErr
}

// restoreOne moves an item back, dealing with an occupied destination per
// policy
func (r *Restorer) restoreOne(ctx context.Context, res *ItemResult, dryRun bool) error {
	occupied := util.FileExists(res.Destination)
	if occupied {
		if r.policy == move.PolicySkip {
			res.Outcome = OutcomeDestinationExists
			res.Warnings = append(res.Warnings, "destination exists: "+res.Destination)
			util.WarnLog("Skipping %s: %s already exists", res.Current, res.Destination)
			r.logger.LogFile(report.EventRestoreSkip, res.Hash, res.Current, res.Destination, string(OutcomeDestinationExists), 0, 0, dryRun, nil)
			return nil
		}
		res.BackupPath = move.BackupPath(res.Destination, r.backupSuffix)
		if _, err := r.mover.MoveFile(ctx, res.Destination, res.BackupPath); err != nil {
			return fmt.Errorf("failed to move existing file aside: %w", err)
		}
		r.logger.LogFile(report.EventRestoreBackup, "", res.Destination, res.BackupPath, string(OutcomeBackedUp), 0, 0, dryRun, nil)
	}

	if occupied && dryRun {
		// The occupant only moves aside in a real run
		if st, err := os.Stat(res.Current); err == nil {
			res.Bytes = st.Size()
		}
		res.Outcome = OutcomeBackedUp
		return nil
	}

	start := time.Now()
	moved, err := r.mover.MoveUnit(ctx, &move.Unit{Src: res.Current, Dst: res.Destination, Companions: res.Item.Companions})
	if err != nil {
		if res.BackupPath != "" && !dryRun {
			if _, undoErr := r.mover.MoveFile(ctx, res.BackupPath, res.Destination); undoErr != nil {
				util.ErrorLog("Failed to put %s back: %v", res.BackupPath, undoErr)
			}
		}
		return err
	}

	res.Bytes = moved.Bytes
	for _, c := range moved.Companions {
		if c.Moved {
			res.CompanionsMoved++
		}
		if c.Warning != "" {
			res.Warnings = append(res.Warnings, c.Warning)
		}
		r.logger.LogCompanion(c.Kind, c.Src, c.Dst, c.Warning, dryRun)
	}

	res.Outcome = OutcomeRestored
	if occupied {
		res.Outcome = OutcomeBackedUp
	}
	r.logger.LogFile(report.EventRestoreSuccess, res.Hash, res.Current, res.Destination, string(res.Outcome), res.Bytes, time.Since(start), dryRun, nil)
	util.DebugLog("Restored %s -> %s", res.Current, res.Destination)
	return nil
}

// purgeState drops the consumed records after a complete, real restore
func (r *Restorer) purgeState(ctx context.Context, plan *Plan, summary *Summary) error {
	if summary.DryRun {
		util.InfoLog("DRY-RUN: state records kept")
		return nil
	}
	if !summary.Complete() {
		util.WarnLog("State records kept: not every file was restored")
		return nil
	}

	hashes := plan.Hashes()
	err := r.store.WithTransaction(ctx, func(q *store.Queries) error {
		n, err := q.DeleteRecords(ctx, hashes)
		summary.Purged = n
		return err
	})
	if err != nil {
		if errors.Is(err, util.ErrPersistence) {
			return err
		}
		return fmt.Errorf("%w: %v", util.ErrPersistence, err)
	}
	r.logger.LogRun(report.EventStatePurge, "restore", map[string]string{"records": strconv.FormatInt(summary.Purged, 10)})
	util.InfoLog("Purged %d state records", summary.Purged)
	return nil
}

func (r *Restorer) finish(summary *Summary, results []*ItemResult, start time.Time) {
	for _, res := range results {
		if res.Outcome == "" {
			res.Outcome = OutcomeNotAttempted
		}
		summary.add(res)
	}
	summary.Duration = time.Since(start)
	r.logger.LogRun(report.EventRunFinish, "restore", map[string]string{
		"restored": strconv.Itoa(summary.Restored),
		"failed":   strconv.Itoa(summary.Failed),
		"aborted":  strconv.FormatBool(summary.Aborted),
	})
}
