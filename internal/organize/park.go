package organize

import (
	"context"
	"path/filepath"

	"github.com/franz/music-shelver/internal/report"
	"github.com/franz/music-shelver/internal/scan"
	"github.com/franz/music-shelver/internal/util"
)

// parkLeftovers moves files that were neither organized nor carried along
// as companions into the holding area under source, keeping their relative
// paths. Directories that already hold organized files are left alone.
// Returns the number of parked non-audio files; parked audio units are
// flagged on their results.
func (o *Organizer) parkLeftovers(ctx context.Context, source string, others []string, items []*item, plans []*planned) int {
	targets, err := o.store.ListAfterTargets(ctx)
	if err != nil {
		util.WarnLog("Not parking leftovers: %v", err)
		return 0
	}
	organized := make(map[string]bool, len(targets))
	for t := range targets {
		organized[filepath.Dir(t)] = true
	}

	carried := make(map[string]bool)
	for _, pl := range plans {
		if pl.result.Status != StatusSuccess {
			continue
		}
		for _, c := range pl.unit.Companions {
			carried[c.Src] = true
		}
	}

	holding := filepath.Join(source, scan.UnprocessedDir)
	parkOne := func(path string) bool {
		rel, err := filepath.Rel(source, path)
		if err != nil || !util.FileExists(path) {
			return false
		}
		dst := filepath.Join(holding, rel)
		if _, err := o.mover.MoveFile(ctx, path, dst); err != nil {
			util.WarnLog("Could not park %s: %v", path, err)
			return false
		}
		o.logger.LogFile(report.EventOrganizePark, "", path, dst, "unprocessed", 0, 0, o.mover.DryRun(), nil)
		return true
	}

	for _, it := range items {
		switch it.result.Status {
		case StatusSkipped, StatusFailed:
			if parkOne(it.path) {
				it.result.Parked = true
			}
		}
	}

	parked := 0
	for _, path := range others {
		if carried[path] || organized[filepath.Dir(path)] {
			continue
		}
		if parkOne(path) {
			parked++
		}
	}
	if parked > 0 {
		util.InfoLog("Parked %d non-audio files in %s", parked, holding)
	}
	return parked
}
