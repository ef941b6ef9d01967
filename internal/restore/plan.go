// Package restore moves organized files back to where they came from, using
// the after-records of earlier organize runs and the holding area.
package restore

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/franz/music-shelver/internal/move"
	"github.com/franz/music-shelver/internal/scan"
	"github.com/franz/music-shelver/internal/util"
)

// HoldingHashPrefix marks plan items that come from the holding area
// rather than from state records
const HoldingHashPrefix = "unprocessed::"

// CollisionError reports a restore destination that is already occupied
type CollisionError struct {
	Current     string
	Destination string
}

func (e *CollisionError) Error() string {
	return fmt.Sprintf("restore destination already exists: %s (for %s)", e.Destination, e.Current)
}

// Is makes errors.Is(err, util.ErrCollision) match
func (e *CollisionError) Is(target error) bool {
	return target == util.ErrCollision
}

// Item is one file to move back
type Item struct {
	Hash        string
	Current     string
	Original    string
	Destination string
	Holding     bool
	Companions  []move.Companion
}

// Plan is the ordered list of restore moves for one library root
type Plan struct {
	Root        string
	Destination string
	// Base is the deepest directory containing every recorded original;
	// paths are rebased from it when Destination is set
	Base  string
	Items []*Item
}

// Hashes returns the state-record hashes consumed by the plan
func (p *Plan) Hashes() []string {
	var out []string
	for _, it := range p.Items {
		if !it.Holding {
			out = append(out, it.Hash)
		}
	}
	return out
}

// Plan builds the restore plan for root. With destination set every file
// is restored beneath it instead of at its recorded original path.
func (r *Restorer) Plan(ctx context.Context, root, destination string) (*Plan, error) {
	root = filepath.Clean(root)
	if !util.FileExists(root) {
		return nil, fmt.Errorf("%w: library root %s does not exist", util.ErrValidation, root)
	}
	if destination != "" {
		destination = filepath.Clean(destination)
	}

	records, err := r.store.ListUnrestoredResults(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrPersistence, err)
	}

	plan := &Plan{Root: root, Destination: destination}
	originals := make([]string, 0, len(records))
	for _, rec := range records {
		originals = append(originals, rec.FilePath)
	}
	plan.Base = commonDir(originals)

	for _, rec := range records {
		dest := rec.FilePath
		if destination != "" && plan.Base != "" {
			rel, err := filepath.Rel(plan.Base, rec.FilePath)
			if err != nil {
				return nil, fmt.Errorf("%w: cannot rebase %s: %v", util.ErrValidation, rec.FilePath, err)
			}
			dest = filepath.Join(destination, rel)
		}
		plan.Items = append(plan.Items, &Item{
			Hash:        rec.FileHash,
			Current:     rec.TargetPath,
			Original:    rec.FilePath,
			Destination: dest,
		})
	}

	held, err := holdingItems(ctx, root, destination)
	if err != nil {
		return nil, err
	}
	plan.Items = append(plan.Items, held...)

	if r.limit > 0 && len(plan.Items) > r.limit {
		plan.Items = plan.Items[:r.limit]
	}

	attachCompanions(plan.Items)
	util.InfoLog("Restore plan: %d files (%d from the holding area)", len(plan.Items), len(held))
	return plan, nil
}

// holdingItems lists parked files; they go back to their relative path
// under root, or under destination when set
func holdingItems(ctx context.Context, root, destination string) ([]*Item, error) {
	holding := filepath.Join(root, scan.UnprocessedDir)
	if !util.FileExists(holding) {
		return nil, nil
	}
	base := root
	if destination != "" {
		base = destination
	}

	var items []*Item
	err := filepath.WalkDir(holding, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			util.WarnLog("Error accessing path %s: %v", path, err)
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(holding, path)
		if err != nil {
			return nil
		}
		items = append(items, &Item{
			Hash:        HoldingHashPrefix + filepath.ToSlash(rel),
			Current:     path,
			Original:    filepath.Join(root, rel),
			Destination: filepath.Join(base, rel),
			Holding:     true,
		})
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: planning cancelled", util.ErrInterrupted)
		}
		return nil, fmt.Errorf("%w: failed to read holding area: %v", util.ErrIO, err)
	}
	return items, nil
}

// attachCompanions gives recorded items their lyrics, and the first item of
// each library directory that directory's artwork
func attachCompanions(items []*Item) {
	var currents []string
	for _, it := range items {
		if !it.Holding {
			currents = append(currents, it.Current)
		}
	}
	owners := move.ArtworkOwners(currents)

	for _, it := range items {
		if it.Holding || !util.FileExists(it.Current) {
			continue
		}
		it.Companions = move.Companions(it.Current, it.Destination, owners[it.Current])
	}
}

// commonDir returns the deepest directory containing every path
func commonDir(paths []string) string {
	if len(paths) == 0 {
		return ""
	}
	base := filepath.Dir(paths[0])
	for _, p := range paths[1:] {
		for !util.IsWithin(p, base) {
			parent := filepath.Dir(base)
			if parent == base {
				return base
			}
			base = parent
		}
	}
	return base
}

// String renders an item for logs
func (it *Item) String() string {
	var b strings.Builder
	b.WriteString(it.Current)
	b.WriteString(" -> ")
	b.WriteString(it.Destination)
	return b.String()
}
