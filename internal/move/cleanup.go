package move

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/franz/music-shelver/internal/util"
)

// RemoveEmptyDirs removes empty directories under root, deepest first.
// root itself is kept. Returns the number of directories removed.
func RemoveEmptyDirs(root string) (int, error) {
	var dirs []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() && path != root {
			dirs = append(dirs, path)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	// Longest paths first so children go before parents
	sort.Slice(dirs, func(i, j int) bool { return len(dirs[i]) > len(dirs[j]) })

	removed := 0
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			continue
		}
		if err := os.Remove(dir); err != nil {
			util.DebugLog("Could not remove empty directory %s: %v", dir, err)
			continue
		}
		removed++
	}
	return removed, nil
}
