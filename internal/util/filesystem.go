package util

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"syscall"
)

// IsSameFilesystem checks if two paths are on the same filesystem
// by comparing their device IDs (st_dev).
func IsSameFilesystem(path1, path2 string) (bool, error) {
	stat1, err := os.Stat(path1)
	if err != nil {
		return false, err
	}
	stat2, err := os.Stat(path2)
	if err != nil {
		return false, err
	}

	sys1, ok1 := stat1.Sys().(*syscall.Stat_t)
	sys2, ok2 := stat2.Sys().(*syscall.Stat_t)
	if !ok1 || !ok2 {
		return false, nil
	}
	return sys1.Dev == sys2.Dev, nil
}

// IsCrossDeviceError reports whether a rename failed because source and
// destination live on different filesystems.
func IsCrossDeviceError(err error) bool {
	return errors.Is(err, syscall.EXDEV)
}

// FileExists reports whether path exists (file or directory)
func FileExists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

// SameFile reports whether both paths resolve to the same file on disk
func SameFile(a, b string) bool {
	if filepath.Clean(a) == filepath.Clean(b) {
		return true
	}
	ia, err := os.Stat(a)
	if err != nil {
		return false
	}
	ib, err := os.Stat(b)
	if err != nil {
		return false
	}
	return os.SameFile(ia, ib)
}

// IsWithin reports whether path equals root or lies beneath it
func IsWithin(path, root string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
