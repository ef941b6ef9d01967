package move

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/franz/music-shelver/internal/util"
)

// PartSuffix marks an incomplete cross-device copy
const PartSuffix = ".part"

// Mover relocates files. With DryRun set every check runs but nothing on
// disk changes.
type Mover struct {
	dryRun      bool
	bufferSize  int
	retryConfig *util.RetryConfig
}

// Config holds mover configuration
type Config struct {
	DryRun      bool
	BufferSize  int               // Buffer size for cross-device copies (0 = use default)
	RetryConfig *util.RetryConfig // Retry configuration (nil = use default)
}

// New creates a new Mover
func New(cfg *Config) *Mover {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 128 * 1024
	}
	if cfg.RetryConfig == nil {
		cfg.RetryConfig = util.DefaultRetryConfig()
	}
	return &Mover{
		dryRun:      cfg.DryRun,
		bufferSize:  cfg.BufferSize,
		retryConfig: cfg.RetryConfig,
	}
}

// DryRun reports whether the mover only simulates moves
func (m *Mover) DryRun() bool {
	return m.dryRun
}

// MoveFile moves srcPath to destPath, creating parent directories. It never
// overwrites: an occupied destination fails with util.ErrCollision. Moving a
// file onto itself is a no-op. Returns the number of bytes moved.
func (m *Mover) MoveFile(ctx context.Context, srcPath, destPath string) (int64, error) {
	stat, err := util.RetryableStat(srcPath, m.retryConfig)
	if err != nil {
		return 0, fmt.Errorf("%w: source unavailable: %v", util.ErrIO, err)
	}
	if util.SameFile(srcPath, destPath) {
		return stat.Size(), nil
	}
	if util.FileExists(destPath) {
		return 0, fmt.Errorf("%w: destination exists: %s", util.ErrCollision, destPath)
	}

	if m.dryRun {
		util.DebugLog("DRY-RUN: Would move %s -> %s", srcPath, destPath)
		return stat.Size(), nil
	}

	if err := util.RetryableMkdirAll(filepath.Dir(destPath), 0755, m.retryConfig); err != nil {
		return 0, fmt.Errorf("%w: failed to create directory: %v", util.ErrIO, err)
	}

	// Same filesystem: a plain rename is atomic. Bind mounts can still
	// refuse it with EXDEV, which falls through to the copy.
	same, fsErr := util.IsSameFilesystem(srcPath, filepath.Dir(destPath))
	if fsErr != nil || same {
		err = util.RetryableRename(srcPath, destPath, m.retryConfig)
		if err == nil {
			util.DebugLog("Moved: %s -> %s", srcPath, destPath)
			return stat.Size(), nil
		}
		if !util.IsCrossDeviceError(err) {
			return 0, fmt.Errorf("%w: failed to rename: %v", util.ErrIO, err)
		}
	}

	written, err := m.copyFile(ctx, srcPath, destPath, stat.Mode().Perm())
	if err != nil {
		return 0, err
	}
	if written != stat.Size() {
		util.RetryableRemove(destPath, m.retryConfig)
		return 0, fmt.Errorf("%w: size mismatch after copy (%d != %d)", util.ErrIO, written, stat.Size())
	}

	if err := util.RetryableRemove(srcPath, m.retryConfig); err != nil {
		util.WarnLog("Failed to delete source file %s: %v", srcPath, err)
	}

	util.DebugLog("Moved across devices: %s -> %s (%s)", srcPath, destPath, util.FormatBytes(written))
	return written, nil
}

// copyFile copies through a .part file that is fsynced and then renamed
// into place, so destPath is either absent or complete
func (m *Mover) copyFile(ctx context.Context, srcPath, destPath string, perm os.FileMode) (int64, error) {
	src, err := util.RetryableOpen(srcPath, m.retryConfig)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to open source: %v", util.ErrIO, err)
	}
	defer src.Close()

	tempPath := destPath + PartSuffix
	dest, err := util.RetryableCreate(tempPath, m.retryConfig)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to create temp file: %v", util.ErrIO, err)
	}

	written, err := copyWithContext(ctx, dest, src, m.bufferSize)
	if err == nil {
		err = dest.Sync()
	}
	if cerr := dest.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		util.RetryableRemove(tempPath, m.retryConfig)
		if errors.Is(err, context.Canceled) {
			return 0, fmt.Errorf("%w: copy cancelled", util.ErrInterrupted)
		}
		return 0, fmt.Errorf("%w: failed to copy: %v", util.ErrIO, err)
	}

	if perm != 0 {
		os.Chmod(tempPath, perm)
	}

	if err := util.RetryableRename(tempPath, destPath, m.retryConfig); err != nil {
		util.RetryableRemove(tempPath, m.retryConfig)
		return 0, fmt.Errorf("%w: failed to rename: %v", util.ErrIO, err)
	}
	return written, nil
}

// copyWithContext copies data with context cancellation support
func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader, bufferSize int) (int64, error) {
	buf := make([]byte, bufferSize)
	var written int64

	for {
		select {
		case <-ctx.Done():
			return written, ctx.Err()
		default:
		}

		nr, er := src.Read(buf)
		if nr > 0 {
			nw, ew := dst.Write(buf[:nr])
			written += int64(nw)
			if ew != nil {
				return written, ew
			}
			if nr != nw {
				return written, io.ErrShortWrite
			}
		}
		if er != nil {
			if er != io.EOF {
				return written, er
			}
			return written, nil
		}
	}
}

// BackupPath returns the first free backup name for path: the suffix goes
// before the extension ("a.bak.mp3"), then "a.bak-1.mp3", "a.bak-2.mp3", ...
func BackupPath(path, suffix string) string {
	if suffix == "" {
		suffix = ".bak"
	}
	ext := filepath.Ext(path)
	stem := path[:len(path)-len(ext)]

	candidate := stem + suffix + ext
	for n := 1; util.FileExists(candidate); n++ {
		candidate = fmt.Sprintf("%s%s-%d%s", stem, suffix, n, ext)
	}
	return candidate
}
