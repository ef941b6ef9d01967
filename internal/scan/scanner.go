package scan

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/franz/music-shelver/internal/util"
	"github.com/schollz/progressbar/v3"
)

// UnprocessedDir is the holding area for files that could not be organized
const UnprocessedDir = "!unprocessed"

// StateDir holds the state database and lock when they live inside a library
const StateDir = ".shelve"

// AudioExtensions are the supported audio file extensions
var AudioExtensions = []string{
	".mp3",
	".flac",
	".m4a",
	".dsf",
	".aac",
	".alac",
	".opus",
}

var audioExts = func() map[string]bool {
	m := make(map[string]bool, len(AudioExtensions))
	for _, ext := range AudioExtensions {
		m[ext] = true
	}
	return m
}()

// IsAudioFile reports whether path has a supported audio extension
// (case-insensitive)
func IsAudioFile(path string) bool {
	return audioExts[strings.ToLower(filepath.Ext(path))]
}

// Scanner discovers audio files in a directory tree
type Scanner struct {
	extensions  map[string]bool
	skipDirs    map[string]bool
	showSpinner bool
}

// Config holds scanner configuration
type Config struct {
	AdditionalExts []string
	// Directory names never descended into, besides the holding area and
	// the state directory
	SkipDirs []string
	Progress bool
}

// New creates a new Scanner
func New(cfg *Config) *Scanner {
	if cfg == nil {
		cfg = &Config{}
	}

	// Build extension map (case-insensitive)
	extMap := make(map[string]bool)
	for ext := range audioExts {
		extMap[ext] = true
	}
	for _, ext := range cfg.AdditionalExts {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		extMap[ext] = true
	}

	skip := map[string]bool{UnprocessedDir: true, StateDir: true}
	for _, d := range cfg.SkipDirs {
		skip[d] = true
	}

	return &Scanner{extensions: extMap, skipDirs: skip, showSpinner: cfg.Progress}
}

// Result lists the files found under a root, each in walk (lexical) order
type Result struct {
	Audio  []string
	Other  []string
	Errors []error
}

// Scan walks root and classifies every regular file. Unreadable entries are
// reported in Result.Errors and the walk continues.
func (s *Scanner) Scan(ctx context.Context, root string) (*Result, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot read source %s: %v", util.ErrValidation, root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: source %s is not a directory", util.ErrValidation, root)
	}

	util.InfoLog("Scanning: %s", root)
	result := &Result{}

	var bar *progressbar.ProgressBar
	if s.showSpinner && util.ShowProgress() {
		// Indeterminate: the total is unknown until the walk ends
		bar = progressbar.NewOptions(-1,
			progressbar.OptionSetDescription("Scanning"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionSetItsString("files"),
			progressbar.OptionThrottle(200*time.Millisecond),
			progressbar.OptionClearOnFinish(),
			progressbar.OptionSetRenderBlankState(true),
		)
	}

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err != nil {
			util.WarnLog("Error accessing path %s: %v", path, err)
			result.Errors = append(result.Errors, fmt.Errorf("%w: access error: %s: %v", util.ErrIO, path, err))
			return nil
		}

		if d.IsDir() {
			if path != root && s.skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		if s.isAudioFile(path) {
			result.Audio = append(result.Audio, path)
			if bar != nil {
				bar.Add(1)
			}
		} else {
			result.Other = append(result.Other, path)
		}
		return nil
	})

	if bar != nil {
		bar.Finish()
	}

	if walkErr != nil {
		if ctx.Err() != nil {
			return result, fmt.Errorf("%w: scan cancelled", util.ErrInterrupted)
		}
		return result, fmt.Errorf("walk error: %w", walkErr)
	}

	util.DebugLog("Scan complete: %d audio files, %d other files, %d errors",
		len(result.Audio), len(result.Other), len(result.Errors))
	return result, nil
}

// isAudioFile checks if a file has a supported audio extension
func (s *Scanner) isAudioFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return s.extensions[ext]
}
