package move

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/franz/music-shelver/internal/util"
)

// Companion kinds
const (
	KindLyrics  = "lyrics"
	KindArtwork = "artwork"
)

// ArtworkExtensions are the image types that travel with an album
var ArtworkExtensions = []string{".jpg", ".jpeg", ".png"}

// Companion is a file that follows an audio file
type Companion struct {
	Kind string
	Src  string
	Dst  string
}

// Unit is an audio file plus its companions, moved as one operation
type Unit struct {
	Src        string
	Dst        string
	Companions []Companion
}

// CompanionResult records what happened to one companion
type CompanionResult struct {
	Companion
	Moved   bool
	Warning string
}

// UnitResult is the outcome of MoveUnit
type UnitResult struct {
	Bytes      int64
	Companions []CompanionResult
}

// Warnings returns the companion warnings
func (r *UnitResult) Warnings() []string {
	var out []string
	for _, c := range r.Companions {
		if c.Warning != "" {
			out = append(out, c.Warning)
		}
	}
	return out
}

// MoveUnit moves the primary file and then its companions. Only the primary
// move can fail the unit; companion problems become warnings.
func (m *Mover) MoveUnit(ctx context.Context, u *Unit) (*UnitResult, error) {
	n, err := m.MoveFile(ctx, u.Src, u.Dst)
	if err != nil {
		return nil, err
	}

	res := &UnitResult{Bytes: n}
	for _, c := range u.Companions {
		cr := CompanionResult{Companion: c}
		switch {
		case !util.FileExists(c.Src):
			cr.Warning = fmt.Sprintf("%s missing before move: %s", c.Kind, c.Src)
		case util.SameFile(c.Src, c.Dst):
		default:
			if _, err := m.MoveFile(ctx, c.Src, c.Dst); err != nil {
				cr.Warning = fmt.Sprintf("%s not moved: %v", c.Kind, err)
			} else {
				cr.Moved = true
			}
		}
		if cr.Warning != "" {
			util.WarnLog("%s", cr.Warning)
		}
		res.Companions = append(res.Companions, cr)
	}
	return res, nil
}

// FindLyrics returns the .lrc file sharing the audio file's stem, if any
// (extension case-insensitive, first by name when several exist)
func FindLyrics(audioPath string) string {
	dir := filepath.Dir(audioPath)
	stem := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))

	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	for _, e := range entries {
		name := e.Name()
		ext := filepath.Ext(name)
		if e.Type().IsRegular() && strings.EqualFold(ext, ".lrc") && strings.TrimSuffix(name, ext) == stem {
			return filepath.Join(dir, name)
		}
	}
	return ""
}

// LyricsTarget returns where lyrics follow an audio file moved to audioDst
func LyricsTarget(audioDst string) string {
	return strings.TrimSuffix(audioDst, filepath.Ext(audioDst)) + ".lrc"
}

// IsArtwork reports whether path is a supported image
func IsArtwork(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, a := range ArtworkExtensions {
		if ext == a {
			return true
		}
	}
	return false
}

// DirectoryArtwork returns the images next to audioPath, sorted
func DirectoryArtwork(audioPath string) []string {
	dir := filepath.Dir(audioPath)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if e.Type().IsRegular() && IsArtwork(e.Name()) {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out
}

// ArtworkOwners picks, per source directory, the audio file that carries
// the directory artwork: the first by path
func ArtworkOwners(audioPaths []string) map[string]bool {
	first := make(map[string]string)
	for _, p := range audioPaths {
		dir := filepath.Dir(p)
		if cur, ok := first[dir]; !ok || p < cur {
			first[dir] = p
		}
	}
	owners := make(map[string]bool, len(first))
	for _, p := range first {
		owners[p] = true
	}
	return owners
}

// Companions builds the companion list for an audio file moving from src
// to dst. Artwork is attached only when withArtwork is set.
func Companions(src, dst string, withArtwork bool) []Companion {
	var out []Companion
	if lrc := FindLyrics(src); lrc != "" {
		out = append(out, Companion{Kind: KindLyrics, Src: lrc, Dst: LyricsTarget(dst)})
	}
	if withArtwork {
		for _, img := range DirectoryArtwork(src) {
			out = append(out, Companion{
				Kind: KindArtwork,
				Src:  img,
				Dst:  filepath.Join(filepath.Dir(dst), filepath.Base(img)),
			})
		}
	}
	return out
}
