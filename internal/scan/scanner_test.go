package scan

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/franz/music-shelver/internal/util"
)

func TestIsAudioFile(t *testing.T) {
	scanner := New(nil)

	tests := []struct {
		path     string
		expected bool
	}{
		{"test.mp3", true},
		{"test.MP3", true}, // Case insensitive
		{"test.flac", true},
		{"test.m4a", true},
		{"test.dsf", true},
		{"test.opus", true},
		{"test.lrc", false},
		{"test.jpg", false},
		{"test", false},
	}

	for _, tt := range tests {
		if got := scanner.isAudioFile(tt.path); got != tt.expected {
			t.Errorf("isAudioFile(%s) = %v, expected %v", tt.path, got, tt.expected)
		}
		if got := IsAudioFile(tt.path); got != tt.expected {
			t.Errorf("IsAudioFile(%s) = %v, expected %v", tt.path, got, tt.expected)
		}
	}
}

func TestAdditionalExtensions(t *testing.T) {
	scanner := New(&Config{AdditionalExts: []string{"WAV", ".ogg"}})
	if !scanner.isAudioFile("a.wav") || !scanner.isAudioFile("b.OGG") {
		t.Error("expected additional extensions to be recognized")
	}
}

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestScanWithRealFiles(t *testing.T) {
	tmpDir := t.TempDir()

	files := []string{
		filepath.Join(tmpDir, "Artist", "Album", "01 - Track One.mp3"),
		filepath.Join(tmpDir, "Artist", "Album", "01 - Track One.lrc"),
		filepath.Join(tmpDir, "Artist", "Album", "02 - Track Two.flac"),
		filepath.Join(tmpDir, "Artist", "single.m4a"),
		filepath.Join(tmpDir, "README.txt"),
		filepath.Join(tmpDir, UnprocessedDir, "parked.mp3"),
		filepath.Join(tmpDir, StateDir, "state.db"),
	}
	for _, f := range files {
		touch(t, f)
	}

	result, err := New(nil).Scan(context.Background(), tmpDir)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	wantAudio := []string{files[0], files[2], files[3]}
	if len(result.Audio) != len(wantAudio) {
		t.Fatalf("expected %d audio files, got %v", len(wantAudio), result.Audio)
	}
	for i := range wantAudio {
		if result.Audio[i] != wantAudio[i] {
			t.Errorf("audio[%d] = %s, want %s", i, result.Audio[i], wantAudio[i])
		}
	}
	if len(result.Other) != 2 {
		t.Errorf("expected lyrics and README as other files, got %v", result.Other)
	}
}

func TestScanRejectsMissingRoot(t *testing.T) {
	_, err := New(nil).Scan(context.Background(), filepath.Join(t.TempDir(), "missing"))
	if !errors.Is(err, util.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestScanCancelled(t *testing.T) {
	tmpDir := t.TempDir()
	touch(t, filepath.Join(tmpDir, "a.mp3"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New(nil).Scan(ctx, tmpDir); !errors.Is(err, util.ErrInterrupted) {
		t.Errorf("expected interrupted error, got %v", err)
	}
}
