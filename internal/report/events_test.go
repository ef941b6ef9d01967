package report

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// readEvents decodes every line of the logger's file
func readEvents(t *testing.T, path string) []Event {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Failed to open log file: %v", err)
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e Event
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatalf("Failed to decode JSONL line %q: %v", scanner.Text(), err)
		}
		events = append(events, e)
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	return events
}

func TestNewEventLogger(t *testing.T) {
	tmpDir := filepath.Join(t.TempDir(), "artifacts")

	logger, err := NewEventLogger(tmpDir, LevelDebug)
	if err != nil {
		t.Fatalf("NewEventLogger failed: %v", err)
	}
	defer logger.Close()

	if _, err := os.Stat(logger.Path()); os.IsNotExist(err) {
		t.Errorf("Event log file was not created at %s", logger.Path())
	}

	filename := filepath.Base(logger.Path())
	if !strings.HasPrefix(filename, "events-") || !strings.HasSuffix(filename, ".jsonl") {
		t.Errorf("Event log filename format incorrect: %s", filename)
	}
	if !strings.Contains(filename, logger.RunID()[:6]) {
		t.Errorf("Event log filename %s does not carry the run id %s", filename, logger.RunID())
	}
	if len(logger.RunID()) != 12 {
		t.Errorf("Expected a 12 character run id, got %q", logger.RunID())
	}
}

func TestEventLogger_Log(t *testing.T) {
	logger, err := NewEventLogger(t.TempDir(), LevelDebug)
	if err != nil {
		t.Fatalf("NewEventLogger failed: %v", err)
	}

	event := &Event{
		Level:    LevelInfo,
		Event:    EventOrganizeSuccess,
		FileHash: "abc123",
		SrcPath:  "/in/a.mp3",
		DestPath: "/lib/Foo/2020_Bar/01_A_FOO.mp3",
	}
	if err := logger.Log(event); err != nil {
		t.Fatalf("Log failed: %v", err)
	}
	logger.Close()

	events := readEvents(t, logger.Path())
	if len(events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(events))
	}
	got := events[0]
	if got.RunID != logger.RunID() {
		t.Errorf("Expected run_id %s, got %s", logger.RunID(), got.RunID)
	}
	if got.Timestamp.IsZero() {
		t.Error("Expected timestamp to be filled in")
	}
	if got.FileHash != "abc123" || got.DestPath != event.DestPath {
		t.Errorf("Unexpected event: %+v", got)
	}
}

func TestEventLogger_LogFileLevels(t *testing.T) {
	logger, err := NewEventLogger(t.TempDir(), LevelDebug)
	if err != nil {
		t.Fatalf("NewEventLogger failed: %v", err)
	}

	logger.LogFile(EventOrganizeSuccess, "h1", "/a", "/b", "moved", 1024, 1500*time.Millisecond, false, nil)
	logger.LogFile(EventOrganizeSkip, "h2", "/c", "", "duplicate_content", 0, 0, true, nil)
	logger.LogFile(EventRestoreFail, "h3", "/d", "/e", "io", 0, 0, false, errors.New("disk full"))
	logger.Close()

	events := readEvents(t, logger.Path())
	if len(events) != 3 {
		t.Fatalf("Expected 3 events, got %d", len(events))
	}

	tests := []struct {
		level  EventLevel
		reason string
	}{
		{LevelInfo, "moved"},
		{LevelWarning, "duplicate_content"},
		{LevelError, "io"},
	}
	for i, tt := range tests {
		if events[i].Level != tt.level {
			t.Errorf("event %d: expected level %s, got %s", i, tt.level, events[i].Level)
		}
		if events[i].Reason != tt.reason {
			t.Errorf("event %d: expected reason %s, got %s", i, tt.reason, events[i].Reason)
		}
	}

	if events[0].Bytes != 1024 || events[0].Duration != 1500 {
		t.Errorf("Expected bytes 1024 and duration 1500ms, got %d and %d", events[0].Bytes, events[0].Duration)
	}
	if !events[1].DryRun {
		t.Error("Expected dry_run on the skip event")
	}
	if events[2].Error != "disk full" {
		t.Errorf("Expected error message, got %q", events[2].Error)
	}
}

func TestEventLogger_LogCompanion(t *testing.T) {
	logger, err := NewEventLogger(t.TempDir(), LevelDebug)
	if err != nil {
		t.Fatalf("NewEventLogger failed: %v", err)
	}

	logger.LogCompanion("lyrics", "/in/a.lrc", "/lib/01_A.lrc", "", false)
	logger.LogCompanion("artwork", "/in/cover.jpg", "/lib/cover.jpg", "", false)
	logger.LogCompanion("artwork", "/in/back.jpg", "/lib/back.jpg", "artwork not moved", false)
	logger.Close()

	events := readEvents(t, logger.Path())
	if len(events) != 3 {
		t.Fatalf("Expected 3 events, got %d", len(events))
	}
	want := []EventType{EventLyricsMove, EventArtworkMove, EventCompanionSkip}
	for i, e := range events {
		if e.Event != want[i] {
			t.Errorf("event %d: expected %s, got %s", i, want[i], e.Event)
		}
	}
	if events[2].Level != LevelWarning || events[2].Extra["kind"] != "artwork" {
		t.Errorf("Unexpected skip event: %+v", events[2])
	}
}

func TestEventLogger_LevelFiltering(t *testing.T) {
	logger, err := NewEventLogger(t.TempDir(), LevelWarning)
	if err != nil {
		t.Fatalf("NewEventLogger failed: %v", err)
	}

	logger.LogCompanion("lyrics", "/a.lrc", "/b.lrc", "", false)
	logger.LogRun(EventRunStart, "organize", nil)
	logger.LogConflict(EventRestoreConflict, "/cur", "/dst", "abort")
	logger.LogFile(EventOrganizeFail, "h", "/x", "", "io", 0, 0, false, errors.New("boom"))
	logger.Close()

	events := readEvents(t, logger.Path())
	if len(events) != 2 {
		t.Fatalf("Expected 2 events at warning level and above, got %d", len(events))
	}
	if events[0].Event != EventRestoreConflict || events[1].Event != EventOrganizeFail {
		t.Errorf("Unexpected events: %+v", events)
	}
}

func TestEventLogger_LogRun(t *testing.T) {
	logger, err := NewEventLogger(t.TempDir(), LevelInfo)
	if err != nil {
		t.Fatalf("NewEventLogger failed: %v", err)
	}
	logger.LogRun(EventRunFinish, "restore", map[string]string{"restored": "3"})
	logger.Close()

	events := readEvents(t, logger.Path())
	if len(events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(events))
	}
	if events[0].Extra["command"] != "restore" || events[0].Extra["restored"] != "3" {
		t.Errorf("Unexpected extra: %v", events[0].Extra)
	}
}

func TestEventLogger_Nil(t *testing.T) {
	var logger *EventLogger
	if err := logger.LogFile(EventOrganizeSuccess, "h", "/a", "/b", "moved", 0, 0, false, nil); err != nil {
		t.Errorf("nil logger returned error: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("nil logger Close returned error: %v", err)
	}
	if logger.Path() != "" || logger.RunID() != "" {
		t.Error("nil logger should have no path or run id")
	}
}

func TestEventLogger_Concurrent(t *testing.T) {
	logger, err := NewEventLogger(t.TempDir(), LevelDebug)
	if err != nil {
		t.Fatalf("NewEventLogger failed: %v", err)
	}

	const workers, perWorker = 8, 25
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				logger.LogFile(EventOrganizeSuccess, "h", "/src", "/dst", "moved", 1, 0, false, nil)
			}
		}()
	}
	wg.Wait()
	logger.Close()

	if got := len(readEvents(t, logger.Path())); got != workers*perWorker {
		t.Errorf("Expected %d events, got %d", workers*perWorker, got)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]EventLevel{
		"debug":    LevelDebug,
		" WARNING": LevelWarning,
		"error":    LevelError,
		"":         LevelInfo,
		"chatty":   LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %s, want %s", in, got, want)
		}
	}
}
