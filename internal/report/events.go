package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// EventType names a process event as "<process>.<subject>.<outcome>"
type EventType string

const (
	EventRunStart        EventType = "run.start"
	EventRunFinish       EventType = "run.finish"
	EventOrganizeSuccess EventType = "organize.file.success"
	EventOrganizeAlready EventType = "organize.file.already_organized"
	EventOrganizeSkip    EventType = "organize.file.skip"
	EventOrganizeFail    EventType = "organize.file.fail"
	EventOrganizePark    EventType = "organize.file.park"
	EventLyricsMove      EventType = "organize.lyrics.move"
	EventArtworkMove     EventType = "organize.artwork.move"
	EventCompanionSkip   EventType = "organize.companion.skip"
	EventRestoreSuccess  EventType = "restore.file.success"
	EventRestoreSkip     EventType = "restore.file.skip"
	EventRestoreBackup   EventType = "restore.file.backup"
	EventRestoreFail     EventType = "restore.file.fail"
	EventRestoreConflict EventType = "restore.collision"
	EventStatePurge      EventType = "restore.state.purge"
)

// EventLevel represents the severity level
type EventLevel string

const (
	LevelDebug   EventLevel = "debug"
	LevelInfo    EventLevel = "info"
	LevelWarning EventLevel = "warning"
	LevelError   EventLevel = "error"
)

// levelPriority maps event levels to numeric priorities for comparison
var levelPriority = map[EventLevel]int{
	LevelDebug:   0,
	LevelInfo:    1,
	LevelWarning: 2,
	LevelError:   3,
}

// ParseLevel converts a level name, defaulting to info
func ParseLevel(s string) EventLevel {
	l := EventLevel(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := levelPriority[l]; ok {
		return l
	}
	return LevelInfo
}

// Event represents a single event in a run
type Event struct {
	Timestamp time.Time         `json:"ts"`
	RunID     string            `json:"run_id"`
	Level     EventLevel        `json:"level"`
	Event     EventType         `json:"event"`
	FileHash  string            `json:"file_hash,omitempty"`
	SrcPath   string            `json:"src_path,omitempty"`
	DestPath  string            `json:"dest_path,omitempty"`
	Reason    string            `json:"reason,omitempty"`
	Bytes     int64             `json:"bytes,omitempty"`
	Duration  int64             `json:"duration_ms,omitempty"` // in milliseconds
	DryRun    bool              `json:"dry_run,omitempty"`
	Error     string            `json:"error,omitempty"`
	Extra     map[string]string `json:"extra,omitempty"`
}

// NewRunID returns a short random identifier for one run
func NewRunID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// EventLogger writes events to a JSONL file. A nil logger discards events.
type EventLogger struct {
	file     *os.File
	encoder  *json.Encoder
	mu       sync.Mutex
	path     string
	runID    string
	minLevel EventLevel
}

// NewEventLogger creates a new event logger with a minimum log level
// minLevel determines which events are written (e.g., LevelInfo skips LevelDebug)
func NewEventLogger(outputDir string, minLevel EventLevel) (*EventLogger, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	runID := NewRunID()
	timestamp := time.Now().Format("20060102-150405")
	path := filepath.Join(outputDir, fmt.Sprintf("events-%s-%s.jsonl", timestamp, runID[:6]))

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create event log: %w", err)
	}

	return &EventLogger{
		file:     file,
		encoder:  json.NewEncoder(file),
		path:     path,
		runID:    runID,
		minLevel: minLevel,
	}, nil
}

// Log writes an event to the JSONL file
func (l *EventLogger) Log(event *Event) error {
	if l == nil || l.file == nil {
		return nil
	}

	if levelPriority[event.Level] < levelPriority[l.minLevel] {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	event.RunID = l.runID

	if err := l.encoder.Encode(event); err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	return nil
}

// LogRun logs the start or end of a run
func (l *EventLogger) LogRun(event EventType, command string, extra map[string]string) error {
	if extra == nil {
		extra = map[string]string{}
	}
	extra["command"] = command
	return l.Log(&Event{Level: LevelInfo, Event: event, Extra: extra})
}

// LogFile logs the outcome of one organized or restored file
func (l *EventLogger) LogFile(event EventType, hash, srcPath, destPath, reason string, bytes int64, duration time.Duration, dryRun bool, err error) error {
	level := LevelInfo
	errMsg := ""
	switch {
	case err != nil:
		level = LevelError
		errMsg = err.Error()
	case event == EventOrganizeSkip || event == EventRestoreSkip:
		level = LevelWarning
	}

	return l.Log(&Event{
		Level:    level,
		Event:    event,
		FileHash: hash,
		SrcPath:  srcPath,
		DestPath: destPath,
		Reason:   reason,
		Bytes:    bytes,
		Duration: duration.Milliseconds(),
		DryRun:   dryRun,
		Error:    errMsg,
	})
}

// LogCompanion logs a lyrics or artwork move, or a warning when it was skipped
func (l *EventLogger) LogCompanion(kind, srcPath, destPath, warning string, dryRun bool) error {
	event := EventLyricsMove
	if kind == "artwork" {
		event = EventArtworkMove
	}
	level := LevelDebug
	if warning != "" {
		event = EventCompanionSkip
		level = LevelWarning
	}
	return l.Log(&Event{
		Level:    level,
		Event:    event,
		SrcPath:  srcPath,
		DestPath: destPath,
		Reason:   warning,
		DryRun:   dryRun,
		Extra:    map[string]string{"kind": kind},
	})
}

// LogConflict logs a destination or slot conflict
func (l *EventLogger) LogConflict(event EventType, srcPath, destPath, reason string) error {
	return l.Log(&Event{
		Level:    LevelWarning,
		Event:    event,
		SrcPath:  srcPath,
		DestPath: destPath,
		Reason:   reason,
	})
}

// Close closes the event log file
func (l *EventLogger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	return l.file.Close()
}

// Path returns the path to the event log file
func (l *EventLogger) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// RunID returns the identifier stamped on every event
func (l *EventLogger) RunID() string {
	if l == nil {
		return ""
	}
	return l.runID
}
