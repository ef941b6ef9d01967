package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/franz/music-shelver/internal/store"
	"github.com/franz/music-shelver/internal/util"
)

// SummaryReport represents the summary of one organize or restore run
type SummaryReport struct {
	GeneratedAt time.Time
	Duration    time.Duration
	RunID       string
	Command     string
	DryRun      bool
	Interrupted bool

	// Per-file outcomes
	Total       int
	Succeeded   int
	AlreadyDone int
	Skipped     int
	Failed      int
	Parked      int
	BackedUp    int

	BytesMoved      int64
	CompanionsMoved int
	Warnings        int

	// Details
	TopErrors []ErrorSummary
	Conflicts []ConflictInfo
	State     *store.Counts

	// Metadata
	SourcePath      string
	DestinationPath string
	DatabasePath    string
	EventLogPath    string

	errorCounts map[string]int
}

// ErrorSummary represents an error with its count
type ErrorSummary struct {
	Error string
	Count int
}

// ConflictInfo represents a file conflict
type ConflictInfo struct {
	SrcPath  string
	DestPath string
	Reason   string
}

// NewSummaryReport starts an empty report for command
func NewSummaryReport(command string) *SummaryReport {
	return &SummaryReport{
		GeneratedAt: time.Now(),
		Command:     command,
		TopErrors:   make([]ErrorSummary, 0),
		Conflicts:   make([]ConflictInfo, 0),
		errorCounts: make(map[string]int),
	}
}

// AddError counts one failure reason
func (r *SummaryReport) AddError(reason string) {
	if reason == "" {
		return
	}
	if r.errorCounts == nil {
		r.errorCounts = make(map[string]int)
	}
	r.errorCounts[reason]++
}

// AddConflict records a destination conflict
func (r *SummaryReport) AddConflict(src, dst, reason string) {
	r.Conflicts = append(r.Conflicts, ConflictInfo{SrcPath: src, DestPath: dst, Reason: reason})
}

// Finalize sorts the collected errors and keeps the top limit
func (r *SummaryReport) Finalize(limit int) {
	errors := make([]ErrorSummary, 0, len(r.errorCounts))
	for err, count := range r.errorCounts {
		errors = append(errors, ErrorSummary{Error: err, Count: count})
	}

	// Sort by count (descending), then message for stable output
	sort.Slice(errors, func(i, j int) bool {
		if errors[i].Count != errors[j].Count {
			return errors[i].Count > errors[j].Count
		}
		return errors[i].Error < errors[j].Error
	})

	if limit > 0 && len(errors) > limit {
		errors = errors[:limit]
	}
	r.TopErrors = errors
}

// AttachState reads the state store row counts into the report
func (r *SummaryReport) AttachState(ctx context.Context, db *store.Store) error {
	counts, err := db.Counts(ctx)
	if err != nil {
		return err
	}
	r.State = counts
	return nil
}

// WriteMarkdownReport writes the summary report as Markdown
func WriteMarkdownReport(report *SummaryReport, outputPath string) error {
	// Create output directory
	dir := filepath.Dir(outputPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	var md strings.Builder

	// Header
	md.WriteString("# Music Shelver - Summary Report\n\n")
	md.WriteString(fmt.Sprintf("**Generated:** %s\n\n", report.GeneratedAt.Format("2006-01-02 15:04:05")))
	md.WriteString(fmt.Sprintf("**Command:** %s", report.Command))
	if report.DryRun {
		md.WriteString(" (dry run)")
	}
	if report.Interrupted {
		md.WriteString(" (interrupted)")
	}
	md.WriteString("\n\n")

	if report.RunID != "" {
		md.WriteString(fmt.Sprintf("**Run:** `%s`\n\n", report.RunID))
	}
	if report.DatabasePath != "" {
		md.WriteString(fmt.Sprintf("**Database:** `%s`\n\n", report.DatabasePath))
	}
	if report.EventLogPath != "" {
		md.WriteString(fmt.Sprintf("**Event Log:** `%s`\n\n", report.EventLogPath))
	}

	md.WriteString("---\n\n")

	// Overview
	md.WriteString("## 📊 Overview\n\n")
	md.WriteString("| Metric | Value |\n")
	md.WriteString("|--------|-------|\n")
	if report.SourcePath != "" {
		md.WriteString(fmt.Sprintf("| Source | `%s` |\n", report.SourcePath))
	}
	if report.DestinationPath != "" {
		md.WriteString(fmt.Sprintf("| Destination | `%s` |\n", report.DestinationPath))
	}
	md.WriteString(fmt.Sprintf("| Files Processed | %d |\n", report.Total))
	md.WriteString(fmt.Sprintf("| Succeeded | %d |\n", report.Succeeded))
	if report.AlreadyDone > 0 {
		md.WriteString(fmt.Sprintf("| Already in Place | %d |\n", report.AlreadyDone))
	}
	if report.Skipped > 0 {
		md.WriteString(fmt.Sprintf("| Skipped | %d |\n", report.Skipped))
	}
	if report.Failed > 0 {
		md.WriteString(fmt.Sprintf("| Failed | %d |\n", report.Failed))
	}
	if report.Parked > 0 {
		md.WriteString(fmt.Sprintf("| Parked | %d |\n", report.Parked))
	}
	if report.BackedUp > 0 {
		md.WriteString(fmt.Sprintf("| Backed Up | %d |\n", report.BackedUp))
	}
	md.WriteString(fmt.Sprintf("| Bytes Moved | %s |\n", util.FormatBytes(report.BytesMoved)))
	if report.CompanionsMoved > 0 {
		md.WriteString(fmt.Sprintf("| Lyrics/Artwork Moved | %d |\n", report.CompanionsMoved))
	}
	if report.Warnings > 0 {
		md.WriteString(fmt.Sprintf("| Warnings | %d |\n", report.Warnings))
	}
	if report.Duration > 0 {
		md.WriteString(fmt.Sprintf("| Duration | %s |\n", report.Duration.Round(time.Millisecond)))
	}
	md.WriteString("\n")

	// State
	if report.State != nil {
		md.WriteString("## 🗄️ State\n\n")
		md.WriteString("| Table | Rows |\n")
		md.WriteString("|-------|------|\n")
		md.WriteString(fmt.Sprintf("| Before Records | %d |\n", report.State.Before))
		md.WriteString(fmt.Sprintf("| After Records | %d |\n", report.State.After))
		md.WriteString(fmt.Sprintf("| Albums | %d |\n", report.State.Albums))
		md.WriteString(fmt.Sprintf("| Cached Artist IDs | %d |\n", report.State.Artists))
		md.WriteString("\n")
	}

	// Errors
	if len(report.TopErrors) > 0 {
		md.WriteString("## ⚠️ Top Errors\n\n")
		md.WriteString("| Count | Error |\n")
		md.WriteString("|-------|-------|\n")
		for _, err := range report.TopErrors {
			md.WriteString(fmt.Sprintf("| %d | %s |\n", err.Count, err.Error))
		}
		md.WriteString("\n")
	}

	// Conflicts
	if len(report.Conflicts) > 0 {
		md.WriteString("## 🚨 Conflicts\n\n")
		md.WriteString("| Source | Destination | Reason |\n")
		md.WriteString("|--------|-------------|--------|\n")
		for _, conflict := range report.Conflicts {
			md.WriteString(fmt.Sprintf("| `%s` | `%s` | %s |\n",
				truncatePath(conflict.SrcPath, 40),
				truncatePath(conflict.DestPath, 40),
				conflict.Reason))
		}
		md.WriteString("\n")
	}

	md.WriteString("---\n\n")
	md.WriteString("*Generated by shelve*\n")

	if err := os.WriteFile(outputPath, []byte(md.String()), 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	return nil
}

// truncatePath truncates a file path to a maximum length
func truncatePath(path string, maxLen int) string {
	if len(path) <= maxLen {
		return path
	}
	// Truncate from the middle, keeping start and end
	start := maxLen/2 - 2
	end := len(path) - (maxLen/2 - 2)
	return path[:start] + "..." + path[end:]
}
