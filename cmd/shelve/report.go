package main

import (
	"context"
	"path/filepath"
	"time"

	"github.com/franz/music-shelver/internal/report"
	"github.com/franz/music-shelver/internal/util"
)

// saveReport fills in the run metadata and writes the Markdown summary to
// <artifacts>/reports/<timestamp>/summary.md. Failures only warn.
func saveReport(ctx context.Context, rep *report.SummaryReport, lib *library, logger *report.EventLogger, artifacts string) {
	rep.DatabasePath = lib.path
	rep.EventLogPath = logger.Path()
	if err := rep.AttachState(ctx, lib.Store); err != nil {
		util.WarnLog("Failed to read state counts: %v", err)
	}
	rep.Finalize(10)

	timestamp := time.Now().Format("20060102-150405")
	reportPath := filepath.Join(artifacts, "reports", timestamp, "summary.md")
	if err := report.WriteMarkdownReport(rep, reportPath); err != nil {
		util.WarnLog("Failed to write summary report: %v", err)
		return
	}
	util.SuccessLog("Summary report saved to: %s", reportPath)
}
