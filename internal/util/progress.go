package util

import (
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
)

// Progress is a terminal progress bar. A nil Progress ignores every call,
// so callers never check whether output is interactive.
type Progress struct {
	bar *progressbar.ProgressBar
}

// NewProgress returns a bar for total items, or nil when disabled, when
// stderr is not a terminal, or in quiet mode
func NewProgress(enabled bool, total int, description string) *Progress {
	if !enabled || total <= 0 || !ShowProgress() {
		return nil
	}
	return &Progress{bar: progressbar.NewOptions(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionThrottle(200*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)}
}

// Add advances the bar by n
func (p *Progress) Add(n int) {
	if p == nil {
		return
	}
	_ = p.bar.Add(n)
}

// Finish completes and clears the bar
func (p *Progress) Finish() {
	if p == nil {
		return
	}
	_ = p.bar.Finish()
}
