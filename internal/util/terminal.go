package util

import (
	"os"

	"github.com/dustin/go-humanize"
	"golang.org/x/term"
)

// IsTerminal checks if the given file descriptor is a terminal
func IsTerminal(fd uintptr) bool {
	return term.IsTerminal(int(fd))
}

// ShowProgress reports whether progress bars should be drawn
func ShowProgress() bool {
	return IsTerminal(os.Stderr.Fd()) && !IsQuiet()
}

// GetTerminalWidth returns the width of the terminal, or 80 if not a terminal
func GetTerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return 80
	}
	return width
}

// FormatBytes formats bytes in human-readable IEC units
func FormatBytes(bytes int64) string {
	if bytes < 0 {
		bytes = 0
	}
	return humanize.IBytes(uint64(bytes))
}
