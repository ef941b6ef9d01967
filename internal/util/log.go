package util

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

const (
	colorReset  = "\033[0m"
	colorGray   = "\033[90m"
	colorCyan   = "\033[36m"
	colorYellow = "\033[33m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
)

var (
	logMu           sync.Mutex
	logOutput       io.Writer = os.Stderr
	currentLogLevel           = LevelInfo
	useColors                 = isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
)

// SetLogLevel sets the minimum log level to display
func SetLogLevel(level LogLevel) {
	logMu.Lock()
	defer logMu.Unlock()
	currentLogLevel = level
}

// SetVerbose enables verbose (debug) logging
func SetVerbose(verbose bool) {
	if verbose {
		SetLogLevel(LevelDebug)
	}
}

// SetQuiet enables quiet mode (errors only)
func SetQuiet(quiet bool) {
	if quiet {
		SetLogLevel(LevelError)
	}
}

// IsVerbose reports whether debug output is enabled
func IsVerbose() bool {
	logMu.Lock()
	defer logMu.Unlock()
	return currentLogLevel <= LevelDebug
}

// IsQuiet reports whether only errors are shown
func IsQuiet() bool {
	logMu.Lock()
	defer logMu.Unlock()
	return currentLogLevel >= LevelError
}

// SetColors enables or disables colored output
func SetColors(enabled bool) {
	logMu.Lock()
	defer logMu.Unlock()
	useColors = enabled
}

// SetLogOutput redirects log lines, mainly for tests.
func SetLogOutput(w io.Writer) {
	logMu.Lock()
	defer logMu.Unlock()
	logOutput = w
}

func logf(level LogLevel, color, tag, format string, args ...interface{}) {
	logMu.Lock()
	defer logMu.Unlock()
	if currentLogLevel > level {
		return
	}
	ts := time.Now().Format("15:04:05")
	if useColors {
		ts = color + ts + colorReset
	}
	fmt.Fprintf(logOutput, "%s %s %s\n", ts, tag, fmt.Sprintf(format, args...))
}

// DebugLog logs debug messages
func DebugLog(format string, args ...interface{}) {
	logf(LevelDebug, colorGray, "[DEBUG]", format, args...)
}

// InfoLog logs informational messages
func InfoLog(format string, args ...interface{}) {
	logf(LevelInfo, colorCyan, "[INFO] ", format, args...)
}

// WarnLog logs warning messages
func WarnLog(format string, args ...interface{}) {
	logf(LevelWarn, colorYellow, "[WARN] ", format, args...)
}

// ErrorLog logs error messages
func ErrorLog(format string, args ...interface{}) {
	logf(LevelError, colorRed, "[ERROR]", format, args...)
}

// SuccessLog logs success messages (always shown unless quiet)
func SuccessLog(format string, args ...interface{}) {
	logf(LevelInfo, colorGreen, "[OK]   ", format, args...)
}
