package util

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"syscall"
	"time"
)

// ErrTransient marks an error the caller knows to be temporary
// (HTTP 503, rate limited) so it is retried regardless of its message.
var ErrTransient = errors.New("transient failure")

// RetryConfig holds retry configuration
type RetryConfig struct {
	MaxAttempts int           // Maximum number of attempts, including the first
	InitialWait time.Duration // Initial wait duration (doubled each retry)
	MaxWait     time.Duration // Maximum wait duration between retries
}

// DefaultRetryConfig returns the default retry configuration for filesystem calls
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts: 3,
		InitialWait: 100 * time.Millisecond,
		MaxWait:     5 * time.Second,
	}
}

// NetworkRetryConfig allows exactly one retry, used for romanization lookups
func NetworkRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts: 2,
		InitialWait: time.Second,
		MaxWait:     time.Second,
	}
}

// NoRetryConfig performs a single attempt
func NoRetryConfig() *RetryConfig {
	return &RetryConfig{MaxAttempts: 1}
}

// IsRetryableError checks if an error is worth retrying
// Returns true for transient network/filesystem errors
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransient) {
		return true
	}

	var pathError *os.PathError
	var linkError *os.LinkError
	var errno syscall.Errno

	if errors.As(err, &pathError) {
		err = pathError.Err
	}
	if errors.As(err, &linkError) {
		err = linkError.Err
	}

	if errors.As(err, &errno) {
		switch errno {
		case syscall.EAGAIN,
			syscall.ETIMEDOUT,
			syscall.ECONNRESET,
			syscall.ECONNABORTED,
			syscall.ECONNREFUSED,
			syscall.ENETDOWN,
			syscall.ENETUNREACH,
			syscall.EHOSTDOWN,
			syscall.EHOSTUNREACH,
			syscall.EIO:
			return true
		}
	}

	errMsg := strings.ToLower(err.Error())
	transientPatterns := []string{
		"timeout",
		"timed out",
		"connection reset",
		"connection refused",
		"broken pipe",
		"network is unreachable",
		"temporary failure",
		"resource temporarily unavailable",
	}
	for _, pattern := range transientPatterns {
		if strings.Contains(errMsg, pattern) {
			return true
		}
	}

	return false
}

// RetryWithBackoff executes a function with exponential backoff retry logic
// Returns the result of the function or the final error after all retries exhausted
func RetryWithBackoff[T any](cfg *RetryConfig, operation func() (T, error), operationName string) (T, error) {
	var result T
	var err error

	if cfg == nil {
		cfg = DefaultRetryConfig()
	}
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	wait := cfg.InitialWait
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err = operation()
		if err == nil {
			if attempt > 1 {
				DebugLog("Retry: %s succeeded on attempt %d/%d", operationName, attempt, attempts)
			}
			return result, nil
		}

		if !IsRetryableError(err) {
			return result, err
		}

		if attempt == attempts {
			if attempts > 1 {
				return result, fmt.Errorf("max retries exceeded (%d attempts): %w", attempts, err)
			}
			return result, err
		}

		DebugLog("Retry: %s failed (attempt %d/%d), retrying in %v: %v",
			operationName, attempt, attempts, wait, err)
		time.Sleep(wait)

		wait *= 2
		if cfg.MaxWait > 0 && wait > cfg.MaxWait {
			wait = cfg.MaxWait
		}
	}

	return result, err
}

// Retry executes a function with retry logic (no return value)
func Retry(cfg *RetryConfig, operation func() error, operationName string) error {
	_, err := RetryWithBackoff(cfg, func() (struct{}, error) {
		return struct{}{}, operation()
	}, operationName)
	return err
}

// RetryableOpen opens a file with retry logic
func RetryableOpen(path string, cfg *RetryConfig) (*os.File, error) {
	return RetryWithBackoff(cfg, func() (*os.File, error) {
		return os.Open(path)
	}, fmt.Sprintf("open(%s)", path))
}

// RetryableStat stats a file with retry logic
func RetryableStat(path string, cfg *RetryConfig) (fs.FileInfo, error) {
	return RetryWithBackoff(cfg, func() (fs.FileInfo, error) {
		return os.Stat(path)
	}, fmt.Sprintf("stat(%s)", path))
}

// RetryableRemove removes a file with retry logic
func RetryableRemove(path string, cfg *RetryConfig) error {
	return Retry(cfg, func() error {
		return os.Remove(path)
	}, fmt.Sprintf("remove(%s)", path))
}

// RetryableRename renames a file with retry logic
func RetryableRename(oldpath, newpath string, cfg *RetryConfig) error {
	return Retry(cfg, func() error {
		return os.Rename(oldpath, newpath)
	}, fmt.Sprintf("rename(%s -> %s)", oldpath, newpath))
}

// RetryableMkdirAll creates a directory with retry logic
func RetryableMkdirAll(path string, perm os.FileMode, cfg *RetryConfig) error {
	return Retry(cfg, func() error {
		return os.MkdirAll(path, perm)
	}, fmt.Sprintf("mkdir(%s)", path))
}

// RetryableCreate creates a file with retry logic
func RetryableCreate(path string, cfg *RetryConfig) (*os.File, error) {
	return RetryWithBackoff(cfg, func() (*os.File, error) {
		return os.Create(path)
	}, fmt.Sprintf("create(%s)", path))
}
