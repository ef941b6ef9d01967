package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/franz/music-shelver/internal/report"
	"github.com/franz/music-shelver/internal/scan"
	"github.com/franz/music-shelver/internal/store"
	"github.com/franz/music-shelver/internal/util"
	"github.com/gofrs/flock"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// GetConfigString retrieves a string config value with proper precedence:
// 1. Command-line flag (if set)
// 2. Environment variable (SHELVE_*)
// 3. Config file
// 4. Default value
func GetConfigString(key string, defaultValue string) string {
	val := viper.GetString(key)
	if val == "" {
		return defaultValue
	}
	return val
}

// GetConfigInt retrieves an int config value with proper precedence
func GetConfigInt(key string, defaultValue int) int {
	val := viper.GetInt(key)
	if val == 0 {
		return defaultValue
	}
	return val
}

// GetConfigBool retrieves a bool config value
func GetConfigBool(key string) bool {
	return viper.GetBool(key)
}

// bindFlags binds the running command's local flags. Commands share key
// names (dry-run, limit, ...), so binding happens per invocation.
func bindFlags(cmd *cobra.Command, args []string) error {
	return viper.BindPFlags(cmd.Flags())
}

func setupLogging() {
	util.SetVerbose(GetConfigBool("verbose"))
	util.SetQuiet(GetConfigBool("quiet"))
	if GetConfigBool("no-color") {
		util.SetColors(false)
	}
}

// eventLevel picks the event log threshold: the event-level setting when
// present, otherwise the console verbosity
func eventLevel() report.EventLevel {
	if level := GetConfigString("event-level", ""); level != "" {
		return report.ParseLevel(level)
	}
	switch {
	case util.IsQuiet():
		return report.LevelWarning
	case util.IsVerbose():
		return report.LevelDebug
	default:
		return report.LevelInfo
	}
}

// libraryPaths resolves the state database and artifacts directory for a
// library root
func libraryPaths(root string) (dbPath, artifacts string) {
	stateDir := filepath.Join(root, scan.StateDir)
	dbPath = GetConfigString("db", filepath.Join(stateDir, "state.db"))
	artifacts = GetConfigString("artifacts", filepath.Join(stateDir, "artifacts"))
	return dbPath, artifacts
}

// library is an opened state store guarded by an exclusive lock file
type library struct {
	*store.Store
	path string
	lock *flock.Flock
}

// openLibrary locks and opens the state database. A second process working
// on the same database fails fast instead of waiting on SQLite.
func openLibrary(dbPath string) (*library, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("%w: failed to create state directory: %v", util.ErrIO, err)
	}

	lock := flock.New(dbPath + ".lock")
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("%w: acquire lock: %v", util.ErrIO, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s is in use by another shelve process", util.ErrValidation, dbPath)
	}

	util.InfoLog("Opening database: %s", dbPath)
	db, err := store.Open(dbPath)
	if err != nil {
		lock.Unlock()
		return nil, fmt.Errorf("%w: failed to open database: %v", util.ErrPersistence, err)
	}
	return &library{Store: db, path: dbPath, lock: lock}, nil
}

func (l *library) Close() error {
	err := l.Store.Close()
	if unlockErr := l.lock.Unlock(); unlockErr != nil && err == nil {
		err = unlockErr
	}
	return err
}

// newEventLogger opens the run's event log, degrading to no event log when
// the artifacts directory is unusable
func newEventLogger(artifacts string) *report.EventLogger {
	logger, err := report.NewEventLogger(artifacts, eventLevel())
	if err != nil {
		util.WarnLog("Failed to create event logger: %v", err)
		return nil
	}
	util.InfoLog("Event log: %s", logger.Path())
	return logger
}

// requireDir fails with a validation error when path is not a directory
func requireDir(path, what string) error {
	st, err := os.Stat(path)
	if err != nil || !st.IsDir() {
		return fmt.Errorf("%w: %s directory does not exist: %s", util.ErrValidation, what, path)
	}
	return nil
}
