package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/franz/music-shelver/internal/meta"
	"github.com/franz/music-shelver/internal/util"
	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the artist cache",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Forget cached artist IDs and romanized names",
	Long: `Delete every artist cache entry (artist IDs and romanized names) from the
state database. The next organize run resolves artists again; files already
organized keep their names.`,
	Args:    cobra.NoArgs,
	PreRunE: bindFlags,
	RunE:    runCacheClear,
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheClearCmd)

	cacheClearCmd.Flags().String("library", "", "library root whose state database to use (default: current directory)")
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	setupLogging()

	root := GetConfigString("library", "")
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to get working directory: %w", err)
		}
		root = wd
	}
	dbPath, _ := libraryPaths(filepath.Clean(root))
	if !util.FileExists(dbPath) {
		return fmt.Errorf("%w: no state database at %s", util.ErrValidation, dbPath)
	}

	lib, err := openLibrary(dbPath)
	if err != nil {
		return err
	}
	defer lib.Close()

	romanizer := meta.NewRomanizer(&meta.RomanizerConfig{Cache: lib.Store})
	n, err := romanizer.Clear(ctx)
	if err != nil {
		return fmt.Errorf("failed to clear artist cache: %w", err)
	}
	util.SuccessLog("Cleared %d artist cache entries", n)
	return nil
}
