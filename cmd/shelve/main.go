package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/franz/music-shelver/internal/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	exitOK          = 0
	exitError       = 1
	exitInterrupted = 130
)

var (
	// Version is set at build time
	Version = "dev"

	cfgFile string

	rootCmd = &cobra.Command{
		Use:   "shelve",
		Short: "Music Shelver - organize an audio library by its tags, reversibly",
		Long: `shelve moves audio files into an Artist/Year_Album layout derived from their
tags, keyed by content hash, and records every move in a SQLite state store
so the whole operation can be undone with 'shelve restore'.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./shelve.yaml)")
	rootCmd.PersistentFlags().String("db", "", "state database file (default <library>/.shelve/state.db)")
	rootCmd.PersistentFlags().String("artifacts", "", "directory for event logs and reports (default <library>/.shelve/artifacts)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "quiet output (errors only)")
	rootCmd.PersistentFlags().Bool("no-color", false, "disable colored log output")
	rootCmd.PersistentFlags().String("event-level", "", "event log threshold: debug, info, warning or error (default follows --verbose/--quiet)")

	// Bind flags to viper
	viper.BindPFlag("db", rootCmd.PersistentFlags().Lookup("db"))
	viper.BindPFlag("artifacts", rootCmd.PersistentFlags().Lookup("artifacts"))
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
	viper.BindPFlag("no-color", rootCmd.PersistentFlags().Lookup("no-color"))
	viper.BindPFlag("event-level", rootCmd.PersistentFlags().Lookup("event-level"))
}

func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(home + "/.config/shelve")
		}
		viper.SetConfigName("shelve")
		viper.SetConfigType("yaml")
	}

	// SHELVE_COLLISION_POLICY and friends
	viper.SetEnvPrefix("SHELVE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("musicbrainz", true)
	viper.SetDefault("backup-suffix", ".bak")
	viper.SetDefault("collision-policy", "abort")

	if err := viper.ReadInConfig(); err == nil && !viper.GetBool("quiet") {
		util.InfoLog("Using config file: %s", viper.ConfigFileUsed())
	}
}

// exitCode maps a command error to the process exit status
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, util.ErrInterrupted), errors.Is(err, context.Canceled):
		return exitInterrupted
	default:
		return exitError
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	code := exitCode(err)
	switch code {
	case exitInterrupted:
		fmt.Fprintf(os.Stderr, "Interrupted: %v\n", err)
	case exitError:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(code)
}
