package main

import (
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/sessionwatch/sessionwatch/internal/config"
	"github.com/sessionwatch/sessionwatch/internal/store"
)

var (
	flagRoot string
	flagDB   string
)

var rootCmd = &cobra.Command{
	Use:   "sessionwatch",
	Short: "Index agent session activity into a queryable database",
	Long: `sessionwatch watches an agent's session directory tree and keeps a
local SQLite database synchronized with it: transcripts, prompt
history, plans, todos, file backups, aggregate stats, and the git
commits attributable to each session.

The database only ever grows more complete. Files are consumed
incrementally from per-file byte offsets, so restarts and replays
never duplicate rows.`,
	SilenceUsage: true,
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagRoot, "root", "", "watched directory (default: ~/.claude)")
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "database path (default: ~/.sessionwatch/sessionwatch.db)")
}

// loadConfig resolves configuration and applies flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if flagRoot != "" {
		cfg.Root = flagRoot
	}
	if flagDB != "" {
		cfg.DBPath = flagDB
	}
	return cfg, nil
}

// openStore opens the database; the store creates its directory and
// schema on first use.
func openStore(cfg *config.Config) (*store.Store, error) {
	return store.Open(cfg.DBPath)
}

// newLogger builds the daemon logger. With a log file configured,
// output goes to a size-capped rotating file so a long-running daemon
// cannot fill the disk.
func newLogger(cfg *config.Config, prefix string) *log.Logger {
	if cfg.LogFile == "" {
		return log.New(os.Stderr, prefix, log.LstdFlags)
	}
	return log.New(&lumberjack.Logger{
		Filename:   cfg.LogFile,
		MaxSize:    20, // megabytes
		MaxBackups: 3,
		MaxAge:     14, // days
	}, prefix, log.LstdFlags)
}

// gitTimeout returns the configured git timeout with a sane floor.
func gitTimeout(cfg *config.Config) time.Duration {
	if cfg.GitTimeout <= 0 {
		return 30 * time.Second
	}
	return cfg.GitTimeout
}
