package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joshuapare/arenakit/arena"
	"github.com/joshuapare/arenakit/logging"
)

var (
	// Global flags
	verbose    bool
	quiet      bool
	jsonOut    bool
	logEnabled bool
	logLevel   string
	logBackend string
	logStderr  bool
)

var rootCmd = &cobra.Command{
	Use:   "arenactl",
	Short: "Drive and inspect arena allocators",
	Long: `arenactl runs allocation scripts against the boundary-tag, buddy and
sorted-list arena engines, inspects saved arena images and stress-tests the
engines under concurrent load.`,
	Version:           "0.1.0",
	SilenceUsage:      true,
	PersistentPreRunE: setupLogging,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().
		BoolVarP(&quiet, "quiet", "q", false, "Suppress all output except errors")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVar(&logEnabled, "log", false, "Log engine diagnostics")
	rootCmd.PersistentFlags().
		StringVar(&logLevel, "log-level", "info", "Minimum log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().
		StringVar(&logBackend, "log-backend", "slog", "Log backend (slog, golog)")
	rootCmd.PersistentFlags().
		BoolVar(&logStderr, "log-stderr", false, "With slog, log text to stderr instead of ~/.arenakit/logs")
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setupLogging(*cobra.Command, []string) error {
	if !logEnabled {
		return logging.Init(logging.Options{})
	}
	switch logBackend {
	case "slog":
		level, err := parseLevel(logLevel)
		if err != nil {
			return err
		}
		return logging.Init(logging.Options{Enabled: true, Name: "arenactl", Level: level, Stderr: logStderr})
	case "golog":
		logging.EnableGolog(true)
		return nil
	}
	return fmt.Errorf("unknown log backend: %s (must be slog or golog)", logBackend)
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "trace":
		return logging.LevelTrace, nil
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level: %s", s)
}

// engineLogger returns the arena.Logger selected by the log flags, or nil.
func engineLogger() arena.Logger {
	if !logEnabled {
		return nil
	}
	if logBackend == "golog" {
		return logging.Golog{}
	}
	return logging.Slog{}
}

// Helper functions for output

// printInfo prints an info message if not in quiet mode
func printInfo(format string, args ...any) {
	if !quiet {
		fmt.Fprintf(os.Stdout, format, args...)
	}
}

// printVerbose prints a verbose message if verbose mode is enabled
func printVerbose(format string, args ...any) {
	if verbose && !quiet {
		fmt.Fprintf(os.Stdout, format, args...)
	}
}

// printJSON outputs data as JSON
func printJSON(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
