package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/EldooRado/MsiAnalyzer/internal/logger"
	"github.com/EldooRado/MsiAnalyzer/msi"
	"github.com/EldooRado/MsiAnalyzer/pkg/types"
)

var (
	// Global flags
	verbose bool
	quiet   bool
	jsonOut bool
	strict  bool
	logFile string
)

var (
	// appFs is where inputs are read from and extraction output is written.
	appFs afero.Fs = afero.NewOsFs()

	log       = logger.Discard()
	logCloser io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "msictl",
	Short: "Inspect and extract Windows Installer (MSI) databases",
	Long: `msictl reads Windows Installer packages without Windows APIs. It walks the
compound file container, decodes the string pool and table catalog, and lists
or extracts tables, streams, custom actions and embedded scripts.

Malformed files are tolerated where real authoring tools are known to produce
them; use --strict to fail on chain and catalog inconsistencies instead.`,
	Version:           version,
	SilenceUsage:      true,
	PersistentPreRunE: setupLogging,
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return closeLogging()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output and debug logging")
	rootCmd.PersistentFlags().
		BoolVarP(&quiet, "quiet", "q", false, "Suppress all output except errors")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVar(&strict, "strict", false, "Treat chain and catalog inconsistencies as errors")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Write JSON debug logs to this file or directory")
}

func execute() {
	err := rootCmd.Execute()
	if cerr := closeLogging(); err == nil {
		err = cerr
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setupLogging(cmd *cobra.Command, args []string) error {
	l, closer, err := logger.New(logger.Options{
		Verbose: verbose,
		Quiet:   quiet,
		File:    logFile,
	})
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	log, logCloser = l, closer
	return nil
}

func closeLogging() error {
	if logCloser == nil {
		return nil
	}
	c := logCloser
	logCloser = nil
	return c.Close()
}

// openOptions builds library options from the global flags.
func openOptions() types.OpenOptions {
	return types.OpenOptions{
		Strict: strict,
		Logger: log,
	}
}

// openDB opens an MSI file from appFs. The real filesystem goes through the
// memory-mapped reader.
func openDB(path string) (*msi.Database, error) {
	printVerbose("Opening %s\n", path)
	var (
		db  *msi.Database
		err error
	)
	if _, ok := appFs.(*afero.OsFs); ok {
		db, err = msi.Open(path, openOptions())
	} else {
		db, err = msi.OpenFs(appFs, path, openOptions())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	log.Debug("opened database", "path", path, "tables", len(db.TableNames()))
	return db, nil
}

// Helper functions for output

// printInfo prints an info message if not in quiet mode
func printInfo(format string, args ...interface{}) {
	if !quiet {
		fmt.Fprintf(os.Stdout, format, args...)
	}
}

// printError prints an error message
func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format, args...)
}

// printVerbose prints a verbose message if verbose mode is enabled
func printVerbose(format string, args ...interface{}) {
	if verbose && !quiet {
		fmt.Fprintf(os.Stdout, format, args...)
	}
}

// printJSON outputs data as JSON
func printJSON(v interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
