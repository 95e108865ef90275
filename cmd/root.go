// Package cmd implements the command-line interface for tailnmail.
// It uses the Cobra library to handle commands, flags, and execution.
package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"
)

// Version information (passed from main)
var (
	version string
	commit  string
	date    string
)

// Flag variables for command-line options.
// These are package-level variables as required by Cobra's flag binding.
var (
	// Run behavior flags
	dryrunFlag  bool  // --dryrun: print the mail to stdout, change nothing
	nomailFlag  bool  // --nomail: process and persist offsets, send nothing
	resetFlag   bool  // --reset: jump offsets to the current end of each file
	rewindFlag  int64 // --rewind: back up this many bytes before reading
	offsetFlag  int64 // --offset: explicit starting offset (overrides config)
	verboseFlag bool  // --verbose: per-file summary table after the run
	quietFlag   bool  // --quiet: suppress per-file warnings

	// Filter override flags
	includeFlag []string // --include: extra INCLUDE regex
	excludeFlag []string // --exclude: extra EXCLUDE regex

	// Mode override flags
	fileFlag     []string // --file: process these files instead of the config's
	durationFlag float64  // --duration: duration mode with this minimum (ms)
	tempfileFlag int64    // --tempfile: tempfile mode with this minimum (bytes)
	timewarpFlag int      // --timewarp: seconds added to "now" for templates

	// Mail override flags
	mailzeroFlag bool   // --mailzero: mail even when nothing matched
	mailmodeFlag string // --mailmode: sendmail or smtp
	sendmailFlag string // --sendmail: path to the sendmail binary
)

// rootCmd is the main command for the tailnmail CLI.
var rootCmd = &cobra.Command{
	Use:   "tailnmail <configfile>",
	Short: "Incremental log tailer and mail reporter",
	Long: `tailnmail resumes reading database server log files where the previous
run stopped, groups similar entries (especially SQL statements) into
clusters, and mails a report of what changed.

The config file names the files to watch and records the byte offset
reached; a successful run rewrites it so the next invocation picks up
exactly where this one left off.`,
	Args:          cobra.ExactArgs(1),
	RunE:          executeRun,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
// This is called by main.go to start the CLI application.
func Execute(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)

	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("[ERROR] %v", err)
	}
}

// init initializes all command-line flags.
func init() {
	rootCmd.Flags().BoolVar(&dryrunFlag, "dryrun", false,
		"Print the report to stdout; do not mail, do not rewrite the config")
	rootCmd.Flags().BoolVar(&nomailFlag, "nomail", false,
		"Process files and persist offsets without sending mail")
	rootCmd.Flags().BoolVar(&resetFlag, "reset", false,
		"Skip all content and record the current end of each file")
	rootCmd.Flags().Int64Var(&rewindFlag, "rewind", 0,
		"Back up this many bytes before the stored offset")
	rootCmd.Flags().Int64Var(&offsetFlag, "offset", -1,
		"Start reading at this byte offset, overriding the stored one")
	rootCmd.Flags().BoolVarP(&verboseFlag, "verbose", "v", false,
		"Show a per-file summary table after the run")
	rootCmd.Flags().BoolVarP(&quietFlag, "quiet", "q", false,
		"Suppress warnings about missing files")

	rootCmd.Flags().StringSliceVar(&includeFlag, "include", nil,
		"Additional INCLUDE regex. Can be specified multiple times")
	rootCmd.Flags().StringSliceVar(&excludeFlag, "exclude", nil,
		"Additional EXCLUDE regex. Can be specified multiple times")

	rootCmd.Flags().StringSliceVar(&fileFlag, "file", nil,
		"Process these files instead of the config's FILE entries")
	rootCmd.Flags().Float64Var(&durationFlag, "duration", -1,
		"Duration mode: report statements at or above this many milliseconds")
	rootCmd.Flags().Int64Var(&tempfileFlag, "tempfile", -1,
		"Tempfile mode: report temporary files at or above this many bytes")
	rootCmd.Flags().IntVar(&timewarpFlag, "timewarp", 0,
		"Seconds added to the clock before time-template expansion")

	rootCmd.Flags().BoolVar(&mailzeroFlag, "mailzero", false,
		"Send a short report even when nothing matched")
	rootCmd.Flags().StringVar(&mailmodeFlag, "mailmode", "",
		"Mail transport: sendmail or smtp")
	rootCmd.Flags().StringVar(&sendmailFlag, "sendmail", "",
		"Path to the sendmail binary")
}
