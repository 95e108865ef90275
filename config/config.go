// Package config holds the typed configuration model for tailnmail:
// the parsed config file, the per-file entries with their persisted
// offsets, and the rewrite logic that records a run's progress.
package config

import (
	"errors"
	"fmt"
)

// Report types selected by the TYPE keyword.
const (
	TypeNormal   = "normal"
	TypeDuration = "duration"
	TypeTempfile = "tempfile"
)

// Default limits, overridable from the config file or flags.
const (
	// DefaultMaxSize caps how many bytes of a single file one run will read (80 MB).
	DefaultMaxSize = 80 * 1024 * 1024

	// DefaultMaxEmailSize is the chunking threshold for outbound mail bodies (10 MB).
	DefaultMaxEmailSize = 10 * 1024 * 1024

	// DefaultStatementSize truncates statements in the report; 0 means no limit.
	DefaultStatementSize = 1000

	// DefaultSubject is the mail subject template. FILE, HOST, NUMBER and
	// UNIQUE are replaced at render time.
	DefaultSubject = "Results for FILE on host: HOST UNIQUE : NUMBER"
)

// ErrDisabled is returned by LoadRC when an rc file carries "disable: 1".
var ErrDisabled = errors.New("disabled by rc file")

// FileEntry is one FILE[N] block of the config: the template naming the
// log file, the last concrete path scanned, and the byte offset reached.
// LatestPath, NewOffset and Note are run-scoped; the reader fills them in
// and CommitRun folds them back before the config is rewritten.
type FileEntry struct {
	Suffix      int
	Template    string
	CurrentPath string // template expanded for this run
	LastPath    string
	Offset      int64
	Inherited   bool // came from an INHERIT file; never rewritten

	LatestPath string // last concrete path processed this run
	NewOffset  int64
	Note       string // e.g. "file too large" report note
	Matches    int    // records admitted by the filter pipeline this run
	BytesRead  int64
}

// Config is the complete typed configuration for one run. There is no
// dynamic option bag: every keyword maps to a field here, and per-entry
// state lives in its FileEntry.
type Config struct {
	Path string // config file location

	Emails        []string
	From          string
	Type          string
	DurationMin   float64 // minimum ms for duration mode
	DurationLimit int     // report cap in duration mode, 0 = unlimited
	TempfileMin   int64   // minimum bytes for tempfile mode
	TempfileLimit int     // report cap in tempfile mode, 0 = unlimited
	LogLinePrefix string
	SortBy        string // "count" or "date"
	FindLineNum   bool
	Syslog        bool
	CSV           bool
	SQLState      bool
	SkipNonParsed bool

	Include          []string
	Exclude          []string
	ExcludePrefix    []string
	ExcludeNonParsed []string

	MaxSize       int64
	MaxEmailSize  int64
	StatementSize int
	MailSubject   string
	MailZero      bool
	MailSig       string
	Timewarp      int // seconds added to "now" before template expansion

	MailMode   string // "sendmail" or "smtp"
	Sendmail   string // sendmail binary path
	MailServer string
	MailPort   int
	MailUser   string
	MailPass   string

	Files []*FileEntry

	items    []*item  // config lines in original order, for rewrite
	trailing []string // comment lines after the last keyword
	seen     map[string]bool // exact duplicate-line detection
	setKeys  map[string]bool // keywords the config file itself set
}

// wasSet reports whether the config file (or an inherited file) set the
// given keyword, so rc defaults know not to override it.
func (c *Config) wasSet(key string) bool {
	return c.setKeys[key]
}

// NewConfig returns a Config with the documented defaults applied.
func NewConfig(path string) *Config {
	return &Config{
		Path:          path,
		Type:          TypeNormal,
		SortBy:        "count",
		MaxSize:       DefaultMaxSize,
		MaxEmailSize:  DefaultMaxEmailSize,
		StatementSize: DefaultStatementSize,
		MailSubject:   DefaultSubject,
		MailMode:      "sendmail",
		Sendmail:      "/usr/sbin/sendmail",
		MailPort:      25,
		seen:          make(map[string]bool),
		setKeys:       make(map[string]bool),
	}
}

// Entry returns the FileEntry with the given suffix, or nil.
func (c *Config) Entry(suffix int) *FileEntry {
	for _, e := range c.Files {
		if e.Suffix == suffix {
			return e
		}
	}
	return nil
}

// addEntry appends a new FileEntry, enforcing the one-entry-per-suffix
// invariant. Suffix 0 entries are placeholders renumbered before rewrite.
func (c *Config) addEntry(e *FileEntry) error {
	if e.Suffix != 0 && c.Entry(e.Suffix) != nil {
		return fmt.Errorf("duplicate FILE suffix %d", e.Suffix)
	}
	c.Files = append(c.Files, e)
	return nil
}

// CommitRun folds the run-scoped reader results into the persistent
// fields, returning true if anything changed and a rewrite is needed.
func (c *Config) CommitRun() bool {
	changed := false
	for _, e := range c.Files {
		if e.Inherited {
			continue
		}
		if e.LatestPath != "" && e.LatestPath != e.LastPath {
			e.LastPath = e.LatestPath
			changed = true
		}
		if e.LatestPath != "" && e.NewOffset != e.Offset {
			e.Offset = e.NewOffset
			changed = true
		}
	}
	return changed
}
