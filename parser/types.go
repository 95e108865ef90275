// Package parser provides the log-file side of tailnmail: the prefix
// grammar compiler, the rotation-aware file resolver, the offset-seeking
// line reader, the multi-line record assembler, and the filter pipeline.
package parser

import "strings"

// ForcedPID is the sentinel pid assigned to lines admitted without prefix
// analysis (OS errors or other noise interleaved in the log).
const ForcedPID = "?"

// Record is one logical log record: a prefix line plus any continuation
// segments (STATEMENT, DETAIL, tab-indented lines) that belong to it.
//
// Example record assembled from three physical lines:
//
//	2025-01-01 12:00:00 UTC [9001] ERROR:  division by zero
//	2025-01-01 12:00:00 UTC [9001] STATEMENT:  SELECT 1/0
//		HINT: check the denominator
type Record struct {
	// PID is the backend process id captured from the prefix, or ForcedPID
	// for lines that did not parse.
	PID string

	// Prefix is the verbatim prefix text, timestamp included.
	Prefix string

	// Time is the timestamp captured from the prefix, or empty when the
	// prefix format carries no timestamp field.
	Time string

	// Segments holds the physical line contents in arrival order. The
	// first segment is the text after the prefix of the opening line.
	Segments []string

	// File and Line locate the record's first physical line. Line is
	// approximate (0 when line numbering is disabled).
	File string
	Line int64

	// FileSize is the temporary-file size in bytes, extracted by the
	// filter pipeline in tempfile mode.
	FileSize int64

	// Duration is the statement duration in milliseconds, extracted by
	// the filter pipeline in duration mode.
	Duration float64
}

// Append adds the next continuation segment.
func (r *Record) Append(segment string) {
	r.Segments = append(r.Segments, segment)
}

// Body joins the segments with single spaces. The filter pipeline applies
// further normalization (whitespace collapse, syslog tab markers) on top.
func (r *Record) Body() string {
	return strings.Join(r.Segments, " ")
}
