package parser

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	pkgerrors "github.com/pkg/errors"
)

// PostgreSQL csvlog column positions.
const (
	csvLogTime   = 0
	csvProcessID = 3
	csvSeverity  = 11
	csvMessage   = 13
	csvContext   = 18
	csvQuery     = 19

	csvMinFields = 14
)

// ReadCSV consumes a CSV-encoded log from the persisted offset, emitting
// one Record per row. CSV rows are self-contained, so no multi-line
// assembly happens here: the prefix is composed as "ts [pid]" and the
// body carries severity, message, optional context, and statement.
func ReadCSV(path string, opts ReadOptions, emit func(*Record)) (ReadResult, error) {
	fi, err := os.Stat(path)
	if err != nil || !fi.Mode().IsRegular() {
		return ReadResult{}, pkgerrors.Wrapf(ErrMissingFile, "%s", path)
	}

	size := fi.Size()
	offset := opts.Offset
	var res ReadResult

	if offset > size {
		offset = 0
	}

	advanced := false
	if opts.MaxSize > 0 && size-offset > opts.MaxSize && !opts.OffsetOverride {
		offset = size - opts.MaxSize
		advanced = true
		res.Note = fmt.Sprintf("File too large: processing only the last %d bytes", opts.MaxSize)
	}

	f, err := os.Open(path)
	if err != nil {
		return res, pkgerrors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return res, pkgerrors.Wrapf(err, "seeking %s", path)
	}

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	// Persisted CSV offsets are record-aligned; only a maxsize advance
	// can land mid-record, in which case the partial row is skipped.
	if advanced {
		_, _ = r.Read()
	}
	base := offset

	res.NewOffset = base + r.InputOffset()
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// A torn trailing row is the CSV analogue of a truncated
			// tail: stop at the last cleanly parsed record.
			break
		}
		res.NewOffset = base + r.InputOffset()
		if len(row) < csvMinFields {
			continue
		}
		emit(csvRecord(row, path))
	}
	res.BytesRead = res.NewOffset - opts.Offset
	return res, nil
}

// csvRecord converts one csvlog row into a Record.
func csvRecord(row []string, path string) *Record {
	ts := row[csvLogTime]
	pid := row[csvProcessID]

	context := ""
	if len(row) > csvContext {
		context = row[csvContext]
	}
	query := ""
	if len(row) > csvQuery {
		query = row[csvQuery]
	}

	var b strings.Builder
	b.WriteString(row[csvSeverity])
	b.WriteString(":  ")
	b.WriteString(row[csvMessage])
	if context != "" || query != "" {
		b.WriteString(" ")
	}
	if context != "" {
		b.WriteString("CONTEXT: ")
		b.WriteString(context)
		b.WriteString(" ")
	}
	if query != "" {
		b.WriteString("STATEMENT:  ")
		b.WriteString(query)
	}

	return &Record{
		PID:      pid,
		Prefix:   ts + " [" + pid + "]",
		Time:     ts,
		Segments: []string{b.String()},
		File:     path,
	}
}
