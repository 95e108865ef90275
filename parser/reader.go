package parser

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	pkgerrors "github.com/pkg/errors"
)

// ErrMissingFile marks a per-file recoverable condition: the path does
// not exist or is not a regular file. Callers warn and continue with the
// next file.
var ErrMissingFile = errors.New("file missing or not a regular file")

// readChunk is the block size used when counting newlines below the
// starting offset.
const readChunk = 64 * 1024

// backstep is how far before the persisted offset reading starts, so a
// previous run that stopped mid-line is healed by discarding the partial.
const backstep = 10

// truncationRetryDelay is the pause before the single re-read of a
// newline-less tail.
const truncationRetryDelay = 500 * time.Millisecond

// ReadOptions controls how a single file is opened and consumed.
type ReadOptions struct {
	Offset         int64
	OffsetOverride bool  // explicit offset from the command line: no maxsize advance
	MaxSize        int64 // 0 = unlimited
	Rewind         int64 // extra bytes to back up before reading
	FindLineNum    bool
}

// ReadResult reports where reading stopped and what the report should
// know about this file.
type ReadResult struct {
	NewOffset int64  // position after the last successful full-line read
	Note      string // "file too large" style report note, or empty
	BytesRead int64
}

// ReadLines opens path at the persisted offset and feeds each physical
// line (newline stripped) to fn together with its approximate line
// number. Opening handles rotation reset when the offset exceeds the
// file size, the maxsize gap advance, backstep healing of partial last
// lines, and a single retry on a truncated tail.
func ReadLines(path string, opts ReadOptions, fn func(line string, lineno int64)) (ReadResult, error) {
	fi, err := os.Stat(path)
	if err != nil || !fi.Mode().IsRegular() {
		return ReadResult{}, pkgerrors.Wrapf(ErrMissingFile, "%s", path)
	}

	if IsCompressed(path) {
		return readCompressed(path, fi.Size(), fn)
	}

	size := fi.Size()
	offset := opts.Offset
	var res ReadResult

	// Rotation: the file shrank below the saved offset, start over.
	if offset > size {
		offset = 0
	}

	// Too-large gap: skip ahead, note it for the report.
	if opts.MaxSize > 0 && size-offset > opts.MaxSize && !opts.OffsetOverride {
		offset = size - opts.MaxSize
		res.Note = fmt.Sprintf("File too large: processing only the last %d bytes", opts.MaxSize)
	}

	if opts.Rewind > 0 {
		offset -= opts.Rewind
		if offset < 0 {
			offset = 0
		}
	}

	var startLine int64
	if opts.FindLineNum {
		n, err := countNewlines(path, offset)
		if err != nil {
			return res, err
		}
		startLine = n
	}

	f, err := os.Open(path)
	if err != nil {
		return res, pkgerrors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()

	// Back up a few bytes, then discard whole lines up to the starting
	// offset, unless starting at the head of the file.
	seekPos := offset - backstep
	if seekPos < 0 {
		seekPos = 0
	}
	if _, err := f.Seek(seekPos, io.SeekStart); err != nil {
		return res, pkgerrors.Wrapf(err, "seeking %s", path)
	}

	r := bufio.NewReaderSize(f, readChunk)
	pos := seekPos

	// Discard up to the starting offset. When the previous run stopped
	// mid-line the offset points inside a line; the rest of the torn line
	// is skipped and never emitted. At a clean line boundary this stops
	// exactly at the offset and nothing is lost or repeated.
	for pos < offset {
		discarded, derr := r.ReadString('\n')
		pos += int64(len(discarded))
		if derr == io.EOF {
			// The torn line runs to end of file with no newline yet:
			// no progress this run, retry from the same offset next time.
			res.NewOffset = opts.Offset
			return res, nil
		}
		if derr != nil {
			return res, pkgerrors.Wrapf(derr, "reading %s", path)
		}
	}

	res.NewOffset = pos
	var lineno int64 = startLine
	retried := false

	for {
		line, err := r.ReadString('\n')
		switch {
		case err == nil:
			pos += int64(len(line))
			res.NewOffset = pos
			lineno++
			fn(chomp(line), lineno)

		case err == io.EOF:
			if line == "" {
				res.BytesRead = res.NewOffset - opts.Offset
				return res, nil
			}
			// Truncated tail: the writer may still be mid-line. Wait
			// briefly, rewind exactly the unread length, and retry once.
			if !retried {
				retried = true
				time.Sleep(truncationRetryDelay)
				if _, serr := f.Seek(pos, io.SeekStart); serr != nil {
					return res, pkgerrors.Wrapf(serr, "re-seeking %s", path)
				}
				r = bufio.NewReaderSize(f, readChunk)
				continue
			}
			// Still no newline: process the partial line and stop
			// reading this file. The offset stays at the last full line
			// so the next run re-reads the fragment.
			lineno++
			fn(chomp(line), lineno)
			res.BytesRead = res.NewOffset - opts.Offset
			return res, nil

		default:
			return res, pkgerrors.Wrapf(err, "reading %s", path)
		}
	}
}

// readCompressed streams a gzip/zstd rotated predecessor in full. Byte
// offsets are meaningless inside the compressed stream, so the persisted
// offset becomes the compressed file's on-disk size: a later run seeing
// offset == size reads nothing.
func readCompressed(path string, size int64, fn func(line string, lineno int64)) (ReadResult, error) {
	rc, err := openCompressed(path)
	if err != nil {
		return ReadResult{}, err
	}
	defer rc.Close()

	scanner := bufio.NewScanner(rc)
	buf := make([]byte, readChunk)
	scanner.Buffer(buf, 100*1024*1024)
	var lineno int64
	for scanner.Scan() {
		lineno++
		fn(scanner.Text(), lineno)
	}
	if err := scanner.Err(); err != nil {
		return ReadResult{}, pkgerrors.Wrapf(err, "decompressing %s", path)
	}
	return ReadResult{NewOffset: size, BytesRead: size}, nil
}

// countNewlines counts '\n' bytes in [0, offset) with block reads, so the
// report can cite approximate line numbers.
func countNewlines(path string, offset int64) (int64, error) {
	if offset <= 0 {
		return 0, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return 0, pkgerrors.Wrapf(err, "opening %s for line counting", path)
	}
	defer f.Close()

	var count, read int64
	buf := make([]byte, readChunk)
	for read < offset {
		want := int64(len(buf))
		if offset-read < want {
			want = offset - read
		}
		n, err := f.Read(buf[:want])
		for _, b := range buf[:n] {
			if b == '\n' {
				count++
			}
		}
		read += int64(n)
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, pkgerrors.Wrapf(err, "counting lines in %s", path)
		}
	}
	return count, nil
}

// chomp strips the trailing newline (and a preceding carriage return).
func chomp(line string) string {
	line = strings.TrimSuffix(line, "\n")
	return strings.TrimSuffix(line, "\r")
}
