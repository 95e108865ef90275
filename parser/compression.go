package parser

import (
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
	"github.com/pkg/errors"
)

// Rotated predecessors surfaced by the LATEST resolver are often already
// compressed by logrotate. They are streamed in full; resumable byte
// offsets only make sense for plain files.

// IsCompressed reports whether the path names a compressed log file.
func IsCompressed(path string) bool {
	lower := strings.ToLower(path)
	return strings.HasSuffix(lower, ".gz") ||
		strings.HasSuffix(lower, ".zst") ||
		strings.HasSuffix(lower, ".zstd")
}

// openCompressed opens a streaming decompressor for the file.
func openCompressed(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}

	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".gz"):
		r, err := newParallelGzipReader(f)
		if err != nil {
			f.Close()
			return nil, errors.Wrapf(err, "opening gzip reader for %s", path)
		}
		return &fileReadCloser{r: r, f: f}, nil
	case strings.HasSuffix(lower, ".zst"), strings.HasSuffix(lower, ".zstd"):
		dec, err := zstd.NewReader(f)
		if err != nil {
			f.Close()
			return nil, errors.Wrapf(err, "opening zstd reader for %s", path)
		}
		return &fileReadCloser{r: &zstdReadCloser{dec}, f: f}, nil
	default:
		f.Close()
		return nil, errors.Errorf("%s: not a recognized compressed file", path)
	}
}

// newParallelGzipReader returns a pgzip reader configured for parallel
// decompression.
func newParallelGzipReader(r io.Reader) (*pgzip.Reader, error) {
	threads := runtime.GOMAXPROCS(0)
	if threads < 1 {
		threads = 1
	}
	if threads > 8 {
		threads = 8 // cap to avoid excessive goroutine churn on large hosts
	}

	const blockSize = 1 << 20 // 1 MiB blocks balance throughput and memory usage
	return pgzip.NewReaderN(r, blockSize, threads)
}

type zstdReadCloser struct {
	*zstd.Decoder
}

func (z *zstdReadCloser) Close() error {
	z.Decoder.Close()
	return nil
}

// fileReadCloser closes both the decompressor and the underlying file.
type fileReadCloser struct {
	r io.ReadCloser
	f *os.File
}

func (c *fileReadCloser) Read(p []byte) (int, error) { return c.r.Read(p) }

func (c *fileReadCloser) Close() error {
	err := c.r.Close()
	if ferr := c.f.Close(); err == nil {
		err = ferr
	}
	return err
}
