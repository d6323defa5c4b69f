package units

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"

	"shardwork/internal/errors"
	"shardwork/internal/storage"
)

const reportEvery = 1000

func isGzip(path string) bool {
	return strings.HasSuffix(path, ".gz")
}

type readCloser struct {
	io.Reader
	closers []io.Closer
}

func (r *readCloser) Close() error {
	var first error
	for _, c := range r.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// openDocuments opens path for reading, decompressing .gz files
func openDocuments(ctx context.Context, fs storage.FileSystem, path string) (io.ReadCloser, error) {
	f, err := fs.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	if !isGzip(path) {
		return f, nil
	}

	gz, err := gzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "reading gzip header of %s", path)
	}
	return &readCloser{Reader: gz, closers: []io.Closer{gz, f}}, nil
}

type writeCloser struct {
	io.Writer
	closers []io.Closer
}

func (w *writeCloser) Close() error {
	var first error
	for _, c := range w.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// createDocuments opens path for writing, compressing .gz files. The
// returned writer is buffered; Close flushes every layer in order.
func createDocuments(ctx context.Context, fs storage.FileSystem, path string) (io.WriteCloser, error) {
	f, err := fs.Create(ctx, path)
	if err != nil {
		return nil, err
	}

	if !isGzip(path) {
		buf := bufio.NewWriterSize(f, 1<<20)
		return &writeCloser{Writer: buf, closers: []io.Closer{flusher{buf}, f}}, nil
	}

	gz := gzip.NewWriter(f)
	buf := bufio.NewWriterSize(gz, 1<<20)
	return &writeCloser{Writer: buf, closers: []io.Closer{flusher{buf}, gz, f}}, nil
}

type flusher struct{ w *bufio.Writer }

func (f flusher) Close() error { return f.w.Flush() }

// eachLine calls fn for every newline-delimited record in r, without the
// trailing newline. Blank lines are skipped.
func eachLine(ctx context.Context, r io.Reader, fn func(line []byte) error) error {
	br := bufio.NewReaderSize(r, 1<<20)
	for n := 0; ; n++ {
		if n%reportEvery == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		line, err := br.ReadBytes('\n')
		if trimmed := bytes.TrimRight(line, "\r\n"); len(trimmed) > 0 {
			if ferr := fn(trimmed); ferr != nil {
				return ferr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
