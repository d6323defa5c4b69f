package storage

import (
	"context"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"shardwork/internal/errors"
)

const fileScheme = "file"

// Local implements FileSystem on the local disk. Paths may be bare or carry
// the "file://" scheme; globs support "**".
type Local struct{}

// NewLocal creates a local filesystem
func NewLocal() *Local {
	return &Local{}
}

func nativePath(p string) string {
	return strings.TrimPrefix(p, fileScheme+schemeSep)
}

// Glob returns regular files matching pattern, sorted.
func (l *Local) Glob(_ context.Context, pattern string) ([]string, error) {
	matches, err := doublestar.FilepathGlob(nativePath(pattern), doublestar.WithFilesOnly())
	if err != nil {
		return nil, errors.Wrapf(err, "globbing %s", pattern)
	}
	sort.Strings(matches)

	if strings.HasPrefix(pattern, fileScheme+schemeSep) {
		for i, m := range matches {
			matches[i] = fileScheme + schemeSep + m
		}
	}
	return matches, nil
}

// Exists reports whether path exists
func (l *Local) Exists(_ context.Context, path string) (bool, error) {
	_, err := os.Stat(nativePath(path))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, errors.Wrapf(err, "checking %s", path)
}

// MkdirAll creates a directory and its parents
func (l *Local) MkdirAll(_ context.Context, path string) error {
	native := nativePath(path)
	if native == "" || native == "." {
		return nil
	}
	if err := os.MkdirAll(native, 0o755); err != nil {
		return errors.Wrapf(err, "creating directory %s", path)
	}
	return nil
}

// Open opens a file for reading
func (l *Local) Open(_ context.Context, path string) (io.ReadCloser, error) {
	f, err := os.Open(nativePath(path))
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	return f, nil
}

// Create opens a file for writing
func (l *Local) Create(_ context.Context, path string) (io.WriteCloser, error) {
	f, err := os.Create(nativePath(path))
	if err != nil {
		return nil, errors.Wrapf(err, "creating %s", path)
	}
	return f, nil
}
