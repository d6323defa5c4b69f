package storage

import (
	"context"
	"io"
)

// FileSystem defines the storage operations the engine depends on.
//
// All paths are scheme-qualified strings: "s3://bucket/key" for the object store,
// bare or "file://" paths for local disk. Path arithmetic lives in path.go and is
// backend independent.
type FileSystem interface {
	// Glob returns the sorted set of file paths matching pattern.
	Glob(ctx context.Context, pattern string) ([]string, error)
	// Exists reports whether a file exists at path.
	Exists(ctx context.Context, path string) (bool, error)
	// MkdirAll creates path and its parents; a no-op on flat object stores.
	MkdirAll(ctx context.Context, path string) error
	// Open opens path for streamed reading.
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	// Create opens path for streamed writing, truncating any existing content.
	// The write is only durable once Close returns nil.
	Create(ctx context.Context, path string) (io.WriteCloser, error)
}

// Config contains object store client configuration
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	Secure    bool
	PartSize  int64
}
