package storage

import (
	"context"
	"io"

	"shardwork/internal/errors"
)

// Router dispatches each call to the FileSystem registered for the path's scheme.
// Local disk serves bare and "file://" paths by default.
type Router struct {
	backends map[string]FileSystem
}

// NewRouter creates a router with the local filesystem registered
func NewRouter() *Router {
	local := NewLocal()
	return &Router{
		backends: map[string]FileSystem{
			"":         local,
			fileScheme: local,
		},
	}
}

// Register serves scheme with fs, replacing any previous registration.
func (r *Router) Register(scheme string, fs FileSystem) {
	r.backends[scheme] = fs
}

func (r *Router) route(path string) (FileSystem, error) {
	scheme, _ := Split(path)
	fs, ok := r.backends[scheme]
	if !ok {
		return nil, errors.WithHint(
			errors.Configf("no filesystem registered for scheme %q (path %s)", scheme, path),
			"configure the storage section for this scheme",
		)
	}
	return fs, nil
}

func (r *Router) Glob(ctx context.Context, pattern string) ([]string, error) {
	fs, err := r.route(pattern)
	if err != nil {
		return nil, err
	}
	return fs.Glob(ctx, pattern)
}

func (r *Router) Exists(ctx context.Context, path string) (bool, error) {
	fs, err := r.route(path)
	if err != nil {
		return false, err
	}
	return fs.Exists(ctx, path)
}

func (r *Router) MkdirAll(ctx context.Context, path string) error {
	fs, err := r.route(path)
	if err != nil {
		return err
	}
	return fs.MkdirAll(ctx, path)
}

func (r *Router) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	fs, err := r.route(path)
	if err != nil {
		return nil, err
	}
	return fs.Open(ctx, path)
}

func (r *Router) Create(ctx context.Context, path string) (io.WriteCloser, error) {
	fs, err := r.route(path)
	if err != nil {
		return nil, err
	}
	return fs.Create(ctx, path)
}
