package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shardwork/internal/errors"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLocalGlob(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "data", "b.jsonl"), "b")
	writeFile(t, filepath.Join(dir, "data", "a.jsonl"), "a")
	writeFile(t, filepath.Join(dir, "data", "nested", "c.jsonl"), "c")
	writeFile(t, filepath.Join(dir, "data", "skip.txt"), "x")

	fs := NewLocal()

	matches, err := fs.Glob(ctx, filepath.Join(dir, "data", "*.jsonl"))
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "data", "a.jsonl"),
		filepath.Join(dir, "data", "b.jsonl"),
	}, matches)

	matches, err = fs.Glob(ctx, filepath.Join(dir, "data", "**", "*.jsonl"))
	require.NoError(t, err)
	assert.Len(t, matches, 3)

	matches, err = fs.Glob(ctx, "file://"+filepath.Join(dir, "data", "a.*"))
	require.NoError(t, err)
	assert.Equal(t, []string{"file://" + filepath.Join(dir, "data", "a.jsonl")}, matches)

	matches, err = fs.Glob(ctx, filepath.Join(dir, "missing", "*"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestLocalGlobSkipsDirectories(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "d.jsonl"), 0o755))
	writeFile(t, filepath.Join(dir, "f.jsonl"), "f")

	matches, err := NewLocal().Glob(context.Background(), filepath.Join(dir, "*.jsonl"))
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "f.jsonl")}, matches)
}

func TestLocalReadWrite(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	fs := NewLocal()

	target := filepath.Join(dir, "out", "sub", "a.txt")
	ok, err := fs.Exists(ctx, target)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, fs.MkdirAll(ctx, Parent(target)))
	require.NoError(t, fs.MkdirAll(ctx, Parent(target)), "MkdirAll must be idempotent")

	w, err := fs.Create(ctx, target)
	require.NoError(t, err)
	_, err = io.WriteString(w, "hello")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	ok, err = fs.Exists(ctx, "file://"+target)
	require.NoError(t, err)
	assert.True(t, ok)

	r, err := fs.Open(ctx, target)
	require.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestLocalMkdirAllNoop(t *testing.T) {
	fs := NewLocal()
	assert.NoError(t, fs.MkdirAll(context.Background(), ""))
	assert.NoError(t, fs.MkdirAll(context.Background(), "."))
}

func TestLocalOpenMissing(t *testing.T) {
	_, err := NewLocal().Open(context.Background(), filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
