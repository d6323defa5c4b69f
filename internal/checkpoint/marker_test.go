package checkpoint

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shardwork/internal/storage"
)

func TestMarkerPath(t *testing.T) {
	assert.Equal(t, "meta/a.jsonl.done.txt", MarkerPath("meta/", "a.jsonl"))
	assert.Equal(t, "s3://b/meta/x/a.gz.done.txt", MarkerPath("s3://b/meta", "x/a.gz"))
}

func TestWriteMarker(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.jsonl.done.txt")
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, WriteMarker(context.Background(), storage.NewLocal(), path, ts))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	parsed, err := time.Parse(time.RFC3339Nano, string(data))
	require.NoError(t, err)
	assert.True(t, parsed.Equal(ts))
}

func TestWriteMarkerMissingParent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "no", "such", "dir", "a.done.txt")
	err := WriteMarker(context.Background(), storage.NewLocal(), path, time.Now())
	require.Error(t, err)
}
