package units

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"shardwork/internal/errors"
	"shardwork/internal/progress"
	"shardwork/internal/storage"
)

func writeGzip(t *testing.T, path, content string) {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := io.WriteString(gz, content)
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func readGzip(t *testing.T, path string) string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	data, err := io.ReadAll(gz)
	require.NoError(t, err)
	return string(data)
}

func TestRegistry(t *testing.T) {
	fs := storage.NewLocal()
	assert.Equal(t, []string{"char_length", "copy"}, Kinds())

	u, err := New("copy", fs, nil)
	require.NoError(t, err)
	assert.Equal(t, CopyKind, u.Kind())
	require.NoError(t, progress.ValidateKeys(u.Counters()))

	u, err = New("char_length", fs, nil)
	require.NoError(t, err)
	require.NoError(t, progress.ValidateKeys(u.Counters()))

	_, err = New("dedupe", fs, nil)
	require.Error(t, err)
	assert.True(t, errors.IsConfig(err))
}

func TestCopyPlainToGzip(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.jsonl")
	dst := filepath.Join(dir, "a.jsonl.gz")
	require.NoError(t, os.WriteFile(src, []byte("{\"id\":1}\n\n{\"id\":2}\r\n{\"id\":3}"), 0o644))

	rec := progress.NewRecorder()
	err := NewCopy(storage.NewLocal(), nil).Process(context.Background(), src, dst, nil, rec)
	require.NoError(t, err)

	assert.Equal(t, "{\"id\":1}\n{\"id\":2}\n{\"id\":3}\n", readGzip(t, dst))
	assert.Equal(t, int64(3), rec.Totals()["documents"])
	assert.Equal(t, int64(27), rec.Totals()["bytes"])
}

func TestCopyGzipToPlainManyDocuments(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.jsonl.gz")
	dst := filepath.Join(dir, "a.jsonl")
	writeGzip(t, src, strings.Repeat("{}\n", 2500))

	rec := progress.NewRecorder()
	err := NewCopy(storage.NewLocal(), nil).Process(context.Background(), src, dst, nil, rec)
	require.NoError(t, err)

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("{}\n", 2500), string(data))
	assert.Equal(t, int64(2500), rec.Totals()["documents"])
}

func TestCopyLogsCompletion(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.jsonl")
	require.NoError(t, os.WriteFile(src, []byte("{}\n"), 0o644))

	core, logs := observer.New(zap.DebugLevel)
	err := NewCopy(storage.NewLocal(), zap.New(core)).Process(context.Background(), src, filepath.Join(dir, "b.jsonl"), nil, progress.Discard)
	require.NoError(t, err)
	assert.Equal(t, 1, logs.FilterMessage("Copied file").Len())
}

func TestCopyMissingSource(t *testing.T) {
	dir := t.TempDir()
	err := NewCopy(storage.NewLocal(), nil).Process(context.Background(),
		filepath.Join(dir, "nope.jsonl"), filepath.Join(dir, "out.jsonl"), nil, progress.Discard)
	require.Error(t, err)
}

func TestCharLength(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "docs.jsonl.gz")
	dst := filepath.Join(dir, "attrs.jsonl")
	writeGzip(t, src, `{"id":"a","text":"héllo"}
{"id":7,"text":""}
`)

	rec := progress.NewRecorder()
	err := NewCharLength(storage.NewLocal(), nil).Process(context.Background(), src, dst, nil, rec)
	require.NoError(t, err)

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.JSONEq(t, `{"id":"a","attributes":{"char_length__char_length":[[0,5,5]]}}`, lines[0])
	assert.JSONEq(t, `{"id":7,"attributes":{"char_length__char_length":[[0,0,0]]}}`, lines[1])

	assert.Equal(t, map[string]int64{"documents": 2, "characters": 5}, rec.Totals())
}

func TestCharLengthKeepsIDsVerbatim(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "docs.jsonl")
	dst := filepath.Join(dir, "attrs.jsonl")
	require.NoError(t, os.WriteFile(src, []byte(`{"id":9007199254740993,"text":"héllo"}
{"id":1.50,"text":"ab"}
{"text":"abc"}
`), 0o644))

	core, logs := observer.New(zap.DebugLevel)
	err := NewCharLength(storage.NewLocal(), zap.New(core)).Process(context.Background(), src, dst, nil, progress.Discard)
	require.NoError(t, err)

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], `{"id":9007199254740993,`), lines[0])
	assert.True(t, strings.HasPrefix(lines[1], `{"id":1.50,`), lines[1])
	assert.JSONEq(t, `{"id":null,"attributes":{"char_length__char_length":[[0,3,3]]}}`, lines[2])

	entries := logs.FilterMessage("Tagged file").All()
	require.Len(t, entries, 1)
	assert.Equal(t, src, entries[0].ContextMap()["source"])
}

func TestCharLengthKwargs(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "docs.jsonl")
	dst := filepath.Join(dir, "attrs.jsonl")
	require.NoError(t, os.WriteFile(src, []byte(`{"doc_id":"x","body":"abc"}`+"\n"), 0o644))

	kwargs := map[string]any{"text_field": "body", "id_field": "doc_id", "attribute_prefix": "v1"}
	err := NewCharLength(storage.NewLocal(), nil).Process(context.Background(), src, dst, kwargs, progress.Discard)
	require.NoError(t, err)

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"x","attributes":{"v1__char_length":[[0,3,3]]}}`, strings.TrimSpace(string(data)))
}

func TestCharLengthErrors(t *testing.T) {
	dir := t.TempDir()
	fs := storage.NewLocal()
	unit := NewCharLength(fs, nil)

	bad := filepath.Join(dir, "bad.jsonl")
	require.NoError(t, os.WriteFile(bad, []byte("{\"text\":\"ok\"}\nnot json\n"), 0o644))
	err := unit.Process(context.Background(), bad, filepath.Join(dir, "o1"), nil, progress.Discard)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
	assert.Equal(t, errors.Kind(""), errors.KindOf(err), "malformed input is not retryable")

	missing := filepath.Join(dir, "missing.jsonl")
	require.NoError(t, os.WriteFile(missing, []byte(`{"id":1}`+"\n"), 0o644))
	err = unit.Process(context.Background(), missing, filepath.Join(dir, "o2"), nil, progress.Discard)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"text"`)

	err = unit.Process(context.Background(), missing, filepath.Join(dir, "o3"), map[string]any{"text_field": 3}, progress.Discard)
	require.Error(t, err)

	null := filepath.Join(dir, "null.jsonl")
	require.NoError(t, os.WriteFile(null, []byte(`{"id":1,"text":null}`+"\n"), 0o644))
	err = unit.Process(context.Background(), null, filepath.Join(dir, "o4"), nil, progress.Discard)
	require.Error(t, err)
}
