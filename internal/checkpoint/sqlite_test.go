package checkpoint

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStoreSaveAndGet(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	rec, err := store.GetItem(ctx, "data/a.jsonl")
	require.NoError(t, err)
	assert.Nil(t, rec)

	require.NoError(t, store.SaveItem(ctx, &ItemRecord{
		Source:      "data/a.jsonl",
		Destination: "out/a.jsonl",
		Metadata:    "meta/a.jsonl.done.txt",
		Status:      StatusFailed,
		Attempts:    3,
		LastError:   "boom",
		RunID:       "run-1",
	}))

	rec, err = store.GetItem(ctx, "data/a.jsonl")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, StatusFailed, rec.Status)
	assert.Equal(t, 3, rec.Attempts)
	assert.Equal(t, "boom", rec.LastError)
	assert.False(t, rec.UpdatedAt.IsZero())

	// a later run overwrites the outcome
	require.NoError(t, store.SaveItem(ctx, &ItemRecord{
		Source:      "data/a.jsonl",
		Destination: "out/a.jsonl",
		Metadata:    "meta/a.jsonl.done.txt",
		Status:      StatusCompleted,
		Attempts:    1,
		RunID:       "run-2",
	}))

	rec, err = store.GetItem(ctx, "data/a.jsonl")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, rec.Status)
	assert.Equal(t, "run-2", rec.RunID)
	assert.Empty(t, rec.LastError)
}

func TestSQLiteStoreQueries(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	for i, status := range []ItemStatus{StatusCompleted, StatusFailed, StatusCompleted, StatusFailed, StatusCompleted} {
		require.NoError(t, store.SaveItem(ctx, &ItemRecord{
			Source:      fmt.Sprintf("data/%d.jsonl", i),
			Destination: fmt.Sprintf("out/%d.jsonl", i),
			Metadata:    fmt.Sprintf("meta/%d.jsonl.done.txt", i),
			Status:      status,
			Attempts:    1,
			RunID:       "run",
		}))
	}

	failed, err := store.ListFailedItems(ctx)
	require.NoError(t, err)
	require.Len(t, failed, 2)
	for _, rec := range failed {
		assert.Equal(t, StatusFailed, rec.Status)
	}

	counts, err := store.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[ItemStatus]int{StatusCompleted: 3, StatusFailed: 2}, counts)
}

func TestSQLiteStoreConcurrentWrites(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, store.SaveItem(ctx, &ItemRecord{
				Source:   fmt.Sprintf("s%d", i),
				Status:   StatusCompleted,
				Attempts: 1,
				RunID:    "run",
			}))
		}(i)
	}
	wg.Wait()

	counts, err := store.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20, counts[StatusCompleted])
}

func TestSQLiteStoreClosed(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	require.NoError(t, store.Close())
	require.NoError(t, store.Close())

	_, err = store.GetItem(context.Background(), "x")
	require.Error(t, err)
}
