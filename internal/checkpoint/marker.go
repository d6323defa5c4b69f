package checkpoint

import (
	"context"
	"io"
	"time"

	"shardwork/internal/errors"
	"shardwork/internal/storage"
)

// MetadataSuffix is appended to every completion marker path.
const MetadataSuffix = ".done.txt"

// MarkerPath returns the completion marker location for rel under metaPrefix.
func MarkerPath(metaPrefix, rel string) string {
	return storage.AddSuffix(metaPrefix, rel) + MetadataSuffix
}

// WriteMarker records that the item behind path finished successfully at ts.
// The content is informational; only the marker's presence is ever checked.
func WriteMarker(ctx context.Context, fs storage.FileSystem, path string, ts time.Time) error {
	w, err := fs.Create(ctx, path)
	if err != nil {
		return errors.Wrap(err, "creating completion marker")
	}
	if _, err := io.WriteString(w, ts.Format(time.RFC3339Nano)); err != nil {
		w.Close()
		return errors.Wrap(err, "writing completion marker")
	}
	if err := w.Close(); err != nil {
		return errors.Wrap(err, "closing completion marker")
	}
	return nil
}
