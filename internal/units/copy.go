package units

import (
	"context"
	"io"

	"go.uber.org/zap"

	"shardwork/internal/errors"
	"shardwork/internal/progress"
	"shardwork/internal/storage"
)

// CopyKind names the copy unit
const CopyKind = "copy"

// Copy rewrites each source file to its destination document by document,
// converting between plain and gzip by file extension.
type Copy struct {
	fs     storage.FileSystem
	logger *zap.Logger
}

// NewCopy creates a copy unit
func NewCopy(fs storage.FileSystem, logger *zap.Logger) *Copy {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Copy{fs: fs, logger: logger}
}

func (c *Copy) Kind() string { return CopyKind }

func (c *Copy) Counters() []string { return []string{"documents", "bytes"} }

func (c *Copy) Process(ctx context.Context, src, dst string, _ map[string]any, rep progress.Reporter) error {
	r, err := openDocuments(ctx, c.fs, src)
	if err != nil {
		return err
	}
	defer r.Close()

	w, err := createDocuments(ctx, c.fs, dst)
	if err != nil {
		return err
	}

	var docs, size int64
	flush := func() error {
		if docs == 0 && size == 0 {
			return nil
		}
		err := rep.Increment(map[string]int64{"documents": docs, "bytes": size})
		docs, size = 0, 0
		return err
	}

	err = eachLine(ctx, r, func(line []byte) error {
		if _, err := w.Write(line); err != nil {
			return err
		}
		if _, err := io.WriteString(w, "\n"); err != nil {
			return err
		}
		docs++
		size += int64(len(line)) + 1
		if docs >= reportEvery {
			return flush()
		}
		return nil
	})
	if err != nil {
		w.Close()
		return errors.Wrapf(err, "copying %s", src)
	}

	if err := w.Close(); err != nil {
		return errors.Wrapf(err, "finishing %s", dst)
	}

	c.logger.Debug("Copied file", zap.String("source", src), zap.String("destination", dst))
	return flush()
}
