package worker

import (
	"context"

	"shardwork/internal/progress"
)

// Unit is the per-file transformation the engine runs.
//
// Process reads src and writes dst. Errors marked with a retryable kind
// (see errors.MarkKind) are retried according to the run's policy; anything
// else fails the item. Counters declares the fixed set of progress keys the
// unit reports through rep.
type Unit interface {
	Kind() string
	Counters() []string
	Process(ctx context.Context, src, dst string, kwargs map[string]any, rep progress.Reporter) error
}
