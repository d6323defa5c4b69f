package worker

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"shardwork/internal/checkpoint"
	"shardwork/internal/errors"
	"shardwork/internal/metrics"
	"shardwork/internal/progress"
)

// Sink receives progress from workers. progress.Aggregator implements it.
type Sink interface {
	Reporter() progress.Reporter
	FileDone(source string)
}

// PoolConfig contains dispatcher settings
type PoolConfig struct {
	Workers   int
	BatchSize int
	Debug     bool // run sequentially on the calling goroutine
	RunID     string
}

// Result summarizes one dispatch
type Result struct {
	Completed int
	Failed    int
	Abandoned int
}

// Pool dispatches a WorkSet across a bounded set of workers
type Pool struct {
	config    PoolConfig
	processor *Processor
	ledger    checkpoint.Store
	metrics   *metrics.Collector
	logger    *zap.Logger
}

// NewPool creates a new worker pool. ledger may be nil.
func NewPool(config PoolConfig, processor *Processor, ledger checkpoint.Store, m *metrics.Collector, logger *zap.Logger) *Pool {
	if config.Workers < 1 {
		config.Workers = 1
	}
	if config.BatchSize < 1 {
		config.BatchSize = 1
	}
	if m == nil {
		m = processor.metrics
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		config:    config,
		processor: processor,
		ledger:    ledger,
		metrics:   m,
		logger:    logger,
	}
}

// Run processes every item in set. The first unrecoverable failure stops
// dispatch of further chunks; chunks already running finish or fail on their own.
func (p *Pool) Run(ctx context.Context, set WorkSet, sink Sink) (Result, error) {
	var completed, failed atomic.Int64

	var err error
	if p.config.Debug {
		err = p.runSequential(ctx, set, sink, &completed, &failed)
	} else {
		err = p.runParallel(ctx, set, sink, &completed, &failed)
	}

	res := Result{
		Completed: int(completed.Load()),
		Failed:    int(failed.Load()),
	}
	res.Abandoned = set.Len() - res.Completed - res.Failed

	if err != nil && res.Abandoned > 0 {
		p.logger.Warn("Run aborted, items left unprocessed",
			zap.Int("abandoned", res.Abandoned),
			zap.Int("completed", res.Completed),
			zap.Error(err))
	}
	return res, err
}

func (p *Pool) runSequential(ctx context.Context, set WorkSet, sink Sink, completed, failed *atomic.Int64) error {
	logger := p.logger.With(zap.Int("worker_id", 0))
	logger.Debug("Running sequentially", zap.Int("items", set.Len()))
	return p.runChunk(ctx, logger, set, sink, completed, failed)
}

func (p *Pool) runParallel(ctx context.Context, set WorkSet, sink Sink, completed, failed *atomic.Int64) error {
	chunks := set.Partition(p.config.BatchSize)
	size := min(p.config.Workers, len(chunks))
	if size == 0 {
		return nil
	}

	// ids for log correlation; a chunk holds one for its whole lifetime
	ids := make(chan int, size)
	for i := 0; i < size; i++ {
		ids <- i
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(size)

	p.logger.Info("Dispatching work",
		zap.Int("items", set.Len()),
		zap.Int("chunks", len(chunks)),
		zap.Int("workers", size))

	for _, chunk := range chunks {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			// a failure elsewhere may have landed while we waited for a slot
			if gctx.Err() != nil {
				return nil
			}
			id := <-ids
			defer func() { ids <- id }()

			// in-flight chunks keep the parent context so a sibling's failure
			// does not interrupt them
			logger := p.logger.With(zap.Int("worker_id", id))
			return p.runChunk(ctx, logger, chunk, sink, completed, failed)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func (p *Pool) runChunk(ctx context.Context, logger *zap.Logger, chunk WorkSet, sink Sink, completed, failed *atomic.Int64) error {
	rep := sink.Reporter()
	for i := 0; i < chunk.Len(); i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.runItem(ctx, logger, chunk.At(i), rep, sink); err != nil {
			failed.Add(1)
			return err
		}
		completed.Add(1)
	}
	return nil
}

func (p *Pool) runItem(ctx context.Context, logger *zap.Logger, item WorkItem, rep progress.Reporter, sink Sink) error {
	start := time.Now()
	p.metrics.IncInflight()
	defer p.metrics.DecInflight()

	attempts, err := p.processor.process(ctx, item, rep, logger)
	elapsed := time.Since(start)
	p.metrics.ObserveDuration(elapsed)
	p.record(ctx, logger, item, attempts, err)

	if err != nil {
		p.metrics.IncFailed()
		logger.Error("Item failed",
			zap.String("source", item.Source),
			zap.Int("attempts", attempts),
			zap.String("kind", errors.KindName(err)),
			zap.Error(err))
		return errors.Wrapf(err, "processing %s", item.Source)
	}

	p.metrics.IncSuccess()
	sink.FileDone(item.Source)
	logger.Debug("Item completed",
		zap.String("source", item.Source),
		zap.Int("attempts", attempts),
		zap.Duration("duration", elapsed))
	return nil
}

func (p *Pool) record(ctx context.Context, logger *zap.Logger, item WorkItem, attempts int, itemErr error) {
	if p.ledger == nil {
		return
	}

	rec := &checkpoint.ItemRecord{
		Source:      item.Source,
		Destination: item.Destination,
		Metadata:    item.Metadata,
		Status:      checkpoint.StatusCompleted,
		Attempts:    attempts,
		RunID:       p.config.RunID,
	}
	if itemErr != nil {
		rec.Status = checkpoint.StatusFailed
		rec.LastError = itemErr.Error()
	}

	// record outcomes even while the run is being cancelled
	if err := p.ledger.SaveItem(context.WithoutCancel(ctx), rec); err != nil {
		logger.Error("Failed to save ledger record",
			zap.String("source", item.Source),
			zap.Error(err))
	}
}
