package app

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"shardwork/internal/checkpoint"
	"shardwork/internal/config"
	"shardwork/internal/errors"
	"shardwork/internal/metrics"
	"shardwork/internal/progress"
	"shardwork/internal/storage"
	"shardwork/internal/worker"
)

// Options carries the collaborators an Engine reports to. Zero values are
// replaced with no-op implementations.
type Options struct {
	Logger   *zap.Logger
	Metrics  *metrics.Collector
	Ledger   checkpoint.Store
	Renderer progress.Renderer
}

// Summary describes one run
type Summary struct {
	RunID       string
	Resolved    int
	AlreadyDone int
	Filtered    int
	Completed   int
	Failed      int
	Abandoned   int
	NothingToDo bool
	Counters    map[string]int64
	Files       int64
	Elapsed     time.Duration
}

// Engine resolves a processor's files and runs a unit over them
type Engine struct {
	cfg       config.Processor
	unit      worker.Unit
	opts      Options
	resolver  *PathResolver
	processor *worker.Processor
}

// NewEngine validates cfg against unit and wires the run components
func NewEngine(cfg config.Processor, unit worker.Unit, fs storage.FileSystem, opts Options) (*Engine, error) {
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if unit.Kind() != cfg.Unit {
		return nil, errors.Configf("processor is configured for unit %q but got %q", cfg.Unit, unit.Kind())
	}
	if err := progress.ValidateKeys(unit.Counters()); err != nil {
		return nil, errors.Wrapf(err, "unit %s", unit.Kind())
	}

	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	if opts.Renderer == nil {
		opts.Renderer = progress.NopRenderer{}
	}

	policy := worker.RetryPolicy{
		MaxTries:        cfg.Retry.MaxTries,
		MaxTime:         cfg.Retry.MaxTime,
		InitialInterval: cfg.Retry.InitialInterval,
		Retryable:       errors.ParseKinds(cfg.Retry.Retryable),
	}

	return &Engine{
		cfg:       cfg,
		unit:      unit,
		opts:      opts,
		resolver:  NewPathResolver(fs, opts.Logger),
		processor: worker.NewProcessor(unit, fs, policy, opts.Metrics, opts.Logger),
	}, nil
}

// Run processes every pending file once. kwargs override each group's kwargs.
// A run where every matched file already has a marker returns a summary with
// NothingToDo set and no error.
func (e *Engine) Run(ctx context.Context, kwargs map[string]any) (Summary, error) {
	start := time.Now()
	summary := Summary{RunID: uuid.NewString()}
	logger := e.opts.Logger.With(zap.String("run_id", summary.RunID), zap.String("unit", e.unit.Kind()))

	res, err := e.resolver.Resolve(ctx, e.cfg, kwargs)
	if err != nil {
		return summary, err
	}

	summary.Resolved = res.Set.Len()
	summary.AlreadyDone = res.AlreadyDone
	summary.Filtered = res.Filtered
	e.opts.Metrics.AddSkipped(res.AlreadyDone)
	e.opts.Metrics.AddFiltered(res.Filtered)

	logger.Info("Found files to process",
		zap.Int("files", summary.Resolved),
		zap.Int("already_processed", res.AlreadyDone),
		zap.Int("filtered", res.Filtered))

	if res.Set.Empty() {
		summary.Elapsed = time.Since(start)
		if res.AlreadyDone > 0 {
			logger.Info("All files already processed; skipping.")
			summary.NothingToDo = true
			return summary, nil
		}
		return summary, errors.WithHint(errors.ErrNoWork, "check the source globs and path filters")
	}

	agg, err := progress.NewAggregator(progress.AggregatorConfig{
		Keys:        e.unit.Counters(),
		Interval:    e.cfg.ReportInterval,
		ReportEvery: e.cfg.ReportEvery,
		Renderer:    e.opts.Renderer,
		Observer:    e.opts.Metrics,
		Logger:      logger,
	})
	if err != nil {
		return summary, err
	}
	agg.Start(int64(summary.Resolved))

	pool := worker.NewPool(worker.PoolConfig{
		Workers:   e.cfg.Workers,
		BatchSize: e.cfg.BatchSize,
		Debug:     e.cfg.Debug,
		RunID:     summary.RunID,
	}, e.processor, e.opts.Ledger, e.opts.Metrics, logger)

	result, runErr := pool.Run(ctx, res.Set, agg)
	snap := agg.Stop()

	summary.Completed = result.Completed
	summary.Failed = result.Failed
	summary.Abandoned = result.Abandoned
	summary.Counters = snap.Counters()
	summary.Files = snap.Files
	summary.Elapsed = time.Since(start)

	if runErr != nil {
		return summary, runErr
	}

	logger.Info("Run completed",
		zap.Int("files", summary.Completed),
		zap.Any("counters", summary.Counters),
		zap.String("elapsed", progress.FormatDuration(summary.Elapsed)))
	return summary, nil
}
