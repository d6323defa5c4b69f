package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"shardwork/internal/checkpoint"
	"shardwork/internal/errors"
	"shardwork/internal/metrics"
	"shardwork/internal/progress"
	"shardwork/internal/storage"
)

// RetryPolicy bounds retries of one item
type RetryPolicy struct {
	MaxTries        int           // total attempts, at least 1
	MaxTime         time.Duration // 0 means no elapsed-time bound
	InitialInterval time.Duration
	Retryable       []errors.Kind
}

// DefaultRetryPolicy tries once
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxTries:        1,
		InitialInterval: 500 * time.Millisecond,
		Retryable:       errors.DefaultRetryable,
	}
}

// Processor runs a unit against one item with retries and writes the
// completion marker after success.
type Processor struct {
	unit    Unit
	fs      storage.FileSystem
	policy  RetryPolicy
	metrics *metrics.Collector
	logger  *zap.Logger
	now     func() time.Time
}

// NewProcessor creates an item processor
func NewProcessor(unit Unit, fs storage.FileSystem, policy RetryPolicy, m *metrics.Collector, logger *zap.Logger) *Processor {
	if policy.MaxTries < 1 {
		policy.MaxTries = 1
	}
	if policy.InitialInterval <= 0 {
		policy.InitialInterval = DefaultRetryPolicy().InitialInterval
	}
	if len(policy.Retryable) == 0 {
		policy.Retryable = errors.DefaultRetryable
	}
	if m == nil {
		m = metrics.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		unit:    unit,
		fs:      fs,
		policy:  policy,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

// Process runs item to completion and returns the number of attempts made.
// On failure no marker is written and the last error is returned.
func (p *Processor) Process(ctx context.Context, item WorkItem, rep progress.Reporter) (int, error) {
	return p.process(ctx, item, rep, p.logger)
}

func (p *Processor) process(ctx context.Context, item WorkItem, rep progress.Reporter, logger *zap.Logger) (int, error) {
	for _, dir := range []string{storage.Parent(item.Destination), storage.Parent(item.Metadata)} {
		if err := p.fs.MkdirAll(ctx, dir); err != nil {
			return 0, errors.Wrap(err, "preparing output directories")
		}
	}

	attempts := 0
	operation := func() error {
		attempts++
		err := p.attempt(ctx, item, rep)
		if err == nil {
			return nil
		}
		if errors.KindOf(err) == errors.Panic || !errors.IsRetryable(err, p.policy.Retryable) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		kind := errors.KindName(err)
		p.metrics.IncRetry(kind)
		logger.Warn("Attempt failed, retrying",
			zap.String("source", item.Source),
			zap.Int("attempt", attempts),
			zap.Duration("wait", wait),
			zap.String("kind", kind),
			zap.Error(err),
		)
	}

	if err := backoff.RetryNotify(operation, p.backOff(ctx), notify); err != nil {
		return attempts, err
	}

	if err := checkpoint.WriteMarker(ctx, p.fs, item.Metadata, p.now().UTC()); err != nil {
		return attempts, err
	}
	return attempts, nil
}

func (p *Processor) backOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.policy.InitialInterval
	exp.MaxElapsedTime = p.policy.MaxTime

	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(p.policy.MaxTries-1)), ctx)
}

// attempt runs the unit once, converting a panic into a failure of kind Panic.
func (p *Processor) attempt(ctx context.Context, item WorkItem, rep progress.Reporter) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.MarkKind(
				errors.Newf("unit %s panicked on %s: %s", p.unit.Kind(), item.Source, fmt.Sprint(r)),
				errors.Panic,
			)
		}
	}()
	return p.unit.Process(ctx, item.Source, item.Destination, item.Kwargs, rep)
}
