package progress

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultReportEvery is the delta count after which finished files are drained.
	DefaultReportEvery = 10_000
	// DefaultReportInterval is how often finished files are drained and progress rendered.
	DefaultReportInterval = time.Second

	deltaBuffer = 1024
)

// Observer receives aggregated increments, typically a metrics collector.
type Observer interface {
	ObserveProgress(key string, n int64)
	ObserveFiles(n int64)
}

// AggregatorConfig configures an Aggregator
type AggregatorConfig struct {
	Keys        []string
	Interval    time.Duration
	ReportEvery int
	Renderer    Renderer
	Observer    Observer
	Logger      *zap.Logger
}

// Aggregator is the single consumer of progress deltas produced by workers.
//
// Workers publish through Reporter and announce finished source files with
// FileDone. The aggregation loop applies deltas in arrival order; finished files
// are drained into a separate counter every Interval or every ReportEvery deltas.
// Closing the delta channel (Stop) ends the loop.
type Aggregator struct {
	keys        []string
	tracker     *Tracker
	renderer    Renderer
	observer    Observer
	logger      *zap.Logger
	interval    time.Duration
	reportEvery int

	deltas chan Delta
	done   chan struct{}

	sendMu  sync.RWMutex
	stopped bool

	filesMu sync.Mutex
	pending []string

	startOnce sync.Once
	stopOnce  sync.Once
	final     Snapshot
}

// NewAggregator validates the counter keys and builds an aggregator
func NewAggregator(cfg AggregatorConfig) (*Aggregator, error) {
	if err := ValidateKeys(cfg.Keys); err != nil {
		return nil, err
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultReportInterval
	}
	if cfg.ReportEvery <= 0 {
		cfg.ReportEvery = DefaultReportEvery
	}
	if cfg.Renderer == nil {
		cfg.Renderer = NopRenderer{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Aggregator{
		keys:        cfg.Keys,
		tracker:     NewTracker(cfg.Keys),
		renderer:    cfg.Renderer,
		observer:    cfg.Observer,
		logger:      cfg.Logger,
		interval:    cfg.Interval,
		reportEvery: cfg.ReportEvery,
		deltas:      make(chan Delta, deltaBuffer),
		done:        make(chan struct{}),
	}, nil
}

// Reporter returns a Reporter feeding this aggregator
func (a *Aggregator) Reporter() Reporter {
	return newChannelReporter(a.keys, a)
}

// Tracker exposes the underlying counters
func (a *Aggregator) Tracker() *Tracker {
	return a.tracker
}

func (a *Aggregator) send(d Delta) error {
	a.sendMu.RLock()
	defer a.sendMu.RUnlock()
	if a.stopped {
		return ErrStopped
	}
	a.deltas <- d
	return nil
}

// FileDone queues a fully processed source file. It never blocks on the loop.
func (a *Aggregator) FileDone(source string) {
	a.filesMu.Lock()
	a.pending = append(a.pending, source)
	a.filesMu.Unlock()
}

// Start launches the aggregation loop with totalFiles expected source files
func (a *Aggregator) Start(totalFiles int64) {
	a.startOnce.Do(func() {
		a.tracker.SetTotalFiles(totalFiles)
		a.renderer.Begin(totalFiles)
		go a.loop()
	})
}

// Stop closes the delta channel, waits for the loop to drain it, and returns
// the final snapshot. Stop is idempotent.
func (a *Aggregator) Stop() Snapshot {
	a.startOnce.Do(func() {
		go a.loop()
	})
	a.stopOnce.Do(func() {
		a.sendMu.Lock()
		a.stopped = true
		close(a.deltas)
		a.sendMu.Unlock()
		<-a.done
	})
	return a.final
}

func (a *Aggregator) loop() {
	defer close(a.done)

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	sinceDrain := 0
	for {
		select {
		case d, ok := <-a.deltas:
			if !ok {
				a.drainFiles()
				a.final = a.tracker.Snapshot()
				a.renderer.Finish(a.final)
				return
			}
			a.apply(d)
			sinceDrain++
			if sinceDrain >= a.reportEvery {
				a.drainFiles()
				sinceDrain = 0
			}
		case <-ticker.C:
			a.drainFiles()
			sinceDrain = 0
			a.renderer.Update(a.tracker.Snapshot())
		}
	}
}

func (a *Aggregator) apply(d Delta) {
	if len(d.Values) != len(a.keys) {
		a.logger.Warn("Dropping misaligned progress delta",
			zap.Int("values", len(d.Values)),
			zap.Int("keys", len(a.keys)))
		return
	}
	a.tracker.Add(d.Values)
	if a.observer == nil {
		return
	}
	for i, v := range d.Values {
		if v > 0 {
			a.observer.ObserveProgress(a.keys[i], v)
		}
	}
}

func (a *Aggregator) drainFiles() {
	a.filesMu.Lock()
	n := len(a.pending)
	a.pending = a.pending[:0]
	a.filesMu.Unlock()

	if n == 0 {
		return
	}
	a.tracker.AddFiles(int64(n))
	if a.observer != nil {
		a.observer.ObserveFiles(int64(n))
	}
}
