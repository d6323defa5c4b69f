package progress

import (
	"regexp"
	"sync"

	"shardwork/internal/errors"
)

// ErrUnknownCounter is returned when a delta names a counter the unit never declared.
var ErrUnknownCounter = errors.New("unknown progress counter")

// ErrStopped is returned when a delta arrives after the aggregator stopped.
var ErrStopped = errors.New("progress aggregator stopped")

var keyPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// ValidateKeys checks a declared counter key set: non-empty, unique, and
// usable as a metric label value.
func ValidateKeys(keys []string) error {
	if len(keys) == 0 {
		return errors.Configf("a unit must declare at least one progress counter")
	}
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if !keyPattern.MatchString(k) {
			return errors.Configf("invalid progress counter name %q (expected [a-z_][a-z0-9_]*)", k)
		}
		if _, dup := seen[k]; dup {
			return errors.Configf("duplicate progress counter %q", k)
		}
		seen[k] = struct{}{}
	}
	return nil
}

// Delta is one batch of increments, positionally aligned with the declared keys.
type Delta struct {
	Values []int64
}

// Reporter is handed to a unit of work to publish counter increments.
type Reporter interface {
	// Increment adds values to the named counters. Omitted counters are unchanged.
	Increment(values map[string]int64) error
}

// channelReporter converts named increments into aligned deltas on a shared channel.
type channelReporter struct {
	keys  []string
	index map[string]int
	agg   *Aggregator
}

func newChannelReporter(keys []string, agg *Aggregator) *channelReporter {
	index := make(map[string]int, len(keys))
	for i, k := range keys {
		index[k] = i
	}
	return &channelReporter{keys: keys, index: index, agg: agg}
}

func (r *channelReporter) Increment(values map[string]int64) error {
	if len(values) == 0 {
		return nil
	}

	delta := Delta{Values: make([]int64, len(r.keys))}
	for k, v := range values {
		i, ok := r.index[k]
		if !ok {
			return errors.Wrapf(ErrUnknownCounter, "%q (declared: %v)", k, r.keys)
		}
		if v < 0 {
			return errors.Newf("negative increment %d for counter %q", v, k)
		}
		delta.Values[i] = v
	}
	return r.agg.send(delta)
}

// Discard is a Reporter that drops every increment.
var Discard Reporter = discard{}

type discard struct{}

func (discard) Increment(map[string]int64) error { return nil }

// Recorder is a Reporter that sums increments in memory. It is safe for
// concurrent use and handy when running a unit outside the engine.
type Recorder struct {
	mu     sync.Mutex
	totals map[string]int64
}

// NewRecorder creates an empty Recorder
func NewRecorder() *Recorder {
	return &Recorder{totals: make(map[string]int64)}
}

func (r *Recorder) Increment(values map[string]int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, v := range values {
		r.totals[k] += v
	}
	return nil
}

// Totals returns a copy of the accumulated counters
func (r *Recorder) Totals() map[string]int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]int64, len(r.totals))
	for k, v := range r.totals {
		out[k] = v
	}
	return out
}
