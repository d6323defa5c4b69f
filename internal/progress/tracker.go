package progress

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Snapshot is a point-in-time copy of the aggregated progress
type Snapshot struct {
	Keys         []string
	Totals       []int64
	Files        int64
	TotalFiles   int64
	StartTime    time.Time
	Elapsed      time.Duration
	AverageRates []float64 // per key, units/second since start
	CurrentRates []float64 // per key, units/second over the recent window
}

// Total returns the accumulated value of counter key, 0 if unknown
func (s Snapshot) Total(key string) int64 {
	for i, k := range s.Keys {
		if k == key {
			return s.Totals[i]
		}
	}
	return 0
}

// Counters returns the totals keyed by counter name
func (s Snapshot) Counters() map[string]int64 {
	out := make(map[string]int64, len(s.Keys))
	for i, k := range s.Keys {
		out[k] = s.Totals[i]
	}
	return out
}

// String renders the counters and rates on one line
func (s Snapshot) String() string {
	parts := make([]string, 0, len(s.Keys)+1)
	if s.TotalFiles > 0 {
		parts = append(parts, fmt.Sprintf("files: %d/%d", s.Files, s.TotalFiles))
	} else {
		parts = append(parts, fmt.Sprintf("files: %d", s.Files))
	}
	for i, k := range s.Keys {
		parts = append(parts, fmt.Sprintf("%s: %s (%s/s)", k, FormatCount(s.Totals[i]), FormatRate(s.AverageRates[i])))
	}
	return strings.Join(parts, ", ")
}

// Tracker accumulates named counters and derives rates
type Tracker struct {
	mu           sync.RWMutex
	keys         []string
	totals       []int64
	files        int64
	totalFiles   int64
	startTime    time.Time
	speedSamples []speedSample // recent deltas for the current rate
	maxSamples   int
	window       time.Duration
	now          func() time.Time
}

type speedSample struct {
	timestamp time.Time
	values    []int64
}

// NewTracker creates a tracker for the given counter keys
func NewTracker(keys []string) *Tracker {
	t := &Tracker{
		keys:       append([]string(nil), keys...),
		totals:     make([]int64, len(keys)),
		maxSamples: 256,
		window:     5 * time.Second,
		now:        time.Now,
	}
	t.startTime = t.now()
	return t
}

// SetTotalFiles sets the number of source files expected in this run
func (t *Tracker) SetTotalFiles(n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.totalFiles = n
}

// Add applies one delta; values must be aligned with the tracker's keys
func (t *Tracker) Add(values []int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i, v := range values {
		t.totals[i] += v
	}

	t.speedSamples = append(t.speedSamples, speedSample{timestamp: t.now(), values: values})
	if len(t.speedSamples) > t.maxSamples {
		t.speedSamples = t.speedSamples[1:]
	}
}

// AddFiles adds n fully processed source files
func (t *Tracker) AddFiles(n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.files += n
}

// Snapshot returns the current status (thread-safe)
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	now := t.now()
	elapsed := now.Sub(t.startTime)

	s := Snapshot{
		Keys:         t.keys,
		Totals:       append([]int64(nil), t.totals...),
		Files:        t.files,
		TotalFiles:   t.totalFiles,
		StartTime:    t.startTime,
		Elapsed:      elapsed,
		AverageRates: make([]float64, len(t.keys)),
		CurrentRates: make([]float64, len(t.keys)),
	}

	if elapsed > 0 {
		for i, v := range t.totals {
			s.AverageRates[i] = float64(v) / elapsed.Seconds()
		}
	}

	// current rate over the recent window
	cutoff := now.Add(-t.window)
	var first *speedSample
	recent := make([]int64, len(t.keys))
	for i := len(t.speedSamples) - 1; i >= 0; i-- {
		sample := &t.speedSamples[i]
		if sample.timestamp.Before(cutoff) {
			break
		}
		for j, v := range sample.values {
			recent[j] += v
		}
		first = sample
	}
	if first != nil {
		if d := now.Sub(first.timestamp); d > 0 {
			for i, v := range recent {
				s.CurrentRates[i] = float64(v) / d.Seconds()
			}
		}
	}

	return s
}

// FormatCount formats large counts in human readable form
func FormatCount(n int64) string {
	switch {
	case n < 1000:
		return fmt.Sprintf("%d", n)
	case n < 1000*1000:
		return fmt.Sprintf("%.1fk", float64(n)/1000)
	case n < 1000*1000*1000:
		return fmt.Sprintf("%.1fM", float64(n)/(1000*1000))
	default:
		return fmt.Sprintf("%.1fB", float64(n)/(1000*1000*1000))
	}
}

// FormatRate formats a per-second rate
func FormatRate(perSecond float64) string {
	switch {
	case perSecond < 1000:
		return fmt.Sprintf("%.1f", perSecond)
	case perSecond < 1000*1000:
		return fmt.Sprintf("%.1fk", perSecond/1000)
	default:
		return fmt.Sprintf("%.1fM", perSecond/(1000*1000))
	}
}

// FormatDuration formats duration in human readable format
func FormatDuration(d time.Duration) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if hours > 0 {
		return fmt.Sprintf("%dh%dm%ds", hours, minutes, seconds)
	} else if minutes > 0 {
		return fmt.Sprintf("%dm%ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}
