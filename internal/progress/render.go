package progress

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
)

// Renderer displays aggregated progress. All methods are called from the
// aggregation goroutine.
type Renderer interface {
	Begin(totalFiles int64)
	Update(s Snapshot)
	Finish(s Snapshot)
}

// NewRenderer picks a bar when stderr is a terminal and periodic log lines otherwise.
func NewRenderer(enabled bool, logger *zap.Logger) Renderer {
	if !enabled {
		return NopRenderer{}
	}
	if IsTerminalSupported() {
		return NewBarRenderer(os.Stderr)
	}
	return NewLogRenderer(logger, 30*time.Second)
}

// IsTerminalSupported checks if stderr is an interactive terminal
func IsTerminalSupported() bool {
	return isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
}

// NopRenderer renders nothing
type NopRenderer struct{}

func (NopRenderer) Begin(int64)     {}
func (NopRenderer) Update(Snapshot) {}
func (NopRenderer) Finish(Snapshot) {}

// BarRenderer draws a files progress bar whose description lists every counter.
type BarRenderer struct {
	w   io.Writer
	bar *progressbar.ProgressBar
}

// NewBarRenderer creates a bar renderer writing to w
func NewBarRenderer(w io.Writer) *BarRenderer {
	return &BarRenderer{w: w}
}

func (r *BarRenderer) Begin(totalFiles int64) {
	if totalFiles <= 0 {
		totalFiles = -1
	}
	r.bar = progressbar.NewOptions64(totalFiles,
		progressbar.OptionSetDescription("files"),
		progressbar.OptionSetWriter(r.w),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}

func (r *BarRenderer) Update(s Snapshot) {
	if r.bar == nil {
		return
	}
	r.bar.Describe(s.String())
	_ = r.bar.Set64(s.Files)
}

func (r *BarRenderer) Finish(s Snapshot) {
	if r.bar == nil {
		return
	}
	r.Update(s)
	_ = r.bar.Finish()
	_, _ = io.WriteString(r.w, "\n")
}

// LogRenderer writes a progress summary through the logger at most once per period.
type LogRenderer struct {
	logger *zap.Logger
	every  time.Duration

	mu   sync.Mutex
	last time.Time
}

// NewLogRenderer creates a throttled log renderer
func NewLogRenderer(logger *zap.Logger, every time.Duration) *LogRenderer {
	return &LogRenderer{logger: logger, every: every}
}

func (r *LogRenderer) Begin(totalFiles int64) {
	r.mu.Lock()
	r.last = time.Now()
	r.mu.Unlock()
	r.logger.Info("Processing started", zap.Int64("files", totalFiles))
}

func (r *LogRenderer) Update(s Snapshot) {
	r.mu.Lock()
	if time.Since(r.last) < r.every {
		r.mu.Unlock()
		return
	}
	r.last = time.Now()
	r.mu.Unlock()

	r.logger.Info("Progress", snapshotFields(s)...)
}

func (r *LogRenderer) Finish(s Snapshot) {
	r.logger.Info("Processing finished", snapshotFields(s)...)
}

func snapshotFields(s Snapshot) []zap.Field {
	fields := []zap.Field{
		zap.Int64("files", s.Files),
		zap.Int64("total_files", s.TotalFiles),
		zap.String("elapsed", FormatDuration(s.Elapsed)),
	}
	for i, k := range s.Keys {
		fields = append(fields,
			zap.Int64(k, s.Totals[i]),
			zap.String(k+"_per_sec", FormatRate(s.AverageRates[i])),
		)
	}
	return fields
}
