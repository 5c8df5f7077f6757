// Package progress reports run completion to the operator.
//
// On an interactive terminal a progress bar is drawn on stderr. Otherwise,
// and when the bar is disabled, completion is logged at sampled percentage
// steps so log files stay readable.
package progress

import (
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"

	"fable/internal/logging"
)

// Reporter observes completed/total counts. Implementations are safe for use
// from one goroutine at a time.
type Reporter interface {
	Update(completed, total int)
	Finish()
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// New returns a bar on w when enabled and w is a terminal, otherwise a
// sampled log reporter.
func New(w io.Writer, logger *slog.Logger, enabled bool) Reporter {
	if enabled && IsTerminal(w) {
		return NewBar(w)
	}
	return NewLog(logger, 10)
}

// Bar draws a terminal progress bar.
type Bar struct {
	w    io.Writer
	once sync.Once
	bar  *progressbar.ProgressBar
}

// NewBar returns a bar rendering to w. The bar is created on the first update
// so its maximum matches the registered total.
func NewBar(w io.Writer) *Bar {
	return &Bar{w: w}
}

func (b *Bar) init(total int) {
	b.once.Do(func() {
		b.bar = progressbar.NewOptions(total,
			progressbar.OptionSetWriter(b.w),
			progressbar.OptionSetDescription("Labeling"),
			progressbar.OptionShowCount(),
			progressbar.OptionSetItsString("img"),
			progressbar.OptionShowIts(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionSetRenderBlankState(true),
			progressbar.OptionOnCompletion(func() { _, _ = io.WriteString(b.w, "\n") }),
		)
	})
}

// Update implements Reporter.
func (b *Bar) Update(completed, total int) {
	b.init(total)
	if b.bar.GetMax() != total {
		b.bar.ChangeMax(total)
	}
	_ = b.bar.Set(completed)
}

// Finish completes the bar.
func (b *Bar) Finish() {
	if b.bar != nil {
		_ = b.bar.Finish()
	}
}

// Log reports progress as info log lines at percentage steps.
type Log struct {
	logger  *slog.Logger
	sampler *logging.ProgressSampler
}

// NewLog returns a reporter that logs each time completion crosses a
// multiple of step percent.
func NewLog(logger *slog.Logger, step float64) *Log {
	return &Log{
		logger:  logging.NewComponentLogger(logger, "progress"),
		sampler: logging.NewProgressSampler(step),
	}
}

// Update implements Reporter.
func (l *Log) Update(completed, total int) {
	if total <= 0 {
		return
	}
	percent := float64(completed) * 100 / float64(total)
	if !l.sampler.ShouldLog(percent) {
		return
	}
	l.logger.Info("progress",
		logging.String(logging.FieldEventType, "progress"),
		logging.Int("completed", completed),
		logging.Int("total", total),
		logging.Float64(logging.FieldProgressPercent, percent),
	)
}

// Finish implements Reporter.
func (l *Log) Finish() {}
