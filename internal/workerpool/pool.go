// Package workerpool runs a per-item callback over batches of paths with a
// fixed number of long-lived workers.
//
// The pool is created once per run and reused for every batch. Run hands a
// batch to the workers and blocks until each item has an outcome, so batches
// never overlap.
package workerpool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

var (
	// ErrPanic wraps a panic recovered from the callback.
	ErrPanic = errors.New("callback panicked")
	// ErrClosed is reported for every item handed to a closed pool.
	ErrClosed = errors.New("worker pool closed")
)

// Func processes one path and returns the records it produced.
type Func[R any] func(ctx context.Context, path string) ([]R, error)

// Outcome is the result of one callback invocation.
type Outcome[R any] struct {
	Path     string
	Records  []R
	Err      error
	Duration time.Duration
}

// OK reports whether the callback succeeded.
func (o Outcome[R]) OK() bool { return o.Err == nil }

// Option configures a Pool.
type Option func(*settings)

type settings struct {
	logger *slog.Logger
}

// WithLogger sets the logger used for recovered panics.
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

type task[R any] struct {
	ctx     context.Context
	path    string
	index   int
	results []Outcome[R]
	wg      *sync.WaitGroup
}

// Pool is a fixed set of workers fed through a channel.
type Pool[R any] struct {
	fn      Func[R]
	workers int
	logger  *slog.Logger

	tasks chan task[R]
	group errgroup.Group

	mu     sync.RWMutex
	closed bool
}

// New starts workers goroutines running fn. workers below one is treated as one.
func New[R any](workers int, fn Func[R], opts ...Option) *Pool[R] {
	cfg := settings{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(&cfg)
	}
	workers = max(workers, 1)
	p := &Pool[R]{
		fn:      fn,
		workers: workers,
		logger:  cfg.logger,
		tasks:   make(chan task[R]),
	}
	for range workers {
		p.group.Go(p.loop)
	}
	return p
}

// Workers returns the number of worker goroutines.
func (p *Pool[R]) Workers() int { return p.workers }

// Run processes batch and returns one outcome per path, in batch order. At
// most Workers callbacks run at once. Items whose turn comes after ctx is
// cancelled are not started and report ctx.Err().
func (p *Pool[R]) Run(ctx context.Context, batch []string) []Outcome[R] {
	results := make([]Outcome[R], len(batch))
	if len(batch) == 0 {
		return results
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		for i, path := range batch {
			results[i] = Outcome[R]{Path: path, Err: ErrClosed}
		}
		return results
	}

	var wg sync.WaitGroup
	wg.Add(len(batch))
	for i, path := range batch {
		p.tasks <- task[R]{ctx: ctx, path: path, index: i, results: results, wg: &wg}
	}
	wg.Wait()
	return results
}

// Close stops the workers after in-flight batches finish. It is safe to call
// more than once.
func (p *Pool[R]) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()
	return p.group.Wait()
}

func (p *Pool[R]) loop() error {
	for t := range p.tasks {
		t.results[t.index] = p.execute(t.ctx, t.path)
		t.wg.Done()
	}
	return nil
}

func (p *Pool[R]) execute(ctx context.Context, path string) (out Outcome[R]) {
	out.Path = path
	if err := ctx.Err(); err != nil {
		out.Err = err
		return out
	}
	start := time.Now()
	defer func() {
		out.Duration = time.Since(start)
		if r := recover(); r != nil {
			p.logger.Error("callback panic recovered",
				slog.String("item_path", path),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			out.Records = nil
			out.Err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()
	out.Records, out.Err = p.fn(ctx, path)
	return out
}
