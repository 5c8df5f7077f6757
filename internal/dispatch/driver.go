package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"fable/internal/logging"
	"fable/internal/output"
	"fable/internal/queue"
	"fable/internal/services"
	"fable/internal/workerpool"
)

// ErrStalled is returned when a batch produced no state change, which would
// otherwise make the loop spin forever.
var ErrStalled = errors.New("dispatch stalled")

const maxReasonLength = 500

// Store is the persistence surface the driver needs.
type Store interface {
	RegisterBatch(ctx context.Context, paths []string) (int64, error)
	CountPending(ctx context.Context) (int, error)
	FetchPending(ctx context.Context, limit int) ([]string, error)
	MarkDone(ctx context.Context, path string) error
	RecordFailure(ctx context.Context, path, reason string, maxAttempts int) (queue.Status, error)
	Health(ctx context.Context) (queue.HealthSummary, error)
}

// Pool executes one batch and returns an outcome per path in batch order.
type Pool interface {
	Run(ctx context.Context, batch []string) []workerpool.Outcome[output.Record]
}

// Sink receives the records of successful items.
type Sink interface {
	Write(records []output.Record) error
	Sync() error
}

// Progress observes run completion after every committed batch. completed
// counts items settled to done or error.
type Progress interface {
	Update(completed, total int)
}

// Options tunes a Driver.
type Options struct {
	BatchSize   int
	MaxAttempts int
	Logger      *slog.Logger
	Progress    Progress
}

// Summary describes one Run.
type Summary struct {
	Registered      int
	Inserted        int64
	AlreadyComplete int
	Processed       int
	Succeeded       int
	Failed          int
	Retried         int
	Interrupted     int
	Conflicts       int
	Records         int
	Batches         int
	Duration        time.Duration
}

// Driver is the single coordinating loop of a run. It is the only writer to
// the store and the sink while Run executes.
type Driver struct {
	store       Store
	pool        Pool
	sink        Sink
	batchSize   int
	maxAttempts int
	logger      *slog.Logger
	progress    Progress
}

// New builds a Driver. BatchSize and MaxAttempts below one are treated as one.
func New(store Store, pool Pool, sink Sink, opts Options) *Driver {
	d := &Driver{
		store:       store,
		pool:        pool,
		sink:        sink,
		batchSize:   max(opts.BatchSize, 1),
		maxAttempts: max(opts.MaxAttempts, 1),
		logger:      logging.NewComponentLogger(opts.Logger, "dispatch"),
		progress:    opts.Progress,
	}
	if d.progress == nil {
		d.progress = noopProgress{}
	}
	return d
}

type noopProgress struct{}

func (noopProgress) Update(int, int) {}

// Run registers paths and processes pending items until none remain. Store
// failures abort the run. When ctx is cancelled the current batch is
// committed and Run returns ctx.Err(); unfinished items stay pending.
func (d *Driver) Run(ctx context.Context, paths []string) (Summary, error) {
	started := time.Now()
	summary := Summary{Registered: len(paths)}
	err := d.run(ctx, paths, &summary)
	summary.Duration = time.Since(started)
	if err == nil {
		d.logger.Info("queue drained",
			logging.String(logging.FieldEventType, "queue_drained"),
			logging.Int("succeeded", summary.Succeeded),
			logging.Int("failed", summary.Failed),
			logging.Int("records", summary.Records),
			logging.Duration("duration", summary.Duration),
		)
	}
	return summary, err
}

func (d *Driver) run(ctx context.Context, paths []string, summary *Summary) error {
	inserted, err := d.store.RegisterBatch(ctx, paths)
	if err != nil {
		return err
	}
	summary.Inserted = inserted

	health, err := d.store.Health(ctx)
	if err != nil {
		return err
	}
	summary.AlreadyComplete = health.Settled()
	total := health.Total
	completed := summary.AlreadyComplete
	d.logger.Info("items registered",
		logging.String(logging.FieldEventType, "items_registered"),
		logging.Int("registered", len(paths)),
		logging.Int64("inserted", inserted),
		logging.Int("total", total),
		logging.Int("pending", health.Pending),
	)
	d.progress.Update(completed, total)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		pending, err := d.store.CountPending(ctx)
		if err != nil {
			return err
		}
		if pending == 0 {
			return nil
		}

		batch, err := d.store.FetchPending(ctx, d.batchSize)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return fmt.Errorf("%w: %d pending but none fetched", ErrStalled, pending)
		}

		result, err := d.runBatch(ctx, batch)
		summary.add(result)
		if err != nil {
			return err
		}
		completed += result.settled()
		d.progress.Update(completed, total)

		if result.changed() == 0 {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("%w: batch of %d items changed nothing", ErrStalled, len(batch))
		}
	}
}

type batchResult struct {
	succeeded   int
	failed      int
	retried     int
	interrupted int
	conflicts   int
	records     int
}

func (r batchResult) settled() int { return r.succeeded + r.failed }

func (r batchResult) changed() int { return r.succeeded + r.failed + r.retried }

func (s *Summary) add(r batchResult) {
	s.Batches++
	s.Succeeded += r.succeeded
	s.Failed += r.failed
	s.Retried += r.retried
	s.Interrupted += r.interrupted
	s.Conflicts += r.conflicts
	s.Records += r.records
	s.Processed += r.changed()
}

func (d *Driver) runBatch(ctx context.Context, batch []string) (batchResult, error) {
	batchID := uuid.NewString()
	batchCtx := services.WithBatchID(ctx, batchID)
	logger := logging.WithContext(batchCtx, d.logger)
	logger.Debug("batch dispatched", logging.Int("batch_size", len(batch)))

	outcomes := d.pool.Run(batchCtx, batch)

	// Commits must land even when the run is being cancelled.
	commitCtx := context.WithoutCancel(batchCtx)
	result, err := d.commit(commitCtx, ctx, outcomes)
	if err != nil {
		return result, err
	}
	logger.Info("batch committed",
		logging.String(logging.FieldEventType, "batch_committed"),
		logging.Int("batch_size", len(batch)),
		logging.Int("succeeded", result.succeeded),
		logging.Int("failed", result.failed),
		logging.Int("retried", result.retried),
		logging.Int("records", result.records),
	)
	return result, nil
}

// commit applies outcomes in three steps: write every successful item's
// records, sync the sink once, then mark those items done. Failures are
// recorded per item. runCtx is only consulted to classify cancellations.
func (d *Driver) commit(ctx, runCtx context.Context, outcomes []workerpool.Outcome[output.Record]) (batchResult, error) {
	var result batchResult
	written := make([]workerpool.Outcome[output.Record], 0, len(outcomes))
	failures := make([]workerpool.Outcome[output.Record], 0)

	for _, outcome := range outcomes {
		switch {
		case outcome.OK():
			if err := d.sink.Write(outcome.Records); err != nil {
				outcome.Err = err
				failures = append(failures, outcome)
				continue
			}
			written = append(written, outcome)
		case interrupted(runCtx, outcome.Err):
			result.interrupted++
		default:
			failures = append(failures, outcome)
		}
	}

	if len(written) > 0 {
		if err := d.sink.Sync(); err != nil {
			for i := range written {
				written[i].Err = err
			}
			failures = append(failures, written...)
			written = nil
		}
	}

	for _, outcome := range written {
		itemLogger := logging.WithContext(services.WithItemPath(ctx, outcome.Path), d.logger)
		err := d.store.MarkDone(ctx, outcome.Path)
		switch {
		case errors.Is(err, queue.ErrNotPending):
			result.conflicts++
			logging.WarnWithContext(itemLogger, "item changed by another process", "commit_conflict",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "only one fable run may use an output directory"),
				logging.String(logging.FieldImpact, "records for this item may be duplicated in the output"),
			)
		case err != nil:
			return result, err
		default:
			result.succeeded++
			result.records += len(outcome.Records)
			itemLogger.Debug("item done",
				logging.Int("records", len(outcome.Records)),
				logging.Duration("duration", outcome.Duration),
			)
		}
	}

	for _, outcome := range failures {
		if err := d.recordFailure(ctx, outcome, &result); err != nil {
			return result, err
		}
	}
	return result, nil
}

func (d *Driver) recordFailure(ctx context.Context, outcome workerpool.Outcome[output.Record], result *batchResult) error {
	itemLogger := logging.WithContext(services.WithItemPath(ctx, outcome.Path), d.logger)
	maxAttempts := d.maxAttempts
	if !services.Retryable(outcome.Err) {
		maxAttempts = 1
	}

	status, err := d.store.RecordFailure(ctx, outcome.Path, reason(outcome.Err), maxAttempts)
	switch {
	case errors.Is(err, queue.ErrNotPending):
		result.conflicts++
		logging.WarnWithContext(itemLogger, "item changed by another process", "commit_conflict",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "only one fable run may use an output directory"),
		)
		return nil
	case err != nil:
		return err
	}

	hint := services.Hint(outcome.Err)
	if status == queue.StatusError {
		result.failed++
		logging.WarnWithContext(itemLogger, "item failed", "item_failed",
			logging.Error(outcome.Err),
			logging.String(logging.FieldErrorHint, hint),
			logging.String(logging.FieldImpact, "item marked error; use fable retry to queue it again"),
		)
		return nil
	}
	result.retried++
	logging.WarnWithContext(itemLogger, "item attempt failed", "item_retry",
		logging.Error(outcome.Err),
		logging.String(logging.FieldErrorHint, hint),
		logging.String(logging.FieldImpact, "item stays pending for a later batch"),
	)
	return nil
}

func interrupted(runCtx context.Context, err error) bool {
	if runCtx.Err() == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func reason(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if len(msg) > maxReasonLength {
		msg = msg[:maxReasonLength] + "…"
	}
	return msg
}
