package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"fable/internal/config"
	"fable/internal/discover"
	"fable/internal/dispatch"
	"fable/internal/labeling"
	"fable/internal/logging"
	"fable/internal/notifications"
	"fable/internal/output"
	"fable/internal/preflight"
	"fable/internal/progress"
	"fable/internal/queue"
	"fable/internal/schema"
	"fable/internal/services"
	"fable/internal/services/llm"
	"fable/internal/workerpool"
)

var (
	// ErrLocked is returned when another run holds the output directory.
	ErrLocked = errors.New("another fable run is using this output directory")
	// ErrPreflight is returned when a readiness check fails.
	ErrPreflight = errors.New("preflight failed")
)

// LockFile sits next to the progress database.
const LockFile = queue.DatabaseFile + ".lock"

// Options configures a single run.
type Options struct {
	DataDir       string
	NoProgress    bool
	SkipPreflight bool
	// ProgressWriter receives the progress bar. Defaults to stderr.
	ProgressWriter io.Writer
	// Client overrides the vision client, mainly for tests.
	Client labeling.ChatClient
}

// Result describes a finished (or interrupted) run.
type Result struct {
	RunID      string
	Discovered int
	OutputPath string
	Summary    dispatch.Summary
}

// Run labels every pending image under opts.DataDir.
func Run(cmdCtx context.Context, cfg *config.Config, logger *slog.Logger, opts Options) (Result, error) {
	if cfg == nil {
		return Result{}, errors.New("config is required")
	}
	if strings.TrimSpace(opts.DataDir) == "" {
		return Result{}, errors.New("data directory is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	sch, err := resolveSchema(cfg)
	if err != nil {
		return Result{}, err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return Result{}, err
	}

	lock, err := acquireLock(cfg.Paths.OutputDir)
	if err != nil {
		return Result{}, err
	}
	defer func() { _ = lock.Unlock() }()

	ctx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	result := Result{RunID: uuid.NewString(), OutputPath: cfg.OutputPath()}
	ctx = services.WithRunID(ctx, result.RunID)
	logger = logging.WithContext(ctx, logging.NewComponentLogger(logger, "runner"))
	logRunSnapshot(logger, cfg, opts.DataDir)

	if !opts.SkipPreflight {
		if err := runPreflight(ctx, cfg, opts.DataDir, logger); err != nil {
			return result, err
		}
	}

	paths, err := discover.Discover(opts.DataDir, cfg.Configurations.Extensions)
	if err != nil {
		return result, err
	}
	result.Discovered = len(paths)

	store, err := queue.OpenDir(cfg.Paths.OutputDir)
	if err != nil {
		return result, err
	}
	defer store.Close()

	sink, err := output.Open(result.OutputPath, sch)
	if err != nil {
		return result, err
	}
	defer func() {
		if err := sink.Close(); err != nil {
			logger.Warn("close output", logging.Error(err))
		}
	}()

	client := opts.Client
	if client == nil {
		client = llm.NewClient(llm.Config{
			BaseURL:           cfg.LLM.BaseURL,
			Model:             cfg.Configurations.Model,
			TimeoutSeconds:    cfg.LLM.TimeoutSeconds,
			RequestsPerSecond: cfg.LLM.RequestsPerSecond,
		}, llm.WithRetryMaxAttempts(cfg.LLM.RetryAttempts))
	}
	labelOpts := []labeling.Option{labeling.WithLogger(logger)}
	if cfg.Configurations.DetectFaces {
		labelOpts = append(labelOpts, labeling.WithDetector(labeling.NewVisionDetector(client)))
	}
	labeler := labeling.New(opts.DataDir, sch, client, labelOpts...)

	pool := workerpool.New(cfg.Workers.Count, labeler.Process, workerpool.WithLogger(logger))
	defer func() { _ = pool.Close() }()

	notifier, err := notifications.NewService(cfg, logger)
	if err != nil {
		logging.WarnWithContext(logger, "notifications unavailable", "notifications_unavailable",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check notifications.nats_url"),
			logging.String(logging.FieldImpact, "events go only to the transports that connected"),
		)
	}
	defer notifier.Close()

	publish(ctx, notifier, logger, notifications.EventRunStarted, notifications.Payload{
		"run_id":   result.RunID,
		"data_dir": opts.DataDir,
		"total":    len(paths),
	})

	progressOut := opts.ProgressWriter
	if progressOut == nil {
		progressOut = os.Stderr
	}
	reporter := progress.New(progressOut, logger, !opts.NoProgress)

	driver := dispatch.New(store, pool, sink, dispatch.Options{
		BatchSize:   cfg.BatchSize(),
		MaxAttempts: cfg.Workers.MaxAttempts,
		Logger:      logger,
		Progress:    reporter,
	})
	summary, runErr := driver.Run(ctx, paths)
	reporter.Finish()
	result.Summary = summary

	switch {
	case runErr == nil:
		publish(ctx, notifier, logger, notifications.EventRunCompleted, notifications.Payload{
			"run_id":    result.RunID,
			"succeeded": summary.Succeeded,
			"failed":    summary.Failed,
			"records":   summary.Records,
			"duration":  summary.Duration,
		})
	case errors.Is(runErr, context.Canceled):
		logger.Info("run interrupted; pending items resume on the next run",
			logging.String(logging.FieldEventType, "run_interrupted"),
			logging.Int("succeeded", summary.Succeeded),
			logging.Int("interrupted", summary.Interrupted),
		)
	default:
		logging.ErrorWithContext(logger, "run failed", "run_failed",
			logging.Error(runErr),
			logging.String(logging.FieldErrorHint, "check the progress database with fable health"),
		)
		publish(ctx, notifier, logger, notifications.EventRunFailed, notifications.Payload{
			"run_id": result.RunID,
			"error":  runErr.Error(),
		})
	}
	return result, runErr
}

func resolveSchema(cfg *config.Config) (*schema.Schema, error) {
	if err := cfg.RequireAccessories(); err != nil {
		return nil, err
	}
	fields := make([]schema.Field, len(cfg.Accessories))
	for i, acc := range cfg.Accessories {
		fields[i] = schema.Field{Name: acc.Name, Description: acc.Description}
	}
	return schema.New(fields)
}

func acquireLock(dir string) (*flock.Flock, error) {
	lockPath := filepath.Join(dir, LockFile)
	lock := flock.New(lockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", lockPath, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w (%s)", ErrLocked, lockPath)
	}
	return lock, nil
}

func runPreflight(ctx context.Context, cfg *config.Config, dataDir string, logger *slog.Logger) error {
	results := preflight.RunAll(ctx, cfg, dataDir)
	failed := preflight.Failures(results)
	for _, r := range results {
		logger.Debug("preflight check",
			logging.String("check", r.Name),
			logging.Bool("passed", r.Passed),
			logging.String("detail", r.Detail),
		)
	}
	if len(failed) == 0 {
		return nil
	}
	parts := make([]string, len(failed))
	for i, r := range failed {
		parts[i] = r.Name + ": " + r.Detail
	}
	return fmt.Errorf("%w: %s", ErrPreflight, strings.Join(parts, "; "))
}

func publish(ctx context.Context, notifier notifications.Service, logger *slog.Logger, event notifications.Event, payload notifications.Payload) {
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := notifier.Publish(pubCtx, event, payload); err != nil {
		logging.WarnWithContext(logger, "notification failed", "notification_failed",
			logging.Error(err),
			logging.String("event", string(event)),
			logging.String(logging.FieldErrorHint, "check notifications settings"),
			logging.String(logging.FieldImpact, "run continues without this notification"),
		)
	}
}

func logRunSnapshot(logger *slog.Logger, cfg *config.Config, dataDir string) {
	logger.Info("run starting",
		logging.String(logging.FieldEventType, "run_starting"),
		logging.String("data_dir", dataDir),
		logging.String("output", cfg.OutputPath()),
		logging.String("model", cfg.Configurations.Model),
		logging.Int("workers", cfg.Workers.Count),
		logging.Int("batch_size", cfg.BatchSize()),
		logging.Int("max_attempts", cfg.Workers.MaxAttempts),
		logging.Bool("detect_faces", cfg.Configurations.DetectFaces),
		logging.Int("accessories", len(cfg.Accessories)),
		logging.String("store_driver", queue.BuildMode),
	)
}
