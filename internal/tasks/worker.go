package tasks

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/angelmondragon/shopfeed-backend/pkg/config"
	"github.com/angelmondragon/shopfeed-backend/pkg/db/models"
	dbtypes "github.com/angelmondragon/shopfeed-backend/pkg/db/types"
	pkgerrors "github.com/angelmondragon/shopfeed-backend/pkg/errors"
	"github.com/angelmondragon/shopfeed-backend/pkg/logger"
	"github.com/angelmondragon/shopfeed-backend/pkg/metrics"
	"golang.org/x/sync/errgroup"
)

const (
	defaultWorkers      = 4
	defaultPollInterval = 500 * time.Millisecond
	defaultLease        = 5 * time.Minute
	defaultMaxAttempts  = 5
	defaultRetryDelay   = 5 * time.Second
	maxBackoff          = 10 * time.Second
	jitterWindow        = 250 * time.Millisecond

	outcomeSucceeded = "succeeded"
	outcomeFailed    = "failed"
	outcomeRetried   = "retried"
)

// WorkerParams wires a worker pool.
type WorkerParams struct {
	Config     config.TasksConfig
	Logger     *logger.Logger
	Repository Repository
	Registry   *Registry
	Metrics    *metrics.TaskMetrics
	Clock      func() time.Time
}

// Worker consumes the task queue with a fixed number of goroutines.
type Worker struct {
	logg        *logger.Logger
	repo        Repository
	registry    *Registry
	metrics     *metrics.TaskMetrics
	now         func() time.Time
	workers     int
	poll        time.Duration
	lease       time.Duration
	maxAttempts int
	retryDelay  time.Duration
}

// NewWorker validates params and applies defaults.
func NewWorker(params WorkerParams) (*Worker, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.Repository == nil {
		return nil, errors.New("task repository is required")
	}
	if params.Registry == nil {
		return nil, errors.New("handler registry is required")
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}

	cfg := params.Config
	w := &Worker{
		logg:        params.Logger,
		repo:        params.Repository,
		registry:    params.Registry,
		metrics:     params.Metrics,
		now:         clock,
		workers:     cfg.Workers,
		poll:        cfg.PollInterval,
		lease:       cfg.LeaseDuration,
		maxAttempts: cfg.MaxAttempts,
		retryDelay:  cfg.RetryDelay,
	}
	if w.workers <= 0 {
		w.workers = defaultWorkers
	}
	if w.poll <= 0 {
		w.poll = defaultPollInterval
	}
	if w.lease <= 0 {
		w.lease = defaultLease
	}
	if w.maxAttempts <= 0 {
		w.maxAttempts = defaultMaxAttempts
	}
	if w.retryDelay <= 0 {
		w.retryDelay = defaultRetryDelay
	}
	return w, nil
}

// Run blocks until ctx is canceled, polling the queue from every goroutine.
func (w *Worker) Run(ctx context.Context) error {
	w.logg.Info(w.logg.WithField(ctx, "workers", w.workers), "task worker pool starting")

	group, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < w.workers; i++ {
		slot := i
		group.Go(func() error {
			return w.loop(w.logg.WithField(groupCtx, "worker_slot", slot))
		})
	}
	err := group.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (w *Worker) loop(ctx context.Context) error {
	backoff := w.poll
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		processed, err := w.ProcessNext(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logg.Error(ctx, "task.claim_failed", err)
			backoff = nextBackoff(backoff, w.poll, maxBackoff)
			if err := sleep(ctx, withJitter(backoff)); err != nil {
				return err
			}
			continue
		}

		backoff = w.poll
		if processed {
			continue
		}
		if err := sleep(ctx, withJitter(w.poll)); err != nil {
			return err
		}
	}
}

// ProcessNext claims and executes at most one task. It reports whether a task was claimed.
func (w *Worker) ProcessNext(ctx context.Context) (bool, error) {
	task, err := w.repo.Claim(ctx, w.now().UTC(), w.lease)
	if err != nil {
		return false, fmt.Errorf("claim task: %w", err)
	}
	if task == nil {
		return false, nil
	}

	ctx = w.logg.WithTaskID(ctx, task.ID.String())
	ctx = w.logg.WithFields(ctx, map[string]any{
		"task_kind": task.Kind,
		"attempt":   task.Attempts,
	})
	w.logg.Info(ctx, "task.claimed")

	started := w.now()
	result, runErr := w.execute(ctx, task)
	elapsed := w.now().Sub(started)

	if runErr == nil {
		return true, w.succeed(ctx, task, result, elapsed)
	}
	return true, w.fail(ctx, task, runErr, elapsed)
}

func (w *Worker) execute(ctx context.Context, task *models.Task) (result any, err error) {
	handler, ok := w.registry.Lookup(task.Kind)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, fmt.Sprintf("no handler registered for %s", task.Kind))
	}

	defer func() {
		if rec := recover(); rec != nil {
			err = pkgerrors.New(pkgerrors.CodeInternal, fmt.Sprintf("handler panic: %v", rec))
		}
	}()

	runCtx, cancel := context.WithTimeout(ctx, w.lease)
	defer cancel()
	return handler.Handle(runCtx, task)
}

func (w *Worker) succeed(ctx context.Context, task *models.Task, result any, elapsed time.Duration) error {
	doc, err := dbtypes.NewJSONDocument(result)
	if err != nil {
		return w.fail(ctx, task, fmt.Errorf("encode result: %w", err), elapsed)
	}
	if err := w.repo.MarkSucceeded(ctx, task.ID, doc, w.now().UTC()); err != nil {
		return fmt.Errorf("mark task succeeded: %w", err)
	}
	w.metrics.ObserveCompletion(string(task.Kind), outcomeSucceeded, elapsed)
	w.logg.Info(w.logg.WithField(ctx, "duration_ms", elapsed.Milliseconds()), "task.succeeded")
	return nil
}

func (w *Worker) fail(ctx context.Context, task *models.Task, runErr error, elapsed time.Duration) error {
	ctx = w.logg.WithField(ctx, "error", runErr.Error())
	now := w.now().UTC()

	if errors.Is(runErr, ErrRetryLater) {
		if err := w.repo.Requeue(ctx, task.ID, runErr.Error(), now.Add(w.retryDelay)); err != nil {
			return fmt.Errorf("requeue task: %w", err)
		}
		w.metrics.ObserveCompletion(string(task.Kind), outcomeRetried, elapsed)
		w.logg.Info(ctx, "task.deferred")
		return nil
	}

	if retryable(runErr) && task.Attempts < w.maxAttempts {
		delay := w.retryDelay * time.Duration(task.Attempts)
		if err := w.repo.Requeue(ctx, task.ID, runErr.Error(), now.Add(delay)); err != nil {
			return fmt.Errorf("requeue task: %w", err)
		}
		w.metrics.ObserveCompletion(string(task.Kind), outcomeRetried, elapsed)
		w.logg.Warn(ctx, "task.retry")
		return nil
	}

	if err := w.repo.MarkFailed(ctx, task.ID, failureReason(runErr), now); err != nil {
		return fmt.Errorf("mark task failed: %w", err)
	}
	w.metrics.ObserveCompletion(string(task.Kind), outcomeFailed, elapsed)
	w.logg.Warn(ctx, "task.failed")
	return nil
}

// retryable treats typed errors by their metadata and anything untyped as transient.
func retryable(err error) bool {
	typed := pkgerrors.As(err)
	if typed == nil {
		return true
	}
	return pkgerrors.MetadataFor(typed.Code()).Retryable
}

// failureReason renders the message stored on a failed task. Typed errors
// expose their code and public message rather than internal causes.
func failureReason(err error) string {
	typed := pkgerrors.As(err)
	if typed == nil {
		return err.Error()
	}
	meta := pkgerrors.MetadataFor(typed.Code())
	msg := typed.Message()
	if msg == "" {
		msg = meta.PublicMessage
	}
	if meta.HTTPStatus < 500 {
		if cause := errors.Unwrap(typed); cause != nil {
			msg = fmt.Sprintf("%s: %v", msg, cause)
		}
	}
	return fmt.Sprintf("%s: %s", typed.Code(), msg)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func nextBackoff(current, base, max time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + time.Duration(rand.Int63n(int64(jitterWindow)))
}
