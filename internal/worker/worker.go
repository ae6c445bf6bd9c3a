// Package worker implements the poll loop, claim-and-dispatch, bounded
// concurrency, per-job timeout, and shutdown drain described by the
// Worker engine. It generalizes the teacher's semaphore-channel
// runExecutor and ticker-driven scheduler loop into a single engine that
// both schedules and executes against the Queue contract.
package worker

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/mcintyjp/microservice-worker/internal/actions"
	"github.com/mcintyjp/microservice-worker/internal/apperrors"
	"github.com/mcintyjp/microservice-worker/internal/container"
	"github.com/mcintyjp/microservice-worker/internal/health"
	"github.com/mcintyjp/microservice-worker/internal/metrics"
	"github.com/mcintyjp/microservice-worker/internal/observability"
	"github.com/mcintyjp/microservice-worker/internal/queue"
)

const jobQueueHealthCheck = "job_queue"

// shutdownInterruptGrace bounds how long the drain loop waits for an
// interrupted handler's goroutine to persist its SHUTDOWN_INTERRUPTED
// result after its context is cancelled, once ShutdownTimeout itself has
// already elapsed.
const shutdownInterruptGrace = 2 * time.Second

// Config holds the engine's scheduling parameters.
type Config struct {
	PollInterval      time.Duration
	MaxConcurrentJobs int
	JobTimeout        time.Duration
	ShutdownTimeout   time.Duration
	WorkerID          string
}

// inFlightJob tracks one dispatched job's cancel func so the drain loop can
// cut it short at the shutdown deadline, and whether that cancellation was
// shutdown-triggered rather than an ordinary per-job timeout.
type inFlightJob struct {
	cancel      context.CancelFunc
	interrupted atomicBool
}

// Engine is the Worker engine: a single poll-loop goroutine that launches
// bounded dispatch goroutines against claimed jobs.
type Engine struct {
	cfg Config

	queue     queue.Queue
	actions   *actions.Registry
	container *container.Container
	health    *health.Registry
	metrics   *metrics.Collector
	logger    *observability.Logger

	semaphore chan struct{}

	mu     sync.Mutex
	active map[string]*inFlightJob
}

func New(
	cfg Config,
	q queue.Queue,
	actionRegistry *actions.Registry,
	svcContainer *container.Container,
	healthRegistry *health.Registry,
	metricsCollector *metrics.Collector,
	logger *observability.Logger,
) *Engine {
	healthRegistry.Register(jobQueueHealthCheck)

	return &Engine{
		cfg:       cfg,
		queue:     q,
		actions:   actionRegistry,
		container: svcContainer,
		health:    healthRegistry,
		metrics:   metricsCollector,
		logger:    logger,
		semaphore: make(chan struct{}, cfg.MaxConcurrentJobs),
		active:    make(map[string]*inFlightJob),
	}
}

// Run blocks, polling and dispatching jobs until ctx is cancelled, then
// drains in-flight work before returning: up to ShutdownTimeout for jobs
// to finish, then up to shutdownInterruptGrace for the interrupted ones to
// record their failure.
func (e *Engine) Run(ctx context.Context) {
	drain := make(chan struct{})
	go e.drainOnCancel(ctx, drain)

	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			<-drain
			return
		default:
		}

		batchSize := e.availableSlots()
		if batchSize == 0 {
			e.waitForSlotOrShutdown(ctx)
			continue
		}

		jobs, err := e.queue.Poll(ctx, batchSize, e.cfg.WorkerID)
		if err != nil {
			_ = e.health.Update(jobQueueHealthCheck, health.RED, map[string]any{"error": err.Error()})
			e.logger.LogError(ctx, "poll_failed", string(apperrors.CodeOf(err)), err.Error())
			e.sleepOrShutdown(ctx, e.cfg.PollInterval)
			continue
		}
		_ = e.health.Update(jobQueueHealthCheck, health.GREEN, nil)

		if len(jobs) == 0 {
			e.sleepOrShutdown(ctx, e.cfg.PollInterval)
			continue
		}

		for _, job := range jobs {
			e.dispatch(ctx, job)
		}
	}
}

func (e *Engine) availableSlots() int {
	return cap(e.semaphore) - len(e.semaphore)
}

func (e *Engine) waitForSlotOrShutdown(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(10 * time.Millisecond):
	}
}

func (e *Engine) sleepOrShutdown(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// dispatch launches one job's handler invocation in its own goroutine,
// bounded by the semaphore, and races it against a per-job timeout. The
// handler's context is deliberately detached from the worker's run ctx
// (context.WithoutCancel) so the poll loop's own shutdown signal does not
// instantly cut off in-flight work; the drain loop cancels stragglers
// itself, once ShutdownTimeout has actually elapsed.
func (e *Engine) dispatch(parentCtx context.Context, job queue.Job) {
	e.semaphore <- struct{}{}
	e.metrics.IncActiveJobs()

	token := job.ID.String()
	jobLogger := e.logger.WithToken(token)

	go func() {
		defer func() {
			<-e.semaphore
			e.metrics.DecActiveJobs()
		}()

		baseCtx := observability.WithJobID(observability.WithLogger(context.WithoutCancel(parentCtx), jobLogger), token)
		jobCtx, cancel := context.WithTimeout(baseCtx, e.cfg.JobTimeout)
		defer cancel()

		inFlight := &inFlightJob{cancel: cancel}
		e.registerInFlight(token, inFlight)
		defer e.unregisterInFlight(token)

		if err := e.queue.MarkProcessing(jobCtx, job.ID); err != nil {
			jobLogger.LogError(jobCtx, "mark_processing_failed", string(apperrors.CodeOf(err)), err.Error())
			return
		}

		result, dispatchErr := e.runHandler(jobCtx, job, inFlight)

		if dispatchErr != nil {
			code := apperrors.CodeOf(dispatchErr)
			if code == "" {
				code = apperrors.HandlerError
			}
			jobLogger.LogError(jobCtx, "job_failed", string(code), dispatchErr.Error())

			failErr := e.queue.Fail(context.WithoutCancel(jobCtx), job.ID, queue.JobError{
				Code:    string(code),
				Message: dispatchErr.Error(),
			})
			if failErr != nil {
				jobLogger.LogError(jobCtx, "fail_persist_failed", string(apperrors.CodeOf(failErr)), failErr.Error())
			}
			e.metrics.IncJobsErrors()
			return
		}

		resultBytes, marshalErr := json.Marshal(result)
		if marshalErr != nil {
			resultBytes = json.RawMessage(`null`)
		}

		if err := e.queue.Complete(context.WithoutCancel(jobCtx), job.ID, resultBytes); err != nil {
			jobLogger.LogError(jobCtx, "complete_persist_failed", string(apperrors.CodeOf(err)), err.Error())
			return
		}
		e.metrics.IncJobsProcessed()
	}()
}

func (e *Engine) registerInFlight(token string, job *inFlightJob) {
	e.mu.Lock()
	e.active[token] = job
	e.mu.Unlock()
}

func (e *Engine) unregisterInFlight(token string) {
	e.mu.Lock()
	delete(e.active, token)
	e.mu.Unlock()
}

// interruptRemaining cancels every still-active job's context and marks it
// shutdown-triggered, so runHandler reports SHUTDOWN_INTERRUPTED instead of
// JOB_TIMEOUT for the jobs that were cut short rather than having simply
// run out their own JobTimeout.
func (e *Engine) interruptRemaining() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, job := range e.active {
		job.interrupted.Set()
		job.cancel()
	}
}

// runHandler invokes the action dispatch, translating context cancellation
// into either JOB_TIMEOUT (the job's own deadline elapsed) or
// SHUTDOWN_INTERRUPTED (the drain loop cut it short at the shutdown
// deadline), per the error taxonomy.
func (e *Engine) runHandler(ctx context.Context, job queue.Job, inFlight *inFlightJob) (any, error) {
	type outcome struct {
		result any
		err    error
	}

	done := make(chan outcome, 1)
	go func() {
		result, err := e.actions.Dispatch(ctx, job.Payload, e.container)
		done <- outcome{result, err}
	}()

	select {
	case o := <-done:
		return o.result, o.err
	case <-ctx.Done():
		if inFlight.interrupted.IsSet() {
			return nil, apperrors.New(apperrors.ShutdownInterrupted, "job interrupted by shutdown before completion")
		}
		return nil, apperrors.New(apperrors.JobTimeout, "handler did not complete within the job timeout")
	}
}

// drainOnCancel waits for ctx cancellation, then gives in-flight dispatch
// goroutines up to ShutdownTimeout to finish on their own. Anything still
// running at that deadline is cancelled and failed with
// SHUTDOWN_INTERRUPTED; drainOnCancel then waits a short additional grace
// period for those goroutines to persist that outcome before giving up.
func (e *Engine) drainOnCancel(ctx context.Context, done chan struct{}) {
	<-ctx.Done()

	if e.waitForDrain(e.cfg.ShutdownTimeout) {
		close(done)
		return
	}

	e.interruptRemaining()
	e.waitForDrain(shutdownInterruptGrace)
	close(done)
}

// waitForDrain polls until every in-flight dispatch goroutine has released
// its semaphore slot, or d elapses first. It reports whether the semaphore
// fully drained before the deadline.
func (e *Engine) waitForDrain(d time.Duration) bool {
	deadline := time.NewTimer(d)
	defer deadline.Stop()

	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	for {
		if len(e.semaphore) == 0 {
			return true
		}
		select {
		case <-deadline.C:
			return false
		case <-ticker.C:
		}
	}
}

// atomicBool is a tiny mutex-guarded flag; sync/atomic.Bool would do the
// same job but this keeps the package's concurrency idiom consistent with
// the mutex-guarded structs used throughout (health.Registry, breaker.Breaker).
type atomicBool struct {
	mu sync.Mutex
	v  bool
}

func (b *atomicBool) Set() {
	b.mu.Lock()
	b.v = true
	b.mu.Unlock()
}

func (b *atomicBool) IsSet() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.v
}
