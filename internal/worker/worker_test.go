package worker

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mcintyjp/microservice-worker/internal/actions"
	"github.com/mcintyjp/microservice-worker/internal/apperrors"
	"github.com/mcintyjp/microservice-worker/internal/container"
	"github.com/mcintyjp/microservice-worker/internal/health"
	"github.com/mcintyjp/microservice-worker/internal/metrics"
	"github.com/mcintyjp/microservice-worker/internal/observability"
	"github.com/mcintyjp/microservice-worker/internal/queue"
	"github.com/mcintyjp/microservice-worker/internal/queue/memqueue"
)

func newTestEngine(t *testing.T, cfg Config) (*Engine, *memqueue.Queue, *actions.Registry) {
	t.Helper()

	q := memqueue.New()
	reg := actions.NewRegistry()
	c := container.NewContainer(health.NewRegistry(), observability.NewLogger("test"))
	if err := c.Build(); err != nil {
		t.Fatal(err)
	}
	if err := c.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}

	if cfg.PollInterval == 0 {
		cfg.PollInterval = 5 * time.Millisecond
	}
	if cfg.MaxConcurrentJobs == 0 {
		cfg.MaxConcurrentJobs = 4
	}
	if cfg.JobTimeout == 0 {
		cfg.JobTimeout = time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = time.Second
	}
	if cfg.WorkerID == "" {
		cfg.WorkerID = "test-worker"
	}

	engine := New(cfg, q, reg, c, health.NewRegistry(), metrics.NewCollector(), observability.NewLogger("test"))
	return engine, q, reg
}

func TestEngineCompletesSuccessfulJob(t *testing.T) {
	engine, q, reg := newTestEngine(t, Config{})

	if err := reg.Register(actions.Definition{
		Name: "greet",
		Handler: func(ctx context.Context, input any, deps map[string]any) (any, error) {
			return map[string]string{"message": "hello"}, nil
		},
	}); err != nil {
		t.Fatal(err)
	}

	id, err := q.Submit(json.RawMessage(`{"action":"greet"}`))
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go engine.Run(ctx)

	job, err := q.WaitForTerminal(context.Background(), id, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != queue.Completed {
		t.Fatalf("expected Completed, got %v", job.Status)
	}
}

func TestEngineFailsJobOnHandlerError(t *testing.T) {
	engine, q, reg := newTestEngine(t, Config{})

	if err := reg.Register(actions.Definition{
		Name: "boom",
		Handler: func(ctx context.Context, input any, deps map[string]any) (any, error) {
			return nil, apperrors.New(apperrors.HandlerError, "kaboom")
		},
	}); err != nil {
		t.Fatal(err)
	}

	id, err := q.Submit(json.RawMessage(`{"action":"boom"}`))
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go engine.Run(ctx)

	job, err := q.WaitForTerminal(context.Background(), id, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != queue.Failed {
		t.Fatalf("expected Failed, got %v", job.Status)
	}
	if job.Error == nil || job.Error.Code != string(apperrors.HandlerError) {
		t.Fatalf("expected HANDLER_ERROR, got %+v", job.Error)
	}
}

func TestEngineFailsJobOnUnknownAction(t *testing.T) {
	engine, q, _ := newTestEngine(t, Config{})

	id, err := q.Submit(json.RawMessage(`{"action":"nonexistent"}`))
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go engine.Run(ctx)

	job, err := q.WaitForTerminal(context.Background(), id, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != queue.Failed {
		t.Fatalf("expected Failed, got %v", job.Status)
	}
	if job.Error == nil || job.Error.Code != string(apperrors.UnknownAction) {
		t.Fatalf("expected UNKNOWN_ACTION, got %+v", job.Error)
	}
}

func TestEngineInterruptsInFlightJobsAtShutdownDeadline(t *testing.T) {
	engine, q, reg := newTestEngine(t, Config{
		ShutdownTimeout: 30 * time.Millisecond,
		JobTimeout:      5 * time.Second,
		PollInterval:    2 * time.Millisecond,
	})

	block := make(chan struct{})
	if err := reg.Register(actions.Definition{
		Name: "stuck",
		Handler: func(ctx context.Context, input any, deps map[string]any) (any, error) {
			<-block
			return nil, nil
		},
	}); err != nil {
		t.Fatal(err)
	}

	id, err := q.Submit(json.RawMessage(`{"action":"stuck"}`))
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan struct{})
	go func() {
		engine.Run(ctx)
		close(runDone)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	job, err := q.WaitForTerminal(context.Background(), id, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != queue.Failed {
		t.Fatalf("expected Failed, got %v", job.Status)
	}
	if job.Error == nil || job.Error.Code != string(apperrors.ShutdownInterrupted) {
		t.Fatalf("expected SHUTDOWN_INTERRUPTED, got %+v", job.Error)
	}

	select {
	case <-runDone:
	case <-time.After(time.Second):
		t.Fatal("engine.Run did not return after shutdown drain")
	}
	close(block)
}

func TestEngineTimesOutSlowHandler(t *testing.T) {
	engine, q, reg := newTestEngine(t, Config{JobTimeout: 20 * time.Millisecond})

	if err := reg.Register(actions.Definition{
		Name: "slow",
		Handler: func(ctx context.Context, input any, deps map[string]any) (any, error) {
			select {
			case <-time.After(time.Second):
				return "too slow", nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
	}); err != nil {
		t.Fatal(err)
	}

	id, err := q.Submit(json.RawMessage(`{"action":"slow"}`))
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go engine.Run(ctx)

	job, err := q.WaitForTerminal(context.Background(), id, 2*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != queue.Failed {
		t.Fatalf("expected Failed, got %v", job.Status)
	}
	if job.Error == nil || job.Error.Code != string(apperrors.JobTimeout) {
		t.Fatalf("expected JOB_TIMEOUT, got %+v", job.Error)
	}
}

func TestEngineRespectsMaxConcurrency(t *testing.T) {
	engine, q, reg := newTestEngine(t, Config{MaxConcurrentJobs: 2, PollInterval: 2 * time.Millisecond})

	release := make(chan struct{})
	var mu sync.Mutex
	var active, maxActive int

	if err := reg.Register(actions.Definition{
		Name: "block",
		Handler: func(ctx context.Context, input any, deps map[string]any) (any, error) {
			mu.Lock()
			active++
			if active > maxActive {
				maxActive = active
			}
			mu.Unlock()

			<-release

			mu.Lock()
			active--
			mu.Unlock()
			return "done", nil
		},
	}); err != nil {
		t.Fatal(err)
	}

	var ids []uuid.UUID
	for i := 0; i < 5; i++ {
		id, err := q.Submit(json.RawMessage(`{"action":"block"}`))
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, id)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go engine.Run(ctx)

	time.Sleep(100 * time.Millisecond)
	close(release)

	for _, id := range ids {
		if _, err := q.WaitForTerminal(context.Background(), id, time.Second); err != nil {
			t.Fatal(err)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if maxActive > 2 {
		t.Fatalf("expected at most 2 concurrent handlers, observed %d", maxActive)
	}
}
