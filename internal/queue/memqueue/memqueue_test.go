package memqueue

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/mcintyjp/microservice-worker/internal/apperrors"
	"github.com/mcintyjp/microservice-worker/internal/queue"
)

func TestSubmitAndCompleteRoundTrip(t *testing.T) {
	q := New()
	ctx := context.Background()

	id, err := q.Submit(json.RawMessage(`{"action":"greet","name":"World"}`))
	if err != nil {
		t.Fatal(err)
	}

	jobs, err := q.Poll(ctx, 10, "worker-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 1 || jobs[0].ID != id {
		t.Fatalf("expected to claim the submitted job, got %v", jobs)
	}

	if err := q.MarkProcessing(ctx, id); err != nil {
		t.Fatal(err)
	}

	go func() {
		_ = q.Complete(ctx, id, json.RawMessage(`{"message":"Hello, World!"}`))
	}()

	job, err := q.WaitForTerminal(ctx, id, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != queue.Completed {
		t.Fatalf("expected Completed, got %v", job.Status)
	}
}

func TestClaimExclusivityAcrossConcurrentPolls(t *testing.T) {
	q := New()
	ctx := context.Background()

	const jobCount = 50
	for i := 0; i < jobCount; i++ {
		if _, err := q.Submit(json.RawMessage(`{"action":"noop"}`)); err != nil {
			t.Fatal(err)
		}
	}

	seen := make(map[string]bool)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for w := 0; w < 5; w++ {
		wg.Add(1)
		go func(workerID string) {
			defer wg.Done()
			for {
				jobs, err := q.Poll(ctx, 3, workerID)
				if err != nil {
					t.Error(err)
					return
				}
				if len(jobs) == 0 {
					return
				}
				mu.Lock()
				for _, j := range jobs {
					if seen[j.ID.String()] {
						t.Errorf("job %s claimed twice", j.ID)
					}
					seen[j.ID.String()] = true
				}
				mu.Unlock()
			}
		}(string(rune('A' + w)))
	}

	wg.Wait()

	if len(seen) != jobCount {
		t.Fatalf("expected all %d jobs claimed exactly once, saw %d", jobCount, len(seen))
	}
}

func TestFailIsTerminal(t *testing.T) {
	q := New()
	ctx := context.Background()

	id, _ := q.Submit(json.RawMessage(`{"action":"boom"}`))
	_, _ = q.Poll(ctx, 1, "worker-1")

	if err := q.Fail(ctx, id, queue.JobError{Code: "HANDLER_ERROR", Message: "boom"}); err != nil {
		t.Fatal(err)
	}

	err := q.Fail(ctx, id, queue.JobError{Code: "HANDLER_ERROR", Message: "boom again"})
	if !apperrors.Is(err, apperrors.QueueConsistency) {
		t.Fatalf("expected QUEUE_CONSISTENCY on double-terminal, got %v", err)
	}
}

func TestWaitForTerminalTimesOut(t *testing.T) {
	q := New()
	ctx := context.Background()

	id, _ := q.Submit(json.RawMessage(`{"action":"slow"}`))
	_, _ = q.Poll(ctx, 1, "worker-1")

	_, err := q.WaitForTerminal(ctx, id, 20*time.Millisecond)
	if !apperrors.Is(err, apperrors.JobTimeout) {
		t.Fatalf("expected JOB_TIMEOUT, got %v", err)
	}
}
