// Package memqueue implements the in-memory dev Queue backend: a map
// guarded by a one-slot channel used as a lock, plus per-job completion
// channels closed on the terminal transition, with Submit and
// WaitForTerminal for dev-mode job submission via /dev/job.
package memqueue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/mcintyjp/microservice-worker/internal/apperrors"
	"github.com/mcintyjp/microservice-worker/internal/queue"
)

type record struct {
	job  queue.Job
	done chan struct{}
}

// Queue is the in-memory, dev-mode backend. It satisfies queue.Queue and
// additionally exposes Submit/WaitForTerminal for the /dev/job endpoint.
type Queue struct {
	mu      chan struct{} // binary semaphore used as a non-reentrant mutex
	records map[uuid.UUID]*record
	order   []uuid.UUID
}

func New() *Queue {
	q := &Queue{
		mu:      make(chan struct{}, 1),
		records: make(map[uuid.UUID]*record),
	}
	return q
}

func (q *Queue) lock()   { q.mu <- struct{}{} }
func (q *Queue) unlock() { <-q.mu }

// Submit enqueues a new Ready job from a raw payload and returns its id.
func (q *Queue) Submit(payload json.RawMessage) (uuid.UUID, error) {
	id := uuid.New()

	q.lock()
	defer q.unlock()

	q.records[id] = &record{
		job: queue.Job{
			ID:      id,
			Payload: payload,
			Status:  queue.Ready,
		},
		done: make(chan struct{}),
	}
	q.order = append(q.order, id)

	return id, nil
}

// WaitForTerminal blocks until the job reaches Completed or Failed, ctx is
// cancelled, or timeout elapses.
func (q *Queue) WaitForTerminal(ctx context.Context, jobID uuid.UUID, timeout time.Duration) (queue.Job, error) {
	q.lock()
	rec, ok := q.records[jobID]
	q.unlock()
	if !ok {
		return queue.Job{}, apperrors.New(apperrors.QueueConsistency, "job does not exist")
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-rec.done:
	case <-ctx.Done():
		return queue.Job{}, ctx.Err()
	case <-timer.C:
		return queue.Job{}, apperrors.New(apperrors.JobTimeout, "timed out waiting for job to reach a terminal state")
	}

	q.lock()
	defer q.unlock()
	return q.records[jobID].job, nil
}

func (q *Queue) Poll(ctx context.Context, batchSize int, workerID string) ([]queue.Job, error) {
	q.lock()
	defer q.unlock()

	var claimed []queue.Job
	now := time.Now()

	for _, id := range q.order {
		if len(claimed) >= batchSize {
			break
		}
		rec := q.records[id]
		if rec.job.Status != queue.Ready {
			continue
		}
		rec.job.Status = queue.Assigned
		rec.job.ClaimedBy = workerID
		rec.job.ClaimedAt = &now
		rec.job.Attempts++
		claimed = append(claimed, rec.job)
	}

	return claimed, nil
}

func (q *Queue) MarkProcessing(ctx context.Context, jobID uuid.UUID) error {
	q.lock()
	defer q.unlock()

	rec, ok := q.records[jobID]
	if !ok {
		return apperrors.New(apperrors.QueueConsistency, "job does not exist")
	}
	if rec.job.Status == queue.Processing {
		return nil
	}
	if rec.job.Status != queue.Assigned {
		return apperrors.New(apperrors.QueueConsistency, "job is not in ASSIGNED state")
	}
	rec.job.Status = queue.Processing
	return nil
}

func (q *Queue) Complete(ctx context.Context, jobID uuid.UUID, result json.RawMessage) error {
	q.lock()
	defer q.unlock()

	rec, ok := q.records[jobID]
	if !ok {
		return apperrors.New(apperrors.QueueConsistency, "job does not exist")
	}
	if rec.job.Status.Terminal() {
		return apperrors.New(apperrors.QueueConsistency, "job is already terminal")
	}

	now := time.Now()
	rec.job.Status = queue.Completed
	rec.job.Result = result
	rec.job.CompletedAt = &now
	close(rec.done)

	return nil
}

func (q *Queue) Fail(ctx context.Context, jobID uuid.UUID, errInfo queue.JobError) error {
	q.lock()
	defer q.unlock()

	rec, ok := q.records[jobID]
	if !ok {
		return apperrors.New(apperrors.QueueConsistency, "job does not exist")
	}
	if rec.job.Status.Terminal() {
		return apperrors.New(apperrors.QueueConsistency, "job is already terminal")
	}

	now := time.Now()
	rec.job.Status = queue.Failed
	rec.job.Error = &errInfo
	rec.job.CompletedAt = &now
	close(rec.done)

	return nil
}

func (q *Queue) Shutdown(ctx context.Context) error {
	return nil
}
