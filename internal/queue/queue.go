// Package queue defines the backend-polymorphic Queue contract consumed by
// the Worker engine. Two implementations satisfy it: queue/sqlqueue (a
// durable, Postgres-backed store standing in for the spec's
// Oracle-illustrative semantics) and queue/memqueue (an in-memory dev
// backend).
package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Status is a Job's lifecycle state. Status only ever advances
// Ready -> Assigned -> Processing -> (Completed|Failed); Completed and
// Failed are terminal.
type Status string

const (
	Ready      Status = "READY"
	Assigned   Status = "ASSIGNED"
	Processing Status = "PROCESSING"
	Completed  Status = "COMPLETED"
	Failed     Status = "FAILED"
)

func (s Status) Terminal() bool {
	return s == Completed || s == Failed
}

// JobError is the structured {code, message} pair persisted against a
// Failed job.
type JobError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Job is a unit of work claimed from the queue and dispatched to a
// registered action handler.
type Job struct {
	ID          uuid.UUID       `json:"id"`
	Payload     json.RawMessage `json:"payload"`
	Status      Status          `json:"status"`
	Attempts    int             `json:"attempts"`
	ClaimedBy   string          `json:"claimed_by,omitempty"`
	ClaimedAt   *time.Time      `json:"claimed_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       *JobError       `json:"error,omitempty"`
}

// Queue is the contract every backend implements. All operations are
// context-bound and may suspend on I/O.
type Queue interface {
	// Poll atomically claims up to batchSize Ready jobs, marks them
	// Assigned to workerID, increments attempts, and returns them. Empty
	// results are legal.
	Poll(ctx context.Context, batchSize int, workerID string) ([]Job, error)

	// MarkProcessing transitions Assigned -> Processing; idempotent if
	// already Processing.
	MarkProcessing(ctx context.Context, jobID uuid.UUID) error

	// Complete transitions a job to Completed and persists its result.
	Complete(ctx context.Context, jobID uuid.UUID, result json.RawMessage) error

	// Fail transitions a job to Failed and persists its error.
	Fail(ctx context.Context, jobID uuid.UUID, errInfo JobError) error

	// Shutdown releases pooled connections.
	Shutdown(ctx context.Context) error
}
