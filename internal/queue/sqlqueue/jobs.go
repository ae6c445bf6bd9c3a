package sqlqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mcintyjp/microservice-worker/internal/apperrors"
	"github.com/mcintyjp/microservice-worker/internal/queue"
)

// Poll atomically claims up to batchSize Ready rows using
// FOR UPDATE SKIP LOCKED so concurrent workers never claim the same row,
// marks them Assigned, increments attempts, and returns them.
func (s *Store) Poll(ctx context.Context, batchSize int, workerID string) ([]queue.Job, error) {
	var claimed []queue.Job

	err := s.WithTransaction(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, fmt.Sprintf(`
			SELECT id, payload, attempts
			FROM %s
			WHERE status = 'READY'
			ORDER BY claimed_at NULLS FIRST
			FOR UPDATE SKIP LOCKED
			LIMIT $1
		`, s.tableName), batchSize)
		if err != nil {
			return err
		}

		type candidate struct {
			id       uuid.UUID
			payload  []byte
			attempts int
		}
		var candidates []candidate

		for rows.Next() {
			var c candidate
			if err := rows.Scan(&c.id, &c.payload, &c.attempts); err != nil {
				rows.Close()
				return err
			}
			candidates = append(candidates, c)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		now := time.Now()
		for _, c := range candidates {
			_, err := tx.Exec(ctx, fmt.Sprintf(`
				UPDATE %s
				SET status = 'ASSIGNED',
					claimed_by = $2,
					claimed_at = $3,
					attempts = $4
				WHERE id = $1
			`, s.tableName), c.id, workerID, now, c.attempts+1)
			if err != nil {
				return err
			}

			claimed = append(claimed, queue.Job{
				ID:        c.id,
				Payload:   json.RawMessage(c.payload),
				Status:    queue.Assigned,
				Attempts:  c.attempts + 1,
				ClaimedBy: workerID,
				ClaimedAt: &now,
			})
		}

		return nil
	})

	if err != nil {
		return nil, apperrors.Wrap(apperrors.QueueUnavailable, err)
	}

	return claimed, nil
}

func (s *Store) MarkProcessing(ctx context.Context, jobID uuid.UUID) error {
	return s.WithTransaction(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, fmt.Sprintf(`
			UPDATE %s
			SET status = 'PROCESSING'
			WHERE id = $1 AND status = 'ASSIGNED'
		`, s.tableName), jobID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 1 {
			return nil
		}

		// Idempotent if already Processing.
		var status string
		err = tx.QueryRow(ctx, fmt.Sprintf(`SELECT status FROM %s WHERE id = $1`, s.tableName), jobID).Scan(&status)
		if err != nil {
			if err == pgx.ErrNoRows {
				return apperrors.New(apperrors.QueueConsistency, "job does not exist")
			}
			return err
		}
		if status == string(queue.Processing) {
			return nil
		}
		return apperrors.New(apperrors.QueueConsistency, fmt.Sprintf("job is in %s, not ASSIGNED", status))
	})
}

func (s *Store) Complete(ctx context.Context, jobID uuid.UUID, result json.RawMessage) error {
	return s.terminate(ctx, jobID, queue.Completed, result, nil)
}

func (s *Store) Fail(ctx context.Context, jobID uuid.UUID, errInfo queue.JobError) error {
	return s.terminate(ctx, jobID, queue.Failed, nil, &errInfo)
}

func (s *Store) terminate(ctx context.Context, jobID uuid.UUID, next queue.Status, result json.RawMessage, errInfo *queue.JobError) error {
	return s.WithTransaction(ctx, func(tx pgx.Tx) error {
		var errCode, errMessage *string
		if errInfo != nil {
			errCode, errMessage = &errInfo.Code, &errInfo.Message
		}

		tag, err := tx.Exec(ctx, fmt.Sprintf(`
			UPDATE %s
			SET status = $2,
				result = $3,
				error_code = $4,
				error_message = $5,
				completed_at = now()
			WHERE id = $1
				AND status NOT IN ('COMPLETED', 'FAILED')
		`, s.tableName), jobID, string(next), result, errCode, errMessage)
		if err != nil {
			return err
		}

		if tag.RowsAffected() == 0 {
			return apperrors.New(apperrors.QueueConsistency, "terminal transition attempted on a non-existent or already-terminal job")
		}

		return nil
	})
}

func (s *Store) Shutdown(ctx context.Context) error {
	s.Close()
	return nil
}
