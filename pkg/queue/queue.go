package queue

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/taskhive/notifier/internal/model"
)

// Queue is the durable job queue the dispatcher feeds and the worker pool
// drains. Any durable backend can satisfy it; the engine ships a
// database-backed implementation.
//
// Enqueue must reject a job whose idempotency key matches a non-terminal
// job with errors.ErrDuplicateInFlight. Dequeue claims up to limit runnable
// jobs (pending or retrying, run_at elapsed, attempts below the cap) and
// transitions them to processing, incrementing the attempt counter as part
// of the claim so a crashed worker's redelivery still counts toward max
// attempts.
type Queue interface {
	Enqueue(ctx context.Context, job *model.JobStatus) error
	Dequeue(ctx context.Context, queue string, limit int) ([]*model.JobStatus, error)
	Ack(ctx context.Context, id uuid.UUID, status model.JobState, errMsg *string) error
	Retry(ctx context.Context, id uuid.UUID, delay time.Duration, errMsg *string) error
}

// Reaper recovers jobs abandoned mid-processing by a crashed worker.
// Jobs with attempt budget left are reset for redelivery; jobs that
// crashed on their final attempt are failed so exhausted work is
// reported, never silently requeued past the cap.
type Reaper interface {
	ReapStuck(ctx context.Context, queue string, olderThan time.Duration) (reset, abandoned int64, err error)
}
