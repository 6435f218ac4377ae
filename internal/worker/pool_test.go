package worker

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskhive/notifier/internal/config"
	"github.com/taskhive/notifier/internal/model"
	apperrors "github.com/taskhive/notifier/pkg/errors"
	"github.com/taskhive/notifier/pkg/logger"
	"github.com/taskhive/notifier/pkg/metrics"
)

type fakeJobRepo struct {
	batch []*model.JobStatus
	acks  map[uuid.UUID]model.JobState
}

func newFakeJobRepo(batch ...*model.JobStatus) *fakeJobRepo {
	return &fakeJobRepo{batch: batch, acks: make(map[uuid.UUID]model.JobState)}
}

func (r *fakeJobRepo) Enqueue(ctx context.Context, job *model.JobStatus) error { return nil }

func (r *fakeJobRepo) Dequeue(ctx context.Context, queue string, limit int) ([]*model.JobStatus, error) {
	batch := r.batch
	r.batch = nil
	return batch, nil
}

func (r *fakeJobRepo) Ack(ctx context.Context, id uuid.UUID, status model.JobState, errMsg *string) error {
	r.acks[id] = status
	return nil
}

func (r *fakeJobRepo) Retry(ctx context.Context, id uuid.UUID, delay time.Duration, errMsg *string) error {
	return nil
}

func (r *fakeJobRepo) ReapStuck(ctx context.Context, queue string, olderThan time.Duration) (int64, int64, error) {
	return 0, 0, nil
}

func (r *fakeJobRepo) Get(ctx context.Context, id uuid.UUID) (*model.JobStatus, error) {
	return nil, apperrors.NewNotFound("job", nil)
}

func (r *fakeJobRepo) GetByKey(ctx context.Context, key string) (*model.JobStatus, error) {
	return nil, apperrors.NewNotFound("job", nil)
}

func (r *fakeJobRepo) RunnableCount(ctx context.Context, queue string) (int64, error) { return 0, nil }
func (r *fakeJobRepo) DeleteTerminalBefore(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

type countingExecutor struct {
	jobType  string
	executed []*model.JobStatus
}

func (e *countingExecutor) JobType() string { return e.jobType }

func (e *countingExecutor) Execute(ctx context.Context, job *model.JobStatus) error {
	e.executed = append(e.executed, job)
	return nil
}

func testQueueConfig() config.QueueConfig {
	return config.QueueConfig{
		Concurrency:  1,
		PollInterval: 10 * time.Millisecond,
		ClaimTimeout: time.Minute,
		MaxAttempts:  3,
		BatchSize:    10,
	}
}

func newTestPool(repo *fakeJobRepo) *Pool {
	return NewPool(repo,
		map[string]config.QueueConfig{"notifications": testQueueConfig()},
		logger.NewLogger(nil), metrics.New("pool_test"))
}

func TestRegisterExecutorRejectsDuplicate(t *testing.T) {
	p := newTestPool(newFakeJobRepo())

	require.NoError(t, p.RegisterExecutor(&countingExecutor{jobType: "a"}))
	assert.Error(t, p.RegisterExecutor(&countingExecutor{jobType: "a"}))
	assert.NoError(t, p.RegisterExecutor(&countingExecutor{jobType: "b"}))
}

func TestDrainOnceRoutesJobsToExecutor(t *testing.T) {
	job1 := &model.JobStatus{ID: uuid.New(), JobType: "reminder_delivery"}
	job2 := &model.JobStatus{ID: uuid.New(), JobType: "reminder_delivery"}
	repo := newFakeJobRepo(job1, job2)

	p := newTestPool(repo)
	exec := &countingExecutor{jobType: "reminder_delivery"}
	require.NoError(t, p.RegisterExecutor(exec))

	err := p.drainOnce(context.Background(), "notifications", testQueueConfig(), p.logger)
	require.NoError(t, err)

	require.Len(t, exec.executed, 2)
	assert.Equal(t, job1.ID, exec.executed[0].ID)
	assert.Equal(t, job2.ID, exec.executed[1].ID)
}

func TestDrainOnceFailsUnroutableJob(t *testing.T) {
	job := &model.JobStatus{ID: uuid.New(), JobType: "unknown_type"}
	repo := newFakeJobRepo(job)

	p := newTestPool(repo)

	err := p.drainOnce(context.Background(), "notifications", testQueueConfig(), p.logger)
	require.NoError(t, err)

	assert.Equal(t, model.JobStateFailed, repo.acks[job.ID])
}

func TestStartDefaultsZeroPollInterval(t *testing.T) {
	// An unset poll_interval must not panic the worker ticker.
	qc := testQueueConfig()
	qc.PollInterval = 0

	p := NewPool(newFakeJobRepo(),
		map[string]config.QueueConfig{"notifications": qc},
		logger.NewLogger(nil), metrics.New("pool_poll_test"))
	require.NoError(t, p.RegisterExecutor(&countingExecutor{jobType: "reminder_delivery"}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		p.Start(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pool did not shut down with a defaulted poll interval")
	}
}

func TestStartStopsOnContextCancel(t *testing.T) {
	p := newTestPool(newFakeJobRepo())
	require.NoError(t, p.RegisterExecutor(&countingExecutor{jobType: "reminder_delivery"}))

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		p.Start(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pool did not shut down after context cancellation")
	}
}
