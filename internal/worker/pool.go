package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/taskhive/notifier/internal/config"
	"github.com/taskhive/notifier/internal/model"
	"github.com/taskhive/notifier/internal/repository"
	"github.com/taskhive/notifier/pkg/logger"
	"github.com/taskhive/notifier/pkg/metrics"
)

// Executor runs one claimed job to a terminal or retrying state.
type Executor interface {
	JobType() string
	Execute(ctx context.Context, job *model.JobStatus) error
}

// Pool drains the partitioned job queues. Each queue gets its configured
// number of workers plus one reaper that recovers jobs abandoned by
// crashed workers. Worker execution order across jobs is unordered by
// design; correctness rests on the delivery job's idempotency checks.
type Pool struct {
	jobs      repository.JobRepository
	executors map[string]Executor
	queues    map[string]config.QueueConfig
	logger    *logger.Logger
	metrics   *metrics.Metrics
	wg        sync.WaitGroup
}

func NewPool(jobs repository.JobRepository, queues map[string]config.QueueConfig, logger *logger.Logger, m *metrics.Metrics) *Pool {
	return &Pool{
		jobs:      jobs,
		executors: make(map[string]Executor),
		queues:    queues,
		logger:    logger,
		metrics:   m,
	}
}

// RegisterExecutor wires a job type to its executor. Called during startup
// wiring, before Start.
func (p *Pool) RegisterExecutor(e Executor) error {
	if _, exists := p.executors[e.JobType()]; exists {
		return fmt.Errorf("executor already registered for job type %s", e.JobType())
	}
	p.executors[e.JobType()] = e
	return nil
}

// Start launches the workers and blocks until ctx is cancelled and all
// workers have drained.
func (p *Pool) Start(ctx context.Context) {
	for name, qc := range p.queues {
		if qc.Concurrency <= 0 {
			qc.Concurrency = 1
		}
		for i := 0; i < qc.Concurrency; i++ {
			p.wg.Add(1)
			go p.runWorker(ctx, name, qc, i)
		}

		p.wg.Add(1)
		go p.runReaper(ctx, name, qc)
	}

	p.logger.Info("worker pool started", "queues", len(p.queues))
	<-ctx.Done()
	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}

func (p *Pool) runWorker(ctx context.Context, queueName string, qc config.QueueConfig, id int) {
	defer p.wg.Done()

	log := p.logger.WithFields(map[string]interface{}{
		"queue":  queueName,
		"worker": id,
	})

	poll := qc.PollInterval
	if poll <= 0 {
		poll = 5 * time.Second
	}

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug("worker shutting down")
			return
		case <-ticker.C:
			if err := p.drainOnce(ctx, queueName, qc, log); err != nil {
				log.Error(err, "failed to process queue batch")
			}
		}
	}
}

func (p *Pool) drainOnce(ctx context.Context, queueName string, qc config.QueueConfig, log *logger.Logger) error {
	batch := qc.BatchSize
	if batch <= 0 {
		batch = 10
	}

	jobs, err := p.jobs.Dequeue(ctx, queueName, batch)
	if err != nil {
		p.metrics.ClaimFailures.Inc()
		return fmt.Errorf("failed to claim jobs: %w", err)
	}
	if len(jobs) == 0 {
		return nil
	}

	for _, job := range jobs {
		p.execute(ctx, job, qc, log)
	}

	if depth, err := p.jobs.RunnableCount(ctx, queueName); err == nil {
		p.metrics.QueueDepth.WithLabelValues(queueName).Set(float64(depth))
	}
	return nil
}

func (p *Pool) execute(ctx context.Context, job *model.JobStatus, qc config.QueueConfig, log *logger.Logger) {
	executor, ok := p.executors[job.JobType]
	if !ok {
		errMsg := fmt.Sprintf("no executor registered for job type %s", job.JobType)
		if err := p.jobs.Ack(ctx, job.ID, model.JobStateFailed, &errMsg); err != nil {
			log.Error(err, "failed to fail unroutable job", "job_id", job.ID.String())
		}
		return
	}

	jobCtx := ctx
	if qc.ClaimTimeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, qc.ClaimTimeout)
		defer cancel()
	}

	if err := executor.Execute(jobCtx, job); err != nil {
		// Executor-level errors mean the job's state could not be
		// persisted; the claim timeout will hand it back to the queue.
		log.Error(err, "job execution error",
			"job_id", job.ID.String(), "job_type", job.JobType)
	}
}

// runReaper periodically recovers jobs stuck in processing. A job whose
// worker died mid-flight reappears as pending after the claim timeout;
// redelivery is safe because the delivery path re-checks everything. A
// job that died on its final attempt is failed instead of requeued.
func (p *Pool) runReaper(ctx context.Context, queueName string, qc config.QueueConfig) {
	defer p.wg.Done()

	claimTimeout := qc.ClaimTimeout
	if claimTimeout <= 0 {
		claimTimeout = 5 * time.Minute
	}

	ticker := time.NewTicker(claimTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reset, abandoned, err := p.jobs.ReapStuck(ctx, queueName, claimTimeout)
			if err != nil {
				p.logger.Error(err, "failed to reap stuck jobs", "queue", queueName)
				continue
			}
			if reset > 0 {
				p.metrics.JobsReaped.Add(float64(reset))
				p.logger.Warn("reset stuck processing jobs", "queue", queueName, "count", reset)
			}
			if abandoned > 0 {
				p.metrics.JobsAbandoned.Add(float64(abandoned))
				p.logger.Warn("failed stuck jobs past their attempt budget", "queue", queueName, "count", abandoned)
			}
		}
	}
}
