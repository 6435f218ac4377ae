package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/taskhive/notifier/internal/dispatcher"
	"github.com/taskhive/notifier/internal/evaluator"
	"github.com/taskhive/notifier/pkg/errors"
	"github.com/taskhive/notifier/pkg/lock"
	"github.com/taskhive/notifier/pkg/logger"
	"github.com/taskhive/notifier/pkg/metrics"
)

type Config struct {
	Interval time.Duration
	LockKey  string
	LockTTL  time.Duration
}

// Scheduler owns the tick: a fixed-interval, mutually exclusive run of
// evaluate-and-dispatch. The TTL lock is what makes the exclusion hold
// across a fleet, not just in-process; a tick that cannot take the lock is
// skipped outright rather than queued, so slow evaluation never builds a
// backlog of ticks.
type Scheduler struct {
	evaluator  *evaluator.Evaluator
	dispatcher *dispatcher.Dispatcher
	locker     lock.Locker
	config     Config
	logger     *logger.Logger
	metrics    *metrics.Metrics
}

func NewScheduler(
	eval *evaluator.Evaluator,
	disp *dispatcher.Dispatcher,
	locker lock.Locker,
	config Config,
	logger *logger.Logger,
	m *metrics.Metrics,
) *Scheduler {
	if config.Interval <= 0 {
		config.Interval = 5 * time.Minute
	}
	if config.LockKey == "" {
		config.LockKey = "scheduler:tick:lock"
	}
	if config.LockTTL <= 0 {
		// Shorter than the interval so a crashed holder frees the next tick.
		config.LockTTL = config.Interval - config.Interval/5
	}
	return &Scheduler{
		evaluator:  eval,
		dispatcher: disp,
		locker:     locker,
		config:     config,
		logger:     logger,
		metrics:    m,
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.logger.Info("starting reminder scheduler", "interval", s.config.Interval.String())

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("shutting down reminder scheduler")
			return
		case <-ticker.C:
			if _, _, err := s.RunOnce(ctx, false); err != nil {
				if err == errors.ErrSchedulerOverlap {
					s.logger.Info("tick skipped, previous tick still running")
					continue
				}
				// Contained: the tick failed, the next one retries.
				s.logger.Error(err, "tick failed")
			}
		}
	}
}

// RunOnce executes a single evaluate-and-dispatch cycle under the tick
// lock. It backs both the ticker and the manual trigger endpoint. With
// dryRun set it reports how many rules would dispatch without enqueueing.
func (s *Scheduler) RunOnce(ctx context.Context, dryRun bool) (due int, enqueued int, err error) {
	acquired, err := s.locker.Acquire(ctx, s.config.LockKey, s.config.LockTTL)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to acquire tick lock: %w", err)
	}
	if !acquired {
		s.metrics.TicksTotal.WithLabelValues("skipped").Inc()
		return 0, 0, errors.ErrSchedulerOverlap
	}
	defer func() {
		if rerr := s.locker.Release(ctx, s.config.LockKey); rerr != nil {
			s.logger.Error(rerr, "failed to release tick lock")
		}
	}()

	timer := prometheus.NewTimer(s.metrics.TickDuration)
	defer timer.ObserveDuration()

	dueRules, err := s.evaluator.DueRules(ctx, time.Now())
	if err != nil {
		s.metrics.TicksTotal.WithLabelValues("error").Inc()
		return 0, 0, fmt.Errorf("evaluation failed, aborting tick: %w", err)
	}
	s.metrics.RulesEvaluated.Set(float64(len(dueRules)))

	if dryRun {
		count, err := s.dispatcher.DryRun(ctx, dueRules)
		if err != nil {
			s.metrics.TicksTotal.WithLabelValues("error").Inc()
			return len(dueRules), 0, err
		}
		s.metrics.TicksTotal.WithLabelValues("dry_run").Inc()
		return len(dueRules), count, nil
	}

	enqueued, err = s.dispatcher.Dispatch(ctx, dueRules)
	if err != nil {
		s.metrics.TicksTotal.WithLabelValues("error").Inc()
		return len(dueRules), enqueued, fmt.Errorf("dispatch failed: %w", err)
	}

	s.metrics.TicksTotal.WithLabelValues("ok").Inc()
	s.logger.Info("tick complete", "due", len(dueRules), "enqueued", enqueued)
	return len(dueRules), enqueued, nil
}
