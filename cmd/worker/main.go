package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/taskhive/notifier/internal/channel"
	"github.com/taskhive/notifier/internal/config"
	"github.com/taskhive/notifier/internal/delivery"
	"github.com/taskhive/notifier/internal/dispatcher"
	"github.com/taskhive/notifier/internal/evaluator"
	"github.com/taskhive/notifier/internal/repository/postgres"
	"github.com/taskhive/notifier/internal/scheduler"
	"github.com/taskhive/notifier/internal/worker"
	"github.com/taskhive/notifier/pkg/lock"
	"github.com/taskhive/notifier/pkg/logger"
	"github.com/taskhive/notifier/pkg/messaging/redis"
	"github.com/taskhive/notifier/pkg/metrics"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	env, err := config.LoadWorkerEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load worker environment")
	}
	if env.RedisURL != "" {
		cfg.Redis.URL = env.RedisURL
	}

	appLogger := logger.NewLogger(nil)

	db, err := postgres.NewDBFromEnv(cfg.Database, env.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	broker, err := redis.NewRedisBroker(cfg.ToBrokerConfig(), &log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to Redis")
	}
	defer broker.Close()

	// Repositories
	baseRepo := postgres.NewBaseRepository(db)
	ruleRepo := postgres.NewRuleRepository(baseRepo)
	logRepo := postgres.NewDeliveryLogRepository(baseRepo)
	jobRepo := postgres.NewJobRepository(baseRepo)
	subjectReader := postgres.NewSubjectReader(baseRepo, 5*time.Minute)

	m := metrics.NewMetrics("notifier_worker")

	// Channel handlers
	registry := channel.NewRegistry()
	mustRegister(registry, channel.TagEmail, channel.NewEmailHandler(channel.EmailConfig{
		Host:        cfg.SMTP.Host,
		Port:        cfg.SMTP.Port,
		Username:    cfg.SMTP.Username,
		Password:    cfg.SMTP.Password,
		From:        cfg.SMTP.From,
		SendRate:    cfg.SMTP.SendRate,
		SendBurst:   cfg.SMTP.SendBurst,
		BreakerMax:  cfg.SMTP.BreakerMax,
		BreakerWait: cfg.SMTP.BreakerWait,
	}))
	mustRegister(registry, channel.TagInApp, channel.NewInAppHandler(broker))
	mustRegister(registry, channel.TagSMS, channel.NewSMSHandler())
	mustRegister(registry, channel.TagPush, channel.NewPushHandler())

	executor := delivery.NewExecutor(
		ruleRepo, logRepo, jobRepo, subjectReader, registry,
		delivery.Config{DedupWindow: cfg.Scheduler.DedupWindow},
		appLogger, m,
	)

	pool := worker.NewPool(jobRepo, cfg.Queues, appLogger, m)
	if err := pool.RegisterExecutor(executor); err != nil {
		log.Fatal().Err(err).Msg("failed to register executor")
	}

	// Scheduler tick loop. The redis lock makes it safe to run the worker
	// replicated; only one instance executes any given tick.
	eval := evaluator.NewEvaluator(ruleRepo, subjectReader, evaluator.Config{
		DedupWindow: cfg.Scheduler.DedupWindow,
		BatchSize:   cfg.Scheduler.BatchSize,
	}, appLogger)
	disp := dispatcher.NewDispatcher(jobRepo, dispatcher.Config{
		MaxAttempts: cfg.QueueFor("notifications").MaxAttempts,
	}, appLogger, m)

	hostname, _ := os.Hostname()
	locker := lock.NewRedisLocker(broker.Client(), fmt.Sprintf("worker-%s-%d", hostname, os.Getpid()))

	sched := scheduler.NewScheduler(eval, disp, locker, scheduler.Config{
		Interval: cfg.Scheduler.Interval,
		LockKey:  cfg.Scheduler.LockKey,
		LockTTL:  cfg.Scheduler.LockTTL,
	}, appLogger, m)

	go serveHealth(env.HealthPort, appLogger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		appLogger.Info("shutting down worker...")
		cancel()
	}()

	go sched.Start(ctx)
	pool.Start(ctx)
}

func mustRegister(r *channel.Registry, tag string, h channel.Handler) {
	if err := r.Register(tag, h); err != nil {
		log.Fatal().Err(err).Str("channel", tag).Msg("failed to register channel handler")
	}
}

func serveHealth(port int, logger *logger.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, `{"status":"UP"}`)
	})
	mux.Handle("/metrics", promhttp.Handler())

	addr := fmt.Sprintf(":%d", port)
	logger.Info("worker health endpoint listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error(err, "health endpoint stopped")
	}
}
