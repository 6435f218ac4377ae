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
	"golang.org/x/time/rate"

	_ "github.com/lib/pq"

	"github.com/taskhive/notifier/internal/config"
	"github.com/taskhive/notifier/internal/dispatcher"
	"github.com/taskhive/notifier/internal/evaluator"
	deliveryHandler "github.com/taskhive/notifier/internal/handler/delivery"
	"github.com/taskhive/notifier/internal/handler/health"
	jobHandler "github.com/taskhive/notifier/internal/handler/job"
	ruleHandler "github.com/taskhive/notifier/internal/handler/rule"
	schedulerHandler "github.com/taskhive/notifier/internal/handler/scheduler"
	"github.com/taskhive/notifier/internal/middleware"
	"github.com/taskhive/notifier/internal/repository/postgres"
	"github.com/taskhive/notifier/internal/router"
	"github.com/taskhive/notifier/internal/scheduler"
	"github.com/taskhive/notifier/pkg/auth"
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

	appLogger := logger.NewLogger(nil)

	db, err := postgres.NewDB(cfg.Database)
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

	m := metrics.NewMetrics("notifier")

	// Scheduler pipeline
	eval := evaluator.NewEvaluator(ruleRepo, subjectReader, evaluator.Config{
		DedupWindow: cfg.Scheduler.DedupWindow,
		BatchSize:   cfg.Scheduler.BatchSize,
	}, appLogger)
	disp := dispatcher.NewDispatcher(jobRepo, dispatcher.Config{
		MaxAttempts: cfg.QueueFor("notifications").MaxAttempts,
	}, appLogger, m)

	// The ticker loop lives in the worker binary; the api holds a scheduler
	// only to serve the manual trigger. The shared redis lock keeps a manual
	// run and a ticker run from overlapping.
	hostname, _ := os.Hostname()
	locker := lock.NewRedisLocker(broker.Client(), fmt.Sprintf("api-%s-%d", hostname, os.Getpid()))

	sched := scheduler.NewScheduler(eval, disp, locker, scheduler.Config{
		Interval: cfg.Scheduler.Interval,
		LockKey:  cfg.Scheduler.LockKey,
		LockTTL:  cfg.Scheduler.LockTTL,
	}, appLogger, m)

	// HTTP surface
	tokenService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Issuer)
	authMiddleware := middleware.NewAuthMiddleware(tokenService)

	r := router.NewRouter(
		authMiddleware,
		health.NewHandler(db),
		ruleHandler.NewHandler(ruleRepo),
		schedulerHandler.NewHandler(sched),
		deliveryHandler.NewHandler(logRepo),
		jobHandler.NewHandler(jobRepo),
		router.Config{
			RateLimit: rate.Limit(cfg.Server.RateLimitRPS),
			RateBurst: cfg.Server.RateLimitBurst,
		},
	)
	r.Setup()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()
	log.Info().Int("port", cfg.Server.Port).Msg("api server started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited properly")
}
