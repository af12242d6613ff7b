package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-rbac/internal/app"
	"github.com/odyssey-erp/odyssey-rbac/internal/auth"
	jobmetrics "github.com/odyssey-erp/odyssey-rbac/internal/jobs"
	"github.com/odyssey-erp/odyssey-rbac/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-rbac/internal/platform/db"
	"github.com/odyssey-erp/odyssey-rbac/internal/rbac"
	"github.com/odyssey-erp/odyssey-rbac/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := jobmetrics.NewMetrics(nil)

	permissionCache := rbac.NewPermissionCache(redisClient, cfg.JWTAccessTTL)
	flushJob := jobs.NewRBACFlushJob(permissionCache, logger, metrics)

	// Pruning only touches the session audit table, so the token and captcha
	// collaborators stay unset.
	sessions := auth.NewService(auth.NewRepository(pool), nil, nil, nil, auth.Options{}, logger)
	pruneJob := jobs.NewSessionPruneJob(sessions, cfg.SessionAuditRetention, logger, metrics)

	pruneTask, err := jobs.NewSessionPruneTask(cfg.SessionAuditRetention)
	if err != nil {
		logger.Error("build session prune task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskRBACFlush, Handler: flushJob.Handle},
			{Type: jobs.TaskSessionPrune, Handler: pruneJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "0 3 * * *", Task: pruneTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
