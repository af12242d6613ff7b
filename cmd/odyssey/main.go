package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-rbac/cmd/odyssey/cli"
	"github.com/odyssey-erp/odyssey-rbac/internal/app"
	"github.com/odyssey-erp/odyssey-rbac/internal/audit"
	"github.com/odyssey-erp/odyssey-rbac/internal/auth"
	"github.com/odyssey-erp/odyssey-rbac/internal/captcha"
	"github.com/odyssey-erp/odyssey-rbac/internal/observability"
	"github.com/odyssey-erp/odyssey-rbac/internal/permissions"
	"github.com/odyssey-erp/odyssey-rbac/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-rbac/internal/platform/db"
	"github.com/odyssey-erp/odyssey-rbac/internal/rbac"
	"github.com/odyssey-erp/odyssey-rbac/internal/roles"
	"github.com/odyssey-erp/odyssey-rbac/internal/shared"
	"github.com/odyssey-erp/odyssey-rbac/internal/upload"
	"github.com/odyssey-erp/odyssey-rbac/internal/users"
	"github.com/odyssey-erp/odyssey-rbac/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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
	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}

	if len(os.Args) > 1 && os.Args[1] == "jobs" {
		if err := cli.Run(ctx, redisOpts, os.Args[2:], os.Stdout); err != nil {
			logger.Error("jobs command", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	dbpool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		// Permission checks fail closed without redis, so refuse to start.
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(dbpool)

	captchaService := captcha.NewService(redisClient, captcha.Options{TTL: cfg.CaptchaTTL})

	tokens, err := auth.NewTokens(auth.TokenOptions{
		Secret:        cfg.JWTSecret,
		RefreshSecret: cfg.JWTRefreshSecret,
		PrivateKeyPEM: cfg.JWTPrivateKey,
		PublicKeyPEM:  cfg.JWTPublicKey,
		AccessTTL:     cfg.JWTAccessTTL,
		RefreshTTL:    cfg.JWTRefreshTTL,
		Issuer:        cfg.JWTIssuer,
	})
	if err != nil {
		logger.Error("init tokens", slog.Any("error", err))
		os.Exit(1)
	}
	sessionStore := auth.NewSessionStore(redisClient, cfg.JWTAccessTTL)
	authService := auth.NewService(
		auth.NewRepository(dbpool),
		tokens,
		sessionStore,
		captchaService,
		auth.Options{SSOStrict: cfg.SSOStrict, BcryptCost: cfg.BcryptCost},
		logger,
	).WithObserver(metrics)

	permissionCache := rbac.NewPermissionCache(redisClient, cfg.JWTAccessTTL).WithObserver(metrics)
	rbacService := rbac.NewService(rbac.NewRepository(dbpool), permissionCache, rbac.Options{
		DefaultUserName: cfg.DefaultUserName,
		DefaultRoleName: cfg.DefaultRoleName,
		SuperPermission: cfg.SuperPermission,
		CacheTTL:        cfg.JWTAccessTTL,
	}, logger).WithObserver(metrics)
	rbacMiddleware := rbac.Middleware{Service: rbacService, Logger: logger, Observer: metrics}

	authHandler := auth.NewHandler(logger, authService, captchaService, rbacService)

	rolesService := roles.NewService(roles.NewRepository(dbpool), permissionCache, auditLogger,
		roles.Options{DefaultRoleName: cfg.DefaultRoleName}, logger)
	rolesHandler := roles.NewHandler(logger, rolesService, rbacMiddleware)

	usersService := users.NewService(users.NewRepository(dbpool), permissionCache, auditLogger, users.Options{
		DefaultUserName: cfg.DefaultUserName,
		DefaultRoleName: cfg.DefaultRoleName,
		DefaultPassword: cfg.DefaultPassword,
		BcryptCost:      cfg.BcryptCost,
	}, logger)
	usersHandler := users.NewHandler(logger, usersService, rbacMiddleware)

	permissionsService := permissions.NewService(permissions.NewRepository(dbpool), permissionCache, auditLogger, logger)
	permissionsHandler := permissions.NewHandler(logger, permissionsService, rbacMiddleware)

	auditHandler := audit.NewHandler(logger, audit.NewService(audit.NewRepository(dbpool)), rbacMiddleware)

	var uploadHandler *upload.Handler
	presigner, err := upload.NewPresigner(ctx, upload.Options{
		Endpoint:     cfg.S3Endpoint,
		Region:       cfg.S3Region,
		Bucket:       cfg.S3Bucket,
		AccessKey:    cfg.S3AccessKey,
		SecretKey:    cfg.S3SecretKey,
		UsePathStyle: cfg.S3UsePathStyle,
		TTL:          cfg.UploadURLTTL,
	})
	if err != nil {
		logger.Warn("upload disabled", slog.Any("error", err))
	} else {
		uploadHandler = upload.NewHandler(logger, upload.NewService(presigner, cfg.S3Bucket, cfg.UploadURLTTL))
	}

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		Tokens:             authService,
		AuthHandler:        authHandler,
		RolesHandler:       rolesHandler,
		UsersHandler:       usersHandler,
		PermissionsHandler: permissionsHandler,
		UploadHandler:      uploadHandler,
		AuditHandler:       auditHandler,
		JobHandler:         jobHandler,
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("prefix", cfg.AppPrefix))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
