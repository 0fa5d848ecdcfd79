package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/hibiken/asynq"

	"github.com/blasbase/blasbase/internal/access"
	"github.com/blasbase/blasbase/internal/app"
	"github.com/blasbase/blasbase/internal/assignments"
	"github.com/blasbase/blasbase/internal/audit"
	"github.com/blasbase/blasbase/internal/auth"
	"github.com/blasbase/blasbase/internal/functions"
	"github.com/blasbase/blasbase/internal/observability"
	"github.com/blasbase/blasbase/internal/people"
	"github.com/blasbase/blasbase/internal/platform/cache"
	"github.com/blasbase/blasbase/internal/platform/db"
	"github.com/blasbase/blasbase/internal/rbac"
	"github.com/blasbase/blasbase/internal/shared"
	"github.com/blasbase/blasbase/internal/users"
	"github.com/blasbase/blasbase/jobs"
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

	if cfg.MigrateOnStart {
		if err := db.Migrate(cfg.PGDSN, logger); err != nil {
			logger.Error("migrate", slog.Any("error", err))
			os.Exit(1)
		}
	}

	dbpool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr, "", 0)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "blasbase_session", cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	services := app.NewServices(dbpool, cfg.Location(), logger)
	if err := services.EnsureCatalogue(ctx); err != nil {
		logger.Error("permission catalogue", slog.Any("error", err))
		os.Exit(1)
	}
	rbacMiddleware := services.RBAC(logger)

	metrics := observability.NewMetrics()

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		SessionManager:     sessionManager,
		CSRFManager:        csrfManager,
		RBACMiddleware:     rbacMiddleware,
		Metrics:            metrics,
		AuthHandler:        auth.NewHandler(logger, services.Auth, sessionManager, csrfManager),
		PersonHandler:      people.NewHandler(logger, services.People, rbacMiddleware),
		PeopleAdminHandler: people.NewAdminHandler(logger, services.People, rbacMiddleware),
		FunctionsHandler:   functions.NewHandler(logger, services.Functions, rbacMiddleware),
		AssignmentsHandler: assignments.NewHandler(logger, services.Assignments, rbacMiddleware),
		AccessHandler:      access.NewHandler(logger, services.Access, rbacMiddleware),
		UsersHandler:       users.NewHandler(logger, services.Users, services.Access, rbacMiddleware),
		PermissionsHandler: rbac.NewHandler(logger, services.Permissions, rbacMiddleware),
		AuditHandler:       audit.NewHandler(logger, services.Audit, cfg.Location(), rbacMiddleware),
		JobHandler:         jobs.NewHandler(inspector, jobClient, logger, rbacMiddleware),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
