package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/carespring/clinic-scheduling/internal/api"
	"github.com/carespring/clinic-scheduling/internal/billing"
	"github.com/carespring/clinic-scheduling/internal/calendar"
	"github.com/carespring/clinic-scheduling/internal/config"
	"github.com/carespring/clinic-scheduling/internal/db"
	"github.com/carespring/clinic-scheduling/internal/entitlement"
	redisclient "github.com/carespring/clinic-scheduling/internal/redis"
	"github.com/carespring/clinic-scheduling/internal/schedule"
)

const version = "1.0.0"

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	logger.Info("api-server starting up")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config load error", zap.Error(err))
	}

	logger.Info("running", zap.String("env", cfg.Env), zap.String("http_port", cfg.HTTPPort))

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres and run migrations
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		logger.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()
	logger.Info("connected to Postgres")

	migCtx, cancelMig := context.WithTimeout(rootCtx, 30*time.Second)
	err = db.Migrate(migCtx, pgPool)
	cancelMig()
	if err != nil {
		logger.Fatal("migration error", zap.Error(err))
	}

	// Connect Redis
	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		logger.Fatal("redis connection error", zap.Error(err))
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Warn("error closing redis", zap.Error(err))
		}
	}()
	logger.Info("connected to Redis")

	var cal calendar.Adapter = calendar.Disabled{}
	if cfg.CalendarWebhookURL != "" {
		cal = calendar.NewWebhookAdapter(cfg.CalendarWebhookURL)
		logger.Info("calendar sync enabled", zap.String("url", cfg.CalendarWebhookURL))
	}

	locker := redisclient.NewRedisLocker(rdb, cfg.LockTTL)
	schedRepo := schedule.NewPgRepository(pgPool)
	schedSvc := schedule.NewService(schedRepo, locker, cal, logger)
	ledger := entitlement.NewLedger(pgPool)
	billingSvc := billing.NewService(billing.NewPgRepository(pgPool), logger)

	router := api.NewRouter(api.RouterConfig{
		Scheduling: schedSvc,
		Ledger:     ledger,
		Billing:    billingSvc,
		PgPool:     pgPool,
		Redis:      rdb,
		Logger:     logger,
		Env:        cfg.Env,
		Version:    version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-rootCtx.Done()
	logger.Info("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
	}
}
