package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/carespring/clinic-scheduling/internal/billing"
	"github.com/carespring/clinic-scheduling/internal/config"
	"github.com/carespring/clinic-scheduling/internal/db"
	"github.com/carespring/clinic-scheduling/internal/entitlement"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	logger.Info("status-worker starting up")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config load error", zap.Error(err))
	}

	logger.Info("running status worker",
		zap.String("env", cfg.Env),
		zap.Duration("interval", cfg.WorkerInterval))

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		logger.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()
	logger.Info("connected to Postgres")

	ledger := entitlement.NewLedger(pgPool)
	billingSvc := billing.NewService(billing.NewPgRepository(pgPool), logger)

	// Run once at startup
	runOnce(rootCtx, logger, ledger, billingSvc)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info("shutdown signal received, stopping status worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, logger, ledger, billingSvc)
		}
	}
}

// runOnce sweeps subscriptions past their expiry date and installments past
// their due date.
func runOnce(ctx context.Context, logger *zap.Logger, ledger *entitlement.Ledger, billingSvc *billing.Service) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()

	expired, err := ledger.ExpireSubscriptions(runCtx, start)
	if err != nil {
		logger.Error("subscription expiry sweep failed", zap.Error(err))
		return
	}

	overdue, err := billingSvc.SweepOverdue(runCtx, start)
	if err != nil {
		logger.Error("installment overdue sweep failed", zap.Error(err))
		return
	}

	logger.Info("sweep complete",
		zap.Int64("subscriptions_expired", expired),
		zap.Int64("installments_overdue", overdue),
		zap.Duration("took", time.Since(start)))
}
