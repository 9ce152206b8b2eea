package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/carespring/clinic-scheduling/internal/billing"
	"github.com/carespring/clinic-scheduling/internal/entitlement"
	"github.com/carespring/clinic-scheduling/internal/schedule"
)

type RouterConfig struct {
	Scheduling *schedule.Service
	Ledger     *entitlement.Ledger
	Billing    *billing.Service
	PgPool     *pgxpool.Pool
	Redis      *redis.Client
	Logger     *zap.Logger
	Env        string
	Version    string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Appointment lifecycle
	r.Post("/appointments", createAppointmentHandler(cfg.Scheduling))
	r.Get("/appointments", listAppointmentsHandler(cfg.Scheduling))
	r.Get("/appointments/{id}", getAppointmentHandler(cfg.Scheduling))
	r.Patch("/appointments/{id}", rescheduleAppointmentHandler(cfg.Scheduling))
	r.Post("/appointments/{id}/cancel", cancelAppointmentHandler(cfg.Scheduling))
	r.Post("/appointments/{id}/complete", completeAppointmentHandler(cfg.Scheduling))

	// Recurring availability
	r.Get("/professionals/{id}/windows", listWindowsHandler(cfg.Scheduling))
	r.Post("/professionals/{id}/windows", createWindowHandler(cfg.Scheduling))
	r.Get("/professionals/{id}/agenda", professionalAgendaHandler(cfg.Scheduling))
	r.Delete("/windows/{id}", removeWindowHandler(cfg.Scheduling))

	// Subscription entitlements
	r.Post("/subscriptions", createSubscriptionHandler(cfg.Ledger))
	r.Get("/subscriptions", listSubscriptionsHandler(cfg.Ledger))
	r.Get("/subscriptions/{id}", getSubscriptionHandler(cfg.Ledger))
	r.Post("/subscriptions/{id}/cancel", cancelSubscriptionHandler(cfg.Ledger))
	r.Post("/subscriptions/{id}/reserve", reserveSessionHandler(cfg.Ledger))
	r.Post("/reservations/{id}/release", releaseReservationHandler(cfg.Ledger))

	// Payments
	r.Post("/payments", createPaymentHandler(cfg.Billing))
	r.Get("/payments", listPaymentsHandler(cfg.Billing))
	r.Get("/payments/{id}", getPaymentHandler(cfg.Billing))
	r.Post("/payments/{id}/status", updatePaymentStatusHandler(cfg.Billing))
	r.Post("/installments/{id}/pay", payInstallmentHandler(cfg.Billing))

	return r
}
