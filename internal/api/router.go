package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/slotwise/booking-engine/internal/booking"
	"github.com/slotwise/booking-engine/internal/metrics"
)

type RouterConfig struct {
	Service *booking.Service
	PgPool  *pgxpool.Pool
	Redis   *redis.Client
	Logger  *zap.Logger
	Metrics *metrics.Collector
	Env     string
	Version string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(MetricsMiddleware(cfg.Metrics))
	r.Use(AccessLogMiddleware(cfg.Logger))

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	r.Handle("/metrics", metrics.Handler())

	r.Post("/bookings", createBookingHandler(cfg.Service))
	r.Get("/bookings/{id}", getBookingHandler(cfg.Service))
	r.Put("/bookings/{id}/cancel", cancelBookingHandler(cfg.Service))
	r.Put("/bookings/{id}/complete", completeBookingHandler(cfg.Service))

	r.Get("/providers/{id}/availability", listAvailabilityHandler(cfg.Service))
	r.Get("/providers/{id}/booked-slots", listBookedSlotsHandler(cfg.Service))

	return r
}
