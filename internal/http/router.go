package http

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robertarktes/event-ticket-payments/internal/observability"
	"github.com/robertarktes/event-ticket-payments/internal/ratelimit"
)

func SetupRouter(h *Handlers, logger observability.Logger, rl *ratelimit.RateLimiter) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggerMiddleware(logger))
	r.Use(TracingMiddleware)
	r.Use(MetricsMiddleware)
	r.Use(RateLimitMiddleware(rl))

	r.With(IdempotencyKeyMiddleware).Post("/v1/checkout", h.Checkout)
	r.Post("/v1/payments/webhook", h.Webhook)
	r.Get("/v1/orders/{id}", h.GetOrder)
	r.With(IdempotencyKeyMiddleware).Post("/v1/payouts", h.CreatePayout)
	r.Post("/v1/payouts/{id}/resolve", h.ResolvePayout)
	r.Get("/v1/owners/{ownerID}/balance", h.GetBalance)
	r.Get("/v1/healthz", h.Healthz)
	r.Get("/v1/readyz", h.Readyz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}
