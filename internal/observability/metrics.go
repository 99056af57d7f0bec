package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "etp_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "code", "method"},
	)

	DBTxDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "etp_db_tx_seconds",
			Help:    "Duration of DB transactions",
			Buckets: prometheus.DefBuckets,
		},
	)

	OrdersPaid = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "etp_orders_paid_total",
			Help: "Orders transitioned to paid",
		},
	)

	TicketsIssued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "etp_tickets_issued_total",
			Help: "Tickets issued",
		},
	)

	PayoutsRequested = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "etp_payouts_requested_total",
			Help: "Payout requests accepted as pending",
		},
	)

	WebhookRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "etp_webhook_rejected_total",
			Help: "Webhook deliveries rejected for bad signatures",
		},
	)

	NotifyFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "etp_notify_failures_total",
			Help: "Notification publishes that failed and were dropped",
		},
	)

	OutboxLag = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "etp_outbox_lag_seconds",
			Help: "Age of the oldest unpublished outbox record",
		},
	)

	RateLimitExceeded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "etp_rate_limit_exceeded_total",
			Help: "Requests rejected by the rate limiter",
		},
	)
)
