package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ReservationAttemptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stock_reservation_attempts_total",
		Help: "Total number of stock reservation attempts",
	})

	ReservationSuccessTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stock_reservation_success_total",
		Help: "Total number of successful stock reservations",
	})

	ReservationFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_reservation_failed_total",
		Help: "Total number of failed stock reservations",
	}, []string{"reason"})

	ReservationLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "stock_reservation_latency_seconds",
		Help:    "Latency of stock reservation attempts",
		Buckets: prometheus.DefBuckets,
	})

	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "repair_orders_created_total",
		Help: "Total number of repair orders created",
	})

	OrdersPaidTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "repair_orders_paid_total",
		Help: "Total number of repair orders confirmed as paid",
	})

	WebhooksReceivedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_webhooks_received_total",
		Help: "Total number of payment webhooks received",
	})

	WebhooksRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_webhooks_rejected_total",
		Help: "Total number of rejected payment webhooks",
	}, []string{"reason"})

	WebhooksDuplicateTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_webhooks_duplicate_total",
		Help: "Total number of duplicate payment webhooks short-circuited",
	})

	WebhookProcessingLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "payment_webhook_processing_latency_seconds",
		Help:    "Latency of payment webhook processing",
		Buckets: prometheus.DefBuckets,
	})

	FollowUpEnqueuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "followup_tasks_enqueued_total",
		Help: "Total number of post-payment follow-up tasks enqueued",
	})

	FollowUpEnqueueFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "followup_tasks_enqueue_failed_total",
		Help: "Total number of follow-up enqueue failures",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
