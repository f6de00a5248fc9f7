package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Total number of orders created from carts",
	})

	OrdersFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_failed_total",
		Help: "Total number of failed order creations",
	}, []string{"reason"})

	OrdersCancelledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_cancelled_total",
		Help: "Total number of cancelled orders",
	})

	OrderCreateLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "order_create_latency_seconds",
		Help:    "Latency of the order creation transaction",
		Buckets: prometheus.DefBuckets,
	})

	StockReservationsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_reservations_failed_total",
		Help: "Total number of failed stock reservations",
	}, []string{"reason"})

	WalletCreditsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wallet_credits_total",
		Help: "Total number of seller wallet credits",
	})

	WalletCreditsDuplicateTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wallet_credits_duplicate_total",
		Help: "Total number of duplicate wallet credit attempts rejected",
	})

	WalletReleasesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wallet_pending_releases_total",
		Help: "Total number of pending-to-available releases",
	})

	WithdrawalsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wallet_withdrawals_total",
		Help: "Total number of wallet withdrawals",
	})

	PayoutsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payout_requests_total",
		Help: "Total number of payout request transitions",
	}, []string{"outcome"})

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
