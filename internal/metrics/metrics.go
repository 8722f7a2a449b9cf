package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CheckoutsCompletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pos_checkouts_completed_total",
		Help: "Total number of committed checkouts",
	})

	CheckoutsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_checkouts_failed_total",
		Help: "Total number of failed checkouts",
	}, []string{"reason"})

	SaleUnitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pos_sale_units_total",
		Help: "Total units sold across committed checkouts",
	})

	ReportsGeneratedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_reports_generated_total",
		Help: "Total number of sales reports generated",
	}, []string{"format"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pos_http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
)
