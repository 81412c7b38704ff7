// Package metrics 定义服务的 Prometheus 指标
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "otakumori",
		Name:      "http_requests_total",
		Help:      "HTTP requests by route and status.",
	}, []string{"method", "route", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "otakumori",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	LedgerPostings = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "otakumori",
		Name:      "petal_ledger_postings_total",
		Help:      "Committed petal ledger entries by type and reason.",
	}, []string{"type", "reason"})

	LedgerRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "otakumori",
		Name:      "petal_ledger_rejections_total",
		Help:      "Rejected ledger postings by cause.",
	}, []string{"cause"})

	GachaRewards = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "otakumori",
		Name:      "gacha_rewards_total",
		Help:      "Gacha pulls by reward key.",
	}, []string{"reward"})

	SoapstoneAutoHidden = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "otakumori",
		Name:      "soapstone_auto_hidden_total",
		Help:      "Soapstone messages hidden after crossing the report threshold.",
	})

	OutboxPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "otakumori",
		Name:      "outbox_published_total",
		Help:      "Outbox relay attempts by result.",
	}, []string{"result"})

	BalanceDrift = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "otakumori",
		Name:      "petal_balance_drift_total",
		Help:      "Users whose cached balance disagreed with the ledger during an audit.",
	})
)
