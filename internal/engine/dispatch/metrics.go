package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeSent      = "sent"
	outcomeDeduped   = "deduped"
	outcomeCoalesced = "coalesced"
	outcomeStale     = "stale"
	outcomeFailed    = "failed"
)

var (
	// dispatchTotal counts Dispatch calls by outcome
	dispatchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "geodir_dispatch_total",
		Help: "Search dispatches by outcome",
	}, []string{"outcome"})

	backendLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "geodir_backend_request_duration_seconds",
		Help:    "Search backend latency in seconds",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
	})
)
