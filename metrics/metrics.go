package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tradeshm_fresh_updates_total",
		Help: "Slots observed with a new trade since the previous poll",
	}, []string{"symbol"})

	TornReadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tradeshm_torn_reads_total",
		Help: "Polls that caught a slot mid-update",
	}, []string{"symbol"})

	ReadErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tradeshm_read_errors_total",
		Help: "Polls that failed for a reason other than tearing",
	}, []string{"symbol"})

	LatencyMs = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tradeshm_trade_latency_ms",
		Help:    "Local receive time minus exchange event time",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 14), // 0.5ms -> ~4s
	}, []string{"symbol"})

	PollDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tradeshm_poll_duration_seconds",
		Help:    "Duration of one pass over every configured slot",
		Buckets: prometheus.ExponentialBuckets(0.000001, 4, 10), // 1us -> ~0.26s
	})

	PublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tradeshm_published_total",
		Help: "Trades written into the region by the publisher",
	}, []string{"symbol"})
)

func ObserveFresh(symbol string, latencyMs float64) {
	FreshTotal.WithLabelValues(symbol).Inc()
	LatencyMs.WithLabelValues(symbol).Observe(latencyMs)
}

func ObservePoll(dur time.Duration) {
	PollDuration.Observe(dur.Seconds())
}
