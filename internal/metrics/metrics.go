package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	analysesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "solvemate_analyses_total",
		Help: "Number of analyzer submissions by outcome.",
	}, []string{"status"})

	analysisDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "solvemate_analysis_duration_seconds",
		Help:    "Wall time of remote analyzer calls.",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
	})

	historyWritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "solvemate_history_writes_total",
		Help: "Number of background history appends by outcome.",
	}, []string{"status"})

	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "solvemate_active_sessions",
		Help: "Number of live analysis sessions.",
	})
)

// ObserveAnalysis records the outcome and duration of one analyzer call.
func ObserveAnalysis(status string, elapsed time.Duration) {
	analysesTotal.WithLabelValues(status).Inc()
	analysisDuration.Observe(elapsed.Seconds())
}

// IncHistoryWrite records the outcome of one background history append.
func IncHistoryWrite(status string) {
	historyWritesTotal.WithLabelValues(status).Inc()
}

// SessionOpened increments the live session gauge.
func SessionOpened() { activeSessions.Inc() }

// SessionClosed decrements the live session gauge.
func SessionClosed() { activeSessions.Dec() }

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
