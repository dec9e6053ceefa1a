// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Discovery metrics
	PoolsDetected     *prometheus.CounterVec
	CandidatesDropped *prometheus.CounterVec

	// Scoring metrics
	CandidatesFiltered *prometheus.CounterVec
	CandidatesScored   *prometheus.CounterVec
	ScoreDistribution  prometheus.Histogram

	// Position metrics
	PositionsOpened     prometheus.Counter
	OpenRejected        *prometheus.CounterVec
	PositionsClosed     *prometheus.CounterVec
	OpenPositions       prometheus.Gauge
	SellFailures        prometheus.Counter
	RealizedPnL         prometheus.Gauge
	CapitalAvailable    prometheus.Gauge
	CapitalReserved     prometheus.Gauge
	PriceUpdateDuration prometheus.Histogram

	// Latency metrics
	RPCCallLatency   *prometheus.HistogramVec
	WSMessageLatency prometheus.Histogram
	PriceFetchErrors *prometheus.CounterVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Notification metrics
	NotificationsSent *prometheus.CounterVec

	// Health metrics
	LastMonitorTick prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "dex_pair_sentinel"
	}

	return &Metrics{
		PoolsDetected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "pools_detected_total",
			Help:      "Total number of new pools detected by source",
		}, []string{"source"}),
		CandidatesDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "candidates_dropped_total",
			Help:      "Candidate snapshots dropped before scoring by reason",
		}, []string{"reason"}),

		CandidatesFiltered: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scoring",
			Name:      "candidates_filtered_total",
			Help:      "Candidates rejected by the quick filter",
		}, []string{"reason"}),
		CandidatesScored: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scoring",
			Name:      "candidates_scored_total",
			Help:      "Candidates scored by outcome (passed, failed, rejected)",
		}, []string{"outcome"}),
		ScoreDistribution: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scoring",
			Name:      "quality_score",
			Help:      "Distribution of non-rejected quality scores",
			Buckets:   prometheus.LinearBuckets(0, 10, 11),
		}),

		PositionsOpened: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "positions",
			Name:      "opened_total",
			Help:      "Total number of positions opened",
		}),
		OpenRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "positions",
			Name:      "open_rejected_total",
			Help:      "Open requests refused by reason",
		}, []string{"reason"}),
		PositionsClosed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "positions",
			Name:      "closed_total",
			Help:      "Total number of positions closed by exit reason",
		}, []string{"reason"}),
		OpenPositions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "positions",
			Name:      "open",
			Help:      "Current number of non-closed positions",
		}),
		SellFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "positions",
			Name:      "sell_failures_total",
			Help:      "Sell attempts that failed or timed out",
		}),
		RealizedPnL: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "positions",
			Name:      "realized_pnl_native",
			Help:      "Net realized profit/loss in native units this session",
		}),
		CapitalAvailable: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "available_native",
			Help:      "Capital available for new positions",
		}),
		CapitalReserved: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "reserved_native",
			Help:      "Capital reserved by open positions",
		}),
		PriceUpdateDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "positions",
			Name:      "price_update_duration_seconds",
			Help:      "Time to evaluate one price update incl. any sell",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
		}),

		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "call_latency_seconds",
			Help:      "RPC call latency in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		}, []string{"method"}),
		WSMessageLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "message_latency_seconds",
			Help:      "WebSocket message processing latency",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 12),
		}),
		PriceFetchErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "market",
			Name:      "price_fetch_errors_total",
			Help:      "Price quote failures by source",
		}, []string{"source"}),

		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		NotificationsSent: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "events_total",
			Help:      "Notifier deliveries by channel and status",
		}, []string{"channel", "status"}),

		LastMonitorTick: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_monitor_tick_timestamp",
			Help:      "Unix timestamp of last completed position monitor tick",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordPoolDetected increments the pools detected counter.
func RecordPoolDetected(source string) {
	DefaultMetrics.PoolsDetected.WithLabelValues(source).Inc()
}

// RecordCandidateDropped records a snapshot dropped before scoring.
func RecordCandidateDropped(reason string) {
	DefaultMetrics.CandidatesDropped.WithLabelValues(reason).Inc()
}

// RecordFiltered records a quick filter rejection.
func RecordFiltered(reason string) {
	DefaultMetrics.CandidatesFiltered.WithLabelValues(reason).Inc()
}

// RecordScore records a scoring outcome. Rejected scores are not observed in the histogram.
func RecordScore(outcome string, total float64, rejected bool) {
	DefaultMetrics.CandidatesScored.WithLabelValues(outcome).Inc()
	if !rejected {
		DefaultMetrics.ScoreDistribution.Observe(total)
	}
}

// RecordPositionOpened increments the opened counter.
func RecordPositionOpened() {
	DefaultMetrics.PositionsOpened.Inc()
}

// RecordOpenRejected records a refused open.
func RecordOpenRejected(reason string) {
	DefaultMetrics.OpenRejected.WithLabelValues(reason).Inc()
}

// RecordPositionClosed records a close by exit reason.
func RecordPositionClosed(reason string) {
	DefaultMetrics.PositionsClosed.WithLabelValues(reason).Inc()
}

// RecordSellFailure increments the sell failure counter.
func RecordSellFailure() {
	DefaultMetrics.SellFailures.Inc()
}

// UpdatePositions sets position and ledger gauges.
func UpdatePositions(open int, available, reserved, realized float64) {
	DefaultMetrics.OpenPositions.Set(float64(open))
	DefaultMetrics.CapitalAvailable.Set(available)
	DefaultMetrics.CapitalReserved.Set(reserved)
	DefaultMetrics.RealizedPnL.Set(realized)
}

// RecordPriceUpdate records price update handling time.
func RecordPriceUpdate(seconds float64) {
	DefaultMetrics.PriceUpdateDuration.Observe(seconds)
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordWSMessage records websocket message handling latency.
func RecordWSMessage(seconds float64) {
	DefaultMetrics.WSMessageLatency.Observe(seconds)
}

// RecordPriceFetchError records a failed price quote.
func RecordPriceFetchError(source string) {
	DefaultMetrics.PriceFetchErrors.WithLabelValues(source).Inc()
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// RecordNotification records a notifier delivery.
func RecordNotification(channel string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	DefaultMetrics.NotificationsSent.WithLabelValues(channel, status).Inc()
}

// RecordMonitorTick sets the last monitor tick timestamp.
func RecordMonitorTick(unix int64) {
	DefaultMetrics.LastMonitorTick.Set(float64(unix))
}
