// Package metrics exposes Prometheus collectors for the scanner and its dependencies.
package metrics

import (
	"time"

	"github.com/goodnatureofminers/tsbscanner-backend/internal/tsb/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	scannerPassTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tsbscanner",
		Subsystem: "scanner",
		Name:      "pass_total",
		Help:      "Count of scan passes by mode.",
	}, []string{"network", "mode", "status"})

	scannerPassDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "tsbscanner",
		Subsystem: "scanner",
		Name:      "pass_duration_seconds",
		Help:      "Duration of scan passes.",
		Buckets:   []float64{.1, .5, 1, 5, 15, 30, 60, 120, 300, 900, 1800},
	}, []string{"network", "mode", "status"})

	scannerBatchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tsbscanner",
		Subsystem: "scanner",
		Name:      "batch_total",
		Help:      "Count of catch-up batches.",
	}, []string{"network", "status"})

	scannerBatchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "tsbscanner",
		Subsystem: "scanner",
		Name:      "batch_duration_seconds",
		Help:      "Duration of catch-up batches.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"network", "status"})

	scannerBatchSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "tsbscanner",
		Subsystem: "scanner",
		Name:      "batch_size",
		Help:      "Number of heights per catch-up batch.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 10), // 1..512
	}, []string{"network"})

	scannerHeightDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "tsbscanner",
		Subsystem: "scanner",
		Name:      "height_duration_seconds",
		Help:      "Duration of fetching and decoding a single height.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"network", "mode", "status"})

	scannerTokensTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tsbscanner",
		Subsystem: "scanner",
		Name:      "tokens_total",
		Help:      "Count of token writes by outcome.",
	}, []string{"network", "outcome"})

	scannerCheckpointHeight = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "tsbscanner",
		Subsystem: "scanner",
		Name:      "checkpoint_height",
		Help:      "Last scanned height saved in the checkpoint.",
	}, []string{"network"})

	scannerTipHeight = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "tsbscanner",
		Subsystem: "scanner",
		Name:      "tip_height",
		Help:      "Chain tip observed by the last pass.",
	}, []string{"network"})

	scannerSkippedTicks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tsbscanner",
		Subsystem: "scanner",
		Name:      "skipped_ticks_total",
		Help:      "Count of timer ticks skipped because a pass was still running.",
	}, []string{"network"})
)

// Scanner records scan pass metrics.
type Scanner struct {
	network model.Network
}

// NewScanner creates a Scanner metrics collector.
func NewScanner(network model.Network) *Scanner {
	if network == "" {
		network = "unknown"
	}
	return &Scanner{network: network}
}

func (m Scanner) ObservePass(mode model.ScanMode, err error, started time.Time) {
	status := statusOf(err)
	scannerPassTotal.WithLabelValues(string(m.network), string(mode), status).Inc()
	scannerPassDuration.WithLabelValues(string(m.network), string(mode), status).
		Observe(time.Since(started).Seconds())
}

func (m Scanner) ObserveBatch(err error, heights int, started time.Time) {
	status := statusOf(err)
	scannerBatchTotal.WithLabelValues(string(m.network), status).Inc()
	scannerBatchDuration.WithLabelValues(string(m.network), status).Observe(time.Since(started).Seconds())
	scannerBatchSize.WithLabelValues(string(m.network)).Observe(float64(heights))
}

func (m Scanner) ObserveHeight(mode model.ScanMode, err error, started time.Time) {
	scannerHeightDuration.WithLabelValues(string(m.network), string(mode), statusOf(err)).
		Observe(time.Since(started).Seconds())
}

func (m Scanner) ObserveTokens(res model.InsertResult) {
	scannerTokensTotal.WithLabelValues(string(m.network), "inserted").Add(float64(res.Inserted))
	scannerTokensTotal.WithLabelValues(string(m.network), "duplicate").Add(float64(res.Duplicates))
	scannerTokensTotal.WithLabelValues(string(m.network), "failed").Add(float64(res.Failed))
}

func (m Scanner) SetCheckpoint(height uint64) {
	scannerCheckpointHeight.WithLabelValues(string(m.network)).Set(float64(height))
}

func (m Scanner) SetTip(height uint64) {
	scannerTipHeight.WithLabelValues(string(m.network)).Set(float64(height))
}

func (m Scanner) IncSkippedTick() {
	scannerSkippedTicks.WithLabelValues(string(m.network)).Inc()
}

func statusOf(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
