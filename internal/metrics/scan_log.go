package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	scanLogFlushTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tsbscanner",
		Subsystem: "scan_log",
		Name:      "flush_total",
		Help:      "Count of scan event flushes.",
	}, []string{"status"})
	scanLogFlushDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "tsbscanner",
		Subsystem: "scan_log",
		Name:      "flush_duration_seconds",
		Help:      "Duration of scan event flushes.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"status"})
	scanLogFlushSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "tsbscanner",
		Subsystem: "scan_log",
		Name:      "flush_size",
		Help:      "Number of events per flush.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
	})
	scanLogDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tsbscanner",
		Subsystem: "scan_log",
		Name:      "dropped_total",
		Help:      "Count of scan events that could not be queued.",
	})
)

// ScanLog tracks metrics of the asynchronous scan event writer.
type ScanLog struct{}

func NewScanLog() *ScanLog {
	return &ScanLog{}
}

func (ScanLog) ObserveFlush(err error, events int, started time.Time) {
	status := statusOf(err)
	scanLogFlushTotal.WithLabelValues(status).Inc()
	scanLogFlushDuration.WithLabelValues(status).Observe(time.Since(started).Seconds())
	scanLogFlushSize.Observe(float64(events))
}

func (ScanLog) IncDropped() {
	scanLogDropped.Inc()
}
