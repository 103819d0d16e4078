package metrics

import (
	"errors"
	"time"

	"github.com/goodnatureofminers/tsbscanner-backend/internal/tsb/chain"
	"github.com/goodnatureofminers/tsbscanner-backend/internal/tsb/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	esploraRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tsbscanner",
		Subsystem: "esplora_client",
		Name:      "requests_total",
		Help:      "Count of Esplora REST requests.",
	}, []string{"endpoint", "network", "status"})
	esploraRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "tsbscanner",
		Subsystem: "esplora_client",
		Name:      "request_duration_seconds",
		Help:      "Duration of Esplora REST requests.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"endpoint", "network", "status"})
)

// EsploraClient tracks metrics for Esplora REST calls.
type EsploraClient struct {
	network model.Network
}

func NewEsploraClient(network model.Network) *EsploraClient {
	if network == "" {
		network = "unknown"
	}
	return &EsploraClient{network: network}
}

// Observe records a request outcome. Rate limited requests get their own status.
func (m EsploraClient) Observe(endpoint string, err error, started time.Time) {
	status := statusOf(err)
	if errors.Is(err, chain.ErrRateLimited) {
		status = "rate_limited"
	}
	esploraRequestsTotal.WithLabelValues(endpoint, string(m.network), status).Inc()
	esploraRequestDuration.WithLabelValues(endpoint, string(m.network), status).Observe(time.Since(started).Seconds())
}
