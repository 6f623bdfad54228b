// Package prometheus implements the pkg/metrics interfaces with Prometheus
// collectors. Import it for its side effect of registering the constructors.
package prometheus

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/blobxfer/pkg/metrics"
	"github.com/marmos91/blobxfer/pkg/transfer"
)

var (
	cacheMu sync.Mutex
	cache   = map[*prometheus.Registry]map[string]any{}
)

// cached returns the collectors set registered under name on reg, creating
// it on first use. Registering the same metric names twice on one registry
// panics, so constructors must go through here.
func cached(reg *prometheus.Registry, name string, create func() any) any {
	cacheMu.Lock()
	defer cacheMu.Unlock()

	byName, ok := cache[reg]
	if !ok {
		byName = map[string]any{}
		cache[reg] = byName
	}
	if v, ok := byName[name]; ok {
		return v
	}
	v := create()
	byName[name] = v
	return v
}

type transferMetrics struct {
	blockResults    *prometheus.CounterVec
	blockBytes      *prometheus.CounterVec
	blockDuration   *prometheus.HistogramVec
	transfersDone   *prometheus.CounterVec
	activeTransfers prometheus.Gauge
	queueDepth      prometheus.Gauge
}

func init() {
	metrics.RegisterTransferMetricsConstructor(NewTransferMetrics)
}

// NewTransferMetrics creates controller metrics on the active registry. It
// returns nil if metrics are not enabled.
func NewTransferMetrics() metrics.TransferMetrics {
	reg := metrics.GetRegistry()
	if reg == nil {
		return nil
	}
	return cached(reg, "transfer", func() any { return newTransferMetrics(reg) }).(*transferMetrics)
}

func newTransferMetrics(reg *prometheus.Registry) *transferMetrics {
	return &transferMetrics{
		blockResults: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "blobxfer_block_results_total",
				Help: "Block outcomes that changed a block's state, by direction and outcome",
			},
			[]string{"direction", "outcome"},
		),
		blockBytes: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "blobxfer_block_bytes_total",
				Help: "Bytes covered by completed blocks",
			},
			[]string{"direction"},
		),
		blockDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "blobxfer_block_duration_milliseconds",
				Help:    "Time from dispatch to outcome of a block",
				Buckets: prometheus.ExponentialBuckets(10, 4, 8),
			},
			[]string{"direction", "outcome"},
		),
		transfersDone: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "blobxfer_transfers_finished_total",
				Help: "Blob runs that drained, by direction and aggregated state",
			},
			[]string{"direction", "state"},
		),
		activeTransfers: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "blobxfer_active_transfers",
			Help: "Blobs with a running transfer",
		}),
		queueDepth: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "blobxfer_queue_depth",
			Help: "Blocks waiting for a worker",
		}),
	}
}

func (m *transferMetrics) RecordBlockResult(direction string, outcome transfer.State, bytes int64, duration time.Duration) {
	if m == nil {
		return
	}
	m.blockResults.WithLabelValues(direction, outcome.String()).Inc()
	if duration > 0 {
		m.blockDuration.WithLabelValues(direction, outcome.String()).Observe(duration.Seconds() * 1000)
	}
	if outcome == transfer.StateComplete && bytes > 0 {
		m.blockBytes.WithLabelValues(direction).Add(float64(bytes))
	}
}

func (m *transferMetrics) RecordTransferFinished(direction string, state transfer.State) {
	if m == nil {
		return
	}
	m.transfersDone.WithLabelValues(direction, state.String()).Inc()
}

func (m *transferMetrics) SetActiveTransfers(n int) {
	if m == nil {
		return
	}
	m.activeTransfers.Set(float64(n))
}

func (m *transferMetrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}
