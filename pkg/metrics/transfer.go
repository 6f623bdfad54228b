package metrics

import (
	"time"

	"github.com/marmos91/blobxfer/pkg/transfer"
)

// TransferMetrics observes the controller. Implementations must be safe for
// concurrent use.
type TransferMetrics interface {
	// RecordBlockResult records a block outcome that changed the block's
	// state. Repeated reports of the same outcome are not recorded.
	RecordBlockResult(direction string, outcome transfer.State, bytes int64, duration time.Duration)

	// RecordTransferFinished records a blob run that drained, labeled by
	// the blob's aggregated state.
	RecordTransferFinished(direction string, state transfer.State)

	// SetActiveTransfers reports the number of blobs with a running run.
	SetActiveTransfers(n int)

	// SetQueueDepth reports the number of blocks waiting for a worker.
	SetQueueDepth(n int)
}

var newPrometheusTransferMetrics func() TransferMetrics

// RegisterTransferMetricsConstructor registers the Prometheus constructor.
// Called by pkg/metrics/prometheus during package initialization.
func RegisterTransferMetricsConstructor(constructor func() TransferMetrics) {
	newPrometheusTransferMetrics = constructor
}

// NewTransferMetrics returns the registered implementation, or nil when
// metrics are disabled or no implementation is linked in.
func NewTransferMetrics() TransferMetrics {
	if !IsEnabled() || newPrometheusTransferMetrics == nil {
		return nil
	}
	return newPrometheusTransferMetrics()
}

// RecordBlockResult is a nil-safe TransferMetrics.RecordBlockResult.
func RecordBlockResult(m TransferMetrics, direction string, outcome transfer.State, bytes int64, duration time.Duration) {
	if m != nil {
		m.RecordBlockResult(direction, outcome, bytes, duration)
	}
}

// RecordTransferFinished is a nil-safe TransferMetrics.RecordTransferFinished.
func RecordTransferFinished(m TransferMetrics, direction string, state transfer.State) {
	if m != nil {
		m.RecordTransferFinished(direction, state)
	}
}

// SetActiveTransfers is a nil-safe TransferMetrics.SetActiveTransfers.
func SetActiveTransfers(m TransferMetrics, n int) {
	if m != nil {
		m.SetActiveTransfers(n)
	}
}

// SetQueueDepth is a nil-safe TransferMetrics.SetQueueDepth.
func SetQueueDepth(m TransferMetrics, n int) {
	if m != nil {
		m.SetQueueDepth(n)
	}
}
