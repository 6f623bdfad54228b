package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/blobxfer/pkg/metrics"
)

// s3Metrics is the Prometheus implementation of metrics.S3Metrics.
type s3Metrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	bytesTransferred  *prometheus.CounterVec
}

func init() {
	metrics.RegisterS3MetricsConstructor(NewS3Metrics)
}

// NewS3Metrics creates S3 metrics on the active registry. It returns nil if
// metrics are not enabled. Repeated calls share one set of collectors.
func NewS3Metrics() metrics.S3Metrics {
	reg := metrics.GetRegistry()
	if reg == nil {
		return nil
	}
	return cached(reg, "s3", func() any { return newS3Metrics(reg) }).(*s3Metrics)
}

func newS3Metrics(reg *prometheus.Registry) *s3Metrics {
	return &s3Metrics{
		operationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "blobxfer_s3_operations_total",
				Help: "Total number of S3 operations by operation type and status",
			},
			[]string{"operation", "status"},
		),
		operationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "blobxfer_s3_operation_duration_milliseconds",
				Help: "Duration of S3 operations in milliseconds",
				Buckets: []float64{
					10,    // metadata calls
					50,    //
					100,   //
					500,   //
					1000,  // one 8MiB part on a fast link
					5000,  //
					10000, //
					30000, // large parts or slow links
				},
			},
			[]string{"operation"},
		),
		bytesTransferred: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "blobxfer_s3_bytes_transferred_total",
				Help: "Total payload bytes moved through S3 operations",
			},
			[]string{"operation", "direction"},
		),
	}
}

func (m *s3Metrics) ObserveOperation(operation string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.operationsTotal.WithLabelValues(operation, status).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds() * 1000)
}

func (m *s3Metrics) RecordBytes(operation string, bytes int64) {
	if m == nil || bytes <= 0 {
		return
	}
	direction := "write"
	if operation == "GetObject" {
		direction = "read"
	}
	m.bytesTransferred.WithLabelValues(operation, direction).Add(float64(bytes))
}
