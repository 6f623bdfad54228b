package metrics

import "time"

// S3Metrics observes calls made by the S3 executor.
type S3Metrics interface {
	// ObserveOperation records one S3 API call, e.g. "UploadPart".
	ObserveOperation(operation string, duration time.Duration, err error)

	// RecordBytes records payload bytes moved by an operation.
	RecordBytes(operation string, bytes int64)
}

var newPrometheusS3Metrics func() S3Metrics

// RegisterS3MetricsConstructor registers the Prometheus S3 constructor.
func RegisterS3MetricsConstructor(constructor func() S3Metrics) {
	newPrometheusS3Metrics = constructor
}

// NewS3Metrics returns the registered implementation, or nil when metrics
// are disabled. Pass the result straight to the S3 executor; nil disables
// instrumentation.
func NewS3Metrics() S3Metrics {
	if !IsEnabled() || newPrometheusS3Metrics == nil {
		return nil
	}
	return newPrometheusS3Metrics()
}

// ObserveOperation is a nil-safe S3Metrics.ObserveOperation.
//
//	start := time.Now()
//	_, err := client.UploadPart(ctx, in)
//	metrics.ObserveOperation(m, "UploadPart", time.Since(start), err)
func ObserveOperation(m S3Metrics, operation string, duration time.Duration, err error) {
	if m != nil {
		m.ObserveOperation(operation, duration, err)
	}
}

// RecordBytes is a nil-safe S3Metrics.RecordBytes.
func RecordBytes(m S3Metrics, operation string, bytes int64) {
	if m != nil {
		m.RecordBytes(operation, bytes)
	}
}
