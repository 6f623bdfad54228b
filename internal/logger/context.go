package logger

import (
	"context"
	"time"
)

type contextKey struct{}

// LogContext holds the fields of one transfer operation that every log line
// emitted on its behalf should carry.
type LogContext struct {
	BlobID    string
	BatchID   string
	Operation string // start, pause, cancel, recover, ...
	StartTime time.Time
}

// NewLogContext starts a LogContext for an operation on a blob.
func NewLogContext(operation, blobID string) *LogContext {
	return &LogContext{
		BlobID:    blobID,
		Operation: operation,
		StartTime: time.Now(),
	}
}

// WithContext returns a context carrying lc.
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, contextKey{}, lc)
}

// FromContext returns the LogContext stored in ctx, or nil.
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(contextKey{}).(*LogContext)
	return lc
}

// WithBatch returns a copy of lc bound to a batch.
func (lc *LogContext) WithBatch(batchID string) *LogContext {
	if lc == nil {
		return nil
	}
	c := *lc
	c.BatchID = batchID
	return &c
}

// DurationMs returns the time since StartTime in milliseconds.
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return Duration(lc.StartTime)
}

func withContextFields(ctx context.Context, args []any) []any {
	lc := FromContext(ctx)
	if lc == nil {
		return args
	}

	out := make([]any, 0, 6+len(args))
	if lc.Operation != "" {
		out = append(out, KeyOperation, lc.Operation)
	}
	if lc.BatchID != "" {
		out = append(out, KeyBatchID, lc.BatchID)
	}
	if lc.BlobID != "" {
		out = append(out, KeyBlobID, lc.BlobID)
	}
	return append(out, args...)
}
