package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/marmos91/blobxfer/pkg/transfer"
)

// recordSpans swaps in an SDK tracer backed by an in-memory recorder.
func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	setTracer(provider.Tracer(instrumentationName), true)
	t.Cleanup(func() {
		_ = provider.Shutdown(context.Background())
		_, _ = Init(context.Background(), Config{})
	})
	return rec
}

func attrMap(kvs []attribute.KeyValue) map[string]attribute.Value {
	m := make(map[string]attribute.Value, len(kvs))
	for _, kv := range kvs {
		m[string(kv.Key)] = kv.Value
	}
	return m
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.False(t, cfg.Enabled)
	assert.Equal(t, "blobxfer", cfg.ServiceName)
	assert.Equal(t, "localhost:4317", cfg.Endpoint)
	assert.True(t, cfg.Insecure)
	assert.Equal(t, 1.0, cfg.SampleRate)
}

func TestInitDisabled(t *testing.T) {
	ctx := context.Background()

	shutdown, err := Init(ctx, DefaultConfig())
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(ctx))
	assert.False(t, IsEnabled())

	// The no-op tracer still hands out usable spans.
	spanCtx, span := StartSpan(ctx, "noop")
	require.NotNil(t, span)
	assert.Empty(t, TraceID(spanCtx))
	RecordError(spanCtx, errors.New("ignored"))
	span.End()
}

func TestSampler(t *testing.T) {
	assert.Equal(t, sdktrace.AlwaysSample().Description(), sampler(1).Description())
	assert.Equal(t, sdktrace.NeverSample().Description(), sampler(0).Description())
	assert.Contains(t, sampler(0.25).Description(), "TraceIDRatioBased")
}

func TestStartBlockSpan(t *testing.T) {
	rec := recordSpans(t)
	assert.True(t, IsEnabled())

	blob := &transfer.BlobTransfer{ID: "blob-1", Type: transfer.TypeUpload, StartRange: 0, EndRange: 299}
	block := &transfer.BlockTransfer{ID: "block-2", BlobID: "blob-1", Index: 2, StartRange: 200, EndRange: 299}

	ctx, span := StartBlockSpan(context.Background(), blob, block, Worker(3))
	assert.NotEmpty(t, TraceID(ctx))
	AddEvent(ctx, EventRetry, Attempt(1))
	RecordError(ctx, errors.New("boom"))
	span.End()

	spans := rec.Ended()
	require.Len(t, spans, 1)
	got := spans[0]
	assert.Equal(t, SpanBlock, got.Name())
	assert.Equal(t, codes.Error, got.Status().Code)
	require.Len(t, got.Events(), 2, "retry event plus the recorded error")
	assert.Equal(t, EventRetry, got.Events()[0].Name)

	attrs := attrMap(got.Attributes())
	assert.Equal(t, "blob-1", attrs[AttrBlobID].AsString())
	assert.Equal(t, "upload", attrs[AttrDirection].AsString())
	assert.Equal(t, int64(2), attrs[AttrBlockIndex].AsInt64())
	assert.Equal(t, int64(200), attrs[AttrRangeStart].AsInt64())
	assert.Equal(t, int64(100), attrs[AttrBytes].AsInt64())
	assert.Equal(t, int64(3), attrs[AttrWorker].AsInt64())
}

func TestStartBlobSpan(t *testing.T) {
	rec := recordSpans(t)

	blob := &transfer.BlobTransfer{ID: "blob-1", Type: transfer.TypeDownload, ParentID: "batch-1"}
	_, span := StartBlobSpan(context.Background(), SpanFinalize, blob, Outcome(transfer.StateComplete))
	span.End()

	require.Len(t, rec.Ended(), 1)
	attrs := attrMap(rec.Ended()[0].Attributes())
	assert.Equal(t, "batch-1", attrs[AttrBatchID].AsString())
	assert.Equal(t, "download", attrs[AttrDirection].AsString())
	assert.Equal(t, "complete", attrs[AttrOutcome].AsString())
}

func TestStartS3Span(t *testing.T) {
	rec := recordSpans(t)

	_, span := StartS3Span(context.Background(), "UploadPart", "bucket", "a/b.bin", Part(4))
	span.End()

	require.Len(t, rec.Ended(), 1)
	got := rec.Ended()[0]
	assert.Equal(t, "s3.UploadPart", got.Name())
	attrs := attrMap(got.Attributes())
	assert.Equal(t, "bucket", attrs[AttrBucket].AsString())
	assert.Equal(t, "a/b.bin", attrs[AttrKey].AsString())
	assert.Equal(t, int64(4), attrs[AttrPart].AsInt64())
}

func TestInitProfilingDisabled(t *testing.T) {
	shutdown, err := InitProfiling(ProfilingConfig{})
	require.NoError(t, err)
	assert.NoError(t, shutdown())
	assert.False(t, IsProfilingEnabled())
}

func TestInitProfilingRejectsUnknownType(t *testing.T) {
	_, err := InitProfiling(ProfilingConfig{Enabled: true, ProfileTypes: []string{"cpu", "heap"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "heap")
	assert.False(t, IsProfilingEnabled())
}

func TestParseProfileType(t *testing.T) {
	for _, name := range ProfileTypeNames {
		_, err := parseProfileType(name)
		assert.NoError(t, err, name)
	}
}
