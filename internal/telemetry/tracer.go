package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/marmos91/blobxfer/pkg/transfer"
)

// Attribute keys.
const (
	AttrBlobID     = "transfer.blob_id"
	AttrBatchID    = "transfer.batch_id"
	AttrBlockID    = "transfer.block_id"
	AttrBlockIndex = "transfer.block_index"
	AttrDirection  = "transfer.direction"
	AttrRangeStart = "transfer.range_start"
	AttrRangeEnd   = "transfer.range_end"
	AttrBytes      = "transfer.bytes"
	AttrOutcome    = "transfer.outcome"
	AttrWorker     = "transfer.worker"

	AttrBucket  = "storage.bucket"
	AttrKey     = "storage.key"
	AttrPart    = "storage.part"
	AttrAttempt = "retry.attempt"
)

// Span names.
const (
	SpanBlock    = "transfer.block"
	SpanPrepare  = "transfer.prepare"
	SpanFinalize = "transfer.finalize"
	SpanAbort    = "transfer.abort"
	SpanRecover  = "transfer.recover"
)

// Events.
const (
	EventRetry       = "retry"
	EventInterrupted = "interrupted"
)

func BlobID(id string) attribute.KeyValue {
	return attribute.String(AttrBlobID, id)
}

func BatchID(id string) attribute.KeyValue {
	return attribute.String(AttrBatchID, id)
}

func Direction(t transfer.Type) attribute.KeyValue {
	return attribute.String(AttrDirection, t.String())
}

func Outcome(s transfer.State) attribute.KeyValue {
	return attribute.String(AttrOutcome, s.String())
}

func Worker(id int) attribute.KeyValue {
	return attribute.Int(AttrWorker, id)
}

func Bucket(name string) attribute.KeyValue {
	return attribute.String(AttrBucket, name)
}

func Key(key string) attribute.KeyValue {
	return attribute.String(AttrKey, key)
}

func Part(n int) attribute.KeyValue {
	return attribute.Int(AttrPart, n)
}

func Attempt(n int) attribute.KeyValue {
	return attribute.Int(AttrAttempt, n)
}

// BlockAttributes describes one block of a blob.
func BlockAttributes(blob *transfer.BlobTransfer, block *transfer.BlockTransfer) []attribute.KeyValue {
	return []attribute.KeyValue{
		BlobID(blob.ID),
		Direction(blob.Type),
		attribute.String(AttrBlockID, block.ID),
		attribute.Int(AttrBlockIndex, block.Index),
		attribute.Int64(AttrRangeStart, block.StartRange),
		attribute.Int64(AttrRangeEnd, block.EndRange),
		attribute.Int64(AttrBytes, block.Len()),
	}
}

// StartBlockSpan starts the span covering one executor call for block.
func StartBlockSpan(ctx context.Context, blob *transfer.BlobTransfer, block *transfer.BlockTransfer, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	all := append(BlockAttributes(blob, block), attrs...)
	return StartSpan(ctx, SpanBlock, trace.WithAttributes(all...), trace.WithSpanKind(trace.SpanKindInternal))
}

// StartBlobSpan starts a blob-level span such as SpanPrepare or SpanFinalize.
func StartBlobSpan(ctx context.Context, name string, blob *transfer.BlobTransfer, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	all := []attribute.KeyValue{BlobID(blob.ID), Direction(blob.Type)}
	if blob.ParentID != "" {
		all = append(all, BatchID(blob.ParentID))
	}
	all = append(all, attrs...)
	return StartSpan(ctx, name, trace.WithAttributes(all...))
}

// StartS3Span starts a client span for one S3 API call.
func StartS3Span(ctx context.Context, operation, bucket, key string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	all := append([]attribute.KeyValue{Bucket(bucket), Key(key)}, attrs...)
	return StartSpan(ctx, "s3."+operation, trace.WithAttributes(all...), trace.WithSpanKind(trace.SpanKindClient))
}
