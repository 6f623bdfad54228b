package logger

import (
	"fmt"
	"log/slog"
)

// Standard field keys. Use them for every log call so lines can be queried
// by transfer, block or backend.
const (
	// Transfer identity
	KeyBlobID    = "blob_id"
	KeyBlockID   = "block_id"
	KeyBatchID   = "batch_id"
	KeyBlockIdx  = "block_idx"
	KeyOperation = "operation"
	KeyDirection = "direction" // upload, download

	// Transfer progress
	KeyState      = "state"
	KeyRange      = "range"
	KeyBlocks     = "blocks"
	KeyDispatched = "dispatched"
	KeyIncomplete = "incomplete"
	KeyBytes      = "bytes"
	KeyWorker     = "worker"
	KeyPending    = "pending"

	// Endpoints
	KeySource      = "source"
	KeyDestination = "destination"
	KeyPath        = "path"
	KeyBucket      = "bucket"
	KeyKey         = "key"
	KeyRegion      = "region"
	KeySession     = "session"
	KeyPart        = "part"

	// Storage backend
	KeyStoreType = "store_type"

	KeyDurationMs = "duration_ms"
	KeyError      = "error"
)

// BlobID returns an attribute for a blob transfer id.
func BlobID(id string) slog.Attr {
	return slog.String(KeyBlobID, id)
}

// BlockID returns an attribute for a block transfer id.
func BlockID(id string) slog.Attr {
	return slog.String(KeyBlockID, id)
}

// Range returns an attribute rendering an inclusive byte range.
func Range(start, end int64) slog.Attr {
	return slog.String(KeyRange, fmt.Sprintf("[%d,%d]", start, end))
}

// State returns an attribute for a transfer state.
func State(s fmt.Stringer) slog.Attr {
	return slog.String(KeyState, s.String())
}

// Err returns an attribute for an error, or an empty attribute for nil.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}
