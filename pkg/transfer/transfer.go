// Package transfer defines the data model of a resumable, block-structured
// blob transfer.
//
// A BlobTransfer moves one blob between a local store and a remote object
// store. It is decomposed into BlockTransfers, contiguous byte ranges that
// are transferred, failed and retried independently, so that an interrupted
// transfer resumes from its incomplete blocks instead of restarting. Several
// blob transfers may be grouped in a MultiBlobTransfer (e.g. a directory).
//
// Records reference each other by id only. The externally visible state of
// a blob or batch is never stored: it is computed from the children on every
// read (see AggregateState), so it cannot drift from the child states.
package transfer

import (
	"time"

	"github.com/google/uuid"
)

// NewID returns a fresh record id.
func NewID() string {
	return uuid.New().String()
}

// BlockTransfer is one contiguous byte range of a blob.
type BlockTransfer struct {
	ID     string
	BlobID string

	// Index is the 0-based ordinal of the block within its blob.
	Index int

	// StartRange and EndRange are inclusive byte offsets.
	StartRange int64
	EndRange   int64

	State State
}

// Len returns the number of bytes covered by the block.
func (b *BlockTransfer) Len() int64 {
	return b.EndRange - b.StartRange + 1
}

// Clone returns a copy of the block.
func (b *BlockTransfer) Clone() *BlockTransfer {
	c := *b
	return &c
}

// BlobTransfer is the transfer of one whole blob.
type BlobTransfer struct {
	ID          string
	Source      string
	Destination string
	Type        Type

	// RawState is the blob's own persisted state. It is only authoritative
	// while the blob has no blocks.
	RawState State

	// StartRange and EndRange bound the byte span the blocks partition.
	StartRange int64
	EndRange   int64

	// ParentID is the owning MultiBlobTransfer, empty when ungrouped.
	ParentID string

	// SessionID is an opaque executor token (e.g. an S3 multipart upload id)
	// that lets a resumed upload continue the same remote session.
	SessionID string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Size returns the number of bytes in the blob's span.
func (b *BlobTransfer) Size() int64 {
	return b.EndRange - b.StartRange + 1
}

// Clone returns a copy of the blob record.
func (b *BlobTransfer) Clone() *BlobTransfer {
	c := *b
	return &c
}

// MultiBlobTransfer groups blob transfers, e.g. a recursive directory
// transfer.
type MultiBlobTransfer struct {
	ID string

	// Name is free-form grouping metadata.
	Name string

	RawState State

	// BlobIDs lists the children. Stores derive it from BlobTransfer.ParentID.
	BlobIDs []string

	CreatedAt time.Time
}

// Clone returns a deep copy of the batch record.
func (m *MultiBlobTransfer) Clone() *MultiBlobTransfer {
	c := *m
	c.BlobIDs = append([]string(nil), m.BlobIDs...)
	return &c
}

// BlobOptions are the inputs of NewBlobTransfer.
type BlobOptions struct {
	Source      string
	Destination string
	Type        Type
	StartRange  int64
	EndRange    int64

	// Parent optionally groups the new blob under a batch.
	Parent *MultiBlobTransfer
}

// NewBlobTransfer validates opts and returns a pending blob transfer.
// It never returns a partially valid record: any violation yields a
// *ValidationError and a nil blob.
func NewBlobTransfer(opts BlobOptions) (*BlobTransfer, error) {
	if opts.Source == "" {
		return nil, invalid("source", "must not be empty")
	}
	if opts.Destination == "" {
		return nil, invalid("destination", "must not be empty")
	}
	if opts.Type != TypeUpload && opts.Type != TypeDownload {
		return nil, invalid("type", "must be upload or download, got %s", opts.Type)
	}
	if opts.StartRange < 0 {
		return nil, invalid("startRange", "must not be negative, got %d", opts.StartRange)
	}
	if opts.StartRange > opts.EndRange {
		return nil, invalid("range", "startRange %d is after endRange %d", opts.StartRange, opts.EndRange)
	}

	now := time.Now().UTC()
	blob := &BlobTransfer{
		ID:          NewID(),
		Source:      opts.Source,
		Destination: opts.Destination,
		Type:        opts.Type,
		RawState:    StatePending,
		StartRange:  opts.StartRange,
		EndRange:    opts.EndRange,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if opts.Parent != nil {
		blob.ParentID = opts.Parent.ID
	}
	return blob, nil
}

// NewMultiBlobTransfer returns an empty pending batch.
func NewMultiBlobTransfer(name string) *MultiBlobTransfer {
	return &MultiBlobTransfer{
		ID:        NewID(),
		Name:      name,
		RawState:  StatePending,
		CreatedAt: time.Now().UTC(),
	}
}
