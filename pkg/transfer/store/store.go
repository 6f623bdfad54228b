// Package store defines the persistence contract for transfer records.
//
// Implementations persist three record types keyed by id: blob transfers,
// block transfers and batches (multi-blob transfers). Block state updates
// must be atomic and durable before they return, so that a restarted process
// can re-derive which blocks still need work.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/marmos91/blobxfer/pkg/transfer"
)

// Common errors returned by Store implementations.
var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("transfer record not found")

	// ErrDuplicate is returned when creating a record whose id already exists.
	ErrDuplicate = errors.New("transfer record already exists")

	// ErrStoreClosed is returned when operations are attempted on a closed store.
	ErrStoreClosed = errors.New("store is closed")
)

// Store persists transfer records.
//
// Records are returned as copies; mutating them has no effect until written
// back through the store.
type Store interface {
	// CreateBlob persists a new blob transfer.
	CreateBlob(ctx context.Context, blob *transfer.BlobTransfer) error

	// GetBlob returns a blob transfer by id.
	GetBlob(ctx context.Context, id string) (*transfer.BlobTransfer, error)

	// ListBlobs returns every blob transfer ordered by creation time.
	ListBlobs(ctx context.Context) ([]*transfer.BlobTransfer, error)

	// ListBlobsByParent returns the blobs grouped under a batch.
	ListBlobsByParent(ctx context.Context, parentID string) ([]*transfer.BlobTransfer, error)

	// UpdateBlobState writes the blob's own (raw) state.
	UpdateBlobState(ctx context.Context, id string, state transfer.State) error

	// UpdateBlobSession writes the executor session token of a blob.
	UpdateBlobSession(ctx context.Context, id string, sessionID string) error

	// DeleteBlob removes a blob and all of its blocks.
	DeleteBlob(ctx context.Context, id string) error

	// CreateBlocks persists the blocks of one blob, all or nothing. The blob
	// must exist and have no blocks yet, otherwise ErrDuplicate is returned.
	// The blocks must partition the blob's span (transfer.ValidateBlocks).
	CreateBlocks(ctx context.Context, blobID string, blocks []*transfer.BlockTransfer) error

	// GetBlock returns a block transfer by id.
	GetBlock(ctx context.Context, id string) (*transfer.BlockTransfer, error)

	// ListBlocks returns the blocks of a blob ordered by index. A blob with
	// no blocks yields an empty slice.
	ListBlocks(ctx context.Context, blobID string) ([]*transfer.BlockTransfer, error)

	// TransitionBlockState atomically sets a block's state to `to` if its
	// current state is one of `from`. It reports whether the state changed.
	TransitionBlockState(ctx context.Context, id string, to transfer.State, from ...transfer.State) (bool, error)

	// CreateBatch persists a new multi-blob transfer.
	CreateBatch(ctx context.Context, batch *transfer.MultiBlobTransfer) error

	// GetBatch returns a batch with BlobIDs populated from its children.
	GetBatch(ctx context.Context, id string) (*transfer.MultiBlobTransfer, error)

	// ListBatches returns every batch ordered by creation time.
	ListBatches(ctx context.Context) ([]*transfer.MultiBlobTransfer, error)

	// UpdateBatchState writes the batch's own (raw) state.
	UpdateBatchState(ctx context.Context, id string, state transfer.State) error

	// DeleteBatch removes a batch, its blobs and their blocks.
	DeleteBatch(ctx context.Context, id string) error

	// Close releases any resources held by the store.
	Close() error
}

// CreateTransfer validates opts through transfer.NewBlobTransfer and
// persists the resulting blob. Nothing is persisted when validation fails.
func CreateTransfer(ctx context.Context, s Store, opts transfer.BlobOptions) (*transfer.BlobTransfer, error) {
	blob, err := transfer.NewBlobTransfer(opts)
	if err != nil {
		return nil, err
	}
	if err := s.CreateBlob(ctx, blob); err != nil {
		return nil, fmt.Errorf("persist blob transfer: %w", err)
	}
	return blob, nil
}

// LoadBlob reads a blob and its blocks in one snapshot.
func LoadBlob(ctx context.Context, s Store, id string) (*transfer.BlobSnapshot, error) {
	blob, err := s.GetBlob(ctx, id)
	if err != nil {
		return nil, err
	}
	blocks, err := s.ListBlocks(ctx, id)
	if err != nil {
		return nil, err
	}
	return &transfer.BlobSnapshot{Blob: blob, Blocks: blocks}, nil
}

// LoadBatch reads a batch and the snapshots of all of its blobs.
func LoadBatch(ctx context.Context, s Store, id string) (*transfer.BatchSnapshot, error) {
	batch, err := s.GetBatch(ctx, id)
	if err != nil {
		return nil, err
	}
	snap := &transfer.BatchSnapshot{Batch: batch}
	for _, blobID := range batch.BlobIDs {
		blob, err := LoadBlob(ctx, s, blobID)
		if err != nil {
			return nil, err
		}
		snap.Blobs = append(snap.Blobs, blob)
	}
	return snap, nil
}

// Contains reports whether state is one of states.
func Contains(states []transfer.State, state transfer.State) bool {
	for _, s := range states {
		if s == state {
			return true
		}
	}
	return false
}
