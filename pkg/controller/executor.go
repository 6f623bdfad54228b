package controller

import (
	"context"

	"github.com/marmos91/blobxfer/pkg/transfer"
)

// Executor moves the bytes of one block.
//
// Transfer runs on a controller worker. Returning nil asserts that the
// block's whole range was transferred correctly and makes the block
// complete. Any error makes it failed, unless ctx was canceled by a pause or
// cancel request (see Interruption), in which case the block becomes paused
// or canceled. Executors must stop promptly once ctx is done.
type Executor interface {
	Transfer(ctx context.Context, blob *transfer.BlobTransfer, block *transfer.BlockTransfer) error
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, blob *transfer.BlobTransfer, block *transfer.BlockTransfer) error

func (f ExecutorFunc) Transfer(ctx context.Context, blob *transfer.BlobTransfer, block *transfer.BlockTransfer) error {
	return f(ctx, blob, block)
}

// Preparer is implemented by executors that need per-blob setup before any
// block runs, such as opening a multipart upload. The returned session is
// persisted on the blob and passed back on every later start, so a resumed
// transfer can continue the same remote session.
type Preparer interface {
	Prepare(ctx context.Context, blob *transfer.BlobTransfer) (session string, err error)
}

// Planner is implemented by executors that constrain how a blob may be
// split, such as the part size and part count limits of a multipart upload.
// CheckBlocks runs on every start before Prepare, and on the first start
// before the blocks are persisted.
type Planner interface {
	CheckBlocks(blob *transfer.BlobTransfer, blocks []*transfer.BlockTransfer) error
}

// Finalizer is implemented by executors that must commit a blob once every
// block is complete, such as completing a multipart upload.
type Finalizer interface {
	Finalize(ctx context.Context, blob *transfer.BlobTransfer, blocks []*transfer.BlockTransfer) error
}

// Aborter is implemented by executors that hold remote state which must be
// released when a transfer is canceled or discarded unfinished.
type Aborter interface {
	Abort(ctx context.Context, blob *transfer.BlobTransfer) error
}
