// Package fs implements a block executor that copies byte ranges between
// two paths of a filesystem.
//
// Uploads and downloads behave the same way: each block is read from the
// source at its offset and written at the same offset of the destination.
// The destination is allocated to the blob's full length before the first
// block runs, so blocks may complete in any order.
package fs

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/afero"

	"github.com/marmos91/blobxfer/internal/logger"
	"github.com/marmos91/blobxfer/pkg/controller"
	"github.com/marmos91/blobxfer/pkg/executor"
	"github.com/marmos91/blobxfer/pkg/transfer"
)

// Executor copies blocks through an afero filesystem.
type Executor struct {
	fs afero.Fs
}

var (
	_ controller.Preparer  = (*Executor)(nil)
	_ controller.Finalizer = (*Executor)(nil)
)

// New creates an executor over fsys. A nil fsys uses the OS filesystem.
func New(fsys afero.Fs) *Executor {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	return &Executor{fs: fsys}
}

// Prepare checks that the source covers the blob's range and allocates the
// destination. It holds no remote session.
func (e *Executor) Prepare(ctx context.Context, blob *transfer.BlobTransfer) (string, error) {
	src := executor.LocalPath(blob.Source)
	info, err := e.fs.Stat(src)
	if err != nil {
		return "", fmt.Errorf("stat source: %w", err)
	}
	if info.Size() <= blob.EndRange {
		return "", fmt.Errorf("source %s has %d bytes, transfer needs %d", src, info.Size(), blob.EndRange+1)
	}

	dst := executor.LocalPath(blob.Destination)
	if err := executor.PrepareFile(e.fs, dst, blob.EndRange+1); err != nil {
		return "", fmt.Errorf("prepare destination: %w", err)
	}
	logger.DebugCtx(ctx, "Destination allocated", logger.KeyPath, dst, logger.KeyBytes, blob.EndRange+1)
	return "", nil
}

// Transfer copies one block's range from source to destination.
func (e *Executor) Transfer(ctx context.Context, blob *transfer.BlobTransfer, block *transfer.BlockTransfer) error {
	src, err := e.fs.Open(executor.LocalPath(blob.Source))
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer src.Close()

	dst, err := e.fs.OpenFile(executor.LocalPath(blob.Destination), os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("open destination: %w", err)
	}

	reader := io.NewSectionReader(src, block.StartRange, block.Len())
	if err := executor.CopyRange(ctx, dst, block.StartRange, reader, block.Len()); err != nil {
		_ = dst.Close()
		return fmt.Errorf("copy %d-%d: %w", block.StartRange, block.EndRange, err)
	}
	return dst.Close()
}

// Finalize flushes the destination and checks its length.
func (e *Executor) Finalize(ctx context.Context, blob *transfer.BlobTransfer, blocks []*transfer.BlockTransfer) error {
	dst := executor.LocalPath(blob.Destination)
	f, err := e.fs.OpenFile(dst, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("sync destination: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}

	info, err := e.fs.Stat(dst)
	if err != nil {
		return err
	}
	if info.Size() <= blob.EndRange {
		return fmt.Errorf("%w: destination %s has %d bytes", executor.ErrShortTransfer, dst, info.Size())
	}
	logger.DebugCtx(ctx, "Destination committed", logger.KeyPath, dst, logger.KeyBlocks, len(blocks))
	return nil
}
