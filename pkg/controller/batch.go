package controller

import (
	"context"
	"errors"
	"fmt"

	"github.com/marmos91/blobxfer/internal/logger"
	"github.com/marmos91/blobxfer/pkg/transfer"
	"github.com/marmos91/blobxfer/pkg/transfer/store"
)

// StartBatch starts every blob of a batch. Children that fail to start do
// not prevent the others; their errors are joined.
func (c *Controller) StartBatch(ctx context.Context, batchID string) error {
	batch, err := c.store.GetBatch(ctx, batchID)
	if err != nil {
		return err
	}
	if err := c.store.UpdateBatchState(ctx, batchID, transfer.StateInProgress); err != nil {
		return err
	}

	ctx = logger.WithContext(ctx, logger.NewLogContext("start", "").WithBatch(batchID))
	logger.InfoCtx(ctx, "Batch started", "blobs", len(batch.BlobIDs))
	return c.eachChild(ctx, batch, c.Start)
}

// PauseBatch pauses every running blob of a batch.
func (c *Controller) PauseBatch(ctx context.Context, batchID string) error {
	batch, err := c.store.GetBatch(ctx, batchID)
	if err != nil {
		return err
	}
	if err := c.eachChild(ctx, batch, c.Pause); err != nil {
		return err
	}
	return c.store.UpdateBatchState(ctx, batchID, transfer.StatePaused)
}

// CancelBatch cancels every blob of a batch.
func (c *Controller) CancelBatch(ctx context.Context, batchID string) error {
	batch, err := c.store.GetBatch(ctx, batchID)
	if err != nil {
		return err
	}
	if err := c.eachChild(ctx, batch, c.Cancel); err != nil {
		return err
	}
	return c.store.UpdateBatchState(ctx, batchID, transfer.StateCanceled)
}

// WaitBatch waits for every running blob of a batch and returns the batch
// snapshot. Run-level failures of the children are joined.
func (c *Controller) WaitBatch(ctx context.Context, batchID string) (*transfer.BatchSnapshot, error) {
	batch, err := c.store.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}

	var errs []error
	for _, id := range batch.BlobIDs {
		if _, err := c.Wait(ctx, id); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			errs = append(errs, fmt.Errorf("blob %s: %w", id, err))
		}
	}

	snap, err := store.LoadBatch(ctx, c.store, batchID)
	if err != nil {
		return nil, err
	}
	return snap, errors.Join(errs...)
}

// BatchStatus returns the current snapshot of a batch.
func (c *Controller) BatchStatus(ctx context.Context, batchID string) (*transfer.BatchSnapshot, error) {
	return store.LoadBatch(ctx, c.store, batchID)
}

func (c *Controller) eachChild(ctx context.Context, batch *transfer.MultiBlobTransfer, fn func(context.Context, string) error) error {
	var errs []error
	for _, id := range batch.BlobIDs {
		if err := fn(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("blob %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}
