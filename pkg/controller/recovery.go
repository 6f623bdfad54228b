package controller

import (
	"context"
	"fmt"

	"github.com/marmos91/blobxfer/internal/logger"
	"github.com/marmos91/blobxfer/internal/telemetry"
	"github.com/marmos91/blobxfer/pkg/transfer"
)

// RecoveryStats holds statistics about a recovery pass.
type RecoveryStats struct {
	BlobsScanned   int
	BlocksReset    int
	BlobsRestarted int
	BlobsFailed    int
}

// Recover resumes the work of a previous process that stopped without
// settling its transfers.
//
// Blocks left inProgress are reset to paused, since no executor is working
// on them any more, and every blob whose raw state is still inProgress is
// started again. Blobs with an active run in this controller are skipped.
// The store must not be shared with another live controller, whose
// in-flight blocks would be reset and transferred twice.
//
// This is safe to call when there is nothing to recover.
func (c *Controller) Recover(ctx context.Context) (*RecoveryStats, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanRecover)
	defer span.End()

	blobs, err := c.store.ListBlobs(ctx)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return nil, err
	}

	stats := &RecoveryStats{BlobsScanned: len(blobs)}
	for _, blob := range blobs {
		c.mu.Lock()
		_, active := c.runs[blob.ID]
		c.mu.Unlock()
		if active {
			continue
		}

		blocks, err := c.store.ListBlocks(ctx, blob.ID)
		if err != nil {
			return stats, err
		}
		for _, b := range blocks {
			if b.State != transfer.StateInProgress {
				continue
			}
			changed, err := c.store.TransitionBlockState(ctx, b.ID, transfer.StatePaused, transfer.StateInProgress)
			if err != nil {
				return stats, err
			}
			if changed {
				stats.BlocksReset++
			}
		}

		if blob.RawState != transfer.StateInProgress {
			continue
		}
		if err := c.Start(ctx, blob.ID); err != nil {
			logger.ErrorCtx(ctx, "Recovery: failed to restart transfer", logger.BlobID(blob.ID), logger.Err(err))
			stats.BlobsFailed++
			continue
		}
		stats.BlobsRestarted++
	}

	logger.InfoCtx(ctx, "Recovery: completed",
		"scanned", stats.BlobsScanned,
		"blocks_reset", stats.BlocksReset,
		"restarted", stats.BlobsRestarted,
		"failed", stats.BlobsFailed)

	if stats.BlobsFailed > 0 {
		return stats, fmt.Errorf("recovery failed for %d transfers", stats.BlobsFailed)
	}
	return stats, nil
}
