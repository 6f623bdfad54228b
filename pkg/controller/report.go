package controller

import (
	"context"
	"fmt"
	"time"

	"github.com/marmos91/blobxfer/internal/logger"
	"github.com/marmos91/blobxfer/pkg/metrics"
	"github.com/marmos91/blobxfer/pkg/transfer"
)

var outcomeStates = []transfer.State{
	transfer.StateUnknown,
	transfer.StatePending,
	transfer.StateInProgress,
	transfer.StatePaused,
	transfer.StateFailed,
	transfer.StateCanceled,
	transfer.StateComplete,
}

// reportableFrom returns the states a block may be in for outcome to apply.
// Terminal states are never in the set, so complete and canceled blocks
// keep their state.
func reportableFrom(outcome transfer.State) []transfer.State {
	var from []transfer.State
	for _, s := range outcomeStates {
		if s != outcome && transfer.CanTransition(s, outcome) {
			from = append(from, s)
		}
	}
	return from
}

// ReportBlockResult records the outcome of a block: complete, failed, paused
// or canceled. It is the only path by which executor outcomes reach the
// store.
//
// Reporting is idempotent. A report that would not change the block, because
// the block already holds that outcome or is terminal, returns false and has
// no side effects.
func (c *Controller) ReportBlockResult(ctx context.Context, blockID string, outcome transfer.State) (bool, error) {
	switch outcome {
	case transfer.StateComplete, transfer.StateFailed, transfer.StatePaused, transfer.StateCanceled:
	default:
		return false, fmt.Errorf("%w: %s", ErrInvalidOutcome, outcome)
	}

	block, err := c.store.GetBlock(ctx, blockID)
	if err != nil {
		return false, err
	}

	changed, err := c.store.TransitionBlockState(ctx, blockID, outcome, reportableFrom(outcome)...)
	if err != nil {
		return false, err
	}

	if !changed {
		logger.DebugCtx(ctx, "Block result ignored",
			logger.BlockID(blockID), logger.KeyBlockIdx, block.Index,
			logger.KeyState, block.State.String(), "outcome", outcome.String())
		return false, nil
	}

	var elapsed time.Duration
	if start, ok := c.inflight.LoadAndDelete(blockID); ok {
		elapsed = time.Since(start.(time.Time))
	}
	direction := c.direction(ctx, block.BlobID)
	metrics.RecordBlockResult(c.metrics, direction, outcome, block.Len(), elapsed)
	if outcome == transfer.StateComplete {
		c.recordCompleted()
	}

	logger.DebugCtx(ctx, "Block settled",
		logger.KeyBlockIdx, block.Index,
		logger.Range(block.StartRange, block.EndRange),
		logger.State(outcome))
	return true, nil
}

// direction returns the transfer type label of a blob, preferring the
// active run's copy over a store read.
func (c *Controller) direction(ctx context.Context, blobID string) string {
	c.mu.Lock()
	r, ok := c.runs[blobID]
	c.mu.Unlock()
	if ok {
		return r.blob.Type.String()
	}
	blob, err := c.store.GetBlob(ctx, blobID)
	if err != nil {
		return transfer.TypeUnknown.String()
	}
	return blob.Type.String()
}
