package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/marmos91/blobxfer/pkg/transfer"
	"github.com/marmos91/blobxfer/pkg/transfer/store"
)

// target is a transfer addressed on the command line: a blob or a batch.
type target struct {
	ID    string
	Batch bool
}

func (t target) kind() string {
	if t.Batch {
		return "batch"
	}
	return "blob"
}

// resolve finds whether id names a blob or a batch.
func (a *app) resolve(ctx context.Context, id string) (target, error) {
	if _, err := a.store.GetBlob(ctx, id); err == nil {
		return target{ID: id}, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return target{}, err
	}
	if _, err := a.store.GetBatch(ctx, id); err == nil {
		return target{ID: id, Batch: true}, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return target{}, err
	}
	return target{}, fmt.Errorf("transfer %s: %w", id, store.ErrNotFound)
}

func (a *app) start(ctx context.Context, t target) error {
	if t.Batch {
		return a.ctrl.StartBatch(ctx, t.ID)
	}
	return a.ctrl.Start(ctx, t.ID)
}

func (a *app) pause(ctx context.Context, t target) error {
	if t.Batch {
		return a.ctrl.PauseBatch(ctx, t.ID)
	}
	return a.ctrl.Pause(ctx, t.ID)
}

func (a *app) cancel(ctx context.Context, t target) error {
	if t.Batch {
		return a.ctrl.CancelBatch(ctx, t.ID)
	}
	return a.ctrl.Cancel(ctx, t.ID)
}

// wait blocks until the target's runs have drained and returns its state.
func (a *app) wait(ctx context.Context, t target) (transfer.State, error) {
	if t.Batch {
		snap, err := a.ctrl.WaitBatch(ctx, t.ID)
		if snap == nil {
			return transfer.StateUnknown, err
		}
		return snap.State(), err
	}
	snap, err := a.ctrl.Wait(ctx, t.ID)
	if snap == nil {
		return transfer.StateUnknown, err
	}
	return snap.State(), err
}

// progress returns the completed and total bytes of the target.
func (a *app) progress(ctx context.Context, t target) (done, total int64, err error) {
	if !t.Batch {
		snap, err := a.ctrl.Status(ctx, t.ID)
		if err != nil {
			return 0, 0, err
		}
		return snap.CompletedBytes(), snap.Blob.Size(), nil
	}
	snap, err := a.ctrl.BatchStatus(ctx, t.ID)
	if err != nil {
		return 0, 0, err
	}
	for _, b := range snap.Blobs {
		done += b.CompletedBytes()
		total += b.Blob.Size()
	}
	return done, total, nil
}
