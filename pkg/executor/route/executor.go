// Package route dispatches each blob to the executor that handles its
// endpoints, so one controller can run filesystem copies and S3 transfers
// side by side.
package route

import (
	"context"
	"errors"
	"fmt"

	"github.com/marmos91/blobxfer/pkg/controller"
	"github.com/marmos91/blobxfer/pkg/transfer"
)

// ErrNoRoute is returned for a blob no route matches.
var ErrNoRoute = errors.New("no executor for transfer")

// Route pairs a blob predicate with the executor serving matching blobs.
type Route struct {
	Name     string
	Match    func(blob *transfer.BlobTransfer) bool
	Executor controller.Executor
}

// Executor picks the first route whose Match accepts the blob. The optional
// Planner, Preparer, Finalizer and Aborter hooks are forwarded only when the chosen
// executor implements them.
type Executor struct {
	routes []Route
}

var (
	_ controller.Planner   = (*Executor)(nil)
	_ controller.Preparer  = (*Executor)(nil)
	_ controller.Finalizer = (*Executor)(nil)
	_ controller.Aborter   = (*Executor)(nil)
)

// New creates a routing executor. Routes are tried in order.
func New(routes ...Route) *Executor {
	return &Executor{routes: routes}
}

func (e *Executor) pick(blob *transfer.BlobTransfer) (controller.Executor, error) {
	for _, r := range e.routes {
		if r.Match(blob) {
			return r.Executor, nil
		}
	}
	return nil, fmt.Errorf("%w: %s %s -> %s", ErrNoRoute, blob.Type, blob.Source, blob.Destination)
}

func (e *Executor) Transfer(ctx context.Context, blob *transfer.BlobTransfer, block *transfer.BlockTransfer) error {
	ex, err := e.pick(blob)
	if err != nil {
		return err
	}
	return ex.Transfer(ctx, blob, block)
}

func (e *Executor) CheckBlocks(blob *transfer.BlobTransfer, blocks []*transfer.BlockTransfer) error {
	ex, err := e.pick(blob)
	if err != nil {
		return err
	}
	if p, ok := ex.(controller.Planner); ok {
		return p.CheckBlocks(blob, blocks)
	}
	return nil
}

// Prepare keeps the blob's session when the routed executor has no
// Preparer.
func (e *Executor) Prepare(ctx context.Context, blob *transfer.BlobTransfer) (string, error) {
	ex, err := e.pick(blob)
	if err != nil {
		return "", err
	}
	if p, ok := ex.(controller.Preparer); ok {
		return p.Prepare(ctx, blob)
	}
	return blob.SessionID, nil
}

func (e *Executor) Finalize(ctx context.Context, blob *transfer.BlobTransfer, blocks []*transfer.BlockTransfer) error {
	ex, err := e.pick(blob)
	if err != nil {
		return err
	}
	if f, ok := ex.(controller.Finalizer); ok {
		return f.Finalize(ctx, blob, blocks)
	}
	return nil
}

func (e *Executor) Abort(ctx context.Context, blob *transfer.BlobTransfer) error {
	ex, err := e.pick(blob)
	if err != nil {
		return err
	}
	if a, ok := ex.(controller.Aborter); ok {
		return a.Abort(ctx, blob)
	}
	return nil
}
