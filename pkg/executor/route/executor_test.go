package route

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/blobxfer/pkg/controller"
	"github.com/marmos91/blobxfer/pkg/transfer"
)

type hooked struct {
	transfers, finalized, aborted, checked int
	session                                string
}

func (h *hooked) CheckBlocks(*transfer.BlobTransfer, []*transfer.BlockTransfer) error {
	h.checked++
	return nil
}

func (h *hooked) Transfer(context.Context, *transfer.BlobTransfer, *transfer.BlockTransfer) error {
	h.transfers++
	return nil
}

func (h *hooked) Prepare(context.Context, *transfer.BlobTransfer) (string, error) {
	return h.session, nil
}

func (h *hooked) Finalize(context.Context, *transfer.BlobTransfer, []*transfer.BlockTransfer) error {
	h.finalized++
	return nil
}

func (h *hooked) Abort(context.Context, *transfer.BlobTransfer) error {
	h.aborted++
	return nil
}

func remote(b *transfer.BlobTransfer) bool {
	return strings.HasPrefix(b.Source, "s3://") || strings.HasPrefix(b.Destination, "s3://")
}

func TestRouting(t *testing.T) {
	ctx := t.Context()
	s3 := &hooked{session: "upload-1"}
	var local int
	e := New(
		Route{Name: "s3", Match: remote, Executor: s3},
		Route{Name: "fs", Match: func(*transfer.BlobTransfer) bool { return true },
			Executor: controller.ExecutorFunc(func(context.Context, *transfer.BlobTransfer, *transfer.BlockTransfer) error {
				local++
				return nil
			})},
	)

	up := &transfer.BlobTransfer{Source: "/a", Destination: "s3://b/k", Type: transfer.TypeUpload}
	cp := &transfer.BlobTransfer{Source: "/a", Destination: "/b", Type: transfer.TypeUpload, SessionID: "kept"}
	block := &transfer.BlockTransfer{}

	require.NoError(t, e.Transfer(ctx, up, block))
	require.NoError(t, e.Transfer(ctx, cp, block))
	assert.Equal(t, 1, s3.transfers)
	assert.Equal(t, 1, local)

	session, err := e.Prepare(ctx, up)
	require.NoError(t, err)
	assert.Equal(t, "upload-1", session)

	session, err = e.Prepare(ctx, cp)
	require.NoError(t, err)
	assert.Equal(t, "kept", session, "executors without a Preparer keep the session")

	require.NoError(t, e.CheckBlocks(up, nil))
	require.NoError(t, e.CheckBlocks(cp, nil))
	assert.Equal(t, 1, s3.checked)

	require.NoError(t, e.Finalize(ctx, up, nil))
	require.NoError(t, e.Finalize(ctx, cp, nil))
	require.NoError(t, e.Abort(ctx, up))
	require.NoError(t, e.Abort(ctx, cp))
	assert.Equal(t, 1, s3.finalized)
	assert.Equal(t, 1, s3.aborted)
}

func TestNoRoute(t *testing.T) {
	e := New(Route{Name: "s3", Match: remote, Executor: &hooked{}})
	blob := &transfer.BlobTransfer{Source: "/a", Destination: "/b"}

	assert.ErrorIs(t, e.Transfer(t.Context(), blob, &transfer.BlockTransfer{}), ErrNoRoute)
	_, err := e.Prepare(t.Context(), blob)
	assert.ErrorIs(t, err, ErrNoRoute)
	assert.ErrorIs(t, e.CheckBlocks(blob, nil), ErrNoRoute)
}
