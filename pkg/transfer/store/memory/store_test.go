package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/marmos91/blobxfer/pkg/transfer"
	"github.com/marmos91/blobxfer/pkg/transfer/store"
	"github.com/marmos91/blobxfer/pkg/transfer/store/memory"
	"github.com/marmos91/blobxfer/pkg/transfer/store/storetest"
)

func TestConformance(t *testing.T) {
	storetest.RunConformanceSuite(t, func(t *testing.T) store.Store {
		return memory.New()
	})
}

func TestClosedStore(t *testing.T) {
	s := memory.New()
	assert.NoError(t, s.Close())

	ctx := context.Background()
	_, err := s.GetBlob(ctx, "x")
	assert.ErrorIs(t, err, store.ErrStoreClosed)
	assert.ErrorIs(t, s.CreateBlob(ctx, &transfer.BlobTransfer{ID: "x"}), store.ErrStoreClosed)
	_, err = s.TransitionBlockState(ctx, "x", transfer.StateComplete)
	assert.ErrorIs(t, err, store.ErrStoreClosed)
}
