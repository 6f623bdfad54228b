package controller

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/marmos91/blobxfer/pkg/transfer"
	"github.com/marmos91/blobxfer/pkg/transfer/store"
	"github.com/marmos91/blobxfer/pkg/transfer/store/memory"
)

// fakeExecutor records every call and delegates block transfers to fn.
type fakeExecutor struct {
	mu          sync.Mutex
	fn          func(ctx context.Context, block *transfer.BlockTransfer) error
	calls       []int
	prepared    int
	finalized   int
	aborted     int
	finalizeErr error
}

func (e *fakeExecutor) Transfer(ctx context.Context, blob *transfer.BlobTransfer, block *transfer.BlockTransfer) error {
	e.mu.Lock()
	e.calls = append(e.calls, block.Index)
	fn := e.fn
	e.mu.Unlock()
	if fn == nil {
		return nil
	}
	return fn(ctx, block)
}

func (e *fakeExecutor) Prepare(ctx context.Context, blob *transfer.BlobTransfer) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.prepared++
	if blob.SessionID != "" {
		return blob.SessionID, nil
	}
	return "session-" + blob.ID[:8], nil
}

func (e *fakeExecutor) Finalize(ctx context.Context, blob *transfer.BlobTransfer, blocks []*transfer.BlockTransfer) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.finalized++
	return e.finalizeErr
}

func (e *fakeExecutor) Abort(ctx context.Context, blob *transfer.BlobTransfer) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.aborted++
	return nil
}

func (e *fakeExecutor) setFn(fn func(ctx context.Context, block *transfer.BlockTransfer) error) {
	e.mu.Lock()
	e.fn = fn
	e.mu.Unlock()
}

func (e *fakeExecutor) takeCalls() []int {
	e.mu.Lock()
	defer e.mu.Unlock()
	calls := e.calls
	e.calls = nil
	return calls
}

func (e *fakeExecutor) counts() (prepared, finalized, aborted int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.prepared, e.finalized, e.aborted
}

// blockUntilInterrupted returns an executor function that announces each
// started block on started and then waits for the run to be interrupted.
func blockUntilInterrupted(started chan<- int) func(context.Context, *transfer.BlockTransfer) error {
	return func(ctx context.Context, block *transfer.BlockTransfer) error {
		started <- block.Index
		<-ctx.Done()
		return context.Cause(ctx)
	}
}

// countingMetrics counts block results by outcome.
type countingMetrics struct {
	mu       sync.Mutex
	results  map[transfer.State]int
	bytes    int64
	finished []transfer.State
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{results: make(map[transfer.State]int)}
}

func (m *countingMetrics) RecordBlockResult(direction string, outcome transfer.State, bytes int64, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[outcome]++
	if outcome == transfer.StateComplete {
		m.bytes += bytes
	}
}

func (m *countingMetrics) RecordTransferFinished(direction string, state transfer.State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finished = append(m.finished, state)
}

func (m *countingMetrics) SetActiveTransfers(int) {}
func (m *countingMetrics) SetQueueDepth(int)      {}

func (m *countingMetrics) count(s transfer.State) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.results[s]
}

func newTestController(t *testing.T, s store.Store, exec Executor, opts ...Option) *Controller {
	t.Helper()
	c := New(s, exec, Config{Workers: 4, QueueSize: 16, ChunkSize: 100}, opts...)
	t.Cleanup(func() { _ = c.Close(5 * time.Second) })
	return c
}

// createBlob persists a pending upload of size bytes.
func createBlob(t *testing.T, s store.Store, size int64, parent *transfer.MultiBlobTransfer) *transfer.BlobTransfer {
	t.Helper()
	blob, err := store.CreateTransfer(t.Context(), s, transfer.BlobOptions{
		Source:      "/data/object.bin",
		Destination: "s3://bucket/object.bin",
		Type:        transfer.TypeUpload,
		StartRange:  0,
		EndRange:    size - 1,
		Parent:      parent,
	})
	require.NoError(t, err)
	return blob
}

// createDecomposed persists a blob already split into 100-byte blocks in the
// given states.
func createDecomposed(t *testing.T, s store.Store, states ...transfer.State) (*transfer.BlobTransfer, []*transfer.BlockTransfer) {
	t.Helper()
	blob := createBlob(t, s, int64(len(states))*100, nil)
	blocks, err := transfer.Decompose(blob, 100)
	require.NoError(t, err)
	for i, st := range states {
		blocks[i].State = st
	}
	require.NoError(t, s.CreateBlocks(t.Context(), blob.ID, blocks))
	return blob, blocks
}

func blockStates(t *testing.T, s store.Store, blobID string) []transfer.State {
	t.Helper()
	blocks, err := s.ListBlocks(t.Context(), blobID)
	require.NoError(t, err)
	out := make([]transfer.State, len(blocks))
	for i, b := range blocks {
		out[i] = b.State
	}
	return out
}

func newStore(t *testing.T) store.Store {
	t.Helper()
	s := memory.New()
	t.Cleanup(func() { _ = s.Close() })
	return s
}
