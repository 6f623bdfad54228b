// Package memory provides an in-memory transfer store for tests and
// ephemeral transfers.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/marmos91/blobxfer/pkg/transfer"
	"github.com/marmos91/blobxfer/pkg/transfer/store"
)

// Store is an in-memory implementation of store.Store.
//
// Relationships are kept as explicit indexes: blob id to its block ids, and
// block id to block record.
type Store struct {
	mu         sync.RWMutex
	blobs      map[string]*transfer.BlobTransfer
	blocks     map[string]*transfer.BlockTransfer
	blobBlocks map[string][]string
	batches    map[string]*transfer.MultiBlobTransfer
	closed     bool
}

var _ store.Store = (*Store)(nil)

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		blobs:      make(map[string]*transfer.BlobTransfer),
		blocks:     make(map[string]*transfer.BlockTransfer),
		blobBlocks: make(map[string][]string),
		batches:    make(map[string]*transfer.MultiBlobTransfer),
	}
}

func (s *Store) CreateBlob(ctx context.Context, blob *transfer.BlobTransfer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return store.ErrStoreClosed
	}
	if _, ok := s.blobs[blob.ID]; ok {
		return store.ErrDuplicate
	}
	if blob.ParentID != "" {
		if _, ok := s.batches[blob.ParentID]; !ok {
			return fmt.Errorf("parent batch %s: %w", blob.ParentID, store.ErrNotFound)
		}
	}
	s.blobs[blob.ID] = blob.Clone()
	return nil
}

func (s *Store) GetBlob(ctx context.Context, id string) (*transfer.BlobTransfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, store.ErrStoreClosed
	}
	blob, ok := s.blobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return blob.Clone(), nil
}

func (s *Store) ListBlobs(ctx context.Context) ([]*transfer.BlobTransfer, error) {
	return s.listBlobs(func(*transfer.BlobTransfer) bool { return true })
}

func (s *Store) ListBlobsByParent(ctx context.Context, parentID string) ([]*transfer.BlobTransfer, error) {
	return s.listBlobs(func(b *transfer.BlobTransfer) bool { return b.ParentID == parentID })
}

func (s *Store) listBlobs(match func(*transfer.BlobTransfer) bool) ([]*transfer.BlobTransfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, store.ErrStoreClosed
	}
	out := make([]*transfer.BlobTransfer, 0)
	for _, b := range s.blobs {
		if match(b) {
			out = append(out, b.Clone())
		}
	}
	sortBlobs(out)
	return out, nil
}

func (s *Store) UpdateBlobState(ctx context.Context, id string, state transfer.State) error {
	return s.updateBlob(id, func(b *transfer.BlobTransfer) { b.RawState = state })
}

func (s *Store) UpdateBlobSession(ctx context.Context, id string, sessionID string) error {
	return s.updateBlob(id, func(b *transfer.BlobTransfer) { b.SessionID = sessionID })
}

func (s *Store) updateBlob(id string, fn func(*transfer.BlobTransfer)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return store.ErrStoreClosed
	}
	blob, ok := s.blobs[id]
	if !ok {
		return store.ErrNotFound
	}
	fn(blob)
	blob.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) DeleteBlob(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return store.ErrStoreClosed
	}
	if _, ok := s.blobs[id]; !ok {
		return store.ErrNotFound
	}
	s.deleteBlobLocked(id)
	return nil
}

func (s *Store) deleteBlobLocked(id string) {
	for _, blockID := range s.blobBlocks[id] {
		delete(s.blocks, blockID)
	}
	delete(s.blobBlocks, id)
	delete(s.blobs, id)
}

func (s *Store) CreateBlocks(ctx context.Context, blobID string, blocks []*transfer.BlockTransfer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return store.ErrStoreClosed
	}
	blob, ok := s.blobs[blobID]
	if !ok {
		return fmt.Errorf("blob %s: %w", blobID, store.ErrNotFound)
	}
	if len(s.blobBlocks[blobID]) > 0 {
		return fmt.Errorf("blob %s is already decomposed: %w", blobID, store.ErrDuplicate)
	}
	if err := transfer.ValidateBlocks(blob, blocks); err != nil {
		return err
	}

	// Check everything before mutating so the insert is all or nothing.
	seen := make(map[string]bool, len(blocks))
	for _, b := range blocks {
		if _, exists := s.blocks[b.ID]; exists || seen[b.ID] {
			return store.ErrDuplicate
		}
		seen[b.ID] = true
	}

	for _, b := range blocks {
		s.blocks[b.ID] = b.Clone()
		s.blobBlocks[blobID] = append(s.blobBlocks[blobID], b.ID)
	}
	return nil
}

func (s *Store) GetBlock(ctx context.Context, id string) (*transfer.BlockTransfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, store.ErrStoreClosed
	}
	b, ok := s.blocks[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return b.Clone(), nil
}

func (s *Store) ListBlocks(ctx context.Context, blobID string) ([]*transfer.BlockTransfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, store.ErrStoreClosed
	}
	if _, ok := s.blobs[blobID]; !ok {
		return nil, store.ErrNotFound
	}
	ids := s.blobBlocks[blobID]
	out := make([]*transfer.BlockTransfer, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.blocks[id].Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

func (s *Store) TransitionBlockState(ctx context.Context, id string, to transfer.State, from ...transfer.State) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, store.ErrStoreClosed
	}
	b, ok := s.blocks[id]
	if !ok {
		return false, store.ErrNotFound
	}
	if !store.Contains(from, b.State) {
		return false, nil
	}
	b.State = to
	return true, nil
}

func (s *Store) CreateBatch(ctx context.Context, batch *transfer.MultiBlobTransfer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return store.ErrStoreClosed
	}
	if _, ok := s.batches[batch.ID]; ok {
		return store.ErrDuplicate
	}
	c := batch.Clone()
	c.BlobIDs = nil
	s.batches[batch.ID] = c
	return nil
}

func (s *Store) GetBatch(ctx context.Context, id string) (*transfer.MultiBlobTransfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, store.ErrStoreClosed
	}
	batch, ok := s.batches[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return s.withChildrenLocked(batch), nil
}

func (s *Store) ListBatches(ctx context.Context) ([]*transfer.MultiBlobTransfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, store.ErrStoreClosed
	}
	out := make([]*transfer.MultiBlobTransfer, 0, len(s.batches))
	for _, batch := range s.batches {
		out = append(out, s.withChildrenLocked(batch))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) withChildrenLocked(batch *transfer.MultiBlobTransfer) *transfer.MultiBlobTransfer {
	c := batch.Clone()
	var children []*transfer.BlobTransfer
	for _, b := range s.blobs {
		if b.ParentID == batch.ID {
			children = append(children, b)
		}
	}
	sortBlobs(children)
	c.BlobIDs = make([]string, 0, len(children))
	for _, b := range children {
		c.BlobIDs = append(c.BlobIDs, b.ID)
	}
	return c
}

func (s *Store) UpdateBatchState(ctx context.Context, id string, state transfer.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return store.ErrStoreClosed
	}
	batch, ok := s.batches[id]
	if !ok {
		return store.ErrNotFound
	}
	batch.RawState = state
	return nil
}

func (s *Store) DeleteBatch(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return store.ErrStoreClosed
	}
	if _, ok := s.batches[id]; !ok {
		return store.ErrNotFound
	}
	for blobID, b := range s.blobs {
		if b.ParentID == id {
			s.deleteBlobLocked(blobID)
		}
	}
	delete(s.batches, id)
	return nil
}

// Close marks the store closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func sortBlobs(blobs []*transfer.BlobTransfer) {
	sort.Slice(blobs, func(i, j int) bool {
		if blobs[i].CreatedAt.Equal(blobs[j].CreatedAt) {
			return blobs[i].ID < blobs[j].ID
		}
		return blobs[i].CreatedAt.Before(blobs[j].CreatedAt)
	})
}
