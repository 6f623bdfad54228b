// Package badger persists transfer records in an embedded BadgerDB
// key/value store.
package badger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/marmos91/blobxfer/internal/logger"
	"github.com/marmos91/blobxfer/pkg/transfer"
	"github.com/marmos91/blobxfer/pkg/transfer/store"
)

// maxConflictRetries bounds the retries of a read-modify-write transaction
// that lost an optimistic concurrency race.
const maxConflictRetries = 32

// Config configures the BadgerDB store.
type Config struct {
	// Dir is the database directory. Ignored when InMemory is set.
	Dir string `mapstructure:"dir" yaml:"dir"`

	// InMemory keeps the whole database in memory.
	InMemory bool `mapstructure:"in_memory" yaml:"in_memory"`

	// SyncWrites fsyncs every commit so block state survives a crash.
	// Default: true
	SyncWrites *bool `mapstructure:"sync_writes" yaml:"sync_writes,omitempty"`
}

func (c Config) syncWrites() bool {
	return c.SyncWrites == nil || *c.SyncWrites
}

// Store implements store.Store on top of BadgerDB.
type Store struct {
	db *badgerdb.DB
}

var _ store.Store = (*Store)(nil)

// New opens (or creates) the database described by cfg.
func New(cfg Config) (*Store, error) {
	var opts badgerdb.Options
	if cfg.InMemory {
		opts = badgerdb.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Dir == "" {
			return nil, fmt.Errorf("badger dir is required")
		}
		opts = badgerdb.DefaultOptions(cfg.Dir)
	}
	opts = opts.WithSyncWrites(!cfg.InMemory && cfg.syncWrites()).WithLogger(badgerLogger{})

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}
	logger.Debug("Transfer store opened", logger.KeyStoreType, "badger", logger.KeyPath, cfg.Dir)
	return &Store{db: db}, nil
}

// update runs fn in a read-write transaction, retrying when the commit
// conflicts with a concurrent transaction.
func (s *Store) update(ctx context.Context, fn func(txn *badgerdb.Txn) error) error {
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := s.db.Update(fn)
		if !errors.Is(err, badgerdb.ErrConflict) || attempt >= maxConflictRetries {
			return convertClosed(err)
		}
	}
}

func (s *Store) view(ctx context.Context, fn func(txn *badgerdb.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return convertClosed(s.db.View(fn))
}

func convertClosed(err error) error {
	if errors.Is(err, badgerdb.ErrDBClosed) {
		return store.ErrStoreClosed
	}
	return err
}

// get returns the value at key, or store.ErrNotFound.
func get(txn *badgerdb.Txn, key []byte) ([]byte, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

func exists(txn *badgerdb.Txn, key []byte) (bool, error) {
	_, err := txn.Get(key)
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return false, nil
	}
	return err == nil, err
}

// scanKeys returns every key under prefix, in key order.
func scanKeys(txn *badgerdb.Txn, prefix []byte) [][]byte {
	opts := badgerdb.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	var keys [][]byte
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	return keys
}

// lastSegment returns the part of an index key after its final ':'.
func lastSegment(key []byte) string {
	return string(key[bytes.LastIndexByte(key, ':')+1:])
}

func getBlob(txn *badgerdb.Txn, id string) (*transfer.BlobTransfer, error) {
	data, err := get(txn, keyBlob(id))
	if err != nil {
		return nil, err
	}
	return decodeBlob(data)
}

func putBlob(txn *badgerdb.Txn, blob *transfer.BlobTransfer) error {
	data, err := encodeBlob(blob)
	if err != nil {
		return err
	}
	return txn.Set(keyBlob(blob.ID), data)
}

func getBlock(txn *badgerdb.Txn, id string) (*transfer.BlockTransfer, error) {
	data, err := get(txn, keyBlock(id))
	if err != nil {
		return nil, err
	}
	return decodeBlock(data)
}

func putBlock(txn *badgerdb.Txn, block *transfer.BlockTransfer) error {
	data, err := encodeBlock(block)
	if err != nil {
		return err
	}
	return txn.Set(keyBlock(block.ID), data)
}

func (s *Store) CreateBlob(ctx context.Context, blob *transfer.BlobTransfer) error {
	return s.update(ctx, func(txn *badgerdb.Txn) error {
		if ok, err := exists(txn, keyBlob(blob.ID)); err != nil {
			return err
		} else if ok {
			return store.ErrDuplicate
		}
		if blob.ParentID != "" {
			ok, err := exists(txn, keyBatch(blob.ParentID))
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("parent batch %s: %w", blob.ParentID, store.ErrNotFound)
			}
			if err := txn.Set(keyBatchBlob(blob.ParentID, blob.ID), nil); err != nil {
				return err
			}
		}
		return putBlob(txn, blob)
	})
}

func (s *Store) GetBlob(ctx context.Context, id string) (*transfer.BlobTransfer, error) {
	var blob *transfer.BlobTransfer
	err := s.view(ctx, func(txn *badgerdb.Txn) error {
		var err error
		blob, err = getBlob(txn, id)
		return err
	})
	return blob, err
}

func (s *Store) ListBlobs(ctx context.Context) ([]*transfer.BlobTransfer, error) {
	out := make([]*transfer.BlobTransfer, 0)
	err := s.view(ctx, func(txn *badgerdb.Txn) error {
		prefix := []byte(prefixBlob)
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			data, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			blob, err := decodeBlob(data)
			if err != nil {
				return err
			}
			out = append(out, blob)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortBlobs(out)
	return out, nil
}

func (s *Store) ListBlobsByParent(ctx context.Context, parentID string) ([]*transfer.BlobTransfer, error) {
	out := make([]*transfer.BlobTransfer, 0)
	err := s.view(ctx, func(txn *badgerdb.Txn) error {
		for _, key := range scanKeys(txn, keyBatchBlobsPrefix(parentID)) {
			blob, err := getBlob(txn, lastSegment(key))
			if err != nil {
				return err
			}
			out = append(out, blob)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortBlobs(out)
	return out, nil
}

func (s *Store) UpdateBlobState(ctx context.Context, id string, state transfer.State) error {
	return s.updateBlob(ctx, id, func(b *transfer.BlobTransfer) { b.RawState = state })
}

func (s *Store) UpdateBlobSession(ctx context.Context, id string, sessionID string) error {
	return s.updateBlob(ctx, id, func(b *transfer.BlobTransfer) { b.SessionID = sessionID })
}

func (s *Store) updateBlob(ctx context.Context, id string, fn func(*transfer.BlobTransfer)) error {
	return s.update(ctx, func(txn *badgerdb.Txn) error {
		blob, err := getBlob(txn, id)
		if err != nil {
			return err
		}
		fn(blob)
		blob.UpdatedAt = time.Now().UTC()
		return putBlob(txn, blob)
	})
}

func (s *Store) DeleteBlob(ctx context.Context, id string) error {
	return s.update(ctx, func(txn *badgerdb.Txn) error {
		blob, err := getBlob(txn, id)
		if err != nil {
			return err
		}
		return deleteBlob(txn, blob)
	})
}

func deleteBlob(txn *badgerdb.Txn, blob *transfer.BlobTransfer) error {
	for _, key := range scanKeys(txn, keyBlobBlocksPrefix(blob.ID)) {
		if err := txn.Delete(keyBlock(lastSegment(key))); err != nil {
			return err
		}
		if err := txn.Delete(key); err != nil {
			return err
		}
	}
	if blob.ParentID != "" {
		if err := txn.Delete(keyBatchBlob(blob.ParentID, blob.ID)); err != nil {
			return err
		}
	}
	return txn.Delete(keyBlob(blob.ID))
}

// CreateBlocks rewrites the blob record alongside its blocks, so two
// concurrent decompositions of one blob conflict on commit and the retry
// sees the winner's blocks.
func (s *Store) CreateBlocks(ctx context.Context, blobID string, blocks []*transfer.BlockTransfer) error {
	return s.update(ctx, func(txn *badgerdb.Txn) error {
		blob, err := getBlob(txn, blobID)
		if err != nil {
			return fmt.Errorf("blob %s: %w", blobID, err)
		}
		if len(scanKeys(txn, keyBlobBlocksPrefix(blobID))) > 0 {
			return fmt.Errorf("blob %s is already decomposed: %w", blobID, store.ErrDuplicate)
		}
		if err := transfer.ValidateBlocks(blob, blocks); err != nil {
			return err
		}

		// Writes are buffered in the transaction, so returning an error
		// part way discards every earlier Set.
		seen := make(map[string]bool, len(blocks))
		for _, b := range blocks {
			ok, err := exists(txn, keyBlock(b.ID))
			if err != nil {
				return err
			}
			if ok || seen[b.ID] {
				return store.ErrDuplicate
			}
			seen[b.ID] = true

			if err := putBlock(txn, b); err != nil {
				return err
			}
			if err := txn.Set(keyBlobBlock(blobID, b.Index, b.ID), nil); err != nil {
				return err
			}
		}
		blob.UpdatedAt = time.Now().UTC()
		return putBlob(txn, blob)
	})
}

func (s *Store) GetBlock(ctx context.Context, id string) (*transfer.BlockTransfer, error) {
	var block *transfer.BlockTransfer
	err := s.view(ctx, func(txn *badgerdb.Txn) error {
		var err error
		block, err = getBlock(txn, id)
		return err
	})
	return block, err
}

func (s *Store) ListBlocks(ctx context.Context, blobID string) ([]*transfer.BlockTransfer, error) {
	out := make([]*transfer.BlockTransfer, 0)
	err := s.view(ctx, func(txn *badgerdb.Txn) error {
		if ok, err := exists(txn, keyBlob(blobID)); err != nil {
			return err
		} else if !ok {
			return store.ErrNotFound
		}
		for _, key := range scanKeys(txn, keyBlobBlocksPrefix(blobID)) {
			block, err := getBlock(txn, lastSegment(key))
			if err != nil {
				return err
			}
			out = append(out, block)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// TransitionBlockState relies on Badger's optimistic concurrency control: a
// concurrent writer of the same block makes the commit fail with
// ErrConflict, and the retry re-reads the winner's state.
func (s *Store) TransitionBlockState(ctx context.Context, id string, to transfer.State, from ...transfer.State) (bool, error) {
	var changed bool
	err := s.update(ctx, func(txn *badgerdb.Txn) error {
		changed = false
		block, err := getBlock(txn, id)
		if err != nil {
			return err
		}
		if !store.Contains(from, block.State) {
			return nil
		}
		block.State = to
		changed = true
		return putBlock(txn, block)
	})
	if err != nil {
		return false, err
	}
	return changed, nil
}

func (s *Store) CreateBatch(ctx context.Context, batch *transfer.MultiBlobTransfer) error {
	data, err := encodeBatch(batch)
	if err != nil {
		return err
	}
	return s.update(ctx, func(txn *badgerdb.Txn) error {
		if ok, err := exists(txn, keyBatch(batch.ID)); err != nil {
			return err
		} else if ok {
			return store.ErrDuplicate
		}
		return txn.Set(keyBatch(batch.ID), data)
	})
}

func (s *Store) GetBatch(ctx context.Context, id string) (*transfer.MultiBlobTransfer, error) {
	var batch *transfer.MultiBlobTransfer
	err := s.view(ctx, func(txn *badgerdb.Txn) error {
		var err error
		batch, err = loadBatch(txn, id)
		return err
	})
	return batch, err
}

func loadBatch(txn *badgerdb.Txn, id string) (*transfer.MultiBlobTransfer, error) {
	data, err := get(txn, keyBatch(id))
	if err != nil {
		return nil, err
	}
	batch, err := decodeBatch(data)
	if err != nil {
		return nil, err
	}

	var children []*transfer.BlobTransfer
	for _, key := range scanKeys(txn, keyBatchBlobsPrefix(id)) {
		blob, err := getBlob(txn, lastSegment(key))
		if err != nil {
			return nil, err
		}
		children = append(children, blob)
	}
	sortBlobs(children)
	batch.BlobIDs = make([]string, 0, len(children))
	for _, b := range children {
		batch.BlobIDs = append(batch.BlobIDs, b.ID)
	}
	return batch, nil
}

func (s *Store) ListBatches(ctx context.Context) ([]*transfer.MultiBlobTransfer, error) {
	out := make([]*transfer.MultiBlobTransfer, 0)
	err := s.view(ctx, func(txn *badgerdb.Txn) error {
		for _, key := range scanKeys(txn, []byte(prefixBatch)) {
			batch, err := loadBatch(txn, string(key[len(prefixBatch):]))
			if err != nil {
				return err
			}
			out = append(out, batch)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) UpdateBatchState(ctx context.Context, id string, state transfer.State) error {
	return s.update(ctx, func(txn *badgerdb.Txn) error {
		data, err := get(txn, keyBatch(id))
		if err != nil {
			return err
		}
		batch, err := decodeBatch(data)
		if err != nil {
			return err
		}
		batch.RawState = state
		enc, err := encodeBatch(batch)
		if err != nil {
			return err
		}
		return txn.Set(keyBatch(id), enc)
	})
}

func (s *Store) DeleteBatch(ctx context.Context, id string) error {
	return s.update(ctx, func(txn *badgerdb.Txn) error {
		if ok, err := exists(txn, keyBatch(id)); err != nil {
			return err
		} else if !ok {
			return store.ErrNotFound
		}
		for _, key := range scanKeys(txn, keyBatchBlobsPrefix(id)) {
			blob, err := getBlob(txn, lastSegment(key))
			if err != nil {
				return err
			}
			if err := deleteBlob(txn, blob); err != nil {
				return err
			}
		}
		return txn.Delete(keyBatch(id))
	})
}

// Close flushes and closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func sortBlobs(blobs []*transfer.BlobTransfer) {
	sort.Slice(blobs, func(i, j int) bool {
		if blobs[i].CreatedAt.Equal(blobs[j].CreatedAt) {
			return blobs[i].ID < blobs[j].ID
		}
		return blobs[i].CreatedAt.Before(blobs[j].CreatedAt)
	})
}

// badgerLogger routes Badger's internal logging to the process logger.
// Badger is chatty at info level, so info is demoted to debug.
type badgerLogger struct{}

func (badgerLogger) Errorf(format string, args ...any) {
	logger.Error(fmt.Sprintf(format, args...), logger.KeyStoreType, "badger")
}

func (badgerLogger) Warningf(format string, args ...any) {
	logger.Warn(fmt.Sprintf(format, args...), logger.KeyStoreType, "badger")
}

func (badgerLogger) Infof(format string, args ...any) {
	logger.Debug(fmt.Sprintf(format, args...), logger.KeyStoreType, "badger")
}

func (badgerLogger) Debugf(format string, args ...any) {
	logger.Debug(fmt.Sprintf(format, args...), logger.KeyStoreType, "badger")
}
