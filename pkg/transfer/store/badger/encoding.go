package badger

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/marmos91/blobxfer/pkg/transfer"
)

// Key namespace. Every record type lives under its own prefix so that a
// prefix scan enumerates exactly one kind of record; relationships are kept
// as empty-valued index keys.
//
// Data Type          Prefix   Key Format                          Value
// ==========================================================================
// Blob transfer      "x:"     x:<blobID>                          blobValue (JSON)
// Block transfer     "k:"     k:<blockID>                         blockValue (JSON)
// Blob -> blocks     "xk:"    xk:<blobID>:<index %010d>:<blockID> empty
// Batch              "m:"     m:<batchID>                         batchValue (JSON)
// Batch -> blobs     "mx:"    mx:<batchID>:<blobID>               empty
const (
	prefixBlob       = "x:"
	prefixBlock      = "k:"
	prefixBlobBlocks = "xk:"
	prefixBatch      = "m:"
	prefixBatchBlobs = "mx:"
)

func keyBlob(id string) []byte  { return []byte(prefixBlob + id) }
func keyBlock(id string) []byte { return []byte(prefixBlock + id) }
func keyBatch(id string) []byte { return []byte(prefixBatch + id) }

// keyBlobBlock zero-pads the index so lexical key order equals block order.
func keyBlobBlock(blobID string, index int, blockID string) []byte {
	return []byte(fmt.Sprintf("%s%s:%010d:%s", prefixBlobBlocks, blobID, index, blockID))
}

func keyBlobBlocksPrefix(blobID string) []byte {
	return []byte(prefixBlobBlocks + blobID + ":")
}

func keyBatchBlob(batchID, blobID string) []byte {
	return []byte(prefixBatchBlobs + batchID + ":" + blobID)
}

func keyBatchBlobsPrefix(batchID string) []byte {
	return []byte(prefixBatchBlobs + batchID + ":")
}

type blobValue struct {
	ID          string    `json:"id"`
	Source      string    `json:"source"`
	Destination string    `json:"destination"`
	Type        int       `json:"type"`
	RawState    int       `json:"raw_state"`
	StartRange  int64     `json:"start_range"`
	EndRange    int64     `json:"end_range"`
	ParentID    string    `json:"parent_id,omitempty"`
	SessionID   string    `json:"session_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type blockValue struct {
	ID         string `json:"id"`
	BlobID     string `json:"blob_id"`
	Index      int    `json:"index"`
	StartRange int64  `json:"start_range"`
	EndRange   int64  `json:"end_range"`
	State      int    `json:"state"`
}

type batchValue struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	RawState  int       `json:"raw_state"`
	CreatedAt time.Time `json:"created_at"`
}

func encodeBlob(b *transfer.BlobTransfer) ([]byte, error) {
	return json.Marshal(blobValue{
		ID:          b.ID,
		Source:      b.Source,
		Destination: b.Destination,
		Type:        b.Type.Code(),
		RawState:    b.RawState.Code(),
		StartRange:  b.StartRange,
		EndRange:    b.EndRange,
		ParentID:    b.ParentID,
		SessionID:   b.SessionID,
		CreatedAt:   b.CreatedAt,
		UpdatedAt:   b.UpdatedAt,
	})
}

func decodeBlob(data []byte) (*transfer.BlobTransfer, error) {
	var v blobValue
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode blob transfer: %w", err)
	}
	return &transfer.BlobTransfer{
		ID:          v.ID,
		Source:      v.Source,
		Destination: v.Destination,
		Type:        transfer.TypeFromCode(v.Type),
		RawState:    transfer.StateFromCode(v.RawState),
		StartRange:  v.StartRange,
		EndRange:    v.EndRange,
		ParentID:    v.ParentID,
		SessionID:   v.SessionID,
		CreatedAt:   v.CreatedAt,
		UpdatedAt:   v.UpdatedAt,
	}, nil
}

func encodeBlock(b *transfer.BlockTransfer) ([]byte, error) {
	return json.Marshal(blockValue{
		ID:         b.ID,
		BlobID:     b.BlobID,
		Index:      b.Index,
		StartRange: b.StartRange,
		EndRange:   b.EndRange,
		State:      b.State.Code(),
	})
}

func decodeBlock(data []byte) (*transfer.BlockTransfer, error) {
	var v blockValue
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode block transfer: %w", err)
	}
	return &transfer.BlockTransfer{
		ID:         v.ID,
		BlobID:     v.BlobID,
		Index:      v.Index,
		StartRange: v.StartRange,
		EndRange:   v.EndRange,
		State:      transfer.StateFromCode(v.State),
	}, nil
}

func encodeBatch(b *transfer.MultiBlobTransfer) ([]byte, error) {
	return json.Marshal(batchValue{
		ID:        b.ID,
		Name:      b.Name,
		RawState:  b.RawState.Code(),
		CreatedAt: b.CreatedAt,
	})
}

func decodeBatch(data []byte) (*transfer.MultiBlobTransfer, error) {
	var v batchValue
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode batch transfer: %w", err)
	}
	return &transfer.MultiBlobTransfer{
		ID:        v.ID,
		Name:      v.Name,
		RawState:  transfer.StateFromCode(v.RawState),
		CreatedAt: v.CreatedAt,
	}, nil
}
