package gorm

import (
	"time"

	"github.com/marmos91/blobxfer/pkg/transfer"
)

// BlobRecord is the row of a blob transfer. States and types are stored as
// their integer codes.
type BlobRecord struct {
	ID          string `gorm:"primaryKey;size:36"`
	Source      string `gorm:"not null"`
	Destination string `gorm:"not null"`
	Type        int    `gorm:"not null"`
	RawState    int    `gorm:"not null;index"`
	StartRange  int64  `gorm:"not null"`
	EndRange    int64  `gorm:"not null"`
	ParentID    string `gorm:"size:36;index"`
	SessionID   string `gorm:"size:1024"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (BlobRecord) TableName() string { return "blob_transfers" }

// BlockRecord is the row of a block transfer.
type BlockRecord struct {
	ID         string `gorm:"primaryKey;size:36"`
	BlobID     string `gorm:"not null;size:36;uniqueIndex:idx_block_blob_position,priority:1"`
	Index      int    `gorm:"column:block_index;not null;uniqueIndex:idx_block_blob_position,priority:2"`
	StartRange int64  `gorm:"not null"`
	EndRange   int64  `gorm:"not null"`
	State      int    `gorm:"not null"`
}

func (BlockRecord) TableName() string { return "block_transfers" }

// BatchRecord is the row of a multi-blob transfer.
type BatchRecord struct {
	ID        string `gorm:"primaryKey;size:36"`
	Name      string
	RawState  int `gorm:"not null"`
	CreatedAt time.Time
}

func (BatchRecord) TableName() string { return "batch_transfers" }

// allModels returns every model for AutoMigrate.
func allModels() []any {
	return []any{&BlobRecord{}, &BlockRecord{}, &BatchRecord{}}
}

func fromBlob(b *transfer.BlobTransfer) *BlobRecord {
	return &BlobRecord{
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
	}
}

func (r *BlobRecord) toBlob() *transfer.BlobTransfer {
	return &transfer.BlobTransfer{
		ID:          r.ID,
		Source:      r.Source,
		Destination: r.Destination,
		Type:        transfer.TypeFromCode(r.Type),
		RawState:    transfer.StateFromCode(r.RawState),
		StartRange:  r.StartRange,
		EndRange:    r.EndRange,
		ParentID:    r.ParentID,
		SessionID:   r.SessionID,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func fromBlock(b *transfer.BlockTransfer) *BlockRecord {
	return &BlockRecord{
		ID:         b.ID,
		BlobID:     b.BlobID,
		Index:      b.Index,
		StartRange: b.StartRange,
		EndRange:   b.EndRange,
		State:      b.State.Code(),
	}
}

func (r *BlockRecord) toBlock() *transfer.BlockTransfer {
	return &transfer.BlockTransfer{
		ID:         r.ID,
		BlobID:     r.BlobID,
		Index:      r.Index,
		StartRange: r.StartRange,
		EndRange:   r.EndRange,
		State:      transfer.StateFromCode(r.State),
	}
}

func fromBatch(b *transfer.MultiBlobTransfer) *BatchRecord {
	return &BatchRecord{
		ID:        b.ID,
		Name:      b.Name,
		RawState:  b.RawState.Code(),
		CreatedAt: b.CreatedAt,
	}
}

func (r *BatchRecord) toBatch() *transfer.MultiBlobTransfer {
	return &transfer.MultiBlobTransfer{
		ID:        r.ID,
		Name:      r.Name,
		RawState:  transfer.StateFromCode(r.RawState),
		CreatedAt: r.CreatedAt,
	}
}
