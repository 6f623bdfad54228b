package transfer

import (
	"fmt"
	"sort"
)

// Decompose splits the blob's span into contiguous pending blocks of
// chunkSize bytes. The last block may be shorter.
func Decompose(blob *BlobTransfer, chunkSize int64) ([]*BlockTransfer, error) {
	if chunkSize <= 0 {
		return nil, invalid("chunkSize", "must be positive, got %d", chunkSize)
	}
	if blob.StartRange < 0 || blob.StartRange > blob.EndRange {
		return nil, invalid("range", "startRange %d is after endRange %d", blob.StartRange, blob.EndRange)
	}

	count := (blob.Size() + chunkSize - 1) / chunkSize
	blocks := make([]*BlockTransfer, 0, count)
	for start, idx := blob.StartRange, 0; start <= blob.EndRange; start, idx = start+chunkSize, idx+1 {
		end := start + chunkSize - 1
		if end > blob.EndRange {
			end = blob.EndRange
		}
		blocks = append(blocks, &BlockTransfer{
			ID:         NewID(),
			BlobID:     blob.ID,
			Index:      idx,
			StartRange: start,
			EndRange:   end,
			State:      StatePending,
		})
	}
	return blocks, nil
}

// ValidateBlocks checks that blocks belong to blob and partition its span
// exactly: no gaps, no overlaps, no byte outside the span.
func ValidateBlocks(blob *BlobTransfer, blocks []*BlockTransfer) error {
	if len(blocks) == 0 {
		return invalid("blocks", "blob %s has no blocks", blob.ID)
	}

	sorted := make([]*BlockTransfer, len(blocks))
	copy(sorted, blocks)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].StartRange < sorted[j].StartRange
	})

	next := blob.StartRange
	for _, b := range sorted {
		if b.BlobID != blob.ID {
			return invalid("blocks", "block %s belongs to blob %s, not %s", b.ID, b.BlobID, blob.ID)
		}
		if b.StartRange > b.EndRange {
			return invalid("blocks", "block %s has inverted range [%d,%d]", b.ID, b.StartRange, b.EndRange)
		}
		switch {
		case b.StartRange > next:
			return invalid("blocks", "gap [%d,%d] before block %s", next, b.StartRange-1, b.ID)
		case b.StartRange < next:
			return invalid("blocks", "block %s overlaps previous block at offset %d", b.ID, b.StartRange)
		}
		next = b.EndRange + 1
	}
	if next != blob.EndRange+1 {
		return invalid("blocks", "blocks end at %d, blob ends at %d", next-1, blob.EndRange)
	}
	return nil
}

// rangeLabel renders an inclusive byte range.
func rangeLabel(start, end int64) string {
	return fmt.Sprintf("[%d,%d]", start, end)
}
