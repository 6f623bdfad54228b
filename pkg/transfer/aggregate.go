package transfer

import (
	"fmt"
	"strings"
)

// AggregateState computes the externally visible state of a container from
// its own stored state and the states of its children.
//
// With no children the container's own state is authoritative (an
// undecodable code is reported as StateUnknown). Otherwise the
// highest-priority child state among canceled, failed, paused and
// inProgress wins; if no child is in one of those states the container is
// reported complete, regardless of its own field.
//
// Note that a set made only of pending and complete children therefore
// aggregates to complete, even though pending children have not run yet.
// Callers that need to know whether work remains must look at
// IncompleteBlocks or Terminal instead of the aggregated state.
func AggregateState(own State, children []State) State {
	if len(children) == 0 {
		return StateFromCode(int(own))
	}

	winner := StateComplete
	found := false
	for _, s := range children {
		if !s.overrides() {
			continue
		}
		if !found || s.Priority() > winner.Priority() {
			winner = s
			found = true
		}
	}
	return winner
}

// BlobSnapshot is a blob record together with the blocks read alongside it.
type BlobSnapshot struct {
	Blob   *BlobTransfer
	Blocks []*BlockTransfer
}

// State returns the aggregated state of the blob.
func (s *BlobSnapshot) State() State {
	states := make([]State, len(s.Blocks))
	for i, b := range s.Blocks {
		states[i] = b.State
	}
	return AggregateState(s.Blob.RawState, states)
}

// IncompleteBlocks returns the number of blocks not in state complete.
func (s *BlobSnapshot) IncompleteBlocks() int64 {
	var n int64
	for _, b := range s.Blocks {
		if b.State != StateComplete {
			n++
		}
	}
	return n
}

// CompletedBytes returns the number of bytes covered by complete blocks.
func (s *BlobSnapshot) CompletedBytes() int64 {
	var n int64
	for _, b := range s.Blocks {
		if b.State == StateComplete {
			n += b.Len()
		}
	}
	return n
}

// Dispatchable returns the blocks a start or resume would hand to an
// executor, in their original order.
func (s *BlobSnapshot) Dispatchable() []*BlockTransfer {
	var out []*BlockTransfer
	for _, b := range s.Blocks {
		if b.State.Dispatchable() {
			out = append(out, b)
		}
	}
	return out
}

// Decomposed reports whether the blob has been split into blocks.
func (s *BlobSnapshot) Decomposed() bool {
	return len(s.Blocks) > 0
}

// Terminal reports whether the transfer can no longer be resumed: it was
// canceled, or it has blocks and every one of them is complete.
func (s *BlobSnapshot) Terminal() bool {
	if s.Blob.RawState == StateCanceled {
		return true
	}
	for _, b := range s.Blocks {
		if b.State == StateCanceled {
			return true
		}
	}
	return s.Decomposed() && s.IncompleteBlocks() == 0
}

// String renders a human-readable summary: identity, aggregated state and
// one line per block. It is meant for diagnostics only.
func (s *BlobSnapshot) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Transfer %s %s %s -> %s: state %s (%d/%d blocks incomplete)",
		s.Blob.ID, s.Blob.Type, s.Blob.Source, s.Blob.Destination,
		s.State(), s.IncompleteBlocks(), len(s.Blocks))
	for _, b := range s.Blocks {
		fmt.Fprintf(&sb, "\n\tBlock %d %s %s: state %s", b.Index, b.ID, rangeLabel(b.StartRange, b.EndRange), b.State)
	}
	return sb.String()
}

// BatchSnapshot is a batch record together with its child blob snapshots.
type BatchSnapshot struct {
	Batch *MultiBlobTransfer
	Blobs []*BlobSnapshot
}

// State aggregates the children's aggregated states with the same rule a
// blob applies to its blocks.
func (s *BatchSnapshot) State() State {
	states := make([]State, len(s.Blobs))
	for i, b := range s.Blobs {
		states[i] = b.State()
	}
	return AggregateState(s.Batch.RawState, states)
}

// IncompleteBlobs returns the number of child blobs not aggregated as
// complete.
func (s *BatchSnapshot) IncompleteBlobs() int {
	n := 0
	for _, b := range s.Blobs {
		if b.State() != StateComplete {
			n++
		}
	}
	return n
}

func (s *BatchSnapshot) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Batch %s %q: state %s (%d blobs)", s.Batch.ID, s.Batch.Name, s.State(), len(s.Blobs))
	for _, b := range s.Blobs {
		sb.WriteString("\n")
		sb.WriteString(b.String())
	}
	return sb.String()
}
