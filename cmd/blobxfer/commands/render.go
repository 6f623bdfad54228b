package commands

import (
	"fmt"
	"time"

	"github.com/marmos91/blobxfer/internal/bytesize"
	"github.com/marmos91/blobxfer/internal/cli/output"
	"github.com/marmos91/blobxfer/internal/cli/timeutil"
	"github.com/marmos91/blobxfer/pkg/transfer"
)

func formatBytes(n int64) string {
	if n < 0 {
		n = 0
	}
	return bytesize.ByteSize(n).String()
}

type blockView struct {
	Index int    `json:"index" yaml:"index"`
	ID    string `json:"id" yaml:"id"`
	Start int64  `json:"start" yaml:"start"`
	End   int64  `json:"end" yaml:"end"`
	State string `json:"state" yaml:"state"`
}

type blobView struct {
	ID             string      `json:"id" yaml:"id"`
	Parent         string      `json:"parent,omitempty" yaml:"parent,omitempty"`
	Type           string      `json:"type" yaml:"type"`
	State          string      `json:"state" yaml:"state"`
	RawState       string      `json:"raw_state" yaml:"raw_state"`
	Source         string      `json:"source" yaml:"source"`
	Destination    string      `json:"destination" yaml:"destination"`
	Start          int64       `json:"start" yaml:"start"`
	End            int64       `json:"end" yaml:"end"`
	Size           int64       `json:"size" yaml:"size"`
	CompletedBytes int64       `json:"completed_bytes" yaml:"completed_bytes"`
	Session        string      `json:"session,omitempty" yaml:"session,omitempty"`
	Blocks         int         `json:"blocks" yaml:"blocks"`
	Incomplete     int64       `json:"incomplete_blocks" yaml:"incomplete_blocks"`
	Created        time.Time   `json:"created" yaml:"created"`
	Updated        time.Time   `json:"updated" yaml:"updated"`
	BlockList      []blockView `json:"block_list,omitempty" yaml:"block_list,omitempty"`
}

func newBlobView(snap *transfer.BlobSnapshot, withBlocks bool) blobView {
	b := snap.Blob
	v := blobView{
		ID:             b.ID,
		Parent:         b.ParentID,
		Type:           b.Type.String(),
		State:          snap.State().String(),
		RawState:       b.RawState.String(),
		Source:         b.Source,
		Destination:    b.Destination,
		Start:          b.StartRange,
		End:            b.EndRange,
		Size:           b.Size(),
		CompletedBytes: snap.CompletedBytes(),
		Session:        b.SessionID,
		Blocks:         len(snap.Blocks),
		Incomplete:     snap.IncompleteBlocks(),
		Created:        b.CreatedAt,
		Updated:        b.UpdatedAt,
	}
	if withBlocks {
		for _, blk := range snap.Blocks {
			v.BlockList = append(v.BlockList, blockView{
				Index: blk.Index,
				ID:    blk.ID,
				Start: blk.StartRange,
				End:   blk.EndRange,
				State: blk.State.String(),
			})
		}
	}
	return v
}

type batchView struct {
	ID       string     `json:"id" yaml:"id"`
	Name     string     `json:"name" yaml:"name"`
	State    string     `json:"state" yaml:"state"`
	RawState string     `json:"raw_state" yaml:"raw_state"`
	Created  time.Time  `json:"created" yaml:"created"`
	Blobs    []blobView `json:"blobs" yaml:"blobs"`
}

func newBatchView(snap *transfer.BatchSnapshot) batchView {
	v := batchView{
		ID:       snap.Batch.ID,
		Name:     snap.Batch.Name,
		State:    snap.State().String(),
		RawState: snap.Batch.RawState.String(),
		Created:  snap.Batch.CreatedAt,
		Blobs:    make([]blobView, 0, len(snap.Blobs)),
	}
	for _, b := range snap.Blobs {
		v.Blobs = append(v.Blobs, newBlobView(b, false))
	}
	return v
}

// listRow is one line of the list command.
type listRow struct {
	ID          string    `json:"id" yaml:"id"`
	Kind        string    `json:"kind" yaml:"kind"`
	Type        string    `json:"type" yaml:"type"`
	State       string    `json:"state" yaml:"state"`
	Done        int64     `json:"completed_bytes" yaml:"completed_bytes"`
	Size        int64     `json:"size" yaml:"size"`
	Source      string    `json:"source" yaml:"source"`
	Destination string    `json:"destination" yaml:"destination"`
	Created     time.Time `json:"created" yaml:"created"`

	state transfer.State
}

// listTable renders listRows with colored states and relative ages.
type listTable struct {
	rows    []listRow
	printer *output.Printer
	now     time.Time
}

func (t listTable) Headers() []string {
	return []string{"ID", "KIND", "TYPE", "STATE", "PROGRESS", "SIZE", "SOURCE", "DESTINATION", "AGE"}
}

func (t listTable) Rows() [][]string {
	rows := make([][]string, 0, len(t.rows))
	for _, r := range t.rows {
		rows = append(rows, []string{
			r.ID,
			r.Kind,
			r.Type,
			t.printer.State(r.state),
			output.Progress(r.Done, r.Size, 10),
			formatBytes(r.Size),
			r.Source,
			r.Destination,
			timeutil.FormatAge(r.Created, t.now),
		})
	}
	return rows
}

// blockTable renders the blocks of one blob.
type blockTable struct {
	blocks  []*transfer.BlockTransfer
	printer *output.Printer
}

func (t blockTable) Headers() []string {
	return []string{"INDEX", "RANGE", "SIZE", "STATE"}
}

func (t blockTable) Rows() [][]string {
	rows := make([][]string, 0, len(t.blocks))
	for _, b := range t.blocks {
		rows = append(rows, []string{
			fmt.Sprintf("%d", b.Index),
			fmt.Sprintf("[%d,%d]", b.StartRange, b.EndRange),
			formatBytes(b.Len()),
			t.printer.State(b.State),
		})
	}
	return rows
}
