package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/blobxfer/internal/cli/output"
	"github.com/marmos91/blobxfer/pkg/transfer"
	"github.com/marmos91/blobxfer/pkg/transfer/store"
)

var (
	listAll   bool
	listState string
)

// nowFunc is replaced in tests.
var nowFunc = time.Now

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List transfers",
	Long: `List batches and standalone blob transfers, oldest first.

Examples:
  # List transfers
  blobxfer list

  # Include the blobs of every batch
  blobxfer list --all

  # Only paused transfers, as JSON
  blobxfer list --state paused -o json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var filter transfer.State
		if listState != "" {
			s, ok := transfer.ParseState(listState)
			if !ok {
				return fmt.Errorf("invalid state %q (valid: pending, inProgress, paused, failed, canceled, complete)", listState)
			}
			filter = s
		}
		return withApp(cmd, func(ctx context.Context, a *app) error {
			rows, err := a.listRows(ctx, listAll, filter)
			if err != nil {
				return err
			}
			if a.printer.Format() != output.FormatTable {
				return a.printer.Print(rows)
			}
			if len(rows) == 0 {
				a.printer.Printf("No transfers\n")
				return nil
			}
			return a.printer.Print(listTable{rows: rows, printer: a.printer, now: nowFunc()})
		})
	},
}

func init() {
	listCmd.Flags().BoolVarP(&listAll, "all", "a", false, "Include blobs that belong to a batch")
	listCmd.Flags().StringVar(&listState, "state", "", "Only show transfers in this state")
}

// listRows returns one row per batch and per blob. Blobs of a batch are
// included only when all is set. A non-unknown filter keeps rows in that
// aggregated state.
func (a *app) listRows(ctx context.Context, all bool, filter transfer.State) ([]listRow, error) {
	rows := make([]listRow, 0)
	keep := func(s transfer.State) bool {
		return filter == transfer.StateUnknown || s == filter
	}

	batches, err := a.store.ListBatches(ctx)
	if err != nil {
		return nil, err
	}
	for _, batch := range batches {
		snap, err := store.LoadBatch(ctx, a.store, batch.ID)
		if err != nil {
			return nil, err
		}
		state := snap.State()
		if !keep(state) {
			continue
		}
		var done, total int64
		for _, b := range snap.Blobs {
			done += b.CompletedBytes()
			total += b.Blob.Size()
		}
		rows = append(rows, listRow{
			ID:      batch.ID,
			Kind:    "batch",
			Type:    "-",
			State:   state.String(),
			Done:    done,
			Size:    total,
			Source:  batch.Name,
			Created: batch.CreatedAt,
			state:   state,
		})
	}

	blobs, err := a.store.ListBlobs(ctx)
	if err != nil {
		return nil, err
	}
	for _, blob := range blobs {
		if blob.ParentID != "" && !all {
			continue
		}
		snap, err := store.LoadBlob(ctx, a.store, blob.ID)
		if err != nil {
			return nil, err
		}
		if !keep(snap.State()) {
			continue
		}
		rows = append(rows, blobRow(snap))
	}
	return rows, nil
}
