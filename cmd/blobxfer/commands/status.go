package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/blobxfer/internal/cli/output"
	"github.com/marmos91/blobxfer/internal/cli/timeutil"
	"github.com/marmos91/blobxfer/pkg/transfer"
	"github.com/marmos91/blobxfer/pkg/transfer/store"
)

var statusDiagnostic bool

var statusCmd = &cobra.Command{
	Use:   "status <id>",
	Short: "Show the state of a transfer and its blocks",
	Long: `Show a transfer with the state of every block. For a batch, every blob of
the batch is listed.

Examples:
  # Show a transfer
  blobxfer status 6f1c...

  # Print the raw block diagnostic
  blobxfer status 6f1c... --diagnostic

  # As JSON
  blobxfer status 6f1c... -o json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			t, err := a.resolve(ctx, args[0])
			if err != nil {
				return err
			}
			if t.Batch {
				return a.showBatch(ctx, t.ID)
			}
			return a.showBlob(ctx, t.ID)
		})
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusDiagnostic, "diagnostic", false, "Print the plain-text block diagnostic")
}

func (a *app) showBlob(ctx context.Context, id string) error {
	snap, err := store.LoadBlob(ctx, a.store, id)
	if err != nil {
		return err
	}
	if a.printer.Format() != output.FormatTable {
		return a.printer.Print(newBlobView(snap, true))
	}
	if statusDiagnostic {
		a.printer.Printf("%s\n", snap.String())
		return nil
	}

	b := snap.Blob
	pairs := [][2]string{
		{"ID", b.ID},
		{"Type", b.Type.String()},
		{"State", a.printer.State(snap.State())},
		{"Source", b.Source},
		{"Destination", b.Destination},
		{"Range", fmt.Sprintf("[%d,%d] (%s)", b.StartRange, b.EndRange, formatBytes(b.Size()))},
		{"Progress", output.Progress(snap.CompletedBytes(), b.Size(), 20)},
		{"Blocks", fmt.Sprintf("%d (%d incomplete)", len(snap.Blocks), snap.IncompleteBlocks())},
		{"Created", timeutil.FormatTime(b.CreatedAt)},
		{"Updated", timeutil.FormatTime(b.UpdatedAt)},
	}
	if b.ParentID != "" {
		pairs = append(pairs, [2]string{"Batch", b.ParentID})
	}
	if b.SessionID != "" {
		pairs = append(pairs, [2]string{"Session", b.SessionID})
	}
	if err := output.PrintKeyValues(a.printer.Writer(), pairs); err != nil {
		return err
	}
	if len(snap.Blocks) == 0 {
		return nil
	}
	a.printer.Printf("\n")
	return a.printer.Print(blockTable{blocks: snap.Blocks, printer: a.printer})
}

func (a *app) showBatch(ctx context.Context, id string) error {
	snap, err := store.LoadBatch(ctx, a.store, id)
	if err != nil {
		return err
	}
	if a.printer.Format() != output.FormatTable {
		return a.printer.Print(newBatchView(snap))
	}
	if statusDiagnostic {
		a.printer.Printf("%s\n", snap.String())
		return nil
	}

	var done, total int64
	rows := make([]listRow, 0, len(snap.Blobs))
	for _, b := range snap.Blobs {
		done += b.CompletedBytes()
		total += b.Blob.Size()
		rows = append(rows, blobRow(b))
	}
	pairs := [][2]string{
		{"ID", snap.Batch.ID},
		{"Name", snap.Batch.Name},
		{"State", a.printer.State(snap.State())},
		{"Progress", output.Progress(done, total, 20)},
		{"Blobs", fmt.Sprintf("%d (%d incomplete)", len(snap.Blobs), snap.IncompleteBlobs())},
		{"Created", timeutil.FormatTime(snap.Batch.CreatedAt)},
	}
	if err := output.PrintKeyValues(a.printer.Writer(), pairs); err != nil {
		return err
	}
	a.printer.Printf("\n")
	return a.printer.Print(listTable{rows: rows, printer: a.printer, now: nowFunc()})
}

func blobRow(snap *transfer.BlobSnapshot) listRow {
	b := snap.Blob
	return listRow{
		ID:          b.ID,
		Kind:        "blob",
		Type:        b.Type.String(),
		State:       snap.State().String(),
		Done:        snap.CompletedBytes(),
		Size:        b.Size(),
		Source:      b.Source,
		Destination: b.Destination,
		Created:     b.CreatedAt,
		state:       snap.State(),
	}
}
