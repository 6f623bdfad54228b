package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/blobxfer/internal/cli/output"
)

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete completed transfers",
	Long: `Delete every transfer whose blocks are all complete, and every batch left
without blobs.

Examples:
  blobxfer prune`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			blobs, err := a.ctrl.PruneCompleted(ctx)
			if err != nil {
				return err
			}

			batches, err := a.store.ListBatches(ctx)
			if err != nil {
				return err
			}
			emptied := 0
			for _, b := range batches {
				if len(b.BlobIDs) > 0 {
					continue
				}
				if err := a.store.DeleteBatch(ctx, b.ID); err != nil {
					return err
				}
				emptied++
			}

			a.printer.Success(fmt.Sprintf("Pruned %d transfers and %d batches", blobs, emptied))
			if a.printer.Format() == output.FormatTable {
				return nil
			}
			return a.printer.Print(map[string]int{"blobs": blobs, "batches": emptied})
		})
	},
}
