package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/blobxfer/internal/cli/prompt"
)

var discardForce bool

var discardCmd = &cobra.Command{
	Use:   "discard <id>",
	Short: "Delete a transfer record",
	Long: `Delete a transfer and its blocks from the store. Discarding an unfinished
S3 upload aborts its multipart upload. A batch is discarded with all of
its blobs.

Examples:
  # Discard after confirmation
  blobxfer discard 6f1c...

  # Skip the confirmation
  blobxfer discard 6f1c... --force`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			t, err := a.resolve(ctx, args[0])
			if err != nil {
				return err
			}

			ok, err := prompt.ConfirmWithForce(fmt.Sprintf("Discard %s %s?", t.kind(), t.ID), discardForce)
			if err != nil {
				return err
			}
			if !ok {
				return prompt.ErrAborted
			}

			if err := a.discard(ctx, t); err != nil {
				return err
			}
			a.printer.Success(fmt.Sprintf("Discarded %s %s", t.kind(), t.ID))
			return a.printer.Print(transferResults{{ID: t.ID, Kind: t.kind(), State: "discarded"}})
		})
	},
}

func init() {
	discardCmd.Flags().BoolVarP(&discardForce, "force", "f", false, "Skip confirmation and stop a running transfer")
}

func (a *app) discard(ctx context.Context, t target) error {
	if !t.Batch {
		return a.ctrl.Discard(ctx, t.ID, discardForce)
	}
	batch, err := a.store.GetBatch(ctx, t.ID)
	if err != nil {
		return err
	}
	for _, id := range batch.BlobIDs {
		if err := a.ctrl.Discard(ctx, id, discardForce); err != nil {
			return fmt.Errorf("blob %s: %w", id, err)
		}
	}
	return a.store.DeleteBatch(ctx, t.ID)
}
