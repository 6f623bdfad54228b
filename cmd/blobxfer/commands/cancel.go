package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel <id>",
	Short: "Cancel a transfer",
	Long: `Cancel a transfer for good. Complete blocks are kept; every other block
is marked canceled and an unfinished S3 multipart upload is aborted. A
canceled transfer cannot be resumed.

Examples:
  blobxfer cancel 6f1c...`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			t, err := a.resolve(ctx, args[0])
			if err != nil {
				return err
			}
			if err := a.cancel(ctx, t); err != nil {
				return err
			}
			a.printer.Success(fmt.Sprintf("Canceled %s %s", t.kind(), t.ID))
			return a.printer.Print(transferResults{{ID: t.ID, Kind: t.kind(), State: "canceled"}})
		})
	},
}
