package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	s3exec "github.com/marmos91/blobxfer/pkg/executor/s3"
)

var (
	copyRange  byteRange
	copyDetach bool
)

var copyCmd = &cobra.Command{
	Use:   "copy <src> <dst>",
	Short: "Copy a local file or directory block by block",
	Long: `Copy between two local paths, for example onto a network mount, with the
same resumable block tracking as S3 transfers.

Examples:
  # Copy a file
  blobxfer copy ./disk.img /mnt/nas/disk.img

  # Copy a directory
  blobxfer copy ./photos /mnt/nas/photos`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if s3exec.IsURL(args[0]) || s3exec.IsURL(args[1]) {
			return fmt.Errorf("copy works on local paths; use upload or download for s3:// urls")
		}
		return withApp(cmd, func(ctx context.Context, a *app) error {
			t, err := a.createLocal(ctx, args[0], args[1], copyRange)
			if err != nil {
				return err
			}
			return a.launch(ctx, t, copyDetach)
		})
	},
}

func init() {
	copyRange.register(copyCmd)
	copyCmd.Flags().BoolVar(&copyDetach, "detach", false, "Only register the transfer; run it later with resume")
}
