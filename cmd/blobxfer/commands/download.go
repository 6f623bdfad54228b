package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	s3exec "github.com/marmos91/blobxfer/pkg/executor/s3"
)

var (
	downloadRange  byteRange
	downloadDetach bool
)

var downloadCmd = &cobra.Command{
	Use:   "download <s3://bucket/key> <local>",
	Short: "Download an S3 object",
	Long: `Download an S3 object with one ranged GET per block. Each block is written
at its own offset of the local file, so blocks can finish in any order.

Examples:
  # Download to a file
  blobxfer download s3://backups/disk.img ./disk.img

  # Download into a directory, keeping the object name
  blobxfer download s3://backups/disk.img ./restore/

  # Download only the first MiB
  blobxfer download s3://backups/disk.img ./head.img --end 1048575`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !s3exec.IsURL(args[0]) {
			return fmt.Errorf("source %q is not an s3:// url", args[0])
		}
		return withApp(cmd, func(ctx context.Context, a *app) error {
			t, err := a.createDownload(ctx, args[0], args[1], downloadRange)
			if err != nil {
				return err
			}
			return a.launch(ctx, t, downloadDetach)
		})
	},
}

func init() {
	downloadRange.register(downloadCmd)
	downloadCmd.Flags().BoolVar(&downloadDetach, "detach", false, "Only register the transfer; run it later with resume")
}
