package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	s3exec "github.com/marmos91/blobxfer/pkg/executor/s3"
)

var (
	uploadRange  byteRange
	uploadDetach bool
)

var uploadCmd = &cobra.Command{
	Use:   "upload <local> <s3://bucket/key>",
	Short: "Upload a file or directory to S3",
	Long: `Upload a local file to an S3 object as a multipart upload, one part per
block. A directory is uploaded recursively as a batch under the given prefix.

Press Ctrl+C to pause; run "blobxfer resume <id>" to continue.

Examples:
  # Upload a file
  blobxfer upload ./disk.img s3://backups/disk.img

  # Upload a directory under a prefix
  blobxfer upload ./photos s3://media/photos/

  # Register the transfer without running it
  blobxfer upload ./disk.img s3://backups/disk.img --detach`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !s3exec.IsURL(args[1]) {
			return fmt.Errorf("destination %q is not an s3:// url (use copy for local destinations)", args[1])
		}
		return withApp(cmd, func(ctx context.Context, a *app) error {
			t, err := a.createLocal(ctx, args[0], args[1], uploadRange)
			if err != nil {
				return err
			}
			return a.launch(ctx, t, uploadDetach)
		})
	},
}

func init() {
	uploadRange.register(uploadCmd)
	uploadCmd.Flags().BoolVar(&uploadDetach, "detach", false, "Only register the transfer; run it later with resume")
}

// launch runs a freshly created target, or only reports its id when
// detached.
func (a *app) launch(ctx context.Context, t target, detach bool) error {
	if detach {
		a.printer.Printf("Created %s %s\n", t.kind(), t.ID)
		return a.printer.Print(transferResults{{ID: t.ID, Kind: t.kind(), State: "pending"}})
	}
	a.printer.Printf("Transferring %s %s\n", t.kind(), t.ID)
	return a.execute(ctx, t)
}
