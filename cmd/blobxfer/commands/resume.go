package commands

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/blobxfer/internal/cli/output"
	"github.com/marmos91/blobxfer/internal/cli/prompt"
	"github.com/marmos91/blobxfer/internal/logger"
	"github.com/marmos91/blobxfer/pkg/transfer"
)

var resumeAll bool

var resumeCmd = &cobra.Command{
	Use:   "resume [id]",
	Short: "Resume a paused, failed or interrupted transfer",
	Long: `Resume a transfer. Only blocks that are not complete are transferred
again; an S3 upload continues its existing multipart upload.

Without an id, pick the transfer interactively. With --all, every
transfer interrupted by a crash is recovered and every paused or failed
transfer is resumed.

Examples:
  # Resume one transfer
  blobxfer resume 6f1c...

  # Choose from a list
  blobxfer resume

  # Resume everything
  blobxfer resume --all`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			var targets []target
			var err error
			switch {
			case resumeAll:
				targets, err = a.recoverAll(ctx)
			case len(args) == 1:
				var t target
				t, err = a.resolve(ctx, args[0])
				targets = []target{t}
			default:
				var t target
				t, err = a.pick(ctx)
				targets = []target{t}
			}
			if err != nil {
				return err
			}
			if len(targets) == 0 {
				a.printer.Printf("Nothing to resume\n")
				return a.printer.Print(transferResults{})
			}
			return a.execute(ctx, targets...)
		})
	},
}

func init() {
	resumeCmd.Flags().BoolVar(&resumeAll, "all", false, "Resume every unfinished transfer")
}

// resumable reports whether a transfer in state s can make progress.
func resumable(s transfer.State) bool {
	switch s {
	case transfer.StatePending, transfer.StateInProgress, transfer.StatePaused, transfer.StateFailed:
		return true
	}
	return false
}

// recoverAll runs crash recovery and returns every unfinished top-level
// transfer.
func (a *app) recoverAll(ctx context.Context) ([]target, error) {
	stats, err := a.ctrl.Recover(ctx)
	if err != nil {
		return nil, err
	}
	if stats.BlobsRestarted > 0 {
		logger.Info("Recovered interrupted transfers", "restarted", stats.BlobsRestarted)
	}

	rows, err := a.listRows(ctx, false, transfer.StateUnknown)
	if err != nil {
		return nil, err
	}
	var targets []target
	for _, r := range rows {
		if resumable(r.state) {
			targets = append(targets, target{ID: r.ID, Batch: r.Kind == "batch"})
		}
	}
	return targets, nil
}

// pick asks the user to choose one unfinished transfer.
func (a *app) pick(ctx context.Context) (target, error) {
	if !output.IsTerminal(os.Stdin) {
		return target{}, errors.New("a transfer id is required when not running in a terminal")
	}
	rows, err := a.listRows(ctx, false, transfer.StateUnknown)
	if err != nil {
		return target{}, err
	}

	var options []prompt.SelectOption
	kinds := make(map[string]bool)
	for _, r := range rows {
		if !resumable(r.state) {
			continue
		}
		kinds[r.ID] = r.Kind == "batch"
		options = append(options, prompt.SelectOption{
			Label:       fmt.Sprintf("%s  %s -> %s", r.State, r.Source, r.Destination),
			Value:       r.ID,
			Description: fmt.Sprintf("%s %s, %s of %s", r.Kind, r.ID, formatBytes(r.Done), formatBytes(r.Size)),
		})
	}
	if len(options) == 0 {
		return target{}, errors.New("no unfinished transfers")
	}

	id, err := prompt.Select("Transfer to resume", options)
	if err != nil {
		return target{}, err
	}
	return target{ID: id, Batch: kinds[id]}, nil
}
