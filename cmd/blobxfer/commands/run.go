package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/marmos91/blobxfer/internal/cli/output"
	"github.com/marmos91/blobxfer/internal/logger"
	"github.com/marmos91/blobxfer/pkg/transfer"
)

// progressInterval is how often the progress line is redrawn.
const progressInterval = 500 * time.Millisecond

// errStopped is returned when a second signal abandons the pause.
var errStopped = errors.New("stopped before the transfer paused")

// execute starts every target and waits for them to drain. The first
// SIGINT or SIGTERM pauses the targets so a later resume continues them;
// a second one stops waiting, leaving the transfers to crash recovery.
func (a *app) execute(ctx context.Context, targets ...target) error {
	for _, t := range targets {
		if err := a.start(ctx, t); err != nil {
			return fmt.Errorf("start %s %s: %w", t.kind(), t.ID, err)
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	type result struct {
		states []transfer.State
		err    error
	}
	done := make(chan result, 1)
	go func() {
		var res result
		for _, t := range targets {
			state, err := a.wait(ctx, t)
			res.states = append(res.states, state)
			res.err = errors.Join(res.err, err)
		}
		done <- res
	}()

	var ticks <-chan time.Time
	showProgress := a.printer.Format() == output.FormatTable && output.IsTerminal(os.Stderr)
	if showProgress {
		ticker := time.NewTicker(progressInterval)
		defer ticker.Stop()
		ticks = ticker.C
	}

	paused := false
	for {
		select {
		case <-sigCh:
			if paused {
				return errStopped
			}
			paused = true
			logger.Info("Signal received, pausing transfers")
			for _, t := range targets {
				if err := a.pause(ctx, t); err != nil {
					logger.Warn("Failed to pause transfer", logger.BlobID(t.ID), logger.Err(err))
				}
			}

		case <-ticks:
			a.drawProgress(ctx, targets)

		case res := <-done:
			if showProgress {
				fmt.Fprintln(os.Stderr)
			}
			return a.report(targets, res.states, res.err)
		}
	}
}

func (a *app) drawProgress(ctx context.Context, targets []target) {
	var done, total int64
	for _, t := range targets {
		d, n, err := a.progress(ctx, t)
		if err != nil {
			return
		}
		done += d
		total += n
	}
	fmt.Fprintf(os.Stderr, "\r%s %s", output.Progress(done, total, 30), formatBytes(done))
}

// transferResult is the machine-readable outcome of execute.
type transferResult struct {
	ID    string `json:"id" yaml:"id"`
	Kind  string `json:"kind" yaml:"kind"`
	State string `json:"state" yaml:"state"`
}

type transferResults []transferResult

func (r transferResults) Headers() []string { return []string{"ID", "KIND", "STATE"} }

func (r transferResults) Rows() [][]string {
	rows := make([][]string, 0, len(r))
	for _, x := range r {
		rows = append(rows, []string{x.ID, x.Kind, x.State})
	}
	return rows
}

func (a *app) report(targets []target, states []transfer.State, runErr error) error {
	results := make(transferResults, 0, len(targets))
	var incomplete []string
	for i, t := range targets {
		state := states[i]
		results = append(results, transferResult{ID: t.ID, Kind: t.kind(), State: state.String()})

		switch state {
		case transfer.StateComplete:
			a.printer.Success(fmt.Sprintf("Transfer %s complete", t.ID))
		case transfer.StatePaused:
			a.printer.Warning(fmt.Sprintf("Transfer %s paused. Resume with: blobxfer resume %s", t.ID, t.ID))
		default:
			incomplete = append(incomplete, fmt.Sprintf("%s %s", t.ID, a.printer.State(state)))
		}
	}

	if a.printer.Format() != output.FormatTable {
		if err := a.printer.Print(results); err != nil {
			return err
		}
	}
	if runErr != nil {
		return runErr
	}
	if len(incomplete) > 0 {
		return fmt.Errorf("transfers did not complete: %v (see blobxfer status <id>)", incomplete)
	}
	return nil
}
