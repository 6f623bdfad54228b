package controller

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrPaused is the cancellation cause delivered to executors when a
	// transfer is paused. Blocks interrupted by it become paused.
	ErrPaused = errors.New("transfer paused")

	// ErrCanceled is the cancellation cause delivered to executors when a
	// transfer is canceled. Blocks interrupted by it become canceled.
	ErrCanceled = errors.New("transfer canceled")

	// ErrClosed is returned by operations on a closed controller.
	ErrClosed = errors.New("controller is closed")

	// ErrActive is returned when discarding a transfer that is still running
	// without forcing it.
	ErrActive = errors.New("transfer is running")

	// ErrInvalidOutcome is returned by ReportBlockResult for a state that is
	// not a block outcome.
	ErrInvalidOutcome = errors.New("invalid block outcome")

	// errShutdown pauses runs interrupted by Close. Their blobs keep raw
	// state inProgress so that Recover restarts them.
	errShutdown = fmt.Errorf("controller shutting down: %w", ErrPaused)
)

// Interruption returns ErrPaused or ErrCanceled when ctx was canceled by a
// pause or cancel request, and nil otherwise. Executors may use it to tell an
// interruption from a genuine failure.
func Interruption(ctx context.Context) error {
	cause := context.Cause(ctx)
	switch {
	case errors.Is(cause, ErrCanceled):
		return ErrCanceled
	case errors.Is(cause, ErrPaused):
		return ErrPaused
	default:
		return nil
	}
}
