// Package status exports errors produced by the core package and the
// mapping from error kinds to process exit codes for the CLI.
package status

import (
	"context"

	"github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/errors"
)

var (
	// ErrTagMoved indicates the tag points at a different digest than the
	// one captured when the operation was planned or last synced. Never
	// auto-recovered: pull, reconcile, then push again.
	ErrTagMoved = errors.New("tag moved since last sync (pull to reconcile, then push)")

	// ErrSafetyGuard indicates a pull would overwrite or delete local
	// changes and overwrite was not set
	ErrSafetyGuard = errors.New("pull would overwrite or delete local changes (use overwrite to force)")

	// ErrCanceled indicates a cancellation signal was observed; no
	// persistent state was mutated
	ErrCanceled = errors.New("operation canceled")

	// ErrInvalidInput indicates malformed user input: a digest, path or
	// reference that fails validation
	ErrInvalidInput = errors.New("invalid input")

	// ErrConfig indicates the operation cannot proceed with the current
	// configuration
	ErrConfig = errors.New("configuration error")

	// ErrEmptyPlan indicates an apply was attempted with a nil plan
	ErrEmptyPlan = errors.New("no plan to apply")
)

// IsCanceled recognizes cancellation in any of its spellings
func IsCanceled(err error) bool {
	return errors.Is(err, ErrCanceled) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
