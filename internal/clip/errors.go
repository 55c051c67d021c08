// SPDX-License-Identifier: MIT

package clip

import (
	"errors"
	"fmt"
)

var (
	// ErrInputNotFound is returned when a referenced source or clip path
	// does not exist at call time. Fatal for the call, never retried.
	ErrInputNotFound = errors.New("input file not found")

	// ErrSeekOutOfRange is returned when the requested start offset lies
	// beyond the source duration. No output file is created.
	ErrSeekOutOfRange = errors.New("start offset beyond source duration")

	// ErrDurationMismatch is returned when the produced clip falls outside
	// the accepted duration tolerance. The malformed artifact is discarded.
	ErrDurationMismatch = errors.New("output duration outside tolerance")

	// ErrNoInputs is returned for a merge request with an empty clip list.
	ErrNoInputs = errors.New("no input clips")
)

// ProcessingError reports a failed trim invocation of the media engine.
type ProcessingError struct {
	Diagnostic string
	ExitCode   int
	Err        error
}

func (e *ProcessingError) Error() string {
	if e.Diagnostic != "" {
		return fmt.Sprintf("processing failed (exit %d): %s", e.ExitCode, e.Diagnostic)
	}
	return fmt.Sprintf("processing failed (exit %d): %v", e.ExitCode, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// MergeError reports a failed concat invocation of the media engine.
type MergeError struct {
	Diagnostic string
	ExitCode   int
	Err        error
}

func (e *MergeError) Error() string {
	if e.Diagnostic != "" {
		return fmt.Sprintf("merge failed (exit %d): %s", e.ExitCode, e.Diagnostic)
	}
	return fmt.Sprintf("merge failed (exit %d): %v", e.ExitCode, e.Err)
}

func (e *MergeError) Unwrap() error { return e.Err }
