// SPDX-License-Identifier: MIT

// Package engine is a thin contract over the external transcoding engine.
// It issues trim, concat and inspect commands and reports their outcome;
// domain policy (durations, tolerances) belongs to the callers.
package engine

import (
	"context"
	"fmt"
)

// Metadata describes a probed media file.
type Metadata struct {
	Duration   float64 // seconds, container format duration
	Width      int
	Height     int
	VideoCodec string
	AudioCodec string
	SizeBytes  int64
}

// Completion is the awaited result of one engine invocation.
// A nil Err means the engine exited successfully.
type Completion struct {
	Err        error
	Diagnostic string // engine stderr tail, empty on success
	ExitCode   int
}

// OK reports whether the invocation succeeded.
func (c Completion) OK() bool { return c.Err == nil }

// Engine abstracts the subprocess-based transcoding engine.
type Engine interface {
	// Inspect probes path and returns its metadata. It returns nil for a
	// missing or unreadable file instead of an error; callers decide policy.
	Inspect(ctx context.Context, path string) *Metadata

	// Trim produces a clip of exactly targetDuration seconds starting at
	// offsetSeconds of input, written to output.
	Trim(ctx context.Context, input string, offsetSeconds float64, output string) Completion

	// Concat concatenates the files listed in the manifest (concat-demuxer
	// syntax) into output using stream copy.
	Concat(ctx context.Context, manifest, output string) Completion
}

// failure builds a failed Completion with a wrapped error and diagnostic.
func failure(exitCode int, diagnostic string, err error) Completion {
	return Completion{
		Err:        fmt.Errorf("engine: %w", err),
		Diagnostic: diagnostic,
		ExitCode:   exitCode,
	}
}
