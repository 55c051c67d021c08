// SPDX-License-Identifier: MIT

// Package clip implements the clip pipeline: fixed-length extraction with
// verification, and order-preserving merging of previously extracted clips.
package clip

import (
	"context"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/clipworks/clipd/internal/log"
	"github.com/clipworks/clipd/internal/media/engine"
	"github.com/clipworks/clipd/internal/metrics"
	"github.com/clipworks/clipd/internal/store"
	"github.com/rs/zerolog"
)

const (
	// targetDuration is the fixed clip length produced by extraction.
	targetDuration = 1.0
	// durationTolerance is the accepted deviation of the verified output.
	durationTolerance = 0.1
)

// Extractor produces verified one-second clips from arbitrary source files.
type Extractor struct {
	eng   engine.Engine
	store *store.Store
	log   zerolog.Logger
}

// NewExtractor builds an Extractor on top of the given engine and store.
func NewExtractor(eng engine.Engine, st *store.Store, logger zerolog.Logger) *Extractor {
	return &Extractor{eng: eng, store: st, log: logger}
}

// Extract trims a one-second clip from sourcePath at offsetSeconds, verifies
// its duration and promotes it into the canonical store. It returns the
// finalized clip filename and its verified duration. The source file is
// never modified or deleted; that cleanup belongs to the caller.
func (e *Extractor) Extract(ctx context.Context, sourcePath string, offsetSeconds float64) (string, float64, error) {
	start := time.Now()
	defer func() { metrics.ObserveExtractDuration(time.Since(start)) }()

	logger := log.WithContext(ctx, e.log).With().Str("source", sourcePath).Float64("offset", offsetSeconds).Logger()

	if offsetSeconds < 0 {
		metrics.IncExtract("invalid_offset")
		return "", 0, fmt.Errorf("negative start offset %v", offsetSeconds)
	}
	if _, err := os.Stat(sourcePath); err != nil {
		metrics.IncExtract("input_not_found")
		return "", 0, fmt.Errorf("%w: %s", ErrInputNotFound, sourcePath)
	}

	// Best-effort probe: absence of metadata never blocks processing, it
	// only costs the early seek check and the diagnostics below.
	if meta := e.eng.Inspect(ctx, sourcePath); meta != nil {
		logger.Info().
			Float64("duration", meta.Duration).
			Int("height", meta.Height).
			Str("video_codec", meta.VideoCodec).
			Msg("source inspected")
		if meta.Duration > 0 && offsetSeconds >= meta.Duration {
			metrics.IncExtract("seek_out_of_range")
			return "", 0, fmt.Errorf("%w: offset %.3fs, source %.3fs", ErrSeekOutOfRange, offsetSeconds, meta.Duration)
		}
	} else {
		logger.Warn().Msg("source metadata unavailable, proceeding without seek check")
	}

	name := e.store.NewClipName()
	staging := e.store.StagingPath(name)

	if c := e.eng.Trim(ctx, sourcePath, offsetSeconds, staging); !c.OK() {
		e.store.Remove(staging)
		metrics.IncExtract("trim_failed")
		return "", 0, &ProcessingError{Diagnostic: c.Diagnostic, ExitCode: c.ExitCode, Err: c.Err}
	}

	meta := e.eng.Inspect(ctx, staging)
	if meta == nil {
		e.store.Remove(staging)
		metrics.IncExtract("verify_failed")
		return "", 0, fmt.Errorf("%w: output not probeable", ErrDurationMismatch)
	}
	if math.Abs(meta.Duration-targetDuration) > durationTolerance {
		e.store.Remove(staging)
		metrics.IncExtract("duration_mismatch")
		return "", 0, fmt.Errorf("%w: got %.3fs", ErrDurationMismatch, meta.Duration)
	}

	if _, err := e.store.Promote(name); err != nil {
		e.store.Remove(staging)
		metrics.IncExtract("fs_error")
		return "", 0, err
	}

	logger.Info().
		Str("clip", name).
		Float64("duration", meta.Duration).
		Msg("clip extracted")
	metrics.IncExtract("success")
	return name, meta.Duration, nil
}
