// SPDX-License-Identifier: MIT

package clip

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/clipworks/clipd/internal/log"
	"github.com/clipworks/clipd/internal/media/engine"
	"github.com/clipworks/clipd/internal/metrics"
	"github.com/clipworks/clipd/internal/store"
	"github.com/google/renameio/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Merger concatenates ordered lists of clips into a single output file.
type Merger struct {
	eng   engine.Engine
	store *store.Store
	log   zerolog.Logger
}

// NewMerger builds a Merger on top of the given engine and store.
func NewMerger(eng engine.Engine, st *store.Store, logger zerolog.Logger) *Merger {
	return &Merger{eng: eng, store: st, log: logger}
}

// Merge concatenates the given clips, in caller-supplied order, into one
// output file and returns its path. Ownership of the output transfers to
// the caller, who deletes it after use. The per-job scratch manifest never
// outlives the call, success or failure.
func (m *Merger) Merge(ctx context.Context, orderedPaths []string) (string, error) {
	if len(orderedPaths) == 0 {
		metrics.IncMerge("no_inputs", 0)
		return "", ErrNoInputs
	}

	jobID := uuid.NewString()[:8]
	ctx = log.ContextWithJobID(ctx, jobID)
	logger := log.WithContext(ctx, m.log).With().Int("inputs", len(orderedPaths)).Logger()

	// Resolve and verify every input before any engine work. One missing
	// clip fails the whole job; there is no partial merge.
	inputs := make([]string, len(orderedPaths))
	for i, p := range orderedPaths {
		abs, err := filepath.Abs(p)
		if err != nil {
			metrics.IncMerge("input_not_found", len(orderedPaths))
			return "", fmt.Errorf("%w: %s", ErrInputNotFound, p)
		}
		if err := m.store.VerifyExists(abs); err != nil {
			metrics.IncMerge("input_not_found", len(orderedPaths))
			return "", fmt.Errorf("%w: %s", ErrInputNotFound, p)
		}
		inputs[i] = abs
	}

	m.logMaxHeight(ctx, logger, inputs)

	manifest := m.store.ManifestPath(jobID)
	if err := renameio.WriteFile(manifest, concatManifest(inputs), 0o600); err != nil {
		metrics.IncMerge("fs_error", len(inputs))
		return "", fmt.Errorf("write concat manifest: %w", err)
	}
	// The scratch manifest never outlives the merge call.
	defer m.store.Remove(manifest)

	outName := m.store.NewMergeName()
	staging := m.store.StagingPath(outName)

	if c := m.eng.Concat(ctx, manifest, staging); !c.OK() {
		m.store.Remove(staging)
		metrics.IncMerge("concat_failed", len(inputs))
		return "", &MergeError{Diagnostic: c.Diagnostic, ExitCode: c.ExitCode, Err: c.Err}
	}

	outPath, err := m.store.Promote(outName)
	if err != nil {
		m.store.Remove(staging)
		metrics.IncMerge("fs_error", len(inputs))
		return "", err
	}

	logger.Info().Str("output", outPath).Msg("clips merged")
	metrics.IncMerge("success", len(inputs))
	return outPath, nil
}

// logMaxHeight probes all inputs concurrently and logs the maximum video
// height. Diagnostic only: differing resolutions are not normalized before
// a stream-copy concat.
func (m *Merger) logMaxHeight(ctx context.Context, logger zerolog.Logger, inputs []string) {
	var mu sync.Mutex
	maxHeight := 0

	g, gctx := errgroup.WithContext(ctx)
	for _, p := range inputs {
		g.Go(func() error {
			if meta := m.eng.Inspect(gctx, p); meta != nil {
				mu.Lock()
				if meta.Height > maxHeight {
					maxHeight = meta.Height
				}
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	logger.Info().Int("max_height", maxHeight).Msg("merging clips")
}

// concatManifest renders the engine's concat-demuxer list: one
// "file '<path>'" line per input, in order, with single quotes escaped.
func concatManifest(paths []string) []byte {
	var b strings.Builder
	for _, p := range paths {
		escaped := strings.ReplaceAll(p, `'`, `'\''`)
		fmt.Fprintf(&b, "file '%s'\n", escaped)
	}
	return []byte(b.String())
}
