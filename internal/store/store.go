// SPDX-License-Identifier: MIT

// Package store manages the canonical clip directory: unique naming,
// staging files, scratch manifests, promotion into place and cleanup.
// Finalized files only ever appear via create-then-rename, so readers
// never observe a half-written clip.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	stagingPrefix  = ".part-"
	manifestPrefix = "concat-"
	clipSuffix     = "_processed.mp4"
	mergePrefix    = "merged-"
)

// ErrInvalidName rejects clip names that could address files outside the
// store or its internal staging artifacts.
var ErrInvalidName = errors.New("invalid clip name")

// Store owns the canonical clip directory.
type Store struct {
	dir string
	log zerolog.Logger
}

// ClipInfo describes one finalized file in the store.
type ClipInfo struct {
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

// New creates the store directory if absent and returns a Store rooted there.
func New(dir string, logger zerolog.Logger) (*Store, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve store dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &Store{dir: abs, log: logger}, nil
}

// Dir returns the absolute store directory.
func (s *Store) Dir() string { return s.dir }

// NewClipName allocates a unique clip filename. The unix-millisecond prefix
// keeps names sortable by creation time; the uuid fragment removes the
// same-clock-tick collision window of purely time-derived names.
func (s *Store) NewClipName() string {
	return fmt.Sprintf("%d-%s%s", time.Now().UnixMilli(), shortID(), clipSuffix)
}

// NewMergeName allocates a unique merge output filename.
func (s *Store) NewMergeName() string {
	return fmt.Sprintf("%s%d-%s.mp4", mergePrefix, time.Now().UnixMilli(), shortID())
}

func shortID() string {
	return uuid.NewString()[:8]
}

// FinalPath returns the canonical path of a finalized file.
func (s *Store) FinalPath(name string) string {
	return filepath.Join(s.dir, name)
}

// StagingPath returns the hidden sibling a producer writes into before
// promotion.
func (s *Store) StagingPath(name string) string {
	return filepath.Join(s.dir, stagingPrefix+name)
}

// ManifestPath returns the per-job scratch manifest path.
func (s *Store) ManifestPath(jobID string) string {
	return filepath.Join(s.dir, manifestPrefix+jobID+".txt")
}

// Promote renames the staging file for name into its final place and
// returns the final path.
func (s *Store) Promote(name string) (string, error) {
	final := s.FinalPath(name)
	if err := os.Rename(s.StagingPath(name), final); err != nil {
		return "", fmt.Errorf("promote %s: %w", name, err)
	}
	return final, nil
}

// Remove deletes path best-effort. Failures are logged, never returned:
// cleanup must not mask the error that triggered it.
func (s *Store) Remove(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		s.log.Warn().Err(err).Str("path", path).Msg("cleanup failed")
	}
}

// Resolve maps a bare filename onto its confined store path. Names with
// separators, traversal segments or a staging/scratch prefix are rejected.
func (s *Store) Resolve(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if name != filepath.Clean(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if strings.HasPrefix(name, manifestPrefix) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	full := filepath.Join(s.dir, name)
	rel, err := filepath.Rel(s.dir, full)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("%w: path escapes store: %q", ErrInvalidName, name)
	}
	return full, nil
}

// VerifyExists re-checks that path exists and is a regular file immediately
// before use.
func (s *Store) VerifyExists(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	return nil
}

// List returns the finalized files in the store, newest first. Staging
// files and scratch manifests are excluded.
func (s *Store) List() ([]ClipInfo, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read store dir: %w", err)
	}
	var clips []ClipInfo
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || strings.HasPrefix(name, manifestPrefix) {
			continue
		}
		if !strings.HasSuffix(name, ".mp4") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		clips = append(clips, ClipInfo{Name: name, Size: info.Size(), Modified: info.ModTime()})
	}
	sort.Slice(clips, func(i, j int) bool { return clips[i].Modified.After(clips[j].Modified) })
	return clips, nil
}

// Delete removes a finalized file by name.
func (s *Store) Delete(name string) error {
	path, err := s.Resolve(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("delete %s: %w", name, err)
	}
	return nil
}

// Writable probes that the store directory accepts writes.
func (s *Store) Writable() error {
	probe := filepath.Join(s.dir, ".probe-"+shortID())
	f, err := os.OpenFile(probe, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("store not writable: %w", err)
	}
	_ = f.Close()
	s.Remove(probe)
	return nil
}
