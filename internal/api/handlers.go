// SPDX-License-Identifier: MIT

package api

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"

	"github.com/clipworks/clipd/internal/log"
	"github.com/go-chi/chi/v5"
)

// extractRequest is the body of POST /api/v1/clips. The source path is an
// already-uploaded temporary file; authorization and upload transport are
// the caller's concern.
type extractRequest struct {
	SourcePath  string  `json:"source_path"`
	StartOffset float64 `json:"start_offset"`
}

type extractResponse struct {
	Filename string  `json:"filename"`
	Duration float64 `json:"duration"`
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	logger := log.WithComponentFromContext(r.Context(), "api")

	var req extractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SourcePath == "" {
		writeErr(w, http.StatusBadRequest, "source_path is required")
		return
	}
	if req.StartOffset < 0 {
		writeErr(w, http.StatusBadRequest, "start_offset must not be negative")
		return
	}

	name, duration, err := s.extractor.Extract(r.Context(), req.SourcePath, req.StartOffset)

	// The uploaded source is transient: it must not survive this request,
	// success or failure.
	if rmErr := os.Remove(req.SourcePath); rmErr != nil && !os.IsNotExist(rmErr) {
		logger.Warn().Err(rmErr).Str("path", req.SourcePath).Msg("source cleanup failed")
	}

	if err != nil {
		logger.Error().Err(err).Str("source", req.SourcePath).Msg("extraction failed")
		writeErr(w, clipErrorStatus(err), err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, extractResponse{Filename: name, Duration: duration})
}

// mergeRequest is the body of POST /api/v1/merges. Filenames reference
// finalized clips in the store, in playback order.
type mergeRequest struct {
	Filenames []string `json:"filenames"`
}

func (s *Server) handleMerge(w http.ResponseWriter, r *http.Request) {
	logger := log.WithComponentFromContext(r.Context(), "api")

	var req mergeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Filenames) == 0 {
		writeErr(w, http.StatusBadRequest, "filenames must not be empty")
		return
	}

	paths := make([]string, len(req.Filenames))
	for i, name := range req.Filenames {
		path, err := s.store.Resolve(name)
		if err != nil {
			writeErr(w, http.StatusBadRequest, fmt.Sprintf("invalid clip name %q", name))
			return
		}
		paths[i] = path
	}

	outPath, err := s.merger.Merge(r.Context(), paths)
	if err != nil {
		logger.Error().Err(err).Int("inputs", len(paths)).Msg("merge failed")
		writeErr(w, clipErrorStatus(err), err.Error())
		return
	}
	// Merge output ownership is ours now: stream it back, then delete it.
	defer s.store.Remove(outPath)

	f, err := os.Open(outPath)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "merge output unavailable")
		return
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "merge output unavailable")
		return
	}

	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", info.Name()))
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, f); err != nil {
		// Headers are committed; nothing left but to drop the connection.
		logger.Warn().Err(err).Msg("merge download aborted mid-stream")
	}
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	clips, err := s.store.List()
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"clips": clips})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.store.Delete(name); err != nil {
		writeErr(w, clipErrorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deleted": name})
}

// handleArchive streams every finalized clip as one zip download.
func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	logger := log.WithComponentFromContext(r.Context(), "api")

	clips, err := s.store.List()
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "store unavailable")
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="clips.zip"`)
	w.WriteHeader(http.StatusOK)

	zw := zip.NewWriter(w)
	defer func() { _ = zw.Close() }()

	for _, c := range clips {
		path, err := s.store.Resolve(c.Name)
		if err != nil {
			continue
		}
		f, err := os.Open(path)
		if err != nil {
			logger.Warn().Err(err).Str("clip", c.Name).Msg("skipping unreadable clip in archive")
			continue
		}
		entry, err := zw.Create(c.Name)
		if err != nil {
			_ = f.Close()
			logger.Warn().Err(err).Str("clip", c.Name).Msg("archive aborted")
			return
		}
		if _, err := io.Copy(entry, f); err != nil {
			_ = f.Close()
			logger.Warn().Err(err).Str("clip", c.Name).Msg("archive aborted mid-entry")
			return
		}
		_ = f.Close()
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Writable(); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
