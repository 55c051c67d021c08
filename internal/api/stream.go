// SPDX-License-Identifier: MIT

package api

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/clipworks/clipd/internal/log"
	"github.com/clipworks/clipd/internal/metrics"
	"github.com/go-chi/chi/v5"
	"golang.org/x/text/unicode/norm"
)

// byteRange is one parsed single-range request window.
type byteRange struct {
	start int64
	end   int64
}

// handleStream serves a finalized clip with byte-range support.
//
// No Range header: 200 with Accept-Ranges and the full body.
// Single range "bytes=start-end?": 206 with Content-Range and exactly that
// window. Multi-range requests are not supported; only the first clause is
// honored. Malformed or unsatisfiable ranges get 416.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	logger := log.WithComponentFromContext(r.Context(), "stream")
	name := chi.URLParam(r, "name")

	if isPathTraversal(name) {
		logger.Warn().Str("event", "stream.denied").Str("name", name).Msg("detected traversal sequence")
		metrics.ObserveStream("403", 0)
		writeErr(w, http.StatusForbidden, "forbidden")
		return
	}

	path, err := s.store.Resolve(name)
	if err != nil {
		metrics.ObserveStream("404", 0)
		writeErr(w, http.StatusNotFound, "not found")
		return
	}

	f, err := os.Open(path)
	if err != nil {
		metrics.ObserveStream("404", 0)
		writeErr(w, http.StatusNotFound, "not found")
		return
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		metrics.ObserveStream("404", 0)
		writeErr(w, http.StatusNotFound, "not found")
		return
	}
	size := info.Size()

	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Cache-Control", "no-cache")

	rangeHeader := r.Header.Get("Range")
	if rangeHeader == "" {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		w.WriteHeader(http.StatusOK)
		metrics.ObserveStream("200", size)
		if r.Method == http.MethodHead {
			return
		}
		if _, err := io.Copy(w, f); err != nil {
			// Headers committed; abort the connection, status stays 200.
			logger.Warn().Err(err).Str("clip", name).Msg("stream aborted mid-body")
		}
		return
	}

	rng, err := parseRange(rangeHeader, size)
	if err != nil {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		metrics.ObserveStream("416", 0)
		writeErr(w, http.StatusRequestedRangeNotSatisfiable, err.Error())
		return
	}

	chunkSize := rng.end - rng.start + 1
	w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", rng.start, rng.end, size))
	w.Header().Set("Content-Length", strconv.FormatInt(chunkSize, 10))
	w.WriteHeader(http.StatusPartialContent)
	metrics.ObserveStream("206", chunkSize)
	if r.Method == http.MethodHead {
		return
	}

	if _, err := io.Copy(w, io.NewSectionReader(f, rng.start, chunkSize)); err != nil {
		logger.Warn().Err(err).Str("clip", name).Msg("stream aborted mid-range")
	}
}

// parseRange parses a single-range header "bytes=<start>-<end?>" against the
// file size. The start is required, the end defaults to size-1 and is
// clamped to it. Only the first clause of a multi-range header is parsed.
func parseRange(header string, size int64) (byteRange, error) {
	const prefix = "bytes="
	if !strings.HasPrefix(header, prefix) {
		return byteRange{}, fmt.Errorf("unsupported range unit")
	}
	spec := strings.TrimPrefix(header, prefix)
	if i := strings.IndexByte(spec, ','); i >= 0 {
		spec = spec[:i]
	}
	spec = strings.TrimSpace(spec)

	startStr, endStr, ok := strings.Cut(spec, "-")
	if !ok || startStr == "" {
		return byteRange{}, fmt.Errorf("malformed range %q", header)
	}

	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil || start < 0 {
		return byteRange{}, fmt.Errorf("malformed range start %q", startStr)
	}
	if start >= size {
		return byteRange{}, fmt.Errorf("range start %d beyond size %d", start, size)
	}

	end := size - 1
	if endStr != "" {
		end, err = strconv.ParseInt(endStr, 10, 64)
		if err != nil || end < 0 {
			return byteRange{}, fmt.Errorf("malformed range end %q", endStr)
		}
		if end < start {
			return byteRange{}, fmt.Errorf("range end %d before start %d", end, start)
		}
		if end > size-1 {
			end = size - 1
		}
	}

	return byteRange{start: start, end: end}, nil
}

// isPathTraversal performs robust checks against path traversal attempts.
// It decodes the input multiple times to catch double-encoding, applies
// Unicode normalization, and searches for dangerous sequences including NULs.
func isPathTraversal(p string) bool {
	decoded := p
	for i := 0; i < 3; i++ {
		prev := decoded
		if d, err := url.PathUnescape(decoded); err == nil {
			decoded = d
		}
		if decoded == prev {
			break
		}
	}

	lower := strings.ToLower(decoded)
	for _, pat := range []string{"..", "%00", "\x00", "/", `\`} {
		if strings.Contains(lower, pat) {
			return true
		}
	}

	normalized := strings.ToLower(norm.NFC.String(decoded))
	return strings.Contains(normalized, "..")
}
