// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"

	"github.com/clipworks/clipd/internal/clip"
	"github.com/clipworks/clipd/internal/store"
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeErr writes a JSON error envelope.
func writeErr(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// clipErrorStatus maps pipeline errors onto HTTP status codes.
func clipErrorStatus(err error) int {
	var perr *clip.ProcessingError
	var merr *clip.MergeError
	switch {
	case errors.Is(err, clip.ErrInputNotFound), errors.Is(err, fs.ErrNotExist):
		return http.StatusNotFound
	case errors.Is(err, clip.ErrSeekOutOfRange), errors.Is(err, clip.ErrDurationMismatch):
		return http.StatusUnprocessableEntity
	case errors.Is(err, clip.ErrNoInputs), errors.Is(err, store.ErrInvalidName):
		return http.StatusBadRequest
	case errors.As(err, &perr), errors.As(err, &merr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
