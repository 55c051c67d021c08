// SPDX-License-Identifier: MIT

package middleware

import (
	"net/http"
	"time"

	"github.com/clipworks/clipd/internal/log"
)

// Logging emits one structured log line per request with method, path,
// status and latency, correlated through the request id in context.
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		lw := &metricsWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(lw, r)

		logger := log.WithComponentFromContext(r.Context(), "http")
		logger.Info().
			Str("event", "http.request").
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", lw.statusCode).
			Int("bytes", lw.bytesWritten).
			Dur("latency", time.Since(start)).
			Str("remote_addr", r.RemoteAddr).
			Msg("request completed")
	})
}
