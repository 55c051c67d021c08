// SPDX-License-Identifier: MIT

package api

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/clipworks/clipd/internal/clip"
	"github.com/clipworks/clipd/internal/config"
	"github.com/clipworks/clipd/internal/media/engine"
	"github.com/clipworks/clipd/internal/store"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEngine scripts engine outcomes without spawning subprocesses.
type fakeEngine struct {
	mu           sync.Mutex
	metadata     map[string]*engine.Metadata // per source path
	trimDuration float64                     // reported for trim outputs
	failTrim     bool
	failConcat   bool
	diagnostic   string
	trimOutputs  map[string]bool
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		metadata:     map[string]*engine.Metadata{},
		trimDuration: 1.0,
		trimOutputs:  map[string]bool{},
	}
}

func (f *fakeEngine) Inspect(_ context.Context, path string) *engine.Metadata {
	f.mu.Lock()
	defer f.mu.Unlock()
	if md, ok := f.metadata[path]; ok {
		return md
	}
	if f.trimOutputs[path] {
		return &engine.Metadata{Duration: f.trimDuration}
	}
	return nil
}

func (f *fakeEngine) Trim(_ context.Context, _ string, _ float64, output string) engine.Completion {
	if f.failTrim {
		return engine.Completion{Err: errors.New("engine: trim failed"), Diagnostic: f.diagnostic, ExitCode: 1}
	}
	if err := os.WriteFile(output, []byte("trimmed"), 0o600); err != nil {
		return engine.Completion{Err: err}
	}
	f.mu.Lock()
	f.trimOutputs[output] = true
	f.mu.Unlock()
	return engine.Completion{}
}

func (f *fakeEngine) Concat(_ context.Context, manifest, output string) engine.Completion {
	if f.failConcat {
		return engine.Completion{Err: errors.New("engine: concat failed"), Diagnostic: f.diagnostic, ExitCode: 1}
	}
	body, err := os.ReadFile(manifest)
	if err != nil {
		return engine.Completion{Err: err}
	}
	if err := os.WriteFile(output, body, 0o600); err != nil {
		return engine.Completion{Err: err}
	}
	return engine.Completion{}
}

func newTestServer(t *testing.T) (*Server, *store.Store, *fakeEngine) {
	t.Helper()
	logger := zerolog.New(zerolog.NewTestWriter(t))
	st, err := store.New(t.TempDir(), logger)
	require.NoError(t, err)

	eng := newFakeEngine()
	cfg := config.Config{
		ListenAddr:         "127.0.0.1:0",
		StoreDir:           st.Dir(),
		RateLimitPerMinute: 0, // disabled for deterministic tests
	}
	s := New(cfg, st, clip.NewExtractor(eng, st, logger), clip.NewMerger(eng, st, logger), logger)
	return s, st, eng
}

// seedClip writes a finalized clip directly into the store.
func seedClip(t *testing.T, st *store.Store, name string, body []byte) {
	t.Helper()
	require.NoError(t, os.WriteFile(st.FinalPath(name), body, 0o600))
}

func doJSON(t *testing.T, h http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestExtractCreatesClipAndRemovesSource(t *testing.T) {
	s, st, eng := newTestServer(t)

	source := filepath.Join(t.TempDir(), "upload.mp4")
	require.NoError(t, os.WriteFile(source, []byte("source"), 0o600))
	eng.metadata[source] = &engine.Metadata{Duration: 10, Height: 720}

	rec := doJSON(t, s.Handler(), http.MethodPost, "/api/v1/clips", map[string]any{
		"source_path":  source,
		"start_offset": 3.0,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp extractResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, strings.HasSuffix(resp.Filename, "_processed.mp4"))
	assert.InDelta(t, 1.0, resp.Duration, 0.1)

	_, err := os.Stat(st.FinalPath(resp.Filename))
	assert.NoError(t, err, "clip should be finalized in the store")
	_, err = os.Stat(source)
	assert.True(t, os.IsNotExist(err), "uploaded source must be removed")
}

func TestExtractRemovesSourceOnFailure(t *testing.T) {
	s, _, eng := newTestServer(t)
	eng.failTrim = true
	eng.diagnostic = "moov atom not found"

	source := filepath.Join(t.TempDir(), "broken.mp4")
	require.NoError(t, os.WriteFile(source, []byte("junk"), 0o600))
	eng.metadata[source] = &engine.Metadata{Duration: 10}

	rec := doJSON(t, s.Handler(), http.MethodPost, "/api/v1/clips", map[string]any{
		"source_path":  source,
		"start_offset": 0.0,
	})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "moov atom")

	_, err := os.Stat(source)
	assert.True(t, os.IsNotExist(err), "source must be removed even on failure")
}

func TestExtractValidation(t *testing.T) {
	s, _, _ := newTestServer(t)

	cases := []struct {
		name string
		body map[string]any
		want int
	}{
		{"missing source", map[string]any{"start_offset": 1.0}, http.StatusBadRequest},
		{"negative offset", map[string]any{"source_path": "/tmp/x.mp4", "start_offset": -1.0}, http.StatusBadRequest},
		{"nonexistent source", map[string]any{"source_path": "/nonexistent/upload.mp4", "start_offset": 0.0}, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, s.Handler(), http.MethodPost, "/api/v1/clips", tc.body)
			assert.Equal(t, tc.want, rec.Code, rec.Body.String())
		})
	}
}

func TestExtractSeekBeyondDuration(t *testing.T) {
	s, _, eng := newTestServer(t)

	source := filepath.Join(t.TempDir(), "short.mp4")
	require.NoError(t, os.WriteFile(source, []byte("short"), 0o600))
	eng.metadata[source] = &engine.Metadata{Duration: 2.5}

	rec := doJSON(t, s.Handler(), http.MethodPost, "/api/v1/clips", map[string]any{
		"source_path":  source,
		"start_offset": 5.0,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestMergeStreamsAndDeletesOutput(t *testing.T) {
	s, st, _ := newTestServer(t)
	seedClip(t, st, "100-aaaaaaaa_processed.mp4", []byte("a"))
	seedClip(t, st, "200-bbbbbbbb_processed.mp4", []byte("b"))

	rec := doJSON(t, s.Handler(), http.MethodPost, "/api/v1/merges", map[string]any{
		"filenames": []string{"100-aaaaaaaa_processed.mp4", "200-bbbbbbbb_processed.mp4"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "video/mp4", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "merged-")

	// The fake concat echoes the manifest, so order must be preserved.
	body := rec.Body.String()
	first := strings.Index(body, "100-aaaaaaaa_processed.mp4")
	second := strings.Index(body, "200-bbbbbbbb_processed.mp4")
	require.GreaterOrEqual(t, first, 0)
	require.Greater(t, second, first)

	clips, err := st.List()
	require.NoError(t, err)
	for _, c := range clips {
		assert.False(t, strings.HasPrefix(c.Name, "merged-"), "merge output must not linger in the store")
	}
}

func TestMergeErrors(t *testing.T) {
	cases := []struct {
		name      string
		filenames []string
		want      int
	}{
		{"empty list", nil, http.StatusBadRequest},
		{"traversal name", []string{"../../etc/passwd"}, http.StatusBadRequest},
		{"unknown clip", []string{"999-ffffffff_processed.mp4"}, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, _, _ := newTestServer(t)
			rec := doJSON(t, s.Handler(), http.MethodPost, "/api/v1/merges", map[string]any{
				"filenames": tc.filenames,
			})
			assert.Equal(t, tc.want, rec.Code, rec.Body.String())
		})
	}
}

func TestMergeEngineFailureCleansUp(t *testing.T) {
	s, st, eng := newTestServer(t)
	eng.failConcat = true
	seedClip(t, st, "100-aaaaaaaa_processed.mp4", []byte("a"))

	rec := doJSON(t, s.Handler(), http.MethodPost, "/api/v1/merges", map[string]any{
		"filenames": []string{"100-aaaaaaaa_processed.mp4"},
	})
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	entries, err := os.ReadDir(st.Dir())
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), "concat-"), "scratch manifest left behind")
		assert.False(t, strings.HasPrefix(e.Name(), ".part-"), "staging file left behind")
	}
}

func TestListClips(t *testing.T) {
	s, st, _ := newTestServer(t)
	seedClip(t, st, "100-aaaaaaaa_processed.mp4", []byte("aaa"))
	seedClip(t, st, "200-bbbbbbbb_processed.mp4", []byte("bb"))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/clips", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Clips []store.ClipInfo `json:"clips"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Clips, 2)
}

func TestDeleteClip(t *testing.T) {
	s, st, _ := newTestServer(t)
	seedClip(t, st, "100-aaaaaaaa_processed.mp4", []byte("a"))

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/clips/100-aaaaaaaa_processed.mp4", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	_, err := os.Stat(st.FinalPath("100-aaaaaaaa_processed.mp4"))
	assert.True(t, os.IsNotExist(err))

	// Deleting again is a 404, not idempotent success.
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestArchiveContainsAllClips(t *testing.T) {
	s, st, _ := newTestServer(t)
	seedClip(t, st, "100-aaaaaaaa_processed.mp4", []byte("first clip"))
	seedClip(t, st, "200-bbbbbbbb_processed.mp4", []byte("second clip"))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/clips/archive", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/zip", rec.Header().Get("Content-Type"))

	zr, err := zip.NewReader(bytes.NewReader(rec.Body.Bytes()), int64(rec.Body.Len()))
	require.NoError(t, err)
	names := make(map[string]bool, len(zr.File))
	for _, f := range zr.File {
		names[f.Name] = true
	}
	assert.True(t, names["100-aaaaaaaa_processed.mp4"])
	assert.True(t, names["200-bbbbbbbb_processed.mp4"])
}

func TestHealthz(t *testing.T) {
	s, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}
