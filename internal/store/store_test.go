// SPDX-License-Identifier: MIT

package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	return s
}

func TestNewCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "clips")
	s, err := New(dir, zerolog.Nop())
	require.NoError(t, err)

	info, err := os.Stat(s.Dir())
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestNewClipNameUniqueness(t *testing.T) {
	s := newTestStore(t)
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		name := s.NewClipName()
		assert.False(t, seen[name], "duplicate name %s", name)
		seen[name] = true
		assert.True(t, strings.HasSuffix(name, "_processed.mp4"))
	}
}

func TestPromoteRenamesStagingIntoPlace(t *testing.T) {
	s := newTestStore(t)
	name := s.NewClipName()

	require.NoError(t, os.WriteFile(s.StagingPath(name), []byte("clip"), 0o600))

	final, err := s.Promote(name)
	require.NoError(t, err)
	assert.Equal(t, s.FinalPath(name), final)

	_, err = os.Stat(s.StagingPath(name))
	assert.True(t, os.IsNotExist(err), "staging file must not survive promotion")

	data, err := os.ReadFile(final)
	require.NoError(t, err)
	assert.Equal(t, "clip", string(data))
}

func TestPromoteWithoutStagingFails(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Promote("missing_processed.mp4")
	assert.Error(t, err)
}

func TestResolveRejectsTraversal(t *testing.T) {
	s := newTestStore(t)

	for _, name := range []string{
		"",
		"../etc/passwd",
		"a/b.mp4",
		`a\b.mp4`,
		"..",
		".part-x.mp4",
		".hidden.mp4",
		"concat-job.txt",
	} {
		_, err := s.Resolve(name)
		assert.Error(t, err, "expected rejection for %q", name)
	}
}

func TestResolveAcceptsPlainNames(t *testing.T) {
	s := newTestStore(t)
	path, err := s.Resolve("123-abcd1234_processed.mp4")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(s.Dir(), "123-abcd1234_processed.mp4"), path)
}

func TestListSkipsStagingAndScratch(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, os.WriteFile(s.FinalPath("1-aaaa_processed.mp4"), []byte("a"), 0o600))
	require.NoError(t, os.WriteFile(s.FinalPath("merged-2-bbbb.mp4"), []byte("bb"), 0o600))
	require.NoError(t, os.WriteFile(s.StagingPath("3-cccc_processed.mp4"), []byte("c"), 0o600))
	require.NoError(t, os.WriteFile(s.ManifestPath("job1"), []byte("file 'x'"), 0o600))
	require.NoError(t, os.WriteFile(s.FinalPath("notes.txt"), []byte("n"), 0o600))

	clips, err := s.List()
	require.NoError(t, err)

	names := make([]string, 0, len(clips))
	for _, c := range clips {
		names = append(names, c.Name)
	}
	assert.ElementsMatch(t, []string{"1-aaaa_processed.mp4", "merged-2-bbbb.mp4"}, names)
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, os.WriteFile(s.FinalPath("x_processed.mp4"), []byte("x"), 0o600))

	require.NoError(t, s.Delete("x_processed.mp4"))
	_, err := os.Stat(s.FinalPath("x_processed.mp4"))
	assert.True(t, os.IsNotExist(err))

	assert.Error(t, s.Delete("x_processed.mp4"), "second delete must fail")
	assert.Error(t, s.Delete("../x.mp4"), "traversal must be rejected")
}

func TestWritable(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.Writable())

	entries, err := os.ReadDir(s.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries, "probe file must not survive")
}

func TestRemoveMissingIsSilent(t *testing.T) {
	s := newTestStore(t)
	s.Remove(filepath.Join(s.Dir(), "never-existed.mp4"))
}
