package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) (*Registry, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "registry.json")
	return New(path), path
}

func TestTransitions(t *testing.T) {
	r, _ := newTestRegistry(t)
	path := "/repo"

	// not_found -> indexing(0)
	r.SetIndexing(path, 0)
	entry, ok := r.Get(path)
	require.True(t, ok)
	assert.Equal(t, StatusIndexing, entry.Status)
	assert.Zero(t, entry.Progress)

	// indexing(p) -> indexing(p')
	r.SetIndexing(path, 50)
	entry, _ = r.Get(path)
	assert.Equal(t, 50.0, entry.Progress)

	// indexing -> indexed
	r.SetIndexed(path, IndexedStats{Files: 10, Chunks: 100})
	entry, _ = r.Get(path)
	assert.Equal(t, StatusIndexed, entry.Status)
	assert.Equal(t, 10, entry.Files)
	assert.Equal(t, 100, entry.Chunks)
	assert.Equal(t, CompletionCompleted, entry.Completion)

	// any -> not_found on clear
	r.Clear(path)
	_, ok = r.Get(path)
	assert.False(t, ok)
}

func TestSetFailed_PreservesProgress(t *testing.T) {
	r, _ := newTestRegistry(t)
	r.SetIndexing("/repo", 42)
	r.SetFailed("/repo", "embedder unreachable")

	entry, ok := r.Get("/repo")
	require.True(t, ok)
	assert.Equal(t, StatusFailed, entry.Status)
	assert.Equal(t, "embedder unreachable", entry.Message)
	require.NotNil(t, entry.LastProgress)
	assert.Equal(t, 42.0, *entry.LastProgress)

	// failed -> indexing(0) on retry
	r.SetIndexing("/repo", 0)
	entry, _ = r.Get("/repo")
	assert.Equal(t, StatusIndexing, entry.Status)
}

func TestInMemoryFreshness(t *testing.T) {
	// Registry pointed at an unwritable path: disk writes fail but
	// reads still see every mutation instantly.
	r := New(filepath.Join(t.TempDir(), "missing-dir-kept-unwritable", "\x00bad", "registry.json"))

	r.SetIndexing("/repo", 50)
	r.SetIndexed("/repo", IndexedStats{Files: 10, Chunks: 100})

	assert.Contains(t, r.GetIndexed(), "/repo")
	entry, ok := r.Get("/repo")
	require.True(t, ok)
	assert.Equal(t, StatusIndexed, entry.Status)
	assert.Equal(t, 10, entry.Files)
}

func TestPersistence_RoundTrip(t *testing.T) {
	r, path := newTestRegistry(t)
	r.SetIndexed("/repo", IndexedStats{Files: 3, Chunks: 12, Completion: CompletionLimitReached})

	reloaded := New(path)
	entry, ok := reloaded.Get("/repo")
	require.True(t, ok)
	assert.Equal(t, StatusIndexed, entry.Status)
	assert.Equal(t, CompletionLimitReached, entry.Completion)
	assert.NotEmpty(t, entry.LastUpdated)
}

func TestLoad_CorruptFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0o644))

	r := New(path)
	assert.Empty(t, r.List())
}

type fakeChecker struct {
	existing map[string]bool
}

func (f *fakeChecker) HasCollection(_ context.Context, name string) (bool, error) {
	return f.existing[name], nil
}

func TestReconcile(t *testing.T) {
	r, _ := newTestRegistry(t)
	r.SetIndexed("/kept", IndexedStats{Files: 1, Chunks: 1})
	r.SetIndexed("/stale", IndexedStats{Files: 1, Chunks: 1})
	r.SetIndexing("/in-flight", 10)

	checker := &fakeChecker{existing: map[string]bool{"col_kept": true}}
	nameFor := func(path string) string {
		if path == "/kept" {
			return "col_kept"
		}
		return "col_other"
	}

	r.Reconcile(context.Background(), checker, nameFor)

	_, ok := r.Get("/kept")
	assert.True(t, ok)
	_, ok = r.Get("/stale")
	assert.False(t, ok)
	// Indexing entries survive even without a backing collection.
	_, ok = r.Get("/in-flight")
	assert.True(t, ok)
}

func TestGetIndexed_OnlyIndexed(t *testing.T) {
	r, _ := newTestRegistry(t)
	r.SetIndexed("/a", IndexedStats{})
	r.SetIndexing("/b", 5)
	r.SetFailed("/c", "boom")

	assert.Equal(t, []string{"/a"}, r.GetIndexed())
}
