package indexer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xaxixak/oracle-v2/internal/store"
	"github.com/xaxixak/oracle-v2/internal/vector"
)

// fakeBackend is an in-memory vector.Backend recording upserts.
type fakeBackend struct {
	unreachable bool
	deleted     int
	items       map[string]vector.Item
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{items: map[string]vector.Item{}}
}

func (f *fakeBackend) EnsureCollection(ctx context.Context, name string) error {
	if f.unreachable {
		return vector.ErrUnavailable
	}
	return nil
}

func (f *fakeBackend) Upsert(ctx context.Context, name string, items []vector.Item) error {
	if f.unreachable {
		return vector.ErrUnavailable
	}
	for _, it := range items {
		f.items[it.ID] = it
	}
	return nil
}

func (f *fakeBackend) Query(ctx context.Context, name, text string, k int, where map[string]string) (*vector.QueryResult, error) {
	return &vector.QueryResult{}, nil
}

func (f *fakeBackend) CollectionStats(ctx context.Context, name string) (*vector.Stats, error) {
	return &vector.Stats{Count: len(f.items)}, nil
}

func (f *fakeBackend) DeleteCollection(ctx context.Context, name string) error {
	f.deleted++
	f.items = map[string]vector.Item{}
	return nil
}

func (f *fakeBackend) Close() error { return nil }

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "oracle.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func writeCorpus(t *testing.T, root string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "resonance"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "learnings"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "resonance", "core.md"),
		[]byte("### Nothing is Deleted\n- append only\n- preserve history\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "learnings", "git.md"),
		[]byte("never force push to shared branches\n"), 0o644))
}

func TestRunRebuildsBothIndices(t *testing.T) {
	st := openTestStore(t)
	backend := newFakeBackend()
	root := t.TempDir()
	writeCorpus(t, root)

	ix := New(st, backend, "oracle_knowledge", nil)
	res, err := ix.Run(context.Background(), root)
	require.NoError(t, err)

	// One section doc, two bullet subs, one whole-file learning.
	assert.Equal(t, 4, res.Documents)
	assert.Equal(t, 4, res.VectorIndexed)
	assert.True(t, res.VectorOK)
	assert.Equal(t, 1, backend.deleted)

	n, byType, err := st.CountDocuments()
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, 3, byType["principle"])
	assert.Equal(t, 1, byType["learning"])

	status, err := st.GetIndexingStatus()
	require.NoError(t, err)
	assert.False(t, status.IsIndexing)
	assert.Equal(t, 4, status.ProgressCurrent)
	assert.Empty(t, status.Error)
}

func TestRunIsIdempotentAcrossPasses(t *testing.T) {
	st := openTestStore(t)
	backend := newFakeBackend()
	root := t.TempDir()
	writeCorpus(t, root)

	ix := New(st, backend, "oracle_knowledge", nil)
	_, err := ix.Run(context.Background(), root)
	require.NoError(t, err)
	res, err := ix.Run(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, 4, res.Documents)
	n, _, err := st.CountDocuments()
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Len(t, backend.items, 4)
}

func TestRunToleratesUnreachableVectorBackend(t *testing.T) {
	st := openTestStore(t)
	backend := newFakeBackend()
	backend.unreachable = true
	root := t.TempDir()
	writeCorpus(t, root)

	ix := New(st, backend, "oracle_knowledge", nil)
	res, err := ix.Run(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, 4, res.Documents)
	assert.Zero(t, res.VectorIndexed)
	assert.False(t, res.VectorOK)

	// Keyword side is authoritative regardless.
	n, _, err := st.CountDocuments()
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestRunEmptyCorpus(t *testing.T) {
	st := openTestStore(t)
	ix := New(st, newFakeBackend(), "oracle_knowledge", nil)
	res, err := ix.Run(context.Background(), t.TempDir())
	require.NoError(t, err)
	assert.Zero(t, res.Documents)
}
