package blobstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T, store BlobStore) {
	t.Helper()
	ctx := context.Background()

	// Missing blob
	_, err := store.Open(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	// Write and read back
	require.NoError(t, store.Put(ctx, "part-1", []byte("hello")))
	b, err := store.Open(ctx, "part-1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), b.Size())

	data, err := ReadAll(b)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)
	require.NoError(t, b.Close())

	// Overwrite is atomic from the API's perspective: last Put wins.
	require.NoError(t, store.Put(ctx, "part-1", []byte("world!")))
	b, err = store.Open(ctx, "part-1")
	require.NoError(t, err)
	data, err = ReadAll(b)
	require.NoError(t, err)
	assert.Equal(t, []byte("world!"), data)
	require.NoError(t, b.Close())

	// List with prefix
	require.NoError(t, store.Put(ctx, "part-2", []byte("x")))
	require.NoError(t, store.Put(ctx, "meta", []byte("y")))
	names, err := store.List(ctx, "part-")
	require.NoError(t, err)
	assert.Equal(t, []string{"part-1", "part-2"}, names)

	// Delete, including delete of a missing blob
	require.NoError(t, store.Delete(ctx, "part-2"))
	require.NoError(t, store.Delete(ctx, "part-2"))
	_, err = store.Open(ctx, "part-2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore(t *testing.T) {
	testStore(t, NewMemoryStore())
}

func TestLocalStore(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	testStore(t, store)
}

func TestMemoryStore_OpenIsSnapshot(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Put(ctx, "blob", []byte("before")))
	b, err := store.Open(ctx, "blob")
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, store.Put(ctx, "blob", []byte("after!")))

	data, err := ReadAll(b)
	require.NoError(t, err)
	assert.Equal(t, []byte("before"), data)
}
