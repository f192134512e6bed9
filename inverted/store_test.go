package inverted

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chenkovsky/lance/blobstore"
	"github.com/chenkovsky/lance/model"
)

func storedPartition(t *testing.T) *Partition {
	t.Helper()
	pb := newPartitionBuilder()
	require.NoError(t, pb.addDoc(model.Row{ID: 1, Fragment: 0}, []string{"quick", "brown", "fox"}))
	require.NoError(t, pb.addDoc(model.Row{ID: 2, Fragment: 0}, []string{"lazy", "brown", "dog"}))
	require.NoError(t, pb.addDoc(model.Row{ID: 3, Fragment: 1}, []string{"fox", "fox"}))
	return pb.seal(7)
}

func assertPartitionsEqual(t *testing.T, want, got *Partition) {
	t.Helper()
	assert.Equal(t, want.ID(), got.ID())
	assert.Equal(t, want.NumDocs(), got.NumDocs())
	assert.Equal(t, want.NumTokens(), got.NumTokens())
	assert.Equal(t, want.Fragments(), got.Fragments())

	want.Tokens(func(token string, nq int) {
		assert.Equal(t, nq, got.Nq(token), token)
		wantPL, gotPL := want.Posting(token), got.Posting(token)
		require.NotNil(t, gotPL, token)
		require.Equal(t, wantPL.Len(), gotPL.Len(), token)
		for i := 0; i < wantPL.Len(); i++ {
			assert.Equal(t, wantPL.RowID(i), gotPL.RowID(i))
			assert.Equal(t, wantPL.Freq(i), gotPL.Freq(i))
		}
		assert.Equal(t, wantPL.MaxFreq(), gotPL.MaxFreq())
	})
	for _, rowID := range []model.RowID{1, 2, 3} {
		assert.Equal(t, want.DocLength(rowID), got.DocLength(rowID))
	}
	assert.Equal(t, want.Scorer().Avgdl(), got.Scorer().Avgdl())
}

func TestPartitionStoreRoundTrip(t *testing.T) {
	for _, compression := range []string{CompressionZstd, CompressionLZ4, CompressionNone} {
		t.Run(compression, func(t *testing.T) {
			ctx := context.Background()
			store := NewPartitionStore(blobstore.NewMemoryStore(), WithCompression(compression))
			p := storedPartition(t)

			require.NoError(t, store.Flush(ctx, p))

			got, err := store.Load(ctx, p.ID())
			require.NoError(t, err)
			assertPartitionsEqual(t, p, got)
		})
	}
}

func TestPartitionStoreCache(t *testing.T) {
	ctx := context.Background()
	blobs := blobstore.NewMemoryStore()
	store := NewPartitionStore(blobs, WithPartitionCache(1<<20))
	p := storedPartition(t)
	require.NoError(t, store.Flush(ctx, p))

	// A cached load survives blob deletion.
	require.NoError(t, blobs.Delete(ctx, partBlobName(p.ID())))
	got, err := store.Load(ctx, p.ID())
	require.NoError(t, err)
	assert.Same(t, p, got)
}

func TestPartitionStoreLoadMissing(t *testing.T) {
	store := NewPartitionStore(blobstore.NewMemoryStore())

	_, err := store.Load(context.Background(), 42)
	require.Error(t, err)

	var serr *StorageError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, model.PartitionID(42), serr.PartitionID)
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestPartitionStoreMalformedBlob(t *testing.T) {
	ctx := context.Background()
	blobs := blobstore.NewMemoryStore()
	store := NewPartitionStore(blobs)

	tests := []struct {
		name string
		data []byte
	}{
		{"garbage", []byte("garbage bytes")},
		{"short", []byte{'L', 'F'}},
		{"bad magic", []byte("XXXX\x01\x04json\x04zstd")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, blobs.Put(ctx, partBlobName(1), tt.data))

			_, err := store.Load(ctx, 1)
			require.Error(t, err)
			var derr *DeserializationError
			assert.ErrorAs(t, err, &derr)
		})
	}
}

func TestPartitionStoreIDMismatch(t *testing.T) {
	ctx := context.Background()
	blobs := blobstore.NewMemoryStore()
	store := NewPartitionStore(blobs)
	p := storedPartition(t)
	require.NoError(t, store.Flush(ctx, p))

	// Copy partition 7's blob under partition 9's name.
	b, err := blobs.Open(ctx, partBlobName(p.ID()))
	require.NoError(t, err)
	data, err := blobstore.ReadAll(b)
	require.NoError(t, err)
	require.NoError(t, b.Close())
	require.NoError(t, blobs.Put(ctx, partBlobName(9), data))

	_, err = store.Load(ctx, 9)
	var derr *DeserializationError
	require.ErrorAs(t, err, &derr)
}

func TestIndexMetaRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewPartitionStore(blobstore.NewMemoryStore())

	meta := indexMeta{
		Version:         blobVersion,
		PartitionIDs:    []uint64{1, 2, 5},
		NextPartitionID: 6,
	}
	require.NoError(t, store.SaveMeta(ctx, meta))

	got, err := store.LoadMeta(ctx)
	require.NoError(t, err)
	assert.Equal(t, meta.PartitionIDs, got.PartitionIDs)
	assert.Equal(t, meta.NextPartitionID, got.NextPartitionID)
}

func TestLoadMetaMissing(t *testing.T) {
	store := NewPartitionStore(blobstore.NewMemoryStore())

	_, err := store.LoadMeta(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, blobstore.ErrNotFound))
}
