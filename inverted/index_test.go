package inverted

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chenkovsky/lance/blobstore"
	"github.com/chenkovsky/lance/model"
	"github.com/chenkovsky/lance/tokenizer"
)

// plainTokenizer splits on word boundaries without stemming or stopword
// removal, keeping test expectations literal.
func plainTokenizer() *tokenizer.Tokenizer {
	return tokenizer.New(tokenizer.Config{Lowercase: true})
}

func testRows() []model.Row {
	return []model.Row{
		{ID: 1, Fragment: 0, Text: "the quick brown fox"},
		{ID: 2, Fragment: 0, Text: "the lazy dog sleeps"},
		{ID: 3, Fragment: 1, Text: "a quick red fox jumps"},
		{ID: 4, Fragment: 1, Text: "foxes hunt at night"},
		{ID: 5, Fragment: 2, Text: "the dog chases the fox"},
	}
}

func trainedIndex(t *testing.T, store *PartitionStore, partitionSize int) *Index {
	t.Helper()
	idx := NewIndex(plainTokenizer(), store)
	b := NewBuilder(idx, WithBatchSize(2), WithPartitionSize(partitionSize))
	require.NoError(t, b.Train(context.Background(), NewSliceSource(testRows())))
	return idx
}

func TestBuilderTrainSealsPartitions(t *testing.T) {
	idx := trainedIndex(t, nil, 2)

	metas := idx.Partitions()
	require.NotEmpty(t, metas)

	totalDocs := 0
	seen := make(map[model.FragmentID]bool)
	for _, m := range metas {
		totalDocs += m.NumDocs
		for _, f := range m.Fragments {
			assert.False(t, seen[f], "fragment %d appears in two partitions", f)
			seen[f] = true
		}
	}
	assert.Equal(t, len(testRows()), totalDocs)
	assert.Len(t, seen, 3)
}

func TestBuilderKeepsFragmentInOnePartition(t *testing.T) {
	// One fragment larger than the partition size must not split: the
	// builder keeps appending past the threshold until the stream moves
	// on to another fragment.
	rows := make([]model.Row, 0, 6)
	for i := 1; i <= 6; i++ {
		rows = append(rows, model.Row{
			ID:       model.RowID(i),
			Fragment: 0,
			Text:     fmt.Sprintf("fox sighting number %d", i),
		})
	}

	idx := NewIndex(plainTokenizer(), nil)
	b := NewBuilder(idx, WithBatchSize(2), WithPartitionSize(2))
	require.NoError(t, b.Train(context.Background(), NewSliceSource(rows)))

	metas := idx.Partitions()
	require.Len(t, metas, 1)
	assert.Equal(t, len(rows), metas[0].NumDocs)
	assert.Equal(t, []model.FragmentID{0}, metas[0].Fragments)

	hits, err := idx.Search(context.Background(), "fox", 10, NewSearchParams())
	require.NoError(t, err)
	assert.Len(t, hits, len(rows))
}

func TestBuilderSealsAtFragmentBoundaryMidBatch(t *testing.T) {
	rows := []model.Row{
		{ID: 1, Fragment: 0, Text: "fox one"},
		{ID: 2, Fragment: 0, Text: "fox two"},
		{ID: 3, Fragment: 0, Text: "fox three"},
		{ID: 4, Fragment: 1, Text: "fox four"},
		{ID: 5, Fragment: 1, Text: "fox five"},
	}

	// Batch size 4 puts the fragment change inside the first batch.
	idx := NewIndex(plainTokenizer(), nil)
	b := NewBuilder(idx, WithBatchSize(4), WithPartitionSize(2))
	require.NoError(t, b.Train(context.Background(), NewSliceSource(rows)))

	metas := idx.Partitions()
	require.Len(t, metas, 2)

	seen := make(map[model.FragmentID]int)
	totalDocs := 0
	for _, m := range metas {
		totalDocs += m.NumDocs
		for _, f := range m.Fragments {
			seen[f]++
		}
	}
	assert.Equal(t, len(rows), totalDocs)
	assert.Equal(t, map[model.FragmentID]int{0: 1, 1: 1}, seen)

	hits, err := idx.Search(context.Background(), "fox", 10, NewSearchParams())
	require.NoError(t, err)
	assert.Len(t, hits, len(rows))
}

func TestBuilderRejectsDuplicateRowID(t *testing.T) {
	idx := NewIndex(plainTokenizer(), nil)
	b := NewBuilder(idx)

	rows := []model.Row{
		{ID: 1, Fragment: 0, Text: "first"},
		{ID: 1, Fragment: 0, Text: "second"},
	}
	err := b.Train(context.Background(), NewSliceSource(rows))
	require.Error(t, err)

	var ierr *InputError
	assert.ErrorAs(t, err, &ierr)
	// Nothing was published.
	assert.Empty(t, idx.Partitions())
}

func TestPublishRejectsOverlappingFragments(t *testing.T) {
	idx := trainedIndex(t, nil, 100)
	require.Len(t, idx.Partitions(), 1)

	b := NewBuilder(idx)
	err := b.Train(context.Background(), NewSliceSource([]model.Row{
		{ID: 99, Fragment: 0, Text: "fragment zero again"},
	}))
	require.Error(t, err)

	var ierr *InputError
	assert.ErrorAs(t, err, &ierr)
	assert.Len(t, idx.Partitions(), 1)
}

func TestIndexSearch(t *testing.T) {
	idx := trainedIndex(t, nil, 2)

	hits, err := idx.Search(context.Background(), "quick fox", 10, NewSearchParams())
	require.NoError(t, err)
	require.NotEmpty(t, hits)

	// Docs matching both terms outrank single-term matches.
	assert.Contains(t, []model.RowID{1, 3}, hits[0].RowID)
	for i := 1; i < len(hits); i++ {
		if hits[i].Score == hits[i-1].Score {
			assert.Greater(t, hits[i].RowID, hits[i-1].RowID)
		} else {
			assert.Less(t, hits[i].Score, hits[i-1].Score)
		}
	}
}

func TestIndexSearchFuzzy(t *testing.T) {
	idx := trainedIndex(t, nil, 100)

	// "fxo" is distance 2 from "fox"; auto fuzziness for a 3-rune token
	// allows 1 edit, so force the distance explicitly.
	params := NewSearchParams()
	two := 2
	params.Fuzziness = &two

	hits, err := idx.Search(context.Background(), "fxo", 10, params)
	require.NoError(t, err)
	assert.NotEmpty(t, hits)
}

func TestIndexSearchNoMatch(t *testing.T) {
	idx := trainedIndex(t, nil, 100)

	zero := 0
	params := NewSearchParams()
	params.Fuzziness = &zero

	hits, err := idx.Search(context.Background(), "zebra", 10, params)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestIndexSearchCancelled(t *testing.T) {
	idx := trainedIndex(t, nil, 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := idx.Search(ctx, "quick fox", 10, NewSearchParams())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIndexSearchInvalidParams(t *testing.T) {
	idx := trainedIndex(t, nil, 100)

	params := NewSearchParams()
	params.PrefixLength = -1

	_, err := idx.Search(context.Background(), "fox", 10, params)
	var ierr *InputError
	require.ErrorAs(t, err, &ierr)
}

func TestFuzzyExpandAggregatesAcrossPartitions(t *testing.T) {
	idx := trainedIndex(t, nil, 2)
	require.Greater(t, len(idx.Partitions()), 1)

	zero := 0
	params := NewSearchParams()
	params.Fuzziness = &zero

	freqs, err := idx.FuzzyExpand(context.Background(), []string{"fox"}, params)
	require.NoError(t, err)
	// "fox" appears in docs 1, 3 and 5 across different partitions.
	assert.Equal(t, map[string]int{"fox": 3}, freqs)
}

func TestScorerMatchesWholeCorpus(t *testing.T) {
	partitioned := trainedIndex(t, nil, 2)
	single := trainedIndex(t, nil, 100)

	ctx := context.Background()
	ms, err := partitioned.Scorer(ctx)
	require.NoError(t, err)
	ss, err := single.Scorer(ctx)
	require.NoError(t, err)

	assert.Equal(t, ss.NumDocs(), ms.NumDocs())
	assert.Equal(t, ss.NumTokens(), ms.NumTokens())
	assert.Equal(t, ss.Avgdl(), ms.Avgdl())
	for _, token := range []string{"fox", "quick", "dog", "night"} {
		assert.Equal(t, ss.Nq(token), ms.Nq(token), token)
	}
}

func TestMergePreservesTopK(t *testing.T) {
	ctx := context.Background()
	idx := trainedIndex(t, nil, 2)
	metas := idx.Partitions()
	require.Greater(t, len(metas), 1)

	before, err := idx.Search(ctx, "quick fox", 3, NewSearchParams())
	require.NoError(t, err)

	ids := make([]model.PartitionID, len(metas))
	for i, m := range metas {
		ids[i] = m.ID
	}
	require.NoError(t, NewMerger(idx).Merge(ctx, ids...))
	require.Len(t, idx.Partitions(), 1)

	after, err := idx.Search(ctx, "quick fox", 3, NewSearchParams())
	require.NoError(t, err)

	require.Len(t, after, len(before))
	for i := range before {
		assert.Equal(t, before[i].RowID, after[i].RowID, "rank %d", i)
		assert.InDelta(t, before[i].Score, after[i].Score, 1e-5)
	}
}

func TestMergeRequiresTwoPartitions(t *testing.T) {
	idx := trainedIndex(t, nil, 100)

	err := NewMerger(idx).Merge(context.Background(), idx.Partitions()[0].ID)
	var ierr *InputError
	require.ErrorAs(t, err, &ierr)
}

func TestMergeUnknownPartition(t *testing.T) {
	idx := trainedIndex(t, nil, 2)

	err := NewMerger(idx).Merge(context.Background(), 998, 999)
	var ierr *InputError
	require.ErrorAs(t, err, &ierr)
}

func TestIndexPersistenceRoundTrip(t *testing.T) {
	ctx := context.Background()
	blobs := blobstore.NewMemoryStore()
	store := NewPartitionStore(blobs)

	idx := trainedIndex(t, store, 2)
	want, err := idx.Search(ctx, "quick fox", 5, NewSearchParams())
	require.NoError(t, err)

	reopened, err := OpenIndex(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, idx.Partitions(), reopened.Partitions())

	got, err := reopened.Search(ctx, "quick fox", 5, NewSearchParams())
	require.NoError(t, err)
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].RowID, got[i].RowID)
		assert.InDelta(t, want[i].Score, got[i].Score, 1e-5)
	}
}

func TestReplaceDeletesOldBlobs(t *testing.T) {
	ctx := context.Background()
	blobs := blobstore.NewMemoryStore()
	store := NewPartitionStore(blobs)

	idx := trainedIndex(t, store, 2)
	metas := idx.Partitions()
	require.Greater(t, len(metas), 1)

	ids := make([]model.PartitionID, len(metas))
	for i, m := range metas {
		ids[i] = m.ID
	}
	require.NoError(t, NewMerger(idx).Merge(ctx, ids...))

	for _, id := range ids {
		_, err := blobs.Open(ctx, partBlobName(id))
		assert.ErrorIs(t, err, blobstore.ErrNotFound, "partition %d blob should be gone", id)
	}
}

func TestTopKPartialResults(t *testing.T) {
	ctx := context.Background()
	blobs := blobstore.NewMemoryStore()
	store := NewPartitionStore(blobs)
	idx := trainedIndex(t, store, 2)
	metas := idx.Partitions()
	require.Greater(t, len(metas), 1)

	// Break one partition's blob behind the index's back.
	require.NoError(t, blobs.Delete(ctx, partBlobName(metas[0].ID)))

	scorer, err := idx.Scorer(ctx, metas[1].ID)
	require.NoError(t, err)
	weights := map[string]float32{"fox": scorer.QueryWeight("fox")}

	_, err = idx.TopK(ctx, weights, 5)
	var serr *StorageError
	require.ErrorAs(t, err, &serr)

	hits, err := idx.TopK(ctx, weights, 5, WithPartialResults(true))
	require.NoError(t, err)
	assert.NotEmpty(t, hits)
}

func TestTopKUnknownPartition(t *testing.T) {
	idx := trainedIndex(t, nil, 100)

	_, err := idx.TopK(context.Background(), map[string]float32{"fox": 1}, 5, WithPartitions(999))
	var ierr *InputError
	require.ErrorAs(t, err, &ierr)
}

func TestTopKInvalidK(t *testing.T) {
	idx := trainedIndex(t, nil, 100)

	_, err := idx.TopK(context.Background(), map[string]float32{"fox": 1}, 0)
	var ierr *InputError
	require.ErrorAs(t, err, &ierr)
}

func TestVocabulary(t *testing.T) {
	idx := trainedIndex(t, nil, 2)

	vocab, err := idx.Vocabulary(context.Background())
	require.NoError(t, err)
	for _, token := range []string{"quick", "fox", "dog", "night", "jumps"} {
		assert.Contains(t, vocab, token)
	}
	assert.NotContains(t, vocab, "zebra")
}

func TestLargeCorpusTopK(t *testing.T) {
	rows := make([]model.Row, 0, 500)
	for i := 0; i < 500; i++ {
		text := "common filler words here"
		if i%13 == 0 {
			text = "common rare target phrase"
		}
		rows = append(rows, model.Row{
			ID:       model.RowID(i),
			Fragment: model.FragmentID(i / 100),
			Text:     fmt.Sprintf("%s number%d", text, i),
		})
	}

	idx := NewIndex(plainTokenizer(), nil)
	b := NewBuilder(idx, WithBatchSize(100), WithPartitionSize(100))
	require.NoError(t, b.Train(context.Background(), NewSliceSource(rows)))
	require.Greater(t, len(idx.Partitions()), 1)

	zero := 0
	params := NewSearchParams()
	params.Fuzziness = &zero

	hits, err := idx.Search(context.Background(), "rare target", 10, params)
	require.NoError(t, err)
	require.Len(t, hits, 10)
	for _, hit := range hits {
		assert.Zero(t, hit.RowID%13, "row %d does not contain the rare terms", hit.RowID)
	}
}
