// Package lance provides an embedded full-text search engine for Go.
//
// Lance maintains a partitioned inverted index over token-valued rows and
// supports:
//
//   - Ranked retrieval with BM25 scoring, merged consistently across
//     partitions
//   - WAND-style top-k retrieval that skips documents which cannot enter
//     the result set
//   - Fuzzy term matching with length-tiered automatic edit distance
//   - Incremental, partitioned construction so large datasets index
//     without full rebuilds
//   - Pluggable blob storage (local filesystem, in-memory, S3-compatible)
//     with zstd or lz4 partition compression
//
// # Quick Start
//
// Build an index from rows and search it:
//
//	ctx := context.Background()
//	store, err := blobstore.NewLocalStore("./index")
//	if err != nil {
//	    panic(err)
//	}
//	ftl, err := lance.Train(ctx, lance.NewSliceSource(rows),
//	    lance.WithBlobStore(store),
//	    lance.WithCompression(lance.CompressionZstd),
//	)
//	if err != nil {
//	    panic(err)
//	}
//
//	hits, err := ftl.Search(ctx, "quick brown fox", 10, lance.NewSearchParams())
//
// Reopen a persisted index later:
//
//	ftl, err := lance.Open(ctx, lance.WithBlobStore(store))
//
// Incremental updates append new partitions; background compaction merges
// small partitions without blocking readers:
//
//	err = ftl.Append(ctx, lance.NewSliceSource(moreRows))
//	err = ftl.Compact(ctx, partitionIDs...)
package lance

import (
	"context"

	"github.com/chenkovsky/lance/inverted"
	"github.com/chenkovsky/lance/model"
	"github.com/chenkovsky/lance/tokenizer"
)

// Re-exported types so basic usage needs only this package.
type (
	// Row is one indexable document.
	Row = model.Row

	// ScoredDoc is one ranked search hit.
	ScoredDoc = model.ScoredDoc

	// PartitionID identifies one sealed partition.
	PartitionID = model.PartitionID

	// SearchParams controls fuzzy query expansion.
	SearchParams = inverted.SearchParams

	// TrainingSource streams rows into the builder.
	TrainingSource = inverted.TrainingSource
)

// Re-exported constructors and search options.
var (
	NewSearchParams    = inverted.NewSearchParams
	NewSliceSource     = inverted.NewSliceSource
	WithPartitions     = inverted.WithPartitions
	WithPartialResults = inverted.WithPartialResults
)

// Compression names for WithCompression.
const (
	CompressionZstd = inverted.CompressionZstd
	CompressionLZ4  = inverted.CompressionLZ4
	CompressionNone = inverted.CompressionNone
)

// FTL is a full-text index handle wrapping the partitioned inverted index
// with its storage and build machinery.
type FTL struct {
	idx     *inverted.Index
	builder *inverted.Builder
	merger  *inverted.Merger
}

// Train builds a new index from the source and returns a handle to it.
// Without a blob store the index lives in memory only.
func Train(ctx context.Context, source TrainingSource, opts ...Option) (*FTL, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	idx := inverted.NewIndex(tokenizer.New(o.tokenizer), o.partitionStore(), inverted.WithLogger(o.logger))
	ftl := newFTL(idx, o)
	if err := ftl.builder.Train(ctx, source); err != nil {
		return nil, err
	}
	return ftl, nil
}

// Open loads a previously trained index from its blob store. The
// tokenizer configuration is restored from the stored metadata; passing
// WithTokenizer with a conflicting configuration is an error.
func Open(ctx context.Context, opts ...Option) (*FTL, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	store := o.partitionStore()
	if store == nil {
		return nil, &inverted.InputError{Reason: "open requires a blob store"}
	}

	idx, err := inverted.OpenIndex(ctx, store, inverted.WithLogger(o.logger))
	if err != nil {
		return nil, err
	}
	if o.tokenizerSet {
		if want := tokenizer.New(o.tokenizer).Config(); idx.Tokenizer().Config() != want {
			return nil, &inverted.InputError{Reason: "tokenizer configuration conflicts with the stored index"}
		}
	}
	return newFTL(idx, o), nil
}

func newFTL(idx *inverted.Index, o *options) *FTL {
	return &FTL{
		idx: idx,
		builder: inverted.NewBuilder(idx,
			inverted.WithBatchSize(o.batchSize),
			inverted.WithPartitionSize(o.partitionSize),
		),
		merger: inverted.NewMerger(idx),
	}
}

// Index exposes the underlying inverted index for advanced use.
func (f *FTL) Index() *inverted.Index { return f.idx }

// Append ingests additional rows as new partitions. Rows must cover
// fragments not already indexed.
func (f *FTL) Append(ctx context.Context, source TrainingSource) error {
	return f.builder.Train(ctx, source)
}

// Search runs ranked retrieval for the query text and returns up to k
// hits, descending by score.
func (f *FTL) Search(ctx context.Context, query string, k int, params SearchParams, opts ...inverted.SearchOption) ([]ScoredDoc, error) {
	return f.idx.Search(ctx, query, k, params, opts...)
}

// Compact merges the named partitions into one.
func (f *FTL) Compact(ctx context.Context, ids ...PartitionID) error {
	return f.merger.Merge(ctx, ids...)
}

// Partitions lists metadata for all live partitions.
func (f *FTL) Partitions() []inverted.PartitionMeta {
	return f.idx.Partitions()
}
