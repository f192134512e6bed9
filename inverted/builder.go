package inverted

import (
	"context"
	"fmt"
	"runtime"

	"github.com/RoaringBitmap/roaring/v2"
	"golang.org/x/sync/errgroup"

	"github.com/chenkovsky/lance/model"
)

// Builder ingests training rows into an Index incrementally. It tokenizes
// batches, accumulates postings in an in-progress partition and seals the
// partition into the live index once it reaches the configured size.
//
// A Builder is a single logical writer: one Train call at a time per
// Index. A failed or cancelled Train leaves the index at its last sealed
// state; the in-progress partition is discarded, never published.
type Builder struct {
	idx *Index

	batchSize     int
	partitionSize int
	parallelism   int

	cur *partitionBuilder
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithBatchSize sets how many rows are pulled from the source per chunk.
func WithBatchSize(n int) BuilderOption {
	return func(b *Builder) {
		if n > 0 {
			b.batchSize = n
		}
	}
}

// WithPartitionSize sets the document count at which the in-progress
// partition is sealed.
func WithPartitionSize(n int) BuilderOption {
	return func(b *Builder) {
		if n > 0 {
			b.partitionSize = n
		}
	}
}

// WithParallelism caps the tokenization workers per batch. Defaults to
// GOMAXPROCS.
func WithParallelism(n int) BuilderOption {
	return func(b *Builder) {
		if n > 0 {
			b.parallelism = n
		}
	}
}

// NewBuilder creates a builder writing into idx.
func NewBuilder(idx *Index, opts ...BuilderOption) *Builder {
	b := &Builder{
		idx:           idx,
		batchSize:     DefaultBatchSize,
		partitionSize: DefaultPartitionSize,
		parallelism:   runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Train consumes the source to exhaustion, sealing full partitions as it
// goes, and finally seals whatever remains. Rows must arrive grouped by
// fragment. A fragment never spans a seal boundary: once the in-progress
// partition crosses the size threshold, the builder keeps appending until
// the stream moves on to the next fragment and seals there, so a single
// fragment larger than the partition size yields one oversized partition.
func (b *Builder) Train(ctx context.Context, source TrainingSource) error {
	if b.idx.store != nil {
		if err := b.idx.store.rc.AcquireBackground(ctx); err != nil {
			return err
		}
		defer b.idx.store.rc.ReleaseBackground()
	}

	for rows, err := range source.Scan(ctx, b.batchSize) {
		if err != nil {
			b.cur = nil
			return err
		}
		if err := b.addBatch(ctx, rows); err != nil {
			b.cur = nil
			return err
		}
	}
	return b.Flush(ctx)
}

// Flush seals the in-progress partition, if any. Train calls it on
// success; callers streaming rows through addBatch directly call it when
// done.
func (b *Builder) Flush(ctx context.Context) error {
	if b.cur == nil || b.cur.numDocs() == 0 {
		b.cur = nil
		return nil
	}
	return b.seal(ctx)
}

// addBatch tokenizes one chunk of rows and folds it into the in-progress
// partition, sealing at fragment boundaries once the partition is full.
// Tokenization fans out across workers; seal performs the final per-list
// sort, so batches may land in any order.
func (b *Builder) addBatch(ctx context.Context, rows []model.Row) error {
	if len(rows) == 0 {
		return nil
	}

	tokenized := make([][]string, len(rows))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.parallelism)
	for i, row := range rows {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			tokenized[i] = b.idx.tok.Tokenize(row.Text)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, row := range rows {
		if b.cur != nil && b.cur.numDocs() >= b.partitionSize &&
			!b.cur.fragments.Contains(uint32(row.Fragment)) {
			if err := b.seal(ctx); err != nil {
				return err
			}
		}
		if b.cur == nil {
			b.cur = newPartitionBuilder()
		}
		if err := b.cur.addDoc(row, tokenized[i]); err != nil {
			return err
		}
	}
	return nil
}

func (b *Builder) seal(ctx context.Context) error {
	p := b.cur.seal(b.idx.nextPartitionID())
	b.cur = nil
	return b.idx.publish(ctx, p)
}

// partitionBuilder accumulates one partition's postings before sealing.
type partitionBuilder struct {
	postings   map[string]*PostingList
	docLengths map[model.RowID]uint32
	numTokens  int
	fragments  *roaring.Bitmap
}

func newPartitionBuilder() *partitionBuilder {
	return &partitionBuilder{
		postings:   make(map[string]*PostingList),
		docLengths: make(map[model.RowID]uint32),
		fragments:  roaring.New(),
	}
}

func (pb *partitionBuilder) numDocs() int { return len(pb.docLengths) }

func (pb *partitionBuilder) addDoc(row model.Row, tokens []string) error {
	if _, dup := pb.docLengths[row.ID]; dup {
		return &InputError{Reason: fmt.Sprintf("duplicate row id %d", row.ID)}
	}

	freqs := make(map[string]uint32, len(tokens))
	for _, token := range tokens {
		freqs[token]++
	}
	for token, freq := range freqs {
		pl := pb.postings[token]
		if pl == nil {
			pl = &PostingList{}
			pb.postings[token] = pl
		}
		pl.append(row.ID, freq)
	}

	pb.docLengths[row.ID] = uint32(len(tokens))
	pb.numTokens += len(tokens)
	pb.fragments.Add(uint32(row.Fragment))
	return nil
}

func (pb *partitionBuilder) seal(id model.PartitionID) *Partition {
	for _, pl := range pb.postings {
		pl.seal()
	}
	return newPartition(id, pb.postings, pb.docLengths, pb.numTokens, pb.fragments)
}
