package inverted

import (
	"context"
	"iter"

	"github.com/chenkovsky/lance/model"
)

// TrainingSource yields an unordered stream of (row id, text) batches for
// index construction. Batches need not be ordered by row id, but rows must
// be grouped by fragment: the builder seals partitions at fragment
// boundaries, and the index rejects a partition whose fragment set overlaps
// an already-published partition.
type TrainingSource interface {
	// Scan streams the source as batches of at most batchSize rows.
	// Implementations should stop early when ctx is canceled and yield
	// the cancellation error.
	Scan(ctx context.Context, batchSize int) iter.Seq2[[]model.Row, error]
}

// SliceSource is an in-memory TrainingSource, chiefly for tests and small
// rebuilds.
type SliceSource struct {
	rows []model.Row
}

var _ TrainingSource = (*SliceSource)(nil)

// NewSliceSource creates a TrainingSource over the given rows.
func NewSliceSource(rows []model.Row) *SliceSource {
	return &SliceSource{rows: rows}
}

// Scan yields the rows in batchSize chunks.
func (s *SliceSource) Scan(ctx context.Context, batchSize int) iter.Seq2[[]model.Row, error] {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return func(yield func([]model.Row, error) bool) {
		for start := 0; start < len(s.rows); start += batchSize {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			end := min(start+batchSize, len(s.rows))
			if !yield(s.rows[start:end], nil) {
				return
			}
		}
	}
}
