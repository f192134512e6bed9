package inverted

import (
	"context"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/chenkovsky/lance/model"
)

// Merger compacts several sealed partitions into one. When to merge is
// the caller's policy; the merger only performs the operation, which is
// associative: merging {A,B} then the result with C yields the same
// posting content as merging {A,B,C} directly.
type Merger struct {
	idx *Index
}

// NewMerger creates a merger operating on idx.
func NewMerger(idx *Index) *Merger {
	return &Merger{idx: idx}
}

// Merge combines the named partitions into a single new partition and
// atomically swaps it into the live index. Readers observe either the old
// partitions or the merged one, never both. A failed merge leaves the
// index unchanged.
func (m *Merger) Merge(ctx context.Context, ids ...model.PartitionID) error {
	if len(ids) < 2 {
		return &InputError{Reason: "merge needs at least two partitions"}
	}

	if m.idx.store != nil {
		if err := m.idx.store.rc.AcquireBackground(ctx); err != nil {
			return err
		}
		defer m.idx.store.rc.ReleaseBackground()
	}

	parts := make([]*Partition, 0, len(ids))
	err := m.idx.forEachPartition(ctx, ids, func(p *Partition) error {
		parts = append(parts, p)
		return nil
	})
	if err != nil {
		return err
	}

	merged := mergePartitions(m.idx.nextPartitionID(), parts)
	return m.idx.Replace(ctx, ids, merged)
}

// mergePartitions concatenates posting lists token by token and sums the
// document and token counts. Row ids stay unique because source
// partitions cover disjoint fragments, so concatenation plus one re-sort
// per token is enough; documents are never re-scanned.
func mergePartitions(id model.PartitionID, parts []*Partition) *Partition {
	postings := make(map[string]*PostingList)
	docLengths := make(map[model.RowID]uint32)
	fragments := roaring.New()
	numTokens := 0

	for _, p := range parts {
		for token, pl := range p.postings {
			dst := postings[token]
			if dst == nil {
				dst = &PostingList{}
				postings[token] = dst
			}
			dst.concat(pl)
		}
		for rowID, dl := range p.docLengths {
			docLengths[rowID] = dl
		}
		fragments.Or(p.fragments)
		numTokens += p.numTokens
	}

	for _, pl := range postings {
		pl.seal()
	}
	return newPartition(id, postings, docLengths, numTokens, fragments)
}
