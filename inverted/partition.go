package inverted

import (
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/chenkovsky/lance/model"
)

// Partition is a self-contained, immutable shard of the inverted index
// covering a fixed set of source fragments. Once sealed, a partition is
// safely shared across arbitrarily many concurrent readers without locking.
type Partition struct {
	id         model.PartitionID
	postings   map[string]*PostingList
	docLengths map[model.RowID]uint32
	numDocs    int
	numTokens  int
	fragments  *roaring.Bitmap
	scorer     *BM25Scorer
}

// PartitionMeta is the read-only projection of a partition exposed to the
// host storage layer.
type PartitionMeta struct {
	ID        model.PartitionID
	NumDocs   int
	NumTokens int
	Fragments []model.FragmentID
}

// String returns a string representation of the metadata.
func (m PartitionMeta) String() string {
	return fmt.Sprintf("Partition(%d: docs=%d tokens=%d frags=%d)",
		m.ID, m.NumDocs, m.NumTokens, len(m.Fragments))
}

// ID returns the partition id.
func (p *Partition) ID() model.PartitionID { return p.id }

// NumDocs returns the number of documents in the partition.
func (p *Partition) NumDocs() int { return p.numDocs }

// NumTokens returns the sum of document lengths in the partition.
func (p *Partition) NumTokens() int { return p.numTokens }

// Fragments returns the source fragment ids, ascending.
func (p *Partition) Fragments() []model.FragmentID {
	raw := p.fragments.ToArray()
	frags := make([]model.FragmentID, len(raw))
	for i, f := range raw {
		frags[i] = model.FragmentID(f)
	}
	return frags
}

// Meta returns the read-only projection of the partition.
func (p *Partition) Meta() PartitionMeta {
	return PartitionMeta{
		ID:        p.id,
		NumDocs:   p.numDocs,
		NumTokens: p.numTokens,
		Fragments: p.Fragments(),
	}
}

// Posting returns the posting list for token, or nil if the token is not
// in this partition's vocabulary.
func (p *Partition) Posting(token string) *PostingList {
	return p.postings[token]
}

// Nq returns the number of documents in this partition containing token.
func (p *Partition) Nq(token string) int {
	if pl := p.postings[token]; pl != nil {
		return pl.Len()
	}
	return 0
}

// DocLength returns the token count of the given document.
func (p *Partition) DocLength(rowID model.RowID) uint32 {
	return p.docLengths[rowID]
}

// Tokens calls fn for every token in the partition's vocabulary with its
// document frequency. Iteration order is unspecified.
func (p *Partition) Tokens(fn func(token string, nq int)) {
	for token, pl := range p.postings {
		fn(token, pl.Len())
	}
}

// Scorer returns the partition-local BM25 statistics snapshot. Partition
// scorers compose into a corpus-wide model via MergeScorers.
func (p *Partition) Scorer() *BM25Scorer { return p.scorer }

// memSize estimates the resident size of the decoded partition for cache
// accounting.
func (p *Partition) memSize() int64 {
	var size int64
	for token, pl := range p.postings {
		size += int64(len(token)) + int64(pl.Len())*12
	}
	size += int64(len(p.docLengths)) * 12
	size += int64(p.fragments.GetSizeInBytes())
	return size
}

// newPartition assembles a sealed partition from its components. Posting
// lists must already be sorted by row id.
func newPartition(
	id model.PartitionID,
	postings map[string]*PostingList,
	docLengths map[model.RowID]uint32,
	numTokens int,
	fragments *roaring.Bitmap,
) *Partition {
	nqs := make(map[string]int, len(postings))
	for token, pl := range postings {
		nqs[token] = pl.Len()
	}
	numDocs := len(docLengths)
	return &Partition{
		id:         id,
		postings:   postings,
		docLengths: docLengths,
		numDocs:    numDocs,
		numTokens:  numTokens,
		fragments:  fragments,
		scorer:     NewBM25Scorer(nqs, numDocs, numTokens),
	}
}
