package inverted

import (
	"sort"

	"github.com/chenkovsky/lance/model"
)

// PostingList records, for one token, the documents containing it: row ids
// in ascending order with the token's term frequency in each. It also
// tracks the maximum observed term frequency, which bounds the token's
// score contribution during WAND pruning.
type PostingList struct {
	rowIDs  []model.RowID
	freqs   []uint32
	maxFreq uint32
}

// Len returns the number of documents in the list (the token's nq).
func (pl *PostingList) Len() int { return len(pl.rowIDs) }

// RowID returns the row id at position i.
func (pl *PostingList) RowID(i int) model.RowID { return pl.rowIDs[i] }

// Freq returns the term frequency at position i.
func (pl *PostingList) Freq(i int) uint32 { return pl.freqs[i] }

// MaxFreq returns the maximum term frequency across the list.
func (pl *PostingList) MaxFreq() uint32 { return pl.maxFreq }

// append adds one posting. Callers must seal the list before reading.
func (pl *PostingList) append(rowID model.RowID, freq uint32) {
	pl.rowIDs = append(pl.rowIDs, rowID)
	pl.freqs = append(pl.freqs, freq)
	if freq > pl.maxFreq {
		pl.maxFreq = freq
	}
}

// seal sorts the postings by row id. Ingestion order is arbitrary (training
// batches are unordered), but cursors require ascending row ids.
func (pl *PostingList) seal() {
	sort.Sort((*postingsByRowID)(pl))
}

// concat appends all postings from other. Row ids stay unique because
// merged partitions cover disjoint fragments; the result must be sealed
// again before use.
func (pl *PostingList) concat(other *PostingList) {
	pl.rowIDs = append(pl.rowIDs, other.rowIDs...)
	pl.freqs = append(pl.freqs, other.freqs...)
	if other.maxFreq > pl.maxFreq {
		pl.maxFreq = other.maxFreq
	}
}

type postingsByRowID PostingList

func (p *postingsByRowID) Len() int           { return len(p.rowIDs) }
func (p *postingsByRowID) Less(i, j int) bool { return p.rowIDs[i] < p.rowIDs[j] }
func (p *postingsByRowID) Swap(i, j int) {
	p.rowIDs[i], p.rowIDs[j] = p.rowIDs[j], p.rowIDs[i]
	p.freqs[i], p.freqs[j] = p.freqs[j], p.freqs[i]
}

// postingCursor iterates a posting list in ascending row-id order with
// skip support.
type postingCursor struct {
	pl  *PostingList
	pos int
}

func newPostingCursor(pl *PostingList) *postingCursor {
	return &postingCursor{pl: pl}
}

func (c *postingCursor) valid() bool { return c.pos < c.pl.Len() }

func (c *postingCursor) rowID() model.RowID { return c.pl.RowID(c.pos) }

func (c *postingCursor) freq() uint32 { return c.pl.Freq(c.pos) }

func (c *postingCursor) next() { c.pos++ }

// advance moves to the first posting with row id >= target.
func (c *postingCursor) advance(target model.RowID) {
	if !c.valid() || c.rowID() >= target {
		return
	}
	rest := c.pl.rowIDs[c.pos:]
	c.pos += sort.Search(len(rest), func(i int) bool { return rest[i] >= target })
}
