package inverted

import (
	"context"
	"sort"

	"github.com/chenkovsky/lance/model"
)

// ctxCheckInterval bounds how many pivot iterations run between context
// checks during partition search.
const ctxCheckInterval = 1024

// termCursor pairs a posting cursor with the query-side weight and the
// score upper bound of its token.
type termCursor struct {
	cur    *postingCursor
	weight float32
	bound  float32
}

// queryTerm is one resolved query token after fuzzy expansion, carrying
// its query weight under the corpus-wide scorer.
type queryTerm struct {
	token  string
	weight float32
}

// searchPartition runs WAND top-k retrieval over one partition. The
// scorer is the corpus-wide merged scorer, not the partition's own, so
// scores are comparable across partitions.
func searchPartition(ctx context.Context, p *Partition, scorer *BM25Scorer, terms []queryTerm, k int) ([]model.ScoredDoc, error) {
	cursors := make([]*termCursor, 0, len(terms))
	for _, t := range terms {
		pl := p.Posting(t.token)
		if pl == nil || pl.Len() == 0 {
			continue
		}
		cursors = append(cursors, &termCursor{
			cur:    newPostingCursor(pl),
			weight: t.weight,
			bound:  t.weight * scorer.MaxDocWeight(pl.MaxFreq()),
		})
	}

	heap := newTopKHeap(k)
	steps := 0
	for {
		steps++
		if steps%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		cursors = compactCursors(cursors)
		if len(cursors) == 0 {
			break
		}
		sort.Slice(cursors, func(i, j int) bool {
			return cursors[i].cur.rowID() < cursors[j].cur.rowID()
		})

		pivot := findPivot(cursors, heap)
		if pivot < 0 {
			break
		}
		pivotDoc := cursors[pivot].cur.rowID()

		if cursors[0].cur.rowID() == pivotDoc {
			heap.push(model.ScoredDoc{
				RowID: pivotDoc,
				Score: scoreDoc(p, scorer, cursors, pivotDoc),
			})
			for _, c := range cursors {
				if !c.cur.valid() || c.cur.rowID() != pivotDoc {
					break
				}
				c.cur.next()
			}
			continue
		}

		// Jump the largest-bound cursor before the pivot forward; its
		// skipped range prunes the most work.
		best := 0
		for i := 1; i < pivot; i++ {
			if cursors[i].bound > cursors[best].bound {
				best = i
			}
		}
		cursors[best].cur.advance(pivotDoc)
	}

	return heap.sorted(), nil
}

func compactCursors(cursors []*termCursor) []*termCursor {
	live := cursors[:0]
	for _, c := range cursors {
		if c.cur.valid() {
			live = append(live, c)
		}
	}
	return live
}

// findPivot returns the index of the first cursor, in row-id order, at
// which the accumulated upper bound can beat the current threshold. A
// negative index means no remaining document can enter the heap.
func findPivot(cursors []*termCursor, heap *topKHeap) int {
	threshold, full := heap.threshold()

	var acc float32
	for i, c := range cursors {
		acc += c.bound
		if !full || acc > threshold {
			return i
		}
	}
	return -1
}

// scoreDoc computes the full BM25 score of doc. Cursors are sorted by row
// id and doc is the smallest, so the cursors positioned on doc form a
// prefix.
func scoreDoc(p *Partition, scorer *BM25Scorer, cursors []*termCursor, doc model.RowID) float32 {
	docLen := p.DocLength(doc)
	var score float32
	for _, c := range cursors {
		if !c.cur.valid() || c.cur.rowID() != doc {
			break
		}
		score += c.weight * scorer.DocWeight(c.cur.freq(), docLen)
	}
	return score
}
