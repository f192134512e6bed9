package inverted

import (
	"sort"

	"github.com/chenkovsky/lance/model"
)

// topKHeap is a bounded min-heap keeping the k best scored documents seen
// so far. The root is the current worst kept result, which doubles as the
// WAND pruning threshold. Value-based storage, no container/heap interface
// overhead.
type topKHeap struct {
	k     int
	items []model.ScoredDoc
}

func newTopKHeap(k int) *topKHeap {
	return &topKHeap{k: k, items: make([]model.ScoredDoc, 0, k)}
}

// worse reports whether a ranks strictly below b: lower score, or equal
// score with a larger row id. The row-id tie-break keeps results
// deterministic.
func worse(a, b model.ScoredDoc) bool {
	if a.Score != b.Score {
		return a.Score < b.Score
	}
	return a.RowID > b.RowID
}

// threshold returns the score a new document must beat to enter the heap,
// and whether the heap is full. While the heap has free capacity every
// document qualifies.
func (h *topKHeap) threshold() (float32, bool) {
	if len(h.items) < h.k {
		return 0, false
	}
	return h.items[0].Score, true
}

// push offers a document, displacing the current worst if full.
func (h *topKHeap) push(doc model.ScoredDoc) {
	if len(h.items) < h.k {
		h.items = append(h.items, doc)
		h.siftUp(len(h.items) - 1)
		return
	}
	if worse(doc, h.items[0]) {
		return
	}
	h.items[0] = doc
	h.siftDown(0)
}

// sorted drains the heap into a slice ordered by descending score, ties
// broken by ascending row id.
func (h *topKHeap) sorted() []model.ScoredDoc {
	out := make([]model.ScoredDoc, len(h.items))
	copy(out, h.items)
	sort.Slice(out, func(i, j int) bool { return worse(out[j], out[i]) })
	h.items = h.items[:0]
	return out
}

func (h *topKHeap) siftUp(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if !worse(h.items[i], h.items[parent]) {
			break
		}
		h.items[i], h.items[parent] = h.items[parent], h.items[i]
		i = parent
	}
}

func (h *topKHeap) siftDown(i int) {
	n := len(h.items)
	for {
		left := 2*i + 1
		if left >= n {
			break
		}
		child := left
		if right := left + 1; right < n && worse(h.items[right], h.items[left]) {
			child = right
		}
		if !worse(h.items[child], h.items[i]) {
			break
		}
		h.items[i], h.items[child] = h.items[child], h.items[i]
		i = child
	}
}
