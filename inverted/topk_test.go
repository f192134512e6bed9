package inverted

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/chenkovsky/lance/model"
)

func TestTopKHeapKeepsBest(t *testing.T) {
	h := newTopKHeap(3)
	for i, score := range []float32{0.1, 0.9, 0.5, 0.7, 0.3} {
		h.push(model.ScoredDoc{RowID: model.RowID(i), Score: score})
	}

	got := h.sorted()
	assert.Len(t, got, 3)
	assert.Equal(t, model.RowID(1), got[0].RowID)
	assert.Equal(t, model.RowID(3), got[1].RowID)
	assert.Equal(t, model.RowID(2), got[2].RowID)
}

func TestTopKHeapTiesByRowID(t *testing.T) {
	h := newTopKHeap(2)
	h.push(model.ScoredDoc{RowID: 9, Score: 1.0})
	h.push(model.ScoredDoc{RowID: 3, Score: 1.0})
	h.push(model.ScoredDoc{RowID: 6, Score: 1.0})

	// Equal scores keep the smaller row ids.
	got := h.sorted()
	assert.Len(t, got, 2)
	assert.Equal(t, model.RowID(3), got[0].RowID)
	assert.Equal(t, model.RowID(6), got[1].RowID)
}

func TestTopKHeapThreshold(t *testing.T) {
	h := newTopKHeap(2)

	_, full := h.threshold()
	assert.False(t, full)

	h.push(model.ScoredDoc{RowID: 1, Score: 0.4})
	_, full = h.threshold()
	assert.False(t, full)

	h.push(model.ScoredDoc{RowID: 2, Score: 0.8})
	threshold, full := h.threshold()
	assert.True(t, full)
	assert.Equal(t, float32(0.4), threshold)

	// Pushing a better doc raises the bar.
	h.push(model.ScoredDoc{RowID: 3, Score: 0.6})
	threshold, _ = h.threshold()
	assert.Equal(t, float32(0.6), threshold)
}

func TestTopKHeapFewerThanK(t *testing.T) {
	h := newTopKHeap(10)
	h.push(model.ScoredDoc{RowID: 5, Score: 0.2})

	got := h.sorted()
	assert.Len(t, got, 1)
	assert.Equal(t, model.RowID(5), got[0].RowID)
}
