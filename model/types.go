package model

import (
	"fmt"
)

// PartitionID is the unique identifier for an inverted-index partition.
type PartitionID uint64

// RowID is the stable, engine-assigned identifier of a row.
// It is opaque to the search core; the storage layer owns its encoding.
type RowID uint64

// FragmentID identifies a source data fragment. A sealed partition records
// the set of fragments it was built from so the engine can tell whether the
// partition is stale relative to new data.
type FragmentID uint32

// Row is one ingestion record: a row id, the fragment the row lives in,
// and the raw text of the indexed column for that row.
type Row struct {
	ID       RowID
	Fragment FragmentID
	Text     string
}

// ScoredDoc is a single ranked retrieval result.
type ScoredDoc struct {
	RowID RowID
	Score float32
}

// String returns a string representation of the ScoredDoc.
func (d ScoredDoc) String() string {
	return fmt.Sprintf("Doc(%d:%.4f)", d.RowID, d.Score)
}
