// Package model defines core types shared across the search subsystem.
//
// # Identity Types
//
//   - RowID: Stable, engine-assigned row identifier (uint64)
//   - PartitionID: Unique identifier for an index partition (uint64)
//   - FragmentID: Identifier of a source data fragment (uint32)
//
// # Data Types
//
//   - Row: One (row id, text) ingestion record
//   - ScoredDoc: One ranked retrieval result
package model
