package inverted

import (
	"fmt"

	"github.com/chenkovsky/lance/model"
)

// InputError indicates malformed query parameters or ingestion records.
// It is returned before any index state is mutated.
type InputError struct {
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid input: %s", e.Reason)
}

// StorageError indicates a failed partition read or write.
//
// The original underlying error can be accessed via errors.Unwrap.
type StorageError struct {
	PartitionID model.PartitionID
	Op          string // "load", "flush", "delete", "meta"
	cause       error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("partition %d: %s failed: %v", e.PartitionID, e.Op, e.cause)
}

func (e *StorageError) Unwrap() error { return e.cause }

// DeserializationError indicates malformed persisted index state. It is
// never silently defaulted: the caller always sees the parse failure.
//
// The original underlying error can be accessed via errors.Unwrap.
type DeserializationError struct {
	What  string // e.g. "bm25 scorer", "partition"
	cause error
}

func (e *DeserializationError) Error() string {
	return fmt.Sprintf("deserialize %s: %v", e.What, e.cause)
}

func (e *DeserializationError) Unwrap() error { return e.cause }
