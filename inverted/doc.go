// Package inverted implements a partitioned inverted index over
// token-valued columns with BM25 ranking, WAND top-k retrieval, and fuzzy
// query expansion.
//
// # Structure
//
// An Index is an ordered collection of immutable Partitions plus the
// tokenizer configuration shared by building and querying. Each partition
// owns a token -> posting-list map, its document statistics, and the set of
// source fragments it covers. Updates never mutate a sealed partition: the
// Builder appends new partitions and the merge operation atomically swaps
// groups of partitions for their merged replacement.
//
// # Ranking
//
// BM25 statistics are tracked per partition and composed with an
// associative, commutative merge, so a global ranking model is available
// without re-scanning documents. Retrieval uses WAND-style pruning: per-token
// score upper bounds let the cursor loop skip documents that cannot enter
// the current top-k.
package inverted
