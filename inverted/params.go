package inverted

import "fmt"

const (
	// DefaultMaxExpansions caps the number of fuzzy-expanded terms per
	// query token.
	DefaultMaxExpansions = 50

	// DefaultBatchSize is the number of rows per training chunk. Chunking
	// bounds peak memory while building large indices.
	DefaultBatchSize = 4096

	// DefaultPartitionSize is the number of documents after which the
	// builder seals the partition under construction and starts a new one.
	DefaultPartitionSize = 100_000
)

// SearchParams controls fuzzy query expansion. Construct one per query;
// the zero value of Fuzziness (nil) selects automatic edit distance.
type SearchParams struct {
	// MaxExpansions caps the fuzzy-expanded terms kept per query token.
	// Zero means DefaultMaxExpansions.
	MaxExpansions int

	// Fuzziness is the maximum edit distance for expansion. nil derives
	// the distance from the query token length (see AutoFuzziness).
	Fuzziness *int

	// PrefixLength is the number of leading characters that must match
	// exactly and are exempt from edit distance.
	PrefixLength int
}

// NewSearchParams returns search parameters with defaults: 50 expansions,
// automatic fuzziness, no required prefix.
func NewSearchParams() SearchParams {
	return SearchParams{MaxExpansions: DefaultMaxExpansions}
}

// Validate rejects malformed parameters before they reach the index.
func (p SearchParams) Validate() error {
	if p.MaxExpansions < 0 {
		return &InputError{Reason: fmt.Sprintf("max_expansions must be non-negative, got %d", p.MaxExpansions)}
	}
	if p.Fuzziness != nil && *p.Fuzziness < 0 {
		return &InputError{Reason: fmt.Sprintf("fuzziness must be non-negative, got %d", *p.Fuzziness)}
	}
	if p.PrefixLength < 0 {
		return &InputError{Reason: fmt.Sprintf("prefix_length must be non-negative, got %d", p.PrefixLength)}
	}
	return nil
}

// fuzziness resolves the edit distance for one query token, falling back
// to AutoFuzziness when none is set explicitly.
func (p SearchParams) fuzziness(token string) int {
	if p.Fuzziness != nil {
		return *p.Fuzziness
	}
	return AutoFuzziness(token)
}

func (p SearchParams) maxExpansions() int {
	if p.MaxExpansions == 0 {
		return DefaultMaxExpansions
	}
	return p.MaxExpansions
}

// AutoFuzziness is the edit distance used when SearchParams.Fuzziness is
// nil, tiered by query token length: up to 2 runes allow no edits, 3-5
// runes allow one, longer tokens allow two.
func AutoFuzziness(token string) int {
	switch n := len([]rune(token)); {
	case n <= 2:
		return 0
	case n <= 5:
		return 1
	default:
		return 2
	}
}
