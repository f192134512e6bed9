package inverted

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vocabOf(tokens ...string) map[string]struct{} {
	v := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		v[t] = struct{}{}
	}
	return v
}

func TestFuzzyExpandExact(t *testing.T) {
	vocab := vocabOf("cat", "car", "dog")

	got := fuzzyExpand("cat", vocab, 0, 0, DefaultMaxExpansions)
	require.Len(t, got, 1)
	assert.Equal(t, "cat", got[0].token)
	assert.Zero(t, got[0].distance)

	assert.Empty(t, fuzzyExpand("cow", vocab, 0, 0, DefaultMaxExpansions))
}

func TestFuzzyExpandWithinDistance(t *testing.T) {
	vocab := vocabOf("cat", "car", "cart", "dog", "category")

	got := fuzzyExpand("cat", vocab, 1, 0, DefaultMaxExpansions)
	require.Len(t, got, 3)
	// Exact match first, then distance-1 matches lexicographically.
	assert.Equal(t, "cat", got[0].token)
	assert.Equal(t, "car", got[1].token)
	assert.Equal(t, "cart", got[2].token)
	for _, m := range got {
		assert.LessOrEqual(t, m.distance, 1)
	}
}

func TestFuzzyExpandPrefixLength(t *testing.T) {
	vocab := vocabOf("cat", "bat", "cut")

	// prefix_length 1 pins the first rune, ruling out "bat".
	got := fuzzyExpand("cat", vocab, 1, 1, DefaultMaxExpansions)
	require.Len(t, got, 2)
	assert.Equal(t, "cat", got[0].token)
	assert.Equal(t, "cut", got[1].token)
}

func TestFuzzyExpandMaxExpansions(t *testing.T) {
	vocab := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		vocab[fmt.Sprintf("tok%02d", i)] = struct{}{}
	}

	got := fuzzyExpand("tok00", vocab, 2, 0, 5)
	assert.Len(t, got, 5)
	// The exact token survives trimming because distance sorts first.
	assert.Equal(t, "tok00", got[0].token)
}

func TestDistanceWithin(t *testing.T) {
	d, ok := distanceWithin("kitten", "sitting", 3)
	assert.True(t, ok)
	assert.Equal(t, 3, d)

	_, ok = distanceWithin("kitten", "sitting", 2)
	assert.False(t, ok)

	// Length difference alone disqualifies without a full computation.
	_, ok = distanceWithin("a", "abcdef", 2)
	assert.False(t, ok)
}

func TestAutoFuzziness(t *testing.T) {
	assert.Equal(t, 0, AutoFuzziness("at"))
	assert.Equal(t, 1, AutoFuzziness("cat"))
	assert.Equal(t, 1, AutoFuzziness("house"))
	assert.Equal(t, 2, AutoFuzziness("houses"))
	// Rune count, not byte count.
	assert.Equal(t, 0, AutoFuzziness("日本"))
}
