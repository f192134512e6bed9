package inverted

import (
	"math"

	"github.com/chenkovsky/lance/codec"
)

// BM25 parameters. K1 controls term-frequency saturation, B controls
// document-length normalization.
const (
	K1 float32 = 1.2
	B  float32 = 0.75
)

// Scorer assigns a relevance contribution to a (token, term frequency,
// document length) triple. The total score of a document is the sum over
// query tokens of QueryWeight(token) * DocWeight(freq, docTokens).
type Scorer interface {
	QueryWeight(token string) float32
	DocWeight(freq, docTokens uint32) float32
	Score(token string, freq, docTokens uint32) float32
}

// IDF is the BM25 inverse document frequency of a token appearing in nq of
// numDocs documents. It is strictly decreasing in nq for fixed numDocs.
func IDF(nq, numDocs int) float32 {
	n := float64(nq)
	total := float64(numDocs)
	return float32(math.Log((total-n+0.5)/(n+0.5) + 1.0))
}

var _ Scorer = (*BM25Scorer)(nil)

// BM25Scorer is an immutable snapshot of corpus statistics: per-token
// document frequencies plus document and token counts. It is never mutated
// after construction; updated statistics are produced by MergeScorers.
type BM25Scorer struct {
	nqs       map[string]int
	numDocs   int
	numTokens int
	avgdl     float32
}

// NewBM25Scorer creates a scorer from per-token document frequencies and
// corpus totals. avgdl is always derived from numTokens/numDocs.
func NewBM25Scorer(nqs map[string]int, numDocs, numTokens int) *BM25Scorer {
	if nqs == nil {
		nqs = make(map[string]int)
	}
	var avgdl float32
	if numDocs > 0 {
		avgdl = float32(numTokens) / float32(numDocs)
	}
	return &BM25Scorer{
		nqs:       nqs,
		numDocs:   numDocs,
		numTokens: numTokens,
		avgdl:     avgdl,
	}
}

// NumDocs returns the number of documents in the corpus snapshot.
func (s *BM25Scorer) NumDocs() int { return s.numDocs }

// NumTokens returns the total token count across all documents.
func (s *BM25Scorer) NumTokens() int { return s.numTokens }

// Avgdl returns the average document length in tokens.
func (s *BM25Scorer) Avgdl() float32 { return s.avgdl }

// Nq returns the number of documents containing token. Tokens absent from
// the statistics default to 1: a smoothing choice, not an error, since a
// queried token may have been collected from a partition this snapshot does
// not cover.
func (s *BM25Scorer) Nq(token string) int {
	if nq, ok := s.nqs[token]; ok {
		return nq
	}
	return 1
}

// QueryWeight returns the idf of token within this corpus snapshot.
func (s *BM25Scorer) QueryWeight(token string) float32 {
	nq := s.Nq(token)
	if nq == 0 || s.numDocs == 0 {
		return 0
	}
	return IDF(nq, s.numDocs)
}

// DocWeight returns the length-normalized term-frequency component.
func (s *BM25Scorer) DocWeight(freq, docTokens uint32) float32 {
	if s.avgdl == 0 {
		return 0
	}
	f := float32(freq)
	docNorm := K1 * (1 - B + B*float32(docTokens)/s.avgdl)
	return (K1 + 1) * f / (f + docNorm)
}

// MaxDocWeight returns the largest DocWeight any document can attain for a
// token with maximum observed term frequency maxFreq. DocWeight increases
// as document length shrinks, so the bound substitutes zero length.
// WAND pruning relies on this never under-estimating.
func (s *BM25Scorer) MaxDocWeight(maxFreq uint32) float32 {
	f := float32(maxFreq)
	return (K1 + 1) * f / (f + K1*(1-B))
}

// Score returns the BM25 contribution of token in a document.
func (s *BM25Scorer) Score(token string, freq, docTokens uint32) float32 {
	return s.QueryWeight(token) * s.DocWeight(freq, docTokens)
}

// MergeScorers combines per-partition statistics into one snapshot: nqs are
// summed per token, document and token counts are summed, and avgdl is
// re-derived. The operation is associative and commutative, so hierarchical
// partial merges yield the same result regardless of grouping.
func MergeScorers(scorers ...*BM25Scorer) *BM25Scorer {
	nqs := make(map[string]int)
	var numDocs, numTokens int
	for _, s := range scorers {
		for token, nq := range s.nqs {
			nqs[token] += nq
		}
		numDocs += s.numDocs
		numTokens += s.numTokens
	}
	return NewBM25Scorer(nqs, numDocs, numTokens)
}

// bm25State is the self-describing serialized form of a BM25Scorer.
// Scorers are persisted and exchanged across process boundaries
// independently of posting data, so the format round-trips every field.
type bm25State struct {
	Nqs       map[string]int `json:"nqs"`
	NumDocs   int            `json:"num_docs"`
	NumTokens int            `json:"num_tokens"`
	Avgdl     float32        `json:"avgdl"`
}

// Encode serializes the scorer with the given codec (nil means
// codec.Default).
func (s *BM25Scorer) Encode(c codec.Codec) ([]byte, error) {
	if c == nil {
		c = codec.Default
	}
	return c.Marshal(bm25State{
		Nqs:       s.nqs,
		NumDocs:   s.numDocs,
		NumTokens: s.numTokens,
		Avgdl:     s.avgdl,
	})
}

// DecodeBM25Scorer deserializes a scorer previously written by Encode.
// Malformed input fails with a DeserializationError; avgdl is re-derived
// from the decoded counts so it can never drift from them.
func DecodeBM25Scorer(data []byte, c codec.Codec) (*BM25Scorer, error) {
	if c == nil {
		c = codec.Default
	}
	var state bm25State
	if err := c.Unmarshal(data, &state); err != nil {
		return nil, &DeserializationError{What: "bm25 scorer", cause: err}
	}
	return NewBM25Scorer(state.Nqs, state.NumDocs, state.NumTokens), nil
}
