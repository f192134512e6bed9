// Package tokenizer turns raw text into normalized index tokens.
//
// The same tokenizer configuration must be used for building an index and
// for querying it: tokens only match by exact string equality after
// normalization, so a build/query mismatch silently breaks retrieval.
// Configurations are therefore persisted alongside the index, restored on
// open, and checked against any explicitly supplied configuration.
package tokenizer

import (
	"strings"
	"unicode"

	"github.com/clipperhouse/uax29/v2/words"
	snowballeng "github.com/kljensen/snowball/english"
	"golang.org/x/text/unicode/norm"
)

const (
	// DefaultMaxTokenLength drops pathological tokens (base64 blobs, URLs
	// glued together) that would bloat the vocabulary.
	DefaultMaxTokenLength = 40
)

// Config controls the token pipeline. The zero value is not useful; use
// Default() for the standard configuration.
type Config struct {
	// Lowercase folds tokens to lower case before any further processing.
	Lowercase bool `json:"lowercase"`
	// RemoveStopWords drops common English stop words.
	RemoveStopWords bool `json:"remove_stop_words"`
	// Stem reduces tokens to their root form using the Snowball English
	// stemmer ("running" -> "run").
	Stem bool `json:"stem"`
	// MinTokenLength drops tokens shorter than this many runes. Zero keeps
	// everything.
	MinTokenLength int `json:"min_token_length"`
	// MaxTokenLength drops tokens longer than this many runes. Zero means
	// DefaultMaxTokenLength.
	MaxTokenLength int `json:"max_token_length"`
}

// Default returns the standard tokenizer configuration: lowercased, no
// stop-word removal, no stemming.
func Default() Config {
	return Config{
		Lowercase:      true,
		MaxTokenLength: DefaultMaxTokenLength,
	}
}

// Tokenizer is a deterministic, stateless text-to-token mapper. It is safe
// for concurrent use.
type Tokenizer struct {
	cfg Config
}

// New creates a Tokenizer from cfg.
func New(cfg Config) *Tokenizer {
	if cfg.MaxTokenLength <= 0 {
		cfg.MaxTokenLength = DefaultMaxTokenLength
	}
	return &Tokenizer{cfg: cfg}
}

// Config returns the configuration the tokenizer was built with.
func (t *Tokenizer) Config() Config {
	return t.cfg
}

// Tokenize splits text into normalized tokens, in document order. The
// mapping is pure: the same input always yields the same output.
func (t *Tokenizer) Tokenize(text string) []string {
	text = norm.NFKC.String(text)
	if t.cfg.Lowercase {
		text = strings.ToLower(text)
	}

	var tokens []string
	seg := words.FromString(text)
	for seg.Next() {
		tok := seg.Value()
		if !isWordToken(tok) {
			continue
		}
		n := len([]rune(tok))
		if n < t.cfg.MinTokenLength || n > t.cfg.MaxTokenLength {
			continue
		}
		if t.cfg.RemoveStopWords && isStopWord(tok) {
			continue
		}
		if t.cfg.Stem {
			tok = snowballeng.Stem(tok, false)
		}
		tokens = append(tokens, tok)
	}
	return tokens
}

// CollectTokens tokenizes query text and deduplicates the result, keeping
// first-occurrence order. If inclusive is non-nil, only tokens present in
// it are retained; callers pass the index vocabulary here to avoid posting
// lookups for tokens that cannot match.
func (t *Tokenizer) CollectTokens(text string, inclusive map[string]struct{}) []string {
	raw := t.Tokenize(text)
	seen := make(map[string]struct{}, len(raw))
	tokens := make([]string, 0, len(raw))
	for _, tok := range raw {
		if _, dup := seen[tok]; dup {
			continue
		}
		if inclusive != nil {
			if _, ok := inclusive[tok]; !ok {
				continue
			}
		}
		seen[tok] = struct{}{}
		tokens = append(tokens, tok)
	}
	return tokens
}

// isWordToken reports whether the UAX#29 segment is an indexable word.
// The segmenter also emits whitespace and punctuation runs; those carry a
// segment with no letter or digit.
func isWordToken(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			return true
		}
	}
	return false
}
