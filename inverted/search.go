package inverted

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/chenkovsky/lance/model"
)

// SearchOption configures one retrieval call.
type SearchOption func(*searchOptions)

type searchOptions struct {
	partitions   []model.PartitionID
	allowPartial bool
}

// WithPartitions restricts retrieval to the given partitions. Default is
// all live partitions.
func WithPartitions(ids ...model.PartitionID) SearchOption {
	return func(o *searchOptions) { o.partitions = ids }
}

// WithPartialResults lets retrieval return results from the partitions
// that could be searched when others fail with a storage error.
// Cancellation still fails the whole call.
func WithPartialResults(allow bool) SearchOption {
	return func(o *searchOptions) { o.allowPartial = allow }
}

// FuzzyExpand matches query tokens against the indexed vocabulary of the
// selected partitions (all partitions if ids is empty) and returns each
// matched token's document frequency summed over those partitions. Exact
// tokens are included at edit distance zero.
func (idx *Index) FuzzyExpand(ctx context.Context, tokens []string, params SearchParams, ids ...model.PartitionID) (map[string]int, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	vocab, err := idx.Vocabulary(ctx, ids...)
	if err != nil {
		return nil, err
	}

	matched := make(map[string]struct{})
	for _, token := range tokens {
		for _, m := range fuzzyExpand(token, vocab, params.fuzziness(token), params.PrefixLength, params.maxExpansions()) {
			matched[m.token] = struct{}{}
		}
	}

	freqs := make(map[string]int, len(matched))
	err = idx.forEachPartition(ctx, ids, func(p *Partition) error {
		for token := range matched {
			if nq := p.Nq(token); nq > 0 {
				freqs[token] += nq
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return freqs, nil
}

// TopK retrieves the k highest-scoring documents for the given
// token-to-query-weight mapping. Partitions are searched concurrently and
// the per-partition results are merged; global top-k is a subset of the
// union of per-partition top-k under the same bound.
func (idx *Index) TopK(ctx context.Context, weights map[string]float32, k int, opts ...SearchOption) ([]model.ScoredDoc, error) {
	if k <= 0 {
		return nil, &InputError{Reason: "k must be positive"}
	}
	var options searchOptions
	for _, opt := range opts {
		opt(&options)
	}

	refs, err := idx.refsFor(options.partitions)
	if err != nil {
		return nil, err
	}
	if len(refs) == 0 || len(weights) == 0 {
		return nil, nil
	}

	scorer, err := idx.Scorer(ctx, options.partitions...)
	if err != nil {
		return nil, err
	}

	terms := make([]queryTerm, 0, len(weights))
	for token, weight := range weights {
		if weight > 0 {
			terms = append(terms, queryTerm{token: token, weight: weight})
		}
	}

	var (
		mu      sync.Mutex
		skipped int
	)
	merged := newTopKHeap(k)

	g, gctx := errgroup.WithContext(ctx)
	for _, ref := range refs {
		g.Go(func() error {
			p, err := idx.partition(gctx, ref)
			if err == nil {
				var hits []model.ScoredDoc
				hits, err = searchPartition(gctx, p, scorer, terms, k)
				if err == nil {
					mu.Lock()
					for _, hit := range hits {
						merged.push(hit)
					}
					mu.Unlock()
					return nil
				}
			}

			var storageErr *StorageError
			if options.allowPartial && errors.As(err, &storageErr) {
				idx.logger.Warn("skipping unavailable partition",
					"partition", ref.meta.ID, "error", err)
				mu.Lock()
				skipped++
				mu.Unlock()
				return nil
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if skipped == len(refs) {
		return nil, &StorageError{Op: "search", cause: errors.New("no partition could be searched")}
	}
	return merged.sorted(), nil
}

// Search tokenizes query text, fuzzy-expands it against the index
// vocabulary, weighs the expanded tokens under the corpus-wide BM25 model
// and retrieves the top k documents.
func (idx *Index) Search(ctx context.Context, query string, k int, params SearchParams, opts ...SearchOption) ([]model.ScoredDoc, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	var options searchOptions
	for _, opt := range opts {
		opt(&options)
	}

	tokens := idx.CollectTokens(query, nil)
	if len(tokens) == 0 {
		return nil, nil
	}

	freqs, err := idx.FuzzyExpand(ctx, tokens, params, options.partitions...)
	if err != nil {
		return nil, err
	}
	if len(freqs) == 0 {
		return nil, nil
	}

	scorer, err := idx.Scorer(ctx, options.partitions...)
	if err != nil {
		return nil, err
	}
	weights := make(map[string]float32, len(freqs))
	for token := range freqs {
		weights[token] = scorer.QueryWeight(token)
	}

	return idx.TopK(ctx, weights, k, opts...)
}
