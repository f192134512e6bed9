package inverted

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/chenkovsky/lance/model"
	"github.com/chenkovsky/lance/tokenizer"
)

// Index is an ordered collection of partitions plus the tokenizer
// configuration shared between build time and query time.
//
// The partition list is the only mutable shared state: it is an immutable
// snapshot behind an atomic pointer, so readers observe a complete,
// consistent partition set for the duration of one query while writers
// (builder seal, merge) swap in replacements. Writers are serialized by an
// internal mutex; concurrent external writers are not supported.
type Index struct {
	tok    *tokenizer.Tokenizer
	store  *PartitionStore // nil for a purely in-memory index
	logger *slog.Logger

	snapshot atomic.Pointer[partitionSet]
	nextID   atomic.Uint64

	// writeMu serializes publish/replace and metadata writes.
	writeMu sync.Mutex
}

// partitionSet is an immutable snapshot of the live partition list,
// ordered by partition id.
type partitionSet struct {
	refs []partitionRef
}

// partitionRef is one snapshot entry. Metadata is always resident; the
// partition content is either held in memory (store-less index) or loaded
// on demand through the partition store.
type partitionRef struct {
	meta PartitionMeta
	mem  *Partition
}

// IndexOption configures an Index.
type IndexOption func(*Index)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) IndexOption {
	return func(idx *Index) {
		if l != nil {
			idx.logger = l
		}
	}
}

// NewIndex creates an empty index using the given tokenizer. store may be
// nil, in which case partitions are kept in memory and nothing is
// persisted.
func NewIndex(tok *tokenizer.Tokenizer, store *PartitionStore, opts ...IndexOption) *Index {
	idx := &Index{
		tok:    tok,
		store:  store,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	idx.snapshot.Store(&partitionSet{})
	idx.nextID.Store(1)
	return idx
}

// OpenIndex loads an existing index from its partition store.
func OpenIndex(ctx context.Context, store *PartitionStore, opts ...IndexOption) (*Index, error) {
	meta, err := store.LoadMeta(ctx)
	if err != nil {
		return nil, err
	}

	idx := NewIndex(tokenizer.New(meta.Tokenizer), store, opts...)
	idx.nextID.Store(meta.NextPartitionID)

	refs := make([]partitionRef, 0, len(meta.PartitionIDs))
	for _, id := range meta.PartitionIDs {
		p, err := store.Load(ctx, model.PartitionID(id))
		if err != nil {
			return nil, err
		}
		refs = append(refs, partitionRef{meta: p.Meta()})
	}
	idx.snapshot.Store(&partitionSet{refs: refs})
	return idx, nil
}

// Tokenizer returns the index's tokenizer. Queries must use it so query
// tokens match indexed tokens exactly.
func (idx *Index) Tokenizer() *tokenizer.Tokenizer { return idx.tok }

// Partitions returns metadata for all live partitions, ordered by id.
func (idx *Index) Partitions() []PartitionMeta {
	set := idx.snapshot.Load()
	metas := make([]PartitionMeta, len(set.refs))
	for i, ref := range set.refs {
		metas[i] = ref.meta
	}
	return metas
}

// CollectTokens tokenizes query text, optionally restricted to the given
// vocabulary (nil means no restriction).
func (idx *Index) CollectTokens(query string, inclusive map[string]struct{}) []string {
	return idx.tok.CollectTokens(query, inclusive)
}

// Vocabulary returns the union of token vocabularies across the selected
// partitions (all partitions if ids is empty).
func (idx *Index) Vocabulary(ctx context.Context, ids ...model.PartitionID) (map[string]struct{}, error) {
	var vocab map[string]struct{}
	err := idx.forEachPartition(ctx, ids, func(p *Partition) error {
		if vocab == nil {
			vocab = make(map[string]struct{}, len(p.postings))
		}
		p.Tokens(func(token string, _ int) {
			vocab[token] = struct{}{}
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	if vocab == nil {
		vocab = make(map[string]struct{})
	}
	return vocab, nil
}

// Scorer returns the BM25 statistics snapshot for the selected partitions
// (all partitions if ids is empty), merged into one corpus-wide model.
func (idx *Index) Scorer(ctx context.Context, ids ...model.PartitionID) (*BM25Scorer, error) {
	var scorers []*BM25Scorer
	err := idx.forEachPartition(ctx, ids, func(p *Partition) error {
		scorers = append(scorers, p.Scorer())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return MergeScorers(scorers...), nil
}

// publish flushes a freshly sealed partition and appends it to the live
// partition list. The fragment-disjointness invariant is validated before
// anything is persisted.
func (idx *Index) publish(ctx context.Context, p *Partition) error {
	idx.writeMu.Lock()
	defer idx.writeMu.Unlock()

	set := idx.snapshot.Load()
	live := roaring.New()
	for _, ref := range set.refs {
		addFragments(live, ref.meta.Fragments)
	}
	if live.Intersects(p.fragments) {
		return &InputError{Reason: fmt.Sprintf(
			"partition %d covers fragments already indexed by a live partition", p.id)}
	}

	if idx.store != nil {
		if err := idx.store.Flush(ctx, p); err != nil {
			return err
		}
	}

	ref := partitionRef{meta: p.Meta()}
	if idx.store == nil {
		ref.mem = p
	}
	next := &partitionSet{refs: insertRef(set.refs, ref)}
	if err := idx.saveMetaLocked(ctx, next); err != nil {
		return err
	}
	idx.snapshot.Store(next)

	idx.logger.Info("partition published",
		"partition", p.id,
		"num_docs", p.numDocs,
		"num_tokens", p.numTokens,
	)
	return nil
}

// Replace atomically swaps the partitions identified by oldIDs for the
// merged partition. Readers see either the pre-merge or post-merge
// partition set, never a mix. The merged partition must cover exactly the
// union of the replaced fragment sets.
func (idx *Index) Replace(ctx context.Context, oldIDs []model.PartitionID, merged *Partition) error {
	idx.writeMu.Lock()
	defer idx.writeMu.Unlock()

	set := idx.snapshot.Load()
	replaced := make(map[model.PartitionID]bool, len(oldIDs))
	for _, id := range oldIDs {
		replaced[id] = true
	}

	oldFragments := roaring.New()
	kept := make([]partitionRef, 0, len(set.refs))
	found := 0
	for _, ref := range set.refs {
		if replaced[ref.meta.ID] {
			addFragments(oldFragments, ref.meta.Fragments)
			found++
			continue
		}
		kept = append(kept, ref)
	}
	if found != len(replaced) {
		return &InputError{Reason: "replace: unknown partition id"}
	}
	if !oldFragments.Equals(merged.fragments) {
		return &InputError{Reason: fmt.Sprintf(
			"replace: partition %d does not cover exactly the replaced fragments", merged.id)}
	}

	if idx.store != nil {
		if err := idx.store.Flush(ctx, merged); err != nil {
			return err
		}
	}

	ref := partitionRef{meta: merged.Meta()}
	if idx.store == nil {
		ref.mem = merged
	}
	next := &partitionSet{refs: insertRef(kept, ref)}
	if err := idx.saveMetaLocked(ctx, next); err != nil {
		return err
	}
	idx.snapshot.Store(next)

	// Old blobs are unreachable from the new snapshot; removal is
	// best-effort cleanup.
	if idx.store != nil {
		for _, id := range oldIDs {
			if err := idx.store.Delete(ctx, id); err != nil {
				idx.logger.Warn("failed to delete replaced partition blob",
					"partition", id, "error", err)
			}
		}
	}

	idx.logger.Info("partitions replaced",
		"replaced", len(oldIDs),
		"merged", merged.id,
		"num_docs", merged.numDocs,
	)
	return nil
}

// nextPartitionID allocates a partition id.
func (idx *Index) nextPartitionID() model.PartitionID {
	return model.PartitionID(idx.nextID.Add(1) - 1)
}

func (idx *Index) saveMetaLocked(ctx context.Context, set *partitionSet) error {
	if idx.store == nil {
		return nil
	}
	ids := make([]uint64, len(set.refs))
	for i, ref := range set.refs {
		ids[i] = uint64(ref.meta.ID)
	}
	return idx.store.SaveMeta(ctx, indexMeta{
		Version:         blobVersion,
		Tokenizer:       idx.tok.Config(),
		PartitionIDs:    ids,
		NextPartitionID: idx.nextID.Load(),
	})
}

// refsFor resolves the selected partition ids against the current
// snapshot. Empty ids selects every partition.
func (idx *Index) refsFor(ids []model.PartitionID) ([]partitionRef, error) {
	set := idx.snapshot.Load()
	if len(ids) == 0 {
		return set.refs, nil
	}
	byID := make(map[model.PartitionID]partitionRef, len(set.refs))
	for _, ref := range set.refs {
		byID[ref.meta.ID] = ref
	}
	refs := make([]partitionRef, 0, len(ids))
	for _, id := range ids {
		ref, ok := byID[id]
		if !ok {
			return nil, &InputError{Reason: fmt.Sprintf("unknown partition id %d", id)}
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// partition materializes one snapshot entry.
func (idx *Index) partition(ctx context.Context, ref partitionRef) (*Partition, error) {
	if ref.mem != nil {
		return ref.mem, nil
	}
	return idx.store.Load(ctx, ref.meta.ID)
}

// forEachPartition materializes and visits the selected partitions.
func (idx *Index) forEachPartition(ctx context.Context, ids []model.PartitionID, fn func(*Partition) error) error {
	refs, err := idx.refsFor(ids)
	if err != nil {
		return err
	}
	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return err
		}
		p, err := idx.partition(ctx, ref)
		if err != nil {
			return err
		}
		if err := fn(p); err != nil {
			return err
		}
	}
	return nil
}

func insertRef(refs []partitionRef, ref partitionRef) []partitionRef {
	out := make([]partitionRef, 0, len(refs)+1)
	inserted := false
	for _, r := range refs {
		if !inserted && ref.meta.ID < r.meta.ID {
			out = append(out, ref)
			inserted = true
		}
		out = append(out, r)
	}
	if !inserted {
		out = append(out, ref)
	}
	return out
}

func addFragments(bm *roaring.Bitmap, frags []model.FragmentID) {
	for _, f := range frags {
		bm.Add(uint32(f))
	}
}
