package inverted

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"slices"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/chenkovsky/lance/blobstore"
	"github.com/chenkovsky/lance/cache"
	"github.com/chenkovsky/lance/codec"
	"github.com/chenkovsky/lance/model"
	"github.com/chenkovsky/lance/resource"
	"github.com/chenkovsky/lance/tokenizer"
)

const (
	partBlobPrefix = "part-"
	metaBlobName   = "index-meta"

	blobVersion = 1
)

var blobMagic = [4]byte{'L', 'F', 'T', 'S'}

// Compression names accepted by WithCompression.
const (
	CompressionZstd = "zstd"
	CompressionLZ4  = "lz4"
	CompressionNone = "none"
)

// PartitionStore persists sealed partitions and index metadata to a blob
// store. Blobs are self-describing: each records the codec and compression
// it was written with, so defaults can change without breaking old data.
type PartitionStore struct {
	blobs       blobstore.BlobStore
	codec       codec.Codec
	compression string
	cache       *cache.LRU[model.PartitionID, *Partition]
	rc          *resource.Controller
}

// StoreOption configures a PartitionStore.
type StoreOption func(*PartitionStore)

// WithCodec sets the codec used for newly written blobs. Nil selects
// codec.Default.
func WithCodec(c codec.Codec) StoreOption {
	return func(s *PartitionStore) {
		if c == nil {
			c = codec.Default
		}
		s.codec = c
	}
}

// WithCompression sets the compression for newly written partition blobs:
// CompressionZstd (default), CompressionLZ4, or CompressionNone.
func WithCompression(name string) StoreOption {
	return func(s *PartitionStore) { s.compression = name }
}

// WithPartitionCache bounds the memory used to keep decoded partitions
// resident, in bytes. Zero disables caching.
func WithPartitionCache(capacityBytes int64) StoreOption {
	return func(s *PartitionStore) {
		if capacityBytes > 0 {
			s.cache = cache.NewLRU[model.PartitionID, *Partition](
				capacityBytes, (*Partition).memSize)
		}
	}
}

// WithResourceController attaches a resource controller; partition flushes
// then respect its IO limit.
func WithResourceController(rc *resource.Controller) StoreOption {
	return func(s *PartitionStore) { s.rc = rc }
}

// NewPartitionStore creates a PartitionStore over the given blob store.
func NewPartitionStore(blobs blobstore.BlobStore, opts ...StoreOption) *PartitionStore {
	s := &PartitionStore{
		blobs:       blobs,
		codec:       codec.Default,
		compression: CompressionZstd,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func partBlobName(id model.PartitionID) string {
	return fmt.Sprintf("%s%d", partBlobPrefix, id)
}

// tokenPostings is the serialized posting list of one token.
type tokenPostings struct {
	Token  string   `json:"token"`
	RowIDs []uint64 `json:"row_ids"`
	Freqs  []uint32 `json:"freqs"`
}

// partitionState is the serialized form of a sealed partition. Row ids and
// doc lengths are parallel arrays sorted by row id.
type partitionState struct {
	ID         uint64          `json:"id"`
	NumTokens  int             `json:"num_tokens"`
	Fragments  []uint32        `json:"fragments"`
	RowIDs     []uint64        `json:"row_ids"`
	DocLengths []uint32        `json:"doc_lengths"`
	Tokens     []tokenPostings `json:"tokens"`
}

// Flush persists a sealed partition. The write is atomic at the blob layer:
// a failed flush never corrupts previously persisted partitions.
func (s *PartitionStore) Flush(ctx context.Context, p *Partition) error {
	data, err := s.encodePartition(p)
	if err != nil {
		return &StorageError{PartitionID: p.id, Op: "flush", cause: err}
	}
	if err := s.rc.AcquireIO(ctx, len(data)); err != nil {
		return &StorageError{PartitionID: p.id, Op: "flush", cause: err}
	}
	if err := s.blobs.Put(ctx, partBlobName(p.id), data); err != nil {
		return &StorageError{PartitionID: p.id, Op: "flush", cause: err}
	}
	if s.cache != nil {
		s.cache.Set(p.id, p)
	}
	return nil
}

// Load reads a partition, preferring the decoded-partition cache.
func (s *PartitionStore) Load(ctx context.Context, id model.PartitionID) (*Partition, error) {
	if s.cache != nil {
		if p, ok := s.cache.Get(id); ok {
			return p, nil
		}
	}

	b, err := s.blobs.Open(ctx, partBlobName(id))
	if err != nil {
		return nil, &StorageError{PartitionID: id, Op: "load", cause: err}
	}
	defer b.Close()

	data, err := blobstore.ReadAll(b)
	if err != nil {
		return nil, &StorageError{PartitionID: id, Op: "load", cause: err}
	}

	p, err := s.decodePartition(data)
	if err != nil {
		return nil, err
	}
	if p.id != id {
		return nil, &DeserializationError{
			What:  "partition",
			cause: fmt.Errorf("blob %s holds partition %d", partBlobName(id), p.id),
		}
	}

	if s.cache != nil {
		s.cache.Set(id, p)
	}
	return p, nil
}

// Delete removes a partition blob.
func (s *PartitionStore) Delete(ctx context.Context, id model.PartitionID) error {
	if s.cache != nil {
		s.cache.Remove(id)
	}
	if err := s.blobs.Delete(ctx, partBlobName(id)); err != nil {
		return &StorageError{PartitionID: id, Op: "delete", cause: err}
	}
	return nil
}

func (s *PartitionStore) encodePartition(p *Partition) ([]byte, error) {
	state := partitionState{
		ID:         uint64(p.id),
		NumTokens:  p.numTokens,
		Fragments:  p.fragments.ToArray(),
		RowIDs:     make([]uint64, 0, len(p.docLengths)),
		DocLengths: make([]uint32, 0, len(p.docLengths)),
		Tokens:     make([]tokenPostings, 0, len(p.postings)),
	}

	rowIDs := make([]model.RowID, 0, len(p.docLengths))
	for rowID := range p.docLengths {
		rowIDs = append(rowIDs, rowID)
	}
	slices.Sort(rowIDs)
	for _, rowID := range rowIDs {
		state.RowIDs = append(state.RowIDs, uint64(rowID))
		state.DocLengths = append(state.DocLengths, p.docLengths[rowID])
	}

	tokens := make([]string, 0, len(p.postings))
	for token := range p.postings {
		tokens = append(tokens, token)
	}
	slices.Sort(tokens)
	for _, token := range tokens {
		pl := p.postings[token]
		tp := tokenPostings{
			Token:  token,
			RowIDs: make([]uint64, pl.Len()),
			Freqs:  make([]uint32, pl.Len()),
		}
		for i := 0; i < pl.Len(); i++ {
			tp.RowIDs[i] = uint64(pl.RowID(i))
			tp.Freqs[i] = pl.Freq(i)
		}
		state.Tokens = append(state.Tokens, tp)
	}

	payload, err := s.codec.Marshal(state)
	if err != nil {
		return nil, err
	}
	compressed, err := compress(s.compression, payload)
	if err != nil {
		return nil, err
	}
	return encodeEnvelope(s.codec.Name(), s.compression, compressed), nil
}

func (s *PartitionStore) decodePartition(data []byte) (*Partition, error) {
	codecName, compName, payload, err := decodeEnvelope(data)
	if err != nil {
		return nil, &DeserializationError{What: "partition", cause: err}
	}
	c, ok := codec.ByName(codecName)
	if !ok {
		return nil, &DeserializationError{What: "partition", cause: fmt.Errorf("unknown codec %q", codecName)}
	}
	raw, err := decompress(compName, payload)
	if err != nil {
		return nil, &DeserializationError{What: "partition", cause: err}
	}

	var state partitionState
	if err := c.Unmarshal(raw, &state); err != nil {
		return nil, &DeserializationError{What: "partition", cause: err}
	}
	if len(state.RowIDs) != len(state.DocLengths) {
		return nil, &DeserializationError{
			What:  "partition",
			cause: fmt.Errorf("row_ids/doc_lengths length mismatch: %d vs %d", len(state.RowIDs), len(state.DocLengths)),
		}
	}

	postings := make(map[string]*PostingList, len(state.Tokens))
	for _, tp := range state.Tokens {
		if len(tp.RowIDs) != len(tp.Freqs) {
			return nil, &DeserializationError{
				What:  "partition",
				cause: fmt.Errorf("token %q: row_ids/freqs length mismatch", tp.Token),
			}
		}
		pl := &PostingList{}
		for i := range tp.RowIDs {
			pl.append(model.RowID(tp.RowIDs[i]), tp.Freqs[i])
		}
		pl.seal()
		postings[tp.Token] = pl
	}

	docLengths := make(map[model.RowID]uint32, len(state.RowIDs))
	for i := range state.RowIDs {
		docLengths[model.RowID(state.RowIDs[i])] = state.DocLengths[i]
	}

	fragments := roaring.New()
	fragments.AddMany(state.Fragments)

	return newPartition(model.PartitionID(state.ID), postings, docLengths, state.NumTokens, fragments), nil
}

// indexMeta is the serialized index-level metadata blob: the tokenizer
// configuration the index was built with and the live partition list.
type indexMeta struct {
	Version         int              `json:"version"`
	Tokenizer       tokenizer.Config `json:"tokenizer"`
	PartitionIDs    []uint64         `json:"partition_ids"`
	NextPartitionID uint64           `json:"next_partition_id"`
}

// SaveMeta atomically replaces the index metadata blob.
func (s *PartitionStore) SaveMeta(ctx context.Context, meta indexMeta) error {
	payload, err := s.codec.Marshal(meta)
	if err != nil {
		return &StorageError{Op: "meta", cause: err}
	}
	data := encodeEnvelope(s.codec.Name(), CompressionNone, payload)
	if err := s.blobs.Put(ctx, metaBlobName, data); err != nil {
		return &StorageError{Op: "meta", cause: err}
	}
	return nil
}

// LoadMeta reads the index metadata blob. A missing blob surfaces as
// blobstore.ErrNotFound via errors.Is.
func (s *PartitionStore) LoadMeta(ctx context.Context) (indexMeta, error) {
	var meta indexMeta

	b, err := s.blobs.Open(ctx, metaBlobName)
	if err != nil {
		return meta, err
	}
	defer b.Close()

	data, err := blobstore.ReadAll(b)
	if err != nil {
		return meta, &StorageError{Op: "meta", cause: err}
	}

	codecName, compName, payload, err := decodeEnvelope(data)
	if err != nil {
		return meta, &DeserializationError{What: "index metadata", cause: err}
	}
	c, ok := codec.ByName(codecName)
	if !ok {
		return meta, &DeserializationError{What: "index metadata", cause: fmt.Errorf("unknown codec %q", codecName)}
	}
	raw, err := decompress(compName, payload)
	if err != nil {
		return meta, &DeserializationError{What: "index metadata", cause: err}
	}
	if err := c.Unmarshal(raw, &meta); err != nil {
		return meta, &DeserializationError{What: "index metadata", cause: err}
	}
	return meta, nil
}

// Envelope layout: magic, version byte, uvarint-length codec name,
// uvarint-length compression name, payload.
func encodeEnvelope(codecName, compName string, payload []byte) []byte {
	buf := make([]byte, 0, 4+1+2+len(codecName)+2+len(compName)+len(payload))
	buf = append(buf, blobMagic[:]...)
	buf = append(buf, blobVersion)
	buf = binary.AppendUvarint(buf, uint64(len(codecName)))
	buf = append(buf, codecName...)
	buf = binary.AppendUvarint(buf, uint64(len(compName)))
	buf = append(buf, compName...)
	buf = append(buf, payload...)
	return buf
}

func decodeEnvelope(data []byte) (codecName, compName string, payload []byte, err error) {
	if len(data) < 5 || !bytes.Equal(data[:4], blobMagic[:]) {
		return "", "", nil, fmt.Errorf("bad blob magic")
	}
	if data[4] != blobVersion {
		return "", "", nil, fmt.Errorf("unsupported blob version %d", data[4])
	}
	rest := data[5:]

	readString := func() (string, error) {
		n, sz := binary.Uvarint(rest)
		if sz <= 0 || uint64(len(rest)-sz) < n {
			return "", fmt.Errorf("truncated blob header")
		}
		s := string(rest[sz : sz+int(n)])
		rest = rest[sz+int(n):]
		return s, nil
	}

	if codecName, err = readString(); err != nil {
		return "", "", nil, err
	}
	if compName, err = readString(); err != nil {
		return "", "", nil, err
	}
	return codecName, compName, rest, nil
}

var (
	zstdEncoder, _ = zstd.NewWriter(nil)
	zstdDecoder, _ = zstd.NewReader(nil)
)

func compress(name string, data []byte) ([]byte, error) {
	switch name {
	case CompressionZstd:
		return zstdEncoder.EncodeAll(data, nil), nil
	case CompressionLZ4:
		var buf bytes.Buffer
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case CompressionNone:
		return data, nil
	default:
		return nil, fmt.Errorf("unknown compression %q", name)
	}
}

func decompress(name string, data []byte) ([]byte, error) {
	switch name {
	case CompressionZstd:
		return zstdDecoder.DecodeAll(data, nil)
	case CompressionLZ4:
		return io.ReadAll(lz4.NewReader(bytes.NewReader(data)))
	case CompressionNone:
		return data, nil
	default:
		return nil, fmt.Errorf("unknown compression %q", name)
	}
}
