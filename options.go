package lance

import (
	"log/slog"

	"github.com/chenkovsky/lance/blobstore"
	"github.com/chenkovsky/lance/codec"
	"github.com/chenkovsky/lance/inverted"
	"github.com/chenkovsky/lance/resource"
	"github.com/chenkovsky/lance/tokenizer"
)

// Option configures Train and Open.
type Option func(*options)

type options struct {
	tokenizer     tokenizer.Config
	tokenizerSet  bool
	logger        *slog.Logger
	blobs         blobstore.BlobStore
	codec         codec.Codec
	compression   string
	cacheBytes    int64
	rc            *resource.Controller
	batchSize     int
	partitionSize int
}

func defaultOptions() *options {
	return &options{
		tokenizer:   tokenizer.Default(),
		logger:      slog.Default(),
		compression: CompressionZstd,
		codec:       codec.Default,
	}
}

// partitionStore builds the configured partition store, or nil when no
// blob store was supplied.
func (o *options) partitionStore() *inverted.PartitionStore {
	if o.blobs == nil {
		return nil
	}
	return inverted.NewPartitionStore(o.blobs,
		inverted.WithCodec(o.codec),
		inverted.WithCompression(o.compression),
		inverted.WithPartitionCache(o.cacheBytes),
		inverted.WithResourceController(o.rc),
	)
}

// WithTokenizer sets the tokenizer configuration used at build time. It
// is persisted with the index so queries tokenize identically on reopen;
// Open rejects a configuration that conflicts with the stored one.
func WithTokenizer(cfg tokenizer.Config) Option {
	return func(o *options) {
		o.tokenizer = cfg
		o.tokenizerSet = true
	}
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithBlobStore sets where partitions are persisted. Without one the
// index is memory-only and Open is unavailable.
func WithBlobStore(bs blobstore.BlobStore) Option {
	return func(o *options) { o.blobs = bs }
}

// WithCodec sets the codec for newly written blobs.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		if c != nil {
			o.codec = c
		}
	}
}

// WithCompression sets the partition blob compression: CompressionZstd
// (default), CompressionLZ4 or CompressionNone.
func WithCompression(name string) Option {
	return func(o *options) { o.compression = name }
}

// WithPartitionCacheSize bounds the memory spent keeping decoded
// partitions resident, in bytes. Zero disables the cache.
func WithPartitionCacheSize(bytes int64) Option {
	return func(o *options) { o.cacheBytes = bytes }
}

// WithResourceController attaches a resource controller limiting build
// concurrency and storage IO bandwidth.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) { o.rc = rc }
}

// WithBatchSize sets how many rows ingestion pulls per chunk.
func WithBatchSize(n int) Option {
	return func(o *options) { o.batchSize = n }
}

// WithPartitionSize sets the document count at which a partition under
// construction is sealed.
func WithPartitionSize(n int) Option {
	return func(o *options) { o.partitionSize = n }
}
