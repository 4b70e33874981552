package indexer

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/hyperjump/cardex/internal/embedding"
	"github.com/hyperjump/cardex/internal/keyword"
	"github.com/hyperjump/cardex/internal/models"
	"github.com/hyperjump/cardex/internal/vector"
	"go.uber.org/zap"
)

const chunkIDPrefix = "chunk-"

// ChunkID returns the index ID for the chunk at position i.
func ChunkID(i int) string {
	return chunkIDPrefix + strconv.Itoa(i)
}

// ChunkPosition parses an ID produced by ChunkID.
func ChunkPosition(id string) (int, bool) {
	if !strings.HasPrefix(id, chunkIDPrefix) {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimPrefix(id, chunkIDPrefix))
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// Index is an ephemeral similarity index over the chunks of one document.
// It is built per card side and discarded after the query completes.
type Index struct {
	chunks   []models.Chunk
	vectors  *vector.MemoryIndex
	keywords *keyword.BleveIndex
}

// Chunks returns the indexed chunks in original order.
func (i *Index) Chunks() []models.Chunk { return i.chunks }

// Chunk returns the chunk for an index ID.
func (i *Index) Chunk(id string) (models.Chunk, bool) {
	pos, ok := ChunkPosition(id)
	if !ok || pos >= len(i.chunks) {
		return models.Chunk{}, false
	}
	return i.chunks[pos], true
}

// Vectors returns the semantic index.
func (i *Index) Vectors() vector.VectorIndex { return i.vectors }

// Keywords returns the keyword index, or nil when the index was built without one.
func (i *Index) Keywords() keyword.KeywordIndex {
	if i.keywords == nil {
		return nil
	}
	return i.keywords
}

// Len returns the number of indexed chunks.
func (i *Index) Len() int { return len(i.chunks) }

// Close releases the underlying indices.
func (i *Index) Close() error {
	var err error
	if i.vectors != nil {
		err = i.vectors.Close()
	}
	if i.keywords != nil {
		if kerr := i.keywords.Close(); kerr != nil && err == nil {
			err = kerr
		}
	}
	return err
}

// Indexer embeds chunks and builds an Index.
type Indexer struct {
	embedder    embedding.Embedder
	withKeyword bool
	logger      *zap.Logger
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) { idx.logger = l }
}

// WithKeywordIndex makes Index also build an in-memory keyword index, used by
// hybrid retrieval.
func WithKeywordIndex() IndexerOption {
	return func(idx *Indexer) { idx.withKeyword = true }
}

// NewIndexer creates an indexer backed by embedder.
func NewIndexer(embedder embedding.Embedder, opts ...IndexerOption) *Indexer {
	idx := &Indexer{
		embedder: embedder,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// Index embeds all chunks in one batch and returns a ready-to-query Index.
// Embedding failures are returned wrapped; they carry the embedder's
// classification (e.g. models.ErrServiceUnavailable).
func (idx *Indexer) Index(ctx context.Context, chunks []models.Chunk) (*Index, error) {
	vecIndex, err := vector.NewMemoryIndex(idx.embedder.Dimensions())
	if err != nil {
		return nil, fmt.Errorf("create vector index: %w", err)
	}
	out := &Index{chunks: chunks, vectors: vecIndex}
	if len(chunks) == 0 {
		return out, nil
	}

	texts := make([]string, len(chunks))
	ids := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
		ids[i] = ChunkID(i)
	}
	embeddings, err := idx.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		_ = out.Close()
		return nil, fmt.Errorf("failed to generate embeddings: %w", err)
	}
	if err := vecIndex.Add(ctx, ids, embeddings); err != nil {
		_ = out.Close()
		return nil, fmt.Errorf("failed to index vectors: %w", err)
	}

	if idx.withKeyword {
		kw, err := keyword.NewMemoryIndex()
		if err != nil {
			_ = out.Close()
			return nil, fmt.Errorf("failed to create keyword index: %w", err)
		}
		out.keywords = kw
		for i, ch := range chunks {
			if err := kw.Index(ctx, ids[i], ch.Text); err != nil {
				_ = out.Close()
				return nil, fmt.Errorf("failed to index keywords: %w", err)
			}
		}
	}

	idx.logger.Debug("index built",
		zap.Int("chunks", len(chunks)),
		zap.Int("dimensions", vecIndex.Dimensions()),
		zap.Bool("keyword", idx.withKeyword))
	return out, nil
}
