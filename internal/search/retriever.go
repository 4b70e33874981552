// Package search ranks the chunks of an ephemeral index against a query.
package search

import (
	"context"
	"fmt"

	"github.com/hyperjump/cardex/internal/embedding"
	"github.com/hyperjump/cardex/internal/indexer"
	"github.com/hyperjump/cardex/internal/keyword"
	"github.com/hyperjump/cardex/internal/models"
	"github.com/hyperjump/cardex/internal/vector"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultTopK is the number of chunks handed to the answerer.
const DefaultTopK = 4

// Mode selects how chunks are scored.
type Mode string

const (
	ModeSemantic Mode = "semantic"
	ModeHybrid   Mode = "hybrid"
)

// Retriever ranks indexed chunks by similarity to a query.
type Retriever struct {
	embedder       embedding.Embedder
	mode           Mode
	keywordWeight  float64
	semanticWeight float64
	logger         *zap.Logger
}

// RetrieverOption configures a Retriever.
type RetrieverOption func(*Retriever)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) RetrieverOption {
	return func(r *Retriever) { r.logger = l }
}

// WithHybrid enables keyword + semantic fusion with the given weights.
// The index passed to Query must then have been built with a keyword index.
func WithHybrid(keywordWeight, semanticWeight float64) RetrieverOption {
	return func(r *Retriever) {
		r.mode = ModeHybrid
		r.keywordWeight = keywordWeight
		r.semanticWeight = semanticWeight
	}
}

// NewRetriever creates a retriever that embeds queries with embedder. The
// embedder must be the one the index was built with.
func NewRetriever(embedder embedding.Embedder, opts ...RetrieverOption) *Retriever {
	r := &Retriever{
		embedder:       embedder,
		mode:           ModeSemantic,
		semanticWeight: 1,
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Mode returns the scoring mode.
func (r *Retriever) Mode() Mode { return r.mode }

// Query returns up to k chunks, most similar first; equal scores keep chunk
// order. k <= 0 means DefaultTopK. An empty index yields no chunks.
func (r *Retriever) Query(ctx context.Context, idx *indexer.Index, query string, k int) ([]models.Chunk, error) {
	if k <= 0 {
		k = DefaultTopK
	}
	n := idx.Len()
	if n == 0 {
		return nil, nil
	}

	var (
		semantic []*vector.VectorResult
		keywords []*keyword.KeywordResult
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		qvec, err := r.embedder.Embed(gctx, query)
		if err != nil {
			return fmt.Errorf("embed query: %w", err)
		}
		// All chunks are scored so fusion sees every candidate.
		semantic, err = idx.Vectors().Search(gctx, qvec, n)
		if err != nil {
			return fmt.Errorf("vector search: %w", err)
		}
		return nil
	})
	if r.mode == ModeHybrid && idx.Keywords() != nil {
		g.Go(func() error {
			var err error
			keywords, err = idx.Keywords().Search(gctx, query, n, &keyword.SearchOptions{FuzzyEnabled: true})
			if err != nil {
				return fmt.Errorf("keyword search: %w", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ranked := r.rank(idx, semantic, keywords)
	if k > len(ranked) {
		k = len(ranked)
	}
	out := make([]models.Chunk, 0, k)
	for _, id := range ranked[:k] {
		ch, ok := idx.Chunk(id)
		if !ok {
			return nil, fmt.Errorf("index returned unknown chunk %q", id)
		}
		out = append(out, ch)
	}
	r.logger.Debug("retrieved",
		zap.String("mode", string(r.mode)),
		zap.Int("chunks", n),
		zap.Int("k", len(out)))
	return out, nil
}

// rank orders chunk IDs. Semantic results already come stably sorted.
func (r *Retriever) rank(idx *indexer.Index, semantic []*vector.VectorResult, keywords []*keyword.KeywordResult) []string {
	if r.mode != ModeHybrid || keywords == nil {
		ids := make([]string, len(semantic))
		for i, s := range semantic {
			ids[i] = s.ID
		}
		return ids
	}
	candidates := make([]string, idx.Len())
	for i := range candidates {
		candidates[i] = indexer.ChunkID(i)
	}
	fused := Fuse(candidates, NormalizeKeywordScores(keywords), NormalizeSemanticScores(semantic), r.keywordWeight, r.semanticWeight)
	ids := make([]string, len(fused))
	for i, f := range fused {
		ids[i] = f.ChunkID
	}
	return ids
}
