package embedding

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/hyperjump/cardex/internal/llm"
	"github.com/openai/openai-go"
	"go.uber.org/zap"
)

const (
	DefaultOpenAIModel = "text-embedding-3-small"
	// maxBatchInputs is the API limit on inputs per embeddings request.
	maxBatchInputs = 2048
)

// OpenAIEmbedder calls the hosted embeddings API.
type OpenAIEmbedder struct {
	client     openai.Client
	model      string
	dimensions int
	observed   atomic.Int64
	logger     *zap.Logger
}

// OpenAIOption configures an OpenAIEmbedder.
type OpenAIOption func(*OpenAIEmbedder)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) OpenAIOption {
	return func(e *OpenAIEmbedder) { e.logger = l }
}

// NewOpenAIEmbedder creates an embedder for model. A positive dimensions value
// is forwarded to the API (text-embedding-3 models can shorten vectors); zero
// keeps the model's native size, learned from the first response.
func NewOpenAIEmbedder(client openai.Client, model string, dimensions int, opts ...OpenAIOption) *OpenAIEmbedder {
	if model == "" {
		model = DefaultOpenAIModel
	}
	e := &OpenAIEmbedder{
		client:     client,
		model:      model,
		dimensions: dimensions,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Embed returns the embedding for a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts, splitting into API-sized requests. Output order
// matches input order.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for start := 0; start < len(texts); start += maxBatchInputs {
		end := start + maxBatchInputs
		if end > len(texts) {
			end = len(texts)
		}
		if err := e.embedRange(ctx, texts[start:end], out[start:end]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (e *OpenAIEmbedder) embedRange(ctx context.Context, texts []string, out [][]float32) error {
	params := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: openai.EmbeddingModel(e.model),
	}
	if e.dimensions > 0 {
		params.Dimensions = openai.Int(int64(e.dimensions))
	}
	resp, err := e.client.Embeddings.New(ctx, params)
	if err != nil {
		err = llm.Classify(err)
		e.logger.Warn("embedding request failed", zap.String("model", e.model), zap.Int("inputs", len(texts)), zap.Error(err))
		return fmt.Errorf("embed: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return fmt.Errorf("embed: expected %d embeddings, got %d", len(texts), len(resp.Data))
	}
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= len(out) {
			return fmt.Errorf("embed: response index %d out of range", d.Index)
		}
		vec := make([]float32, len(d.Embedding))
		for i, v := range d.Embedding {
			vec[i] = float32(v)
		}
		out[d.Index] = vec
	}
	if len(resp.Data) > 0 {
		e.observed.Store(int64(len(resp.Data[0].Embedding)))
	}
	return nil
}

// Dimensions returns the configured dimension, or the one observed in the
// last response when none was configured (0 before the first call).
func (e *OpenAIEmbedder) Dimensions() int {
	if e.dimensions > 0 {
		return e.dimensions
	}
	return int(e.observed.Load())
}

// Close is a no-op; the HTTP client is shared.
func (e *OpenAIEmbedder) Close() error {
	return nil
}
