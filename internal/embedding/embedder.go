// Package embedding turns text into vectors: the hosted OpenAI embeddings API,
// a local ONNX model, or a deterministic hashing embedder for offline use.
package embedding

import "context"

// Embedder produces vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

// Provider names accepted in configuration.
const (
	ProviderOpenAI  = "openai"
	ProviderONNX    = "onnx"
	ProviderHashing = "hashing"
)
