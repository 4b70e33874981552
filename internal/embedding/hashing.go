package embedding

import (
	"context"
	"strings"
	"unicode"

	"github.com/hyperjump/cardex/pkg/utils"
)

// HashingEmbedder is a deterministic feature-hashing embedder. Each word and
// character trigram is hashed into a bucket, so texts sharing words score a
// higher cosine similarity. It needs no network or model and is used for
// development and tests.
type HashingEmbedder struct {
	dimensions int
}

// NewHashingEmbedder returns an embedder that produces embeddings of the given dimensions.
func NewHashingEmbedder(dimensions int) *HashingEmbedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &HashingEmbedder{dimensions: dimensions}
}

// Embed returns a unit-length vector; text without any word yields the zero vector.
func (e *HashingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	emb := make([]float32, e.dimensions)
	words := SplitWords(strings.Map(foldRune, text))
	for _, w := range words {
		e.add(emb, "w:"+w, 1)
		padded := []rune("^" + w + "$")
		for i := 0; i+3 <= len(padded); i++ {
			e.add(emb, "t:"+string(padded[i:i+3]), 0.5)
		}
	}
	utils.NormalizeL2(emb)
	return emb, nil
}

func (e *HashingEmbedder) add(emb []float32, feature string, weight float32) {
	h := HashString(feature)
	if h&1 == 1 {
		weight = -weight
	}
	emb[(h>>1)%e.dimensions] += weight
}

// foldRune lowercases letters and turns punctuation into spaces. Combining
// marks stay, since Thai and Devanagari vowels are marks.
func foldRune(r rune) rune {
	switch {
	case unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r):
		return unicode.ToLower(r)
	default:
		return ' '
	}
}

// EmbedBatch calls Embed for each text.
func (e *HashingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}

// Dimensions returns the embedding dimension.
func (e *HashingEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op for HashingEmbedder.
func (e *HashingEmbedder) Close() error {
	return nil
}
