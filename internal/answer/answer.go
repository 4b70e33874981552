// Package answer builds the retrieval-augmented prompt for one card side and
// asks the generative model to answer it.
package answer

import (
	"context"
	"fmt"
	"strings"

	"github.com/hyperjump/cardex/internal/llm"
	"github.com/hyperjump/cardex/internal/models"
	"go.uber.org/zap"
)

// Instruction opens every prompt.
const Instruction = "Use the following context to answer the question. " +
	"Return only the requested fields as a single JSON object, with no extra text."

// Answerer turns a query and its retrieved context into raw model output.
type Answerer struct {
	generator llm.Generator
	logger    *zap.Logger
}

// AnswererOption configures an Answerer.
type AnswererOption func(*Answerer)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) AnswererOption {
	return func(a *Answerer) { a.logger = l }
}

// NewAnswerer creates an answerer that sends prompts to generator.
func NewAnswerer(generator llm.Generator, opts ...AnswererOption) *Answerer {
	a := &Answerer{generator: generator, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Answer builds the prompt from chunks (in retrieved order) and returns the
// model's raw text. The output is not validated here.
func (a *Answerer) Answer(ctx context.Context, query models.Query, chunks []models.Chunk) (string, error) {
	prompt := BuildPrompt(query, chunks)
	out, err := a.generator.Generate(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("answer %s query: %w", query.Side, err)
	}
	a.logger.Debug("answered",
		zap.String("side", string(query.Side)),
		zap.Int("context_chunks", len(chunks)),
		zap.Int("answer_len", len(out)))
	return out, nil
}

// BuildPrompt lays out instruction, context and question. Context chunks are
// separated by blank lines.
func BuildPrompt(query models.Query, chunks []models.Chunk) string {
	var b strings.Builder
	b.WriteString(Instruction)
	b.WriteString("\n\nContext:\n")
	for i, ch := range chunks {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(ch.Text)
	}
	b.WriteString("\n\nQuestion: ")
	b.WriteString(query.Text)
	b.WriteString("\nAnswer:")
	return b.String()
}
