package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"go.uber.org/zap"
)

const (
	DefaultModel   = "gpt-4o-mini"
	DefaultTimeout = 45 * time.Second
)

// ErrEmptyCompletion is returned when the model answers with no choices.
var ErrEmptyCompletion = errors.New("model returned no choices")

// OpenAIGenerator implements Generator with the Chat Completions API.
type OpenAIGenerator struct {
	client      openai.Client
	model       string
	temperature float64
	timeout     time.Duration
	logger      *zap.Logger
}

// GeneratorOption configures an OpenAIGenerator.
type GeneratorOption func(*OpenAIGenerator)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) GeneratorOption {
	return func(g *OpenAIGenerator) { g.logger = l }
}

// WithModel sets the chat model name.
func WithModel(model string) GeneratorOption {
	return func(g *OpenAIGenerator) {
		if model != "" {
			g.model = model
		}
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) GeneratorOption {
	return func(g *OpenAIGenerator) { g.temperature = t }
}

// WithTimeout sets the hard deadline of one Generate call, retries included.
func WithTimeout(d time.Duration) GeneratorOption {
	return func(g *OpenAIGenerator) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// NewOpenAIGenerator creates a generator on top of client.
func NewOpenAIGenerator(client openai.Client, opts ...GeneratorOption) *OpenAIGenerator {
	g := &OpenAIGenerator{
		client:  client,
		model:   DefaultModel,
		timeout: DefaultTimeout,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate sends prompt as a single user message and returns the first choice's content.
func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(g.model),
		Messages:    []openai.ChatCompletionMessageParamUnion{openai.UserMessage(prompt)},
		Temperature: openai.Float(g.temperature),
	})
	if err != nil {
		err = Classify(err)
		g.logger.Warn("chat completion failed",
			zap.String("model", g.model),
			zap.Int64("elapsed_ms", time.Since(start).Milliseconds()),
			zap.Error(err))
		return "", fmt.Errorf("generate: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	g.logger.Debug("chat completion",
		zap.String("model", g.model),
		zap.Int("prompt_len", len(prompt)),
		zap.Int("answer_len", len(content)),
		zap.Int64("elapsed_ms", time.Since(start).Milliseconds()))
	return content, nil
}
