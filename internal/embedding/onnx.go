//go:build cgo
// +build cgo

package embedding

import (
	"context"
	"fmt"
	"sync"

	"github.com/hyperjump/cardex/pkg/utils"
	ort "github.com/yalue/onnxruntime_go"
)

var (
	onnxInputs  = []string{"input_ids", "attention_mask", "token_type_ids"}
	onnxOutputs = []string{"output"}
)

// ONNXEmbedder runs a local sentence-embedding model with ONNX Runtime, for
// deployments where OCR text must not leave the host. It needs CGO and the
// onnxruntime shared library.
type ONNXEmbedder struct {
	mu         sync.Mutex
	session    *ort.AdvancedSession
	tokenizer  Tokenizer
	dimensions int
	maxTokens  int

	// The session reads and writes these tensors on every Run.
	inputs []*ort.Tensor[int64]
	output *ort.Tensor[float32]
}

// NewONNXEmbedder loads the model at modelPath. The model must take
// input_ids, attention_mask and token_type_ids of shape [1, maxTokens] and
// produce a pooled "output" of shape [1, dimensions]. tokenizerPath names the
// model's tokenizer.json; when empty, words are hashed into the vocabulary.
func NewONNXEmbedder(modelPath, tokenizerPath string, dimensions, maxTokens int) (*ONNXEmbedder, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("onnx embedder needs positive dimensions, got %d", dimensions)
	}
	if maxTokens <= 2 {
		maxTokens = defaultMaxToken
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("initialize onnx runtime: %w", err)
		}
	}

	var tok Tokenizer = &HashTokenizer{}
	if tokenizerPath != "" {
		pt, err := LoadPretrainedTokenizer(tokenizerPath)
		if err != nil {
			return nil, err
		}
		tok = pt
	}
	e := &ONNXEmbedder{
		tokenizer:  tok,
		dimensions: dimensions,
		maxTokens:  maxTokens,
	}
	inputShape := ort.NewShape(1, int64(maxTokens))
	for _, name := range onnxInputs {
		t, err := ort.NewEmptyTensor[int64](inputShape)
		if err != nil {
			_ = e.Close()
			return nil, fmt.Errorf("create %s tensor: %w", name, err)
		}
		e.inputs = append(e.inputs, t)
	}
	out, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(dimensions)))
	if err != nil {
		_ = e.Close()
		return nil, fmt.Errorf("create output tensor: %w", err)
	}
	e.output = out

	inputs := make([]ort.ArbitraryTensor, len(e.inputs))
	for i, t := range e.inputs {
		inputs[i] = t
	}
	session, err := ort.NewAdvancedSession(modelPath, onnxInputs, onnxOutputs, inputs, []ort.ArbitraryTensor{out}, nil)
	if err != nil {
		_ = e.Close()
		return nil, fmt.Errorf("load onnx model %s: %w", modelPath, err)
	}
	e.session = session
	return e, nil
}

// Embed runs one inference. The session tensors are shared, so calls are serialized.
func (e *ONNXEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil, fmt.Errorf("onnx embedder is closed")
	}

	ids, mask, types, err := e.tokenizer.Tokenize(text, e.maxTokens)
	if err != nil {
		return nil, err
	}
	for i, data := range [][]int64{ids, mask, types} {
		copy(e.inputs[i].GetData(), data)
	}
	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("onnx inference: %w", err)
	}

	emb := make([]float32, e.dimensions)
	copy(emb, e.output.GetData())
	utils.NormalizeL2(emb)
	return emb, nil
}

// EmbedBatch embeds texts one at a time.
func (e *ONNXEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = emb
	}
	return out, nil
}

// Dimensions returns the embedding dimension.
func (e *ONNXEmbedder) Dimensions() int { return e.dimensions }

// Close destroys the session and its tensors. It is safe to call twice.
func (e *ONNXEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var err error
	if e.session != nil {
		err = e.session.Destroy()
		e.session = nil
	}
	for _, t := range e.inputs {
		_ = t.Destroy()
	}
	e.inputs = nil
	if e.output != nil {
		_ = e.output.Destroy()
		e.output = nil
	}
	return err
}
