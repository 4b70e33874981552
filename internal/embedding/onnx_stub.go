//go:build !cgo
// +build !cgo

package embedding

import (
	"context"
	"errors"
)

var errNoCGO = errors.New("onnx embedder is unavailable: build with CGO_ENABLED=1 and the onnxruntime library")

// ONNXEmbedder is unavailable without CGO; every method fails.
type ONNXEmbedder struct{}

// NewONNXEmbedder always fails in builds without CGO.
func NewONNXEmbedder(string, string, int, int) (*ONNXEmbedder, error) { return nil, errNoCGO }

func (*ONNXEmbedder) Embed(context.Context, string) ([]float32, error) { return nil, errNoCGO }

func (*ONNXEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, errNoCGO
}

func (*ONNXEmbedder) Dimensions() int { return 0 }

func (*ONNXEmbedder) Close() error { return nil }
