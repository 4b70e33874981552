package embedding

import (
	"fmt"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
)

// PretrainedTokenizer runs the tokenizer a model was trained with, loaded
// from a HuggingFace tokenizer.json.
type PretrainedTokenizer struct {
	tk *tokenizer.Tokenizer
}

// LoadPretrainedTokenizer reads a tokenizer.json file.
func LoadPretrainedTokenizer(path string) (*PretrainedTokenizer, error) {
	tk, err := pretrained.FromFile(path)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer %s: %w", path, err)
	}
	return &PretrainedTokenizer{tk: tk}, nil
}

// Tokenize encodes text with special tokens and fits it to maxTokens. A long
// encoding is cut and keeps its final token, which is [SEP] for BERT models.
func (t *PretrainedTokenizer) Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64, err error) {
	if maxTokens <= 2 {
		maxTokens = defaultMaxToken
	}
	en, err := t.tk.EncodeSingle(text, true)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("tokenize: %w", err)
	}
	inputIDs = make([]int64, maxTokens)
	attentionMask = make([]int64, maxTokens)
	tokenTypeIDs = make([]int64, maxTokens)
	fitTokens(en.Ids, en.TypeIds, inputIDs, attentionMask, tokenTypeIDs)
	return inputIDs, attentionMask, tokenTypeIDs, nil
}

// fitTokens copies ids and typeIDs into the padded outputs. When ids is
// longer than the outputs, the last id replaces the final kept one.
func fitTokens(ids, typeIDs []int, inputIDs, attentionMask, tokenTypeIDs []int64) {
	n := len(ids)
	if n > len(inputIDs) {
		n = len(inputIDs)
	}
	for i := 0; i < n; i++ {
		inputIDs[i] = int64(ids[i])
		attentionMask[i] = 1
		if i < len(typeIDs) {
			tokenTypeIDs[i] = int64(typeIDs[i])
		}
	}
	if len(ids) > n && n > 0 {
		inputIDs[n-1] = int64(ids[len(ids)-1])
	}
}
