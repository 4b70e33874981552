package embedding

import (
	"hash/fnv"
	"strings"
)

// Tokenizer produces the three BERT-style model inputs, padded to maxTokens.
type Tokenizer interface {
	Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64, err error)
}

// Reserved token IDs of BERT vocabularies.
const (
	tokenPad = 0
	tokenCLS = 101
	tokenSEP = 102

	// firstWordToken keeps hashed words clear of the reserved range.
	firstWordToken  = 1000
	defaultVocab    = 30522
	defaultMaxToken = 256
)

// HashTokenizer maps each word to a token ID by hashing it into the
// vocabulary. It is only meaningful with models trained on the same hashing
// vocabulary, or when the embedding is used for chunk-to-query similarity
// within one request.
type HashTokenizer struct {
	VocabSize int
}

// Tokenize splits text into words (lowercased, punctuation dropped), wraps
// them in [CLS] ... [SEP] and pads with zeros. Words past maxTokens-2 are cut.
func (t *HashTokenizer) Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64, err error) {
	if maxTokens <= 2 {
		maxTokens = defaultMaxToken
	}
	vocab := t.VocabSize
	if vocab <= firstWordToken {
		vocab = defaultVocab
	}
	inputIDs = make([]int64, maxTokens)
	attentionMask = make([]int64, maxTokens)
	tokenTypeIDs = make([]int64, maxTokens)

	put := func(pos int, id int64) {
		inputIDs[pos] = id
		attentionMask[pos] = 1
	}
	put(0, tokenCLS)
	pos := 1
	for _, word := range SplitWords(strings.Map(foldRune, text)) {
		if pos == maxTokens-1 {
			break
		}
		put(pos, int64(firstWordToken+HashString(word)%(vocab-firstWordToken)))
		pos++
	}
	put(pos, tokenSEP)
	return inputIDs, attentionMask, tokenTypeIDs, nil
}

// SplitWords splits text on whitespace and returns the non-empty words, or nil.
func SplitWords(text string) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	return words
}

// HashString returns a deterministic non-negative 31-bit FNV-1a hash of s.
func HashString(s string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return int(h.Sum32() & 0x7fffffff)
}
