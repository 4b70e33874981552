package search

import (
	"sort"

	"github.com/hyperjump/cardex/internal/keyword"
	"github.com/hyperjump/cardex/internal/vector"
)

// FusedResult holds a chunk ID and fused keyword/semantic scores.
type FusedResult struct {
	ChunkID       string
	Score         float64
	KeywordScore  float64
	SemanticScore float64
}

// NormalizeKeywordScores normalizes keyword scores to [0,1] by max.
func NormalizeKeywordScores(results []*keyword.KeywordResult) map[string]float64 {
	if len(results) == 0 {
		return make(map[string]float64)
	}
	maxScore := results[0].Score
	for _, r := range results {
		if r.Score > maxScore {
			maxScore = r.Score
		}
	}
	normalized := make(map[string]float64)
	for _, r := range results {
		if maxScore > 0 {
			normalized[r.ID] = r.Score / maxScore
		} else {
			normalized[r.ID] = 0
		}
	}
	return normalized
}

// NormalizeSemanticScores clamps cosine scores to [0,1]; anti-correlated
// chunks count as unrelated.
func NormalizeSemanticScores(results []*vector.VectorResult) map[string]float64 {
	normalized := make(map[string]float64)
	for _, r := range results {
		s := r.Score
		if s < 0 {
			s = 0
		}
		normalized[r.ID] = s
	}
	return normalized
}

// Fuse merges keyword and semantic score maps with weights. ids fixes the
// candidate set and the tie order: equal scores keep the order of ids.
func Fuse(ids []string, keywordScores, semanticScores map[string]float64, keywordWeight, semanticWeight float64) []*FusedResult {
	results := make([]*FusedResult, 0, len(ids))
	for _, id := range ids {
		kw, sem := keywordScores[id], semanticScores[id]
		results = append(results, &FusedResult{
			ChunkID:       id,
			KeywordScore:  kw,
			SemanticScore: sem,
			Score:         (keywordWeight * kw) + (semanticWeight * sem),
		})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return results
}
