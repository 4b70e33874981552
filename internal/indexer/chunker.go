// Package indexer splits OCR text into overlapping chunks and builds the
// ephemeral per-request index used for retrieval.
package indexer

import (
	"unicode"

	"github.com/hyperjump/cardex/internal/models"
)

const (
	// DefaultChunkSize is the maximum chunk length in runes.
	DefaultChunkSize = 512
	// DefaultChunkOverlap is the number of runes shared by consecutive chunks.
	DefaultChunkOverlap = 32
)

// Chunker splits text into overlapping rune windows.
type Chunker struct {
	chunkSize    int
	chunkOverlap int
}

// NewChunker creates a chunker with the given size and overlap (in runes).
// A non-positive size falls back to DefaultChunkSize; an overlap that would
// leave no room for progress is reduced to a quarter of the size.
func NewChunker(chunkSize, chunkOverlap int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize-1 {
		chunkOverlap = chunkSize / 4
	}
	return &Chunker{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
	}
}

// Size returns the maximum chunk length in runes.
func (c *Chunker) Size() int { return c.chunkSize }

// Overlap returns the overlap between consecutive chunks in runes.
func (c *Chunker) Overlap() int { return c.chunkOverlap }

// Split cuts text into windows of at most chunkSize runes. Each window after
// the first starts exactly chunkOverlap runes before the end of the previous
// one, so dropping the first chunkOverlap runes of every chunk but the first
// and concatenating reproduces text. Empty text yields nil.
func (c *Chunker) Split(text string) []models.Chunk {
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil
	}
	chunks := make([]models.Chunk, 0, n/(c.chunkSize-c.chunkOverlap)+1)
	start := 0
	for {
		end := start + c.chunkSize
		if end >= n {
			chunks = append(chunks, models.Chunk{
				Index: len(chunks),
				Text:  string(runes[start:]),
				Start: start,
			})
			return chunks
		}
		end = c.boundary(runes, start, end)
		chunks = append(chunks, models.Chunk{
			Index: len(chunks),
			Text:  string(runes[start:end]),
			Start: start,
		})
		start = end - c.chunkOverlap
	}
}

// boundary moves end back so the window finishes on whitespace, keeping the
// window longer than the overlap. Without such a position the cut is hard.
func (c *Chunker) boundary(runes []rune, start, end int) int {
	for i := end; i > start+c.chunkOverlap+1; i-- {
		if unicode.IsSpace(runes[i-1]) {
			return i
		}
	}
	return end
}
