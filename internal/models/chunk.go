// Package models defines the core data structures shared by the extraction pipeline:
// card sides, queries, text chunks and extracted records.
package models

// Chunk is an ordered window of a document's text used for retrieval.
// Start is the rune offset of Text within the source text.
type Chunk struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
	Start int    `json:"start"`
}

// RuneLen returns the length of the chunk text in runes.
func (c Chunk) RuneLen() int {
	return len([]rune(c.Text))
}
