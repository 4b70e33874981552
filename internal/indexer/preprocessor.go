package indexer

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Preprocess normalizes OCR output before chunking: NFKC folding (full-width
// digits, ligatures), LF line endings, no trailing spaces, at most one blank
// line in a row. Line structure is kept since label/value pairs on ID cards
// are usually line-based.
func Preprocess(text string) string {
	text = norm.NFKC.String(text)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	lines := strings.Split(text, "\n")
	var b strings.Builder
	blank := 0
	for _, line := range lines {
		line = strings.TrimRight(line, " \t\f\v")
		if strings.TrimSpace(line) == "" {
			blank++
			continue
		}
		if b.Len() > 0 {
			if blank > 0 {
				b.WriteString("\n\n")
			} else {
				b.WriteByte('\n')
			}
		}
		blank = 0
		b.WriteString(line)
	}
	return b.String()
}
