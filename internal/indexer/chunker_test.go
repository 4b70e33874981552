package indexer

import (
	"reflect"
	"strings"
	"testing"

	"github.com/hyperjump/cardex/internal/models"
)

// reassemble drops the overlap from every chunk but the first and concatenates.
func reassemble(chunks []models.Chunk, overlap int) string {
	var b strings.Builder
	for i, ch := range chunks {
		r := []rune(ch.Text)
		if i > 0 {
			r = r[overlap:]
		}
		b.WriteString(string(r))
	}
	return b.String()
}

func sampleText(words int) string {
	labels := []string{"Name:", "Ahmed", "Al", "Mansoori", "ID", "Number:", "784-1985-1234567-1", "Nationality:", "United", "Arab", "Emirates"}
	parts := make([]string, words)
	for i := range parts {
		parts[i] = labels[i%len(labels)]
	}
	return strings.Join(parts, " ")
}

func TestChunker_Reconstructs(t *testing.T) {
	inputs := []string{
		sampleText(10),
		sampleText(400),
		strings.Repeat("x", 2000), // no whitespace: hard cuts
		"Ünïcödé نص عربي " + sampleText(300),
		strings.Repeat("a ", 700),
	}
	c := NewChunker(DefaultChunkSize, DefaultChunkOverlap)
	for i, in := range inputs {
		chunks := c.Split(in)
		if got := reassemble(chunks, c.Overlap()); got != in {
			t.Errorf("input %d: reassembled text differs (len %d vs %d)", i, len([]rune(got)), len([]rune(in)))
		}
	}
}

func TestChunker_ZeroOverlap(t *testing.T) {
	c := NewChunker(64, 0)
	if c.Overlap() != 0 {
		t.Fatalf("overlap = %d, want 0", c.Overlap())
	}
	text := sampleText(200)
	chunks := c.Split(text)
	if len(chunks) < 2 {
		t.Fatalf("expected several chunks, got %d", len(chunks))
	}
	if got := reassemble(chunks, 0); got != text {
		t.Error("chunks without overlap should concatenate to the input")
	}
	for i := 1; i < len(chunks); i++ {
		prev := chunks[i-1]
		if chunks[i].Start != prev.Start+len([]rune(prev.Text)) {
			t.Errorf("chunk %d starts at %d, previous ends at %d", i, chunks[i].Start, prev.Start+len([]rune(prev.Text)))
		}
	}
}

func TestChunker_WindowInvariants(t *testing.T) {
	c := NewChunker(64, 8)
	text := sampleText(200)
	chunks := c.Split(text)
	if len(chunks) < 2 {
		t.Fatalf("expected several chunks, got %d", len(chunks))
	}
	runes := []rune(text)
	for i, ch := range chunks {
		if ch.Index != i {
			t.Errorf("chunk %d Index=%d", i, ch.Index)
		}
		if ch.RuneLen() > 64 {
			t.Errorf("chunk %d too long: %d", i, ch.RuneLen())
		}
		if got := string(runes[ch.Start : ch.Start+ch.RuneLen()]); got != ch.Text {
			t.Errorf("chunk %d Start=%d does not locate its text", i, ch.Start)
		}
		if i > 0 {
			prev := chunks[i-1]
			if prevEnd := prev.Start + prev.RuneLen(); ch.Start != prevEnd-8 {
				t.Errorf("chunk %d starts at %d, want %d", i, ch.Start, prevEnd-8)
			}
		}
	}
}

func TestChunker_ShortTextSingleChunk(t *testing.T) {
	c := NewChunker(DefaultChunkSize, DefaultChunkOverlap)
	for _, n := range []int{1, 100, 512} {
		text := strings.Repeat("z", n)
		chunks := c.Split(text)
		if len(chunks) != 1 {
			t.Errorf("len %d: expected 1 chunk, got %d", n, len(chunks))
			continue
		}
		if chunks[0].Text != text || chunks[0].Start != 0 {
			t.Errorf("len %d: unexpected chunk %+v", n, chunks[0])
		}
	}
	if got := len(c.Split(strings.Repeat("z", 513))); got != 2 {
		t.Errorf("513 runes: expected 2 chunks, got %d", got)
	}
}

func TestChunker_ChunkEmpty(t *testing.T) {
	c := NewChunker(DefaultChunkSize, DefaultChunkOverlap)
	chunks := c.Split("")
	if chunks != nil {
		t.Errorf("empty text should return nil, got %v", chunks)
	}
}

func TestChunker_Deterministic(t *testing.T) {
	c := NewChunker(DefaultChunkSize, DefaultChunkOverlap)
	text := sampleText(500)
	a := c.Split(text)
	b := c.Split(text)
	if !reflect.DeepEqual(a, b) {
		t.Error("same input should give identical chunks")
	}
}

func TestChunker_PrefersWhitespaceBoundary(t *testing.T) {
	c := NewChunker(20, 4)
	chunks := c.Split("Employer: ACME Trading LLC Occupation: Engineer")
	last := []rune(chunks[0].Text)
	if r := last[len(last)-1]; r != ' ' {
		t.Errorf("first chunk should end on whitespace, got %q", chunks[0].Text)
	}
}

func TestNewChunker_ClampsOverlap(t *testing.T) {
	c := NewChunker(10, 10)
	if c.Overlap() >= c.Size() {
		t.Errorf("overlap %d must be smaller than size %d", c.Overlap(), c.Size())
	}
	d := NewChunker(0, -1)
	if d.Size() != DefaultChunkSize {
		t.Errorf("default size: got %d", d.Size())
	}
}

func TestPreprocess(t *testing.T) {
	in := "  Name:  Ahmed   \r\n\r\n\r\n\r\nＩＤ：１２３\t\n"
	want := "  Name:  Ahmed\n\nID:123"
	if got := Preprocess(in); got != want {
		t.Errorf("Preprocess() = %q, want %q", got, want)
	}
	if Preprocess(" \n\t\n") != "" {
		t.Error("blank input should normalize to empty")
	}
}
