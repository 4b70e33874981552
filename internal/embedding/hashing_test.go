package embedding

import (
	"context"
	"testing"
)

func cosine(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

func TestHashingEmbedder_Deterministic(t *testing.T) {
	e := NewHashingEmbedder(64)
	ctx := context.Background()
	a, _ := e.Embed(ctx, "Card Number 784-1985")
	b, _ := e.Embed(ctx, "Card Number 784-1985")
	for i := range a {
		if a[i] != b[i] {
			t.Fatal("same text must embed identically")
		}
	}
	if len(a) != e.Dimensions() {
		t.Errorf("len=%d, want %d", len(a), e.Dimensions())
	}
}

func TestHashingEmbedder_SharedWordsScoreHigher(t *testing.T) {
	e := NewHashingEmbedder(256)
	ctx := context.Background()
	q, _ := e.Embed(ctx, "Occupation Employer")
	near, _ := e.Embed(ctx, "Occupation: Engineer\nEmployer: ACME")
	far, _ := e.Embed(ctx, "Date of Birth 01/02/1985")
	if cosine(q, near) <= cosine(q, far) {
		t.Errorf("related text should be closer: near=%f far=%f", cosine(q, near), cosine(q, far))
	}
}

func TestHashingEmbedder_UnitLength(t *testing.T) {
	e := NewHashingEmbedder(32)
	v, _ := e.Embed(context.Background(), "Name Ahmed")
	n := cosine(v, v)
	if n < 0.999 || n > 1.001 {
		t.Errorf("norm^2 = %f", n)
	}
	empty, _ := e.Embed(context.Background(), " -- ")
	for _, x := range empty {
		if x != 0 {
			t.Fatal("punctuation-only text should embed to the zero vector")
		}
	}
}

func TestHashingEmbedder_RespectsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewHashingEmbedder(8).EmbedBatch(ctx, []string{"x"}); err == nil {
		t.Error("expected context error")
	}
}
