package vector

import (
	"context"
	"math"
	"testing"
)

func TestMemoryIndex_AddSearch(t *testing.T) {
	idx, err := NewMemoryIndex(3)
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()
	ctx := context.Background()

	vecs := [][]float32{
		{1, 0, 0},
		{0.9, 0.1, 0},
		{0, 1, 0},
	}
	ids := []string{"a", "b", "c"}
	if err := idx.Add(ctx, ids, vecs); err != nil {
		t.Fatal(err)
	}
	if idx.Size() != 3 {
		t.Errorf("Size=%d", idx.Size())
	}

	results, err := idx.Search(ctx, []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ID != "a" || results[1].ID != "b" {
		t.Errorf("unexpected order %s, %s", results[0].ID, results[1].ID)
	}
}

func TestMemoryIndex_TiesKeepInsertionOrder(t *testing.T) {
	idx, _ := NewMemoryIndex(2)
	ctx := context.Background()
	_ = idx.Add(ctx, []string{"first", "second", "third"}, [][]float32{{0, 1}, {0, 2}, {0, 3}})
	for run := 0; run < 5; run++ {
		results, err := idx.Search(ctx, []float32{0, 1}, 3)
		if err != nil {
			t.Fatal(err)
		}
		if results[0].ID != "first" || results[1].ID != "second" || results[2].ID != "third" {
			t.Fatalf("tie order not stable: %s %s %s", results[0].ID, results[1].ID, results[2].ID)
		}
	}
}

func TestMemoryIndex_InfersDimensions(t *testing.T) {
	idx, _ := NewMemoryIndex(0)
	ctx := context.Background()
	if err := idx.Add(ctx, []string{"x"}, [][]float32{{1, 2, 3, 4}}); err != nil {
		t.Fatal(err)
	}
	if idx.Dimensions() != 4 {
		t.Errorf("Dimensions=%d, want 4", idx.Dimensions())
	}
	if err := idx.Add(ctx, []string{"y"}, [][]float32{{1}}); err == nil {
		t.Error("expected dimension mismatch")
	}
}

func TestMemoryIndex_KBounds(t *testing.T) {
	idx, _ := NewMemoryIndex(2)
	ctx := context.Background()
	_ = idx.Add(ctx, []string{"x", "y"}, [][]float32{{1, 0}, {0, 1}})
	res, _ := idx.Search(ctx, []float32{1, 0}, 10)
	if len(res) != 2 {
		t.Errorf("k larger than size should return all, got %d", len(res))
	}
	res, _ = idx.Search(ctx, []float32{1, 0}, 0)
	if res != nil {
		t.Errorf("k=0 should return nil")
	}
}

func TestCosineSimilarity(t *testing.T) {
	if got := CosineSimilarity([]float32{2, 0}, []float32{5, 0}); math.Abs(got-1) > 1e-9 {
		t.Errorf("parallel vectors: %f", got)
	}
	if got := CosineSimilarity([]float32{1, 0}, []float32{0, 1}); got != 0 {
		t.Errorf("orthogonal vectors: %f", got)
	}
	if got := CosineSimilarity([]float32{0, 0}, []float32{1, 1}); got != 0 {
		t.Errorf("zero vector: %f", got)
	}
	if got := CosineSimilarity([]float32{1}, []float32{1, 2}); got != 0 {
		t.Errorf("length mismatch: %f", got)
	}
}
