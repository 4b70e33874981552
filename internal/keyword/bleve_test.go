package keyword

import (
	"context"
	"testing"
)

func newTestIndex(t *testing.T) *BleveIndex {
	t.Helper()
	idx, err := NewMemoryIndex()
	if err != nil {
		t.Fatalf("NewMemoryIndex: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	ctx := context.Background()
	docs := map[string]string{
		"chunk-0": "Name: Ahmed Al Mansoori\nNationality: United Arab Emirates",
		"chunk-1": "Card Number 784-1985-1234567-1\nDate of Birth 01/02/1985",
		"chunk-2": "Occupation: Civil Engineer\nEmployer: Emirates Transport",
	}
	for id, text := range docs {
		if err := idx.Index(ctx, id, text); err != nil {
			t.Fatalf("Index: %v", err)
		}
	}
	return idx
}

func TestBleveIndex_SearchFindsContent(t *testing.T) {
	idx := newTestIndex(t)
	results, err := idx.Search(context.Background(), "occupation", 10, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected at least one result for \"occupation\"")
	}
	if results[0].ID != "chunk-2" {
		t.Errorf("first result ID = %q, want chunk-2", results[0].ID)
	}
}

func TestBleveIndex_FuzzyToleratesOCRNoise(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()
	exact, _ := idx.Search(ctx, "0ccupation", 10, nil)
	if len(exact) != 0 {
		t.Fatalf("exact match should miss a misread term, got %d", len(exact))
	}
	fuzzy, err := idx.Search(ctx, "0ccupation", 10, &SearchOptions{FuzzyEnabled: true})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(fuzzy) == 0 || fuzzy[0].ID != "chunk-2" {
		t.Errorf("fuzzy search should find chunk-2, got %v", fuzzy)
	}
}

func TestBleveIndex_DocCountAndLimit(t *testing.T) {
	idx := newTestIndex(t)
	n, err := idx.DocCount()
	if err != nil || n != 3 {
		t.Errorf("DocCount = %d, %v", n, err)
	}
	res, err := idx.Search(context.Background(), "emirates", 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(res) != 1 {
		t.Errorf("limit 1 returned %d hits", len(res))
	}
	res, _ = idx.Search(context.Background(), "emirates", 0, nil)
	if res != nil {
		t.Error("limit 0 should return nil")
	}
}
