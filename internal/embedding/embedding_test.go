package embedding

import (
	"context"
	"math"
	"testing"
)

func TestNewDeterministicRejectsBadDims(t *testing.T) {
	if _, err := NewDeterministic(0); err == nil {
		t.Fatal("expected error for zero dimensions")
	}
	if _, err := NewDeterministic(-3); err == nil {
		t.Fatal("expected error for negative dimensions")
	}
}

func TestGenerateDeterminism(t *testing.T) {
	gen, err := NewDeterministic(128)
	if err != nil {
		t.Fatalf("NewDeterministic: %v", err)
	}
	ctx := context.Background()

	a, err := gen.Generate(ctx, "the quick brown fox jumps over the lazy dog")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	b, err := gen.Generate(ctx, "the quick brown fox jumps over the lazy dog")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(a) != 128 || len(b) != 128 {
		t.Fatalf("expected 128-dim vectors, got %d and %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("vectors differ at %d: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestGenerateUnitNorm(t *testing.T) {
	gen, _ := NewDeterministic(384)
	vec, err := gen.Generate(context.Background(), "semantic retrieval over chunked documents")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	if math.Abs(norm-1.0) > 1e-2 {
		t.Fatalf("expected unit norm, got %v", norm)
	}
}

func TestGenerateDistinctTexts(t *testing.T) {
	gen, _ := NewDeterministic(256)
	ctx := context.Background()
	a, _ := gen.Generate(ctx, "postgres vector similarity search")
	b, _ := gen.Generate(ctx, "cooking pasta with garlic and olive oil")
	same := true
	for i := range a {
		if a[i] != b[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatal("distinct texts produced identical vectors")
	}
}

func TestGenerateEmptyText(t *testing.T) {
	gen, _ := NewDeterministic(64)
	vec, err := gen.Generate(context.Background(), "   ")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(vec) != 64 {
		t.Fatalf("expected 64-dim vector, got %d", len(vec))
	}
	for i, v := range vec {
		if v != 0 {
			t.Fatalf("expected zero vector for blank text, found %v at %d", v, i)
		}
	}
}
