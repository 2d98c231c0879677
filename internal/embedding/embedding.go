// Package embedding maps text to fixed-length numeric vectors for similarity
// comparison.
package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
)

// Generator produces a fixed-dimension vector for a piece of text. The store's
// vector column width is fixed at schema-creation time, so every
// implementation must return vectors of exactly Dimensions() length and must
// be deterministic for identical input.
type Generator interface {
	Generate(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// Deterministic is a reproducible numeric projection of text: token shingles
// are hashed into vector positions and the result is L2-normalized. It stands
// in for a learned embedding model while keeping "unchanged content hash
// implies unchanged embedding" true without recomputation.
type Deterministic struct {
	dims int
}

// NewDeterministic returns a generator emitting vectors of the given length.
func NewDeterministic(dims int) (*Deterministic, error) {
	if dims <= 0 {
		return nil, fmt.Errorf("embedding dimensions must be > 0, got %d", dims)
	}
	return &Deterministic{dims: dims}, nil
}

// Dimensions returns the fixed vector length.
func (d *Deterministic) Dimensions() int { return d.dims }

// Generate computes the vector for text. Same (text, dimensions) input always
// yields the identical vector: no external state, no randomness.
func (d *Deterministic) Generate(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, d.dims)
	tokens := strings.Fields(strings.ToLower(text))
	if len(tokens) == 0 {
		return vec, nil
	}

	accumulate := func(shingle string, weight float32) {
		h := fnv.New64a()
		_, _ = h.Write([]byte(shingle))
		sum := h.Sum64()
		idx := int(sum % uint64(d.dims))
		// Low bit of the upper half decides the sign so buckets cancel
		// rather than only grow.
		if (sum>>32)&1 == 0 {
			vec[idx] += weight
		} else {
			vec[idx] -= weight
		}
	}

	for i, tok := range tokens {
		accumulate(tok, 1.0)
		if i+1 < len(tokens) {
			accumulate(tok+" "+tokens[i+1], 0.5)
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		inv := 1.0 / math.Sqrt(norm)
		for i := range vec {
			vec[i] = float32(float64(vec[i]) * inv)
		}
	}
	return vec, nil
}
