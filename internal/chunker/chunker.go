// Package chunker splits raw text into overlapping token-bounded windows.
package chunker

import "strings"

// DefaultChunkSize is the default number of tokens per chunk.
const DefaultChunkSize = 400

// DefaultOverlap is the default number of overlapping tokens between chunks.
const DefaultOverlap = 80

// Chunk is one bounded window of a document's text, the unit of embedding
// and retrieval.
type Chunk struct {
	Index      int
	Text       string
	TokenCount int
}

// Split breaks text into successive windows of chunkSize tokens, advancing
// the window start by chunkSize-overlap tokens each step. Tokenization is a
// plain whitespace split. Empty or whitespace-only text yields no chunks.
//
// An overlap at or above chunkSize would stall the window; it is treated as
// advance-by-1 so the walk always makes forward progress.
func Split(text string, chunkSize, overlap int) []Chunk {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return nil
	}

	step := chunkSize - overlap
	if step < 1 {
		step = 1
	}

	var chunks []Chunk
	for start := 0; start < len(tokens); start += step {
		end := start + chunkSize
		if end > len(tokens) {
			end = len(tokens)
		}
		window := tokens[start:end]
		chunks = append(chunks, Chunk{
			Index:      len(chunks),
			Text:       strings.Join(window, " "),
			TokenCount: len(window),
		})
		if end == len(tokens) {
			break
		}
	}
	return chunks
}
