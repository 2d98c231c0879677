// Package search turns free text into ranked chunk retrievals. It embeds the
// query with the same generator used at index time and delegates ranking to
// the vector store.
package search

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/contextforge/corpus/internal/embedding"
	"github.com/contextforge/corpus/internal/store"
)

// ErrEmptyQuery is returned for blank query text, before any I/O.
var ErrEmptyQuery = errors.New("query text must not be empty")

// Searcher is the store surface the query service needs.
type Searcher interface {
	Search(ctx context.Context, vector []float32, topK int) ([]store.SearchResult, error)
	GetChunk(ctx context.Context, id int64) (store.ChunkRecord, error)
}

// Options carries retrieval defaults and ceilings.
type Options struct {
	DefaultTopK   int
	MaxTopK       int
	SnippetLength int
}

// Result is one ranked hit with a display snippet alongside the full text.
type Result struct {
	ChunkID    int64   `json:"chunk_id"`
	SourcePath string  `json:"source_path"`
	ChunkIndex int     `json:"chunk_index"`
	Snippet    string  `json:"snippet"`
	Text       string  `json:"text"`
	TokenCount int     `json:"token_count"`
	Score      float64 `json:"score"`
}

type Service struct {
	searcher Searcher
	gen      embedding.Generator
	opts     Options
	logger   *log.Logger
}

func New(searcher Searcher, gen embedding.Generator, opts Options, logger *log.Logger) *Service {
	if opts.DefaultTopK <= 0 {
		opts.DefaultTopK = 5
	}
	if opts.MaxTopK < opts.DefaultTopK {
		opts.MaxTopK = opts.DefaultTopK
	}
	if opts.SnippetLength <= 0 {
		opts.SnippetLength = 240
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[SEARCH] ", log.LstdFlags)
	}
	return &Service{searcher: searcher, gen: gen, opts: opts, logger: logger}
}

// Query embeds text and returns the topK closest chunks. topK <= 0 falls back
// to the default, values above the ceiling are clamped.
func (s *Service) Query(ctx context.Context, text string, topK int) ([]Result, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyQuery
	}
	topK = s.clampTopK(topK)

	vec, err := s.gen.Generate(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	started := time.Now()
	hits, err := s.searcher.Search(ctx, vec, topK)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	s.logger.Printf("query returned %d hits in %s", len(hits), time.Since(started).Round(time.Millisecond))

	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		results = append(results, Result{
			ChunkID:    h.ChunkID,
			SourcePath: h.SourcePath,
			ChunkIndex: h.ChunkIndex,
			Snippet:    snippet(h.Text, s.opts.SnippetLength),
			Text:       h.Text,
			TokenCount: h.TokenCount,
			Score:      h.Score,
		})
	}
	return results, nil
}

// Similar ranks chunks against the stored embedding of an existing chunk.
func (s *Service) Similar(ctx context.Context, chunkID int64, topK int) ([]Result, error) {
	rec, err := s.searcher.GetChunk(ctx, chunkID)
	if err != nil {
		return nil, err
	}
	topK = s.clampTopK(topK)
	hits, err := s.searcher.Search(ctx, rec.Embedding, topK+1)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	results := make([]Result, 0, topK)
	for _, h := range hits {
		if h.ChunkID == chunkID {
			continue
		}
		if len(results) == topK {
			break
		}
		results = append(results, Result{
			ChunkID:    h.ChunkID,
			SourcePath: h.SourcePath,
			ChunkIndex: h.ChunkIndex,
			Snippet:    snippet(h.Text, s.opts.SnippetLength),
			Text:       h.Text,
			TokenCount: h.TokenCount,
			Score:      h.Score,
		})
	}
	return results, nil
}

func (s *Service) clampTopK(topK int) int {
	if topK <= 0 {
		return s.opts.DefaultTopK
	}
	if topK > s.opts.MaxTopK {
		return s.opts.MaxTopK
	}
	return topK
}

// snippet truncates on a rune boundary and marks the cut.
func snippet(text string, limit int) string {
	trimmed := strings.Join(strings.Fields(text), " ")
	if len(trimmed) <= limit {
		return trimmed
	}
	runes := []rune(trimmed)
	if len(runes) <= limit {
		return trimmed
	}
	return string(runes[:limit]) + "..."
}
