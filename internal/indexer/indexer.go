// Package indexer orchestrates crawling, chunking and embedding of text
// content into the store.
package indexer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-shiori/go-readability"

	"github.com/contextforge/corpus/internal/chunker"
	"github.com/contextforge/corpus/internal/embedding"
	"github.com/contextforge/corpus/internal/store"
)

// DocumentWriter is the slice of the store the indexer writes through.
type DocumentWriter interface {
	UpsertDocument(ctx context.Context, sourcePath, contentHash string, chunks []store.ChunkInput) (store.UpsertStatus, error)
}

// Options bounds what the crawl picks up.
type Options struct {
	ChunkSize         int
	ChunkOverlap      int
	IncludeExtensions []string
	ExcludeDirs       []string
	MaxFileSizeBytes  int64
	FetchTimeout      time.Duration
	MaxFetchChars     int
}

// Summary reports the outcome of a batch operation. Batch operations always
// return a summary, even when some items failed.
type Summary struct {
	Indexed       int `json:"indexed"`
	Unchanged     int `json:"unchanged"`
	Skipped       int `json:"skipped"`
	ChunksIndexed int `json:"chunks_indexed"`
}

// Indexer drives the chunk/embed/upsert pipeline.
type Indexer struct {
	writer DocumentWriter
	gen    embedding.Generator
	opts   Options
	logger *log.Logger
	client *http.Client
}

// New wires an Indexer. A nil logger falls back to the process logger.
func New(writer DocumentWriter, gen embedding.Generator, opts Options, logger *log.Logger) *Indexer {
	if logger == nil {
		logger = log.New(log.Writer(), "[INDEXER] ", log.LstdFlags)
	}
	timeout := opts.FetchTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Indexer{
		writer: writer,
		gen:    gen,
		opts:   opts,
		logger: logger,
		client: &http.Client{Timeout: timeout},
	}
}

// IndexDirectory walks root sequentially and indexes every eligible file.
// Per-file failures are converted into skips; one bad file never aborts the
// batch.
func (ix *Indexer) IndexDirectory(ctx context.Context, root string) (Summary, error) {
	var summary Summary
	info, err := os.Stat(root)
	if err != nil {
		return summary, fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return summary, fmt.Errorf("%s is not a directory", root)
	}

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			summary.Skipped++
			ix.logger.Printf("skip %s: %v", path, err)
			return nil
		}
		if d.IsDir() {
			if ix.excludedDir(d.Name()) && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		// Files outside the extension allow-list are not eligible inputs
		// and do not appear in the summary at all.
		if !ix.allowedExtension(path) {
			return nil
		}
		chunks, err := ix.indexFile(ctx, path)
		switch {
		case err == errEmptyContent || err == errFileTooLarge:
			summary.Skipped++
			ix.logger.Printf("skip %s: %v", path, err)
		case err != nil:
			summary.Skipped++
			ix.logger.Printf("skip %s: %v", path, err)
		case chunks == 0:
			summary.Unchanged++
		default:
			summary.Indexed++
			summary.ChunksIndexed += chunks
		}
		return nil
	})
	if walkErr != nil {
		return summary, walkErr
	}
	ix.logger.Printf("indexed %s: %d documents, %d chunks, %d unchanged, %d skipped",
		root, summary.Indexed, summary.ChunksIndexed, summary.Unchanged, summary.Skipped)
	return summary, nil
}

var (
	errEmptyContent = fmt.Errorf("empty content")
	errFileTooLarge = fmt.Errorf("file exceeds size limit")
)

// indexFile returns the number of chunks written, 0 when the store reported
// the content unchanged.
func (ix *Indexer) indexFile(ctx context.Context, path string) (int, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	if ix.opts.MaxFileSizeBytes > 0 && info.Size() > ix.opts.MaxFileSizeBytes {
		return 0, errFileTooLarge
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return ix.indexContent(ctx, path, string(data))
}

// IndexText ingests raw content under a caller-chosen source key.
func (ix *Indexer) IndexText(ctx context.Context, key, content string) (Summary, error) {
	var summary Summary
	if strings.TrimSpace(key) == "" {
		return summary, fmt.Errorf("source key required")
	}
	chunks, err := ix.indexContent(ctx, key, content)
	switch {
	case err == errEmptyContent:
		summary.Skipped++
		return summary, nil
	case err != nil:
		return summary, err
	case chunks == 0:
		summary.Unchanged++
	default:
		summary.Indexed++
		summary.ChunksIndexed += chunks
	}
	return summary, nil
}

// IndexURL fetches the URL, extracts the readable article text and ingests it
// under the URL (or keyOverride when supplied).
func (ix *Indexer) IndexURL(ctx context.Context, rawURL, keyOverride string) (Summary, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return Summary{}, fmt.Errorf("invalid url %q", rawURL)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Summary{}, err
	}
	resp, err := ix.client.Do(req)
	if err != nil {
		return Summary{}, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Summary{}, fmt.Errorf("fetch %s: status %d", rawURL, resp.StatusCode)
	}

	article, err := readability.FromReader(resp.Body, parsed)
	if err != nil {
		return Summary{}, fmt.Errorf("extract %s: %w", rawURL, err)
	}
	content := article.TextContent
	if ix.opts.MaxFetchChars > 0 && len(content) > ix.opts.MaxFetchChars {
		// Never slice mid-rune; Postgres rejects invalid UTF-8 in TEXT.
		cut := ix.opts.MaxFetchChars
		for cut > 0 && !utf8.RuneStart(content[cut]) {
			cut--
		}
		content = content[:cut]
	}

	key := rawURL
	if strings.TrimSpace(keyOverride) != "" {
		key = keyOverride
	}
	return ix.IndexText(ctx, key, content)
}

// indexContent runs the shared chunk/embed/upsert pipeline. The whole-content
// hash drives change detection; unchanged hashes never touch the chunk set.
func (ix *Indexer) indexContent(ctx context.Context, sourcePath, content string) (int, error) {
	if strings.TrimSpace(content) == "" {
		return 0, errEmptyContent
	}
	sum := sha256.Sum256([]byte(content))
	contentHash := hex.EncodeToString(sum[:])

	pieces := chunker.Split(content, ix.opts.ChunkSize, ix.opts.ChunkOverlap)
	if len(pieces) == 0 {
		return 0, errEmptyContent
	}
	inputs := make([]store.ChunkInput, 0, len(pieces))
	for _, p := range pieces {
		vec, err := ix.gen.Generate(ctx, p.Text)
		if err != nil {
			return 0, fmt.Errorf("embed chunk %d: %w", p.Index, err)
		}
		inputs = append(inputs, store.ChunkInput{
			Index:      p.Index,
			Text:       p.Text,
			TokenCount: p.TokenCount,
			Embedding:  vec,
		})
	}

	status, err := ix.writer.UpsertDocument(ctx, sourcePath, contentHash, inputs)
	if err != nil {
		return 0, err
	}
	if status == store.StatusUnchanged {
		return 0, nil
	}
	return len(inputs), nil
}

func (ix *Indexer) excludedDir(name string) bool {
	for _, ex := range ix.opts.ExcludeDirs {
		if name == ex {
			return true
		}
	}
	return false
}

func (ix *Indexer) allowedExtension(path string) bool {
	if len(ix.opts.IncludeExtensions) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, in := range ix.opts.IncludeExtensions {
		if ext == strings.ToLower(in) {
			return true
		}
	}
	return false
}
