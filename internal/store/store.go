// Package store persists documents, chunks and memory records in Postgres
// with pgvector similarity indexes.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	_ "github.com/lib/pq"
	"go.opentelemetry.io/otel"
	otelmetric "go.opentelemetry.io/otel/metric"
)

type Store struct {
	DB *sql.DB
}

// ErrDimensionMismatch is returned when schema init is attempted with a
// vector dimensionality different from the one already baked into the
// embedding columns.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// ErrNotFound indicates the requested row does not exist.
var ErrNotFound = errors.New("not found")

var (
	metricsOnce    sync.Once
	chunkCounter   otelmetric.Int64Counter
	tokenCounter   otelmetric.Int64Counter
	metricsInitErr error
)

func initStoreMetrics() {
	meter := otel.Meter("store")
	var err error
	chunkCounter, err = meter.Int64Counter("chunks_stored_total")
	if err != nil {
		metricsInitErr = err
		return
	}
	tokenCounter, err = meter.Int64Counter("tokens_stored_total")
	if err != nil {
		metricsInitErr = err
	}
}

func recordChunksStored(ctx context.Context, chunks, tokens int64) {
	metricsOnce.Do(initStoreMetrics)
	if metricsInitErr != nil {
		return
	}
	chunkCounter.Add(ctx, chunks)
	tokenCounter.Add(ctx, tokens)
}

// NewWithDSN constructs the Store using an explicit Postgres DSN.
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

// Ping probes storage connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.DB.PingContext(ctx)
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.DB.Close()
}

// EnsureSchema creates the document, chunk and memory tables along with their
// similarity and full-text indexes. It is idempotent for the same dims; a
// second call with a different dims is rejected rather than silently leaving
// the column width out of step with the configuration.
func (s *Store) EnsureSchema(ctx context.Context, dims int) error {
	if dims <= 0 {
		return fmt.Errorf("vector dimensions must be > 0, got %d", dims)
	}
	if err := s.checkExistingDimensions(ctx, dims); err != nil {
		return err
	}
	if _, err := s.DB.ExecContext(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return fmt.Errorf("create vector extension: %w", err)
	}
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS documents (
    id BIGSERIAL PRIMARY KEY,
    source_path TEXT NOT NULL UNIQUE,
    content_hash TEXT NOT NULL,
    indexed_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`,
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS chunks (
    id BIGSERIAL PRIMARY KEY,
    document_id BIGINT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    chunk_index INT NOT NULL,
    chunk_text TEXT NOT NULL,
    token_count INT NOT NULL,
    embedding vector(%d),
    UNIQUE (document_id, chunk_index)
)`, dims),
		`CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks (document_id)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_embedding ON chunks USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_text_fts ON chunks USING GIN (to_tsvector('english', chunk_text))`,
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS memories (
    id UUID PRIMARY KEY,
    session_id TEXT NOT NULL DEFAULT '',
    project_id TEXT NOT NULL DEFAULT '',
    memory_type TEXT NOT NULL CHECK (memory_type IN ('episodic','semantic','procedural')),
    content TEXT NOT NULL,
    tags TEXT[] NOT NULL DEFAULT '{}',
    embedding vector(%d),
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`, dims),
		`CREATE INDEX IF NOT EXISTS idx_memories_embedding ON memories USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100)`,
		`CREATE INDEX IF NOT EXISTS idx_memories_tags ON memories USING GIN (tags)`,
		`CREATE INDEX IF NOT EXISTS idx_memories_scope ON memories (project_id, session_id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// checkExistingDimensions compares dims against the width already recorded in
// pg_attribute for the chunks embedding column. For pgvector columns atttypmod
// carries the declared dimension.
func (s *Store) checkExistingDimensions(ctx context.Context, dims int) error {
	row := s.DB.QueryRowContext(ctx, `
SELECT a.atttypmod
FROM pg_attribute a
JOIN pg_class c ON a.attrelid = c.oid
WHERE c.relname = 'chunks' AND a.attname = 'embedding'
`)
	var existing int
	switch err := row.Scan(&existing); {
	case errors.Is(err, sql.ErrNoRows):
		return nil
	case err != nil:
		return fmt.Errorf("probe embedding column: %w", err)
	}
	if existing > 0 && existing != dims {
		return fmt.Errorf("%w: schema has %d, configured %d", ErrDimensionMismatch, existing, dims)
	}
	return nil
}

func encodeVectorLiteral(vec []float32) (string, error) {
	if len(vec) == 0 {
		return "", fmt.Errorf("vector must not be empty")
	}
	var builder strings.Builder
	builder.WriteByte('[')
	for i, f := range vec {
		if i > 0 {
			builder.WriteByte(',')
		}
		builder.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	builder.WriteByte(']')
	return builder.String(), nil
}

func decodeVectorLiteral(lit string) ([]float32, error) {
	lit = strings.TrimSpace(lit)
	if lit == "" {
		return nil, fmt.Errorf("empty vector literal")
	}
	lit = strings.TrimPrefix(lit, "[")
	lit = strings.TrimSuffix(lit, "]")
	parts := strings.Split(lit, ",")
	vec := make([]float32, 0, len(parts))
	for _, part := range parts {
		value := strings.TrimSpace(part)
		if value == "" {
			continue
		}
		f, err := strconv.ParseFloat(value, 32)
		if err != nil {
			return nil, fmt.Errorf("parse vector value %q: %w", value, err)
		}
		vec = append(vec, float32(f))
	}
	return vec, nil
}
