package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Memory record types.
const (
	MemoryTypeEpisodic   = "episodic"
	MemoryTypeSemantic   = "semantic"
	MemoryTypeProcedural = "procedural"
)

// ValidMemoryType reports whether t is one of the accepted memory types.
func ValidMemoryType(t string) bool {
	switch t {
	case MemoryTypeEpisodic, MemoryTypeSemantic, MemoryTypeProcedural:
		return true
	}
	return false
}

// MemoryRecord is an auxiliary record stored with the same vector mechanics
// as chunks but with an independent lifecycle.
type MemoryRecord struct {
	ID        string
	SessionID string
	ProjectID string
	Type      string
	Content   string
	Tags      []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// MemorySearchResult is a ranked memory hit. Score is 1 - cosine distance; it
// is zero for recency-fallback results.
type MemorySearchResult struct {
	MemoryRecord
	Score float64
}

// MemoryFilter narrows list/search operations. Empty fields match everything.
type MemoryFilter struct {
	SessionID string
	ProjectID string
	Type      string
	Tag       string
	Limit     int
}

// MemoryUpdate carries a partial field replace. Nil fields are left as-is.
// Embedding must be supplied when, and only when, Content changes.
type MemoryUpdate struct {
	Content   *string
	Type      *string
	Tags      []string
	Embedding []float32
}

// CreateMemory inserts a memory record with its embedding. A missing ID is
// generated.
func (s *Store) CreateMemory(ctx context.Context, rec MemoryRecord, vector []float32) (MemoryRecord, error) {
	if strings.TrimSpace(rec.Content) == "" {
		return MemoryRecord{}, fmt.Errorf("memory content required")
	}
	if !ValidMemoryType(rec.Type) {
		return MemoryRecord{}, fmt.Errorf("invalid memory type %q", rec.Type)
	}
	vecLiteral, err := encodeVectorLiteral(vector)
	if err != nil {
		return MemoryRecord{}, err
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Tags == nil {
		rec.Tags = []string{}
	}
	row := s.DB.QueryRowContext(ctx, `
INSERT INTO memories (id, session_id, project_id, memory_type, content, tags, embedding, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7::vector,NOW(),NOW())
RETURNING created_at, updated_at
`, rec.ID, rec.SessionID, rec.ProjectID, rec.Type, rec.Content, pq.Array(rec.Tags), vecLiteral)
	if err := row.Scan(&rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return MemoryRecord{}, fmt.Errorf("insert memory: %w", err)
	}
	return rec, nil
}

// ListMemories returns memories matching the filter, most recent first.
func (s *Store) ListMemories(ctx context.Context, f MemoryFilter) ([]MemoryRecord, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, session_id, project_id, memory_type, content, tags, created_at, updated_at
FROM memories
WHERE ($1 = '' OR session_id = $1)
  AND ($2 = '' OR project_id = $2)
  AND ($3 = '' OR memory_type = $3)
  AND ($4 = '' OR $4 = ANY(tags))
ORDER BY created_at DESC
LIMIT $5
`, f.SessionID, f.ProjectID, f.Type, f.Tag, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MemoryRecord
	for rows.Next() {
		var rec MemoryRecord
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.ProjectID, &rec.Type, &rec.Content, pq.Array(&rec.Tags), &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// SearchMemories ranks memories by cosine distance to the query vector,
// scoped by the filter. When semantic search returns nothing the most recent
// matching records are returned instead so callers always get context.
func (s *Store) SearchMemories(ctx context.Context, vector []float32, f MemoryFilter) ([]MemorySearchResult, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("vector must not be empty")
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 10
	}
	vecLiteral, err := encodeVectorLiteral(vector)
	if err != nil {
		return nil, err
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, session_id, project_id, memory_type, content, tags, created_at, updated_at, embedding <=> $1::vector AS distance
FROM memories
WHERE embedding IS NOT NULL
  AND ($2 = '' OR session_id = $2)
  AND ($3 = '' OR project_id = $3)
  AND ($4 = '' OR memory_type = $4)
  AND ($5 = '' OR $5 = ANY(tags))
ORDER BY embedding <=> $1::vector
LIMIT $6
`, vecLiteral, f.SessionID, f.ProjectID, f.Type, f.Tag, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []MemorySearchResult
	for rows.Next() {
		var (
			res      MemorySearchResult
			distance float64
		)
		if err := rows.Scan(&res.ID, &res.SessionID, &res.ProjectID, &res.Type, &res.Content, pq.Array(&res.Tags), &res.CreatedAt, &res.UpdatedAt, &distance); err != nil {
			return nil, err
		}
		res.Score = 1 - distance
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(results) > 0 {
		return results, nil
	}

	recent, err := s.ListMemories(ctx, f)
	if err != nil {
		return nil, err
	}
	for _, rec := range recent {
		results = append(results, MemorySearchResult{MemoryRecord: rec})
	}
	return results, nil
}

// UpdateMemory applies a partial field replace. The embedding is rewritten
// only when the content changes.
func (s *Store) UpdateMemory(ctx context.Context, id string, upd MemoryUpdate) (MemoryRecord, error) {
	if strings.TrimSpace(id) == "" {
		return MemoryRecord{}, fmt.Errorf("memory id required")
	}
	if upd.Type != nil && !ValidMemoryType(*upd.Type) {
		return MemoryRecord{}, fmt.Errorf("invalid memory type %q", *upd.Type)
	}
	if upd.Content != nil && len(upd.Embedding) == 0 {
		return MemoryRecord{}, fmt.Errorf("embedding required when content changes")
	}

	sets := []string{"updated_at = NOW()"}
	args := []interface{}{id}
	if upd.Content != nil {
		args = append(args, *upd.Content)
		sets = append(sets, fmt.Sprintf("content = $%d", len(args)))
		vecLiteral, err := encodeVectorLiteral(upd.Embedding)
		if err != nil {
			return MemoryRecord{}, err
		}
		args = append(args, vecLiteral)
		sets = append(sets, fmt.Sprintf("embedding = $%d::vector", len(args)))
	}
	if upd.Type != nil {
		args = append(args, *upd.Type)
		sets = append(sets, fmt.Sprintf("memory_type = $%d", len(args)))
	}
	if upd.Tags != nil {
		args = append(args, pq.Array(upd.Tags))
		sets = append(sets, fmt.Sprintf("tags = $%d", len(args)))
	}

	query := fmt.Sprintf(`
UPDATE memories SET %s
WHERE id = $1
RETURNING id, session_id, project_id, memory_type, content, tags, created_at, updated_at
`, strings.Join(sets, ", "))
	var rec MemoryRecord
	row := s.DB.QueryRowContext(ctx, query, args...)
	if err := row.Scan(&rec.ID, &rec.SessionID, &rec.ProjectID, &rec.Type, &rec.Content, pq.Array(&rec.Tags), &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return MemoryRecord{}, ErrNotFound
		}
		return MemoryRecord{}, fmt.Errorf("update memory: %w", err)
	}
	return rec, nil
}

// DeleteMemory removes one memory record. The bool reports whether a row
// existed.
func (s *Store) DeleteMemory(ctx context.Context, id string) (bool, error) {
	if strings.TrimSpace(id) == "" {
		return false, fmt.Errorf("memory id required")
	}
	res, err := s.DB.ExecContext(ctx, `DELETE FROM memories WHERE id=$1`, id)
	if err != nil {
		return false, fmt.Errorf("delete memory: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
