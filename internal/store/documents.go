package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/lib/pq"
)

// UpsertStatus reports what UpsertDocument did with the supplied content.
type UpsertStatus string

const (
	// StatusUnchanged means the stored content hash matched and nothing was
	// written, not even a timestamp bump.
	StatusUnchanged UpsertStatus = "unchanged"
	// StatusUpdated means the document row and its full chunk set were
	// (re)written.
	StatusUpdated UpsertStatus = "updated"
)

// ChunkInput is one chunk ready for persistence.
type ChunkInput struct {
	Index      int
	Text       string
	TokenCount int
	Embedding  []float32
}

// ChunkRecord is a stored chunk annotated with its parent document.
type ChunkRecord struct {
	ID         int64
	SourcePath string
	ChunkIndex int
	Text       string
	TokenCount int
	Embedding  []float32
}

// SearchResult is a ranked chunk hit. Score is 1 - cosine distance.
type SearchResult struct {
	ChunkID    int64
	SourcePath string
	ChunkIndex int
	Text       string
	TokenCount int
	Score      float64
}

// SourceInfo is the read projection over one indexed source.
type SourceInfo struct {
	SourcePath string
	ChunkCount int
	IndexedAt  time.Time
}

// IndexStats summarises the indexed corpus.
type IndexStats struct {
	Documents    int64
	Chunks       int64
	Tokens       int64
	StorageBytes int64
}

// NormalizeResult reports what NormalizeSourcePaths changed.
type NormalizeResult struct {
	Renamed int
	Removed int
}

// UpsertDocument writes a document and its full chunk set atomically.
// An existing row with an identical content hash is left untouched and
// reported as unchanged. A changed hash replaces the entire chunk set inside
// the same transaction; readers never observe a partial set.
func (s *Store) UpsertDocument(ctx context.Context, sourcePath, contentHash string, chunks []ChunkInput) (status UpsertStatus, err error) {
	if strings.TrimSpace(sourcePath) == "" {
		return "", fmt.Errorf("source path required")
	}
	if strings.TrimSpace(contentHash) == "" {
		return "", fmt.Errorf("content hash required")
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var (
		docID        int64
		existingHash string
	)
	row := tx.QueryRowContext(ctx, `SELECT id, content_hash FROM documents WHERE source_path=$1 FOR UPDATE`, sourcePath)
	switch scanErr := row.Scan(&docID, &existingHash); {
	case scanErr == nil:
		if existingHash == contentHash {
			_ = tx.Rollback()
			return StatusUnchanged, nil
		}
		if _, err = tx.ExecContext(ctx, `UPDATE documents SET content_hash=$1, indexed_at=NOW() WHERE id=$2`, contentHash, docID); err != nil {
			return "", fmt.Errorf("update document: %w", err)
		}
		if _, err = tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id=$1`, docID); err != nil {
			return "", fmt.Errorf("delete existing chunks: %w", err)
		}
	case errors.Is(scanErr, sql.ErrNoRows):
		if err = tx.QueryRowContext(ctx, `INSERT INTO documents (source_path, content_hash, indexed_at) VALUES ($1,$2,NOW()) RETURNING id`, sourcePath, contentHash).Scan(&docID); err != nil {
			return "", fmt.Errorf("insert document: %w", err)
		}
	default:
		err = scanErr
		return "", fmt.Errorf("lookup document: %w", err)
	}

	var tokens int64
	for _, c := range chunks {
		var vecLiteral string
		vecLiteral, err = encodeVectorLiteral(c.Embedding)
		if err != nil {
			return "", fmt.Errorf("encode embedding for chunk %d: %w", c.Index, err)
		}
		if _, err = tx.ExecContext(ctx, `
INSERT INTO chunks (document_id, chunk_index, chunk_text, token_count, embedding)
VALUES ($1,$2,$3,$4,$5::vector)
`, docID, c.Index, c.Text, c.TokenCount, vecLiteral); err != nil {
			return "", fmt.Errorf("insert chunk %d: %w", c.Index, err)
		}
		tokens += int64(c.TokenCount)
	}

	if err = tx.Commit(); err != nil {
		return "", err
	}
	recordChunksStored(ctx, int64(len(chunks)), tokens)
	return StatusUpdated, nil
}

// Search ranks all chunks by cosine distance to the query vector and returns
// the topK closest, highest score first. No minimum-score floor is applied.
func (s *Store) Search(ctx context.Context, vector []float32, topK int) ([]SearchResult, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("vector must not be empty")
	}
	if topK <= 0 {
		topK = 5
	}
	vecLiteral, err := encodeVectorLiteral(vector)
	if err != nil {
		return nil, err
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT c.id, d.source_path, c.chunk_index, c.chunk_text, c.token_count, c.embedding <=> $1::vector AS distance
FROM chunks c
JOIN documents d ON d.id = c.document_id
ORDER BY c.embedding <=> $1::vector
LIMIT $2
`, vecLiteral, topK)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var (
			res      SearchResult
			distance float64
		)
		if err := rows.Scan(&res.ChunkID, &res.SourcePath, &res.ChunkIndex, &res.Text, &res.TokenCount, &distance); err != nil {
			return nil, err
		}
		res.Score = 1 - distance
		results = append(results, res)
	}
	return results, rows.Err()
}

// GetChunk fetches a single chunk by id, including its stored embedding.
func (s *Store) GetChunk(ctx context.Context, id int64) (ChunkRecord, error) {
	if id <= 0 {
		return ChunkRecord{}, fmt.Errorf("chunk id must be positive")
	}
	row := s.DB.QueryRowContext(ctx, `
SELECT c.id, d.source_path, c.chunk_index, c.chunk_text, c.token_count, c.embedding::text
FROM chunks c
JOIN documents d ON d.id = c.document_id
WHERE c.id=$1
`, id)
	var (
		rec        ChunkRecord
		vecLiteral string
	)
	if err := row.Scan(&rec.ID, &rec.SourcePath, &rec.ChunkIndex, &rec.Text, &rec.TokenCount, &vecLiteral); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ChunkRecord{}, ErrNotFound
		}
		return ChunkRecord{}, err
	}
	vec, err := decodeVectorLiteral(vecLiteral)
	if err != nil {
		return ChunkRecord{}, fmt.Errorf("decode stored embedding: %w", err)
	}
	rec.Embedding = vec
	return rec, nil
}

// ListSources returns per-source chunk counts and latest index timestamps,
// most recently indexed first.
func (s *Store) ListSources(ctx context.Context, limit int) ([]SourceInfo, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT d.source_path, COUNT(c.id), d.indexed_at
FROM documents d
LEFT JOIN chunks c ON c.document_id = d.id
GROUP BY d.id, d.source_path, d.indexed_at
ORDER BY d.indexed_at DESC
LIMIT $1
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SourceInfo
	for rows.Next() {
		var info SourceInfo
		if err := rows.Scan(&info.SourcePath, &info.ChunkCount, &info.IndexedAt); err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

// DeleteSource removes one document and, via cascade, its chunks. The bool
// reports whether a row existed.
func (s *Store) DeleteSource(ctx context.Context, sourcePath string) (bool, error) {
	if strings.TrimSpace(sourcePath) == "" {
		return false, fmt.Errorf("source path required")
	}
	res, err := s.DB.ExecContext(ctx, `DELETE FROM documents WHERE source_path=$1`, sourcePath)
	if err != nil {
		return false, fmt.Errorf("delete source: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// PurgeAll removes every document and chunk. Returns the number of documents
// removed.
func (s *Store) PurgeAll(ctx context.Context) (int64, error) {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM documents`)
	if err != nil {
		return 0, fmt.Errorf("purge documents: %w", err)
	}
	return res.RowsAffected()
}

// Stats reports document/chunk/token counts plus the on-disk size of the two
// core relations.
func (s *Store) Stats(ctx context.Context) (IndexStats, error) {
	var st IndexStats
	row := s.DB.QueryRowContext(ctx, `
SELECT
  (SELECT COUNT(*) FROM documents),
  (SELECT COUNT(*) FROM chunks),
  (SELECT COALESCE(SUM(token_count), 0) FROM chunks)
`)
	if err := row.Scan(&st.Documents, &st.Chunks, &st.Tokens); err != nil {
		return IndexStats{}, fmt.Errorf("index stats: %w", err)
	}
	// Size is best-effort; some roles cannot stat relations.
	sizeRow := s.DB.QueryRowContext(ctx, `SELECT pg_total_relation_size('documents') + pg_total_relation_size('chunks')`)
	var size int64
	if err := sizeRow.Scan(&size); err == nil {
		st.StorageBytes = size
	}
	return st, nil
}

type documentRow struct {
	id        int64
	path      string
	indexedAt time.Time
}

// NormalizeSourcePaths rewrites every stored source path to its canonical
// form relative to projectRoot and collapses duplicates that normalize to the
// same canonical path. Within a duplicate group the row with the most recent
// indexed_at wins (ties broken by highest id); the rest are deleted and their
// chunks cascade. Safe to re-run: a second pass finds no duplicates and
// renames nothing.
func (s *Store) NormalizeSourcePaths(ctx context.Context, projectRoot string) (result NormalizeResult, err error) {
	if strings.TrimSpace(projectRoot) == "" {
		return NormalizeResult{}, fmt.Errorf("project root required")
	}

	rows, err := s.DB.QueryContext(ctx, `SELECT id, source_path, indexed_at FROM documents ORDER BY id`)
	if err != nil {
		return NormalizeResult{}, fmt.Errorf("list documents: %w", err)
	}
	groups := make(map[string][]documentRow)
	var order []string
	for rows.Next() {
		var r documentRow
		if err := rows.Scan(&r.id, &r.path, &r.indexedAt); err != nil {
			rows.Close()
			return NormalizeResult{}, err
		}
		canon := CanonicalSourcePath(r.path, projectRoot)
		if _, seen := groups[canon]; !seen {
			order = append(order, canon)
		}
		groups[canon] = append(groups[canon], r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return NormalizeResult{}, err
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return NormalizeResult{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, canon := range order {
		group := groups[canon]
		winner := group[0]
		for _, cand := range group[1:] {
			if cand.indexedAt.After(winner.indexedAt) ||
				(cand.indexedAt.Equal(winner.indexedAt) && cand.id > winner.id) {
				winner = cand
			}
		}
		var loserIDs []int64
		for _, cand := range group {
			if cand.id != winner.id {
				loserIDs = append(loserIDs, cand.id)
			}
		}
		if len(loserIDs) > 0 {
			if _, err = tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ANY($1)`, pq.Array(loserIDs)); err != nil {
				return NormalizeResult{}, fmt.Errorf("remove duplicates of %s: %w", canon, err)
			}
			result.Removed += len(loserIDs)
		}
		if winner.path != canon {
			if _, err = tx.ExecContext(ctx, `UPDATE documents SET source_path=$1 WHERE id=$2`, canon, winner.id); err != nil {
				return NormalizeResult{}, fmt.Errorf("rename %s: %w", winner.path, err)
			}
			result.Renamed++
		}
	}

	if err = tx.Commit(); err != nil {
		return NormalizeResult{}, err
	}
	return result, nil
}

// CanonicalSourcePath computes the canonical form of a stored source path.
// URLs and synthetic keys (anything carrying a scheme) pass through untouched.
// Filesystem paths are cleaned, made relative to projectRoot when they fall
// under it, and use forward slashes.
func CanonicalSourcePath(path, projectRoot string) string {
	if strings.Contains(path, "://") {
		return path
	}
	clean := filepath.Clean(path)
	if projectRoot != "" {
		root := filepath.Clean(projectRoot)
		if rel, err := filepath.Rel(root, clean); err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			clean = rel
		}
	}
	return filepath.ToSlash(clean)
}
