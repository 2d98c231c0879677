package store

import (
	"context"
	"errors"
	"math"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return &Store{DB: db}, mock
}

const docLookupQuery = `SELECT id, content_hash FROM documents WHERE source_path=$1 FOR UPDATE`

func TestUpsertDocumentUnchanged(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(docLookupQuery)).
		WithArgs("docs/readme.md").
		WillReturnRows(sqlmock.NewRows([]string{"id", "content_hash"}).AddRow(7, "hash-a"))
	mock.ExpectRollback()

	status, err := st.UpsertDocument(context.Background(), "docs/readme.md", "hash-a", []ChunkInput{
		{Index: 0, Text: "hello", TokenCount: 1, Embedding: []float32{0.1, 0.2}},
	})
	if err != nil {
		t.Fatalf("UpsertDocument: %v", err)
	}
	if status != StatusUnchanged {
		t.Fatalf("expected unchanged, got %s", status)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpsertDocumentReplacesChunks(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(docLookupQuery)).
		WithArgs("docs/readme.md").
		WillReturnRows(sqlmock.NewRows([]string{"id", "content_hash"}).AddRow(7, "hash-old"))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE documents SET content_hash=$1, indexed_at=NOW() WHERE id=$2`)).
		WithArgs("hash-new", int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM chunks WHERE document_id=$1`)).
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 3))
	insertQuery := regexp.QuoteMeta(`
INSERT INTO chunks (document_id, chunk_index, chunk_text, token_count, embedding)
VALUES ($1,$2,$3,$4,$5::vector)
`)
	mock.ExpectExec(insertQuery).
		WithArgs(int64(7), 0, "first window", 2, "[0.1,0.2]").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(insertQuery).
		WithArgs(int64(7), 1, "second window", 2, "[0.3,0.4]").
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	status, err := st.UpsertDocument(context.Background(), "docs/readme.md", "hash-new", []ChunkInput{
		{Index: 0, Text: "first window", TokenCount: 2, Embedding: []float32{0.1, 0.2}},
		{Index: 1, Text: "second window", TokenCount: 2, Embedding: []float32{0.3, 0.4}},
	})
	if err != nil {
		t.Fatalf("UpsertDocument: %v", err)
	}
	if status != StatusUpdated {
		t.Fatalf("expected updated, got %s", status)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpsertDocumentInsertsNew(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(docLookupQuery)).
		WithArgs("notes/todo.txt").
		WillReturnRows(sqlmock.NewRows([]string{"id", "content_hash"}))
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO documents (source_path, content_hash, indexed_at) VALUES ($1,$2,NOW()) RETURNING id`)).
		WithArgs("notes/todo.txt", "hash-x").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))
	mock.ExpectExec("INSERT INTO chunks").
		WithArgs(int64(42), 0, "buy milk", 2, "[1,0]").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	status, err := st.UpsertDocument(context.Background(), "notes/todo.txt", "hash-x", []ChunkInput{
		{Index: 0, Text: "buy milk", TokenCount: 2, Embedding: []float32{1, 0}},
	})
	if err != nil {
		t.Fatalf("UpsertDocument: %v", err)
	}
	if status != StatusUpdated {
		t.Fatalf("expected updated, got %s", status)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpsertDocumentValidation(t *testing.T) {
	st, _ := newMockStore(t)
	if _, err := st.UpsertDocument(context.Background(), "", "h", nil); err == nil {
		t.Fatal("expected error for empty source path")
	}
	if _, err := st.UpsertDocument(context.Background(), "a.txt", "  ", nil); err == nil {
		t.Fatal("expected error for empty content hash")
	}
}

func TestSearchRanking(t *testing.T) {
	st, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"id", "source_path", "chunk_index", "chunk_text", "token_count", "distance"}).
		AddRow(1, "a.md", 0, "closest", 5, 0.05).
		AddRow(2, "b.md", 3, "close", 4, 0.20).
		AddRow(3, "a.md", 1, "far", 6, 0.75)
	mock.ExpectQuery("ORDER BY c.embedding <=>").
		WithArgs("[1,0]", 3).
		WillReturnRows(rows)

	results, err := st.Search(context.Background(), []float32{1, 0}, 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for i := 1; i < len(results); i++ {
		if results[i].Score > results[i-1].Score {
			t.Fatalf("scores not non-increasing: %v then %v", results[i-1].Score, results[i].Score)
		}
	}
	if got := results[0].Score; math.Abs(got-0.95) > 1e-9 {
		t.Errorf("expected score 0.95, got %v", got)
	}
	if results[1].SourcePath != "b.md" || results[1].ChunkIndex != 3 {
		t.Errorf("result not annotated with parent path/ordinal: %+v", results[1])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSearchRejectsEmptyVector(t *testing.T) {
	st, _ := newMockStore(t)
	if _, err := st.Search(context.Background(), nil, 5); err == nil {
		t.Fatal("expected error for empty vector")
	}
}

func TestGetChunkNotFound(t *testing.T) {
	st, mock := newMockStore(t)
	mock.ExpectQuery("WHERE c.id=").
		WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "source_path", "chunk_index", "chunk_text", "token_count", "embedding"}))

	_, err := st.GetChunk(context.Background(), 99)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetChunkDecodesEmbedding(t *testing.T) {
	st, mock := newMockStore(t)
	mock.ExpectQuery("WHERE c.id=").
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "source_path", "chunk_index", "chunk_text", "token_count", "embedding"}).
			AddRow(5, "a.md", 2, "text", 1, "[0.5,-0.25]"))

	rec, err := st.GetChunk(context.Background(), 5)
	if err != nil {
		t.Fatalf("GetChunk: %v", err)
	}
	if len(rec.Embedding) != 2 || rec.Embedding[0] != 0.5 || rec.Embedding[1] != -0.25 {
		t.Fatalf("unexpected embedding: %v", rec.Embedding)
	}
}

func TestDeleteSource(t *testing.T) {
	st, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM documents WHERE source_path=$1`)).
		WithArgs("gone.md").
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := st.DeleteSource(context.Background(), "gone.md")
	if err != nil {
		t.Fatalf("DeleteSource: %v", err)
	}
	if !ok {
		t.Fatal("expected deletion to be reported")
	}
}

func TestPurgeAll(t *testing.T) {
	st, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM documents`)).
		WillReturnResult(sqlmock.NewResult(0, 12))

	n, err := st.PurgeAll(context.Background())
	if err != nil {
		t.Fatalf("PurgeAll: %v", err)
	}
	if n != 12 {
		t.Fatalf("expected 12 removed, got %d", n)
	}
}

func TestStats(t *testing.T) {
	st, mock := newMockStore(t)
	mock.ExpectQuery("SELECT").
		WillReturnRows(sqlmock.NewRows([]string{"documents", "chunks", "tokens"}).AddRow(3, 27, 5400))
	mock.ExpectQuery("pg_total_relation_size").
		WillReturnRows(sqlmock.NewRows([]string{"size"}).AddRow(8192))

	st2, err := st.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st2.Documents != 3 || st2.Chunks != 27 || st2.Tokens != 5400 || st2.StorageBytes != 8192 {
		t.Fatalf("unexpected stats: %+v", st2)
	}
}

func TestEnsureSchemaRejectsDimensionMismatch(t *testing.T) {
	st, mock := newMockStore(t)
	mock.ExpectQuery("pg_attribute").
		WillReturnRows(sqlmock.NewRows([]string{"atttypmod"}).AddRow(768))

	err := st.EnsureSchema(context.Background(), 384)
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestEnsureSchemaCreatesTables(t *testing.T) {
	st, mock := newMockStore(t)
	mock.ExpectQuery("pg_attribute").
		WillReturnRows(sqlmock.NewRows([]string{"atttypmod"}))
	mock.ExpectExec("CREATE EXTENSION").WillReturnResult(sqlmock.NewResult(0, 0))
	for i := 0; i < 9; i++ {
		mock.ExpectExec("CREATE").WillReturnResult(sqlmock.NewResult(0, 0))
	}

	if err := st.EnsureSchema(context.Background(), 384); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestEncodeVectorLiteral(t *testing.T) {
	lit, err := encodeVectorLiteral([]float32{0.1, -2, 3.5})
	if err != nil {
		t.Fatalf("encodeVectorLiteral: %v", err)
	}
	if lit != "[0.1,-2,3.5]" {
		t.Fatalf("unexpected literal: %s", lit)
	}
	if _, err := encodeVectorLiteral(nil); err == nil {
		t.Fatal("expected error for empty vector")
	}
	vec, err := decodeVectorLiteral(lit)
	if err != nil {
		t.Fatalf("decodeVectorLiteral: %v", err)
	}
	if len(vec) != 3 || vec[0] != 0.1 || vec[1] != -2 || vec[2] != 3.5 {
		t.Fatalf("round trip mismatch: %v", vec)
	}
}
