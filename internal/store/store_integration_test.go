package store_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcPostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/contextforge/corpus/internal/store"
)

// Exercises the real pgvector schema, the transactional replace and the
// similarity ranking end to end. Requires Docker; enable with
// CORPUS_INTEGRATION=1.
func TestStoreAgainstPostgres(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	if os.Getenv("CORPUS_INTEGRATION") == "" {
		t.Skip("set CORPUS_INTEGRATION=1 to run container-backed tests")
	}

	ctx := context.Background()

	pgC, err := tcPostgres.RunContainer(ctx,
		testcontainers.WithImage("pgvector/pgvector:pg16"),
		tcPostgres.WithDatabase("corpus"),
		tcPostgres.WithUsername("corpus"),
		tcPostgres.WithPassword("corpus"),
		testcontainers.WithWaitStrategy(wait.ForListeningPort("5432/tcp").WithStartupTimeout(2*time.Minute)),
	)
	if err != nil {
		t.Fatalf("postgres container: %v", err)
	}
	defer func() { _ = pgC.Terminate(ctx) }()

	host, err := pgC.Host(ctx)
	if err != nil {
		t.Fatalf("postgres host: %v", err)
	}
	port, err := pgC.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("postgres port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://corpus:corpus@%s:%s/corpus?sslmode=disable", host, port.Port())

	st, err := store.NewWithDSN(ctx, dsn)
	if err != nil {
		t.Fatalf("NewWithDSN: %v", err)
	}
	defer st.Close()

	if err := st.EnsureSchema(ctx, 4); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	// Idempotent for the same dims, rejected for a different one.
	if err := st.EnsureSchema(ctx, 4); err != nil {
		t.Fatalf("EnsureSchema second call: %v", err)
	}
	if err := st.EnsureSchema(ctx, 8); err == nil {
		t.Fatal("expected dimension mismatch to be rejected")
	}

	chunks := []store.ChunkInput{
		{Index: 0, Text: "alpha", TokenCount: 1, Embedding: []float32{1, 0, 0, 0}},
		{Index: 1, Text: "beta", TokenCount: 1, Embedding: []float32{0, 1, 0, 0}},
	}
	status, err := st.UpsertDocument(ctx, "docs/a.md", "hash-1", chunks)
	if err != nil {
		t.Fatalf("UpsertDocument: %v", err)
	}
	if status != store.StatusUpdated {
		t.Fatalf("expected updated, got %s", status)
	}

	// Identical content is a no-op.
	status, err = st.UpsertDocument(ctx, "docs/a.md", "hash-1", chunks)
	if err != nil {
		t.Fatalf("UpsertDocument repeat: %v", err)
	}
	if status != store.StatusUnchanged {
		t.Fatalf("expected unchanged, got %s", status)
	}

	// Changed content replaces the full chunk set.
	status, err = st.UpsertDocument(ctx, "docs/a.md", "hash-2", []store.ChunkInput{
		{Index: 0, Text: "gamma", TokenCount: 1, Embedding: []float32{0, 0, 1, 0}},
	})
	if err != nil {
		t.Fatalf("UpsertDocument replace: %v", err)
	}
	if status != store.StatusUpdated {
		t.Fatalf("expected updated, got %s", status)
	}

	stats, err := st.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Documents != 1 || stats.Chunks != 1 {
		t.Fatalf("expected exactly the new chunk set, got %+v", stats)
	}

	results, err := st.Search(ctx, []float32{0, 0, 1, 0}, 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Text != "gamma" {
		t.Fatalf("unexpected search results: %+v", results)
	}
	if results[0].Score < 0.99 {
		t.Fatalf("expected near-perfect score, got %v", results[0].Score)
	}

	removed, err := st.PurgeAll(ctx)
	if err != nil {
		t.Fatalf("PurgeAll: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 document purged, got %d", removed)
	}
	sources, err := st.ListSources(ctx, 10)
	if err != nil {
		t.Fatalf("ListSources: %v", err)
	}
	if len(sources) != 0 {
		t.Fatalf("expected no sources after purge, got %d", len(sources))
	}
}
