package config

import "testing"

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig("config.json")

	if cfg.Indexing.ChunkSize != 400 {
		t.Errorf("chunk_size: got %d", cfg.Indexing.ChunkSize)
	}
	if cfg.Indexing.ChunkOverlap != 80 {
		t.Errorf("chunk_overlap: got %d", cfg.Indexing.ChunkOverlap)
	}
	if cfg.Embedding.Dimensions != 384 {
		t.Errorf("dimensions: got %d", cfg.Embedding.Dimensions)
	}
	if cfg.Query.DefaultTopK != 5 || cfg.Query.MaxTopK != 50 {
		t.Errorf("top_k defaults: got %d/%d", cfg.Query.DefaultTopK, cfg.Query.MaxTopK)
	}
	if cfg.Server.Address != ":10030" {
		t.Errorf("address: got %q", cfg.Server.Address)
	}
}

func TestPostgresDSN(t *testing.T) {
	p := PostgresConfig{Host: "db", User: "u", Password: "p", DBName: "corpus"}
	want := "postgres://u:p@db:5432/corpus?sslmode=disable"
	if got := p.DSN(); got != want {
		t.Errorf("DSN: got %q want %q", got, want)
	}

	p = PostgresConfig{URL: "postgres://raw"}
	if got := p.DSN(); got != "postgres://raw" {
		t.Errorf("explicit url must win, got %q", got)
	}
}
