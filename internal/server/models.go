package server

import "time"

// HTTPError is a generic error envelope returned by the server.
type HTTPError struct {
	Error string `json:"error"`
}

// IndexDirectoryRequest asks for a recursive crawl of a directory root.
type IndexDirectoryRequest struct {
	Root string `json:"root"`
}

// IndexTextRequest ingests raw content under a caller-chosen key.
type IndexTextRequest struct {
	Key     string `json:"key"`
	Content string `json:"content"`
}

// IndexURLRequest fetches a page and ingests its readable text.
type IndexURLRequest struct {
	URL string `json:"url"`
	Key string `json:"key,omitempty"`
}

// QueryRequest is a retrieval request.
type QueryRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k,omitempty"`
}

// SimilarRequest asks for the nearest neighbours of a stored chunk.
type SimilarRequest struct {
	ChunkID int64 `json:"chunk_id"`
	TopK    int   `json:"top_k,omitempty"`
}

// ChunkResponse is a single stored chunk.
type ChunkResponse struct {
	ID         int64  `json:"id"`
	SourcePath string `json:"source_path"`
	ChunkIndex int    `json:"chunk_index"`
	Text       string `json:"text"`
	TokenCount int    `json:"token_count"`
}

// SourceResponse is one indexed source in an inventory listing.
type SourceResponse struct {
	SourcePath string    `json:"source_path"`
	ChunkCount int       `json:"chunk_count"`
	IndexedAt  time.Time `json:"indexed_at"`
}

// DeleteSourceRequest removes one source. Confirm must be true.
type DeleteSourceRequest struct {
	SourcePath string `json:"source_path"`
	Confirm    bool   `json:"confirm"`
}

// PurgeRequest drops every document. Confirmation must match the server's
// expected phrase.
type PurgeRequest struct {
	Confirmation string `json:"confirmation"`
}

// PurgeResponse reports how many documents were dropped.
type PurgeResponse struct {
	Purged int64 `json:"purged"`
}

// NormalizeRequest rewrites stored source paths relative to the project root.
type NormalizeRequest struct {
	ProjectRoot string `json:"project_root"`
}

// NormalizeResponse reports what normalization changed.
type NormalizeResponse struct {
	Renamed int `json:"renamed"`
	Removed int `json:"removed"`
}

// StatsResponse summarizes the index.
type StatsResponse struct {
	Documents    int64 `json:"documents"`
	Chunks       int64 `json:"chunks"`
	Tokens       int64 `json:"tokens"`
	StorageBytes int64 `json:"storage_bytes"`
}

// CreateMemoryRequest writes one memory record.
type CreateMemoryRequest struct {
	SessionID string   `json:"session_id,omitempty"`
	ProjectID string   `json:"project_id,omitempty"`
	Type      string   `json:"type"`
	Content   string   `json:"content"`
	Tags      []string `json:"tags,omitempty"`
}

// MemorySearchRequest ranks memories against a query within an optional scope.
type MemorySearchRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id,omitempty"`
	ProjectID string `json:"project_id,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

// UpdateMemoryRequest patches a memory record. Nil fields are left unchanged.
type UpdateMemoryRequest struct {
	Content *string  `json:"content,omitempty"`
	Type    *string  `json:"type,omitempty"`
	Tags    []string `json:"tags,omitempty"`
}
