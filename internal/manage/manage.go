// Package manage exposes the administrative surface of the index: inventory,
// stats, targeted and bulk deletion, and source-path normalization. The
// destructive operations require explicit confirmation from the caller.
package manage

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/contextforge/corpus/internal/store"
)

// PurgeConfirmation is the phrase callers must supply before the whole index
// is dropped.
const PurgeConfirmation = "delete everything"

// AdminStore is the store surface management needs.
type AdminStore interface {
	Ping(ctx context.Context) error
	Stats(ctx context.Context) (store.IndexStats, error)
	ListSources(ctx context.Context, limit int) ([]store.SourceInfo, error)
	DeleteSource(ctx context.Context, sourcePath string) (bool, error)
	PurgeAll(ctx context.Context) (int64, error)
	NormalizeSourcePaths(ctx context.Context, projectRoot string) (store.NormalizeResult, error)
}

type Service struct {
	store  AdminStore
	logger *log.Logger
}

func New(st AdminStore, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.New(log.Writer(), "[MANAGE] ", log.LstdFlags)
	}
	return &Service{store: st, logger: logger}
}

// Health reports whether the backing store answers.
func (s *Service) Health(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return fmt.Errorf("store unreachable: %w", err)
	}
	return nil
}

func (s *Service) Stats(ctx context.Context) (store.IndexStats, error) {
	return s.store.Stats(ctx)
}

// ListSources caps the page size at 500.
func (s *Service) ListSources(ctx context.Context, limit int) ([]store.SourceInfo, error) {
	if limit > 500 {
		limit = 500
	}
	return s.store.ListSources(ctx, limit)
}

// DeleteSource removes one source and its chunks. Without confirm it only
// reports whether the source exists.
func (s *Service) DeleteSource(ctx context.Context, sourcePath string, confirm bool) (bool, error) {
	if strings.TrimSpace(sourcePath) == "" {
		return false, fmt.Errorf("source path required")
	}
	if !confirm {
		return false, fmt.Errorf("deletion of %q requires confirmation", sourcePath)
	}
	deleted, err := s.store.DeleteSource(ctx, sourcePath)
	if err != nil {
		return false, err
	}
	if deleted {
		s.logger.Printf("deleted source %s", sourcePath)
	}
	return deleted, nil
}

// PurgeAll drops every document. The confirmation phrase guards against a
// stray API call wiping the index.
func (s *Service) PurgeAll(ctx context.Context, confirmation string) (int64, error) {
	if confirmation != PurgeConfirmation {
		return 0, fmt.Errorf("purge requires confirmation phrase %q", PurgeConfirmation)
	}
	n, err := s.store.PurgeAll(ctx)
	if err != nil {
		return 0, err
	}
	s.logger.Printf("purged %d documents", n)
	return n, nil
}

// NormalizeSourcePaths rewrites stored paths to their canonical form relative
// to projectRoot, collapsing duplicates onto the newest copy.
func (s *Service) NormalizeSourcePaths(ctx context.Context, projectRoot string) (store.NormalizeResult, error) {
	res, err := s.store.NormalizeSourcePaths(ctx, projectRoot)
	if err != nil {
		return store.NormalizeResult{}, err
	}
	if res.Renamed > 0 || res.Removed > 0 {
		s.logger.Printf("normalized source paths: %d renamed, %d duplicates removed", res.Renamed, res.Removed)
	}
	return res, nil
}
