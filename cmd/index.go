package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/contextforge/corpus/config"
	"github.com/contextforge/corpus/internal/embedding"
	"github.com/contextforge/corpus/internal/indexer"
	"github.com/contextforge/corpus/internal/store"
)

func indexCMD() *cobra.Command {
	var cfgPath string
	var fetchURL string
	var key string

	var index = &cobra.Command{
		Use:   "index [root]",
		Short: "Index a directory tree or a URL",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && fetchURL == "" {
				return fmt.Errorf("a directory root or --url is required")
			}
			cfg := config.LoadConfig(cfgPath)
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			st, err := store.NewWithDSN(ctx, cfg.Storage.Postgres.DSN())
			if err != nil {
				return fmt.Errorf("storage init: %w", err)
			}
			defer st.Close()
			if err := st.EnsureSchema(ctx, cfg.Embedding.Dimensions); err != nil {
				return err
			}
			gen, err := embedding.NewDeterministic(cfg.Embedding.Dimensions)
			if err != nil {
				return err
			}
			ix := indexer.New(st, gen, indexer.Options{
				ChunkSize:         cfg.Indexing.ChunkSize,
				ChunkOverlap:      cfg.Indexing.ChunkOverlap,
				IncludeExtensions: cfg.Indexing.IncludeExtensions,
				ExcludeDirs:       cfg.Indexing.ExcludeDirs,
				MaxFileSizeBytes:  cfg.Indexing.MaxFileSizeBytes,
				FetchTimeout:      cfg.Indexing.FetchTimeout,
				MaxFetchChars:     cfg.Indexing.MaxFetchChars,
			}, nil)

			var summary indexer.Summary
			if fetchURL != "" {
				summary, err = ix.IndexURL(ctx, fetchURL, key)
			} else {
				summary, err = ix.IndexDirectory(ctx, args[0])
			}
			if err != nil {
				return err
			}
			fmt.Printf("indexed %d documents (%d chunks), %d unchanged, %d skipped\n",
				summary.Indexed, summary.ChunksIndexed, summary.Unchanged, summary.Skipped)
			return nil
		},
	}
	index.Flags().StringVar(&fetchURL, "url", "", "fetch and index a URL instead of a directory")
	index.Flags().StringVar(&key, "key", "", "source key override for --url")
	index.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return index
}
