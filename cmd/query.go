package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/contextforge/corpus/config"
	"github.com/contextforge/corpus/internal/embedding"
	"github.com/contextforge/corpus/internal/search"
	"github.com/contextforge/corpus/internal/store"
)

func queryCMD() *cobra.Command {
	var cfgPath string
	var topK int

	var query = &cobra.Command{
		Use:   "query <text>",
		Short: "Search the index",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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
			gen, err := embedding.NewDeterministic(cfg.Embedding.Dimensions)
			if err != nil {
				return err
			}
			svc := search.New(st, gen, search.Options{
				DefaultTopK:   cfg.Query.DefaultTopK,
				MaxTopK:       cfg.Query.MaxTopK,
				SnippetLength: cfg.Query.SnippetLength,
			}, nil)

			results, err := svc.Query(ctx, strings.Join(args, " "), topK)
			if err != nil {
				return err
			}
			if len(results) == 0 {
				fmt.Println("no results")
				return nil
			}
			for i, r := range results {
				fmt.Printf("%2d. [%.4f] %s #%d\n    %s\n", i+1, r.Score, r.SourcePath, r.ChunkIndex, r.Snippet)
			}
			return nil
		},
	}
	query.Flags().IntVar(&topK, "top-k", 0, "number of results (0 = configured default)")
	query.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return query
}
