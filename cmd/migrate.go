package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/contextforge/corpus/config"
	"github.com/contextforge/corpus/internal/store"
)

func migrateCMD() *cobra.Command {
	var cfgPath string

	var migrate = &cobra.Command{
		Use:   "migrate",
		Short: "Initialize or verify the database schema",
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
			if err := st.EnsureSchema(ctx, cfg.Embedding.Dimensions); err != nil {
				return err
			}
			fmt.Printf("schema ready (%d-dimensional embeddings)\n", cfg.Embedding.Dimensions)
			return nil
		},
	}
	migrate.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return migrate
}
