package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/document-archive-api/migrations"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			applied, err := migrations.Apply(cmd.Context(), a.db, a.log)
			if err != nil {
				return fmt.Errorf("apply migrations: %w", err)
			}
			a.log.Info("migrations complete", zap.Strings("applied", applied))
			return nil
		},
	}
}
