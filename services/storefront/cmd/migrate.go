package main

import (
	"log"

	"github.com/sakashimaa/storefront/pkg/config"
	"github.com/sakashimaa/storefront/pkg/db"
	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back database migrations",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runMigrations(db.Up)
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the last migration",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runMigrations(db.Down)
			},
		},
	)

	return cmd
}

func runMigrations(step db.MigrateStep) error {
	cfg := config.MustLoad()

	version, dirty, err := db.Migrate(cfg.Postgres.URL, cfg.Postgres.MigrationsPath, step)
	if err != nil {
		return err
	}

	log.Printf("Migrations done ✅ version=%d dirty=%v\n", version, dirty)
	return nil
}
