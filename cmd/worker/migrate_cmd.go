package main

import (
	"context"
	"database/sql"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"

	"github.com/worklane/worklane/migrations"
	"github.com/worklane/worklane/pkg/configuration"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or inspect database schema migrations",
	}
	cmd.AddCommand(
		newMigrateStepCmd("up", "Apply all pending migrations", goose.UpContext),
		newMigrateStepCmd("down", "Roll back the most recent migration", goose.DownContext),
		newMigrateStepCmd("status", "Print migration status", goose.StatusContext),
	)
	return cmd
}

func newMigrateStepCmd(use, short string, run func(context.Context, *sql.DB, string, ...goose.OptionsFunc) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := openMigrationDB()
			if err != nil {
				return err
			}
			defer db.Close()
			return run(cmd.Context(), db, ".")
		},
	}
}

func openMigrationDB() (*sql.DB, error) {
	conf := configuration.Use()

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return nil, err
	}

	db, err := sql.Open("pgx", conf.Database.ConnectionString())
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
