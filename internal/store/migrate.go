package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const migrationsDir = "migrations"

// ApplyMigrations runs every pending embedded migration. A nil logger
// silences goose.
func ApplyMigrations(ctx context.Context, db *sql.DB, log goose.Logger) error {
	goose.SetBaseFS(migrationsFS)
	if log == nil {
		log = goose.NopLogger()
	}
	goose.SetLogger(log)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set migration dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, migrationsDir); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}
