package store

import (
	"context"
	"database/sql"
	"embed"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

const migrationDir = "migrations"

func Migrate(ctx context.Context, db *sql.DB) error {
	setupGoose()
	return goose.UpContext(ctx, db, migrationDir)
}

// MigrateTo applies migrations up to and including version.
func MigrateTo(ctx context.Context, db *sql.DB, version int64) error {
	setupGoose()
	return goose.UpToContext(ctx, db, migrationDir, version)
}

func setupGoose() {
	goose.SetBaseFS(migrations)
	_ = goose.SetDialect("postgres")
	goose.SetTableName("schema_migrations")
}
