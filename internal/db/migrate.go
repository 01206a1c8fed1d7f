package db

import (
	"context"
	"embed"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

const migrationsDir = "migrations"

type MigrateCommand string

const (
	MigrateUp     MigrateCommand = "up"
	MigrateDown   MigrateCommand = "down"
	MigrateStatus MigrateCommand = "status"
)

// Migrate applies cmd to the schema behind dsn using the embedded SQL migrations.
func Migrate(ctx context.Context, dsn string, cmd MigrateCommand) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}

	sqlDB, err := goose.OpenDBWithDriver("pgx", dsn)
	if err != nil {
		return errors.Wrap(err, "failed to open migration connection")
	}
	defer sqlDB.Close()

	switch cmd {
	case MigrateUp:
		return goose.UpContext(ctx, sqlDB, migrationsDir)
	case MigrateDown:
		return goose.DownContext(ctx, sqlDB, migrationsDir)
	case MigrateStatus:
		return goose.StatusContext(ctx, sqlDB, migrationsDir)
	default:
		return errors.Errorf("unknown migrate command %q", cmd)
	}
}
