package migration

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"path"
	"strings"

	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
)

// Embed SQL files for every supported dialect
//
//go:embed migrations/postgres/*.sql migrations/sqlite3/*.sql
var embeddedMigrations embed.FS

const versionTable = "ldimport_goose_version"

type gooseAdapter struct {
	logger zerolog.Logger
}

// NewGooseAdapter routes goose output through zerolog.
func NewGooseAdapter(logger zerolog.Logger) goose.Logger {
	return &gooseAdapter{logger: logger.With().Str("component", "migrations").Logger()}
}

func (g *gooseAdapter) Printf(format string, v ...interface{}) {
	g.logger.Info().Msg(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (g *gooseAdapter) Fatalf(format string, v ...interface{}) {
	g.logger.Fatal().Msg(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func prepare(driver string) (string, error) {
	switch driver {
	case "postgres", "sqlite3":
	default:
		return "", fmt.Errorf("no migrations for driver %q", driver)
	}
	goose.SetBaseFS(embeddedMigrations)
	goose.SetTableName(versionTable)
	if err := goose.SetDialect(driver); err != nil {
		return "", fmt.Errorf("set goose dialect: %w", err)
	}
	return path.Join("migrations", driver), nil
}

// RunMigrations applies every pending migration for the given driver.
func RunMigrations(ctx context.Context, db *sql.DB, driver string) error {
	dir, err := prepare(driver)
	if err != nil {
		return err
	}
	if err := goose.UpContext(ctx, db, dir); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Version reports the current schema version.
func Version(ctx context.Context, db *sql.DB, driver string) (int64, error) {
	if _, err := prepare(driver); err != nil {
		return 0, err
	}
	return goose.GetDBVersionContext(ctx, db)
}
