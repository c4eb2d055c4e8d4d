package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// ErrMigrationDowngrade is returned when the database schema is newer
// than the migrations known to this binary.
var ErrMigrationDowngrade = errors.New("database downgrade detected")

// migrationLogger adapts slog.Logger to the migrate.Logger interface.
type migrationLogger struct {
	log *slog.Logger
}

// Printf implements the migrate.Logger interface.
func (m *migrationLogger) Printf(format string, v ...any) {
	format = strings.TrimRight(format, "\n")
	m.log.Info(fmt.Sprintf(format, v...))
}

// Verbose implements the migrate.Logger interface.
func (m *migrationLogger) Verbose() bool {
	return false
}

// ApplyMigrations runs the migration files under path in fsys against
// driver, up to the latest version. latestVersion is the highest
// migration this binary ships; a database ahead of it is refused.
//
// The migrate instance is not closed, as closing it would close the
// database handle owned by the caller.
func ApplyMigrations(ctx context.Context, fsys fs.FS, path string, driver database.Driver, dbName string, latestVersion uint) error {
	log := slog.Default().With("component", "migrate", "db", dbName)

	src, err := iofs.New(fsys, path)
	if err != nil {
		return fmt.Errorf("open migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, dbName, driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	m.Log = &migrationLogger{log: log}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("unable to determine current migration version: %w", err)
	}
	if dirty {
		return fmt.Errorf("database is in a dirty state at version %d, manual intervention required", version)
	}
	if version > latestVersion {
		return fmt.Errorf("%w: db_version=%d, latest_migration_version=%d",
			ErrMigrationDowngrade, version, latestVersion)
	}

	log.InfoContext(ctx, "Applying migrations",
		"current_db_version", version,
		"latest_migration_version", latestVersion,
	)

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}

	version, _, err = m.Version()
	if err != nil {
		return fmt.Errorf("unable to get db version after migration: %w", err)
	}
	log.InfoContext(ctx, "Database version after migration", "current_db_version", version)

	return nil
}
