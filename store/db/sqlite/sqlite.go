package sqlite

import (
	"context"
	"database/sql"
	"embed"

	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/pkg/errors"

	// Import the SQLite driver.
	_ "modernc.org/sqlite"

	"github.com/hrygo/reviewsense/internal/profile"
	"github.com/hrygo/reviewsense/store"
)

//go:embed migration/*.sql
var migrationFS embed.FS

// latestSchemaVersion must be bumped with every new migration file.
const latestSchemaVersion uint = 1

type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

// NewDB opens the SQLite database file named by profile.DSN.
func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile.DSN == "" {
		return nil, errors.New("dsn required")
	}

	// With `modernc.org/sqlite` each pragma must be prefixed with `_pragma=`.
	// WAL avoids reader/writer locking; busy_timeout covers the CLI and a
	// refresher sharing the file.
	sqliteDB, err := sql.Open("sqlite", profile.DSN+"?_pragma=foreign_keys(0)&_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db with dsn: %s", profile.DSN)
	}

	// Single connection is optimal for SQLite with WAL.
	sqliteDB.SetMaxOpenConns(1)
	sqliteDB.SetMaxIdleConns(1)
	sqliteDB.SetConnMaxLifetime(0)
	sqliteDB.SetConnMaxIdleTime(0)

	driver := DB{db: sqliteDB, profile: profile}

	return &driver, nil
}

func (d *DB) GetDB() *sql.DB {
	return d.db
}

func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) IsInitialized(ctx context.Context) (bool, error) {
	var exists bool
	err := d.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM sqlite_master WHERE type='table' AND name='review_summary')").Scan(&exists)
	if err != nil {
		return false, errors.Wrap(err, "failed to check if database is initialized")
	}
	return exists, nil
}

// Migrate applies the embedded SQLite migrations.
func (d *DB) Migrate(ctx context.Context) error {
	driver, err := sqlitemigrate.WithInstance(d.db, &sqlitemigrate.Config{})
	if err != nil {
		return errors.Wrap(err, "failed to create migration driver")
	}
	if err := store.ApplyMigrations(ctx, migrationFS, "migration", driver, "sqlite", latestSchemaVersion); err != nil {
		return errors.Wrap(err, "failed to migrate sqlite database")
	}
	return nil
}
