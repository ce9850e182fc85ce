package db

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"net/http"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/httpfs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	// LatestMigrationVersion is the latest migration version of the
	// database, used to implement downgrade protection.
	//
	// NOTE: This MUST be updated when a new migration is added.
	LatestMigrationVersion uint = 1
)

// MigrationTarget selects which version ApplyMigrations migrates to.
type MigrationTarget func(mig *migrate.Migrate) error

var (
	// TargetLatest migrates to the latest version available.
	TargetLatest = func(mig *migrate.Migrate) error {
		return mig.Up()
	}

	// TargetVersion returns a MigrationTarget that migrates to the given
	// version.
	TargetVersion = func(version uint) MigrationTarget {
		return func(mig *migrate.Migrate) error {
			return mig.Migrate(version)
		}
	}
)

// ErrMigrationDowngrade is returned when a database downgrade is detected.
var ErrMigrationDowngrade = errors.New("database downgrade detected")

// ApplyMigrations executes the migration files embedded in the binary
// against the given database, bringing it to the target version.
func ApplyMigrations(sqlDB *sql.DB, target MigrationTarget) error {
	driver, err := sqlite3.WithInstance(sqlDB, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	src, err := httpfs.New(http.FS(migrationsFS), "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	mig, err := migrate.NewWithInstance("httpfs", src, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("create migration instance: %w", err)
	}

	// Refuse to run against a database that is ahead of this binary.
	version, _, err := mig.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("read migration version: %w", err)
	}
	if version > LatestMigrationVersion {
		return fmt.Errorf("%w: db version %d, latest known %d",
			ErrMigrationDowngrade, version, LatestMigrationVersion)
	}

	if err := target(mig); err != nil &&
		!errors.Is(err, migrate.ErrNoChange) {

		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}
