package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed *.sql
var schemaFiles embed.FS

// RunMigrations brings the aggregate schema up to the embedded version.
// With autoMigrate disabled it reports the current version and applies
// nothing, so operators can manage the schema out of band.
func RunMigrations(db *sql.DB, autoMigrate bool) error {
	src, err := iofs.New(schemaFiles, ".")
	if err != nil {
		return fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create postgres migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	if dirty {
		// An interrupted run leaves the version flagged dirty. Forcing the
		// recorded version clears the flag so Up can retry from there.
		slog.Warn("[Migrations] Schema version is dirty, clearing flag", "version", version)
		if err := m.Force(int(version)); err != nil {
			return fmt.Errorf("failed to clear dirty schema version %d: %w", version, err)
		}
	}

	if !autoMigrate {
		slog.Info("[Migrations] Auto-migrate disabled", "schema_version", version)
		return nil
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			slog.Info("[Migrations] Schema up to date", "schema_version", version)
			return nil
		}
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	applied, _, err := m.Version()
	if err != nil {
		return fmt.Errorf("failed to read schema version after migrate: %w", err)
	}
	slog.Info("[Migrations] Schema migrated", "from", version, "to", applied)

	return nil
}
