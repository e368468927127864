package database

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	migratepostgres "github.com/golang-migrate/migrate/v4/database/postgres"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"
)

// migrate applies all pending schema migrations for the active driver.
// Migration files live in a per-driver subdirectory of MigrationsPath.
func (d *Database) migrate() error {
	driver, err := d.migrationDriver()
	if err != nil {
		return err
	}

	source := fmt.Sprintf("file://%s", filepath.ToSlash(filepath.Join(d.cfg.MigrationsPath, d.cfg.Driver)))
	m, err := migrate.NewWithDatabaseInstance(source, d.cfg.Driver, driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			d.logger.Debug("Database schema is up to date")
			return nil
		}
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		return fmt.Errorf("failed to read migration version: %w", err)
	}
	d.logger.Info("Database migrations applied",
		zap.Uint("version", version),
		zap.Bool("dirty", dirty))
	return nil
}

func (d *Database) migrationDriver() (migratedb.Driver, error) {
	switch d.cfg.Driver {
	case DriverSQLite:
		return migratesqlite.WithInstance(d.db, &migratesqlite.Config{})
	case DriverMySQL:
		return migratemysql.WithInstance(d.db, &migratemysql.Config{})
	case DriverPostgres:
		return migratepostgres.WithInstance(d.db, &migratepostgres.Config{})
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", d.cfg.Driver)
	}
}
