package store

import (
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations
var migrationsFS embed.FS

// NewMigrator returns a migrate instance for the given driver and URL.
// The caller closes it.
func NewMigrator(driver, url string) (*migrate.Migrate, error) {
	source, err := iofs.New(migrationsFS, "migrations/"+driver)
	if err != nil {
		return nil, fmt.Errorf("create migration source: %w", err)
	}
	dbURL, err := migrateURL(driver, url)
	if err != nil {
		return nil, err
	}
	m, err := migrate.NewWithSourceInstance("iofs", source, dbURL)
	if err != nil {
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	return m, nil
}

// RunMigrations applies all pending migrations. An up-to-date schema is
// not an error.
func RunMigrations(driver, url string) error {
	m, err := NewMigrator(driver, url)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// migrateURL rewrites a connection string into the scheme the migrate
// database drivers register.
func migrateURL(driver, url string) (string, error) {
	switch driver {
	case DriverPostgres:
		for _, prefix := range []string{"postgres://", "postgresql://"} {
			if strings.HasPrefix(url, prefix) {
				return "pgx5://" + strings.TrimPrefix(url, prefix), nil
			}
		}
		return "", fmt.Errorf("unsupported postgres url %q", url)
	case DriverSQLite:
		return "sqlite3://" + strings.TrimPrefix(url, "sqlite3://"), nil
	}
	return "", fmt.Errorf("unknown store driver %q", driver)
}
