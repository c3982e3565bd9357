package identity

import (
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationFS embed.FS

// Driver names accepted by Migrate and the command line tools.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// ErrNoChange is returned when the schema is already at the target version.
var ErrNoChange = migrate.ErrNoChange

// Migrate applies embedded migrations for driver against dsn. direction must
// be "up" or "down". For SQLite the dsn is a file path.
func Migrate(driver, dsn, direction string) error {
	if dsn == "" {
		return errors.New("identity: migrate: empty dsn")
	}
	if direction != "up" && direction != "down" {
		return fmt.Errorf("direction must be up or down, got %q", direction)
	}

	m, err := newMigrator(driver, dsn)
	if err != nil {
		return err
	}
	defer func() { _, _ = m.Close() }()

	switch direction {
	case "up":
		err = m.Up()
	case "down":
		err = m.Down()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// MigrationVersion reports the applied schema version. A database with no
// migrations applied reports version 0.
func MigrationVersion(driver, dsn string) (version uint, dirty bool, err error) {
	if dsn == "" {
		return 0, false, errors.New("identity: migrate: empty dsn")
	}
	m, err := newMigrator(driver, dsn)
	if err != nil {
		return 0, false, err
	}
	defer func() { _, _ = m.Close() }()

	version, dirty, err = m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

func newMigrator(driver, dsn string) (*migrate.Migrate, error) {
	url, err := migrationURL(driver, dsn)
	if err != nil {
		return nil, err
	}

	source, err := iofs.New(migrationFS, "migrations/"+driver)
	if err != nil {
		return nil, fmt.Errorf("migrate source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, url)
	if err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return m, nil
}

func migrationURL(driver, dsn string) (string, error) {
	switch driver {
	case DriverPostgres:
		for _, scheme := range []string{"postgres://", "postgresql://"} {
			if strings.HasPrefix(dsn, scheme) {
				return "pgx5://" + strings.TrimPrefix(dsn, scheme), nil
			}
		}
		return "", fmt.Errorf("identity: postgres dsn must be a postgres:// URL")
	case DriverSQLite:
		return "sqlite://" + dsn, nil
	default:
		return "", fmt.Errorf("identity: unknown driver %q", driver)
	}
}
