package migrations

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"

	_ "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/clickhouse"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// Driver names a migration target.
type Driver string

const (
	Postgres   Driver = "postgres"
	ClickHouse Driver = "clickhouse"
)

// New creates a migrator for the driver backed by the embedded migration files.
func New(driver Driver, dsn string) (*migrate.Migrate, error) {
	fsys, dir, err := source(driver)
	if err != nil {
		return nil, err
	}
	databaseURL, err := DatabaseURL(driver, dsn)
	if err != nil {
		return nil, err
	}

	src, err := iofs.New(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("open embedded %s migrations: %w", driver, err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("init migrate: %w", err)
	}
	return m, nil
}

// Up applies all pending migrations. No pending migrations is not an error.
func Up(driver Driver, dsn string) (err error) {
	m, err := New(driver, dsn)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := Close(m); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	if err = m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

// Down rolls back all applied migrations.
func Down(driver Driver, dsn string) (err error) {
	m, err := New(driver, dsn)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := Close(m); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	if err = m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate down: %w", err)
	}
	return nil
}

// Close releases the source and database handles of m.
func Close(m *migrate.Migrate) error {
	if m == nil {
		return nil
	}
	sourceErr, dbErr := m.Close()
	if sourceErr != nil && dbErr != nil {
		return fmt.Errorf("close migrator: source: %v; database: %v", sourceErr, dbErr)
	}
	if sourceErr != nil {
		return fmt.Errorf("close migrator: source: %w", sourceErr)
	}
	if dbErr != nil {
		return fmt.Errorf("close migrator: database: %w", dbErr)
	}
	return nil
}

// DatabaseURL rewrites an application DSN into the URL form golang-migrate expects for driver.
func DatabaseURL(driver Driver, dsn string) (string, error) {
	if strings.TrimSpace(dsn) == "" {
		return "", fmt.Errorf("%s dsn is required", driver)
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("parse %s dsn: %w", driver, err)
	}

	switch driver {
	case Postgres:
		if u.Scheme != "postgres" && u.Scheme != "postgresql" && u.Scheme != "pgx5" {
			return "", fmt.Errorf("unsupported postgres dsn scheme %q", u.Scheme)
		}
		u.Scheme = "pgx5"
	case ClickHouse:
		if u.Scheme != "clickhouse" {
			return "", fmt.Errorf("unsupported clickhouse dsn scheme %q", u.Scheme)
		}
		q := u.Query()
		if q.Get("x-multi-statement") == "" {
			q.Set("x-multi-statement", "true")
		}
		u.RawQuery = q.Encode()
	default:
		return "", fmt.Errorf("unsupported migration driver %q", driver)
	}
	return u.String(), nil
}

func source(driver Driver) (fs.FS, string, error) {
	switch driver {
	case Postgres:
		return PostgresFS, "postgres", nil
	case ClickHouse:
		return ClickHouseFS, "clickhouse", nil
	default:
		return nil, "", fmt.Errorf("unsupported migration driver %q", driver)
	}
}
