// Package migrate applies the embedded schema migrations with golang-migrate.
package migrate

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"medianest/backend/internal/db"
)

// ErrNoChange reports that the schema is already at the requested version.
var ErrNoChange = migrate.ErrNoChange

// Up migrates the schema at dsn to the latest embedded version.
func Up(dsn string) error {
	return run(dsn, func(m *migrate.Migrate) error { return m.Up() })
}

// Down rolls the schema at dsn all the way back.
func Down(dsn string) error {
	return run(dsn, func(m *migrate.Migrate) error { return m.Down() })
}

// Run dispatches on direction, which must be exactly "up" or "down".
func Run(dsn, direction string) error {
	switch direction {
	case "up":
		return Up(dsn)
	case "down":
		return Down(dsn)
	}
	return fmt.Errorf("migrate: direction must be up or down, got %q", direction)
}

func run(dsn string, step func(*migrate.Migrate) error) error {
	if dsn == "" {
		return errors.New("migrate: DATABASE_URL is not set")
	}
	source, err := iofs.New(db.MigrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("migrate source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", source, dsn)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	if err := step(m); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}
