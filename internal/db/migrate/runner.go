// Package migrate applies the embedded SQL migrations with golang-migrate.
// Schema bootstrap only: it creates the users and user_sessions tables and
// their indexes, and never runs on the request path.
package migrate

import (
	"errors"
	"fmt"

	"identity-store/internal/db"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// ErrNoChange reports that the schema is already at the target version.
// Run returns it unwrapped; callers decide whether it counts as success.
var ErrNoChange = migrate.ErrNoChange

// Run applies the embedded migrations to the database at dsn. direction is
// "up" or "down" and is validated before any connection is opened.
func Run(dsn, direction string) error {
	if dsn == "" {
		return errors.New("DATABASE_URL is not set")
	}
	if direction != "up" && direction != "down" {
		return fmt.Errorf("direction must be up or down, got %q", direction)
	}

	src, err := iofs.New(db.Migrations, "migrations")
	if err != nil {
		return fmt.Errorf("migrate source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	step := m.Up
	if direction == "down" {
		step = m.Down
	}
	return step()
}
