// Package migration creates the engine schema on startup so a fresh
// database is usable out of the box.
package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	auditdomain "github.com/axiomprotocol/susu/internal/audit/domain"
	contributiondomain "github.com/axiomprotocol/susu/internal/contribution/domain"
	membershipdomain "github.com/axiomprotocol/susu/internal/membership/domain"
	payoutdomain "github.com/axiomprotocol/susu/internal/payout/domain"
	pooldomain "github.com/axiomprotocol/susu/internal/pool/domain"
	tokendomain "github.com/axiomprotocol/susu/internal/token/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"gorm.io/gorm"
)

//go:embed sql/*.sql
var embeddedMigrations embed.FS

const migrationsDir = "sql"

// RunMigrations applies the embedded SQL migrations against postgres.
func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Do not close the migrator: it would close the shared *sql.DB.

	return nil
}

// AutoMigrate builds the schema through gorm. Used for sqlite, where
// the embedded postgres migrations do not apply, and by tests against
// in-memory databases.
func AutoMigrate(conn *gorm.DB) error {
	return conn.AutoMigrate(
		&tokendomain.Account{},
		&tokendomain.Allowance{},
		&tokendomain.Transfer{},
		&pooldomain.Pool{},
		&membershipdomain.Member{},
		&contributiondomain.Contribution{},
		&payoutdomain.Payout{},
		&auditdomain.PoolEvent{},
	)
}
