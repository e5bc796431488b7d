package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// MigrationStatus represents the status of a migration (applied or pending).
type MigrationStatus struct {
	Version   int64
	Name      string
	Applied   bool
	AppliedAt *time.Time
}

// Migrator applies the embedded goose migrations. goose works on *sql.DB, so
// one is opened on top of the pgx pool.
type Migrator struct {
	db       *sql.DB
	provider *goose.Provider
}

// NewMigrator creates a Migrator for the SQL files bundled with the binary.
func NewMigrator(pool *pgxpool.Pool) (*Migrator, error) {
	fsys, err := MigrationsFS()
	if err != nil {
		return nil, err
	}
	db := stdlib.OpenDBFromPool(pool)
	provider, err := goose.NewProvider(goose.DialectPostgres, db, fsys)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create goose provider: %w", err)
	}
	return &Migrator{db: db, provider: provider}, nil
}

// MigrationsFS exposes the embedded migration files rooted at their directory.
func MigrationsFS() (fs.FS, error) {
	sub, err := fs.Sub(embeddedMigrations, "migrations")
	if err != nil {
		return nil, fmt.Errorf("open embedded migrations: %w", err)
	}
	return sub, nil
}

// Up applies all pending migrations and returns how many ran.
func (m *Migrator) Up(ctx context.Context) (int, error) {
	results, err := m.provider.Up(ctx)
	if err != nil {
		return len(results), fmt.Errorf("apply migrations: %w", err)
	}
	return len(results), nil
}

// Down rolls back the most recent migration.
func (m *Migrator) Down(ctx context.Context) error {
	if _, err := m.provider.Down(ctx); err != nil {
		return fmt.Errorf("rollback migration: %w", err)
	}
	return nil
}

// Version returns the current schema version.
func (m *Migrator) Version(ctx context.Context) (int64, error) {
	v, err := m.provider.GetDBVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("get version: %w", err)
	}
	return v, nil
}

// Status returns every known migration with its applied state.
func (m *Migrator) Status(ctx context.Context) ([]MigrationStatus, error) {
	results, err := m.provider.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("migration status: %w", err)
	}

	statuses := make([]MigrationStatus, 0, len(results))
	for _, r := range results {
		s := MigrationStatus{
			Version: r.Source.Version,
			Name:    r.Source.Path,
			Applied: r.State == goose.StateApplied,
		}
		if s.Applied && !r.AppliedAt.IsZero() {
			at := r.AppliedAt
			s.AppliedAt = &at
		}
		statuses = append(statuses, s)
	}
	return statuses, nil
}

// Close releases the *sql.DB wrapper. The pool itself is owned by the caller.
func (m *Migrator) Close() error {
	return m.provider.Close()
}
