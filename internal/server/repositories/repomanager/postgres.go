// Package repomanager provides a concrete RepositoryManager for PostgreSQL,
// wiring together repository constructors and database migrations (via goose).
package repomanager

import (
	"context"
	"database/sql"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/loobric/smooth-core/internal/dbx"
	"github.com/loobric/smooth-core/internal/server/migrations"
	"github.com/loobric/smooth-core/internal/server/repositories/audit"
	"github.com/loobric/smooth-core/internal/server/repositories/changes"
	"github.com/loobric/smooth-core/internal/server/repositories/grants"
	"github.com/loobric/smooth-core/internal/server/repositories/resources"
	"github.com/loobric/smooth-core/internal/server/repositories/snapshots"
	"github.com/loobric/smooth-core/internal/server/repositories/users"
)

// PostgresRepositoryManager vends PostgreSQL-backed repository
// implementations and exposes a schema migration hook.
type PostgresRepositoryManager struct{}

// NewPostgresRepositoryManager constructs a PostgreSQL-backed RepositoryManager.
func NewPostgresRepositoryManager() RepositoryManager {
	return &PostgresRepositoryManager{}
}

// Users returns a users.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Users(db dbx.DBTX) users.Repository {
	return users.NewPostgresRepository(db)
}

// Grants returns a grants.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Grants(db dbx.DBTX) grants.Repository {
	return grants.NewPostgresRepository(db)
}

// Resources returns a resources.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Resources(db dbx.DBTX) resources.Repository {
	return resources.NewPostgresRepository(db)
}

// Snapshots returns a snapshots.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Snapshots(db dbx.DBTX) snapshots.Repository {
	return snapshots.NewPostgresRepository(db)
}

// Changes returns a changes.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Changes(db dbx.DBTX) changes.Repository {
	return changes.NewPostgresRepository(db)
}

// Audit returns an audit.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Audit(db dbx.DBTX) audit.Repository {
	return audit.NewPostgresRepository(db)
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations sets up goose with the embedded migrations and runs them
// against the provided database connection.
func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	return gooseUpContext(ctx, db, ".")
}
