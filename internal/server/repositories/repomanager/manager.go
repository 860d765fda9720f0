package repomanager

import (
	"context"
	"database/sql"

	"github.com/loobric/smooth-core/internal/dbx"
	"github.com/loobric/smooth-core/internal/server/repositories/audit"
	"github.com/loobric/smooth-core/internal/server/repositories/changes"
	"github.com/loobric/smooth-core/internal/server/repositories/grants"
	"github.com/loobric/smooth-core/internal/server/repositories/resources"
	"github.com/loobric/smooth-core/internal/server/repositories/snapshots"
	"github.com/loobric/smooth-core/internal/server/repositories/users"
)

// RepositoryManager vends repository implementations bound to a DBTX, so the
// same repository code runs both on a plain connection and inside a
// transaction. It also exposes the schema migration hook.
type RepositoryManager interface {
	Users(db dbx.DBTX) users.Repository
	Grants(db dbx.DBTX) grants.Repository
	Resources(db dbx.DBTX) resources.Repository
	Snapshots(db dbx.DBTX) snapshots.Repository
	Changes(db dbx.DBTX) changes.Repository
	Audit(db dbx.DBTX) audit.Repository
	RunMigrations(ctx context.Context, db *sql.DB) error
}
