// Package resources provides the PostgreSQL-backed repository for generic
// versioned records. All writes against the version column go through
// compare-and-swap statements so concurrent writers cannot clobber each other.
package resources

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/loobric/smooth-core/internal/common"
	"github.com/loobric/smooth-core/internal/dbx"
	"github.com/loobric/smooth-core/internal/server/models"
)

// PostgresRepository implements resource storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func encodeTags(tags []string) ([]byte, error) {
	if tags == nil {
		tags = []string{}
	}
	return json.Marshal(tags)
}

// Insert stores a brand-new record at version 1. A duplicate id surfaces as
// a database error from the primary key constraint.
func (r *PostgresRepository) Insert(ctx context.Context, res *models.Resource) error {
	tags, err := encodeTags(res.Tags)
	if err != nil {
		return fmt.Errorf("encoding tags: %w", err)
	}

	query := `
		INSERT INTO resources (id, entity_type, owner_id, tags, version, payload, created_by, updated_by)
		VALUES ($1, $2, $3, $4, 1, $5, $6, $7)
		RETURNING version, created_at, updated_at
	`
	err = r.db.QueryRowContext(ctx, query,
		res.ID, res.EntityType, res.OwnerID, tags, []byte(res.Payload), res.CreatedBy, res.UpdatedBy,
	).Scan(&res.Version, &res.CreatedAt, &res.UpdatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Get returns one record by entity type and id, or common.ErrNotFound.
func (r *PostgresRepository) Get(ctx context.Context, entityType, id string) (*models.Resource, error) {
	query := `
		SELECT id, entity_type, owner_id, tags, version, payload, created_by, updated_by, created_at, updated_at
		FROM resources
		WHERE entity_type = $1 AND id = $2
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, entityType, id))
}

// List returns records of one entity type, optionally restricted to an
// owner (empty ownerID means all owners), ordered by creation time.
func (r *PostgresRepository) List(ctx context.Context, entityType, ownerID string, limit, offset int) ([]*models.Resource, error) {
	query := `
		SELECT id, entity_type, owner_id, tags, version, payload, created_by, updated_by, created_at, updated_at
		FROM resources
		WHERE entity_type = $1 AND ($2 = '' OR owner_id::text = $2)
		ORDER BY created_at, id
		LIMIT $3 OFFSET $4
	`
	rows, err := r.db.QueryContext(ctx, query, entityType, ownerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to select resources: %w", err)
	}
	defer rows.Close()

	var result []*models.Resource
	for rows.Next() {
		item, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// ExportByOwner returns every record of one owner across entity types,
// ordered by entity type then creation time. Empty ownerID exports all.
func (r *PostgresRepository) ExportByOwner(ctx context.Context, ownerID string) ([]*models.Resource, error) {
	query := `
		SELECT id, entity_type, owner_id, tags, version, payload, created_by, updated_by, created_at, updated_at
		FROM resources
		WHERE $1 = '' OR owner_id::text = $1
		ORDER BY entity_type, created_at, id
	`
	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to select resources: %w", err)
	}
	defer rows.Close()

	var result []*models.Resource
	for rows.Next() {
		item, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// UpdateCAS performs a compare-and-swap update: the write succeeds only if
// the stored version still equals expectedVersion, in which case the stored
// version becomes expectedVersion+1 and res is refreshed with the new
// version and timestamp. On mismatch it returns a VersionConflictError
// carrying both versions; a missing row returns common.ErrNotFound.
func (r *PostgresRepository) UpdateCAS(ctx context.Context, res *models.Resource, expectedVersion int64) error {
	tags, err := encodeTags(res.Tags)
	if err != nil {
		return fmt.Errorf("encoding tags: %w", err)
	}

	query := `
		UPDATE resources
		SET tags = $1, payload = $2, updated_by = $3, version = version + 1, updated_at = now()
		WHERE entity_type = $4 AND id = $5 AND version = $6
		RETURNING version, updated_at
	`
	err = r.db.QueryRowContext(ctx, query,
		tags, []byte(res.Payload), res.UpdatedBy, res.EntityType, res.ID, expectedVersion,
	).Scan(&res.Version, &res.UpdatedAt)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("db error: %w", err)
	}
	return r.casFailure(ctx, res.EntityType, res.ID, expectedVersion)
}

// DeleteCAS removes a record iff its stored version equals expectedVersion.
// Pass expectedVersion 0 to delete regardless of version.
func (r *PostgresRepository) DeleteCAS(ctx context.Context, entityType, id string, expectedVersion int64) error {
	query := `
		DELETE FROM resources
		WHERE entity_type = $1 AND id = $2 AND ($3 = 0 OR version = $3)
	`
	result, err := r.db.ExecContext(ctx, query, entityType, id, expectedVersion)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 1 {
		return nil
	}
	return r.casFailure(ctx, entityType, id, expectedVersion)
}

// casFailure distinguishes a missing row from a stale expected version.
func (r *PostgresRepository) casFailure(ctx context.Context, entityType, id string, expectedVersion int64) error {
	var actual int64
	err := r.db.QueryRowContext(ctx,
		`SELECT version FROM resources WHERE entity_type = $1 AND id = $2`,
		entityType, id,
	).Scan(&actual)
	if errors.Is(err, sql.ErrNoRows) {
		return common.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return &common.VersionConflictError{Expected: expectedVersion, Actual: actual}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *PostgresRepository) scanOne(row *sql.Row) (*models.Resource, error) {
	res, err := r.scanRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	return res, err
}

func (r *PostgresRepository) scanRow(row rowScanner) (*models.Resource, error) {
	var item models.Resource
	var tags, payload []byte
	if err := row.Scan(
		&item.ID, &item.EntityType, &item.OwnerID, &tags, &item.Version, &payload,
		&item.CreatedBy, &item.UpdatedBy, &item.CreatedAt, &item.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(tags, &item.Tags); err != nil {
		return nil, fmt.Errorf("decoding tags: %w", err)
	}
	item.Payload = json.RawMessage(payload)
	return &item, nil
}
