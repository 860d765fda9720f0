// Package grants provides the PostgreSQL-backed repository for API-key
// grant definitions.
package grants

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/loobric/smooth-core/internal/common"
	"github.com/loobric/smooth-core/internal/dbx"
	"github.com/loobric/smooth-core/internal/server/models"
)

// PostgresRepository implements grant storage over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func encodeList(values []string) ([]byte, error) {
	if values == nil {
		values = []string{}
	}
	return json.Marshal(values)
}

// Create inserts a new grant and fills in its generated id and timestamps.
func (r *PostgresRepository) Create(ctx context.Context, grant *models.Grant) error {
	scopes, err := encodeList(grant.Scopes)
	if err != nil {
		return fmt.Errorf("encoding scopes: %w", err)
	}
	tags, err := encodeList(grant.Tags)
	if err != nil {
		return fmt.Errorf("encoding tags: %w", err)
	}

	query := `
		INSERT INTO grants (id, user_id, name, secret_hash, scopes, tags, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`
	err = r.db.QueryRowContext(ctx, query,
		grant.ID, grant.UserID, grant.Name, grant.SecretHash, scopes, tags, grant.ExpiresAt,
	).Scan(&grant.CreatedAt, &grant.UpdatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// GetByID returns one grant or common.ErrNotFound.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Grant, error) {
	query := `
		SELECT id, user_id, name, secret_hash, scopes, tags, expires_at, revoked, last_used_at, created_at, updated_at
		FROM grants
		WHERE id = $1
	`
	grant, err := scanGrant(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	return grant, err
}

// ListByUser returns all grants of one user, newest first, revoked included.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]*models.Grant, error) {
	query := `
		SELECT id, user_id, name, secret_hash, scopes, tags, expires_at, revoked, last_used_at, created_at, updated_at
		FROM grants
		WHERE user_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to select grants: %w", err)
	}
	defer rows.Close()

	var result []*models.Grant
	for rows.Next() {
		item, err := scanGrant(rows)
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

// Revoke marks a grant unusable while keeping its row for audit.
func (r *PostgresRepository) Revoke(ctx context.Context, id string) error {
	return r.exec(ctx, `UPDATE grants SET revoked = TRUE, updated_at = now() WHERE id = $1`, id)
}

// Delete removes a grant permanently.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	return r.exec(ctx, `DELETE FROM grants WHERE id = $1`, id)
}

// TouchLastUsed records that the grant produced a principal at time at.
func (r *PostgresRepository) TouchLastUsed(ctx context.Context, id string, at time.Time) error {
	return r.exec(ctx, `UPDATE grants SET last_used_at = $2 WHERE id = $1`, id, at)
}

func (r *PostgresRepository) exec(ctx context.Context, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGrant(row rowScanner) (*models.Grant, error) {
	var item models.Grant
	var scopes, tags []byte
	if err := row.Scan(
		&item.ID, &item.UserID, &item.Name, &item.SecretHash, &scopes, &tags,
		&item.ExpiresAt, &item.Revoked, &item.LastUsedAt, &item.CreatedAt, &item.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(scopes, &item.Scopes); err != nil {
		return nil, fmt.Errorf("decoding scopes: %w", err)
	}
	if err := json.Unmarshal(tags, &item.Tags); err != nil {
		return nil, fmt.Errorf("decoding tags: %w", err)
	}
	return &item, nil
}
