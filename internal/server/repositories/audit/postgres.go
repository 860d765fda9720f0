// Package audit provides the PostgreSQL-backed append-only audit trail.
package audit

import (
	"context"
	"fmt"

	"github.com/loobric/smooth-core/internal/dbx"
	"github.com/loobric/smooth-core/internal/server/models"
)

// PostgresRepository implements audit storage over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Insert appends one audit row.
func (r *PostgresRepository) Insert(ctx context.Context, rec *models.AuditRecord) error {
	query := `
		INSERT INTO audit_log (id, user_id, operation, entity_type, entity_id, result, version, error_message, ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	if _, err := r.db.ExecContext(ctx, query,
		rec.ID, rec.UserID, rec.Operation, rec.EntityType, rec.EntityID,
		rec.Result, rec.Version, rec.ErrorMessage, rec.Timestamp,
	); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// ListByUser returns a user's audit rows, newest first.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*models.AuditRecord, error) {
	query := `
		SELECT id, user_id, operation, entity_type, entity_id, result, version, error_message, ts
		FROM audit_log
		WHERE user_id = $1
		ORDER BY ts DESC
		LIMIT $2 OFFSET $3
	`
	return r.query(ctx, query, userID, limit, offset)
}

// ListByEntity returns an entity's audit rows in chronological order.
func (r *PostgresRepository) ListByEntity(ctx context.Context, entityType, entityID string, limit, offset int) ([]*models.AuditRecord, error) {
	query := `
		SELECT id, user_id, operation, entity_type, entity_id, result, version, error_message, ts
		FROM audit_log
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY ts
		LIMIT $3 OFFSET $4
	`
	return r.query(ctx, query, entityType, entityID, limit, offset)
}

func (r *PostgresRepository) query(ctx context.Context, query string, args ...any) ([]*models.AuditRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select audit records: %w", err)
	}
	defer rows.Close()

	var result []*models.AuditRecord
	for rows.Next() {
		var item models.AuditRecord
		if err := rows.Scan(
			&item.ID, &item.UserID, &item.Operation, &item.EntityType, &item.EntityID,
			&item.Result, &item.Version, &item.ErrorMessage, &item.Timestamp,
		); err != nil {
			return nil, err
		}
		result = append(result, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
