// Package changes provides the PostgreSQL-backed append-only change event
// log that drives the incremental sync feed.
package changes

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/loobric/smooth-core/internal/dbx"
	"github.com/loobric/smooth-core/internal/server/models"
)

// PostgresRepository implements the change event log over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Insert appends one event. No update or delete statement is ever issued
// against this table.
func (r *PostgresRepository) Insert(ctx context.Context, event *models.ChangeEvent) error {
	tags := event.Tags
	if tags == nil {
		tags = []string{}
	}
	encoded, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("encoding tags: %w", err)
	}

	query := `
		INSERT INTO change_events (id, entity_type, entity_id, owner_id, tags, version, operation, ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	if _, err := r.db.ExecContext(ctx, query,
		event.ID, event.EntityType, event.EntityID, event.OwnerID, encoded,
		event.Version, event.Operation, event.Timestamp,
	); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// SinceVersion returns events with version > version, oldest first.
func (r *PostgresRepository) SinceVersion(ctx context.Context, entityType, ownerID string, version int64, limit int) ([]*models.ChangeEvent, error) {
	query := `
		SELECT id, entity_type, entity_id, owner_id, tags, version, operation, ts
		FROM change_events
		WHERE entity_type = $1 AND version > $2 AND ($3 = '' OR owner_id::text = $3)
		ORDER BY version, ts, entity_id
		LIMIT $4
	`
	return r.query(ctx, query, entityType, version, ownerID, limit)
}

// SinceTimestamp returns events with timestamp > ts, oldest first.
func (r *PostgresRepository) SinceTimestamp(ctx context.Context, entityType, ownerID string, ts time.Time, limit int) ([]*models.ChangeEvent, error) {
	query := `
		SELECT id, entity_type, entity_id, owner_id, tags, version, operation, ts
		FROM change_events
		WHERE entity_type = $1 AND ts > $2 AND ($3 = '' OR owner_id::text = $3)
		ORDER BY version, ts, entity_id
		LIMIT $4
	`
	return r.query(ctx, query, entityType, ts, ownerID, limit)
}

// MaxVersion returns the highest event version for the entity type, or 0
// when no events exist, so clients can bootstrap a cursor.
func (r *PostgresRepository) MaxVersion(ctx context.Context, entityType, ownerID string) (int64, error) {
	query := `
		SELECT COALESCE(MAX(version), 0)
		FROM change_events
		WHERE entity_type = $1 AND ($2 = '' OR owner_id::text = $2)
	`
	var max int64
	if err := r.db.QueryRowContext(ctx, query, entityType, ownerID).Scan(&max); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return max, nil
}

func (r *PostgresRepository) query(ctx context.Context, query string, args ...any) ([]*models.ChangeEvent, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select change events: %w", err)
	}
	defer rows.Close()

	var result []*models.ChangeEvent
	for rows.Next() {
		var item models.ChangeEvent
		var tags []byte
		if err := rows.Scan(
			&item.ID, &item.EntityType, &item.EntityID, &item.OwnerID, &tags,
			&item.Version, &item.Operation, &item.Timestamp,
		); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(tags, &item.Tags); err != nil {
			return nil, fmt.Errorf("decoding tags: %w", err)
		}
		result = append(result, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
