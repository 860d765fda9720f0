// Package snapshots provides the PostgreSQL-backed store for immutable
// point-in-time captures of superseded record versions.
package snapshots

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

// PostgresRepository implements snapshot storage over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Insert appends one snapshot row. The (entity_id, version) unique
// constraint guarantees at most one capture per superseded version.
func (r *PostgresRepository) Insert(ctx context.Context, snap *models.Snapshot) error {
	tags := snap.Tags
	if tags == nil {
		tags = []string{}
	}
	encoded, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("encoding tags: %w", err)
	}

	query := `
		INSERT INTO snapshots (id, entity_type, entity_id, version, payload, tags, change_summary, captured_by, captured_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	if _, err := r.db.ExecContext(ctx, query,
		snap.ID, snap.EntityType, snap.EntityID, snap.Version, []byte(snap.Payload),
		encoded, snap.ChangeSummary, snap.CapturedBy, snap.CapturedAt,
	); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// ListByEntity returns all snapshots for one record, oldest version first.
func (r *PostgresRepository) ListByEntity(ctx context.Context, entityType, entityID string) ([]*models.Snapshot, error) {
	query := `
		SELECT id, entity_type, entity_id, version, payload, tags, change_summary, captured_by, captured_at
		FROM snapshots
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY version
	`
	rows, err := r.db.QueryContext(ctx, query, entityType, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to select snapshots: %w", err)
	}
	defer rows.Close()

	var result []*models.Snapshot
	for rows.Next() {
		item, err := scanSnapshot(rows)
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

// ExportByOwner returns snapshots of every live record owned by ownerID,
// ordered for deterministic export. Empty ownerID exports all.
func (r *PostgresRepository) ExportByOwner(ctx context.Context, ownerID string) ([]*models.Snapshot, error) {
	query := `
		SELECT s.id, s.entity_type, s.entity_id, s.version, s.payload, s.tags, s.change_summary, s.captured_by, s.captured_at
		FROM snapshots s
		JOIN resources r ON r.id = s.entity_id
		WHERE $1 = '' OR r.owner_id::text = $1
		ORDER BY s.entity_type, s.entity_id, s.version
	`
	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to select snapshots: %w", err)
	}
	defer rows.Close()

	var result []*models.Snapshot
	for rows.Next() {
		item, err := scanSnapshot(rows)
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

// GetByVersion returns the snapshot of one superseded version, or
// common.ErrNotFound.
func (r *PostgresRepository) GetByVersion(ctx context.Context, entityType, entityID string, version int64) (*models.Snapshot, error) {
	query := `
		SELECT id, entity_type, entity_id, version, payload, tags, change_summary, captured_by, captured_at
		FROM snapshots
		WHERE entity_type = $1 AND entity_id = $2 AND version = $3
	`
	snap, err := scanSnapshot(r.db.QueryRowContext(ctx, query, entityType, entityID, version))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	return snap, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row rowScanner) (*models.Snapshot, error) {
	var item models.Snapshot
	var tags, payload []byte
	if err := row.Scan(
		&item.ID, &item.EntityType, &item.EntityID, &item.Version, &payload,
		&tags, &item.ChangeSummary, &item.CapturedBy, &item.CapturedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(tags, &item.Tags); err != nil {
		return nil, fmt.Errorf("decoding tags: %w", err)
	}
	item.Payload = json.RawMessage(payload)
	return &item, nil
}
