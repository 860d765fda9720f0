package snapshots

import (
	"context"

	"github.com/loobric/smooth-core/internal/server/models"
)

// Repository is the append-only snapshot store. Snapshots capture the
// payload of a superseded version and are never rewritten.
type Repository interface {
	Insert(ctx context.Context, snap *models.Snapshot) error
	ListByEntity(ctx context.Context, entityType, entityID string) ([]*models.Snapshot, error)
	GetByVersion(ctx context.Context, entityType, entityID string, version int64) (*models.Snapshot, error)
	// ExportByOwner returns the snapshots of every live record owned by
	// ownerID (empty means all owners), for backup export.
	ExportByOwner(ctx context.Context, ownerID string) ([]*models.Snapshot, error)
}
