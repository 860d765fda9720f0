package resources

import (
	"context"

	"github.com/loobric/smooth-core/internal/server/models"
)

// Repository provides versioned record storage. Insert is insert-if-absent;
// UpdateCAS and DeleteCAS are compare-and-swap writes keyed on the expected
// version and return common.VersionConflictError on mismatch.
type Repository interface {
	Insert(ctx context.Context, res *models.Resource) error
	Get(ctx context.Context, entityType, id string) (*models.Resource, error)
	List(ctx context.Context, entityType, ownerID string, limit, offset int) ([]*models.Resource, error)
	UpdateCAS(ctx context.Context, res *models.Resource, expectedVersion int64) error
	DeleteCAS(ctx context.Context, entityType, id string, expectedVersion int64) error
	// ExportByOwner returns every record of one owner across entity types
	// (empty ownerID means all owners), for backup export.
	ExportByOwner(ctx context.Context, ownerID string) ([]*models.Resource, error)
}
