package audit

import (
	"context"

	"github.com/loobric/smooth-core/internal/server/models"
)

// Repository is the append-only audit trail. Rows are write-once; no update
// or delete statement is ever issued against them.
type Repository interface {
	Insert(ctx context.Context, rec *models.AuditRecord) error
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*models.AuditRecord, error)
	ListByEntity(ctx context.Context, entityType, entityID string, limit, offset int) ([]*models.AuditRecord, error)
}
