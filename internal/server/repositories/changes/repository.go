package changes

import (
	"context"
	"time"

	"github.com/loobric/smooth-core/internal/server/models"
)

// Repository is the append-only change event log. Events are never updated
// or deleted; queries return events in (version, timestamp, entity_id)
// ascending order. An empty ownerID means no owner filtering.
type Repository interface {
	Insert(ctx context.Context, event *models.ChangeEvent) error
	SinceVersion(ctx context.Context, entityType, ownerID string, version int64, limit int) ([]*models.ChangeEvent, error)
	SinceTimestamp(ctx context.Context, entityType, ownerID string, ts time.Time, limit int) ([]*models.ChangeEvent, error)
	MaxVersion(ctx context.Context, entityType, ownerID string) (int64, error)
}
