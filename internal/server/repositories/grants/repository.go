package grants

import (
	"context"
	"time"

	"github.com/loobric/smooth-core/internal/server/models"
)

// Repository stores API-key grants. Secrets are persisted only as bcrypt
// hashes; revocation is a soft delete so the row stays for audit.
type Repository interface {
	Create(ctx context.Context, grant *models.Grant) error
	GetByID(ctx context.Context, id string) (*models.Grant, error)
	ListByUser(ctx context.Context, userID string) ([]*models.Grant, error)
	Revoke(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	TouchLastUsed(ctx context.Context, id string, at time.Time) error
}
