package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/loobric/smooth-core/internal/common"
	"github.com/loobric/smooth-core/internal/logging"
	"github.com/loobric/smooth-core/internal/server/auth"
	"github.com/loobric/smooth-core/internal/server/models"
	"github.com/loobric/smooth-core/internal/server/repositories/repomanager"
)

// GrantService manages API-key grants. The plain key is returned exactly
// once at creation; afterwards only the bcrypt hash exists. Revocation is a
// soft delete so the grant stays visible for audit.
type GrantService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	logger      logging.Logger
}

// NewGrantService constructs a GrantService.
func NewGrantService(db *sql.DB, m repomanager.RepositoryManager, logger logging.Logger) *GrantService {
	return &GrantService{db: db, repomanager: m, logger: logger.With("module", "grants")}
}

// CreateKey mints a new API key for userID and returns the plain key
// alongside the stored grant. The caller must pass the key on to the user;
// it cannot be recovered later.
func (s *GrantService) CreateKey(ctx context.Context, userID, name string, scopes, tags []string, expiresAt *time.Time) (string, *models.Grant, error) {
	// The user must exist and be active before a key can be bound to it.
	user, err := s.repomanager.Users(s.db).GetByID(ctx, userID)
	if err != nil {
		return "", nil, err
	}
	if !user.IsActive {
		return "", nil, fmt.Errorf("%w: account is inactive", common.ErrValidation)
	}

	secret := auth.NewKeySecret()
	hash, err := auth.HashSecret(secret)
	if err != nil {
		return "", nil, err
	}

	grant := &models.Grant{
		ID:         uuid.NewString(),
		UserID:     user.ID,
		Name:       name,
		SecretHash: hash,
		Scopes:     scopes,
		Tags:       tags,
		ExpiresAt:  expiresAt,
	}
	if err := s.repomanager.Grants(s.db).Create(ctx, grant); err != nil {
		return "", nil, err
	}

	s.logger.Info(ctx, "api key created", "grant_id", grant.ID, "user_id", user.ID, "name", name)
	return auth.FormatKey(grant.ID, secret), grant, nil
}

// ListKeys returns all grants of one user, revoked included, without
// secrets.
func (s *GrantService) ListKeys(ctx context.Context, userID string) ([]*models.Grant, error) {
	return s.repomanager.Grants(s.db).ListByUser(ctx, userID)
}

// RevokeKey disables a grant while keeping its row. Revoked grants never
// resolve again.
func (s *GrantService) RevokeKey(ctx context.Context, id string) error {
	if err := s.repomanager.Grants(s.db).Revoke(ctx, id); err != nil {
		return err
	}
	s.logger.Info(ctx, "api key revoked", "grant_id", id)
	return nil
}

// DeleteKey removes a grant permanently.
func (s *GrantService) DeleteKey(ctx context.Context, id string) error {
	if err := s.repomanager.Grants(s.db).Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info(ctx, "api key deleted", "grant_id", id)
	return nil
}
