// Package services contains the server-side business logic of smooth-core:
// version control of records, bulk coordination, the change feed, history
// and restore, grants, users, audit and backup export.
package services

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/loobric/smooth-core/internal/logging"
	"github.com/loobric/smooth-core/internal/server/models"
	"github.com/loobric/smooth-core/internal/server/repositories/repomanager"
)

// AuditService writes the immutable audit trail: one record per
// authorization decision and per committed mutation. Every record is also
// mirrored to the structured log sink. Audit writes are best-effort — a
// failed insert is logged but never fails the audited operation.
type AuditService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	logger      logging.Logger
	now         func() time.Time
}

// NewAuditService constructs an AuditService.
func NewAuditService(db *sql.DB, m repomanager.RepositoryManager, logger logging.Logger) *AuditService {
	return &AuditService{
		db:          db,
		repomanager: m,
		logger:      logger.With("module", "audit"),
		now:         time.Now,
	}
}

// RecordDecision logs one authorization decision.
func (s *AuditService) RecordDecision(ctx context.Context, p *models.Principal, operation, entityType, entityID string, granted bool) {
	result := models.AuditResultSuccess
	if !granted {
		result = models.AuditResultDenied
	}
	s.insert(ctx, &models.AuditRecord{
		UserID:     p.OwnerID,
		Operation:  operation,
		EntityType: entityType,
		EntityID:   entityID,
		Result:     result,
	})
	s.logger.Info(ctx, "authorization decision",
		"user_id", p.OwnerID,
		"operation", operation,
		"entity_type", entityType,
		"entity_id", entityID,
		"granted", granted,
	)
}

// RecordMutation logs one committed mutation with the resulting version.
func (s *AuditService) RecordMutation(ctx context.Context, userID, operation, entityType, entityID string, version int64) {
	s.insert(ctx, &models.AuditRecord{
		UserID:     userID,
		Operation:  operation,
		EntityType: entityType,
		EntityID:   entityID,
		Result:     models.AuditResultSuccess,
		Version:    version,
	})
	s.logger.Info(ctx, "mutation committed",
		"user_id", userID,
		"operation", operation,
		"entity_type", entityType,
		"entity_id", entityID,
		"version", version,
	)
}

// RecordFailure logs one failed operation with a generic message.
func (s *AuditService) RecordFailure(ctx context.Context, userID, operation, entityType, entityID, message string) {
	s.insert(ctx, &models.AuditRecord{
		UserID:       userID,
		Operation:    operation,
		EntityType:   entityType,
		EntityID:     entityID,
		Result:       models.AuditResultError,
		ErrorMessage: message,
	})
	s.logger.Warn(ctx, "operation failed",
		"user_id", userID,
		"operation", operation,
		"entity_type", entityType,
		"entity_id", entityID,
		"error", message,
	)
}

// ListByUser returns a user's audit rows, newest first.
func (s *AuditService) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*models.AuditRecord, error) {
	return s.repomanager.Audit(s.db).ListByUser(ctx, userID, limit, offset)
}

// ListByEntity returns an entity's audit rows in chronological order.
func (s *AuditService) ListByEntity(ctx context.Context, entityType, entityID string, limit, offset int) ([]*models.AuditRecord, error) {
	return s.repomanager.Audit(s.db).ListByEntity(ctx, entityType, entityID, limit, offset)
}

func (s *AuditService) insert(ctx context.Context, rec *models.AuditRecord) {
	rec.ID = uuid.NewString()
	rec.Timestamp = s.now()
	if err := s.repomanager.Audit(s.db).Insert(ctx, rec); err != nil {
		s.logger.Error(ctx, "audit insert failed", "error", err.Error())
	}
}
