package services

import (
	"context"

	"github.com/loobric/smooth-core/internal/common"
	"github.com/loobric/smooth-core/internal/logging"
	"github.com/loobric/smooth-core/internal/server/authz"
	"github.com/loobric/smooth-core/internal/server/models"
)

// QueryService is the read path over live records. Reads go through the
// same evaluator as writes: single reads report an invisible record as not
// found, list reads filter it out instead of failing.
type QueryService struct {
	versions *VersionService
	audit    *AuditService
	maxLimit int
	logger   logging.Logger
}

// NewQueryService constructs a QueryService. maxLimit bounds list page sizes.
func NewQueryService(versions *VersionService, audit *AuditService, maxLimit int, logger logging.Logger) *QueryService {
	return &QueryService{
		versions: versions,
		audit:    audit,
		maxLimit: maxLimit,
		logger:   logger.With("module", "query"),
	}
}

// Get returns one record visible to the principal. A record that exists
// but is invisible yields the same not-found error as one that does not.
func (s *QueryService) Get(ctx context.Context, p *models.Principal, entityType, id string) (*models.Resource, error) {
	if !authz.HasScope(p.Scopes, "read") {
		s.audit.RecordDecision(ctx, p, "read", entityType, id, false)
		return nil, common.ErrPermissionDenied
	}
	res, err := s.versions.Get(ctx, entityType, id)
	if err != nil {
		return nil, err
	}
	granted := authz.AllowResource(p, res, "read")
	s.audit.RecordDecision(ctx, p, "read", entityType, id, granted)
	if !granted {
		return nil, common.ErrNotFound
	}
	return res, nil
}

// List returns the records of one entity type visible to the principal.
// Admin principals see all owners; everyone else is restricted to their
// own records, then tag-filtered.
func (s *QueryService) List(ctx context.Context, p *models.Principal, entityType string, limit, offset int) ([]*models.Resource, error) {
	if !authz.HasScope(p.Scopes, "read") {
		s.audit.RecordDecision(ctx, p, "read", entityType, "", false)
		return nil, common.ErrPermissionDenied
	}
	limit = clampLimit(limit, s.maxLimit)

	ownerID := p.OwnerID
	if authz.IsAdmin(p.Scopes) {
		ownerID = ""
	}
	items, err := s.versions.List(ctx, entityType, ownerID, limit, offset)
	if err != nil {
		return nil, err
	}
	return authz.FilterResources(p, items, "read"), nil
}

// clampLimit applies the configured page bound, substituting it for
// missing or oversized caller limits.
func clampLimit(limit, max int) int {
	if limit <= 0 || limit > max {
		return max
	}
	return limit
}
