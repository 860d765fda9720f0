package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/loobric/smooth-core/internal/common"
	"github.com/loobric/smooth-core/internal/logging"
	"github.com/loobric/smooth-core/internal/server/authz"
	"github.com/loobric/smooth-core/internal/server/models"
)

// Error kinds reported per failed bulk item.
const (
	KindValidation       = "validation_error"
	KindVersionConflict  = "version_conflict"
	KindPermissionDenied = "permission_denied"
	KindNotFound         = "not_found"
	KindInternal         = "internal_error"
)

// CreateItem is one item of a bulk create. Versions are never supplied on
// create; the coordinator assigns ids when absent.
type CreateItem struct {
	ID      string          `validate:"omitempty,uuid"`
	Tags    []string        `validate:"omitempty,dive,required"`
	Payload json.RawMessage `validate:"required"`
	Version int64           `validate:"eq=0"`
}

// UpdateItem is one item of a bulk update, carrying the version the caller
// last observed.
type UpdateItem struct {
	ID              string          `validate:"required,uuid"`
	ExpectedVersion int64           `validate:"required,gte=1"`
	Tags            []string        `validate:"omitempty,dive,required"`
	Payload         json.RawMessage `validate:"required"`
}

// DeleteItem is one item of a bulk delete. ExpectedVersion 0 skips the
// version check.
type DeleteItem struct {
	ID              string `validate:"required,uuid"`
	ExpectedVersion int64  `validate:"gte=0"`
}

// BulkService drives ordered arrays of per-item requests through
// authorization and the version controller. Items are independent: a
// failure on one item never aborts or rolls back the others, and the
// result arrays reference original input positions by index. There is no
// batch-wide transaction by design.
type BulkService struct {
	versions *VersionService
	audit    *AuditService
	validate *validator.Validate
	logger   logging.Logger
}

// NewBulkService constructs a BulkService over the version controller.
func NewBulkService(versions *VersionService, audit *AuditService, logger logging.Logger) *BulkService {
	return &BulkService{
		versions: versions,
		audit:    audit,
		validate: validator.New(),
		logger:   logger.With("module", "bulk"),
	}
}

// CreateBatch creates records owned by the principal, one outcome per item.
func (s *BulkService) CreateBatch(ctx context.Context, p *models.Principal, entityType string, items []CreateItem) (*models.BulkResult, error) {
	result := &models.BulkResult{}
	scope := "write:" + entityType

	for i, item := range items {
		if err := s.validate.Struct(item); err != nil {
			s.fail(ctx, p, result, i, item.ID, entityType, models.OpCreated,
				fmt.Errorf("%w: %s", common.ErrValidation, validationMessage(err)))
			continue
		}
		granted := authz.Allow(p, p.OwnerID, item.Tags, scope)
		s.audit.RecordDecision(ctx, p, models.OpCreated, entityType, item.ID, granted)
		if !granted {
			s.fail(ctx, p, result, i, item.ID, entityType, models.OpCreated, common.ErrPermissionDenied)
			continue
		}

		res := &models.Resource{
			ID:         item.ID,
			EntityType: entityType,
			OwnerID:    p.OwnerID,
			Tags:       item.Tags,
			Payload:    item.Payload,
			CreatedBy:  p.OwnerID,
			UpdatedBy:  p.OwnerID,
		}
		created, err := s.versions.Create(ctx, res)
		if err != nil {
			s.fail(ctx, p, result, i, item.ID, entityType, models.OpCreated, err)
			continue
		}
		s.audit.RecordMutation(ctx, p.OwnerID, models.OpCreated, entityType, created.ID, created.Version)
		result.Add(models.BulkItemResult{Index: i, ID: created.ID, Version: created.Version, Status: models.OpCreated})
	}
	return result, nil
}

// UpdateBatch applies version-checked updates, one outcome per item. A
// stale expected version surfaces as a version_conflict error for that
// item only.
func (s *BulkService) UpdateBatch(ctx context.Context, p *models.Principal, entityType string, items []UpdateItem) (*models.BulkResult, error) {
	result := &models.BulkResult{}
	scope := "write:" + entityType

	for i, item := range items {
		if err := s.validate.Struct(item); err != nil {
			s.fail(ctx, p, result, i, item.ID, entityType, models.OpUpdated,
				fmt.Errorf("%w: %s", common.ErrValidation, validationMessage(err)))
			continue
		}
		if err := s.authorizeExisting(ctx, p, entityType, item.ID, models.OpUpdated, scope); err != nil {
			s.fail(ctx, p, result, i, item.ID, entityType, models.OpUpdated, err)
			continue
		}

		updated, err := s.versions.Update(ctx, entityType, item.ID, item.ExpectedVersion,
			ResourceUpdate{Tags: item.Tags, Payload: item.Payload}, p.OwnerID, "")
		if err != nil {
			s.fail(ctx, p, result, i, item.ID, entityType, models.OpUpdated, err)
			continue
		}
		s.audit.RecordMutation(ctx, p.OwnerID, models.OpUpdated, entityType, updated.ID, updated.Version)
		result.Add(models.BulkItemResult{Index: i, ID: updated.ID, Version: updated.Version, Status: models.OpUpdated})
	}
	return result, nil
}

// DeleteBatch removes records, one outcome per item. History survives each
// deletion.
func (s *BulkService) DeleteBatch(ctx context.Context, p *models.Principal, entityType string, items []DeleteItem) (*models.BulkResult, error) {
	result := &models.BulkResult{}
	scope := "delete:" + entityType

	for i, item := range items {
		if err := s.validate.Struct(item); err != nil {
			s.fail(ctx, p, result, i, item.ID, entityType, models.OpDeleted,
				fmt.Errorf("%w: %s", common.ErrValidation, validationMessage(err)))
			continue
		}
		if err := s.authorizeExisting(ctx, p, entityType, item.ID, models.OpDeleted, scope); err != nil {
			s.fail(ctx, p, result, i, item.ID, entityType, models.OpDeleted, err)
			continue
		}

		finalVersion, err := s.versions.Delete(ctx, entityType, item.ID, item.ExpectedVersion, p.OwnerID)
		if err != nil {
			s.fail(ctx, p, result, i, item.ID, entityType, models.OpDeleted, err)
			continue
		}
		s.audit.RecordMutation(ctx, p.OwnerID, models.OpDeleted, entityType, item.ID, finalVersion)
		result.Add(models.BulkItemResult{Index: i, ID: item.ID, Version: finalVersion, Status: models.OpDeleted})
	}
	return result, nil
}

// authorizeExisting fetches the live record and applies the evaluator. A
// missing scope is a permission failure; a record the principal cannot see
// is reported as not found, indistinguishable from a record that does not
// exist.
func (s *BulkService) authorizeExisting(ctx context.Context, p *models.Principal, entityType, id, operation, scope string) error {
	if !authz.HasScope(p.Scopes, scope) {
		s.audit.RecordDecision(ctx, p, operation, entityType, id, false)
		return common.ErrPermissionDenied
	}
	res, err := s.versions.Get(ctx, entityType, id)
	if err != nil {
		return err
	}
	granted := authz.AllowResource(p, res, scope)
	s.audit.RecordDecision(ctx, p, operation, entityType, id, granted)
	if !granted {
		return common.ErrNotFound
	}
	return nil
}

func (s *BulkService) fail(ctx context.Context, p *models.Principal, result *models.BulkResult, index int, id, entityType, operation string, err error) {
	kind, message := errorKind(err)
	result.AddError(models.BulkItemError{Index: index, ID: id, Kind: kind, Message: message})
	s.audit.RecordFailure(ctx, p.OwnerID, operation, entityType, id, message)
}

// errorKind maps an error to its reported kind and a caller-safe message.
// Internal diagnostics are never leaked.
func errorKind(err error) (string, string) {
	switch {
	case errors.Is(err, common.ErrValidation):
		return KindValidation, err.Error()
	case errors.Is(err, common.ErrVersionConflict):
		return KindVersionConflict, err.Error()
	case errors.Is(err, common.ErrPermissionDenied):
		return KindPermissionDenied, "permission denied"
	case errors.Is(err, common.ErrNotFound):
		return KindNotFound, "not found"
	default:
		return KindInternal, "internal error"
	}
}

// validationMessage flattens a validator error into a short field summary.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid item"
	}
	fe := verrs[0]
	return fmt.Sprintf("field %s failed %s validation", fe.Field(), fe.Tag())
}
