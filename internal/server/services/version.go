package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/loobric/smooth-core/internal/common"
	"github.com/loobric/smooth-core/internal/dbx"
	"github.com/loobric/smooth-core/internal/logging"
	"github.com/loobric/smooth-core/internal/server/models"
	"github.com/loobric/smooth-core/internal/server/repositories/repomanager"
)

// ResourceUpdate is the replace-on-write mutation applied to a record: the
// new tag set and payload fully replace the old ones. There is no partial
// or dirty-tracked update.
type ResourceUpdate struct {
	Tags    []string
	Payload json.RawMessage
}

// VersionService makes every write to a record atomic with respect to its
// declared version. Creates assign version 1; updates and deletes are
// compare-and-swap writes against the store. Each successful mutation
// captures the prior state as a snapshot and appends a change event inside
// the same transaction, so history is complete or the mutation did not
// happen. Conflicts are never retried here; retry is the caller's decision.
type VersionService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	logger      logging.Logger
	now         func() time.Time
}

// NewVersionService constructs a VersionService.
func NewVersionService(db *sql.DB, m repomanager.RepositoryManager, logger logging.Logger) *VersionService {
	return &VersionService{
		db:          db,
		repomanager: m,
		logger:      logger.With("module", "versioning"),
		now:         time.Now,
	}
}

// Get returns one live record.
func (s *VersionService) Get(ctx context.Context, entityType, id string) (*models.Resource, error) {
	return s.repomanager.Resources(s.db).Get(ctx, entityType, id)
}

// List returns live records of one entity type, optionally restricted to
// an owner.
func (s *VersionService) List(ctx context.Context, entityType, ownerID string, limit, offset int) ([]*models.Resource, error) {
	return s.repomanager.Resources(s.db).List(ctx, entityType, ownerID, limit, offset)
}

// Create stores a brand-new record at version 1 and appends its "created"
// change event. Supplying a version is a validation error: versions are
// assigned, never chosen.
func (s *VersionService) Create(ctx context.Context, res *models.Resource) (*models.Resource, error) {
	if res.Version != 0 {
		return nil, fmt.Errorf("%w: version must not be supplied on create", common.ErrValidation)
	}
	if res.ID == "" {
		res.ID = uuid.NewString()
	}
	if res.Payload == nil {
		res.Payload = json.RawMessage("{}")
	}

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Resources(tx).Insert(ctx, res); err != nil {
			return err
		}
		return s.appendEvent(ctx, tx, res, models.OpCreated, res.Version)
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Update performs a compare-and-swap update: it succeeds only if the stored
// version still equals expectedVersion, leaving the record at
// expectedVersion+1. The pre-mutation payload is captured as a snapshot in
// the same transaction; if the capture fails the mutation is rolled back.
// A mismatch yields a VersionConflictError carrying both versions and
// performs no partial write.
func (s *VersionService) Update(ctx context.Context, entityType, id string, expectedVersion int64, update ResourceUpdate, actor, summary string) (*models.Resource, error) {
	if expectedVersion < 1 {
		return nil, fmt.Errorf("%w: expected version is required on update", common.ErrValidation)
	}

	var updated *models.Resource
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Resources(tx)

		cur, err := repo.Get(ctx, entityType, id)
		if err != nil {
			return err
		}
		if err := s.captureSnapshot(ctx, tx, cur, actor, summary); err != nil {
			return err
		}

		res := *cur
		res.Tags = update.Tags
		res.Payload = update.Payload
		res.UpdatedBy = actor
		if err := repo.UpdateCAS(ctx, &res, expectedVersion); err != nil {
			return err
		}
		if err := s.appendEvent(ctx, tx, &res, models.OpUpdated, res.Version); err != nil {
			return err
		}
		updated = &res
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "record updated", "entity_type", entityType, "entity_id", id, "version", updated.Version)
	return updated, nil
}

// Delete removes a live record, optionally version-checked (pass 0 to skip
// the check). The record's final state is snapshotted and a "deleted" event
// is appended; prior snapshots and events survive the deletion. The
// returned version is the one the deletion event carries.
func (s *VersionService) Delete(ctx context.Context, entityType, id string, expectedVersion int64, actor string) (int64, error) {
	var finalVersion int64
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Resources(tx)

		cur, err := repo.Get(ctx, entityType, id)
		if err != nil {
			return err
		}
		if expectedVersion != 0 && cur.Version != expectedVersion {
			return &common.VersionConflictError{Expected: expectedVersion, Actual: cur.Version}
		}
		if err := s.captureSnapshot(ctx, tx, cur, actor, "deleted"); err != nil {
			return err
		}
		if err := repo.DeleteCAS(ctx, entityType, id, expectedVersion); err != nil {
			return err
		}
		// The delete itself counts as a mutation: its event version is the
		// one the record would have advanced to.
		finalVersion = cur.Version + 1
		return s.appendEvent(ctx, tx, cur, models.OpDeleted, finalVersion)
	})
	if err != nil {
		return 0, err
	}
	s.logger.Info(ctx, "record deleted", "entity_type", entityType, "entity_id", id, "version", finalVersion)
	return finalVersion, nil
}

// captureSnapshot persists the pre-mutation state, tagged with the version
// being superseded.
func (s *VersionService) captureSnapshot(ctx context.Context, tx dbx.DBTX, cur *models.Resource, actor, summary string) error {
	snap := &models.Snapshot{
		ID:            uuid.NewString(),
		EntityType:    cur.EntityType,
		EntityID:      cur.ID,
		Version:       cur.Version,
		Payload:       cur.Payload,
		Tags:          cur.Tags,
		ChangeSummary: summary,
		CapturedBy:    actor,
		CapturedAt:    s.now(),
	}
	if err := s.repomanager.Snapshots(tx).Insert(ctx, snap); err != nil {
		return fmt.Errorf("capturing snapshot: %w", err)
	}
	return nil
}

func (s *VersionService) appendEvent(ctx context.Context, tx dbx.DBTX, res *models.Resource, operation string, version int64) error {
	event := &models.ChangeEvent{
		ID:         uuid.NewString(),
		EntityType: res.EntityType,
		EntityID:   res.ID,
		OwnerID:    res.OwnerID,
		Tags:       res.Tags,
		Version:    version,
		Operation:  operation,
		Timestamp:  s.now(),
	}
	if err := s.repomanager.Changes(tx).Insert(ctx, event); err != nil {
		return fmt.Errorf("appending change event: %w", err)
	}
	return nil
}
