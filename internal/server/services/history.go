package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/loobric/smooth-core/internal/common"
	"github.com/loobric/smooth-core/internal/logging"
	"github.com/loobric/smooth-core/internal/server/authz"
	"github.com/loobric/smooth-core/internal/server/models"
	"github.com/loobric/smooth-core/internal/server/repositories/repomanager"
)

// HistoryEntry summarizes one version of a record's timeline. The live
// version is served from the record itself and flagged Current; only
// superseded versions come from the snapshot log.
type HistoryEntry struct {
	Version   int64
	Actor     string
	Summary   string
	Timestamp time.Time
	Current   bool
}

// FieldDiff holds the two values of one differing payload field.
type FieldDiff struct {
	A any
	B any
}

// CompareResult is the structural field-level diff between two historical
// payloads of one record.
type CompareResult struct {
	EntityID     string
	VersionA     int64
	VersionB     int64
	Differences  map[string]FieldDiff
	TotalChanges int
}

// HistoryService exposes a record's immutable version history: timeline,
// point-in-time payloads, restore and diff. Restores never rewrite
// history; they append a new version through the version controller.
type HistoryService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	versions    *VersionService
	audit       *AuditService
	logger      logging.Logger
}

// NewHistoryService constructs a HistoryService.
func NewHistoryService(db *sql.DB, m repomanager.RepositoryManager, versions *VersionService, audit *AuditService, logger logging.Logger) *HistoryService {
	return &HistoryService{
		db:          db,
		repomanager: m,
		versions:    versions,
		audit:       audit,
		logger:      logger.With("module", "history"),
	}
}

// History returns the record's timeline oldest first: every superseded
// version from the snapshot log plus the live current version.
func (s *HistoryService) History(ctx context.Context, p *models.Principal, entityType, id string) ([]HistoryEntry, error) {
	res, err := s.visible(ctx, p, entityType, id, "read")
	if err != nil {
		return nil, err
	}

	snaps, err := s.repomanager.Snapshots(s.db).ListByEntity(ctx, entityType, id)
	if err != nil {
		return nil, err
	}

	entries := make([]HistoryEntry, 0, len(snaps)+1)
	for _, snap := range snaps {
		entries = append(entries, HistoryEntry{
			Version:   snap.Version,
			Actor:     snap.CapturedBy,
			Summary:   snap.ChangeSummary,
			Timestamp: snap.CapturedAt,
		})
	}
	entries = append(entries, HistoryEntry{
		Version:   res.Version,
		Actor:     res.UpdatedBy,
		Timestamp: res.UpdatedAt,
		Current:   true,
	})
	return entries, nil
}

// AtVersion returns the record's payload as it existed at version v: the
// live record when v is current, otherwise the snapshot of the superseded
// version.
func (s *HistoryService) AtVersion(ctx context.Context, p *models.Principal, entityType, id string, v int64) (json.RawMessage, error) {
	res, err := s.visible(ctx, p, entityType, id, "read")
	if err != nil {
		return nil, err
	}
	if v == res.Version {
		return res.Payload, nil
	}
	snap, err := s.repomanager.Snapshots(s.db).GetByVersion(ctx, entityType, id, v)
	if err != nil {
		return nil, err
	}
	return snap.Payload, nil
}

// Restore writes the payload of version v back as a brand-new version via
// a normal compare-and-swap update. History is append-only: the restored
// version remains retrievable and unchanged afterwards.
func (s *HistoryService) Restore(ctx context.Context, p *models.Principal, entityType, id string, v int64) (*models.Resource, error) {
	res, err := s.visible(ctx, p, entityType, id, "write:"+entityType)
	if err != nil {
		return nil, err
	}
	payload, err := s.AtVersion(ctx, p, entityType, id, v)
	if err != nil {
		return nil, err
	}

	updated, err := s.versions.Update(ctx, entityType, id, res.Version,
		ResourceUpdate{Tags: res.Tags, Payload: payload},
		p.OwnerID, fmt.Sprintf("restored from version %d", v))
	if err != nil {
		return nil, err
	}
	s.audit.RecordMutation(ctx, p.OwnerID, "restore", entityType, id, updated.Version)
	return updated, nil
}

// Compare returns the field-level diff between the payloads at v1 and v2.
// It is pure and read-only.
func (s *HistoryService) Compare(ctx context.Context, p *models.Principal, entityType, id string, v1, v2 int64) (*CompareResult, error) {
	payloadA, err := s.AtVersion(ctx, p, entityType, id, v1)
	if err != nil {
		return nil, err
	}
	payloadB, err := s.AtVersion(ctx, p, entityType, id, v2)
	if err != nil {
		return nil, err
	}

	diff, err := diffPayloads(payloadA, payloadB)
	if err != nil {
		return nil, err
	}
	return &CompareResult{
		EntityID:     id,
		VersionA:     v1,
		VersionB:     v2,
		Differences:  diff,
		TotalChanges: len(diff),
	}, nil
}

// visible loads the live record and enforces visibility for scope; an
// invisible record is reported as not found.
func (s *HistoryService) visible(ctx context.Context, p *models.Principal, entityType, id, scope string) (*models.Resource, error) {
	if !authz.HasScope(p.Scopes, scope) {
		return nil, common.ErrPermissionDenied
	}
	res, err := s.versions.Get(ctx, entityType, id)
	if err != nil {
		return nil, err
	}
	if !authz.AllowResource(p, res, scope) {
		return nil, common.ErrNotFound
	}
	return res, nil
}

// diffPayloads compares two opaque payloads field by field at the top
// level, returning the differing fields with both values.
func diffPayloads(a, b json.RawMessage) (map[string]FieldDiff, error) {
	var fieldsA, fieldsB map[string]any
	if err := json.Unmarshal(a, &fieldsA); err != nil {
		return nil, fmt.Errorf("%w: payload is not an object", common.ErrValidation)
	}
	if err := json.Unmarshal(b, &fieldsB); err != nil {
		return nil, fmt.Errorf("%w: payload is not an object", common.ErrValidation)
	}

	diff := make(map[string]FieldDiff)
	for field, valA := range fieldsA {
		valB, ok := fieldsB[field]
		if !ok || !reflect.DeepEqual(valA, valB) {
			diff[field] = FieldDiff{A: valA, B: valB}
		}
	}
	for field, valB := range fieldsB {
		if _, ok := fieldsA[field]; !ok {
			diff[field] = FieldDiff{A: nil, B: valB}
		}
	}
	return diff, nil
}
