package services

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/loobric/smooth-core/internal/common"
	"github.com/loobric/smooth-core/internal/dbx"
	"github.com/loobric/smooth-core/internal/logging"
	"github.com/loobric/smooth-core/internal/server/models"
	auditrepo "github.com/loobric/smooth-core/internal/server/repositories/audit"
	changesrepo "github.com/loobric/smooth-core/internal/server/repositories/changes"
	grantsrepo "github.com/loobric/smooth-core/internal/server/repositories/grants"
	resourcesrepo "github.com/loobric/smooth-core/internal/server/repositories/resources"
	snapshotsrepo "github.com/loobric/smooth-core/internal/server/repositories/snapshots"
	usersrepo "github.com/loobric/smooth-core/internal/server/repositories/users"
)

// --- helpers ---

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, mock
}

// expectTx queues begin/commit pairs for n committed transactions.
func expectTx(mock sqlmock.Sqlmock, n int) {
	for i := 0; i < n; i++ {
		mock.ExpectBegin()
		mock.ExpectCommit()
	}
}

func testLogger() logging.Logger {
	return &nopLogger{}
}

type nopLogger struct{}

func (*nopLogger) Info(context.Context, string, ...any)  {}
func (*nopLogger) Warn(context.Context, string, ...any)  {}
func (*nopLogger) Error(context.Context, string, ...any) {}
func (l *nopLogger) With(...any) logging.Logger          { return l }

// --- in-memory repositories ---

// memResourcesRepo mimics the compare-and-swap contract of the Postgres
// repository against a simple map.
type memResourcesRepo struct {
	items map[string]*models.Resource
	err   error
}

func newMemResourcesRepo() *memResourcesRepo {
	return &memResourcesRepo{items: map[string]*models.Resource{}}
}

func (f *memResourcesRepo) key(entityType, id string) string { return entityType + "/" + id }

func (f *memResourcesRepo) Insert(ctx context.Context, res *models.Resource) error {
	if f.err != nil {
		return f.err
	}
	k := f.key(res.EntityType, res.ID)
	if _, exists := f.items[k]; exists {
		return fmt.Errorf("duplicate id %s", res.ID)
	}
	res.Version = 1
	res.CreatedAt = time.Now()
	res.UpdatedAt = res.CreatedAt
	cp := *res
	f.items[k] = &cp
	return nil
}

func (f *memResourcesRepo) Get(ctx context.Context, entityType, id string) (*models.Resource, error) {
	if f.err != nil {
		return nil, f.err
	}
	res, ok := f.items[f.key(entityType, id)]
	if !ok {
		return nil, common.ErrNotFound
	}
	cp := *res
	return &cp, nil
}

func (f *memResourcesRepo) List(ctx context.Context, entityType, ownerID string, limit, offset int) ([]*models.Resource, error) {
	if f.err != nil {
		return nil, f.err
	}
	var result []*models.Resource
	for _, res := range f.items {
		if res.EntityType != entityType {
			continue
		}
		if ownerID != "" && res.OwnerID != ownerID {
			continue
		}
		cp := *res
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (f *memResourcesRepo) UpdateCAS(ctx context.Context, res *models.Resource, expectedVersion int64) error {
	if f.err != nil {
		return f.err
	}
	stored, ok := f.items[f.key(res.EntityType, res.ID)]
	if !ok {
		return common.ErrNotFound
	}
	if stored.Version != expectedVersion {
		return &common.VersionConflictError{Expected: expectedVersion, Actual: stored.Version}
	}
	res.Version = expectedVersion + 1
	res.UpdatedAt = time.Now()
	cp := *res
	f.items[f.key(res.EntityType, res.ID)] = &cp
	return nil
}

func (f *memResourcesRepo) DeleteCAS(ctx context.Context, entityType, id string, expectedVersion int64) error {
	if f.err != nil {
		return f.err
	}
	stored, ok := f.items[f.key(entityType, id)]
	if !ok {
		return common.ErrNotFound
	}
	if expectedVersion != 0 && stored.Version != expectedVersion {
		return &common.VersionConflictError{Expected: expectedVersion, Actual: stored.Version}
	}
	delete(f.items, f.key(entityType, id))
	return nil
}

func (f *memResourcesRepo) ExportByOwner(ctx context.Context, ownerID string) ([]*models.Resource, error) {
	if f.err != nil {
		return nil, f.err
	}
	var result []*models.Resource
	for _, res := range f.items {
		if ownerID != "" && res.OwnerID != ownerID {
			continue
		}
		cp := *res
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

type memSnapshotsRepo struct {
	snaps []*models.Snapshot
	err   error
}

func (f *memSnapshotsRepo) Insert(ctx context.Context, snap *models.Snapshot) error {
	if f.err != nil {
		return f.err
	}
	cp := *snap
	f.snaps = append(f.snaps, &cp)
	return nil
}

func (f *memSnapshotsRepo) ListByEntity(ctx context.Context, entityType, entityID string) ([]*models.Snapshot, error) {
	var result []*models.Snapshot
	for _, snap := range f.snaps {
		if snap.EntityType == entityType && snap.EntityID == entityID {
			result = append(result, snap)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Version < result[j].Version })
	return result, nil
}

func (f *memSnapshotsRepo) GetByVersion(ctx context.Context, entityType, entityID string, version int64) (*models.Snapshot, error) {
	for _, snap := range f.snaps {
		if snap.EntityType == entityType && snap.EntityID == entityID && snap.Version == version {
			return snap, nil
		}
	}
	return nil, common.ErrNotFound
}

func (f *memSnapshotsRepo) ExportByOwner(ctx context.Context, ownerID string) ([]*models.Snapshot, error) {
	return f.snaps, nil
}

type memChangesRepo struct {
	events []*models.ChangeEvent
	err    error
}

func (f *memChangesRepo) Insert(ctx context.Context, event *models.ChangeEvent) error {
	if f.err != nil {
		return f.err
	}
	cp := *event
	f.events = append(f.events, &cp)
	return nil
}

func (f *memChangesRepo) matches(ev *models.ChangeEvent, entityType, ownerID string) bool {
	if ev.EntityType != entityType {
		return false
	}
	return ownerID == "" || ev.OwnerID == ownerID
}

func (f *memChangesRepo) SinceVersion(ctx context.Context, entityType, ownerID string, version int64, limit int) ([]*models.ChangeEvent, error) {
	if f.err != nil {
		return nil, f.err
	}
	var result []*models.ChangeEvent
	for _, ev := range f.events {
		if f.matches(ev, entityType, ownerID) && ev.Version > version {
			result = append(result, ev)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Version < result[j].Version })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (f *memChangesRepo) SinceTimestamp(ctx context.Context, entityType, ownerID string, ts time.Time, limit int) ([]*models.ChangeEvent, error) {
	if f.err != nil {
		return nil, f.err
	}
	var result []*models.ChangeEvent
	for _, ev := range f.events {
		if f.matches(ev, entityType, ownerID) && ev.Timestamp.After(ts) {
			result = append(result, ev)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Version < result[j].Version })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (f *memChangesRepo) MaxVersion(ctx context.Context, entityType, ownerID string) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	var max int64
	for _, ev := range f.events {
		if f.matches(ev, entityType, ownerID) && ev.Version > max {
			max = ev.Version
		}
	}
	return max, nil
}

type memAuditRepo struct {
	records []*models.AuditRecord
	err     error
}

func (f *memAuditRepo) Insert(ctx context.Context, rec *models.AuditRecord) error {
	if f.err != nil {
		return f.err
	}
	cp := *rec
	f.records = append(f.records, &cp)
	return nil
}

func (f *memAuditRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*models.AuditRecord, error) {
	var result []*models.AuditRecord
	for _, rec := range f.records {
		if rec.UserID == userID {
			result = append(result, rec)
		}
	}
	return result, nil
}

func (f *memAuditRepo) ListByEntity(ctx context.Context, entityType, entityID string, limit, offset int) ([]*models.AuditRecord, error) {
	var result []*models.AuditRecord
	for _, rec := range f.records {
		if rec.EntityType == entityType && rec.EntityID == entityID {
			result = append(result, rec)
		}
	}
	return result, nil
}

type memGrantsRepo struct {
	grants  map[string]*models.Grant
	created []*models.Grant
	revoked []string
	deleted []string
	err     error
}

func newMemGrantsRepo() *memGrantsRepo {
	return &memGrantsRepo{grants: map[string]*models.Grant{}}
}

func (f *memGrantsRepo) Create(ctx context.Context, grant *models.Grant) error {
	if f.err != nil {
		return f.err
	}
	grant.CreatedAt = time.Now()
	grant.UpdatedAt = grant.CreatedAt
	cp := *grant
	f.grants[grant.ID] = &cp
	f.created = append(f.created, &cp)
	return nil
}

func (f *memGrantsRepo) GetByID(ctx context.Context, id string) (*models.Grant, error) {
	g, ok := f.grants[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return g, nil
}

func (f *memGrantsRepo) ListByUser(ctx context.Context, userID string) ([]*models.Grant, error) {
	var result []*models.Grant
	for _, g := range f.grants {
		if g.UserID == userID {
			result = append(result, g)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (f *memGrantsRepo) Revoke(ctx context.Context, id string) error {
	g, ok := f.grants[id]
	if !ok {
		return common.ErrNotFound
	}
	g.Revoked = true
	f.revoked = append(f.revoked, id)
	return nil
}

func (f *memGrantsRepo) Delete(ctx context.Context, id string) error {
	if _, ok := f.grants[id]; !ok {
		return common.ErrNotFound
	}
	delete(f.grants, id)
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *memGrantsRepo) TouchLastUsed(ctx context.Context, id string, at time.Time) error {
	return nil
}

type memUsersRepo struct {
	byID    map[string]*models.User
	byEmail map[string]*models.User
	err     error
}

func newMemUsersRepo() *memUsersRepo {
	return &memUsersRepo{byID: map[string]*models.User{}, byEmail: map[string]*models.User{}}
}

func (f *memUsersRepo) add(u *models.User) {
	f.byID[u.ID] = u
	f.byEmail[u.Email] = u
}

func (f *memUsersRepo) Create(ctx context.Context, user *models.User) (*models.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	user.ID = fmt.Sprintf("user-%d", len(f.byID)+1)
	user.IsActive = true
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	f.add(user)
	return user, nil
}

func (f *memUsersRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	u, ok := f.byID[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return u, nil
}

func (f *memUsersRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	u, ok := f.byEmail[email]
	if !ok {
		return nil, common.ErrNotFound
	}
	return u, nil
}

// --- repository manager over the fakes ---

type memRepoManager struct {
	resources *memResourcesRepo
	snapshots *memSnapshotsRepo
	changes   *memChangesRepo
	audit     *memAuditRepo
	grants    *memGrantsRepo
	users     *memUsersRepo
}

func newMemRepoManager() *memRepoManager {
	return &memRepoManager{
		resources: newMemResourcesRepo(),
		snapshots: &memSnapshotsRepo{},
		changes:   &memChangesRepo{},
		audit:     &memAuditRepo{},
		grants:    newMemGrantsRepo(),
		users:     newMemUsersRepo(),
	}
}

func (m *memRepoManager) Resources(db dbx.DBTX) resourcesrepo.Repository { return m.resources }
func (m *memRepoManager) Snapshots(db dbx.DBTX) snapshotsrepo.Repository { return m.snapshots }
func (m *memRepoManager) Changes(db dbx.DBTX) changesrepo.Repository     { return m.changes }
func (m *memRepoManager) Audit(db dbx.DBTX) auditrepo.Repository         { return m.audit }
func (m *memRepoManager) Grants(db dbx.DBTX) grantsrepo.Repository       { return m.grants }
func (m *memRepoManager) Users(db dbx.DBTX) usersrepo.Repository         { return m.users }
func (m *memRepoManager) RunMigrations(context.Context, *sql.DB) error   { return nil }

// seedResource creates a record through the version controller so events
// and versions stay consistent with production behavior.
func seedResource(t *testing.T, svc *VersionService, mock sqlmock.Sqlmock, res *models.Resource) *models.Resource {
	t.Helper()
	expectTx(mock, 1)
	created, err := svc.Create(context.Background(), res)
	require.NoError(t, err)
	return created
}
