package resources

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loobric/smooth-core/internal/common"
	"github.com/loobric/smooth-core/internal/server/models"
)

func newMockRepo(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return NewPostgresRepository(db), mock, func() { db.Close() }
}

func resourceColumns() []string {
	return []string{"id", "entity_type", "owner_id", "tags", "version", "payload",
		"created_by", "updated_by", "created_at", "updated_at"}
}

func TestInsert(t *testing.T) {
	repo, mock, closeFn := newMockRepo(t)
	defer closeFn()

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO resources")).
		WithArgs("res-1", "items", "owner-1", []byte(`["mill-3"]`), []byte(`{"d":30}`), "owner-1", "owner-1").
		WillReturnRows(sqlmock.NewRows([]string{"version", "created_at", "updated_at"}).
			AddRow(int64(1), now, now))

	res := &models.Resource{
		ID: "res-1", EntityType: "items", OwnerID: "owner-1",
		Tags: []string{"mill-3"}, Payload: json.RawMessage(`{"d":30}`),
		CreatedBy: "owner-1", UpdatedBy: "owner-1",
	}
	err := repo.Insert(context.Background(), res)
	require.NoError(t, err)

	assert.Equal(t, int64(1), res.Version)
	assert.Equal(t, now, res.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsert_NilTagsStoredAsEmptyArray(t *testing.T) {
	repo, mock, closeFn := newMockRepo(t)
	defer closeFn()

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO resources")).
		WithArgs("res-1", "items", "owner-1", []byte(`[]`), []byte(`{}`), "owner-1", "owner-1").
		WillReturnRows(sqlmock.NewRows([]string{"version", "created_at", "updated_at"}).
			AddRow(int64(1), time.Now(), time.Now()))

	res := &models.Resource{
		ID: "res-1", EntityType: "items", OwnerID: "owner-1",
		Payload: json.RawMessage(`{}`), CreatedBy: "owner-1", UpdatedBy: "owner-1",
	}
	require.NoError(t, repo.Insert(context.Background(), res))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGet(t *testing.T) {
	repo, mock, closeFn := newMockRepo(t)
	defer closeFn()

	now := time.Now()

	t.Run("found", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("SELECT id, entity_type, owner_id, tags, version, payload, created_by, updated_by, created_at, updated_at")).
			WithArgs("items", "res-1").
			WillReturnRows(sqlmock.NewRows(resourceColumns()).
				AddRow("res-1", "items", "owner-1", []byte(`["mill-3","cell-7"]`), int64(3),
					[]byte(`{"d":30}`), "owner-1", "owner-1", now, now))

		res, err := repo.Get(context.Background(), "items", "res-1")
		require.NoError(t, err)

		assert.Equal(t, "res-1", res.ID)
		assert.Equal(t, int64(3), res.Version)
		assert.Equal(t, []string{"mill-3", "cell-7"}, res.Tags)
		assert.JSONEq(t, `{"d":30}`, string(res.Payload))
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("SELECT")).
			WithArgs("items", "missing").
			WillReturnError(sql.ErrNoRows)

		_, err := repo.Get(context.Background(), "items", "missing")
		assert.ErrorIs(t, err, common.ErrNotFound)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestList(t *testing.T) {
	repo, mock, closeFn := newMockRepo(t)
	defer closeFn()

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM resources")).
		WithArgs("items", "owner-1", 10, 0).
		WillReturnRows(sqlmock.NewRows(resourceColumns()).
			AddRow("res-1", "items", "owner-1", []byte(`[]`), int64(1), []byte(`{}`), "u", "u", now, now).
			AddRow("res-2", "items", "owner-1", []byte(`["a"]`), int64(2), []byte(`{}`), "u", "u", now, now))

	items, err := repo.List(context.Background(), "items", "owner-1", 10, 0)
	require.NoError(t, err)

	require.Len(t, items, 2)
	assert.Equal(t, "res-1", items[0].ID)
	assert.Equal(t, []string{"a"}, items[1].Tags)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateCAS(t *testing.T) {
	now := time.Now()

	t.Run("success bumps version", func(t *testing.T) {
		repo, mock, closeFn := newMockRepo(t)
		defer closeFn()

		mock.ExpectQuery(regexp.QuoteMeta("UPDATE resources")).
			WithArgs([]byte(`[]`), []byte(`{"d":31}`), "owner-1", "items", "res-1", int64(3)).
			WillReturnRows(sqlmock.NewRows([]string{"version", "updated_at"}).AddRow(int64(4), now))

		res := &models.Resource{ID: "res-1", EntityType: "items", UpdatedBy: "owner-1",
			Payload: json.RawMessage(`{"d":31}`)}
		err := repo.UpdateCAS(context.Background(), res, 3)
		require.NoError(t, err)

		assert.Equal(t, int64(4), res.Version)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("stale version yields conflict with actual", func(t *testing.T) {
		repo, mock, closeFn := newMockRepo(t)
		defer closeFn()

		mock.ExpectQuery(regexp.QuoteMeta("UPDATE resources")).
			WillReturnError(sql.ErrNoRows)
		mock.ExpectQuery(regexp.QuoteMeta("SELECT version FROM resources")).
			WithArgs("items", "res-1").
			WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(int64(5)))

		res := &models.Resource{ID: "res-1", EntityType: "items", Payload: json.RawMessage(`{}`)}
		err := repo.UpdateCAS(context.Background(), res, 3)

		require.ErrorIs(t, err, common.ErrVersionConflict)
		var conflict *common.VersionConflictError
		require.True(t, errors.As(err, &conflict))
		assert.Equal(t, int64(3), conflict.Expected)
		assert.Equal(t, int64(5), conflict.Actual)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing row yields not found", func(t *testing.T) {
		repo, mock, closeFn := newMockRepo(t)
		defer closeFn()

		mock.ExpectQuery(regexp.QuoteMeta("UPDATE resources")).
			WillReturnError(sql.ErrNoRows)
		mock.ExpectQuery(regexp.QuoteMeta("SELECT version FROM resources")).
			WithArgs("items", "res-1").
			WillReturnError(sql.ErrNoRows)

		res := &models.Resource{ID: "res-1", EntityType: "items", Payload: json.RawMessage(`{}`)}
		err := repo.UpdateCAS(context.Background(), res, 3)
		assert.ErrorIs(t, err, common.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestDeleteCAS(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		repo, mock, closeFn := newMockRepo(t)
		defer closeFn()

		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM resources")).
			WithArgs("items", "res-1", int64(2)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.DeleteCAS(context.Background(), "items", "res-1", 2)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unconditional with zero version", func(t *testing.T) {
		repo, mock, closeFn := newMockRepo(t)
		defer closeFn()

		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM resources")).
			WithArgs("items", "res-1", int64(0)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.DeleteCAS(context.Background(), "items", "res-1", 0)
		assert.NoError(t, err)
	})

	t.Run("stale version yields conflict", func(t *testing.T) {
		repo, mock, closeFn := newMockRepo(t)
		defer closeFn()

		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM resources")).
			WithArgs("items", "res-1", int64(2)).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(regexp.QuoteMeta("SELECT version FROM resources")).
			WithArgs("items", "res-1").
			WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(int64(4)))

		err := repo.DeleteCAS(context.Background(), "items", "res-1", 2)
		assert.ErrorIs(t, err, common.ErrVersionConflict)
	})

	t.Run("missing row yields not found", func(t *testing.T) {
		repo, mock, closeFn := newMockRepo(t)
		defer closeFn()

		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM resources")).
			WithArgs("items", "missing", int64(0)).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(regexp.QuoteMeta("SELECT version FROM resources")).
			WithArgs("items", "missing").
			WillReturnError(sql.ErrNoRows)

		err := repo.DeleteCAS(context.Background(), "items", "missing", 0)
		assert.ErrorIs(t, err, common.ErrNotFound)
	})
}
