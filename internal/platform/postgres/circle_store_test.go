package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/phrazzld/circles-api/internal/domain"
	"github.com/phrazzld/circles-api/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)

func testCircle(t *testing.T) *domain.LendingCircle {
	t.Helper()
	c, err := domain.NewLendingCircle(
		uuid.New(), "Savers", decimal.NewFromInt(1200), decimal.NewFromInt(100), 12, testNow,
	)
	require.NoError(t, err)
	return c
}

func TestPostgresCircleStore_Create(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewPostgresCircleStore(db, discardLogger())
	c := testCircle(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO lending_circles")).
		WithArgs(c.ID, "Savers", c.CreatorID, c.TotalAmount, c.ContributionAmount, 12, "open",
			int64(1), nil, c.CreatedAt, c.UpdatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO circle_members")).
		WithArgs(c.ID, c.CreatorID, 0, c.UpdatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.Create(context.Background(), c))
}

func TestPostgresCircleStore_CreateRejectsInvalid(t *testing.T) {
	db, _ := newMockDB(t)
	s := NewPostgresCircleStore(db, discardLogger())
	c := testCircle(t)
	c.ContributionAmount = decimal.NewFromInt(5000)

	err := s.Create(context.Background(), c)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestPostgresCircleStore_GetByID(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewPostgresCircleStore(db, discardLogger())

	id, creator, member := uuid.New(), uuid.New(), uuid.New()
	activated := testNow.Add(time.Hour)

	mock.ExpectQuery(regexp.QuoteMeta("FROM lending_circles WHERE id = $1")).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "name", "creator_id", "total_amount", "contribution_amount", "duration_months",
			"status", "version", "activated_at", "created_at", "updated_at",
		}).AddRow(id.String(), "Savers", creator.String(), "1200.00", "100.00", 12,
			"active", 3, activated, testNow, activated))
	mock.ExpectQuery(regexp.QuoteMeta("FROM circle_members")).
		WillReturnRows(sqlmock.NewRows([]string{"circle_id", "user_id"}).
			AddRow(id.String(), creator.String()).
			AddRow(id.String(), member.String()))

	c, err := s.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.CircleStatusActive, c.Status)
	assert.Equal(t, int64(3), c.Version)
	assert.Equal(t, []uuid.UUID{creator, member}, c.Members)
	assert.True(t, c.TotalAmount.Equal(decimal.NewFromInt(1200)))
	require.NotNil(t, c.ActivatedAt)
	assert.True(t, c.ActivatedAt.Equal(activated))
}

func TestPostgresCircleStore_GetByIDNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewPostgresCircleStore(db, discardLogger())

	mock.ExpectQuery(regexp.QuoteMeta("FROM lending_circles")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := s.GetByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, store.ErrCircleNotFound)
}

func TestPostgresCircleStore_Update(t *testing.T) {
	t.Run("applies when version matches", func(t *testing.T) {
		db, mock := newMockDB(t)
		s := NewPostgresCircleStore(db, discardLogger())
		c := testCircle(t)
		joiner := uuid.New()
		require.NoError(t, c.Join(joiner, testNow))

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("UPDATE lending_circles")).
			WithArgs("Savers", "open", int64(2), nil, c.UpdatedAt, c.ID, int64(1)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO circle_members")).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO circle_members")).
			WithArgs(c.ID, joiner, 1, c.UpdatedAt).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		require.NoError(t, s.Update(context.Background(), c, 1))
	})

	t.Run("stale version conflicts", func(t *testing.T) {
		db, mock := newMockDB(t)
		s := NewPostgresCircleStore(db, discardLogger())
		c := testCircle(t)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("UPDATE lending_circles")).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM lending_circles")).
			WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
		mock.ExpectRollback()

		err := s.Update(context.Background(), c, 7)
		assert.ErrorIs(t, err, store.ErrConflict)
	})

	t.Run("missing circle", func(t *testing.T) {
		db, mock := newMockDB(t)
		s := NewPostgresCircleStore(db, discardLogger())
		c := testCircle(t)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("UPDATE lending_circles")).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM lending_circles")).
			WillReturnRows(sqlmock.NewRows([]string{"?column?"}))
		mock.ExpectRollback()

		err := s.Update(context.Background(), c, 1)
		assert.ErrorIs(t, err, store.ErrCircleNotFound)
	})
}

func TestPostgresCircleStore_List(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewPostgresCircleStore(db, discardLogger())
	member := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta(
		"FROM lending_circles WHERE status = $1 AND EXISTS (SELECT 1 FROM circle_members m WHERE m.circle_id = lending_circles.id AND m.user_id = $2) ORDER BY created_at DESC, id LIMIT $3 OFFSET $4",
	)).
		WithArgs("open", member, store.DefaultListLimit, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	circles, err := s.List(context.Background(), store.CircleFilter{
		Status:   domain.CircleStatusOpen,
		MemberID: member,
	})
	require.NoError(t, err)
	assert.Empty(t, circles)
}

func TestPostgresCircleStore_AddContribution(t *testing.T) {
	contribution := &domain.Contribution{
		ID:        uuid.New(),
		CircleID:  uuid.New(),
		MemberID:  uuid.New(),
		Amount:    decimal.NewFromInt(100),
		Period:    2,
		CreatedAt: testNow,
	}

	t.Run("inserts", func(t *testing.T) {
		db, mock := newMockDB(t)
		s := NewPostgresCircleStore(db, discardLogger())
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO circle_contributions")).
			WithArgs(contribution.ID, contribution.CircleID, contribution.MemberID,
				contribution.Amount, 2, testNow).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, s.AddContribution(context.Background(), contribution))
	})

	t.Run("duplicate period", func(t *testing.T) {
		db, mock := newMockDB(t)
		s := NewPostgresCircleStore(db, discardLogger())
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO circle_contributions")).
			WillReturnError(&pgconn.PgError{Code: uniqueViolationCode, ConstraintName: "one_contribution_per_period"})

		err := s.AddContribution(context.Background(), contribution)
		assert.ErrorIs(t, err, store.ErrContributionExists)
		assert.True(t, store.IsDuplicateError(err))
	})
}
