package user

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cardgate/internal/identity/models"
	"cardgate/pkg/domain"
	"cardgate/pkg/platform/sentinel"
)

var userCols = []string{"id", "username", "email", "password_hash", "role", "created_at"}

func TestPostgresStore_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	u := &models.User{ID: domain.NewUserID(), Username: "carol", Email: "carol@example.com", PasswordHash: "h", Role: domain.RoleRecipient, CreatedAt: time.Now()}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users")).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err = NewPostgres(db).Create(context.Background(), u)
	assert.ErrorIs(t, err, sentinel.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FindByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := NewPostgres(db)
	id := domain.NewUserID()

	t.Run("found", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE id = $1")).
			WillReturnRows(sqlmock.NewRows(userCols).AddRow(id.String(), "dan", "dan@example.com", "h", "issuer", time.Now()))
		u, err := store.FindByID(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, id, u.ID)
		assert.Equal(t, domain.RoleIssuer, u.Role)
	})

	t.Run("missing", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE id = $1")).
			WillReturnRows(sqlmock.NewRows(userCols))
		_, err := store.FindByID(context.Background(), id)
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FindByIDs(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	a, b := domain.NewUserID(), domain.NewUserID()
	mock.ExpectQuery(regexp.QuoteMeta("WHERE id = ANY($1::uuid[])")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(userCols).
			AddRow(a.String(), "a", "a@example.com", "h", "recipient", time.Now()).
			AddRow(b.String(), "b", "b@example.com", "h", "recipient", time.Now()))

	users, err := NewPostgres(db).FindByIDs(context.Background(), []domain.UserID{a, b})
	require.NoError(t, err)
	assert.Len(t, users, 2)
	assert.NoError(t, mock.ExpectationsWereMet())

	none, err := NewPostgres(db).FindByIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}
