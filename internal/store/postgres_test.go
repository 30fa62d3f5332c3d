package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracewire/tracewire/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return NewPostgresWithPool(mock), mock
}

func TestPostgresStore_GetUser_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, name, credits, is_admin, created_at FROM users WHERE id = \$1`).
		WithArgs("ghost").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetUser(context.Background(), "ghost")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetUser_Found(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT id, name, credits, is_admin, created_at FROM users WHERE id = \$1`).
		WithArgs("u1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "credits", "is_admin", "created_at"}).
			AddRow("u1", "analyst", int64(50), false, now))

	u, err := s.GetUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(50), u.Credits)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DebitCredits_Success(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE users SET credits = credits - \$1 WHERE id = \$2 AND credits >= \$1 RETURNING credits`).
		WithArgs(int64(8), "u1").
		WillReturnRows(pgxmock.NewRows([]string{"credits"}).AddRow(int64(42)))
	mock.ExpectExec(`INSERT INTO credit_transactions`).
		WithArgs(pgxmock.AnyArg(), "u1", "debit", int64(8), int64(50), int64(42),
			"search-1", "identity, social", "self", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	txn, err := s.DebitCredits(context.Background(), "u1", 8, "search-1", "identity, social")
	require.NoError(t, err)
	assert.Equal(t, int64(50), txn.BalanceBefore)
	assert.Equal(t, int64(42), txn.BalanceAfter)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DebitCredits_Insufficient(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE users SET credits = credits - \$1`).
		WithArgs(int64(25), "u1").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(`SELECT credits FROM users WHERE id = \$1`).
		WithArgs("u1").
		WillReturnRows(pgxmock.NewRows([]string{"credits"}).AddRow(int64(5)))
	mock.ExpectRollback()

	_, err := s.DebitCredits(context.Background(), "u1", 25, "search-1", "breach-search")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrInsufficientCredits))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreditCredits_Success(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE users SET credits = credits \+ \$1 WHERE id = \$2 RETURNING credits`).
		WithArgs(int64(100), "u1").
		WillReturnRows(pgxmock.NewRows([]string{"credits"}).AddRow(int64(110)))
	mock.ExpectExec(`INSERT INTO credit_transactions`).
		WithArgs(pgxmock.AnyArg(), "u1", "credit", int64(100), int64(10), int64(110),
			nil, "monthly top-up", "admin-1", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	txn, err := s.CreditCredits(context.Background(), "u1", 100, "admin-1", "monthly top-up")
	require.NoError(t, err)
	assert.Equal(t, int64(110), txn.BalanceAfter)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateSearchStatus_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE searches SET status = \$1 WHERE id = \$2`).
		WithArgs("failed", "nope").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UpdateSearchStatus(context.Background(), "nope", model.StatusFailed)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}
