package directory

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresStore_ProfileByPhone(t *testing.T) {
	t.Run("unique match loads groups", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery("SELECT user_id, first_name, last_name, mobile_phone FROM profiles").
			WithArgs("0701234567").
			WillReturnRows(sqlmock.NewRows([]string{"user_id", "first_name", "last_name", "mobile_phone"}).
				AddRow(int64(7), "Ada", "Lovelace", "0701234567"))
		mock.ExpectQuery("SELECT g.name FROM user_groups").
			WithArgs(int64(7)).
			WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("_board").AddRow("workers"))

		p, ok, err := NewPostgresStore(db).ProfileByPhone(context.Background(), "0701234567")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "Ada", p.FirstName)
		assert.Equal(t, "Lovelace", p.LastName)
		assert.Equal(t, []string{"_board", "workers"}, p.Groups)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("ambiguous match is not found", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery("SELECT user_id, first_name, last_name, mobile_phone FROM profiles").
			WithArgs("0701234567").
			WillReturnRows(sqlmock.NewRows([]string{"user_id", "first_name", "last_name", "mobile_phone"}).
				AddRow(int64(7), "Ada", "Lovelace", "0701234567").
				AddRow(int64(8), "Alan", "Turing", "0701234567"))

		_, ok, err := NewPostgresStore(db).ProfileByPhone(context.Background(), "0701234567")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no match is not found", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery("SELECT user_id, first_name, last_name, mobile_phone FROM profiles").
			WithArgs("0700000000").
			WillReturnRows(sqlmock.NewRows([]string{"user_id", "first_name", "last_name", "mobile_phone"}))

		_, ok, err := NewPostgresStore(db).ProfileByPhone(context.Background(), "0700000000")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("query failure is returned", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		boom := errors.New("connection reset")
		mock.ExpectQuery("SELECT user_id").WillReturnError(boom)

		_, _, err = NewPostgresStore(db).ProfileByPhone(context.Background(), "0700000000")
		assert.ErrorIs(t, err, boom)
	})
}

func TestPostgresStore_FallbackNumbers(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT p.mobile_phone FROM incoming_call_fallbacks").
		WillReturnRows(sqlmock.NewRows([]string{"mobile_phone"}).
			AddRow("0701111111").
			AddRow(nil).
			AddRow("+46702222222"))

	got, err := NewPostgresStore(db).FallbackNumbers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"0701111111", "", "+46702222222"}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDisplayGroupName(t *testing.T) {
	assert.Equal(t, "board", DisplayGroupName("_board"))
	assert.Equal(t, "workers", DisplayGroupName("workers"))
}
