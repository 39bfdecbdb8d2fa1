package scheduling

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeekBounds(t *testing.T) {
	loc := time.FixedZone("CET", 3600)

	// Thursday
	start, end := WeekBounds(time.Date(2026, 10, 15, 14, 30, 0, 0, loc))
	assert.Equal(t, time.Date(2026, 10, 12, 0, 0, 0, 0, loc), start)
	assert.Equal(t, time.Date(2026, 10, 19, 0, 0, 0, 0, loc), end)

	// Sunday belongs to the week that started the Monday before.
	start, _ = WeekBounds(time.Date(2026, 10, 18, 23, 0, 0, 0, loc))
	assert.Equal(t, time.Date(2026, 10, 12, 0, 0, 0, 0, loc), start)

	// Monday starts its own week.
	start, _ = WeekBounds(time.Date(2026, 10, 19, 0, 0, 0, 0, loc))
	assert.Equal(t, time.Date(2026, 10, 19, 0, 0, 0, 0, loc), start)
}

func TestPostgresService_CurrentWeekOnCallGroupsByShift(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT s.id, p.user_id, p.first_name, p.last_name, p.mobile_phone FROM shifts s").
		WithArgs("2026-10-12", "2026-10-19").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "first_name", "last_name", "mobile_phone"}).
			AddRow(int64(1), int64(10), "A", "One", "0701111111").
			AddRow(int64(1), int64(11), "B", "Two", "0702222222").
			AddRow(int64(2), int64(12), "C", "Three", nil).
			AddRow(int64(3), int64(10), "A", "One", "0701111111"))

	svc := NewPostgresService(db)
	got, err := svc.CurrentWeekOnCall(context.Background(), time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Len(t, got[0], 2)
	assert.Equal(t, "", got[1][0].MobilePhone)
	assert.Equal(t, int64(10), got[2][0].UserID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresService_ShiftsOn(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	day := time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT id, day, span FROM shifts").
		WithArgs("2026-10-15").
		WillReturnRows(sqlmock.NewRows([]string{"id", "day", "span"}).
			AddRow(int64(5), day, 0).
			AddRow(int64(6), day, 2))

	got, err := NewPostgresService(db).ShiftsOn(context.Background(), day)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 2, got[1].Span)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresService_OnCallDutyOrdersByUser(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`FROM shift_oncall o JOIN profiles p ON p.user_id = o.user_id WHERE o.shift_id = \$1 ORDER BY o.user_id`).
		WithArgs(int64(4)).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "first_name", "last_name", "mobile_phone"}).
			AddRow(int64(10), "A", "One", "0701111111").
			AddRow(int64(11), "B", "Two", nil))

	got, err := NewPostgresService(db).OnCallDuty(context.Background(), Shift{ID: 4})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(10), got[0].UserID)
	assert.Equal(t, "", got[1].MobilePhone)
	assert.NoError(t, mock.ExpectationsWereMet())
}
