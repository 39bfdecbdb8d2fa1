package scheduling

import (
	"context"
	"database/sql"
	"time"

	"cafesys/internal/directory"
)

// PostgresService reads shifts from the planning tables.
//
// Tables:
// - shifts (id, day date, span int)
// - shift_oncall (shift_id, user_id)
type PostgresService struct {
	db *sql.DB
}

func NewPostgresService(db *sql.DB) *PostgresService {
	return &PostgresService{db: db}
}

func (s *PostgresService) ShiftsOn(ctx context.Context, day time.Time) ([]Shift, error) {
	const q = `
SELECT id, day, span
FROM shifts
WHERE day = $1
ORDER BY span
`
	rows, err := s.db.QueryContext(ctx, q, day.Format(time.DateOnly))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Shift
	for rows.Next() {
		var sh Shift
		if err := rows.Scan(&sh.ID, &sh.Day, &sh.Span); err != nil {
			return nil, err
		}
		out = append(out, sh)
	}
	return out, rows.Err()
}

func (s *PostgresService) OnCallDuty(ctx context.Context, shift Shift) ([]directory.Profile, error) {
	const q = `
SELECT p.user_id, p.first_name, p.last_name, p.mobile_phone
FROM shift_oncall o
JOIN profiles p ON p.user_id = o.user_id
WHERE o.shift_id = $1
ORDER BY o.user_id
`
	rows, err := s.db.QueryContext(ctx, q, shift.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []directory.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PostgresService) CurrentWeekOnCall(ctx context.Context, now time.Time) ([][]directory.Profile, error) {
	start, end := WeekBounds(now)
	const q = `
SELECT s.id, p.user_id, p.first_name, p.last_name, p.mobile_phone
FROM shifts s
JOIN shift_oncall o ON o.shift_id = s.id
JOIN profiles p ON p.user_id = o.user_id
WHERE s.day >= $1 AND s.day < $2
ORDER BY s.day, s.span, o.user_id
`
	rows, err := s.db.QueryContext(ctx, q, start.Format(time.DateOnly), end.Format(time.DateOnly))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var (
		out       [][]directory.Profile
		lastShift int64 = -1
	)
	for rows.Next() {
		var shiftID int64
		var p directory.Profile
		var phone sql.NullString
		if err := rows.Scan(&shiftID, &p.UserID, &p.FirstName, &p.LastName, &phone); err != nil {
			return nil, err
		}
		p.MobilePhone = phone.String
		if shiftID != lastShift {
			out = append(out, nil)
			lastShift = shiftID
		}
		out[len(out)-1] = append(out[len(out)-1], p)
	}
	return out, rows.Err()
}

func scanProfile(rows *sql.Rows) (directory.Profile, error) {
	var p directory.Profile
	var phone sql.NullString
	if err := rows.Scan(&p.UserID, &p.FirstName, &p.LastName, &phone); err != nil {
		return directory.Profile{}, err
	}
	p.MobilePhone = phone.String
	return p, nil
}
