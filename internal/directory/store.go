package directory

import (
	"context"
	"database/sql"
)

// Store is the read side of user profiles used by call routing.
type Store interface {
	// FallbackNumbers returns the mobile numbers of every configured fallback user.
	FallbackNumbers(ctx context.Context) ([]string, error)

	// ProfileByPhone looks up a profile by national-format mobile number.
	// Zero or more than one match returns (Profile{}, false, nil); many calls
	// come from unregistered numbers, so that is not an error.
	ProfileByPhone(ctx context.Context, national string) (Profile, bool, error)
}

// PostgresStore reads profiles from the shared café database.
//
// Tables:
// - profiles (user_id, first_name, last_name, mobile_phone, ...)
// - auth_groups (id, name), user_groups (user_id, group_id)
// - incoming_call_fallbacks (id, user_id)
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) FallbackNumbers(ctx context.Context) ([]string, error) {
	const q = `
SELECT p.mobile_phone
FROM incoming_call_fallbacks f
JOIN profiles p ON p.user_id = f.user_id
ORDER BY f.id
`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var phone sql.NullString
		if err := rows.Scan(&phone); err != nil {
			return nil, err
		}
		out = append(out, phone.String)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ProfileByPhone(ctx context.Context, national string) (Profile, bool, error) {
	// LIMIT 2 is enough to tell "unique" from "ambiguous".
	const q = `
SELECT user_id, first_name, last_name, mobile_phone
FROM profiles
WHERE mobile_phone = $1
LIMIT 2
`
	rows, err := s.db.QueryContext(ctx, q, national)
	if err != nil {
		return Profile{}, false, err
	}
	defer rows.Close()

	var found []Profile
	for rows.Next() {
		var p Profile
		if err := rows.Scan(&p.UserID, &p.FirstName, &p.LastName, &p.MobilePhone); err != nil {
			return Profile{}, false, err
		}
		found = append(found, p)
	}
	if err := rows.Err(); err != nil {
		return Profile{}, false, err
	}
	if len(found) != 1 {
		return Profile{}, false, nil
	}

	p := found[0]
	groups, err := s.groupsOf(ctx, p.UserID)
	if err != nil {
		return Profile{}, false, err
	}
	p.Groups = groups
	return p, true, nil
}

func (s *PostgresStore) groupsOf(ctx context.Context, userID int64) ([]string, error) {
	const q = `
SELECT g.name
FROM user_groups ug
JOIN auth_groups g ON g.id = ug.group_id
WHERE ug.user_id = $1
ORDER BY g.name
`
	rows, err := s.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}
