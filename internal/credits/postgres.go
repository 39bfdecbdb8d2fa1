package credits

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"cafesys/pkg/utils"
)

// PostgresStore assumes these tables:
// - profiles (user_id, balance, balance_currency)
// - balance_codes (id, code, value, currency, used_by, used_at)
// - old_coffee_cards (id, card_id, code, "left", expires, imported, user_id)
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) FindUnusedBalanceCode(ctx context.Context, code string) (BalanceCode, bool, error) {
	const q = `
SELECT id, code, value, currency, used_by, used_at
FROM balance_codes
WHERE code = $1 AND used_by IS NULL AND used_at IS NULL
LIMIT 2
`
	rows, err := s.db.QueryContext(ctx, q, code)
	if err != nil {
		return BalanceCode{}, false, err
	}
	defer rows.Close()

	codes, err := scanBalanceCodes(rows)
	if err != nil || len(codes) != 1 {
		return BalanceCode{}, false, err
	}
	return codes[0], true, nil
}

func (s *PostgresStore) FindUnusedOldCard(ctx context.Context, cardID, code int64, now time.Time) (OldCoffeeCard, bool, error) {
	const q = `
SELECT id, card_id, code, "left", expires, imported, user_id
FROM old_coffee_cards
WHERE card_id = $1 AND code = $2 AND user_id IS NULL AND imported = false AND expires >= $3
LIMIT 2
`
	rows, err := s.db.QueryContext(ctx, q, cardID, code, now)
	if err != nil {
		return OldCoffeeCard{}, false, err
	}
	defer rows.Close()

	cards, err := scanOldCards(rows)
	if err != nil || len(cards) != 1 {
		return OldCoffeeCard{}, false, err
	}
	return cards[0], true, nil
}

func (s *PostgresStore) UsedBalanceCodes(ctx context.Context, userID int64) ([]BalanceCode, error) {
	const q = `
SELECT id, code, value, currency, used_by, used_at
FROM balance_codes
WHERE used_by = $1
ORDER BY used_at DESC, id DESC
`
	rows, err := s.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBalanceCodes(rows)
}

func (s *PostgresStore) ImportedCards(ctx context.Context, userID int64) ([]OldCoffeeCard, error) {
	const q = `
SELECT id, card_id, code, "left", expires, imported, user_id
FROM old_coffee_cards
WHERE user_id = $1
ORDER BY id DESC
`
	rows, err := s.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanOldCards(rows)
}

func (s *PostgresStore) Within(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		return fn(ctx, postgresTx{tx: tx})
	})
}

type postgresTx struct {
	tx *sql.Tx
}

// LockProfile serializes concurrent redemptions for the same member.
func (t postgresTx) LockProfile(ctx context.Context, userID int64) (Balance, error) {
	const q = `
SELECT user_id, balance, balance_currency
FROM profiles
WHERE user_id = $1
FOR UPDATE
`
	var b Balance
	if err := t.tx.QueryRowContext(ctx, q, userID).Scan(&b.UserID, &b.Amount, &b.Currency); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Balance{}, ErrProfileNotFound
		}
		return Balance{}, err
	}
	return b, nil
}

func (t postgresTx) MarkCodeUsed(ctx context.Context, codeID, userID int64, at time.Time) (bool, error) {
	const q = `
UPDATE balance_codes
SET used_by = $2, used_at = $3
WHERE id = $1 AND used_by IS NULL AND used_at IS NULL
`
	return affectedOne(t.tx.ExecContext(ctx, q, codeID, userID, at))
}

func (t postgresTx) ClaimOldCard(ctx context.Context, cardID, userID int64, now time.Time) (bool, error) {
	const q = `
UPDATE old_coffee_cards
SET user_id = $2, imported = true
WHERE id = $1 AND user_id IS NULL AND imported = false AND expires >= $3
`
	return affectedOne(t.tx.ExecContext(ctx, q, cardID, userID, now))
}

func (t postgresTx) Credit(ctx context.Context, userID, amount int64) (Balance, error) {
	const q = `
UPDATE profiles
SET balance = balance + $2
WHERE user_id = $1
RETURNING user_id, balance, balance_currency
`
	var b Balance
	if err := t.tx.QueryRowContext(ctx, q, userID, amount).Scan(&b.UserID, &b.Amount, &b.Currency); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Balance{}, ErrProfileNotFound
		}
		return Balance{}, err
	}
	return b, nil
}

func affectedOne(res sql.Result, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func scanBalanceCodes(rows *sql.Rows) ([]BalanceCode, error) {
	var out []BalanceCode
	for rows.Next() {
		var (
			c      BalanceCode
			usedBy sql.NullInt64
			usedAt sql.NullTime
		)
		if err := rows.Scan(&c.ID, &c.Code, &c.Value, &c.Currency, &usedBy, &usedAt); err != nil {
			return nil, err
		}
		if usedBy.Valid {
			c.UsedBy = &usedBy.Int64
		}
		if usedAt.Valid {
			c.UsedAt = &usedAt.Time
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanOldCards(rows *sql.Rows) ([]OldCoffeeCard, error) {
	var out []OldCoffeeCard
	for rows.Next() {
		var (
			c      OldCoffeeCard
			userID sql.NullInt64
		)
		if err := rows.Scan(&c.ID, &c.CardID, &c.Code, &c.Left, &c.Expires, &c.Imported, &userID); err != nil {
			return nil, err
		}
		if userID.Valid {
			c.UserID = &userID.Int64
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
