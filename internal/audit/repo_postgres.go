package audit

import (
	"context"
	"database/sql"
)

// PostgresRepo appends to audit_events. The table should carry an INSERT-only
// grant for the application role.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	const q = `
INSERT INTO audit_events (
  id, type, actor_user_id, ip_address, code_kind, record_id, amount, currency, message, created_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10
)
`
	_, err := r.db.ExecContext(ctx, q,
		e.ID,
		e.Type,
		e.ActorUserID,
		nullString(e.IPAddress),
		nullString(e.CodeKind),
		sql.NullInt64{Int64: e.RecordID, Valid: e.RecordID != 0},
		e.Amount,
		nullString(e.Currency),
		e.Message,
		e.CreatedAt,
	)
	return err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
