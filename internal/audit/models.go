package audit

import "time"

// Event is an immutable, append-only audit log record.
//
// Invariants:
// - Events are never updated or deleted.
// - actor_user_id is required; every credit event is caused by a member.
// - ip capture is best-effort; do not block redemption on audit failures.
//
// Storage (Postgres): table audit_events, INSERT only.
type Event struct {
	ID   string    `json:"id" db:"id"`
	Type EventType `json:"type" db:"type"`

	ActorUserID int64  `json:"actor_user_id" db:"actor_user_id"`
	IPAddress   string `json:"ip_address,omitempty" db:"ip_address"`

	// CodeKind and RecordID identify the balance code or coffee card involved.
	CodeKind string `json:"code_kind,omitempty" db:"code_kind"`
	RecordID int64  `json:"record_id,omitempty" db:"record_id"`

	// Amount is the credited amount in whole currency units.
	Amount   int64  `json:"amount,omitempty" db:"amount"`
	Currency string `json:"currency,omitempty" db:"currency"`

	Message string `json:"message,omitempty" db:"message"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeCodeRedeemed EventType = "code_redeemed"
	EventTypeCardImported EventType = "card_imported"
	EventTypeBadCode      EventType = "bad_code"
)
