package credits

import (
	"strconv"
	"strings"
	"time"
)

// CodeKind tells which kind of record an entered code refers to.
type CodeKind string

const (
	// KindBalanceCode is a printed refill code sold over the counter.
	KindBalanceCode CodeKind = "balance_code"
	// KindOldCard is a pre-paid clip card from the paper era.
	KindOldCard CodeKind = "old_card"
)

// ParseCodeKind maps the public "kind" parameter. Empty means a balance code.
func ParseCodeKind(s string) (CodeKind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "balance", "balance_code", "code":
		return KindBalanceCode, true
	case "legacy", "old", "old_card", "card":
		return KindOldCard, true
	}
	return "", false
}

// CodeRecord is either a BalanceCode or an OldCoffeeCard.
type CodeRecord interface {
	Kind() CodeKind
	RecordID() int64
	Used() bool
}

// BalanceCode is a single-use refill code. Used codes have both UsedBy and UsedAt set.
type BalanceCode struct {
	ID       int64      `json:"id" db:"id"`
	Code     string     `json:"-" db:"code"`
	Value    int64      `json:"value" db:"value"`
	Currency string     `json:"currency" db:"currency"`
	UsedBy   *int64     `json:"used_by,omitempty" db:"used_by"`
	UsedAt   *time.Time `json:"used_at,omitempty" db:"used_at"`
}

func (c BalanceCode) Kind() CodeKind  { return KindBalanceCode }
func (c BalanceCode) RecordID() int64 { return c.ID }
func (c BalanceCode) Used() bool      { return c.UsedBy != nil || c.UsedAt != nil }

// OldCoffeeCard is a legacy clip card. Left is the number of clips remaining.
type OldCoffeeCard struct {
	ID       int64     `json:"id" db:"id"`
	CardID   int64     `json:"card_id" db:"card_id"`
	Code     int64     `json:"-" db:"code"`
	Left     int64     `json:"left" db:"left"`
	Expires  time.Time `json:"expires" db:"expires"`
	Imported bool      `json:"imported" db:"imported"`
	UserID   *int64    `json:"user_id,omitempty" db:"user_id"`
}

func (c OldCoffeeCard) Kind() CodeKind  { return KindOldCard }
func (c OldCoffeeCard) RecordID() int64 { return c.ID }
func (c OldCoffeeCard) Used() bool      { return c.Imported || c.UserID != nil }

// Balance is a member's coffee credit.
type Balance struct {
	UserID   int64  `json:"user_id"`
	Amount   int64  `json:"balance"`
	Currency string `json:"currency"`
}

// History lists what a member has redeemed, newest first.
type History struct {
	Codes []BalanceCode   `json:"codes"`
	Cards []OldCoffeeCard `json:"cards"`
}

// legacyCheckDigits is the length of the check code printed after the card id.
const legacyCheckDigits = 6

// ParseLegacyCode splits an old card code into card id and check code.
// The entered value must be all digits and carry at least one card id digit.
func ParseLegacyCode(entered string) (cardID, code int64, err error) {
	s := strings.TrimSpace(entered)
	if len(s) <= legacyCheckDigits {
		return 0, 0, ErrBadCode
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, 0, ErrBadCode
		}
	}
	split := len(s) - legacyCheckDigits
	cardID, err = strconv.ParseInt(s[:split], 10, 64)
	if err != nil {
		return 0, 0, ErrBadCode
	}
	code, err = strconv.ParseInt(s[split:], 10, 64)
	if err != nil {
		return 0, 0, ErrBadCode
	}
	return cardID, code, nil
}
