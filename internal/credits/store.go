package credits

import (
	"context"
	"time"
)

// Store is the persistence port for redemption.
//
// Finders return found=false when zero or several rows match; an ambiguous
// code is as unusable as a missing one.
type Store interface {
	FindUnusedBalanceCode(ctx context.Context, code string) (BalanceCode, bool, error)
	FindUnusedOldCard(ctx context.Context, cardID, code int64, now time.Time) (OldCoffeeCard, bool, error)

	UsedBalanceCodes(ctx context.Context, userID int64) ([]BalanceCode, error)
	ImportedCards(ctx context.Context, userID int64) ([]OldCoffeeCard, error)

	// Within runs fn as one unit of work. Nothing fn wrote survives an error.
	Within(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the write side of a redemption.
//
// MarkCodeUsed and ClaimOldCard are compare-and-set: they report false when
// the record was taken in the meantime.
type Tx interface {
	LockProfile(ctx context.Context, userID int64) (Balance, error)
	MarkCodeUsed(ctx context.Context, codeID, userID int64, at time.Time) (bool, error)
	ClaimOldCard(ctx context.Context, cardID, userID int64, now time.Time) (bool, error)
	Credit(ctx context.Context, userID, amount int64) (Balance, error)
}
