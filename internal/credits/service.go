package credits

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cafesys/pkg/logger"
)

const (
	DefaultCurrency   = "SEK"
	DefaultLegacyRate = 5
)

// Auditor receives redemption events. *audit.Service satisfies it.
type Auditor interface {
	LogCodeRedeemed(ctx context.Context, userID, codeID, amount int64, currency string) error
	LogCardImported(ctx context.Context, userID, cardID, amount int64, currency string) error
	LogBadCode(ctx context.Context, userID int64, kind, reason string) error
}

type Config struct {
	// Currency is the only currency legacy cards can be imported into.
	Currency string
	// LegacyRate is the value of one clip on an old card.
	LegacyRate int64
}

// Service redeems balance codes and imports legacy coffee cards.
//
// Money invariants:
// - a record moves from unused to used exactly once
// - marking a record used and crediting the balance happen in one unit of work
// - the member's profile row is locked for the duration of that unit
type Service struct {
	store   Store
	auditor Auditor
	cfg     Config
	// clock is injectable for deterministic tests.
	clock func() time.Time
}

func NewService(store Store, auditor Auditor, cfg Config) *Service {
	if cfg.Currency == "" {
		cfg.Currency = DefaultCurrency
	}
	if cfg.LegacyRate <= 0 {
		cfg.LegacyRate = DefaultLegacyRate
	}
	return &Service{store: store, auditor: auditor, cfg: cfg, clock: time.Now}
}

// LookupUnusedCode finds the unused record an entered code refers to.
// Anything that does not resolve to exactly one redeemable record is ErrBadCode.
func (s *Service) LookupUnusedCode(ctx context.Context, entered string, kind CodeKind) (CodeRecord, error) {
	switch kind {
	case KindBalanceCode:
		code := strings.TrimSpace(entered)
		if code == "" {
			return nil, ErrBadCode
		}
		bc, ok, err := s.store.FindUnusedBalanceCode(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("credits: find balance code: %w", err)
		}
		if !ok {
			return nil, ErrBadCode
		}
		return bc, nil

	case KindOldCard:
		cardID, code, err := ParseLegacyCode(entered)
		if err != nil {
			return nil, err
		}
		oc, ok, err := s.store.FindUnusedOldCard(ctx, cardID, code, s.clock())
		if err != nil {
			return nil, fmt.Errorf("credits: find old card: %w", err)
		}
		if !ok {
			return nil, ErrBadCode
		}
		return oc, nil
	}
	return nil, ErrBadCode
}

// IsUsed reports whether a code is used or invalid. Only store failures are
// returned as errors. lookupBy names who asked and turns on logging.
func (s *Service) IsUsed(ctx context.Context, entered string, kind CodeKind, lookupBy string) (bool, error) {
	_, err := s.LookupUnusedCode(ctx, entered, kind)
	var used bool
	switch {
	case err == nil:
		used = false
	case errors.Is(err, ErrBadCode):
		used = true
	default:
		return false, err
	}

	if lookupBy != "" {
		logger.From(ctx).Info("code looked up", "by", lookupBy, "kind", kind, "code", entered, "used_or_invalid", used)
	}
	return used, nil
}

// ManualRefill redeems a balance code for userID. Every failure is a *BadCodeError.
func (s *Service) ManualRefill(ctx context.Context, entered string, userID int64) (Balance, error) {
	rec, err := s.LookupUnusedCode(ctx, entered, KindBalanceCode)
	if err != nil {
		return Balance{}, s.badCode(ctx, userID, KindBalanceCode, entered, err)
	}
	bc, ok := rec.(BalanceCode)
	if !ok {
		return Balance{}, s.badCode(ctx, userID, KindBalanceCode, entered, fmt.Errorf("unexpected record %T", rec))
	}

	bal, err := s.redeem(ctx, bc, userID)
	if err != nil {
		return Balance{}, s.badCode(ctx, userID, KindBalanceCode, entered, err)
	}
	return bal, nil
}

// UseCodeOn credits an already looked-up code to userID.
//
// It panics if code is already used or its currency differs from the
// member's balance; callers must check both. A code taken concurrently by
// someone else returns ErrCodeAlreadyUsed.
func (s *Service) UseCodeOn(ctx context.Context, code BalanceCode, userID int64) (Balance, error) {
	if code.Used() {
		panic(fmt.Sprintf("credits: balance code %d is already used", code.ID))
	}
	bal, err := s.redeem(ctx, code, userID)
	if errors.Is(err, ErrCurrencyMismatch) {
		panic(fmt.Sprintf("credits: balance code %d is in %s, user %d is not", code.ID, code.Currency, userID))
	}
	return bal, err
}

func (s *Service) redeem(ctx context.Context, code BalanceCode, userID int64) (Balance, error) {
	now := s.clock().UTC()

	var out Balance
	err := s.store.Within(ctx, func(ctx context.Context, tx Tx) error {
		prof, err := tx.LockProfile(ctx, userID)
		if err != nil {
			return err
		}
		if prof.Currency != code.Currency {
			return ErrCurrencyMismatch
		}

		ok, err := tx.MarkCodeUsed(ctx, code.ID, userID, now)
		if err != nil {
			return err
		}
		if !ok {
			return ErrCodeAlreadyUsed
		}

		out, err = tx.Credit(ctx, userID, code.Value)
		return err
	})
	if err != nil {
		return Balance{}, err
	}

	logger.From(ctx).Info("balance code used", "user_id", userID, "code_id", code.ID, "value", code.Value, "currency", code.Currency)
	s.record(ctx, func(a Auditor) error {
		return a.LogCodeRedeemed(ctx, userID, code.ID, code.Value, code.Currency)
	})
	return out, nil
}

// ManualImport moves the clips left on an old card to userID's balance.
// Every failure is a *BadCodeError.
func (s *Service) ManualImport(ctx context.Context, entered string, userID int64) (Balance, error) {
	rec, err := s.LookupUnusedCode(ctx, entered, KindOldCard)
	if err != nil {
		return Balance{}, s.badCode(ctx, userID, KindOldCard, entered, err)
	}
	card, ok := rec.(OldCoffeeCard)
	if !ok {
		return Balance{}, s.badCode(ctx, userID, KindOldCard, entered, fmt.Errorf("unexpected record %T", rec))
	}

	now := s.clock()
	amount := card.Left * s.cfg.LegacyRate

	var out Balance
	err = s.store.Within(ctx, func(ctx context.Context, tx Tx) error {
		prof, err := tx.LockProfile(ctx, userID)
		if err != nil {
			return err
		}
		if prof.Currency != s.cfg.Currency {
			return ErrCurrencyMismatch
		}

		ok, err := tx.ClaimOldCard(ctx, card.ID, userID, now)
		if err != nil {
			return err
		}
		if !ok {
			return ErrCodeAlreadyUsed
		}

		out, err = tx.Credit(ctx, userID, amount)
		return err
	})
	if err != nil {
		return Balance{}, s.badCode(ctx, userID, KindOldCard, entered, err)
	}

	logger.From(ctx).Info("coffee card imported", "user_id", userID, "card_id", card.CardID, "left", card.Left, "amount", amount)
	s.record(ctx, func(a Auditor) error {
		return a.LogCardImported(ctx, userID, card.ID, amount, s.cfg.Currency)
	})
	return out, nil
}

// UsedBy lists what userID has redeemed.
func (s *Service) UsedBy(ctx context.Context, userID int64) (History, error) {
	codes, err := s.store.UsedBalanceCodes(ctx, userID)
	if err != nil {
		return History{}, fmt.Errorf("credits: used codes: %w", err)
	}
	cards, err := s.store.ImportedCards(ctx, userID)
	if err != nil {
		return History{}, fmt.Errorf("credits: imported cards: %w", err)
	}
	if codes == nil {
		codes = []BalanceCode{}
	}
	if cards == nil {
		cards = []OldCoffeeCard{}
	}
	return History{Codes: codes, Cards: cards}, nil
}

func (s *Service) badCode(ctx context.Context, userID int64, kind CodeKind, entered string, cause error) error {
	logger.From(ctx).Warn("bad code", "user_id", userID, "kind", kind, "code", entered, "err", cause)
	s.record(ctx, func(a Auditor) error {
		return a.LogBadCode(ctx, userID, string(kind), cause.Error())
	})
	return &BadCodeError{Kind: kind, Cause: cause}
}

// record is best-effort; a failing audit log never undoes a redemption.
func (s *Service) record(ctx context.Context, fn func(a Auditor) error) {
	if s.auditor == nil {
		return
	}
	if err := fn(s.auditor); err != nil {
		logger.From(ctx).Warn("audit append failed", "err", err)
	}
}
