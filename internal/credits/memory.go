package credits

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps credits in process. Units of work are serialized and
// applied only when fn succeeds. Used by tests and local runs without Postgres.
type MemoryStore struct {
	mu       sync.Mutex
	profiles map[int64]Balance
	codes    map[int64]BalanceCode
	cards    map[int64]OldCoffeeCard
	nextID   int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		profiles: map[int64]Balance{},
		codes:    map[int64]BalanceCode{},
		cards:    map[int64]OldCoffeeCard{},
	}
}

func (s *MemoryStore) PutProfile(b Balance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[b.UserID] = b
}

func (s *MemoryStore) Profile(userID int64) (Balance, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.profiles[userID]
	return b, ok
}

// AddBalanceCode stores c and returns it with its assigned id.
func (s *MemoryStore) AddBalanceCode(c BalanceCode) BalanceCode {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	c.ID = s.nextID
	s.codes[c.ID] = c
	return c
}

// AddOldCard stores c and returns it with its assigned id.
func (s *MemoryStore) AddOldCard(c OldCoffeeCard) OldCoffeeCard {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	c.ID = s.nextID
	s.cards[c.ID] = c
	return c
}

func (s *MemoryStore) FindUnusedBalanceCode(ctx context.Context, code string) (BalanceCode, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var match []BalanceCode
	for _, c := range s.codes {
		if c.Code == code && !c.Used() {
			match = append(match, c)
		}
	}
	if len(match) != 1 {
		return BalanceCode{}, false, nil
	}
	return match[0], true, nil
}

func (s *MemoryStore) FindUnusedOldCard(ctx context.Context, cardID, code int64, now time.Time) (OldCoffeeCard, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var match []OldCoffeeCard
	for _, c := range s.cards {
		if c.CardID == cardID && c.Code == code && claimable(c, now) {
			match = append(match, c)
		}
	}
	if len(match) != 1 {
		return OldCoffeeCard{}, false, nil
	}
	return match[0], true, nil
}

func (s *MemoryStore) UsedBalanceCodes(ctx context.Context, userID int64) ([]BalanceCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []BalanceCode
	for _, c := range s.codes {
		if c.UsedBy != nil && *c.UsedBy == userID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		ai, aj := out[i].UsedAt, out[j].UsedAt
		if ai != nil && aj != nil && !ai.Equal(*aj) {
			return ai.After(*aj)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) ImportedCards(ctx context.Context, userID int64) ([]OldCoffeeCard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []OldCoffeeCard
	for _, c := range s.cards {
		if c.UserID != nil && *c.UserID == userID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *MemoryStore) Within(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{
		s:        s,
		profiles: map[int64]Balance{},
		codes:    map[int64]BalanceCode{},
		cards:    map[int64]OldCoffeeCard{},
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	for id, b := range tx.profiles {
		s.profiles[id] = b
	}
	for id, c := range tx.codes {
		s.codes[id] = c
	}
	for id, c := range tx.cards {
		s.cards[id] = c
	}
	return nil
}

// memoryTx stages writes; reads see staged values first. The store mutex is
// held by Within for its whole lifetime.
type memoryTx struct {
	s        *MemoryStore
	profiles map[int64]Balance
	codes    map[int64]BalanceCode
	cards    map[int64]OldCoffeeCard
}

func (t *memoryTx) profile(userID int64) (Balance, bool) {
	if b, ok := t.profiles[userID]; ok {
		return b, true
	}
	b, ok := t.s.profiles[userID]
	return b, ok
}

func (t *memoryTx) LockProfile(ctx context.Context, userID int64) (Balance, error) {
	b, ok := t.profile(userID)
	if !ok {
		return Balance{}, ErrProfileNotFound
	}
	return b, nil
}

func (t *memoryTx) MarkCodeUsed(ctx context.Context, codeID, userID int64, at time.Time) (bool, error) {
	c, ok := t.codes[codeID]
	if !ok {
		c, ok = t.s.codes[codeID]
	}
	if !ok || c.Used() {
		return false, nil
	}
	c.UsedBy = &userID
	c.UsedAt = &at
	t.codes[codeID] = c
	return true, nil
}

func (t *memoryTx) ClaimOldCard(ctx context.Context, cardID, userID int64, now time.Time) (bool, error) {
	c, ok := t.cards[cardID]
	if !ok {
		c, ok = t.s.cards[cardID]
	}
	if !ok || !claimable(c, now) {
		return false, nil
	}
	c.UserID = &userID
	c.Imported = true
	t.cards[cardID] = c
	return true, nil
}

func (t *memoryTx) Credit(ctx context.Context, userID, amount int64) (Balance, error) {
	b, ok := t.profile(userID)
	if !ok {
		return Balance{}, ErrProfileNotFound
	}
	b.Amount += amount
	t.profiles[userID] = b
	return b, nil
}

func claimable(c OldCoffeeCard, now time.Time) bool {
	return !c.Used() && !c.Expires.Before(now)
}
