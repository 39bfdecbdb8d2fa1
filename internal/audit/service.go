package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only.
type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service records who redeemed what. Callers should treat it as best-effort.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.ActorUserID <= 0 || e.Type == "" {
		return ErrInvalidEvent
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	if e.IPAddress == "" {
		e.IPAddress = ClientIPFromContext(ctx)
	}
	return s.repo.Append(ctx, e)
}

func (s *Service) LogCodeRedeemed(ctx context.Context, userID, codeID, amount int64, currency string) error {
	return s.Append(ctx, Event{
		Type:        EventTypeCodeRedeemed,
		ActorUserID: userID,
		CodeKind:    "balance_code",
		RecordID:    codeID,
		Amount:      amount,
		Currency:    currency,
		Message:     "balance code redeemed",
	})
}

func (s *Service) LogCardImported(ctx context.Context, userID, cardID, amount int64, currency string) error {
	return s.Append(ctx, Event{
		Type:        EventTypeCardImported,
		ActorUserID: userID,
		CodeKind:    "old_card",
		RecordID:    cardID,
		Amount:      amount,
		Currency:    currency,
		Message:     "coffee card imported",
	})
}

// LogBadCode records a failed attempt. The entered code is not stored.
func (s *Service) LogBadCode(ctx context.Context, userID int64, kind, reason string) error {
	return s.Append(ctx, Event{
		Type:        EventTypeBadCode,
		ActorUserID: userID,
		CodeKind:    kind,
		Message:     reason,
	})
}
