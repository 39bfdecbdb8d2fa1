package credits

import "errors"

var (
	// ErrBadCode covers every reason an entered code cannot be redeemed.
	ErrBadCode = errors.New("credits: bad code")

	ErrCodeAlreadyUsed  = errors.New("credits: code already used")
	ErrCurrencyMismatch = errors.New("credits: currency mismatch")
	ErrProfileNotFound  = errors.New("credits: profile not found")
)

// BadCodeError is what members see when a redemption fails. Cause is kept
// for logs and errors.Is; it is never shown to the member.
type BadCodeError struct {
	Kind  CodeKind
	Cause error
}

func (e *BadCodeError) Error() string {
	if e.Cause == nil || errors.Is(e.Cause, ErrBadCode) {
		return ErrBadCode.Error()
	}
	return ErrBadCode.Error() + ": " + e.Cause.Error()
}

func (e *BadCodeError) Is(target error) bool { return target == ErrBadCode }

func (e *BadCodeError) Unwrap() error { return e.Cause }
