package chain

import "errors"

// Rejection categories. Every operation that refuses to run returns an error
// matching exactly one of these with errors.Is.
var (
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInvalidState      = errors.New("invalid state")
	ErrNotFound          = errors.New("not found")
	ErrInsufficientValue = errors.New("insufficient value")
	ErrQuorumNotReached  = errors.New("quorum not reached")
)

var ErrOverflow = Reject(ErrInvalidState, "amount overflow")

// Rejection is a descriptive reason tied to a category. Error() is the bare
// reason so callers can match on the exact text.
type Rejection struct {
	Kind   error
	Reason string
}

func Reject(kind error, reason string) error {
	return &Rejection{Kind: kind, Reason: reason}
}

func (r *Rejection) Error() string { return r.Reason }

func (r *Rejection) Unwrap() error { return r.Kind }
