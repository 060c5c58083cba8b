package domain

import (
	"context"
	"errors"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrUnknownSymbol  = errors.New("unknown symbol")
	ErrResyncRequired = errors.New("order book resync required")
	ErrStreamClosed   = errors.New("event stream closed")
)

// VenueError is a classified failure from the venue collaborator.
// Retryable failures (price races, transient timing) drive the executor's
// reprice loop; fatal ones (bad symbol, insufficient balance) abort the
// chain immediately.
type VenueError struct {
	Code      string
	Message   string
	Retryable bool
}

func (e *VenueError) Error() string {
	return "venue: " + e.Code + ": " + e.Message
}

// RetryableVenueErr reports whether err should drive another reprice
// attempt. Context deadline expiry counts as retryable: it is the
// per-attempt venue timeout, not a structural failure.
func RetryableVenueErr(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ve *VenueError
	if errors.As(err, &ve) {
		return ve.Retryable
	}
	return false
}
