package service

import (
	"errors"
	"fmt"
)

// Errors surfaced by checkout and fulfillment.  Handlers map them to HTTP
// status codes; everything else is an internal error.
var (
	// ErrEmptyCart: checkout was requested for a missing or empty cart.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrBookUnavailable: a cart item references a book that no longer exists.
	ErrBookUnavailable = errors.New("book is no longer available")
	// ErrCartTooLarge: the cart cannot be encoded within the processor's
	// metadata limits.
	ErrCartTooLarge = errors.New("cart has too many items for a single checkout")
	// ErrGatewayTimeout: the payment processor did not answer in time.
	ErrGatewayTimeout = errors.New("payment gateway timed out")
	// ErrGatewayFailure: the payment processor rejected or failed the call.
	ErrGatewayFailure = errors.New("payment gateway error")
	// ErrStoreUnavailable: a storage operation failed; the caller may retry.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrUntrustedEvent: the webhook signature did not verify.
	ErrUntrustedEvent = errors.New("untrusted payment event")
	// ErrMalformedEvent: a verified event cannot be reconciled.  Retrying the
	// same delivery would fail the same way, so it is acknowledged.
	ErrMalformedEvent = errors.New("malformed payment event")
)

// withCause tags cause with a sentinel.  Both stay visible to errors.Is and
// errors.As.
func withCause(sentinel, cause error) error {
	return fmt.Errorf("%w: %w", sentinel, cause)
}
