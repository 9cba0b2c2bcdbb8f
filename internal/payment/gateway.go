// Package payment adapts the external payment processor.  The rest of the
// service talks to the Gateway interface only; StripeGateway is the
// production implementation.
package payment

import (
	"context"
	"errors"
)

// EventCheckoutCompleted is the only event type fulfillment acts on.
const EventCheckoutCompleted = "checkout.session.completed"

// PaymentStatusPaid marks a session whose funds were captured.
const PaymentStatusPaid = "paid"

var (
	// ErrTimeout is returned when the processor did not answer within the
	// caller's deadline.
	ErrTimeout = errors.New("payment gateway timeout")
	// ErrSignature is returned when a webhook payload fails verification.
	ErrSignature = errors.New("invalid webhook signature")
	// ErrMalformed is returned when a payload passed verification but its
	// contents cannot be decoded.
	ErrMalformed = errors.New("malformed webhook payload")
)

// LineItem is one priced row of a checkout session.
type LineItem struct {
	Name            string
	Description     string
	UnitAmountCents int64
	Quantity        int64
}

// SessionRequest describes the checkout session to create.
type SessionRequest struct {
	LineItems  []LineItem
	Metadata   map[string]string
	Currency   string
	SuccessURL string
	CancelURL  string
}

// Session is the processor-issued session handed back to the customer.
type Session struct {
	ID  string
	URL string
}

// Event is a verified webhook notification.  For checkout completion
// events the session fields are populated.
type Event struct {
	ID            string
	Type          string
	SessionID     string
	PaymentStatus string
	AmountTotal   int64
	Metadata      map[string]string
}

// Gateway creates payment sessions and authenticates their webhooks.
type Gateway interface {
	CreateSession(ctx context.Context, req SessionRequest) (*Session, error)
	VerifyEvent(payload []byte, signature string) (*Event, error)
}
