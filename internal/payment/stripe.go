package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

// StripeGateway talks to Stripe Checkout.
type StripeGateway struct {
	api           *client.API
	webhookSecret string
	// tolerance bounds the age of a webhook signature timestamp.
	tolerance time.Duration
}

// StripeOptions configure NewStripeGateway.  BackendURL is only set by
// tests pointing the client at a local server.
type StripeOptions struct {
	SecretKey     string
	WebhookSecret string
	BackendURL    string
	HTTPClient    *http.Client
}

// NewStripeGateway builds a client with its own backends so that the
// global stripe.Key is never touched.
func NewStripeGateway(opts StripeOptions) *StripeGateway {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	cfg := &stripe.BackendConfig{
		HTTPClient:        httpClient,
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     log.StandardLogger(),
	}
	if opts.BackendURL != "" {
		cfg.URL = stripe.String(opts.BackendURL)
	}
	api := &client.API{}
	api.Init(opts.SecretKey, &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, cfg),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, cfg),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, cfg),
	})
	return &StripeGateway{
		api:           api,
		webhookSecret: opts.WebhookSecret,
		tolerance:     webhook.DefaultTolerance,
	}
}

// CreateSession creates a card-payment Checkout Session.  The context
// deadline bounds the HTTP call; exceeding it yields ErrTimeout.
func (g *StripeGateway) CreateSession(ctx context.Context, req SessionRequest) (*Session, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		SuccessURL:         stripe.String(req.SuccessURL),
		CancelURL:          stripe.String(req.CancelURL),
	}
	params.Context = ctx
	for _, li := range req.LineItems {
		product := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
			Name: stripe.String(li.Name),
		}
		if li.Description != "" {
			product.Description = stripe.String(li.Description)
		}
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(req.Currency),
				ProductData: product,
				UnitAmount:  stripe.Int64(li.UnitAmountCents),
			},
			Quantity: stripe.Int64(li.Quantity),
		})
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	s, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		if isTimeout(ctx, err) {
			return nil, ErrTimeout
		}
		return nil, errors.Wrap(err, "stripe: create checkout session")
	}
	return &Session{ID: s.ID, URL: s.URL}, nil
}

// VerifyEvent checks the Stripe-Signature header against the raw payload
// and decodes the event.  Nothing from the payload is parsed before the
// signature check passes; a verified payload that cannot be decoded yields
// ErrMalformed.
func (g *StripeGateway) VerifyEvent(payload []byte, signature string) (*Event, error) {
	if err := webhook.ValidatePayloadWithTolerance(payload, signature, g.webhookSecret, g.tolerance); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSignature, err)
	}
	var evt stripe.Event
	if err := json.Unmarshal(payload, &evt); err != nil {
		return nil, fmt.Errorf("%w: decode event: %w", ErrMalformed, err)
	}
	out := &Event{ID: evt.ID, Type: string(evt.Type)}
	if out.Type != EventCheckoutCompleted || evt.Data == nil {
		return out, nil
	}
	var cs stripe.CheckoutSession
	if err := json.Unmarshal(evt.Data.Raw, &cs); err != nil {
		return nil, fmt.Errorf("%w: decode checkout session: %w", ErrMalformed, err)
	}
	out.SessionID = cs.ID
	out.PaymentStatus = string(cs.PaymentStatus)
	out.AmountTotal = cs.AmountTotal
	out.Metadata = cs.Metadata
	return out, nil
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
