package service

import (
	"context"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/iliyamo/ebook-storefront/internal/metrics"
	"github.com/iliyamo/ebook-storefront/internal/payment"
	"github.com/iliyamo/ebook-storefront/internal/repository"
)

// CheckoutOptions carry the processor settings for new sessions.
type CheckoutOptions struct {
	Currency       string
	SuccessURL     string
	CancelURL      string
	GatewayTimeout time.Duration
}

// CheckoutSession is handed back to the customer to complete payment.
type CheckoutSession struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

// CheckoutService turns a user's cart into a payment session.  It never
// writes to the store: the cart stays as is until a paid webhook arrives.
type CheckoutService struct {
	carts   CartStore
	catalog CatalogStore
	gateway payment.Gateway
	opts    CheckoutOptions
	metrics *metrics.Metrics
}

func NewCheckoutService(carts CartStore, catalog CatalogStore, gateway payment.Gateway,
	opts CheckoutOptions, m *metrics.Metrics) *CheckoutService {
	if opts.GatewayTimeout <= 0 {
		opts.GatewayTimeout = 10 * time.Second
	}
	if opts.Currency == "" {
		opts.Currency = "usd"
	}
	return &CheckoutService{carts: carts, catalog: catalog, gateway: gateway, opts: opts, metrics: m}
}

// BeginCheckout snapshots the cart at current catalog prices, encodes the
// reconciliation metadata and opens a session with the payment gateway.
func (s *CheckoutService) BeginCheckout(ctx context.Context, userID uint64) (*CheckoutSession, error) {
	sess, err := s.beginCheckout(ctx, userID)
	s.metrics.ObserveCheckout(checkoutResult(err))
	return sess, err
}

func (s *CheckoutService) beginCheckout(ctx context.Context, userID uint64) (*CheckoutSession, error) {
	logger := log.WithField("user_id", userID)

	cart, err := s.carts.GetCartWithItems(ctx, userID)
	if err != nil {
		logger.WithError(err).Error("checkout: load cart failed")
		return nil, withCause(ErrStoreUnavailable, err)
	}
	if cart.IsEmpty() {
		return nil, ErrEmptyCart
	}

	lines := make([]payment.LineItem, 0, len(cart.Items))
	meta := CheckoutMetadata{UserID: userID, Items: make([]MetadataItem, 0, len(cart.Items))}
	for _, it := range cart.Items {
		book, err := s.catalog.GetBook(ctx, it.BookID)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, errors.Wrapf(ErrBookUnavailable, "book %d", it.BookID)
		}
		if err != nil {
			logger.WithError(err).WithField("book_id", it.BookID).Error("checkout: load book failed")
			return nil, withCause(ErrStoreUnavailable, err)
		}
		unit := book.UnitAmountCents()
		if unit <= 0 {
			return nil, errors.Wrapf(ErrBookUnavailable, "book %d has no price", it.BookID)
		}
		lines = append(lines, payment.LineItem{
			Name:            book.Title,
			Description:     truncate(book.Description, 250),
			UnitAmountCents: unit,
			Quantity:        int64(it.Quantity),
		})
		meta.Items = append(meta.Items, MetadataItem{BookID: it.BookID, Quantity: it.Quantity})
	}

	md, err := EncodeMetadata(meta)
	if err != nil {
		return nil, err
	}

	gctx, cancel := context.WithTimeout(ctx, s.opts.GatewayTimeout)
	defer cancel()
	sess, err := s.gateway.CreateSession(gctx, payment.SessionRequest{
		LineItems:  lines,
		Metadata:   md,
		Currency:   s.opts.Currency,
		SuccessURL: s.opts.SuccessURL,
		CancelURL:  s.opts.CancelURL,
	})
	if err != nil {
		if errors.Is(err, payment.ErrTimeout) || errors.Is(gctx.Err(), context.DeadlineExceeded) {
			logger.WithError(err).Warn("checkout: payment gateway timed out")
			return nil, ErrGatewayTimeout
		}
		logger.WithError(err).Error("checkout: create session failed")
		return nil, withCause(ErrGatewayFailure, err)
	}

	logger.WithFields(log.Fields{"session_id": sess.ID, "items": len(lines)}).Info("checkout: session created")
	return &CheckoutSession{SessionID: sess.ID, URL: sess.URL}, nil
}

func checkoutResult(err error) string {
	switch {
	case err == nil:
		return "created"
	case errors.Is(err, ErrEmptyCart):
		return "empty_cart"
	case errors.Is(err, ErrBookUnavailable):
		return "book_unavailable"
	case errors.Is(err, ErrCartTooLarge):
		return "too_large"
	case errors.Is(err, ErrGatewayTimeout):
		return "gateway_timeout"
	case errors.Is(err, ErrGatewayFailure):
		return "gateway_error"
	default:
		return "store_error"
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
