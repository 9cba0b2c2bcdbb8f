package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/iliyamo/ebook-storefront/internal/metrics"
	"github.com/iliyamo/ebook-storefront/internal/model"
	"github.com/iliyamo/ebook-storefront/internal/payment"
	"github.com/iliyamo/ebook-storefront/internal/queue"
	"github.com/iliyamo/ebook-storefront/internal/repository"
)

// publishTimeout bounds the broker round trip so an unreachable broker
// cannot hold the webhook response past the processor's own timeout.
const publishTimeout = 3 * time.Second

// FulfillmentResult summarizes what one webhook delivery did.
type FulfillmentResult struct {
	EventID      string
	EventType    string
	SessionID    string
	Ignored      bool
	IgnoreReason string
	Created      int
	Duplicates   int
	Failed       int
	CartCleared  bool
}

// FulfillmentService turns verified payment-completion events into
// purchases.  Every step is safe to repeat: purchases are keyed by
// (session, book) in the store and clearing an empty cart is a no-op.
type FulfillmentService struct {
	gateway   payment.Gateway
	catalog   CatalogStore
	purchases PurchaseStore
	carts     CartStore
	publisher EventPublisher
	metrics   *metrics.Metrics
	now       func() time.Time
}

// NewFulfillmentService wires the handler.  publisher may be nil when no
// broker is configured.
func NewFulfillmentService(gateway payment.Gateway, catalog CatalogStore, purchases PurchaseStore,
	carts CartStore, publisher EventPublisher, m *metrics.Metrics) *FulfillmentService {
	return &FulfillmentService{
		gateway:   gateway,
		catalog:   catalog,
		purchases: purchases,
		carts:     carts,
		publisher: publisher,
		metrics:   m,
		now:       time.Now,
	}
}

// HandleEvent verifies and applies one webhook delivery.
//
// Errors: ErrUntrustedEvent when the signature fails; ErrMalformedEvent when
// the event cannot be reconciled (the caller acknowledges it anyway);
// ErrStoreUnavailable when nothing could be recorded or the cart could not
// be cleared, in which case the processor should redeliver.
func (s *FulfillmentService) HandleEvent(ctx context.Context, payload []byte, signature string) (*FulfillmentResult, error) {
	res, err := s.handleEvent(ctx, payload, signature)
	s.metrics.ObserveFulfillment(fulfillmentOutcome(res, err))
	return res, err
}

func (s *FulfillmentService) handleEvent(ctx context.Context, payload []byte, signature string) (*FulfillmentResult, error) {
	evt, err := s.gateway.VerifyEvent(payload, signature)
	if errors.Is(err, payment.ErrMalformed) {
		log.WithError(err).Error("webhook: verified payload cannot be decoded")
		return nil, withCause(ErrMalformedEvent, err)
	}
	if err != nil {
		log.WithError(err).Warn("webhook: signature verification failed")
		return nil, withCause(ErrUntrustedEvent, err)
	}

	res := &FulfillmentResult{EventID: evt.ID, EventType: evt.Type, SessionID: evt.SessionID}
	logger := log.WithFields(log.Fields{"event_id": evt.ID, "event_type": evt.Type, "session_id": evt.SessionID})

	if evt.Type != payment.EventCheckoutCompleted {
		res.Ignored, res.IgnoreReason = true, "unhandled event type"
		logger.Debug("webhook: ignoring event")
		return res, nil
	}
	if evt.PaymentStatus != payment.PaymentStatusPaid {
		res.Ignored, res.IgnoreReason = true, "payment status "+evt.PaymentStatus
		logger.WithField("payment_status", evt.PaymentStatus).Info("webhook: session not paid, ignoring")
		return res, nil
	}
	if evt.SessionID == "" {
		logger.Error("webhook: completion event without session id")
		return res, errors.Wrap(ErrMalformedEvent, "missing session id")
	}

	meta, err := DecodeMetadata(evt.Metadata)
	if err != nil {
		logger.WithError(err).Error("webhook: cannot reconcile session metadata")
		return res, err
	}
	logger = logger.WithField("user_id", meta.UserID)

	amounts := s.allocate(ctx, evt.AmountTotal, meta.Items)

	var (
		transient error
		created   []queue.PurchasedItem
	)
	for i, it := range meta.Items {
		p := &model.Purchase{
			UserID:      meta.UserID,
			BookID:      it.BookID,
			Quantity:    it.Quantity,
			AmountCents: amounts[i],
			SessionID:   evt.SessionID,
			Status:      model.PurchaseStatusCompleted,
		}
		err := s.purchases.CreatePurchaseIfAbsent(ctx, p)
		switch {
		case err == nil:
			res.Created++
			created = append(created, queue.PurchasedItem{BookID: it.BookID, Quantity: it.Quantity, AmountCents: p.AmountCents})
			s.metrics.ObservePurchase("created")
		case errors.Is(err, repository.ErrPurchaseExists):
			res.Duplicates++
			s.metrics.ObservePurchase("duplicate")
			logger.WithField("book_id", it.BookID).Info("webhook: purchase already recorded")
		case errors.Is(err, repository.ErrReferenceMissing):
			res.Failed++
			s.metrics.ObservePurchase("failed")
			logger.WithField("book_id", it.BookID).Error("webhook: purchase references unknown user or book")
		default:
			res.Failed++
			transient = err
			s.metrics.ObservePurchase("failed")
			logger.WithError(err).WithField("book_id", it.BookID).Error("webhook: record purchase failed")
		}
	}

	if res.Created+res.Duplicates == 0 {
		if transient != nil {
			return res, withCause(ErrStoreUnavailable,
				errors.WithMessagef(transient, "no purchase recorded for session %s", evt.SessionID))
		}
		// Every item points at a user or book that does not exist; a
		// redelivery cannot succeed.
		return res, errors.Wrap(ErrMalformedEvent, "no item references an existing user and book")
	}
	if res.Failed > 0 {
		logger.WithFields(log.Fields{"failed": res.Failed, "recorded": res.Created + res.Duplicates}).
			Warn("webhook: partial fulfillment")
	}

	if err := s.clearCart(ctx, meta, res.Created > 0); err != nil {
		logger.WithError(err).Error("webhook: clear cart failed")
		return res, withCause(ErrStoreUnavailable, err)
	}
	res.CartCleared = true

	if len(created) > 0 {
		s.publish(ctx, logger, evt, meta.UserID, created)
	}
	logger.WithFields(log.Fields{"created": res.Created, "duplicates": res.Duplicates}).Info("webhook: session fulfilled")
	return res, nil
}

// clearCart empties the cart on the delivery that recorded purchases.  A
// delivery that only found duplicates is finishing an earlier attempt, so
// it removes just the session's books and leaves anything added since.
func (s *FulfillmentService) clearCart(ctx context.Context, meta *CheckoutMetadata, firstDelivery bool) error {
	if firstDelivery {
		return s.carts.ClearCart(ctx, meta.UserID)
	}
	ids := make([]uint64, len(meta.Items))
	for i, it := range meta.Items {
		ids[i] = it.BookID
	}
	return s.carts.RemoveItems(ctx, meta.UserID, ids)
}

// allocate splits the paid total across items in proportion to their
// current catalog value.  If any book cannot be priced the split falls
// back to quantities so the shares still sum to the total.
func (s *FulfillmentService) allocate(ctx context.Context, total int64, items []MetadataItem) []int64 {
	weights := make([]decimal.Decimal, len(items))
	for i, it := range items {
		book, err := s.catalog.GetBook(ctx, it.BookID)
		if err != nil || !book.Price.IsPositive() {
			for j := range items {
				weights[j] = decimal.NewFromInt(int64(items[j].Quantity))
			}
			return splitAmount(total, weights)
		}
		weights[i] = book.Price.Mul(decimal.NewFromInt(int64(it.Quantity)))
	}
	return splitAmount(total, weights)
}

func (s *FulfillmentService) publish(ctx context.Context, logger *log.Entry, evt *payment.Event, userID uint64, items []queue.PurchasedItem) {
	if s.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	err := s.publisher.PublishPurchaseCompleted(ctx, queue.PurchaseCompletedEvent{
		EventID:     uuid.NewString(),
		SessionID:   evt.SessionID,
		UserID:      userID,
		Items:       items,
		AmountTotal: evt.AmountTotal,
		CompletedAt: s.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		logger.WithError(err).Warn("webhook: publish purchase event failed")
	}
}

func fulfillmentOutcome(res *FulfillmentResult, err error) string {
	switch {
	case errors.Is(err, ErrUntrustedEvent):
		return "untrusted"
	case errors.Is(err, ErrMalformedEvent):
		return "malformed"
	case err != nil:
		return "retry"
	case res.Ignored:
		return "ignored"
	case res.Created == 0:
		return "duplicate"
	default:
		return "fulfilled"
	}
}
