package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/iliyamo/ebook-storefront/internal/service"
)

// maxWebhookBody bounds the webhook payload read before verification.
const maxWebhookBody = 64 << 10

// CheckoutStarter opens a payment session for a user's cart.
type CheckoutStarter interface {
	BeginCheckout(ctx context.Context, userID uint64) (*service.CheckoutSession, error)
}

// EventHandler applies a signed payment-processor event.
type EventHandler interface {
	HandleEvent(ctx context.Context, payload []byte, signature string) (*service.FulfillmentResult, error)
}

// CheckoutHandler exposes checkout to customers and receives processor
// webhooks.
type CheckoutHandler struct {
	Starter     CheckoutStarter
	Fulfillment EventHandler
}

func NewCheckoutHandler(cs CheckoutStarter, eh EventHandler) *CheckoutHandler {
	return &CheckoutHandler{Starter: cs, Fulfillment: eh}
}

// Checkout handles POST /v1/checkout
func (h *CheckoutHandler) Checkout(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return errorJSON(c, http.StatusUnauthorized, "unauthorized")
	}
	sess, err := h.Starter.BeginCheckout(c.Request().Context(), uid)
	if err != nil {
		status, msg := checkoutStatus(err)
		if status >= http.StatusInternalServerError {
			log.WithError(err).WithField("user_id", uid).Warn("checkout failed")
		}
		return errorJSON(c, status, msg)
	}
	return c.JSON(http.StatusOK, sess)
}

func checkoutStatus(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrEmptyCart):
		return http.StatusBadRequest, "cart is empty"
	case errors.Is(err, service.ErrCartTooLarge):
		return http.StatusBadRequest, "cart has too many items for one checkout"
	case errors.Is(err, service.ErrBookUnavailable):
		return http.StatusConflict, err.Error()
	case errors.Is(err, service.ErrGatewayTimeout):
		return http.StatusGatewayTimeout, "payment processor timed out"
	case errors.Is(err, service.ErrGatewayFailure):
		return http.StatusBadGateway, "payment processor error"
	case errors.Is(err, service.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "store unavailable"
	default:
		return http.StatusInternalServerError, "checkout failed"
	}
}

// StripeWebhook handles POST /v1/webhooks/stripe.  The raw body is handed to
// the verifier untouched; a non-2xx answer makes Stripe redeliver.
func (h *CheckoutHandler) StripeWebhook(c echo.Context) error {
	req := c.Request()
	payload, err := io.ReadAll(http.MaxBytesReader(c.Response(), req.Body, maxWebhookBody))
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return errorJSON(c, http.StatusRequestEntityTooLarge, "payload too large")
		}
		return errorJSON(c, http.StatusBadRequest, "unreadable body")
	}

	res, err := h.Fulfillment.HandleEvent(req.Context(), payload, req.Header.Get("Stripe-Signature"))
	switch {
	case errors.Is(err, service.ErrUntrustedEvent):
		return errorJSON(c, http.StatusBadRequest, "invalid signature")
	case errors.Is(err, service.ErrMalformedEvent):
		// Redelivery cannot fix a bad payload.
		return c.JSON(http.StatusOK, echo.Map{"received": true, "processed": false})
	case err != nil:
		return errorJSON(c, http.StatusInternalServerError, "fulfillment failed")
	}

	body := echo.Map{"received": true}
	if res != nil && res.Ignored {
		body["ignored"] = res.IgnoreReason
	}
	return c.JSON(http.StatusOK, body)
}
