package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/iliyamo/ebook-storefront/internal/middleware"
	"github.com/iliyamo/ebook-storefront/internal/payment"
	"github.com/iliyamo/ebook-storefront/internal/service"
)

type stubCheckout struct {
	sess   *service.CheckoutSession
	err    error
	userID uint64
}

func (s *stubCheckout) BeginCheckout(_ context.Context, userID uint64) (*service.CheckoutSession, error) {
	s.userID = userID
	return s.sess, s.err
}

type stubEvents struct {
	res       *service.FulfillmentResult
	err       error
	payload   []byte
	signature string
	calls     int
}

func (s *stubEvents) HandleEvent(_ context.Context, payload []byte, signature string) (*service.FulfillmentResult, error) {
	s.calls++
	s.payload = payload
	s.signature = signature
	return s.res, s.err
}

func asUser(id uint64) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set(middleware.ContextUserID, id)
			c.Set(middleware.ContextRole, "USER")
			return next(c)
		}
	}
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestCheckout_ReturnsSession(t *testing.T) {
	cs := &stubCheckout{sess: &service.CheckoutSession{SessionID: "cs_1", URL: "https://pay.example/cs_1"}}
	h := NewCheckoutHandler(cs, &stubEvents{})
	e := echo.New()
	e.POST("/v1/checkout", h.Checkout, asUser(42))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/checkout", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "cs_1", body["session_id"])
	assert.Equal(t, "https://pay.example/cs_1", body["url"])
	assert.Equal(t, uint64(42), cs.userID)
}

func TestCheckout_Unauthenticated(t *testing.T) {
	h := NewCheckoutHandler(&stubCheckout{}, &stubEvents{})
	e := echo.New()
	e.POST("/v1/checkout", h.Checkout)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/checkout", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCheckout_ErrorStatuses(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{service.ErrEmptyCart, http.StatusBadRequest},
		{service.ErrCartTooLarge, http.StatusBadRequest},
		{errors.Wrapf(service.ErrBookUnavailable, "book %d", 9), http.StatusConflict},
		{service.ErrGatewayTimeout, http.StatusGatewayTimeout},
		{errors.Wrap(service.ErrGatewayFailure, "card_declined"), http.StatusBadGateway},
		{errors.Wrap(service.ErrStoreUnavailable, "db down"), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			h := NewCheckoutHandler(&stubCheckout{err: tc.err}, &stubEvents{})
			e := echo.New()
			e.POST("/v1/checkout", h.Checkout, asUser(1))

			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/checkout", nil))
			assert.Equal(t, tc.want, rec.Code)
			assert.NotEmpty(t, decodeBody(t, rec)["error"])
		})
	}
}

func postWebhook(t *testing.T, h *CheckoutHandler, body io.Reader, sig string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	e.POST("/v1/webhooks/stripe", h.StripeWebhook)
	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/stripe", body)
	req.Header.Set("Stripe-Signature", sig)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestStripeWebhook_PassesRawBody(t *testing.T) {
	ev := &stubEvents{res: &service.FulfillmentResult{Created: 2}}
	h := NewCheckoutHandler(&stubCheckout{}, ev)

	raw := `{"id":"evt_1",  "type":"checkout.session.completed"}`
	rec := postWebhook(t, h, strings.NewReader(raw), "t=1,v1=abc")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, raw, string(ev.payload))
	assert.Equal(t, "t=1,v1=abc", ev.signature)
	assert.Equal(t, true, decodeBody(t, rec)["received"])
}

func TestStripeWebhook_Outcomes(t *testing.T) {
	cases := []struct {
		name string
		res  *service.FulfillmentResult
		err  error
		want int
	}{
		{"untrusted", nil, service.ErrUntrustedEvent, http.StatusBadRequest},
		{"malformed is acknowledged", nil, errors.Wrap(service.ErrMalformedEvent, "metadata: missing key"), http.StatusOK},
		{"store down asks for redelivery", nil, errors.Wrap(service.ErrStoreUnavailable, "no purchase recorded"), http.StatusInternalServerError},
		{"ignored", &service.FulfillmentResult{Ignored: true, IgnoreReason: "unhandled event type"}, nil, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewCheckoutHandler(&stubCheckout{}, &stubEvents{res: tc.res, err: tc.err})
			rec := postWebhook(t, h, strings.NewReader("{}"), "sig")
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestStripeWebhook_RejectsOversizedBody(t *testing.T) {
	ev := &stubEvents{}
	h := NewCheckoutHandler(&stubCheckout{}, ev)

	rec := postWebhook(t, h, strings.NewReader(strings.Repeat("x", maxWebhookBody+1)), "sig")
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Zero(t, ev.calls)
}

func TestStripeWebhook_SignedUndecodableEventIsAcknowledged(t *testing.T) {
	const whsec = "whsec_handler"
	gw := payment.NewStripeGateway(payment.StripeOptions{SecretKey: "sk_test", WebhookSecret: whsec})
	h := NewCheckoutHandler(&stubCheckout{}, service.NewFulfillmentService(gw, nil, nil, nil, nil, nil))

	payload := `{"id":"evt_9","object":"event","type":"checkout.session.completed","data":{"object":{"id":"cs_9","amount_total":"abc"}}}`
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    whsec,
		Timestamp: time.Now(),
	})

	rec := postWebhook(t, h, strings.NewReader(payload), signed.Header)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decodeBody(t, rec)["processed"])

	rec = postWebhook(t, h, strings.NewReader(payload), "t=1,v1=forged")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
