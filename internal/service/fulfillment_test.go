package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/ebook-storefront/internal/metrics"
	"github.com/iliyamo/ebook-storefront/internal/payment"
	"github.com/iliyamo/ebook-storefront/internal/queue"
)

type fulfillmentFixture struct {
	checkout  *CheckoutService
	svc       *FulfillmentService
	store     *memStore
	gateway   *fakeGateway
	publisher *mockPublisher
}

// setup seeds the example catalog (A=$5, B=$10) and a cart of
// [{A, 2}, {B, 1}] for userU.
func setup(t *testing.T) *fulfillmentFixture {
	t.Helper()
	store := newMemStore()
	store.addBook(1, "Book A", "5.00")
	store.addBook(2, "Book B", "10.00")
	store.addToCart(userU, 1, 2)
	store.addToCart(userU, 2, 1)

	gw := &fakeGateway{}
	pub := &mockPublisher{}
	m := metrics.New()
	return &fulfillmentFixture{
		checkout:  NewCheckoutService(store, store, gw, CheckoutOptions{}, m),
		svc:       NewFulfillmentService(gw, store, store, store, pub, m),
		store:     store,
		gateway:   gw,
		publisher: pub,
	}
}

// completedPayload checks out the fixture's cart and returns the signed-off
// completion event for the resulting session.
func (f *fulfillmentFixture) completedPayload(t *testing.T, amountTotal int64) ([]byte, string) {
	t.Helper()
	sess, err := f.checkout.BeginCheckout(context.Background(), userU)
	require.NoError(t, err)
	return eventPayload(t, payment.Event{
		ID:            "evt_" + sess.SessionID,
		Type:          payment.EventCheckoutCompleted,
		SessionID:     sess.SessionID,
		PaymentStatus: payment.PaymentStatusPaid,
		AmountTotal:   amountTotal,
		Metadata:      f.gateway.lastRequest().Metadata,
	}), sess.SessionID
}

func eventPayload(t *testing.T, evt payment.Event) []byte {
	t.Helper()
	b, err := json.Marshal(evt)
	require.NoError(t, err)
	return b
}

func (f *fulfillmentFixture) expectPublish(sessionID string, items int) {
	f.publisher.On("PublishPurchaseCompleted", mock.Anything, mock.MatchedBy(func(ev queue.PurchaseCompletedEvent) bool {
		return ev.SessionID == sessionID && ev.UserID == userU && len(ev.Items) == items && ev.EventID != ""
	})).Return(nil).Once()
}

func TestHandleEvent_ExampleScenario(t *testing.T) {
	f := setup(t)
	payload, sessionID := f.completedPayload(t, 2000)
	f.expectPublish(sessionID, 2)

	res, err := f.svc.HandleEvent(context.Background(), payload, validSignature)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Created)
	assert.True(t, res.CartCleared)

	a, ok := f.store.purchase(sessionID, 1)
	require.True(t, ok)
	assert.Equal(t, uint32(2), a.Quantity)
	assert.Equal(t, int64(1000), a.AmountCents)
	assert.Equal(t, userU, a.UserID)

	b, ok := f.store.purchase(sessionID, 2)
	require.True(t, ok)
	assert.Equal(t, uint32(1), b.Quantity)
	assert.Equal(t, int64(1000), b.AmountCents)

	assert.Equal(t, 2, f.store.purchaseCount())
	assert.Equal(t, uint32(1), f.store.purchasesCount(1))
	assert.Equal(t, uint32(1), f.store.purchasesCount(2))
	assert.Zero(t, f.store.cartLen(userU))
	f.publisher.AssertExpectations(t)
}

func TestHandleEvent_IdempotentAcrossRedeliveries(t *testing.T) {
	for _, deliveries := range []int{1, 2, 5} {
		t.Run(fmt.Sprintf("%d deliveries", deliveries), func(t *testing.T) {
			f := setup(t)
			payload, sessionID := f.completedPayload(t, 2000)
			f.expectPublish(sessionID, 2)

			for i := 0; i < deliveries; i++ {
				res, err := f.svc.HandleEvent(context.Background(), payload, validSignature)
				require.NoError(t, err)
				if i == 0 {
					assert.Equal(t, 2, res.Created)
				} else {
					assert.Zero(t, res.Created)
					assert.Equal(t, 2, res.Duplicates)
				}
			}

			assert.Equal(t, 2, f.store.purchaseCount())
			assert.Equal(t, uint32(1), f.store.purchasesCount(1))
			assert.Equal(t, uint32(1), f.store.purchasesCount(2))
			assert.Zero(t, f.store.cartLen(userU))
			f.publisher.AssertExpectations(t)
		})
	}
}

func TestHandleEvent_ForgedSignature(t *testing.T) {
	f := setup(t)
	payload, _ := f.completedPayload(t, 2000)

	_, err := f.svc.HandleEvent(context.Background(), payload, "t=1,v1=forged")
	assert.ErrorIs(t, err, ErrUntrustedEvent)
	assert.Zero(t, f.store.purchaseCount())
	assert.Equal(t, 2, f.store.cartLen(userU))
	f.publisher.AssertNotCalled(t, "PublishPurchaseCompleted", mock.Anything, mock.Anything)
}

func TestHandleEvent_IgnoredEvents(t *testing.T) {
	f := setup(t)
	md, err := EncodeMetadata(CheckoutMetadata{UserID: userU, Items: []MetadataItem{{BookID: 1, Quantity: 1}}})
	require.NoError(t, err)

	cases := map[string]payment.Event{
		"other type": {ID: "evt_1", Type: "payment_intent.created"},
		"unpaid":     {ID: "evt_2", Type: payment.EventCheckoutCompleted, SessionID: "cs_x", PaymentStatus: "unpaid", Metadata: md},
	}
	for name, evt := range cases {
		t.Run(name, func(t *testing.T) {
			res, err := f.svc.HandleEvent(context.Background(), eventPayload(t, evt), validSignature)
			require.NoError(t, err)
			assert.True(t, res.Ignored)
			assert.Zero(t, f.store.purchaseCount())
			assert.Equal(t, 2, f.store.cartLen(userU))
		})
	}
}

func TestHandleEvent_MalformedMetadata(t *testing.T) {
	f := setup(t)
	payload := eventPayload(t, payment.Event{
		ID:            "evt_1",
		Type:          payment.EventCheckoutCompleted,
		SessionID:     "cs_bad",
		PaymentStatus: payment.PaymentStatusPaid,
		AmountTotal:   500,
		Metadata:      map[string]string{"userId": "42", "items": `[{"bookId":"1","quantity":1}]`},
	})

	_, err := f.svc.HandleEvent(context.Background(), payload, validSignature)
	assert.ErrorIs(t, err, ErrMalformedEvent)
	assert.Zero(t, f.store.purchaseCount())
	assert.Equal(t, 2, f.store.cartLen(userU))
}

func TestHandleEvent_PartialFailureStillClearsCart(t *testing.T) {
	f := setup(t)
	payload, sessionID := f.completedPayload(t, 2000)
	f.store.createErr[2] = errors.New("lock wait timeout")
	f.expectPublish(sessionID, 1)

	res, err := f.svc.HandleEvent(context.Background(), payload, validSignature)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, 1, res.Failed)
	assert.True(t, res.CartCleared)
	_, ok := f.store.purchase(sessionID, 2)
	assert.False(t, ok)
	f.publisher.AssertExpectations(t)
}

func TestHandleEvent_TotalFailureIsRetryable(t *testing.T) {
	f := setup(t)
	payload, sessionID := f.completedPayload(t, 2000)
	f.store.createErr[1] = errors.New("connection reset")
	f.store.createErr[2] = errors.New("connection reset")

	_, err := f.svc.HandleEvent(context.Background(), payload, validSignature)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Equal(t, 2, f.store.cartLen(userU), "cart must survive a failed fulfillment")

	// The processor redelivers once the store is back.
	delete(f.store.createErr, 1)
	delete(f.store.createErr, 2)
	f.expectPublish(sessionID, 2)
	res, err := f.svc.HandleEvent(context.Background(), payload, validSignature)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Created)
	assert.Zero(t, f.store.cartLen(userU))
	f.publisher.AssertExpectations(t)
}

func TestHandleEvent_ClearFailureIsRetryable(t *testing.T) {
	f := setup(t)
	payload, sessionID := f.completedPayload(t, 2000)
	f.store.clearErr = errors.New("deadlock")
	f.expectPublish(sessionID, 2)

	_, err := f.svc.HandleEvent(context.Background(), payload, validSignature)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Equal(t, 2, f.store.purchaseCount())
	assert.Equal(t, 2, f.store.cartLen(userU))

	f.store.clearErr = nil
	res, err := f.svc.HandleEvent(context.Background(), payload, validSignature)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Duplicates)
	assert.True(t, res.CartCleared)
	assert.Zero(t, f.store.cartLen(userU))
	assert.Equal(t, uint32(1), f.store.purchasesCount(1))
}

func TestHandleEvent_UnknownBooksAreAcknowledged(t *testing.T) {
	f := setup(t)
	md, err := EncodeMetadata(CheckoutMetadata{UserID: userU, Items: []MetadataItem{{BookID: 77, Quantity: 1}}})
	require.NoError(t, err)
	payload := eventPayload(t, payment.Event{
		ID: "evt_1", Type: payment.EventCheckoutCompleted, SessionID: "cs_gone",
		PaymentStatus: payment.PaymentStatusPaid, AmountTotal: 500, Metadata: md,
	})

	_, err = f.svc.HandleEvent(context.Background(), payload, validSignature)
	assert.ErrorIs(t, err, ErrMalformedEvent)
	assert.Equal(t, 2, f.store.cartLen(userU))
}

func TestHandleEvent_PublishFailureDoesNotFail(t *testing.T) {
	f := setup(t)
	payload, _ := f.completedPayload(t, 2000)
	f.publisher.On("PublishPurchaseCompleted", mock.Anything, mock.Anything).Return(errors.New("broker down")).Once()

	res, err := f.svc.HandleEvent(context.Background(), payload, validSignature)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Created)
	f.publisher.AssertExpectations(t)
}

func TestHandleEvent_NoPublisherConfigured(t *testing.T) {
	f := setup(t)
	svc := NewFulfillmentService(f.gateway, f.store, f.store, f.store, nil, nil)
	payload, _ := f.completedPayload(t, 2000)

	res, err := svc.HandleEvent(context.Background(), payload, validSignature)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Created)
}

func TestHandleEvent_SplitsDiscountedTotal(t *testing.T) {
	f := setup(t)
	// A coupon at the processor reduced the 2000 cent cart to 1500.
	payload, sessionID := f.completedPayload(t, 1500)
	f.expectPublish(sessionID, 2)

	_, err := f.svc.HandleEvent(context.Background(), payload, validSignature)
	require.NoError(t, err)
	a, _ := f.store.purchase(sessionID, 1)
	b, _ := f.store.purchase(sessionID, 2)
	assert.Equal(t, int64(750), a.AmountCents)
	assert.Equal(t, int64(750), b.AmountCents)
}

func TestHandleEvent_UndecodableVerifiedPayloadIsAcknowledged(t *testing.T) {
	f := setup(t)

	_, err := f.svc.HandleEvent(context.Background(), []byte(`{"Type":"checkout.session.completed","AmountTotal":"abc"}`), validSignature)
	assert.ErrorIs(t, err, ErrMalformedEvent)
	assert.NotErrorIs(t, err, ErrUntrustedEvent)
	assert.ErrorIs(t, err, payment.ErrMalformed)
	assert.Zero(t, f.store.purchaseCount())
	assert.Equal(t, 2, f.store.cartLen(userU))
}

func TestHandleEvent_LateRedeliveryKeepsNewCartItems(t *testing.T) {
	f := setup(t)
	payload, sessionID := f.completedPayload(t, 2000)
	f.expectPublish(sessionID, 2)

	_, err := f.svc.HandleEvent(context.Background(), payload, validSignature)
	require.NoError(t, err)
	assert.Zero(t, f.store.cartLen(userU))

	// The user keeps shopping, then the processor redelivers the old event.
	f.store.addBook(3, "Book C", "7.00")
	f.store.addToCart(userU, 3, 1)

	res, err := f.svc.HandleEvent(context.Background(), payload, validSignature)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Duplicates)
	assert.True(t, res.CartCleared)
	cart, err := f.store.GetCartWithItems(context.Background(), userU)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, uint64(3), cart.Items[0].BookID)
	f.publisher.AssertExpectations(t)
}

func TestHandleEvent_PublishIsBounded(t *testing.T) {
	f := setup(t)
	payload, _ := f.completedPayload(t, 2000)
	f.publisher.On("PublishPurchaseCompleted", mock.MatchedBy(func(ctx context.Context) bool {
		deadline, ok := ctx.Deadline()
		return ok && time.Until(deadline) <= publishTimeout
	}), mock.Anything).Return(nil).Once()

	_, err := f.svc.HandleEvent(context.Background(), payload, validSignature)
	require.NoError(t, err)
	f.publisher.AssertExpectations(t)
}

func TestHandleEvent_StoreFailureKeepsCause(t *testing.T) {
	f := setup(t)
	payload, _ := f.completedPayload(t, 2000)
	cause := errors.New("connection reset")
	f.store.createErr[1] = cause
	f.store.createErr[2] = cause

	_, err := f.svc.HandleEvent(context.Background(), payload, validSignature)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.ErrorIs(t, err, cause)
}
